// Package repo implements the repo metadata fetcher (spec §4.2): URL
// resolution, mirror failover, checksum/GPG verification, and the atomic
// cache directory swap, plus parallel package download (spec §4.9 calls
// back into a single repo's fetcher per batch).
package repo

import (
	"fmt"
	"time"

	dnf "github.com/rpm-software-management/libdnf-sub003"
	"github.com/rpm-software-management/libdnf-sub003/internal/sack"
)

// Kind names a repo's transport family (spec §3).
type Kind int

const (
	KindRemote Kind = iota
	KindLocal       // file://
	KindMedia       // mounted filesystem
)

// Enabled is the tri-state enabled bit (spec §3).
type Enabled int

const (
	EnabledNone Enabled = iota
	EnabledMetadataOnly
	EnabledPackagesAndMetadata
)

// MetadataKind names one of the declared per-kind metadata files a repomd.xml
// indexes (spec §4.2 step 3, §6).
type MetadataKind string

const (
	MetaPrimary     MetadataKind = "primary"
	MetaFilelists   MetadataKind = "filelists"
	MetaUpdateinfo  MetadataKind = "updateinfo"
	MetaGroup       MetadataKind = "group"
	MetaOther       MetadataKind = "other"
	MetaAppstream   MetadataKind = "appstream"
	MetaModules     MetadataKind = "modules"
)

// standardMetadataKinds are fetched by every remote refresh unless disabled
// globally (filelists) or not present in repomd.xml.
var standardMetadataKinds = []MetadataKind{
	MetaPrimary, MetaFilelists, MetaUpdateinfo, MetaGroup, MetaOther, MetaAppstream, MetaModules,
}

// ProxyAuthMethod enumerates the `proxy_auth_method` closed set (spec §6).
type ProxyAuthMethod string

const (
	ProxyAuthAny       ProxyAuthMethod = "any"
	ProxyAuthNone      ProxyAuthMethod = "none"
	ProxyAuthBasic     ProxyAuthMethod = "basic"
	ProxyAuthDigest    ProxyAuthMethod = "digest"
	ProxyAuthNegotiate ProxyAuthMethod = "negotiate"
	ProxyAuthNTLM      ProxyAuthMethod = "ntlm"
	ProxyAuthDigestIE  ProxyAuthMethod = "digest_ie"
	ProxyAuthNTLMWB    ProxyAuthMethod = "ntlm_wb"
)

// TLSConfig carries the repo's SSL/TLS-related option values (spec §6).
type TLSConfig struct {
	CACert       string
	ClientCert   string
	ClientKey    string
	Verify       bool
}

// Credentials carries proxy/basic auth, kept separate from TLSConfig since
// these may additionally come from the credentials.toml overlay (SPEC_FULL
// §6 expansion).
type Credentials struct {
	Proxy           string // URL, or "_none_" literal
	ProxyUsername   string
	ProxyPassword   string
	ProxyAuthMethod ProxyAuthMethod
	Username        string
	Password        string
}

// Repo is one configured repository: identity, state, and the derived
// cache paths a refresh fills in (spec §3).
type Repo struct {
	ID       string
	Name     string
	Kind     Kind
	Enabled  Enabled
	Required bool
	Cost     int

	CacheDir   string
	KeyringDir string

	BaseURL     []string
	MirrorList  string
	Metalink    string

	GPGCheck     bool
	RepoGPGCheck bool
	GPGKeyURLs   []string

	Credentials Credentials
	TLS         TLSConfig

	MetadataExpire    int64 // seconds
	ModuleHotfixes    bool
	Excludes          []string

	// LastMetadataGenerated is the repomd.xml <revision>/generated
	// timestamp last observed for this repo, cached across refreshes.
	LastMetadataGenerated time.Time

	// MetadataPaths maps a MetadataKind to its on-disk path under
	// CacheDir/repodata, populated by a successful refresh/check.
	MetadataPaths map[MetadataKind]string

	lock              *Lock
	memo              *Memo
	vars              map[string]string
	fetcher           Fetcher
	keyring           Keyring
	parser            MetadataParser
	logger            *dnf.Logger
	filelistsDisabled bool
}

// SetFilelistsDisabled skips the filelists metadata kind during refresh,
// matching the `optional_metadata_types`/`skip_if_unavailable`-adjacent
// global knob some distros set to reduce download size (SPEC_FULL §4.2).
func (r *Repo) SetFilelistsDisabled(disabled bool) { r.filelistsDisabled = disabled }

// New returns a Repo with default Cost/required/enabled values matching
// spec §3: cost 1000, required true, enabled metadata-only false (caller
// must opt a repo into actually being used).
func New(id string) *Repo {
	return &Repo{
		ID:             id,
		Kind:           KindRemote,
		Enabled:        EnabledNone,
		Required:       true,
		Cost:           1000,
		MetadataExpire: 6 * 3600,
		MetadataPaths:  make(map[MetadataKind]string),
	}
}

// Validate checks the repo-identity and authoritative-URL invariants from
// spec §3: id must match `[A-Za-z0-9_.\-:]+`, at most one of
// {baseurl, mirrorlist, metalink} may be the set's sole intended source
// (any may be present, so this only rejects a completely empty triple when
// the repo is enabled), and repo_gpgcheck requires at least one GPG key URL.
func (r *Repo) Validate() error {
	if !validRepoID(r.ID) {
		return dnf.Errorf("Repo", dnf.KindFileInvalid, "invalid repo id %q", r.ID)
	}
	if r.Enabled != EnabledNone {
		if len(r.BaseURL) == 0 && r.MirrorList == "" && r.Metalink == "" {
			return dnf.Errorf("Repo", dnf.KindFileInvalid, "repo %q has no baseurl, mirrorlist, or metalink", r.ID)
		}
	}
	if r.RepoGPGCheck && len(r.GPGKeyURLs) == 0 {
		return dnf.Errorf("Repo", dnf.KindFileInvalid, "repo %q has repo_gpgcheck set but no gpgkey configured", r.ID)
	}
	return nil
}

func validRepoID(id string) bool {
	if id == "" {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '_' || c == '.' || c == '-' || c == ':':
		default:
			return false
		}
	}
	return true
}

// SetVars installs the process-wide variable map (spec §4.2's
// "Variable substitution") used to resolve $releasever/$basearch/$arch/
// $testdatadir/user vars in this repo's URLs.
func (r *Repo) SetVars(vars map[string]string) { r.vars = vars }

// SetLogger installs a logger used for non-fatal warnings (missing
// variables, skip-if-unavailable demotions).
func (r *Repo) SetLogger(l *dnf.Logger) { r.logger = l }

// SetFetcher installs the abstract download collaborator (spec §1: "the
// HTTP/mirror/metalink download engine").
func (r *Repo) SetFetcher(f Fetcher) { r.fetcher = f }

// SetKeyring installs the abstract GPG keyring collaborator (spec §1: "GPG
// keyring management").
func (r *Repo) SetKeyring(k Keyring) { r.keyring = k }

// ResolvedBaseURL returns r.BaseURL with every entry's variables expanded
// against r.vars (spec §4.2).
func (r *Repo) ResolvedBaseURL() []string {
	out := make([]string, len(r.BaseURL))
	for i, u := range r.BaseURL {
		out[i] = r.expand(u)
	}
	return out
}

func (r *Repo) warnf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Warnf(format, args...)
	}
}

// CacheSubdir computes the conventional `<cachedir>/<repo_id>-<releasever>-
// <basearch>/` layout named in spec §6, given the currently resolved vars.
func (r *Repo) CacheSubdir(base string) string {
	releasever := r.vars["releasever"]
	basearch := r.vars["basearch"]
	return fmt.Sprintf("%s/%s-%s-%s", base, r.ID, releasever, basearch)
}

func (r *Repo) typed(kind, msg string, args ...interface{}) *dnf.Error {
	return dnf.Errorf("Repo", kind, "%s: %s", r.ID, fmt.Sprintf(msg, args...))
}

func (r *Repo) wrap(cause error, kind, msg string, args ...interface{}) *dnf.Error {
	return dnf.Wrap(cause, "Repo", kind, "%s: %s", r.ID, fmt.Sprintf(msg, args...))
}

// PackageRef is the minimal view of a package DownloadPackages needs: a
// location path relative to the repo's own or overriding base URL, the
// recorded checksum, and an id used to correlate download progress with
// transaction items (spec §4.9).
type PackageRef struct {
	ID       sack.PackageID
	Location string
	BaseURL  string // overrides the repo's own, if non-empty
	Checksum sack.Checksum
	Size     uint64
}

// PackageRefFromSack builds a PackageRef for pkg, to be passed to
// DownloadPackages.
func PackageRefFromSack(pkg *sack.Package) PackageRef {
	return PackageRef{
		ID:       pkg.ID(),
		Location: pkg.Location,
		BaseURL:  pkg.BaseURL,
		Checksum: pkg.Checksum,
		Size:     pkg.DownloadSize,
	}
}
