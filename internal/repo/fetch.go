package repo

import (
	"os"
	"path/filepath"
	"time"

	dnf "github.com/rpm-software-management/libdnf-sub003"
	"github.com/rpm-software-management/libdnf-sub003/internal/sack"
)

// UpdateFlags are the flags a caller may pass to Update (spec §4.2).
type UpdateFlags struct {
	Force        bool // ignore timestamp comparison
	ImportPubkey bool // add downloaded keys into the RPM keyring
	Simulate     bool // refresh but do not swap
}

// Fetcher is the abstract HTTP/mirror/metalink download engine (spec §1):
// given a set of candidate mirror URLs, a destination path, and an
// optional checksum to verify against, it yields a verified file or a
// typed error. Mirror failover (first error recorded, attached as context
// to a later failure) is the Fetcher's own responsibility.
type Fetcher interface {
	Fetch(urls []string, destPath string, checksum sack.Checksum, cancel <-chan struct{}) error
}

// Keyring is the abstract GPG keyring collaborator (spec §1).
type Keyring interface {
	HasKey(repoID, keyURL string) bool
	ImportKey(repoID, keyURL string) error
	VerifyDetached(repoID, dataPath, sigPath string) error
}

// RepomdFile is one <data> entry in repomd.xml: the kind, its relative
// path, and its checksum (the generated timestamp is carried by Repomd).
type RepomdFile struct {
	Kind     MetadataKind
	Path     string // relative to the repo root
	Checksum sack.Checksum
}

// Repomd is the parsed form of repomd.xml (spec §6): a generated timestamp
// and the declared per-kind metadata files.
type Repomd struct {
	Generated time.Time
	Files     []RepomdFile
}

// MetadataParser is the abstract repomd.xml/metadata-XML parser (spec §1:
// "parsed by the solver library" — out of scope for this core, modeled as
// a collaborator so the refresh protocol itself stays solver-agnostic).
type MetadataParser interface {
	ParseRepomd(path string) (*Repomd, error)
}

// SetParser installs the metadata parser collaborator.
func (r *Repo) SetParser(p MetadataParser) { r.parser = p }

// SetMemo installs the bolt memo cache, which Update fills with the
// repomd.xml generated timestamp and metadata checksums after a successful
// refresh (SPEC_FULL §4.2 expansion). Check does not consult it.
func (r *Repo) SetMemo(m *Memo) { r.memo = m }

// Setup resolves r's URL variables and commits its cache directory under
// cacheRoot, per spec §4.2's `setup()`.
func (r *Repo) Setup(cacheRoot string) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.CacheDir = r.CacheSubdir(cacheRoot)
	r.KeyringDir = filepath.Join(r.CacheDir, "gpgdir")
	if err := os.MkdirAll(filepath.Join(r.CacheDir, "packages"), 0o755); err != nil {
		return r.wrap(err, dnf.KindCannotWriteCache, "creating packages directory")
	}
	if err := os.MkdirAll(r.KeyringDir, 0o755); err != nil {
		return r.wrap(err, dnf.KindCannotWriteCache, "creating keyring directory")
	}
	return nil
}

// effectiveCacheAge returns the age threshold a cached repomd.xml must be
// within to be considered fresh: min(metadata_expire, maxCacheAge), per
// spec §9's resolved Open Question adopting the C++ clamping behavior.
func (r *Repo) effectiveCacheAge(maxCacheAge time.Duration) time.Duration {
	expire := time.Duration(r.MetadataExpire) * time.Second
	if maxCacheAge < expire {
		return maxCacheAge
	}
	return expire
}

// Check attempts to load metadata from cache only, with no network access
// (spec §4.2's `check(max_cache_age)`). It fails with not-available if the
// cached repomd.xml is missing or the parser rejects it.
func (r *Repo) Check(maxCacheAge time.Duration) error {
	repomdPath := filepath.Join(r.CacheDir, "repodata", "repomd.xml")
	info, err := os.Stat(repomdPath)
	if err != nil {
		return r.wrap(err, dnf.KindNotAvailable, "no cached repomd.xml")
	}
	if time.Since(info.ModTime()) > r.effectiveCacheAge(maxCacheAge) {
		return r.typed(dnf.KindNotAvailable, "cached metadata is stale")
	}
	return r.loadMetadataPaths(repomdPath)
}

func (r *Repo) loadMetadataPaths(repomdPath string) error {
	if r.parser == nil {
		return r.typed(dnf.KindInternal, "no metadata parser configured")
	}
	repomd, err := r.parser.ParseRepomd(repomdPath)
	if err != nil {
		return r.wrap(err, dnf.KindFileInvalid, "parsing cached repomd.xml")
	}
	r.LastMetadataGenerated = repomd.Generated
	for _, f := range repomd.Files {
		r.MetadataPaths[f.Kind] = filepath.Join(r.CacheDir, f.Path)
	}
	return nil
}

// Update runs the full refresh protocol (spec §4.2 steps 1-8). For a
// Required repo a failure propagates; for a non-required repo with
// skip_if_unavailable-equivalent semantics (!Required) the failure is
// logged and the repo is marked disabled for this process, and Update
// returns nil (spec §4.2 "Skip-if-unavailable").
func (r *Repo) Update(flags UpdateFlags, cancel <-chan struct{}) error {
	if r.Kind != KindRemote {
		return r.typed(dnf.KindInternal, "Update called on a non-remote repo")
	}

	err := r.update(flags, cancel)
	if err == nil {
		return nil
	}
	if !r.Required {
		r.warnf("repo %s: refresh failed, disabling for this run: %v", r.ID, err)
		r.Enabled = EnabledNone
		return nil
	}
	return err
}

func (r *Repo) update(flags UpdateFlags, cancel <-chan struct{}) error {
	lock := r.lockFor(r.CacheDir)
	if err := lock.Acquire(30 * time.Second); err != nil {
		return err
	}
	defer lock.Release()

	// Step 2: skip network if a fresh cache already exists.
	if !flags.Force {
		if err := r.Check(r.effectiveCacheAge(time.Duration(r.MetadataExpire) * time.Second)); err == nil {
			return nil
		}
	}

	tmpDir := r.CacheDir + ".tmp"
	if err := os.RemoveAll(tmpDir); err != nil {
		return r.wrap(err, dnf.KindCannotWriteCache, "clearing stale temp dir")
	}
	if err := os.MkdirAll(filepath.Join(tmpDir, "repodata"), 0o755); err != nil {
		return r.wrap(err, dnf.KindCannotWriteCache, "creating temp cache dir")
	}
	defer os.RemoveAll(tmpDir)

	// Step 3: download repomd.xml.
	repomdPath := filepath.Join(tmpDir, "repodata", "repomd.xml")
	if err := r.fetchOne(repomdPath, sack.Checksum{}, cancel); err != nil {
		return r.wrap(err, dnf.KindNotAvailable, "fetching repomd.xml")
	}

	if r.parser == nil {
		return r.typed(dnf.KindInternal, "no metadata parser configured")
	}
	repomd, err := r.parser.ParseRepomd(repomdPath)
	if err != nil {
		return r.wrap(err, dnf.KindFileInvalid, "parsing downloaded repomd.xml")
	}

	// Step 6 (timestamp comparison) is checked before we bother downloading
	// every declared metadata file's payload, an allowed reordering since a
	// stale repomd.xml makes the rest of the fetch moot; force still
	// bypasses it.
	if !flags.Force && !repomd.Generated.After(r.LastMetadataGenerated) && !r.LastMetadataGenerated.IsZero() {
		return nil
	}

	// Step 3 (continued) + step 4: download and verify every declared
	// metadata file named in repomd.xml.
	for _, f := range repomd.Files {
		if f.Kind == MetaFilelists && r.filelistsDisabled {
			continue
		}
		dest := filepath.Join(tmpDir, f.Path)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return r.wrap(err, dnf.KindCannotWriteCache, "creating directory for %s", f.Kind)
		}
		if err := r.fetchOne(dest, f.Checksum, cancel); err != nil {
			return r.wrap(err, dnf.KindNotAvailable, "fetching %s metadata", f.Kind)
		}
		if err := verifyChecksum(dest, f.Checksum); err != nil {
			return r.wrap(err, dnf.KindChecksumMismatch, "%s metadata checksum mismatch", f.Kind)
		}
		if r.memo != nil {
			r.memo.SetChecksum(r.ID, f.Kind, f.Checksum.Digest)
		}
	}

	// Step 5: GPG verification of repomd.xml.
	if r.RepoGPGCheck {
		if err := r.verifyRepomdSignature(tmpDir, flags); err != nil {
			return err
		}
	}

	if flags.Simulate {
		return nil
	}

	// Step 7: atomic cache swap. Preserve already-downloaded packages/ by
	// moving it into the temp directory first, then commit via rename.
	oldPackages := filepath.Join(r.CacheDir, "packages")
	if _, statErr := os.Stat(oldPackages); statErr == nil {
		if err := renameWithFallback(oldPackages, filepath.Join(tmpDir, "packages")); err != nil {
			return r.wrap(err, dnf.KindCannotWriteCache, "preserving packages/ across cache swap")
		}
	}
	if err := os.RemoveAll(r.CacheDir); err != nil {
		return r.wrap(err, dnf.KindCannotWriteCache, "removing old cache directory")
	}
	if err := renameWithFallback(tmpDir, r.CacheDir); err != nil {
		return r.wrap(err, dnf.KindCannotWriteCache, "committing new cache directory")
	}

	r.LastMetadataGenerated = repomd.Generated
	if r.memo != nil {
		r.memo.SetGenerated(r.ID, repomd.Generated)
	}
	for _, f := range repomd.Files {
		r.MetadataPaths[f.Kind] = filepath.Join(r.CacheDir, f.Path)
	}
	return nil
}

func (r *Repo) verifyRepomdSignature(tmpDir string, flags UpdateFlags) error {
	if r.keyring == nil {
		return r.typed(dnf.KindInternal, "repo_gpgcheck enabled but no keyring configured")
	}
	for _, keyURL := range r.GPGKeyURLs {
		if r.keyring.HasKey(r.ID, keyURL) {
			continue
		}
		if !flags.ImportPubkey {
			return r.typed(dnf.KindGPGVerificationFail, "GPG key %s not present and import_pubkey not set", keyURL)
		}
		if err := r.keyring.ImportKey(r.ID, keyURL); err != nil {
			return r.wrap(err, dnf.KindGPGVerificationFail, "importing GPG key %s", keyURL)
		}
	}
	sigPath := filepath.Join(tmpDir, "repodata", "repomd.xml.asc")
	dataPath := filepath.Join(tmpDir, "repodata", "repomd.xml")
	if err := r.keyring.VerifyDetached(r.ID, dataPath, sigPath); err != nil {
		return r.wrap(err, dnf.KindGPGVerificationFail, "verifying repomd.xml signature")
	}
	return nil
}

// fetchOne resolves the mirror candidate list for this repo and delegates
// to the Fetcher, coalescing mirror failure context as the Fetcher itself
// records (spec §4.2 step 4).
func (r *Repo) fetchOne(destPath string, checksum sack.Checksum, cancel <-chan struct{}) error {
	if r.fetcher == nil {
		return r.typed(dnf.KindInternal, "no fetcher configured")
	}
	urls := r.mirrorCandidates()
	if len(urls) == 0 {
		return r.typed(dnf.KindNotAvailable, "no baseurl/mirrorlist/metalink configured")
	}
	return r.fetcher.Fetch(urls, destPath, checksum, cancel)
}

// mirrorCandidates returns the resolved URL list a Fetcher should try, in
// priority order: an explicit metalink is resolved into mirrors by the
// Fetcher itself (it receives the metalink URL as a candidate); a
// mirrorlist containing "metalink" in its URL is treated as a metalink URL
// per spec §6.
func (r *Repo) mirrorCandidates() []string {
	if r.Metalink != "" {
		return []string{r.expand(r.Metalink)}
	}
	if r.MirrorList != "" {
		return []string{r.expand(r.MirrorList)}
	}
	return r.ResolvedBaseURL()
}

// Clean removes the repo's on-disk cache entirely (spec §4.2 `clean()`).
func (r *Repo) Clean() error {
	if r.CacheDir == "" {
		return nil
	}
	if err := os.RemoveAll(r.CacheDir); err != nil {
		return r.wrap(err, dnf.KindCannotWriteCache, "removing cache directory")
	}
	r.MetadataPaths = make(map[MetadataKind]string)
	r.LastMetadataGenerated = time.Time{}
	return nil
}

// DownloadPackages fetches every ref in refs (all assumed to belong to r)
// into destDir (defaulting to r.CacheDir/packages), verifying each against
// its recorded checksum. An already-complete file is not an error
// (spec §4.9). A local-kind repo refuses, per spec §4.2's failure model.
// progress may be nil; when non-nil its Downloaded hook is called after
// every item it fetches (already-complete items count toward downloaded but
// are not reported) using this repo's own batch as the (total, downloaded) pair —
// the internal/download package composes these into a cross-repo
// aggregate (spec §4.9).
func (r *Repo) DownloadPackages(refs []PackageRef, destDir string, progress dnf.Progress, cancel <-chan struct{}) error {
	if r.Kind == KindLocal {
		return r.typed(dnf.KindInternal, "DownloadPackages called on a local-kind repo")
	}
	if destDir == "" {
		destDir = filepath.Join(r.CacheDir, "packages")
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return r.wrap(err, dnf.KindCannotWriteCache, "creating package download directory")
	}

	sizes := make(map[string]uint64, len(refs))
	var total int64
	for _, ref := range refs {
		sizes[ref.Location] = ref.Size
		total += int64(ref.Size)
	}
	complete, err := listCompletePackages(destDir, sizes)
	if err != nil {
		return r.wrap(err, dnf.KindInternal, "scanning for already-downloaded packages")
	}

	var downloaded int64
	for _, ref := range refs {
		select {
		case <-cancel:
			return r.typed(dnf.KindCancelled, "package download cancelled")
		default:
		}
		if complete[ref.Location] {
			downloaded += int64(ref.Size)
			continue
		}
		dest := filepath.Join(destDir, ref.Location)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return r.wrap(err, dnf.KindCannotWriteCache, "creating directory for %s", ref.Location)
		}
		base := ref.BaseURL
		urls := []string{}
		if base == "" {
			urls = r.mirrorCandidates()
			if len(urls) == 0 {
				return r.typed(dnf.KindNotAvailable, "no baseurl/mirrorlist/metalink configured")
			}
			for i, u := range urls {
				urls[i] = joinURL(u, ref.Location)
			}
		} else {
			urls = []string{joinURL(base, ref.Location)}
		}
		if err := r.fetcher.Fetch(urls, dest, ref.Checksum, cancel); err != nil {
			return r.wrap(err, dnf.KindNotAvailable, "downloading %s", ref.Location)
		}
		downloaded += int64(ref.Size)
		if progress != nil {
			progress.Downloaded(total, downloaded, ref.Location)
		}
	}
	return nil
}

func joinURL(base, location string) string {
	if len(base) > 0 && base[len(base)-1] == '/' {
		return base + location
	}
	return base + "/" + location
}
