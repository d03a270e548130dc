package sack

// PackageID is an opaque id, stable only within the Pool that produced it
// (spec §9, "Raw pointer indices into a pool"). It is only meaningful when
// paired with that Pool — every API that consumes one must also take the
// owning Sack/Pool.
type PackageID uint32

// RepoID identifies a repo attached to a Sack, likewise only meaningful
// against the Pool that allocated it.
type RepoID uint32

// Checksum pairs a checksum algorithm with its raw digest bytes.
type Checksum struct {
	Algorithm string
	Digest    []byte
}

// NEVRA is a package's externally-visible canonical identity: name, epoch,
// version, release, arch (spec §3). NEVRA equality is required for "same
// package".
type NEVRA struct {
	Name string
	EVR  EVR
	Arch string
}

// Equal reports NEVRA equality: every component must match exactly.
func (n NEVRA) Equal(o NEVRA) bool {
	return n.Name == o.Name && n.Arch == o.Arch && CompareEVR(n.EVR, o.EVR) == 0 &&
		n.EVR.Epoch == o.EVR.Epoch && n.EVR.Version == o.EVR.Version && n.EVR.Release == o.EVR.Release
}

func (n NEVRA) String() string {
	return n.Name + "-" + n.EVR.String() + "." + n.Arch
}

// Reason classifies why a package is present in the installed set, or why a
// transaction plan item exists (spec §3, §4.8).
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonUser
	ReasonDependency
	ReasonWeakDependency
	ReasonClean
	ReasonGroup
)

func (r Reason) String() string {
	switch r {
	case ReasonUser:
		return "user"
	case ReasonDependency:
		return "dependency"
	case ReasonWeakDependency:
		return "weak-dependency"
	case ReasonClean:
		return "clean"
	case ReasonGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Package holds every read-only attribute of a known package (spec §3).
// Packages are only ever constructed by a Pool (via Sack.Ingest) and are
// immutable once interned.
type Package struct {
	id PackageID

	NEVRA

	SourceRPM      string
	Summary        string
	Description    string
	License        string
	URL            string
	Vendor         string
	Packager       string
	BuildHost      string
	BuildTime      int64
	InstallTime    int64 // zero for available (non-installed) packages
	Group          string
	Checksum       Checksum
	HeaderChecksum Checksum
	DownloadSize   uint64
	InstallSize    uint64
	Location       string
	BaseURL        string
	Repo           RepoID
	Files          []string
	Reason         Reason

	Requires         []*Reldep
	RequiresPre      []*Reldep
	Conflicts        []*Reldep
	Obsoletes        []*Reldep
	Provides         []*Reldep
	Recommends       []*Reldep
	Suggests         []*Reldep
	Enhances         []*Reldep
	Supplements      []*Reldep
	PrereqIgnoreinst []*Reldep

	Installed bool
}

// ID returns the package's opaque, pool-scoped id.
func (p *Package) ID() PackageID { return p.id }

// RawPackage is the unpooled form of a package's metadata, as a repo
// metadata parser or history-store reader produces it: dependency lists are
// plain "name OP evr" strings rather than interned *Reldeps. Sack.Ingest
// turns a RawPackage into a pooled *Package.
type RawPackage struct {
	NEVRA

	SourceRPM      string
	Summary        string
	Description    string
	License        string
	URL            string
	Vendor         string
	Packager       string
	BuildHost      string
	BuildTime      int64
	InstallTime    int64
	Group          string
	Checksum       Checksum
	HeaderChecksum Checksum
	DownloadSize   uint64
	InstallSize    uint64
	Location       string
	BaseURL        string
	Files          []string
	Reason         Reason
	Installed      bool

	Requires         []string
	RequiresPre      []string
	Conflicts        []string
	Obsoletes        []string
	Provides         []string
	Recommends       []string
	Suggests         []string
	Enhances         []string
	Supplements      []string
	PrereqIgnoreinst []string
}

// RegularRequires returns Requires minus RequiresPre, per spec §3/§4.4.
func (p *Package) RegularRequires() []*Reldep {
	if len(p.RequiresPre) == 0 {
		return p.Requires
	}
	pre := make(map[*Reldep]bool, len(p.RequiresPre))
	for _, r := range p.RequiresPre {
		pre[r] = true
	}
	out := make([]*Reldep, 0, len(p.Requires))
	for _, r := range p.Requires {
		if !pre[r] {
			out = append(out, r)
		}
	}
	return out
}
