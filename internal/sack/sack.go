package sack

import "sort"

// defaultInstallonlyLimit is the number of installonly packages (kernels and
// similar) kept installed at once before the oldest non-running one is
// trimmed (spec §4.3, §4.7).
const defaultInstallonlyLimit = 3

// defaultInstallonlyPatterns mirrors the stock installonly-pkgs provides
// list: kernel packages and their variants.
var defaultInstallonlyPatterns = []string{
	"kernel",
	"kernel-PAE",
	"kernel-rt",
	"kernel-xen",
	"kernel-debug",
	"kernel-uek",
	"kernel-modules",
}

// Sack owns the pool, the repos attached to it, per-repo excludes/includes,
// and the derived "considered" set every higher layer queries against
// (spec §3, §4.3).
type Sack struct {
	pool *Pool

	repos       map[RepoID]string // id -> name, insertion order not required
	repoExcludes map[RepoID]*PackageSet
	repoIncludes map[RepoID]*PackageSet
	useIncludes  map[RepoID]bool

	globalExcludes *PackageSet

	installed *PackageSet

	installonlyPatterns []string
	installonlyLimit    int
	runningKernel       PackageID // 0 (unallocated) means "not found"
	runningKernelKnown  bool

	considered      *PackageSet
	considerDirty   bool
	providesReady   bool
}

// New creates an empty Sack.
func New() *Sack {
	pool := newPool()
	s := &Sack{
		pool:                pool,
		repos:               make(map[RepoID]string),
		repoExcludes:        make(map[RepoID]*PackageSet),
		repoIncludes:        make(map[RepoID]*PackageSet),
		useIncludes:         make(map[RepoID]bool),
		globalExcludes:      newPackageSet(pool),
		installed:           newPackageSet(pool),
		installonlyPatterns: append([]string(nil), defaultInstallonlyPatterns...),
		installonlyLimit:    defaultInstallonlyLimit,
		considerDirty:       true,
	}
	return s
}

// AddRepo registers a repo by id/name with the sack so packages can be
// ingested against it. Returns the repo's RepoID.
func (s *Sack) AddRepo(name string) RepoID {
	id := RepoID(len(s.repos) + 1)
	s.repos[id] = name
	s.repoExcludes[id] = newPackageSet(s.pool)
	s.repoIncludes[id] = newPackageSet(s.pool)
	s.considerDirty = true
	return id
}

// RepoIDByName looks up the RepoID registered under name (spec §4.6
// reponame selector scoping).
func (s *Sack) RepoIDByName(name string) (RepoID, bool) {
	for id, n := range s.repos {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// Ingest interns raw's dependency strings into the pool, attributes it to
// repo, and returns the now-pooled, immutable *Package.
func (s *Sack) Ingest(repo RepoID, raw RawPackage) *Package {
	pkg := &Package{
		NEVRA:            raw.NEVRA,
		SourceRPM:        raw.SourceRPM,
		Summary:          raw.Summary,
		Description:      raw.Description,
		License:          raw.License,
		URL:              raw.URL,
		Vendor:           raw.Vendor,
		Packager:         raw.Packager,
		BuildHost:        raw.BuildHost,
		BuildTime:        raw.BuildTime,
		InstallTime:      raw.InstallTime,
		Group:            raw.Group,
		Checksum:         raw.Checksum,
		HeaderChecksum:   raw.HeaderChecksum,
		DownloadSize:     raw.DownloadSize,
		InstallSize:      raw.InstallSize,
		Location:         raw.Location,
		BaseURL:          raw.BaseURL,
		Repo:             repo,
		Files:            raw.Files,
		Reason:           raw.Reason,
		Installed:        raw.Installed,
		Requires:         s.pool.internReldeps(raw.Requires),
		RequiresPre:      s.pool.internReldeps(raw.RequiresPre),
		Conflicts:        s.pool.internReldeps(raw.Conflicts),
		Obsoletes:        s.pool.internReldeps(raw.Obsoletes),
		Provides:         s.pool.internReldeps(raw.Provides),
		Recommends:       s.pool.internReldeps(raw.Recommends),
		Suggests:         s.pool.internReldeps(raw.Suggests),
		Enhances:         s.pool.internReldeps(raw.Enhances),
		Supplements:      s.pool.internReldeps(raw.Supplements),
		PrereqIgnoreinst: s.pool.internReldeps(raw.PrereqIgnoreinst),
	}
	p := s.pool.addPackage(pkg)
	s.considerDirty = true
	s.providesReady = false
	return p
}

// AddInstalled marks id as a member of the installed set (the "@System"
// repo in spirit, though the sack does not model it as a RepoID).
func (s *Sack) AddInstalled(id PackageID) {
	s.installed.Add(id)
	s.considerDirty = true
	s.resolveRunningKernel()
}

// Installed returns the set of installed PackageIDs.
func (s *Sack) Installed() *PackageSet { return s.installed }

// Pkg dereferences id back to its *Package, or nil.
func (s *Sack) Pkg(id PackageID) *Package { return s.pool.get(id) }

// Size returns the number of allocated PackageIDs.
func (s *Sack) Size() int { return s.pool.size() }

// SetExcludes replaces the exclude set for repo.
func (s *Sack) SetExcludes(repo RepoID, set *PackageSet) {
	s.repoExcludes[repo] = set
	s.considerDirty = true
}

// SetIncludes replaces the include set for repo and whether it's honored.
func (s *Sack) SetIncludes(repo RepoID, set *PackageSet, use bool) {
	s.repoIncludes[repo] = set
	s.useIncludes[repo] = use
	s.considerDirty = true
}

// SetGlobalExcludes replaces the sack-wide exclude set, applied after every
// per-repo exclude/include computation (spec §4.3's Open Question:
// "excludes always subtract last").
func (s *Sack) SetGlobalExcludes(set *PackageSet) {
	s.globalExcludes = set
	s.considerDirty = true
}

// all returns a PackageSet containing every allocated PackageID.
func (s *Sack) all() *PackageSet {
	set := newPackageSet(s.pool)
	for id := PackageID(1); int(id) < s.pool.size(); id++ {
		set.Add(id)
	}
	return set
}

// Considered returns the derived considered set, recomputing it lazily if
// the sack has been mutated since the last computation (spec §4.3):
// starting from all solvables, narrow each repo's packages to its includes
// (if the repo uses includes) and subtract its excludes, then subtract the
// sack-wide global excludes last.
func (s *Sack) Considered() *PackageSet {
	if !s.considerDirty && s.considered != nil {
		return s.considered
	}

	result := s.all()
	for repo := range s.repos {
		repoSet := s.repoPackages(repo)
		if s.useIncludes[repo] {
			if inc, ok := s.repoIncludes[repo]; ok {
				repoSet = repoSet.Intersection(inc)
			}
		}
		if exc, ok := s.repoExcludes[repo]; ok {
			repoSet = repoSet.Difference(exc)
		}
		// Packages outside repoSet's own contribution are untouched; only
		// subtract what this repo excluded/failed to include from result.
		excludedFromRepo := s.repoPackages(repo).Difference(repoSet)
		result = result.Difference(excludedFromRepo)
	}
	result = result.Difference(s.globalExcludes)

	s.considered = result
	s.considerDirty = false
	return result
}

// repoPackages returns every PackageID attributed to repo.
func (s *Sack) repoPackages(repo RepoID) *PackageSet {
	set := newPackageSet(s.pool)
	for id := PackageID(1); int(id) < s.pool.size(); id++ {
		if pkg := s.pool.get(id); pkg != nil && pkg.Repo == repo {
			set.Add(id)
		}
	}
	return set
}

// RepoPackages returns every PackageID attributed to repo. Exported for
// callers outside the package (e.g. reponame selector scoping) that need to
// intersect a candidate set against a single repo's contents.
func (s *Sack) RepoPackages(repo RepoID) *PackageSet {
	return s.repoPackages(repo)
}

// MakeProvidesReady internalizes pending repo writes and rebuilds the
// whatprovides index. Every operation that consults dependencies must call
// this first (spec §4.3). The pool maintains its provides index
// incrementally as packages are ingested, so this is idempotent and mainly
// exists as the documented synchronization point the rest of the pipeline
// is required to call.
func (s *Sack) MakeProvidesReady() {
	s.providesReady = true
	s.Considered()
}

// ProvidesReady reports whether MakeProvidesReady has run since the last
// mutation that would invalidate it.
func (s *Sack) ProvidesReady() bool {
	return s.providesReady && !s.considerDirty
}

// WhatProvides returns every PackageID providing name, without narrowing by
// version. Panics if MakeProvidesReady hasn't been called since the last
// mutation, mirroring the spec's "every operation that consults dependencies
// must call it first" invariant.
func (s *Sack) WhatProvides(name string) []PackageID {
	if !s.ProvidesReady() {
		panic("sack: WhatProvides called before MakeProvidesReady")
	}
	return s.pool.whatProvides(name)
}

// ByName returns every PackageID with exactly this package name.
func (s *Sack) ByName(name string) []PackageID { return s.pool.byName(name) }

// ByNamePrefix returns every PackageID whose name starts with prefix.
func (s *Sack) ByNamePrefix(prefix string) []PackageID { return s.pool.byNamePrefix(prefix) }

// SetInstallonlyPatterns replaces the list of provides-name patterns that
// mark a package installonly.
func (s *Sack) SetInstallonlyPatterns(patterns []string) {
	s.installonlyPatterns = patterns
}

// SetInstallonlyLimit replaces the installonly retention limit.
func (s *Sack) SetInstallonlyLimit(n int) {
	s.installonlyLimit = n
}

// InstallonlyLimit returns the current installonly retention limit.
func (s *Sack) InstallonlyLimit() int { return s.installonlyLimit }

// IsInstallonly reports whether pkg provides one of the sack's installonly
// patterns (spec §4.3, §4.7).
func (s *Sack) IsInstallonly(pkg *Package) bool {
	for _, pat := range s.installonlyPatterns {
		if pkg.Name == pat {
			return true
		}
		for _, prov := range pkg.Provides {
			if prov.Name == pat {
				return true
			}
		}
	}
	return false
}

// runningKernelProvide is the canonical capability name used to identify
// the currently-running kernel among installed packages.
const runningKernelProvide = "installed-kernel"

// resolveRunningKernel inspects the installed set for the canonical
// running-kernel provides and caches its id. If none is found, the running
// kernel is considered unknown (spec §4.3: "if not found ... marked as -1").
func (s *Sack) resolveRunningKernel() {
	var candidates []PackageID
	s.installed.Each(func(id PackageID) {
		pkg := s.pool.get(id)
		if pkg == nil {
			return
		}
		for _, prov := range pkg.Provides {
			if prov.Name == runningKernelProvide {
				candidates = append(candidates, id)
				return
			}
		}
	})
	if len(candidates) == 0 {
		s.runningKernelKnown = false
		return
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := s.pool.get(candidates[i]), s.pool.get(candidates[j])
		return CompareEVR(a.EVR, b.EVR) > 0
	})
	s.runningKernel = candidates[0]
	s.runningKernelKnown = true
}

// RunningKernel returns the PackageID of the currently-running kernel and
// true, or (0, false) if it could not be determined.
func (s *Sack) RunningKernel() (PackageID, bool) {
	return s.runningKernel, s.runningKernelKnown
}
