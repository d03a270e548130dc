// Package sack implements the pooled package index at the base of the
// resolver: interned packages and Reldeps, NEVRA/EVR identity, and the
// bitmap-backed PackageSet algebra built on top of it (spec §3, §4.3, §4.4).
package sack

import (
	"sync"

	radix "github.com/armon/go-radix"
)

// Pool owns every Package and Reldep ever ingested and is the only thing
// that can mint a PackageID or dereference one back to a *Package (spec §9,
// "Raw pointer indices into a pool"). A Pool is never exposed directly to
// callers outside this package; Sack wraps it.
type Pool struct {
	mu sync.RWMutex

	packages []*Package // index 0 is unused; PackageID 0 means "no package"
	reldeps  map[string]*Reldep

	// names indexes package name -> []PackageID, backed by a radix tree so
	// prefix lookups (exposed as Sack.ByNamePrefix) are cheap
	// without a second linear scan structure.
	names *radix.Tree

	// provides indexes a provided Reldep's interned name -> []PackageID,
	// the core structure the solver's provider-resolution leans on.
	provides map[string][]PackageID
}

func newPool() *Pool {
	return &Pool{
		packages: make([]*Package, 1, 256),
		reldeps:  make(map[string]*Reldep),
		names:    radix.New(),
		provides: make(map[string][]PackageID),
	}
}

// internReldep returns the canonical *Reldep for r's (name, flags, evr, rich)
// triple, adding it to the pool if this is the first time it's been seen.
func (p *Pool) internReldep(r *Reldep) *Reldep {
	key := r.internKey()

	p.mu.RLock()
	if existing, ok := p.reldeps[key]; ok {
		p.mu.RUnlock()
		return existing
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.reldeps[key]; ok {
		return existing
	}
	p.reldeps[key] = r
	return r
}

// internReldeps parses and interns a slice of reldep strings in order,
// skipping entries that fail to parse (the caller is expected to have
// validated metadata upstream; a single malformed entry must not sink the
// whole package).
func (p *Pool) internReldeps(raw []string) []*Reldep {
	if len(raw) == 0 {
		return nil
	}
	out := make([]*Reldep, 0, len(raw))
	for _, s := range raw {
		r, err := parseReldep(s)
		if err != nil {
			continue
		}
		out = append(out, p.internReldep(r))
	}
	return out
}

// addPackage assigns pkg a fresh PackageID, indexes its name and Provides,
// and returns the now-immutable *Package.
func (p *Pool) addPackage(pkg *Package) *Package {
	p.mu.Lock()
	defer p.mu.Unlock()

	pkg.id = PackageID(len(p.packages))
	p.packages = append(p.packages, pkg)

	var ids []PackageID
	if v, ok := p.names.Get(pkg.Name); ok {
		ids = v.([]PackageID)
	}
	p.names.Insert(pkg.Name, append(ids, pkg.id))

	for _, prov := range pkg.Provides {
		p.provides[prov.Name] = append(p.provides[prov.Name], pkg.id)
	}
	// A package always implicitly provides itself by name at its own EVR,
	// per spec §4.4 ("a package's own NEVRA name is an implicit Provides").
	p.provides[pkg.Name] = append(p.provides[pkg.Name], pkg.id)

	return pkg
}

// get dereferences a PackageID back to its *Package. Returns nil for id 0
// or an id never allocated by this pool.
func (p *Pool) get(id PackageID) *Package {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if int(id) <= 0 || int(id) >= len(p.packages) {
		return nil
	}
	return p.packages[id]
}

// size returns the number of allocated PackageIDs, including the unused 0.
func (p *Pool) size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.packages)
}

// byName returns every PackageID whose package name is exactly name.
func (p *Pool) byName(name string) []PackageID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.names.Get(name)
	if !ok {
		return nil
	}
	return v.([]PackageID)
}

// byNamePrefix returns every PackageID whose package name starts with
// prefix, used by the query layer's glob-name matching.
func (p *Pool) byNamePrefix(prefix string) []PackageID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []PackageID
	p.names.WalkPrefix(prefix, func(_ string, v interface{}) bool {
		out = append(out, v.([]PackageID)...)
		return false
	})
	return out
}

// whatProvides returns every PackageID with a Provides (or implicit
// self-name Provides) matching name, unfiltered by version constraint; the
// caller narrows by EVR/flags itself (spec §4.4).
func (p *Pool) whatProvides(name string) []PackageID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]PackageID(nil), p.provides[name]...)
}
