// Package query implements the lazy ifilter-chain query layer over a sack's
// considered set (spec §4.5).
package query

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rpm-software-management/libdnf-sub003/internal/sack"
)

// Key names a queryable package attribute.
type Key string

const (
	KeyName        Key = "name"
	KeyEpoch       Key = "epoch"
	KeyVersion     Key = "version"
	KeyRelease     Key = "release"
	KeyArch        Key = "arch"
	KeyEVR         Key = "evr"
	KeyNEVRA       Key = "nevra"
	KeyRepoName    Key = "reponame"
	KeySummary     Key = "summary"
	KeyDescription Key = "description"
	KeyURL         Key = "url"
	KeyFile        Key = "file"
	KeyProvides    Key = "provides"
	KeyRequires    Key = "requires"
	KeyConflicts   Key = "conflicts"
	KeyObsoletes   Key = "obsoletes"
	KeyRecommends  Key = "recommends"
	KeySuggests    Key = "suggests"
	KeyEnhances    Key = "enhances"
	KeySupplements Key = "supplements"
	KeyInstalled   Key = "installed"
	KeyDowngrades  Key = "downgrades"
	KeyUpgrades    Key = "upgrades"
	KeyLatestArch  Key = "latest-per-arch"
	KeyLatest      Key = "latest"
	KeyEmpty       Key = "empty"
)

// Comparator names how a filter value is matched against a package attribute.
type Comparator string

const (
	CmpEQ     Comparator = "eq"
	CmpNEQ    Comparator = "neq"
	CmpGT     Comparator = "gt"
	CmpGTE    Comparator = "gte"
	CmpLT     Comparator = "lt"
	CmpLTE    Comparator = "lte"
	CmpGlob   Comparator = "glob" // shell glob, case-insensitive
	CmpSubstr Comparator = "substr"
	CmpNot    Comparator = "not" // negated equality: no value equals the attribute
)

// Query is a composable, in-place filter chain over a Sack's considered set
// (spec §4.5). Repo-less of the teacher's solver vocabulary, a Query here
// only ever narrows; it never mutates the sack.
type Query struct {
	sack   *sack.Sack
	result *sack.PackageSet
	err    error
}

// New starts a query over s's entire considered set.
func New(s *sack.Sack) *Query {
	return &Query{sack: s, result: s.Considered().Clone()}
}

// FromSet starts a query over an arbitrary starting set, e.g. to compose a
// sub-query out of a prior query's Set().
func FromSet(s *sack.Sack, set *sack.PackageSet) *Query {
	return &Query{sack: s, result: set.Clone()}
}

// Err returns the first error encountered by any ifilter call in the chain,
// if any; once set, subsequent ifilter calls are no-ops.
func (q *Query) Err() error { return q.err }

// IFilter narrows the query in place by key/comparator/values and returns
// the same *Query for chaining. Multiple IFilter calls compose with AND;
// callers wanting OR must union two Query results themselves (spec §4.5).
func (q *Query) IFilter(key Key, cmp Comparator, values ...string) *Query {
	if q.err != nil {
		return q
	}
	next, err := q.applyFilter(key, cmp, values)
	if err != nil {
		q.err = err
		return q
	}
	q.result = next
	return q
}

func (q *Query) applyFilter(key Key, cmp Comparator, values []string) (*sack.PackageSet, error) {
	switch key {
	case KeyLatestArch:
		return q.latestPerArch(), nil
	case KeyLatest:
		return q.latest(), nil
	case KeyDowngrades:
		return q.versusInstalled(false), nil
	case KeyUpgrades:
		return q.versusInstalled(true), nil
	case KeyInstalled:
		return q.result.Intersection(q.sack.Installed()), nil
	case KeyEmpty:
		out := q.result.Clone()
		if out.Empty() {
			return out, nil
		}
		return newEmptySet(q.sack), nil
	case KeyFile:
		return q.byPredicate(func(p *sack.Package) bool {
			return matchAny(cmp, values, p.Files...)
		}), nil
	}

	pred, err := predicateForKey(key, cmp, values)
	if err != nil {
		return nil, err
	}
	return q.byPredicate(pred), nil
}

func (q *Query) byPredicate(pred func(*sack.Package) bool) *sack.PackageSet {
	out := newEmptySet(q.sack)
	q.result.Each(func(id sack.PackageID) {
		if pkg := q.sack.Pkg(id); pkg != nil && pred(pkg) {
			out.Add(id)
		}
	})
	return out
}

func newEmptySet(s *sack.Sack) *sack.PackageSet {
	return sack.FromSlice(s, nil)
}

func predicateForKey(key Key, cmp Comparator, values []string) (func(*sack.Package) bool, error) {
	switch key {
	case KeyName:
		return func(p *sack.Package) bool { return matchAny(cmp, values, p.Name) }, nil
	case KeyArch:
		return func(p *sack.Package) bool { return matchAny(cmp, values, p.Arch) }, nil
	case KeyEpoch:
		return func(p *sack.Package) bool {
			return matchAny(cmp, values, fmt.Sprintf("%d", p.EVR.Epoch))
		}, nil
	case KeyVersion:
		return func(p *sack.Package) bool { return matchAny(cmp, values, p.EVR.Version) }, nil
	case KeyRelease:
		return func(p *sack.Package) bool { return matchAny(cmp, values, p.EVR.Release) }, nil
	case KeyEVR:
		return func(p *sack.Package) bool { return matchAny(cmp, values, p.EVR.String()) }, nil
	case KeyNEVRA:
		return func(p *sack.Package) bool { return matchAny(cmp, values, p.NEVRA.String()) }, nil
	case KeySummary:
		return func(p *sack.Package) bool { return matchAny(cmp, values, p.Summary) }, nil
	case KeyDescription:
		return func(p *sack.Package) bool { return matchAny(cmp, values, p.Description) }, nil
	case KeyURL:
		return func(p *sack.Package) bool { return matchAny(cmp, values, p.URL) }, nil
	case KeyProvides:
		return func(p *sack.Package) bool { return reldepMatch(cmp, values, p.Provides) }, nil
	case KeyRequires:
		return func(p *sack.Package) bool { return reldepMatch(cmp, values, p.Requires) }, nil
	case KeyConflicts:
		return func(p *sack.Package) bool { return reldepMatch(cmp, values, p.Conflicts) }, nil
	case KeyObsoletes:
		return func(p *sack.Package) bool { return reldepMatch(cmp, values, p.Obsoletes) }, nil
	case KeyRecommends:
		return func(p *sack.Package) bool { return reldepMatch(cmp, values, p.Recommends) }, nil
	case KeySuggests:
		return func(p *sack.Package) bool { return reldepMatch(cmp, values, p.Suggests) }, nil
	case KeyEnhances:
		return func(p *sack.Package) bool { return reldepMatch(cmp, values, p.Enhances) }, nil
	case KeySupplements:
		return func(p *sack.Package) bool { return reldepMatch(cmp, values, p.Supplements) }, nil
	default:
		return nil, fmt.Errorf("query: unsupported key %q", key)
	}
}

func reldepMatch(cmp Comparator, values []string, reldeps []*sack.Reldep) bool {
	names := make([]string, len(reldeps))
	for i, r := range reldeps {
		names[i] = r.Name
	}
	return matchAny(cmp, values, names...)
}

// matchAny reports whether any of haystack matches any of values under cmp.
// CmpNot matches when no value equals any haystack entry.
func matchAny(cmp Comparator, values []string, haystack ...string) bool {
	negate := false
	base := cmp
	if cmp == CmpNot {
		negate = true
		base = CmpEQ
	}
	found := false
outer:
	for _, v := range values {
		for _, h := range haystack {
			if matchOne(base, v, h) {
				found = true
				break outer
			}
		}
	}
	if negate {
		return !found
	}
	return found
}

func matchOne(cmp Comparator, v, h string) bool {
	switch cmp {
	case CmpEQ:
		return v == h
	case CmpNEQ:
		return v != h
	case CmpSubstr:
		return strings.Contains(h, v)
	case CmpGlob:
		ok, _ := filepath.Match(strings.ToLower(v), strings.ToLower(h))
		return ok
	case CmpGT:
		return h > v
	case CmpGTE:
		return h >= v
	case CmpLT:
		return h < v
	case CmpLTE:
		return h <= v
	default:
		return false
	}
}

// latestPerArch keeps, for each (name, arch), only the packages at the
// highest EVR (spec §4.5).
func (q *Query) latestPerArch() *sack.PackageSet {
	type key struct{ name, arch string }
	best := make(map[key][]*sack.Package)
	q.result.Each(func(id sack.PackageID) {
		p := q.sack.Pkg(id)
		if p == nil {
			return
		}
		k := key{p.Name, p.Arch}
		cur := best[k]
		if len(cur) == 0 {
			best[k] = []*sack.Package{p}
			return
		}
		c := sack.CompareEVR(p.EVR, cur[0].EVR)
		switch {
		case c > 0:
			best[k] = []*sack.Package{p}
		case c == 0:
			best[k] = append(cur, p)
		}
	})
	out := newEmptySet(q.sack)
	for _, pkgs := range best {
		for _, p := range pkgs {
			out.Add(p.ID())
		}
	}
	return out
}

// latest keeps, for each name, only the packages at the EVR that is highest
// across all arches for that name (spec §4.5).
func (q *Query) latest() *sack.PackageSet {
	best := make(map[string][]*sack.Package)
	q.result.Each(func(id sack.PackageID) {
		p := q.sack.Pkg(id)
		if p == nil {
			return
		}
		cur := best[p.Name]
		if len(cur) == 0 {
			best[p.Name] = []*sack.Package{p}
			return
		}
		c := sack.CompareEVR(p.EVR, cur[0].EVR)
		switch {
		case c > 0:
			best[p.Name] = []*sack.Package{p}
		case c == 0:
			best[p.Name] = append(cur, p)
		}
	})
	out := newEmptySet(q.sack)
	for _, pkgs := range best {
		for _, p := range pkgs {
			out.Add(p.ID())
		}
	}
	return out
}

// versusInstalled keeps available packages whose EVR is strictly
// greater (upgrades=true) or strictly less (upgrades=false) than the
// installed package of the same name+arch, where one exists (spec §4.5).
func (q *Query) versusInstalled(upgrades bool) *sack.PackageSet {
	type key struct{ name, arch string }
	installedBest := make(map[key]*sack.Package)
	q.sack.Installed().Each(func(id sack.PackageID) {
		p := q.sack.Pkg(id)
		if p == nil {
			return
		}
		k := key{p.Name, p.Arch}
		if cur, ok := installedBest[k]; !ok || sack.CompareEVR(p.EVR, cur.EVR) > 0 {
			installedBest[k] = p
		}
	})

	out := newEmptySet(q.sack)
	q.result.Each(func(id sack.PackageID) {
		p := q.sack.Pkg(id)
		if p == nil || p.Installed {
			return
		}
		inst, ok := installedBest[key{p.Name, p.Arch}]
		if !ok {
			return
		}
		c := sack.CompareEVR(p.EVR, inst.EVR)
		if (upgrades && c > 0) || (!upgrades && c < 0) {
			out.Add(id)
		}
	})
	return out
}

// Set returns the query's current result as a PackageSet.
func (q *Query) Set() *sack.PackageSet { return q.result }

// Run returns the query's current result as an ordered vector of packages,
// sorted by name then EVR then arch for determinism.
func (q *Query) Run() []*sack.Package {
	ids := q.result.Slice()
	pkgs := make([]*sack.Package, 0, len(ids))
	for _, id := range ids {
		if p := q.sack.Pkg(id); p != nil {
			pkgs = append(pkgs, p)
		}
	}
	sortPackages(pkgs)
	return pkgs
}

// RunSet is an alias for Set, named to match the terminal vocabulary in
// spec §4.5.
func (q *Query) RunSet() *sack.PackageSet { return q.Set() }

// GetFirst returns the first package in Run() order, or nil if the query's
// result is empty.
func (q *Query) GetFirst() *sack.Package {
	pkgs := q.Run()
	if len(pkgs) == 0 {
		return nil
	}
	return pkgs[0]
}

// Count returns the number of packages currently in the query's result.
func (q *Query) Count() int { return q.result.Size() }

func sortPackages(pkgs []*sack.Package) {
	for i := 1; i < len(pkgs); i++ {
		for j := i; j > 0 && packageLess(pkgs[j], pkgs[j-1]); j-- {
			pkgs[j], pkgs[j-1] = pkgs[j-1], pkgs[j]
		}
	}
}

func packageLess(a, b *sack.Package) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	if c := sack.CompareEVR(a.EVR, b.EVR); c != 0 {
		return c < 0
	}
	return a.Arch < b.Arch
}
