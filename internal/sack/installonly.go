package sack

import "sort"

// InstallonlyTrim is the result of TrimInstallonly for a single
// installonly-provide name group (spec §4.7, "Installonly trimming").
type InstallonlyTrim struct {
	Provide string
	Keep    []PackageID
	Erase   []PackageID
}

// requiresTransitively reports whether any package reachable from start via
// Requires/RequiresPre is target, including start itself. Used to keep the
// running kernel's dependents (e.g. kernel-devel pinned to it) out of the
// erase set alongside the kernel.
func (s *Sack) requiresTransitively(start, target PackageID) bool {
	if start == target {
		return true
	}
	seen := map[PackageID]bool{start: true}
	queue := []PackageID{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		pkg := s.pool.get(id)
		if pkg == nil {
			continue
		}
		for _, req := range pkg.Requires {
			for _, cand := range s.pool.whatProvides(req.Name) {
				if cand == target {
					return true
				}
				if !seen[cand] {
					seen[cand] = true
					queue = append(queue, cand)
				}
			}
		}
	}
	return false
}

// TrimInstallonly groups selected (the solver's installed-kept ∪
// newly-installed set) by installonly provide name and, for any group
// exceeding the sack's installonly limit, decides which members to keep
// installed and which to erase. See installonlyLess for the keep-priority
// order. The first Limit members of that order are kept; the rest are
// erased. Groups at or under the limit are returned with an empty Erase.
func (s *Sack) TrimInstallonly(selected []PackageID) []InstallonlyTrim {
	groups := make(map[string][]PackageID)
	for _, id := range selected {
		pkg := s.pool.get(id)
		if pkg == nil || !s.IsInstallonly(pkg) {
			continue
		}
		for _, pat := range s.installonlyPatterns {
			if pkg.Name == pat || providesName(pkg, pat) {
				groups[pat] = append(groups[pat], id)
				break
			}
		}
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []InstallonlyTrim
	for _, name := range names {
		members := groups[name]
		sort.Slice(members, func(i, j int) bool {
			return s.installonlyLess(members[i], members[j])
		})

		trim := InstallonlyTrim{Provide: name}
		limit := s.installonlyLimit
		if limit <= 0 || len(members) <= limit {
			trim.Keep = members
			out = append(out, trim)
			continue
		}
		trim.Keep = append([]PackageID(nil), members[:limit]...)
		trim.Erase = append([]PackageID(nil), members[limit:]...)
		out = append(out, trim)
	}
	return out
}

func providesName(pkg *Package, name string) bool {
	for _, p := range pkg.Provides {
		if p.Name == name {
			return true
		}
	}
	return false
}

// installonlyLess orders a before b in the installonly keep-priority order:
// the earlier-sorting element is the one more likely to be kept when
// truncating to the limit from the front. Returns true if a should sort
// before b.
//
// The running kernel (and anything that transitively requires it, e.g. a
// matching kernel-devel) is never a trim candidate, so it always sorts
// first. Everything else sorts by EVR descending, so the newest
// non-running members are kept and the oldest are the ones erased once the
// group exceeds the limit — matching the worked installonly-trim scenario
// where installing a newer kernel erases the oldest non-running one, not
// the package just requested for install.
func (s *Sack) installonlyLess(a, b PackageID) bool {
	if kernel, ok := s.runningKernel, s.runningKernelKnown; ok {
		aIsKernel := s.requiresTransitively(a, kernel)
		bIsKernel := s.requiresTransitively(b, kernel)
		if aIsKernel != bIsKernel {
			return aIsKernel // the running kernel (or its dependents) sorts first
		}
	}

	pa, pb := s.pool.get(a), s.pool.get(b)
	if c := CompareEVR(pa.EVR, pb.EVR); c != 0 {
		return c > 0 // descending EVR: newer first
	}
	// Final tiebreak on exact EVR equality: prefer keeping what's already
	// installed over a freshly-selected available package of the same EVR.
	return s.installed.Contains(a) && !s.installed.Contains(b)
}
