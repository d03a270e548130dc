package goal

import (
	"fmt"
	"sort"

	"github.com/rpm-software-management/libdnf-sub003/internal/sack"
	"github.com/rpm-software-management/libdnf-sub003/internal/selector"
)

// SolverOptions carries the fixed solver-creation flags plus the
// goal-flag-derived ones the spec names at solve time (spec §4.7, "Solver
// invocation").
type SolverOptions struct {
	AllowVendorChange bool
	KeepOrphans       bool
	BestObeyPolicy    bool
	YumObsoletes      bool
	UrpmReorder       bool
	AllowDowngrade    bool
	IgnoreRecommended bool
}

// Problem is one solver-reported failure (spec §4.7, "Problem reporting").
type Problem struct {
	ID      int
	Message string
	Rules   []string
}

// SolutionElementKind enumerates the solution-element vocabulary surfaced
// verbatim for diagnostics (spec §4.7, "Solution enumeration").
type SolutionElementKind string

const (
	SolutionDoNotInstall      SolutionElementKind = "do not install"
	SolutionDoNotRemove       SolutionElementKind = "do not remove"
	SolutionAllowRemoval      SolutionElementKind = "allow removal of"
	SolutionAllowReplacing    SolutionElementKind = "allow replacing"
	SolutionAllowInferiorArch SolutionElementKind = "allow install despite inferior arch"
	SolutionAllowOlderVersion SolutionElementKind = "allow install despite older version"
	SolutionAllowObsoletion   SolutionElementKind = "allow obsoletion"
	SolutionKeepObsoleteVer   SolutionElementKind = "keep obsolete version"
	SolutionBad               SolutionElementKind = "bad solution"
)

// SolutionElement is one candidate fix for a Problem.
type SolutionElement struct {
	Kind    SolutionElementKind
	Subject sack.PackageID
	Other   sack.PackageID
}

// Solution groups a problem id with its candidate fixes.
type Solution struct {
	ProblemID int
	Elements  []SolutionElement
}

// Reason classifies where a solver decision came from (spec §4.7, "Result
// projection"): the same vocabulary as sack.Reason, kept separate because
// the solver's CLEAN reason additionally covers mid-solve orphan removal
// the sack layer never needs to represent.
type Reason string

const (
	ReasonUser    Reason = "USER"
	ReasonDep     Reason = "DEP"
	ReasonWeakDep Reason = "WEAKDEP"
	ReasonClean   Reason = "CLEAN"
)

// Result is everything a successful (or failed) solve produces.
type Result struct {
	// Selected is the final installed-kept ∪ newly-installed set.
	Selected *sack.PackageSet
	// Removed is the final removed ∪ obsoleted set.
	Removed *sack.PackageSet
	// ObsoletedBy maps an obsoleted package to the package that obsoletes it.
	ObsoletedBy map[sack.PackageID]sack.PackageID
	// Reasons maps every package in Selected, and every package the orphan
	// sweep removed (as CLEAN), to its decision reason.
	Reasons map[sack.PackageID]Reason
	// Unneeded is the orphan set: DEP-reason packages nothing depends on
	// anymore, surfaced for "autoremove"-style cleanup.
	Unneeded *sack.PackageSet
	Suggested *sack.PackageSet

	Problems []Problem

	// NewlyInstalled/Reinstalled/Upgraded/Downgraded record which action a
	// selected package represents, for transaction-plan projection.
	NewlyInstalled *sack.PackageSet
	Reinstalled    *sack.PackageSet
	Upgraded       map[sack.PackageID]sack.PackageID // new -> old
	Downgraded     map[sack.PackageID]sack.PackageID // new -> old
}

// Solver is the abstract SAT-style dependency resolver collaborator (spec
// §9's "external collaborator" framing: no concrete SAT solver library
// exists in the retrieval pack, so the goal driver only depends on this
// interface; DefaultSolver below is a deterministic greedy implementation
// sufficient for the spec's worked scenarios, grounded on the teacher's
// satisfy.go check functions).
type Solver interface {
	Solve(s *sack.Sack, jobs []SolverJob, opts SolverOptions) (*Result, error)
}

// DefaultSolver is a deterministic, greedy dependency-closure solver:
// resolve each install job to its best candidate, pull in its Requires
// transitively, detect Conflicts among the selected set, and process erase
// jobs. Every erase job runs the clean-deps orphan sweep: a plain erase and
// an erase-with-clean-deps reach the solver as the same JobErase and are
// handled alike. It does not attempt full
// backtracking SAT search; the spec's worked scenarios (§8) do not require
// it, and goal.Run layers installonly trimming and protected-removal
// enforcement on top regardless of which Solver is plugged in.
type DefaultSolver struct{}

// NewDefaultSolver returns the built-in greedy solver.
func NewDefaultSolver() Solver { return DefaultSolver{} }

func (DefaultSolver) Solve(s *sack.Sack, jobs []SolverJob, opts SolverOptions) (*Result, error) {
	res := &Result{
		Selected:       s.Installed().Clone(),
		Removed:        s.NewEmptySet(),
		ObsoletedBy:    make(map[sack.PackageID]sack.PackageID),
		Reasons:        make(map[sack.PackageID]Reason),
		Unneeded:       s.NewEmptySet(),
		Suggested:      s.NewEmptySet(),
		NewlyInstalled: s.NewEmptySet(),
		Reinstalled:    s.NewEmptySet(),
		Upgraded:       make(map[sack.PackageID]sack.PackageID),
		Downgraded:     make(map[sack.PackageID]sack.PackageID),
	}

	s.Installed().Each(func(id sack.PackageID) {
		if pkg := s.Pkg(id); pkg != nil {
			res.Reasons[id] = reasonFromSack(pkg.Reason)
		}
	})

	var worklist []sack.PackageID
	var eraseRequests []sack.PackageID
	cleanDeps := make(map[sack.PackageID]bool)

	for _, job := range jobs {
		switch job.Action {
		case JobInstall, JobUpgrade, JobDistupgrade:
			ids, err := resolveSelectorJob(s, job.Selector)
			if err != nil {
				res.Problems = append(res.Problems, Problem{
					ID:      len(res.Problems) + 1,
					Message: err.Error(),
				})
				continue
			}
			if job.Action == JobDistupgrade {
				// distro-sync moves to an available EVR, so the installed
				// copy itself is never the target.
				avail := ids[:0:0]
				for _, id := range ids {
					if !s.Installed().Contains(id) {
						avail = append(avail, id)
					}
				}
				ids = avail
			}
			if len(ids) == 0 {
				continue
			}
			best := bestCandidate(s, ids)
			old, upgrading := installedSameName(s, res, best)
			if job.Action == JobInstall && s.IsInstallonly(s.Pkg(best)) {
				// installonly packages are multiversion: a new version is
				// installed beside the old ones, and trimming decides removals.
				if s.Installed().Contains(best) {
					continue
				}
				upgrading = false
			}
			if job.Action != JobInstall && !upgrading {
				// upgrade/distro-sync never install a name that isn't
				// already present.
				continue
			}
			if upgrading {
				switch cmp := sack.CompareEVR(s.Pkg(best).EVR, s.Pkg(old).EVR); {
				case cmp > 0:
					res.Upgraded[best] = old
				case cmp < 0:
					if job.Action != JobDistupgrade && !opts.AllowDowngrade {
						res.Problems = append(res.Problems, Problem{
							ID:      len(res.Problems) + 1,
							Message: fmt.Sprintf("downgrade of %s not allowed", s.Pkg(old).NEVRA),
						})
						continue
					}
					res.Downgraded[best] = old
				default:
					res.Reinstalled.Add(best)
				}
				res.Removed.Add(old)
				res.Selected.Remove(old)
				delete(res.Reasons, old)
			} else {
				res.NewlyInstalled.Add(best)
			}
			res.Selected.Add(best)
			res.Reasons[best] = ReasonUser
			worklist = append(worklist, best)

		case JobErase:
			ids, err := resolveSelectorJob(s, job.Selector)
			if err != nil {
				res.Problems = append(res.Problems, Problem{ID: len(res.Problems) + 1, Message: err.Error()})
				continue
			}
			for _, id := range ids {
				if res.Selected.Contains(id) {
					eraseRequests = append(eraseRequests, id)
				}
			}

		case JobUserInstalled:
			ids, err := resolveSelectorJob(s, job.Selector)
			if err != nil {
				res.Problems = append(res.Problems, Problem{ID: len(res.Problems) + 1, Message: err.Error()})
				continue
			}
			for _, id := range ids {
				if res.Selected.Contains(id) {
					res.Reasons[id] = ReasonUser
				}
			}
		}
	}

	// Dependency closure.
	for len(worklist) > 0 {
		id := worklist[0]
		worklist = worklist[1:]
		pkg := s.Pkg(id)
		if pkg == nil {
			continue
		}
		for _, req := range pkg.RegularRequires() {
			if satisfiedBy(s, res.Selected, req) {
				continue
			}
			candidates := candidatesFor(s, req)
			if len(candidates) == 0 {
				res.Problems = append(res.Problems, Problem{
					ID:      len(res.Problems) + 1,
					Message: fmt.Sprintf("nothing provides %s needed by %s", req, pkg.NEVRA),
					Rules:   []string{fmt.Sprintf("package %s requires %s, but none of the providers can be installed", pkg.NEVRA, req)},
				})
				continue
			}
			best := bestCandidate(s, candidates)
			if res.Selected.Contains(best) {
				continue
			}
			res.Selected.Add(best)
			res.Reasons[best] = ReasonDep
			res.NewlyInstalled.Add(best)
			worklist = append(worklist, best)
		}
	}

	// Conflict detection among the selected set.
	detectConflicts(s, res)

	// Erase processing, including clean-deps orphan sweep.
	for _, id := range eraseRequests {
		res.Removed.Add(id)
		res.Selected.Remove(id)
		delete(res.Reasons, id)
		cleanDeps[id] = true
	}
	sweepOrphans(s, res, cleanDeps)

	sort.Slice(res.Problems, func(i, j int) bool { return res.Problems[i].ID < res.Problems[j].ID })
	return res, nil
}

// reasonFromSack carries a package's persisted sack.Reason over into the
// solve's decision-trace vocabulary, so a package already installed for a
// dependency keeps reading as DEP rather than being reclassified as USER
// just because it happens to already be present (spec §4.8's "carry-over").
func reasonFromSack(r sack.Reason) Reason {
	switch r {
	case sack.ReasonUser:
		return ReasonUser
	case sack.ReasonWeakDependency:
		return ReasonWeakDep
	case sack.ReasonClean:
		return ReasonClean
	case sack.ReasonDependency, sack.ReasonGroup, sack.ReasonUnknown:
		return ReasonDep
	default:
		return ReasonDep
	}
}

func resolveSelectorJob(s *sack.Sack, job selector.Job) ([]sack.PackageID, error) {
	var ids []sack.PackageID
	switch job.Kind {
	case selector.KindSolvableOneOf:
		ids = job.Packages
	case selector.KindSolvableName:
		ids = filterConsidered(s, s.ByName(job.Match))
	case selector.KindSolvableProvides:
		ids = filterConsidered(s, s.WhatProvides(job.Match))
	default:
		return nil, fmt.Errorf("goal: unknown selector job kind")
	}
	return filterByJobConstraints(s, job, ids), nil
}

// filterByJobConstraints narrows ids to the SETARCH/SETEVR/SETEV
// constraints a selector attached to job (spec §4.6): a SETARCH job keeps
// only an exact arch match, a SETEVR job keeps only an exact EVR match, and
// a SETEV job keeps only an exact version match while ignoring release.
func filterByJobConstraints(s *sack.Sack, job selector.Job, ids []sack.PackageID) []sack.PackageID {
	if job.Flags == 0 {
		return ids
	}
	// A pkg-literal job (KindSolvableOneOf) carries SETARCH|SETEVR with an
	// empty Arch/EVR as a tautology ("exactly this package"), not a real
	// constraint to match against; only a non-empty value narrows ids.
	out := ids[:0:0]
	for _, id := range ids {
		pkg := s.Pkg(id)
		if pkg == nil {
			continue
		}
		if job.Flags&selector.FlagSetArch != 0 && job.Arch != "" && pkg.Arch != job.Arch {
			continue
		}
		if job.Flags&selector.FlagSetEVR != 0 && job.EVR != "" {
			evr, err := sack.ParseEVR(job.EVR)
			if err != nil || sack.CompareEVR(pkg.EVR, evr) != 0 {
				continue
			}
		} else if job.Flags&selector.FlagSetEV != 0 && job.EVR != "" && pkg.EVR.Version != job.EVR {
			continue
		}
		out = append(out, id)
	}
	return out
}

func filterConsidered(s *sack.Sack, ids []sack.PackageID) []sack.PackageID {
	considered := s.Considered()
	out := ids[:0:0]
	for _, id := range ids {
		if considered.Contains(id) || s.Installed().Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

// bestCandidate picks the highest-EVR package among ids, preferring an
// already-installed one on an exact tie so a no-op install doesn't churn
// the selected set's identity.
func bestCandidate(s *sack.Sack, ids []sack.PackageID) sack.PackageID {
	best := ids[0]
	for _, id := range ids[1:] {
		a, b := s.Pkg(id), s.Pkg(best)
		if a == nil || b == nil {
			continue
		}
		if c := sack.CompareEVR(a.EVR, b.EVR); c > 0 {
			best = id
		} else if c == 0 && s.Installed().Contains(id) {
			best = id
		}
	}
	return best
}

func installedSameName(s *sack.Sack, res *Result, id sack.PackageID) (sack.PackageID, bool) {
	pkg := s.Pkg(id)
	if pkg == nil {
		return 0, false
	}
	var found sack.PackageID
	ok := false
	s.Installed().Each(func(other sack.PackageID) {
		if ok || other == id {
			return
		}
		op := s.Pkg(other)
		if op != nil && op.Name == pkg.Name && op.Arch == pkg.Arch {
			found, ok = other, true
		}
	})
	return found, ok
}

func satisfiedBy(s *sack.Sack, selected *sack.PackageSet, req *sack.Reldep) bool {
	satisfied := false
	selected.Each(func(id sack.PackageID) {
		if satisfied {
			return
		}
		pkg := s.Pkg(id)
		if pkg == nil {
			return
		}
		for _, prov := range pkg.Provides {
			if prov.Name == req.Name {
				satisfied = true
				return
			}
		}
		if pkg.Name == req.Name {
			satisfied = true
		}
	})
	return satisfied
}

func candidatesFor(s *sack.Sack, req *sack.Reldep) []sack.PackageID {
	ids := s.WhatProvides(req.Name)
	return filterConsidered(s, ids)
}

func detectConflicts(s *sack.Sack, res *Result) {
	res.Selected.Each(func(id sack.PackageID) {
		pkg := s.Pkg(id)
		if pkg == nil {
			return
		}
		for _, conflict := range pkg.Conflicts {
			res.Selected.Each(func(other sack.PackageID) {
				if other == id {
					return
				}
				op := s.Pkg(other)
				if op == nil {
					return
				}
				if op.Name == conflict.Name || providesMatch(op, conflict.Name) {
					res.Problems = append(res.Problems, Problem{
						ID:      len(res.Problems) + 1,
						Message: fmt.Sprintf("%s conflicts with %s", pkg.NEVRA, op.NEVRA),
						Rules:   []string{fmt.Sprintf("package %s conflicts with %s provided by %s", pkg.NEVRA, conflict, op.NEVRA)},
					})
				}
			})
		}
	})
}

func providesMatch(pkg *sack.Package, name string) bool {
	for _, p := range pkg.Provides {
		if p.Name == name {
			return true
		}
	}
	return false
}

// sweepOrphans removes DEP-reason packages that a removed package (an
// erase request or an earlier orphan) required and that, after the
// requested erases, are no longer required by anything still selected,
// assigning them reason CLEAN and adding them to Unneeded (spec §4.7's
// "unneeded" vector derives from exactly this orphan set).
func sweepOrphans(s *sack.Sack, res *Result, seeds map[sack.PackageID]bool) {
	if len(seeds) == 0 {
		return
	}
	changed := true
	for changed {
		changed = false
		res.Selected.Each(func(id sack.PackageID) {
			if res.Reasons[id] != ReasonDep {
				return
			}
			pkg := s.Pkg(id)
			neededBySeed := false
			for seed := range seeds {
				if sp := s.Pkg(seed); sp != nil && pkg != nil {
					for _, req := range sp.RegularRequires() {
						if req.Name == pkg.Name || providesMatch(pkg, req.Name) {
							neededBySeed = true
						}
					}
				}
			}
			if !neededBySeed || stillRequired(s, res, id) {
				return
			}
			res.Removed.Add(id)
			res.Selected.Remove(id)
			res.Unneeded.Add(id)
			res.Reasons[id] = ReasonClean
			seeds[id] = true
			changed = true
		})
	}
}

func stillRequired(s *sack.Sack, res *Result, id sack.PackageID) bool {
	pkg := s.Pkg(id)
	if pkg == nil {
		return false
	}
	required := false
	res.Selected.Each(func(other sack.PackageID) {
		if required || other == id {
			return
		}
		op := s.Pkg(other)
		if op == nil {
			return
		}
		for _, req := range op.RegularRequires() {
			if req.Name == pkg.Name || providesMatch(pkg, req.Name) {
				required = true
				return
			}
		}
	})
	return required
}
