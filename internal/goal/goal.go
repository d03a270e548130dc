package goal

import (
	"fmt"
	"sort"

	dnf "github.com/rpm-software-management/libdnf-sub003"
	"github.com/rpm-software-management/libdnf-sub003/internal/sack"
	"github.com/rpm-software-management/libdnf-sub003/internal/selector"
)

// Goal accumulates staged intents and, on demand, solves them into a
// Transaction plan (spec §4.7).
type Goal struct {
	sack    *sack.Sack
	staging []StagedIntent
	actions ActionBits

	protected *sack.PackageSet

	lastResult         *Result
	removalOfProtected *sack.PackageSet
}

// New creates an empty Goal bound to s. The running kernel, if known, is
// added to the protected set immediately (spec §4.7: "The running kernel is
// always in it").
func New(s *sack.Sack) *Goal {
	g := &Goal{sack: s, protected: s.NewEmptySet()}
	if kernel, ok := s.RunningKernel(); ok {
		g.protected.Add(kernel)
	}
	return g
}

// Actions returns a pointer to the goal's action-bit flags for in-place
// mutation by the caller (best, force-best, allow-uninstall, ...).
func (g *Goal) Actions() *ActionBits { return &g.actions }

// Protect adds id to the protected-packages set.
func (g *Goal) Protect(id sack.PackageID) { g.protected.Add(id) }

// Unprotect removes id from the protected-packages set.
func (g *Goal) Unprotect(id sack.PackageID) { g.protected.Remove(id) }

// Protected returns the current protected-packages set.
func (g *Goal) Protected() *sack.PackageSet { return g.protected }

func (g *Goal) stage(intent Intent, sel selector.Selector) error {
	jobs, err := selector.ToJobs(g.sack, sel)
	if err != nil {
		return err
	}
	g.staging = append(g.staging, StagedIntent{Intent: intent, Jobs: jobs})
	return nil
}

// Install stages an install intent for sel.
func (g *Goal) Install(sel selector.Selector) error { return g.stage(IntentInstall, sel) }

// InstallOptional stages a weak install intent for sel.
func (g *Goal) InstallOptional(sel selector.Selector) error {
	return g.stage(IntentInstallOptional, sel)
}

// Upgrade stages an upgrade intent for sel.
func (g *Goal) Upgrade(sel selector.Selector) error { return g.stage(IntentUpgrade, sel) }

// UpgradeAll stages an upgrade-everything intent.
func (g *Goal) UpgradeAll() {
	g.staging = append(g.staging, StagedIntent{Intent: IntentUpgradeAll})
}

// Downgrade stages a downgrade intent for sel (implies allow-downgrade).
func (g *Goal) Downgrade(sel selector.Selector) error {
	g.actions.AllowDowngrade = true
	return g.stage(IntentDowngrade, sel)
}

// DistroSync stages a distro-sync intent for sel: the matched name is
// synced to whatever EVR the sack currently offers, upgrading or
// downgrading as needed, regardless of the allow-downgrade bit.
func (g *Goal) DistroSync(sel selector.Selector) error { return g.stage(IntentDistSync, sel) }

// DistroSyncAll stages a distro-sync-everything intent: every installed
// package is synced to its best available EVR.
func (g *Goal) DistroSyncAll() {
	g.staging = append(g.staging, StagedIntent{Intent: IntentDistSyncAll})
}

// UserInstalled stages a user-installed intent for sel: an already
// installed package matching sel has its reason promoted to USER, the way
// "dnf mark install" reclassifies a dependency as explicitly wanted. It
// never installs or removes anything.
func (g *Goal) UserInstalled(sel selector.Selector) error {
	return g.stage(IntentUserInstalled, sel)
}

// Erase stages an erase intent for sel.
func (g *Goal) Erase(sel selector.Selector) error { return g.stage(IntentErase, sel) }

// EraseCleanDeps stages an erase-with-clean-deps intent for sel.
func (g *Goal) EraseCleanDeps(sel selector.Selector) error {
	return g.stage(IntentEraseCleanDeps, sel)
}

// Reinstall stages a reinstall intent for sel.
func (g *Goal) Reinstall(sel selector.Selector) error { return g.stage(IntentReinstall, sel) }

// buildJobVector performs spec §4.7's "Job construction" step at solve
// time: clone the staging queue, layer on force-best, installonly
// multiversion markers, and allow-uninstall markers.
func (g *Goal) buildJobVector() []SolverJob {
	var jobs []SolverJob

	for _, staged := range g.staging {
		if staged.Intent == IntentUpgradeAll || staged.Intent == IntentDistSyncAll {
			action := JobUpgrade
			if staged.Intent == IntentDistSyncAll {
				action = JobDistupgrade
			}
			for _, name := range installedNames(g.sack) {
				jobs = append(jobs, SolverJob{
					Action:    action,
					Selector:  selector.Job{Kind: selector.KindSolvableName, Match: name},
					ForceBest: g.actions.ForceBest,
				})
			}
			continue
		}

		action := JobInstall
		switch staged.Intent {
		case IntentErase, IntentEraseCleanDeps:
			action = JobErase
		case IntentUpgrade:
			action = JobUpgrade
		case IntentDistSync:
			action = JobDistupgrade
		case IntentUserInstalled:
			action = JobUserInstalled
		}
		for _, sj := range staged.Jobs {
			jobs = append(jobs, SolverJob{
				Action:    action,
				Selector:  sj,
				ForceBest: g.actions.ForceBest,
				Weak:      staged.Intent == IntentInstallOptional && !g.actions.IgnoreWeak,
			})
		}
	}

	for _, pattern := range installonlyPatternsOf(g.sack) {
		jobs = append(jobs, SolverJob{
			Action:   JobMultiversion,
			Selector: selector.Job{Kind: selector.KindSolvableProvides, Match: pattern},
		})
	}

	if g.actions.AllowUninstall {
		g.sack.Considered().Each(func(id sack.PackageID) {
			if !g.sack.Installed().Contains(id) || g.protected.Contains(id) {
				return
			}
			jobs = append(jobs, SolverJob{
				Action:   JobAllowUninstall,
				Selector: selector.Job{Kind: selector.KindSolvableOneOf, Packages: []sack.PackageID{id}},
			})
		})
	}

	if g.actions.Verify {
		jobs = append(jobs, SolverJob{Action: JobVerifyAll})
	}

	return jobs
}

// installonlyPatternsOf collects every provide name of the considered
// installonly packages, which stands in for the sack's own pattern list
// (that list is not exported from the sack).
func installonlyPatternsOf(s *sack.Sack) []string {
	var out []string
	s.Considered().Each(func(id sack.PackageID) {
		pkg := s.Pkg(id)
		if pkg != nil && s.IsInstallonly(pkg) {
			for _, pat := range pkg.Provides {
				out = append(out, pat.Name)
			}
		}
	})
	return dedupe(out)
}

// installedNames returns the distinct names currently installed, sorted so
// upgrade-all/distro-sync-all build a deterministic job vector.
func installedNames(s *sack.Sack) []string {
	seen := make(map[string]bool)
	var out []string
	s.Installed().Each(func(id sack.PackageID) {
		if pkg := s.Pkg(id); pkg != nil && !seen[pkg.Name] {
			seen[pkg.Name] = true
			out = append(out, pkg.Name)
		}
	})
	sort.Strings(out)
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Run performs the solve: job construction, solver invocation, installonly
// trimming (with one re-solve if trimming occurred), protected-removal
// enforcement, and problem-count accounting (spec §4.7).
func (g *Goal) Run(solver Solver) (*Transaction, error) {
	g.sack.MakeProvidesReady()

	opts := SolverOptions{
		AllowVendorChange: true,
		KeepOrphans:       true,
		BestObeyPolicy:    true,
		YumObsoletes:      true,
		UrpmReorder:       true,
		AllowDowngrade:    g.actions.AllowDowngrade,
		IgnoreRecommended: g.actions.IgnoreWeak,
	}

	jobs := g.buildJobVector()
	result, err := solver.Solve(g.sack, jobs, opts)
	if err != nil {
		return nil, dnf.Wrap(err, "Goal", dnf.KindInternal, "solve failed")
	}

	if trims := g.sack.TrimInstallonly(result.Selected.Slice()); anyTrim(trims) {
		g.actions.AllowUninstall = true
		jobs = g.buildJobVector()
		for _, trim := range trims {
			for _, id := range trim.Erase {
				jobs = append(jobs, SolverJob{
					Action:   JobErase,
					Selector: selector.Job{Kind: selector.KindSolvableOneOf, Packages: []sack.PackageID{id}},
				})
			}
		}
		result, err = solver.Solve(g.sack, jobs, opts)
		if err != nil {
			return nil, dnf.Wrap(err, "Goal", dnf.KindInternal, "re-solve after installonly trim failed")
		}
	}

	g.removalOfProtected = g.sack.NewEmptySet()
	result.Removed.Each(func(id sack.PackageID) {
		if g.protected.Contains(id) {
			g.removalOfProtected.Add(id)
		}
	})

	g.lastResult = result

	problemCount := len(result.Problems)
	if !g.removalOfProtected.Empty() {
		problemCount++
	}
	if problemCount > 0 {
		if !g.removalOfProtected.Empty() {
			return nil, dnf.Errorf("Goal", dnf.KindRemovalOfProtected,
				"solution would remove %d protected package(s)", g.removalOfProtected.Size())
		}
		return nil, dnf.Errorf("Goal", dnf.KindNoSolution, "%d problem(s) found", problemCount)
	}

	return buildTransaction(g.sack, result), nil
}

func anyTrim(trims []sack.InstallonlyTrim) bool {
	for _, t := range trims {
		if len(t.Erase) > 0 {
			return true
		}
	}
	return false
}

// RemovalOfProtected returns the protected packages the last Run() wanted
// to remove, if Run failed with KindRemovalOfProtected.
func (g *Goal) RemovalOfProtected() *sack.PackageSet { return g.removalOfProtected }

// Problems returns the last solve's problem list (zero-length on success or
// before the first Run).
func (g *Goal) Problems() []Problem {
	if g.lastResult == nil {
		return nil
	}
	return g.lastResult.Problems
}

// Solutions enumerates candidate fixes for problemID from the last solve.
// The DefaultSolver does not currently compute alternate solutions, so this
// always returns a single "bad solution" placeholder element per problem;
// a richer Solver implementation can populate this more usefully.
func (g *Goal) Solutions(problemID int) []Solution {
	for _, p := range g.Problems() {
		if p.ID == problemID {
			return []Solution{{ProblemID: problemID, Elements: []SolutionElement{{Kind: SolutionBad}}}}
		}
	}
	return nil
}

// Reset discards the solver result and clears staging, keeping protected
// and action bits (spec §4.7).
func (g *Goal) Reset() {
	g.staging = nil
	g.lastResult = nil
	g.removalOfProtected = nil
}

// Clone copies staging, protected, action bits, and any
// removal-of-protected list; the solver result is not copied, so the clone
// is "not yet solved" (spec §4.7).
func (g *Goal) Clone() *Goal {
	c := &Goal{
		sack:      g.sack,
		staging:   append([]StagedIntent(nil), g.staging...),
		actions:   g.actions,
		protected: g.protected.Clone(),
	}
	if g.removalOfProtected != nil {
		c.removalOfProtected = g.removalOfProtected.Clone()
	}
	return c
}

// WriteDebugData serializes the last solve's transaction, problems, and
// rules to dir for post-mortem analysis. I/O failures are typed
// file-invalid (spec §4.7).
func (g *Goal) WriteDebugData(dir string, write func(name string, data []byte) error) error {
	if g.lastResult == nil {
		return dnf.Errorf("Goal", dnf.KindFileInvalid, "no solve to dump")
	}
	var dump []byte
	for _, p := range g.lastResult.Problems {
		dump = append(dump, []byte(fmt.Sprintf("problem %d: %s\n", p.ID, p.Message))...)
		for _, r := range p.Rules {
			dump = append(dump, []byte(fmt.Sprintf("  rule: %s\n", r))...)
		}
	}
	if err := write(dir+"/problems.txt", dump); err != nil {
		return dnf.Wrap(err, "Goal", dnf.KindFileInvalid, "writing debug data to %s", dir)
	}
	return nil
}
