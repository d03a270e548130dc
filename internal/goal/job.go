// Package goal implements the staging queue, solver driver, installonly
// trimming, protected-package enforcement, and transaction-plan projection
// at the heart of the resolver (spec §4.7, §4.8).
package goal

import (
	"github.com/rpm-software-management/libdnf-sub003/internal/sack"
	"github.com/rpm-software-management/libdnf-sub003/internal/selector"
)

// Intent names one of the user-facing actions a caller can stage (spec
// §4.7).
type Intent int

const (
	IntentInstall Intent = iota
	IntentInstallOptional
	IntentUpgrade
	IntentUpgradeAll
	IntentDowngrade
	IntentDistSync
	IntentDistSyncAll
	IntentErase
	IntentEraseCleanDeps
	IntentReinstall
	IntentUserInstalled
)

// StagedIntent is one entry on the goal's staging queue: an intent plus its
// argument, which is either a concrete package id or a selector's already
// translated job vector.
type StagedIntent struct {
	Intent   Intent
	PkgID    sack.PackageID // valid when HasPkgID
	HasPkgID bool
	Jobs     []selector.Job // valid when len > 0
}

// ActionBits are the goal-wide solve modifiers (spec §4.7).
type ActionBits struct {
	Best           bool
	ForceBest      bool
	AllowUninstall bool
	AllowDowngrade bool
	Verify         bool
	IgnoreWeak     bool
	IgnoreWeakDeps bool
}

// SolverJobAction mirrors the SOLVER_* job bits the spec names for job
// construction (§4.7 step 2-5) and installonly trimming (§4.7).
type SolverJobAction int

const (
	JobInstall SolverJobAction = iota
	JobErase
	JobUpgrade
	JobDistupgrade
	JobVerifyAll
	JobMultiversion
	JobAllowUninstall
	JobUserInstalled
)

// SolverJob is one element of the job vector handed to the Solver at solve
// time, built from StagedIntents plus the goal-wide additions job
// construction layers on (installonly multiversion markers, allow-uninstall
// markers, verify-all).
type SolverJob struct {
	Action    SolverJobAction
	Selector  selector.Job
	ForceBest bool
	Weak      bool // false once ignore-weak has cleared SOLVER_WEAK
}
