package goal_test

import (
	"testing"

	dnf "github.com/rpm-software-management/libdnf-sub003"
	"github.com/rpm-software-management/libdnf-sub003/internal/goal"
	"github.com/rpm-software-management/libdnf-sub003/internal/sack"
	"github.com/rpm-software-management/libdnf-sub003/internal/selector"
)

func evr(t *testing.T, s string) sack.EVR {
	t.Helper()
	e, err := sack.ParseEVR(s)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// TestSimpleInstall mirrors spec §8 scenario 1: an installed package
// provides a capability an available package requires.
func TestSimpleInstall(t *testing.T) {
	s := sack.New()
	repo := s.AddRepo("fedora")

	pennyLib := s.Ingest(repo, sack.RawPackage{
		NEVRA:    sack.NEVRA{Name: "penny-lib", EVR: evr(t, "4-1"), Arch: "noarch"},
		Provides: []string{"P-lib = 4"},
	})
	s.AddInstalled(pennyLib.ID())

	s.Ingest(repo, sack.RawPackage{
		NEVRA:    sack.NEVRA{Name: "flying", EVR: evr(t, "3-0"), Arch: "noarch"},
		Requires: []string{"P-lib >= 3"},
	})

	g := goal.New(s)
	if err := g.Install(selector.Selector{Name: "flying", HasName: true}); err != nil {
		t.Fatal(err)
	}

	txn, err := g.Run(goal.NewDefaultSolver())
	if err != nil {
		t.Fatalf("Run() failed: %v (problems: %+v)", err, g.Problems())
	}
	if len(txn.Installs) != 1 {
		t.Fatalf("expected 1 install, got %d: %+v", len(txn.Installs), txn.Installs)
	}
	installed := s.Pkg(txn.Installs[0])
	if installed.Name != "flying" {
		t.Fatalf("expected flying to be installed, got %s", installed.Name)
	}
	if len(txn.Removals) != 0 {
		t.Fatalf("expected 0 removals, got %d", len(txn.Removals))
	}
}

// TestConflict mirrors spec §8 scenario 2.
func TestConflict(t *testing.T) {
	s := sack.New()
	repo := s.AddRepo("fedora")

	s.Ingest(repo, sack.RawPackage{
		NEVRA:     sack.NEVRA{Name: "A", EVR: evr(t, "1-1"), Arch: "x86_64"},
		Conflicts: []string{"A = 2"},
	})
	s.Ingest(repo, sack.RawPackage{
		NEVRA: sack.NEVRA{Name: "A", EVR: evr(t, "2-1"), Arch: "x86_64"},
	})

	g := goal.New(s)
	if err := g.Install(selector.Selector{Name: "A", HasName: true, Version: "1", HasVer: true}); err != nil {
		t.Fatal(err)
	}
	if err := g.Install(selector.Selector{Name: "A", HasName: true, Version: "2", HasVer: true}); err != nil {
		t.Fatal(err)
	}

	_, err := g.Run(goal.NewDefaultSolver())
	if err == nil {
		t.Fatal("expected Run() to fail on a same-name conflict")
	}
	if len(g.Problems()) != 1 {
		t.Fatalf("expected exactly 1 problem, got %d: %+v", len(g.Problems()), g.Problems())
	}
}

// TestInstallonlyTrim mirrors spec §8 scenario 3.
func TestInstallonlyTrim(t *testing.T) {
	s := sack.New()
	s.SetInstallonlyLimit(3)
	repo := s.AddRepo("system")

	mk := func(v string) sack.PackageID {
		raw := sack.RawPackage{NEVRA: sack.NEVRA{Name: "kernel", EVR: evr(t, v), Arch: "x86_64"}}
		raw.Provides = []string{"installed-kernel"}
		return s.Ingest(repo, raw).ID()
	}
	k51 := mk("5.1-1")
	k52 := mk("5.2-1")
	k53 := mk("5.3-1")
	s.AddInstalled(k51)
	s.AddInstalled(k52)
	s.AddInstalled(k53)

	raw54 := sack.RawPackage{NEVRA: sack.NEVRA{Name: "kernel", EVR: evr(t, "5.4-1"), Arch: "x86_64"}}
	raw54.Provides = []string{"installed-kernel"}
	s.Ingest(repo, raw54)

	g := goal.New(s)
	if err := g.Install(selector.Selector{Name: "kernel", HasName: true, Version: "5.4", HasVer: true}); err != nil {
		t.Fatal(err)
	}

	txn, err := g.Run(goal.NewDefaultSolver())
	if err != nil {
		t.Fatalf("Run() failed: %v (problems: %+v)", err, g.Problems())
	}

	if len(txn.Removals) != 1 {
		t.Fatalf("expected exactly 1 removal, got %d: %+v", len(txn.Removals), txn.Removals)
	}
	removed := s.Pkg(txn.Removals[0])
	if removed.EVR.Version != "5.1" {
		t.Fatalf("expected kernel 5.1 removed, got %s", removed.EVR)
	}
}

// TestProtectedRefusal mirrors spec §8 scenario 4.
func TestProtectedRefusal(t *testing.T) {
	s := sack.New()
	repo := s.AddRepo("system")
	raw := sack.RawPackage{NEVRA: sack.NEVRA{Name: "kernel", EVR: evr(t, "5.2-1"), Arch: "x86_64"}}
	p := s.Ingest(repo, raw)
	s.AddInstalled(p.ID())

	g := goal.New(s)
	g.Protect(p.ID())

	if err := g.Erase(selector.Selector{Name: "kernel", HasName: true}); err != nil {
		t.Fatal(err)
	}

	_, err := g.Run(goal.NewDefaultSolver())
	if !dnf.Is(err, dnf.KindRemovalOfProtected) {
		t.Fatalf("expected KindRemovalOfProtected, got %v", err)
	}
	removal := g.RemovalOfProtected()
	if removal.Size() != 1 || !removal.Contains(p.ID()) {
		t.Fatalf("expected removal_of_protected == {kernel-5.2}, got %v", removal.Slice())
	}
}

// TestGoalDeterminism mirrors spec §8's "Goal determinism" property: the
// same sack snapshot and staging queue solved twice yields identical
// install lists.
func TestGoalDeterminism(t *testing.T) {
	build := func() (*sack.Sack, selector.Selector) {
		s := sack.New()
		repo := s.AddRepo("fedora")
		lib := s.Ingest(repo, sack.RawPackage{
			NEVRA:    sack.NEVRA{Name: "penny-lib", EVR: evr(t, "4-1"), Arch: "noarch"},
			Provides: []string{"P-lib = 4"},
		})
		s.AddInstalled(lib.ID())
		s.Ingest(repo, sack.RawPackage{
			NEVRA:    sack.NEVRA{Name: "flying", EVR: evr(t, "3-0"), Arch: "noarch"},
			Requires: []string{"P-lib >= 3"},
		})
		return s, selector.Selector{Name: "flying", HasName: true}
	}

	run := func() []string {
		s, sel := build()
		g := goal.New(s)
		if err := g.Install(sel); err != nil {
			t.Fatal(err)
		}
		txn, err := g.Run(goal.NewDefaultSolver())
		if err != nil {
			t.Fatal(err)
		}
		// PackageIDs differ harmlessly across independent sacks; compare
		// by NEVRA instead.
		var names []string
		for _, id := range txn.Installs {
			names = append(names, s.Pkg(id).NEVRA.String())
		}
		return names
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("non-deterministic install counts: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("non-deterministic install list at %d: %s vs %s", i, a[i], b[i])
		}
	}
}

// TestUpgradeNeverInstallsFresh checks that an Upgrade job only moves an
// already-installed name forward and leaves an uninstalled name alone.
func TestUpgradeNeverInstallsFresh(t *testing.T) {
	s := sack.New()
	repo := s.AddRepo("fedora")

	old := s.Ingest(repo, sack.RawPackage{NEVRA: sack.NEVRA{Name: "bash", EVR: evr(t, "5.1-1"), Arch: "x86_64"}})
	s.AddInstalled(old.ID())
	s.Ingest(repo, sack.RawPackage{NEVRA: sack.NEVRA{Name: "bash", EVR: evr(t, "5.2-1"), Arch: "x86_64"}})
	s.Ingest(repo, sack.RawPackage{NEVRA: sack.NEVRA{Name: "zsh", EVR: evr(t, "5.9-1"), Arch: "x86_64"}})

	g := goal.New(s)
	if err := g.Upgrade(selector.Selector{Name: "bash", HasName: true}); err != nil {
		t.Fatal(err)
	}
	if err := g.Upgrade(selector.Selector{Name: "zsh", HasName: true}); err != nil {
		t.Fatal(err)
	}

	txn, err := g.Run(goal.NewDefaultSolver())
	if err != nil {
		t.Fatalf("Run() failed: %v (problems: %+v)", err, g.Problems())
	}
	if len(txn.Upgrades) != 1 || s.Pkg(txn.Upgrades[0]).Name != "bash" {
		t.Fatalf("expected bash upgraded, got upgrades=%v", txn.Upgrades)
	}
	if len(txn.Installs) != 0 {
		t.Fatalf("expected zsh (not installed) to be left alone, got installs=%v", txn.Installs)
	}
}

// TestDistroSyncAllowsDowngradeWithoutTheFlag checks that distro-sync syncs
// an installed name to the repo's EVR in either direction without the
// caller having set allow-downgrade.
func TestDistroSyncAllowsDowngradeWithoutTheFlag(t *testing.T) {
	s := sack.New()
	repo := s.AddRepo("fedora")

	newer := s.Ingest(repo, sack.RawPackage{NEVRA: sack.NEVRA{Name: "bash", EVR: evr(t, "5.2-1"), Arch: "x86_64"}})
	s.AddInstalled(newer.ID())
	s.Ingest(repo, sack.RawPackage{NEVRA: sack.NEVRA{Name: "bash", EVR: evr(t, "5.1-1"), Arch: "x86_64"}})

	g := goal.New(s)
	if err := g.DistroSync(selector.Selector{Name: "bash", HasName: true}); err != nil {
		t.Fatal(err)
	}

	txn, err := g.Run(goal.NewDefaultSolver())
	if err != nil {
		t.Fatalf("Run() failed: %v (problems: %+v)", err, g.Problems())
	}
	if len(txn.Downgrades) != 1 || s.Pkg(txn.Downgrades[0]).EVR.Version != "5.1" {
		t.Fatalf("expected bash downgraded to 5.1, got downgrades=%v", txn.Downgrades)
	}
}

// TestDistroSyncAllSyncsEveryInstalledName exercises the all-packages form.
func TestDistroSyncAllSyncsEveryInstalledName(t *testing.T) {
	s := sack.New()
	repo := s.AddRepo("fedora")

	bash := s.Ingest(repo, sack.RawPackage{NEVRA: sack.NEVRA{Name: "bash", EVR: evr(t, "5.1-1"), Arch: "x86_64"}})
	s.AddInstalled(bash.ID())
	s.Ingest(repo, sack.RawPackage{NEVRA: sack.NEVRA{Name: "bash", EVR: evr(t, "5.2-1"), Arch: "x86_64"}})

	g := goal.New(s)
	g.DistroSyncAll()

	txn, err := g.Run(goal.NewDefaultSolver())
	if err != nil {
		t.Fatalf("Run() failed: %v (problems: %+v)", err, g.Problems())
	}
	if len(txn.Upgrades) != 1 || s.Pkg(txn.Upgrades[0]).EVR.Version != "5.2" {
		t.Fatalf("expected bash upgraded to 5.2 via distro-sync-all, got upgrades=%v", txn.Upgrades)
	}
}

// TestUserInstalledPromotesReasonWithoutChangingSelection checks that
// marking an installed dependency as user-installed flips its reason
// without adding or removing anything.
func TestUserInstalledPromotesReasonWithoutChangingSelection(t *testing.T) {
	s := sack.New()
	repo := s.AddRepo("fedora")
	lib := s.Ingest(repo, sack.RawPackage{NEVRA: sack.NEVRA{Name: "penny-lib", EVR: evr(t, "4-1"), Arch: "noarch"}})
	s.AddInstalled(lib.ID())

	g := goal.New(s)
	if err := g.UserInstalled(selector.Selector{Name: "penny-lib", HasName: true}); err != nil {
		t.Fatal(err)
	}

	txn, err := g.Run(goal.NewDefaultSolver())
	if err != nil {
		t.Fatalf("Run() failed: %v (problems: %+v)", err, g.Problems())
	}
	if len(txn.Installs) != 0 || len(txn.Removals) != 0 {
		t.Fatalf("expected no install/removal churn, got installs=%v removals=%v", txn.Installs, txn.Removals)
	}
}
