package query_test

import (
	"testing"

	"github.com/rpm-software-management/libdnf-sub003/internal/query"
	"github.com/rpm-software-management/libdnf-sub003/internal/sack"
)

func evr(t *testing.T, s string) sack.EVR {
	t.Helper()
	e, err := sack.ParseEVR(s)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func buildSack(t *testing.T) *sack.Sack {
	t.Helper()
	s := sack.New()
	repo := s.AddRepo("fedora")

	pkgs := []sack.RawPackage{
		{NEVRA: sack.NEVRA{Name: "bash", EVR: evr(t, "5.1-1"), Arch: "x86_64"}, Summary: "the GNU shell"},
		{NEVRA: sack.NEVRA{Name: "bash", EVR: evr(t, "5.2-1"), Arch: "x86_64"}, Summary: "the GNU shell"},
		{NEVRA: sack.NEVRA{Name: "bash", EVR: evr(t, "5.2-1"), Arch: "i686"}, Summary: "the GNU shell"},
		{NEVRA: sack.NEVRA{Name: "zsh", EVR: evr(t, "5.9-1"), Arch: "x86_64"}, Summary: "the Z shell"},
	}
	for _, p := range pkgs {
		s.Ingest(repo, p)
	}
	s.MakeProvidesReady()
	return s
}

func TestFilterByNameAndArch(t *testing.T) {
	s := buildSack(t)
	q := query.New(s).IFilter(query.KeyName, query.CmpEQ, "bash").IFilter(query.KeyArch, query.CmpEQ, "x86_64")
	if err := q.Err(); err != nil {
		t.Fatal(err)
	}
	if q.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", q.Count())
	}
}

func TestFilterCompositionOrderIndependent(t *testing.T) {
	s := buildSack(t)
	a := query.New(s).IFilter(query.KeyName, query.CmpEQ, "bash").IFilter(query.KeyArch, query.CmpEQ, "x86_64")
	b := query.New(s).IFilter(query.KeyArch, query.CmpEQ, "x86_64").IFilter(query.KeyName, query.CmpEQ, "bash")

	if a.Count() != b.Count() {
		t.Fatalf("order-dependent result: %d vs %d", a.Count(), b.Count())
	}
	as, bs := a.Set(), b.Set()
	if !as.IsSubsetOf(bs) || !bs.IsSubsetOf(as) {
		t.Fatal("filter composition produced different sets depending on order")
	}
}

func TestLatestPerArch(t *testing.T) {
	s := buildSack(t)
	q := query.New(s).IFilter(query.KeyName, query.CmpEQ, "bash").IFilter(query.KeyLatestArch, "")
	pkgs := q.Run()
	if len(pkgs) != 2 {
		t.Fatalf("expected 2 (one per arch), got %d", len(pkgs))
	}
	for _, p := range pkgs {
		if p.EVR.Version != "5.2" {
			t.Errorf("expected only 5.2 to survive latest-per-arch, got %s", p.EVR)
		}
	}
}

func TestLatestAcrossArches(t *testing.T) {
	s := buildSack(t)
	q := query.New(s).IFilter(query.KeyName, query.CmpEQ, "bash").IFilter(query.KeyLatest, "")
	if q.Count() != 2 {
		t.Fatalf("expected both 5.2 builds (x86_64 and i686) to survive latest, got %d", q.Count())
	}
}

func TestGlobMatch(t *testing.T) {
	s := buildSack(t)
	q := query.New(s).IFilter(query.KeyName, query.CmpGlob, "ba*")
	if q.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", q.Count())
	}
}

func TestUpgradesAndDowngrades(t *testing.T) {
	s := sack.New()
	repo := s.AddRepo("fedora")
	old := s.Ingest(repo, sack.RawPackage{NEVRA: sack.NEVRA{Name: "bash", EVR: evr(t, "5.0-1"), Arch: "x86_64"}})
	s.AddInstalled(old.ID())

	newer := s.Ingest(repo, sack.RawPackage{NEVRA: sack.NEVRA{Name: "bash", EVR: evr(t, "5.2-1"), Arch: "x86_64"}})
	older := s.Ingest(repo, sack.RawPackage{NEVRA: sack.NEVRA{Name: "bash", EVR: evr(t, "4.9-1"), Arch: "x86_64"}})
	s.MakeProvidesReady()
	_ = newer
	_ = older

	upgrades := query.New(s).IFilter(query.KeyUpgrades, "")
	if upgrades.Count() != 1 {
		t.Fatalf("upgrades count = %d, want 1", upgrades.Count())
	}
	downgrades := query.New(s).IFilter(query.KeyDowngrades, "")
	if downgrades.Count() != 1 {
		t.Fatalf("downgrades count = %d, want 1", downgrades.Count())
	}
}

func TestGetFirstAndEmpty(t *testing.T) {
	s := buildSack(t)
	q := query.New(s).IFilter(query.KeyName, query.CmpEQ, "nonexistent")
	if q.GetFirst() != nil {
		t.Fatal("expected nil GetFirst for empty result")
	}
	if q.Count() != 0 {
		t.Fatal("expected zero count")
	}
}
