package selector_test

import (
	"testing"

	dnf "github.com/rpm-software-management/libdnf-sub003"
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

func buildSack(t *testing.T) *sack.Sack {
	t.Helper()
	s := sack.New()
	repo := s.AddRepo("fedora")
	s.Ingest(repo, sack.RawPackage{NEVRA: sack.NEVRA{Name: "bash", EVR: evr(t, "5.1-1"), Arch: "x86_64"}})
	s.Ingest(repo, sack.RawPackage{NEVRA: sack.NEVRA{Name: "bash-completion", EVR: evr(t, "2.11-1"), Arch: "noarch"}})
	s.MakeProvidesReady()
	return s
}

func TestToJobsRequiresAKey(t *testing.T) {
	s := buildSack(t)
	_, err := selector.ToJobs(s, selector.Selector{})
	if err == nil {
		t.Fatal("expected bad-selector error for an empty selector")
	}
	if !dnf.Is(err, dnf.KindBadSelector) {
		t.Fatalf("expected KindBadSelector, got %v", err)
	}
}

func TestToJobsName(t *testing.T) {
	s := buildSack(t)
	jobs, err := selector.ToJobs(s, selector.Selector{Name: "bash", HasName: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].Kind != selector.KindSolvableName || jobs[0].Match != "bash" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
}

func TestToJobsNameGlobExpands(t *testing.T) {
	s := buildSack(t)
	jobs, err := selector.ToJobs(s, selector.Selector{Name: "bash*", HasName: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected glob to expand to 2 name jobs, got %d", len(jobs))
	}
}

func TestToJobsInvalidArch(t *testing.T) {
	s := buildSack(t)
	_, err := selector.ToJobs(s, selector.Selector{Name: "bash", HasName: true, Arch: "not-an-arch", HasArch: true})
	if !dnf.Is(err, dnf.KindInvalidArchitecture) {
		t.Fatalf("expected KindInvalidArchitecture, got %v", err)
	}
}

func TestToJobsArchSetsFlag(t *testing.T) {
	s := buildSack(t)
	jobs, err := selector.ToJobs(s, selector.Selector{Name: "bash", HasName: true, Arch: "x86_64", HasArch: true})
	if err != nil {
		t.Fatal(err)
	}
	if jobs[0].Flags&selector.FlagSetArch == 0 || jobs[0].Arch != "x86_64" {
		t.Fatalf("expected SETARCH flag and arch set: %+v", jobs[0])
	}
}

func TestToJobsRepoScopeIntersectsPackages(t *testing.T) {
	s := buildSack(t)
	want := s.ByName("bash")
	jobs, err := selector.ToJobs(s, selector.Selector{Name: "bash", HasName: true, RepoName: "fedora", HasRepo: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].Kind != selector.KindSolvableOneOf {
		t.Fatalf("expected a single KindSolvableOneOf job, got %+v", jobs)
	}
	if len(jobs[0].Packages) != len(want) || jobs[0].Packages[0] != want[0] {
		t.Fatalf("expected repo-scoped packages %v, got %v", want, jobs[0].Packages)
	}
}

func TestToJobsUnknownRepoErrors(t *testing.T) {
	s := buildSack(t)
	_, err := selector.ToJobs(s, selector.Selector{Name: "bash", HasName: true, RepoName: "no-such-repo", HasRepo: true})
	if !dnf.Is(err, dnf.KindRepoNotFound) {
		t.Fatalf("expected KindRepoNotFound, got %v", err)
	}
}

func TestToJobsRepoScopeEmptyWhenPackageNotInRepo(t *testing.T) {
	s := buildSack(t)
	other := s.AddRepo("other")
	s.Ingest(other, sack.RawPackage{NEVRA: sack.NEVRA{Name: "zsh", EVR: evr(t, "5.9-1"), Arch: "x86_64"}})
	s.MakeProvidesReady()

	jobs, err := selector.ToJobs(s, selector.Selector{Name: "zsh", HasName: true, RepoName: "fedora", HasRepo: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || len(jobs[0].Packages) != 0 {
		t.Fatalf("expected zsh@fedora to resolve to no packages, got %+v", jobs[0])
	}
}

func TestToJobsPkgLiteral(t *testing.T) {
	s := buildSack(t)
	ids := s.ByName("bash")
	jobs, err := selector.ToJobs(s, selector.Selector{Packages: ids, HasPkg: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].Kind != selector.KindSolvableOneOf {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
	if jobs[0].Flags&selector.FlagSetArch == 0 || jobs[0].Flags&selector.FlagSetEVR == 0 {
		t.Fatal("expected SETARCH|SETEVR on a pkg literal job")
	}
}
