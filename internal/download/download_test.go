package download

import (
	"os"
	"sync"
	"testing"

	dnf "github.com/rpm-software-management/libdnf-sub003"
	"github.com/rpm-software-management/libdnf-sub003/internal/goal"
	"github.com/rpm-software-management/libdnf-sub003/internal/repo"
	"github.com/rpm-software-management/libdnf-sub003/internal/sack"
)

// fakeFetcher always succeeds, recording every destination path it was
// asked to populate.
type fakeFetcher struct {
	mu   sync.Mutex
	seen []string
}

func (f *fakeFetcher) Fetch(urls []string, destPath string, checksum sack.Checksum, cancel <-chan struct{}) error {
	f.mu.Lock()
	f.seen = append(f.seen, destPath)
	f.mu.Unlock()
	return os.WriteFile(destPath, []byte("rpm bytes"), 0o644)
}

type resolver struct {
	repos map[sack.RepoID]*repo.Repo
}

func (r *resolver) Repo(id sack.RepoID) (*repo.Repo, bool) {
	rp, ok := r.repos[id]
	return rp, ok
}

func newTestSack(t *testing.T) (*sack.Sack, sack.RepoID) {
	t.Helper()
	s := sack.New()
	rid := s.AddRepo("fedora")
	return s, rid
}

func TestDownloadGroupsByRepoAndReportsAggregate(t *testing.T) {
	s, rid := newTestSack(t)
	pkg := s.Ingest(rid, sack.RawPackage{
		NEVRA:        sack.NEVRA{Name: "foo", EVR: sack.EVR{Version: "1.0", Release: "1"}, Arch: "x86_64"},
		Location:     "foo-1.0-1.x86_64.rpm",
		DownloadSize: 100,
	})

	r := repo.New("fedora")
	r.BaseURL = []string{"https://example.test/repo"}
	dir := t.TempDir()
	if err := r.Setup(dir); err != nil {
		t.Fatalf("setup: %v", err)
	}
	ff := &fakeFetcher{}
	r.SetFetcher(ff)

	d := New(s, &resolver{repos: map[sack.RepoID]*repo.Repo{rid: r}})
	txn := &goal.Transaction{Items: []goal.TransactionItem{
		{Action: goal.ActionInstall, Package: pkg.ID()},
	}}

	var lastTotal, lastDownloaded int64
	prog := &recordingProgress{onDownloaded: func(total, downloaded int64, item string) {
		lastTotal, lastDownloaded = total, downloaded
	}}

	if err := d.Download(txn, prog, nil); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if lastTotal != 100 || lastDownloaded != 100 {
		t.Fatalf("expected aggregate 100/100, got %d/%d", lastDownloaded, lastTotal)
	}
	if len(ff.seen) != 1 {
		t.Fatalf("expected exactly one fetch, got %d", len(ff.seen))
	}
}

func TestDownloadSkipsNonInstallClassItems(t *testing.T) {
	s, rid := newTestSack(t)
	pkg := s.Ingest(rid, sack.RawPackage{
		NEVRA:    sack.NEVRA{Name: "foo", EVR: sack.EVR{Version: "1.0", Release: "1"}, Arch: "x86_64"},
		Location: "foo-1.0-1.x86_64.rpm",
	})
	r := repo.New("fedora")
	r.BaseURL = []string{"https://example.test/repo"}
	if err := r.Setup(t.TempDir()); err != nil {
		t.Fatalf("setup: %v", err)
	}
	ff := &fakeFetcher{}
	r.SetFetcher(ff)

	d := New(s, &resolver{repos: map[sack.RepoID]*repo.Repo{rid: r}})
	txn := &goal.Transaction{Items: []goal.TransactionItem{
		{Action: goal.ActionErase, Package: pkg.ID()},
	}}
	if err := d.Download(txn, nil, nil); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(ff.seen) != 0 {
		t.Fatalf("expected no fetches for an erase-only transaction, got %v", ff.seen)
	}
}

func TestDownloadSkipsUnresolvableRepo(t *testing.T) {
	s, rid := newTestSack(t)
	pkg := s.Ingest(rid, sack.RawPackage{
		NEVRA:    sack.NEVRA{Name: "foo", EVR: sack.EVR{Version: "1.0", Release: "1"}, Arch: "x86_64"},
		Location: "foo-1.0-1.x86_64.rpm",
	})
	d := New(s, &resolver{repos: map[sack.RepoID]*repo.Repo{}})
	txn := &goal.Transaction{Items: []goal.TransactionItem{
		{Action: goal.ActionInstall, Package: pkg.ID()},
	}}
	if err := d.Download(txn, nil, nil); err != nil {
		t.Fatalf("expected no error for an unresolvable repo group (nothing to do), got %v", err)
	}
}

type recordingProgress struct {
	dnf.NopProgress
	onDownloaded func(total, downloaded int64, item string)
}

func (p *recordingProgress) Downloaded(total, downloaded int64, item string) {
	if p.onDownloaded != nil {
		p.onDownloaded(total, downloaded, item)
	}
}
