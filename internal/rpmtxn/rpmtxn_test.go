package rpmtxn

import (
	"testing"

	dnf "github.com/rpm-software-management/libdnf-sub003"
	"github.com/rpm-software-management/libdnf-sub003/internal/goal"
	"github.com/rpm-software-management/libdnf-sub003/internal/sack"
)

type fakeHandle struct {
	installed []sack.NEVRA
	erased    []sack.NEVRA
	runCode   int
	runErr    error
	events    []Event
	closed    bool
}

func (h *fakeHandle) AddInstall(nevra sack.NEVRA, path string) error {
	h.installed = append(h.installed, nevra)
	return nil
}

func (h *fakeHandle) AddErase(nevra sack.NEVRA) error {
	h.erased = append(h.erased, nevra)
	return nil
}

func (h *fakeHandle) Run(onEvent func(Event)) (int, error) {
	for _, ev := range h.events {
		onEvent(ev)
	}
	return h.runCode, h.runErr
}

func (h *fakeHandle) Close() error { h.closed = true; return nil }

type fakeEngine struct {
	handle *fakeHandle
}

func (e *fakeEngine) Open(installRoot string) (Handle, error) { return e.handle, nil }

type fakeHistoryTxn struct {
	items  []string
	failed bool
	state  string
}

func (t *fakeHistoryTxn) AddItem(action string, nevra sack.NEVRA, reason string) error {
	t.items = append(t.items, action+":"+nevra.String()+":"+reason)
	return nil
}
func (t *fakeHistoryTxn) MarkFailed() error   { t.failed = true; return nil }
func (t *fakeHistoryTxn) Finish(state string) error { t.state = state; return nil }

type fakeHistory struct {
	txn *fakeHistoryTxn
}

func (h *fakeHistory) NewTransaction(userID, releaseVersion, commandLine, comment string) (HistoryTransaction, error) {
	h.txn = &fakeHistoryTxn{}
	return h.txn, nil
}

type recordingProgress struct {
	dnf.NopProgress
	begun []string
	ended bool
	ok    bool
}

func (p *recordingProgress) PackageBegin(itemID string) { p.begun = append(p.begun, itemID) }
func (p *recordingProgress) TransactionEnd(ok bool)      { p.ended = true; p.ok = ok }

func newTestSack(t *testing.T) (*sack.Sack, sack.PackageID) {
	t.Helper()
	s := sack.New()
	rid := s.AddRepo("fedora")
	pkg := s.Ingest(rid, sack.RawPackage{
		NEVRA: sack.NEVRA{Name: "foo", EVR: sack.EVR{Version: "1.0", Release: "1"}, Arch: "x86_64"},
	})
	return s, pkg.ID()
}

func TestRunSucceedsAndFinalizesHistory(t *testing.T) {
	s, id := newTestSack(t)
	handle := &fakeHandle{runCode: 0, events: []Event{
		{Kind: EventBeginInstall, ItemID: "foo"},
	}}
	hist := &fakeHistory{}
	prog := &recordingProgress{}
	d := New(&fakeEngine{handle: handle}, hist, s, prog)

	txn := &goal.Transaction{Items: []goal.TransactionItem{
		{Action: goal.ActionInstall, Package: id, Reason: goal.ReasonUser},
	}}
	paths := map[sack.PackageID]string{id: "/var/cache/dnf/packages/foo-1.0-1.x86_64.rpm"}

	if err := d.Run(txn, paths, RunOptions{InstallRoot: "/", UserID: "root"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(handle.installed) != 1 {
		t.Fatalf("expected one AddInstall call, got %d", len(handle.installed))
	}
	if hist.txn.state != "done" {
		t.Fatalf("expected history state done, got %q", hist.txn.state)
	}
	if hist.txn.failed {
		t.Fatal("history item should not be marked failed on success")
	}
	if !prog.ended || !prog.ok {
		t.Fatal("expected TransactionEnd(true)")
	}
	if len(prog.begun) != 1 || prog.begun[0] != "foo" {
		t.Fatalf("expected PackageBegin(foo), got %v", prog.begun)
	}
}

func TestRunFailureMarksHistoryErrorAndReturnsTypedError(t *testing.T) {
	s, id := newTestSack(t)
	handle := &fakeHandle{runCode: 1}
	hist := &fakeHistory{}
	d := New(&fakeEngine{handle: handle}, hist, s, nil)

	txn := &goal.Transaction{Items: []goal.TransactionItem{
		{Action: goal.ActionInstall, Package: id, Reason: goal.ReasonUser},
	}}
	paths := map[sack.PackageID]string{id: "/tmp/foo.rpm"}

	err := d.Run(txn, paths, RunOptions{InstallRoot: "/"})
	if !dnf.Is(err, dnf.KindTransactionFailed) {
		t.Fatalf("expected transaction-failed, got %v", err)
	}
	if hist.txn.state != "error" || !hist.txn.failed {
		t.Fatalf("expected history marked failed/error, got state=%q failed=%v", hist.txn.state, hist.txn.failed)
	}
}

func TestRunMissingDownloadedPathIsFileNotFound(t *testing.T) {
	s, id := newTestSack(t)
	handle := &fakeHandle{}
	d := New(&fakeEngine{handle: handle}, &fakeHistory{}, s, nil)
	txn := &goal.Transaction{Items: []goal.TransactionItem{
		{Action: goal.ActionInstall, Package: id},
	}}
	err := d.Run(txn, map[sack.PackageID]string{}, RunOptions{InstallRoot: "/"})
	if !dnf.Is(err, dnf.KindFileNotFound) {
		t.Fatalf("expected file-not-found, got %v", err)
	}
}

func TestUpgradeEmitsEraseAndInstallPair(t *testing.T) {
	s := sack.New()
	rid := s.AddRepo("fedora")
	oldPkg := s.Ingest(rid, sack.RawPackage{NEVRA: sack.NEVRA{Name: "foo", EVR: sack.EVR{Version: "1.0", Release: "1"}, Arch: "x86_64"}})
	newPkg := s.Ingest(rid, sack.RawPackage{NEVRA: sack.NEVRA{Name: "foo", EVR: sack.EVR{Version: "2.0", Release: "1"}, Arch: "x86_64"}})

	handle := &fakeHandle{}
	d := New(&fakeEngine{handle: handle}, &fakeHistory{}, s, nil)
	txn := &goal.Transaction{Items: []goal.TransactionItem{
		{Action: goal.ActionUpgrade, Package: newPkg.ID(), Replaced: oldPkg.ID(), HasReplaced: true},
	}}
	paths := map[sack.PackageID]string{newPkg.ID(): "/tmp/foo-2.0.rpm"}
	if err := d.Run(txn, paths, RunOptions{InstallRoot: "/"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(handle.erased) != 1 || len(handle.installed) != 1 {
		t.Fatalf("expected one erase and one install, got erased=%d installed=%d", len(handle.erased), len(handle.installed))
	}
}
