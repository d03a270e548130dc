package history

import (
	"testing"

	"github.com/rpm-software-management/libdnf-sub003/internal/sack"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesLatestSchema(t *testing.T) {
	s := openTest(t)
	v, err := s.schemaVersion()
	if err != nil {
		t.Fatalf("schemaVersion: %v", err)
	}
	if v != "1.2" {
		t.Fatalf("expected schema version 1.2, got %q", v)
	}
}

func TestReopenAtCurrentSchemaIsNoOp(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s1.Close()

	// Re-opening an already-1.2 database must not error or double-apply the
	// migration.
	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	v, err := s2.schemaVersion()
	if err != nil {
		t.Fatalf("schemaVersion: %v", err)
	}
	if v != "1.2" {
		t.Fatalf("expected schema version 1.2 after reopen, got %q", v)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	s := openTest(t)
	txn, err := s.NewTransaction("root", "40", "dnf install foo", "")
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	nevra := sack.NEVRA{Name: "foo", EVR: sack.EVR{Version: "1.0", Release: "1"}, Arch: "x86_64"}
	if err := txn.AddItem("install", nevra, "user"); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if err := txn.Finish("done"); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	records, err := s.ListTransactions(TransactionFilter{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(records) != 1 || records[0].State != "done" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestFailedTransactionMarksItems(t *testing.T) {
	s := openTest(t)
	txn, err := s.NewTransaction("root", "40", "dnf install foo", "")
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	nevra := sack.NEVRA{Name: "foo", EVR: sack.EVR{Version: "1.0", Release: "1"}, Arch: "x86_64"}
	if err := txn.AddItem("install", nevra, "user"); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if err := txn.MarkFailed(); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := txn.Finish("error"); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	records, err := s.ListTransactions(TransactionFilter{State: "error"})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one error-state record, got %d", len(records))
	}
}

func TestPreloadReasonCacheTakesLatestPerNameArch(t *testing.T) {
	s := openTest(t)
	nevra := sack.NEVRA{Name: "foo", EVR: sack.EVR{Version: "1.0", Release: "1"}, Arch: "x86_64"}

	t1, _ := s.NewTransaction("root", "40", "dnf install foo", "")
	t1.AddItem("install", nevra, "dependency")
	t1.Finish("done")

	t2, _ := s.NewTransaction("root", "40", "dnf mark install foo", "")
	t2.AddItem("reinstall", nevra, "user")
	t2.Finish("done")

	if err := s.PreloadReasonCache(); err != nil {
		t.Fatalf("PreloadReasonCache: %v", err)
	}
	reason, ok := s.GetItemReason(EntityRPMPackage, "foo", "x86_64")
	if !ok || reason != "user" {
		t.Fatalf("expected latest reason 'user', got %q (ok=%v)", reason, ok)
	}
}

func TestGroupAndEnvironmentReasonRoundTrip(t *testing.T) {
	s := openTest(t)
	if err := s.SetGroupReason("gnome-desktop", "user"); err != nil {
		t.Fatalf("SetGroupReason: %v", err)
	}
	if err := s.SetEnvironmentReason("workstation", "user"); err != nil {
		t.Fatalf("SetEnvironmentReason: %v", err)
	}
	if err := s.PreloadReasonCache(); err != nil {
		t.Fatalf("PreloadReasonCache: %v", err)
	}
	if reason, ok := s.GetItemReason(EntityCompsGroup, "gnome-desktop", ""); !ok || reason != "user" {
		t.Fatalf("expected group reason 'user', got %q (ok=%v)", reason, ok)
	}
	if reason, ok := s.GetItemReason(EntityCompsEnvironment, "workstation", ""); !ok || reason != "user" {
		t.Fatalf("expected environment reason 'user', got %q (ok=%v)", reason, ok)
	}
}
