// Package rpmtxn implements the RPM transaction driver (spec §4.10): it
// drives the abstract rpm transaction collaborator through a plan,
// translates its progress events into the library's own event vocabulary,
// and records the attempt in a history store.
package rpmtxn

import (
	"fmt"

	dnf "github.com/rpm-software-management/libdnf-sub003"
	"github.com/rpm-software-management/libdnf-sub003/internal/goal"
	"github.com/rpm-software-management/libdnf-sub003/internal/sack"
)

// EventKind names one translated rpm progress event (spec §4.10 step 3).
type EventKind int

const (
	EventDownloadHeader EventKind = iota
	EventBeginInstall
	EventScriptStart
	EventScriptStop
	EventVerify
	EventCleanup
	EventPackageProgress
)

// Event is one translated progress notification handed to the caller's
// dnf.Progress.
type Event struct {
	Kind      EventKind
	ItemID    string
	Amount    int64 // bytes for PackageProgress, exit code for ScriptStop
	Total     int64
	ScriptOut []byte
}

// Engine is the abstract rpm transaction collaborator (spec §1: "the RPM
// transaction engine itself"). Open begins one transaction against
// installRoot; the returned Handle accumulates elements before Run.
type Engine interface {
	Open(installRoot string) (Handle, error)
}

// Handle accumulates rpm transaction elements and runs them (spec §4.10
// steps 1-2, 5).
type Handle interface {
	AddInstall(nevra sack.NEVRA, packagePath string) error
	AddErase(nevra sack.NEVRA) error
	// Run executes the accumulated elements, invoking onEvent for every
	// translated progress event, and returns rpm's own return code (0 on
	// success).
	Run(onEvent func(Event)) (int, error)
	Close() error
}

// HistoryRecorder is the abstract collaborator this driver uses to open
// and finalize a history record (spec §4.10 step 4, §4.11). Modeled as an
// interface, not a direct dependency on internal/history, so this package
// stays usable against any store implementing the same small contract.
type HistoryRecorder interface {
	NewTransaction(userID, releaseVersion, commandLine, comment string) (HistoryTransaction, error)
}

// HistoryTransaction is one in-progress history record.
type HistoryTransaction interface {
	AddItem(action string, nevra sack.NEVRA, reason string) error
	MarkFailed() error
	Finish(state string) error
}

// RunOptions carries the caller-supplied context for one transaction run
// (spec §4.10 step 4: "user id, release-version, command line, comment").
type RunOptions struct {
	InstallRoot    string
	UserID         string
	ReleaseVersion string
	CommandLine    string
	Comment        string
}

// Driver runs a Transaction plan against an Engine, recording it via a
// HistoryRecorder and reporting progress through a dnf.Progress.
type Driver struct {
	engine   Engine
	history  HistoryRecorder
	sack     *sack.Sack
	progress dnf.Progress
}

// New returns a Driver. progress may be nil (treated as dnf.NopProgress{}).
func New(engine Engine, history HistoryRecorder, s *sack.Sack, progress dnf.Progress) *Driver {
	if progress == nil {
		progress = dnf.NopProgress{}
	}
	return &Driver{engine: engine, history: history, sack: s, progress: progress}
}

// Run drives t through the rpm transaction engine (spec §4.10): opens a
// handle, adds the elements for each plan item (an upgrade/downgrade adds
// an erase of the replaced package, then the install; a reinstall adds a
// single install element),
// begins a history record, runs the transaction, and finalizes the
// history record according to rpm's own return code.
func (d *Driver) Run(t *goal.Transaction, paths map[sack.PackageID]string, opts RunOptions) error {
	handle, err := d.engine.Open(opts.InstallRoot)
	if err != nil {
		return dnf.Wrap(err, "RpmTransaction", dnf.KindInternal, "opening rpm transaction against %s", opts.InstallRoot)
	}
	defer handle.Close()

	for _, item := range t.Items {
		if err := d.addElement(handle, item, paths); err != nil {
			return err
		}
	}

	histTxn, err := d.history.NewTransaction(opts.UserID, opts.ReleaseVersion, opts.CommandLine, opts.Comment)
	if err != nil {
		return dnf.Wrap(err, "RpmTransaction", dnf.KindInternal, "beginning history record")
	}
	for _, item := range t.Items {
		pkg := d.sack.Pkg(item.Package)
		if pkg == nil {
			continue
		}
		if err := histTxn.AddItem(item.Action.String(), pkg.NEVRA, reasonString(item.Reason)); err != nil {
			return dnf.Wrap(err, "RpmTransaction", dnf.KindInternal, "recording history item for %s", pkg.NEVRA)
		}
	}

	code, runErr := handle.Run(func(ev Event) { d.dispatch(ev) })
	d.progress.TransactionEnd(runErr == nil && code == 0)

	if runErr != nil || code != 0 {
		histTxn.MarkFailed()
		histTxn.Finish("error")
		if runErr == nil {
			runErr = fmt.Errorf("rpm transaction returned %d", code)
		}
		return dnf.Wrap(runErr, "RpmTransaction", dnf.KindTransactionFailed, "rpm transaction failed (code %d)", code)
	}

	if err := histTxn.Finish("done"); err != nil {
		return dnf.Wrap(err, "RpmTransaction", dnf.KindInternal, "finalizing history record")
	}
	return nil
}

func (d *Driver) addElement(handle Handle, item goal.TransactionItem, paths map[sack.PackageID]string) error {
	pkg := d.sack.Pkg(item.Package)
	if pkg == nil {
		return dnf.Errorf("RpmTransaction", dnf.KindInternal, "plan item references an unknown package id")
	}
	switch item.Action {
	case goal.ActionInstall, goal.ActionReinstall:
		path, ok := paths[item.Package]
		if !ok {
			return dnf.Errorf("RpmTransaction", dnf.KindFileNotFound, "no downloaded path recorded for %s", pkg.NEVRA)
		}
		return wrapAdd(handle.AddInstall(pkg.NEVRA, path), pkg.NEVRA)
	case goal.ActionUpgrade, goal.ActionDowngrade:
		path, ok := paths[item.Package]
		if !ok {
			return dnf.Errorf("RpmTransaction", dnf.KindFileNotFound, "no downloaded path recorded for %s", pkg.NEVRA)
		}
		if item.HasReplaced {
			if old := d.sack.Pkg(item.Replaced); old != nil {
				if err := wrapErase(handle.AddErase(old.NEVRA), old.NEVRA); err != nil {
					return err
				}
			}
		}
		return wrapAdd(handle.AddInstall(pkg.NEVRA, path), pkg.NEVRA)
	case goal.ActionErase, goal.ActionObsoleted:
		return wrapErase(handle.AddErase(pkg.NEVRA), pkg.NEVRA)
	default:
		return dnf.Errorf("RpmTransaction", dnf.KindInternal, "unhandled transaction action %v", item.Action)
	}
}

func wrapAdd(err error, nevra sack.NEVRA) error {
	if err == nil {
		return nil
	}
	return dnf.Wrap(err, "RpmTransaction", dnf.KindInternal, "adding install element for %s", nevra)
}

func wrapErase(err error, nevra sack.NEVRA) error {
	if err == nil {
		return nil
	}
	return dnf.Wrap(err, "RpmTransaction", dnf.KindInternal, "adding erase element for %s", nevra)
}

func (d *Driver) dispatch(ev Event) {
	switch ev.Kind {
	case EventDownloadHeader:
		d.progress.Downloaded(ev.Total, ev.Amount, ev.ItemID)
	case EventBeginInstall:
		d.progress.PackageBegin(ev.ItemID)
	case EventScriptStart, EventScriptStop:
		d.progress.ScriptOutput(ev.ItemID, ev.ScriptOut)
	case EventVerify, EventCleanup, EventPackageProgress:
		// No dedicated dnf.Progress hook for these; PackageBegin already
		// marked the item, and per-byte verify/cleanup progress is not
		// part of the library's public event vocabulary (spec §9).
	}
}

func reasonString(r goal.Reason) string {
	if r == "" {
		return "unknown"
	}
	return string(r)
}
