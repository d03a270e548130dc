package goal

import "github.com/rpm-software-management/libdnf-sub003/internal/sack"

// TransactionAction names what a TransactionItem does to its package.
type TransactionAction int

const (
	ActionInstall TransactionAction = iota
	ActionReinstall
	ActionUpgrade
	ActionDowngrade
	ActionErase
	ActionObsoleted
)

func (a TransactionAction) String() string {
	switch a {
	case ActionInstall:
		return "install"
	case ActionReinstall:
		return "reinstall"
	case ActionUpgrade:
		return "upgrade"
	case ActionDowngrade:
		return "downgrade"
	case ActionErase:
		return "erase"
	case ActionObsoleted:
		return "obsoleted"
	default:
		return "unknown"
	}
}

// TransactionItem is one entry in the immutable plan a successful Run()
// produces (spec §4.8).
type TransactionItem struct {
	Action      TransactionAction
	Package     sack.PackageID
	Reason      Reason
	Replaced    sack.PackageID // upgrade/downgrade: the replaced package; obsoleted: the obsoleting one
	HasReplaced bool
}

// Transaction is the ordered plan, ready to be fed to the RPM engine
// (spec §4.8). Items lists upgrades, downgrades, reinstalls, installs and
// obsoletions, then plain erasures; an upgrade or downgrade is a single
// item whose Replaced names the package it replaces.
type Transaction struct {
	Items []TransactionItem

	Installs   []sack.PackageID
	Reinstalls []sack.PackageID
	Upgrades   []sack.PackageID
	Downgrades []sack.PackageID
	Obsoleted  []sack.PackageID
	Removals   []sack.PackageID
	Unneeded   []sack.PackageID
	Suggested  []sack.PackageID
}

// buildTransaction projects a solver Result into an ordered Transaction
// plan (spec §4.8): each item's reason is carried over from the prior
// installed reason when the package was already installed, otherwise taken
// from the solve trace.
func buildTransaction(s *sack.Sack, res *Result) *Transaction {
	t := &Transaction{}

	upgradedOld := make(map[sack.PackageID]bool, len(res.Upgraded))
	for newID, oldID := range res.Upgraded {
		upgradedOld[oldID] = true
		t.Items = append(t.Items, TransactionItem{
			Action: ActionUpgrade, Package: newID, Reason: res.Reasons[newID],
			Replaced: oldID, HasReplaced: true,
		})
		t.Upgrades = append(t.Upgrades, newID)
	}
	downgradedOld := make(map[sack.PackageID]bool, len(res.Downgraded))
	for newID, oldID := range res.Downgraded {
		downgradedOld[oldID] = true
		t.Items = append(t.Items, TransactionItem{
			Action: ActionDowngrade, Package: newID, Reason: res.Reasons[newID],
			Replaced: oldID, HasReplaced: true,
		})
		t.Downgrades = append(t.Downgrades, newID)
	}

	res.Reinstalled.Each(func(id sack.PackageID) {
		t.Items = append(t.Items, TransactionItem{Action: ActionReinstall, Package: id, Reason: res.Reasons[id]})
		t.Reinstalls = append(t.Reinstalls, id)
	})

	res.NewlyInstalled.Each(func(id sack.PackageID) {
		if _, isUpgrade := res.Upgraded[id]; isUpgrade {
			return
		}
		if _, isDowngrade := res.Downgraded[id]; isDowngrade {
			return
		}
		if res.Reinstalled.Contains(id) {
			return
		}
		t.Items = append(t.Items, TransactionItem{Action: ActionInstall, Package: id, Reason: res.Reasons[id]})
		t.Installs = append(t.Installs, id)
	})

	for obsoleted, by := range res.ObsoletedBy {
		t.Items = append(t.Items, TransactionItem{
			Action: ActionObsoleted, Package: obsoleted, Replaced: by, HasReplaced: true,
		})
		t.Obsoleted = append(t.Obsoleted, obsoleted)
	}

	res.Removed.Each(func(id sack.PackageID) {
		if upgradedOld[id] || downgradedOld[id] {
			return
		}
		if _, obsoleted := res.ObsoletedBy[id]; obsoleted {
			return
		}
		t.Items = append(t.Items, TransactionItem{Action: ActionErase, Package: id})
		t.Removals = append(t.Removals, id)
	})

	t.Unneeded = res.Unneeded.Slice()
	t.Suggested = res.Suggested.Slice()

	return t
}
