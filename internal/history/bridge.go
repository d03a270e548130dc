package history

import "github.com/rpm-software-management/libdnf-sub003/internal/rpmtxn"

// AsRecorder adapts s to rpmtxn.HistoryRecorder. A plain method on *Store
// returning *Transaction doesn't itself satisfy the interface (Go requires
// the exact interface return type, not just a matching method set on the
// concrete type), so the driver is handed this adapter instead.
func (s *Store) AsRecorder() rpmtxn.HistoryRecorder { return recorderAdapter{s} }

type recorderAdapter struct{ store *Store }

func (r recorderAdapter) NewTransaction(userID, releaseVersion, commandLine, comment string) (rpmtxn.HistoryTransaction, error) {
	return r.store.NewTransaction(userID, releaseVersion, commandLine, comment)
}
