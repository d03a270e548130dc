package repo

import (
	"path/filepath"
	"time"

	flock "github.com/theckman/go-flock"

	dnf "github.com/rpm-software-management/libdnf-sub003"
)

// Lock is a per-repo, per-cache-directory, process-exclusive metadata lock
// (spec §4.2 step 1, §5 "Shared-resource policy"): an OS file lock via
// go-flock, blocking within the same process and failing fast across
// processes after a bounded wait.
type Lock struct {
	fl *flock.Flock
}

// NewLock returns a Lock guarding cacheDir's metadata refresh.
func NewLock(cacheDir string) *Lock {
	return &Lock{fl: flock.NewFlock(filepath.Join(cacheDir, ".metadata.lock"))}
}

// Acquire blocks (within this process) until the lock is held, or returns a
// typed not-available error if it cannot be obtained within timeout —
// modeling "fail-fast across processes after a bounded wait" (spec §4.2).
func (l *Lock) Acquire(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := l.fl.TryLock()
		if err != nil {
			return dnf.Wrap(err, "Repo", dnf.KindCannotWriteCache, "acquiring metadata lock %s", l.fl.Path())
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return dnf.Errorf("Repo", dnf.KindNotAvailable, "timed out waiting for metadata lock %s", l.fl.Path())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// Release drops the lock.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}

func (r *Repo) lockFor(cacheDir string) *Lock {
	if r.lock == nil {
		r.lock = NewLock(cacheDir)
	}
	return r.lock
}
