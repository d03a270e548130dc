// Package download implements the downloader driver (spec §4.9): group
// install-class plan items by owning repo, hand each group to its repo's
// fetcher in one call, and report one aggregated progress stream back to
// the caller, regardless of how many repos are involved.
package download

import (
	"sync"

	dnf "github.com/rpm-software-management/libdnf-sub003"
	"github.com/rpm-software-management/libdnf-sub003/internal/goal"
	"github.com/rpm-software-management/libdnf-sub003/internal/repo"
	"github.com/rpm-software-management/libdnf-sub003/internal/sack"
)

// installClass is the set of TransactionActions that require fetching a
// package payload, per spec §4.9's "install, reinstall, upgrade, downgrade".
var installClass = map[goal.TransactionAction]bool{
	goal.ActionInstall:   true,
	goal.ActionReinstall: true,
	goal.ActionUpgrade:   true,
	goal.ActionDowngrade: true,
}

// RepoResolver maps a pooled RepoID back to the Repo that owns it. Base
// (L12) supplies the concrete implementation backed by its repo sack.
type RepoResolver interface {
	Repo(id sack.RepoID) (*repo.Repo, bool)
}

// Downloader fetches every package payload a Transaction names.
type Downloader struct {
	sack  *sack.Sack
	repos RepoResolver
}

// New returns a Downloader resolving packages against s and repos whose
// owning Repo is found via resolver.
func New(s *sack.Sack, resolver RepoResolver) *Downloader {
	return &Downloader{sack: s, repos: resolver}
}

// group is one owning-repo's worth of work.
type group struct {
	r    *repo.Repo
	refs []repo.PackageRef
}

// Download fetches every install-class item in t into each owning repo's
// default packages/ cache directory (spec §4.9), one goroutine per owning
// repo. Download returns a non-nil error only when a required repo failed,
// wrapping the first such failure. A non-required repo's failure does not
// stop the other groups and is not reported: when only non-required repos
// fail, Download returns nil and their errors are discarded.
func (d *Downloader) Download(t *goal.Transaction, progress dnf.Progress, cancel <-chan struct{}) error {
	groups := d.groupByRepo(t)
	if len(groups) == 0 {
		return nil
	}

	aggregate := newAggregateProgress(groups, progress)

	type outcome struct {
		repoID   string
		required bool
		err      error
	}

	results := make(chan outcome, len(groups))
	var wg sync.WaitGroup
	for _, g := range groups {
		wg.Add(1)
		go func(g group) {
			defer wg.Done()
			err := g.r.DownloadPackages(g.refs, "", aggregate.forRepo(g.r.ID), cancel)
			results <- outcome{repoID: g.r.ID, required: g.r.Required, err: err}
		}(g)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var firstRequiredErr error
	var nonRequiredErrs []error
	for o := range results {
		if o.err == nil {
			continue
		}
		if o.required {
			if firstRequiredErr == nil {
				firstRequiredErr = o.err
			}
		} else {
			nonRequiredErrs = append(nonRequiredErrs, o.err)
		}
	}

	if firstRequiredErr != nil {
		return dnf.Wrap(firstRequiredErr, "Download", dnf.KindNotAvailable, "required repo failed to deliver package payloads")
	}
	if len(nonRequiredErrs) > 0 {
		// Every failure here belongs to a non-required repo; none of them
		// is returned.
		_ = nonRequiredErrs[0]
	}
	return nil
}

func (d *Downloader) groupByRepo(t *goal.Transaction) []group {
	byRepo := make(map[sack.RepoID]*group)
	var order []sack.RepoID
	for _, item := range t.Items {
		if !installClass[item.Action] {
			continue
		}
		pkg := d.sack.Pkg(item.Package)
		if pkg == nil {
			continue
		}
		g, ok := byRepo[pkg.Repo]
		if !ok {
			r, found := d.repos.Repo(pkg.Repo)
			if !found {
				continue
			}
			g = &group{r: r}
			byRepo[pkg.Repo] = g
			order = append(order, pkg.Repo)
		}
		g.refs = append(g.refs, repo.PackageRefFromSack(pkg))
	}
	groups := make([]group, 0, len(order))
	for _, id := range order {
		groups = append(groups, *byRepo[id])
	}
	return groups
}

// aggregateProgress composes each repo's own (total, downloaded) report
// into one cross-repo stream, matching spec §4.9's single aggregated
// progress stream over a per-repo-batched fetch.
type aggregateProgress struct {
	mu         sync.Mutex
	total      int64
	downloaded map[string]int64
	upstream   dnf.Progress
}

func newAggregateProgress(groups []group, upstream dnf.Progress) *aggregateProgress {
	a := &aggregateProgress{downloaded: make(map[string]int64, len(groups)), upstream: upstream}
	for _, g := range groups {
		for _, ref := range g.refs {
			a.total += int64(ref.Size)
		}
	}
	return a
}

// forRepo returns a dnf.Progress view that reports this repo's own running
// total against the aggregate's grand total.
func (a *aggregateProgress) forRepo(repoID string) dnf.Progress {
	return &repoProgress{agg: a, repoID: repoID}
}

type repoProgress struct {
	dnf.NopProgress
	agg    *aggregateProgress
	repoID string
}

func (p *repoProgress) Downloaded(_, downloadedBytes int64, currentItemID string) {
	p.agg.mu.Lock()
	p.agg.downloaded[p.repoID] = downloadedBytes
	var sum int64
	for _, v := range p.agg.downloaded {
		sum += v
	}
	p.agg.mu.Unlock()
	if p.agg.upstream != nil {
		p.agg.upstream.Downloaded(p.agg.total, sum, currentItemID)
	}
}
