// Package selector translates an underspecified package-selection intent
// into solver job elements (spec §4.6).
package selector

import (
	"path/filepath"
	"strings"

	dnf "github.com/rpm-software-management/libdnf-sub003"
	"github.com/rpm-software-management/libdnf-sub003/internal/query"
	"github.com/rpm-software-management/libdnf-sub003/internal/sack"
)

// JobAction is the action a job element contributes to a solver request.
type JobAction int

const (
	ActionInstall JobAction = iota
	ActionErase
	ActionUpgrade
	ActionDistupgrade
)

// JobKind mirrors the SOLVER_* selector kinds named in spec §4.6.
type JobKind int

const (
	KindSolvableName JobKind = iota
	KindSolvableProvides
	KindSolvableOneOf
)

// JobFlag is a bitmask of SETARCH/SETEVR/SETEV-style modifiers layered onto
// a job.
type JobFlag int

const (
	FlagSetArch JobFlag = 1 << iota
	FlagSetEVR
	FlagSetEV
)

// Job is one element of a solver request: a kind, a match value (name,
// provides capability, or nothing for a literal package-id job), an
// optional set of package ids (for KindSolvableOneOf), and modifier flags.
type Job struct {
	Kind     JobKind
	Match    string
	Packages []sack.PackageID
	Flags    JobFlag
	Arch     string
	EVR      string
}

// Selector is an underspecified intent: at most one filter per key among
// {name, arch, evr, version, provides, file, reponame, pkg} (spec §4.6).
type Selector struct {
	Name     string
	HasName  bool
	Arch     string
	HasArch  bool
	EVR      string
	HasEVR   bool
	Version  string
	HasVer   bool
	Provides string
	HasProv  bool
	File     string
	HasFile  bool
	RepoName string
	HasRepo  bool
	Packages []sack.PackageID
	HasPkg   bool
}

// knownArches is the set of architectures a selector's `arch` filter may
// name; anything else is invalid-architecture (spec §4.6).
var knownArches = map[string]bool{
	"noarch": true, "x86_64": true, "i686": true, "i386": true,
	"aarch64": true, "armv7hl": true, "ppc64le": true, "s390x": true,
	"src": true,
}

// ToJobs converts sel into the solver job elements it describes, against s
// for glob expansion and provides/file resolution (spec §4.6).
func ToJobs(s *sack.Sack, sel Selector) ([]Job, error) {
	if !sel.HasName && !sel.HasProv && !sel.HasFile && !sel.HasPkg {
		return nil, dnf.Errorf("Selector", dnf.KindBadSelector, "selector requires at least one of name, provides, file, or pkg")
	}
	if sel.HasArch && !knownArches[sel.Arch] {
		return nil, dnf.Errorf("Selector", dnf.KindInvalidArchitecture, "unknown architecture %q", sel.Arch)
	}

	var jobs []Job

	switch {
	case sel.HasPkg:
		jobs = append(jobs, Job{Kind: KindSolvableOneOf, Packages: sel.Packages, Flags: FlagSetArch | FlagSetEVR})
	case sel.HasName:
		names := []string{sel.Name}
		if isGlob(sel.Name) {
			names = expandNameGlob(s, sel.Name)
		}
		for _, n := range names {
			jobs = append(jobs, Job{Kind: KindSolvableName, Match: n})
		}
	case sel.HasFile:
		names := fileToNames(s, sel.File)
		for _, n := range names {
			jobs = append(jobs, Job{Kind: KindSolvableName, Match: n})
		}
	case sel.HasProv:
		provs := []string{sel.Provides}
		if isGlob(sel.Provides) {
			provs = expandProvidesGlob(s, sel.Provides)
		}
		for _, p := range provs {
			jobs = append(jobs, Job{Kind: KindSolvableProvides, Match: p})
		}
	}

	if len(jobs) == 0 {
		return nil, dnf.Errorf("Selector", dnf.KindBadSelector, "selector matched nothing to build a job from")
	}

	for i := range jobs {
		if sel.HasArch {
			jobs[i].Flags |= FlagSetArch
			jobs[i].Arch = sel.Arch
		}
		if sel.HasEVR {
			jobs[i].Flags |= FlagSetEVR
			jobs[i].EVR = sel.EVR
		} else if sel.HasVer {
			jobs[i].Flags |= FlagSetEV
			jobs[i].EVR = sel.Version
		}
	}

	if sel.HasRepo {
		jobs, err := intersectWithRepo(s, jobs, sel.RepoName)
		if err != nil {
			return nil, err
		}
		return jobs, nil
	}

	return jobs, nil
}

func isGlob(s string) bool {
	for _, c := range s {
		if c == '*' || c == '?' || c == '[' {
			return true
		}
	}
	return false
}

func expandNameGlob(s *sack.Sack, pattern string) []string {
	q := query.New(s).IFilter(query.KeyName, query.CmpGlob, pattern)
	seen := make(map[string]bool)
	var out []string
	for _, pkg := range q.Run() {
		if !seen[pkg.Name] {
			seen[pkg.Name] = true
			out = append(out, pkg.Name)
		}
	}
	return out
}

func expandProvidesGlob(s *sack.Sack, pattern string) []string {
	q := query.New(s).IFilter(query.KeyProvides, query.CmpGlob, pattern)
	seen := make(map[string]bool)
	var out []string
	for _, pkg := range q.Run() {
		for _, prov := range pkg.Provides {
			ok, _ := filepath.Match(strings.ToLower(pattern), strings.ToLower(prov.Name))
			if ok && !seen[prov.Name] {
				seen[prov.Name] = true
				out = append(out, prov.Name)
			}
		}
	}
	return out
}

func fileToNames(s *sack.Sack, pattern string) []string {
	q := query.New(s).IFilter(query.KeyFile, query.CmpGlob, pattern)
	seen := make(map[string]bool)
	var out []string
	for _, pkg := range q.Run() {
		if !seen[pkg.Name] {
			seen[pkg.Name] = true
			out = append(out, pkg.Name)
		}
	}
	return out
}

// intersectWithRepo narrows each job's candidate set to the named repo's
// packages. Name/provides jobs are resolved against the sack up front and
// rewritten as KindSolvableOneOf so the solver never has to parse a repo
// constraint back out of a match string; EVR/arch flags carry over
// unchanged so version/arch filtering still applies downstream.
func intersectWithRepo(s *sack.Sack, jobs []Job, repoName string) ([]Job, error) {
	repoID, ok := s.RepoIDByName(repoName)
	if !ok {
		return nil, dnf.Errorf("Selector", dnf.KindRepoNotFound, "unknown repo %q", repoName)
	}
	repoSet := s.RepoPackages(repoID)

	out := make([]Job, len(jobs))
	for i, job := range jobs {
		var candidates []sack.PackageID
		switch job.Kind {
		case KindSolvableOneOf:
			candidates = job.Packages
		case KindSolvableName:
			candidates = s.ByName(job.Match)
		case KindSolvableProvides:
			candidates = s.WhatProvides(job.Match)
		}
		var filtered []sack.PackageID
		for _, id := range candidates {
			if repoSet.Contains(id) {
				filtered = append(filtered, id)
			}
		}
		out[i] = Job{
			Kind:     KindSolvableOneOf,
			Packages: filtered,
			Flags:    job.Flags,
			Arch:     job.Arch,
			EVR:      job.EVR,
		}
	}
	return out, nil
}
