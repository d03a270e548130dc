package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	dnf "github.com/rpm-software-management/libdnf-sub003"
	"github.com/rpm-software-management/libdnf-sub003/internal/goal"
	"github.com/rpm-software-management/libdnf-sub003/internal/history"
	"github.com/rpm-software-management/libdnf-sub003/internal/option"
	"github.com/rpm-software-management/libdnf-sub003/internal/rpmtxn"
	"github.com/rpm-software-management/libdnf-sub003/internal/sack"
	"github.com/rpm-software-management/libdnf-sub003/internal/selector"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	root, err := os.MkdirTemp("", "dnf-example-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(root)

	confDir := filepath.Join(root, "etc")
	stateDir := filepath.Join(root, "lib", "dnf")
	if err := writeSampleConfig(confDir); err != nil {
		return err
	}

	b := dnf.NewBase()
	b.SetLogger(dnf.NewLogger(os.Stderr))
	b.SetVar("releasever", "40")

	mainConf := filepath.Join(confDir, "dnf.conf")
	if err := b.LoadConfigFromFile(mainConf, option.PriorityMainConfig); err != nil {
		return fmt.Errorf("loading main config: %w", err)
	}
	b.Config.ReposDir = []string{filepath.Join(confDir, "repos.d")}
	if err := b.CreateReposFromSystemConfiguration(mainConf, nil); err != nil {
		return fmt.Errorf("creating repos: %w", err)
	}

	fmt.Println("configured repos:")
	for _, r := range b.Repos() {
		fmt.Printf("  %s (%s) cost=%d\n", r.ID, r.Name, r.Cost)
	}

	// A real run would call r.Update(...) against each repo to refresh
	// repodata over the network, then parse primary.xml into the sack.
	// This demo populates the sack directly so the solver has something
	// to work with offline.
	repoID, ok := b.RepoID("fedora")
	if !ok {
		return fmt.Errorf("repo %q not registered", "fedora")
	}
	populateSack(b.Sack, repoID)

	if err := b.Goal.Install(selector.Selector{Name: "penny-editor", HasName: true}); err != nil {
		return fmt.Errorf("staging install: %w", err)
	}

	txn, err := b.Goal.Run(goal.NewDefaultSolver())
	if err != nil {
		return fmt.Errorf("solving: %w (problems: %+v)", err, b.Goal.Problems())
	}

	fmt.Println("resolved transaction:")
	paths := make(map[sack.PackageID]string)
	for _, item := range txn.Items {
		pkg := b.Sack.Pkg(item.Package)
		fmt.Printf("  %-8s %s (reason=%v)\n", item.Action, pkg.NEVRA.String(), item.Reason)
		paths[item.Package] = filepath.Join(root, "cache", pkg.Location)
	}

	if err := b.OpenHistory(stateDir); err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer b.Close()

	driver, err := b.TransactionDriver(demoEngine{}, demoProgress{})
	if err != nil {
		return fmt.Errorf("building transaction driver: %w", err)
	}
	opts := rpmtxn.RunOptions{
		InstallRoot:    root,
		UserID:         "root",
		ReleaseVersion: b.Vars["releasever"],
		CommandLine:    "dnf-example install penny-editor",
	}
	if err := driver.Run(txn, paths, opts); err != nil {
		return fmt.Errorf("running transaction: %w", err)
	}

	records, err := b.History().ListTransactions(history.TransactionFilter{})
	if err != nil {
		return fmt.Errorf("listing history: %w", err)
	}
	fmt.Println("history:")
	for _, rec := range records {
		fmt.Printf("  #%d state=%s command=%q\n", rec.ID, rec.State, rec.CommandLine)
	}
	return nil
}

func writeSampleConfig(confDir string) error {
	if err := os.MkdirAll(filepath.Join(confDir, "repos.d"), 0o755); err != nil {
		return err
	}
	mainConf := "[main]\n" +
		"cachedir=" + filepath.Join(confDir, "..", "cache") + "\n" +
		"gpgcheck=1\n" +
		"best=0\n"
	if err := os.WriteFile(filepath.Join(confDir, "dnf.conf"), []byte(mainConf), 0o644); err != nil {
		return err
	}
	repoConf := "[fedora]\n" +
		"name=Fedora $releasever - $basearch\n" +
		"baseurl=https://example.test/fedora/releases/$releasever/Everything/$basearch/os/\n" +
		"enabled=1\n" +
		"gpgcheck=1\n" +
		"gpgkey=https://example.test/RPM-GPG-KEY-fedora\n"
	return os.WriteFile(filepath.Join(confDir, "repos.d", "fedora.conf"), []byte(repoConf), 0o644)
}

// populateSack ingests a tiny synthetic package set standing in for a
// parsed primary.xml, so the rest of the demo can exercise the solver
// without a network fetch.
func populateSack(s *sack.Sack, rid sack.RepoID) {
	s.Ingest(rid, sack.RawPackage{
		NEVRA:    sack.NEVRA{Name: "penny-lib", EVR: mustEVR("4-1"), Arch: "x86_64"},
		Provides: []string{"libpenny.so.4()(64bit)"},
		Location: "Packages/p/penny-lib-4-1.x86_64.rpm",
		Checksum: sack.Checksum{Algorithm: "sha256", Digest: []byte("0000000000000000000000000000000000000000000000000000000000000a")},
	})
	s.Ingest(rid, sack.RawPackage{
		NEVRA:    sack.NEVRA{Name: "penny-editor", EVR: mustEVR("2.1-3"), Arch: "x86_64"},
		Requires: []string{"libpenny.so.4()(64bit)"},
		Location: "Packages/p/penny-editor-2.1-3.x86_64.rpm",
		Checksum: sack.Checksum{Algorithm: "sha256", Digest: []byte("0000000000000000000000000000000000000000000000000000000000000b")},
	})
}

func mustEVR(s string) sack.EVR {
	e, err := sack.ParseEVR(s)
	if err != nil {
		panic(err)
	}
	return e
}
