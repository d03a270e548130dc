package dnf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rpm-software-management/libdnf-sub003/internal/option"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestLoadConfigFromFilePopulatesMainSection(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "dnf.conf")
	writeFile(t, confPath, "[main]\ncachedir=/tmp/cache\ngpgcheck=0\nbest=1\n")

	b := NewBase()
	if err := b.LoadConfigFromFile(confPath, option.PriorityMainConfig); err != nil {
		t.Fatalf("LoadConfigFromFile: %v", err)
	}
	if b.Config.CacheDir != "/tmp/cache" {
		t.Fatalf("expected cachedir /tmp/cache, got %q", b.Config.CacheDir)
	}
	if b.Config.GPGCheck.Value() {
		t.Fatal("expected gpgcheck=false")
	}
	if !b.Config.Best.Value() {
		t.Fatal("expected best=true")
	}
}

func TestLoadConfigFromDirAppliesDropinsInOrder(t *testing.T) {
	dir := t.TempDir()
	dropDir := filepath.Join(dir, "dnf.conf.d")
	writeFile(t, filepath.Join(dropDir, "10-first.conf"), "[main]\nbest=0\n")
	writeFile(t, filepath.Join(dropDir, "20-second.conf"), "[main]\nbest=1\n")

	b := NewBase()
	if err := b.LoadConfigFromDir(dropDir); err != nil {
		t.Fatalf("LoadConfigFromDir: %v", err)
	}
	if !b.Config.Best.Value() {
		t.Fatal("expected later drop-in (20-second.conf) to win, best=true")
	}
}

func TestLoadConfigFromDirMissingIsNotError(t *testing.T) {
	b := NewBase()
	if err := b.LoadConfigFromDir(filepath.Join(t.TempDir(), "does-not-exist")); err != nil {
		t.Fatalf("expected missing drop-in dir to be a no-op, got %v", err)
	}
}

func TestCreateReposFromSystemConfigurationFromMainFileSections(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "dnf.conf")
	writeFile(t, confPath, ""+
		"[main]\n"+
		"cachedir=/tmp/cache\n"+
		"\n"+
		"[fedora]\n"+
		"name=Fedora $releasever\n"+
		"baseurl=https://example.test/fedora/$releasever/$basearch\n"+
		"enabled=1\n"+
		"gpgcheck=1\n"+
		"gpgkey=https://example.test/RPM-GPG-KEY\n"+
		"repo_gpgcheck=1\n"+
		"cost=500\n")

	b := NewBase()
	b.Config.ReposDir = nil
	if err := b.CreateReposFromSystemConfiguration(confPath, nil); err != nil {
		t.Fatalf("CreateReposFromSystemConfiguration: %v", err)
	}
	r, ok := b.RepoByName("fedora")
	if !ok {
		t.Fatal("expected repo \"fedora\" to be registered")
	}
	if r.Cost != 500 {
		t.Fatalf("expected cost 500, got %d", r.Cost)
	}
	if r.Enabled == 0 {
		t.Fatal("expected repo to be enabled")
	}
	if !r.RepoGPGCheck || len(r.GPGKeyURLs) != 1 {
		t.Fatalf("expected repo_gpgcheck with one gpgkey, got %+v", r)
	}
	if len(r.BaseURL) != 1 {
		t.Fatalf("expected one baseurl entry, got %v", r.BaseURL)
	}
	if _, ok := b.Repo(1); !ok {
		t.Fatal("expected RepoID 1 to resolve back to the registered repo")
	}
}

func TestCreateReposFromSystemConfigurationWalksReposDir(t *testing.T) {
	dir := t.TempDir()
	reposDir := filepath.Join(dir, "repos.d")
	writeFile(t, filepath.Join(reposDir, "extra.repo.conf"), ""+
		"[extra]\n"+
		"name=Extra\n"+
		"baseurl=https://example.test/extra\n"+
		"enabled=1\n")

	b := NewBase()
	b.Config.ReposDir = []string{reposDir}
	if err := b.CreateReposFromSystemConfiguration("", nil); err != nil {
		t.Fatalf("CreateReposFromSystemConfiguration: %v", err)
	}
	if _, ok := b.RepoByName("extra"); !ok {
		t.Fatal("expected repo \"extra\" from reposdir drop-in to be registered")
	}
}

func TestCreateReposFromSystemConfigurationAppliesCredentials(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "dnf.conf")
	writeFile(t, confPath, "[main]\n\n[fedora]\nname=Fedora\nbaseurl=https://example.test\nenabled=1\n")

	b := NewBase()
	b.Config.ReposDir = nil
	creds := map[string]option.Credentials{
		"fedora": {Username: "alice", Password: "secret"},
	}
	if err := b.CreateReposFromSystemConfiguration(confPath, creds); err != nil {
		t.Fatalf("CreateReposFromSystemConfiguration: %v", err)
	}
	r, _ := b.RepoByName("fedora")
	if r.Credentials.Username != "alice" || r.Credentials.Password != "secret" {
		t.Fatalf("expected credentials overlay applied, got %+v", r.Credentials)
	}
}

func TestDownloaderResolvesRegisteredRepo(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "dnf.conf")
	writeFile(t, confPath, "[main]\n\n[fedora]\nname=Fedora\nbaseurl=https://example.test\nenabled=1\n")

	b := NewBase()
	b.Config.ReposDir = nil
	if err := b.CreateReposFromSystemConfiguration(confPath, nil); err != nil {
		t.Fatalf("CreateReposFromSystemConfiguration: %v", err)
	}
	dl := b.Downloader()
	if dl == nil {
		t.Fatal("expected a non-nil Downloader")
	}
}

func TestTransactionDriverRequiresOpenHistory(t *testing.T) {
	b := NewBase()
	if _, err := b.TransactionDriver(nil, nil); err == nil {
		t.Fatal("expected TransactionDriver to fail before OpenHistory")
	}
}

func TestOpenHistoryAndTransactionDriver(t *testing.T) {
	b := NewBase()
	if err := b.OpenHistory(t.TempDir()); err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	defer b.Close()
	if _, err := b.TransactionDriver(nil, nil); err != nil {
		t.Fatalf("TransactionDriver: %v", err)
	}
}
