// Package main demonstrates wiring the library's layers together end to
// end: config loading, sack population, goal solving, and the RPM
// transaction driver. The RPM transaction engine and the metadata
// fetcher/GPG keyring are out-of-scope external collaborators (spec §1),
// so this demo substitutes small in-memory stand-ins for them rather than
// talking to a real rpm database or network mirror.
package main

import (
	"fmt"

	"github.com/rpm-software-management/libdnf-sub003/internal/rpmtxn"
	"github.com/rpm-software-management/libdnf-sub003/internal/sack"
)

// demoEngine is a stand-in rpmtxn.Engine: instead of driving an actual rpm
// transaction set, it just records what it was asked to do.
type demoEngine struct{}

func (demoEngine) Open(installRoot string) (rpmtxn.Handle, error) {
	return &demoHandle{installRoot: installRoot}, nil
}

type demoHandle struct {
	installRoot string
	installed   []sack.NEVRA
	erased      []sack.NEVRA
}

func (h *demoHandle) AddInstall(nevra sack.NEVRA, packagePath string) error {
	h.installed = append(h.installed, nevra)
	return nil
}

func (h *demoHandle) AddErase(nevra sack.NEVRA) error {
	h.erased = append(h.erased, nevra)
	return nil
}

func (h *demoHandle) Run(onEvent func(rpmtxn.Event)) (int, error) {
	for _, nevra := range h.installed {
		onEvent(rpmtxn.Event{Kind: rpmtxn.EventBeginInstall, ItemID: nevra.String()})
	}
	return 0, nil
}

func (h *demoHandle) Close() error { return nil }

// demoProgress prints every Progress callback to stdout, standing in for a
// CLI's real progress bar.
type demoProgress struct{}

func (demoProgress) MetadataStart(repoID string) {
	fmt.Printf("  metadata refresh started: %s\n", repoID)
}

func (demoProgress) Downloaded(total, downloaded int64, item string) {
	fmt.Printf("  downloaded %d/%d bytes: %s\n", downloaded, total, item)
}

func (demoProgress) PackageBegin(itemID string) {
	fmt.Printf("  installing: %s\n", itemID)
}

func (demoProgress) ScriptOutput(itemID string, data []byte) {
	fmt.Printf("  [%s] %s", itemID, data)
}

func (demoProgress) TransactionEnd(ok bool) {
	fmt.Printf("  transaction finished, ok=%v\n", ok)
}
