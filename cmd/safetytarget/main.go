// Command safetytarget is a minimal demo CIP Safety target runtime: it
// wires the safety core to an in-memory command channel and a trivial
// embedded application, replacing goeip's cmd/server EtherNet/IP demo
// (out of this core's scope, see SPEC_FULL.md) with a demo of the safety
// connection-establishment path instead.
package main

import (
	"os"

	"github.com/google/uuid"

	"github.com/iceisfun/cipsafety/internal"
	"github.com/iceisfun/cipsafety/pkg/objects/assembly"
	"github.com/iceisfun/cipsafety/safety"
	"github.com/iceisfun/cipsafety/safety/callback"
	"github.com/iceisfun/cipsafety/safety/transport"
	"github.com/iceisfun/cipsafety/safety/types"
)

// demoApp is a minimal in-memory callback.SafetyApplication: it always
// passes self-test, stores NV attributes in a map instead of real
// non-volatile memory, and accepts every electronic key and SafetyOpen.
type demoApp struct {
	log   internal.Logger
	store map[callback.StorageID][]byte
	runID string
}

func newDemoApp(log internal.Logger) *demoApp {
	return &demoApp{
		log:   log,
		store: make(map[callback.StorageID][]byte),
		runID: uuid.NewString(),
	}
}

func (a *demoApp) SelfTestResult() bool { return true }

func (a *demoApp) ErrorReport(code, instance, context uint32) {
	a.log.WithFields(map[string]any{
		"run_id":   a.runID,
		"code":     code,
		"instance": instance,
		"context":  context,
	}).Errorf("safety application: error report")
}

func (a *demoApp) NVStore(id callback.StorageID, data []byte) bool {
	cp := append([]byte(nil), data...)
	a.store[id] = cp
	return true
}

func (a *demoApp) NVRestore(id callback.StorageID) ([]byte, bool) {
	data, ok := a.store[id]
	return data, ok
}

func (a *demoApp) SafetyOpenValidate(params types.OpenParams, payloadSize uint16) uint16 {
	return 0
}

func (a *demoApp) ApplyConfig(configData []byte) bool { return true }

func (a *demoApp) CompatibleKeyAccept(key types.ElectronicKey) bool { return true }

func (a *demoApp) SafetyReset(resetType, attrBitmap uint8, password [16]byte, targetUNID types.UNID) uint8 {
	return 0
}

func (a *demoApp) ProfileDependentStateChange(newState uint8) {}

func (a *demoApp) IODataRxCallback(cnxnPoint uint16, data []byte) {}

func (a *demoApp) DeviceStatusForValidator() uint8 { return 0 }

func main() {
	log := internal.NewConsoleLogger(os.Stdout)

	asm := assembly.NewAssemblyObject()
	asm.RegisterAssembly(100, assembly.DirectionInput, make([]byte, 4))
	asm.RegisterAssembly(150, assembly.DirectionOutput, make([]byte, 4))

	app := newDemoApp(log)

	cfg := safety.Config{
		Ports:            1,
		NodeIDs:          []uint32{1},
		Mode:             types.PortModeSingle,
		SupportsExtended: true,
		MaxTcoomMinMult:  80,
		MaxNteMult:       6000,
		OutputConnectionCount: 1,
	}

	channel := transport.NewMemoryChannel(16)
	core := safety.New(log, cfg, app, asm, channel)

	core.RunSelfTest()
	log.Infof("safetytarget: supervisor state after self-test: %s", core.Supervisor.State())

	// A real deployment hands `channel` to the link-layer transport and
	// calls core.Run in the core processing thread; this demo has no
	// transport wired up, so it stops here once self-test settles.
	channel.Close()
}
