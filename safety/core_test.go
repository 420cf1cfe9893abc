package safety

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceisfun/cipsafety/pkg/objects/assembly"
	"github.com/iceisfun/cipsafety/safety/callback"
	"github.com/iceisfun/cipsafety/safety/crc"
	"github.com/iceisfun/cipsafety/safety/supervisor"
	"github.com/iceisfun/cipsafety/safety/transport"
	"github.com/iceisfun/cipsafety/safety/types"
)

type fakeApp struct {
	store map[callback.StorageID][]byte
}

func newFakeApp() *fakeApp { return &fakeApp{store: make(map[callback.StorageID][]byte)} }

func (a *fakeApp) SelfTestResult() bool                                       { return true }
func (a *fakeApp) ErrorReport(code, instance, context uint32)                 {}
func (a *fakeApp) SafetyOpenValidate(types.OpenParams, uint16) uint16         { return 0 }
func (a *fakeApp) ApplyConfig([]byte) bool                                    { return true }
func (a *fakeApp) CompatibleKeyAccept(types.ElectronicKey) bool               { return true }
func (a *fakeApp) SafetyReset(uint8, uint8, [16]byte, types.UNID) uint8       { return 0 }
func (a *fakeApp) ProfileDependentStateChange(uint8)                         {}
func (a *fakeApp) IODataRxCallback(uint16, []byte)                           {}
func (a *fakeApp) DeviceStatusForValidator() uint8                           { return 0 }

func (a *fakeApp) NVStore(id callback.StorageID, data []byte) bool {
	a.store[id] = append([]byte(nil), data...)
	return true
}

func (a *fakeApp) NVRestore(id callback.StorageID) ([]byte, bool) {
	d, ok := a.store[id]
	return d, ok
}

func unidBytesForTest(u types.UNID) []byte {
	b := make([]byte, types.UNIDWireSize)
	binary.LittleEndian.PutUint32(b[0:4], u.SNNTime)
	binary.LittleEndian.PutUint16(b[4:6], u.SNNDate)
	binary.LittleEndian.PutUint32(b[6:10], u.NodeID)
	return b
}

// newReadyCore builds a Core whose application already has a TUNID and SCID
// persisted (as if configured by a prior session), so self-test lands in
// Idle and can admit a SafetyOpen straight away.
func newReadyCore(t *testing.T) (*Core, *fakeApp, *transport.MemoryChannel) {
	t.Helper()

	app := newFakeApp()
	app.store[callback.StorageTUNIDList] = unidBytesForTest(types.UNID{SNNTime: 1, SNNDate: 1, NodeID: 1})
	app.store[callback.StorageSCID] = make([]byte, 10)
	binary.LittleEndian.PutUint32(app.store[callback.StorageSCID][0:4], 1) // non-zero SCCRC

	asm := assembly.NewAssemblyObject()
	asm.RegisterAssembly(100, assembly.DirectionInput, make([]byte, 4))
	asm.RegisterAssembly(150, assembly.DirectionOutput, make([]byte, 4))

	ch := transport.NewMemoryChannel(4)
	cfg := Config{
		Ports:                 1,
		NodeIDs:               []uint32{1},
		Mode:                  types.PortModeSingle,
		OwnKey:                elkeyIdentity{VendorID: 1, DeviceType: 2, ProductCode: 3, MajorRev: 1, MinorRev: 2},
		SupportsExtended:      true,
		MaxTcoomMinMult:       80,
		MaxNteMult:            6000,
		OutputConnectionCount: 1,
	}
	core := New(nil, cfg, app, asm, ch)
	core.RunSelfTest()
	require.Equal(t, supervisor.Idle, core.Supervisor.State())
	return core, app, ch
}

// buildSafetyOpenReq assembles a complete, CPCRC-correct SafetyOpen request
// body consuming assembly instance 150, targeting the port's TUNID.
func buildSafetyOpenReq(t *testing.T) []byte {
	t.Helper()

	buf := make([]byte, 0, 128)
	grow := func(n int) []byte {
		start := len(buf)
		buf = append(buf, make([]byte, n)...)
		return buf[start : start+n]
	}

	binary.LittleEndian.PutUint32(grow(4), 0x1000)
	binary.LittleEndian.PutUint32(grow(4), 0x2000)
	binary.LittleEndian.PutUint16(grow(2), 1) // ConnSerial
	binary.LittleEndian.PutUint16(grow(2), 1) // OrigVendor
	binary.LittleEndian.PutUint32(grow(4), 1) // OrigSerial
	grow(1)[0] = 1
	grow(3)
	binary.LittleEndian.PutUint32(grow(4), 10000)
	binary.LittleEndian.PutUint16(grow(2), 0x4000|0x0400|4) // NetParamsOT: PTP, high prio, fixed, size=4
	binary.LittleEndian.PutUint32(grow(4), 10000)
	binary.LittleEndian.PutUint16(grow(2), 0x4000|0x0400|0x1000) // NetParamsTO: PTP, high prio, fixed, tMsgLen
	grow(1)[0] = 0xA0 // server, class 0

	pathSizeWordsIdx := len(buf)
	grow(1)
	pathStart := len(buf)

	grow(2)
	binary.LittleEndian.PutUint16(grow(2), 1)
	binary.LittleEndian.PutUint16(grow(2), 2)
	binary.LittleEndian.PutUint16(grow(2), 3)
	grow(1)[0] = 1
	grow(1)[0] = 2

	grow(1)[0] = 0x20
	grow(1)[0] = 0x04
	grow(1)[0] = 0x24
	grow(1)[0] = 0x00
	grow(1)[0] = 0x00
	grow(1)[0] = 0x00

	grow(1)[0] = 0x20
	grow(1)[0] = 0x04
	grow(1)[0] = 0x24
	grow(1)[0] = 150

	safetySegStart := len(buf)
	seg := grow(52)
	binary.LittleEndian.PutUint32(seg[0:4], 1)
	binary.LittleEndian.PutUint16(seg[4:6], 1)
	binary.LittleEndian.PutUint32(seg[6:10], 1)
	binary.LittleEndian.PutUint32(seg[24:28], 0xFFFFFFFF)
	seg[34] = 1
	binary.LittleEndian.PutUint16(seg[35:37], 100)
	seg[41] = 1

	pathLen := len(buf) - pathStart
	require.Zero(t, pathLen%2)
	buf[pathSizeWordsIdx] = byte(pathLen / 2)

	cpcrcOffset := safetySegStart + 20
	covered := append(append([]byte(nil), buf[:cpcrcOffset]...), buf[cpcrcOffset+4:]...)
	binary.LittleEndian.PutUint32(buf[cpcrcOffset:cpcrcOffset+4], crc.CP(covered))

	return buf
}

func TestCore_SafetyOpenRoundTrip(t *testing.T) {
	core, _, ch := newReadyCore(t)

	req := buildSafetyOpenReq(t)
	err := core.Dispatch(transport.Message{Header: transport.Header{Cmd: transport.CmdSOpenReq}, Data: req})
	require.NoError(t, err)

	resp, err := ch.Next()
	require.NoError(t, err)
	assert.Equal(t, transport.CmdSOpenRes, resp.Header.Cmd)
	require.NotEmpty(t, resp.Data)
}

func TestCore_SafetyCloseUnknownTriadReturnsError(t *testing.T) {
	core, _, ch := newReadyCore(t)

	req := make([]byte, 8)
	binary.LittleEndian.PutUint16(req[0:2], 99)
	err := core.Dispatch(transport.Message{Header: transport.Header{Cmd: transport.CmdSCloseReq}, Data: req})
	require.NoError(t, err)

	resp, err := ch.Next()
	require.NoError(t, err)
	assert.Equal(t, transport.CmdSCloseRes, resp.Header.Cmd)
}
