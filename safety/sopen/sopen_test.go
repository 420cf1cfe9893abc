package sopen

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceisfun/cipsafety/safety/crc"
	"github.com/iceisfun/cipsafety/safety/elkey"
	"github.com/iceisfun/cipsafety/safety/internaltesting"
	"github.com/iceisfun/cipsafety/safety/supervisor"
	"github.com/iceisfun/cipsafety/safety/types"
	"github.com/iceisfun/cipsafety/safety/validator"
)

// buildRequest assembles a complete, wire-valid SafetyOpen request body:
// fixed header, electronic key, a NULL (Type 2) configuration path, a
// consuming application path, and a Base-format safety segment with a
// correctly computed CPCRC. Every test below starts from this and tweaks
// one field, the same "golden buffer plus one mutation" style goeip's own
// decode_test.go uses for its Forward_Open-shaped fixtures.
func buildRequest(t *testing.T, triad types.Triad, tunid, ounid types.UNID, consumingInstance uint16) []byte {
	t.Helper()

	buf := make([]byte, 0, 128)
	grow := func(n int) []byte {
		start := len(buf)
		buf = append(buf, make([]byte, n)...)
		return buf[start : start+n]
	}

	// Fixed header (34 bytes).
	binary.LittleEndian.PutUint32(grow(4), 0x1000) // NetConnIDOT
	binary.LittleEndian.PutUint32(grow(4), 0x2000) // NetConnIDTO
	binary.LittleEndian.PutUint16(grow(2), triad.ConnSerial)
	binary.LittleEndian.PutUint16(grow(2), triad.OrigVendor)
	binary.LittleEndian.PutUint32(grow(4), triad.OrigSerial)
	grow(1)[0] = 1                                 // TimeoutMult
	grow(3)                                        // reserved
	binary.LittleEndian.PutUint32(grow(4), 10000) // RPIOT (10ms)
	// NetParamsOT: point-to-point, high priority, fixed, size=4 (the
	// Server's real consumed-data leg, §4.F.6).
	binary.LittleEndian.PutUint16(grow(2), 0x4000|0x0400|4)
	binary.LittleEndian.PutUint32(grow(4), 10000) // RPITO
	// NetParamsTO: point-to-point, high priority, fixed, tMsgLen set,
	// size=0 (the Server's reply/time-correction leg carries no payload).
	binary.LittleEndian.PutUint16(grow(2), 0x4000|0x0400|0x1000)
	grow(1)[0] = 0xA0 // TransportTrigger: server, class 0

	// pathSizeWords placeholder, patched once the path length is known.
	pathSizeWordsIdx := len(buf)
	grow(1)

	pathStart := len(buf)

	// Electronic key (10 bytes): vendor=1, devtype=2, product=3, rev 1.2.
	grow(2) // segment header bytes, unchecked by elkey.Parse
	binary.LittleEndian.PutUint16(grow(2), 1)
	binary.LittleEndian.PutUint16(grow(2), 2)
	binary.LittleEndian.PutUint16(grow(2), 3)
	grow(1)[0] = 1 // CompMajorRev, compatibility bit clear
	grow(1)[0] = 2 // MinorRev

	// Configuration path: class 0x04, instance 0 (NULL), no data.
	grow(1)[0] = 0x20
	grow(1)[0] = 0x04
	grow(1)[0] = 0x24
	grow(1)[0] = 0x00
	grow(1)[0] = 0x00 // word count
	grow(1)[0] = 0x00 // pad

	// Consuming path: class 0x04, instance consumingInstance.
	grow(1)[0] = 0x20
	grow(1)[0] = 0x04
	grow(1)[0] = 0x24
	grow(1)[0] = byte(consumingInstance)

	safetySegStart := len(buf)
	seg := grow(52)
	binary.LittleEndian.PutUint32(seg[0:4], tunid.SNNTime)
	binary.LittleEndian.PutUint16(seg[4:6], tunid.SNNDate)
	binary.LittleEndian.PutUint32(seg[6:10], tunid.NodeID)
	binary.LittleEndian.PutUint32(seg[10:14], ounid.SNNTime)
	binary.LittleEndian.PutUint16(seg[14:16], ounid.SNNDate)
	binary.LittleEndian.PutUint32(seg[16:20], ounid.NodeID)
	// seg[20:24] is CPCRC, patched below.
	binary.LittleEndian.PutUint32(seg[24:28], 0xFFFFFFFF) // TCorrConnID (singlecast sentinel)
	binary.LittleEndian.PutUint32(seg[28:32], 0)          // TCorrEPI (unused, singlecast)
	binary.LittleEndian.PutUint16(seg[32:34], 0)
	seg[34] = 1                                    // safety TimeoutMult
	binary.LittleEndian.PutUint16(seg[35:37], 100) // PingIntervalEPIMult, comfortably above the minimum
	binary.LittleEndian.PutUint16(seg[37:39], 0)   // TCOOMinMult
	binary.LittleEndian.PutUint16(seg[39:41], 0)   // NetTimeExpMult
	seg[41] = 1                                    // MaxConsumerNum: singlecast
	// seg[42:52] (SCCRC/SCTS echo) left zero: the Type 2 path every test
	// here builds always sends the always-accepted zero echo.

	// Patch path size in words.
	pathLen := len(buf) - pathStart
	require.Zero(t, pathLen%2)
	buf[pathSizeWordsIdx] = byte(pathLen / 2)

	// Compute and patch the CPCRC over the covered region: everything
	// except the 4-byte CPCRC field itself.
	cpcrcOffset := safetySegStart + 20
	covered := append(append([]byte(nil), buf[:cpcrcOffset]...), buf[cpcrcOffset+4:]...)
	binary.LittleEndian.PutUint32(buf[cpcrcOffset:cpcrcOffset+4], crc.CP(covered))

	return buf
}

func readyDeps(t *testing.T) (Deps, *internaltesting.MockIdentity, *internaltesting.MockAssembly) {
	t.Helper()

	sup := supervisor.New(nil, supervisor.Hooks{})
	ok := sup.HandleEvent(supervisor.SelfTestPass, supervisor.SelfTestEntryInputs{
		HasValidTUNID:      true,
		TUNIDMatchesNodeID: true,
		SCIDIsZero:         false,
	})
	require.True(t, ok)
	require.Equal(t, supervisor.Idle, sup.State())

	id := internaltesting.NewMockIdentity([]types.UNID{{SNNTime: 1, SNNDate: 1, NodeID: 1}})
	id.ScidZero = false // device already configured, matches the Type 2 (NULL) config path every test builds
	id.RegisterOutput(150)
	asm := internaltesting.NewMockAssembly()
	asm.Outputs[150] = true

	deps := Deps{
		Supervisor: sup,
		Identity:   id,
		Assembly:   asm,
		Validator:  validator.NewMemoryService(),
		OurKey:     elkey.Identity{VendorID: 1, DeviceType: 2, ProductCode: 3, MajorRev: 1, MinorRev: 2},
		AppVeto:    func(types.OpenParams, uint16) uint16 { return 0 },

		MaxTcoomMinMult: 80,
		MaxNteMult:      6000,
	}
	return deps, id, asm
}

func TestValidateAndCommit_HappyPath(t *testing.T) {
	triad := types.Triad{ConnSerial: 1, OrigVendor: 1, OrigSerial: 1}
	tunid := types.UNID{SNNTime: 1, SNNDate: 1, NodeID: 1}
	raw := buildRequest(t, triad, tunid, types.UNID{}, 150)

	p, aux, perr, ok := Parse(raw, false)
	require.True(t, ok, "parse error: %s", perr)

	deps, _, _ := readyDeps(t)

	result := Validate(raw, p, aux, deps)
	require.True(t, result.Accepted, "validate rejected: ext=%#x", uint16(result.ExtStatus))

	result = Commit(p, deps)
	require.True(t, result.Accepted, "commit rejected: ext=%#x", uint16(result.ExtStatus))
	assert.NotZero(t, result.InstanceID)

	_, found := deps.Validator.FindByTriad(triad)
	assert.True(t, found)
}

func TestValidate_RejectsBadCPCRC(t *testing.T) {
	triad := types.Triad{ConnSerial: 1, OrigVendor: 1, OrigSerial: 1}
	tunid := types.UNID{SNNTime: 1, SNNDate: 1, NodeID: 1}
	raw := buildRequest(t, triad, tunid, types.UNID{}, 150)
	raw[len(raw)-1] ^= 0xFF // corrupt a safety-segment byte covered by the CRC

	p, aux, _, ok := Parse(raw, false)
	require.True(t, ok)

	deps, _, _ := readyDeps(t)
	result := Validate(raw, p, aux, deps)
	assert.False(t, result.Accepted)
	assert.Equal(t, types.ExtCPCRC, result.ExtStatus)
}

func TestValidate_RejectsUnknownTUNID(t *testing.T) {
	triad := types.Triad{ConnSerial: 1, OrigVendor: 1, OrigSerial: 1}
	wrongTUNID := types.UNID{SNNTime: 9, SNNDate: 9, NodeID: 9}
	raw := buildRequest(t, triad, wrongTUNID, types.UNID{}, 150)

	p, aux, _, ok := Parse(raw, false)
	require.True(t, ok)

	deps, _, _ := readyDeps(t)
	result := Validate(raw, p, aux, deps)
	assert.False(t, result.Accepted)
	assert.Equal(t, types.ExtTUNIDMism, result.ExtStatus)
}

func TestValidate_RejectsUnknownConsumingInstance(t *testing.T) {
	triad := types.Triad{ConnSerial: 1, OrigVendor: 1, OrigSerial: 1}
	tunid := types.UNID{SNNTime: 1, SNNDate: 1, NodeID: 1}
	raw := buildRequest(t, triad, tunid, types.UNID{}, 151) // not registered as an output

	p, aux, _, ok := Parse(raw, false)
	require.True(t, ok)

	deps, _, _ := readyDeps(t)
	result := Validate(raw, p, aux, deps)
	assert.False(t, result.Accepted)
	assert.Equal(t, types.ExtConsPath, result.ExtStatus)
}

func TestParse_RejectsTooShort(t *testing.T) {
	_, _, perr, ok := Parse([]byte{0x01, 0x02, 0x03}, false)
	assert.False(t, ok)
	assert.Equal(t, ErrTooShort, perr)
}
