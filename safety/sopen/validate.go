// validate.go implements §4.F checks 1-9: supervisor admission through
// application-path semantics. Mirrors IXSCEsop2.c's split of SafetyOpen
// handling into "part 1" (parse + early checks) and "part 2" (late checks
// + commit) — see SPEC_FULL.md §C.5.
package sopen

import (
	"github.com/iceisfun/cipsafety/safety/crc"
	"github.com/iceisfun/cipsafety/safety/elkey"
	"github.com/iceisfun/cipsafety/safety/supervisor"
	"github.com/iceisfun/cipsafety/safety/types"
	"github.com/iceisfun/cipsafety/safety/unid"
	"github.com/iceisfun/cipsafety/safety/validator"
)

// Result is the outcome of validating (and, on success, committing) a
// SafetyOpen request.
type Result struct {
	Accepted  bool
	GenStatus uint8
	ExtStatus types.ExtStatus
	// ExtraStatusWords carries the additional status words for codes that
	// have them (currently only RPI_NOT_SUP, §6).
	ExtraStatusWords []uint16

	InstanceID   uint32
	ConsumerNum  uint8
	InitialTimestamp uint16
	InitialRollover  uint16

	Reopen bool
}

func reject(ext types.ExtStatus) Result {
	return Result{Accepted: false, GenStatus: 0x01, ExtStatus: ext}
}

// rejectRPI rejects with RPI_NOT_SUP, attaching the one additional status
// word §6 calls for: the acceptable RPI, in microseconds, saturated to fit
// the word's 16 bits.
func rejectRPI(acceptableRPI uint32) Result {
	word := acceptableRPI
	if word > 0xFFFF {
		word = 0xFFFF
	}
	return Result{
		Accepted:         false,
		GenStatus:        0x01,
		ExtStatus:        types.ExtRPINotSup,
		ExtraStatusWords: []uint16{uint16(word)},
	}
}

// AssemblyLookup is the subset of the assembly interface the validator
// needs for §4.F.9's application-path semantics.
type AssemblyLookup interface {
	Exists(instance uint16) bool
	IsInput(instance uint16) bool
	IsOutput(instance uint16) bool
}

// OCPUNIDStore is the subset of the identity store needed for
// output-connection ownership checks (§4.F.12) and CFUNID/SCID handling
// (§4.F.10-11).
type OCPUNIDStore interface {
	CFUNID() types.UNID
	CFUNIDSet(u types.UNID) bool
	SCID() types.SCID
	SCIDIsZero() bool
	SCIDSet(sccrc, sctsTime uint32, sctsDate uint16) bool
	OCPUNIDGet(instance uint16) (types.UNID, error)
	OCPUNIDSet(instance uint16, u types.UNID) bool
	TUNIDList() []types.UNID
}

// Deps bundles every external collaborator the validator consults, kept as
// an explicit struct (rather than a god-interface) so callers can wire in
// whichever concrete identity/assembly/supervisor/validator instances they
// built, matching how goeip's router takes a plain map of cip.Object
// rather than one monolithic interface.
type Deps struct {
	Supervisor   *supervisor.Machine
	Identity     OCPUNIDStore
	Assembly     AssemblyLookup
	Validator    validator.Service
	OurKey       elkey.Identity
	CompatKey    elkey.CompatibleKeyAccept
	ApplyConfig  func(data []byte) bool
	AppVeto      func(p types.OpenParams, payloadSize uint16) uint16
	MultiPort    bool

	MaxTcoomMinMult uint16 // device-profile-dependent bound, §A.3
	MaxNteMult      uint16
}

// coveredRegion extracts the CPCRC-covered bytes of a SafetyOpen request:
// the fixed header through the end of the safety segment, excluding the
// CPCRC word itself (§6).
func coveredRegion(raw []byte, aux types.Auxiliary, cpcrcFieldOffset int) []byte {
	region := make([]byte, 0, len(raw))
	region = append(region, raw[:cpcrcFieldOffset]...)
	if cpcrcFieldOffset+4 <= len(raw) {
		region = append(region, raw[cpcrcFieldOffset+4:]...)
	}
	return region
}

// Validate runs §4.F checks 1-9 (the IXSCEsop2.c "part 1" scope). On
// success it returns accepted=true with GenStatus/ExtStatus left at their
// zero values; the caller (Commit) continues with checks 10-15.
func Validate(raw []byte, p types.OpenParams, aux types.Auxiliary, d Deps) Result {
	// 1. Supervisor admission.
	switch d.Supervisor.State() {
	case supervisor.WaitingForTUNID:
		return reject(types.ExtTUNIDNotSet)
	case supervisor.Abort, supervisor.SelfTestException, supervisor.CriticalFault:
		return reject(types.ExtDevStateConflict)
	}
	if !d.Supervisor.HandleEvent(supervisor.FwdOpenReq, supervisor.SelfTestEntryInputs{}) {
		return reject(types.ExtDevStateConflict)
	}

	// 2. CPCRC.
	cpcrcOffset := aux.NetSafetyOffset + 20
	region := coveredRegion(raw, aux, cpcrcOffset)
	computed := crc.CP(region)
	if computed != p.Safety.CPCRC {
		return reject(types.ExtCPCRC)
	}

	// 3. Target UNID match.
	tunids := d.Identity.TUNIDList()
	if !unid.DeviceHasValidTUNID(tunids) {
		return reject(types.ExtTUNIDNotSet)
	}
	if d.MultiPort && p.Safety.TUNID.AllFF() {
		return reject(types.ExtTUNIDMism)
	}
	if !unid.ListContains(p.Safety.TUNID, tunids) {
		return reject(types.ExtTUNIDMism)
	}

	// 4. Duplicate / reopen detection.
	result := Result{}
	if existing, found := d.Validator.FindByTriad(p.Triad); found {
		switch existing.State {
		case validator.StateFaulted:
			result.Reopen = true
		default:
			if existing.Role == p.Role {
				result.Reopen = true
			} else {
				return reject(types.ExtMiscellaneous)
			}
		}
	}

	// 5. Electronic key.
	if ok, ext := elkey.MatchCheck(p.ElectronicKey, d.OurKey, d.CompatKey); !ok {
		return reject(ext)
	}

	// 6. Connection parameters.
	if p.TimeoutMult > 7 {
		return reject(types.ExtTCT)
	}
	const (
		transportClientClass0 = 0x20
		transportServerClass0 = 0xA0
	)
	if p.TransportTrigger != transportClientClass0 && p.TransportTrigger != transportServerClass0 {
		return reject(types.ExtTCT)
	}
	p.Role = types.RoleServer
	if p.TransportTrigger == transportClientClass0 {
		p.Role = types.RoleClient
	}

	if ok, ext := validateNetworkParams(p); !ok {
		return reject(ext)
	}

	sizeField := p.NetParamsOT
	if p.Role == types.RoleClient {
		sizeField = p.NetParamsTO
	}
	payload, ok := connectionSizeCheck(sizeField, isMulticast(p.NetParamsTO))
	if !ok {
		return reject(types.ExtSCnxnSize)
	}
	p.PayloadSize = payload

	// 7. RPI range.
	dataRPI := p.RPIOT
	if p.Role == types.RoleClient {
		dataRPI = p.RPITO
	}
	maxDataRPI := uint32(100_000) // 100ms, microseconds
	if p.Safety.Format == types.FormatExtended {
		maxDataRPI = 1_000_000 // 1000ms
	}
	if dataRPI < 100 {
		return rejectRPI(100)
	}
	if dataRPI > maxDataRPI {
		return rejectRPI(maxDataRPI)
	}
	tcRPI := p.RPITO
	if p.Role == types.RoleClient {
		tcRPI = p.RPIOT
	}
	if tcRPI < 100 {
		return rejectRPI(100)
	}
	if tcRPI > 100_000_000 {
		return rejectRPI(100_000_000)
	}

	// 8. Safety parameters.
	if r := validateSafetyParams(p, d); !r.Accepted && r.ExtStatus != 0 {
		return r
	} else if !r.Accepted {
		return r
	}

	// 9. Application-path semantics.
	if r := validateAppPaths(p, d); !r.Accepted {
		return r
	}

	result.Accepted = true
	return result
}

func isMulticast(netParamsTO uint16) bool {
	const multicastBit = 1 << 13
	return netParamsTO&multicastBit != 0
}

// Network Connection Parameters bit layout (CIP Vol 1 Table 3-5.13): bits
// 0-8 connection size (ncpSizeMask), bit 9 fixed(0)/variable(1) size, bits
// 10-11 priority (Low/High/Scheduled/Urgent), bits 13-14 connection type
// (Null/Multicast/Point-to-Point) — bit 13 alone is the existing
// isMulticast flag above. Bit 12 is reserved in the base CIP table; CIP
// Safety (Vol 5) repurposes it as the tMsgLen flag, marking a connection
// that folds the periodic time-correction message into its own data. The
// retrieved original_source excerpt's CSS_k_NCP_* header defining these as
// named constants was not available, so the bit positions here are derived
// from the standard table and cross-checked against this file's own prior
// use of bits 0-8 and 13 (see DESIGN.md).
const (
	ncpSizeMask          uint16 = 0x01FF
	ncpVariableSizeBit   uint16 = 1 << 9
	ncpPriorityHigh      uint16 = 1 << 10
	ncpPriorityScheduled uint16 = 1 << 11
	ncpTMsgLenBit        uint16 = 1 << 12
	ncpTypeMask          uint16 = 3 << 13
	ncpTypeMulticast     uint16 = 1 << 13
	ncpTypePointToPoint  uint16 = 2 << 13
	ncpNotUsed           uint16 = 0
)

// ncpFixed reports whether v names a fixed-size, high- or
// scheduled-priority connection of the given connection type with tMsgLen
// set as required. Size bits are ignored here; §4.F.6a checks those
// separately via connectionSizeCheck.
func ncpFixed(v, wantType uint16, wantTMsgLen bool) bool {
	if v&ncpVariableSizeBit != 0 {
		return false
	}
	if v&ncpTypeMask != wantType {
		return false
	}
	prio := v & (ncpPriorityHigh | ncpPriorityScheduled)
	if prio != ncpPriorityHigh && prio != ncpPriorityScheduled {
		return false
	}
	return (v&ncpTMsgLenBit != 0) == wantTMsgLen
}

// validateNetworkParams implements §4.F.6's network-connection-parameter
// encoding checks, grounded on IXSCEsopen.c's CnxnParamsValidateServer and
// CnxnParamsValidateClient: beyond the raw connection size, the O→T/T→O
// words must each name the point-to-point-or-multicast, fixed-size,
// priority, and tMsgLen combination the role requires, and the
// time-correction parameters word must be "not used" — except a multicast
// client's, which may instead fold the time-correction message into its
// own fixed multicast word.
//
// Per the original logic, the leg that carries no real payload for this
// role (Server's T→O, Client's O→T) must additionally encode a zero
// connection size; the real payload size is computed afterwards, for the
// other leg, by connectionSizeCheck.
func validateNetworkParams(p types.OpenParams) (bool, types.ExtStatus) {
	if p.Role == types.RoleServer {
		if !ncpFixed(p.NetParamsOT, ncpTypePointToPoint, false) {
			return false, types.ExtNetCnxnPar
		}
		if !ncpFixed(p.NetParamsTO, ncpTypePointToPoint, true) || p.NetParamsTO&ncpSizeMask != 0 {
			return false, types.ExtNetCnxnPar
		}
		if p.Safety.TCorrNetParams != ncpNotUsed {
			return false, types.ExtTCCP
		}
		return true, 0
	}

	// Client.
	if !ncpFixed(p.NetParamsOT, ncpTypePointToPoint, true) || p.NetParamsOT&ncpSizeMask != 0 {
		return false, types.ExtNetCnxnPar
	}
	if isMulticast(p.NetParamsTO) {
		if !ncpFixed(p.NetParamsTO, ncpTypeMulticast, false) {
			return false, types.ExtNetCnxnPar
		}
		if p.Safety.TCorrNetParams == ncpNotUsed {
			return true, 0
		}
		if !ncpFixed(p.Safety.TCorrNetParams, ncpTypeMulticast, true) {
			return false, types.ExtTCCP
		}
		return true, 0
	}
	if !ncpFixed(p.NetParamsTO, ncpTypePointToPoint, false) {
		return false, types.ExtNetCnxnPar
	}
	if p.Safety.TCorrNetParams != ncpNotUsed {
		return false, types.ExtTCCP
	}
	return true, 0
}

// connectionSizeCheck implements §4.F.6a.
func connectionSizeCheck(netParams uint16, multicast bool) (uint16, bool) {
	size := netParams & ncpSizeMask
	const shortMin = 1
	longMax := uint16(250)
	if multicast {
		longMax -= 2 // time-correction bytes reserved
	}
	if size < shortMin || size > longMax {
		return 0, false
	}
	if size == 0 {
		return 0, false
	}
	return size, true
}

func validateSafetyParams(p types.OpenParams, d Deps) Result {
	singlecast := p.Safety.MaxConsumerNum == 1
	if singlecast && p.Safety.TCorrEPI != 0 {
		return reject(types.ExtPIEM)
	}
	minMult := p.TimeoutMult
	if minMult > 4 {
		minMult = 4
	}
	minPIEM := uint16(minMult)*uint16(p.Safety.MaxConsumerNum) + 15
	if p.Safety.PingIntervalEPIMult < minPIEM {
		return reject(types.ExtPIEM)
	}
	dataRPI := p.RPIOT
	if p.Role == types.RoleClient {
		dataRPI = p.RPITO
	}
	if uint64(dataRPI)*uint64(p.Safety.PingIntervalEPIMult) >= 100_000_000 {
		return reject(types.ExtPIEM)
	}
	if p.Safety.TCOOMinMult > d.MaxTcoomMinMult {
		return reject(types.ExtTCMMM)
	}
	if p.Safety.NetTimeExpMult > d.MaxNteMult {
		return reject(types.ExtTExpMult)
	}
	if p.Safety.TimeoutMult < 1 {
		return reject(types.ExtToutMult)
	}
	if p.Safety.Format == types.FormatBase && p.Safety.TimeoutMult > 4 {
		return reject(types.ExtToutMult)
	}
	if !singlecast {
		if p.Safety.MaxConsumerNum < 1 || p.Safety.MaxConsumerNum > 15 {
			return reject(types.ExtMaxConsNum)
		}
	} else if p.Safety.MaxConsumerNum != 1 {
		return reject(types.ExtMaxConsNum)
	}
	if singlecast && p.Safety.TCorrConnID != 0xFFFFFFFF {
		return reject(types.ExtTCCID)
	}
	if p.Safety.Format == types.FormatExtended {
		if p.Safety.MaxFaultNum > 255 {
			return reject(types.ExtMiscellaneous)
		}
		notUsed := uint16(0xFFFF)
		multicastClientOrServer := !singlecast || p.Role == types.RoleServer
		if multicastClientOrServer && (p.Safety.InitialTimestamp != notUsed || p.Safety.InitialRollover != notUsed) {
			return reject(types.ExtParamErr)
		}
	}
	return Result{Accepted: true}
}

func validateAppPaths(p types.OpenParams, d Deps) Result {
	const assemblyClass = 0x04
	const nullConfigInstance = 0

	if p.ConfigClass != assemblyClass {
		return reject(types.ExtConfigPath)
	}
	if p.ConfigInstance == nullConfigInstance {
		if len(p.ConfigData) != 0 {
			return reject(types.ExtConfigPath)
		}
	} else if len(p.ConfigData) == 0 {
		return reject(types.ExtConfigPath)
	}

	if p.Role == types.RoleServer {
		if p.ProducingInstance != 0 {
			return reject(types.ExtProdPath)
		}
		if p.ConsumingInstance == 0 || !d.Assembly.IsOutput(p.ConsumingInstance) {
			return reject(types.ExtConsPath)
		}
	} else {
		if p.ConsumingInstance != 0 {
			return reject(types.ExtConsPath)
		}
		if p.ProducingInstance == 0 || !d.Assembly.IsInput(p.ProducingInstance) {
			return reject(types.ExtProdPath)
		}
	}
	return Result{Accepted: true}
}
