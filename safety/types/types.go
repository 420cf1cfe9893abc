// Package types holds the plain wire-shaped data structures shared across
// the safety core: UNID/SCID identifiers, the electronic key, the
// connection triad, and the parsed SafetyOpen parameter set.
package types

// UNID is a Unique Node Identifier: a Safety Network Number plus a node ID.
// Ten bytes on the wire (snn_time u32, snn_date u16, node_id u32).
type UNID struct {
	SNNTime uint32
	SNNDate uint16
	NodeID  uint32
}

// UNIDWireSize is the on-wire byte size of a UNID.
const UNIDWireSize = 10

// AllFF reports whether the UNID is the "unassigned" sentinel (all bytes 0xFF).
func (u UNID) AllFF() bool {
	return u.SNNTime == 0xFFFFFFFF && u.SNNDate == 0xFFFF && u.NodeID == 0xFFFFFFFF
}

// Zero reports whether the UNID is the "unowned" sentinel (all-zero).
func (u UNID) Zero() bool {
	return u.SNNTime == 0 && u.SNNDate == 0 && u.NodeID == 0
}

// SCID is a Safety Configuration Identifier: a CRC over the configuration
// data plus the timestamp of the configuration session that produced it.
type SCID struct {
	SCCRC    uint32
	SCTSTime uint32
	SCTSDate uint16
}

// Zero reports whether this is the "device unconfigured" sentinel SCID.
func (s SCID) Zero() bool {
	return s.SCCRC == 0 && s.SCTSTime == 0 && s.SCTSDate == 0
}

// Equal reports field-wise SCID equality.
func (s SCID) Equal(o SCID) bool {
	return s.SCCRC == o.SCCRC && s.SCTSTime == o.SCTSTime && s.SCTSDate == o.SCTSDate
}

// ElectronicKey identifies a device's vendor/product/revision. The high bit
// of CompMajorRev is the compatibility flag; the low 7 bits the major
// revision.
type ElectronicKey struct {
	VendorID      uint16
	DeviceType    uint16
	ProductCode   uint16
	CompMajorRev  uint8
	MinorRev      uint8
}

const (
	elKeyMaskCompatibility = 0x80
	elKeyMaskMajorRev      = 0x7F
)

// CompatibilityBitSet reports whether the compatibility bit is set.
func (k ElectronicKey) CompatibilityBitSet() bool {
	return k.CompMajorRev&elKeyMaskCompatibility != 0
}

// MajorRev returns the major revision with the compatibility bit masked out.
func (k ElectronicKey) MajorRev() uint8 {
	return k.CompMajorRev & elKeyMaskMajorRev
}

// Triad uniquely identifies a connection within its originator.
type Triad struct {
	ConnSerial uint16
	OrigVendor uint16
	OrigSerial uint32
}

// Equal reports field-wise Triad equality.
func (t Triad) Equal(o Triad) bool {
	return t.ConnSerial == o.ConnSerial && t.OrigVendor == o.OrigVendor && t.OrigSerial == o.OrigSerial
}

// FormatTag distinguishes the Base and Extended safety-segment layouts.
type FormatTag uint8

const (
	FormatBase FormatTag = iota
	FormatExtended
)

func (f FormatTag) String() string {
	if f == FormatExtended {
		return "Extended"
	}
	return "Base"
}

// PortMode selects which Supervisor Object service set (single-port vs
// multi-port TUNID propose/apply) a device instance registers.
type PortMode uint8

const (
	PortModeSingle PortMode = iota
	PortModeMulti
)

// ConnectionRole distinguishes server (target consumes, produces per
// assembly) from client (originator-in-role-of-target, rare on this core
// but preserved per the transport/trigger byte semantics of §4.F.6).
type ConnectionRole uint8

const (
	RoleServer ConnectionRole = iota
	RoleClient
)

// NetworkSafetyData is the Safety Network Segment of a SafetyOpen: the
// fields beyond the generic Forward_Open parameters that are specific to
// CIP Safety connection establishment.
type NetworkSafetyData struct {
	TUNID   UNID
	OUNID   UNID
	SCIDEcho SCID

	TCorrConnID    uint32
	TCorrEPI       uint32
	TCorrNetParams uint16

	TimeoutMult uint8

	PingIntervalEPIMult uint16 // PIEM
	TCOOMinMult         uint16 // time-coord-msg min multiplier, units of 128us
	NetTimeExpMult      uint16 // network-time-expectation multiplier, units of 128us

	MaxConsumerNum uint8
	CPCRC          uint32

	Format FormatTag

	// Extended-format tail only.
	MaxFaultNum      uint16
	InitialTimestamp uint16
	InitialRollover  uint16
}

// OpenParams is the fully parsed SafetyOpen (Forward_Open) request.
type OpenParams struct {
	NetConnIDOT uint32
	NetConnIDTO uint32

	Triad Triad

	TimeoutMult uint8

	RPIOT uint32 // microseconds
	RPITO uint32

	NetParamsOT uint16
	NetParamsTO uint16

	TransportTrigger uint8

	// Configuration application path.
	ConfigClass    uint16
	ConfigInstance uint16
	ConfigData     []byte // nil for Type 2 (no configuration data)

	// Producing / consuming application paths (instance IDs; 0 = NULL path).
	ProducingInstance uint16
	ConsumingInstance uint16

	ElectronicKey ElectronicKey

	Safety NetworkSafetyData

	// PayloadSize is the computed connection payload length (§4.F.6a),
	// populated once the connection-size check has run.
	PayloadSize uint16

	Role ConnectionRole
}

// ExtStatus is a CIP extended status word as echoed in a Forward_Open or
// Forward_Close error response.
type ExtStatus uint16

// Extended status codes for SafetyOpen/SafetyClose rejection (§4.F, §4.G).
// TUNID_MISM is pinned to the literal value spec §8 scenario 3 requires;
// the rest are assigned sequentially in the same vendor-extended-status
// block since the retrieved original_source excerpt does not carry the
// CIP Safety Volume 5 numeric assignment table (see DESIGN.md).
const (
	ExtUndefined        ExtStatus = 0x0000
	ExtVidOrProdCode     ExtStatus = 0x0801 // VID_OR_PRODC
	ExtDevType           ExtStatus = 0x0802 // DEV_TYPE
	ExtRevision          ExtStatus = 0x0803 // REVISION
	ExtTUNIDNotSet       ExtStatus = 0x0804 // TUNID_NOT_SET
	ExtDevStateConflict  ExtStatus = 0x0805 // DEV_STATE_CONFLICT
	ExtCPCRC             ExtStatus = 0x0806 // CPCRC
	ExtMiscellaneous     ExtStatus = 0x0807 // MISCELLANEOUS
	ExtTCT               ExtStatus = 0x0808 // TCT (transport class/trigger)
	ExtSCnxnSize         ExtStatus = 0x0809 // SCNXN_SIZE
	ExtRPINotSup         ExtStatus = 0x080A // RPI_NOT_SUP
	ExtPIEM              ExtStatus = 0x080B // PIEM
	ExtTCMMM             ExtStatus = 0x080C // TCMMM
	ExtTExpMult          ExtStatus = 0x080D // TEXP_MULT
	ExtToutMult          ExtStatus = 0x080E // TOUT_MULT
	ExtTUNIDMism         ExtStatus = 0x080F // TUNID_MISM (spec §8 scenario 3)
	ExtMaxConsNum        ExtStatus = 0x0810 // MAX_CONS_NUM
	ExtTCCID             ExtStatus = 0x0811 // TCCID
	ExtParamErr          ExtStatus = 0x0812 // PARAM_ERR
	ExtConfigPath        ExtStatus = 0x0813 // CONFIG_PATH
	ExtProdPath          ExtStatus = 0x0814 // PROD_PATH
	ExtConsPath          ExtStatus = 0x0815 // CONS_PATH
	ExtSCID              ExtStatus = 0x0816 // SCID
	ExtCfgOpNotAllowed   ExtStatus = 0x0817 // CFGOP_NOT_AL
	ExtOUNIDCfg          ExtStatus = 0x0818 // OUNID_CFG
	ExtDevNotCfg         ExtStatus = 0x0819 // DEV_NOT_CFG
	ExtOUNIDOut          ExtStatus = 0x081A // OUNID_OUT
	ExtCnxnAlloc         ExtStatus = 0x081B // CNXN_ALLOC
	ExtCnxnNotFound      ExtStatus = 0x081C // CNXN_NOT_FND (SafetyClose, no match)
	ExtNetCnxnPar        ExtStatus = 0x081D // NET_CNXN_PAR (§4.F.6 NCP encoding)
	ExtTCCP              ExtStatus = 0x081E // TCCP (time-correction NCP encoding)
)

// Auxiliary carries parse-time-only bookkeeping needed by CPCRC
// verification: the byte offsets used to locate the CRC-covered region
// within the original request buffer. ComputedCPCRC is not filled in:
// Validate computes the CPCRC itself and does not store it here.
type Auxiliary struct {
	ElKeyOffset       int
	NetSafetyOffset   int
	AppPathsByteSize  int
	ComputedCPCRC     uint32
}
