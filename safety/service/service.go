// Package service implements the Safety Supervisor explicit-message
// dispatcher (spec component I / §4.I): Get/Set_Attribute_Single plus the
// Safety_Reset, Propose_TUNID(_List), and Apply_TUNID(_List) services,
// gated single-port vs multi-port per the device's declared PortMode.
// Grounded on pkg/objects/assembly's HandleRequest path-decode idiom,
// generalised from Class 0x04 to Class 0x39 (Safety Supervisor).
package service

import (
	"encoding/binary"

	"github.com/iceisfun/cipsafety/pkg/cip"
	"github.com/iceisfun/cipsafety/safety/identity"
	"github.com/iceisfun/cipsafety/safety/supervisor"
	"github.com/iceisfun/cipsafety/safety/types"
)

// Safety Supervisor Object services beyond the common Get/Set_Attribute_Single.
const (
	ServiceSafetyReset       cip.USINT = 0x4C
	ServiceProposeTUNID      cip.USINT = 0x4B
	ServiceApplyTUNID        cip.USINT = 0x4D
	ServiceProposeTUNIDList  cip.USINT = 0x4F
	ServiceApplyTUNIDList    cip.USINT = 0x50
)

// Attribute IDs exposed through Get/Set_Attribute_Single.
const (
	AttrDeviceStatus     = 1
	AttrExceptionDetail  = 2
	AttrExceptionDesc    = 3
	AttrAlarmEnable      = 4
	AttrWarningEnable    = 5
	AttrTUNID            = 6 // single-port
	AttrTUNIDList        = 7 // multi-port
	AttrCFUNID           = 8
	AttrOCPUNIDList      = 9
	AttrSCID             = 10
)

// App is the subset of callback.SafetyApplication the dispatcher needs
// directly (SafetyReset requires the password/target fields off the wire,
// so it stays a thin pass-through rather than duplicating parsing here).
type App interface {
	SafetyReset(resetType uint8, attrBitmap uint8, password [16]byte, targetUNID types.UNID) uint8
}

// Dispatcher implements cip.Object for the Safety Supervisor Object.
type Dispatcher struct {
	Supervisor *supervisor.Machine
	Identity   *identity.Store
	App        App
	Mode       types.PortMode

	PublishSNN func(port int, snnTime uint32, snnDate uint16)
}

func unidBytes(u types.UNID) []byte {
	b := make([]byte, types.UNIDWireSize)
	binary.LittleEndian.PutUint32(b[0:4], u.SNNTime)
	binary.LittleEndian.PutUint16(b[4:6], u.SNNDate)
	binary.LittleEndian.PutUint32(b[6:10], u.NodeID)
	return b
}

func unidFromBytes(b []byte) types.UNID {
	return types.UNID{
		SNNTime: binary.LittleEndian.Uint32(b[0:4]),
		SNNDate: binary.LittleEndian.Uint16(b[4:6]),
		NodeID:  binary.LittleEndian.Uint32(b[6:10]),
	}
}

// HandleRequest implements cip.Object.
func (d *Dispatcher) HandleRequest(service cip.USINT, path cip.Path, data []byte) ([]byte, error) {
	switch service {
	case cip.ServiceGetAttributeSingle:
		return d.getAttr(path)
	case cip.ServiceSetAttributeSingle:
		return d.setAttr(path, data)
	case ServiceSafetyReset:
		return d.safetyReset(data)
	case ServiceProposeTUNID:
		return d.proposeTUNID(data, false)
	case ServiceProposeTUNIDList:
		return d.proposeTUNID(data, true)
	case ServiceApplyTUNID:
		return d.applyTUNID(data, false)
	case ServiceApplyTUNIDList:
		return d.applyTUNID(data, true)
	default:
		return nil, cip.Error{Status: cip.StatusServiceNotSupported}
	}
}

func attrIDFromPath(path cip.Path) (uint16, bool) {
	b := path.Bytes()
	if len(b) == 0 {
		return 0, false
	}
	switch b[0] {
	case 0x30:
		if len(b) < 2 {
			return 0, false
		}
		return uint16(b[1]), true
	case 0x31:
		if len(b) < 4 {
			return 0, false
		}
		return binary.LittleEndian.Uint16(b[2:4]), true
	}
	return 0, false
}

func (d *Dispatcher) getAttr(path cip.Path) ([]byte, error) {
	attr, ok := attrIDFromPath(path)
	if !ok {
		return nil, cip.Error{Status: cip.StatusPathSegmentError}
	}
	switch attr {
	case AttrDeviceStatus:
		return []byte{uint8(d.Supervisor.State())}, nil
	case AttrExceptionDetail:
		return []byte{d.Supervisor.ExceptionDetail()}, nil
	case AttrAlarmEnable:
		return boolByte(d.Supervisor.AlarmEnable()), nil
	case AttrWarningEnable:
		return boolByte(d.Supervisor.WarningEnable()), nil
	case AttrTUNID:
		if d.Mode != types.PortModeSingle {
			return nil, cip.Error{Status: cip.StatusAttributeNotSupported}
		}
		list := d.Identity.TUNIDList()
		if len(list) == 0 {
			return nil, cip.Error{Status: cip.StatusObjectDoesNotExist}
		}
		return unidBytes(list[0]), nil
	case AttrTUNIDList:
		if d.Mode != types.PortModeMulti {
			return nil, cip.Error{Status: cip.StatusAttributeNotSupported}
		}
		return encodeUNIDList(d.Identity.TUNIDList()), nil
	case AttrCFUNID:
		return unidBytes(d.Identity.CFUNID()), nil
	case AttrSCID:
		s := d.Identity.SCID()
		b := make([]byte, 10)
		binary.LittleEndian.PutUint32(b[0:4], s.SCCRC)
		binary.LittleEndian.PutUint32(b[4:8], s.SCTSTime)
		binary.LittleEndian.PutUint16(b[8:10], s.SCTSDate)
		return b, nil
	default:
		return nil, cip.Error{Status: cip.StatusAttributeNotSupported}
	}
}

func (d *Dispatcher) setAttr(path cip.Path, data []byte) ([]byte, error) {
	attr, ok := attrIDFromPath(path)
	if !ok {
		return nil, cip.Error{Status: cip.StatusPathSegmentError}
	}
	switch attr {
	case AttrAlarmEnable:
		if len(data) < 1 {
			return nil, cip.Error{Status: cip.StatusNotEnoughData}
		}
		d.Supervisor.SetAlarmEnable(data[0] != 0)
		return nil, nil
	case AttrWarningEnable:
		if len(data) < 1 {
			return nil, cip.Error{Status: cip.StatusNotEnoughData}
		}
		d.Supervisor.SetWarningEnable(data[0] != 0)
		return nil, nil
	default:
		return nil, cip.Error{Status: cip.StatusAttributeNotSettable}
	}
}

func boolByte(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}

func encodeUNIDList(list []types.UNID) []byte {
	b := make([]byte, 0, 1+len(list)*types.UNIDWireSize)
	b = append(b, byte(len(list)))
	for _, u := range list {
		b = append(b, unidBytes(u)...)
	}
	return b
}

// proposeTUNID implements Propose_TUNID / Propose_TUNID_List: single-port
// devices take one UNID directly; multi-port devices require the _List
// variant and reject the single form, and vice versa (§9 mutual exclusion).
func (d *Dispatcher) proposeTUNID(data []byte, isList bool) ([]byte, error) {
	if isList != (d.Mode == types.PortModeMulti) {
		return nil, cip.Error{Status: cip.StatusServiceNotSupported}
	}
	var list []types.UNID
	if isList {
		if len(data) < 1 {
			return nil, cip.Error{Status: cip.StatusNotEnoughData}
		}
		n := int(data[0])
		rest := data[1:]
		if len(rest) < n*types.UNIDWireSize {
			return nil, cip.Error{Status: cip.StatusNotEnoughData}
		}
		for i := 0; i < n; i++ {
			list = append(list, unidFromBytes(rest[i*types.UNIDWireSize:]))
		}
	} else {
		if len(data) < types.UNIDWireSize {
			return nil, cip.Error{Status: cip.StatusNotEnoughData}
		}
		list = []types.UNID{unidFromBytes(data)}
	}
	d.Identity.ProposeTUNID(list)
	if !d.Supervisor.HandleEvent(supervisor.ProposeTUNID, supervisor.SelfTestEntryInputs{}) {
		return nil, cip.Error{Status: cip.StatusDeviceStateConflict}
	}
	return nil, nil
}

// applyTUNID implements Apply_TUNID / Apply_TUNID_List: commit the staged
// proposal through the identity store, then drive the supervisor's
// ApplyTUNID transition.
func (d *Dispatcher) applyTUNID(data []byte, isList bool) ([]byte, error) {
	if isList != (d.Mode == types.PortModeMulti) {
		return nil, cip.Error{Status: cip.StatusServiceNotSupported}
	}
	proposed := d.Identity.ProposedTUNID()
	if len(proposed) == 0 {
		return nil, cip.Error{Status: cip.StatusDeviceStateConflict}
	}
	if !d.Identity.TUNIDListSet(proposed, d.PublishSNN) {
		return nil, cip.Error{Status: cip.StatusStoreOperationFailure}
	}
	d.Identity.ClearProposedTUNID()
	if !d.Supervisor.HandleEvent(supervisor.ApplyTUNID, supervisor.SelfTestEntryInputs{}) {
		return nil, cip.Error{Status: cip.StatusDeviceStateConflict}
	}
	return nil, nil
}

func (d *Dispatcher) safetyReset(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, cip.Error{Status: cip.StatusNotEnoughData}
	}
	resetType := data[0]
	attrBitmap := data[1]
	var password [16]byte
	var targetUNID types.UNID
	rest := data[2:]
	if len(rest) >= 16 {
		copy(password[:], rest[:16])
		rest = rest[16:]
	}
	if len(rest) >= types.UNIDWireSize {
		targetUNID = unidFromBytes(rest)
	}
	status := d.App.SafetyReset(resetType, attrBitmap, password, targetUNID)
	if status != 0 {
		return nil, cip.Error{Status: cip.USINT(status)}
	}
	return nil, nil
}
