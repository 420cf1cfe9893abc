// Package assembly implements the CIP Assembly Object (Class 0x04), the
// input/output assembly-data I/O interface the safety core treats as an
// external collaborator (§1): existence checks for §4.F.9's
// producing/consuming application-path semantics, and the OCPUNID index
// resolver §4.A falls back to for devices without a declared
// target-output-assembly list.
package assembly

import (
	"encoding/binary"
	"sync"

	"github.com/iceisfun/cipsafety/pkg/cip"
)

// Direction distinguishes an assembly used as a connection's input
// (producing, i.e. target-to-originator data) from one used as output
// (consuming, originator-to-target).
type Direction uint8

const (
	DirectionInput Direction = iota
	DirectionOutput
	DirectionConfig
)

// AssemblyObject implements the CIP Assembly Object (Class 0x04).
type AssemblyObject struct {
	mu        sync.RWMutex
	instances map[uint32]*AssemblyInstance

	// rx is forwarded I/O data reception, consumed by the safety
	// application per §9's io_data_rx_callback; the core itself never
	// interprets assembly data.
	rx func(cnxnPoint uint16, data []byte)

	// outputOrder lists output-assembly instance IDs in OCPUNID table
	// order (§4.A): RegisterAssembly appends each Output instance as it
	// is registered, so the table order is registration order.
	outputOrder []uint32
}

// AssemblyInstance represents a single assembly instance (Input, Output, or Config).
type AssemblyInstance struct {
	ID        uint32
	Direction Direction
	Data      []byte
}

// NewAssemblyObject creates a new Assembly Object.
func NewAssemblyObject() *AssemblyObject {
	return &AssemblyObject{
		instances: make(map[uint32]*AssemblyInstance),
	}
}

// SetIODataRxCallback wires the forwarded I/O-data-received hook.
func (ao *AssemblyObject) SetIODataRxCallback(rx func(cnxnPoint uint16, data []byte)) {
	ao.mu.Lock()
	defer ao.mu.Unlock()
	ao.rx = rx
}

// RegisterAssembly registers a new assembly instance.
func (ao *AssemblyObject) RegisterAssembly(instanceID uint32, dir Direction, data []byte) {
	ao.mu.Lock()
	defer ao.mu.Unlock()
	ao.instances[instanceID] = &AssemblyInstance{
		ID:        instanceID,
		Direction: dir,
		Data:      data,
	}
	if dir == DirectionOutput {
		ao.outputOrder = append(ao.outputOrder, instanceID)
	}
}

// Exists reports whether instance is a registered assembly.
func (ao *AssemblyObject) Exists(instance uint16) bool {
	ao.mu.RLock()
	defer ao.mu.RUnlock()
	_, ok := ao.instances[uint32(instance)]
	return ok
}

// IsInput reports whether instance exists and is an input (producing) assembly.
func (ao *AssemblyObject) IsInput(instance uint16) bool {
	ao.mu.RLock()
	defer ao.mu.RUnlock()
	inst, ok := ao.instances[uint32(instance)]
	return ok && inst.Direction == DirectionInput
}

// IsOutput reports whether instance exists and is an output (consuming) assembly.
func (ao *AssemblyObject) IsOutput(instance uint16) bool {
	ao.mu.RLock()
	defer ao.mu.RUnlock()
	inst, ok := ao.instances[uint32(instance)]
	return ok && inst.Direction == DirectionOutput
}

// OutIndexFromInstance implements identity.OutputIndexResolver for devices
// that do not declare their own target-output-assembly list (§4.A).
func (ao *AssemblyObject) OutIndexFromInstance(instance uint16) (int, bool) {
	ao.mu.RLock()
	defer ao.mu.RUnlock()
	for i, id := range ao.outputOrder {
		if id == uint32(instance) {
			return i, true
		}
	}
	return 0, false
}

// GetAttributeSingle handles Get_Attribute_Single (0x0E) service.
func (ao *AssemblyObject) GetAttributeSingle(instanceID uint32, attrID uint16) ([]byte, error) {
	ao.mu.RLock()
	defer ao.mu.RUnlock()

	instance, ok := ao.instances[instanceID]
	if !ok {
		return nil, cip.Error{Status: cip.StatusObjectDoesNotExist}
	}

	switch attrID {
	case 3: // Data
		dataCopy := make([]byte, len(instance.Data))
		copy(dataCopy, instance.Data)
		return dataCopy, nil
	default:
		return nil, cip.Error{Status: cip.StatusAttributeNotSupported}
	}
}

// SetAttributeSingle handles Set_Attribute_Single (0x10) service. Writes to
// an Output assembly are forwarded to the rx callback the way the original
// assembly interface feeds consumed data to SAPL_IxsvcIoDataRxClbk.
func (ao *AssemblyObject) SetAttributeSingle(instanceID uint32, attrID uint16, data []byte) error {
	ao.mu.Lock()
	instance, ok := ao.instances[instanceID]
	if !ok {
		ao.mu.Unlock()
		return cip.Error{Status: cip.StatusObjectDoesNotExist}
	}
	if attrID != 3 {
		ao.mu.Unlock()
		return cip.Error{Status: cip.StatusAttributeNotSupported}
	}
	if len(data) != len(instance.Data) {
		ao.mu.Unlock()
		return cip.Error{Status: cip.StatusInvalidAttributeValue}
	}
	copy(instance.Data, data)
	dir := instance.Direction
	rx := ao.rx
	ao.mu.Unlock()

	if dir == DirectionOutput && rx != nil {
		rx(uint16(instanceID), data)
	}
	return nil
}

// HandleRequest implements the cip.Object interface.
func (ao *AssemblyObject) HandleRequest(service cip.USINT, path cip.Path, data []byte) ([]byte, error) {
	pathBytes := path.Bytes()
	if len(pathBytes) == 0 {
		return nil, cip.Error{Status: cip.StatusPathSegmentError}
	}

	var instanceID uint32
	var remainingPath []byte

	switch pathBytes[0] {
	case 0x24:
		if len(pathBytes) < 2 {
			return nil, cip.Error{Status: cip.StatusPathSegmentError}
		}
		instanceID = uint32(pathBytes[1])
		remainingPath = pathBytes[2:]
	case 0x25:
		if len(pathBytes) < 4 {
			return nil, cip.Error{Status: cip.StatusPathSegmentError}
		}
		instanceID = uint32(binary.LittleEndian.Uint16(pathBytes[2:4]))
		remainingPath = pathBytes[4:]
	default:
		return nil, cip.Error{Status: cip.StatusPathSegmentError}
	}

	var attrID uint16
	if len(remainingPath) > 0 {
		switch remainingPath[0] {
		case 0x30:
			if len(remainingPath) < 2 {
				return nil, cip.Error{Status: cip.StatusPathSegmentError}
			}
			attrID = uint16(remainingPath[1])
		case 0x31:
			if len(remainingPath) < 4 {
				return nil, cip.Error{Status: cip.StatusPathSegmentError}
			}
			attrID = binary.LittleEndian.Uint16(remainingPath[2:4])
		}
	}

	switch service {
	case cip.ServiceGetAttributeSingle:
		if attrID == 0 {
			return nil, cip.Error{Status: cip.StatusPathSegmentError}
		}
		return ao.GetAttributeSingle(instanceID, attrID)
	case cip.ServiceSetAttributeSingle:
		if attrID == 0 {
			return nil, cip.Error{Status: cip.StatusPathSegmentError}
		}
		return nil, ao.SetAttributeSingle(instanceID, attrID, data)
	default:
		return nil, cip.Error{Status: cip.StatusServiceNotSupported}
	}
}
