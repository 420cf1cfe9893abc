// Package identity implements the non-volatile identity store of spec
// component A: SCID, TUNID list, CFUNID, OCPUNID table and the volatile
// proposed-TUNID buffer used during Propose/Apply TUNID.
package identity

import (
	"encoding/binary"
	"errors"

	"github.com/iceisfun/cipsafety/internal"
	"github.com/iceisfun/cipsafety/safety/callback"
	"github.com/iceisfun/cipsafety/safety/types"
)

// ErrInvalidIndex is returned by OCPUNIDGet when the instance does not name
// a known output assembly connection point.
var ErrInvalidIndex = errors.New("identity: invalid output connection point index")

// OutputIndexResolver maps an output-assembly instance ID to an index into
// the OCPUNID table. On devices without a declared target-output-assembly
// list, this is backed by the assembly interface's own
// out_index_from_instance (§4.A); Store's caller supplies whichever is
// appropriate at construction.
type OutputIndexResolver interface {
	OutIndexFromInstance(instance uint16) (index int, ok bool)
}

// Store is the identity store. It is single-owner: per §5 it is only ever
// touched from the core's single processing thread, so it carries no
// locking.
type Store struct {
	log internal.Logger
	app callback.SafetyApplication
	out OutputIndexResolver

	ports int

	tunid    []types.UNID
	cfunid   types.UNID
	ocpunid  []types.UNID
	scid     types.SCID

	proposedTUNID    []types.UNID
	proposedNumPorts int
}

// New constructs a Store for a device with the given port count and output
// connection count (the OCPUNID table size).
func New(log internal.Logger, app callback.SafetyApplication, out OutputIndexResolver, ports, outputCnxns int) *Store {
	if log == nil {
		log = internal.NopLogger()
	}
	return &Store{
		log:     log,
		app:     app,
		out:     out,
		ports:   ports,
		tunid:   make([]types.UNID, ports),
		ocpunid: make([]types.UNID, outputCnxns),
	}
}

func unidToBytes(u types.UNID) []byte {
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

func scidToBytes(s types.SCID) []byte {
	b := make([]byte, 10)
	binary.LittleEndian.PutUint32(b[0:4], s.SCCRC)
	binary.LittleEndian.PutUint32(b[4:8], s.SCTSTime)
	binary.LittleEndian.PutUint16(b[8:10], s.SCTSDate)
	return b
}

func scidFromBytes(b []byte) types.SCID {
	return types.SCID{
		SCCRC:    binary.LittleEndian.Uint32(b[0:4]),
		SCTSTime: binary.LittleEndian.Uint32(b[4:8]),
		SCTSDate: binary.LittleEndian.Uint16(b[8:10]),
	}
}

// Init restores every attribute through the NV-restore callback. Per §4.A,
// any restore failure should cause the caller's self-test event to become
// "failed"; Init reports that via its bool return rather than reaching
// into the supervisor directly, keeping the store decoupled from §4.H.
func (s *Store) Init() (ok bool) {
	ok = true

	if data, restored := s.app.NVRestore(callback.StorageTUNIDList); restored && len(data) == s.ports*types.UNIDWireSize {
		for i := 0; i < s.ports; i++ {
			s.tunid[i] = unidFromBytes(data[i*types.UNIDWireSize:])
		}
	} else {
		ok = false
	}

	if data, restored := s.app.NVRestore(callback.StorageCFUNID); restored && len(data) == types.UNIDWireSize {
		s.cfunid = unidFromBytes(data)
	} else {
		ok = false
	}

	if data, restored := s.app.NVRestore(callback.StorageOCPUNIDTable); restored && len(data) == len(s.ocpunid)*types.UNIDWireSize {
		for i := range s.ocpunid {
			s.ocpunid[i] = unidFromBytes(data[i*types.UNIDWireSize:])
		}
	} else {
		ok = false
	}

	if data, restored := s.app.NVRestore(callback.StorageSCID); restored && len(data) == 10 {
		s.scid = scidFromBytes(data)
	} else {
		ok = false
	}

	if !ok {
		s.log.Errorf("identity: NV restore failed for one or more attributes")
	}
	return ok
}

// SCID returns the currently applied configuration identifier.
func (s *Store) SCID() types.SCID { return s.scid }

// SCIDIsZero reports the device-unconfigured sentinel.
func (s *Store) SCIDIsZero() bool { return s.scid.Zero() }

// SCIDSet writes a new SCID through the NV-store callback; the in-memory
// copy is updated only on callback success.
func (s *Store) SCIDSet(sccrc, sctsTime uint32, sctsDate uint16) bool {
	next := types.SCID{SCCRC: sccrc, SCTSTime: sctsTime, SCTSDate: sctsDate}
	if !s.app.NVStore(callback.StorageSCID, scidToBytes(next)) {
		s.log.Errorf("identity: NV store failed for SCID")
		return false
	}
	s.scid = next
	return true
}

// TUNIDList returns the per-port TUNID list.
func (s *Store) TUNIDList() []types.UNID { return s.tunid }

// TUNIDListSet persists a new TUNID list and, on success, publishes each
// port's SNN to the transport layer.
func (s *Store) TUNIDListSet(list []types.UNID, publishSNN func(port int, snnTime uint32, snnDate uint16)) bool {
	if len(list) != s.ports {
		return false
	}
	b := make([]byte, 0, len(list)*types.UNIDWireSize)
	for _, u := range list {
		b = append(b, unidToBytes(u)...)
	}
	if !s.app.NVStore(callback.StorageTUNIDList, b) {
		s.log.Errorf("identity: NV store failed for TUNID list")
		return false
	}
	copy(s.tunid, list)
	if publishSNN != nil {
		for i, u := range s.tunid {
			publishSNN(i, u.SNNTime, u.SNNDate)
		}
	}
	return true
}

// CFUNID returns the configuration owner's UNID.
func (s *Store) CFUNID() types.UNID { return s.cfunid }

// CFUNIDSet persists a new configuration owner.
func (s *Store) CFUNIDSet(u types.UNID) bool {
	if !s.app.NVStore(callback.StorageCFUNID, unidToBytes(u)) {
		s.log.Errorf("identity: NV store failed for CFUNID")
		return false
	}
	s.cfunid = u
	return true
}

// OCPUNIDGet looks up the owner UNID for an output assembly instance.
func (s *Store) OCPUNIDGet(instance uint16) (types.UNID, error) {
	idx, ok := s.out.OutIndexFromInstance(instance)
	if !ok || idx < 0 || idx >= len(s.ocpunid) {
		return types.UNID{}, ErrInvalidIndex
	}
	return s.ocpunid[idx], nil
}

// OCPUNIDSet persists the owner UNID for an output assembly instance.
func (s *Store) OCPUNIDSet(instance uint16, u types.UNID) bool {
	idx, ok := s.out.OutIndexFromInstance(instance)
	if !ok || idx < 0 || idx >= len(s.ocpunid) {
		return false
	}
	snapshot := make([]types.UNID, len(s.ocpunid))
	copy(snapshot, s.ocpunid)
	snapshot[idx] = u

	b := make([]byte, 0, len(snapshot)*types.UNIDWireSize)
	for _, e := range snapshot {
		b = append(b, unidToBytes(e)...)
	}
	if !s.app.NVStore(callback.StorageOCPUNIDTable, b) {
		s.log.Errorf("identity: NV store failed for OCPUNID table, rolling back")
		return false
	}
	s.ocpunid = snapshot
	return true
}

// ProposeTUNID stages a proposed TUNID list ahead of Apply_TUNID.
func (s *Store) ProposeTUNID(list []types.UNID) {
	s.proposedTUNID = append([]types.UNID(nil), list...)
	s.proposedNumPorts = len(list)
}

// ProposedTUNID returns the currently staged proposal.
func (s *Store) ProposedTUNID() []types.UNID { return s.proposedTUNID }

// ClearProposedTUNID resets the volatile proposal buffer.
func (s *Store) ClearProposedTUNID() {
	s.proposedTUNID = nil
	s.proposedNumPorts = 0
}
