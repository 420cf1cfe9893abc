// Package validator defines the external Safety Validator instance
// allocator/registry the core consults during SafetyOpen commit (§4.F.14c/d)
// and SafetyClose (§4.G). The actual producing/consuming engines that run
// on an EPI schedule are out of scope (§1); this package only allocates,
// parameterises, and tracks instance lifecycle state, adapted from
// pkg/objects/connmgr's Connection-Manager registry (mutex-guarded map
// keyed by an allocated ID, a monotonic ID counter) repurposed from a
// generic CIP connection table to per-triad Safety Validator bookkeeping.
package validator

import (
	"sync"

	"github.com/iceisfun/cipsafety/safety/types"
)

// InstanceState is the lifecycle state of a Safety Validator instance.
type InstanceState uint8

const (
	StateIdle InstanceState = iota
	StateEstablished
	StateFaulted
)

// TargetInitParams is the parameter set a Safety Validator instance is
// initialised with once a SafetyOpen has passed every check (§4.F.14d).
type TargetInitParams struct {
	Triad          types.Triad
	ConsumerNum    uint8
	PayloadSize    uint16
	RPIOT          uint32
	RPITO          uint32
	Role           types.ConnectionRole
	Format         types.FormatTag
	TimeoutMult    uint8
	PingIntervalEPIMult uint16
}

// Instance is one allocated Safety Validator.
type Instance struct {
	ID    uint32
	Triad types.Triad
	Role  types.ConnectionRole
	State InstanceState

	InitialTimestamp uint16
	InitialRollover  uint16
}

// Service is the allocator/registry interface the sopen/sclose packages
// depend on, kept abstract so a real implementation backed by actual
// producing/consuming engines can replace MemoryService without touching
// the validator-facing code in safety/sopen.
type Service interface {
	// FindByTriad returns the instance matching triad, if any.
	FindByTriad(triad types.Triad) (*Instance, bool)
	// Allocate reserves a new instance for triad/role, or reinitialises a
	// Faulted instance matching the same triad. Returns false on
	// allocation failure (§4.F.14c, CNXN_ALLOC).
	Allocate(triad types.Triad, role types.ConnectionRole) (*Instance, bool)
	// TargetInit parameterises an allocated instance; false on failure
	// (§4.F.14d, MISCELLANEOUS).
	TargetInit(id uint32, params TargetInitParams) bool
	// Close tears down one instance (SafetyClose).
	Close(id uint32)
	// Fault transitions an instance to Faulted without removing it,
	// permitting a later reopen (§3 "unless that instance is in the
	// Faulted state").
	Fault(id uint32)
	// DropAll closes every instance, used by the supervisor's drop-all
	// hook on entering CriticalFault and on T1SafetyOpen in Executing.
	DropAll()
}

// MemoryService is an in-process reference implementation of Service.
type MemoryService struct {
	mu        sync.Mutex
	instances map[uint32]*Instance
	byTriad   map[types.Triad]uint32
	nextID    uint32
}

// NewMemoryService constructs an empty registry.
func NewMemoryService() *MemoryService {
	return &MemoryService{
		instances: make(map[uint32]*Instance),
		byTriad:   make(map[types.Triad]uint32),
		nextID:    1,
	}
}

func (s *MemoryService) FindByTriad(triad types.Triad) (*Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byTriad[triad]
	if !ok {
		return nil, false
	}
	inst := s.instances[id]
	return inst, inst != nil
}

func (s *MemoryService) Allocate(triad types.Triad, role types.ConnectionRole) (*Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byTriad[triad]; ok {
		if inst, ok := s.instances[id]; ok && inst.State == StateFaulted {
			inst.State = StateIdle
			inst.Role = role
			return inst, true
		}
	}

	id := s.nextID
	s.nextID++
	inst := &Instance{ID: id, Triad: triad, Role: role, State: StateIdle}
	s.instances[id] = inst
	s.byTriad[triad] = id
	return inst, true
}

func (s *MemoryService) TargetInit(id uint32, params TargetInitParams) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return false
	}
	inst.State = StateEstablished
	return true
}

func (s *MemoryService) Close(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return
	}
	delete(s.instances, id)
	delete(s.byTriad, inst.Triad)
}

func (s *MemoryService) Fault(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst, ok := s.instances[id]; ok {
		inst.State = StateFaulted
	}
}

func (s *MemoryService) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances = make(map[uint32]*Instance)
	s.byTriad = make(map[types.Triad]uint32)
}
