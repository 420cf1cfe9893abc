package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceisfun/cipsafety/safety/types"
)

func TestMemoryService_AllocateAndFind(t *testing.T) {
	s := NewMemoryService()
	triad := types.Triad{ConnSerial: 1, OrigVendor: 2, OrigSerial: 3}

	inst, ok := s.Allocate(triad, types.RoleServer)
	require.True(t, ok)
	require.NotNil(t, inst)

	found, ok := s.FindByTriad(triad)
	require.True(t, ok)
	assert.Equal(t, inst.ID, found.ID)
}

func TestMemoryService_ReopenFaultedInstance(t *testing.T) {
	s := NewMemoryService()
	triad := types.Triad{ConnSerial: 1, OrigVendor: 2, OrigSerial: 3}

	first, _ := s.Allocate(triad, types.RoleServer)
	s.Fault(first.ID)

	second, ok := s.Allocate(triad, types.RoleServer)
	require.True(t, ok)
	assert.Equal(t, first.ID, second.ID, "reopening a Faulted instance should reuse its ID")
	assert.Equal(t, StateIdle, second.State)
}

func TestMemoryService_Close(t *testing.T) {
	s := NewMemoryService()
	triad := types.Triad{ConnSerial: 1, OrigVendor: 2, OrigSerial: 3}
	inst, _ := s.Allocate(triad, types.RoleServer)

	s.Close(inst.ID)
	_, ok := s.FindByTriad(triad)
	assert.False(t, ok)
}

func TestMemoryService_DropAll(t *testing.T) {
	s := NewMemoryService()
	t1 := types.Triad{ConnSerial: 1}
	t2 := types.Triad{ConnSerial: 2}
	s.Allocate(t1, types.RoleServer)
	s.Allocate(t2, types.RoleClient)

	s.DropAll()
	_, ok1 := s.FindByTriad(t1)
	_, ok2 := s.FindByTriad(t2)
	assert.False(t, ok1)
	assert.False(t, ok2)
}

func TestMemoryService_TargetInit(t *testing.T) {
	s := NewMemoryService()
	triad := types.Triad{ConnSerial: 1}
	inst, _ := s.Allocate(triad, types.RoleServer)

	ok := s.TargetInit(inst.ID, TargetInitParams{Triad: triad, ConsumerNum: 1})
	require.True(t, ok)

	found, _ := s.FindByTriad(triad)
	assert.Equal(t, StateEstablished, found.State)
}
