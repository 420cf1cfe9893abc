package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceisfun/cipsafety/internal"
)

func newMachine() *Machine {
	return New(internal.NopLogger(), Hooks{})
}

func TestNew_EntersSelfTesting(t *testing.T) {
	m := newMachine()
	assert.Equal(t, SelfTesting, m.State())
}

func TestSelfTestPass_RoutesByEntryConditions(t *testing.T) {
	tests := []struct {
		name  string
		entry SelfTestEntryInputs
		want  State
	}{
		{"no valid TUNID", SelfTestEntryInputs{HasValidTUNID: false}, WaitingForTUNID},
		{"TUNID/node mismatch", SelfTestEntryInputs{HasValidTUNID: true, TUNIDMatchesNodeID: false}, Abort},
		{"unconfigured", SelfTestEntryInputs{HasValidTUNID: true, TUNIDMatchesNodeID: true, SCIDIsZero: true}, Configuring},
		{"configured and ready", SelfTestEntryInputs{HasValidTUNID: true, TUNIDMatchesNodeID: true, SCIDIsZero: false}, Idle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine()
			ok := m.HandleEvent(SelfTestPass, tt.entry)
			require.True(t, ok)
			assert.Equal(t, tt.want, m.State())
		})
	}
}

func TestSelfTestFail_EntersException(t *testing.T) {
	m := newMachine()
	ok := m.HandleEvent(SelfTestFail, SelfTestEntryInputs{})
	require.True(t, ok)
	assert.Equal(t, SelfTestException, m.State())
}

func TestCriticalFault_IsTerminalAndDropsConnections(t *testing.T) {
	dropped := false
	m := New(internal.NopLogger(), Hooks{DropAllConns: func() { dropped = true }})
	m.HandleEvent(SelfTestPass, SelfTestEntryInputs{HasValidTUNID: true, TUNIDMatchesNodeID: true})
	require.Equal(t, Idle, m.State())

	ok := m.HandleEvent(EvCriticalFault, SelfTestEntryInputs{})
	require.True(t, ok)
	assert.Equal(t, CriticalFault, m.State())
	assert.True(t, dropped)

	// CriticalFault only accepts EvCriticalFault (ignored) and SCnxnDelOrFail.
	assert.False(t, m.HandleEvent(FwdOpenReq, SelfTestEntryInputs{}))
	assert.Equal(t, CriticalFault, m.State())
}

func TestExecuting_T1SafetyOpenDropsAllAndEntersConfiguring(t *testing.T) {
	dropped := false
	m := New(internal.NopLogger(), Hooks{DropAllConns: func() { dropped = true }})
	m.HandleEvent(SelfTestPass, SelfTestEntryInputs{HasValidTUNID: true, TUNIDMatchesNodeID: true})
	require.True(t, m.HandleEvent(ModeChangeExecuting, SelfTestEntryInputs{}))
	require.Equal(t, Executing, m.State())

	require.True(t, m.HandleEvent(T1SafetyOpen, SelfTestEntryInputs{}))
	assert.Equal(t, Configuring, m.State())
	assert.True(t, dropped)
}

func TestWaitingForTUNID_ApplyTUNIDEntersConfiguring(t *testing.T) {
	m := newMachine()
	m.HandleEvent(SelfTestPass, SelfTestEntryInputs{HasValidTUNID: false})
	require.Equal(t, WaitingForTUNID, m.State())

	require.True(t, m.HandleEvent(ApplyTUNID, SelfTestEntryInputs{}))
	assert.Equal(t, Configuring, m.State())
}

func TestHandleEvent_RejectsIllegalTransition(t *testing.T) {
	m := newMachine() // SelfTesting
	assert.False(t, m.HandleEvent(ApplyTUNID, SelfTestEntryInputs{}))
	assert.Equal(t, SelfTesting, m.State())
}
