// Package supervisor implements the Safety Supervisor's 8-state machine
// (spec component H / §4.H), grounded on IXSSOstate.c's IXSSO_StateMachine
// dispatcher: one handler function per current state, switching on the
// incoming event.
package supervisor

import (
	"github.com/iceisfun/cipsafety/internal"
)

// State is one of the eight Safety Supervisor states.
type State uint8

const (
	SelfTesting State = iota
	Idle
	SelfTestException
	Executing
	Abort
	CriticalFault
	Configuring
	WaitingForTUNID
)

func (s State) String() string {
	switch s {
	case SelfTesting:
		return "SelfTesting"
	case Idle:
		return "Idle"
	case SelfTestException:
		return "SelfTestException"
	case Executing:
		return "Executing"
	case Abort:
		return "Abort"
	case CriticalFault:
		return "CriticalFault"
	case Configuring:
		return "Configuring"
	case WaitingForTUNID:
		return "WaitingForTUNID"
	default:
		return "Unknown"
	}
}

// Event is one of the events the supervisor processes.
type Event uint8

const (
	SelfTestPass Event = iota
	SelfTestFail
	ExConditionCleared
	EvCriticalFault
	InternalAbort
	FwdOpenReq
	T1SafetyOpen
	ProposeTUNID
	ApplyTUNID
	ApplyReq
	ModeChangeIdle
	ModeChangeExecuting
	SCnxnEstab
	SCnxnDelOrFail
)

// LEDPattern is a module/network status indicator pattern.
type LEDPattern uint8

const (
	LEDOff LEDPattern = iota
	LEDGreen
	LEDRed
	LEDFlashGreen
	LEDFlashRed
	LEDFlashRedGreen
)

var statePattern = map[State]LEDPattern{
	SelfTesting:        LEDFlashRedGreen,
	Idle:               LEDFlashGreen,
	SelfTestException:  LEDFlashRed,
	Executing:          LEDGreen,
	Abort:              LEDFlashRed,
	CriticalFault:      LEDRed,
	Configuring:        LEDFlashRedGreen,
	WaitingForTUNID:    LEDFlashRedGreen,
}

// SelfTestEntryInputs are the facts consulted by the SelfTestPass entry
// branch (§4.H): "if device lacks a valid TUNID → WaitingForTUNID; else if
// TUNID does not match NodeID → Abort; else if SCID is zero → Configuring;
// else → Idle."
type SelfTestEntryInputs struct {
	HasValidTUNID     bool
	TUNIDMatchesNodeID bool
	SCIDIsZero        bool
}

// Hooks lets the supervisor drive its side effects (LED, transport,
// validator drop-all) without importing those packages directly, avoiding
// an import cycle with safety/validator and safety/transport.
type Hooks struct {
	SetModuleLED  func(LEDPattern)
	SetNetworkLED func(LEDPattern)
	EmitDevState  func(State)
	DropAllConns  func()
	RestartSelfTest func()
}

// Machine is the supervisor state machine instance.
type Machine struct {
	log   internal.Logger
	hooks Hooks
	state State

	exceptionDetail uint8
	alarmEnable     bool
	warningEnable   bool
}

// New constructs a Machine in the initial SelfTesting state.
func New(log internal.Logger, hooks Hooks) *Machine {
	if log == nil {
		log = internal.NopLogger()
	}
	m := &Machine{log: log, hooks: hooks, state: SelfTesting}
	m.enter(SelfTesting)
	return m
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// ExceptionDetail returns the exception-detail byte last set through
// SetExceptionDetail; entering SelfTestException does not change it.
func (m *Machine) ExceptionDetail() uint8 { return m.exceptionDetail }

func (m *Machine) enter(s State) {
	prev := m.state
	m.state = s
	if pattern, ok := statePattern[s]; ok && m.hooks.SetModuleLED != nil {
		m.hooks.SetModuleLED(pattern)
	}
	if s == Configuring {
		// SCID ← zero is sequenced through the identity store by the
		// caller (core.go's EmitDevState hook), not here; the supervisor
		// only marks the transition.
	}
	if s == CriticalFault && m.hooks.DropAllConns != nil {
		m.hooks.DropAllConns()
	}
	if m.hooks.EmitDevState != nil {
		m.hooks.EmitDevState(s)
	}
	m.log.Infof("supervisor: %s -> %s", prev, s)
}

// HandleEvent dispatches ev to the handler for the current state, mirroring
// IXSSO_StateMachine's per-state switch. accepted reports whether the event
// was a legal transition/action in this state (a rejection the validator
// or dispatcher should translate to a CIP status); programming-error
// events ("⊥" in the table) also return accepted=false — callers must
// never issue them from reachable code paths.
func (m *Machine) HandleEvent(ev Event, entry SelfTestEntryInputs) (accepted bool) {
	switch m.state {
	case SelfTesting:
		return m.selfTesting(ev, entry)
	case Idle:
		return m.idle(ev)
	case SelfTestException:
		return m.selfTestException(ev)
	case Executing:
		return m.executing(ev)
	case Abort:
		return m.abort(ev)
	case CriticalFault:
		return m.criticalFault(ev)
	case Configuring:
		return m.configuring(ev)
	case WaitingForTUNID:
		return m.waitingForTUNID(ev)
	default:
		return false
	}
}

func (m *Machine) selfTesting(ev Event, entry SelfTestEntryInputs) bool {
	switch ev {
	case SelfTestPass:
		switch {
		case !entry.HasValidTUNID:
			m.enter(WaitingForTUNID)
		case !entry.TUNIDMatchesNodeID:
			m.enter(Abort)
		case entry.SCIDIsZero:
			m.enter(Configuring)
		default:
			m.enter(Idle)
		}
		return true
	case SelfTestFail:
		m.enter(SelfTestException)
		return true
	case EvCriticalFault:
		m.enter(CriticalFault)
		return true
	case ExConditionCleared, SCnxnDelOrFail:
		return true // ignored ("—")
	default:
		return false // reject / programming error
	}
}

func (m *Machine) idle(ev Event) bool {
	switch ev {
	case EvCriticalFault:
		m.enter(CriticalFault)
		return true
	case InternalAbort:
		m.enter(Abort)
		return true
	case FwdOpenReq:
		return true // accept
	case T1SafetyOpen:
		m.enter(Configuring)
		return true
	case ModeChangeExecuting:
		m.enter(Executing)
		return true
	case ModeChangeIdle:
		return true // already in state
	case ExConditionCleared, SCnxnEstab, SCnxnDelOrFail:
		return true // application decides / ignored
	default:
		return false
	}
}

func (m *Machine) selfTestException(ev Event) bool {
	switch ev {
	case ExConditionCleared:
		if m.hooks.RestartSelfTest != nil {
			m.hooks.RestartSelfTest()
		}
		m.enter(SelfTesting)
		return true
	case EvCriticalFault:
		m.enter(CriticalFault)
		return true
	default:
		return false
	}
}

func (m *Machine) executing(ev Event) bool {
	switch ev {
	case EvCriticalFault:
		m.enter(CriticalFault)
		return true
	case InternalAbort:
		m.enter(Abort)
		return true
	case FwdOpenReq:
		return true
	case T1SafetyOpen:
		// drop-all connections then Configuring.
		if m.hooks.DropAllConns != nil {
			m.hooks.DropAllConns()
		}
		m.enter(Configuring)
		return true
	case ModeChangeIdle:
		m.enter(Idle)
		return true
	case ModeChangeExecuting:
		return true
	case ExConditionCleared, SCnxnEstab, SCnxnDelOrFail:
		return true
	default:
		return false
	}
}

func (m *Machine) abort(ev Event) bool {
	switch ev {
	case EvCriticalFault:
		m.enter(CriticalFault)
		return true
	case InternalAbort:
		return true // already in state
	case SCnxnDelOrFail:
		return true // accept
	case ExConditionCleared:
		return true // ignored
	default:
		return false
	}
}

func (m *Machine) criticalFault(ev Event) bool {
	switch ev {
	case EvCriticalFault:
		return true // ignored, already terminal
	case SCnxnDelOrFail:
		return true // pre-existing connections drain
	default:
		return false
	}
}

func (m *Machine) configuring(ev Event) bool {
	switch ev {
	case EvCriticalFault:
		m.enter(CriticalFault)
		return true
	case InternalAbort:
		m.enter(Abort)
		return true
	case FwdOpenReq:
		return true
	case ApplyReq:
		m.enter(Idle)
		return true
	case ExConditionCleared, SCnxnDelOrFail:
		return true
	default:
		return false
	}
}

func (m *Machine) waitingForTUNID(ev Event) bool {
	switch ev {
	case EvCriticalFault:
		m.enter(CriticalFault)
		return true
	case InternalAbort:
		m.enter(Abort)
		return true
	case ProposeTUNID:
		if m.hooks.SetNetworkLED != nil {
			m.hooks.SetNetworkLED(LEDFlashRedGreen)
		}
		return true
	case ApplyTUNID:
		m.enter(Configuring)
		return true
	case ExConditionCleared:
		return true
	default:
		return false
	}
}

// SetExceptionDetail latches the exception-detail byte returned by
// ExceptionDetail (IXSSOstate.c tracks an exception-status/detail pair
// alongside the state). No state transition calls it.
func (m *Machine) SetExceptionDetail(detail uint8) {
	m.exceptionDetail = detail
}

// AlarmEnable / WarningEnable are the auxiliary Get/Set-able attributes
// named in §3; the dispatcher (safety/service) exposes these through
// Get/Set_Attribute_Single.
func (m *Machine) AlarmEnable() bool       { return m.alarmEnable }
func (m *Machine) SetAlarmEnable(v bool)   { m.alarmEnable = v }
func (m *Machine) WarningEnable() bool     { return m.warningEnable }
func (m *Machine) SetWarningEnable(v bool) { m.warningEnable = v }
