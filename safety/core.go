// Package safety wires the Safety Supervisor, Safety Validator,
// identity store, and explicit-message dispatcher into a single core
// object that drives the §6 command channel, matching how pkg/eip's
// server used to glue MessageRouter + transport + object registrations
// together — generalised here to the safety domain and the new
// safety/transport command channel instead of full EtherNet/IP framing.
package safety

import (
	"fmt"

	"github.com/iceisfun/cipsafety/internal"
	"github.com/iceisfun/cipsafety/pkg/objects/assembly"
	"github.com/iceisfun/cipsafety/safety/callback"
	"github.com/iceisfun/cipsafety/safety/elkey"
	"github.com/iceisfun/cipsafety/safety/identity"
	"github.com/iceisfun/cipsafety/safety/sclose"
	"github.com/iceisfun/cipsafety/safety/service"
	"github.com/iceisfun/cipsafety/safety/sopen"
	"github.com/iceisfun/cipsafety/safety/supervisor"
	"github.com/iceisfun/cipsafety/safety/transport"
	"github.com/iceisfun/cipsafety/safety/types"
	"github.com/iceisfun/cipsafety/safety/unid"
	"github.com/iceisfun/cipsafety/safety/validator"
)

// Config is the construction-time device profile (§A.3): port topology,
// identity, and the timing/format bounds the validator enforces.
type Config struct {
	Ports   int
	NodeIDs []uint32
	Mode    types.PortMode

	OwnKey elkeyIdentity

	SupportsExtended bool

	// MaxTcoomMinMult / MaxNteMult are device-profile-dependent timing
	// bounds (§4.F.8); 80 and 6000 are the conventional defaults used by
	// reference CIP Safety target stacks absent a tighter profile limit.
	MaxTcoomMinMult uint16
	MaxNteMult      uint16

	OutputConnectionCount int
}

// elkeyIdentity avoids an import of safety/elkey just for the Config type;
// it is structurally identical to elkey.Identity and converted at Core
// construction.
type elkeyIdentity struct {
	VendorID    uint16
	DeviceType  uint16
	ProductCode uint16
	MajorRev    uint8
	MinorRev    uint8
}

// Core is the assembled safety-target runtime: one instance per device.
type Core struct {
	log internal.Logger

	cfg Config

	Supervisor *supervisor.Machine
	Identity   *identity.Store
	Validator  *validator.MemoryService
	Assembly   *assembly.AssemblyObject
	Service    *service.Dispatcher

	app  callback.SafetyApplication
	sink transport.Sink
}

// New constructs a Core wiring every package above to the given
// application callbacks, assembly object, and outbound command-channel
// sink.
func New(log internal.Logger, cfg Config, app callback.SafetyApplication, asm *assembly.AssemblyObject, sink transport.Sink) *Core {
	if log == nil {
		log = internal.NopLogger()
	}

	asm.SetIODataRxCallback(app.IODataRxCallback)

	idStore := identity.New(log, app, asm, cfg.Ports, cfg.OutputConnectionCount)
	idStore.Init()

	val := validator.NewMemoryService()

	hooks := supervisor.Hooks{
		SetNetworkLED: func(p supervisor.LEDPattern) {},
		SetModuleLED:  func(p supervisor.LEDPattern) {},
		EmitDevState: func(s supervisor.State) {
			if s == supervisor.Configuring {
				idStore.SCIDSet(0, 0, 0)
			}
			if sink == nil {
				return
			}
			sink.Put(transport.Message{
				Header: transport.Header{Cmd: transport.CmdDevState},
				Data:   []byte{uint8(s)},
			})
			app.ProfileDependentStateChange(uint8(s))
		},
		DropAllConns: func() { val.DropAll() },
	}
	sup := supervisor.New(log, hooks)

	dispatcher := &service.Dispatcher{
		Supervisor: sup,
		Identity:   idStore,
		App:        app,
		Mode:       cfg.Mode,
		PublishSNN: func(port int, snnTime uint32, snnDate uint16) {
			if sink == nil {
				return
			}
			data := make([]byte, 7)
			data[0] = byte(port)
			putU32(data[1:5], snnTime)
			putU16(data[5:7], snnDate)
			sink.Put(transport.Message{Header: transport.Header{Cmd: transport.CmdSNN}, Data: data})
		},
	}

	return &Core{
		log:        log,
		cfg:        cfg,
		Supervisor: sup,
		Identity:   idStore,
		Validator:  val,
		Assembly:   asm,
		Service:    dispatcher,
		app:        app,
		sink:       sink,
	}
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

// RunSelfTest executes the self-test entry sequence (§4.H SelfTesting row)
// and drives the supervisor to its resulting state.
func (c *Core) RunSelfTest() {
	pass := c.app.SelfTestResult()
	if !pass {
		c.Supervisor.HandleEvent(supervisor.SelfTestFail, supervisor.SelfTestEntryInputs{})
		return
	}
	tunids := c.Identity.TUNIDList()
	entry := supervisor.SelfTestEntryInputs{
		HasValidTUNID:      unid.DeviceHasValidTUNID(tunids),
		TUNIDMatchesNodeID: unid.TunidVsNodeIDCheck(tunids, c.cfg.NodeIDs),
		SCIDIsZero:         c.Identity.SCIDIsZero(),
	}
	c.Supervisor.HandleEvent(supervisor.SelfTestPass, entry)
}

// Run reads command-channel messages from source until it returns an
// error (typically transport.ErrClosed on shutdown), dispatching each one.
// Per §5, this is the single core processing thread; Dispatch and
// everything it touches assume no concurrent caller.
func (c *Core) Run(source transport.Source) error {
	for {
		msg, err := source.Next()
		if err != nil {
			return err
		}
		if err := c.Dispatch(msg); err != nil {
			c.log.Warnf("safety: dispatch error: %v", err)
		}
	}
}

// Dispatch handles one inbound command-channel message (§6): SafetyOpen and
// SafetyClose requests are routed to sopen/sclose; anything else is an
// external-collaborator concern (explicit messaging over the
// message-router path) and is out of Core's scope.
func (c *Core) Dispatch(msg transport.Message) error {
	switch msg.Header.Cmd {
	case transport.CmdSOpenReq:
		return c.handleSOpenReq(msg.Data)
	case transport.CmdSCloseReq:
		return c.handleSCloseReq(msg.Data)
	default:
		return fmt.Errorf("safety: unhandled command channel message %s", msg.Header.Cmd)
	}
}

func (c *Core) handleSOpenReq(data []byte) error {
	p, aux, perr, ok := sopen.Parse(data, c.cfg.SupportsExtended)
	if !ok {
		c.log.Warnf("safety: SafetyOpen parse failed: %s", perr)
		return c.sendSOpenError(sopen.Result{GenStatus: 0x01, ExtStatus: types.ExtMiscellaneous})
	}

	deps := sopen.Deps{
		Supervisor:  c.Supervisor,
		Identity:    c.Identity,
		Assembly:    c.Assembly,
		Validator:   c.Validator,
		OurKey:      elkey.Identity(c.cfg.OwnKey),
		CompatKey:   c.app.CompatibleKeyAccept,
		ApplyConfig: c.app.ApplyConfig,
		AppVeto:     c.app.SafetyOpenValidate,
		MultiPort:   c.cfg.Mode == types.PortModeMulti,

		MaxTcoomMinMult: c.cfg.MaxTcoomMinMult,
		MaxNteMult:      c.cfg.MaxNteMult,
	}

	result := sopen.Validate(data, p, aux, deps)
	if result.Accepted {
		result = sopen.Commit(p, deps)
	}
	if !result.Accepted {
		return c.sendSOpenError(result)
	}

	body := sopen.EncodeSuccess(p, result.InstanceID, result.InstanceID, p.RPIOT, p.RPITO)
	return c.sink.Put(transport.Message{Header: transport.Header{Cmd: transport.CmdSOpenRes}, Data: body})
}

func (c *Core) sendSOpenError(r sopen.Result) error {
	if c.sink == nil {
		return nil
	}
	return c.sink.Put(transport.Message{Header: transport.Header{Cmd: transport.CmdSOpenRes}, Data: sopen.EncodeError(r)})
}

func (c *Core) handleSCloseReq(data []byte) error {
	req, ok := sclose.Parse(data)
	if !ok {
		return c.sink.Put(transport.Message{
			Header: transport.Header{Cmd: transport.CmdSCloseRes},
			Data:   sclose.EncodeError(sclose.Result{GenStatus: 0x01, ExtStatus: types.ExtCnxnNotFound}),
		})
	}
	result := sclose.Handle(req, c.Validator)
	var body []byte
	if result.Accepted {
		body = sclose.EncodeSuccess(req.Triad)
	} else {
		body = sclose.EncodeError(result)
	}
	return c.sink.Put(transport.Message{Header: transport.Header{Cmd: transport.CmdSCloseRes}, Data: body})
}
