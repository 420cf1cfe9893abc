package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceisfun/cipsafety/pkg/cip"
	"github.com/iceisfun/cipsafety/safety/identity"
	"github.com/iceisfun/cipsafety/safety/internaltesting"
	"github.com/iceisfun/cipsafety/safety/supervisor"
	"github.com/iceisfun/cipsafety/safety/types"
)

func attrPath(id cip.UINT) cip.Path {
	var p cip.Path
	p.AddAttribute(id)
	return p
}

func newDispatcher(mode types.PortMode, ports int) (*Dispatcher, *internaltesting.MemApp) {
	app := internaltesting.NewMemApp()
	sup := supervisor.New(nil, supervisor.Hooks{})
	store := identity.New(nil, app, internaltesting.FixedResolver{N: 1}, ports, 1)
	return &Dispatcher{
		Supervisor: sup,
		Identity:   store,
		App:        app,
		Mode:       mode,
	}, app
}

func TestGetAttr_DeviceStatus(t *testing.T) {
	d, _ := newDispatcher(types.PortModeSingle, 1)
	out, err := d.HandleRequest(cip.ServiceGetAttributeSingle, attrPath(AttrDeviceStatus), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{uint8(supervisor.SelfTesting)}, out)
}

func TestGetAttr_TUNID_WrongModeRejected(t *testing.T) {
	d, _ := newDispatcher(types.PortModeMulti, 2)
	_, err := d.HandleRequest(cip.ServiceGetAttributeSingle, attrPath(AttrTUNID), nil)
	require.Error(t, err)
	cerr, ok := err.(cip.Error)
	require.True(t, ok)
	assert.Equal(t, cip.StatusAttributeNotSupported, cerr.Status)
}

func TestSetAttr_AlarmEnable(t *testing.T) {
	d, _ := newDispatcher(types.PortModeSingle, 1)
	_, err := d.HandleRequest(cip.ServiceSetAttributeSingle, attrPath(AttrAlarmEnable), []byte{1})
	require.NoError(t, err)
	assert.True(t, d.Supervisor.AlarmEnable())
}

func TestSetAttr_Unsettable(t *testing.T) {
	d, _ := newDispatcher(types.PortModeSingle, 1)
	_, err := d.HandleRequest(cip.ServiceSetAttributeSingle, attrPath(AttrDeviceStatus), []byte{1})
	require.Error(t, err)
	cerr := err.(cip.Error)
	assert.Equal(t, cip.StatusAttributeNotSettable, cerr.Status)
}

func TestProposeAndApplyTUNID_SinglePort(t *testing.T) {
	d, _ := newDispatcher(types.PortModeSingle, 1)
	ok := d.Supervisor.HandleEvent(supervisor.SelfTestPass, supervisor.SelfTestEntryInputs{HasValidTUNID: false})
	require.True(t, ok)
	require.Equal(t, supervisor.WaitingForTUNID, d.Supervisor.State())

	proposed := unidBytes(types.UNID{SNNTime: 1, SNNDate: 1, NodeID: 1})
	_, err := d.HandleRequest(ServiceProposeTUNID, cip.Path{}, proposed)
	require.NoError(t, err)

	_, err = d.HandleRequest(ServiceApplyTUNID, cip.Path{}, nil)
	require.NoError(t, err)

	assert.Equal(t, supervisor.Configuring, d.Supervisor.State())
	assert.Equal(t, []types.UNID{{SNNTime: 1, SNNDate: 1, NodeID: 1}}, d.Identity.TUNIDList())
}

func TestProposeTUNID_RejectsListVariantInSingleMode(t *testing.T) {
	d, _ := newDispatcher(types.PortModeSingle, 1)
	d.Supervisor.HandleEvent(supervisor.SelfTestPass, supervisor.SelfTestEntryInputs{HasValidTUNID: false})

	_, err := d.HandleRequest(ServiceProposeTUNIDList, cip.Path{}, []byte{0})
	require.Error(t, err)
	cerr := err.(cip.Error)
	assert.Equal(t, cip.StatusServiceNotSupported, cerr.Status)
}

func TestSafetyReset_DelegatesToApp(t *testing.T) {
	d, app := newDispatcher(types.PortModeSingle, 1)
	app.SafetyResetStatus = 0

	data := append([]byte{0x01, 0x00}, make([]byte, 16+types.UNIDWireSize)...)
	_, err := d.HandleRequest(ServiceSafetyReset, cip.Path{}, data)
	require.NoError(t, err)
	assert.True(t, app.SafetyResetCalled)
}
