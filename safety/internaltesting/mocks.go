// Package internaltesting holds small hand-rolled fakes shared across the
// safety packages' test files, kept separate from production code the same
// way goeip keeps its protocol test fixtures out of the main packages.
package internaltesting

import (
	"github.com/iceisfun/cipsafety/safety/callback"
	"github.com/iceisfun/cipsafety/safety/identity"
	"github.com/iceisfun/cipsafety/safety/types"
)

// MemApp is an in-memory callback.SafetyApplication, backed by a map
// keyed on callback.StorageID, with optional per-key NVStore failure
// injection for exercising rollback paths.
type MemApp struct {
	Store map[callback.StorageID][]byte
	Fail  map[callback.StorageID]bool

	SafetyResetCalled bool
	SafetyResetStatus uint8
}

func NewMemApp() *MemApp {
	return &MemApp{Store: make(map[callback.StorageID][]byte), Fail: make(map[callback.StorageID]bool)}
}

func (a *MemApp) SelfTestResult() bool                       { return true }
func (a *MemApp) ErrorReport(code, instance, context uint32) {}
func (a *MemApp) SafetyOpenValidate(types.OpenParams, uint16) uint16 {
	return 0
}
func (a *MemApp) ApplyConfig([]byte) bool                      { return true }
func (a *MemApp) CompatibleKeyAccept(types.ElectronicKey) bool { return true }
func (a *MemApp) SafetyReset(resetType, attrBitmap uint8, password [16]byte, target types.UNID) uint8 {
	a.SafetyResetCalled = true
	return a.SafetyResetStatus
}
func (a *MemApp) ProfileDependentStateChange(uint8) {}
func (a *MemApp) IODataRxCallback(uint16, []byte)   {}
func (a *MemApp) DeviceStatusForValidator() uint8   { return 0 }

func (a *MemApp) NVStore(id callback.StorageID, data []byte) bool {
	if a.Fail[id] {
		return false
	}
	a.Store[id] = append([]byte(nil), data...)
	return true
}

func (a *MemApp) NVRestore(id callback.StorageID) ([]byte, bool) {
	d, ok := a.Store[id]
	return d, ok
}

// FixedResolver maps output-assembly instance IDs 0..n-1 straight to
// OCPUNID table indices of the same value.
type FixedResolver struct{ N int }

func (f FixedResolver) OutIndexFromInstance(instance uint16) (int, bool) {
	if int(instance) < f.N {
		return int(instance), true
	}
	return 0, false
}

// MockIdentity is a minimal in-memory stand-in for safety/identity's Store,
// implementing just the OCPUNIDStore surface sopen's validator needs.
// OCPUNIDGet/Set only recognise instances registered via RegisterOutput,
// matching the real store's resolver-backed ErrInvalidIndex behaviour: an
// unregistered instance is a structurally invalid connection point, while a
// registered-but-never-owned one reports the zero (unowned) UNID.
type MockIdentity struct {
	Cfunid   types.UNID
	Scid     types.SCID
	ScidZero bool
	Tunids   []types.UNID
	Ocpunid  map[uint16]types.UNID
	Valid    map[uint16]bool
}

func NewMockIdentity(tunids []types.UNID) *MockIdentity {
	return &MockIdentity{
		ScidZero: true,
		Tunids:   tunids,
		Ocpunid:  make(map[uint16]types.UNID),
		Valid:    make(map[uint16]bool),
	}
}

// RegisterOutput marks instance as a valid output connection point, owned by
// nobody until OCPUNIDSet is called for it.
func (m *MockIdentity) RegisterOutput(instance uint16) { m.Valid[instance] = true }

func (m *MockIdentity) CFUNID() types.UNID           { return m.Cfunid }
func (m *MockIdentity) CFUNIDSet(u types.UNID) bool  { m.Cfunid = u; return true }
func (m *MockIdentity) SCID() types.SCID             { return m.Scid }
func (m *MockIdentity) SCIDIsZero() bool             { return m.ScidZero }
func (m *MockIdentity) SCIDSet(sccrc, sctsTime uint32, sctsDate uint16) bool {
	m.Scid = types.SCID{SCCRC: sccrc, SCTSTime: sctsTime, SCTSDate: sctsDate}
	m.ScidZero = false
	return true
}
func (m *MockIdentity) OCPUNIDGet(instance uint16) (types.UNID, error) {
	if !m.Valid[instance] {
		return types.UNID{}, identity.ErrInvalidIndex
	}
	return m.Ocpunid[instance], nil
}
func (m *MockIdentity) OCPUNIDSet(instance uint16, u types.UNID) bool {
	if !m.Valid[instance] {
		return false
	}
	m.Ocpunid[instance] = u
	return true
}
func (m *MockIdentity) TUNIDList() []types.UNID { return m.Tunids }

// MockAssembly is a minimal stand-in for pkg/objects/assembly's
// AssemblyObject, implementing sopen's AssemblyLookup surface by instance
// number membership in the Inputs/Outputs sets.
type MockAssembly struct {
	Inputs  map[uint16]bool
	Outputs map[uint16]bool
}

func NewMockAssembly() *MockAssembly {
	return &MockAssembly{Inputs: make(map[uint16]bool), Outputs: make(map[uint16]bool)}
}

func (m *MockAssembly) Exists(instance uint16) bool   { return m.Inputs[instance] || m.Outputs[instance] }
func (m *MockAssembly) IsInput(instance uint16) bool  { return m.Inputs[instance] }
func (m *MockAssembly) IsOutput(instance uint16) bool { return m.Outputs[instance] }
