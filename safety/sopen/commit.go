// commit.go implements §4.F checks 10-15: config application through
// commit/response assembly, the IXSCEsop2.c "part 2" half of SafetyOpen
// handling.
package sopen

import (
	"errors"

	"github.com/iceisfun/cipsafety/safety/crc"
	"github.com/iceisfun/cipsafety/safety/identity"
	"github.com/iceisfun/cipsafety/safety/types"
	"github.com/iceisfun/cipsafety/safety/validator"
)

// Commit runs checks 10-15 against a request that has already passed
// Validate, and on success allocates/initialises the Safety Validator
// instance and returns the fields the response assembler needs.
func Commit(p types.OpenParams, d Deps) Result {
	// Validate fills in Role and PayloadSize on its own copy of p; derive
	// them the same way for this copy.
	p.Role = types.RoleServer
	if p.TransportTrigger == transportClientClass0 {
		p.Role = types.RoleClient
	}
	sizeField := p.NetParamsOT
	if p.Role == types.RoleClient {
		sizeField = p.NetParamsTO
	}
	p.PayloadSize, _ = connectionSizeCheck(sizeField, isMulticast(p.NetParamsTO))

	// 10. Config application (Type 1: ConfigInstance != 0, carries data).
	if p.ConfigInstance != 0 {
		sccrc := crc.S4(p.ConfigData)
		if sccrc != p.Safety.SCIDEcho.SCCRC {
			return reject(types.ExtSCID)
		}
		if d.ApplyConfig != nil && !d.ApplyConfig(p.ConfigData) {
			return reject(types.ExtMiscellaneous)
		}

		// CFUNID ownership (§4.F.10): unowned accepts the new owner, an
		// all-FF CFUNID means the configuration tool owns the device and
		// SafetyOpen reconfiguration is not allowed, otherwise the
		// requesting originator must already be the owner.
		cfunid := d.Identity.CFUNID()
		switch {
		case cfunid.Zero():
			// unowned: accept, becomes the new configuration owner below.
		case cfunid.AllFF():
			return reject(types.ExtCfgOpNotAllowed)
		case cfunid != p.Safety.OUNID:
			return reject(types.ExtOUNIDCfg)
		}

		if !d.Identity.SCIDSet(sccrc, p.Safety.SCIDEcho.SCTSTime, p.Safety.SCIDEcho.SCTSDate) {
			return reject(types.ExtMiscellaneous)
		}
		if !d.Identity.CFUNIDSet(p.Safety.OUNID) {
			return reject(types.ExtMiscellaneous)
		}
	} else {
		// 11. Config SCID (Type 2: must match device's existing config).
		if d.Identity.SCIDIsZero() {
			return reject(types.ExtDevNotCfg)
		}
		if !p.Safety.SCIDEcho.Zero() && !p.Safety.SCIDEcho.Equal(d.Identity.SCID()) {
			return reject(types.ExtSCID)
		}
	}

	// 12. Output-connection ownership: an output (consuming) connection's
	// OUNID must match either CFUNID or the unowned sentinel.
	if p.Role == types.RoleServer {
		cfunid := d.Identity.CFUNID()
		if !p.Safety.OUNID.Zero() && !cfunid.Zero() && cfunid != p.Safety.OUNID {
			return reject(types.ExtOUNIDOut)
		}
		existing, err := d.Identity.OCPUNIDGet(p.ConsumingInstance)
		switch {
		case errors.Is(err, identity.ErrInvalidIndex):
			return reject(types.ExtConsPath)
		case err == nil:
			if !existing.Zero() && existing != p.Safety.OUNID {
				return reject(types.ExtOUNIDOut)
			}
		}
	}

	// 13. Application veto: the safety application gets final say (§4.F.13).
	if d.AppVeto != nil {
		if extStatus := d.AppVeto(p, p.PayloadSize); extStatus != 0 {
			return reject(types.ExtStatus(extStatus))
		}
	}

	// 14. Commit: allocate/reinitialise the Safety Validator instance.
	inst, ok := d.Validator.Allocate(p.Triad, p.Role)
	if !ok {
		return reject(types.ExtCnxnAlloc)
	}
	params := validator.TargetInitParams{
		Triad:               p.Triad,
		ConsumerNum:         p.Safety.MaxConsumerNum,
		PayloadSize:         p.PayloadSize,
		RPIOT:               p.RPIOT,
		RPITO:               p.RPITO,
		Role:                p.Role,
		Format:              p.Safety.Format,
		TimeoutMult:         p.Safety.TimeoutMult,
		PingIntervalEPIMult: p.Safety.PingIntervalEPIMult,
	}
	if !d.Validator.TargetInit(inst.ID, params) {
		d.Validator.Fault(inst.ID)
		return reject(types.ExtMiscellaneous)
	}
	if p.Role == types.RoleServer && p.ConsumingInstance != 0 {
		d.Identity.OCPUNIDSet(p.ConsumingInstance, p.Safety.OUNID)
	}

	// 15. Success response fields.
	return Result{
		Accepted:         true,
		InstanceID:       inst.ID,
		ConsumerNum:      p.Safety.MaxConsumerNum,
		InitialTimestamp: p.Safety.InitialTimestamp,
		InitialRollover:  p.Safety.InitialRollover,
	}
}
