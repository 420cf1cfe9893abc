// Package unid implements the pure UNID comparison and validity utilities
// of spec component B: field-wise equality, list membership, and the
// TUNID-vs-NodeID consistency check run at self-test.
package unid

import "github.com/iceisfun/cipsafety/safety/types"

// Compare reports field-wise equality of two UNIDs.
func Compare(a, b types.UNID) bool {
	return a == b
}

// ListContains reports whether needle matches any entry in list.
func ListContains(needle types.UNID, list []types.UNID) bool {
	for _, u := range list {
		if Compare(needle, u) {
			return true
		}
	}
	return false
}

// DeviceHasValidTUNID reports whether at least one UNID in list is not the
// all-FF "unassigned" sentinel.
func DeviceHasValidTUNID(list []types.UNID) bool {
	for _, u := range list {
		if !u.AllFF() {
			return true
		}
	}
	return false
}

// NodeIDUnset is the sentinel NodeID meaning "this port has no configured
// node address".
const NodeIDUnset uint32 = 0xFFFFFFFF

// TunidVsNodeIDCheck implements §4.B: for each port, if our NodeID is
// unset the port's TUNID SNN must be all-FF; otherwise an all-FF TUNID is
// accepted as "unused port", else NodeID must match and SNN must be valid
// (non all-FF).
func TunidVsNodeIDCheck(tunids []types.UNID, nodeIDs []uint32) bool {
	if len(tunids) != len(nodeIDs) {
		return false
	}
	for i, t := range tunids {
		nodeID := nodeIDs[i]
		snnAllFF := t.SNNTime == 0xFFFFFFFF && t.SNNDate == 0xFFFF
		if nodeID == NodeIDUnset {
			if !snnAllFF {
				return false
			}
			continue
		}
		if t.AllFF() {
			// unused port
			continue
		}
		if t.NodeID != nodeID {
			return false
		}
		if snnAllFF {
			return false
		}
	}
	return true
}
