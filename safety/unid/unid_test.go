package unid

import (
	"testing"

	"github.com/iceisfun/cipsafety/safety/types"
)

func TestListContains(t *testing.T) {
	list := []types.UNID{
		{SNNTime: 1, SNNDate: 1, NodeID: 1},
		{SNNTime: 2, SNNDate: 2, NodeID: 2},
	}
	if !ListContains(list[1], list) {
		t.Errorf("ListContains() = false, want true")
	}
	if ListContains(types.UNID{NodeID: 99}, list) {
		t.Errorf("ListContains() = true, want false")
	}
}

func TestDeviceHasValidTUNID(t *testing.T) {
	allFF := types.UNID{SNNTime: 0xFFFFFFFF, SNNDate: 0xFFFF, NodeID: 0xFFFFFFFF}
	if DeviceHasValidTUNID([]types.UNID{allFF, allFF}) {
		t.Errorf("DeviceHasValidTUNID() = true for all-FF list, want false")
	}
	valid := types.UNID{SNNTime: 1, SNNDate: 1, NodeID: 1}
	if !DeviceHasValidTUNID([]types.UNID{allFF, valid}) {
		t.Errorf("DeviceHasValidTUNID() = false, want true")
	}
}

func TestTunidVsNodeIDCheck(t *testing.T) {
	allFFSNN := types.UNID{SNNTime: 0xFFFFFFFF, SNNDate: 0xFFFF, NodeID: 5}

	tests := []struct {
		name    string
		tunids  []types.UNID
		nodeIDs []uint32
		want    bool
	}{
		{
			name:    "unset node ID requires all-FF SNN",
			tunids:  []types.UNID{allFFSNN},
			nodeIDs: []uint32{NodeIDUnset},
			want:    true,
		},
		{
			name:    "unset node ID with non-FF SNN fails",
			tunids:  []types.UNID{{SNNTime: 1, SNNDate: 1, NodeID: 1}},
			nodeIDs: []uint32{NodeIDUnset},
			want:    false,
		},
		{
			name:    "matching node ID with valid SNN",
			tunids:  []types.UNID{{SNNTime: 1, SNNDate: 1, NodeID: 5}},
			nodeIDs: []uint32{5},
			want:    true,
		},
		{
			name:    "node ID mismatch fails",
			tunids:  []types.UNID{{SNNTime: 1, SNNDate: 1, NodeID: 5}},
			nodeIDs: []uint32{6},
			want:    false,
		},
		{
			name:    "length mismatch fails",
			tunids:  []types.UNID{{SNNTime: 1, SNNDate: 1, NodeID: 5}},
			nodeIDs: []uint32{5, 6},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TunidVsNodeIDCheck(tt.tunids, tt.nodeIDs); got != tt.want {
				t.Errorf("TunidVsNodeIDCheck() = %v, want %v", got, tt.want)
			}
		})
	}
}
