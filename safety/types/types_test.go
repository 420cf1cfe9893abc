package types

import "testing"

func TestUNID_AllFF(t *testing.T) {
	u := UNID{SNNTime: 0xFFFFFFFF, SNNDate: 0xFFFF, NodeID: 0xFFFFFFFF}
	if !u.AllFF() {
		t.Errorf("AllFF() = false, want true")
	}
	u.NodeID = 1
	if u.AllFF() {
		t.Errorf("AllFF() = true, want false")
	}
}

func TestUNID_Zero(t *testing.T) {
	var u UNID
	if !u.Zero() {
		t.Errorf("Zero() = false, want true")
	}
	u.SNNDate = 1
	if u.Zero() {
		t.Errorf("Zero() = true, want false")
	}
}

func TestSCID_Equal(t *testing.T) {
	a := SCID{SCCRC: 1, SCTSTime: 2, SCTSDate: 3}
	b := a
	if !a.Equal(b) {
		t.Errorf("Equal() = false, want true")
	}
	b.SCCRC = 99
	if a.Equal(b) {
		t.Errorf("Equal() = true, want false")
	}
}

func TestElectronicKey_CompatibilityBitSet(t *testing.T) {
	k := ElectronicKey{CompMajorRev: 0x82}
	if !k.CompatibilityBitSet() {
		t.Errorf("CompatibilityBitSet() = false, want true")
	}
	if k.MajorRev() != 0x02 {
		t.Errorf("MajorRev() = %#x, want 0x02", k.MajorRev())
	}
}

func TestFormatTag_String(t *testing.T) {
	if FormatBase.String() != "Base" {
		t.Errorf("FormatBase.String() = %q, want Base", FormatBase.String())
	}
	if FormatExtended.String() != "Extended" {
		t.Errorf("FormatExtended.String() = %q, want Extended", FormatExtended.String())
	}
}
