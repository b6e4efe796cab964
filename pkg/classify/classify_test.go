package classify

import "testing"

func TestClassifyVlanUnavailableByCode(t *testing.T) {
	err := &ProviderError{Code: 24, Message: "generic failure"}
	if got := Classify(Generic, err); got != VlanUnavailable {
		t.Fatalf("Classify() = %v, want VlanUnavailable", got)
	}
}

func TestClassifyPGSubstrings(t *testing.T) {
	cases := []string{
		"Could not reserve vlan tags for link foo",
		"Error reserving vlan tag for bar",
		"vlan tag not available on this interface",
		"Could not find a free vlan tag for X",
	}
	for _, msg := range cases {
		err := &ProviderError{Message: msg}
		if got := Classify(PG, err); got != VlanUnavailable {
			t.Errorf("Classify(PG, %q) = %v, want VlanUnavailable", msg, got)
		}
	}
}

func TestClassifyEGSubstring(t *testing.T) {
	err := &ProviderError{Message: "Error in building the dependency tree, probably not available vlan path"}
	if got := Classify(EG, err); got != VlanUnavailable {
		t.Fatalf("Classify(EG) = %v, want VlanUnavailable", got)
	}
}

func TestClassifyDCNStatusReclassification(t *testing.T) {
	msg := "no VLANs available on link urn:publicid:foo VLAN PCE PCE_CREATE_FAILED"
	if got := ClassifyDCNStatus(msg); got != VlanUnavailable {
		t.Fatalf("ClassifyDCNStatus() = %v, want VlanUnavailable", got)
	}
	if got := ClassifyDCNStatus("ready"); got != Unknown {
		t.Fatalf("ClassifyDCNStatus(ready) = %v, want Unknown", got)
	}
}

func TestClassifyFatalUser(t *testing.T) {
	err := &ProviderError{Message: "sliver already exists for this slice"}
	if got := Classify(Generic, err); got != FatalUser {
		t.Fatalf("Classify() = %v, want FatalUser", got)
	}
}

func TestClassifyBandwidthIsFatalPlan(t *testing.T) {
	// Code 25 and its message form are plan-fatal, not user-fatal: the
	// scheduler promotes to FatalUser only for user-pinned aggregates.
	cases := []*ProviderError{
		{Code: 25, Message: "bandwidth exceeded on link"},
		{Message: "insufficient bandwidth on this path"},
	}
	for _, err := range cases {
		if got := Classify(Generic, err); got != FatalPlan {
			t.Errorf("Classify(%+v) = %v, want FatalPlan", err, got)
		}
	}
}

func TestClassifyFatalPlanDefault(t *testing.T) {
	err := &ProviderError{Code: 1, Message: "some unrecognized failure"}
	if got := Classify(Generic, err); got != FatalPlan {
		t.Fatalf("Classify() = %v, want FatalPlan", got)
	}
}

func TestClassifyProviderBusy(t *testing.T) {
	err := &ProviderError{Message: "aggregate manager is busy, try later"}
	if got := Classify(Generic, err); got != ProviderBusy {
		t.Fatalf("Classify() = %v, want ProviderBusy", got)
	}
}

func TestClassifyTransient5xx(t *testing.T) {
	err := &ProviderError{Code: 502, Message: "bad gateway"}
	if got := Classify(Generic, err); got != Transient {
		t.Fatalf("Classify() = %v, want Transient", got)
	}
}

func TestVlanPatternMatchesDisqualifiesUnrelatedErrors(t *testing.T) {
	err := &ProviderError{Code: 1, Message: "totally unrelated failure"}
	if VlanPatternMatches(PG, err) {
		t.Fatalf("VlanPatternMatches() = true, want false")
	}
}

func TestClassifyPGNumericTagUnavailable(t *testing.T) {
	err := &ProviderError{Message: "vlan tag 150 not available on interface"}
	if got := Classify(PG, err); got != VlanUnavailable {
		t.Fatalf("Classify() = %v, want VlanUnavailable", got)
	}
}

func TestFamilyFromURN(t *testing.T) {
	cases := []struct {
		urn  string
		want Family
	}{
		{"urn:publicid:IDN+emulab.net+authority+cm", PG},
		{"urn:publicid:IDN+exogeni.net:bbnvmsite+authority+am", EG},
		{"urn:publicid:IDN+ion.internet2.edu+authority+cm", DCN},
		{"urn:publicid:IDN+gram.example+authority+am", GRAM},
		{"urn:publicid:IDN+somewhere.example+authority+cm", Generic},
	}
	for _, c := range cases {
		if got := FamilyFromURN(c.urn); got != c.want {
			t.Errorf("FamilyFromURN(%q) = %v, want %v", c.urn, got, c.want)
		}
	}
}

func TestFamilyFromAMType(t *testing.T) {
	if got, ok := FamilyFromAMType("protogeni"); !ok || got != PG {
		t.Errorf("FamilyFromAMType(protogeni) = %v, %v", got, ok)
	}
	if got, ok := FamilyFromAMType("orca"); !ok || got != EG {
		t.Errorf("FamilyFromAMType(orca) = %v, %v", got, ok)
	}
	if _, ok := FamilyFromAMType("mystery"); ok {
		t.Error("FamilyFromAMType accepted an unknown am_type")
	}
}
