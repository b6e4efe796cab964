package stitch

import (
	"testing"

	"github.com/kimjh/vlanstitch/pkg/classify"
)

const samplePlanYAML = `
apiVersion: stitch/v1
kind: StitchingPlan
metadata:
  opName: stitch
  slice: urn:publicid:IDN+example+slice+circuit1
spec:
  aggregates:
    - urn: urn:agg:a1
      family: PG
      apiVersion: 2
      providerUrl: https://a1.example.org/am
    - urn: urn:agg:a2
      family: DCN
      apiVersion: 2
      providerUrl: https://a2.example.org/am
      dependsOn: [urn:agg:a1]
  paths:
    - globalId: path-0
      hops:
        - id: h1
          interfaceUrn: urn:if:a1:p1
          aggregateUrn: urn:agg:a1
          xlates: true
          producer: true
          requestedRange: 100-200
        - id: h2
          interfaceUrn: urn:if:a2:p1
          aggregateUrn: urn:agg:a2
          importFrom: h1
          xlates: false
          consumer: true
          requestedRange: 100-200
`

func TestLoadPlan(t *testing.T) {
	rc, err := LoadPlan([]byte(samplePlanYAML))
	if err != nil {
		t.Fatalf("LoadPlan: %v", err)
	}

	aggs := rc.Aggregates()
	if len(aggs) != 2 {
		t.Fatalf("aggregates = %d, want 2", len(aggs))
	}
	a1, a2 := aggs[0], aggs[1]
	if a1.Family != classify.PG || a2.Family != classify.DCN {
		t.Errorf("families = %v/%v, want PG/DCN", a1.Family, a2.Family)
	}
	if a1.Slice != "urn:publicid:IDN+example+slice+circuit1" {
		t.Errorf("slice = %q", a1.Slice)
	}

	// Dependency and inverse-dependency edges
	if len(a2.DependsOn) != 1 || a2.DependsOn[0] != a1.ID {
		t.Errorf("a2.DependsOn = %v", a2.DependsOn)
	}
	if len(a1.InverseDependsOn) != 1 || a1.InverseDependsOn[0] != a2.ID {
		t.Errorf("a1.InverseDependsOn = %v", a1.InverseDependsOn)
	}

	// Hop wiring
	if len(a1.Hops) != 1 || len(a2.Hops) != 1 {
		t.Fatalf("hop counts = %d/%d, want 1/1", len(a1.Hops), len(a2.Hops))
	}
	h1 := rc.Hop(a1.Hops[0])
	h2 := rc.Hop(a2.Hops[0])
	if !h1.RequestedSuggested.IsAny() {
		t.Errorf("h1 suggested = %v, want ANY", h1.RequestedSuggested)
	}
	if !h2.ImportFromValid() || h2.ImportFrom != h1.ID {
		t.Errorf("h2 importFrom = %v, want h1", h2.ImportFrom)
	}
	if h2.Xlates {
		t.Error("h2 xlates = true, want false")
	}
	if !h1.SCSRange.Equal(h1.RequestedRange) {
		t.Errorf("scsRange defaulted to %v, want requestedRange", h1.SCSRange)
	}
}

func TestLoadPlanUnknownDependency(t *testing.T) {
	doc := `
spec:
  aggregates:
    - urn: urn:agg:a1
      dependsOn: [urn:agg:missing]
      providerUrl: https://a1.example.org/am
`
	if _, err := LoadPlan([]byte(doc)); err == nil {
		t.Fatal("LoadPlan accepted an unknown dependency")
	}
}

func TestLoadPlanUnknownImport(t *testing.T) {
	doc := `
spec:
  aggregates:
    - urn: urn:agg:a1
      providerUrl: https://a1.example.org/am
  paths:
    - globalId: path-0
      hops:
        - id: h1
          aggregateUrn: urn:agg:a1
          importFrom: nonexistent
          requestedRange: 100-200
`
	if _, err := LoadPlan([]byte(doc)); err == nil {
		t.Fatal("LoadPlan accepted an unknown importFrom hop")
	}
}

func TestValidatePlan(t *testing.T) {
	rc, err := LoadPlan([]byte(samplePlanYAML))
	if err != nil {
		t.Fatalf("LoadPlan: %v", err)
	}
	if err := ValidatePlan(rc); err != nil {
		t.Fatalf("ValidatePlan: %v", err)
	}

	// Break an invariant: requestedRange outside scsRange.
	h := rc.Hop(rc.Aggregates()[0].Hops[0])
	h.RequestedRange = mustRange(t, "100-300")
	if err := ValidatePlan(rc); err == nil {
		t.Fatal("ValidatePlan accepted requestedRange outside scsRange")
	}
}

func TestCorrectFamilyFromAMType(t *testing.T) {
	rc, err := LoadPlan([]byte(samplePlanYAML))
	if err != nil {
		t.Fatalf("LoadPlan: %v", err)
	}
	a1 := rc.Aggregates()[0]

	rc.CorrectFamilyFromAMType("https://a1.example.org/am", "orca")
	if a1.Family != classify.EG {
		t.Errorf("family = %v, want EG after am_type correction", a1.Family)
	}

	// Unrecognized am_type keeps the current guess.
	rc.CorrectFamilyFromAMType("https://a1.example.org/am", "mystery")
	if a1.Family != classify.EG {
		t.Errorf("family = %v, want EG preserved", a1.Family)
	}
}
