package rspec

import (
	"strings"
	"testing"

	"github.com/kimjh/vlanstitch/pkg/classify"
	"github.com/kimjh/vlanstitch/pkg/stitch"
	"github.com/kimjh/vlanstitch/pkg/vlan"
)

const requestDoc = `<rspec type="request">
  <stitching lastUpdateTime="2026-07-01T00:00:00Z">
    <path id="path-0">
      <hop id="h1">
        <link id="urn:if:a1:p1">
          <aggregate>urn:agg:a1</aggregate>
          <capabilities>
            <capability>producer</capability>
          </capabilities>
          <switchingCapabilityDescriptor>
            <switchingcapType>l2sc</switchingcapType>
            <switchingCapabilitySpecificInfo>
              <switchingCapabilitySpecificInfo_L2sc>
                <vlanRangeAvailability>100-200</vlanRangeAvailability>
                <suggestedVLANRange>any</suggestedVLANRange>
                <vlanTranslation>true</vlanTranslation>
              </switchingCapabilitySpecificInfo_L2sc>
            </switchingCapabilitySpecificInfo>
          </switchingCapabilityDescriptor>
        </link>
        <nextHop>h2</nextHop>
      </hop>
      <hop id="h2" importFrom="h1">
        <link id="urn:if:a2:p1">
          <aggregate>urn:agg:a2</aggregate>
          <capabilities>
            <capability>consumer</capability>
          </capabilities>
          <switchingCapabilityDescriptor>
            <switchingcapType>l2sc</switchingcapType>
            <switchingCapabilitySpecificInfo>
              <switchingCapabilitySpecificInfo_L2sc>
                <vlanRangeAvailability>100-200</vlanRangeAvailability>
                <suggestedVLANRange>any</suggestedVLANRange>
                <vlanTranslation>false</vlanTranslation>
              </switchingCapabilitySpecificInfo_L2sc>
            </switchingCapabilitySpecificInfo>
          </switchingCapabilityDescriptor>
        </link>
      </hop>
    </path>
  </stitching>
  <aggregates>
    <aggregate urn="urn:agg:a1" family="PG" apiVersion="2" url="https://a1/am"/>
    <aggregate urn="urn:agg:a2" apiVersion="2" url="https://a2/am">
      <dependsOn>urn:agg:a1</dependsOn>
    </aggregate>
  </aggregates>
</rspec>`

func mustCodec(t *testing.T, doc string) *Codec {
	t.Helper()
	c, err := New([]byte(doc))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestParse(t *testing.T) {
	c := mustCodec(t, requestDoc)
	plan, err := c.Parse("stitch", "urn:slice:test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(plan.Spec.Aggregates) != 2 {
		t.Fatalf("aggregates = %d, want 2", len(plan.Spec.Aggregates))
	}
	if plan.Spec.Aggregates[0].Family != "PG" {
		t.Errorf("a1 family = %q, want PG from the document", plan.Spec.Aggregates[0].Family)
	}
	if plan.Spec.Aggregates[1].Family != "Generic" {
		t.Errorf("a2 family = %q, want Generic derived from URN", plan.Spec.Aggregates[1].Family)
	}
	if got := plan.Spec.Aggregates[1].DependsOn; len(got) != 1 || got[0] != "urn:agg:a1" {
		t.Errorf("a2 dependsOn = %v", got)
	}

	if len(plan.Spec.Paths) != 1 || len(plan.Spec.Paths[0].Hops) != 2 {
		t.Fatalf("paths/hops shape unexpected: %+v", plan.Spec.Paths)
	}
	h1 := plan.Spec.Paths[0].Hops[0]
	h2 := plan.Spec.Paths[0].Hops[1]
	if !h1.Producer || h1.ImportFromStableID != "" {
		t.Errorf("h1 = %+v", h1)
	}
	if !h2.Consumer || h2.ImportFromStableID != "h1" || h2.Xlates {
		t.Errorf("h2 = %+v", h2)
	}

	// The parsed plan must load into a run context cleanly.
	rc, err := stitch.BuildRunContext(plan)
	if err != nil {
		t.Fatalf("BuildRunContext: %v", err)
	}
	if err := stitch.ValidatePlan(rc); err != nil {
		t.Fatalf("ValidatePlan: %v", err)
	}
}

func TestSpliceWritesNegotiatedTags(t *testing.T) {
	c := mustCodec(t, requestDoc)
	plan, err := c.Parse("stitch", "urn:slice:test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rc, err := stitch.BuildRunContext(plan)
	if err != nil {
		t.Fatalf("BuildRunContext: %v", err)
	}

	a1 := rc.Aggregates()[0]
	h1 := rc.Hop(a1.Hops[0])
	h1.RequestedSuggested = vlan.Single(150)
	r, err := vlan.Parse("100-175")
	if err != nil {
		t.Fatal(err)
	}
	h1.RequestedRange = r

	out, err := c.Splice(rc, a1)
	if err != nil {
		t.Fatalf("Splice: %v", err)
	}

	// Splice then parse yields the tags back.
	c2 := mustCodec(t, string(out))
	plan2, err := c2.Parse("stitch", "urn:slice:test")
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	got := plan2.Spec.Paths[0].Hops[0]
	if got.RequestedSuggested != "150" {
		t.Errorf("spliced suggested = %q, want 150", got.RequestedSuggested)
	}
	if got.RequestedRange != "100-175" {
		t.Errorf("spliced range = %q, want 100-175", got.RequestedRange)
	}

	// The other aggregate's hop is untouched.
	if other := plan2.Spec.Paths[0].Hops[1]; other.RequestedSuggested != "any" {
		t.Errorf("unowned hop suggested = %q, want any", other.RequestedSuggested)
	}
}

const manifestDocGeneric = `<rspec type="manifest">
  <stitching>
    <path id="path-0">
      <hop id="h1">
        <link id="urn:if:a1:p1">
          <aggregate>urn:agg:a1</aggregate>
          <switchingCapabilityDescriptor>
            <switchingcapType>l2sc</switchingcapType>
            <switchingCapabilitySpecificInfo>
              <switchingCapabilitySpecificInfo_L2sc>
                <vlanRangeAvailability>100-200</vlanRangeAvailability>
                <suggestedVLANRange>150</suggestedVLANRange>
                <vlanTranslation>true</vlanTranslation>
              </switchingCapabilitySpecificInfo_L2sc>
            </switchingCapabilitySpecificInfo>
          </switchingCapabilityDescriptor>
        </link>
      </hop>
    </path>
  </stitching>
</rspec>`

func loadFixture(t *testing.T) (*Codec, *stitch.RunContext) {
	t.Helper()
	c := mustCodec(t, requestDoc)
	plan, err := c.Parse("stitch", "urn:slice:test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rc, err := stitch.BuildRunContext(plan)
	if err != nil {
		t.Fatalf("BuildRunContext: %v", err)
	}
	return c, rc
}

func TestParseManifestGeneric(t *testing.T) {
	c, rc := loadFixture(t)
	a1 := rc.Aggregates()[0]
	h1 := rc.Hop(a1.Hops[0])

	sug, rng, _, err := c.ParseManifest(rc, a1, []byte(manifestDocGeneric), h1)
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if tag, ok := sug.SingleTag(); !ok || tag != 150 {
		t.Errorf("suggested = %v, want 150", sug)
	}
	if !rng.Contains(100) || !rng.Contains(200) {
		t.Errorf("range = %v, want 100-200", rng)
	}
}

func TestParseManifestMissingHop(t *testing.T) {
	c, rc := loadFixture(t)
	a2 := rc.Aggregates()[1]
	h2 := rc.Hop(a2.Hops[0])

	if _, _, _, err := c.ParseManifest(rc, a2, []byte(manifestDocGeneric), h2); err == nil {
		t.Fatal("ParseManifest found a hop absent from the manifest")
	}
}

// EG manifests rewrite hop ids; the hop is located by link URN instead.
const manifestDocEG = `<rspec type="manifest">
  <stitching>
    <path id="path-0">
      <hop id="eg-rewritten-77">
        <link id="urn:if:a2:p1">
          <aggregate>urn:agg:a2</aggregate>
          <switchingCapabilityDescriptor>
            <switchingcapType>l2sc</switchingcapType>
            <switchingCapabilitySpecificInfo>
              <switchingCapabilitySpecificInfo_L2sc>
                <vlanRangeAvailability>100-200</vlanRangeAvailability>
                <suggestedVLANRange>160</suggestedVLANRange>
                <vlanTranslation>false</vlanTranslation>
              </switchingCapabilitySpecificInfo_L2sc>
            </switchingCapabilitySpecificInfo>
          </switchingCapabilityDescriptor>
        </link>
      </hop>
    </path>
  </stitching>
</rspec>`

func TestParseManifestEGByLinkURN(t *testing.T) {
	c, rc := loadFixture(t)
	a2 := rc.Aggregates()[1]
	a2.Family = classify.EG
	h2 := rc.Hop(a2.Hops[0])

	sug, _, _, err := c.ParseManifest(rc, a2, []byte(manifestDocEG), h2)
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if tag, ok := sug.SingleTag(); !ok || tag != 160 {
		t.Errorf("suggested = %v, want 160", sug)
	}
}

func TestParseManifestEGSynthesizesInternalHop(t *testing.T) {
	c, rc := loadFixture(t)
	a1 := rc.Aggregates()[0]
	a1.Family = classify.EG
	h1 := rc.Hop(a1.Hops[0])
	h1.RequestedSuggested = vlan.Single(150)

	// The EG manifest carries only a2's link; a1's hop is an
	// aggregate-internal extension and gets a synthesized manifest.
	sug, rng, _, err := c.ParseManifest(rc, a1, []byte(manifestDocEG), h1)
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if tag, ok := sug.SingleTag(); !ok || tag != 150 {
		t.Errorf("synthesized suggested = %v, want requested 150", sug)
	}
	if !rng.Contains(2) || !rng.Contains(4094) {
		t.Errorf("synthesized range = %v, want 2-4094", rng)
	}
}

func TestParseManifestEmptySuggestedIsError(t *testing.T) {
	doc := strings.Replace(manifestDocGeneric, "<suggestedVLANRange>150</suggestedVLANRange>", "<suggestedVLANRange></suggestedVLANRange>", 1)
	c, rc := loadFixture(t)
	a1 := rc.Aggregates()[0]
	h1 := rc.Hop(a1.Hops[0])

	if _, _, _, err := c.ParseManifest(rc, a1, []byte(doc), h1); err == nil {
		t.Fatal("ParseManifest accepted an empty suggestedVLANRange")
	}
}
