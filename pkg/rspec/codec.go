// Package rspec is the XML codec boundary for stitching request and
// manifest documents. The scheduler core treats it as opaque: Parse
// produces the hop graph, Splice writes the negotiated tags back into
// a per-aggregate request document, and ParseManifest extracts what a
// provider actually reserved.
package rspec

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/kimjh/vlanstitch/pkg/classify"
	"github.com/kimjh/vlanstitch/pkg/stitch"
	"github.com/kimjh/vlanstitch/pkg/vlan"
)

// Document is the top-level rspec element.
type Document struct {
	XMLName    xml.Name       `xml:"rspec"`
	Type       string         `xml:"type,attr,omitempty"`
	Stitching  Stitching      `xml:"stitching"`
	Aggregates []AggregateDef `xml:"aggregates>aggregate"`
}

// Stitching holds the path extension of a request or manifest.
type Stitching struct {
	LastUpdate string     `xml:"lastUpdateTime,attr,omitempty"`
	Paths      []PathElem `xml:"path"`
}

// PathElem is one end-to-end path inside the stitching element.
type PathElem struct {
	ID   string    `xml:"id,attr"`
	Hops []HopElem `xml:"hop"`
}

// HopElem is one hop inside a path.
type HopElem struct {
	ID              string   `xml:"id,attr"`
	ImportFrom      string   `xml:"importFrom,attr,omitempty"`
	Loose           bool     `xml:"loose,attr,omitempty"`
	ExcludeFromPlan bool     `xml:"excludeFromPlan,attr,omitempty"`
	Link            LinkElem `xml:"link"`
	NextHop         string   `xml:"nextHop,omitempty"`
}

// LinkElem carries the interface URN and switching capability of a hop.
type LinkElem struct {
	ID           string                        `xml:"id,attr"`
	AggregateURN string                        `xml:"aggregate"`
	Capabilities []string                      `xml:"capabilities>capability"`
	SwitchingCap SwitchingCapabilityDescriptor `xml:"switchingCapabilityDescriptor"`
}

// SwitchingCapabilityDescriptor mirrors the GENI stitching schema shape.
type SwitchingCapabilityDescriptor struct {
	CapType string   `xml:"switchingcapType"`
	L2sc    L2scInfo `xml:"switchingCapabilitySpecificInfo>switchingCapabilitySpecificInfo_L2sc"`
}

// L2scInfo carries the VLAN fields the negotiation engine reads and writes.
type L2scInfo struct {
	VlanRangeAvailability string `xml:"vlanRangeAvailability"`
	SuggestedVLANRange    string `xml:"suggestedVLANRange"`
	VlanTranslation       bool   `xml:"vlanTranslation"`
}

// AggregateDef is the plan-level aggregate section: provider endpoint,
// family, API version, pinning, and dependency edges.
type AggregateDef struct {
	URN           string   `xml:"urn,attr"`
	Family        string   `xml:"family,attr,omitempty"`
	APIVersion    int      `xml:"apiVersion,attr"`
	URL           string   `xml:"url,attr"`
	UserRequested bool     `xml:"userRequested,attr,omitempty"`
	Synonyms      []string `xml:"synonym"`
	DependsOn     []string `xml:"dependsOn"`
}

// Codec binds a base request document to the stitch.RSpecCodec
// operations. One Codec serves one reservation run; a PCE escalation
// replaces it with a Codec over the new expanded document.
type Codec struct {
	doc Document
}

// New parses doc and returns a Codec over it.
func New(doc []byte) (*Codec, error) {
	var d Document
	if err := xml.Unmarshal(doc, &d); err != nil {
		return nil, fmt.Errorf("rspec: decode document: %w", err)
	}
	return &Codec{doc: d}, nil
}

// Parse converts the document into the plan shape the scheduler loads.
// Aggregate families missing from the document are derived from the
// aggregate URN (corrected later from the provider's am_type).
func (c *Codec) Parse(opName, slice string) (*stitch.Plan, error) {
	plan := &stitch.Plan{
		APIVersion: "stitch/v1",
		Kind:       "StitchingPlan",
		Metadata:   stitch.PlanMeta{OpName: opName, Slice: slice},
	}

	for _, ad := range c.doc.Aggregates {
		family := ad.Family
		if family == "" {
			family = classify.FamilyFromURN(ad.URN).String()
		}
		plan.Spec.Aggregates = append(plan.Spec.Aggregates, stitch.PlanAggregate{
			URN:           ad.URN,
			Synonyms:      ad.Synonyms,
			Family:        family,
			APIVersion:    ad.APIVersion,
			UserRequested: ad.UserRequested,
			DependsOn:     ad.DependsOn,
			ProviderURL:   ad.URL,
		})
	}

	for _, pe := range c.doc.Stitching.Paths {
		pp := stitch.PlanPath{GlobalID: pe.ID}
		for _, he := range pe.Hops {
			sug := he.Link.SwitchingCap.L2sc.SuggestedVLANRange
			rng := he.Link.SwitchingCap.L2sc.VlanRangeAvailability
			if rng == "" {
				return nil, fmt.Errorf("rspec: hop %s has no vlanRangeAvailability", he.ID)
			}
			ph := stitch.PlanHop{
				StableID:           he.ID,
				InterfaceURN:       he.Link.ID,
				AggregateURN:       he.Link.AggregateURN,
				ImportFromStableID: he.ImportFrom,
				Xlates:             he.Link.SwitchingCap.L2sc.VlanTranslation,
				RequestedSuggested: sug,
				RequestedRange:     rng,
				SCSRange:           rng,
				Loose:              he.Loose,
				ExcludeFromPlan:    he.ExcludeFromPlan,
			}
			for _, capability := range he.Link.Capabilities {
				switch capability {
				case "producer":
					ph.Producer = true
				case "consumer":
					ph.Consumer = true
				}
			}
			pp.Hops = append(pp.Hops, ph)
		}
		plan.Spec.Paths = append(plan.Spec.Paths, pp)
	}

	return plan, nil
}

// Splice writes each owned hop's requestedSuggested and requestedRange
// into a copy of the base document and returns the provider-facing
// request bytes (spec: per-aggregate request document).
func (c *Codec) Splice(rc *stitch.RunContext, agg *stitch.Aggregate) ([]byte, error) {
	out := c.doc
	out.Stitching.Paths = make([]PathElem, len(c.doc.Stitching.Paths))
	for i, pe := range c.doc.Stitching.Paths {
		out.Stitching.Paths[i] = pe
		out.Stitching.Paths[i].Hops = append([]HopElem(nil), pe.Hops...)
	}

	owned := make(map[string]*stitch.Hop)
	for _, hid := range agg.Hops {
		h := rc.Hop(hid)
		owned[h.StableID] = h
	}

	for pi := range out.Stitching.Paths {
		for hi := range out.Stitching.Paths[pi].Hops {
			he := &out.Stitching.Paths[pi].Hops[hi]
			h, ok := owned[he.ID]
			if !ok {
				continue
			}
			he.Link.SwitchingCap.L2sc.SuggestedVLANRange = h.RequestedSuggested.String()
			he.Link.SwitchingCap.L2sc.VlanRangeAvailability = h.RequestedRange.String()
		}
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(&out); err != nil {
		return nil, fmt.Errorf("rspec: encode request for %s: %w", agg.URN, err)
	}
	return buf.Bytes(), nil
}

// ParseManifest extracts (manifestSuggested, manifestRange, globalID)
// for hop from a provider manifest. Generic providers echo the hop id;
// the EG family rewrites hop ids in manifests, so hops are located by
// the underlying link URN instead, and an aggregate-internal extension
// hop absent from the manifest gets a synthesized manifest echoing the
// requested tag with range 2-4094. The globalID result is the path's
// global id only for such a synthesized EG hop; it is empty for hops
// found in the manifest.
func (c *Codec) ParseManifest(rc *stitch.RunContext, agg *stitch.Aggregate, manifestDoc []byte, hop *stitch.Hop) (vlan.Range, vlan.Range, string, error) {
	var m Document
	if err := xml.Unmarshal(manifestDoc, &m); err != nil {
		return vlan.Range{}, vlan.Range{}, "", fmt.Errorf("rspec: decode manifest: %w", err)
	}

	pathID := rc.Path(hop.Path).GlobalID

	if agg.Family == classify.EG {
		return c.parseManifestEG(&m, pathID, hop)
	}
	return c.parseManifestGeneric(&m, pathID, hop)
}

func (c *Codec) parseManifestGeneric(m *Document, pathID string, hop *stitch.Hop) (vlan.Range, vlan.Range, string, error) {
	for _, pe := range m.Stitching.Paths {
		if pe.ID != pathID {
			continue
		}
		for _, he := range pe.Hops {
			if he.ID != hop.StableID {
				continue
			}
			return l2scRanges(he, hop)
		}
		return vlan.Range{}, vlan.Range{}, "", fmt.Errorf("rspec: manifest path %s has no hop %s", pathID, hop.StableID)
	}
	return vlan.Range{}, vlan.Range{}, "", fmt.Errorf("rspec: manifest has no path %s", pathID)
}

func (c *Codec) parseManifestEG(m *Document, pathID string, hop *stitch.Hop) (vlan.Range, vlan.Range, string, error) {
	for _, pe := range m.Stitching.Paths {
		if pe.ID != pathID {
			continue
		}
		for _, he := range pe.Hops {
			if he.Link.ID != hop.InterfaceURN {
				continue
			}
			return l2scRanges(he, hop)
		}
		// Aggregate-internal extension hops never appear in EG
		// manifests; echo the requested tag so the negotiation
		// invariants keep holding.
		rng, err := vlan.Parse("2-4094")
		if err != nil {
			return vlan.Range{}, vlan.Range{}, "", err
		}
		return hop.RequestedSuggested, rng, pathID, nil
	}
	return vlan.Range{}, vlan.Range{}, "", fmt.Errorf("rspec: manifest has no path %s", pathID)
}

func l2scRanges(he HopElem, hop *stitch.Hop) (vlan.Range, vlan.Range, string, error) {
	sugStr := he.Link.SwitchingCap.L2sc.SuggestedVLANRange
	if sugStr == "" || sugStr == "null" {
		// An empty or placeholder suggestedVLANRange means the provider
		// could not honor the tag (classified upstream as VlanUnavailable).
		return vlan.Empty(), vlan.Empty(), "", fmt.Errorf("rspec: hop %s manifest carries no suggested tag", hop.StableID)
	}
	sug, err := vlan.Parse(sugStr)
	if err != nil {
		return vlan.Range{}, vlan.Range{}, "", fmt.Errorf("rspec: hop %s suggestedVLANRange: %w", hop.StableID, err)
	}
	rng, err := vlan.Parse(he.Link.SwitchingCap.L2sc.VlanRangeAvailability)
	if err != nil {
		return vlan.Range{}, vlan.Range{}, "", fmt.Errorf("rspec: hop %s vlanRangeAvailability: %w", hop.StableID, err)
	}
	return sug, rng, "", nil
}
