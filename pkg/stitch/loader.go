package stitch

import (
	"fmt"

	"github.com/kimjh/vlanstitch/pkg/vlan"
	"gopkg.in/yaml.v3"
)

// LoadPlan decodes a yaml-tagged Plan document (the shape handed back
// by a plan expansion, or the initial plan on disk) into a fresh
// RunContext, wiring dependency edges, inverse-dependency edges, and
// importFrom hop references.
func LoadPlan(doc []byte) (*RunContext, error) {
	var plan Plan
	if err := yaml.Unmarshal(doc, &plan); err != nil {
		return nil, fmt.Errorf("stitch: decode plan: %w", err)
	}
	return BuildRunContext(&plan)
}

// BuildRunContext turns a decoded Plan into a RunContext.
func BuildRunContext(plan *Plan) (*RunContext, error) {
	rc := NewRunContext()

	for _, pa := range plan.Spec.Aggregates {
		for _, syn := range pa.Synonyms {
			rc.RegisterSynonym(syn, pa.URN)
		}
	}

	aggByURN := map[string]*Aggregate{}
	for _, pa := range plan.Spec.Aggregates {
		agg := &Aggregate{
			URN:           pa.URN,
			Family:        ParseFamily(pa.Family),
			APIVersion:    pa.APIVersion,
			ProviderURL:   pa.ProviderURL,
			Slice:         plan.Metadata.Slice,
			OpName:        plan.Metadata.OpName,
			UserRequested: pa.UserRequested,
			State:         Pending,
		}
		rc.AddAggregate(agg)
		aggByURN[rc.Canonicalize(pa.URN)] = agg
	}
	for _, pa := range plan.Spec.Aggregates {
		agg := aggByURN[rc.Canonicalize(pa.URN)]
		for _, dep := range pa.DependsOn {
			depAgg, ok := aggByURN[rc.Canonicalize(dep)]
			if !ok {
				return nil, fmt.Errorf("stitch: aggregate %s depends on unknown aggregate %s", pa.URN, dep)
			}
			agg.DependsOn = append(agg.DependsOn, depAgg.ID)
			depAgg.InverseDependsOn = append(depAgg.InverseDependsOn, agg.ID)
		}
	}

	hopByStableID := map[string]HopID{}
	type pendingImport struct {
		hop    HopID
		parent string
	}
	var imports []pendingImport

	for _, pp := range plan.Spec.Paths {
		path := &Path{GlobalID: pp.GlobalID}
		pathID := rc.AddPath(path)

		for _, ph := range pp.Hops {
			agg, ok := aggByURN[rc.Canonicalize(ph.AggregateURN)]
			if !ok {
				return nil, fmt.Errorf("stitch: hop %s references unknown aggregate %s", ph.StableID, ph.AggregateURN)
			}
			reqSug, err := parseOrAny(ph.RequestedSuggested)
			if err != nil {
				return nil, fmt.Errorf("stitch: hop %s requestedSuggested: %w", ph.StableID, err)
			}
			reqRange, err := vlan.Parse(ph.RequestedRange)
			if err != nil {
				return nil, fmt.Errorf("stitch: hop %s requestedRange: %w", ph.StableID, err)
			}
			scsRange := reqRange
			if ph.SCSRange != "" {
				scsRange, err = vlan.Parse(ph.SCSRange)
				if err != nil {
					return nil, fmt.Errorf("stitch: hop %s scsRange: %w", ph.StableID, err)
				}
			}

			h := &Hop{
				StableID:           ph.StableID,
				InterfaceURN:       ph.InterfaceURN,
				Path:               pathID,
				Aggregate:          agg.ID,
				Xlates:             ph.Xlates,
				Producer:           ph.Producer,
				Consumer:           ph.Consumer,
				RequestedSuggested: reqSug,
				RequestedRange:     reqRange,
				SCSRange:           scsRange,
				Unavailable:        vlan.Empty(),
				Loose:              ph.Loose,
				ExcludeFromPlan:    ph.ExcludeFromPlan,
			}
			hid := rc.AddHop(h)
			path.Hops = append(path.Hops, hid)
			agg.Hops = append(agg.Hops, hid)
			hopHasPath := false
			for _, existing := range agg.Paths {
				if existing == pathID {
					hopHasPath = true
					break
				}
			}
			if !hopHasPath {
				agg.Paths = append(agg.Paths, pathID)
			}
			hopByStableID[ph.StableID] = hid

			if ph.ImportFromStableID != "" {
				imports = append(imports, pendingImport{hop: hid, parent: ph.ImportFromStableID})
			}
		}
	}

	for _, imp := range imports {
		parentID, ok := hopByStableID[imp.parent]
		if !ok {
			return nil, fmt.Errorf("stitch: hop importFrom references unknown hop %q", imp.parent)
		}
		rc.Hop(imp.hop).SetImportFrom(parentID)
	}

	return rc, nil
}

// ValidatePlan checks the loaded plan's hop invariants before the
// first allocation: a non-ANY requestedSuggested must be a single tag
// within requestedRange, requestedRange must fit inside scsRange minus
// the unavailable set, requestedRange must not be empty, and no
// aggregate may depend on itself.
func ValidatePlan(rc *RunContext) error {
	for _, h := range rc.hops {
		if !h.RequestedSuggested.IsAny() {
			if _, ok := h.RequestedSuggested.SingleTag(); !ok && !h.RequestedSuggested.IsEmpty() {
				return fmt.Errorf("stitch: hop %s requestedSuggested %s is neither ANY nor a single tag", h.StableID, h.RequestedSuggested)
			}
			if !h.RequestedSuggested.IsEmpty() && !h.RequestedSuggested.Subset(h.RequestedRange) {
				return fmt.Errorf("stitch: hop %s requestedSuggested %s outside requestedRange %s", h.StableID, h.RequestedSuggested, h.RequestedRange)
			}
		}
		allowed := vlan.Subtract(h.SCSRange, h.Unavailable)
		if !h.RequestedRange.Subset(allowed) {
			return fmt.Errorf("stitch: hop %s requestedRange %s outside scsRange minus unavailable", h.StableID, h.RequestedRange)
		}
		if h.RequestedRange.IsEmpty() {
			return fmt.Errorf("stitch: hop %s has an empty requestedRange", h.StableID)
		}
	}
	for _, a := range rc.aggregates {
		for _, dep := range a.DependsOn {
			if dep == a.ID {
				return fmt.Errorf("stitch: aggregate %s depends on itself", a.URN)
			}
		}
	}
	return nil
}

func parseOrAny(s string) (vlan.Range, error) {
	if s == "" {
		return vlan.Any(), nil
	}
	return vlan.Parse(s)
}
