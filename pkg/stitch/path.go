package stitch

import "fmt"

// Path is an ordered sequence of hops forming one end-to-end segment
// chain, plus an opaque identifier used in provider-facing documents.
type Path struct {
	ID       PathID
	GlobalID string
	Hops     []HopID
}

// FindHop looks up a hop on p by its StableID.
func (p *Path) FindHop(rc *RunContext, stableID string) (*Hop, error) {
	for _, id := range p.Hops {
		h := rc.Hop(id)
		if h.StableID == stableID {
			return h, nil
		}
	}
	return nil, fmt.Errorf("stitch: path %s has no hop %q", p.GlobalID, stableID)
}

// FindHopAt returns the hop at index idx on p.
func (p *Path) FindHopAt(rc *RunContext, idx int) (*Hop, error) {
	if idx < 0 || idx >= len(p.Hops) {
		return nil, fmt.Errorf("stitch: path %s has no hop at index %d", p.GlobalID, idx)
	}
	return rc.Hop(p.Hops[idx]), nil
}

// Aggregates returns the distinct set of aggregate handles owning
// hops on p, in first-seen order.
func (p *Path) Aggregates(rc *RunContext) []AggregateID {
	seen := make(map[AggregateID]bool)
	var out []AggregateID
	for _, id := range p.Hops {
		agg := rc.Hop(id).Aggregate
		if !seen[agg] {
			seen[agg] = true
			out = append(out, agg)
		}
	}
	return out
}

// EquivalenceClassAt returns every hop on p that shares a
// non-translating tag-agreement relationship with the hop at index
// idx: itself plus any adjacent hop (idx-1 or idx+1) where either side
// has Xlates == false.
func (p *Path) EquivalenceClassAt(rc *RunContext, idx int) []HopID {
	class := []HopID{p.Hops[idx]}
	h := rc.Hop(p.Hops[idx])
	if idx > 0 {
		left := rc.Hop(p.Hops[idx-1])
		if !h.Xlates || !left.Xlates {
			class = append(class, p.Hops[idx-1])
		}
	}
	if idx+1 < len(p.Hops) {
		right := rc.Hop(p.Hops[idx+1])
		if !h.Xlates || !right.Xlates {
			class = append(class, p.Hops[idx+1])
		}
	}
	return class
}
