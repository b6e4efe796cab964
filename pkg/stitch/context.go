// Package stitch implements the plan data model — VlanRange-bearing
// Hops grouped into Paths and owned by Aggregates — and the Aggregate
// allocation state machine that drives a single aggregate's
// provider RPCs to completion.
//
// The model is an arena: a RunContext owns flat slices of
// Hop/Path/Aggregate, and cross-references (hop→aggregate, hop→path,
// aggregate→dependency) are integer handles into those slices rather
// than pointers, so the natural reference cycles (hop back-references
// its aggregate, which owns the hop) are expressible without
// ownership puzzles.
package stitch

import (
	"fmt"

	"github.com/kimjh/vlanstitch/pkg/classify"
)

// HopID, PathID and AggregateID are indices into a RunContext's arenas.
type (
	HopID       int
	PathID      int
	AggregateID int
)

// RunContext is the per-run registry of every hop, path and
// aggregate. Its lifecycle is scoped to exactly one reservation run.
type RunContext struct {
	hops       []*Hop
	paths      []*Path
	aggregates []*Aggregate
	byURN      map[string]AggregateID
	synonyms   map[string]string
}

// NewRunContext returns an empty arena ready for a fresh reservation run.
func NewRunContext() *RunContext {
	return &RunContext{
		byURN:    make(map[string]AggregateID),
		synonyms: make(map[string]string),
	}
}

// Hop returns the hop at id. Panics on an out-of-range id, which would
// indicate a programming error (a handle from a different RunContext).
func (rc *RunContext) Hop(id HopID) *Hop {
	return rc.hops[id]
}

// Path returns the path at id.
func (rc *RunContext) Path(id PathID) *Path {
	return rc.paths[id]
}

// Aggregate returns the aggregate at id.
func (rc *RunContext) Aggregate(id AggregateID) *Aggregate {
	return rc.aggregates[id]
}

// Aggregates returns every aggregate registered in this run, in
// creation order.
func (rc *RunContext) Aggregates() []*Aggregate {
	return rc.aggregates
}

// AddHop appends h to the arena and returns its handle.
func (rc *RunContext) AddHop(h *Hop) HopID {
	id := HopID(len(rc.hops))
	h.ID = id
	rc.hops = append(rc.hops, h)
	return id
}

// AddPath appends p to the arena and returns its handle.
func (rc *RunContext) AddPath(p *Path) PathID {
	id := PathID(len(rc.paths))
	p.ID = id
	rc.paths = append(rc.paths, p)
	return id
}

// AddAggregate appends a to the arena, indexing it under its
// canonicalized URN, and returns its handle.
func (rc *RunContext) AddAggregate(a *Aggregate) AggregateID {
	id := AggregateID(len(rc.aggregates))
	a.ID = id
	rc.aggregates = append(rc.aggregates, a)
	rc.byURN[rc.Canonicalize(a.URN)] = id
	return id
}

// CorrectFamilyFromAMType updates the family of every aggregate served
// at url from the provider-reported am_type. The URN-derived family is
// only a guess; the provider's own report wins.
func (rc *RunContext) CorrectFamilyFromAMType(url, amType string) {
	family, ok := classify.FamilyFromAMType(amType)
	if !ok {
		return
	}
	for _, a := range rc.aggregates {
		if a.ProviderURL == url && a.Family != family {
			a.Family = family
		}
	}
}

// FindAggregate returns the unique aggregate instance for urn,
// resolved modulo the synonym relation.
func (rc *RunContext) FindAggregate(urn string) (*Aggregate, error) {
	id, ok := rc.byURN[rc.Canonicalize(urn)]
	if !ok {
		return nil, fmt.Errorf("stitch: no aggregate registered for urn %q", urn)
	}
	return rc.aggregates[id], nil
}
