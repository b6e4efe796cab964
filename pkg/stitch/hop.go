package stitch

import (
	"fmt"

	"github.com/kimjh/vlanstitch/pkg/vlan"
)

// Hop is one directed segment of one path at one aggregate.
type Hop struct {
	ID HopID

	// StableID is unique within the enclosing path.
	StableID string
	// InterfaceURN may repeat across paths on the same aggregate.
	InterfaceURN string

	Path      PathID
	Aggregate AggregateID

	// ImportVlans, when true, means this hop must adopt the tag chosen
	// upstream; ImportFrom names the hop whose manifest tag seeds it.
	ImportVlans bool
	ImportFrom  HopID
	hasImport   bool

	// Xlates is false when this hop cannot translate and must share
	// its tag with the adjacent non-translating hop on the same path.
	Xlates bool

	Producer bool
	Consumer bool

	RequestedSuggested vlan.Range
	RequestedRange     vlan.Range
	SCSRange           vlan.Range // immutable once set by the plan
	ManifestSuggested  vlan.Range
	ManifestRange      vlan.Range
	Unavailable        vlan.Range

	Loose           bool
	ExcludeFromPlan bool
}

// SetImportFrom records that h imports its tag state from parent.
func (h *Hop) SetImportFrom(parent HopID) {
	h.ImportFrom = parent
	h.hasImport = true
	h.ImportVlans = true
}

// ImportFromValid reports whether h.ImportFrom names a real parent hop.
func (h *Hop) ImportFromValid() bool {
	return h.hasImport
}

// HasManifest reports whether h has ingested a manifest at all.
func (h *Hop) HasManifest() bool {
	return !h.ManifestSuggested.IsEmpty() || h.ManifestSuggested.IsAny()
}

// ResolveImport computes (newSuggested, newRange) from the upstream
// hop named by h.ImportFrom: the parent's manifest tag seeds the
// suggestion, and its manifest range is intersected with this hop's
// range minus the tags already proven unavailable here.
func (h *Hop) ResolveImport(rc *RunContext) (vlan.Range, vlan.Range, error) {
	if !h.hasImport {
		return vlan.Range{}, vlan.Range{}, fmt.Errorf("stitch: hop %s has no importFrom", h.StableID)
	}
	parent := rc.Hop(h.ImportFrom)
	if !parent.HasManifest() {
		return vlan.Range{}, vlan.Range{}, &InternalInconsistentError{
			Reason: fmt.Sprintf("hop %s imports from %s which lacks a manifest", h.StableID, parent.StableID),
		}
	}

	newSuggested := parent.ManifestSuggested
	if newSuggested.IsEmpty() && !newSuggested.IsAny() {
		newSuggested = h.RequestedSuggested
		if newSuggested.IsEmpty() {
			newSuggested = vlan.Any()
		}
	}

	newRange := vlan.Intersect(parent.ManifestRange, h.RequestedRange)
	newRange = vlan.Subtract(newRange, h.Unavailable)

	if newRange.IsEmpty() {
		return vlan.Range{}, vlan.Range{}, &InternalInconsistentError{
			Reason: fmt.Sprintf("hop %s: resolveImport produced an empty range", h.StableID),
		}
	}
	if tag, ok := newSuggested.SingleTag(); ok {
		if !newRange.Contains(tag) {
			return vlan.Range{}, vlan.Range{}, &InternalInconsistentError{
				Reason: fmt.Sprintf("hop %s: resolved suggested %d not in resolved range %s", h.StableID, tag, newRange),
			}
		}
	} else if !newSuggested.IsAny() {
		return vlan.Range{}, vlan.Range{}, &InternalInconsistentError{
			Reason: fmt.Sprintf("hop %s: resolved suggested %s is neither ANY nor a single tag", h.StableID, newSuggested),
		}
	}

	return newSuggested, newRange, nil
}

// InternalInconsistentError signals a violated invariant in our own
// state: unconditionally fatal at the scheduler.
type InternalInconsistentError struct {
	Reason string
}

func (e *InternalInconsistentError) Error() string {
	return "internal inconsistency: " + e.Reason
}
