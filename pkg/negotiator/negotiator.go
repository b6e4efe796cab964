// Package negotiator decides how a failed aggregate allocation
// continues: retry locally with new tags, redo an upstream
// ANY-choosing ancestor, or escalate to the plan expansion service.
package negotiator

import (
	"math/rand"

	"github.com/kimjh/vlanstitch/pkg/classify"
	"github.com/kimjh/vlanstitch/pkg/stitch"
	"github.com/kimjh/vlanstitch/pkg/vlan"
)

// Outcome tells the scheduler what to do next.
type Outcome int

const (
	// OutcomeRetryLocal means the negotiator reselected tags in place;
	// the aggregate is back in Ready and the scheduler should
	// reattempt it in the normal ready-queue order.
	OutcomeRetryLocal Outcome = iota
	// OutcomeRetryFromRoot means the simple upstream-ANY fast path
	// applied; the scheduler should requeue the named root aggregate
	// immediately, ahead of FIFO order.
	OutcomeRetryFromRoot
	// OutcomeEscalateToPCE means the scheduler must call PlanExpander
	// again with the accumulated hints.
	OutcomeEscalateToPCE
	// OutcomeFatalUser terminates the scheduler.
	OutcomeFatalUser
	// OutcomeFatalPlan is promoted to OutcomeFatalUser by the caller
	// when the aggregate is userRequested; otherwise it behaves like
	// OutcomeEscalateToPCE.
	OutcomeFatalPlan
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRetryLocal:
		return "RetryLocal"
	case OutcomeRetryFromRoot:
		return "RetryFromRoot"
	case OutcomeEscalateToPCE:
		return "EscalateToPCE"
	case OutcomeFatalUser:
		return "FatalUser"
	case OutcomeFatalPlan:
		return "FatalPlan"
	default:
		return "Unknown"
	}
}

// Result is the negotiator's decision, plus enough context for the
// scheduler to act (which root aggregate to requeue, which to delete).
type Result struct {
	Outcome      Outcome
	RootToRetry  stitch.AggregateID
	ToDelete     []stitch.AggregateID
	FatalMessage string
}

// Deleter is the scheduler-provided hook for issuing a Delete RPC
// against an aggregate as part of ripple-redo; it is intentionally
// narrow so the negotiator stays free of ProviderClient plumbing.
type Deleter interface {
	Delete(rc *stitch.RunContext, agg *stitch.Aggregate) error
}

// Negotiator holds the per-run state the negotiation entry points
// operate on.
type Negotiator struct {
	RC     *stitch.RunContext
	Delete Deleter
	Rng    *rand.Rand

	// MaxAllocateTries is the per-aggregate attempt count beyond which
	// an escalation also asks the PCE to route around the aggregate.
	MaxAllocateTries int
}

// New returns a Negotiator bound to rc.
func New(rc *stitch.RunContext, deleter Deleter, maxAllocateTries int) *Negotiator {
	return &Negotiator{RC: rc, Delete: deleter, Rng: rand.New(rand.NewSource(1)), MaxAllocateTries: maxAllocateTries}
}

// HandleVlanUnavailable is the entry point for a VlanUnavailable
// classification. maybeFailedHop is an optional hint (e.g. derived
// from a DCN link-name parse); when nil the negotiator falls back to
// the hop hint in perr.Value, then to the whole aggregate.
func (n *Negotiator) HandleVlanUnavailable(agg *stitch.Aggregate, perr *classify.ProviderError, maybeFailedHop *stitch.HopID) Result {
	failed := n.identifyFailedHops(agg, perr, maybeFailedHop)

	if fast, ok := n.trySimpleUpstreamAny(agg, failed); ok {
		return fast
	}

	if reason := n.localRetryDisqualified(agg, failed, perr); reason != "" {
		return n.escalate(agg)
	}

	return n.localReselect(agg, failed)
}

// HandleSuggestedNotRequest handles a provider delivering a different
// single tag than requested. It walks importFrom upward looking for an
// ancestor hop whose aggregate chose ANY (it picked the wrong tag);
// if found, the ancestor is deleted and redone
// adopting the delivered tag, and this aggregate is redone after it.
// With no ANY ancestor, mark the delivered tag unavailable at every
// downstream importing hop and escalate.
func (n *Negotiator) HandleSuggestedNotRequest(agg *stitch.Aggregate) Result {
	for _, hid := range agg.Hops {
		h := n.RC.Hop(hid)
		tag, ok := h.ManifestSuggested.SingleTag()
		if !ok {
			continue
		}
		if reqTag, reqOK := h.RequestedSuggested.SingleTag(); !reqOK || reqTag == tag {
			continue
		}

		cur := hid
		for {
			curHop := n.RC.Hop(cur)
			if !curHop.ImportFromValid() {
				break
			}
			parent := n.RC.Hop(curHop.ImportFrom)
			parentAgg := n.RC.Aggregate(parent.Aggregate)
			if parent.RequestedSuggested.IsAny() {
				if !parent.RequestedRange.Contains(tag) {
					break
				}
				parent.RequestedSuggested = vlan.Single(tag)
				n.deleteAndReset(parentAgg)
				n.deleteAndReset(agg)
				return Result{Outcome: OutcomeRetryFromRoot, RootToRetry: parentAgg.ID, ToDelete: []stitch.AggregateID{parentAgg.ID, agg.ID}}
			}
			cur = curHop.ImportFrom
		}

		// No ANY-choosing ancestor: the tag cannot be renegotiated
		// locally. Record it as unusable wherever it would be copied,
		// so the next plan expansion avoids it.
		for _, dep := range agg.InverseDependsOn {
			d := n.RC.Aggregate(dep)
			for _, dhid := range d.Hops {
				dh := n.RC.Hop(dhid)
				if dh.ImportVlans {
					dh.Unavailable = dh.Unavailable.Add(tag)
				}
			}
		}
	}
	return n.escalate(agg)
}

// deleteAndReset deletes a's reservation, wipes its manifests, and
// puts it back in Pending for re-evaluation.
func (n *Negotiator) deleteAndReset(a *stitch.Aggregate) {
	if n.Delete != nil {
		_ = n.Delete.Delete(n.RC, a)
	}
	a.ClearManifests(n.RC)
	a.State = stitch.Pending
}

// identifyFailedHops finds the hops the provider rejected and
// expands them to their tag-agreement equivalence class.
func (n *Negotiator) identifyFailedHops(agg *stitch.Aggregate, perr *classify.ProviderError, hint *stitch.HopID) []stitch.HopID {
	if hint != nil {
		return n.expandToEquivalenceClass(agg, *hint)
	}

	if perr != nil && perr.Value != "" {
		// The caller is expected to have pre-resolved perr.Value into a
		// path when it can; here we treat a non-empty Value as a hop
		// stable-id hint produced by the caller's family-specific
		// message parse.
		for _, hid := range agg.Hops {
			h := n.RC.Hop(hid)
			if h.StableID == perr.Value {
				return n.expandToEquivalenceClass(agg, hid)
			}
		}
	}

	if len(agg.Hops) == 1 {
		return n.expandToEquivalenceClass(agg, agg.Hops[0])
	}
	return agg.Hops
}

func (n *Negotiator) expandToEquivalenceClass(agg *stitch.Aggregate, representative stitch.HopID) []stitch.HopID {
	h := n.RC.Hop(representative)
	path := n.RC.Path(h.Path)
	seen := map[stitch.HopID]bool{representative: true}
	out := []stitch.HopID{representative}
	for idx, hid := range path.Hops {
		if hid != representative {
			continue
		}
		for _, other := range path.EquivalenceClassAt(n.RC, idx) {
			if !seen[other] {
				seen[other] = true
				out = append(out, other)
			}
		}
	}
	return out
}

// trySimpleUpstreamAny attempts the fast path: a single translating
// failed hop whose import chain roots at an aggregate that chose ANY
// is fixed by retiring the tag at the root and redoing the chain.
func (n *Negotiator) trySimpleUpstreamAny(agg *stitch.Aggregate, failed []stitch.HopID) (Result, bool) {
	if len(failed) != 1 {
		return Result{}, false
	}
	h := n.RC.Hop(failed[0])
	if !h.Xlates || !h.ImportFromValid() {
		return Result{}, false
	}

	var chain []stitch.HopID
	cur := h.ImportFrom
	var root *stitch.Hop
	for {
		ch := n.RC.Hop(cur)
		chain = append(chain, cur)
		if !ch.ImportFromValid() {
			root = ch
			break
		}
		cur = ch.ImportFrom
	}
	if root == nil || !root.RequestedSuggested.IsAny() {
		return Result{}, false
	}

	tag, hasTag := failedTag(h)
	if hasTag {
		h.Unavailable = h.Unavailable.Add(tag)
		root.Unavailable = root.Unavailable.Add(tag)
	}
	for _, hid := range chain[:len(chain)-1] {
		ih := n.RC.Hop(hid)
		ih.RequestedRange = vlan.Subtract(ih.SCSRange, ih.Unavailable)
	}
	root.RequestedRange = vlan.Subtract(root.SCSRange, root.Unavailable)

	rootAgg := n.RC.Aggregate(root.Aggregate)
	toDelete := []stitch.AggregateID{rootAgg.ID}
	n.deleteAndReset(rootAgg)
	for _, hid := range append(chain, failed[0]) {
		a := n.RC.Aggregate(n.RC.Hop(hid).Aggregate)
		already := false
		for _, d := range toDelete {
			if d == a.ID {
				already = true
			}
		}
		if !already {
			toDelete = append(toDelete, a.ID)
			n.deleteAndReset(a)
		}
	}
	rootAgg.State = stitch.Pending

	return Result{Outcome: OutcomeRetryFromRoot, RootToRetry: rootAgg.ID, ToDelete: toDelete}, true
}

// failedTag extracts the single unavailable tag off a hop's last
// requested suggestion, if it named one.
func failedTag(h *stitch.Hop) (int, bool) {
	return h.RequestedSuggested.SingleTag()
}

// localRetryDisqualified returns a non-empty reason string when this
// aggregate cannot simply pick new tags on its own.
func (n *Negotiator) localRetryDisqualified(agg *stitch.Aggregate, failed []stitch.HopID, perr *classify.ProviderError) string {
	capa := agg.Capability()
	if agg.LocalVlanTries >= capa.LocalVlanBudget {
		return "local retry budget exhausted"
	}
	for _, hid := range failed {
		h := n.RC.Hop(hid)
		if h.ImportVlans && h.ImportFromValid() {
			parent := n.RC.Hop(h.ImportFrom)
			if parent.RequestedSuggested.IsAny() {
				return "failed hop imports from an ANY-choosing parent"
			}
		}
		remaining := vlan.Subtract(h.RequestedRange, h.Unavailable)
		if remaining.Len() <= 1 {
			return "failed hop has no room left in its range"
		}
		if h.RequestedSuggested.IsAny() {
			return "provider rejected every tag it was free to choose"
		}
	}
	for _, dep := range agg.InverseDependsOn {
		d := n.RC.Aggregate(dep)
		if len(d.InverseDependsOn) > 0 {
			return "downstream dependent is itself a dependency of further aggregates"
		}
	}
	if perr != nil && !classify.VlanPatternMatches(agg.Family, perr) {
		return "error code does not match known VLAN-unavailability patterns"
	}
	return ""
}

// localReselect retires the rejected tags and picks fresh ones,
// avoiding interface collisions across paths and keeping
// non-translating pairs in agreement.
func (n *Negotiator) localReselect(agg *stitch.Aggregate, failed []stitch.HopID) Result {
	agg.LocalVlanTries++

	for _, hid := range failed {
		h := n.RC.Hop(hid)
		if h.RequestedSuggested.IsAny() {
			h.Unavailable = vlan.Union(h.Unavailable, h.RequestedRange)
		} else if tag, ok := h.RequestedSuggested.SingleTag(); ok {
			h.Unavailable = h.Unavailable.Add(tag)
		}
		h.RequestedRange = vlan.Subtract(h.RequestedRange, h.Unavailable)
	}

	nextRange := map[stitch.HopID]vlan.Range{}
	for _, hid := range failed {
		h := n.RC.Hop(hid)
		nr := h.RequestedRange
		for _, oid := range agg.Hops {
			if oid == hid {
				continue
			}
			other := n.RC.Hop(oid)
			sameURNOtherPath := other.InterfaceURN == h.InterfaceURN && other.Path != h.Path
			pgCrossPath := agg.Family == classify.PG && other.Path != h.Path
			if sameURNOtherPath || pgCrossPath {
				if tag, ok := other.RequestedSuggested.SingleTag(); ok {
					nr = vlan.Subtract(nr, vlan.Single(tag))
				}
			}
		}
		nextRange[hid] = nr
	}

	for i, hid := range failed {
		for _, other := range failed[i+1:] {
			hi, ho := n.RC.Hop(hid), n.RC.Hop(other)
			if hi.Path != ho.Path {
				continue
			}
			if !hi.Xlates || !ho.Xlates {
				inter := vlan.Intersect(nextRange[hid], nextRange[other])
				nextRange[hid] = inter
				nextRange[other] = inter
			}
		}
	}

	for _, hid := range failed {
		h := n.RC.Hop(hid)
		if h.Producer {
			h.RequestedSuggested = vlan.Any()
			continue
		}
		nr := nextRange[hid]
		tag, ok := nr.PickRandom(n.Rng)
		if !ok {
			return n.escalate(agg)
		}
		h.RequestedSuggested = vlan.Single(tag)

		for _, hid2 := range failed {
			if hid2 == hid {
				continue
			}
			h2 := n.RC.Hop(hid2)
			if h2.Path == h.Path && (!h.Xlates || !h2.Xlates) {
				h2.RequestedSuggested = vlan.Single(tag)
			}
		}
	}

	// An equivalence-class partner owned by a different aggregate may
	// already hold a reservation on the old tag; it is deleted and
	// redone with the new pick.
	var toDelete []stitch.AggregateID
	for _, hid := range failed {
		a := n.RC.Aggregate(n.RC.Hop(hid).Aggregate)
		if a.ID == agg.ID || a.State != stitch.Completed {
			continue
		}
		already := false
		for _, d := range toDelete {
			if d == a.ID {
				already = true
			}
		}
		if !already {
			toDelete = append(toDelete, a.ID)
			n.deleteAndReset(a)
		}
	}

	agg.State = stitch.Ready
	return Result{Outcome: OutcomeRetryLocal, ToDelete: toDelete}
}

// escalate hands the aggregate back to the PCE, or fails the run
// outright when the user pinned it.
func (n *Negotiator) escalate(agg *stitch.Aggregate) Result {
	if agg.UserRequested {
		return Result{Outcome: OutcomeFatalUser, FatalMessage: "user-pinned aggregate " + agg.URN + " cannot be replanned around"}
	}
	if agg.AllocateTries > n.MaxAllocateTries {
		for _, hid := range agg.Hops {
			n.RC.Hop(hid).ExcludeFromPlan = true
		}
	}
	return Result{Outcome: OutcomeEscalateToPCE}
}
