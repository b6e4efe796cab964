package stitch

import (
	"context"
	"fmt"

	"github.com/kimjh/vlanstitch/pkg/classify"
	"github.com/kimjh/vlanstitch/pkg/vlan"
)

// State is one of the Aggregate lifecycle states.
type State int

const (
	Pending State = iota
	Ready
	Allocating
	Completed
	NeedsRedo
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Ready:
		return "Ready"
	case Allocating:
		return "Allocating"
	case Completed:
		return "Completed"
	case NeedsRedo:
		return "NeedsRedo"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Outcome reports what Allocate actually did, for the scheduler to act on.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeAlreadyDone
	OutcomeNeedsNegotiation
	OutcomeFailed
)

// StatusResult is the per-sliver status ProviderClient.Status reports.
type StatusResult struct {
	Status    string // ready | failed | allocated | provisioned | notready
	Message   string
	SliverURN string
}

// ProviderClient is the blocking RPC boundary to a resource provider.
// Concrete implementations live in pkg/transport; this
// package only depends on the interface, per Go convention of
// declaring interfaces at the point of use.
type ProviderClient interface {
	Allocate(ctx context.Context, url string, apiVersion int, slice string, requestDoc []byte) (manifestDoc []byte, logURL string, err error)
	Status(ctx context.Context, url string, apiVersion int, slice string) (StatusResult, error)
	Delete(ctx context.Context, url string, apiVersion int, slice string) error
	Describe(ctx context.Context, url string, apiVersion int, slice string) (manifestDoc []byte, err error)
}

// RSpecCodec is the opaque external document codec boundary.
type RSpecCodec interface {
	Splice(rc *RunContext, agg *Aggregate) (requestDoc []byte, err error)
	ParseManifest(rc *RunContext, agg *Aggregate, manifestDoc []byte, hop *Hop) (manifestSuggested, manifestRange vlan.Range, globalID string, err error)
}

// ArtifactWriter persists request documents for operator debugging.
// Implemented by pkg/storage.
type ArtifactWriter interface {
	WriteRequest(opName string, pceCallIdx, allocateTries int, doc []byte) error
}

// Deps bundles Allocate's external collaborators.
type Deps struct {
	Client  ProviderClient
	Codec   RSpecCodec
	Clock   Clock
	Storage ArtifactWriter // may be nil
}

// Aggregate is a unit of reservation: a resource provider owning one
// or more hops across paths.
type Aggregate struct {
	ID AggregateID

	URN           string
	Family        classify.Family
	APIVersion    int
	ProviderURL   string
	Slice         string
	OpName        string

	Hops  []HopID
	Paths []PathID

	DependsOn        []AggregateID
	InverseDependsOn []AggregateID

	State State

	AllocateTries  int
	LocalVlanTries int
	BusyPolls      int

	UserRequested  bool
	TriedThisRound bool

	// CircuitID is derived from the sliver URN reported by Status
	// (DCN providers bind a circuit id there); ProviderLogURL is the
	// per-allocation log link some providers return.
	CircuitID      string
	ProviderLogURL string
}

// Capability returns the provider-family capability struct for a.
func (a *Aggregate) Capability() Capability {
	return CapabilityFor(a.Family)
}

// DependenciesSatisfied reports whether every aggregate a depends on
// is Completed.
func (a *Aggregate) DependenciesSatisfied(rc *RunContext) bool {
	for _, dep := range a.DependsOn {
		if rc.Aggregate(dep).State != Completed {
			return false
		}
	}
	return true
}

// IsComplete reports whether every owned hop has a single-tag
// manifestSuggested within requestedRange.
func (a *Aggregate) IsComplete(rc *RunContext) bool {
	for _, hid := range a.Hops {
		h := rc.Hop(hid)
		tag, ok := h.ManifestSuggested.SingleTag()
		if !ok || !h.RequestedRange.Contains(tag) {
			return false
		}
	}
	return true
}

type hopPlan struct {
	hop         *Hop
	newSug      vlan.Range
	newRange    vlan.Range
	mustDelete  bool
	alreadyDone bool
}

// Allocate drives one attempt at reserving a's hops: resolve
// imports, detect redo, delete if needed, splice and send the
// request, ingest the manifest, and propagate to dependents.
func (a *Aggregate) Allocate(ctx context.Context, rc *RunContext, deps Deps, pceCallIdx int) (Outcome, classify.Kind, *classify.ProviderError, error) {
	a.State = Allocating
	a.AllocateTries++
	a.TriedThisRound = true
	capa := a.Capability()

	plans, err := a.copyAndDetectRedo(rc)
	if err != nil {
		a.State = Failed
		return OutcomeFailed, classify.InternalInconsistent, nil, err
	}

	allDone := true
	anyDelete := false
	for _, p := range plans {
		if !p.alreadyDone {
			allDone = false
		}
		if p.mustDelete {
			anyDelete = true
		}
	}
	if allDone && len(plans) > 0 {
		a.State = Completed
		a.propagate(rc)
		return OutcomeAlreadyDone, classify.Unknown, nil, nil
	}

	for _, p := range plans {
		p.hop.RequestedSuggested = p.newSug
		p.hop.RequestedRange = p.newRange
	}

	if anyDelete {
		// Delete is idempotent; "nothing to delete" counts as success,
		// so a delete error does not block the redo.
		_ = deps.Client.Delete(ctx, a.ProviderURL, a.APIVersion, a.Slice)
		if err := deps.Clock.Sleep(ctx, graceDuration(capa.GraceSecs)); err != nil {
			a.State = Failed
			return OutcomeFailed, classify.Transient, nil, err
		}
	}

	if err := a.sanityCheck(rc); err != nil {
		a.State = Failed
		return OutcomeFailed, classify.InternalInconsistent, nil, err
	}

	requestDoc, err := deps.Codec.Splice(rc, a)
	if err != nil {
		a.State = Failed
		return OutcomeFailed, classify.InternalInconsistent, nil, err
	}
	if deps.Storage != nil {
		_ = deps.Storage.WriteRequest(a.OpName, pceCallIdx, a.AllocateTries, requestDoc)
	}

	manifestDoc, logURL, perr := a.allocateWithBusyRetry(ctx, deps, requestDoc)
	if logURL != "" {
		a.ProviderLogURL = logURL
	}
	if perr != nil {
		kind := classify.Classify(a.Family, perr)
		if kind == classify.ProviderBusy {
			// allocateWithBusyRetry only returns a busy error once its
			// poll budget is spent.
			kind = classify.Transient
		}
		if kind == classify.VlanUnavailable {
			a.State = NeedsRedo
			return OutcomeNeedsNegotiation, kind, perr, nil
		}
		a.State = Failed
		return OutcomeFailed, kind, perr, nil
	}

	if err := a.ingestManifest(rc, deps, manifestDoc); err != nil {
		a.State = NeedsRedo
		return OutcomeNeedsNegotiation, classify.ManifestInconsistent, &classify.ProviderError{Message: err.Error()}, nil
	}

	if capa.NeedsReadyPoll {
		outcome, kind, perr, err := a.waitForReady(ctx, deps)
		if outcome != OutcomeCompleted {
			return outcome, kind, perr, err
		}
	}

	if !a.suggestedMatchesRequested(rc) {
		a.State = NeedsRedo
		return OutcomeNeedsNegotiation, suggestedNotRequestKind(), nil, nil
	}

	a.State = Completed
	a.propagate(rc)
	return OutcomeCompleted, classify.Unknown, nil, nil
}

// suggestedNotRequestKind is a private sentinel Kind signaling
// Allocating→NeedsRedo for a delivered-tag mismatch; the scheduler
// routes it to the negotiator's HandleSuggestedNotRequest rather than
// HandleVlanUnavailable.
func suggestedNotRequestKind() classify.Kind { return classify.Kind(-1) }

// IsSuggestedNotRequestKind reports whether k is the sentinel returned
// above.
func IsSuggestedNotRequestKind(k classify.Kind) bool { return k == classify.Kind(-1) }

func (a *Aggregate) copyAndDetectRedo(rc *RunContext) ([]*hopPlan, error) {
	var plans []*hopPlan
	for _, hid := range a.Hops {
		h := rc.Hop(hid)
		var newSug, newRange vlan.Range
		if h.ImportVlans {
			s, r, err := h.ResolveImport(rc)
			if err != nil {
				return nil, err
			}
			newSug, newRange = s, r
		} else {
			newSug, newRange = h.RequestedSuggested, h.RequestedRange
		}

		p := &hopPlan{hop: h, newSug: newSug, newRange: newRange}
		priorManifest := h.ManifestSuggested.Len() > 0 || h.ManifestSuggested.IsAny()

		switch {
		case !priorManifest:
			// No prior manifest: accept the new request values.
		case newSug.Equal(h.RequestedSuggested) && newRange.Equal(h.RequestedRange):
			p.alreadyDone = true
		case h.ManifestSuggested.Subset(newRange):
			// Prior manifest still lies within the new range: keep
			// the prior request as-is, no delete required.
			p.newSug = h.ManifestSuggested
			p.newRange = newRange
		default:
			p.mustDelete = true
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func (a *Aggregate) sanityCheck(rc *RunContext) error {
	byURN := make(map[string][]*Hop)
	for _, hid := range a.Hops {
		h := rc.Hop(hid)
		if !h.RequestedSuggested.IsAny() && !h.RequestedSuggested.Subset(h.RequestedRange) {
			return &InternalInconsistentError{Reason: fmt.Sprintf("hop %s requestedSuggested not within requestedRange", h.StableID)}
		}
		byURN[h.InterfaceURN] = append(byURN[h.InterfaceURN], h)
	}
	for urn, hops := range byURN {
		for i := 0; i < len(hops); i++ {
			for j := i + 1; j < len(hops); j++ {
				hi, hj := hops[i], hops[j]
				if hi.RequestedSuggested.IsAny() || hj.RequestedSuggested.IsAny() {
					continue
				}
				if hi.RequestedSuggested.Equal(hj.RequestedSuggested) {
					return &InternalInconsistentError{Reason: fmt.Sprintf("hops sharing urn %s request the same tag %s", urn, hi.RequestedSuggested)}
				}
			}
		}
	}
	if a.Family == classify.PG {
		for i := 0; i < len(a.Hops); i++ {
			for j := i + 1; j < len(a.Hops); j++ {
				hi, hj := rc.Hop(a.Hops[i]), rc.Hop(a.Hops[j])
				if hi.Path == hj.Path {
					continue
				}
				if hi.RequestedSuggested.IsAny() || hj.RequestedSuggested.IsAny() {
					continue
				}
				if hi.RequestedSuggested.Equal(hj.RequestedSuggested) {
					return &InternalInconsistentError{Reason: fmt.Sprintf("PG aggregate reuses tag %s across paths", hi.RequestedSuggested)}
				}
			}
		}
	}
	return nil
}

func (a *Aggregate) allocateWithBusyRetry(ctx context.Context, deps Deps, requestDoc []byte) ([]byte, string, *classify.ProviderError) {
	const maxBusyPolls = 5
	for {
		doc, logURL, err := deps.Client.Allocate(ctx, a.ProviderURL, a.APIVersion, a.Slice, requestDoc)
		if err == nil {
			return doc, logURL, nil
		}
		perr := toProviderError(err)
		kind := classify.Classify(a.Family, perr)
		if kind != classify.ProviderBusy || a.BusyPolls >= maxBusyPolls {
			if kind == classify.ProviderBusy {
				// Exhausted the busy-retry budget; surface as Transient.
				perr2 := *perr
				return nil, "", &perr2
			}
			return nil, "", perr
		}
		a.BusyPolls++
		if err := deps.Clock.Sleep(ctx, busyBackoff()); err != nil {
			return nil, "", &classify.ProviderError{Message: err.Error()}
		}
	}
}

func toProviderError(err error) *classify.ProviderError {
	if perr, ok := err.(*classify.ProviderError); ok {
		return perr
	}
	return &classify.ProviderError{Message: err.Error()}
}

func (a *Aggregate) ingestManifest(rc *RunContext, deps Deps, manifestDoc []byte) error {
	seen := make(map[string]int)
	for _, hid := range a.Hops {
		h := rc.Hop(hid)
		sug, rng, _, err := deps.Codec.ParseManifest(rc, a, manifestDoc, h)
		if err != nil {
			return fmt.Errorf("manifest parse for hop %s: %w", h.StableID, err)
		}
		tag, ok := sug.SingleTag()
		if !ok {
			return fmt.Errorf("manifest for hop %s is not a single concrete tag: %s", h.StableID, sug)
		}
		if !h.RequestedRange.Contains(tag) {
			return fmt.Errorf("manifest tag %d for hop %s outside requestedRange %s", tag, h.StableID, h.RequestedRange)
		}
		if h.Unavailable.Contains(tag) {
			return fmt.Errorf("manifest tag %d for hop %s is already marked unavailable", tag, h.StableID)
		}
		if prev, ok := seen[h.InterfaceURN]; ok && prev == tag {
			return fmt.Errorf("manifest tag %d reused across hops sharing urn %s", tag, h.InterfaceURN)
		}
		seen[h.InterfaceURN] = tag
		h.ManifestSuggested = sug
		h.ManifestRange = rng
	}
	return nil
}

func (a *Aggregate) suggestedMatchesRequested(rc *RunContext) bool {
	for _, hid := range a.Hops {
		h := rc.Hop(hid)
		tag, ok := h.ManifestSuggested.SingleTag()
		if !ok {
			return false
		}
		if reqTag, reqOK := h.RequestedSuggested.SingleTag(); reqOK && reqTag != tag {
			return false
		}
	}
	return true
}

func (a *Aggregate) waitForReady(ctx context.Context, deps Deps) (Outcome, classify.Kind, *classify.ProviderError, error) {
	const maxPolls = 10
	for i := 0; i < maxPolls; i++ {
		res, err := deps.Client.Status(ctx, a.ProviderURL, a.APIVersion, a.Slice)
		if err != nil {
			return OutcomeFailed, classify.Transient, toProviderError(err), nil
		}
		if res.SliverURN != "" {
			a.CircuitID = circuitIDFromSliver(res.SliverURN)
		}
		switch res.Status {
		case "ready":
			return OutcomeCompleted, classify.Unknown, nil, nil
		case "failed":
			if classify.ClassifyDCNStatus(res.Message) == classify.VlanUnavailable {
				a.State = NeedsRedo
				return OutcomeNeedsNegotiation, classify.VlanUnavailable, &classify.ProviderError{Message: res.Message}, nil
			}
			a.State = Failed
			return OutcomeFailed, classify.FatalPlan, &classify.ProviderError{Message: res.Message}, nil
		}
		if err := deps.Clock.Sleep(ctx, statusPollInterval()); err != nil {
			return OutcomeFailed, classify.Transient, nil, err
		}
	}
	a.State = Failed
	return OutcomeFailed, classify.Transient, &classify.ProviderError{Message: "status never reached ready"}, nil
}

// ClearManifests wipes the ingested manifest state of every owned hop.
// Called after a reservation is deleted so the next copy-and-detect
// pass treats the hops as never reserved.
func (a *Aggregate) ClearManifests(rc *RunContext) {
	for _, hid := range a.Hops {
		h := rc.Hop(hid)
		h.ManifestSuggested = vlan.Empty()
		h.ManifestRange = vlan.Empty()
	}
}

// circuitIDFromSliver derives a human-facing circuit id from the tail
// of a sliver URN.
func circuitIDFromSliver(urn string) string {
	for i := len(urn) - 1; i >= 0; i-- {
		if urn[i] == '+' || urn[i] == ':' {
			return urn[i+1:]
		}
	}
	return urn
}

// propagate queues every inverse dependent aggregate for
// re-evaluation: a Completed dependent becomes NeedsRedo, one in
// Allocating is left alone, and any other becomes Pending. A re-run
// in which every hop's input is unchanged ends as OutcomeAlreadyDone.
func (a *Aggregate) propagate(rc *RunContext) {
	for _, dep := range a.InverseDependsOn {
		d := rc.Aggregate(dep)
		if d.State == Completed {
			d.State = NeedsRedo
		} else if d.State != Allocating {
			d.State = Pending
		}
	}
}
