// Package scheduler runs aggregates whose dependencies are satisfied,
// enforces global retry/PCE-call budgets, and drives PCE escalation
// and ripple-redo. The loop is a ready-queue over the dependency DAG
// with an explicit cancellation check at each step.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kimjh/vlanstitch/pkg/classify"
	"github.com/kimjh/vlanstitch/pkg/metrics"
	"github.com/kimjh/vlanstitch/pkg/negotiator"
	"github.com/kimjh/vlanstitch/pkg/reporting"
	"github.com/kimjh/vlanstitch/pkg/stitch"
)

// PlanExpander is the external path computation service boundary.
type PlanExpander interface {
	Expand(ctx context.Context, requestDoc []byte, excludeHops []string, hopUnavailable map[string]string) ([]byte, error)
}

// PlanLoader builds a fresh RunContext from an (expanded) plan
// document, wiring dependency edges and inverse-dependency edges.
type PlanLoader interface {
	Load(doc []byte) (*stitch.RunContext, error)
}

// LoaderFunc adapts a plain function to PlanLoader.
type LoaderFunc func(doc []byte) (*stitch.RunContext, error)

func (f LoaderFunc) Load(doc []byte) (*stitch.RunContext, error) { return f(doc) }

// Budgets are the global guards on one reservation run.
type Budgets struct {
	MaxPCECalls      int
	MaxAllocateTotal int
	// MaxAggregateTries gates when an escalation marks an aggregate's
	// hops excludeFromPlan so the PCE routes around it.
	MaxAggregateTries int
	// Deadline is the wall-clock budget for the whole run; zero means
	// unbounded.
	Deadline time.Duration
}

// Config bundles everything the scheduler needs to run once.
type Config struct {
	Deps       stitch.Deps
	Expander   PlanExpander
	Loader     PlanLoader
	Budgets    Budgets
	InitialDoc []byte
	Logger     *reporting.Logger
	Metrics    *metrics.Metrics
}

// Result is the scheduler's terminal outcome.
type Result struct {
	Success        bool
	FailureMessage string
	PCECalls       int
	AllocateTotal  int

	// Final is the RunContext of the last plan expansion, so callers
	// can report per-aggregate outcomes.
	Final *stitch.RunContext
}

// Run drives aggregates to completion. Cancellation is observed
// before each dispatch and after each RPC return.
func Run(ctx context.Context, cfg Config) (Result, error) {
	log := cfg.Logger
	if log == nil {
		log = reporting.NewLogger(reporting.LoggerConfig{Level: reporting.LogLevelError, Output: io.Discard})
	}
	if cfg.Deps.Clock == nil {
		cfg.Deps.Clock = stitch.RealClock()
	}

	rc, err := cfg.Loader.Load(cfg.InitialDoc)
	if err != nil {
		return Result{}, fmt.Errorf("scheduler: initial plan load: %w", err)
	}

	res := Result{Final: rc}
	pceCallIdx := 0
	start := cfg.Deps.Clock.Now()

	neg := negotiator.New(rc, deleterFor(cfg.Deps), cfg.Budgets.MaxAggregateTries)

	// retryRoot is the aggregate a RetryFromRoot outcome requeued; it is
	// dispatched ahead of the other ready aggregates.
	var retryRoot *stitch.Aggregate

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if cfg.Budgets.Deadline > 0 && cfg.Deps.Clock.Now().Sub(start) > cfg.Budgets.Deadline {
			res.Success = false
			res.FailureMessage = "scheduler: wall-clock deadline exceeded"
			finishRun(cfg.Metrics, "deadline")
			return res, nil
		}

		ready := readyAggregates(rc)
		if len(ready) == 0 {
			if anyAllocating(rc) {
				// Single-threaded default: this branch is unreachable
				// because Allocate runs synchronously below, but is
				// kept for a future parallel-dispatch scheduler where
				// other goroutines may still be mid-RPC.
				continue
			}
			if failed, msg := anyFailed(rc); failed {
				res.Success = false
				res.FailureMessage = msg
				finishRun(cfg.Metrics, "failed")
				return res, nil
			}
			if allSatisfied(rc) {
				res.Success = true
				log.Info("Reservation run complete", "aggregates", len(rc.Aggregates()), "allocations", res.AllocateTotal, "pce_calls", res.PCECalls)
				finishRun(cfg.Metrics, "success")
				return res, nil
			}
			res.Success = false
			res.FailureMessage = "scheduler: no ready aggregates but plan is unsatisfied"
			finishRun(cfg.Metrics, "stuck")
			return res, nil
		}

		agg := ready[0]
		if retryRoot != nil {
			for _, a := range ready {
				if a == retryRoot {
					agg = a
				}
			}
			retryRoot = nil
		}
		if res.AllocateTotal >= cfg.Budgets.MaxAllocateTotal {
			res.Success = false
			res.FailureMessage = "scheduler: global allocate-attempt budget exhausted"
			finishRun(cfg.Metrics, "budget")
			return res, nil
		}
		res.AllocateTotal++

		alog := log.WithAggregate(agg.URN, agg.Family.String())
		alog.Info("Allocating aggregate", "try", agg.AllocateTries+1)
		if cfg.Metrics != nil {
			cfg.Metrics.AggregatesActive.Inc()
		}

		outcome, kind, perr, allocErr := agg.Allocate(ctx, rc, cfg.Deps, pceCallIdx)

		if cfg.Metrics != nil {
			cfg.Metrics.AggregatesActive.Dec()
			cfg.Metrics.AllocateAttempts.WithLabelValues(agg.URN, outcomeLabel(outcome)).Inc()
		}

		if allocErr != nil {
			var iie *stitch.InternalInconsistentError
			if errors.As(allocErr, &iie) {
				res.Success = false
				res.FailureMessage = iie.Error()
				finishRun(cfg.Metrics, "internal")
				return res, nil
			}
			return res, allocErr
		}

		if err := ctx.Err(); err != nil {
			return res, err
		}

		switch outcome {
		case stitch.OutcomeCompleted, stitch.OutcomeAlreadyDone:
			alog.Info("Aggregate completed", "already_done", outcome == stitch.OutcomeAlreadyDone)
			continue

		case stitch.OutcomeFailed:
			switch kind {
			case classify.FatalUser:
				res.Success = false
				res.FailureMessage = "FatalUser: " + perr.Error()
				finishRun(cfg.Metrics, "fatal_user")
				return res, nil

			case classify.Transient, classify.ProviderBusy:
				// Retriable without renegotiation; the global allocate
				// budget and deadline bound the loop.
				alog.Warn("Transient provider error, will retry", "error", errMessage(perr, allocErr))
				agg.State = stitch.Pending
				continue

			case classify.FatalPlan:
				// The PCE may be able to route around this aggregate —
				// unless the user pinned it.
				if agg.UserRequested {
					res.Success = false
					res.FailureMessage = "FatalUser: user-pinned aggregate " + agg.URN + " cannot be replanned around: " + perr.Error()
					finishRun(cfg.Metrics, "fatal_user")
					return res, nil
				}
				alog.Warn("Aggregate cannot serve this plan, excluding and escalating", "error", perr.Error())
				for _, hid := range agg.Hops {
					rc.Hop(hid).ExcludeFromPlan = true
				}
				_ = deleterFor(cfg.Deps).Delete(rc, agg)
				agg.ClearManifests(rc)
				newRC, terminal, rcErr := escalate(ctx, &cfg, rc, &res, log, &pceCallIdx)
				if terminal {
					return res, rcErr
				}
				rc = newRC
				neg = negotiator.New(rc, deleterFor(cfg.Deps), cfg.Budgets.MaxAggregateTries)
				continue

			default:
				agg.State = stitch.Failed
				res.Success = false
				res.FailureMessage = fmt.Sprintf("aggregate %s failed: %v (%s)", agg.URN, perr, kind)
				finishRun(cfg.Metrics, "failed")
				return res, nil
			}

		case stitch.OutcomeNeedsNegotiation:
			var nres negotiator.Result
			if stitch.IsSuggestedNotRequestKind(kind) {
				alog.Warn("Provider delivered a different tag than requested")
				nres = neg.HandleSuggestedNotRequest(agg)
			} else if kind == classify.ManifestInconsistent {
				// An inconsistent manifest is plan-fatal once the
				// reservation is deleted.
				alog.Warn("Manifest violated invariants", "error", perr.Error())
				_ = deleterFor(cfg.Deps).Delete(rc, agg)
				agg.ClearManifests(rc)
				for _, hid := range agg.Hops {
					rc.Hop(hid).ExcludeFromPlan = true
				}
				nres = negotiator.Result{Outcome: negotiator.OutcomeFatalPlan}
				if agg.UserRequested {
					nres.Outcome = negotiator.OutcomeFatalUser
					nres.FatalMessage = "user-pinned aggregate " + agg.URN + " returned an inconsistent manifest: " + perr.Error()
				}
			} else {
				alog.Warn("VLAN unavailable, negotiating", "error", perr.Error())
				nres = neg.HandleVlanUnavailable(agg, perr, nil)
			}

			if cfg.Metrics != nil {
				cfg.Metrics.Negotiations.WithLabelValues(nres.Outcome.String()).Inc()
				cfg.Metrics.RedoCycles.WithLabelValues(agg.URN).Inc()
			}
			alog.Info("Negotiation decision", "outcome", nres.Outcome.String())

			switch nres.Outcome {
			case negotiator.OutcomeRetryLocal:
				continue
			case negotiator.OutcomeRetryFromRoot:
				retryRoot = rc.Aggregate(nres.RootToRetry)
				retryRoot.State = stitch.Ready
				continue
			case negotiator.OutcomeFatalUser:
				res.Success = false
				res.FailureMessage = nres.FatalMessage
				finishRun(cfg.Metrics, "fatal_user")
				return res, nil
			case negotiator.OutcomeEscalateToPCE, negotiator.OutcomeFatalPlan:
				newRC, terminal, rcErr := escalate(ctx, &cfg, rc, &res, log, &pceCallIdx)
				if terminal {
					return res, rcErr
				}
				rc = newRC
				neg = negotiator.New(rc, deleterFor(cfg.Deps), cfg.Budgets.MaxAggregateTries)
				continue
			}
		}
	}
}

// escalate implements the scheduler side of OutcomeEscalateToPCE:
// budget check, re-expansion, counter bumps. terminal reports that the
// run is over (res already carries the failure, or err the abort).
func escalate(ctx context.Context, cfg *Config, rc *stitch.RunContext, res *Result, log *reporting.Logger, pceCallIdx *int) (newRC *stitch.RunContext, terminal bool, err error) {
	if res.PCECalls >= cfg.Budgets.MaxPCECalls {
		res.Success = false
		res.FailureMessage = "scheduler: PCE call budget exhausted"
		finishRun(cfg.Metrics, "budget")
		return nil, true, nil
	}
	newRC, err = reExpand(ctx, *cfg, rc, log)
	if err != nil {
		return nil, true, err
	}
	res.Final = newRC
	res.PCECalls++
	*pceCallIdx = *pceCallIdx + 1
	if cfg.Metrics != nil {
		cfg.Metrics.PCECalls.Inc()
	}
	return newRC, false, nil
}

func errMessage(perr *classify.ProviderError, err error) string {
	if perr != nil {
		return perr.Error()
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func outcomeLabel(o stitch.Outcome) string {
	switch o {
	case stitch.OutcomeCompleted:
		return "completed"
	case stitch.OutcomeAlreadyDone:
		return "already_done"
	case stitch.OutcomeNeedsNegotiation:
		return "needs_negotiation"
	default:
		return "failed"
	}
}

func finishRun(m *metrics.Metrics, result string) {
	if m != nil {
		m.RunsCompleted.WithLabelValues(result).Inc()
	}
}

func readyAggregates(rc *stitch.RunContext) []*stitch.Aggregate {
	var out []*stitch.Aggregate
	for _, a := range rc.Aggregates() {
		switch a.State {
		case stitch.Pending, stitch.NeedsRedo:
			// NeedsRedo aggregates re-enter the ready set once their
			// dependencies are satisfied again; the negotiator already
			// mutated their requested tags.
			if a.DependenciesSatisfied(rc) {
				a.State = stitch.Ready
				out = append(out, a)
			}
		case stitch.Ready:
			out = append(out, a)
		}
	}
	return out
}

func anyAllocating(rc *stitch.RunContext) bool {
	for _, a := range rc.Aggregates() {
		if a.State == stitch.Allocating {
			return true
		}
	}
	return false
}

func anyFailed(rc *stitch.RunContext) (bool, string) {
	for _, a := range rc.Aggregates() {
		if a.State == stitch.Failed {
			return true, fmt.Sprintf("aggregate %s is failed", a.URN)
		}
	}
	return false, ""
}

func allSatisfied(rc *stitch.RunContext) bool {
	for _, a := range rc.Aggregates() {
		if a.State != stitch.Completed {
			return false
		}
	}
	return true
}

// reExpand gathers the accumulated exclusion and unavailability
// hints from the dying RunContext, asks the PCE for a fresh plan, and
// rebuilds the aggregate graph.
func reExpand(ctx context.Context, cfg Config, rc *stitch.RunContext, log *reporting.Logger) (*stitch.RunContext, error) {
	excludes, hints := accumulatedHints(rc)
	log.Info("Escalating to PCE", "excluded_hops", len(excludes), "hinted_hops", len(hints))
	doc, err := cfg.Expander.Expand(ctx, cfg.InitialDoc, excludes, hints)
	if err != nil {
		return nil, fmt.Errorf("scheduler: PCE expand: %w", err)
	}
	newRC, err := cfg.Loader.Load(doc)
	if err != nil {
		return nil, fmt.Errorf("scheduler: reload expanded plan: %w", err)
	}
	return newRC, nil
}

func accumulatedHints(rc *stitch.RunContext) ([]string, map[string]string) {
	var excludes []string
	hints := map[string]string{}
	for _, a := range rc.Aggregates() {
		for _, hid := range a.Hops {
			h := rc.Hop(hid)
			if h.ExcludeFromPlan {
				excludes = append(excludes, h.StableID)
			}
			if !h.Unavailable.IsEmpty() {
				hints[h.StableID] = h.Unavailable.String()
			}
		}
	}
	return excludes, hints
}

type clientDeleter struct {
	deps stitch.Deps
}

func (d clientDeleter) Delete(rc *stitch.RunContext, agg *stitch.Aggregate) error {
	return d.deps.Client.Delete(context.Background(), agg.ProviderURL, agg.APIVersion, agg.Slice)
}

func deleterFor(deps stitch.Deps) negotiator.Deleter {
	return clientDeleter{deps: deps}
}
