package reporting

import (
	"encoding/json"
	"fmt"
	"time"
)

// OutputFormat represents the progress output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// ProgressReporter reports reservation run progress
type ProgressReporter struct {
	format OutputFormat
	logger *Logger
}

// NewProgressReporter creates a new progress reporter
func NewProgressReporter(format OutputFormat, logger *Logger) *ProgressReporter {
	return &ProgressReporter{
		format: format,
		logger: logger,
	}
}

// ReportState reports the current run state
func (pr *ProgressReporter) ReportState(state LiveRunState) {
	switch pr.format {
	case FormatJSON:
		pr.reportJSON(state)
	default:
		pr.reportText(state)
	}
}

// ReportStateTransition reports an aggregate state transition
func (pr *ProgressReporter) ReportStateTransition(aggregateURN, from, to string) {
	switch pr.format {
	case FormatJSON:
		data, _ := json.Marshal(map[string]interface{}{
			"event":      "state_transition",
			"aggregate":  aggregateURN,
			"from_state": from,
			"to_state":   to,
			"timestamp":  time.Now(),
		})
		fmt.Println(string(data))
	default:
		fmt.Printf("[STATE] %s: %s -> %s\n", aggregateURN, from, to)
	}
}

// ReportNegotiation reports a VLAN negotiation decision
func (pr *ProgressReporter) ReportNegotiation(aggregateURN, outcome string) {
	switch pr.format {
	case FormatJSON:
		data, _ := json.Marshal(map[string]interface{}{
			"event":     "vlan_negotiation",
			"aggregate": aggregateURN,
			"outcome":   outcome,
			"timestamp": time.Now(),
		})
		fmt.Println(string(data))
	default:
		fmt.Printf("[NEGOTIATE] %s: %s\n", aggregateURN, outcome)
	}
}

// ReportPCEEscalation reports a plan re-expansion
func (pr *ProgressReporter) ReportPCEEscalation(call int, excludedHops int) {
	switch pr.format {
	case FormatJSON:
		data, _ := json.Marshal(map[string]interface{}{
			"event":         "pce_escalation",
			"call":          call,
			"excluded_hops": excludedHops,
			"timestamp":     time.Now(),
		})
		fmt.Println(string(data))
	default:
		fmt.Printf("[PCE] escalation #%d (%d hops excluded)\n", call, excludedHops)
	}
}

// ReportRunCompleted reports run completion
func (pr *ProgressReporter) ReportRunCompleted(report *RunReport) {
	switch pr.format {
	case FormatJSON:
		data, _ := json.Marshal(map[string]interface{}{
			"event":     "run_completed",
			"report":    report,
			"timestamp": time.Now(),
		})
		fmt.Println(string(data))
	default:
		pr.printTextSummary(report)
	}
}

// reportText outputs progress in plain text format
func (pr *ProgressReporter) reportText(state LiveRunState) {
	elapsed := time.Since(state.StartTime).Round(time.Second)
	fmt.Printf("[%s] %s | Aggregates: %d/%d | Elapsed: %s\n",
		time.Now().Format("15:04:05"),
		state.State,
		state.CompletedAggregates,
		state.TotalAggregates,
		elapsed,
	)

	if state.CurrentAggregate != "" {
		fmt.Printf("  Allocating: %s\n", state.CurrentAggregate)
	}
}

// reportJSON outputs progress in JSON format
func (pr *ProgressReporter) reportJSON(state LiveRunState) {
	data, err := json.Marshal(state)
	if err != nil {
		pr.logger.Error("Failed to marshal state", "error", err)
		return
	}
	fmt.Println(string(data))
}

// printTextSummary prints the final run summary in plain text
func (pr *ProgressReporter) printTextSummary(report *RunReport) {
	status := "SUCCEEDED"
	if !report.Success {
		status = "FAILED"
	}
	fmt.Printf("\n[DONE] %s: %s in %s (%d allocations, %d PCE calls)\n",
		report.OpName, status, report.Duration, report.AllocateTotal, report.PCECalls)
	if report.Message != "" {
		fmt.Printf("  %s\n", report.Message)
	}
	for _, agg := range report.Aggregates {
		fmt.Printf("  %s: %s\n", agg.URN, agg.State)
	}
}
