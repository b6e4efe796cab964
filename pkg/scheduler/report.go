package scheduler

import (
	"fmt"
	"time"

	"github.com/kimjh/vlanstitch/pkg/reporting"
)

// BuildReport converts a finished run into a reporting.RunReport.
func BuildReport(res Result, opName, slice string, start, end time.Time) *reporting.RunReport {
	report := &reporting.RunReport{
		RunID:         fmt.Sprintf("%s-%s", opName, start.Format("20060102-150405")),
		OpName:        opName,
		Slice:         slice,
		StartTime:     start,
		EndTime:       end,
		Duration:      end.Sub(start).Round(time.Second).String(),
		Success:       res.Success,
		Message:       res.FailureMessage,
		PCECalls:      res.PCECalls,
		AllocateTotal: res.AllocateTotal,
	}
	if res.Success {
		report.Status = reporting.StatusCompleted
	} else {
		report.Status = reporting.StatusFailed
		if res.FailureMessage != "" {
			report.Errors = append(report.Errors, res.FailureMessage)
		}
	}

	if res.Final == nil {
		return report
	}
	for _, a := range res.Final.Aggregates() {
		ar := reporting.AggregateResult{
			URN:            a.URN,
			Family:         a.Family.String(),
			State:          a.State.String(),
			AllocateTries:  a.AllocateTries,
			LocalVlanTries: a.LocalVlanTries,
			CircuitID:      a.CircuitID,
			ProviderLog:    a.ProviderLogURL,
		}
		for _, hid := range a.Hops {
			h := res.Final.Hop(hid)
			ar.Hops = append(ar.Hops, reporting.HopAssignment{
				HopID:         h.StableID,
				InterfaceURN:  h.InterfaceURN,
				Path:          res.Final.Path(h.Path).GlobalID,
				VLAN:          h.ManifestSuggested.String(),
				Range:         h.RequestedRange.String(),
				Unavailable:   h.Unavailable.String(),
				ExcludedByPCE: h.ExcludeFromPlan,
			})
		}
		report.Aggregates = append(report.Aggregates, ar)
	}
	return report
}
