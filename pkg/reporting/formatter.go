package reporting

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

// ReportFormat represents the report output format
type ReportFormat string

const (
	ReportFormatText ReportFormat = "text"
	ReportFormatJSON ReportFormat = "json"
)

// Formatter generates formatted reports from run data
type Formatter struct {
	logger *Logger
}

// NewFormatter creates a new report formatter
func NewFormatter(logger *Logger) *Formatter {
	return &Formatter{
		logger: logger,
	}
}

// GenerateReport generates a report in the specified format
func (f *Formatter) GenerateReport(report *RunReport, format ReportFormat, outputPath string) error {
	switch format {
	case ReportFormatText:
		return f.generateTextReport(report, outputPath)
	case ReportFormatJSON:
		// Already handled by storage
		return fmt.Errorf("JSON format is automatically saved by storage")
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}

// generateTextReport generates a plain text report
func (f *Formatter) generateTextReport(report *RunReport, outputPath string) error {
	buf := f.FormatText(report)

	if err := os.WriteFile(outputPath, buf, 0644); err != nil {
		return fmt.Errorf("failed to write text report: %w", err)
	}

	f.logger.Info("Text report generated", "path", outputPath)
	return nil
}

// FormatText renders report as plain text suitable for the terminal.
func (f *Formatter) FormatText(report *RunReport) []byte {
	var buf bytes.Buffer

	// Header
	buf.WriteString(strings.Repeat("=", 80) + "\n")
	buf.WriteString("   VLAN STITCHING RESERVATION REPORT\n")
	buf.WriteString(strings.Repeat("=", 80) + "\n\n")

	// Run Summary
	status := "SUCCEEDED"
	if !report.Success {
		status = "FAILED"
	}
	buf.WriteString(fmt.Sprintf("Run ID:       %s\n", report.RunID))
	buf.WriteString(fmt.Sprintf("Operation:    %s\n", report.OpName))
	buf.WriteString(fmt.Sprintf("Slice:        %s\n", report.Slice))
	buf.WriteString(fmt.Sprintf("Status:       %s\n", status))
	buf.WriteString(fmt.Sprintf("Start Time:   %s\n", report.StartTime.Format("2006-01-02 15:04:05")))
	buf.WriteString(fmt.Sprintf("Duration:     %s\n", report.Duration))
	buf.WriteString(fmt.Sprintf("PCE Calls:    %d\n", report.PCECalls))
	buf.WriteString(fmt.Sprintf("Allocations:  %d\n", report.AllocateTotal))
	if report.Message != "" {
		buf.WriteString(fmt.Sprintf("Message:      %s\n", report.Message))
	}
	buf.WriteString("\n")

	// Aggregates
	buf.WriteString(strings.Repeat("-", 80) + "\n")
	buf.WriteString("AGGREGATES\n")
	buf.WriteString(strings.Repeat("-", 80) + "\n")
	for _, agg := range report.Aggregates {
		buf.WriteString(fmt.Sprintf("\n%s (%s)\n", agg.URN, agg.Family))
		buf.WriteString(fmt.Sprintf("  State:          %s\n", agg.State))
		buf.WriteString(fmt.Sprintf("  Allocate Tries: %d\n", agg.AllocateTries))
		if agg.LocalVlanTries > 0 {
			buf.WriteString(fmt.Sprintf("  VLAN Retries:   %d\n", agg.LocalVlanTries))
		}
		if agg.CircuitID != "" {
			buf.WriteString(fmt.Sprintf("  Circuit ID:     %s\n", agg.CircuitID))
		}
		if agg.ProviderLog != "" {
			buf.WriteString(fmt.Sprintf("  Provider Log:   %s\n", agg.ProviderLog))
		}
		for _, hop := range agg.Hops {
			vlanStr := hop.VLAN
			if vlanStr == "" {
				vlanStr = "-"
			}
			buf.WriteString(fmt.Sprintf("    hop %-20s path %-12s vlan %s\n", hop.HopID, hop.Path, vlanStr))
			if hop.ExcludedByPCE {
				buf.WriteString("      (excluded from plan)\n")
			}
		}
	}
	buf.WriteString("\n")

	// Errors
	if len(report.Errors) > 0 {
		buf.WriteString(strings.Repeat("-", 80) + "\n")
		buf.WriteString("ERRORS\n")
		buf.WriteString(strings.Repeat("-", 80) + "\n")
		for i, e := range report.Errors {
			buf.WriteString(fmt.Sprintf("%d. %s\n", i+1, e))
		}
		buf.WriteString("\n")
	}

	buf.WriteString(strings.Repeat("=", 80) + "\n")
	return buf.Bytes()
}
