package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kimjh/vlanstitch/pkg/metrics"
	"github.com/kimjh/vlanstitch/pkg/reporting"
	"github.com/kimjh/vlanstitch/pkg/rspec"
	"github.com/kimjh/vlanstitch/pkg/scheduler"
	"github.com/kimjh/vlanstitch/pkg/stitch"
	"github.com/kimjh/vlanstitch/pkg/storage"
	"github.com/kimjh/vlanstitch/pkg/transport"
	"github.com/kimjh/vlanstitch/pkg/vlan"
	"github.com/spf13/cobra"
)

var reserveCmd = &cobra.Command{
	Use:   "reserve",
	Args:  cobra.NoArgs,
	Short: "Reserve a multi-aggregate VLAN circuit",
	Long:  `Loads a stitching plan document and drives the reservation to completion.`,
	RunE:  runReserve,
}

func init() {
	reserveCmd.Flags().String("plan", "", "path to the stitching plan XML document")
	reserveCmd.Flags().String("op-name", "stitch", "operation name used in persisted artifacts")
	reserveCmd.Flags().String("slice", "", "slice URN the reservation belongs to")
	reserveCmd.Flags().String("format", "text", "output format (text, json)")
	reserveCmd.Flags().Bool("dry-run", false, "validate the plan without reserving")
}

// codecHolder lets the scheduler keep splicing against whichever
// document the current plan expansion produced.
type codecHolder struct {
	codec *rspec.Codec
}

func (h *codecHolder) Splice(rc *stitch.RunContext, agg *stitch.Aggregate) ([]byte, error) {
	return h.codec.Splice(rc, agg)
}

func (h *codecHolder) ParseManifest(rc *stitch.RunContext, agg *stitch.Aggregate, manifestDoc []byte, hop *stitch.Hop) (vlan.Range, vlan.Range, string, error) {
	return h.codec.ParseManifest(rc, agg, manifestDoc, hop)
}

func runReserve(cmd *cobra.Command, args []string) error {
	planPath, _ := cmd.Flags().GetString("plan")
	if planPath == "" {
		return fmt.Errorf("--plan flag is required")
	}
	opName, _ := cmd.Flags().GetString("op-name")
	slice, _ := cmd.Flags().GetString("slice")
	outputFormat, _ := cmd.Flags().GetString("format")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(cfg).WithRun(opName, slice)
	logger.Info("Stitchd starting", "plan", planPath)

	doc, err := os.ReadFile(planPath)
	if err != nil {
		return fmt.Errorf("failed to read plan document: %w", err)
	}

	// The holder tracks the codec of the current plan expansion; the
	// loader swaps it whenever the PCE hands back a new document.
	holder := &codecHolder{}
	var currentRC *stitch.RunContext
	loader := scheduler.LoaderFunc(func(doc []byte) (*stitch.RunContext, error) {
		codec, err := rspec.New(doc)
		if err != nil {
			return nil, err
		}
		plan, err := codec.Parse(opName, slice)
		if err != nil {
			return nil, err
		}
		rc, err := stitch.BuildRunContext(plan)
		if err != nil {
			return nil, err
		}
		if err := stitch.ValidatePlan(rc); err != nil {
			return nil, err
		}
		holder.codec = codec
		currentRC = rc
		return rc, nil
	})

	if dryRun {
		if _, err := loader.Load(doc); err != nil {
			return fmt.Errorf("plan validation failed: %w", err)
		}
		fmt.Println("Plan is valid (dry-run mode)")
		return nil
	}

	// Provider client; am_type reports correct the URN-derived family
	provider := transport.NewProviderClient(transport.ProviderConfig{
		Timeout:    cfg.Provider.Timeout,
		DCNTimeout: cfg.Provider.DCNTimeout,
	}, logger)
	provider.OnAMType = func(url, amType string) {
		if currentRC == nil {
			return
		}
		currentRC.CorrectFamilyFromAMType(url, amType)
	}

	pce := transport.NewPCEClient(transport.PCEConfig{
		URL:     cfg.PCE.URL,
		Timeout: cfg.PCE.Timeout,
	}, logger)

	artifacts, err := storage.NewArtifactStore(cfg.Artifacts.Dir, logger)
	if err != nil {
		return fmt.Errorf("failed to create artifact store: %w", err)
	}

	// Metrics exposition
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		go func() {
			if err := m.Serve(cfg.Metrics.ListenAddress); err != nil {
				logger.Warn("Metrics server stopped", "error", err)
			}
		}()
		logger.Info("Metrics exposition enabled", "address", cfg.Metrics.ListenAddress)
	}

	// Report storage
	reportStorage, err := reporting.NewStorage(cfg.Reporting.OutputDir, cfg.Reporting.KeepLastN, logger)
	if err != nil {
		return fmt.Errorf("failed to create report storage: %w", err)
	}
	progressReporter := reporting.NewProgressReporter(reporting.OutputFormat(outputFormat), logger)

	// Run, canceling on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := stitch.RealClock()
	start := clock.Now()

	result, err := scheduler.Run(ctx, scheduler.Config{
		Deps: stitch.Deps{
			Client:  provider,
			Codec:   holder,
			Clock:   clock,
			Storage: artifacts,
		},
		Expander: pce,
		Loader:   loader,
		Budgets: scheduler.Budgets{
			MaxPCECalls:       cfg.Scheduler.MaxPCECalls,
			MaxAllocateTotal:  cfg.Scheduler.MaxAllocateTotal,
			MaxAggregateTries: cfg.Scheduler.MaxAggregateTries,
			Deadline:          cfg.Scheduler.Deadline,
		},
		InitialDoc: doc,
		Logger:     logger,
		Metrics:    m,
	})

	end := clock.Now()
	report := scheduler.BuildReport(result, opName, slice, start, end)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		report.Status = reporting.StatusStopped
	}

	if _, saveErr := reportStorage.SaveReport(report); saveErr != nil {
		logger.Warn("Failed to save report", "error", saveErr)
	}

	progressReporter.ReportRunCompleted(report)

	if err != nil {
		return fmt.Errorf("reservation run aborted: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("reservation failed: %s", result.FailureMessage)
	}

	logger.Info("Reservation completed successfully")
	return nil
}
