package main

import (
	"fmt"
	"os"

	"github.com/kimjh/vlanstitch/pkg/rspec"
	"github.com/kimjh/vlanstitch/pkg/stitch"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Args:  cobra.NoArgs,
	Short: "Validate a stitching plan document",
	Long:  `Parses a stitching plan XML document and checks its hop and dependency invariants without contacting any provider.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().String("plan", "", "path to the stitching plan XML document")
}

func runValidate(cmd *cobra.Command, args []string) error {
	planPath, _ := cmd.Flags().GetString("plan")
	if planPath == "" {
		return fmt.Errorf("--plan flag is required")
	}

	doc, err := os.ReadFile(planPath)
	if err != nil {
		return fmt.Errorf("failed to read plan document: %w", err)
	}

	codec, err := rspec.New(doc)
	if err != nil {
		return fmt.Errorf("plan parse failed: %w", err)
	}
	plan, err := codec.Parse("validate", "")
	if err != nil {
		return fmt.Errorf("plan parse failed: %w", err)
	}
	rc, err := stitch.BuildRunContext(plan)
	if err != nil {
		return fmt.Errorf("plan graph build failed: %w", err)
	}
	if err := stitch.ValidatePlan(rc); err != nil {
		return fmt.Errorf("plan validation failed: %w", err)
	}

	hops := 0
	for _, a := range rc.Aggregates() {
		hops += len(a.Hops)
	}
	fmt.Printf("Plan is valid: %d aggregate(s), %d path(s), %d hop(s)\n",
		len(rc.Aggregates()), len(plan.Spec.Paths), hops)
	for _, a := range rc.Aggregates() {
		deps := ""
		for i, dep := range a.DependsOn {
			if i > 0 {
				deps += ", "
			}
			deps += rc.Aggregate(dep).URN
		}
		if deps == "" {
			deps = "none"
		}
		fmt.Printf("  %s (%s, API v%d) depends on: %s\n", a.URN, a.Family.String(), a.APIVersion, deps)
	}
	return nil
}
