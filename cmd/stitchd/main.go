package main

import (
	"fmt"
	"os"

	"github.com/prometheus/common/version"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "stitchd",
	Short: "Multi-aggregate VLAN stitching reservation scheduler",
	Long: `Stitchd reserves a multi-segment virtual circuit across cooperating
resource providers. It takes a stitching plan, drives the per-aggregate
reservations in dependency order, negotiates VLAN tags across hops, and
escalates to the path computation service when local negotiation is
exhausted.`,
	Version: version.Version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Print("stitchd"))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(reserveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(versionCmd)
}

// Commands are defined in separate files:
// - reserveCmd in reserve.go
// - validateCmd in validate.go
// - describeCmd in describe.go

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
