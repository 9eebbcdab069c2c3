// ComX-Bridge CLI
//
// A resilient Bluetooth Low Energy connection layer: failure
// classification, adapter/path arbitration, per-adapter slot accounting,
// stale-connection reaping, and a retrying connect orchestrator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "1.0.0"
	buildTime = "dev"
	gitCommit = "unknown"
)

var (
	verbose    bool
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "comx",
		Short: "ComX-Bridge - Resilient BLE Connection Engine",
		Long: `ComX-Bridge drives resilient Bluetooth Low Energy connections:
classified retry, adapter/path arbitration, connection-slot accounting,
and stale-connection reaping on top of BlueZ or a direct GATT backend.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (accepted; no command reads it)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON output (accepted; no command reads it)")

	rootCmd.AddCommand(
		newBLECmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ComX-Bridge %s\n", version)
			fmt.Printf("  commit: %s\n", gitCommit)
			fmt.Printf("  built:  %s\n", buildTime)
		},
	}
}
