// Tuya BLE Bridge
//
// This is the main entry point of the bridge. It turns Tuya Bluetooth LE
// devices (fingerbots, locks, sensors) reported by an external device
// manager into entities, states and events published over MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configPath is set by the persistent --config flag.
var configPath string

// rootCmd runs the bridge when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "tuyable-bridge",
	Short: "Tuya BLE to MQTT bridge",
	Long: `Bridges Tuya Bluetooth LE devices to MQTT.

Devices reported by the device manager are matched against the product
catalog, and their datapoints are published as sensor entities, states and
events. State is kept in SQLite and optionally mirrored to InfluxDB.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runBridge,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge until interrupted",
	RunE:  runBridge,
}

func init() {
	// main() prints errors itself
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $TUYABLE_CONFIG or "+defaultConfigPath+")")
}

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runBridge(cmd *cobra.Command, _ []string) error {
	return run(cmd.Context(), getConfigPath())
}

// getConfigPath returns the configuration file path: the --config flag,
// then TUYABLE_CONFIG, then the default.
func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if path := os.Getenv("TUYABLE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
