package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the daemon when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bleproxyd",
	Short: "Bluetooth proxy daemon",
	Long: `Bluetooth proxy daemon speaking the ESPHome native API.

The daemon turns the host's Bluetooth adapter into a remote proxy:

- Streams raw BLE advertisements to subscribed clients in batches
- Establishes outbound GATT connections on client request
- Relays reads, writes, and notifications for connected peripherals

Home Assistant discovers it as a Bluetooth proxy on port 6053.`,
	Version: formatVersion(version),
	RunE:    runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to YAML configuration file")
	rootCmd.Flags().StringVar(&serveHost, "host", "", "Address to bind the API server to")
	rootCmd.Flags().IntVarP(&servePort, "port", "p", 0, "TCP port for the API server")
	rootCmd.Flags().StringVar(&serveName, "name", "", "Node name reported to clients")
	rootCmd.Flags().StringVar(&serveFriendlyName, "friendly-name", "", "Human-readable name reported to clients")
	rootCmd.Flags().StringVar(&servePassword, "password", "", "API password (empty disables authentication)")
	rootCmd.Flags().BoolVar(&serveActiveConnections, "active-connections", true, "Allow outbound GATT connections")
	rootCmd.Flags().IntVar(&serveMaxConnections, "max-connections", 0, "Maximum concurrent GATT connections")
	rootCmd.Flags().IntVar(&serveBatchSize, "batch-size", 0, "Advertisements per batch before a flush")
	rootCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.Flags().StringVar(&serveLogFile, "log-file", "", "Append logs to this file instead of stderr")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
