// sysfail is the companion CLI of the fault-injection library: it
// validates and describes plan files, and drives a stress workload under
// an active session to observe injected failure rates from the outside.
//
// Commands:
//
//	check    - Validate a plan file and print what it resolves to
//	stress   - Run a file I/O workload under the plan and report rates
//	version  - Print version information
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sysfail-go/logging"
)

// Version information set at build time
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// Global flags
var (
	globalLogLevel  string
	globalLogFormat string
)

// rootCmd is the base command for sysfail.
var rootCmd = &cobra.Command{
	Use:   "sysfail",
	Short: "syscall fault injection toolkit",
	Long: `sysfail injects faults into the syscalls of a process using the Linux
Syscall User Dispatch facility. This CLI validates fault plans and runs
stress workloads under them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sysfail version %s (built %s)\n", Version, BuildTime)
	},
}

func setupLogging() {
	logging.SetDefault(logging.NewLogger(logging.Config{
		Level:  logging.ParseLevel(globalLogLevel),
		Format: globalLogFormat,
		Output: os.Stderr,
	}))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalLogLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "text",
		"log format (text or json)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(stressCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
