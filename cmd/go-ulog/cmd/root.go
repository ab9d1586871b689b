package cmd

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	logger  hclog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "go-ulog",
	Short: "Inspect and decode PX4 ULog flight-recorder files",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := hclog.Warn
		if verbose {
			level = hclog.Debug
		}
		logger = hclog.New(&hclog.LoggerOptions{
			Name:  "go-ulog",
			Level: level,
		})
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug tracing of the open/index phases")
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(rangeCmd)
}

// dief prints a formatted error to stderr and exits, the way the teacher's
// reindex command reports fatal CLI errors.
func dief(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
