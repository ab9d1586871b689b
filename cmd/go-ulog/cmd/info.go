package cmd

import (
	"fmt"

	"github.com/foxglove/go-ulog/ulog"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Print the header, subscriptions, and record counts of a ULog file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		engine := ulog.NewEngine(ulog.NewFileByteSource(args[0]))
		logger.Debug("opening file", "path", args[0])
		if err := engine.Open(); err != nil {
			dief("failed to open %s: %s", args[0], err)
		}

		h, err := engine.Header()
		if err != nil {
			dief("failed to read header: %s", err)
		}
		fmt.Printf("version: %d\n", h.Version)
		fmt.Printf("startTimestamp: %d\n", h.StartTimestamp)
		if h.FlagBits != nil {
			fmt.Printf("appendedOffsets: %v\n", h.FlagBits.AppendedOffsets)
		}
		fmt.Printf("information: %d entries\n", len(h.Information))
		fmt.Printf("parameters: %d entries\n", len(h.Parameters))
		fmt.Printf("definitions: %d entries\n", len(h.Definitions))

		subs, err := engine.Subscriptions()
		if err != nil {
			dief("failed to read subscriptions: %s", err)
		}
		fmt.Printf("subscriptions: %d\n", len(subs))

		count, err := engine.MessageCount()
		if err != nil {
			dief("failed to read message count: %s", err)
		}
		logs, err := engine.LogCount()
		if err != nil {
			dief("failed to read log count: %s", err)
		}
		fmt.Printf("messageCount: %d\n", count)
		fmt.Printf("logCount: %d\n", logs)

		if min, max, ok, err := engine.TimeRange(); err != nil {
			dief("failed to read time range: %s", err)
		} else if ok {
			fmt.Printf("timeRange: [%d, %d]\n", min, max)
		} else {
			fmt.Println("timeRange: none")
		}
	},
}
