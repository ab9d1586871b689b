package cmd

import (
	"fmt"
	"strconv"

	"github.com/foxglove/go-ulog/ulog"
	"github.com/spf13/cobra"
)

var rangeCmd = &cobra.Command{
	Use:   "range <file> <start> <end>",
	Short: "Print the resolved TimeIndex range for a timestamp window",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		start, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			dief("invalid start %q: %s", args[1], err)
		}
		end, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			dief("invalid end %q: %s", args[2], err)
		}

		engine := ulog.NewEngine(ulog.NewFileByteSource(args[0]))
		if err := engine.Open(); err != nil {
			dief("failed to open %s: %s", args[0], err)
		}

		i, j, ok, err := engine.ResolveRange(start, end)
		if err != nil {
			dief("failed to resolve range: %s", err)
		}
		if !ok {
			fmt.Printf("no entries in [%d, %d]\n", start, end)
			return
		}
		fmt.Printf("index range [%d, %d] (%d entries) for timestamps in [%d, %d]\n", i, j, j-i+1, start, end)
	},
}
