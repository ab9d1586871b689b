package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/foxglove/go-ulog/ulog"
	"github.com/spf13/cobra"
)

var (
	dumpStart   string
	dumpEnd     string
	dumpTopics  []uint
	dumpPattern string
)

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Stream decoded messages as JSON lines",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		engine := ulog.NewEngine(ulog.NewFileByteSource(args[0]))
		if err := engine.Open(); err != nil {
			dief("failed to open %s: %s", args[0], err)
		}

		var opts []ulog.ReadOption
		if dumpStart != "" {
			ts, err := strconv.ParseUint(dumpStart, 10, 64)
			if err != nil {
				dief("invalid --start %q: %s", dumpStart, err)
			}
			opts = append(opts, ulog.WithStart(ts))
		}
		if dumpEnd != "" {
			ts, err := strconv.ParseUint(dumpEnd, 10, 64)
			if err != nil {
				dief("invalid --end %q: %s", dumpEnd, err)
			}
			opts = append(opts, ulog.WithEnd(ts))
		}
		if len(dumpTopics) > 0 {
			ids := make([]uint16, len(dumpTopics))
			for i, id := range dumpTopics {
				ids[i] = uint16(id)
			}
			opts = append(opts, ulog.WithMsgIDs(ids...))
		}
		if dumpPattern != "" {
			opts = append(opts, ulog.WithNamePattern(dumpPattern))
		}

		it, err := engine.ReadMessages(opts...)
		if err != nil {
			dief("failed to start iteration: %s", err)
		}

		enc := json.NewEncoder(os.Stdout)
		for it.More() {
			msg, err := it.Next()
			if err != nil {
				dief("decode failed: %s", err)
			}
			if msg.Kind != ulog.EntryData {
				continue
			}
			if err := enc.Encode(msg.Message); err != nil {
				fmt.Fprintf(os.Stderr, "failed to encode message: %s\n", err)
			}
		}
	},
}

func init() {
	dumpCmd.Flags().StringVar(&dumpStart, "start", "", "inclusive lower timestamp bound (microseconds)")
	dumpCmd.Flags().StringVar(&dumpEnd, "end", "", "inclusive upper timestamp bound (microseconds)")
	dumpCmd.Flags().UintSliceVar(&dumpTopics, "topics", nil, "restrict to these msg_ids")
	dumpCmd.Flags().StringVar(&dumpPattern, "pattern", "", "restrict to subscriptions whose name matches this glob")
}
