package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kenta2/cryptsetup/internal/transcript"
)

var (
	flagTranscriptChannel string
	flagTranscriptRaw     bool
)

var transcriptCmd = &cobra.Command{
	Use:   "transcript <file>",
	Short: "Pretty-print a recorded transcript",
	Long: `Print a recorded transcript (JSON lines, one event per line) in a
readable form: timestamp, channel, direction, and the bytes with escapes.

With --raw, the bytes read from the guest are written to stdout verbatim
instead, which reconstructs what the console looked like. Use --channel to
restrict either form to one channel.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := transcript.ReadLog(args[0])
		if err != nil {
			return err
		}
		for _, e := range events {
			if flagTranscriptChannel != "" && e.Channel != flagTranscriptChannel {
				continue
			}
			if flagTranscriptRaw {
				if e.Direction == transcript.DirectionRead {
					os.Stdout.Write(e.Data)
				}
				continue
			}
			arrow := "<-"
			if e.Direction == transcript.DirectionWrite {
				arrow = "->"
			}
			fmt.Printf("%s %s %s %q\n", e.TS.Format("15:04:05.000"), e.Channel, arrow, e.Data)
		}
		return nil
	},
}

func init() {
	transcriptCmd.Flags().StringVar(&flagTranscriptChannel, "channel-name", "", "only print events for this channel")
	transcriptCmd.Flags().BoolVar(&flagTranscriptRaw, "raw", false, "write guest output bytes verbatim")
	rootCmd.AddCommand(transcriptCmd)
}
