package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kenta2/cryptsetup/internal/telemetry"
	"github.com/kenta2/cryptsetup/internal/transcript"
	"github.com/kenta2/cryptsetup/internal/triage"
)

var triageCmd = &cobra.Command{
	Use:   "triage <file>",
	Short: "Analyze a failed run's transcript with an LLM",
	Long: `Send a recorded transcript to an LLM and print its verdict: what failed,
in which phase of the session (connect, unlock, login, command, shutdown),
the evidence, and suggested fixes.

The transcript is rendered as one line per chunk with readable escapes
before being sent. Output is a single JSON document on stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := transcript.ReadLog(args[0])
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return fmt.Errorf("transcript %s is empty", args[0])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		tr, err := getTriager(cfg)
		if err != nil {
			return err
		}

		telemetry.Version = Version
		tel, err := telemetry.Init(cmd.Context(), telemetry.Config{
			Endpoint: cfg.OTELEndpoint,
			Headers:  cfg.OTELHeaders,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: otel init failed: %v\n", err)
		}
		if tel != nil {
			defer tel.Shutdown(cmd.Context())
		}

		verdict, err := tr.Analyze(cmd.Context(), triage.RenderTranscript(events))
		if err != nil {
			return fmt.Errorf("triage failed: %w", err)
		}
		if tel != nil {
			tel.Metrics.RecordTokens(cmd.Context(), tr.Provider(), tr.Model(),
				verdict.Usage.InputTokens, verdict.Usage.OutputTokens)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(verdict)
	},
}

func init() {
	rootCmd.AddCommand(triageCmd)
}
