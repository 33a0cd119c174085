package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kenta2/cryptsetup/internal/scenario"
)

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Run a scripted session against the guest",
	Long: `Connect the configured channels and execute a scenario: a YAML list of
steps (unlock, login, exec, expect, poweroff, hibernate, wait_closed)
performed in order over the console session.

Unlock steps without an explicit passphrase are answered from the
passphrases table in the config file. The run stops at the first failing
step; the transcript path is printed so the failure can be inspected or
triaged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := scenario.Load(args[0])
		if err != nil {
			return err
		}
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("scenario %s: %w", args[0], err)
		}

		d, err := openDriver(cmd)
		if err != nil {
			return err
		}
		defer d.Close(cmd.Context())

		runner := &scenario.Runner{Session: d.Session, Secrets: d.Secrets()}
		start := time.Now()
		if err := runner.Run(sc); err != nil {
			if d.LogPath != "" {
				fmt.Fprintf(os.Stderr, "transcript: %s\n", d.LogPath)
			}
			return fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		fmt.Fprintf(os.Stderr, "scenario %s: %d steps in %s\n",
			sc.Name, len(sc.Steps), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
