package cmd

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kenta2/cryptsetup/internal/console"
)

var flagExecStatus int

// execResult is the JSON document printed for one command.
type execResult struct {
	Run        string `json:"run"`
	Command    string `json:"command"`
	Status     int    `json:"status"`
	Output     string `json:"output"`
	DurationMs int64  `json:"duration_ms"`
}

var execCmd = &cobra.Command{
	Use:   "exec <command>",
	Short: "Run a single shell command on the guest console",
	Long: `Wait for the root shell prompt on the console channel, type the command,
and print its captured output and exit status as JSON.

With --status the command's exit status is asserted and a mismatch makes
exec itself exit non-zero. Use --status -1 to skip the assertion.

Stdout carries only the JSON result: the default stdout mirror goes to
stderr instead. Pass --mirror to choose a destination explicitly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command := args[0]

		if !cmd.Flags().Changed("mirror") {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			flagMirror = execMirror(cfg.Mirror)
		}

		d, err := openDriver(cmd)
		if err != nil {
			return err
		}
		defer d.Close(cmd.Context())

		start := time.Now()
		status, output, err := d.Session.ShellCommandStatus(command)
		if err != nil {
			return err
		}

		res := execResult{
			Run:        d.Run,
			Command:    command,
			Status:     status,
			Output:     output,
			DurationMs: time.Since(start).Milliseconds(),
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}

		if flagExecStatus >= 0 && status != flagExecStatus {
			return &console.ExitStatusError{Command: command, Want: flagExecStatus, Got: status, Output: output}
		}
		return nil
	},
}

// execMirror reroutes a stdout mirror to stderr so raw channel bytes never
// interleave with the JSON result. Any other destination stays as chosen.
func execMirror(configured string) string {
	if configured == "stdout" {
		return "stderr"
	}
	return configured
}

func init() {
	execCmd.Flags().IntVar(&flagExecStatus, "status", 0, "expected exit status (-1 to skip the assertion)")
	rootCmd.AddCommand(execCmd)
}
