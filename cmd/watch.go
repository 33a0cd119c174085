package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kenta2/cryptsetup/internal/monitor"
	"github.com/kenta2/cryptsetup/internal/transcript"
)

var (
	flagWatchSocket  string
	flagWatchTheme   string
	flagWatchRefresh time.Duration
	flagWatchRun     string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch live channel traffic in a TUI",
	Long: `Launch a terminal UI that follows the channel traffic of consoledrive
runs as they happen.

Runs publish every transferred chunk to a unix datagram socket; watch
listens on that socket and shows the recent tail of each channel. It can
run in a separate terminal from the run it is watching, and survives
across runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		socket := flagWatchSocket
		if socket == "" {
			socket = cfg.EventSocket
		}
		if socket == "" {
			socket = transcript.DefaultSocketPath()
		}

		store := transcript.NewStore(3*time.Minute, 64*1024)
		collector := transcript.NewCollector(store, socket)
		collector.Run = flagWatchRun
		if err := collector.Start(cmd.Context()); err != nil {
			return fmt.Errorf("event collector: %w", err)
		}
		fmt.Fprintf(os.Stderr, "listening on %s\n", collector.SocketPath())

		tui := &monitor.TUI{
			Store:           store,
			SocketPath:      collector.SocketPath(),
			RefreshInterval: flagWatchRefresh,
			ThemeName:       flagWatchTheme,
			Stats:           collector.Stats,
		}
		return tui.Run(cmd.Context())
	},
}

func init() {
	watchCmd.Flags().StringVar(&flagWatchSocket, "event-socket", "", "unix datagram socket to listen on (default: the run's publish socket)")
	watchCmd.Flags().StringVar(&flagWatchTheme, "theme", "dark", "color theme: dark, light")
	watchCmd.Flags().DurationVar(&flagWatchRefresh, "refresh", 250*time.Millisecond, "UI refresh interval")
	watchCmd.Flags().StringVar(&flagWatchRun, "run", "", "only show events for one run id")
	rootCmd.AddCommand(watchCmd)
}
