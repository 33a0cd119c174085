package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List configured channels and probe their endpoints",
	Long: `List the configured channels, one per line, as "name path state".

State is "listening" when the socket path exists and accepts a connection,
"absent" when the path does not exist, and "refused" otherwise. The console
channel is listed first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		eps := cfg.Endpoints()
		if len(eps) == 0 {
			fmt.Fprintln(os.Stderr, "no channels configured")
			return nil
		}
		for _, ep := range eps {
			fmt.Printf("%s\t%s\t%s\n", ep.Name, ep.Path, probe(ep.Path))
		}
		return nil
	},
}

// probe checks whether a unix socket path currently accepts connections.
func probe(path string) string {
	if _, err := os.Stat(path); err != nil {
		return "absent"
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return "refused"
	}
	defer unix.Close(fd)
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		return "refused"
	}
	return "listening"
}

func init() {
	rootCmd.AddCommand(channelsCmd)
}
