package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/kenta2/cryptsetup/internal/channel"
)

var attachCmd = &cobra.Command{
	Use:   "attach [channel]",
	Short: "Interactively attach the local terminal to a channel",
	Long: `Put the local terminal in raw mode and pass bytes through to a channel
in both directions. Detach with Ctrl-].

Without an argument the console channel is attached. This is plain
transport: no prompt matching, no echo verification, no transcript.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		name := cfg.Console
		if len(args) == 1 {
			name = args[0]
		}
		path, ok := cfg.Channels[name]
		if !ok {
			return fmt.Errorf("channel %q not configured", name)
		}

		channels, err := channel.Dial([]channel.Endpoint{{Name: name, Path: path}},
			channel.DialOptions{Deadline: cfg.ConnectDeadlineDuration, Interval: cfg.ConnectIntervalDuration})
		if err != nil {
			return err
		}
		remote := channels[0]

		// Duplicate stdin so the set can own (and later close) its copy
		// without touching fd 0.
		stdinFd, err := unix.Dup(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("dup stdin: %w", err)
		}
		stdin, err := channel.NewFromFd("stdin", stdinFd)
		if err != nil {
			remote.Close()
			return err
		}

		set, err := channel.NewSet([]*channel.Channel{remote, stdin}, channel.Options{})
		if err != nil {
			remote.Close()
			stdin.Close()
			return err
		}
		defer set.Close()

		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("raw mode: %w", err)
		}
		defer term.Restore(int(os.Stdin.Fd()), oldState)

		fmt.Fprintf(os.Stderr, "attached to %s, detach with ^]\r\n", name)
		return passThrough(set, remote, stdin)
	},
}

// passThrough shuttles bytes between the remote channel and the local
// terminal until the remote closes or the user types Ctrl-].
func passThrough(set *channel.Set, remote, stdin *channel.Channel) error {
	for remote.Readable() {
		ready, err := set.WaitReadable()
		if err != nil {
			return err
		}
		if len(ready) == 0 {
			break
		}
		if err := set.Drain(ready); err != nil {
			return err
		}

		if buf := remote.Buffered(); len(buf) > 0 {
			if _, err := os.Stdout.Write(remote.Consume(len(buf))); err != nil {
				return err
			}
		}

		if buf := stdin.Buffered(); len(buf) > 0 {
			data := stdin.Consume(len(buf))
			detach := false
			if i := bytes.IndexByte(data, 0x1d); i >= 0 { // Ctrl-]
				data = data[:i]
				detach = true
			}
			if err := writeAll(remote, data); err != nil {
				return err
			}
			if detach {
				fmt.Fprintf(os.Stderr, "\r\ndetached\r\n")
				return nil
			}
		}
	}
	fmt.Fprintf(os.Stderr, "\r\nchannel closed\r\n")
	return nil
}

func writeAll(c *channel.Channel, data []byte) error {
	for len(data) > 0 {
		if err := c.WaitWritable(); err != nil {
			return err
		}
		n, err := c.WriteChunk(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func init() {
	rootCmd.AddCommand(attachCmd)
}
