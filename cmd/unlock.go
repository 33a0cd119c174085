package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kenta2/cryptsetup/internal/console"
)

var (
	flagUnlockChannel    string
	flagUnlockPassphrase string
)

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Answer the disk-unlock prompt of an encrypted boot",
	Long: `Wait for the boot loader's "Please unlock disk <name>:" prompt on a
channel and type the passphrase with echo verification disabled.

The passphrase is looked up by the captured disk name in the passphrases
table from the config file; --passphrase overrides the table for any disk
name. The prompt commonly arrives on the serial channel rather than the
console, select it with --unlock-channel.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDriver(cmd)
		if err != nil {
			return err
		}
		defer d.Close(cmd.Context())

		src := d.Secrets()
		if flagUnlockPassphrase != "" {
			src = console.Literal(flagUnlockPassphrase)
		}
		if src == nil {
			return fmt.Errorf("no passphrase given and no passphrases table configured")
		}

		ch := flagUnlockChannel
		if ch == "" {
			ch = d.Config.Console
		}
		name, err := d.Session.UnlockDisk(ch, src)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "unlocked disk %s\n", name)
		return nil
	},
}

func init() {
	unlockCmd.Flags().StringVar(&flagUnlockChannel, "unlock-channel", "", "channel carrying the unlock prompt (default: the console channel)")
	unlockCmd.Flags().StringVar(&flagUnlockPassphrase, "passphrase", "", "passphrase to use regardless of the disk name")
	rootCmd.AddCommand(unlockCmd)
}
