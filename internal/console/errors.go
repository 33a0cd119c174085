package console

import "fmt"

// EchoMismatchError reports that the bytes read back after a write diverged
// from what was sent. This is the detector for protocol desynchronization:
// wrong prompt state, an unexpected reboot, stale buffered bytes. Both byte
// sequences are rendered with readable escapes in the message.
type EchoMismatchError struct {
	Channel  string
	Expected []byte
	Actual   []byte
}

func (e *EchoMismatchError) Error() string {
	return fmt.Sprintf("echo mismatch on channel %s: sent %q, read back %q",
		e.Channel, e.Expected, e.Actual)
}

// ExitStatusError reports a shell command that exited with a status other
// than the asserted one.
type ExitStatusError struct {
	Command string
	Want    int
	Got     int
	Output  string
}

func (e *ExitStatusError) Error() string {
	return fmt.Sprintf("command %q exited %d, want %d", e.Command, e.Got, e.Want)
}

// UnresolvedSecretError reports that no secret could be resolved for the
// disk name captured from an unlock prompt.
type UnresolvedSecretError struct {
	Name string
}

func (e *UnresolvedSecretError) Error() string {
	return fmt.Sprintf("no passphrase available for disk %q", e.Name)
}
