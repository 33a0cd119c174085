// Package console layers interactive session protocols — prompt waiting,
// shell command execution with exit-status capture, login, disk unlock,
// power-state transitions — on top of the expect engine and the
// echo-verified writer. Everything here is built purely from Expect and
// Write calls; there is no other path to the channels.
package console

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kenta2/cryptsetup/internal/channel"
	"github.com/kenta2/cryptsetup/internal/expect"
)

// Session drives one interactive guest over a channel set. All operations
// are synchronous and run to completion or failure; a session is owned by a
// single execution context and must not be used concurrently.
type Session struct {
	set     *channel.Set
	console *channel.Channel
	prompt  *expect.Pattern
}

// NewSession wires a session to the channel carrying the shell (by
// convention named "console").
func NewSession(set *channel.Set, consoleName string) (*Session, error) {
	c, ok := set.Channel(consoleName)
	if !ok {
		return nil, fmt.Errorf("no channel named %q", consoleName)
	}
	return &Session{set: set, console: c, prompt: ShellPrompt}, nil
}

// Set returns the underlying channel set.
func (s *Session) Set() *channel.Set { return s.set }

// Console returns the shell channel.
func (s *Session) Console() *channel.Channel { return s.console }

// Expect matches a pattern on a named channel, blocking for input as
// needed. A nil match means the channel closed without the pattern ever
// matching.
func (s *Session) Expect(name string, p *expect.Pattern) (*expect.Match, error) {
	c, ok := s.set.Channel(name)
	if !ok {
		return nil, fmt.Errorf("no channel named %q", name)
	}
	return expect.Expect(s.set, c, p)
}

// WaitClosed blocks until every channel reaches end-of-stream.
func (s *Session) WaitClosed() error {
	return expect.WaitClosed(s.set)
}

// Write performs an echo-verified send on a named channel.
func (s *Session) Write(name, payload string, opts WriteOptions) error {
	c, ok := s.set.Channel(name)
	if !ok {
		return fmt.Errorf("no channel named %q", name)
	}
	return Write(s.set, c, payload, opts)
}

// WaitForPrompt consumes any pending output up to and including the next
// shell prompt.
func (s *Session) WaitForPrompt() error {
	m, err := expect.Expect(s.set, s.console, s.prompt.AfterLeadingText())
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("channel %s: closed while waiting for shell prompt", s.console.Name())
	}
	return nil
}

// TypeAtPrompt waits for a prompt pattern on the console, then sends data.
func (s *Session) TypeAtPrompt(prompt *expect.Pattern, data string, opts WriteOptions) error {
	m, err := expect.Expect(s.set, s.console, prompt.AfterLeadingText())
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("channel %s: closed while waiting for %q", s.console.Name(), prompt)
	}
	return Write(s.set, s.console, data, opts)
}

// TypePassword waits for a prompt and sends a secret with echo disabled.
func (s *Session) TypePassword(prompt *expect.Pattern, secret string) error {
	opts := DefaultWriteOptions()
	opts.NoEcho = true
	return s.TypeAtPrompt(prompt, secret, opts)
}

// ShellCommand waits for the shell prompt, types the command, and returns
// its captured output (empty if the command printed nothing). The prompt
// that terminates the output is reinjected at the front of the buffer so
// the next operation still sees it.
func (s *Session) ShellCommand(command string) (string, error) {
	start := time.Now()
	if err := s.WaitForPrompt(); err != nil {
		return "", err
	}
	if err := Write(s.set, s.console, command, DefaultWriteOptions()); err != nil {
		return "", err
	}
	m, err := expect.Expect(s.set, s.console, CommandOutput)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", fmt.Errorf("channel %s: closed before %q produced a prompt",
			s.console.Name(), command)
	}
	s.console.Unread([]byte(m.Group("prompt")))
	s.set.Metrics().RecordCommand(context.Background(), time.Since(start))
	return m.Group("output"), nil
}

// ShellCommandStatus runs the command, then "echo $?", and returns the
// command's exit code together with its output.
func (s *Session) ShellCommandStatus(command string) (int, string, error) {
	out, err := s.ShellCommand(command)
	if err != nil {
		return 0, "", err
	}
	status, err := s.ShellCommand("echo $?")
	if err != nil {
		return 0, out, err
	}
	code, err := strconv.Atoi(strings.TrimSpace(status))
	if err != nil {
		return 0, out, fmt.Errorf("parse exit status %q of %q: %w", status, command, err)
	}
	return code, out, nil
}

// AssertCommand runs the command and fails with an ExitStatusError unless
// it exits with the wanted code. Returns the command's output.
func (s *Session) AssertCommand(command string, want int) (string, error) {
	code, out, err := s.ShellCommandStatus(command)
	if err != nil {
		return out, err
	}
	if code != want {
		return out, &ExitStatusError{Command: command, Want: want, Got: code, Output: out}
	}
	return out, nil
}

// Login waits for the login banner, enters the username and (when given) the
// password, then waits for the shell prompt, consuming any message-of-the-day
// text. Returns the hostname captured from the banner.
func (s *Session) Login(username, password string) (string, error) {
	m, err := expect.Expect(s.set, s.console, LoginBanner)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", fmt.Errorf("channel %s: closed before a login banner appeared", s.console.Name())
	}
	host := m.Group("host")
	if err := Write(s.set, s.console, username, DefaultWriteOptions()); err != nil {
		return host, err
	}
	if password != "" {
		if err := s.TypePassword(PasswordPrompt, password); err != nil {
			return host, err
		}
	}
	if err := s.WaitForPrompt(); err != nil {
		return host, err
	}
	return host, nil
}

// PowerOff asks the guest to shut down and blocks until every channel
// reaches end-of-stream. The command is written without echo verification:
// the session may end before the echo arrives.
func (s *Session) PowerOff() error {
	return s.shutdownWith("poweroff")
}

// Hibernate suspends the guest to disk and blocks until every channel
// reaches end-of-stream.
func (s *Session) Hibernate() error {
	return s.shutdownWith("systemctl hibernate")
}

func (s *Session) shutdownWith(command string) error {
	if err := s.WaitForPrompt(); err != nil {
		return err
	}
	opts := DefaultWriteOptions()
	opts.NoEcho = true
	if err := Write(s.set, s.console, command, opts); err != nil {
		return err
	}
	return s.WaitClosed()
}
