package console

import (
	"fmt"

	"github.com/kenta2/cryptsetup/internal/expect"
)

// SecretSource resolves a disk name captured from an unlock prompt to its
// passphrase. The three forms — a literal, a name table, and a callback —
// are resolved uniformly before use.
type SecretSource interface {
	Resolve(name string) (string, bool)
}

// Literal is a fixed passphrase used regardless of the captured disk name.
type Literal string

func (l Literal) Resolve(string) (string, bool) { return string(l), true }

// Table maps disk names to passphrases.
type Table map[string]string

func (t Table) Resolve(name string) (string, bool) {
	secret, ok := t[name]
	return secret, ok
}

// ResolverFunc adapts a function to a SecretSource.
type ResolverFunc func(name string) (string, bool)

func (f ResolverFunc) Resolve(name string) (string, bool) { return f(name) }

// UnlockDisk waits for a "Please unlock disk <name>: " prompt on the named
// channel, resolves the passphrase for the captured disk name, and types it
// with echo disabled. Returns the disk name that was unlocked.
func (s *Session) UnlockDisk(channelName string, src SecretSource) (string, error) {
	c, ok := s.set.Channel(channelName)
	if !ok {
		return "", fmt.Errorf("no channel named %q", channelName)
	}
	m, err := expect.Expect(s.set, c, UnlockPrompt)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", fmt.Errorf("channel %s: closed before an unlock prompt appeared", channelName)
	}
	name := m.Group("name")
	secret, ok := src.Resolve(name)
	if !ok {
		return name, &UnresolvedSecretError{Name: name}
	}
	opts := DefaultWriteOptions()
	opts.NoEcho = true
	return name, Write(s.set, c, secret, opts)
}
