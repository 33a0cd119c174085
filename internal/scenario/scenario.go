// Package scenario loads and runs declarative session scripts: a YAML list
// of interactive steps (unlock, login, exec, expect, poweroff, hibernate)
// executed in order against one console session.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kenta2/cryptsetup/internal/console"
	"github.com/kenta2/cryptsetup/internal/expect"
)

// Scenario is one ordered session script.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step holds exactly one of the step variants.
type Step struct {
	Unlock     *UnlockStep `yaml:"unlock,omitempty"`
	Login      *LoginStep  `yaml:"login,omitempty"`
	Exec       *ExecStep   `yaml:"exec,omitempty"`
	Expect     *ExpectStep `yaml:"expect,omitempty"`
	PowerOff   *EmptyStep  `yaml:"poweroff,omitempty"`
	Hibernate  *EmptyStep  `yaml:"hibernate,omitempty"`
	WaitClosed *EmptyStep  `yaml:"wait_closed,omitempty"`
}

// EmptyStep is a step variant with no parameters ("poweroff: {}").
type EmptyStep struct{}

// UnlockStep answers a disk-unlock prompt. An explicit passphrase overrides
// the configured passphrase table.
type UnlockStep struct {
	Channel    string `yaml:"channel"`
	Passphrase string `yaml:"passphrase"`
}

// LoginStep logs in at the console.
type LoginStep struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ExecStep runs a shell command and asserts its exit status.
type ExecStep struct {
	Command string `yaml:"command"`
	Status  int    `yaml:"status"`
}

// ExpectStep waits for a pattern on a channel. The pattern tolerates
// arbitrary leading text, like a prompt wait.
type ExpectStep struct {
	Channel string `yaml:"channel"`
	Pattern string `yaml:"pattern"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &sc, nil
}

// Validate checks that every step holds exactly one variant and that the
// variants that need arguments have them.
func (sc *Scenario) Validate() error {
	if len(sc.Steps) == 0 {
		return fmt.Errorf("no steps")
	}
	for i, step := range sc.Steps {
		set := 0
		if step.Unlock != nil {
			set++
			if step.Unlock.Channel == "" {
				return fmt.Errorf("step %d: unlock needs a channel", i+1)
			}
		}
		if step.Login != nil {
			set++
			if step.Login.Username == "" {
				return fmt.Errorf("step %d: login needs a username", i+1)
			}
		}
		if step.Exec != nil {
			set++
			if step.Exec.Command == "" {
				return fmt.Errorf("step %d: exec needs a command", i+1)
			}
		}
		if step.Expect != nil {
			set++
			if step.Expect.Channel == "" || step.Expect.Pattern == "" {
				return fmt.Errorf("step %d: expect needs a channel and a pattern", i+1)
			}
			if _, err := expect.Compile(step.Expect.Pattern); err != nil {
				return fmt.Errorf("step %d: invalid pattern: %w", i+1, err)
			}
		}
		if step.PowerOff != nil {
			set++
		}
		if step.Hibernate != nil {
			set++
		}
		if step.WaitClosed != nil {
			set++
		}
		if set != 1 {
			return fmt.Errorf("step %d: want exactly one of unlock/login/exec/expect/poweroff/hibernate/wait_closed, got %d", i+1, set)
		}
	}
	return nil
}

// Runner executes scenarios against a session.
type Runner struct {
	Session *console.Session
	// Secrets answers unlock prompts when a step does not carry its own
	// passphrase. May be nil when every unlock step is explicit.
	Secrets console.SecretSource
}

// Run executes the steps in order, stopping at the first failure.
func (r *Runner) Run(sc *Scenario) error {
	for i, step := range sc.Steps {
		if err := r.runStep(step); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func (r *Runner) runStep(step Step) error {
	switch {
	case step.Unlock != nil:
		src := r.Secrets
		if step.Unlock.Passphrase != "" {
			src = console.Literal(step.Unlock.Passphrase)
		}
		if src == nil {
			return fmt.Errorf("unlock: no passphrase given and no passphrase table configured")
		}
		if _, err := r.Session.UnlockDisk(step.Unlock.Channel, src); err != nil {
			return fmt.Errorf("unlock: %w", err)
		}
		return nil
	case step.Login != nil:
		if _, err := r.Session.Login(step.Login.Username, step.Login.Password); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		return nil
	case step.Exec != nil:
		if _, err := r.Session.AssertCommand(step.Exec.Command, step.Exec.Status); err != nil {
			return fmt.Errorf("exec: %w", err)
		}
		return nil
	case step.Expect != nil:
		p := expect.MustCompile(step.Expect.Pattern).AfterLeadingText()
		m, err := r.Session.Expect(step.Expect.Channel, p)
		if err != nil {
			return fmt.Errorf("expect: %w", err)
		}
		if m == nil {
			return fmt.Errorf("expect: channel %s closed before %q matched",
				step.Expect.Channel, step.Expect.Pattern)
		}
		return nil
	case step.PowerOff != nil:
		return r.Session.PowerOff()
	case step.Hibernate != nil:
		return r.Session.Hibernate()
	case step.WaitClosed != nil:
		return r.Session.WaitClosed()
	}
	return fmt.Errorf("empty step")
}
