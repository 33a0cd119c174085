package scenario

import (
	"os"
	"path/filepath"
	"testing"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFullScenario(t *testing.T) {
	path := writeScenario(t, `name: encrypted-boot
steps:
  - unlock:
      channel: serial
  - login:
      username: root
      password: hunter2
  - exec:
      command: systemctl is-system-running --wait
      status: 0
  - expect:
      channel: console
      pattern: 'ready'
  - poweroff: {}
`)

	sc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sc.Name != "encrypted-boot" {
		t.Errorf("Name: got %q, want %q", sc.Name, "encrypted-boot")
	}
	if len(sc.Steps) != 5 {
		t.Fatalf("Steps: got %d, want 5", len(sc.Steps))
	}
	if sc.Steps[0].Unlock == nil || sc.Steps[0].Unlock.Channel != "serial" {
		t.Errorf("step 1: %+v", sc.Steps[0])
	}
	if sc.Steps[2].Exec == nil || sc.Steps[2].Exec.Status != 0 {
		t.Errorf("step 3: %+v", sc.Steps[2])
	}
	if sc.Steps[4].PowerOff == nil {
		t.Errorf("step 5: %+v", sc.Steps[4])
	}
}

func TestLoadRejectsEmptyScenario(t *testing.T) {
	path := writeScenario(t, `name: empty
steps: []
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for scenario without steps")
	}
}

func TestValidateRejectsEmptyStep(t *testing.T) {
	sc := &Scenario{Steps: []Step{{}}}
	if err := sc.Validate(); err == nil {
		t.Fatal("expected error for step with no variant")
	}
}

func TestValidateRejectsTwoVariantsInOneStep(t *testing.T) {
	sc := &Scenario{Steps: []Step{{
		Login: &LoginStep{Username: "root"},
		Exec:  &ExecStep{Command: "true"},
	}}}
	if err := sc.Validate(); err == nil {
		t.Fatal("expected error for step with two variants")
	}
}

func TestValidateRejectsBadPattern(t *testing.T) {
	sc := &Scenario{Steps: []Step{{
		Expect: &ExpectStep{Channel: "console", Pattern: "(unclosed"},
	}}}
	if err := sc.Validate(); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestValidateRejectsMissingArguments(t *testing.T) {
	cases := []struct {
		name string
		step Step
	}{
		{"unlock without channel", Step{Unlock: &UnlockStep{}}},
		{"login without username", Step{Login: &LoginStep{Password: "x"}}},
		{"exec without command", Step{Exec: &ExecStep{Status: 1}}},
		{"expect without pattern", Step{Expect: &ExpectStep{Channel: "console"}}},
	}
	for _, tc := range cases {
		sc := &Scenario{Steps: []Step{tc.step}}
		if err := sc.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}
