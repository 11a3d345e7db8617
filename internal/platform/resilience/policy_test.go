package resilience

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadPolicyFileOverridesPerDependency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	body := []byte(`dependencies:
  validation:
    timeout: 750ms
    max_attempts: 2
    cool_down: 5s
  notification:
    backoff: fixed
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
	overrides, err := LoadPolicyFile(path)
	if err != nil {
		t.Fatalf("LoadPolicyFile: %v", err)
	}

	reg := NewRegistry(nil, nil, DefaultPolicy(), overrides)
	v := reg.Policy("validation")
	if v.Timeout != 750*time.Millisecond || v.MaxAttempts != 2 || v.CoolDown != 5*time.Second {
		t.Fatalf("validation policy: got=%+v", v)
	}
	if v.FailureThreshold != DefaultPolicy().FailureThreshold {
		t.Fatalf("unset fields should keep defaults: got=%d", v.FailureThreshold)
	}
	if n := reg.Policy("notification"); n.Backoff != BackoffFixed {
		t.Fatalf("notification backoff: want=fixed got=%s", n.Backoff)
	}
	if other := reg.Policy("unknown"); other != DefaultPolicy() {
		t.Fatalf("unknown dependency should use defaults: got=%+v", other)
	}
}

func TestLoadPolicyFileEmptyPath(t *testing.T) {
	overrides, err := LoadPolicyFile("  ")
	if err != nil || overrides != nil {
		t.Fatalf("empty path: overrides=%v err=%v", overrides, err)
	}
}

func TestPolicyFromEnv(t *testing.T) {
	t.Setenv("RESILIENCE_TIMEOUT", "3s")
	t.Setenv("RESILIENCE_BACKOFF", "FIXED")
	p, err := PolicyFromEnv()
	if err != nil {
		t.Fatalf("PolicyFromEnv: %v", err)
	}
	if p.Timeout != 3*time.Second || p.Backoff != BackoffFixed {
		t.Fatalf("env policy: got=%+v", p)
	}
	if p.MaxAttempts != 3 {
		t.Fatalf("default attempts: want=3 got=%d", p.MaxAttempts)
	}
}

func TestNormalizedClampsValues(t *testing.T) {
	p := Policy{MaxAttempts: 0, InitialInterval: time.Second, MaxInterval: time.Millisecond, FailureRatio: 4}.normalized()
	if p.MaxAttempts != 1 || p.MaxInterval != time.Second || p.FailureRatio != 1 {
		t.Fatalf("normalized: got=%+v", p)
	}
}
