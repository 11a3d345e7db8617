package resilience

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/benefits-backend/internal/platform/config"
)

const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// Policy configures timeout, retry and breaker behaviour for one dependency.
// Env values are process-wide defaults; the YAML file overrides per dependency.
type Policy struct {
	Timeout         time.Duration `env:"RESILIENCE_TIMEOUT" envDefault:"2s" yaml:"timeout"`
	MaxAttempts     uint          `env:"RESILIENCE_MAX_ATTEMPTS" envDefault:"3" yaml:"max_attempts"`
	Backoff         string        `env:"RESILIENCE_BACKOFF" envDefault:"exponential" yaml:"backoff"`
	InitialInterval time.Duration `env:"RESILIENCE_INITIAL_INTERVAL" envDefault:"100ms" yaml:"initial_interval"`
	MaxInterval     time.Duration `env:"RESILIENCE_MAX_INTERVAL" envDefault:"1s" yaml:"max_interval"`

	// Breaker opens after FailureThreshold consecutive failures, or when at
	// least MinRequests calls in the current window failed at FailureRatio.
	FailureThreshold uint32        `env:"RESILIENCE_FAILURE_THRESHOLD" envDefault:"5" yaml:"failure_threshold"`
	FailureRatio     float64       `env:"RESILIENCE_FAILURE_RATIO" envDefault:"0.5" yaml:"failure_ratio"`
	MinRequests      uint32        `env:"RESILIENCE_MIN_REQUESTS" envDefault:"10" yaml:"min_requests"`
	Window           time.Duration `env:"RESILIENCE_WINDOW" envDefault:"60s" yaml:"window"`
	CoolDown         time.Duration `env:"RESILIENCE_COOL_DOWN" envDefault:"30s" yaml:"cool_down"`
}

func DefaultPolicy() Policy {
	return Policy{
		Timeout:          2 * time.Second,
		MaxAttempts:      3,
		Backoff:          BackoffExponential,
		InitialInterval:  100 * time.Millisecond,
		MaxInterval:      time.Second,
		FailureThreshold: 5,
		FailureRatio:     0.5,
		MinRequests:      10,
		Window:           60 * time.Second,
		CoolDown:         30 * time.Second,
	}
}

// PolicyFromEnv reads the RESILIENCE_* defaults.
func PolicyFromEnv() (Policy, error) {
	var p Policy
	if err := config.ParseEnv(&p); err != nil {
		return Policy{}, err
	}
	return p.normalized(), nil
}

type policyFile struct {
	Dependencies map[string]Policy `yaml:"dependencies"`
}

// LoadPolicyFile reads per-dependency overrides. An empty path yields none.
func LoadPolicyFile(path string) (map[string]Policy, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resilience policy file: %w", err)
	}
	var f policyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse resilience policy file: %w", err)
	}
	return f.Dependencies, nil
}

// Merge returns p with every non-zero field of over applied.
func (p Policy) Merge(over Policy) Policy {
	if over.Timeout > 0 {
		p.Timeout = over.Timeout
	}
	if over.MaxAttempts > 0 {
		p.MaxAttempts = over.MaxAttempts
	}
	if strings.TrimSpace(over.Backoff) != "" {
		p.Backoff = over.Backoff
	}
	if over.InitialInterval > 0 {
		p.InitialInterval = over.InitialInterval
	}
	if over.MaxInterval > 0 {
		p.MaxInterval = over.MaxInterval
	}
	if over.FailureThreshold > 0 {
		p.FailureThreshold = over.FailureThreshold
	}
	if over.FailureRatio > 0 {
		p.FailureRatio = over.FailureRatio
	}
	if over.MinRequests > 0 {
		p.MinRequests = over.MinRequests
	}
	if over.Window > 0 {
		p.Window = over.Window
	}
	if over.CoolDown > 0 {
		p.CoolDown = over.CoolDown
	}
	return p.normalized()
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.Timeout <= 0 {
		p.Timeout = d.Timeout
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 1
	}
	p.Backoff = strings.ToLower(strings.TrimSpace(p.Backoff))
	if p.Backoff != BackoffFixed {
		p.Backoff = BackoffExponential
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.FailureThreshold == 0 {
		p.FailureThreshold = d.FailureThreshold
	}
	if p.FailureRatio > 1 {
		p.FailureRatio = 1
	}
	if p.CoolDown <= 0 {
		p.CoolDown = d.CoolDown
	}
	return p
}

func (p Policy) backOff() backoff.BackOff {
	if p.Backoff == BackoffFixed {
		return backoff.NewConstantBackOff(p.InitialInterval)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	return b
}
