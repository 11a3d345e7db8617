package resilience

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/yungbote/benefits-backend/internal/observability"
	"github.com/yungbote/benefits-backend/internal/platform/apierr"
	"github.com/yungbote/benefits-backend/internal/platform/logger"
)

// BreakerSnapshot is a point-in-time view of one dependency's breaker.
type BreakerSnapshot struct {
	Dependency          string    `json:"dependency"`
	State               string    `json:"state"`
	Requests            uint32    `json:"requests"`
	ConsecutiveFailures uint32    `json:"consecutive_failures"`
	TotalFailures       uint32    `json:"total_failures"`
	LastTransitionAt    time.Time `json:"last_transition_at"`
}

// Registry owns one circuit breaker per dependency name.
type Registry struct {
	log      *logger.Logger
	metrics  *observability.Metrics
	defaults Policy

	mu        sync.Mutex
	overrides map[string]Policy
	breakers  map[string]*breakerEntry
}

type breakerEntry struct {
	name   string
	policy Policy
	cb     *gobreaker.CircuitBreaker[any]

	// mu guards lastTransition only; it is taken from inside gobreaker's
	// state-change callback and must never be held while calling into cb.
	mu             sync.Mutex
	lastTransition time.Time
}

func NewRegistry(log *logger.Logger, metrics *observability.Metrics, defaults Policy, overrides map[string]Policy) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	ov := make(map[string]Policy, len(overrides))
	for k, v := range overrides {
		ov[strings.TrimSpace(k)] = v
	}
	return &Registry{
		log:       log.With("component", "BreakerRegistry"),
		metrics:   metrics,
		defaults:  defaults.normalized(),
		overrides: ov,
		breakers:  map[string]*breakerEntry{},
	}
}

// Policy returns the effective policy for dependency.
func (r *Registry) Policy(dependency string) Policy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.policyLocked(dependency)
}

func (r *Registry) policyLocked(dependency string) Policy {
	if over, ok := r.overrides[dependency]; ok {
		return r.defaults.Merge(over)
	}
	return r.defaults
}

func (r *Registry) entry(dependency string) *breakerEntry {
	dependency = strings.TrimSpace(dependency)
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.breakers[dependency]; ok {
		return e
	}
	p := r.policyLocked(dependency)
	e := &breakerEntry{name: dependency, policy: p, lastTransition: time.Now().UTC()}
	e.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        dependency,
		MaxRequests: 1,
		Interval:    p.Window,
		Timeout:     p.CoolDown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.ConsecutiveFailures >= p.FailureThreshold {
				return true
			}
			if p.FailureRatio <= 0 || p.MinRequests == 0 || c.Requests < p.MinRequests {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= p.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !apierr.Transient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.mu.Lock()
			e.lastTransition = time.Now().UTC()
			e.mu.Unlock()
			r.log.Warn("circuit breaker state change", "dependency", name, "from", from.String(), "to", to.String())
			r.metrics.SetBreakerState(name, from.String(), to.String())
		},
	})
	r.breakers[dependency] = e
	r.metrics.SetBreakerState(dependency, "", gobreaker.StateClosed.String())
	return e
}

// Snapshot returns the state of one dependency's breaker, creating it
// closed if it has not been used yet.
func (r *Registry) Snapshot(dependency string) BreakerSnapshot {
	return r.entry(dependency).snapshot()
}

// Snapshots returns every known breaker sorted by dependency name.
func (r *Registry) Snapshots() []BreakerSnapshot {
	r.mu.Lock()
	entries := make([]*breakerEntry, 0, len(r.breakers))
	for _, e := range r.breakers {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	out := make([]BreakerSnapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dependency < out[j].Dependency })
	return out
}

// AnyOpen reports whether some breaker is currently open.
func (r *Registry) AnyOpen() bool {
	for _, s := range r.Snapshots() {
		if s.State == gobreaker.StateOpen.String() {
			return true
		}
	}
	return false
}

func (e *breakerEntry) snapshot() BreakerSnapshot {
	state := e.cb.State()
	counts := e.cb.Counts()
	e.mu.Lock()
	last := e.lastTransition
	e.mu.Unlock()
	return BreakerSnapshot{
		Dependency:          e.name,
		State:               state.String(),
		Requests:            counts.Requests,
		ConsecutiveFailures: counts.ConsecutiveFailures,
		TotalFailures:       counts.TotalFailures,
		LastTransitionAt:    last,
	}
}
