// Package health tracks whether a storage backend is answering.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/objectfs/cloudtable/pkg/errors"
	"github.com/objectfs/cloudtable/pkg/types"
)

// CheckPath is the path Check looks up. It never exists; a NotFound answer
// proves the backend is reachable and the credentials work.
const CheckPath = ".cloudtable-health-check"

// HealthState represents the health of one backend binding
type HealthState int

const (
	// StateHealthy indicates the backend answered recently
	StateHealthy HealthState = iota

	// StateDegraded indicates repeated transient failures
	StateDegraded

	// StateUnavailable indicates the backend is unreachable or rejects the
	// credentials
	StateUnavailable
)

// String returns the string representation of a health state
func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// BackendHealth is a snapshot of one backend's health.
type BackendHealth struct {
	Name              string      `json:"name"`
	State             HealthState `json:"state"`
	LastStateChange   time.Time   `json:"last_state_change"`
	LastHealthCheck   time.Time   `json:"last_health_check"`
	ConsecutiveErrors int         `json:"consecutive_errors"`
	LastErrorCode     string      `json:"last_error_code,omitempty"`
	LastErrorMessage  string      `json:"last_error_message,omitempty"`
}

// TrackerConfig configures health tracking behavior
type TrackerConfig struct {
	// ErrorThreshold is the number of consecutive errors before a backend is
	// degraded
	ErrorThreshold int `yaml:"error_threshold" json:"error_threshold"`

	// UnavailableThreshold is the number of consecutive errors before it is
	// unavailable
	UnavailableThreshold int `yaml:"unavailable_threshold" json:"unavailable_threshold"`

	// CheckInterval is the period of background checks; zero disables them.
	CheckInterval time.Duration `yaml:"check_interval" json:"check_interval"`

	// CheckTimeout bounds one check.
	CheckTimeout time.Duration `yaml:"check_timeout" json:"check_timeout"`
}

// StateChangeCallback is called when a backend's health state changes
type StateChangeCallback func(backend string, oldState, newState HealthState, err error)

// DefaultConfig returns a default tracker configuration
func DefaultConfig() TrackerConfig {
	return TrackerConfig{
		ErrorThreshold:       3,
		UnavailableThreshold: 10,
		CheckInterval:        30 * time.Second,
		CheckTimeout:         10 * time.Second,
	}
}

// Tracker tracks the health of backend bindings
type Tracker struct {
	mu       sync.RWMutex
	backends map[string]*BackendHealth
	config   TrackerConfig
	onChange []StateChangeCallback
	now      func() time.Time
}

// NewTracker creates a new health tracker
func NewTracker(config TrackerConfig) *Tracker {
	if config.ErrorThreshold <= 0 {
		config.ErrorThreshold = 3
	}
	if config.UnavailableThreshold < config.ErrorThreshold {
		config.UnavailableThreshold = config.ErrorThreshold
	}
	if config.CheckTimeout <= 0 {
		config.CheckTimeout = 10 * time.Second
	}
	return &Tracker{
		backends: make(map[string]*BackendHealth),
		config:   config,
		now:      time.Now,
	}
}

// Register starts tracking a backend as healthy.
func (t *Tracker) Register(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.backends[name]; !exists {
		now := t.now()
		t.backends[name] = &BackendHealth{
			Name:            name,
			State:           StateHealthy,
			LastStateChange: now,
			LastHealthCheck: now,
		}
	}
}

// OnStateChange registers a callback for every state transition. Callbacks
// run synchronously after the tracker lock is released.
func (t *Tracker) OnStateChange(cb StateChangeCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = append(t.onChange, cb)
}

// Answered reports whether err still proves the backend responded: NotFound
// and AlreadyExists are answers, not outages.
func Answered(err error) bool {
	return err == nil || errors.IsNotFound(err) || errors.IsAlreadyExists(err)
}

// Record updates a backend with the outcome of one call. An auth failure
// makes it unavailable at once; other failures count toward the thresholds.
func (t *Tracker) Record(name string, err error) {
	t.mu.Lock()
	h, exists := t.backends[name]
	if !exists {
		t.mu.Unlock()
		return
	}

	oldState := h.State
	h.LastHealthCheck = t.now()

	switch {
	case Answered(err):
		h.ConsecutiveErrors = 0
		h.LastErrorCode = ""
		h.LastErrorMessage = ""
		h.State = StateHealthy
	default:
		h.ConsecutiveErrors++
		h.LastErrorCode = string(errors.CodeOf(err))
		h.LastErrorMessage = err.Error()

		switch {
		case errors.IsAuthFailure(err), h.ConsecutiveErrors >= t.config.UnavailableThreshold:
			h.State = StateUnavailable
		case h.ConsecutiveErrors >= t.config.ErrorThreshold:
			h.State = StateDegraded
		}
	}

	newState := h.State
	if newState != oldState {
		h.LastStateChange = h.LastHealthCheck
	}
	callbacks := append([]StateChangeCallback(nil), t.onChange...)
	t.mu.Unlock()

	if newState != oldState {
		for _, cb := range callbacks {
			cb(name, oldState, newState, err)
		}
	}
}

// Get returns a snapshot of one backend.
func (t *Tracker) Get(name string) (BackendHealth, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, exists := t.backends[name]
	if !exists {
		return BackendHealth{}, fmt.Errorf("backend %s not registered", name)
	}
	return *h, nil
}

// State returns a backend's state; unknown backends are unavailable.
func (t *Tracker) State(name string) HealthState {
	h, err := t.Get(name)
	if err != nil {
		return StateUnavailable
	}
	return h.State
}

// Overall returns the worst state across all backends.
func (t *Tracker) Overall() HealthState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	overall := StateHealthy
	for _, h := range t.backends {
		if h.State > overall {
			overall = h.State
		}
	}
	return overall
}

// Check looks up CheckPath on store, bounded by the check timeout, and
// records the outcome under name.
func (t *Tracker) Check(ctx context.Context, name string, store types.Adapter) error {
	ctx, cancel := context.WithTimeout(ctx, t.config.CheckTimeout)
	defer cancel()

	_, err := store.Exists(ctx, CheckPath)
	t.Record(name, err)
	if Answered(err) {
		return nil
	}
	return err
}

// Run checks store every CheckInterval until ctx is done.
func (t *Tracker) Run(ctx context.Context, name string, store types.Adapter) {
	if t.config.CheckInterval <= 0 {
		return
	}
	ticker := time.NewTicker(t.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = t.Check(ctx, name, store)
		}
	}
}
