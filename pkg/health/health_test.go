package health

import (
	"context"
	stderr "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/cloudtable/internal/storage/memory"
	"github.com/objectfs/cloudtable/pkg/errors"
)

func TestTrackerRegister(t *testing.T) {
	tracker := NewTracker(DefaultConfig())
	assert.Equal(t, StateUnavailable, tracker.State("s3"))

	tracker.Register("s3")
	assert.Equal(t, StateHealthy, tracker.State("s3"))

	_, err := tracker.Get("blob")
	assert.Error(t, err)
}

func TestTrackerRecord(t *testing.T) {
	transient := stderr.New("connection reset by peer")
	auth := errors.NewError(errors.ErrCodeAuthFailure, "expired_access_token")

	tests := []struct {
		name     string
		outcomes []error
		want     HealthState
		wantErrs int
	}{
		{"below threshold", []error{transient, transient}, StateHealthy, 2},
		{"degraded", []error{transient, transient, transient}, StateDegraded, 3},
		{"unavailable", repeat(transient, 5), StateUnavailable, 5},
		{"auth failure is immediate", []error{auth}, StateUnavailable, 1},
		{"not found is an answer", []error{transient, transient, transient, errors.NotFound("s3", "stat", "x")}, StateHealthy, 0},
		{"already exists is an answer", []error{errors.AlreadyExists("s3", "writeFile", "x")}, StateHealthy, 0},
		{"success recovers", []error{auth, nil}, StateHealthy, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ErrorThreshold = 3
			cfg.UnavailableThreshold = 5
			tracker := NewTracker(cfg)
			tracker.Register("s3")

			for _, err := range tt.outcomes {
				tracker.Record("s3", err)
			}

			h, err := tracker.Get("s3")
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.State)
			assert.Equal(t, tt.wantErrs, h.ConsecutiveErrors)
		})
	}
}

func repeat(err error, n int) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = err
	}
	return out
}

func TestTrackerStateChangeCallback(t *testing.T) {
	tracker := NewTracker(DefaultConfig())
	tracker.Register("dropbox")

	type change struct{ from, to HealthState }
	var (
		mu      sync.Mutex
		changes []change
	)
	tracker.OnStateChange(func(_ string, from, to HealthState, _ error) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, change{from, to})
	})

	tracker.Record("dropbox", errors.NewError(errors.ErrCodeAuthFailure, "invalid_grant"))
	tracker.Record("dropbox", errors.NewError(errors.ErrCodeAuthFailure, "invalid_grant"))
	tracker.Record("dropbox", nil)

	h, err := tracker.Get("dropbox")
	require.NoError(t, err)
	assert.Empty(t, h.LastErrorMessage)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []change{{StateHealthy, StateUnavailable}, {StateUnavailable, StateHealthy}}, changes)
}

func TestTrackerOverall(t *testing.T) {
	tracker := NewTracker(DefaultConfig())
	assert.Equal(t, StateHealthy, tracker.Overall())

	tracker.Register("s3")
	tracker.Register("blob")
	for i := 0; i < 3; i++ {
		tracker.Record("blob", stderr.New("timeout"))
	}
	assert.Equal(t, StateDegraded, tracker.Overall())
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	tracker := NewTracker(DefaultConfig())
	tracker.Register("memory")

	require.NoError(t, tracker.Check(ctx, "memory", store))
	assert.Equal(t, StateHealthy, tracker.State("memory"))

	store.SetFault(memory.OpStat, errors.NewError(errors.ErrCodeAuthFailure, "denied"))
	err := tracker.Check(ctx, "memory", store)
	assert.True(t, errors.IsAuthFailure(err))

	h, getErr := tracker.Get("memory")
	require.NoError(t, getErr)
	assert.Equal(t, StateUnavailable, h.State)
	assert.Equal(t, string(errors.ErrCodeAuthFailure), h.LastErrorCode)
}

func TestRunStopsWithContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CheckInterval = time.Millisecond
	tracker := NewTracker(cfg)
	tracker.Register("memory")

	store := memory.New(nil)
	store.SetFault(memory.OpStat, stderr.New("timeout"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tracker.Run(ctx, "memory", store)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return tracker.State("memory") == StateDegraded || tracker.State("memory") == StateUnavailable
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHealthStateString(t *testing.T) {
	assert.Equal(t, "healthy", StateHealthy.String())
	assert.Equal(t, "degraded", StateDegraded.String())
	assert.Equal(t, "unavailable", StateUnavailable.String())
	assert.Equal(t, "unknown", HealthState(42).String())
}
