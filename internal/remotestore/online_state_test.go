package remotestore

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncEnqueue runs fn immediately and synchronously, good enough for tests
// that don't exercise the real timer-to-worker handoff.
func syncEnqueue(fn func()) { fn() }

func TestOnlineStateTracker_StartsUnknown(t *testing.T) {
	tr := NewOnlineStateTracker(discardLogger(), syncEnqueue, nil)
	assert.Equal(t, OnlineStateUnknown, tr.State())
}

func TestOnlineStateTracker_SingleFailureGoesOffline(t *testing.T) {
	var transitions []OnlineState
	tr := NewOnlineStateTracker(discardLogger(), syncEnqueue, func(s OnlineState) {
		transitions = append(transitions, s)
	})

	tr.HandleWatchStreamFailure(Status{Code: "unavailable"})

	assert.Equal(t, OnlineStateOffline, tr.State())
	require.Len(t, transitions, 1)
	assert.Equal(t, OnlineStateOffline, transitions[0])
}

func TestOnlineStateTracker_UpdateStateToOnlineResetsFailures(t *testing.T) {
	tr := NewOnlineStateTracker(discardLogger(), syncEnqueue, nil)
	tr.HandleWatchStreamFailure(Status{Code: "unavailable"})
	require.Equal(t, OnlineStateOffline, tr.State())

	tr.UpdateState(OnlineStateOnline)

	assert.Equal(t, OnlineStateOnline, tr.State())
}

func TestOnlineStateTracker_SetStateIsNoopWhenUnchanged(t *testing.T) {
	calls := 0
	tr := NewOnlineStateTracker(discardLogger(), syncEnqueue, func(OnlineState) { calls++ })

	tr.UpdateState(OnlineStateUnknown)

	assert.Equal(t, 0, calls)
}

func TestOnlineStateTracker_DebounceFiresWhenStillUnknown(t *testing.T) {
	done := make(chan struct{})
	enqueue := func(fn func()) {
		fn()
		close(done)
	}
	tr := NewOnlineStateTracker(discardLogger(), enqueue, nil)
	tr.debounce = nil

	// Arm a short debounce directly rather than waiting on the real
	// 10s OnlineStateDebounce constant.
	tr.debounce = time.AfterFunc(10*time.Millisecond, func() {
		enqueue(tr.fireDebounce)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("debounce callback never fired")
	}

	assert.Equal(t, OnlineStateOffline, tr.State())
}

func TestOnlineStateTracker_DebounceDoesNotFireIfAlreadyOnline(t *testing.T) {
	tr := NewOnlineStateTracker(discardLogger(), syncEnqueue, nil)
	tr.UpdateState(OnlineStateOnline)

	tr.fireDebounce()

	assert.Equal(t, OnlineStateOnline, tr.State())
}
