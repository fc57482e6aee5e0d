package ratelimit

import (
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestLimiter(t *testing.T) (*Limiter, *clock.TestClock, chan Event) {
	t.Helper()

	tc := clock.NewTestClock(testStart)
	events := make(chan Event, 16)
	l := New(WithClock(tc), WithNotifier(func(e Event) { events <- e }))
	t.Cleanup(l.Stop)

	return l, tc, events
}

func waitEvent(t *testing.T, events chan Event) Event {
	t.Helper()

	select {
	case e := <-events:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for limiter event")
		return Event{}
	}
}

// TestBlockAfterThreshold walks a key through Idle, Accumulating, Blocked and
// back.
func TestBlockAfterThreshold(t *testing.T) {
	l, tc, events := newTestLimiter(t)

	for i := 0; i < 4; i++ {
		tc.SetTime(testStart.Add(time.Duration(i) * 200 * time.Millisecond))
		require.False(t, l.CheckAndRecord("x"), "click %d should be allowed", i)
	}

	tc.SetTime(testStart.Add(900 * time.Millisecond))
	require.True(t, l.CheckAndRecord("x"), "fifth click should be denied")

	ev := waitEvent(t, events)
	require.Equal(t, Blocked, ev.Kind)
	require.Equal(t, "x", ev.Key)
	require.Equal(t, DefaultCooldown, ev.RetryAfter)
	require.True(t, l.State("x").Blocked)

	// Denied while blocked, even after a long pause, and the count does
	// not move.
	tc.SetTime(testStart.Add(5 * time.Second))
	require.True(t, l.CheckAndRecord("x"))
	require.Equal(t, 5, l.State("x").Count)

	tc.SetTime(testStart.Add(900*time.Millisecond + DefaultCooldown + time.Millisecond))
	ev = waitEvent(t, events)
	require.Equal(t, Cleared, ev.Kind)

	st := l.State("x")
	require.False(t, st.Blocked)
	require.Equal(t, 0, st.Count)

	require.False(t, l.CheckAndRecord("x"))
	require.Equal(t, 1, l.State("x").Count)
}

// TestQuietPeriodResets checks that a gap longer than the window restarts the
// count at one.
func TestQuietPeriodResets(t *testing.T) {
	l, tc, _ := newTestLimiter(t)

	for i := 0; i < 4; i++ {
		tc.SetTime(testStart.Add(time.Duration(i) * time.Second))
		require.False(t, l.CheckAndRecord(KeyIPv4))
	}
	require.Equal(t, 4, l.State(KeyIPv4).Count)

	tc.SetTime(testStart.Add(3*time.Second + DefaultWindow + time.Millisecond))
	require.False(t, l.CheckAndRecord(KeyIPv4))
	require.Equal(t, 1, l.State(KeyIPv4).Count)
}

// TestWindowBoundaryInclusive checks that a gap of exactly the window still
// accumulates.
func TestWindowBoundaryInclusive(t *testing.T) {
	l, tc, _ := newTestLimiter(t)

	require.False(t, l.CheckAndRecord(KeyCopy))
	tc.SetTime(testStart.Add(DefaultWindow))
	require.False(t, l.CheckAndRecord(KeyCopy))
	require.Equal(t, 2, l.State(KeyCopy).Count)
}

// TestKeysIndependent checks that blocking one key leaves the others alone.
func TestKeysIndependent(t *testing.T) {
	l, _, events := newTestLimiter(t)

	for i := 0; i < 4; i++ {
		require.False(t, l.CheckAndRecord(KeyIPv4))
	}
	require.True(t, l.CheckAndRecord(KeyIPv4))
	waitEvent(t, events)

	require.False(t, l.CheckAndRecord(KeyIPv6))
	require.False(t, l.CheckAndRecord(KeyCopy))
	require.Equal(t, State{}, l.State("never-used"))
}

// TestUnblockIdempotent runs the reset twice and on an unblocked key.
func TestUnblockIdempotent(t *testing.T) {
	l, _, events := newTestLimiter(t)

	for i := 0; i < 5; i++ {
		l.CheckAndRecord(KeyIPv6)
	}
	waitEvent(t, events)

	l.unblock(KeyIPv6, testStart)
	l.unblock(KeyIPv6, testStart)
	l.unblock("missing", testStart)

	require.Equal(t, Cleared, waitEvent(t, events).Kind)
	select {
	case e := <-events:
		t.Fatalf("unexpected second event %v", e)
	default:
	}
	require.False(t, l.State(KeyIPv6).Blocked)
}

// TestCustomConfig checks thresholds from Config.
func TestCustomConfig(t *testing.T) {
	tc := clock.NewTestClock(testStart)
	l := New(WithClock(tc), WithConfig(Config{Threshold: 2}))
	defer l.Stop()

	require.Equal(t, DefaultWindow, l.Config().Window)
	require.Equal(t, DefaultCooldown, l.Config().Cooldown)
	require.False(t, l.CheckAndRecord("y"))
	require.True(t, l.CheckAndRecord("y"))
}

// TestMetrics checks the prometheus counters.
func TestMetrics(t *testing.T) {
	l, _, events := newTestLimiter(t)

	for i := 0; i < 6; i++ {
		l.CheckAndRecord("metrics-key")
	}
	waitEvent(t, events)

	require.Equal(t, 4.0, testutil.ToFloat64(rateLimitAllowed.WithLabelValues("metrics-key")))
	require.Equal(t, 2.0, testutil.ToFloat64(rateLimitDenied.WithLabelValues("metrics-key")))
	require.Equal(t, 1.0, testutil.ToFloat64(rateLimitBlocks.WithLabelValues("metrics-key")))
}

// TestStopAbandonsTimers checks that Stop returns with a block pending.
func TestStopAbandonsTimers(t *testing.T) {
	tc := clock.NewTestClock(testStart)
	l := New(WithClock(tc))
	for i := 0; i < 5; i++ {
		l.CheckAndRecord(KeyIPv4)
	}
	l.Stop()
	l.Stop()
	require.True(t, l.State(KeyIPv4).Blocked)
}
