package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewBandwidthLimiterUnlimitedIsNil(t *testing.T) {
	require.Nil(t, newBandwidthLimiter(0))
	require.Nil(t, newBandwidthLimiter(-1))
}

func TestBandwidthLimiterNilDelayIsZero(t *testing.T) {
	var b *bandwidthLimiter
	require.Equal(t, time.Duration(0), b.delay())
}

func TestBandwidthLimiterDelaysBurstAboveRate(t *testing.T) {
	b := newBandwidthLimiter(2) // 2 req/s, burst 1
	require.Equal(t, time.Duration(0), b.delay())
	d := b.delay()
	require.Greater(t, d, time.Duration(0))
	require.LessOrEqual(t, d, 600*time.Millisecond)
}

func TestPacerFromOptionVariants(t *testing.T) {
	require.Nil(t, pacerFromOption(""))
	require.Nil(t, pacerFromOption("unlimited"))
	require.Nil(t, pacerFromOption("not-a-number"))
	require.Nil(t, pacerFromOption("-5"))
	require.NotNil(t, pacerFromOption("10"))
}

func TestReverseHeartbeatFiresAfterIdle(t *testing.T) {
	sched := NewScheduler()
	defer sched.Stop()

	hb := newReverseHeartbeat(20 * time.Millisecond)
	require.NotNil(t, hb)

	var lastActivity atomic.Value
	lastActivity.Store(time.Now())
	var sends atomic.Int32
	hb.start(sched, func() time.Time { return lastActivity.Load().(time.Time) }, func() {
		sends.Add(1)
	})

	require.Eventually(t, func() bool { return sends.Load() > 0 }, time.Second, 5*time.Millisecond)
	hb.stop()
}

func TestReverseHeartbeatSkipsWhileActive(t *testing.T) {
	sched := NewScheduler()
	defer sched.Stop()

	hb := newReverseHeartbeat(20 * time.Millisecond)
	var lastActivity atomic.Value
	lastActivity.Store(time.Now())
	var sends atomic.Int32
	hb.start(sched, func() time.Time { return lastActivity.Load().(time.Time) }, func() {
		sends.Add(1)
	})
	defer hb.stop()

	deadline := time.Now().Add(80 * time.Millisecond)
	for time.Now().Before(deadline) {
		lastActivity.Store(time.Now())
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, int32(0), sends.Load())
}

func TestNewReverseHeartbeatDisabledIsNil(t *testing.T) {
	require.Nil(t, newReverseHeartbeat(0))
	require.Nil(t, newReverseHeartbeat(-1))
}

func TestReverseHeartbeatStopIsIdempotent(t *testing.T) {
	var hb *reverseHeartbeat
	hb.stop() // nil receiver, must not panic

	sched := NewScheduler()
	defer sched.Stop()
	hb = newReverseHeartbeat(time.Second)
	hb.start(sched, func() time.Time { return time.Now() }, func() {})
	hb.stop()
	hb.stop() // second call must be a no-op, not a double-cancel panic
}
