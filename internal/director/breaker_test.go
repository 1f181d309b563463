package director

import (
	"testing"
	"time"

	"codeberg.org/mutker/vibesd/internal/logger"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failTimes(t *testing.T, b *Breaker, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		done, ok := b.Allow()
		require.True(t, ok)
		done(false)
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreaker(5, time.Minute, logger.Nop())

	failTimes(t, b, 4)
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, uint32(4), b.Counts().ConsecutiveFailures)

	failTimes(t, b, 1)
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, ok := b.Allow()
	assert.False(t, ok)
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := NewBreaker(5, time.Minute, logger.Nop())

	failTimes(t, b, 4)
	done, ok := b.Allow()
	require.True(t, ok)
	done(true)
	failTimes(t, b, 4)

	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerSingleProbeAfterCooldown(t *testing.T) {
	b := NewBreaker(2, 50*time.Millisecond, logger.Nop())
	failTimes(t, b, 2)

	_, ok := b.Allow()
	assert.False(t, ok, "rejected during cooldown")

	time.Sleep(80 * time.Millisecond)

	done, ok := b.Allow()
	require.True(t, ok)
	assert.Equal(t, gobreaker.StateHalfOpen, b.State())

	_, ok = b.Allow()
	assert.False(t, ok, "only one probe in flight")

	done(true)
	assert.Equal(t, gobreaker.StateClosed, b.State())

	_, ok = b.Allow()
	assert.True(t, ok)
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b := NewBreaker(1, 200*time.Millisecond, logger.Nop())
	failTimes(t, b, 1)

	time.Sleep(250 * time.Millisecond)

	done, ok := b.Allow()
	require.True(t, ok)
	done(false)

	assert.Equal(t, gobreaker.StateOpen, b.State())

	time.Sleep(100 * time.Millisecond)
	_, ok = b.Allow()
	assert.False(t, ok, "cooldown restarts from the failed probe")

	time.Sleep(150 * time.Millisecond)
	_, ok = b.Allow()
	assert.True(t, ok)
}

func TestBreakerThresholdFloor(t *testing.T) {
	b := NewBreaker(0, time.Minute, nil)

	failTimes(t, b, 1)
	assert.Equal(t, gobreaker.StateOpen, b.State())
}
