package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"igstories/pkg/clock"
)

var epoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func downloadPolicy() Policy {
	return Policy{
		MaxRequests:      10,
		Window:           time.Minute,
		BlockDuration:    5 * time.Minute,
		CaptchaThreshold: 3,
	}
}

func TestKeyedBlocksEleventhRequest(t *testing.T) {
	clk := clock.NewManual(epoch)
	limiter := NewKeyed(downloadPolicy(), clk)

	for i := 1; i <= 10; i++ {
		d := limiter.Check("1.2.3.4")
		require.True(t, d.Allowed, "call %d", i)
		assert.Equal(t, 10-i, d.Remaining, "call %d", i)
		assert.False(t, d.Blocked)
		assert.Equal(t, 60, d.ResetInSeconds)
		clk.Advance(10 * time.Millisecond)
	}

	d := limiter.Check("1.2.3.4")
	assert.False(t, d.Allowed)
	assert.True(t, d.Blocked)
	assert.Equal(t, 300, d.ResetInSeconds)
	assert.False(t, d.RequireCaptcha)
	assert.Equal(t, 1, limiter.FailureCount("1.2.3.4"))
}

func TestKeyedStaysBlockedUntilDeadline(t *testing.T) {
	clk := clock.NewManual(epoch)
	limiter := NewKeyed(Policy{MaxRequests: 1, Window: time.Minute, BlockDuration: 5 * time.Minute}, clk)

	require.True(t, limiter.Check("ip").Allowed)
	require.True(t, limiter.Check("ip").Blocked)

	clk.Advance(4 * time.Minute)
	d := limiter.Check("ip")
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.ResetIn)
	assert.Equal(t, 1, limiter.FailureCount("ip"), "checks while blocked do not escalate")

	clk.Advance(time.Minute)
	d = limiter.Check("ip")
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
}

func TestKeyedWindowSlides(t *testing.T) {
	clk := clock.NewManual(epoch)
	limiter := NewKeyed(Policy{MaxRequests: 2, Window: time.Minute, BlockDuration: time.Minute}, clk)

	require.True(t, limiter.Check("ip").Allowed)
	clk.Advance(30 * time.Second)
	d := limiter.Check("ip")
	require.True(t, d.Allowed)
	assert.Equal(t, 30*time.Second, d.ResetIn, "reset is measured from the oldest request")

	clk.Advance(31 * time.Second)
	d = limiter.Check("ip")
	assert.True(t, d.Allowed, "oldest request left the window")
	assert.Equal(t, 0, d.Remaining)
}

func TestKeyedWaitingResetInIsEnough(t *testing.T) {
	clk := clock.NewManual(epoch)
	limiter := NewKeyed(Policy{MaxRequests: 1, Window: time.Minute, BlockDuration: 5 * time.Minute}, clk)

	first := limiter.Check("ip")
	require.True(t, first.Allowed)
	require.Equal(t, time.Minute, first.ResetIn)

	clk.Advance(first.ResetIn)
	d := limiter.Check("ip")
	assert.True(t, d.Allowed)
	assert.False(t, d.Blocked)
	assert.Zero(t, limiter.FailureCount("ip"))
}

func TestKeyedCaptchaEscalation(t *testing.T) {
	clk := clock.NewManual(epoch)
	limiter := NewKeyed(downloadPolicy(), clk)

	exhaust := func() Decision {
		for i := 0; i < 10; i++ {
			require.True(t, limiter.Check("ip").Allowed)
		}
		return limiter.Check("ip")
	}

	for block := 1; block <= 3; block++ {
		d := exhaust()
		require.True(t, d.Blocked, "block %d", block)
		assert.Equal(t, block >= 3, d.RequireCaptcha, "block %d", block)
		clk.Advance(5 * time.Minute)
	}

	// still escalated after the block expires and the caller trips again
	d := exhaust()
	assert.True(t, d.RequireCaptcha)

	limiter.ResetFailures("ip")
	assert.Equal(t, 0, limiter.FailureCount("ip"))

	d = limiter.Check("ip")
	assert.True(t, d.Allowed)
	assert.Equal(t, 9, d.Remaining)
	assert.False(t, d.RequireCaptcha)
}

func TestKeyedIdentifiersAreIndependent(t *testing.T) {
	limiter := NewKeyed(Policy{MaxRequests: 1, Window: time.Minute, BlockDuration: time.Minute}, clock.NewManual(epoch))

	require.True(t, limiter.Check("a").Allowed)
	require.False(t, limiter.Check("a").Allowed)
	assert.True(t, limiter.Check("b").Allowed)

	limiter.ResetFailures("unknown")
	assert.Equal(t, 0, limiter.FailureCount("unknown"))
}

func TestKeyedDefaultCaptchaThreshold(t *testing.T) {
	limiter := NewKeyed(Policy{MaxRequests: 1, Window: time.Minute}, nil)
	assert.Equal(t, DefaultCaptchaThreshold, limiter.Policy().CaptchaThreshold)
}

func TestKeyedSweep(t *testing.T) {
	clk := clock.NewManual(epoch)
	limiter := NewKeyed(Policy{MaxRequests: 1, Window: time.Minute, BlockDuration: 2 * time.Minute}, clk)

	limiter.Check("quiet")
	limiter.Check("noisy")
	limiter.Check("noisy") // blocked until +2m

	clk.Advance(90 * time.Second)
	assert.Equal(t, 0, limiter.Sweep())

	clk.Advance(2 * time.Minute)
	assert.Equal(t, 2, limiter.Sweep())
	assert.Equal(t, 0, limiter.Len())

	// a swept identifier starts fresh
	assert.True(t, limiter.Check("noisy").Allowed)
}

func TestKeyedSweepLoop(t *testing.T) {
	clk := clock.NewManual(epoch)
	limiter := NewKeyed(Policy{MaxRequests: 5, Window: time.Second}, clk)
	limiter.Check("ip")
	clk.Advance(time.Hour)

	limiter.Start(5 * time.Millisecond)
	defer limiter.Stop()

	assert.Eventually(t, func() bool { return limiter.Len() == 0 }, time.Second, 5*time.Millisecond)
	limiter.Stop()
}

func TestKeyedConcurrentChecks(t *testing.T) {
	limiter := NewKeyed(Policy{MaxRequests: 50, Window: time.Hour, BlockDuration: time.Hour}, nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed = map[string]int{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 40; j++ {
				id := fmt.Sprintf("ip-%d", j%2)
				if limiter.Check(id).Allowed {
					mu.Lock()
					allowed[id]++
					mu.Unlock()
				}
				if j%13 == 0 {
					limiter.Sweep()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed["ip-0"])
	assert.Equal(t, 50, allowed["ip-1"])
}

func TestHostPacer(t *testing.T) {
	pacer := NewHostPacer(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, pacer.Wait(ctx, "https://cdn.example.com/a.jpg"))
	require.NoError(t, pacer.Wait(ctx, "https://other.example.com/b.jpg"))
	assert.Less(t, time.Since(start), 40*time.Millisecond, "distinct hosts do not wait on each other")

	require.NoError(t, pacer.Wait(ctx, "https://cdn.example.com/c.jpg"))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestHostPacerErrors(t *testing.T) {
	pacer := NewHostPacer(time.Hour)

	assert.Error(t, pacer.Wait(context.Background(), "/relative/path"))

	require.NoError(t, pacer.Wait(context.Background(), "https://a.example.com"))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, pacer.Wait(ctx, "https://a.example.com"))

	var disabled *HostPacer
	assert.NoError(t, disabled.Wait(context.Background(), "https://a.example.com"))
}
