package control

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("status 503")

func TestCircuitBreaker_StateTransitions(t *testing.T) {
	c := NewCircuitBreaker(2, 100*time.Millisecond)
	now := time.Now()

	require.Equal(t, CircuitClosed, c.State())

	class, tr := c.Record(errUpstream, false, now)
	assert.Equal(t, ClassProviderAPI, class)
	assert.Equal(t, Unchanged, tr)
	require.Equal(t, CircuitClosed, c.State(), "one failure stays closed")

	_, tr = c.Record(errUpstream, false, now)
	assert.Equal(t, Opened, tr)
	require.Equal(t, CircuitOpen, c.State())
	assert.Equal(t, ClassProviderAPI, c.OpenedClass())

	allowed, _ := c.Allow(now.Add(10 * time.Millisecond))
	assert.False(t, allowed, "deny during cooldown")

	allowed, probe := c.Allow(now.Add(120 * time.Millisecond))
	assert.True(t, allowed, "allow after cooldown")
	assert.True(t, probe)
	require.Equal(t, CircuitHalfOpen, c.State())

	_, tr = c.Record(nil, probe, now.Add(130*time.Millisecond))
	assert.Equal(t, Closed, tr)
	assert.Equal(t, CircuitClosed, c.State())
	assert.Empty(t, c.OpenedClass())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	c := NewCircuitBreaker(1, time.Second)
	now := time.Now()

	c.Record(context.DeadlineExceeded, false, now)
	allowed, probe := c.Allow(now.Add(2 * time.Second))
	require.True(t, allowed)
	require.True(t, probe)

	later := now.Add(3 * time.Second)
	_, tr := c.Record(errUpstream, probe, later)
	assert.Equal(t, Opened, tr)
	assert.Equal(t, CircuitOpen, c.State())
	assert.Equal(t, ClassProviderAPI, c.OpenedClass())

	allowed, _ = c.Allow(later.Add(500 * time.Millisecond))
	assert.False(t, allowed)
}

func TestCircuitBreaker_HalfOpenAdmitsOneProbe(t *testing.T) {
	c := NewCircuitBreaker(1, time.Second)
	now := time.Now()
	c.Record(errUpstream, false, now)

	after := now.Add(2 * time.Second)
	var admitted, probes atomic.Int32
	var wg conc.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Go(func() {
			allowed, probe := c.Allow(after)
			if allowed {
				admitted.Add(1)
			}
			if probe {
				probes.Add(1)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, int32(1), probes.Load())
	assert.Equal(t, CircuitHalfOpen, c.State())
}

func TestCircuitBreaker_CanceledProbeFreesSlot(t *testing.T) {
	c := NewCircuitBreaker(1, time.Second)
	now := time.Now()
	c.Record(errUpstream, false, now)

	after := now.Add(2 * time.Second)
	_, probe := c.Allow(after)
	require.True(t, probe)

	_, tr := c.Record(context.Canceled, probe, after)
	assert.Equal(t, Unchanged, tr)
	assert.Equal(t, CircuitHalfOpen, c.State())

	allowed, probe := c.Allow(after)
	assert.True(t, allowed, "next caller becomes the probe")
	assert.True(t, probe)
}

func TestCircuitBreaker_CountsPerClass(t *testing.T) {
	c := NewCircuitBreaker(2, time.Second)
	now := time.Now()

	c.Record(context.DeadlineExceeded, false, now)
	c.Record(errUpstream, false, now)
	assert.Equal(t, CircuitClosed, c.State())

	_, tr := c.Record(context.DeadlineExceeded, false, now)
	assert.Equal(t, Opened, tr)
	assert.Equal(t, ClassTimeout, c.OpenedClass())
}

func TestCircuitBreaker_SuccessResetsCounts(t *testing.T) {
	c := NewCircuitBreaker(2, time.Second)
	now := time.Now()

	c.Record(errUpstream, false, now)
	c.Record(nil, false, now)
	c.Record(errUpstream, false, now)
	assert.Equal(t, CircuitClosed, c.State())
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	c := NewCircuitBreaker(0, 0)
	assert.Equal(t, 5, c.Threshold)
	assert.Equal(t, 30*time.Second, c.Cooldown)
}
