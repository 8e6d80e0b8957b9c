package control

import (
	"sync"
	"time"
)

type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// Transition is the state change caused by one recorded outcome.
type Transition int

const (
	Unchanged Transition = iota
	Opened
	Closed
)

// CircuitBreaker trips after Threshold consecutive failures of one error
// class and rejects calls for Cooldown. After the cooldown a single probe is
// admitted; its outcome closes or reopens the circuit. Safe for concurrent use.
type CircuitBreaker struct {
	Threshold int
	Cooldown  time.Duration

	mu          sync.Mutex
	state       CircuitState
	failures    map[string]int
	openedAt    time.Time
	openedClass string
	probing     bool
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		Threshold: threshold,
		Cooldown:  cooldown,
		state:     CircuitClosed,
		failures:  map[string]int{},
	}
}

func (c *CircuitBreaker) State() CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Allow reports whether a call may start at now. probe is true for the one
// call admitted while half-open; every admitted call must be followed by
// Record.
func (c *CircuitBreaker) Allow(now time.Time) (allowed, probe bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case CircuitClosed:
		return true, false
	case CircuitOpen:
		if now.Sub(c.openedAt) < c.Cooldown {
			return false, false
		}
		c.state = CircuitHalfOpen
	}
	if c.probing {
		return false, false
	}
	c.probing = true
	return true, true
}

// Record classifies the outcome of an admitted call and updates the state.
// probe must be the value Allow returned for that call. A nil error is a
// success. A canceled call frees the probe slot without counting as a failure.
func (c *CircuitBreaker) Record(err error, probe bool, now time.Time) (class string, tr Transition) {
	class = Classify(err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if probe {
		c.probing = false
	}
	wasProbe := probe && c.state == CircuitHalfOpen

	switch {
	case class == "":
		if c.state != CircuitClosed {
			tr = Closed
		}
		c.state = CircuitClosed
		c.openedClass = ""
		c.failures = map[string]int{}
		c.probing = false
	case class == ClassCanceled:
	case wasProbe:
		c.trip(class, now)
		tr = Opened
	case c.state == CircuitClosed:
		c.failures[class]++
		if c.failures[class] >= c.Threshold {
			c.trip(class, now)
			tr = Opened
		}
	}
	return class, tr
}

func (c *CircuitBreaker) trip(class string, now time.Time) {
	c.state = CircuitOpen
	c.openedAt = now
	c.openedClass = class
	c.failures = map[string]int{}
}

func (c *CircuitBreaker) OpenedClass() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openedClass
}
