package timectrl

import (
	"sync"
	"time"
)

// Clock is the time source used to measure query and load durations.
// Production code uses Wall; tests substitute a Controller so elapsed
// values are deterministic.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Since returns the time elapsed since t.
	Since(t time.Time) time.Duration
}

type wallClock struct{}

func (wallClock) Now() time.Time                  { return time.Now() }
func (wallClock) Since(t time.Time) time.Duration { return time.Since(t) }

// Wall is the system clock.
var Wall Clock = wallClock{}

// Controller is a manually driven Clock. Every call to Now advances the
// controller by Tick after returning, so two consecutive reads differ by
// exactly Tick.
type Controller struct {
	mu        sync.Mutex
	StartTime time.Time
	Tick      time.Duration

	currentTime time.Time
	listeners   []func(time.Time)
}

// NewController constructs a controller positioned at start.
func NewController(start time.Time, tick time.Duration) *Controller {
	return &Controller{
		StartTime:   start,
		Tick:        tick,
		currentTime: start,
	}
}

// Now returns the current controller time, then steps it forward by Tick.
func (tc *Controller) Now() time.Time {
	tc.mu.Lock()
	now := tc.currentTime
	tc.currentTime = now.Add(tc.Tick)
	listeners := append([]func(time.Time){}, tc.listeners...)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(now)
	}
	return now
}

// Since reports the controller time elapsed since t without stepping.
func (tc *Controller) Since(t time.Time) time.Duration {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.currentTime.Sub(t)
}

// SetTime moves the controller to t.
func (tc *Controller) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// Advance moves the controller forward by d.
func (tc *Controller) Advance(d time.Duration) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = tc.currentTime.Add(d)
}

// AddListener registers a callback invoked with the time returned by each
// call to Now.
func (tc *Controller) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}
