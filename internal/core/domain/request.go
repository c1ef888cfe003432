package domain

import (
	"fmt"
	"time"
)

// Priority is the accuracy/power trade-off requested from the fused provider.
type Priority string

const (
	PriorityHighAccuracy  Priority = "high_accuracy"
	PriorityBalancedPower Priority = "balanced_power"
	PriorityLowPower      Priority = "low_power"
	PriorityPassive       Priority = "passive"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHighAccuracy, PriorityBalancedPower, PriorityLowPower, PriorityPassive:
		return true
	}
	return false
}

// Request describes how often and how precisely updates are wanted.
type Request struct {
	Priority        Priority      `json:"priority"`
	Interval        time.Duration `json:"interval"`
	FastestInterval time.Duration `json:"fastest_interval"`
	MaxWait         time.Duration `json:"max_wait"`
	MinDisplacement float64       `json:"min_displacement"` // meters
}

// Defaults used by the observer-based provider.
const (
	DefaultUpdateInterval     = 10 * time.Second
	DefaultFastestInterval    = 5 * time.Second
	DefaultMaxWait            = 15 * time.Second
	DefaultMinDisplacementM   = 1.0
	PollUpdateInterval        = 60 * time.Second
	PollFastestInterval       = 30 * time.Second
	PollMaxWait               = 120 * time.Second
	PollMinDisplacementMeters = 100.0
)

// ObserverRequest returns the request shared by all sources of the
// observer-based provider.
func ObserverRequest() Request {
	return Request{
		Priority:        PriorityHighAccuracy,
		Interval:        DefaultUpdateInterval,
		FastestInterval: DefaultFastestInterval,
		MaxWait:         DefaultMaxWait,
		MinDisplacement: DefaultMinDisplacementM,
	}
}

// PollRequest returns the fixed request of the poll-based provider.
func PollRequest() Request {
	return Request{
		Priority:        PriorityHighAccuracy,
		Interval:        PollUpdateInterval,
		FastestInterval: PollFastestInterval,
		MaxWait:         PollMaxWait,
		MinDisplacement: PollMinDisplacementMeters,
	}
}

// Validate enforces the ordering between the request intervals.
func (r Request) Validate() error {
	if !r.Priority.IsValid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidRequest, r.Priority)
	}
	if r.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidRequest)
	}
	if r.FastestInterval <= 0 || r.FastestInterval > r.Interval {
		return fmt.Errorf("%w: fastest interval must be in (0, interval]", ErrInvalidRequest)
	}
	if r.MaxWait != 0 && r.MaxWait < r.Interval {
		return fmt.Errorf("%w: max wait shorter than interval", ErrInvalidRequest)
	}
	if r.MinDisplacement < 0 {
		return fmt.Errorf("%w: negative displacement", ErrInvalidRequest)
	}
	return nil
}
