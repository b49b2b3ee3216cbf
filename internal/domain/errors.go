package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrLadderExhausted is informational: price crossed below the deepest
	// trigger while all safety orders are already filled.
	ErrLadderExhausted = errors.New("safety order ladder exhausted")

	// ErrPairLocked is returned when opening a position on a locked pair.
	ErrPairLocked = errors.New("pair is locked")

	// ErrPositionFailed marks a position that exceeded its exit timeout
	// budget and needs manual or emergency handling.
	ErrPositionFailed = errors.New("position requires manual intervention")
)

// ConfigError is fatal at load time: a malformed safety or trailing entry.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// CapacityError rejects a single open attempt without aborting anything else.
type CapacityError struct {
	Reason string
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity exceeded: %s", e.Reason)
}

// TimeoutExceededError escalates after the exit-cancel budget is spent.
type TimeoutExceededError struct {
	Pair    string
	Cancels int
	Max     int
}

func (e *TimeoutExceededError) Error() string {
	return fmt.Sprintf("%s: %d exit order timeouts exceed maximum of %d", e.Pair, e.Cancels, e.Max)
}

func (e *TimeoutExceededError) Unwrap() error { return ErrPositionFailed }
