// Package circuitbreaker guards calls to the upstream metrics API.
// It is a thin layer over sony/gobreaker that speaks the application's error types.
package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	apperrors "github.com/MrRuperto3/TAO-App/internal/errors"
	"github.com/MrRuperto3/TAO-App/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Config configures a circuit breaker
type Config struct {
	Name             string
	MaxFailures      int           // consecutive failures that open the circuit
	FailureThreshold float64       // failure ratio that opens the circuit once MinRequests is reached
	MinRequests      int           // requests per interval before the ratio applies
	Interval         time.Duration // closed-state counter reset period
	Timeout          time.Duration // open period before a half-open probe
	HalfOpenMaxCalls int
	// OnStateChange is called after every transition
	OnStateChange func(name string, to State)
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		MaxFailures:      5,
		FailureThreshold: 0.5,
		MinRequests:      20,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTooManyRequests is returned when too many requests are made in half-open state
var ErrTooManyRequests = errors.New("too many requests in half-open state")

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	maxFailures := uint32(config.MaxFailures)
	minRequests := uint32(config.MinRequests)
	threshold := config.FailureThreshold

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: uint32(config.HalfOpenMaxCalls),
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if maxFailures > 0 && counts.ConsecutiveFailures >= maxFailures {
				return true
			}
			if counts.Requests < minRequests || threshold <= 0 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= threshold
		},
		// rejected requests say nothing about upstream health
		IsSuccessful: func(err error) bool {
			return err == nil || !apperrors.IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.WithField("circuitBreaker", name).WithFields(map[string]interface{}{
				"from": fromGobreaker(from),
				"to":   fromGobreaker(to),
			}).Warn("Circuit breaker state changed")
			if config.OnStateChange != nil {
				config.OnStateChange(name, fromGobreaker(to))
			}
		},
	}

	return &CircuitBreaker{
		name: config.Name,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

// Execute executes a function with circuit breaker protection
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := cb.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		return apperrors.NewServiceUnavailableError(cb.name + ": " + ErrCircuitOpen.Error())
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return apperrors.NewServiceUnavailableError(cb.name + ": " + ErrTooManyRequests.Error())
	}
	return err
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	return fromGobreaker(cb.cb.State())
}

// Name returns the breaker name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}
