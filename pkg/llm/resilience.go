package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// GuardConfig tunes the resilience wrapper around a provider.
type GuardConfig struct {
	RateLimit        float64
	Burst            int
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// GuardedProvider wraps a backend with a rate limiter and a circuit breaker.
// A tripped breaker or a cancelled limiter wait surfaces as a failed
// Response, matching the backend's own error contract.
type GuardedProvider struct {
	backend Provider
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewGuardedProvider wraps a provider. Zero config fields get defaults sized
// for hosted LLM APIs.
func NewGuardedProvider(backend Provider, config GuardConfig, logger *logrus.Logger) *GuardedProvider {
	if config.RateLimit == 0 {
		config.RateLimit = 2.0
	}
	if config.Burst == 0 {
		config.Burst = 1
	}
	if config.MaxRequests == 0 {
		config.MaxRequests = 3
	}
	if config.Interval == 0 {
		config.Interval = 10 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}

	cbSettings := gobreaker.Settings{
		Name:        "llm-" + backend.Model(),
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &GuardedProvider{
		backend: backend,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst),
		breaker: gobreaker.NewCircuitBreaker(cbSettings),
		logger:  logger,
	}
}

// errProviderFailure feeds failed responses into the breaker's failure count.
var errProviderFailure = errors.New("provider call failed")

// Generate waits for a rate-limit slot, then executes the backend call under
// the circuit breaker.
func (g *GuardedProvider) Generate(ctx context.Context, prompt, systemPrompt string, maxTokens int, temperature float64) Response {
	if err := g.limiter.Wait(ctx); err != nil {
		return failure(g.backend.Model(), "rate limiter wait aborted: "+err.Error())
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		resp := g.backend.Generate(ctx, prompt, systemPrompt, maxTokens, temperature)
		if !resp.Success {
			return resp, errProviderFailure
		}
		return resp, nil
	})
	if err != nil {
		if resp, ok := result.(Response); ok {
			return resp
		}
		return failure(g.backend.Model(), "circuit breaker open: "+err.Error())
	}

	return result.(Response)
}

// IsAvailable delegates to the backend.
func (g *GuardedProvider) IsAvailable() bool {
	return g.backend.IsAvailable()
}

// Model delegates to the backend.
func (g *GuardedProvider) Model() string {
	return g.backend.Model()
}
