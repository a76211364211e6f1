package apiclient

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrProviderUnavailable is returned when the outbound breaker for the
// configured provider is open and rejecting calls.
var ErrProviderUnavailable = errors.New("apiclient: provider temporarily unavailable")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// providerTripThreshold and providerCoolDown give each external generation
// provider its own circuit-breaker tuning: OpenAI's chat-completions
// endpoint in practice recovers from transient 5xx bursts faster than
// Anthropic's messages endpoint does, so it gets a shorter cool-down and a
// slightly higher failure allowance before tripping.
var (
	providerTripThreshold = map[string]int{
		"anthropic": 5,
		"openai":    4,
	}
	providerCoolDown = map[string]time.Duration{
		"anthropic": 30 * time.Second,
		"openai":    20 * time.Second,
	}
)

const (
	defaultTripThreshold = 5
	defaultCoolDown      = 30 * time.Second
)

// providerBreaker guards outbound calls to one configured generation
// provider. It trips after tripThreshold consecutive failures and stays
// open for coolDown before allowing a single probe call through.
type providerBreaker struct {
	provider string
	logger   *slog.Logger

	tripThreshold int
	coolDown      time.Duration
	now           func() time.Time // for testing

	mu                  sync.Mutex
	state               breakerState
	consecutiveFailures int
	openedAt            time.Time
}

// newProviderBreaker returns a breaker tuned for provider, falling back to
// a conservative default for any provider name it doesn't recognize.
func newProviderBreaker(provider string, logger *slog.Logger) *providerBreaker {
	threshold, ok := providerTripThreshold[provider]
	if !ok {
		threshold = defaultTripThreshold
	}
	coolDown, ok := providerCoolDown[provider]
	if !ok {
		coolDown = defaultCoolDown
	}
	return &providerBreaker{
		provider:      provider,
		logger:        logger,
		tripThreshold: threshold,
		coolDown:      coolDown,
		now:           time.Now,
	}
}

// attempt runs fn if the breaker is closed or probing, and records the
// outcome. Returns ErrProviderUnavailable without calling fn if the
// breaker is open.
func (b *providerBreaker) attempt(fn func() error) error {
	if !b.allow() {
		return ErrProviderUnavailable
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

func (b *providerBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if b.now().Sub(b.openedAt) >= b.coolDown {
			b.state = breakerHalfOpen
			return true
		}
		return false
	case breakerHalfOpen:
		return true
	}
	return false
}

// recordFailure must be called with b.mu held.
func (b *providerBreaker) recordFailure() {
	b.consecutiveFailures++
	if b.state == breakerHalfOpen || b.consecutiveFailures >= b.tripThreshold {
		if b.state != breakerOpen {
			b.logger.Warn("provider circuit opened", "provider", b.provider, "consecutive_failures", b.consecutiveFailures)
		}
		b.state = breakerOpen
		b.openedAt = b.now()
	}
}

// recordSuccess must be called with b.mu held.
func (b *providerBreaker) recordSuccess() {
	b.consecutiveFailures = 0
	b.state = breakerClosed
}
