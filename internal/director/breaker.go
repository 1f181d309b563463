package director

import (
	"time"

	"codeberg.org/mutker/vibesd/internal/logger"
	"github.com/sony/gobreaker"
)

// Breaker guards model calls. It trips after threshold consecutive
// failures, rejects calls for cooldown, then admits a single probe whose
// outcome closes or re-opens it.
type Breaker struct {
	cb *gobreaker.TwoStepCircuitBreaker
}

func NewBreaker(threshold int, cooldown time.Duration, log logger.Logger) *Breaker {
	if log == nil {
		log = logger.Nop()
	}
	limit := uint32(max(threshold, 1))

	return &Breaker{
		cb: gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
			Name:        "model",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= limit
			},
			OnStateChange: func(_ string, from, to gobreaker.State) {
				log.Warn().Stringer("from", from).Stringer("to", to).Msg("Breaker state changed")
			},
		}),
	}
}

// Allow reports whether a call may go out now. An admitted call must report
// its outcome exactly once through done.
func (b *Breaker) Allow() (func(success bool), bool) {
	done, err := b.cb.Allow()
	if err != nil {
		return nil, false
	}
	return done, true
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Counts exposes the failure and success counters of the current window.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}
