package notify

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned while the downstream notifier is considered down.
var ErrCircuitOpen = errors.New("notifier circuit open")

type BreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold uint32
	// Timeout is how long the circuit stays open before probing again.
	Timeout time.Duration
}

// BreakerNotifier stops calling a failing broker for a while instead of
// paying its timeout on every notification.
type BreakerNotifier struct {
	next    Notifier
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerNotifier(next Notifier, cfg BreakerConfig, log *zap.Logger) *BreakerNotifier {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	settings := gobreaker.Settings{
		Name:        "notifier",
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &BreakerNotifier{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

func (b *BreakerNotifier) Notify(ctx context.Context, msg Message) error {
	_, err := b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Notify(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

func (b *BreakerNotifier) State() gobreaker.State {
	return b.breaker.State()
}
