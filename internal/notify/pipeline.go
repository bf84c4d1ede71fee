package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

type PipelineConfig struct {
	RabbitMQURL string // empty means log only
	Exchange    string
	QueueSize   int
	Timeout     time.Duration
	Breaker     BreakerConfig
}

// Pipeline is the notifier stack used by the binaries:
// Dispatcher -> BreakerNotifier -> RabbitNotifier (or LogNotifier).
type Pipeline struct {
	*Dispatcher
	broker *RabbitNotifier
}

func NewPipeline(cfg PipelineConfig, log *zap.Logger, observe func(kind, outcome string)) (*Pipeline, error) {
	var (
		sink   Notifier = NewLogNotifier(log)
		broker *RabbitNotifier
	)
	if cfg.RabbitMQURL != "" {
		rn, err := NewRabbitNotifier(cfg.RabbitMQURL, cfg.Exchange, log)
		if err != nil {
			return nil, err
		}
		broker = rn
		sink = rn
	} else {
		log.Info("RABBITMQ_URL not set, notifications are only logged")
	}

	opts := []DispatcherOption{
		WithQueueSize(cfg.QueueSize),
		WithDeliveryTimeout(cfg.Timeout),
	}
	if observe != nil {
		opts = append(opts, WithObserver(observe))
	}

	d := NewDispatcher(NewBreakerNotifier(sink, cfg.Breaker, log), log, opts...)
	d.Start()
	return &Pipeline{Dispatcher: d, broker: broker}, nil
}

// Shutdown drains queued messages, then closes the broker connection.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	err := p.Dispatcher.Close(ctx)
	if p.broker != nil {
		err = errors.Join(err, p.broker.Close())
	}
	return err
}
