package settlement

import (
	"context"
	"time"

	"github.com/nvoloshin/callmeter/internal/events"
	"github.com/nvoloshin/callmeter/internal/logger"
	"github.com/nvoloshin/callmeter/internal/metrics"
	"github.com/nvoloshin/callmeter/internal/repository"
)

const (
	defaultCountWorkers   = 8               // Number of workers to settle sessions
	defaultSettleInterval = 1 * time.Minute // Interval between settlement passes
)

type Config struct {
	// Interval between settlement passes. Defaults to one minute.
	Interval time.Duration

	// Workers is the size of the settlement pool. Defaults to 8.
	Workers int
}

type Processor struct {
	producer *Producer
	consumer *Consumer
}

func New(
	cfg Config,
	storage repository.Storage,
	settings settingsSource,
	media mediaClient,
	bus *events.Bus,
	m *metrics.Metrics,
	l logger.Logger,
) *Processor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultSettleInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultCountWorkers
	}

	settler := NewSettler(storage, media, bus, m, l)

	return &Processor{
		producer: &Producer{
			interval: cfg.Interval,
			storage:  storage,
			settings: settings,
			metrics:  m,
			logger:   l,
		},
		consumer: &Consumer{
			workers: cfg.Workers,
			settler: settler,
			logger:  l,
		},
	}
}

// Process starts the settlement loop and returns a channel closed when both
// the producer and the workers have drained after ctx is canceled.
func (p *Processor) Process(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	jobChan := make(chan job)

	producerStopped := p.producer.Produce(ctx, jobChan)
	consumerStopped := p.consumer.Consume(ctx, jobChan)

	go func() {
		defer close(idleStopped)
		defer close(jobChan)
		<-producerStopped
		<-consumerStopped
		p.consumer.logger.Debug("Settlement processor stopped")
	}()

	return idleStopped
}
