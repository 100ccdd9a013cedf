package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/nvoloshin/callmeter/internal/logger"
)

// Event names published by the billing core. The notification collaborator
// consumes these asynchronously, outside the ledger's transactional boundary.
const (
	BalanceDebited    = "balance.debited"
	BalanceCredited   = "balance.credited"
	SessionTerminated = "session.terminated"
)

type Event struct {
	Name       string
	UserID     uuid.UUID
	SessionID  uuid.UUID
	Coins      int64
	Reason     string
	OccurredAt time.Time
}

// Bus is a small in-process pub channel between the billing core and the
// notification subsystem. Publish never blocks billing: when the consumer
// lags behind the buffer the event is dropped and logged.
type Bus struct {
	ch     chan Event
	logger logger.Logger
}

func NewBus(size int, l logger.Logger) *Bus {
	if size <= 0 {
		size = 256
	}

	return &Bus{
		ch:     make(chan Event, size),
		logger: l,
	}
}

func (b *Bus) Publish(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	select {
	case b.ch <- e:
	default:
		b.logger.Warn("Event dropped, consumer is lagging", "event", e.Name, "user_id", e.UserID)
	}
}

func (b *Bus) Events() <-chan Event {
	return b.ch
}
