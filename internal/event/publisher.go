// Package event delivers document lifecycle events to an external
// sink. Delivery is fire-and-forget: the ingestion pipeline hands
// events over after a successful save and must never block or fail on
// their account.
package event

import (
	"context"
	"sync"

	"github.com/arkivo/arkivo/internal/document"
	"github.com/arkivo/arkivo/internal/log"
)

// Publisher accepts events for asynchronous delivery.
type Publisher interface {
	// Publish enqueues events. It never blocks; events that cannot be
	// queued are dropped with a warning.
	Publish(ctx context.Context, events ...document.Event)
}

// Sink receives events one at a time from the async worker.
type Sink interface {
	Handle(ctx context.Context, ev document.Event) error
}

// LogSink writes events to the structured log. It stands in for a
// message-bus producer in deployments without one.
type LogSink struct {
	logger log.Logger
}

// NewLogSink creates a sink logging at info level.
func NewLogSink(logger log.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Handle implements Sink.
func (s *LogSink) Handle(_ context.Context, ev document.Event) error {
	s.logger.Info("document event",
		"event", ev.EventName(),
		"document_id", ev.Document().String(),
		"occurred_at", ev.OccurredAt())
	return nil
}

// DefaultBuffer is the queue depth of the async publisher.
const DefaultBuffer = 256

// Async is a Publisher backed by a buffered channel and a single
// delivery goroutine. A full queue drops events rather than stalling
// ingestion or search.
type Async struct {
	sink   Sink
	logger log.Logger

	queue chan document.Event
	done  chan struct{}
	once  sync.Once
}

// NewAsync starts the delivery worker. Callers own the lifecycle and
// must Close the publisher on shutdown.
func NewAsync(sink Sink, logger log.Logger) *Async {
	p := &Async{
		sink:   sink,
		logger: logger,
		queue:  make(chan document.Event, DefaultBuffer),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish implements Publisher.
func (p *Async) Publish(_ context.Context, events ...document.Event) {
	for _, ev := range events {
		select {
		case p.queue <- ev:
		default:
			p.logger.Warn("event queue full, dropping event",
				"event", ev.EventName(),
				"document_id", ev.Document().String())
		}
	}
}

// Close stops accepting events, drains the queue, and waits for the
// worker to exit. Safe to call more than once.
func (p *Async) Close() {
	p.once.Do(func() {
		close(p.queue)
		<-p.done
	})
}

func (p *Async) run() {
	defer close(p.done)
	for ev := range p.queue {
		if err := p.sink.Handle(context.Background(), ev); err != nil {
			p.logger.Warn("event delivery failed",
				"event", ev.EventName(),
				"document_id", ev.Document().String(),
				"error", err)
		}
	}
}
