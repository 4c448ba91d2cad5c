package testutil

import (
	"context"
	"sync"

	"github.com/arkivo/arkivo/internal/document"
)

// RecordingPublisher captures published events synchronously so tests
// can assert on outbox ordering without the async machinery.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []document.Event
}

// Publish implements event.Publisher.
func (p *RecordingPublisher) Publish(_ context.Context, events ...document.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

// Events returns a snapshot of everything published so far.
func (p *RecordingPublisher) Events() []document.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]document.Event(nil), p.events...)
}

// Names returns the event names in publication order.
func (p *RecordingPublisher) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, len(p.events))
	for i, ev := range p.events {
		names[i] = ev.EventName()
	}
	return names
}
