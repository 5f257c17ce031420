// Package events delivers auction notifications to external indexers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"

	"github.com/cloudx-io/confidentialbid/core"
	"github.com/cloudx-io/confidentialbid/metrics"
)

// Sink receives notifications after the operation that produced them has
// committed.
type Sink interface {
	Publish(ctx context.Context, e core.Event) error
}

// Envelope is the JSON form of a published event.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func Encode(e core.Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", e.EventName(), err)
	}
	return json.Marshal(Envelope{Event: e.EventName(), Payload: payload})
}

// LogSink writes each event as a structured log line.
type LogSink struct {
	Logger log.Logger
}

func (s LogSink) Publish(ctx context.Context, e core.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", e.EventName(), err)
	}
	level.Info(s.Logger).Log("event", e.EventName(), "payload", string(b))
	metrics.EventsPublishedTotal.WithLabelValues("log", e.EventName(), "success").Inc()
	return nil
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *Recorder) Publish(ctx context.Context, e core.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns the recorded events in publication order.
func (r *Recorder) Events() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Event(nil), r.events...)
}

// Names returns the names of the recorded events.
func (r *Recorder) Names() []string {
	var names []string
	for _, e := range r.Events() {
		names = append(names, e.EventName())
	}
	return names
}

// Multi publishes to every sink, even if some fail.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, e core.Event) error {
	var result error
	for _, s := range m {
		if err := s.Publish(ctx, e); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Publish(context.Context, core.Event) error { return nil }
