// Package notify publishes migration lifecycle events to external sinks
// (Slack, Discord, logs). Publishing is fire-and-forget: sink failures are
// logged and swallowed, and must never influence migration state.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Event is one migration status transition, emitted in transition order for
// a given migration.
type Event struct {
	MigrationID string
	InstanceID  string
	OldStatus   string
	NewStatus   string
	Detail      string // optional context, e.g. the failure or a teardown summary
	At          time.Time
}

// Title renders the event headline. Events without a migration id (the
// periodic digest) use the detail text directly.
func (e Event) Title() string {
	if e.MigrationID == "" {
		return e.Detail
	}
	return fmt.Sprintf("migration %s: %s -> %s", e.MigrationID, e.OldStatus, e.NewStatus)
}

// Text renders the full event message.
func (e Event) Text() string {
	if e.MigrationID == "" {
		return e.Detail
	}
	var b strings.Builder
	b.WriteString(e.Title())
	b.WriteString(fmt.Sprintf(" (instance %s)", e.InstanceID))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// Sink delivers events to one destination.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Publish sends an event to a sink, logging instead of returning on error.
// A nil sink is a no-op.
func Publish(ctx context.Context, sink Sink, ev Event) {
	if sink == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if err := sink.Publish(ctx, ev); err != nil {
		log.Printf("notify: publish %s: %v", ev.Title(), err)
	}
}

// LogSink writes events to the process log.
type LogSink struct{}

// Publish logs the event.
func (LogSink) Publish(_ context.Context, ev Event) error {
	log.Printf("notify: %s", ev.Text())
	return nil
}

// MultiSink fans out to several sinks. Each sink gets every event; the
// first error is returned after all sinks were attempted.
type MultiSink []Sink

// Publish delivers the event to every sink.
func (m MultiSink) Publish(ctx context.Context, ev Event) error {
	var first error
	for _, s := range m {
		if err := s.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder is a Sink for tests that captures published events.
type Recorder struct {
	Events []Event
}

// Publish appends the event.
func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.Events = append(r.Events, ev)
	return nil
}
