// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package enrichment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

type recordingEnricher struct {
	mu      sync.Mutex
	seen    []string
	panicOn string
	done    chan string
}

func newRecordingEnricher() *recordingEnricher {
	return &recordingEnricher{done: make(chan string, 64)}
}

func (r *recordingEnricher) Enrich(_ context.Context, eventID string) Outcome {
	r.mu.Lock()
	r.seen = append(r.seen, eventID)
	r.mu.Unlock()
	r.done <- eventID
	if eventID == r.panicOn {
		panic("enricher exploded")
	}
	return OutcomeProviderSuccess
}

// gateEnricher reports each task and then blocks until release is closed.
type gateEnricher struct {
	done    chan string
	release chan struct{}
}

func (g *gateEnricher) Enrich(_ context.Context, eventID string) Outcome {
	g.done <- eventID
	<-g.release
	return OutcomeProviderSuccess
}

type staticPending struct {
	ids    []string
	err    error
	cutoff chan time.Time
}

func (s staticPending) ListPendingPageviews(_ context.Context, before time.Time, limit int) ([]string, error) {
	if s.cutoff != nil {
		s.cutoff <- before
	}
	if s.err != nil {
		return nil, s.err
	}
	if len(s.ids) > limit {
		return s.ids[:limit], nil
	}
	return s.ids, nil
}

func startQueue(t *testing.T, enricher Enricher, pending PendingLister) *Queue {
	t.Helper()
	return startQueueWithConfig(t, enricher, pending, DefaultQueueConfig())
}

func startQueueWithConfig(t *testing.T, enricher Enricher, pending PendingLister, cfg QueueConfig) *Queue {
	t.Helper()
	cfg.CloseTimeout = 2 * time.Second
	q, err := NewQueue(enricher, pending, cfg)
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- q.Run(ctx) }()

	select {
	case <-q.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("queue did not start")
	}

	t.Cleanup(func() {
		cancel()
		select {
		case <-runErr:
		case <-time.After(5 * time.Second):
			t.Error("queue did not stop")
		}
	})
	return q
}

func waitFor(t *testing.T, ch <-chan string, want map[string]bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for len(want) > 0 {
		select {
		case id := <-ch:
			delete(want, id)
		case <-deadline:
			t.Fatalf("timed out waiting for %v", want)
		}
	}
}

func TestQueue_ScheduleRunsEnrichment(t *testing.T) {
	enricher := newRecordingEnricher()
	q := startQueue(t, enricher, nil)

	q.Schedule("ev1")
	q.Schedule("ev2")

	waitFor(t, enricher.done, map[string]bool{"ev1": true, "ev2": true})
	if q.Backlog() != 0 {
		t.Errorf("Backlog() = %d after tasks were handled", q.Backlog())
	}
}

func TestQueue_DropsWhenBacklogFull(t *testing.T) {
	enricher := &gateEnricher{done: make(chan string, 8), release: make(chan struct{})}
	cfg := DefaultQueueConfig()
	cfg.Workers = 1
	cfg.Buffer = 2
	q := startQueueWithConfig(t, enricher, nil, cfg)
	released := false
	release := func() {
		if !released {
			released = true
			close(enricher.release)
		}
	}
	t.Cleanup(release)

	// a holds the only worker
	q.Schedule("a")
	waitFor(t, enricher.done, map[string]bool{"a": true})

	// b is taken by the handler, which then waits for the worker
	q.Schedule("b")
	deadline := time.Now().Add(5 * time.Second)
	for q.Backlog() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Backlog() = %d, handler never picked up b", q.Backlog())
		}
		time.Sleep(10 * time.Millisecond)
	}

	q.Schedule("c")
	q.Schedule("d")
	q.Schedule("e")
	if q.Backlog() != 2 {
		t.Fatalf("Backlog() = %d, want 2", q.Backlog())
	}

	release()
	waitFor(t, enricher.done, map[string]bool{"b": true, "c": true, "d": true})
	select {
	case id := <-enricher.done:
		t.Errorf("task %s ran, want e dropped", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestQueue_ScheduleBeforeRunIsDeferred(t *testing.T) {
	q, err := NewQueue(newRecordingEnricher(), nil, DefaultQueueConfig())
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	defer q.Close()

	q.Schedule("early")
	if q.Backlog() != 0 {
		t.Errorf("Backlog() = %d, want 0 before the router runs", q.Backlog())
	}
}

func TestQueue_PanicDoesNotStopQueue(t *testing.T) {
	enricher := newRecordingEnricher()
	enricher.panicOn = "bad"
	q := startQueue(t, enricher, nil)

	q.Schedule("bad")
	waitFor(t, enricher.done, map[string]bool{"bad": true})

	q.Schedule("good")
	waitFor(t, enricher.done, map[string]bool{"good": true})
}

func TestQueue_MalformedPayloadDropped(t *testing.T) {
	enricher := newRecordingEnricher()
	q := startQueue(t, enricher, nil)

	if err := q.pubsub.Publish(TopicEnrich, message.NewMessage(watermill.NewUUID(), []byte("not json"))); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := q.pubsub.Publish(TopicEnrich, message.NewMessage(watermill.NewUUID(), []byte(`{"event_id":""}`))); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	q.Schedule("after")
	waitFor(t, enricher.done, map[string]bool{"after": true})

	enricher.mu.Lock()
	defer enricher.mu.Unlock()
	if len(enricher.seen) != 1 {
		t.Errorf("enricher saw %v, want only the valid task", enricher.seen)
	}
}

func TestQueue_RequeuesPendingOnStart(t *testing.T) {
	enricher := newRecordingEnricher()
	startQueue(t, enricher, staticPending{ids: []string{"old1", "old2", "old3"}})

	waitFor(t, enricher.done, map[string]bool{"old1": true, "old2": true, "old3": true})
}

func TestQueue_RequeueUsesStartCutoff(t *testing.T) {
	enricher := newRecordingEnricher()
	pending := staticPending{ids: []string{"old1"}, cutoff: make(chan time.Time, 1)}
	before := time.Now()
	startQueue(t, enricher, pending)

	select {
	case cutoff := <-pending.cutoff:
		if cutoff.Before(before) || cutoff.After(time.Now()) {
			t.Errorf("cutoff = %v, want the router start time", cutoff)
		}
		if cutoff.Location() != time.UTC {
			t.Errorf("cutoff location = %v, want UTC", cutoff.Location())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pending pageviews were never listed")
	}
	waitFor(t, enricher.done, map[string]bool{"old1": true})
}

func TestQueue_RequeueIgnoresBacklogCap(t *testing.T) {
	enricher := newRecordingEnricher()
	cfg := DefaultQueueConfig()
	cfg.Buffer = 1
	startQueueWithConfig(t, enricher, staticPending{ids: []string{"p1", "p2", "p3"}}, cfg)

	waitFor(t, enricher.done, map[string]bool{"p1": true, "p2": true, "p3": true})
}

func TestQueue_RequeueErrorIsNotFatal(t *testing.T) {
	enricher := newRecordingEnricher()
	q := startQueue(t, enricher, staticPending{err: errors.New("db closed")})

	q.Schedule("fresh")
	waitFor(t, enricher.done, map[string]bool{"fresh": true})
}

func TestNewQueue_Defaults(t *testing.T) {
	q, err := NewQueue(newRecordingEnricher(), nil, QueueConfig{RequeueLimit: -1})
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	defer q.Close()

	def := DefaultQueueConfig()
	if q.cfg.Workers != def.Workers || q.cfg.Buffer != def.Buffer || q.cfg.TaskTimeout != def.TaskTimeout {
		t.Errorf("cfg = %+v, want defaults", q.cfg)
	}
	if q.cfg.RequeueLimit != 0 {
		t.Errorf("RequeueLimit = %d, want 0", q.cfg.RequeueLimit)
	}
	if cap(q.sem) != def.Workers {
		t.Errorf("worker slots = %d, want %d", cap(q.sem), def.Workers)
	}
	if q.InFlight() != 0 {
		t.Errorf("InFlight() = %d", q.InFlight())
	}
}
