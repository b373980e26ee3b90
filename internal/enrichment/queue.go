// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package enrichment

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/dashmark/internal/logging"
	"github.com/tomtom215/dashmark/internal/metrics"
)

// TopicEnrich carries pageview ids awaiting enrichment.
const TopicEnrich = "pageviews.enrich"

const handlerName = "enrich-pageviews"

// Enricher runs one enrichment to completion.
type Enricher interface {
	Enrich(ctx context.Context, eventID string) Outcome
}

// PendingLister finds pageviews created before a cutoff that were never
// enriched, e.g. because the process stopped while they sat in the
// in-memory queue.
type PendingLister interface {
	ListPendingPageviews(ctx context.Context, before time.Time, limit int) ([]string, error)
}

// metadataBacklog marks messages counted against the backlog.
const metadataBacklog = "dashmark_backlog"

// QueueConfig sizes the queue. Buffer caps both the channel buffer and the
// number of scheduled tasks not yet picked up by the handler.
type QueueConfig struct {
	Workers      int
	Buffer       int64
	TaskTimeout  time.Duration
	CloseTimeout time.Duration
	RequeueLimit int
}

// DefaultQueueConfig returns production defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Workers:      4,
		Buffer:       1024,
		TaskTimeout:  30 * time.Second,
		CloseTimeout: 30 * time.Second,
		RequeueLimit: 10000,
	}
}

type taskPayload struct {
	EventID string `json:"event_id"`
}

// Queue is the fire-and-forget scheduler for enrichment. Schedule publishes
// onto an in-process watermill channel; a router handler hands each message
// to a bounded pool of task goroutines and acks it immediately, so a task
// is attempted once and never redelivered.
type Queue struct {
	enricher Enricher
	pending  PendingLister
	cfg      QueueConfig

	pubsub *gochannel.GoChannel
	router *message.Router

	sem      chan struct{}
	tasks    sync.WaitGroup
	inFlight atomic.Int64
	backlog  atomic.Int64

	now func() time.Time
}

// NewQueue builds the queue. pending may be nil to skip the startup
// requeue.
func NewQueue(enricher Enricher, pending PendingLister, cfg QueueConfig) (*Queue, error) {
	def := DefaultQueueConfig()
	if cfg.Workers < 1 {
		cfg.Workers = def.Workers
	}
	if cfg.Buffer < 1 {
		cfg.Buffer = def.Buffer
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = def.CloseTimeout
	}
	if cfg.RequeueLimit < 0 {
		cfg.RequeueLimit = 0
	}

	logger := watermill.NewSlogLogger(logging.NewSlogLogger())
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: cfg.Buffer}, logger)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)

	q := &Queue{
		enricher: enricher,
		pending:  pending,
		cfg:      cfg,
		pubsub:   pubsub,
		router:   router,
		sem:      make(chan struct{}, cfg.Workers),
		now:      time.Now,
	}
	router.AddConsumerHandler(handlerName, TopicEnrich, pubsub, q.handle)
	return q, nil
}

// Schedule queues eventID for enrichment and returns immediately. When
// Buffer tasks are already waiting the task is dropped. Dropped tasks and
// publish failures are logged; the pageview stays unenriched until the next
// startup requeue.
func (q *Queue) Schedule(eventID string) {
	select {
	case <-q.router.Running():
	default:
		// nothing is subscribed yet; the startup requeue lists this pageview
		metrics.EnrichmentScheduled.WithLabelValues("deferred").Inc()
		return
	}

	// gochannel parks a goroutine per undelivered message, so the backlog
	// has to be capped here
	if q.backlog.Add(1) > q.cfg.Buffer {
		q.backlog.Add(-1)
		metrics.EnrichmentScheduled.WithLabelValues("dropped").Inc()
		logging.Warn().Str("event_id", eventID).Int64("backlog", q.cfg.Buffer).Msg("Enrichment backlog full, dropping task")
		return
	}
	q.publish(eventID)
}

// publish sends one task. The caller has already counted it in the backlog.
func (q *Queue) publish(eventID string) {
	payload, err := json.Marshal(taskPayload{EventID: eventID})
	if err != nil {
		q.backlog.Add(-1)
		metrics.EnrichmentScheduled.WithLabelValues("failed").Inc()
		logging.Error().Err(err).Str("event_id", eventID).Msg("Failed to encode enrichment task")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataBacklog, "1")
	if err := q.pubsub.Publish(TopicEnrich, msg); err != nil {
		q.backlog.Add(-1)
		metrics.EnrichmentScheduled.WithLabelValues("failed").Inc()
		logging.Warn().Err(err).Str("event_id", eventID).Msg("Failed to schedule enrichment")
		return
	}
	metrics.EnrichmentScheduled.WithLabelValues("published").Inc()
}

// handle dispatches a task and acks. Blocking on the worker semaphore is
// what bounds concurrency; the channel buffer absorbs bursts meanwhile.
func (q *Queue) handle(msg *message.Message) error {
	if msg.Metadata.Get(metadataBacklog) != "" {
		q.backlog.Add(-1)
	}

	var p taskPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.EventID == "" {
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping malformed enrichment task")
		return nil
	}

	select {
	case q.sem <- struct{}{}:
	case <-msg.Context().Done():
		// router is closing; the pageview is picked up by the next requeue
		return nil
	}

	q.tasks.Add(1)
	q.inFlight.Add(1)
	go func(eventID, correlationID string) {
		defer func() {
			q.inFlight.Add(-1)
			<-q.sem
			q.tasks.Done()
		}()
		q.runTask(eventID, correlationID)
	}(p.EventID, msg.UUID)
	return nil
}

// runTask runs one enrichment detached from any request, with its own
// deadline and panic boundary.
func (q *Queue) runTask(eventID, correlationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.TaskTimeout)
	defer cancel()
	ctx = logging.ContextWithCorrelationID(ctx, correlationID)

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordEnrichment("panic", 0)
			logging.Ctx(ctx).Error().
				Str("event_id", eventID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Enrichment task panicked")
		}
	}()

	outcome := q.enricher.Enrich(ctx, eventID)
	logging.Ctx(ctx).Debug().Str("event_id", eventID).Str("outcome", string(outcome)).Msg("Enrichment finished")
}

// Run starts the router, requeues pending pageviews once it is consuming,
// and blocks until ctx is cancelled. In-flight tasks are given up to
// CloseTimeout to finish.
func (q *Queue) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- q.router.Run(ctx) }()

	select {
	case <-q.router.Running():
		// pageviews created from here on are scheduled by ingest; older
		// ones may have been published before anything was subscribed
		q.requeuePending(ctx, q.now().UTC())
	case err := <-errCh:
		return err
	}

	err := <-errCh
	q.waitForTasks()
	return err
}

// Running is closed once the handler is subscribed.
func (q *Queue) Running() <-chan struct{} {
	return q.router.Running()
}

// InFlight returns the number of tasks currently executing.
func (q *Queue) InFlight() int64 {
	return q.inFlight.Load()
}

// Backlog returns the number of scheduled tasks not yet handed to a worker.
func (q *Queue) Backlog() int64 {
	return q.backlog.Load()
}

// requeuePending schedules pageviews created before cutoff. It bypasses the
// Schedule cap; RequeueLimit bounds it instead.
func (q *Queue) requeuePending(ctx context.Context, cutoff time.Time) {
	if q.pending == nil || q.cfg.RequeueLimit == 0 {
		return
	}
	ids, err := q.pending.ListPendingPageviews(ctx, cutoff, q.cfg.RequeueLimit)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to list pending pageviews for requeue")
		return
	}
	for _, id := range ids {
		q.backlog.Add(1)
		q.publish(id)
	}
	if len(ids) > 0 {
		logging.Info().Int("count", len(ids)).Msg("Requeued pending pageviews for enrichment")
	}
}

func (q *Queue) waitForTasks() {
	done := make(chan struct{})
	go func() {
		q.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(q.cfg.CloseTimeout):
		logging.Warn().Int64("in_flight", q.inFlight.Load()).Msg("Enrichment tasks still running at shutdown")
	}
}

// Close stops the router and the channel.
func (q *Queue) Close() error {
	if err := q.router.Close(); err != nil {
		return err
	}
	return q.pubsub.Close()
}
