// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package services

import (
	"context"
	"fmt"

	"github.com/thejerf/suture/v4"
)

// QueueRunner is satisfied by *enrichment.Queue.
type QueueRunner interface {
	Run(ctx context.Context) error
}

// EnrichmentQueueService runs the enrichment queue's router.
//
// A watermill router cannot be started twice, so an unexpected exit is
// reported with suture.ErrDoNotRestart. Ingestion keeps working without the
// queue; pageviews stored meanwhile stay unenriched and are requeued on the
// next process start.
type EnrichmentQueueService struct {
	queue QueueRunner
}

func NewEnrichmentQueueService(queue QueueRunner) *EnrichmentQueueService {
	return &EnrichmentQueueService{queue: queue}
}

// Serve implements suture.Service.
func (s *EnrichmentQueueService) Serve(ctx context.Context) error {
	err := s.queue.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		return fmt.Errorf("enrichment queue stopped unexpectedly: %w", suture.ErrDoNotRestart)
	}
	return fmt.Errorf("enrichment queue failed: %v: %w", err, suture.ErrDoNotRestart)
}

func (s *EnrichmentQueueService) String() string {
	return "enrichment-queue"
}
