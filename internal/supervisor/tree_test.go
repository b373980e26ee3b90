// Dashmark - Self-hosted Dashboard Analytics and Geo Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashmark

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// stubService fails the first failures runs, then blocks until cancelled.
type stubService struct {
	name     string
	failures int32
	starts   atomic.Int32
	started  chan struct{}
}

func newStubService(name string, failures int32) *stubService {
	return &stubService{name: name, failures: failures, started: make(chan struct{}, 16)}
}

func (s *stubService) Serve(ctx context.Context) error {
	n := s.starts.Add(1)
	select {
	case s.started <- struct{}{}:
	default:
	}
	if n <= s.failures {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *stubService) String() string { return s.name }

func (s *stubService) waitStarts(t *testing.T, n int) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for s.starts.Load() < int32(n) {
		select {
		case <-s.started:
		case <-deadline:
			t.Fatalf("%s started %d times, want %d", s.name, s.starts.Load(), n)
		}
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewSupervisorTree_Defaults(t *testing.T) {
	tree, err := NewSupervisorTree(testLogger(), TreeConfig{FailureBackoff: time.Second})
	if err != nil {
		t.Fatalf("NewSupervisorTree() error = %v", err)
	}
	if tree.Root() == nil {
		t.Fatal("root supervisor should not be nil")
	}

	want := DefaultTreeConfig()
	want.FailureBackoff = time.Second
	if tree.config != want {
		t.Errorf("config = %+v, want %+v", tree.config, want)
	}
}

func TestSupervisorTree_StartsEveryLayer(t *testing.T) {
	tree, err := NewSupervisorTree(testLogger(), TreeConfig{ShutdownTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}

	data := newStubService("retention", 0)
	messaging := newStubService("enrichment", 0)
	api := newStubService("http", 0)
	tree.AddDataService(data)
	tree.AddMessagingService(messaging)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	for _, svc := range []*stubService{data, messaging, api} {
		svc.waitStarts(t, 1)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not shut down in time")
	}
}

func TestSupervisorTree_RestartsFailingService(t *testing.T) {
	tree, err := NewSupervisorTree(testLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}

	flaky := newStubService("enrichment", 2)
	stable := newStubService("http", 0)
	tree.AddMessagingService(flaky)
	tree.AddAPIService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	flaky.waitStarts(t, 3)
	stable.waitStarts(t, 1)
	if got := stable.starts.Load(); got != 1 {
		t.Errorf("stable service restarted %d times, failures must stay isolated", got-1)
	}

	cancel()
	<-errCh
}
