// Package runsvc owns the lifecycle of automation runs: it admits at most one
// run at a time, records every state transition and keeps the run history.
package runsvc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antonkrylov/saprunner/internal/logging"
	"github.com/antonkrylov/saprunner/internal/runstore"
	"github.com/antonkrylov/saprunner/internal/sap"
)

var (
	// ErrBusy is returned when a run is already in flight.
	ErrBusy = errors.New("an sap run is already in progress")
	// ErrClosed is returned once the service is shutting down.
	ErrClosed = errors.New("run service is closed")
)

// Runner executes one automation run and reports states to observe.
type Runner interface {
	Run(ctx context.Context, cmd sap.RunCommand, observe sap.Observer) (sap.RunResult, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, cmd sap.RunCommand, observe sap.Observer) (sap.RunResult, error)

func (f RunnerFunc) Run(ctx context.Context, cmd sap.RunCommand, observe sap.Observer) (sap.RunResult, error) {
	return f(ctx, cmd, observe)
}

// Service serializes runs and records them in the store.
type Service struct {
	store   *runstore.Store
	runner  Runner
	logger  *slog.Logger
	clockFn func() time.Time

	inflight sync.Mutex

	mu     sync.Mutex
	closed bool
	base   context.Context
	cancel context.CancelFunc
	group  sync.WaitGroup
}

// New creates a run service bound to the store and runner.
func New(st *runstore.Store, runner Runner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	base, cancel := context.WithCancel(context.Background())
	return &Service{
		store:   st,
		runner:  runner,
		logger:  logger,
		clockFn: time.Now,
		base:    base,
		cancel:  cancel,
	}
}

// Close rejects new runs, cancels the in-flight run and waits for it to finish.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.group.Wait()
}

func (s *Service) admit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.group.Add(1)
	return nil
}

// Run executes cmd and blocks until the run ends. Cancelling ctx does not stop
// the run; only Close does. The returned record is set even when err is not nil
// unless the service was busy or closed.
func (s *Service) Run(ctx context.Context, cmd sap.RunCommand) (*runstore.Run, error) {
	if !s.inflight.TryLock() {
		return nil, ErrBusy
	}
	defer s.inflight.Unlock()
	if err := s.admit(); err != nil {
		return nil, err
	}
	defer s.group.Done()

	requestID := logging.RequestID(ctx)
	runCtx := logging.WithRequestID(s.base, requestID)

	now := s.clockFn().UTC()
	rec := &runstore.Run{
		ID:        uuid.NewString(),
		RequestID: requestID,
		StartDate: formatDate(cmd.StartDate),
		EndDate:   formatDate(cmd.EndDate),
		Status:    runstore.StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.store.Put(rec)
	s.logger.InfoContext(runCtx, "run accepted", "run", rec.ID)

	result, err := s.runner.Run(runCtx, cmd, func(_ context.Context, state sap.State) {
		at := s.clockFn().UTC()
		rec.State = string(state)
		rec.UpdatedAt = at
		rec.Events = append(rec.Events, runstore.Event{State: string(state), At: at})
		s.store.Put(rec)
	})

	rec.ZucrmExport = result.FirstExport
	rec.Iw59Export = result.SecondExport
	rec.Iw59Archive = result.SecondArchive
	rec.NotesCount = result.NotesCount
	rec.NavigationPresses = result.Navigation.Presses
	rec.NavigationDegraded = result.Navigation.Degraded()
	rec.UpdatedAt = s.clockFn().UTC()
	if err != nil {
		rec.Status = runstore.StatusFailed
		rec.ErrorKind = sap.KindOf(err).String()
		rec.Error = err.Error()
		if rec.State != string(sap.StateFailed) {
			rec.State = string(sap.StateFailed)
		}
		s.store.Put(rec)
		s.logger.ErrorContext(runCtx, "run failed", "run", rec.ID, "kind", rec.ErrorKind, "err", err)
		return rec.Clone(), err
	}
	rec.Status = runstore.StatusSucceeded
	s.store.Put(rec)
	s.logger.InfoContext(runCtx, "run completed",
		"run", rec.ID,
		"notes", rec.NotesCount,
		"iw59_detected", result.SecondExportDetected(),
	)
	return rec.Clone(), nil
}

// Busy reports whether a run is in flight.
func (s *Service) Busy() bool {
	if s.inflight.TryLock() {
		s.inflight.Unlock()
		return false
	}
	return true
}

// Get returns the recorded run.
func (s *Service) Get(id string) (*runstore.Run, error) {
	return s.store.Get(id)
}

// List returns the most recent runs first.
func (s *Service) List(limit int) []*runstore.Run {
	return s.store.List(limit)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}
