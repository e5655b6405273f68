// Package runstore keeps the history of automation runs in memory and can
// mirror it to NATS JetStream so it survives restarts.
package runstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Status is the coarse outcome of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Event records one state transition.
type Event struct {
	State string    `json:"state"`
	At    time.Time `json:"at"`
}

// Run is the persisted record of one automation run.
type Run struct {
	ID                 string    `json:"id"`
	RequestID          string    `json:"request_id,omitempty"`
	StartDate          string    `json:"start_date"`
	EndDate            string    `json:"end_date"`
	State              string    `json:"state"`
	Status             Status    `json:"status"`
	ZucrmExport        string    `json:"zucrm_export_file,omitempty"`
	Iw59Export         string    `json:"iw59_export_file,omitempty"`
	Iw59Archive        string    `json:"iw59_archive_file,omitempty"`
	NotesCount         int       `json:"notes_count"`
	NavigationPresses  int       `json:"navigation_presses"`
	NavigationDegraded bool      `json:"navigation_degraded,omitempty"`
	ErrorKind          string    `json:"error_kind,omitempty"`
	Error              string    `json:"error,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	Events             []Event   `json:"events,omitempty"`
}

// Clone returns a deep copy.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Events = append([]Event(nil), r.Events...)
	return &cp
}

// Store keeps runs keyed by id.
type Store struct {
	mu       sync.RWMutex
	runs     map[string]*Run
	versions map[string]uint64

	logger *slog.Logger
	js     *jetStreamMirror
}

// ErrRunNotFound marks when a run record is missing.
var ErrRunNotFound = errors.New("run not found")

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// New creates a Store with optional persistence options.
func New(ctx context.Context, opts *Options) (*Store, error) {
	logger := discardLogger
	if opts != nil && opts.Logger != nil {
		logger = opts.Logger
	}
	st := &Store{
		runs:     make(map[string]*Run),
		versions: make(map[string]uint64),
		logger:   logger,
	}
	if opts != nil && opts.JetStream != nil {
		mirror, err := newJetStreamMirror(ctx, opts.JetStream, logger)
		if err != nil {
			return nil, err
		}
		if err := mirror.hydrate(ctx, st); err != nil {
			mirror.Close()
			return nil, err
		}
		st.js = mirror
	}
	return st, nil
}

// MustNew creates an in-memory Store and panics if initialization fails.
func MustNew() *Store {
	st, err := New(context.Background(), nil)
	if err != nil {
		panic(err)
	}
	return st
}

// Close flushes backing resources.
func (s *Store) Close() {
	if s.js != nil {
		s.js.Close()
	}
}

// Put upserts a run snapshot.
func (s *Store) Put(run *Run) {
	if run == nil || run.ID == "" {
		return
	}
	s.mu.Lock()
	s.versions[run.ID]++
	version := s.versions[run.ID]
	s.runs[run.ID] = run.Clone()
	s.mu.Unlock()
	if s.js != nil {
		if err := s.js.publishRun(run, version); err != nil {
			s.logger.Error("jetstream publish run", "run", run.ID, "err", err)
		}
	}
}

// Get returns a copy of the run.
func (s *Store) Get(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run.Clone(), nil
}

// List returns runs newest first. limit <= 0 returns all of them.
func (s *Store) List(limit int) []*Run {
	s.mu.RLock()
	out := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) applyReplayedRun(run *Run, version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version < s.versions[run.ID] {
		return
	}
	s.runs[run.ID] = run.Clone()
	s.versions[run.ID] = version
}
