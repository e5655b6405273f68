package api

import (
	"context"
	"sync"
	"time"

	"github.com/antonkrylov/saprunner/internal/logging"
	"github.com/antonkrylov/saprunner/internal/runstore"
	"github.com/antonkrylov/saprunner/internal/runsvc"
	"github.com/antonkrylov/saprunner/internal/sap"
)

type fakeService struct {
	mu        sync.Mutex
	runErr    error
	record    *runstore.Run
	commands  []sap.RunCommand
	requestID string
	busy      bool
	runs      map[string]*runstore.Run
}

func newFakeService() *fakeService {
	created := time.Date(2026, 1, 19, 8, 0, 0, 0, time.UTC)
	rec := &runstore.Run{
		ID:          "run-1",
		StartDate:   "2026-01-01",
		EndDate:     "2026-01-31",
		State:       string(sap.StateDone),
		Status:      runstore.StatusSucceeded,
		ZucrmExport: `C:\exports\sap_gov_sp_1.XLSX`,
		Iw59Export:  `C:\exports\brs_sap_gov_sp_1.XLSX`,
		NotesCount:  3,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	return &fakeService{record: rec, runs: map[string]*runstore.Run{rec.ID: rec}}
}

func (f *fakeService) Run(ctx context.Context, cmd sap.RunCommand) (*runstore.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	f.requestID = logging.RequestID(ctx)
	if f.busy {
		return nil, runsvc.ErrBusy
	}
	if f.runErr != nil {
		rec := f.record.Clone()
		rec.Status = runstore.StatusFailed
		rec.ErrorKind = sap.KindOf(f.runErr).String()
		return rec, f.runErr
	}
	return f.record.Clone(), nil
}

func (f *fakeService) Get(id string) (*runstore.Run, error) {
	rec, ok := f.runs[id]
	if !ok {
		return nil, runstore.ErrRunNotFound
	}
	return rec.Clone(), nil
}

func (f *fakeService) List(limit int) []*runstore.Run {
	return []*runstore.Run{f.record.Clone()}
}

func (f *fakeService) Busy() bool { return f.busy }
