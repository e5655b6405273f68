package sap

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// Connector yields an authenticated session. *Client implements it.
type Connector interface {
	ConnectAndLogin(ctx context.Context) (*Session, error)
}

// NoteExtractor reads note identifiers from the first export.
type NoteExtractor interface {
	ExtractNotes(path string) ([]string, error)
}

// Observer is told about every state the run enters.
type Observer func(ctx context.Context, state State)

// Orchestrator runs login, ZUCRM_039, note extraction, navigation and IW59 in order.
// Any error aborts the run; only navigation and a missing IW59 export degrade.
type Orchestrator struct {
	credentials Credentials
	connector   Connector
	zucrm       *ZucrmRunner
	notes       NoteExtractor
	navigator   *Navigator
	iw59        *Iw59Runner
	observer    Observer
	logger      *slog.Logger
}

// OrchestratorDeps groups the collaborators of an Orchestrator.
type OrchestratorDeps struct {
	Credentials Credentials
	Connector   Connector
	Zucrm       *ZucrmRunner
	Notes       NoteExtractor
	Navigator   *Navigator
	Iw59        *Iw59Runner
	Logger      *slog.Logger
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{
		credentials: deps.Credentials,
		connector:   deps.Connector,
		zucrm:       deps.Zucrm,
		notes:       deps.Notes,
		navigator:   deps.Navigator,
		iw59:        deps.Iw59,
		logger:      logger,
	}
}

// WithObserver returns a copy of o that reports state transitions to fn.
func (o *Orchestrator) WithObserver(fn Observer) *Orchestrator {
	cp := *o
	cp.observer = fn
	return &cp
}

// Run executes one full run for cmd.
func (o *Orchestrator) Run(ctx context.Context, cmd RunCommand) (result RunResult, err error) {
	o.enter(ctx, StateIdle)
	defer func() {
		if err != nil {
			o.logger.ErrorContext(ctx, "sap run failed", "kind", KindOf(err).String(), "err", err)
			o.enter(ctx, StateFailed)
		}
	}()

	if err := cmd.Validate(); err != nil {
		return RunResult{}, err
	}
	if err := CheckCredentials(o.credentials); err != nil {
		return RunResult{}, err
	}
	o.logger.InfoContext(ctx, "sap run started",
		"start_date", cmd.StartDate.Format("2006-01-02"),
		"end_date", cmd.EndDate.Format("2006-01-02"),
	)

	session, err := o.connector.ConnectAndLogin(ctx)
	if err != nil {
		return RunResult{}, err
	}
	defer session.Release()
	o.enter(ctx, StateLoggedIn)

	first, err := o.zucrm.Run(ctx, session, cmd)
	if err != nil {
		return RunResult{}, err
	}
	result.FirstExport = first
	o.enter(ctx, StateFirstExportDone)

	notes, err := o.extract(first)
	if err != nil {
		return RunResult{}, err
	}
	result.NotesCount = len(notes)
	o.enter(ctx, StateNotesExtracted)

	nav, err := o.navigator.BackToBase(ctx, session)
	if err != nil {
		return RunResult{}, err
	}
	result.Navigation = nav
	o.enter(ctx, StateNavigatedBack)

	second, err := o.iw59.Run(ctx, session, notes)
	if err != nil {
		return RunResult{}, err
	}
	result.SecondExport = second.Path
	result.SecondArchive = second.Archive
	if second.Degraded() {
		o.enter(ctx, StateSecondExportSkipped)
	} else {
		o.enter(ctx, StateSecondExportDone)
	}

	o.logger.InfoContext(ctx, "sap run finished",
		"zucrm_export", result.FirstExport,
		"iw59_export", result.SecondExport,
		"notes", result.NotesCount,
	)
	o.enter(ctx, StateDone)
	return result, nil
}

func (o *Orchestrator) extract(path string) ([]string, error) {
	notes, err := o.notes.ExtractNotes(path)
	if err != nil {
		if KindOf(err) != KindUnexpected {
			return nil, err
		}
		return nil, newError(KindExtraction, err, "extract notes from %s", path)
	}
	if len(notes) == 0 {
		return nil, newError(KindExtraction, nil, "no valid notes found in %s", path)
	}
	return notes, nil
}

func (o *Orchestrator) enter(ctx context.Context, state State) {
	o.logger.DebugContext(ctx, "sap run state", "state", string(state))
	if o.observer != nil {
		o.observer(ctx, state)
	}
}

// CheckCredentials fails with a configuration error naming each missing variable.
func CheckCredentials(c Credentials) error {
	var missing []string
	if strings.TrimSpace(c.Username) == "" {
		missing = append(missing, "SAP_USERNAME")
	}
	if c.Password == "" {
		missing = append(missing, "SAP_PASSWORD")
	}
	if len(missing) > 0 {
		return configErr("missing sap credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}
