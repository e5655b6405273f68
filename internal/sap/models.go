package sap

import "time"

// DateLayout is the date format typed into transaction screens.
const DateLayout = "02.01.2006"

// RunCommand is the date range of one run.
type RunCommand struct {
	StartDate time.Time
	EndDate   time.Time
}

// Validate checks that both dates are set and the range is not inverted.
func (c RunCommand) Validate() error {
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return newError(KindValidation, nil, "start_date and end_date are required")
	}
	if c.EndDate.Before(c.StartDate) {
		return newError(KindValidation, nil, "end_date must be on or after start_date")
	}
	return nil
}

// RunResult is what a successful run produced. SecondExport is empty when the
// IW59 export was not detected in time.
type RunResult struct {
	FirstExport   string
	SecondExport  string
	SecondArchive string
	NotesCount    int
	Navigation    NavigationResult
}

// SecondExportDetected reports whether the IW59 export file was found.
func (r RunResult) SecondExportDetected() bool { return r.SecondExport != "" }

// State is a step of the run state machine.
type State string

const (
	StateIdle                State = "idle"
	StateLoggedIn            State = "logged_in"
	StateFirstExportDone     State = "first_export_done"
	StateNotesExtracted      State = "notes_extracted"
	StateNavigatedBack       State = "navigated_back"
	StateSecondExportDone    State = "second_export_done"
	StateSecondExportSkipped State = "second_export_skipped"
	StateDone                State = "done"
	StateFailed              State = "failed"
)

// Terminal reports whether no further transition follows.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }
