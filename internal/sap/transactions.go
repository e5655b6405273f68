package sap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

// ZUCRM_039 selection screen.
const (
	zucrmQueryType  = "wnd[0]/usr/ctxtPC_QMART"
	zucrmDateLow    = "wnd[0]/usr/ctxtSD_QMDAT-LOW"
	zucrmDateHigh   = "wnd[0]/usr/ctxtSD_QMDAT-HIGH"
	zucrmCodeFilter = "wnd[0]/usr/ctxtSC_QMCOD-LOW"
	zucrmVariant    = "wnd[0]/usr/ctxtPC_VARIA"
	zucrmExportMenu = "wnd[0]/mbar/menu[0]/menu[4]/menu[1]"

	executeButton = "wnd[0]/tbar[1]/btn[8]"
	variantCaret  = 9
)

// IW59 selection screen and print-preview export.
const (
	iw59MultiSelect   = "wnd[0]/usr/btn%_QMNUM_%_APP_%-VALU_PUSH"
	iw59PasteButton   = "wnd[1]/tbar[0]/btn[24]"
	iw59ConfirmValues = "wnd[1]/tbar[0]/btn[8]"
	iw59ExportMenu    = "wnd[0]/mbar/menu[0]/menu[6]"
	iw59PopupOK       = "wnd[1]/tbar[0]/btn[0]"
	iw59FormatOption  = "wnd[1]/usr/subSUBSCREEN_STEPLOOP:SAPLSPO5:0150/sub:SAPLSPO5:0150/radSPOPLI-SELFLAG[0,0]"

	multiSelectTimeout = 8 * time.Second
	multiSelectPoll    = 300 * time.Millisecond
)

// Clipboard places text lines on the system clipboard.
type Clipboard interface {
	CopyLines(lines []string) error
}

// Archiver keeps a durable copy of a detected export and returns its path.
type Archiver interface {
	Archive(ctx context.Context, src string) (string, error)
}

// ZucrmConfig holds the ZUCRM_039 query parameters.
type ZucrmConfig struct {
	Transaction string
	QueryType   string
	Variant     string
	// FallbackPattern is scanned when the watcher times out; empty disables it.
	FallbackPattern string
}

// ZucrmRunner runs ZUCRM_039 over a date range and returns the exported file.
type ZucrmRunner struct {
	cfg     ZucrmConfig
	watcher *ExportWatcher
	dialog  *ExportDialog
	logger  *slog.Logger
}

func NewZucrmRunner(cfg ZucrmConfig, watcher *ExportWatcher, dialog *ExportDialog, logger *slog.Logger) *ZucrmRunner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ZucrmRunner{cfg: cfg, watcher: watcher, dialog: dialog, logger: logger}
}

// Run fills the selection screen, exports and waits for the file.
func (r *ZucrmRunner) Run(ctx context.Context, s *Session, cmd RunCommand) (string, error) {
	r.logger.InfoContext(ctx, "running transaction", "transaction", r.cfg.Transaction)

	baseline, err := r.watcher.Snapshot()
	if err != nil {
		return "", automationErr(err, "snapshot export directory %s", r.watcher.Dir())
	}
	var baselineAll Snapshot
	if r.cfg.FallbackPattern != "" {
		if baselineAll, err = r.watcher.SnapshotPattern("*.xlsx"); err != nil {
			return "", automationErr(err, "snapshot export directory %s", r.watcher.Dir())
		}
	}

	if err := enterTransaction(s, r.cfg.Transaction); err != nil {
		return "", err
	}
	steps := []func() error{
		func() error { return s.SetText(zucrmQueryType, r.cfg.QueryType) },
		func() error { return s.SetText(zucrmDateLow, cmd.StartDate.Format(DateLayout)) },
		func() error { return s.SetText(zucrmDateHigh, cmd.EndDate.Format(DateLayout)) },
		func() error { return s.SetText(zucrmCodeFilter, "*") },
		func() error { return s.SetText(zucrmVariant, r.cfg.Variant) },
		func() error { return s.SetFocus(zucrmVariant) },
		func() error { return s.SetCaretPosition(zucrmVariant, VariantCaret(r.cfg.Variant)) },
		func() error { return s.Press(executeButton) },
		func() error { return s.Select(zucrmExportMenu) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return "", err
		}
	}

	started, err := r.dialog.Finalize(ctx, s)
	if err != nil {
		return "", err
	}
	path, err := r.watcher.WaitForExport(ctx, baseline, started)
	if err == nil {
		r.logger.InfoContext(ctx, "zucrm export detected", "path", path)
		return path, nil
	}
	if !errors.Is(err, ErrExportTimeout) || r.cfg.FallbackPattern == "" {
		return "", err
	}
	fallback, ok, scanErr := r.watcher.Latest(r.cfg.FallbackPattern, baselineAll, started)
	if scanErr != nil || !ok {
		return "", err
	}
	r.logger.WarnContext(ctx, "zucrm export not matched by configured glob, using fallback name match",
		"path", fallback, "fallback_pattern", r.cfg.FallbackPattern)
	return fallback, nil
}

// VariantCaret is the caret position placed in the variant field: 9, or the
// value length when shorter.
func VariantCaret(variant string) int {
	return min(variantCaret, len(variant))
}

// Iw59Config holds the IW59 parameters.
type Iw59Config struct {
	Transaction string
}

// Iw59Runner runs IW59 for a list of notes. A missing export is not an error.
type Iw59Runner struct {
	cfg       Iw59Config
	watcher   *ExportWatcher
	dialog    *ExportDialog
	clipboard Clipboard
	archiver  Archiver
	logger    *slog.Logger
}

// NewIw59Runner wires the runner; archiver may be nil.
func NewIw59Runner(cfg Iw59Config, watcher *ExportWatcher, dialog *ExportDialog, clipboard Clipboard, archiver Archiver, logger *slog.Logger) *Iw59Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Iw59Runner{
		cfg:       cfg,
		watcher:   watcher,
		dialog:    dialog,
		clipboard: clipboard,
		archiver:  archiver,
		logger:    logger,
	}
}

// Iw59Export is the IW59 step result. Path is empty when the export was not seen.
type Iw59Export struct {
	Outcome
	Path    string
	Archive string
}

// Run pastes the notes into the multi-value popup, exports and waits for the file.
func (r *Iw59Runner) Run(ctx context.Context, s *Session, notes []string) (Iw59Export, error) {
	r.logger.InfoContext(ctx, "running transaction", "transaction", r.cfg.Transaction, "notes", len(notes))

	baseline, err := r.watcher.Snapshot()
	if err != nil {
		return Iw59Export{}, automationErr(err, "snapshot export directory %s", r.watcher.Dir())
	}
	if err := enterTransaction(s, r.cfg.Transaction); err != nil {
		return Iw59Export{}, err
	}
	if err := waitForControl(ctx, s, iw59MultiSelect, multiSelectTimeout, multiSelectPoll); err != nil {
		return Iw59Export{}, err
	}
	if err := s.Press(iw59MultiSelect); err != nil {
		return Iw59Export{}, err
	}
	if err := r.clipboard.CopyLines(notes); err != nil {
		return Iw59Export{}, automationErr(err, "copy %d notes to clipboard", len(notes))
	}
	steps := []func() error{
		func() error { return s.Press(iw59PasteButton) },
		func() error { return s.Press(iw59ConfirmValues) },
		func() error { return s.Press(executeButton) },
		func() error { return s.Select(iw59ExportMenu) },
		func() error { return s.Press(iw59PopupOK) },
		func() error { return s.Select(iw59FormatOption) },
		func() error { return s.SetFocus(iw59FormatOption) },
		func() error { return s.Press(iw59PopupOK) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Iw59Export{}, err
		}
	}

	started, err := r.dialog.Finalize(ctx, s)
	if err != nil {
		return Iw59Export{}, err
	}
	path, err := r.watcher.WaitForExport(ctx, baseline, started)
	if errors.Is(err, ErrExportTimeout) {
		r.logger.WarnContext(ctx, "iw59 ran but no new export file was detected", "dir", r.watcher.Dir())
		return Iw59Export{Outcome: degraded(err.Error())}, nil
	}
	if err != nil {
		return Iw59Export{}, err
	}

	out := Iw59Export{Outcome: success(), Path: path}
	if r.archiver != nil {
		archived, err := r.archiver.Archive(ctx, path)
		if err != nil {
			r.logger.WarnContext(ctx, "archive iw59 export", "path", path, "err", err)
		} else {
			out.Archive = archived
		}
	}
	r.logger.InfoContext(ctx, "iw59 export detected", "path", path, "archive", out.Archive)
	return out, nil
}

func enterTransaction(s *Session, code string) error {
	if err := s.Maximize(); err != nil {
		return err
	}
	if err := s.SetText(commandField, code); err != nil {
		return err
	}
	return s.SendVKey(0)
}

func waitForControl(ctx context.Context, s *Session, id string, timeout, interval time.Duration) error {
	err := poll(ctx, timeout, interval, func() (bool, error) {
		return s.Exists(id), nil
	})
	if errors.Is(err, errPollTimeout) {
		return automationErr(nil, "sap element not found: %s", id)
	}
	return err
}
