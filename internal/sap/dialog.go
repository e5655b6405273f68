package sap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Export popup controls.
const (
	dialogPathField  = "wnd[1]/usr/ctxtDY_PATH"
	dialogSaveButton = "wnd[1]/tbar[0]/btn[11]"
	dialogOKButton   = "wnd[1]/tbar[0]/btn[0]"
	dialogOverwrite  = "wnd[1]/usr/btnSPOP-OPTION1"

	dialogSettle = 200 * time.Millisecond
)

// ExportDialog drives the save popup sequence after an export is triggered and
// points it at a fixed directory.
type ExportDialog struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

// NewExportDialog creates dir when it does not exist.
func NewExportDialog(dir string, logger *slog.Logger) (*ExportDialog, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, configErr("export directory is not configured")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, newError(KindConfig, err, "resolve export directory %s", dir)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, newError(KindConfig, err, "create export directory %s", abs)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ExportDialog{dir: abs, now: time.Now, logger: logger}, nil
}

// Dir is the absolute export directory.
func (d *ExportDialog) Dir() string { return d.dir }

// Finalize confirms the popups and returns the time taken just before the first
// confirming press. Files older than that (minus the watcher tolerance) are not
// considered the export.
func (d *ExportDialog) Finalize(ctx context.Context, s *Session) (time.Time, error) {
	var anchor time.Time
	mark := func() {
		if anchor.IsZero() {
			anchor = d.now()
		}
	}

	if s.Exists(dialogOKButton) && !s.Exists(dialogPathField) {
		mark()
		if err := s.Press(dialogOKButton); err != nil {
			return time.Time{}, err
		}
		if err := sleep(ctx, dialogSettle); err != nil {
			return time.Time{}, err
		}
	}

	if s.Exists(dialogPathField) {
		target := filepath.FromSlash(d.dir)
		if err := s.SetText(dialogPathField, target); err != nil {
			return time.Time{}, err
		}
		d.logger.InfoContext(ctx, "export directory set", "dir", target)
	}

	switch {
	case s.Exists(dialogSaveButton):
		mark()
		if err := s.Press(dialogSaveButton); err != nil {
			return time.Time{}, err
		}
	case s.Exists(dialogOKButton):
		mark()
		if err := s.Press(dialogOKButton); err != nil {
			return time.Time{}, err
		}
	default:
		return time.Time{}, automationErr(nil, "export dialog not found; neither %s nor %s is present",
			dialogSaveButton, dialogOKButton)
	}

	if s.Exists(dialogOverwrite) {
		d.logger.InfoContext(ctx, "confirming overwrite of existing export")
		if err := s.Press(dialogOverwrite); err != nil {
			return time.Time{}, fmt.Errorf("confirm overwrite: %w", err)
		}
	}
	return anchor, nil
}
