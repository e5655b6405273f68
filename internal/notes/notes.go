// Package notes extracts the note numbers the IW59 run is fed with from the
// ZUCRM_039 spreadsheet export.
package notes

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"

	"github.com/antonkrylov/saprunner/internal/sap"
)

// MeasurementMarker tags measurement rows, which are not notes.
const MeasurementMarker = "/000"

var (
	ErrFileNotFound   = errors.New("export file not found")
	ErrUnreadable     = errors.New("export file unreadable")
	ErrEmpty          = errors.New("export file has no data rows")
	ErrColumnNotFound = errors.New("note column not found")
	ErrNoNotes        = errors.New("no valid notes in export")
)

// acceptedColumns are the normalized spellings of the "Nº Nota/Medida" header.
var acceptedColumns = map[string]struct{}{
	"nnotamedida":  {},
	"nonotamedida": {},
}

// Extractor reads the first sheet of an XLSX export.
type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{logger: logger}
}

// ExtractNotes returns the distinct note numbers of the export in file order.
func (e *Extractor) ExtractNotes(path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	values, err := ReadColumn(path)
	if err != nil {
		return nil, err
	}
	notes := FilterNotes(values)
	e.logger.Info("notes extracted",
		"path", path,
		"rows", len(values),
		"unique", len(notes),
	)
	if len(notes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoNotes, path)
	}
	return notes, nil
}

// ReadColumn returns the raw cell values under the note column header.
func ReadColumn(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, path)
	}
	col, err := ResolveColumn(rows[0])
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if col < len(row) {
			values = append(values, row[col])
		} else {
			values = append(values, "")
		}
	}
	return values, nil
}

// ResolveColumn finds the note column among headers, ignoring case, accents and
// punctuation.
func ResolveColumn(headers []string) (int, error) {
	for i, h := range headers {
		if _, ok := acceptedColumns[normalizeHeader(h)]; ok {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: expected \"Nº Nota/Medida\" among %d columns", ErrColumnNotFound, len(headers))
}

// FilterNotes drops measurement rows, keeps only digits, drops empty values and
// leading zeros, and removes duplicates keeping the first occurrence.
func FilterNotes(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, raw := range values {
		v := strings.TrimSpace(raw)
		if strings.Contains(v, MeasurementMarker) {
			continue
		}
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, v)
		if digits == "" {
			continue
		}
		note := strings.TrimLeft(digits, "0")
		if note == "" {
			note = "0"
		}
		if _, dup := seen[note]; dup {
			continue
		}
		seen[note] = struct{}{}
		out = append(out, note)
	}
	return out
}

func normalizeHeader(text string) string {
	var b strings.Builder
	for _, r := range sap.Fold(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
