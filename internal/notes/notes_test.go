package notes

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "sap_gov_sp_202601.XLSX")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return path
}

func TestFilterNotesDedupesInOrder(t *testing.T) {
	got := FilterNotes([]string{"123", "100/000", "123", "456", "  789 ", "", "abc"})
	if strings.Join(got, ",") != "123,456,789" {
		t.Fatalf("got %v", got)
	}
}

func TestFilterNotesDropsMeasurementRows(t *testing.T) {
	got := FilterNotes([]string{"100/000", "200"})
	if len(got) != 1 || got[0] != "200" {
		t.Fatalf("got %v", got)
	}
	if got := FilterNotes([]string{"100/000"}); len(got) != 0 {
		t.Fatalf("expected nothing, got %v", got)
	}
}

func TestFilterNotesNormalizesDigits(t *testing.T) {
	got := FilterNotes([]string{"000123456789", "123456789.0", "NT-42"})
	if strings.Join(got, ",") != "123456789,1234567890,42" {
		t.Fatalf("got %v", got)
	}
}

func TestResolveColumn(t *testing.T) {
	for _, header := range []string{"Nº Nota/Medida", "N. NOTA / MEDIDA", "no nota medida"} {
		idx, err := ResolveColumn([]string{"Data", header})
		if err != nil || idx != 1 {
			t.Fatalf("ResolveColumn(%q) = %d, %v", header, idx, err)
		}
	}
	if _, err := ResolveColumn([]string{"Nota"}); !errors.Is(err, ErrColumnNotFound) {
		t.Fatalf("expected column error, got %v", err)
	}
}

func TestExtractNotesFromWorkbook(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"Data", "Nº Nota/Medida", "Status"},
		{"01.01.2026", "123456789", "ABER"},
		{"02.01.2026", "123456789/000", "ABER"},
		{"03.01.2026", "123456789", "ENCE"},
		{"04.01.2026", "987654321", "ABER"},
	})
	got, err := NewExtractor(nil).ExtractNotes(path)
	if err != nil {
		t.Fatalf("ExtractNotes: %v", err)
	}
	if strings.Join(got, ",") != "123456789,987654321" {
		t.Fatalf("got %v", got)
	}
}

func TestExtractNotesErrors(t *testing.T) {
	e := NewExtractor(nil)
	if _, err := e.ExtractNotes(filepath.Join(t.TempDir(), "missing.XLSX")); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	headerOnly := writeWorkbook(t, [][]any{{"Nº Nota/Medida"}})
	if _, err := e.ExtractNotes(headerOnly); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected empty error, got %v", err)
	}

	onlyMeasurements := writeWorkbook(t, [][]any{{"Nº Nota/Medida"}, {"100/000"}})
	if _, err := e.ExtractNotes(onlyMeasurements); !errors.Is(err, ErrNoNotes) {
		t.Fatalf("expected no notes error, got %v", err)
	}

	wrongColumn := writeWorkbook(t, [][]any{{"Nota"}, {"1"}})
	if _, err := e.ExtractNotes(wrongColumn); !errors.Is(err, ErrColumnNotFound) {
		t.Fatalf("expected column error, got %v", err)
	}
}
