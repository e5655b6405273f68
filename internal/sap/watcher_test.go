package sap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("xlsx"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}
}

func fastWatcher(dir, pattern string, timeout time.Duration) *ExportWatcher {
	return NewExportWatcher(WatcherConfig{
		Dir:          dir,
		Pattern:      pattern,
		Timeout:      timeout,
		PollInterval: 10 * time.Millisecond,
	}, nil)
}

func TestWatcherSnapshotMatchesCaseInsensitively(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sap_gov_sp_1.XLSX"), time.Time{})
	writeFile(t, filepath.Join(dir, "SAP_GOV_SP_2.xlsx"), time.Time{})
	writeFile(t, filepath.Join(dir, "brs_sap_gov_sp_1.XLSX"), time.Time{})
	if err := os.Mkdir(filepath.Join(dir, "sap_gov_sp_dir.XLSX"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	snap, err := fastWatcher(dir, "sap_gov_sp*.XLSX", time.Second).Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("expected 2 matches, got %v", snap)
	}
	for path := range snap {
		if !filepath.IsAbs(path) {
			t.Fatalf("expected absolute path, got %s", path)
		}
	}
}

func TestWatcherMissingDirectoryIsEmpty(t *testing.T) {
	snap, err := fastWatcher(filepath.Join(t.TempDir(), "nope"), "*.xlsx", time.Second).Snapshot()
	if err != nil || len(snap) != 0 {
		t.Fatalf("expected empty snapshot, got %v, %v", snap, err)
	}
}

func TestWatcherDetectsNewFile(t *testing.T) {
	dir := t.TempDir()
	w := fastWatcher(dir, "sap_gov_sp*.XLSX", 2*time.Second)
	baseline, err := w.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	started := time.Now()
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(dir, "sap_gov_sp_202601.XLSX"), []byte("x"), 0o644)
	}()
	path, err := w.WaitForExport(context.Background(), baseline, started)
	if err != nil {
		t.Fatalf("WaitForExport: %v", err)
	}
	if filepath.Base(path) != "sap_gov_sp_202601.XLSX" {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestWatcherPicksMostRecentCandidate(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeFile(t, filepath.Join(dir, "sap_gov_sp_a.XLSX"), now)
	writeFile(t, filepath.Join(dir, "sap_gov_sp_b.XLSX"), now.Add(2*time.Second))
	w := fastWatcher(dir, "sap_gov_sp*.XLSX", time.Second)
	path, ok, err := w.Latest("sap_gov_sp*.XLSX", Snapshot{}, now)
	if err != nil || !ok {
		t.Fatalf("Latest: %v %v", ok, err)
	}
	if filepath.Base(path) != "sap_gov_sp_b.XLSX" {
		t.Fatalf("expected newest file, got %s", path)
	}
}

func TestWatcherRespectsSkewTolerance(t *testing.T) {
	dir := t.TempDir()
	started := time.Now()
	writeFile(t, filepath.Join(dir, "sap_gov_sp_old.XLSX"), started.Add(-3*time.Second))
	writeFile(t, filepath.Join(dir, "sap_gov_sp_skew.XLSX"), started.Add(-500*time.Millisecond))
	w := fastWatcher(dir, "sap_gov_sp*.XLSX", time.Second)

	path, ok, err := w.Latest("sap_gov_sp*.XLSX", Snapshot{}, started)
	if err != nil || !ok {
		t.Fatalf("Latest: %v %v", ok, err)
	}
	if filepath.Base(path) != "sap_gov_sp_skew.XLSX" {
		t.Fatalf("expected file within tolerance, got %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.ModTime().Before(started.Add(-DefaultSkewTolerance)) {
		t.Fatalf("returned file older than tolerance allows")
	}
}

func TestWatcherModifiedFileQualifies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sap_gov_sp.XLSX")
	old := time.Now().Add(-time.Hour)
	writeFile(t, path, old)
	w := fastWatcher(dir, "sap_gov_sp*.XLSX", time.Second)
	baseline, err := w.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	started := time.Now()
	if _, ok, _ := w.Latest("sap_gov_sp*.XLSX", baseline, started); ok {
		t.Fatalf("unchanged file must not qualify")
	}
	writeFile(t, path, started)
	got, ok, err := w.Latest("sap_gov_sp*.XLSX", baseline, started)
	if err != nil || !ok {
		t.Fatalf("expected modified file to qualify: %v %v", ok, err)
	}
	abs, _ := filepath.Abs(path)
	if got != abs {
		t.Fatalf("got %s, want %s", got, abs)
	}
}

func TestWatcherTimeoutIsDistinct(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sap_gov_sp_existing.XLSX"), time.Now().Add(-time.Minute))
	w := fastWatcher(dir, "sap_gov_sp*.XLSX", 150*time.Millisecond)
	baseline, err := w.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	begin := time.Now()
	_, err = w.WaitForExport(context.Background(), baseline, time.Now())
	if !errors.Is(err, ErrExportTimeout) {
		t.Fatalf("expected export timeout, got %v", err)
	}
	if KindOf(err) != KindExportTimeout {
		t.Fatalf("expected export timeout kind, got %s", KindOf(err))
	}
	if elapsed := time.Since(begin); elapsed < 150*time.Millisecond {
		t.Fatalf("returned before timeout: %s", elapsed)
	}
}
