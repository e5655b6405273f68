package runstore

import (
	"errors"
	"testing"
	"time"
)

func TestPutGetReturnsCopies(t *testing.T) {
	st := MustNew()
	defer st.Close()

	run := &Run{ID: "r1", State: "idle", Status: StatusRunning, CreatedAt: time.Now()}
	st.Put(run)
	run.State = "mutated"

	got, err := st.Get("r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != "idle" {
		t.Fatalf("store kept caller's pointer: %q", got.State)
	}
	got.Events = append(got.Events, Event{State: "x"})
	again, _ := st.Get("r1")
	if len(again.Events) != 0 {
		t.Fatalf("events aliased between copies")
	}
}

func TestGetMissing(t *testing.T) {
	st := MustNew()
	if _, err := st.Get("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestListNewestFirstWithLimit(t *testing.T) {
	st := MustNew()
	base := time.Date(2026, 1, 19, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		st.Put(&Run{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	all := st.List(0)
	if len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
		t.Fatalf("unexpected order: %v %v %v", all[0].ID, all[1].ID, all[2].ID)
	}
	if got := st.List(2); len(got) != 2 || got[0].ID != "c" {
		t.Fatalf("limit not applied: %d", len(got))
	}
}

func TestReplayIgnoresOlderVersions(t *testing.T) {
	st := MustNew()
	st.applyReplayedRun(&Run{ID: "r", State: "done"}, 3)
	st.applyReplayedRun(&Run{ID: "r", State: "idle"}, 1)
	got, _ := st.Get("r")
	if got.State != "done" {
		t.Fatalf("older replay overwrote newer state: %q", got.State)
	}
	st.Put(&Run{ID: "r", State: "failed"})
	if st.versions["r"] != 4 {
		t.Fatalf("version should continue after replay, got %d", st.versions["r"])
	}
}
