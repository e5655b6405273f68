package sap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type fakeControl struct {
	text     string
	clicks   int
	dblClick int
}

func (c *fakeControl) Text() string { return c.text }

func (c *fakeControl) Click() error {
	c.clicks++
	return nil
}

func (c *fakeControl) DoubleClick() error {
	c.dblClick++
	return nil
}

type fakeWindow struct {
	controls map[ControlKind][]*fakeControl
}

func (w *fakeWindow) Focus() error { return errors.New("focus refused") }

func (w *fakeWindow) Descendants(_ context.Context, kind ControlKind) ([]Control, error) {
	var out []Control
	for _, c := range w.controls[kind] {
		out = append(out, c)
	}
	return out, nil
}

type fakeDesktop struct {
	window      *fakeWindow
	appearAfter int
	calls       int
}

func (d *fakeDesktop) FindWindow(_ context.Context, _ string) (Window, error) {
	d.calls++
	if d.window == nil || d.calls <= d.appearAfter {
		return nil, errors.New("no window")
	}
	return d.window, nil
}

func fastLogonConfig() LogonAutomationConfig {
	return LogonAutomationConfig{
		Timeout:      200 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		ClickSettle:  time.Millisecond,
	}
}

func TestLogonAutomationOpensBestRow(t *testing.T) {
	server := &fakeControl{text: "00 SAP ERP"}
	other := &fakeControl{text: "H181 RP1 ENEL SP CCS Qualidade"}
	target := &fakeControl{text: "H181 RP1 ENEL SP CCS Produção (without SSO)"}
	window := &fakeWindow{controls: map[ControlKind][]*fakeControl{
		KindTreeItem: {{text: "Favoritos"}, server},
		KindDataItem: {other, target},
		KindListItem: {{text: "H181 RP1 ENEL SP CCS Produção (without SSO)"}},
	}}
	desktop := &fakeDesktop{window: window, appearAfter: 2}

	a := NewLogonAutomation(fastLogonConfig(), desktop, nil)
	if err := a.OpenConnection(context.Background(), testServer, "H181 RP1 ENEL SP CCS Produção (without SSO)..."); err != nil {
		t.Fatalf("OpenConnection: %v", err)
	}
	if server.clicks != 1 {
		t.Fatalf("expected server click, got %d", server.clicks)
	}
	if target.dblClick != 1 || other.dblClick != 0 {
		t.Fatalf("wrong row activated: target=%d other=%d", target.dblClick, other.dblClick)
	}
	if desktop.calls != 3 {
		t.Fatalf("expected window polling, got %d calls", desktop.calls)
	}
}

func TestLogonAutomationMissingServerContinues(t *testing.T) {
	target := &fakeControl{text: "H181 RP1"}
	window := &fakeWindow{controls: map[ControlKind][]*fakeControl{
		KindListItem: {target},
	}}
	a := NewLogonAutomation(fastLogonConfig(), &fakeDesktop{window: window}, nil)
	if err := a.OpenConnection(context.Background(), "unknown server", "h181 rp1"); err != nil {
		t.Fatalf("OpenConnection: %v", err)
	}
	if target.dblClick != 1 {
		t.Fatalf("expected double click")
	}
}

func TestLogonAutomationNoMatchListsCandidates(t *testing.T) {
	var rows []*fakeControl
	for i := 0; i < 12; i++ {
		rows = append(rows, &fakeControl{text: fmt.Sprintf("QAS%02d", i)})
	}
	window := &fakeWindow{controls: map[ControlKind][]*fakeControl{KindDataItem: rows}}
	a := NewLogonAutomation(fastLogonConfig(), &fakeDesktop{window: window}, nil)
	err := a.OpenConnection(context.Background(), "", "PRD connection")
	if KindOf(err) != KindAutomation {
		t.Fatalf("expected automation error, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "PRD connection") || !strings.Contains(msg, "QAS09") || strings.Contains(msg, "QAS10") {
		t.Fatalf("diagnostic should carry filter and first 10 candidates: %v", msg)
	}
}

func TestLogonAutomationWindowTimeout(t *testing.T) {
	a := NewLogonAutomation(fastLogonConfig(), &fakeDesktop{}, nil)
	err := a.OpenConnection(context.Background(), testServer, testConnection)
	if KindOf(err) != KindAutomation {
		t.Fatalf("expected automation error, got %v", err)
	}
}
