package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/antonkrylov/saprunner/internal/sap"
)

type stateMsg struct {
	state sap.State
	at    time.Time
}

type doneMsg struct {
	result sap.RunResult
	err    error
}

// stepLabels names the states a successful run passes through, in order.
var stepLabels = []struct {
	state sap.State
	label string
}{
	{sap.StateLoggedIn, "logged in"},
	{sap.StateFirstExportDone, "ZUCRM_039 exported"},
	{sap.StateNotesExtracted, "notes extracted"},
	{sap.StateNavigatedBack, "back at the base screen"},
	{sap.StateSecondExportDone, "IW59 exported"},
	{sap.StateDone, "done"},
}

type progressModel struct {
	spinner  spinner.Model
	events   <-chan tea.Msg
	cancel   context.CancelFunc
	reached  map[sap.State]time.Time
	current  sap.State
	started  time.Time
	done     *doneMsg
	quitting bool
}

func newProgressModel(events <-chan tea.Msg, cancel context.CancelFunc) progressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return progressModel{
		spinner: sp,
		events:  events,
		cancel:  cancel,
		reached: map[sap.State]time.Time{},
		current: sap.StateIdle,
		started: time.Now(),
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitCmd())
}

func (m progressModel) waitCmd() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if !m.quitting {
				m.quitting = true
				m.cancel()
			}
		}
		return m, nil
	case stateMsg:
		m.current = msg.state
		m.reached[msg.state] = msg.at
		return m, m.waitCmd()
	case doneMsg:
		m.done = &msg
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString("SAP run\n\n")
	pending := true
	for _, step := range stepLabels {
		label := step.label
		at, ok := m.reached[step.state]
		if step.state == sap.StateSecondExportDone {
			if skippedAt, skipped := m.reached[sap.StateSecondExportSkipped]; skipped {
				label, at, ok = "IW59 ran, no export detected", skippedAt, true
			}
		}
		switch {
		case ok:
			fmt.Fprintf(&b, "  ✓ %s (%s)\n", label, at.Sub(m.started).Round(time.Second))
		case pending && m.current != sap.StateFailed:
			fmt.Fprintf(&b, "  %s %s\n", m.spinner.View(), label)
			pending = false
		default:
			fmt.Fprintf(&b, "    %s\n", label)
		}
	}
	if m.current == sap.StateFailed {
		b.WriteString("\n  ✗ run failed\n")
	}
	if m.quitting {
		b.WriteString("\n  cancelling...\n")
	} else {
		b.WriteString("\n  q to cancel\n")
	}
	return b.String()
}
