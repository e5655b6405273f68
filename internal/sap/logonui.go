package sap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
)

// ControlKind is a UI Automation control type.
type ControlKind string

const (
	KindTreeItem ControlKind = "TreeItem"
	KindDataItem ControlKind = "DataItem"
	KindListItem ControlKind = "ListItem"
)

// Desktop finds top-level windows.
type Desktop interface {
	FindWindow(ctx context.Context, titlePattern string) (Window, error)
}

// Window is a top-level window whose descendants can be enumerated.
type Window interface {
	Focus() error
	Descendants(ctx context.Context, kind ControlKind) ([]Control, error)
}

// Control is a visible UI item with a label that accepts pointer input.
type Control interface {
	Text() string
	Click() error
	DoubleClick() error
}

// LogonAutomationConfig tunes the connection-manager window automation.
type LogonAutomationConfig struct {
	WindowTitle  string
	Timeout      time.Duration
	PollInterval time.Duration
	ClickSettle  time.Duration
}

func (c *LogonAutomationConfig) setDefaults() {
	if c.WindowTitle == "" {
		c.WindowTitle = `SAP Logon.*`
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.ClickSettle <= 0 {
		c.ClickSettle = 300 * time.Millisecond
	}
}

// LogonAutomation selects the server node and double-clicks the connection row
// in the logon manager window. It is only used when scripted opening fails.
type LogonAutomation struct {
	cfg     LogonAutomationConfig
	desktop Desktop
	logger  *slog.Logger
}

func NewLogonAutomation(cfg LogonAutomationConfig, desktop Desktop, logger *slog.Logger) *LogonAutomation {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LogonAutomation{cfg: cfg, desktop: desktop, logger: logger}
}

// OpenConnection clicks the server in the tree and double-clicks the connection row.
func (a *LogonAutomation) OpenConnection(ctx context.Context, serverName, connectionName string) error {
	window, err := a.window(ctx)
	if err != nil {
		return err
	}
	if err := window.Focus(); err != nil {
		a.logger.DebugContext(ctx, "focus sap logon window", "err", err)
	}
	if err := a.selectServer(ctx, window, serverName); err != nil {
		return err
	}
	return a.openConnectionRow(ctx, window, connectionName)
}

func (a *LogonAutomation) window(ctx context.Context) (Window, error) {
	var (
		found   Window
		lastErr error
	)
	err := poll(ctx, a.cfg.Timeout, a.cfg.PollInterval, func() (bool, error) {
		w, err := a.desktop.FindWindow(ctx, a.cfg.WindowTitle)
		if err != nil {
			if errors.Is(err, ErrUnsupportedPlatform) {
				return false, err
			}
			lastErr = err
			return false, nil
		}
		found = w
		return w != nil, nil
	})
	if errors.Is(err, errPollTimeout) {
		return nil, automationErr(lastErr, "sap logon window %q not found", a.cfg.WindowTitle)
	}
	if err != nil {
		return nil, automationErr(err, "find sap logon window")
	}
	return found, nil
}

func (a *LogonAutomation) selectServer(ctx context.Context, window Window, serverName string) error {
	if Normalize(serverName) == "" {
		return nil
	}
	items, err := window.Descendants(ctx, KindTreeItem)
	if err != nil {
		return automationErr(err, "list sap logon tree items")
	}
	labels := make([]string, len(items))
	for i, item := range items {
		labels[i] = strings.TrimSpace(item.Text())
	}
	idx, score := bestMatch(labels, serverName)
	if idx < 0 || score <= 0 {
		a.logger.WarnContext(ctx, "server not found in sap logon tree, trying connection anyway", "server", serverName)
		return nil
	}
	a.logger.InfoContext(ctx, "selecting server in sap logon", "label", labels[idx], "score", score)
	if err := items[idx].Click(); err != nil {
		return automationErr(err, "click server %q", labels[idx])
	}
	return sleep(ctx, a.cfg.ClickSettle)
}

type row struct {
	text    string
	control Control
}

func (a *LogonAutomation) collectRows(ctx context.Context, window Window) ([]row, error) {
	var rows []row
	seen := make(map[string]struct{})
	for _, kind := range []ControlKind{KindDataItem, KindListItem} {
		controls, err := window.Descendants(ctx, kind)
		if err != nil {
			return nil, automationErr(err, "list sap logon %s controls", kind)
		}
		for _, c := range controls {
			text := strings.TrimSpace(c.Text())
			if text == "" {
				continue
			}
			if _, dup := seen[text]; dup {
				continue
			}
			seen[text] = struct{}{}
			rows = append(rows, row{text: text, control: c})
		}
	}
	return rows, nil
}

func (a *LogonAutomation) openConnectionRow(ctx context.Context, window Window, connectionName string) error {
	target := strings.ReplaceAll(connectionName, "...", " ")
	if Normalize(target) == "" {
		return configErr("SAP_CONNECTION_NAME is empty")
	}
	rows, err := a.collectRows(ctx, window)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return automationErr(nil, "no connection rows visible in sap logon")
	}
	labels := make([]string, len(rows))
	for i, r := range rows {
		labels[i] = r.text
	}
	idx, score := bestMatch(labels, target)
	if idx < 0 || score <= 0 {
		visible := labels
		if len(visible) > 10 {
			visible = visible[:10]
		}
		return automationErr(nil, "sap connection not found in logon list; filter %q, first visible connections: %s",
			connectionName, strings.Join(visible, ", "))
	}
	a.logger.InfoContext(ctx, "opening sap connection by double click", "label", rows[idx].text, "score", score)
	if err := rows[idx].control.DoubleClick(); err != nil {
		return automationErr(err, "double click connection %q", rows[idx].text)
	}
	return nil
}
