// Package uia drives the SAP Logon window through Windows UI Automation. Element
// discovery runs a PowerShell script against the UIAutomationClient assembly;
// pointer input goes through user32.
package uia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/antonkrylov/saprunner/internal/sap"
)

// ErrWindowNotFound is returned when no top-level window title matches.
var ErrWindowNotFound = errors.New("window not found")

// Query selects a window by title regex and optionally lists its descendants of
// one control type.
type Query struct {
	TitlePattern string
	Kind         sap.ControlKind
}

// Runner executes a Query and returns the script's JSON output.
type Runner func(ctx context.Context, q Query) ([]byte, error)

// Input moves focus and the pointer.
type Input interface {
	Focus(hwnd uintptr) error
	Click(x, y int) error
	DoubleClick(x, y int) error
}

// Desktop implements sap.Desktop.
type Desktop struct {
	run   Runner
	input Input
}

// New builds a Desktop from a query runner and an input backend.
func New(run Runner, input Input) *Desktop {
	return &Desktop{run: run, input: input}
}

type snapshot struct {
	HWND  uintptr `json:"hwnd"`
	Title string  `json:"title"`
	Items []item  `json:"items"`
}

type item struct {
	Name string `json:"name"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

func (d *Desktop) query(ctx context.Context, q Query) (snapshot, error) {
	out, err := d.run(ctx, q)
	if err != nil {
		return snapshot{}, err
	}
	var snap snapshot
	if err := json.Unmarshal(out, &snap); err != nil {
		return snapshot{}, fmt.Errorf("decode ui automation output: %w", err)
	}
	return snap, nil
}

func (d *Desktop) FindWindow(ctx context.Context, titlePattern string) (sap.Window, error) {
	snap, err := d.query(ctx, Query{TitlePattern: titlePattern})
	if err != nil {
		return nil, err
	}
	return &window{desktop: d, pattern: titlePattern, hwnd: snap.HWND, title: snap.Title}, nil
}

type window struct {
	desktop *Desktop
	pattern string
	hwnd    uintptr
	title   string
}

func (w *window) Focus() error {
	if w.hwnd == 0 {
		return fmt.Errorf("window %q has no native handle", w.title)
	}
	return w.desktop.input.Focus(w.hwnd)
}

func (w *window) Descendants(ctx context.Context, kind sap.ControlKind) ([]sap.Control, error) {
	snap, err := w.desktop.query(ctx, Query{TitlePattern: w.pattern, Kind: kind})
	if err != nil {
		return nil, err
	}
	out := make([]sap.Control, 0, len(snap.Items))
	for _, it := range snap.Items {
		out = append(out, &control{input: w.desktop.input, item: it})
	}
	return out, nil
}

type control struct {
	input Input
	item  item
}

func (c *control) Text() string { return c.item.Name }

func (c *control) Click() error { return c.input.Click(c.item.X, c.item.Y) }

func (c *control) DoubleClick() error { return c.input.DoubleClick(c.item.X, c.item.Y) }

const script = `
$ErrorActionPreference = 'Stop'
Add-Type -AssemblyName UIAutomationClient
Add-Type -AssemblyName UIAutomationTypes
$ae = [System.Windows.Automation.AutomationElement]
$root = $ae::RootElement
$all = $root.FindAll([System.Windows.Automation.TreeScope]::Children, [System.Windows.Automation.Condition]::TrueCondition)
$win = $null
foreach ($w in $all) { if ($w.Current.Name -match $env:UIA_TITLE) { $win = $w; break } }
if ($win -eq $null) { exit 3 }
$items = @()
if ($env:UIA_KIND) {
  $ct = [System.Windows.Automation.ControlType]::$($env:UIA_KIND)
  $cond = New-Object System.Windows.Automation.PropertyCondition($ae::ControlTypeProperty, $ct)
  foreach ($e in $win.FindAll([System.Windows.Automation.TreeScope]::Descendants, $cond)) {
    $r = $e.Current.BoundingRectangle
    if ($r.IsEmpty) { continue }
    $items += @{ name = $e.Current.Name; x = [int]($r.X + $r.Width / 2); y = [int]($r.Y + $r.Height / 2) }
  }
}
@{ hwnd = [int64]$win.Current.NativeWindowHandle; title = $win.Current.Name; items = $items } | ConvertTo-Json -Compress -Depth 4
`

// windowMissingExit is the script's exit code when no window matched.
const windowMissingExit = 3
