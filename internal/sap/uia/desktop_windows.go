//go:build windows

package uia

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/windows"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetForegroundWindow = user32.NewProc("SetForegroundWindow")
	procShowWindow          = user32.NewProc("ShowWindow")
	procSetCursorPos        = user32.NewProc("SetCursorPos")
	procMouseEvent          = user32.NewProc("mouse_event")
)

const (
	swRestore       = 9
	mouseLeftDown   = 0x0002
	mouseLeftUp     = 0x0004
	doubleClickGap  = 80 * time.Millisecond
	pointerSettleUp = 30 * time.Millisecond
)

// NewDesktop returns a Desktop backed by PowerShell and user32.
func NewDesktop() *Desktop {
	return New(PowerShell, user32Input{})
}

// PowerShell runs the discovery script with the query passed through the environment.
func PowerShell(ctx context.Context, q Query) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "powershell.exe",
		"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-Command", script)
	cmd.Env = append(os.Environ(), "UIA_TITLE="+q.TitlePattern, "UIA_KIND="+string(q.Kind))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == windowMissingExit {
			return nil, fmt.Errorf("%w: %s", ErrWindowNotFound, q.TitlePattern)
		}
		return nil, fmt.Errorf("ui automation query: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

type user32Input struct{}

func (user32Input) Focus(hwnd uintptr) error {
	procShowWindow.Call(hwnd, swRestore)
	if r, _, err := procSetForegroundWindow.Call(hwnd); r == 0 {
		return fmt.Errorf("set foreground window: %w", err)
	}
	return nil
}

func (user32Input) Click(x, y int) error {
	if err := moveTo(x, y); err != nil {
		return err
	}
	leftClick()
	return nil
}

func (user32Input) DoubleClick(x, y int) error {
	if err := moveTo(x, y); err != nil {
		return err
	}
	leftClick()
	time.Sleep(doubleClickGap)
	leftClick()
	return nil
}

func moveTo(x, y int) error {
	if r, _, err := procSetCursorPos.Call(uintptr(x), uintptr(y)); r == 0 {
		return fmt.Errorf("set cursor position: %w", err)
	}
	time.Sleep(pointerSettleUp)
	return nil
}

func leftClick() {
	procMouseEvent.Call(mouseLeftDown, 0, 0, 0, 0)
	procMouseEvent.Call(mouseLeftUp, 0, 0, 0, 0)
}
