package sap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Engine is the running GUI scripting application.
type Engine interface {
	// Connections lists the connections currently open in the GUI.
	Connections() ([]Connection, error)
	// OpenConnection opens a connection by its logon description.
	OpenConnection(description string) (Connection, error)
}

// Connection is one open connection of the scripting engine.
type Connection interface {
	Description() string
	Sessions() ([]Scripting, error)
}

// EngineLocator attaches to the scripting engine of a running GUI process.
type EngineLocator interface {
	Locate() (Engine, error)
}

// Launcher starts the logon manager executable without waiting for it.
type Launcher interface {
	Launch(path string) error
}

// ExecLauncher starts the executable as a detached child process.
type ExecLauncher struct{}

func (ExecLauncher) Launch(path string) error {
	cmd := exec.Command(path)
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// LogonUI opens a connection by driving the logon manager window directly.
type LogonUI interface {
	OpenConnection(ctx context.Context, serverName, connectionName string) error
}

func checkExecutable(path string) error {
	if path == "" {
		return configErr("SAP_LOGON_EXECUTABLE is not configured")
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return configErr("sap logon executable not found: %s", path)
	}
	if err != nil {
		return newError(KindConfig, err, "sap logon executable not accessible: %s", path)
	}
	if info.IsDir() {
		return configErr("sap logon executable is a directory: %s", path)
	}
	return nil
}

func connectionCount(engine Engine) (int, error) {
	conns, err := engine.Connections()
	if err != nil {
		return 0, fmt.Errorf("list connections: %w", err)
	}
	releaseConnections(conns, nil)
	return len(conns), nil
}
