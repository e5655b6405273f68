package client

import (
	"fmt"
	"os"
	"time"

	"github.com/antonkrylov/saprunner/internal/config"
)

// DefaultAPIAddr is used when neither flags, config nor environment name a server.
const DefaultAPIAddr = "localhost:50051"

type Connection struct {
	APIAddr     string
	Timeout     time.Duration
	ConfigPath  string
	ContextName string
	Config      *config.Config
	Context     *config.Context
}

// ResolveConnection picks the API address and call timeout from, in order:
// 1) flags (apiAddr, timeout, contextName)
// 2) config file contexts
// 3) environment (SAPRUNNER_API_ADDR)
// 4) defaults (localhost:50051, 15s)
func ResolveConnection(configPath, contextName, apiAddr string, timeout time.Duration) (*Connection, error) {
	conn := &Connection{
		ConfigPath:  configPath,
		ContextName: contextName,
		APIAddr:     apiAddr,
		Timeout:     timeout,
	}

	if conn.ConfigPath != "" {
		cfg, err := config.Load(conn.ConfigPath)
		if err != nil {
			return nil, err
		}
		conn.Config = cfg
	}

	if conn.Config != nil {
		ctx, _, err := conn.Config.ResolveContext(conn.ContextName)
		if err != nil {
			return nil, err
		}
		conn.Context = ctx
	} else if conn.ContextName != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrContextNotFound, conn.ContextName)
	}

	if conn.APIAddr == "" && conn.Context != nil {
		conn.APIAddr = conn.Context.Server
	}

	if conn.Timeout == 0 {
		if conn.Context != nil && conn.Context.TimeoutSeconds > 0 {
			conn.Timeout = time.Duration(conn.Context.TimeoutSeconds) * time.Second
		} else {
			conn.Timeout = 15 * time.Second
		}
	}

	if conn.APIAddr == "" {
		conn.APIAddr = os.Getenv("SAPRUNNER_API_ADDR")
		if conn.APIAddr == "" {
			conn.APIAddr = DefaultAPIAddr
		}
	}

	return conn, nil
}
