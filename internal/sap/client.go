package sap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

// Login screen fields.
const (
	fieldUser     = "wnd[0]/usr/txtRSYST-BNAME"
	fieldPassword = "wnd[0]/usr/pwdRSYST-BCODE"
	fieldLanguage = "wnd[0]/usr/txtRSYST-LANGU"
	fieldClient   = "wnd[0]/usr/txtRSYST-MANDT"
)

// Credentials used when the session shows the login screen.
type Credentials struct {
	Username string
	Password string
	Client   string
	Language string
}

// ClientConfig describes which connection to attach and how long to wait.
type ClientConfig struct {
	ServerName      string
	ConnectionName  string
	LogonExecutable string
	Credentials     Credentials

	StartupTimeout      time.Duration
	EnginePollInterval  time.Duration
	SessionPollInterval time.Duration
}

func (c *ClientConfig) setDefaults() {
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 40 * time.Second
	}
	if c.EnginePollInterval <= 0 {
		c.EnginePollInterval = time.Second
	}
	if c.SessionPollInterval <= 0 {
		c.SessionPollInterval = 500 * time.Millisecond
	}
}

// Client obtains the scripting engine, attaches a connection and a session and
// logs in when the session is unauthenticated.
type Client struct {
	cfg      ClientConfig
	locator  EngineLocator
	launcher Launcher
	logonUI  LogonUI
	logger   *slog.Logger
}

// NewClient wires the engine locator, process launcher and optional UI fallback.
func NewClient(cfg ClientConfig, locator EngineLocator, launcher Launcher, logonUI LogonUI, logger *slog.Logger) *Client {
	cfg.setDefaults()
	if launcher == nil {
		launcher = ExecLauncher{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		cfg:      cfg,
		locator:  locator,
		launcher: launcher,
		logonUI:  logonUI,
		logger:   logger,
	}
}

// ConnectAndLogin returns an authenticated session on the configured connection.
func (c *Client) ConnectAndLogin(ctx context.Context) (*Session, error) {
	engine, err := c.engine(ctx)
	if err != nil {
		return nil, err
	}
	defer release(engine)
	conn, err := c.openOrAttach(ctx, engine)
	if err != nil {
		return nil, err
	}
	defer release(conn)
	raw, err := c.waitForSession(ctx, conn)
	if err != nil {
		return nil, err
	}
	session := NewSession(raw)
	if err := c.loginIfRequired(ctx, session); err != nil {
		session.Release()
		return nil, err
	}
	return session, nil
}

func (c *Client) engine(ctx context.Context) (Engine, error) {
	engine, err := c.locator.Locate()
	if err == nil {
		return engine, nil
	}
	if errors.Is(err, ErrUnsupportedPlatform) {
		return nil, automationErr(err, "sap gui scripting unavailable")
	}
	c.logger.InfoContext(ctx, "sap gui not running, starting logon", "executable", c.cfg.LogonExecutable)
	if err := checkExecutable(c.cfg.LogonExecutable); err != nil {
		return nil, err
	}
	if err := c.launcher.Launch(c.cfg.LogonExecutable); err != nil {
		return nil, automationErr(err, "start sap logon")
	}

	lastErr := err
	pollErr := poll(ctx, c.cfg.StartupTimeout, c.cfg.EnginePollInterval, func() (bool, error) {
		located, locateErr := c.locator.Locate()
		if locateErr != nil {
			lastErr = locateErr
			return false, nil
		}
		engine = located
		return true, nil
	})
	if pollErr != nil {
		if errors.Is(pollErr, errPollTimeout) {
			return nil, automationErr(lastErr, "could not attach to SAPGUI after %s; check that SAP Logon started and scripting is enabled", c.cfg.StartupTimeout)
		}
		return nil, pollErr
	}
	return engine, nil
}

func (c *Client) openOrAttach(ctx context.Context, engine Engine) (Connection, error) {
	c.logger.InfoContext(ctx, "connecting to sap",
		"server", c.cfg.ServerName,
		"connection", c.cfg.ConnectionName,
	)
	if conn := c.findByDescription(engine); conn != nil {
		c.logger.InfoContext(ctx, "reusing open sap connection", "description", conn.Description())
		return conn, nil
	}

	baseline, _ := connectionCount(engine)

	var lastErr error
	for _, candidate := range connectionVariants(c.cfg.ConnectionName, c.cfg.ServerName) {
		conn, err := engine.OpenConnection(candidate)
		if err != nil {
			c.logger.DebugContext(ctx, "open connection attempt failed", "candidate", candidate, "err", err)
			lastErr = err
			continue
		}
		if conn != nil {
			c.logger.InfoContext(ctx, "sap connection opened", "candidate", candidate)
			return conn, nil
		}
	}

	if c.logonUI != nil {
		c.logger.WarnContext(ctx, "scripted open failed, driving sap logon window", "err", lastErr)
		if err := c.logonUI.OpenConnection(ctx, c.cfg.ServerName, c.cfg.ConnectionName); err != nil {
			return nil, c.connectionFailure(err)
		}
		conn, err := c.waitForNewConnection(ctx, engine, baseline)
		if err == nil {
			return conn, nil
		}
		if !errors.Is(err, errPollTimeout) {
			return nil, err
		}
		lastErr = errors.Join(lastErr, errors.New("no new connection appeared after logon window click"))
	}
	return nil, c.connectionFailure(lastErr)
}

func (c *Client) connectionFailure(err error) error {
	return automationErr(err,
		"could not open sap connection; check SAP_CONNECTION_NAME=%q and SAP_SERVER_NAME=%q",
		c.cfg.ConnectionName, c.cfg.ServerName)
}

func (c *Client) findByDescription(engine Engine) Connection {
	conns, err := engine.Connections()
	if err != nil {
		return nil
	}
	var match Connection
	for _, conn := range conns {
		if conn == nil {
			continue
		}
		if descriptionMatches(conn.Description(), c.cfg.ConnectionName) {
			match = conn
			break
		}
	}
	releaseConnections(conns, match)
	return match
}

func (c *Client) waitForNewConnection(ctx context.Context, engine Engine, baseline int) (Connection, error) {
	var found Connection
	err := poll(ctx, c.cfg.StartupTimeout, c.cfg.SessionPollInterval, func() (bool, error) {
		if conn := c.findByDescription(engine); conn != nil {
			found = conn
			return true, nil
		}
		conns, err := engine.Connections()
		if err != nil {
			return false, nil
		}
		if len(conns) > baseline {
			found = conns[len(conns)-1]
		}
		releaseConnections(conns, found)
		return found != nil, nil
	})
	return found, err
}

func (c *Client) waitForSession(ctx context.Context, conn Connection) (Scripting, error) {
	var session Scripting
	err := poll(ctx, c.cfg.StartupTimeout, c.cfg.SessionPollInterval, func() (bool, error) {
		sessions, err := conn.Sessions()
		if err != nil || len(sessions) == 0 {
			return false, nil
		}
		session = sessions[0]
		for _, other := range sessions[1:] {
			release(other)
		}
		return session != nil, nil
	})
	if errors.Is(err, errPollTimeout) {
		return nil, automationErr(nil, "timed out waiting for sap session to open")
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (c *Client) loginIfRequired(ctx context.Context, session *Session) error {
	if !session.Exists(fieldUser) {
		c.logger.InfoContext(ctx, "sap session already authenticated")
		return nil
	}
	c.logger.InfoContext(ctx, "logging in to sap", "user", c.cfg.Credentials.Username)
	creds := c.cfg.Credentials
	if err := session.SetText(fieldUser, creds.Username); err != nil {
		return err
	}
	if err := session.SetText(fieldPassword, creds.Password); err != nil {
		return err
	}
	if creds.Client != "" && session.Exists(fieldClient) {
		if err := session.SetText(fieldClient, creds.Client); err != nil {
			return err
		}
	}
	if creds.Language != "" && session.Exists(fieldLanguage) {
		if err := session.SetText(fieldLanguage, creds.Language); err != nil {
			return err
		}
	}
	return session.SendVKey(0)
}

// connectionVariants lists the names tried with OpenConnection, in order,
// without duplicates or blanks.
func connectionVariants(connectionName, serverName string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 3)
	for _, v := range []string{connectionName, stripEllipsis(connectionName), serverName} {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
