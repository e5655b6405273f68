package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the saprunner settings file. Environment variables override it.
type Config struct {
	SAP          SAP          `yaml:"sap"`
	Export       Export       `yaml:"export"`
	Navigation   Navigation   `yaml:"navigation"`
	Transactions Transactions `yaml:"transactions"`
	Log          Log          `yaml:"log"`
	Service      Service      `yaml:"service"`

	// CurrentContext and Contexts point the CLI at remote saprunner services.
	CurrentContext string              `yaml:"currentContext,omitempty"`
	Contexts       map[string]*Context `yaml:"contexts,omitempty"`
}

// SAP identifies the GUI connection and the login.
type SAP struct {
	Username              string `yaml:"username"`
	Password              string `yaml:"password,omitempty"`
	Client                string `yaml:"client"`
	Language              string `yaml:"language"`
	ServerName            string `yaml:"serverName"`
	ConnectionName        string `yaml:"connectionName"`
	LogonExecutable       string `yaml:"logonExecutable"`
	StartupTimeoutSeconds int    `yaml:"startupTimeoutSeconds"`
}

// Export configures where exports land and how they are detected.
type Export struct {
	Dir            string `yaml:"dir"`
	ZucrmDir       string `yaml:"zucrmDir,omitempty"`
	Iw59Dir        string `yaml:"iw59Dir,omitempty"`
	ZucrmGlob      string `yaml:"zucrmGlob"`
	Iw59Glob       string `yaml:"iw59Glob"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
	// FallbackGlob is scanned when the ZUCRM glob never matches. nil means the
	// default; an empty string disables the fallback.
	FallbackGlob       *string `yaml:"fallbackGlob,omitempty"`
	Archive            bool    `yaml:"archive"`
	ArchiveDir         string  `yaml:"archiveDir,omitempty"`
	ArchiveCompression string  `yaml:"archiveCompression,omitempty"`
}

type Navigation struct {
	Policy     string `yaml:"policy"`
	MaxPresses int    `yaml:"maxPresses"`
}

type Transactions struct {
	Zucrm     string `yaml:"zucrm"`
	Iw59      string `yaml:"iw59"`
	QueryType string `yaml:"queryType"`
	Variant   string `yaml:"variant"`
}

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
	JSON  bool   `yaml:"json"`
}

// Service configures the long-running API process.
type Service struct {
	HTTPAddr string `yaml:"httpAddr"`
	GRPCAddr string `yaml:"grpcAddr"`
	NATS     NATS   `yaml:"nats"`
}

// NATS enables the JetStream mirror of run records when URL is set.
type NATS struct {
	URL          string `yaml:"url,omitempty"`
	User         string `yaml:"user,omitempty"`
	Password     string `yaml:"password,omitempty"`
	EventsPrefix string `yaml:"eventsPrefix,omitempty"`
	RunsStream   string `yaml:"runsStream,omitempty"`
}

// Context encodes connection details for a remote saprunner API.
type Context struct {
	Server         string `yaml:"server"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// Defaults mirrored from the logon environment the tool was built for.
const (
	DefaultLanguage        = "PT"
	DefaultServerName      = "00 SAP ERP"
	DefaultConnectionName  = "H181 RP1 ENEL SP CCS Produção (without SSO)"
	DefaultLogonExecutable = `C:\Program Files (x86)\SAP\FrontEnd\SAPgui\saplogon.exe`
	DefaultZucrmGlob       = "sap_gov_sp*.XLSX"
	DefaultIw59Glob        = "brs_sap_gov_sp*.XLSX"
	DefaultFallbackGlob    = "export*.xlsx"
	DefaultExportTimeout   = 180
	DefaultStartupTimeout  = 40
	DefaultMaxPresses      = 20
	DefaultQueryType       = "ov"
	DefaultVariant         = "/abap ov2"
	DefaultZucrm           = "zucrm_039"
	DefaultIw59            = "iw59"
	DefaultNavigation      = "fixed"
	DefaultHTTPAddr        = ":8080"
	DefaultGRPCAddr        = ":50051"
	DefaultEventsPrefix    = "saprunner.events"
	DefaultRunsStream      = "saprunner_runs"
)

// ErrContextNotFound indicates the requested context is missing.
var ErrContextNotFound = errors.New("context not found")

// Load decodes the config file. Missing files return (nil, nil).
func Load(path string) (*Config, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	expanded, err := expandPath(trimmed)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Resolve loads path (if any), applies environment overrides from lookup and
// fills defaults. It is the single place settings are assembled.
func Resolve(path string, lookup LookupFunc) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.ApplyEnv(lookup)
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to disk, creating parent directories if needed.
func (c *Config) Save(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config path is required")
	}
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return err
	}
	return os.WriteFile(expanded, data, 0o600)
}

// ApplyEnv overrides file values with the SAP_* and SAPRUNNER_* variables.
func (c *Config) ApplyEnv(lookup LookupFunc) {
	e := env{lookup: lookup}

	e.setString(&c.SAP.Username, "SAP_USERNAME")
	e.setString(&c.SAP.Password, "SAP_PASSWORD")
	e.setString(&c.SAP.Client, "SAP_CLIENT")
	e.setString(&c.SAP.Language, "SAP_LANGUAGE")
	e.setString(&c.SAP.ServerName, "SAP_SERVER_NAME")
	e.setString(&c.SAP.ConnectionName, "SAP_CONNECTION_NAME")
	e.setString(&c.SAP.LogonExecutable, "SAP_LOGON_EXECUTABLE")
	e.setInt(&c.SAP.StartupTimeoutSeconds, "SAP_STARTUP_TIMEOUT_SECONDS")

	e.setString(&c.Export.Dir, "SAP_EXPORT_DIR")
	e.setString(&c.Export.ZucrmDir, "SAP_ZUCRM_EXPORT_DIR")
	e.setString(&c.Export.Iw59Dir, "SAP_IW59_EXPORT_DIR")
	e.setString(&c.Export.ZucrmGlob, "SAP_ZUCRM_EXPORT_GLOB")
	e.setString(&c.Export.Iw59Glob, "SAP_IW59_EXPORT_GLOB")
	e.setInt(&c.Export.TimeoutSeconds, "SAP_EXPORT_TIMEOUT_SECONDS")
	if v := e.get("SAPRUNNER_EXPORT_FALLBACK_GLOB"); v != "" {
		if strings.EqualFold(v, "none") || strings.EqualFold(v, "off") {
			v = ""
		}
		c.Export.FallbackGlob = &v
	}
	e.setBool(&c.Export.Archive, "SAPRUNNER_EXPORT_ARCHIVE")
	e.setString(&c.Export.ArchiveDir, "SAPRUNNER_EXPORT_ARCHIVE_DIR")
	e.setString(&c.Export.ArchiveCompression, "SAPRUNNER_EXPORT_ARCHIVE_COMPRESSION")

	e.setString(&c.Navigation.Policy, "SAPRUNNER_NAVIGATION_POLICY")
	e.setInt(&c.Navigation.MaxPresses, "SAP_F3_MAX_PRESSES")

	e.setString(&c.Transactions.Zucrm, "SAP_TRANSACTION_ZUCRM")
	e.setString(&c.Transactions.Iw59, "SAP_TRANSACTION_IW59")
	e.setString(&c.Transactions.QueryType, "SAP_QMART")
	e.setString(&c.Transactions.Variant, "SAP_VARIATION")

	e.setString(&c.Log.Level, "LOG_LEVEL")
	e.setString(&c.Log.File, "LOG_FILE")
	e.setBool(&c.Log.JSON, "SAPRUNNER_LOG_JSON")

	e.setString(&c.Service.HTTPAddr, "SAPRUNNER_HTTP_ADDR")
	e.setString(&c.Service.GRPCAddr, "SAPRUNNER_GRPC_ADDR")
	e.setString(&c.Service.NATS.URL, "SAPRUNNER_NATS_URL")
	e.setString(&c.Service.NATS.User, "SAPRUNNER_NATS_USER")
	e.setString(&c.Service.NATS.Password, "SAPRUNNER_NATS_PASS")
}

// ApplyDefaults fills unset values and resolves directories to absolute paths.
func (c *Config) ApplyDefaults() error {
	setDefault(&c.SAP.Language, DefaultLanguage)
	setDefault(&c.SAP.ServerName, DefaultServerName)
	setDefault(&c.SAP.ConnectionName, DefaultConnectionName)
	setDefault(&c.SAP.LogonExecutable, DefaultLogonExecutable)
	if c.SAP.StartupTimeoutSeconds <= 0 {
		c.SAP.StartupTimeoutSeconds = DefaultStartupTimeout
	}

	setDefault(&c.Export.Dir, filepath.Join(DefaultConfigDir(), "downloads"))
	setDefault(&c.Export.ZucrmGlob, DefaultZucrmGlob)
	setDefault(&c.Export.Iw59Glob, DefaultIw59Glob)
	if c.Export.TimeoutSeconds <= 0 {
		c.Export.TimeoutSeconds = DefaultExportTimeout
	}
	if c.Export.FallbackGlob == nil {
		fallback := DefaultFallbackGlob
		c.Export.FallbackGlob = &fallback
	}
	setDefault(&c.Export.ArchiveCompression, "none")

	setDefault(&c.Navigation.Policy, DefaultNavigation)
	if c.Navigation.MaxPresses <= 0 {
		c.Navigation.MaxPresses = DefaultMaxPresses
	}

	setDefault(&c.Transactions.Zucrm, DefaultZucrm)
	setDefault(&c.Transactions.Iw59, DefaultIw59)
	setDefault(&c.Transactions.QueryType, DefaultQueryType)
	setDefault(&c.Transactions.Variant, DefaultVariant)

	setDefault(&c.Log.Level, "INFO")
	c.Log.Level = strings.ToUpper(c.Log.Level)
	setDefault(&c.Log.File, filepath.Join(DefaultConfigDir(), "logs", "sap_automation.log"))

	setDefault(&c.Service.HTTPAddr, DefaultHTTPAddr)
	setDefault(&c.Service.GRPCAddr, DefaultGRPCAddr)
	setDefault(&c.Service.NATS.EventsPrefix, DefaultEventsPrefix)
	setDefault(&c.Service.NATS.RunsStream, DefaultRunsStream)

	for _, p := range []*string{&c.Export.Dir, &c.Export.ZucrmDir, &c.Export.Iw59Dir, &c.Export.ArchiveDir, &c.Log.File} {
		if *p == "" {
			continue
		}
		expanded, err := expandPath(*p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Navigation.Policy) {
	case "fixed", "poll":
	default:
		errs = append(errs, fmt.Errorf("navigation.policy must be fixed or poll, got %q", c.Navigation.Policy))
	}
	switch strings.ToLower(c.Export.ArchiveCompression) {
	case "", "none", "zstd":
	default:
		errs = append(errs, fmt.Errorf("export.archiveCompression must be none or zstd, got %q", c.Export.ArchiveCompression))
	}
	for name, glob := range map[string]string{
		"SAP_ZUCRM_EXPORT_GLOB": c.Export.ZucrmGlob,
		"SAP_IW59_EXPORT_GLOB":  c.Export.Iw59Glob,
	} {
		if _, err := filepath.Match(glob, ""); err != nil {
			errs = append(errs, fmt.Errorf("%s is not a valid pattern: %w", name, err))
		}
	}
	if c.Export.FallbackGlob != nil && *c.Export.FallbackGlob != "" {
		if _, err := filepath.Match(*c.Export.FallbackGlob, ""); err != nil {
			errs = append(errs, fmt.Errorf("export.fallbackGlob is not a valid pattern: %w", err))
		}
	}
	if strings.TrimSpace(c.Export.Dir) == "" {
		errs = append(errs, errors.New("SAP_EXPORT_DIR is required"))
	}
	return errors.Join(errs...)
}

// MissingCredentials lists the unset credential variables.
func (c *Config) MissingCredentials() []string {
	var missing []string
	if strings.TrimSpace(c.SAP.Username) == "" {
		missing = append(missing, "SAP_USERNAME")
	}
	if c.SAP.Password == "" {
		missing = append(missing, "SAP_PASSWORD")
	}
	return missing
}

// ValidateCredentials fails when SAP_USERNAME or SAP_PASSWORD is unset.
func (c *Config) ValidateCredentials() error {
	if missing := c.MissingCredentials(); len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ZucrmExportDir is the ZUCRM_039 destination, defaulting to Export.Dir.
func (c *Config) ZucrmExportDir() string {
	if c.Export.ZucrmDir != "" {
		return c.Export.ZucrmDir
	}
	return c.Export.Dir
}

// Iw59ExportDir is the IW59 destination, defaulting to Export.Dir.
func (c *Config) Iw59ExportDir() string {
	if c.Export.Iw59Dir != "" {
		return c.Export.Iw59Dir
	}
	return c.Export.Dir
}

// ArchiveExportDir is where IW59 archive copies go, defaulting to the IW59 directory.
func (c *Config) ArchiveExportDir() string {
	if c.Export.ArchiveDir != "" {
		return c.Export.ArchiveDir
	}
	return c.Iw59ExportDir()
}

func (c *Config) ExportTimeout() time.Duration {
	return time.Duration(c.Export.TimeoutSeconds) * time.Second
}

func (c *Config) StartupTimeout() time.Duration {
	return time.Duration(c.SAP.StartupTimeoutSeconds) * time.Second
}

// FallbackPattern returns the configured fallback glob; empty means disabled.
func (c *Config) FallbackPattern() string {
	if c.Export.FallbackGlob == nil {
		return DefaultFallbackGlob
	}
	return *c.Export.FallbackGlob
}

// ResolveContext picks a context either by explicit name or the currentContext value.
func (c *Config) ResolveContext(name string) (*Context, string, error) {
	if c == nil {
		return nil, "", nil
	}
	ctxName := strings.TrimSpace(name)
	if ctxName == "" {
		ctxName = c.CurrentContext
	}
	if ctxName == "" {
		return nil, "", nil
	}
	ctx, ok := c.Contexts[ctxName]
	if !ok {
		return nil, ctxName, fmt.Errorf("%w: %s", ErrContextNotFound, ctxName)
	}
	return ctx, ctxName, nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.SAP.Password != "" {
		cp.SAP.Password = "********"
	}
	if cp.Service.NATS.Password != "" {
		cp.Service.NATS.Password = "********"
	}
	return &cp
}

func setDefault(target *string, value string) {
	if strings.TrimSpace(*target) == "" {
		*target = value
	}
}

func expandPath(path string) (string, error) {
	switch {
	case strings.HasPrefix(path, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	case path == "~":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return home, nil
	case filepath.IsAbs(path):
		return path, nil
	default:
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return filepath.Join(cwd, path), nil
	}
}
