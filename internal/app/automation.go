// Package app assembles the SAP automation from resolved settings.
package app

import (
	"context"
	"log/slog"

	"github.com/antonkrylov/saprunner/internal/archive"
	"github.com/antonkrylov/saprunner/internal/clipboard"
	"github.com/antonkrylov/saprunner/internal/config"
	"github.com/antonkrylov/saprunner/internal/logging"
	"github.com/antonkrylov/saprunner/internal/notes"
	"github.com/antonkrylov/saprunner/internal/sap"
	"github.com/antonkrylov/saprunner/internal/sap/scripting"
	"github.com/antonkrylov/saprunner/internal/sap/uia"
)

// Options override the platform bindings. Zero values pick the real ones.
type Options struct {
	Logger    *slog.Logger
	Locator   sap.EngineLocator
	Launcher  sap.Launcher
	Desktop   sap.Desktop
	Clipboard sap.Clipboard
}

// Automation builds a fresh orchestrator for every run.
type Automation struct {
	cfg       *config.Config
	logger    *slog.Logger
	locator   sap.EngineLocator
	launcher  sap.Launcher
	desktop   sap.Desktop
	clipboard sap.Clipboard
}

func New(cfg *config.Config, opts Options) *Automation {
	a := &Automation{
		cfg:       cfg,
		logger:    opts.Logger,
		locator:   opts.Locator,
		launcher:  opts.Launcher,
		desktop:   opts.Desktop,
		clipboard: opts.Clipboard,
	}
	if a.logger == nil {
		a.logger = logging.Discard()
	}
	if a.locator == nil {
		a.locator = scripting.Locator{}
	}
	if a.launcher == nil {
		a.launcher = sap.ExecLauncher{}
	}
	if a.desktop == nil {
		a.desktop = uia.NewDesktop()
	}
	if a.clipboard == nil {
		a.clipboard = clipboard.New()
	}
	return a
}

// Credentials returns the login taken from settings.
func (a *Automation) Credentials() sap.Credentials {
	return sap.Credentials{
		Username: a.cfg.SAP.Username,
		Password: a.cfg.SAP.Password,
		Client:   a.cfg.SAP.Client,
		Language: a.cfg.SAP.Language,
	}
}

// Orchestrator wires every collaborator from settings.
func (a *Automation) Orchestrator() (*sap.Orchestrator, error) {
	cfg := a.cfg
	policy, err := sap.ParseNavigationPolicy(cfg.Navigation.Policy)
	if err != nil {
		return nil, &sap.Error{Kind: sap.KindConfig, Msg: "navigation policy", Err: err}
	}

	zucrmDialog, err := sap.NewExportDialog(cfg.ZucrmExportDir(), a.logger)
	if err != nil {
		return nil, err
	}
	iw59Dialog, err := sap.NewExportDialog(cfg.Iw59ExportDir(), a.logger)
	if err != nil {
		return nil, err
	}
	zucrmWatcher := sap.NewExportWatcher(sap.WatcherConfig{
		Dir:     zucrmDialog.Dir(),
		Pattern: cfg.Export.ZucrmGlob,
		Timeout: cfg.ExportTimeout(),
	}, a.logger)
	iw59Watcher := sap.NewExportWatcher(sap.WatcherConfig{
		Dir:     iw59Dialog.Dir(),
		Pattern: cfg.Export.Iw59Glob,
		Timeout: cfg.ExportTimeout(),
	}, a.logger)

	var archiver sap.Archiver
	if cfg.Export.Archive {
		compression, err := archive.ParseCompression(cfg.Export.ArchiveCompression)
		if err != nil {
			return nil, &sap.Error{Kind: sap.KindConfig, Msg: "archive compression", Err: err}
		}
		archiver = archive.New(cfg.ArchiveExportDir(), compression)
	}

	credentials := a.Credentials()
	logonUI := sap.NewLogonAutomation(sap.LogonAutomationConfig{}, a.desktop, a.logger)
	client := sap.NewClient(sap.ClientConfig{
		ServerName:      cfg.SAP.ServerName,
		ConnectionName:  cfg.SAP.ConnectionName,
		LogonExecutable: cfg.SAP.LogonExecutable,
		Credentials:     credentials,
		StartupTimeout:  cfg.StartupTimeout(),
	}, a.locator, a.launcher, logonUI, a.logger)

	return sap.NewOrchestrator(sap.OrchestratorDeps{
		Credentials: credentials,
		Connector:   client,
		Zucrm: sap.NewZucrmRunner(sap.ZucrmConfig{
			Transaction:     cfg.Transactions.Zucrm,
			QueryType:       cfg.Transactions.QueryType,
			Variant:         cfg.Transactions.Variant,
			FallbackPattern: cfg.FallbackPattern(),
		}, zucrmWatcher, zucrmDialog, a.logger),
		Notes:     notes.NewExtractor(a.logger),
		Navigator: sap.NewNavigator(policy, cfg.Navigation.MaxPresses, a.logger),
		Iw59:      sap.NewIw59Runner(sap.Iw59Config{Transaction: cfg.Transactions.Iw59}, iw59Watcher, iw59Dialog, a.clipboard, archiver, a.logger),
		Logger:    a.logger,
	}), nil
}

// Run executes one run on a COM-initialized OS thread.
func (a *Automation) Run(ctx context.Context, cmd sap.RunCommand, observe sap.Observer) (sap.RunResult, error) {
	orch, err := a.Orchestrator()
	if err != nil {
		return sap.RunResult{}, err
	}
	if observe != nil {
		orch = orch.WithObserver(observe)
	}
	var result sap.RunResult
	err = scripting.WithCOM(func() error {
		var runErr error
		result, runErr = orch.Run(ctx, cmd)
		return runErr
	})
	return result, err
}
