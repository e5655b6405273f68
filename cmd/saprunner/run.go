package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/antonkrylov/saprunner/internal/api"
	"github.com/antonkrylov/saprunner/internal/app"
	"github.com/antonkrylov/saprunner/internal/config"
	"github.com/antonkrylov/saprunner/internal/logging"
	"github.com/antonkrylov/saprunner/internal/sap"
)

type runFlags struct {
	start string
	end   string
	tui   bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run both exports on this machine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runCmd, err := parseRange(flags.start, flags.end)
			if err != nil {
				return err
			}
			cfg, err := root.settings()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := promptPassword(cfg, os.Stdin, cmd.ErrOrStderr()); err != nil {
				return err
			}

			// The TUI owns the terminal, so logs only go to the log file then.
			var stderr io.Writer = cmd.ErrOrStderr()
			if flags.tui {
				stderr = io.Discard
			}
			logger, closer, err := logging.New(logging.Options{
				Level:  cfg.Log.Level,
				JSON:   root.logJSON || cfg.Log.JSON,
				File:   cfg.Log.File,
				Stderr: stderr,
			})
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithRequestID(ctx, logging.NewRequestID())

			automation := app.New(cfg, app.Options{Logger: logger})
			var result sap.RunResult
			if flags.tui {
				result, err = runWithProgress(ctx, automation, runCmd)
			} else {
				result, err = automation.Run(ctx, runCmd, func(_ context.Context, s sap.State) {
					fmt.Fprintf(cmd.ErrOrStderr(), "state: %s\n", s)
				})
			}
			if err != nil {
				return fmt.Errorf("%s: %w", sap.KindOf(err), err)
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.start, "start", "", "first day (YYYY-MM-DD, DD/MM/YYYY or DD.MM.YYYY)")
	cmd.Flags().StringVar(&flags.end, "end", "", "last day; defaults to --start")
	cmd.Flags().BoolVar(&flags.tui, "tui", false, "show an interactive progress view")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func parseRange(start, end string) (sap.RunCommand, error) {
	if strings.TrimSpace(end) == "" {
		end = start
	}
	from, err := api.ParseDate(start)
	if err != nil {
		return sap.RunCommand{}, fmt.Errorf("--start: %w", err)
	}
	to, err := api.ParseDate(end)
	if err != nil {
		return sap.RunCommand{}, fmt.Errorf("--end: %w", err)
	}
	cmd := sap.RunCommand{StartDate: from, EndDate: to}
	return cmd, cmd.Validate()
}

// promptPassword asks for SAP_PASSWORD on a terminal when the settings lack it.
func promptPassword(cfg *config.Config, in *os.File, out io.Writer) error {
	if cfg.SAP.Password != "" {
		return nil
	}
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return cfg.ValidateCredentials()
	}
	if strings.TrimSpace(cfg.SAP.Username) == "" {
		return cfg.ValidateCredentials()
	}
	fmt.Fprintf(out, "SAP password for %s: ", cfg.SAP.Username)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	cfg.SAP.Password = string(pw)
	return cfg.ValidateCredentials()
}

func runWithProgress(ctx context.Context, automation *app.Automation, cmd sap.RunCommand) (sap.RunResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan tea.Msg, 16)
	go func() {
		result, err := automation.Run(ctx, cmd, func(_ context.Context, s sap.State) {
			events <- stateMsg{state: s, at: time.Now()}
		})
		events <- doneMsg{result: result, err: err}
	}()

	final, err := tea.NewProgram(newProgressModel(events, cancel), tea.WithContext(ctx)).Run()
	if m, ok := final.(progressModel); ok && m.done != nil {
		return m.done.result, m.done.err
	}
	// The program ended early; wait for the run to observe the cancellation.
	cancel()
	for msg := range events {
		if done, ok := msg.(doneMsg); ok {
			return done.result, done.err
		}
	}
	if err == nil {
		err = errors.New("progress view closed before the run finished")
	}
	return sap.RunResult{}, err
}

func printResult(w io.Writer, r sap.RunResult) {
	fmt.Fprintf(w, "zucrm_export_file=%s\n", r.FirstExport)
	if r.SecondExportDetected() {
		fmt.Fprintf(w, "iw59_export_file=%s\n", r.SecondExport)
	} else {
		fmt.Fprintln(w, "iw59_export_file=")
	}
	if r.SecondArchive != "" {
		fmt.Fprintf(w, "iw59_archive_file=%s\n", r.SecondArchive)
	}
	fmt.Fprintf(w, "notes_count=%d\n", r.NotesCount)
	fmt.Fprintf(w, "navigation_presses=%d\n", r.Navigation.Presses)
	if r.Navigation.Degraded() {
		fmt.Fprintf(w, "navigation_warning=%s\n", r.Navigation.Reason)
	}
}
