package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/antonkrylov/saprunner/internal/config"
	"github.com/antonkrylov/saprunner/internal/sap/scripting"
)

func newDoctorCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Print local diagnostic information for troubleshooting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			exe, _ := os.Executable()
			fmt.Fprintf(out, "saprunner_executable=%s\n", strings.TrimSpace(exe))
			fmt.Fprintf(out, "platform=%s/%s\n", runtime.GOOS, runtime.GOARCH)

			fmt.Fprintf(out, "config_path=%s\n", root.configPath)
			raw, err := config.Load(root.configPath)
			if err != nil {
				fmt.Fprintf(out, "config_error=%s\n", err.Error())
				return nil
			}
			fmt.Fprintf(out, "config_present=%t\n", raw != nil)

			cfg, err := root.settings()
			if err != nil {
				fmt.Fprintf(out, "settings_error=%s\n", err.Error())
				return nil
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(out, "settings_invalid=%s\n", strings.ReplaceAll(err.Error(), "\n", "; "))
			}
			if missing := cfg.MissingCredentials(); len(missing) > 0 {
				fmt.Fprintf(out, "credentials_missing=%s\n", strings.Join(missing, ","))
			} else {
				fmt.Fprintln(out, "credentials_present=true")
			}

			checkDir(out, "zucrm_export_dir", cfg.ZucrmExportDir())
			checkDir(out, "iw59_export_dir", cfg.Iw59ExportDir())
			if cfg.Export.Archive {
				checkDir(out, "archive_dir", cfg.ArchiveExportDir())
			}
			if _, err := os.Stat(cfg.SAP.LogonExecutable); err != nil {
				fmt.Fprintf(out, "logon_executable_missing=%s\n", cfg.SAP.LogonExecutable)
			} else {
				fmt.Fprintf(out, "logon_executable=%s\n", cfg.SAP.LogonExecutable)
			}

			err = scripting.WithCOM(func() error {
				engine, err := scripting.Locator{}.Locate()
				if err != nil {
					return err
				}
				conns, err := engine.Connections()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "scripting_engine=attached")
				for _, c := range conns {
					fmt.Fprintf(out, "open_connection=%s\n", c.Description())
				}
				return nil
			})
			if err != nil {
				fmt.Fprintf(out, "scripting_engine_error=%s\n", err.Error())
			}

			if raw != nil {
				fmt.Fprintf(out, "current_context=%s\n", strings.TrimSpace(raw.CurrentContext))
				names := make([]string, 0, len(raw.Contexts))
				for k := range raw.Contexts {
					names = append(names, k)
				}
				sort.Strings(names)
				for _, name := range names {
					c := raw.Contexts[name]
					if c == nil {
						continue
					}
					fmt.Fprintf(out, "context=%s api=%s timeout=%d\n", name, strings.TrimSpace(c.Server), c.TimeoutSeconds)
				}
			}
			return nil
		},
	}
}

func checkDir(out io.Writer, name, dir string) {
	info, err := os.Stat(dir)
	switch {
	case err != nil:
		fmt.Fprintf(out, "%s=%s (missing, created on first run)\n", name, dir)
	case !info.IsDir():
		fmt.Fprintf(out, "%s=%s (not a directory)\n", name, dir)
	default:
		probe, err := os.CreateTemp(dir, ".saprunner-probe-*")
		if err != nil {
			fmt.Fprintf(out, "%s=%s (not writable: %v)\n", name, dir, err)
			return
		}
		probe.Close()
		os.Remove(filepath.Clean(probe.Name()))
		fmt.Fprintf(out, "%s=%s\n", name, dir)
	}
}
