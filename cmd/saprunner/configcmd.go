package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/antonkrylov/saprunner/internal/config"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit saprunner settings",
	}
	cmd.AddCommand(newConfigShowCmd(root))
	cmd.AddCommand(newConfigInitCmd(root))
	cmd.AddCommand(newConfigSetContextCmd(root))
	return cmd
}

func newConfigShowCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.settings()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg.Redacted())
		},
	}
}

func newConfigInitCmd(root *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file populated with defaults",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(root.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", root.configPath)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			cfg := &config.Config{}
			if err := cfg.ApplyDefaults(); err != nil {
				return err
			}
			if err := cfg.Save(root.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", root.configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigSetContextCmd(root *rootOptions) *cobra.Command {
	var (
		server  string
		timeout int
		use     bool
	)
	cmd := &cobra.Command{
		Use:   "set-context <name>",
		Short: "Add or update a remote api context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return errors.New("context name is required")
			}
			if strings.TrimSpace(server) == "" {
				return errors.New("--server is required")
			}
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = &config.Config{}
			}
			if cfg.Contexts == nil {
				cfg.Contexts = map[string]*config.Context{}
			}
			cfg.Contexts[name] = &config.Context{Server: server, TimeoutSeconds: timeout}
			if use || cfg.CurrentContext == "" {
				cfg.CurrentContext = name
			}
			if err := cfg.Save(root.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "context %s -> %s\n", name, server)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "RunService gRPC address (host:port)")
	cmd.Flags().IntVar(&timeout, "timeout-seconds", 0, "default call timeout for this context")
	cmd.Flags().BoolVar(&use, "use", false, "make this the current context")
	return cmd
}
