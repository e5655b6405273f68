package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/antonkrylov/saprunner/internal/client"
	"github.com/antonkrylov/saprunner/internal/config"
)

type rootOptions struct {
	apiAddr     string
	timeout     time.Duration
	configPath  string
	contextName string
	logJSON     bool
}

// connection resolves where remote commands talk to.
func (r *rootOptions) connection() (*client.Connection, error) {
	return client.ResolveConnection(r.configPath, r.contextName, r.apiAddr, r.timeout)
}

// settings loads the local automation settings with environment overrides.
func (r *rootOptions) settings() (*config.Config, error) {
	return config.Resolve(r.configPath, os.LookupEnv)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "saprunner",
		Short:         "Run the ZUCRM_039 and IW59 SAP GUI exports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultConfigPath(), "path to saprunner settings (default $HOME/.saprunner/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.contextName, "context", "", "remote context name within the config (overrides currentContext)")
	rootCmd.PersistentFlags().StringVar(&opts.apiAddr, "api-addr", "", "RunService gRPC endpoint for remote commands (overrides config)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "remote call timeout; defaults to config or 15s")
	rootCmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "emit logs as JSON")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newNotesCmd())
	rootCmd.AddCommand(newRemoteCmd(opts))
	rootCmd.AddCommand(newDoctorCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	return rootCmd
}
