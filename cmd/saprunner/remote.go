package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/antonkrylov/saprunner/internal/client"
	"github.com/antonkrylov/saprunner/internal/runstore"
)

func newRemoteCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Drive a saprunner api over gRPC",
	}
	cmd.AddCommand(newRemoteRunCmd(root))
	cmd.AddCommand(newRemoteGetCmd(root))
	cmd.AddCommand(newRemoteListCmd(root))
	return cmd
}

func (r *rootOptions) dial() (*client.RunClient, *client.Connection, error) {
	conn, err := r.connection()
	if err != nil {
		return nil, nil, err
	}
	c, err := client.DialRunService(conn.APIAddr, client.DialInsecure)
	if err != nil {
		return nil, nil, err
	}
	return c, conn, nil
}

func newRemoteRunCmd(root *rootOptions) *cobra.Command {
	var (
		start   string
		end     string
		runWait time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a run on the server and wait for it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Validate locally so bad input never reaches the server.
			if _, err := parseRange(start, end); err != nil {
				return err
			}
			if end == "" {
				end = start
			}
			c, _, err := root.dial()
			if err != nil {
				return err
			}
			defer c.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), runWait)
			defer cancel()
			rec, runID, err := c.Run(ctx, start, end)
			if err != nil {
				if runID != "" {
					return fmt.Errorf("run %s: %w", runID, err)
				}
				return err
			}
			printRun(cmd.OutOrStdout(), rec)
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day (YYYY-MM-DD, DD/MM/YYYY or DD.MM.YYYY)")
	cmd.Flags().StringVar(&end, "end", "", "last day; defaults to --start")
	cmd.Flags().DurationVar(&runWait, "wait", 15*time.Minute, "how long to wait for the run to finish")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func newRemoteGetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <run-id>",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, conn, err := root.dial()
			if err != nil {
				return err
			}
			defer c.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), conn.Timeout)
			defer cancel()
			rec, err := c.Get(ctx, args[0])
			if err != nil {
				return err
			}
			printRun(cmd.OutOrStdout(), rec)
			return nil
		},
	}
}

func newRemoteListCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, conn, err := root.dial()
			if err != nil {
				return err
			}
			defer c.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), conn.Timeout)
			defer cancel()
			runs, err := c.List(ctx, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tSTATUS\tSTATE\tRANGE\tNOTES\tCREATED")
			for _, rec := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s..%s\t%d\t%s\n",
					rec.ID, rec.Status, rec.State, rec.StartDate, rec.EndDate, rec.NotesCount,
					rec.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show (0 for all)")
	return cmd
}

func printRun(w io.Writer, rec *runstore.Run) {
	if rec == nil {
		fmt.Fprintln(w, "<nil run>")
		return
	}
	fmt.Fprintf(w, "Run %s\n", rec.ID)
	fmt.Fprintf(w, "  Status: %s (%s)\n", rec.Status, rec.State)
	fmt.Fprintf(w, "  Range: %s .. %s\n", rec.StartDate, rec.EndDate)
	fmt.Fprintf(w, "  ZUCRM export: %s\n", orNone(rec.ZucrmExport))
	fmt.Fprintf(w, "  IW59 export: %s\n", orNone(rec.Iw59Export))
	if rec.Iw59Archive != "" {
		fmt.Fprintf(w, "  IW59 archive: %s\n", rec.Iw59Archive)
	}
	fmt.Fprintf(w, "  Notes: %d\n", rec.NotesCount)
	fmt.Fprintf(w, "  Created: %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  Updated: %s\n", rec.UpdatedAt.Format(time.RFC3339))
	if rec.Error != "" {
		fmt.Fprintf(w, "  Error (%s): %s\n", rec.ErrorKind, rec.Error)
	}
	for _, ev := range rec.Events {
		fmt.Fprintf(w, "  - %s %s\n", ev.At.Format(time.RFC3339), ev.State)
	}
}

func orNone(v string) string {
	if v == "" {
		return "<none>"
	}
	return v
}
