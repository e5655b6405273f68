package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/antonkrylov/saprunner/internal/clipboard"
	"github.com/antonkrylov/saprunner/internal/notes"
)

func newNotesCmd() *cobra.Command {
	var (
		countOnly bool
		copyLines bool
	)
	cmd := &cobra.Command{
		Use:   "notes <export.xlsx>",
		Short: "Print the note numbers a ZUCRM_039 export would feed into IW59",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := notes.NewExtractor(nil).ExtractNotes(args[0])
			if err != nil {
				return err
			}
			if copyLines {
				if err := clipboard.New().CopyLines(found); err != nil {
					return err
				}
			}
			if countOnly {
				fmt.Fprintln(cmd.OutOrStdout(), len(found))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(found, "\n"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&countOnly, "count", false, "print only the number of notes")
	cmd.Flags().BoolVar(&copyLines, "copy", false, "also place the notes on the clipboard")
	return cmd
}
