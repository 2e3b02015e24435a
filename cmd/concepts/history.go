package main

import (
	"fmt"
	"io"

	"github.com/danielpatrickdp/concept-arbiter/internal/store"
	"github.com/spf13/cobra"
)

// #region history-cmd
// newHistoryCmd creates the 'history' command.
func newHistoryCmd(configPath *string) *cobra.Command {
	var last int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List persisted concepts, newest first",
		Example: `  concepts history
  concepts history --last 50 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if last < 1 {
				return fmt.Errorf("--last must be positive, got %d", last)
			}
			return runHistory(cmd.OutOrStdout(), *configPath, last, jsonOut)
		},
	}

	cmd.Flags().IntVar(&last, "last", 20, "Show N most recent concepts")
	cmd.Flags().BoolVarP(&jsonOut, "json", "j", false, "Output as JSON")
	return cmd
}

func runHistory(w io.Writer, configPath string, last int, jsonOut bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	recs, err := st.RecentConcepts(last)
	if err != nil {
		return err
	}
	if jsonOut {
		if recs == nil {
			recs = []store.ConceptRecord{}
		}
		return printJSON(w, recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(w, "no concepts found")
		return nil
	}
	printHistoryTable(w, recs)
	return nil
}

// #endregion history-cmd

// #region history-output
func printHistoryTable(w io.Writer, recs []store.ConceptRecord) {
	fmt.Fprintf(w, "%-8s  %-12s  %9s  %6s  %-14s  %-20s  %s\n",
		"ID", "Status", "Composite", "Orig", "Tone", "Time", "Headline")
	fmt.Fprintf(w, "%-8s+-%-12s+-%9s+-%6s+-%-14s+-%-20s+-%s\n",
		"--------", "------------", "---------", "------", "--------------", "--------------------", "------------------------------")
	for _, r := range recs {
		fmt.Fprintf(w, "%-8s  %-12s  %9.1f  %6.1f  %-14s  %-20s  %s\n",
			shortID(r.ID), r.Status, r.Composite, r.Originality, r.Tone,
			r.CreatedAt.Format("2006-01-02T15:04:05Z"), truncate(r.Headline, 60))
	}
}

// #endregion history-output
