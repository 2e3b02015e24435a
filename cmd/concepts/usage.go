package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/danielpatrickdp/concept-arbiter/internal/catalog"
	"github.com/danielpatrickdp/concept-arbiter/internal/ledger"
	"github.com/danielpatrickdp/concept-arbiter/internal/logging"
	"github.com/danielpatrickdp/concept-arbiter/internal/store"
	"github.com/spf13/cobra"
)

// #region usage-cmd

type usageReport struct {
	Devices    ledger.Stats           `json:"devices"`
	Examples   ledger.Stats           `json:"examples"`
	Rejections logging.RejectionStats `json:"rejections"`
	Resets     []store.ResetRecord    `json:"resets"`
	Overused   []string               `json:"overused"`
}

// newUsageCmd creates the 'usage' command.
func newUsageCmd(configPath *string) *cobra.Command {
	var jsonOut bool
	var resets int

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show device and example exploration plus rejection stats",
		Example: `  concepts usage
  concepts usage --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsage(cmd.OutOrStdout(), *configPath, resets, jsonOut)
		},
	}

	cmd.Flags().BoolVarP(&jsonOut, "json", "j", false, "Output as JSON")
	cmd.Flags().IntVar(&resets, "resets", 5, "Show N most recent resets per namespace")
	return cmd
}

func runUsage(w io.Writer, configPath string, resets int, jsonOut bool) error {
	s, err := openState(configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	rep := usageReport{
		Devices:  s.ledger.Stats(ledger.NamespaceDevices),
		Examples: s.ledger.Stats(ledger.NamespaceExamples),
		Overused: catalog.OverusedDevices(),
	}
	rep.Rejections, err = logging.Stats(s.store.DB())
	if err != nil {
		return err
	}
	for _, ns := range []string{ledger.NamespaceDevices, ledger.NamespaceExamples} {
		rs, err := s.store.ResetHistory(ns, resets)
		if err != nil {
			return err
		}
		rep.Resets = append(rep.Resets, rs...)
	}

	if jsonOut {
		return printJSON(w, rep)
	}
	printUsage(w, rep)
	return nil
}

// #endregion usage-cmd

// #region usage-output
func printUsage(w io.Writer, rep usageReport) {
	for _, st := range []ledger.Stats{rep.Devices, rep.Examples} {
		fmt.Fprintf(w, "%s: %d/%d explored (%.1f%%), %d unexplored\n",
			st.Namespace, st.Explored, st.Total, st.Percentage, st.Unexplored)
		if len(st.MostUsed) == 0 {
			continue
		}
		fmt.Fprintf(w, "  %-28s  %5s  %s\n", "Key", "Used", "Last Used")
		for _, u := range st.MostUsed {
			last := "—"
			if !u.LastUsedAt.IsZero() {
				last = u.LastUsedAt.Format("2006-01-02T15:04:05Z")
			}
			fmt.Fprintf(w, "  %-28s  %5d  %s\n", truncate(u.Key, 28), u.Count, last)
		}
	}

	if len(rep.Overused) > 0 {
		fmt.Fprintf(w, "Excluded as overused: %s\n", strings.Join(rep.Overused, ", "))
	}

	fmt.Fprintf(w, "\nArbiter rejections: %d total, %d during refinement\n",
		rep.Rejections.Total, rep.Rejections.Refinement)
	if len(rep.Rejections.ByArbiter) > 0 {
		fmt.Fprintf(w, "  %-22s  %6s  %9s  %9s\n", "Arbiter", "Count", "Avg Score", "Threshold")
		for _, a := range rep.Rejections.ByArbiter {
			fmt.Fprintf(w, "  %-22s  %6d  %9.1f  %9.1f\n", a.Arbiter, a.Rejections, a.AverageScore, a.Threshold)
		}
	}

	if len(rep.Resets) > 0 {
		fmt.Fprintf(w, "\nRecent resets:\n")
		for _, r := range rep.Resets {
			fmt.Fprintf(w, "  %-10s  %4d keys  %s\n", r.Namespace, r.KeysCleared, r.CreatedAt.Format("2006-01-02T15:04:05Z"))
		}
	}
}

// #endregion usage-output
