package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
	"github.com/danielpatrickdp/concept-arbiter/internal/pipeline"
	"github.com/spf13/cobra"
)

// #region generate-cmd
// newGenerateCmd creates the 'generate' command.
func newGenerateCmd(configPath *string) *cobra.Command {
	var (
		tone     string
		count    int
		refine   bool
		jsonOut  bool
		showBody bool
	)

	cmd := &cobra.Command{
		Use:   "generate [brief]",
		Short: "Generate ranked concepts for a brief",
		Long: `Generate a batch of concepts for the brief, score them, drop near-duplicates,
repair weak candidates and print the top results, best first.`,
		Example: `  concepts generate "eco-friendly running shoes"
  concepts generate "B2B invoicing app" --tone analytical --count 5
  concepts generate "luxury watch" --refine=false --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := concept.ParseTone(tone)
			if err != nil {
				return err
			}
			brief := concept.Brief{
				Query:            strings.Join(args, " "),
				Tone:             t,
				Count:            count,
				EnableRefinement: refine,
			}
			return runGenerate(cmd, *configPath, brief, jsonOut, showBody)
		},
	}

	cmd.Flags().StringVarP(&tone, "tone", "t", string(concept.ToneCreative), "Tone of voice")
	cmd.Flags().IntVarP(&count, "count", "n", concept.MinOutput, "Number of concepts to return (at least 3)")
	cmd.Flags().BoolVar(&refine, "refine", true, "Repair failing candidates and regenerate duplicates")
	cmd.Flags().BoolVarP(&jsonOut, "json", "j", false, "Output as JSON")
	cmd.Flags().BoolVar(&showBody, "full", false, "Print every concept in full")
	return cmd
}

func runGenerate(cmd *cobra.Command, configPath string, brief concept.Brief, jsonOut, full bool) error {
	a, err := openApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	res := a.orchestrator.Generate(ctx, brief)

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, res)
	}
	printResult(out, res, full)
	return nil
}

// #endregion generate-cmd

// #region generate-output
func printResult(w io.Writer, res pipeline.Result, full bool) {
	if len(res.Candidates) == 0 {
		fmt.Fprintf(w, "No concepts: %s\n", res.Reason)
		printStats(w, res.Stats)
		return
	}

	fmt.Fprintf(w, "%-4s  %-12s  %9s  %-20s  %s\n", "Rank", "Status", "Composite", "Device", "Headline")
	fmt.Fprintf(w, "%-4s+-%-12s+-%9s+-%-20s+-%s\n", "----", "------------", "---------", "--------------------", "------------------------------")
	for i, c := range res.Candidates {
		fmt.Fprintf(w, "%-4d  %-12s  %9.1f  %-20s  %s\n",
			i+1, c.Status, c.Composite(), truncate(c.Device.Name, 20), c.Headline())
	}
	if res.Reason != "" {
		fmt.Fprintf(w, "\nNote: %s\n", res.Reason)
	}

	if full {
		for i, c := range res.Candidates {
			fmt.Fprintf(w, "\n#%d  %s\n", i+1, shortID(c.ID))
			printCandidate(w, c)
		}
	}
	fmt.Fprintln(w)
	printStats(w, res.Stats)
}

func printCandidate(w io.Writer, c concept.Candidate) {
	fmt.Fprintf(w, "Visual:     %s\n", c.VisualDescription)
	for _, h := range c.Headlines {
		fmt.Fprintf(w, "Headline:   %s\n", h)
	}
	if c.Tagline != "" {
		fmt.Fprintf(w, "Tagline:    %s\n", c.Tagline)
	}
	if c.StrategicImpact != "" {
		fmt.Fprintf(w, "Impact:     %s\n", c.StrategicImpact)
	}
	fmt.Fprintf(w, "Device:     %s", c.Device.Name)
	if c.SecondaryDevice.ID != "" {
		fmt.Fprintf(w, " + %s", c.SecondaryDevice.Name)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Diversity:  %s (+%.0f)\n", c.DiversityStatus, c.DiversityBonus)
	fmt.Fprintf(w, "Iteration:  %d\n", c.Iteration)
	if failed := c.FailedCriteria(); len(failed) > 0 {
		fmt.Fprintf(w, "Failed:     %s\n", strings.Join(failed, ", "))
	}
	fmt.Fprintf(w, "Scores:\n")
	for _, name := range sortedScoreNames(c) {
		s := c.Scores[name]
		mark := "pass"
		if !s.Passed {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "  %-22s %5.1f  %s\n", name, s.Value, mark)
	}
	for _, n := range c.Notes {
		fmt.Fprintf(w, "  - %s\n", n)
	}
}

func sortedScoreNames(c concept.Candidate) []string {
	names := make([]string, 0, len(c.Scores))
	for name := range c.Scores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func printStats(w io.Writer, s pipeline.Stats) {
	fmt.Fprintf(w, "batch=%d parsed=%d errors=%d unparsable=%d duplicates=%d regenerated=%d repaired=%d\n",
		s.BatchWidth, s.Parsed, s.GenerationErrors, s.Unparsable, s.Duplicates, s.Regenerated, s.Repaired)
	fmt.Fprintf(w, "passed=%d needs_review=%d failed=%d persisted=%d elapsed=%s\n",
		s.Passed, s.NeedsReview, s.Failed, s.Persisted, s.Elapsed.Round(time.Millisecond))
}

// #endregion generate-output
