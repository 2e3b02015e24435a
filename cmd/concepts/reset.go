package main

import (
	"fmt"
	"io"

	"github.com/danielpatrickdp/concept-arbiter/internal/ledger"
	"github.com/spf13/cobra"
)

// #region reset-cmd
// newResetUsageCmd creates the 'reset-usage' command.
func newResetUsageCmd(configPath *string) *cobra.Command {
	var namespace string

	cmd := &cobra.Command{
		Use:   "reset-usage",
		Short: "Zero the device and example usage counters",
		Long: `Zero the usage counters so every device and example counts as unexplored
again. Each reset is recorded and shown by 'concepts usage'.`,
		Example: `  concepts reset-usage
  concepts reset-usage --namespace devices`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var namespaces []string
			switch namespace {
			case "all":
				namespaces = []string{ledger.NamespaceDevices, ledger.NamespaceExamples}
			case ledger.NamespaceDevices, ledger.NamespaceExamples:
				namespaces = []string{namespace}
			default:
				return fmt.Errorf("unknown namespace %q (want devices, examples or all)", namespace)
			}
			return runResetUsage(cmd.OutOrStdout(), *configPath, namespaces)
		},
	}

	cmd.Flags().StringVar(&namespace, "namespace", "all", "Namespace to reset: devices, examples or all")
	return cmd
}

func runResetUsage(w io.Writer, configPath string, namespaces []string) error {
	s, err := openState(configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, ns := range namespaces {
		before := s.ledger.Stats(ns)
		s.ledger.Reset(ns, "manual")
		fmt.Fprintf(w, "reset %s: %d keys cleared\n", ns, before.Explored)
	}
	return nil
}

// #endregion reset-cmd
