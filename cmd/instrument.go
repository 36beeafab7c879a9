package cmd

import (
	"github.com/spf13/cobra"

	"zeitdieb.dev/pkg/zeitdieb/internal/domain"
	m "zeitdieb.dev/pkg/zeitdieb/internal/model"
)

var instrumentDiffFlag bool

// instrumentCmd represents the instrument command.
var instrumentCmd = newInstrumentCmd()

func newInstrumentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instrument <file>",
		Short: "Show how a file is instrumented",
		Long:  "Print a Go file as zeitdieb rewrites it for profiling. Line numbers are unchanged.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workflow.Instrument(cmd.Context(), domain.InstrumentArgs{
				File: m.Path(args[0]),
				Diff: instrumentDiffFlag,
			})
		},
	}

	cmd.Flags().BoolVar(&instrumentDiffFlag, "diff", false, "print a unified diff against the original")

	return cmd
}

func init() {
	rootCmd.AddCommand(instrumentCmd)
}
