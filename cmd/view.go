package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"zeitdieb.dev/pkg/zeitdieb/internal/controller"
	"zeitdieb.dev/pkg/zeitdieb/internal/domain"
	m "zeitdieb.dev/pkg/zeitdieb/internal/model"
)

var viewStatsFlag bool
var viewInteractiveFlag bool

// viewCmd represents the view command.
var viewCmd = newViewCmd()

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view <profile>",
		Short: "Show a saved profile",
		Long: `Show a profile saved with "zeitdieb run --save", optionally in another
format. The source recorded at profiling time is shown even if the files
changed since.

` + formatHelp,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workflow.View(cmd.Context(), domain.ViewArgs{
				DisplayArgs: domain.DisplayArgs{
					Format:      viper.GetString(formatConfigKey),
					Color:       viper.GetBool(colorConfigKey),
					Stats:       viewStatsFlag,
					Interactive: viewInteractiveFlag && controller.IsTTY(cmd.OutOrStdout()),
				},
				Profile: m.Path(args[0]),
			})
		},
	}

	cmd.Flags().BoolVar(&viewStatsFlag, "stats", false, "also print per-line statistics")
	cmd.Flags().BoolVarP(&viewInteractiveFlag, "interactive", "i", false, "open the report in a pager when attached to a terminal")

	return cmd
}

func init() {
	rootCmd.AddCommand(viewCmd)
}
