package cmd

import (
	"github.com/spf13/cobra"

	"zeitdieb.dev/pkg/zeitdieb/internal/domain"
	m "zeitdieb.dev/pkg/zeitdieb/internal/model"
)

var listFilterFlag string

// listCmd represents the list command.
var listCmd = newListCmd()

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [dir]",
		Short: "List traceable functions",
		Long:  "List the functions, methods and closures of the module containing dir, by target name.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := m.Path(".")
			if len(args) == 1 {
				dir = m.Path(args[0])
			}

			return workflow.List(cmd.Context(), domain.ListArgs{Dir: dir, Filter: listFilterFlag})
		},
	}

	cmd.Flags().StringVar(&listFilterFlag, "filter", "", "only show targets containing this text")

	return cmd
}

func init() {
	rootCmd.AddCommand(listCmd)
}
