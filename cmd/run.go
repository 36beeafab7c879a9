package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"zeitdieb.dev/pkg/zeitdieb/internal/controller"
	"zeitdieb.dev/pkg/zeitdieb/internal/domain"
	m "zeitdieb.dev/pkg/zeitdieb/internal/model"
)

var runTraceFlag string
var runParallelFlag uint
var runTimeoutFlag time.Duration
var runTestFlag bool
var runKeepFlag bool
var runSaveFlag string
var runStatsFlag bool
var runInteractiveFlag bool

// runCmd represents the run command.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [package] [-- args...]",
		Short: "Profile a package",
		Long:  runLongDescription,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, programArgs, err := splitRunArgs(args, cmd.ArgsLenAtDash())
			if err != nil {
				return err
			}

			timeout, err := parseTimeout(viper.GetString(runTimeoutConfigKey))
			if err != nil {
				return err
			}

			return workflow.Run(cmd.Context(), domain.RunArgs{
				DisplayArgs: domain.DisplayArgs{
					Format:      viper.GetString(formatConfigKey),
					Color:       viper.GetBool(colorConfigKey),
					Stats:       runStatsFlag,
					Interactive: runInteractiveFlag && controller.IsTTY(cmd.OutOrStdout()),
				},
				Dir:      dir,
				Args:     programArgs,
				Targets:  viper.GetString(traceConfigKey),
				Test:     runTestFlag,
				Keep:     runKeepFlag,
				Save:     m.Path(runSaveFlag),
				Parallel: viper.GetUint(runParallelConfigKey),
				Timeout:  timeout,
				Stdin:    cmd.InOrStdin(),
				Stdout:   cmd.OutOrStdout(),
				Stderr:   cmd.ErrOrStderr(),
			})
		},
	}

	configureRunFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configureRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&runTraceFlag, traceFlagName, "t", defaultTrace, "comma separated targets to trace (default: every function)")
	bindFlagToConfig(cmd.Flags().Lookup(traceFlagName), traceConfigKey)

	cmd.Flags().UintVarP(&runParallelFlag, runParallelFlagName, "p", defaultRunParallel, "number of files instrumented at once (0: one per CPU)")
	bindFlagToConfig(cmd.Flags().Lookup(runParallelFlagName), runParallelConfigKey)

	cmd.Flags().DurationVar(&runTimeoutFlag, runTimeoutFlagName, 0, "stop the profiled program after this duration (0: no limit)")
	bindFlagToConfig(cmd.Flags().Lookup(runTimeoutFlagName), runTimeoutConfigKey)

	cmd.Flags().BoolVar(&runTestFlag, "test", false, "profile the package tests instead of running it")
	cmd.Flags().BoolVar(&runKeepFlag, "keep", false, "keep the instrumented workspace")
	cmd.Flags().StringVar(&runSaveFlag, "save", "", "save the profile to this file for zeitdieb view")
	cmd.Flags().BoolVar(&runStatsFlag, "stats", false, "also print per-line statistics")
	cmd.Flags().BoolVarP(&runInteractiveFlag, "interactive", "i", false, "open the report in a pager when attached to a terminal")
}

// splitRunArgs separates the package directory from the program arguments
// following "--".
func splitRunArgs(args []string, dash int) (m.Path, []string, error) {
	own := args
	var rest []string

	if dash >= 0 {
		own, rest = args[:dash], args[dash:]
	}

	switch len(own) {
	case 0:
		return m.Path("."), rest, nil
	case 1:
		return m.Path(own[0]), rest, nil
	default:
		return "", nil, fmt.Errorf("expected one package, got %d; pass program arguments after --", len(own))
	}
}

// parseTimeout accepts Go durations and plain seconds, as config files
// often carry the latter.
func parseTimeout(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(value)
	if err == nil {
		return d, nil
	}

	if seconds, convErr := strconv.ParseInt(value, 10, 64); convErr == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid timeout %q: %w", value, err)
}
