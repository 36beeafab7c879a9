// Package cmd provides the root command and CLI setup for zeitdieb.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"zeitdieb.dev/pkg/zeitdieb/internal/adapter"
	"zeitdieb.dev/pkg/zeitdieb/internal/controller"
	"zeitdieb.dev/pkg/zeitdieb/internal/domain"
)

var goFileAdapter adapter.GoFileAdapter
var fsAdapter adapter.SourceFSAdapter
var profileStore adapter.ProfileStore
var runnerAdapter adapter.GoRunnerAdapter
var orchestrator domain.Orchestrator
var instrumenter domain.Instrumenter
var workflow domain.Workflow
var ui controller.UI
var pager controller.UI

// formatFlag is the display format shared by commands that show reports.
var formatFlag string

// colorFlag enables ANSI colored timing tiers.
var colorFlag bool

var verboseFlag bool
var logFileFlag string
var dumpConfigFlag bool

func init() {
	ui = controller.NewUI(rootCmd, false)
	pager = controller.NewUI(rootCmd, true)
	goFileAdapter = adapter.NewLocalGoFileAdapter()
	fsAdapter = adapter.NewLocalSourceFSAdapter()
	profileStore = adapter.NewProfileStore()
	runnerAdapter = adapter.NewLocalGoRunnerAdapter(0)
	orchestrator = domain.NewOrchestrator(fsAdapter, goFileAdapter, runnerAdapter)
	instrumenter = domain.NewInstrumenter(goFileAdapter)
	workflow = domain.NewWorkflow(
		fsAdapter,
		profileStore,
		ui,
		pager,
		orchestrator,
		instrumenter,
	)
}

const formatHelp = `Format specs:
  5          five digit seconds column (default)
  3b         three character bar, scaled to the slowest line
  6bl        bar on a logarithmic scale
  5:0.1,0.01 color tiers above 0.1s and 0.01s`

const targetsHelp = `Targets name callables as module-path:Callable:
  main:work                  function work in package main
  example.com/app/db:DB.Get  method Get of type DB
  main:{load,save}           braces expand to alternatives`

const rootLongDescription = `Zeitdieb is a line-level execution time profiler for Go. It rewrites a
copy of your package so that every source line of the selected functions is
timed, runs it, and prints the source annotated with the time spent per line.

` + targetsHelp + `

` + formatHelp

const runLongDescription = `Profile a package (default: the current directory). Arguments after
"--" are passed to the program or, with --test, to go test.

` + targetsHelp

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "zeitdieb",
		Short:        "Line-level execution time profiler for Go",
		Long:         rootLongDescription,
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogger(logFileFlag, verboseFlag)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dumpConfigFlag {
				return dumpConfig(cmd)
			}

			return cmd.Help()
		},
	}

	configureRootFlags(cmd)

	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVarP(
			&formatFlag, formatFlagName, "f", defaultFormat,
			"display format, e.g. 5, 3b or 6bl:0.1,0.01",
		)
	bindFlagToConfig(cmd.PersistentFlags().Lookup(formatFlagName), formatConfigKey)

	cmd.PersistentFlags().BoolVar(&colorFlag, colorFlagName, defaultColor, "color timings by tier")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(colorFlagName), colorConfigKey)

	cmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "log at debug level")
	cmd.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "log file path (default from "+logFilenameKey+")")
	cmd.Flags().BoolVar(&dumpConfigFlag, "dump-config", false, "print the effective configuration as YAML")
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

func dumpConfig(cmd *cobra.Command) error {
	out, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	cmd.Print(string(out))

	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// A failed profiled program makes zeitdieb exit with the program's status.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	var exitErr *domain.ExitError
	if errors.As(err, &exitErr) && exitErr.Code > 0 {
		os.Exit(exitErr.Code)
	}

	os.Exit(1)
}
