// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"nbrun-cli/internal/config"
	"nbrun-cli/internal/issue"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// debug enables verbose error chains and kernel protocol logging
	debug bool
	// cfgFile allows specifying a custom config file
	cfgFile string

	// cfg is the loaded configuration, available to all subcommands.
	cfg = config.DefaultConfig()

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "nbrun",
		Short: "A sequential Jupyter notebook runner",
		Long: TitleStyle.Render("nbrun") + SubtitleStyle.Render(" - A sequential Jupyter notebook runner") + `

nbrun executes the code cells of a Jupyter notebook one at a time
against a live kernel, streaming output as it arrives. Companion
commands inspect, edit, and summarize notebook cells without leaving
the terminal.

` + SubtitleStyle.Render("Examples:") + `
  nbrun run analysis.ipynb                 Execute every code cell
  nbrun run analysis.ipynb -t 3600         One hour per cell
  nbrun run analysis.ipynb -o run.log      Save the report to a file
  nbrun run analysis.ipynb --cells 1,3-5   Execute selected cells
  nbrun show analysis.ipynb --cell 2       Print one cell's source
  nbrun edit analysis.ipynb --cell 2       Edit a cell in $EDITOR
  nbrun info analysis.ipynb                Summarize the notebook`,
	}
)

func init() {
	cobra.OnInitialize(initRootConfig)

	// Global flags
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output and full error chains")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/nbrun/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(infoCmd)
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// initRootConfig reads in config file and ENV variables if set.
func initRootConfig() {
	if cfgFile != "" {
		config.SetConfigFilePathOverride(cfgFile)
	}

	loaded, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, debug))
	}
	if loaded != nil {
		cfg = loaded
	}

	// Apply debug from config if not set via flag
	if !debug {
		debug = cfg.Debug
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In debug mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// newLogger builds the protocol logger. Quiet unless --debug is set.
func newLogger() *log.Logger {
	if !debug {
		return log.New(io.Discard)
	}
	logger := log.New(os.Stderr)
	logger.SetLevel(log.DebugLevel)
	logger.SetPrefix("nbrun")
	return logger
}
