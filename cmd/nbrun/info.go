// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"nbrun-cli/internal/notebook"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <notebook>",
	Short: "Show notebook summary information",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	path := args[0]

	stat, err := os.Stat(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+err.Error())
		return &ExitError{Code: ExitFailure, Err: err}
	}

	nb, err := notebook.Read(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, debug))
		return &ExitError{Code: ExitFailure, Err: err}
	}

	codeCells := len(nb.CodeCells())
	runnable := len(nb.RunnableCells())

	fmt.Printf("%s %s\n", SubtitleStyle.Render("Notebook:"), path)
	fmt.Printf("%s %s\n", SubtitleStyle.Render("Last modified:"), stat.ModTime().Format("2006-01-02 15:04:05"))
	fmt.Printf("%s %d\n", SubtitleStyle.Render("Total cells:"), len(nb.Cells))
	fmt.Printf("%s %d (%d runnable)\n", SubtitleStyle.Render("Code cells:"), codeCells, runnable)
	fmt.Printf("%s %d.%d\n", SubtitleStyle.Render("Notebook format:"), nb.NBFormat, nb.NBFormatMinor)

	if spec := nb.Kernelspec(); spec.Name != "" {
		display := spec.DisplayName
		if display == "" {
			display = spec.Name
		}
		fmt.Printf("%s %s (%s)\n", SubtitleStyle.Render("Kernel:"), display, spec.Name)
		if spec.Language != "" {
			fmt.Printf("%s %s\n", SubtitleStyle.Render("Language:"), spec.Language)
		}
	}
	return nil
}
