// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"strings"

	"nbrun-cli/internal/notebook"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var (
	showCell     int
	showMarkdown bool

	showCmd = &cobra.Command{
		Use:   "show <notebook>",
		Short: "Show the source of code cells",
		Long: `Print the source of a notebook's code cells.

Without --cell, every code cell is printed with its 1-based number.
With --markdown, markdown cells are rendered between the code cells.`,
		Args: cobra.ExactArgs(1),
		RunE: runShow,
	}
)

func init() {
	showCmd.Flags().IntVarP(&showCell, "cell", "c", 0, "show only this code cell (1-based)")
	showCmd.Flags().BoolVarP(&showMarkdown, "markdown", "m", false, "also render markdown cells")
}

func runShow(cmd *cobra.Command, args []string) error {
	nb, err := notebook.Read(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, debug))
		return &ExitError{Code: ExitFailure, Err: err}
	}

	codeCells := nb.CodeCells()

	if showCell != 0 {
		if showCell < 1 || showCell > len(codeCells) {
			err := fmt.Errorf("cell %d not found (total code cells: %d)", showCell, len(codeCells))
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+err.Error())
			return &ExitError{Code: ExitFailure, Err: err}
		}
		fmt.Print(formatCell(showCell, codeCells[showCell-1].Source))
		return nil
	}

	if showMarkdown {
		return showWithMarkdown(nb)
	}

	for i, cell := range codeCells {
		fmt.Print(formatCell(i+1, cell.Source))
		fmt.Println(strings.Repeat("-", 40))
	}
	return nil
}

// showWithMarkdown interleaves rendered markdown cells with code cells
// in document order.
func showWithMarkdown(nb *notebook.Notebook) error {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return &ExitError{Code: ExitFailure, Err: err}
	}

	codeNum := 0
	for _, cell := range nb.Cells {
		switch cell.Type {
		case notebook.CellTypeCode:
			codeNum++
			fmt.Print(formatCell(codeNum, cell.Source))
			fmt.Println(strings.Repeat("-", 40))
		case notebook.CellTypeMarkdown:
			rendered, err := renderer.Render(cell.Source)
			if err != nil {
				// Fall back to the raw source if rendering fails.
				rendered = cell.Source + "\n"
			}
			fmt.Print(rendered)
		}
	}
	return nil
}

// formatCell formats one code cell with its header line.
func formatCell(num int, source string) string {
	var b strings.Builder
	header := fmt.Sprintf("--- Cell %d ---", num)
	b.WriteString("\n" + CellStyle.Render(header) + "\n\n")
	b.WriteString(source)
	if !strings.HasSuffix(source, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}
