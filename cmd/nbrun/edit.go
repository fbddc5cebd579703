// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"nbrun-cli/internal/issue"
	"nbrun-cli/internal/notebook"

	"github.com/spf13/cobra"
)

var (
	editCell int

	editCmd = &cobra.Command{
		Use:   "edit <notebook> --cell N",
		Short: "Edit the source of a code cell",
		Long: `Open a code cell's source in your editor and write the change back
to the notebook. Cell outputs and metadata are preserved.

The editor is taken from the 'editor' config key, then $EDITOR, then nano.`,
		Args: cobra.ExactArgs(1),
		RunE: runEdit,
	}
)

func init() {
	editCmd.Flags().IntVarP(&editCell, "cell", "c", 0, "code cell to edit (1-based)")
	_ = editCmd.MarkFlagRequired("cell")
}

func runEdit(cmd *cobra.Command, args []string) error {
	nb, err := notebook.Read(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, debug))
		return &ExitError{Code: ExitFailure, Err: err}
	}

	codeCells := nb.CodeCells()
	if editCell < 1 || editCell > len(codeCells) {
		err := fmt.Errorf("cell %d not found (total code cells: %d)", editCell, len(codeCells))
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+err.Error())
		return &ExitError{Code: ExitFailure, Err: err}
	}
	cell := codeCells[editCell-1]

	fmt.Printf("Editing cell %d of %s\n", editCell, args[0])

	newSource, err := editInTempFile(cell.Source, sourceExtension(nb))
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, debug))
		return &ExitError{Code: ExitFailure, Err: err}
	}

	if newSource == cell.Source {
		fmt.Println("No changes made.")
		return nil
	}

	cell.Source = newSource
	if err := nb.Save(); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, debug))
		return &ExitError{Code: ExitFailure, Err: err}
	}

	fmt.Println(SuccessStyle.Render("✓") + " Cell updated.")
	return nil
}

// editInTempFile round-trips source through the user's editor.
func editInTempFile(source, ext string) (string, error) {
	dir, err := os.MkdirTemp("", "nbrun-edit-*")
	if err != nil {
		return "", issue.WrapWithOperation(err, "create temp file for editing")
	}
	defer func() { _ = os.RemoveAll(dir) }()

	path := filepath.Join(dir, "cell"+ext)
	if err := os.WriteFile(path, []byte(source), 0o600); err != nil {
		return "", issue.WrapWithOperation(err, "write temp file for editing")
	}

	editor := resolveEditor()
	editorCmd := exec.Command(editor, path)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	if err := editorCmd.Run(); err != nil {
		return "", issue.NewErrorContext().
			WithOperation("run editor").
			WithResource(editor).
			WithSuggestion("Set the 'editor' config key or the $EDITOR environment variable").
			Wrap(err).
			BuildError()
	}

	edited, err := os.ReadFile(path)
	if err != nil {
		return "", issue.WrapWithOperation(err, "read edited cell")
	}
	return string(edited), nil
}

// resolveEditor picks the editor: config, then $EDITOR, then nano.
func resolveEditor() string {
	if cfg.Editor != "" {
		return cfg.Editor
	}
	if editor := os.Getenv("EDITOR"); editor != "" {
		return editor
	}
	return "nano"
}

// sourceExtension picks a temp-file extension from the notebook's
// kernel language so the editor gets syntax highlighting.
func sourceExtension(nb *notebook.Notebook) string {
	switch nb.Kernelspec().Language {
	case "python", "":
		return ".py"
	case "julia":
		return ".jl"
	case "R", "r":
		return ".r"
	default:
		return ".txt"
	}
}
