// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// askContinue asks whether to keep running after a failed cell.
// Only an explicit yes continues; n, q, an empty answer, or EOF stop
// the run. The prompt goes to out (stderr in practice) so it stays
// visible when the report is redirected to a file.
func askContinue(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "\nContinue with next cell? (y/n/q): ")

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
