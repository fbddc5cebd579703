// SPDX-License-Identifier: MPL-2.0

// Package report writes the execution report for a notebook run.
//
// The report goes to exactly one sink: the console (styled) or a file
// (plain text, flushed line by line so a tail -f during a long run
// stays current). Raw kernel stream output is passed through untouched;
// tracebacks keep their coloring on the console and have ANSI escapes
// stripped in file mode.
package report
