// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for nbrun.
//
// This package implements the Cobra command hierarchy: the root command
// and the run, show, edit, and info subcommands. Business logic lives in
// the internal packages; command handlers parse flags, wire the kernel
// and notebook layers together, and format output.
package cmd
