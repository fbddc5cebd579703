// SPDX-License-Identifier: MPL-2.0

// Package issue provides user-facing error types for the nbrun CLI.
//
// Errors that reach the user carry an operation ("load notebook",
// "start kernel"), the resource involved (usually a file path), and
// suggestions for how to fix the problem. The --debug flag expands the
// underlying error chain.
package issue
