// SPDX-License-Identifier: MPL-2.0

// Package kernel launches Jupyter kernels and executes code against them.
//
// It mirrors the split of the Jupyter client stack: Manager owns the
// kernel process lifecycle (connection file, launch, interrupt, kill)
// and Client owns the messaging channels (shell, iopub, control) over
// ZeroMQ, speaking wire protocol v5.3. nbrun only ever runs one kernel
// and executes one cell at a time.
package kernel
