// SPDX-License-Identifier: MPL-2.0

// nbrun executes Jupyter notebooks sequentially from the command line.
package main

import cmd "nbrun-cli/cmd/nbrun"

func main() {
	cmd.Execute()
}
