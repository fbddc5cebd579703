// SPDX-License-Identifier: MPL-2.0

// Package notebook reads and writes Jupyter notebook (.ipynb) files.
//
// Only the fields nbrun works with (cell type and source, kernelspec
// metadata) are modeled as Go types; everything else, including stored
// cell outputs, is carried as raw JSON so a read-modify-write cycle
// preserves the rest of the document.
package notebook
