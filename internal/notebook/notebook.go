// SPDX-License-Identifier: MPL-2.0

package notebook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"nbrun-cli/internal/issue"
)

// Cell type constants from the nbformat schema.
const (
	CellTypeCode     = "code"
	CellTypeMarkdown = "markdown"
	CellTypeRaw      = "raw"
)

type (
	// Cell is a single notebook cell. Fields other than cell_type and
	// source (outputs, execution_count, metadata, ...) are preserved
	// verbatim in extra.
	Cell struct {
		// Type is the cell type: "code", "markdown", or "raw".
		Type string
		// Source is the cell source text with newlines joined.
		Source string

		extra map[string]json.RawMessage
	}

	// Kernelspec identifies the kernel a notebook was authored against.
	Kernelspec struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
		Language    string `json:"language"`
	}

	// Notebook is an in-memory nbformat 4 document.
	Notebook struct {
		// Path is the file the notebook was read from. Not serialized.
		Path string

		// Cells holds all cells in document order.
		Cells []*Cell

		// NBFormat and NBFormatMinor are the nbformat schema version.
		NBFormat      int
		NBFormatMinor int

		// metadata is the notebook-level metadata object, preserved raw.
		metadata map[string]json.RawMessage

		extra map[string]json.RawMessage
	}
)

// IsCode reports whether the cell is a code cell.
func (c *Cell) IsCode() bool {
	return c.Type == CellTypeCode
}

// Blank reports whether the cell source is empty or whitespace only.
// Blank code cells are skipped during execution.
func (c *Cell) Blank() bool {
	return strings.TrimSpace(c.Source) == ""
}

// UnmarshalJSON decodes a cell, keeping unknown fields.
func (c *Cell) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if ct, ok := raw["cell_type"]; ok {
		if err := json.Unmarshal(ct, &c.Type); err != nil {
			return fmt.Errorf("cell_type: %w", err)
		}
		delete(raw, "cell_type")
	}

	if src, ok := raw["source"]; ok {
		text, err := decodeSource(src)
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		c.Source = text
		delete(raw, "source")
	}

	c.extra = raw
	return nil
}

// MarshalJSON encodes a cell, restoring preserved fields and writing
// the source as a list of lines the way nbformat does.
func (c *Cell) MarshalJSON() ([]byte, error) {
	raw := map[string]json.RawMessage{}
	for k, v := range c.extra {
		raw[k] = v
	}

	ct, err := json.Marshal(c.Type)
	if err != nil {
		return nil, err
	}
	raw["cell_type"] = ct

	src, err := json.Marshal(splitLines(c.Source))
	if err != nil {
		return nil, err
	}
	raw["source"] = src

	return json.Marshal(raw)
}

// decodeSource accepts the two source encodings nbformat allows:
// a plain string or a list of line strings.
func decodeSource(data []byte) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, nil
	}

	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return "", fmt.Errorf("expected string or list of strings: %w", err)
	}
	return strings.Join(lines, ""), nil
}

// splitLines splits text into lines keeping the trailing newline on each
// line, matching how nbformat serializes multi-line sources.
func splitLines(text string) []string {
	if text == "" {
		return []string{}
	}

	lines := strings.SplitAfter(text, "\n")
	// SplitAfter leaves a trailing empty element when text ends with \n.
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Read loads a notebook from path.
func Read(path string) (*Notebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("load notebook").
			WithResource(path).
			WithSuggestion("Check that the file exists and is readable").
			Wrap(err).
			BuildError()
	}

	nb, err := Parse(data)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("parse notebook").
			WithResource(path).
			WithSuggestion("Check that the file is a valid .ipynb document").
			Wrap(err).
			BuildError()
	}

	nb.Path = path
	return nb, nil
}

// Parse decodes notebook JSON.
func Parse(data []byte) (*Notebook, error) {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	nb := &Notebook{}

	if v, ok := raw["cells"]; ok {
		if err := json.Unmarshal(v, &nb.Cells); err != nil {
			return nil, fmt.Errorf("cells: %w", err)
		}
		delete(raw, "cells")
	}

	if v, ok := raw["nbformat"]; ok {
		if err := json.Unmarshal(v, &nb.NBFormat); err != nil {
			return nil, fmt.Errorf("nbformat: %w", err)
		}
		delete(raw, "nbformat")
	}
	if nb.NBFormat != 0 && nb.NBFormat != 4 {
		return nil, fmt.Errorf("unsupported nbformat version %d (want 4)", nb.NBFormat)
	}

	if v, ok := raw["nbformat_minor"]; ok {
		if err := json.Unmarshal(v, &nb.NBFormatMinor); err != nil {
			return nil, fmt.Errorf("nbformat_minor: %w", err)
		}
		delete(raw, "nbformat_minor")
	}

	if v, ok := raw["metadata"]; ok {
		if err := json.Unmarshal(v, &nb.metadata); err != nil {
			return nil, fmt.Errorf("metadata: %w", err)
		}
		delete(raw, "metadata")
	}

	nb.extra = raw
	return nb, nil
}

// MarshalJSON encodes the notebook document.
func (nb *Notebook) MarshalJSON() ([]byte, error) {
	raw := map[string]json.RawMessage{}
	for k, v := range nb.extra {
		raw[k] = v
	}

	cells, err := json.Marshal(nb.Cells)
	if err != nil {
		return nil, err
	}
	raw["cells"] = cells

	format := nb.NBFormat
	if format == 0 {
		format = 4
	}
	raw["nbformat"], _ = json.Marshal(format)
	raw["nbformat_minor"], _ = json.Marshal(nb.NBFormatMinor)

	metadata := nb.metadata
	if metadata == nil {
		metadata = map[string]json.RawMessage{}
	}
	md, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	raw["metadata"] = md

	return json.Marshal(raw)
}

// Save writes the notebook back to the file it was read from.
func (nb *Notebook) Save() error {
	if nb.Path == "" {
		return fmt.Errorf("notebook has no path")
	}
	return nb.WriteFile(nb.Path)
}

// WriteFile writes the notebook to path, using the single-space
// indentation nbformat emits.
func (nb *Notebook) WriteFile(path string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", " ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(nb); err != nil {
		return issue.WrapWithContext(err, "encode notebook", path)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return issue.WrapWithContext(err, "write notebook", path)
	}
	return nil
}

// CodeCells returns the code cells in document order.
func (nb *Notebook) CodeCells() []*Cell {
	var cells []*Cell
	for _, c := range nb.Cells {
		if c.IsCode() {
			cells = append(cells, c)
		}
	}
	return cells
}

// RunnableCells returns the non-blank code cells in document order.
// These are the cells 'nbrun run' executes, numbered 1-based.
func (nb *Notebook) RunnableCells() []*Cell {
	var cells []*Cell
	for _, c := range nb.Cells {
		if c.IsCode() && !c.Blank() {
			cells = append(cells, c)
		}
	}
	return cells
}

// Kernelspec returns the notebook's kernelspec metadata, or a zero value
// if the notebook does not declare one.
func (nb *Notebook) Kernelspec() Kernelspec {
	var spec Kernelspec
	if raw, ok := nb.metadata["kernelspec"]; ok {
		_ = json.Unmarshal(raw, &spec)
	}
	return spec
}
