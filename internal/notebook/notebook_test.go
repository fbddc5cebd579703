// SPDX-License-Identifier: MPL-2.0

package notebook

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleNotebook = `{
 "cells": [
  {
   "cell_type": "markdown",
   "metadata": {},
   "source": ["# Title\n", "Intro text."]
  },
  {
   "cell_type": "code",
   "execution_count": 1,
   "metadata": {"collapsed": false},
   "outputs": [
    {"name": "stdout", "output_type": "stream", "text": ["hello\n"]}
   ],
   "source": ["print('hello')\n", "print('world')"]
  },
  {
   "cell_type": "code",
   "execution_count": null,
   "metadata": {},
   "outputs": [],
   "source": "   "
  },
  {
   "cell_type": "code",
   "execution_count": null,
   "metadata": {},
   "outputs": [],
   "source": "x = 1"
  }
 ],
 "metadata": {
  "kernelspec": {"display_name": "Python 3", "language": "python", "name": "python3"},
  "language_info": {"name": "python", "version": "3.11.4"}
 },
 "nbformat": 4,
 "nbformat_minor": 5
}`

func TestParse(t *testing.T) {
	nb, err := Parse([]byte(sampleNotebook))
	require.NoError(t, err)

	assert.Len(t, nb.Cells, 4)
	assert.Equal(t, 4, nb.NBFormat)
	assert.Equal(t, 5, nb.NBFormatMinor)

	assert.Equal(t, CellTypeMarkdown, nb.Cells[0].Type)
	assert.Equal(t, "# Title\nIntro text.", nb.Cells[0].Source)

	// Array and string source encodings both decode.
	assert.Equal(t, "print('hello')\nprint('world')", nb.Cells[1].Source)
	assert.Equal(t, "x = 1", nb.Cells[3].Source)
}

func TestParse_UnsupportedVersion(t *testing.T) {
	_, err := Parse([]byte(`{"cells": [], "nbformat": 3, "nbformat_minor": 0, "metadata": {}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported nbformat version 3")
}

func TestParse_NotJSON(t *testing.T) {
	_, err := Parse([]byte("not a notebook"))
	assert.Error(t, err)
}

func TestCodeCells(t *testing.T) {
	nb, err := Parse([]byte(sampleNotebook))
	require.NoError(t, err)

	code := nb.CodeCells()
	assert.Len(t, code, 3, "all code cells, blank included")

	runnable := nb.RunnableCells()
	require.Len(t, runnable, 2, "blank code cells are not runnable")
	assert.Equal(t, "print('hello')\nprint('world')", runnable[0].Source)
	assert.Equal(t, "x = 1", runnable[1].Source)
}

func TestKernelspec(t *testing.T) {
	nb, err := Parse([]byte(sampleNotebook))
	require.NoError(t, err)

	spec := nb.Kernelspec()
	assert.Equal(t, "python3", spec.Name)
	assert.Equal(t, "Python 3", spec.DisplayName)
	assert.Equal(t, "python", spec.Language)
}

func TestKernelspec_Missing(t *testing.T) {
	nb, err := Parse([]byte(`{"cells": [], "nbformat": 4, "nbformat_minor": 5, "metadata": {}}`))
	require.NoError(t, err)
	assert.Equal(t, Kernelspec{}, nb.Kernelspec())
}

func TestRoundTrip_PreservesUnknownFields(t *testing.T) {
	nb, err := Parse([]byte(sampleNotebook))
	require.NoError(t, err)

	out, err := json.Marshal(nb)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))

	// Notebook-level metadata survives.
	md := doc["metadata"].(map[string]any)
	assert.Contains(t, md, "language_info")

	// Cell-level outputs and execution_count survive.
	cells := doc["cells"].([]any)
	codeCell := cells[1].(map[string]any)
	assert.Equal(t, float64(1), codeCell["execution_count"])
	outputs := codeCell["outputs"].([]any)
	require.Len(t, outputs, 1)
	assert.Equal(t, "stream", outputs[0].(map[string]any)["output_type"])
}

func TestRoundTrip_EditedSource(t *testing.T) {
	nb, err := Parse([]byte(sampleNotebook))
	require.NoError(t, err)

	nb.Cells[3].Source = "x = 2\ny = x + 1\n"

	out, err := json.Marshal(nb)
	require.NoError(t, err)

	reread, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "x = 2\ny = x + 1\n", reread.Cells[3].Source)
}

func TestReadWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.ipynb")
	require.NoError(t, os.WriteFile(path, []byte(sampleNotebook), 0o644))

	nb, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, path, nb.Path)

	nb.Cells[1].Source = "print('edited')"
	require.NoError(t, nb.Save())

	reread, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "print('edited')", reread.Cells[1].Source)
	assert.Len(t, reread.Cells, 4)
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.ipynb"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load notebook")
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", []string{}},
		{"single line no newline", "x = 1", []string{"x = 1"}},
		{"single line with newline", "x = 1\n", []string{"x = 1\n"}},
		{"multi line", "a\nb\nc", []string{"a\n", "b\n", "c"}},
		{"blank interior line", "a\n\nb", []string{"a\n", "\n", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitLines(tt.in))
		})
	}
}
