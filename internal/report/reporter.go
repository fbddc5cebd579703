// SPDX-License-Identifier: MPL-2.0

package report

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"nbrun-cli/internal/issue"

	"github.com/charmbracelet/lipgloss"
)

// separatorWidth matches the banner width of the report layout.
const separatorWidth = 60

// ansiEscapes matches CSI sequences so tracebacks read cleanly outside
// a terminal.
var ansiEscapes = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// Reporter writes the run report to one sink.
type Reporter struct {
	w      io.Writer
	file   *os.File
	styled bool
}

// NewConsole creates a styled reporter on stdout.
func NewConsole() *Reporter {
	return &Reporter{w: os.Stdout, styled: true}
}

// NewWriter creates an unstyled reporter on w. Used in tests.
func NewWriter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// NewFile creates a plain-text reporter writing to path, truncating any
// existing file.
func NewFile(path string) (*Reporter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, issue.WrapWithContext(err, "open output file", path)
	}
	return &Reporter{w: f, file: f}, nil
}

// Close releases the file sink, if any.
func (r *Reporter) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// ToFile reports whether the reporter writes to a file.
func (r *Reporter) ToFile() bool {
	return r.file != nil
}

// Printf writes a formatted report line.
func (r *Reporter) Printf(format string, args ...any) {
	fmt.Fprintf(r.w, format+"\n", args...)
}

// Println writes a report line.
func (r *Reporter) Println(msg string) {
	fmt.Fprintln(r.w, msg)
}

// Raw writes kernel stream output verbatim, without a trailing newline.
func (r *Reporter) Raw(text string) {
	fmt.Fprint(r.w, text)
}

// Separator writes a banner line.
func (r *Reporter) Separator() {
	line := strings.Repeat("=", separatorWidth)
	if r.styled {
		line = mutedStyle.Render(line)
	}
	fmt.Fprintln(r.w, line)
}

// Success writes a line with a success marker.
func (r *Reporter) Success(msg string) {
	r.marker(successStyle, "✓", msg)
}

// Failure writes a line with a failure marker.
func (r *Reporter) Failure(msg string) {
	r.marker(errorStyle, "✗", msg)
}

// Warn writes a line with a warning marker.
func (r *Reporter) Warn(msg string) {
	r.marker(warningStyle, "!", msg)
}

// Info writes a de-emphasized line.
func (r *Reporter) Info(msg string) {
	if r.styled {
		msg = mutedStyle.Render(msg)
	}
	fmt.Fprintln(r.w, msg)
}

func (r *Reporter) marker(style lipgloss.Style, mark, msg string) {
	if r.styled {
		mark = style.Render(mark)
	}
	fmt.Fprintf(r.w, "%s %s\n", mark, msg)
}

// Traceback writes a kernel traceback. The kernel's own coloring is
// kept on the console and stripped for plain-text sinks.
func (r *Reporter) Traceback(lines []string) {
	for _, line := range lines {
		if !r.styled {
			line = StripANSI(line)
		}
		fmt.Fprintln(r.w, line)
	}
}

// StripANSI removes terminal escape sequences from s.
func StripANSI(s string) string {
	return ansiEscapes.ReplaceAllString(s, "")
}
