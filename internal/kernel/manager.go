// SPDX-License-Identifier: MPL-2.0

package kernel

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"nbrun-cli/internal/issue"

	"github.com/charmbracelet/log"
)

// connectionFileToken in kernel args is replaced with the generated
// connection file path, matching the kernelspec argv convention.
const connectionFileToken = "{connection_file}"

// Manager owns a kernel process: it writes the connection file, launches
// the kernel command, and handles interrupt and teardown.
type Manager struct {
	// Command is the kernel executable (e.g. "python3").
	Command string
	// Args are the kernel arguments; see connectionFileToken.
	Args []string

	conn     *ConnectionInfo
	connFile string
	cmd      *exec.Cmd
	logger   *log.Logger
}

// NewManager creates a Manager for the given kernel command line.
func NewManager(command string, args []string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Manager{
		Command: command,
		Args:    args,
		logger:  logger,
	}
}

// expandArgs substitutes the connection file path into the kernel argv.
func expandArgs(args []string, connFile string) []string {
	expanded := make([]string, len(args))
	for i, a := range args {
		expanded[i] = strings.ReplaceAll(a, connectionFileToken, connFile)
	}
	return expanded
}

// Start allocates ports, writes the connection file, and launches the
// kernel process. The returned ConnectionInfo is what a Client connects to.
func (m *Manager) Start() (*ConnectionInfo, error) {
	if m.cmd != nil {
		return nil, fmt.Errorf("kernel already started")
	}

	conn, err := NewConnectionInfo()
	if err != nil {
		return nil, issue.WrapWithOperation(err, "prepare kernel connection")
	}

	connFile, err := conn.WriteTemp()
	if err != nil {
		return nil, issue.WrapWithOperation(err, "write kernel connection file")
	}

	args := expandArgs(m.Args, connFile)
	cmd := exec.Command(m.Command, args...)
	// Kernel banner and log output only matter when debugging the launch.
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if m.logger.GetLevel() <= log.DebugLevel {
		cmd.Stderr = os.Stderr
	}

	m.logger.Debug("starting kernel", "command", m.Command, "args", args)

	if err := cmd.Start(); err != nil {
		_ = os.RemoveAll(filepath.Dir(connFile))
		return nil, issue.NewErrorContext().
			WithOperation("start kernel").
			WithResource(m.Command).
			WithSuggestion("Check that the kernel command is installed and on PATH").
			WithSuggestion("For Python: python3 -m pip install ipykernel").
			Wrap(err).
			BuildError()
	}

	m.conn = conn
	m.connFile = connFile
	m.cmd = cmd
	return conn, nil
}

// Interrupt sends SIGINT to the kernel, aborting the running cell.
func (m *Manager) Interrupt() error {
	if m.cmd == nil || m.cmd.Process == nil {
		return fmt.Errorf("kernel not running")
	}
	m.logger.Debug("interrupting kernel", "pid", m.cmd.Process.Pid)
	return m.cmd.Process.Signal(os.Interrupt)
}

// Stop tears the kernel process down. The caller should have asked the
// kernel to shut down over the control channel first; Stop waits up to
// grace for the process to exit before killing it.
func (m *Manager) Stop(grace time.Duration) {
	if m.cmd == nil {
		return
	}
	defer func() {
		if m.connFile != "" {
			_ = os.RemoveAll(filepath.Dir(m.connFile))
		}
		m.cmd = nil
	}()

	done := make(chan error, 1)
	go func() { done <- m.cmd.Wait() }()

	select {
	case <-done:
		m.logger.Debug("kernel exited")
	case <-time.After(grace):
		m.logger.Debug("kernel did not exit, killing", "pid", m.cmd.Process.Pid)
		_ = m.cmd.Process.Kill()
		<-done
	}
}

// ConnectionFile returns the path of the written connection file.
func (m *Manager) ConnectionFile() string {
	return m.connFile
}
