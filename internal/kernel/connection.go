// SPDX-License-Identifier: MPL-2.0

package kernel

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ConnectionInfo is the Jupyter connection file: the ports, transport,
// and HMAC key a kernel and its clients agree on.
type ConnectionInfo struct {
	ShellPort       int    `json:"shell_port"`
	IOPubPort       int    `json:"iopub_port"`
	StdinPort       int    `json:"stdin_port"`
	ControlPort     int    `json:"control_port"`
	HBPort          int    `json:"hb_port"`
	IP              string `json:"ip"`
	Key             string `json:"key"`
	Transport       string `json:"transport"`
	SignatureScheme string `json:"signature_scheme"`
	KernelName      string `json:"kernel_name"`
}

// NewConnectionInfo picks five free loopback ports and a fresh HMAC key.
func NewConnectionInfo() (*ConnectionInfo, error) {
	ports, err := freePorts(5)
	if err != nil {
		return nil, fmt.Errorf("allocate kernel ports: %w", err)
	}

	return &ConnectionInfo{
		ShellPort:       ports[0],
		IOPubPort:       ports[1],
		StdinPort:       ports[2],
		ControlPort:     ports[3],
		HBPort:          ports[4],
		IP:              "127.0.0.1",
		Key:             uuid.NewString(),
		Transport:       "tcp",
		SignatureScheme: "hmac-sha256",
		KernelName:      "python3",
	}, nil
}

// freePorts asks the OS for n distinct free TCP ports. The listeners are
// closed before returning, so a race with another process is possible but
// harmless in practice: the kernel fails to bind and we surface its error.
func freePorts(n int) ([]int, error) {
	ports := make([]int, 0, n)
	listeners := make([]net.Listener, 0, n)
	defer func() {
		for _, l := range listeners {
			_ = l.Close()
		}
	}()

	for range n {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, err
		}
		listeners = append(listeners, l)
		ports = append(ports, l.Addr().(*net.TCPAddr).Port)
	}

	return ports, nil
}

// addr formats a ZeroMQ endpoint for the given port.
func (ci *ConnectionInfo) addr(port int) string {
	return fmt.Sprintf("%s://%s:%d", ci.Transport, ci.IP, port)
}

// ShellAddr returns the shell channel endpoint.
func (ci *ConnectionInfo) ShellAddr() string { return ci.addr(ci.ShellPort) }

// IOPubAddr returns the iopub channel endpoint.
func (ci *ConnectionInfo) IOPubAddr() string { return ci.addr(ci.IOPubPort) }

// ControlAddr returns the control channel endpoint.
func (ci *ConnectionInfo) ControlAddr() string { return ci.addr(ci.ControlPort) }

// WriteTemp writes the connection file into a private temp directory and
// returns its path. The caller removes it when the kernel stops.
func (ci *ConnectionInfo) WriteTemp() (string, error) {
	dir, err := os.MkdirTemp("", "nbrun-kernel-*")
	if err != nil {
		return "", fmt.Errorf("create connection dir: %w", err)
	}

	path := filepath.Join(dir, "connection.json")
	data, err := json.MarshalIndent(ci, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode connection file: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write connection file: %w", err)
	}
	return path, nil
}
