// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"nbrun-cli/internal/kernel"
	"nbrun-cli/internal/notebook"
	"nbrun-cli/internal/report"

	"github.com/charmbracelet/log"
)

func TestPreview_Short(t *testing.T) {
	code := "print('hello')"
	if got := preview(code); got != code {
		t.Errorf("preview() = %q, want unchanged source", got)
	}
}

func TestPreview_Truncates(t *testing.T) {
	code := strings.Repeat("x", previewLimit+50)

	got := preview(code)
	if len(got) != previewLimit+3 {
		t.Errorf("preview() length = %d, want %d", len(got), previewLimit+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("preview() should end with ellipsis, got %q", got[len(got)-10:])
	}
}

func TestPreview_ExactLimit(t *testing.T) {
	code := strings.Repeat("x", previewLimit)
	if got := preview(code); got != code {
		t.Error("preview() at the limit should not truncate")
	}
}

func TestPreview_RuneBoundary(t *testing.T) {
	// The byte at previewLimit lands mid-rune for every two-byte rune here.
	code := "a" + strings.Repeat("é", previewLimit)

	got := preview(code)
	if !utf8.ValidString(got) {
		t.Errorf("preview() split a rune: %q", got[len(got)-10:])
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("preview() should end with ellipsis, got %q", got[len(got)-10:])
	}
}

// fakeManager is an in-memory kernelManager for run loop tests.
type fakeManager struct {
	startErr   error
	interrupts int
	stopped    bool
}

func (m *fakeManager) Start() (*kernel.ConnectionInfo, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	return &kernel.ConnectionInfo{}, nil
}

func (m *fakeManager) Interrupt() error   { m.interrupts++; return nil }
func (m *fakeManager) Stop(time.Duration) { m.stopped = true }

type execResult func(ctx context.Context) (*kernel.ExecuteReply, error)

// fakeClient is an in-memory kernelClient. Cells beyond the scripted
// results succeed.
type fakeClient struct {
	connectErr error
	readyErr   error
	results    []execResult
	executed   []string
	shutdowns  int
	closed     bool
}

func (c *fakeClient) Connect() error                  { return c.connectErr }
func (c *fakeClient) WaitReady(context.Context) error { return c.readyErr }
func (c *fakeClient) Shutdown(context.Context) error  { c.shutdowns++; return nil }
func (c *fakeClient) Close()                          { c.closed = true }

func (c *fakeClient) Execute(ctx context.Context, code string, hook kernel.OutputHook) (*kernel.ExecuteReply, error) {
	i := len(c.executed)
	c.executed = append(c.executed, code)
	if i < len(c.results) {
		return c.results[i](ctx)
	}
	return &kernel.ExecuteReply{Status: "ok"}, nil
}

func replyOK(context.Context) (*kernel.ExecuteReply, error) {
	return &kernel.ExecuteReply{Status: "ok"}, nil
}

func replyError(context.Context) (*kernel.ExecuteReply, error) {
	return &kernel.ExecuteReply{Status: "error"}, nil
}

func loopNotebook(t *testing.T, sources ...string) *notebook.Notebook {
	t.Helper()
	cells := make([]string, len(sources))
	for i, src := range sources {
		cells[i] = fmt.Sprintf(`{"cell_type": "code", "metadata": {}, "outputs": [], "source": %q}`, src)
	}
	doc := fmt.Sprintf(`{"cells": [%s], "nbformat": 4, "nbformat_minor": 5, "metadata": {}}`, strings.Join(cells, ","))

	nb, err := notebook.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("building notebook: %v", err)
	}
	nb.Path = "loop.ipynb"
	return nb
}

// newTestRunner wires a runner to fakes through the constructor seams.
func newTestRunner(t *testing.T, client *fakeClient, sources ...string) (*runner, *fakeManager) {
	t.Helper()

	mgr := &fakeManager{}
	origMgr, origClient := newKernelManager, newKernelClient
	t.Cleanup(func() { newKernelManager, newKernelClient = origMgr, origClient })
	newKernelManager = func(*log.Logger) kernelManager { return mgr }
	newKernelClient = func(*kernel.ConnectionInfo, *log.Logger) kernelClient { return client }

	nb := loopNotebook(t, sources...)
	r := &runner{
		nb:    nb,
		cells: nb.RunnableCells(),
		rep:   report.NewWriter(&bytes.Buffer{}),
		ask:   func() bool { return false },
	}
	return r, mgr
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected an ExitError, got %v", err)
	}
	return exitErr.Code
}

func TestRun_StopsKernelWhenNotReady(t *testing.T) {
	client := &fakeClient{readyErr: errors.New("kernel not ready: context deadline exceeded")}
	r, mgr := newTestRunner(t, client, "x = 1")

	if got := exitCode(t, r.run(context.Background())); got != ExitFailure {
		t.Errorf("exit code = %d, want %d", got, ExitFailure)
	}
	if !mgr.stopped {
		t.Error("a kernel that never became ready must still be stopped")
	}
	if !client.closed {
		t.Error("client sockets must be closed after a failed startup")
	}
	if len(client.executed) != 0 {
		t.Errorf("no cells should run, got %v", client.executed)
	}
}

func TestRun_StopsKernelWhenConnectFails(t *testing.T) {
	client := &fakeClient{connectErr: errors.New("dial shell channel: connection refused")}
	r, mgr := newTestRunner(t, client, "x = 1")

	if got := exitCode(t, r.run(context.Background())); got != ExitFailure {
		t.Errorf("exit code = %d, want %d", got, ExitFailure)
	}
	if !mgr.stopped {
		t.Error("the kernel process must be stopped when connecting fails")
	}
	if !client.closed {
		t.Error("client sockets must be closed when connecting fails")
	}
}

func TestRun_TimeoutInterruptsAndContinues(t *testing.T) {
	client := &fakeClient{results: []execResult{
		func(context.Context) (*kernel.ExecuteReply, error) {
			return nil, fmt.Errorf("cell execution aborted: %w", context.DeadlineExceeded)
		},
		replyOK,
	}}
	r, mgr := newTestRunner(t, client, "slow()", "x = 1")
	r.timeout = 5
	r.yes = true

	err := r.run(context.Background())

	if got := exitCode(t, err); got != ExitFailure {
		t.Errorf("exit code = %d, want %d (one cell timed out)", got, ExitFailure)
	}
	if mgr.interrupts != 1 {
		t.Errorf("interrupts = %d, want 1 (a timeout interrupts the kernel)", mgr.interrupts)
	}
	if len(client.executed) != 2 {
		t.Errorf("executed %d cells, want 2 (a timeout does not stop the run)", len(client.executed))
	}
}

func TestRun_CtrlCAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{results: []execResult{
		func(context.Context) (*kernel.ExecuteReply, error) {
			cancel()
			return nil, fmt.Errorf("cell execution aborted: %w", context.Canceled)
		},
		replyOK,
	}}
	r, mgr := newTestRunner(t, client, "loop()", "x = 1")

	err := r.run(ctx)

	if got := exitCode(t, err); got != ExitInterrupted {
		t.Errorf("exit code = %d, want %d", got, ExitInterrupted)
	}
	if mgr.interrupts != 1 {
		t.Errorf("interrupts = %d, want 1 (Ctrl+C interrupts the kernel)", mgr.interrupts)
	}
	if len(client.executed) != 1 {
		t.Errorf("executed %d cells, want 1 (the run stops on Ctrl+C)", len(client.executed))
	}
	if !mgr.stopped || !client.closed {
		t.Error("kernel must be torn down after an interrupted run")
	}
}

func TestRun_YesSkipsPrompt(t *testing.T) {
	client := &fakeClient{results: []execResult{replyError, replyOK}}
	r, _ := newTestRunner(t, client, "1/0", "x = 1")
	r.yes = true
	prompts := 0
	r.ask = func() bool { prompts++; return false }

	err := r.run(context.Background())

	if got := exitCode(t, err); got != ExitFailure {
		t.Errorf("exit code = %d, want %d", got, ExitFailure)
	}
	if prompts != 0 {
		t.Errorf("prompt shown %d times, want 0 with --yes", prompts)
	}
	if len(client.executed) != 2 {
		t.Errorf("executed %d cells, want 2 (failures are skipped past)", len(client.executed))
	}
}

func TestRun_PromptStopDeclinesRemainingCells(t *testing.T) {
	client := &fakeClient{results: []execResult{replyError, replyOK}}
	r, _ := newTestRunner(t, client, "1/0", "x = 1")
	prompts := 0
	r.ask = func() bool { prompts++; return false }

	err := r.run(context.Background())

	if got := exitCode(t, err); got != ExitInterrupted {
		t.Errorf("exit code = %d, want %d", got, ExitInterrupted)
	}
	if prompts != 1 {
		t.Errorf("prompt shown %d times, want 1", prompts)
	}
	if len(client.executed) != 1 {
		t.Errorf("executed %d cells, want 1 (answering n stops the run)", len(client.executed))
	}
}

func TestRun_PromptContinueKeepsGoing(t *testing.T) {
	client := &fakeClient{results: []execResult{replyError, replyOK}}
	r, _ := newTestRunner(t, client, "1/0", "x = 1")
	r.ask = func() bool { return true }

	err := r.run(context.Background())

	if got := exitCode(t, err); got != ExitFailure {
		t.Errorf("exit code = %d, want %d (the failure still counts)", got, ExitFailure)
	}
	if len(client.executed) != 2 {
		t.Errorf("executed %d cells, want 2 (answering y continues)", len(client.executed))
	}
}

func TestRun_CellSelection(t *testing.T) {
	client := &fakeClient{}
	r, _ := newTestRunner(t, client, "a = 1", "b = 2", "c = 3")
	r.selected = map[int]bool{1: true, 3: true}

	if err := r.run(context.Background()); err != nil {
		t.Fatalf("run() error: %v", err)
	}

	want := []string{"a = 1", "c = 3"}
	if len(client.executed) != len(want) {
		t.Fatalf("executed %v, want %v", client.executed, want)
	}
	for i, code := range want {
		if client.executed[i] != code {
			t.Errorf("executed[%d] = %q, want %q", i, client.executed[i], code)
		}
	}
}

func TestRun_AllCellsSucceed(t *testing.T) {
	client := &fakeClient{}
	r, mgr := newTestRunner(t, client, "a = 1", "b = 2")

	if err := r.run(context.Background()); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	if len(client.executed) != 2 {
		t.Errorf("executed %d cells, want 2", len(client.executed))
	}
	if client.shutdowns != 1 {
		t.Errorf("shutdown requests = %d, want 1", client.shutdowns)
	}
	if !mgr.stopped || !client.closed {
		t.Error("kernel must be torn down after a clean run")
	}
}
