// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"nbrun-cli/internal/kernel"
	"nbrun-cli/internal/notebook"
	"nbrun-cli/internal/report"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// previewLimit is how much cell source the per-cell banner shows.
const previewLimit = 300

// shutdownGrace bounds how long teardown waits for the kernel.
const shutdownGrace = 5 * time.Second

var (
	runTimeout int
	runOutput  string
	runCells   string
	runYes     bool

	runCmd = &cobra.Command{
		Use:   "run <notebook>",
		Short: "Execute a notebook's code cells sequentially",
		Long: `Execute every non-empty code cell of a notebook, in order, against
a live kernel. Output is streamed as the kernel produces it. When a
cell fails or times out, nbrun asks whether to continue with the next
cell.

A timeout of 0 means no per-cell limit. Ctrl+C interrupts the running
cell and stops the kernel.`,
		Args: cobra.ExactArgs(1),
		RunE: runRun,
	}
)

func init() {
	runCmd.Flags().IntVarP(&runTimeout, "timeout", "t", 0, "timeout per cell in seconds (0 = no timeout)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "file to save the report to (default: console only)")
	runCmd.Flags().StringVar(&runCells, "cells", "", "run only the selected code cells, e.g. 1,3-5")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "continue past failed cells without prompting")
}

func runRun(cmd *cobra.Command, args []string) error {
	path := args[0]

	timeout := runTimeout
	if !cmd.Flags().Changed("timeout") {
		timeout = cfg.Timeout
	}

	nb, err := notebook.Read(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, debug))
		return &ExitError{Code: ExitFailure, Err: err}
	}

	cells := nb.RunnableCells()
	if len(cells) == 0 {
		fmt.Println("Notebook has no code cells to run.")
		return nil
	}

	var selected map[int]bool
	if runCells != "" {
		nums, err := notebook.ParseSelection(runCells, len(cells))
		if err != nil {
			return &ExitError{Code: ExitFailure, Err: err}
		}
		selected = make(map[int]bool, len(nums))
		for _, n := range nums {
			selected[n] = true
		}
	}

	rep := report.NewConsole()
	if runOutput != "" {
		fileRep, err := report.NewFile(runOutput)
		if err != nil {
			fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, debug))
			return &ExitError{Code: ExitFailure, Err: err}
		}
		rep = fileRep
		fmt.Printf("Report will be saved to: %s\n", runOutput)
	}
	defer func() { _ = rep.Close() }()

	r := &runner{
		nb:       nb,
		cells:    cells,
		selected: selected,
		timeout:  timeout,
		yes:      runYes,
		rep:      rep,
		ask:      func() bool { return askContinue(os.Stdin, os.Stderr) },
	}
	return r.run(cmd.Context())
}

type (
	// kernelManager is the kernel process lifecycle the run loop needs.
	kernelManager interface {
		Start() (*kernel.ConnectionInfo, error)
		Interrupt() error
		Stop(grace time.Duration)
	}

	// kernelClient is the messaging surface the run loop needs.
	kernelClient interface {
		Connect() error
		WaitReady(ctx context.Context) error
		Execute(ctx context.Context, code string, hook kernel.OutputHook) (*kernel.ExecuteReply, error)
		Shutdown(ctx context.Context) error
		Close()
	}
)

// Constructor seams so tests can run the loop against fakes.
var (
	newKernelManager = func(logger *log.Logger) kernelManager {
		return kernel.NewManager(cfg.Kernel.Command, cfg.Kernel.Args, logger)
	}
	newKernelClient = func(conn *kernel.ConnectionInfo, logger *log.Logger) kernelClient {
		return kernel.NewClient(conn, logger)
	}
)

// runner holds the state of one 'nbrun run' invocation.
type runner struct {
	nb       *notebook.Notebook
	cells    []*notebook.Cell
	selected map[int]bool
	timeout  int
	yes      bool
	rep      *report.Reporter
	ask      func() bool

	mgr    kernelManager
	client kernelClient
}

func (r *runner) run(ctx context.Context) error {
	r.banner()

	// Teardown is installed before startup so a kernel that launched but
	// never answered still gets stopped and its connection dir removed.
	defer r.stopKernel()

	if err := r.startKernel(ctx); err != nil {
		r.rep.Failure(err.Error())
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, debug))
		return &ExitError{Code: ExitFailure, Err: err}
	}

	return r.executeAll(ctx)
}

// executeAll drives the cell loop once the kernel is up.
func (r *runner) executeAll(ctx context.Context) error {
	interrupted := false
	failures := 0

	for i, cell := range r.cells {
		num := i + 1
		if r.selected != nil && !r.selected[num] {
			continue
		}

		select {
		case <-ctx.Done():
			interrupted = true
		default:
		}
		if interrupted {
			break
		}

		r.cellBanner(num, cell)

		ok, aborted := r.executeCell(ctx, num, cell)
		if aborted {
			interrupted = true
			break
		}
		if ok {
			r.rep.Success(fmt.Sprintf("Cell %d completed successfully", num))
			continue
		}

		failures++
		r.rep.Failure(fmt.Sprintf("Cell %d failed or timed out", num))
		if r.yes {
			continue
		}
		if !r.ask() {
			r.rep.Println("Execution stopped by user")
			return &ExitError{Code: ExitInterrupted}
		}
	}

	if interrupted {
		r.rep.Println("")
		r.rep.Println("Execution interrupted by user")
		return &ExitError{Code: ExitInterrupted}
	}

	r.rep.Println("")
	if failures > 0 {
		r.rep.Warn(fmt.Sprintf("Notebook execution completed with %d failed cell(s)", failures))
		return &ExitError{Code: ExitFailure}
	}
	r.rep.Success("Notebook execution completed!")
	return nil
}

// banner prints the run header.
func (r *runner) banner() {
	r.rep.Printf("Starting notebook execution: %s", r.nb.Path)
	if r.timeout == 0 {
		r.rep.Println("Cell timeout: no limit")
	} else {
		r.rep.Printf("Cell timeout: %ds", r.timeout)
	}
	if r.selected != nil {
		r.rep.Printf("Selected cells: %s", runCells)
	}
	r.rep.Info("Use Ctrl+C to interrupt execution")
	r.rep.Println("")
}

// startKernel launches the kernel process and waits until it answers.
// On error the caller's deferred stopKernel reaps whatever was started.
func (r *runner) startKernel(ctx context.Context) error {
	logger := newLogger()
	r.mgr = newKernelManager(logger)

	conn, err := r.mgr.Start()
	if err != nil {
		return err
	}

	r.client = newKernelClient(conn, logger)
	if err := r.client.Connect(); err != nil {
		return err
	}

	r.rep.Info("Waiting for kernel to be ready...")
	readyCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Kernel.StartupTimeout)*time.Second)
	defer cancel()

	if err := r.client.WaitReady(readyCtx); err != nil {
		return err
	}
	r.rep.Success("Kernel ready")
	return nil
}

// stopKernel tears the kernel down: polite shutdown request first, then
// the Manager reaps the process.
func (r *runner) stopKernel() {
	r.rep.Println("")
	r.rep.Info("Cleaning up...")

	if r.client != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = r.client.Shutdown(shutdownCtx)
		cancel()
		r.client.Close()
	}
	if r.mgr != nil {
		r.mgr.Stop(shutdownGrace)
	}
	r.rep.Info("Cleanup complete")
}

// cellBanner prints the separator block ahead of a cell execution.
func (r *runner) cellBanner(num int, cell *notebook.Cell) {
	r.rep.Println("")
	r.rep.Separator()
	r.rep.Printf("Executing cell %d/%d", num, len(r.cells))
	r.rep.Separator()
	r.rep.Printf("Code preview:\n%s", preview(cell.Source))
	r.rep.Separator()
	r.rep.Println("")
}

// executeCell runs one cell. ok reports whether the cell succeeded;
// aborted is set when the user interrupted the run.
func (r *runner) executeCell(ctx context.Context, num int, cell *notebook.Cell) (ok, aborted bool) {
	r.rep.Info(fmt.Sprintf("Starting execution at %s", time.Now().Format("15:04:05")))
	start := time.Now()

	cellCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		cellCtx, cancel = context.WithTimeout(ctx, time.Duration(r.timeout)*time.Second)
		defer cancel()
	}

	reply, err := r.client.Execute(cellCtx, cell.Source, r.reportOutput)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		r.rep.Println("")
		r.rep.Printf("Completed in %.2fs", elapsed.Seconds())
		return reply.Status == "ok", false

	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		// Per-cell timeout: abort the cell but keep the kernel alive.
		r.rep.Println("")
		r.rep.Failure(fmt.Sprintf("TIMEOUT after %.2fs", elapsed.Seconds()))
		_ = r.mgr.Interrupt()
		return false, false

	case ctx.Err() != nil:
		// Ctrl+C: interrupt the kernel and stop the run.
		_ = r.mgr.Interrupt()
		return false, true

	default:
		r.rep.Println("")
		r.rep.Failure(fmt.Sprintf("Execution error: %v", err))
		return false, false
	}
}

// reportOutput renders streamed kernel output, mirroring the message
// types the kernel publishes while a cell runs.
func (r *runner) reportOutput(out kernel.Output) {
	switch out.Kind {
	case kernel.OutputStream:
		r.rep.Raw(out.Text)

	case kernel.OutputExecuteResult:
		r.rep.Println("")
		r.rep.Printf("Out: %s", out.Text)

	case kernel.OutputDisplayData:
		r.rep.Println("")
		r.rep.Printf("Display: %s", out.Text)

	case kernel.OutputError:
		r.rep.Println("")
		r.rep.Failure(fmt.Sprintf("%s: %s", out.Ename, out.Evalue))
		r.rep.Traceback(out.Traceback)

	case kernel.OutputStatus:
		if debug {
			r.rep.Info(fmt.Sprintf("Kernel %s at %s", out.ExecutionState, time.Now().Format("15:04:05")))
		}
	}
}

// preview truncates cell source for the banner, cutting on a rune
// boundary so multi-byte characters are never split.
func preview(code string) string {
	if len(code) <= previewLimit {
		return code
	}
	cut := previewLimit
	for cut > 0 && !utf8.RuneStart(code[cut]) {
		cut--
	}
	return code[:cut] + "..."
}
