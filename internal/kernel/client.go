// SPDX-License-Identifier: MPL-2.0

package kernel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
)

// channelBuffer sizes the per-channel message queues. Messages that
// arrive between cells (late status updates) sit here until the next
// Execute drains them.
const channelBuffer = 64

type (
	// ExecuteReply is the kernel's verdict on one cell.
	ExecuteReply struct {
		// Status is "ok", "error", or "aborted".
		Status string
		// ExecutionCount is the kernel's cell counter.
		ExecutionCount int
	}

	// Client speaks the Jupyter messaging protocol to one kernel over
	// ZeroMQ. It is not safe for concurrent use; nbrun executes cells
	// strictly one at a time.
	Client struct {
		conn    *ConnectionInfo
		signer  *Signer
		session string
		logger  *log.Logger

		shell   zmq4.Socket
		iopub   zmq4.Socket
		control zmq4.Socket

		shellCh   chan *Message
		iopubCh   chan *Message
		controlCh chan *Message

		cancel context.CancelFunc
	}
)

// NewClient creates a client for the given connection info.
func NewClient(conn *ConnectionInfo, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Client{
		conn:      conn,
		signer:    NewSigner(conn.Key),
		session:   uuid.NewString(),
		logger:    logger,
		shellCh:   make(chan *Message, channelBuffer),
		iopubCh:   make(chan *Message, channelBuffer),
		controlCh: make(chan *Message, channelBuffer),
	}
}

// Connect dials the shell, iopub, and control channels and starts the
// receive pumps. Close releases everything.
func (c *Client) Connect() error {
	sockCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.shell = zmq4.NewDealer(sockCtx, zmq4.WithID(zmq4.SocketIdentity(c.session)))
	c.iopub = zmq4.NewSub(sockCtx)
	c.control = zmq4.NewDealer(sockCtx)

	if err := c.shell.Dial(c.conn.ShellAddr()); err != nil {
		return fmt.Errorf("dial shell channel %s: %w", c.conn.ShellAddr(), err)
	}
	if err := c.iopub.Dial(c.conn.IOPubAddr()); err != nil {
		return fmt.Errorf("dial iopub channel %s: %w", c.conn.IOPubAddr(), err)
	}
	if err := c.iopub.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		return fmt.Errorf("subscribe iopub channel: %w", err)
	}
	if err := c.control.Dial(c.conn.ControlAddr()); err != nil {
		return fmt.Errorf("dial control channel %s: %w", c.conn.ControlAddr(), err)
	}

	go c.pump("shell", c.shell, c.shellCh)
	go c.pump("iopub", c.iopub, c.iopubCh)
	go c.pump("control", c.control, c.controlCh)
	return nil
}

// pump receives wire messages from one socket and delivers decoded
// messages to ch until the socket closes.
func (c *Client) pump(name string, sock zmq4.Socket, ch chan *Message) {
	for {
		raw, err := sock.Recv()
		if err != nil {
			c.logger.Debug("channel closed", "channel", name, "err", err)
			return
		}

		msg, err := Decode(raw.Frames, c.signer)
		if err != nil {
			if errors.Is(err, ErrBadSignature) {
				c.logger.Warn("dropping message with bad signature", "channel", name)
			} else {
				c.logger.Debug("dropping undecodable message", "channel", name, "err", err)
			}
			continue
		}

		c.logger.Debug("recv", "channel", name, "type", msg.Header.MsgType)
		ch <- msg
	}
}

// Close shuts down the channel sockets and pumps.
func (c *Client) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	for _, sock := range []zmq4.Socket{c.shell, c.iopub, c.control} {
		if sock != nil {
			_ = sock.Close()
		}
	}
}

// send encodes and transmits a message on the given socket.
func (c *Client) send(sock zmq4.Socket, msg *Message) error {
	frames, err := msg.Encode(c.signer)
	if err != nil {
		return err
	}
	c.logger.Debug("send", "type", msg.Header.MsgType, "msg_id", msg.Header.MsgID)
	return sock.Send(zmq4.NewMsgFrom(frames...))
}

// WaitReady blocks until the kernel answers a kernel_info request or ctx
// expires. Requests are re-sent periodically since the kernel may still
// be binding its sockets when we first ask.
func (c *Client) WaitReady(ctx context.Context) error {
	const retryEvery = 2 * time.Second

	for {
		req := NewMessage("kernel_info_request", c.session, nil)
		if err := c.send(c.shell, req); err != nil {
			return fmt.Errorf("send kernel_info_request: %w", err)
		}

		retry := time.NewTimer(retryEvery)
	wait:
		for {
			select {
			case msg := <-c.shellCh:
				if msg.Header.MsgType == "kernel_info_reply" && msg.Parent.MsgID == req.Header.MsgID {
					retry.Stop()
					return nil
				}
			case <-retry.C:
				break wait
			case <-ctx.Done():
				retry.Stop()
				return fmt.Errorf("kernel not ready: %w", ctx.Err())
			}
		}
	}
}

// Execute runs one cell of code. Iopub output is streamed to hook in
// arrival order; the call returns once the kernel has gone idle and the
// execute_reply has arrived, or when ctx expires (per-cell timeout or
// user interrupt). On ctx expiry the caller is expected to interrupt
// the kernel via the Manager.
func (c *Client) Execute(ctx context.Context, code string, hook OutputHook) (*ExecuteReply, error) {
	req := NewMessage("execute_request", c.session, map[string]any{
		"code":             code,
		"silent":           false,
		"store_history":    true,
		"user_expressions": map[string]any{},
		"allow_stdin":      false,
		"stop_on_error":    false,
	})
	if err := c.send(c.shell, req); err != nil {
		return nil, fmt.Errorf("send execute_request: %w", err)
	}

	var reply *ExecuteReply
	idle := false

	for {
		if reply != nil && idle {
			return reply, nil
		}

		select {
		case msg := <-c.iopubCh:
			if msg.Parent.MsgID != req.Header.MsgID {
				continue
			}
			out, ok := outputFromMessage(msg)
			if !ok {
				continue
			}
			if out.Kind == OutputStatus && out.ExecutionState == "idle" {
				idle = true
			}
			if hook != nil {
				hook(out)
			}

		case msg := <-c.shellCh:
			if msg.Header.MsgType != "execute_reply" || msg.Parent.MsgID != req.Header.MsgID {
				continue
			}
			reply = &ExecuteReply{Status: str(msg.Content, "status")}
			if count, ok := msg.Content["execution_count"].(float64); ok {
				reply.ExecutionCount = int(count)
			}

		case <-ctx.Done():
			return nil, fmt.Errorf("cell execution aborted: %w", ctx.Err())
		}
	}
}

// Shutdown asks the kernel to exit over the control channel and waits
// for acknowledgement until ctx expires. Process teardown is the
// Manager's job.
func (c *Client) Shutdown(ctx context.Context) error {
	req := NewMessage("shutdown_request", c.session, map[string]any{"restart": false})
	if err := c.send(c.control, req); err != nil {
		return fmt.Errorf("send shutdown_request: %w", err)
	}

	for {
		select {
		case msg := <-c.controlCh:
			if msg.Header.MsgType == "shutdown_reply" && msg.Parent.MsgID == req.Header.MsgID {
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("kernel shutdown not acknowledged: %w", ctx.Err())
		}
	}
}
