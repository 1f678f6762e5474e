package uds

import (
	"fmt"
	"net"
	"time"
)

// defaultCommandTimeout covers dial plus the full request/response exchange.
// A scan command drains whole stage directories synchronously, so this is
// deliberately generous for a control socket.
const defaultCommandTimeout = 30 * time.Second

// Client is the CLI side of the control socket. Every command is a
// single-shot exchange: dial, write one frame, read one frame, close.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient points at the daemon socket inside a pipeline root, typically
// <root>/.caplog/daemon.sock.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    defaultCommandTimeout,
	}
}

// SetTimeout overrides the exchange deadline (used by tests and by commands
// that should fail fast, like a liveness ping).
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Send performs one request/response exchange. A failure to dial almost
// always means no daemon is running for this root, so the error says so.
func (c *Client) Send(req *Request) (*Response, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if err := WriteFrame(conn, req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := ReadFrame(conn, &resp); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &resp, nil
}

func (c *Client) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf(
			"no daemon reachable at %s: %w\n"+
				"Is the daemon running? Start it with: caplog daemon",
			c.socketPath, err,
		)
	}
	return conn, nil
}

// SendCommand is the convenience form used by the CLI subcommands.
func (c *Client) SendCommand(command string, params any) (*Response, error) {
	req, err := NewRequest(command, params)
	if err != nil {
		return nil, err
	}
	return c.Send(req)
}
