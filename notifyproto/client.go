package notifyproto

import (
	"fmt"
	"net"
	"time"
)

// Client is the counterpart a supervised process's instrumented
// runtime calls in place of the kernel notify(2) syscall wrapper (see
// _examples/original_source/libdummy/libdummy.c).
type Client struct {
	path    string
	dialer  net.Dialer
	timeout time.Duration
}

// NewClient builds a Client that dials path. A zero timeout disables
// the per-call deadline.
func NewClient(path string, timeout time.Duration) *Client {
	return &Client{path: path, timeout: timeout}
}

// Notify opens a new connection, writes one (pid, id) message, and
// closes the connection — one connection per notification, matching
// Server's "one message per connection-write" framing.
func (c *Client) Notify(pid uint32, id int32) error {
	conn, err := c.dialer.Dial("unix", c.path)
	if err != nil {
		return fmt.Errorf("notifyproto: dial %s: %w", c.path, err)
	}
	defer func() { _ = conn.Close() }()

	if c.timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return fmt.Errorf("notifyproto: set deadline: %w", err)
		}
	}

	msg := message{PID: pid, ID: id}
	if _, err := conn.Write(msg.encode()); err != nil {
		return fmt.Errorf("notifyproto: write: %w", err)
	}
	return nil
}
