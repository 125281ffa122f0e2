package control

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
)

// Client is the tracee side of the control socket.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
}

func Dial(ctx context.Context, dir string, pid int) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", SocketPath(dir, pid))
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Call sends one request and waits for its status.
func (c *Client) Call(cmd Command, arg uint64) (int32, error) {
	frame, _ := Request{Command: cmd, Argument: arg}.MarshalBinary()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.conn.Write(frame); err != nil {
		return 0, fmt.Errorf("sending %s: %w", cmd, err)
	}
	var resp [ResponseSize]byte
	if _, err := io.ReadFull(c.conn, resp[:]); err != nil {
		return 0, fmt.Errorf("reading %s response: %w", cmd, err)
	}
	return int32(le.Uint32(resp[:])), nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
