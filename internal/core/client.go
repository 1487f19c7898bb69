package core

import (
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/openrts/masterserver/internal/proto"
)

// Client is a logged-in connection as seen by the registry and state
// machine. It is created only after successful password verification and
// destroyed when the owning session exits.
type Client struct {
	// Name is the player's username, the registry key. Immutable.
	Name string
	// Host is the printable peer address, informational only.
	Host string

	// connID is a per-connection correlation id, exposed through ConnID;
	// it never appears on the wire.
	connID string

	handle  io.Writer
	writeMu sync.Mutex

	box *inbox
}

// NewClient constructs a Client bound to a write-capable connection
// handle. Writes to handle are serialized through Send.
func NewClient(name, host string, handle io.Writer) *Client {
	return &Client{
		Name:   name,
		Host:   host,
		connID: uuid.NewString(),
		handle: handle,
		box:    newInbox(),
	}
}

// ConnID returns the client's correlation id.
func (c *Client) ConnID() string {
	return c.connID
}

// Send encodes and writes m directly to the client's own socket. Callers
// must only do this from the owning session's processor goroutine —
// broadcasters must use Push instead.
func (c *Client) Send(m proto.Message) error {
	data, err := proto.Encode(m)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.handle.Write(data)
	return err
}

// Push enqueues m on the client's inbox without blocking. Used by the
// registry's broadcaster and by displacement to hand a message to a peer.
func (c *Client) Push(m proto.Message) {
	c.box.push(m)
}

// Inbox returns the channel the owning session's processor consumes.
func (c *Client) Inbox() <-chan proto.Message {
	return c.box.C()
}

// CloseInbox releases the inbox's background pump. Called once by the
// owning session during cleanup.
func (c *Client) CloseInbox() {
	c.box.close()
}
