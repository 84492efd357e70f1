package transport

import (
	"bufio"
	"net"
	"time"
)

// Conn wraps a dialed net.Conn with the one-way/two-way send primitives
// the consensus core treats as an external collaborator. A Conn is safe
// for concurrent Send/Request calls; each call dials and closes its own
// underlying socket, matching the teacher's synchronous-exchange-per-call
// worker model rather than holding a long-lived connection.
type Conn struct {
	addr    string
	dialer  net.Dialer
	timeout time.Duration
}

// Dial returns a Conn targeting addr with the given per-exchange timeout.
func Dial(addr string, timeout time.Duration) *Conn {
	return &Conn{addr: addr, timeout: timeout}
}

// Send delivers msg one-way; it does not wait for or expect a reply.
func (c *Conn) Send(msg Message) error {
	conn, err := c.dialer.Dial("tcp", c.addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if c.timeout > 0 {
		conn.SetDeadline(time.Now().Add(c.timeout))
	}
	return WriteMessage(conn, msg)
}

// Request delivers msg and blocks for exactly one reply Message,
// matching the spec's synchronous two-way exchange contract.
func (c *Conn) Request(msg Message) (Message, error) {
	conn, err := c.dialer.Dial("tcp", c.addr)
	if err != nil {
		return Message{}, err
	}
	defer conn.Close()

	if c.timeout > 0 {
		conn.SetDeadline(time.Now().Add(c.timeout))
	}
	if err := WriteMessage(conn, msg); err != nil {
		return Message{}, err
	}
	return ReadMessage(bufio.NewReader(conn))
}
