package remote

import (
	"net"
	"sync"
	"time"
)

// deadlineConn arms a fresh deadline before every read and write so that a
// silent peer surfaces as a timeout instead of blocking forever.
//
// A gated conn only arms deadlines while a call is in flight (see track).
// SSH keeps a read pending in the background for the whole connection, so an
// always-armed deadline would drop it after any idle pause.
type deadlineConn struct {
	net.Conn
	timeout time.Duration

	mu       sync.Mutex
	gated    bool
	inFlight int
}

func (c *deadlineConn) armed() bool {
	return !c.gated || c.inFlight > 0
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	c.mu.Lock()
	if c.armed() {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			c.mu.Unlock()
			return 0, err
		}
	}
	c.mu.Unlock()
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	if c.armed() {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			c.mu.Unlock()
			return 0, err
		}
	}
	c.mu.Unlock()
	return c.Conn.Write(b)
}

// track arms the deadline, including for a read already pending, until the
// returned func is called. Calls nest.
func (c *deadlineConn) track() (done func()) {
	c.mu.Lock()
	c.inFlight++
	_ = c.Conn.SetDeadline(time.Now().Add(c.timeout))
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.inFlight--
			if c.gated && c.inFlight == 0 {
				_ = c.Conn.SetDeadline(time.Time{})
			}
		})
	}
}

// dialTimeout dials addr and wraps the connection with per-call deadlines.
func dialTimeout(network, addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.Dial(network, addr)
	if err != nil {
		return nil, err
	}
	return &deadlineConn{Conn: conn, timeout: timeout}, nil
}

// dialGated is dialTimeout for connections that idle between calls.
func dialGated(network, addr string, timeout time.Duration) (*deadlineConn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.Dial(network, addr)
	if err != nil {
		return nil, err
	}
	return &deadlineConn{Conn: conn, timeout: timeout, gated: true}, nil
}
