package pgconn

import (
	"net"
	"syscall"
	"time"

	"github.com/mevdschee/pgwire/poller"
)

// tryRead attempts a non-blocking read by setting an already-elapsed
// read deadline: data already buffered by the kernel comes back
// immediately, and an empty socket returns a timeout error instead of
// blocking. This is the standard Go idiom for non-blocking net.Conn
// reads; postgres.go's readMessage uses io.ReadFull instead because it
// runs one goroutine per connection and can afford to block.
func (c *Connection) tryRead() (int, error) {
	c.conn.SetReadDeadline(time.Now())
	buf := make([]byte, 8192)
	n, err := c.conn.Read(buf)
	if n > 0 {
		c.decoder.Feed(buf[:n])
	}
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, nil
		}
		return n, err
	}
	return n, nil
}

// flushWrite drains writeBuf with the same non-blocking idiom as
// tryRead; bytes it cannot write immediately stay queued.
func (c *Connection) flushWrite() error {
	for len(c.writeBuf) > 0 {
		c.conn.SetWriteDeadline(time.Now())
		n, err := c.conn.Write(c.writeBuf)
		if n > 0 {
			c.writeBuf = c.writeBuf[n:]
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			return err
		}
	}
	if len(c.writeBuf) == 0 && c.status == EstablishmentWriting {
		c.status = EstablishmentReading
	}
	return nil
}

// Pump performs one non-blocking I/O cycle: read whatever bytes are
// available, decode and route complete messages, then flush any
// replies routing queued (e.g. a PasswordMessage). It stops routing as
// soon as a row becomes visible, so callers see exactly one Row at a
// time (spec.md §4.F's row-streaming contract).
func (c *Connection) Pump() error {
	if _, err := c.tryRead(); err != nil {
		c.fail(err)
		return err
	}
	for c.respRow == nil {
		msg, ok, err := c.decoder.Next()
		if err != nil {
			c.fail(err)
			return err
		}
		if !ok {
			break
		}
		if err := c.route(msg); err != nil {
			c.fail(err)
			return err
		}
	}
	if err := c.flushWrite(); err != nil {
		c.fail(err)
		return err
	}
	return nil
}

// waitReadableOrWritable blocks up to timeoutMs for the socket to
// become ready, via poller.Poller when the conn exposes a raw file
// descriptor (real TCP/unix sockets), falling back to a short sleep
// loop otherwise (mock connections in tests, or platforms without a
// syscall.Conn).
func (c *Connection) waitReadableOrWritable(timeoutMs int) {
	if sc, ok := c.conn.(syscall.Conn); ok {
		if rc, err := sc.SyscallConn(); err == nil {
			var fd int
			rc.Control(func(n uintptr) { fd = int(n) })
			interest := poller.Readable
			if c.status == EstablishmentWriting {
				interest = poller.Writable
			}
			if p, err := poller.New(fd, interest); err == nil {
				p.Wait(timeoutMs)
				p.Close()
				return
			}
		}
	}
	sleep := 2 * time.Millisecond
	if timeoutMs >= 0 && time.Duration(timeoutMs)*time.Millisecond < sleep {
		sleep = time.Duration(timeoutMs) * time.Millisecond
	}
	if sleep > 0 {
		time.Sleep(sleep)
	}
}

func deadlineFrom(timeoutMs int) time.Time {
	if timeoutMs == -1 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
}

func pastDeadline(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}

func sliceRemaining(deadline time.Time) int {
	if deadline.IsZero() {
		return -1
	}
	remaining := time.Until(deadline)
	if remaining < 0 {
		return 0
	}
	return int(remaining / time.Millisecond)
}
