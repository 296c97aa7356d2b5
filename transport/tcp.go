package transport

import (
	"io"
	"net"
	"time"
)

// NetworkConfig configures a TCP or UDP transport to an eBUS network
// adapter (e.g. an ebusd-compatible TCP gateway).
type NetworkConfig struct {
	Addr      string
	LatencyMS int
}

// TCPTransport is a Transport backed by a TCP connection, grounded on
// eventsocket/client.go's net.Dial-plus-context-cancel-closes-conn
// pattern (here the cancellation is driven by Close rather than a
// context, since Transport's contract is synchronous).
type TCPTransport struct {
	cfg  NetworkConfig
	conn net.Conn
	ring *ringBuffer
}

func NewTCPTransport(cfg NetworkConfig) *TCPTransport {
	if cfg.LatencyMS == 0 {
		cfg.LatencyMS = DefaultNetworkLatencyMS
	}
	return &TCPTransport{cfg: cfg, ring: newRingBuffer()}
}

func (t *TCPTransport) Open() error {
	conn, err := net.DialTimeout("tcp", t.cfg.Addr, 5*time.Second)
	if err != nil {
		return err
	}
	t.conn = conn
	return nil
}

func (t *TCPTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *TCPTransport) IsValid() bool {
	return t.conn != nil
}

func (t *TCPTransport) Read(timeout time.Duration) ([]byte, error) {
	if t.conn == nil {
		return nil, ErrClosed
	}
	budget := timeout + time.Duration(t.cfg.LatencyMS)*time.Millisecond
	t.conn.SetReadDeadline(time.Now().Add(budget))
	buf := make([]byte, MaxTelegram)
	n, err := t.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return t.ring.Peek(), ErrTimeout
		}
		if err == io.EOF {
			return t.ring.Peek(), ErrClosed
		}
		return nil, err
	}
	if n > 0 {
		if ferr := t.ring.Fill(buf[:n]); ferr != nil {
			return t.ring.Peek(), ferr
		}
	}
	return t.ring.Peek(), nil
}

func (t *TCPTransport) ReadConsumed(n int) {
	t.ring.Consume(n)
}

func (t *TCPTransport) Write(b []byte) (int, error) {
	if t.conn == nil {
		return 0, ErrClosed
	}
	return t.conn.Write(b)
}

func (t *TCPTransport) LatencyMS() int {
	return t.cfg.LatencyMS
}
