package transport

import (
	"net"
	"time"
)

// UDPTransport is a Transport backed by a connected UDP socket, the UDP
// counterpart of TCPTransport sharing the same contract (spec.md §4.1).
type UDPTransport struct {
	cfg  NetworkConfig
	conn net.Conn
	ring *ringBuffer
}

func NewUDPTransport(cfg NetworkConfig) *UDPTransport {
	if cfg.LatencyMS == 0 {
		cfg.LatencyMS = DefaultNetworkLatencyMS
	}
	return &UDPTransport{cfg: cfg, ring: newRingBuffer()}
}

func (u *UDPTransport) Open() error {
	conn, err := net.DialTimeout("udp", u.cfg.Addr, 5*time.Second)
	if err != nil {
		return err
	}
	u.conn = conn
	return nil
}

func (u *UDPTransport) Close() error {
	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.conn = nil
	return err
}

func (u *UDPTransport) IsValid() bool {
	return u.conn != nil
}

func (u *UDPTransport) Read(timeout time.Duration) ([]byte, error) {
	if u.conn == nil {
		return nil, ErrClosed
	}
	budget := timeout + time.Duration(u.cfg.LatencyMS)*time.Millisecond
	u.conn.SetReadDeadline(time.Now().Add(budget))
	buf := make([]byte, MaxTelegram)
	n, err := u.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return u.ring.Peek(), ErrTimeout
		}
		return nil, err
	}
	if n > 0 {
		if ferr := u.ring.Fill(buf[:n]); ferr != nil {
			return u.ring.Peek(), ferr
		}
	}
	return u.ring.Peek(), nil
}

func (u *UDPTransport) ReadConsumed(n int) {
	u.ring.Consume(n)
}

func (u *UDPTransport) Write(b []byte) (int, error) {
	if u.conn == nil {
		return 0, ErrClosed
	}
	return u.conn.Write(b)
}

func (u *UDPTransport) LatencyMS() int {
	return u.cfg.LatencyMS
}
