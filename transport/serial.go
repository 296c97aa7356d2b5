package transport

import (
	"io"
	"os"
	"time"
)

// SerialConfig configures a serial transport. BaudRate is 2400 for plain
// eBUS adapters, or 9600/115200 for enhanced adapters (spec.md §4.1).
type SerialConfig struct {
	Device    string
	BaudRate  int
	LatencyMS int
}

// SerialTransport is a Transport backed by a raw-mode serial device,
// grounded on the teacher's netlink_linux.go/netlink_darwin.go GOOS-split
// for platform-specific syscalls — here the platform-specific part is
// termios configuration instead of netlink sockets.
type SerialTransport struct {
	cfg  SerialConfig
	file *os.File
	ring *ringBuffer
}

// NewSerialTransport creates a serial transport for cfg. The device is not
// opened until Open is called.
func NewSerialTransport(cfg SerialConfig) *SerialTransport {
	if cfg.LatencyMS == 0 {
		cfg.LatencyMS = DefaultHostLatencyMS
	}
	return &SerialTransport{cfg: cfg, ring: newRingBuffer()}
}

func (s *SerialTransport) Open() error {
	f, err := os.OpenFile(s.cfg.Device, os.O_RDWR|os.O_NOCTTY, 0)
	if err != nil {
		return err
	}
	if err := configureRawSerial(f, s.cfg.BaudRate); err != nil {
		f.Close()
		return err
	}
	s.file = f
	return nil
}

func (s *SerialTransport) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *SerialTransport) IsValid() bool {
	return s.file != nil
}

// Read polls the serial fd for timeout (plus the configured latency
// budget) and returns newly arrived, still-unread bytes.
func (s *SerialTransport) Read(timeout time.Duration) ([]byte, error) {
	if s.file == nil {
		return nil, ErrClosed
	}
	budget := timeout + time.Duration(s.cfg.LatencyMS)*time.Millisecond
	ready, err := waitReadable(s.file, budget)
	if err != nil {
		return nil, err
	}
	if !ready {
		return s.ring.Peek(), ErrTimeout
	}
	buf := make([]byte, MaxTelegram)
	n, err := s.file.Read(buf)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if n > 0 {
		if ferr := s.ring.Fill(buf[:n]); ferr != nil {
			return s.ring.Peek(), ferr
		}
	}
	return s.ring.Peek(), nil
}

func (s *SerialTransport) ReadConsumed(n int) {
	s.ring.Consume(n)
}

func (s *SerialTransport) Write(b []byte) (int, error) {
	if s.file == nil {
		return 0, ErrClosed
	}
	return s.file.Write(b)
}

func (s *SerialTransport) LatencyMS() int {
	return s.cfg.LatencyMS
}
