package store

import (
	"fmt"
	"io"
	"time"

	"github.com/ebusd-go/ebusd/symbol"
)

// Direction markers matching the original daemon's text log format.
const (
	DirReceived = '<'
	DirSent     = '>'
)

// TelegramLogger writes timestamped, direction-tagged text lines for
// individual bytes or whole telegrams, adapted from the original's
// lib/log.c text-mode logging (one line per write, local timestamp with
// millisecond precision, hex-encoded payload).
type TelegramLogger struct {
	w io.Writer
}

// NewTelegramLogger wraps w, typically a *RotatingFile, as a text logger.
func NewTelegramLogger(w io.Writer) *TelegramLogger {
	return &TelegramLogger{w: w}
}

func (l *TelegramLogger) timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05.000")
}

// Raw logs a single byte as it crosses the wire.
func (l *TelegramLogger) Raw(direction byte, b byte) error {
	_, err := fmt.Fprintf(l.w, "%s %c%2.2x\n", l.timestamp(), direction, b)
	return err
}

// Telegram logs the complete byte sequence of a master or slave symbol
// string as one line.
func (l *TelegramLogger) Telegram(direction byte, data []byte) error {
	line := fmt.Sprintf("%s %c", l.timestamp(), direction)
	for _, b := range data {
		line += fmt.Sprintf("%2.2x ", b)
	}
	_, err := fmt.Fprintln(l.w, line)
	return err
}

// Master is a convenience wrapper around Telegram for a MasterSymbols.
func (l *TelegramLogger) Master(direction byte, m *symbol.MasterSymbols) error {
	return l.Telegram(direction, m.Bytes())
}

// Slave is a convenience wrapper around Telegram for a SlaveSymbols.
func (l *TelegramLogger) Slave(direction byte, s *symbol.SlaveSymbols) error {
	return l.Telegram(direction, s.Bytes())
}
