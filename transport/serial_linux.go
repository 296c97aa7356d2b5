//go:build linux

package transport

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// baudToTermios maps supported eBUS baud rates to termios constants.
var baudToTermios = map[int]uint32{
	2400:   unix.B2400,
	9600:   unix.B9600,
	115200: unix.B115200,
}

// configureRawSerial puts f into raw, non-canonical 8N1 mode at the given
// baud rate via termios ioctls, mirroring the teacher's use of
// golang.org/x/sys/unix ioctls for platform-specific socket setup
// (netlink_linux.go) applied here to a serial fd instead of a netlink
// socket.
func configureRawSerial(f *os.File, baud int) error {
	speed, ok := baudToTermios[baud]
	if !ok {
		speed = unix.B2400
	}
	fd := int(f.Fd())
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CLOCAL | unix.CREAD | speed
	t.Ispeed = speed
	t.Ospeed = speed
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

// waitReadable polls fd for readability for up to budget, returning
// (true, nil) if data is ready before the timeout elapses.
func waitReadable(f *os.File, budget time.Duration) (bool, error) {
	fd := int(f.Fd())
	ms := int(budget / time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, ms)
	if err != nil {
		return false, err
	}
	return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
}
