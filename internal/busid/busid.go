// Package busid mints a stable identifier for one running daemon
// instance, used to tag dump-file names and status-listener log lines.
// eBUS has no kernel-level id of its own to borrow, so the instance id
// is derived the same way the teacher derives a socket UUID prefix:
// hostname plus boot time.
package busid

import (
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var cachedPrefix string

func timeToUnix(t time.Time) int64 {
	return int64(t.Sub(time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)).Seconds())
}

// boottimeWithRaceCondition has a race between reading /proc/uptime and
// calling time.Now(): crossing a second boundary between the two calls
// skews the result by one. Call it repeatedly until it returns the same
// answer twice, the same workaround the teacher uses.
func boottimeWithRaceCondition() (int64, error) {
	procUptime, err := ioutil.ReadFile("/proc/uptime")
	if err != nil {
		return -1, err
	}
	fields := strings.Fields(string(procUptime))
	if len(fields) != 2 {
		return -1, fmt.Errorf("could not split /proc/uptime into two parts")
	}
	uptime, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return -1, fmt.Errorf("could not parse /proc/uptime into a float: %w", err)
	}
	return timeToUnix(time.Now().Add(time.Duration(-1 * uptime * float64(time.Second)))), nil
}

func boottime() (int64, error) {
	var prev, curr int64
	curr, err := boottimeWithRaceCondition()
	if err != nil {
		return curr, err
	}
	for prev != curr {
		prev = curr
		curr, err = boottimeWithRaceCondition()
		if err != nil {
			return curr, err
		}
	}
	return curr, nil
}

// prefix returns a string combining the hostname and boot time, which
// globally identifies this daemon instance for as long as the host stays
// up. Cached, since both inputs are constant for the lifetime of the
// process.
func prefix() (string, error) {
	if cachedPrefix != "" {
		return cachedPrefix, nil
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "", err
	}
	bt, err := boottime()
	if err != nil {
		return "", err
	}
	cachedPrefix = fmt.Sprintf("%s_%d", hostname, bt)
	return cachedPrefix, nil
}

var sequence uint64

// Next returns a new id unique within this daemon instance, suitable for
// tagging a dump-file name or a log line referencing a specific telegram
// exchange.
func Next() (string, error) {
	p, err := prefix()
	if err != nil {
		return "", err
	}
	n := atomic.AddUint64(&sequence, 1)
	return fmt.Sprintf("%s_%X", p, n), nil
}
