// Package store persists raw telegram bytes and human-readable log lines
// to rotating files on disk, the external-interface stub spec.md §6
// describes for dump/log output.
package store

import (
	"fmt"
	"os"
	"sync"

	"github.com/ebusd-go/ebusd/internal/metrics"
)

// RotatingFile is an append-only file that renames itself aside and
// reopens once it grows past maxBytes, grounded on the original
// daemon's RotateFile (single ".old" backup, size-triggered) and on
// saver.Connection.Rotate's open-new-writer-and-count idiom. keep
// generalizes the original's single-generation backup to a
// configurable count of kept ".N" generations.
type RotatingFile struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	keep     int
	f        *os.File
	size     int64
}

// NewRotatingFile opens (or creates) path for appending. maxBytes <= 0
// disables rotation. keep <= 0 is treated as 1: a single backup
// generation, named path + ".1".
func NewRotatingFile(path string, maxBytes int64, keep int) (*RotatingFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if keep <= 0 {
		keep = 1
	}
	return &RotatingFile{path: path, maxBytes: maxBytes, keep: keep, f: f, size: info.Size()}, nil
}

// Write appends b, rotating to a fresh file first if b would push the
// current file past maxBytes.
func (r *RotatingFile) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxBytes > 0 && r.size+int64(len(b)) > r.maxBytes {
		if err := r.rotateLocked(); err != nil {
			return 0, err
		}
	}
	n, err := r.f.Write(b)
	r.size += int64(n)
	return n, err
}

func (r *RotatingFile) rotateLocked() error {
	if err := r.f.Close(); err != nil {
		return err
	}
	for i := r.keep - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", r.path, i)
		to := fmt.Sprintf("%s.%d", r.path, i+1)
		os.Rename(from, to) // best effort: a missing source generation is not an error
	}
	if r.keep > 0 {
		os.Rename(r.path, fmt.Sprintf("%s.1", r.path))
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	r.f = f
	r.size = 0
	metrics.NewFileCount.Inc()
	return nil
}

// Close closes the underlying file.
func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}
