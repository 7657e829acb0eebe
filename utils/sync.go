// Package utils provides direct-syscall file and pipe helpers for
// exercising fault plans.
//
// Buffered or mmap-backed I/O hides which syscalls actually run, which
// makes injection rates unobservable; every operation here maps to exactly
// one openat/read/write/close so callers can count on the syscall mix.
package utils

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// TempFile is a temporary file addressed by path; each Read or Write opens
// it fresh so the open syscall is exercised too.
type TempFile struct {
	path string
	mu   sync.Mutex
}

// NewTempFile creates an empty temp file.
func NewTempFile() (*TempFile, error) {
	f, err := os.CreateTemp("", "sysfail-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	return &TempFile{path: path}, nil
}

// Path returns the file's path.
func (t *TempFile) Path() string {
	return t.path
}

// Write replaces the file's content: one openat, one write, one close.
func (t *TempFile) Write(content string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd, err := unix.Open(t.path, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", t.path, err)
	}
	defer unix.Close(fd)

	buf := []byte(content)
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if err != nil {
			return fmt.Errorf("write %s: %w", t.path, err)
		}
		buf = buf[n:]
	}
	return nil
}

// Read returns the file's content: one openat, one read, one close. The
// single read caps content at 4 KiB, plenty for test payloads.
func (t *TempFile) Read() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd, err := unix.Open(t.path, unix.O_RDONLY, 0)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", t.path, err)
	}
	defer unix.Close(fd)

	buf := make([]byte, 4096)
	n, err := unix.Read(fd, buf)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", t.path, err)
	}
	return string(buf[:n]), nil
}

// Remove deletes the file.
func (t *TempFile) Remove() error {
	return os.Remove(t.path)
}

// Pipe is a packet-mode pipe: O_DIRECT keeps each write a discrete
// datagram, and the enlarged buffer keeps writers from blocking mid-test.
type Pipe struct {
	rd int
	wr int
}

// pipeBufSize is the pipe capacity requested via F_SETPIPE_SZ.
const pipeBufSize = 1 << 20

// NewPipe creates a packet pipe.
func NewPipe() (*Pipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_DIRECT); err != nil {
		return nil, fmt.Errorf("pipe2: %w", err)
	}
	if _, err := unix.FcntlInt(uintptr(fds[1]), unix.F_SETPIPE_SZ, pipeBufSize); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, fmt.Errorf("set pipe size: %w", err)
	}
	return &Pipe{rd: fds[0], wr: fds[1]}, nil
}

// Write sends one packet.
func (p *Pipe) Write(data []byte) (int, error) {
	n, err := unix.Write(p.wr, data)
	if err != nil {
		return 0, fmt.Errorf("write pipe: %w", err)
	}
	return n, nil
}

// Read receives one packet, up to len(buf) bytes.
func (p *Pipe) Read(buf []byte) (int, error) {
	n, err := unix.Read(p.rd, buf)
	if err != nil {
		return 0, fmt.Errorf("read pipe: %w", err)
	}
	return n, nil
}

// CloseWrite closes the writing end.
func (p *Pipe) CloseWrite() error {
	return unix.Close(p.wr)
}

// Close closes both ends.
func (p *Pipe) Close() {
	unix.Close(p.rd)
	unix.Close(p.wr)
}
