//go:build linux

package xtables

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Capture runs fn with the process standard output redirected into a pipe
// and returns at most limit bytes of what fn printed. Output past the limit
// is discarded. Standard output is restored before Capture returns, also
// when fn panics. Captures are serialized process wide; nothing else in the
// process may use standard output while one is running.
func Capture(limit int, fn func()) (out []byte, err error) {
	if limit <= 0 {
		limit = DefaultCaptureLimit
	}

	captureMu.Lock()
	defer captureMu.Unlock()

	saved, err := unix.Dup(unix.Stdout)
	if err != nil {
		return nil, &CaptureError{Op: "dup", Err: err}
	}
	defer unix.Close(saved)

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, &CaptureError{Op: "pipe", Err: err}
	}
	r := os.NewFile(uintptr(fds[0]), "stdout-capture")
	defer r.Close()

	err = unix.Dup3(fds[1], unix.Stdout, 0)
	unix.Close(fds[1])
	if err != nil {
		return nil, &CaptureError{Op: "redirect", Err: err}
	}

	restored := false
	restore := func() error {
		if restored {
			return nil
		}
		restored = true
		return unix.Dup3(saved, unix.Stdout, 0)
	}
	defer func() {
		if rerr := restore(); rerr != nil && err == nil {
			err = &CaptureError{Op: "restore", Err: rerr}
		}
	}()

	done := make(chan readResult, 1)
	go func() {
		data, err := io.ReadAll(io.LimitReader(r, int64(limit)))
		if err == nil {
			_, err = io.Copy(io.Discard, r)
		}
		done <- readResult{data: data, err: err}
	}()

	// os.Stdout is unbuffered; everything fn printed is already in the pipe.
	fn()

	// Restoring fd 1 drops the last write end, so the reader sees EOF.
	if err := restore(); err != nil {
		return nil, &CaptureError{Op: "restore", Err: err}
	}

	res := <-done
	if res.err != nil {
		return nil, &CaptureError{Op: "read", Err: res.err}
	}
	return res.data, nil
}
