//go:build linux

package capemgr

import (
	"context"
	"errors"

	"golang.org/x/sys/unix"
)

// pollInterval bounds how long Wait blocks before rechecking ctx.
const pollInterval = 100 // ms

// Wait blocks until the kernel signals an edge on the value file, then
// returns the new value. It returns ctx.Err() when ctx is done.
func (e *EdgeHandle) Wait(ctx context.Context) (int, error) {
	fd, ok := e.File.(interface{ Fd() uintptr })
	if !ok {
		return 0, ErrPollUnsupported
	}
	// Consume the pending state so the next POLLPRI is a fresh edge.
	_, _ = e.Read()

	fds := []unix.PollFd{{Fd: int32(fd.Fd()), Events: unix.POLLPRI | unix.POLLERR}}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := unix.Poll(fds, pollInterval)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return 0, err
		}
		if n > 0 && fds[0].Revents&unix.POLLPRI != 0 {
			return e.Read()
		}
	}
}
