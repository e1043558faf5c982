//go:build !linux

package capemgr

import "context"

// Wait is only implemented on Linux.
func (e *EdgeHandle) Wait(ctx context.Context) (int, error) {
	return 0, ErrPollUnsupported
}
