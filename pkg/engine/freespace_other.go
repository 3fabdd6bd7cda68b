//go:build !darwin && !linux && !freebsd

package engine

import "errors"

// FreeBytes is not supported on this platform.
func FreeBytes(string) (uint64, error) {
	return 0, errors.New("free space check is not supported on this platform")
}
