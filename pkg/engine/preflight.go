package engine

import (
	"fmt"
	"runtime"
)

const gib = 1 << 30

// Preflight checks the environment before any phase runs.
type Preflight struct {
	// Platform is the required GOOS value, e.g. "darwin".
	Platform string

	// SkipPlatform disables the platform check.
	SkipPlatform bool

	// MinFreeGB is the free space required on the filesystem holding Path.
	// Zero disables the check.
	MinFreeGB uint64

	// Path selects the filesystem whose free space is checked.
	Path string

	// GOOS defaults to runtime.GOOS.
	GOOS string

	// FreeBytes defaults to a statfs-based lookup.
	FreeBytes func(path string) (uint64, error)
}

// Check returns a precondition error describing the first failed check.
func (p Preflight) Check() error {
	goos := p.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	if !p.SkipPlatform && p.Platform != "" && goos != p.Platform {
		return NewPreconditionError(
			fmt.Sprintf("unsupported platform %s, expected %s", goos, p.Platform), nil,
		).WithCode(ErrCodePlatform)
	}

	if p.MinFreeGB == 0 {
		return nil
	}
	lookup := p.FreeBytes
	if lookup == nil {
		lookup = FreeBytes
	}
	free, err := lookup(p.Path)
	if err != nil {
		return NewPreconditionError("failed to determine free disk space", err).WithCode(ErrCodeDiskSpace)
	}
	if free < p.MinFreeGB*gib {
		return NewPreconditionError(
			fmt.Sprintf("insufficient disk space on %s: %.1f GB free, %d GB required", p.Path, float64(free)/gib, p.MinFreeGB), nil,
		).WithCode(ErrCodeDiskSpace).
			WithDetail("free_bytes", free)
	}
	return nil
}
