//go:build !windows

package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

// mapRegion maps size bytes of f as a shared region.
func mapRegion(f *os.File, size int64, readOnly bool) ([]byte, error) {
	prot := unix.PROT_READ
	if !readOnly {
		prot |= unix.PROT_WRITE
	}
	return unix.Mmap(int(f.Fd()), 0, int(size), prot, unix.MAP_SHARED)
}

// unmapRegion releases a region returned by mapRegion.
func unmapRegion(region []byte) error {
	return unix.Munmap(region)
}

// syncRegion flushes dirty pages of the region to the backing file.
func syncRegion(region []byte) error {
	return unix.Msync(region, unix.MS_SYNC)
}
