//go:build windows

package mmap

import "os"

// Windows support degrades to plain file I/O: mapRegion reports no region
// and the backend routes every access through the file handle.

func mapRegion(f *os.File, size int64, readOnly bool) ([]byte, error) {
	return nil, nil
}

func unmapRegion(region []byte) error { return nil }

func syncRegion(region []byte) error { return nil }
