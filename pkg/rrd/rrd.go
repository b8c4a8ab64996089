// Package rrd wires the built-in backend kinds into a ready-to-use
// registry. Applications that want external stores register those kinds
// on top before starting any factory.
package rrd

import (
	"github.com/xuejiangtao/rrd4j/pkg/backend"
	"github.com/xuejiangtao/rrd4j/pkg/backend/file"
	"github.com/xuejiangtao/rrd4j/pkg/backend/memory"
	"github.com/xuejiangtao/rrd4j/pkg/backend/mmap"
)

// DefaultKind is the backend kind NewRegistry selects as default.
const DefaultKind = mmap.Name

// NewRegistry returns a registry with the FILE, MMAP and MEMORY kinds
// registered and MMAP selected as the default.
func NewRegistry() *backend.Registry {
	reg := backend.NewRegistry()
	file.Register(reg)
	memory.Register(reg)
	// Selection cannot fail here: the registry is fresh, so no default
	// instance exists yet, let alone one that served a backend.
	_ = reg.SetDefaultFactory(mmap.Register(reg))
	return reg
}
