// Package transport defines the lane bus binding a rank drives and the
// registry of backends that can open one.
//
// Ownership boundary:
// - the two bus primitives (commit, update) and their ordering contract
// - backend specs and the injected backend registry
//
// Backends live in subpackages (sim, remote) and register themselves on a
// Registry built by the process root; there is no global table.
package transport

import (
	"time"

	"github.com/danmuck/cictl/internal/protocol/wire"
)

// Transport writes and reads one word per lane. Commit is write-only; Update
// is a non-destructive read that may be repeated. Errors are reported as-is
// and never retried by the transport itself.
type Transport interface {
	Commit(words wire.Vector) error
	Update(words *wire.Vector) error
}

// Closer is implemented by transports holding external resources.
type Closer interface {
	Close() error
}

// Topology describes the lanes behind a transport.
type Topology struct {
	Lanes        int
	UnitsPerLane int
}

// Spec selects and parameterizes a backend.
type Spec struct {
	Kind         string
	Address      string
	Lanes        int
	UnitsPerLane int
	// Latency is the number of reads a simulated lane stays busy.
	Latency     int
	DialTimeout time.Duration
	Options     map[string]string
}

// Topology returns the lane topology requested by s.
func (s Spec) Topology() Topology {
	return Topology{Lanes: s.Lanes, UnitsPerLane: s.UnitsPerLane}
}

// Close releases t when it holds resources.
func Close(t Transport) error {
	if c, ok := t.(Closer); ok {
		return c.Close()
	}
	return nil
}
