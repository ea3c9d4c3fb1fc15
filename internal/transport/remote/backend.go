// Package remote carries lane words over a TCP link: a Client that is a
// Transport and a Server exposing any Transport, typically a simulator.
package remote

import (
	"context"
	"fmt"
	"strconv"

	"github.com/danmuck/cictl/internal/transport"
)

const Kind = "remote"

// Backend opens link clients from transport specs.
type Backend struct {
	Dial DialConfig
}

func NewBackend() Backend {
	return Backend{Dial: DefaultDialConfig()}
}

func (b Backend) Kind() string { return Kind }

// Open dials spec.Address. Options understood: attempts.
func (b Backend) Open(spec transport.Spec) (transport.Transport, error) {
	cfg := b.Dial
	cfg.Address = spec.Address
	cfg.Topology = spec.Topology()
	if spec.DialTimeout > 0 {
		cfg.ConnectTimeout = spec.DialTimeout
	}
	if v, ok := spec.Options["attempts"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: attempts=%q", transport.ErrInvalidSpec, v)
		}
		cfg.Attempts = n
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: remote backend needs an address", transport.ErrInvalidSpec)
	}
	return Dial(context.Background(), cfg)
}
