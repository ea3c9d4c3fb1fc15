package transport

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrBackendExists  = errors.New("transport: backend already registered")
	ErrBackendNil     = errors.New("transport: backend is nil")
	ErrUnknownBackend = errors.New("transport: unknown backend")
	ErrInvalidKind    = errors.New("transport: invalid backend kind")
	ErrInvalidSpec    = errors.New("transport: invalid spec")
)

// Backend opens transports of one kind.
type Backend interface {
	Kind() string
	Open(spec Spec) (Transport, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc struct {
	Name   string
	OpenFn func(spec Spec) (Transport, error)
}

func (b BackendFunc) Kind() string { return b.Name }

func (b BackendFunc) Open(spec Spec) (Transport, error) { return b.OpenFn(spec) }

// Registry stores backends by kind.
type Registry struct {
	items map[string]Backend
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Backend)}
}

// Register adds a backend to the registry.
func (r *Registry) Register(b Backend) error {
	if b == nil {
		return ErrBackendNil
	}
	kind := strings.TrimSpace(b.Kind())
	if !isValidKind(kind) {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if _, ok := r.items[kind]; ok {
		return fmt.Errorf("%w: %s", ErrBackendExists, kind)
	}
	r.items[kind] = b
	return nil
}

// Resolve returns a backend by kind.
func (r *Registry) Resolve(kind string) (Backend, bool) {
	b, ok := r.items[kind]
	return b, ok
}

// Kinds returns registered kinds in deterministic order.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.items))
	for kind := range r.items {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}

// Open validates spec and opens a transport from the matching backend.
func (r *Registry) Open(spec Spec) (Transport, error) {
	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}
	b, ok := r.Resolve(spec.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownBackend, spec.Kind, strings.Join(r.Kinds(), ","))
	}
	t, err := b.Open(spec)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", spec.Kind, err)
	}
	return t, nil
}

// ValidateSpec checks the lane topology fields of spec.
func ValidateSpec(spec Spec) error {
	if !isValidKind(spec.Kind) {
		return fmt.Errorf("%w: kind %q", ErrInvalidSpec, spec.Kind)
	}
	if spec.Lanes < 1 || spec.Lanes > 8 {
		return fmt.Errorf("%w: lanes must be 1..8, got %d", ErrInvalidSpec, spec.Lanes)
	}
	if spec.UnitsPerLane < 1 || spec.UnitsPerLane > 8 {
		return fmt.Errorf("%w: units per lane must be 1..8, got %d", ErrInvalidSpec, spec.UnitsPerLane)
	}
	if spec.Latency < 0 {
		return fmt.Errorf("%w: negative latency", ErrInvalidSpec)
	}
	return nil
}

func isValidKind(kind string) bool {
	if kind == "" {
		return false
	}
	lastSep := false
	for i := 0; i < len(kind); i++ {
		c := kind[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '-' || c == '_'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if (i == 0 || i == len(kind)-1) && isSep {
			return false
		}
		if isSep && lastSep {
			return false
		}
		lastSep = isSep
	}
	return true
}
