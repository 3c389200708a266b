package scan

import (
	"errors"
	"sync/atomic"
)

// Source supplies the registry snapshot used for one engine call
type Source interface {
	Current() *Registry
}

// Handle holds the active registry and swaps it atomically. Calls that
// already loaded a snapshot keep using it until they return.
type Handle struct {
	current atomic.Pointer[Registry]
	swaps   atomic.Uint64
}

// NewHandle creates a handle serving r
func NewHandle(r *Registry) *Handle {
	h := &Handle{}
	h.current.Store(r)
	return h
}

// Current returns the active registry
func (h *Handle) Current() *Registry {
	return h.current.Load()
}

// Swap installs next and returns the registry it replaced
func (h *Handle) Swap(next *Registry) (*Registry, error) {
	if next == nil {
		return nil, errors.New("cannot swap in a nil registry")
	}
	prev := h.current.Swap(next)
	h.swaps.Add(1)
	return prev, nil
}

// Generation counts successful swaps
func (h *Handle) Generation() uint64 {
	return h.swaps.Load()
}
