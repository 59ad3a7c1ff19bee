package model

import (
	"sync"
	"sync/atomic"
)

// LoadFunc produces a ready model.
type LoadFunc func() (Model, error)

type loaded struct {
	m Model
}

// Once holds the process-wide model handle. The load function runs until it
// succeeds once; concurrent callers wait for the in-flight attempt instead of
// starting their own. After success the handle never changes.
type Once struct {
	load LoadFunc

	mu    sync.Mutex
	ready atomic.Pointer[loaded]
}

// NewOnce returns a handle that will be filled by load.
func NewOnce(load LoadFunc) *Once {
	return &Once{load: load}
}

// Ready wraps an already loaded model.
func Ready(m Model) *Once {
	o := &Once{}
	o.ready.Store(&loaded{m: m})
	return o
}

// Load runs the load function if no model is held yet and returns the held
// model. A failed attempt leaves the handle empty so the caller may retry.
func (o *Once) Load() (Model, error) {
	if l := o.ready.Load(); l != nil {
		return l.m, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if l := o.ready.Load(); l != nil {
		return l.m, nil
	}

	m, err := o.load()
	if err != nil {
		return nil, err
	}
	o.ready.Store(&loaded{m: m})
	return m, nil
}

// Current returns the held model without blocking. ok is false until a Load
// has succeeded.
func (o *Once) Current() (m Model, ok bool) {
	if l := o.ready.Load(); l != nil {
		return l.m, true
	}
	return nil, false
}
