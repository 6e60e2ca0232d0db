// Package wake provides the cross-thread notification channel between the
// protocol callbacks and the single-threaded consumer loop. Callbacks post a
// small bitmask; the consumer drains all pending bits in one wake cycle so
// rapid notifications coalesce into a single redraw.
package wake

import (
	"sync"
	"time"
)

// Bits is a bitmask of requested consumer-loop actions.
type Bits uint32

const (
	// Redraw requests a repaint of the current view.
	Redraw Bits = 1 << iota
	// SmtpError indicates a queued send failure to surface.
	SmtpError
	// Connected indicates a transition to connected state.
	Connected
	// StatusChanged indicates the status line changed.
	StatusChanged
	// NewMail indicates previously unseen UIDs arrived in the inbox.
	NewMail
	// SearchUpdated indicates new search results were accumulated.
	SearchUpdated
	// Quit asks the consumer loop to exit.
	Quit
)

// Waker accumulates posted bits and signals a capacity-1 channel. Posting is
// non-blocking from any goroutine.
type Waker struct {
	mu   sync.Mutex
	bits Bits
	ch   chan struct{}
}

// New creates a Waker.
func New() *Waker {
	return &Waker{ch: make(chan struct{}, 1)}
}

// Post ORs bits into the pending set and signals the consumer.
func (w *Waker) Post(bits Bits) {
	if bits == 0 {
		return
	}
	w.mu.Lock()
	w.bits |= bits
	w.mu.Unlock()

	select {
	case w.ch <- struct{}{}:
	default:
		// Consumer already has a pending wake-up.
	}
}

// Wait blocks until bits are posted or the timeout elapses, then returns all
// pending bits, clearing them. A zero return with ok=false means timeout.
func (w *Waker) Wait(timeout time.Duration) (Bits, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.ch:
	case <-timer.C:
		return w.take(), false
	}
	return w.take(), true
}

// TryTake returns pending bits without blocking.
func (w *Waker) TryTake() Bits {
	select {
	case <-w.ch:
	default:
	}
	return w.take()
}

func (w *Waker) take() Bits {
	w.mu.Lock()
	bits := w.bits
	w.bits = 0
	w.mu.Unlock()
	return bits
}
