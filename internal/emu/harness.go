// Package emu is the emulator harness: it owns the single emulator-driving
// goroutine, cooperates with the network domain through a single-slot
// run-on-core mailbox, and drives the configured traps each frame. The
// concrete core.Core is supplied by the embedding application; this package
// never touches GBA internals directly.
package emu

import (
	"context"
	"fmt"
	"sync"

	"github.com/murkland/tango/internal/core"
)

// FrameCallback is invoked once per completed frame, after traps for that
// frame have fired, with the harness's lock already held.
type FrameCallback func(core.Core)

// Harness drives a core.Core's main loop and exposes the cooperative
// primitives the Match/Battle domain needs to safely reach into it. All
// cross-domain access to the core goes through RunOnCore.
type Harness struct {
	mu     sync.Mutex
	core   core.Core
	paused bool

	frameCB FrameCallback

	// pending holds at most one queued cross-domain closure: a bounded,
	// always-drained mailbox instead of an unbounded work queue.
	pending func(core.Core)

	audioMu sync.Mutex
}

// New creates a Harness around an already-loaded core.
func New(c core.Core) *Harness {
	return &Harness{core: c}
}

// SetFrameCallback installs the per-frame callback, replacing any previous one.
func (h *Harness) SetFrameCallback(cb FrameCallback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frameCB = cb
}

// SetTraps installs the given executable-address traps on the core.
func (h *Harness) SetTraps(traps []core.Trap) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.core.SetTraps(traps)
}

// Pause/Unpause suspend and resume the Run loop between frames.
func (h *Harness) Pause() {
	h.mu.Lock()
	h.paused = true
	h.mu.Unlock()
}

func (h *Harness) Unpause() {
	h.mu.Lock()
	h.paused = false
	h.mu.Unlock()
}

// RunOnCore schedules fn to run with exclusive core access on the emulator
// thread, and blocks until it has executed. The mailbox holds only one
// pending closure at a time: a second concurrent caller blocks until the
// first's fn has been picked up by Step.
func (h *Harness) RunOnCore(ctx context.Context, fn func(core.Core)) error {
	done := make(chan struct{})
	wrapped := func(c core.Core) {
		fn(c)
		close(done)
	}

	h.mu.Lock()
	for h.pending != nil {
		h.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		h.mu.Lock()
	}
	h.pending = wrapped
	h.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LockAudio returns a release function that must be called to unlock; it
// serializes LockAudio callers against each other. Step and Resampler.Pull
// do not take this lock.
func (h *Harness) LockAudio() func() {
	h.audioMu.Lock()
	return h.audioMu.Unlock
}

// Step advances the core by one frame, running any queued RunOnCore closure
// first and the frame callback after, all under the harness lock so trap
// callbacks and the frame callback get exclusive core access.
func (h *Harness) Step() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	// A pending RunOnCore closure must run even while paused (callers rely
	// on it executing before Unpause returns control), so the mailbox is
	// drained before the pause check.
	if h.pending != nil {
		fn := h.pending
		h.pending = nil
		fn(h.core)
	}

	if h.paused {
		return nil
	}

	// FrameComplete reports on the most recent Step, so it is still true
	// here from the previous frame's final step; the new frame always needs
	// at least one Step before the flag is meaningful again.
	for {
		h.core.Step()
		if h.core.FrameComplete() {
			break
		}
	}

	if h.frameCB != nil {
		h.frameCB(h.core)
	}
	return nil
}

// Run drives Step in a loop until ctx is cancelled.
func (h *Harness) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.Step(); err != nil {
			return fmt.Errorf("emu: step: %w", err)
		}
	}
}

// Core returns the underlying core.Core. Callers outside the emulator
// thread must go through RunOnCore instead of calling this directly.
func (h *Harness) Core() core.Core { return h.core }
