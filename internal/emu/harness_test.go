package emu

import (
	"context"
	"testing"
	"time"

	"github.com/murkland/tango/internal/core"
)

type fakeCore struct {
	regs        [16]uint32
	frameDone   bool
	stepCount   int
	framesRun   int
	traps       []core.Trap
	videoBuffer []byte

	// stepsPerFrame, when nonzero, requires that many Step() calls before
	// frameDone flips true, modeling a core whose frame is made of several
	// CPU instructions/cycles rather than one.
	stepsPerFrame int
	stepsThisFrame int
}

func (c *fakeCore) Step() {
	c.stepCount++
	if c.stepsPerFrame == 0 {
		c.frameDone = true
		return
	}
	c.stepsThisFrame++
	if c.stepsThisFrame >= c.stepsPerFrame {
		c.frameDone = true
		c.stepsThisFrame = 0
	}
}
func (c *fakeCore) FrameComplete() bool        { return c.frameDone }
func (c *fakeCore) SaveState() ([]byte, error) { return nil, nil }
func (c *fakeCore) LoadState([]byte) error     { return nil }
func (c *fakeCore) ReadRegister(n int) uint32  { return c.regs[n] }
func (c *fakeCore) WriteRegister(n int, v uint32) { c.regs[n] = v }
func (c *fakeCore) ReadMemory(addr uint32, buf []byte)   {}
func (c *fakeCore) WriteMemory(addr uint32, data []byte) {}
func (c *fakeCore) SetTraps(traps []core.Trap)           { c.traps = traps }
func (c *fakeCore) VideoBuffer() []byte                  { return c.videoBuffer }
func (c *fakeCore) GameTitle() string                    { return "TEST" }
func (c *fakeCore) CRC32() uint32                         { return 0 }
func (c *fakeCore) AudioSamples(left, right []int16, ratio float64) int { return 0 }

func TestStepRunsFrameCallback(t *testing.T) {
	c := &fakeCore{frameDone: true}
	h := New(c)

	called := false
	h.SetFrameCallback(func(core.Core) { called = true })

	if err := h.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !called {
		t.Errorf("frame callback was not invoked")
	}
}

func TestPauseStopsStepping(t *testing.T) {
	c := &fakeCore{frameDone: true}
	h := New(c)
	h.Pause()

	before := c.stepCount
	if err := h.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if c.stepCount != before {
		t.Errorf("Step() advanced the core while paused: stepCount %d -> %d", before, c.stepCount)
	}
}

func TestRunOnCoreExecutesDuringStep(t *testing.T) {
	c := &fakeCore{frameDone: true}
	h := New(c)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.RunOnCore(ctx, func(cc core.Core) { cc.WriteRegister(0, 42) }) }()

	// Give RunOnCore a moment to enqueue, then drive a frame to pick it up.
	time.Sleep(10 * time.Millisecond)
	if err := h.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("RunOnCore: %v", err)
	}
	if got := c.ReadRegister(0); got != 42 {
		t.Errorf("r0 = %d, want 42 (RunOnCore closure should have run)", got)
	}
}

func TestRunOnCoreExecutesWhilePaused(t *testing.T) {
	c := &fakeCore{frameDone: true}
	h := New(c)
	h.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.RunOnCore(ctx, func(cc core.Core) { cc.WriteRegister(0, 7) }) }()

	time.Sleep(10 * time.Millisecond)
	if err := h.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("RunOnCore: %v", err)
	}
	if got := c.ReadRegister(0); got != 7 {
		t.Errorf("r0 = %d, want 7 (RunOnCore must run even while paused)", got)
	}
	if c.stepCount != 0 {
		t.Errorf("stepCount = %d, want 0 (core must not advance while paused)", c.stepCount)
	}
}

func TestStepStopsExactlyAtFrameCompleteNoOvershoot(t *testing.T) {
	// A core whose frame takes several Step() calls to complete: Step must
	// stop driving it the instant FrameComplete() turns true, never issuing
	// one extra Step() into the next frame. The frame callback must fire
	// strictly before frame n+1 begins.
	c := &fakeCore{stepsPerFrame: 3}
	h := New(c)

	if err := h.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if c.stepCount != 3 {
		t.Errorf("stepCount = %d, want exactly 3 (no trailing overshoot step)", c.stepCount)
	}
	if !c.FrameComplete() {
		t.Errorf("core should be left at FrameComplete() == true after Step()")
	}
}

func TestSetTrapsForwardsToCore(t *testing.T) {
	c := &fakeCore{}
	h := New(c)
	traps := []core.Trap{{Address: 0x1234}}
	h.SetTraps(traps)
	if len(c.traps) != 1 || c.traps[0].Address != 0x1234 {
		t.Errorf("core.traps = %+v, want the installed trap", c.traps)
	}
}

func TestLockAudioIsMutuallyExclusive(t *testing.T) {
	c := &fakeCore{}
	h := New(c)

	release := h.LockAudio()
	acquired := make(chan struct{})
	go func() {
		r2 := h.LockAudio()
		close(acquired)
		r2()
	}()

	select {
	case <-acquired:
		t.Fatalf("second LockAudio() should not have acquired while the first was held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("second LockAudio() never acquired after release")
	}
}
