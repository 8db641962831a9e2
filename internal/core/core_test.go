package core

import (
	"strings"
	"testing"
)

type nopCore struct{}

func (nopCore) Step()                                                       {}
func (nopCore) FrameComplete() bool                                         { return true }
func (nopCore) SaveState() ([]byte, error)                                  { return nil, nil }
func (nopCore) LoadState([]byte) error                                      { return nil }
func (nopCore) ReadRegister(int) uint32                                     { return 0 }
func (nopCore) WriteRegister(int, uint32)                                   {}
func (nopCore) ReadMemory(uint32, []byte)                                   {}
func (nopCore) WriteMemory(uint32, []byte)                                  {}
func (nopCore) SetTraps([]Trap)                                             {}
func (nopCore) VideoBuffer() []byte                                         { return nil }
func (nopCore) GameTitle() string                                           { return "TEST" }
func (nopCore) CRC32() uint32                                               { return 0 }
func (nopCore) AudioSamples(left, right []int16, ratio float64) int { return 0 }

func TestRegisterAndOpen(t *testing.T) {
	Register("nop-test", func(romPath string) (Core, error) { return nopCore{}, nil })

	c, err := Open("nop-test", "rom.gba")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := c.(nopCore); !ok {
		t.Errorf("Open returned %T, want nopCore", c)
	}
}

func TestOpenUnknownNameListsRegistered(t *testing.T) {
	Register("nop-test-2", func(romPath string) (Core, error) { return nopCore{}, nil })

	_, err := Open("does-not-exist", "rom.gba")
	if err == nil {
		t.Fatalf("expected an error opening an unregistered implementation")
	}
	if !strings.Contains(err.Error(), "nop-test-2") {
		t.Errorf("error %q should list the registered implementation nop-test-2", err)
	}
}
