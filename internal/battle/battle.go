// Package battle implements the per-battle lifecycle state machine driven
// by ROM-address traps installed by the emulator harness. Trap handling is
// dispatched through a single TrapKind-tagged entry point rather than one
// closure per trap, so the trap table stays static and no per-trap state
// needs capturing.
package battle

import (
	"fmt"
	"sync"

	"github.com/murkland/tango/internal/core"
	"github.com/murkland/tango/internal/pairqueue"
	"github.com/murkland/tango/internal/protocol"
)

// State is one of the four battle lifecycle states.
type State int

const (
	StateInitializing State = iota
	StateAcceptingInput
	StateEnding
	StateOver
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAcceptingInput:
		return "accepting_input"
	case StateEnding:
		return "ending"
	case StateOver:
		return "over"
	default:
		return "unknown"
	}
}

// TrapKind tags each ROM-address trap the Battle state machine reacts to.
type TrapKind int

const (
	TrapBattleInitCallBattleCopyInputData TrapKind = iota
	TrapBattleUpdateCallBattleCopyInputData
	TrapBattleInitMarshalRet
	TrapBattleTurnMarshalRet
	TrapBattleIsP2Test
	TrapLinkIsP2Ret
	TrapBattleEndingRet
	TrapBattleStartRet
)

// Game abstracts the ROM-specific memory offsets the Battle state machine
// needs to poke/peek, keeping Battle itself ROM-agnostic. A concrete Game
// implementation is provided by the embedding application; this package
// never hard-codes a specific game's addresses.
type Game interface {
	// SetPlayerInputState writes one side's joyflags/custom-screen-state
	// into emulator memory at the ROM's per-player input slot.
	SetPlayerInputState(c core.Core, playerIndex int, joyflags uint16, customScreenState uint8)
	// SetPlayerMarshaledBattleState writes a 0x100-byte turn payload into
	// the ROM's per-player marshaled-state slot.
	SetPlayerMarshaledBattleState(c core.Core, playerIndex int, turn []byte)
	// ReadMarshaledBattleState reads the local side's just-produced 0x100-byte
	// turn payload out of emulator memory, for attaching to an outgoing Input.
	ReadMarshaledBattleState(c core.Core) []byte
}

// gameRegistry mirrors internal/core's Register/Open driver-registry idiom
// (database/sql-style): a concrete Game is ROM-specific, so tools that need
// one (cmd/tango-dumpvideo) select it by name and link it in via a blank
// import rather than this package depending on any particular ROM's memory
// layout.
var gameRegistry = map[string]Game{}

// RegisterGame makes a Game implementation available under name.
func RegisterGame(name string, g Game) {
	gameRegistry[name] = g
}

// OpenGame returns the Game registered under name. It returns an error
// naming every registered implementation if name is unknown.
func OpenGame(name string) (Game, error) {
	g, ok := gameRegistry[name]
	if !ok {
		names := make([]string, 0, len(gameRegistry))
		for n := range gameRegistry {
			names = append(names, n)
		}
		return nil, fmt.Errorf("battle: no Game registered as %q (registered: %v); link one in with a blank import", name, names)
	}
	return g, nil
}

// Battle is the per-battle state, owned exclusively by one Match. Exactly
// one Battle is active per Match at any time.
type Battle struct {
	isP2 bool

	// mu guards the pair queue and everything fed to or drained from it:
	// the match's receive loop appends remote inputs from the network
	// goroutine while the emulator goroutine consumes pairs in traps.
	mu    sync.Mutex
	queue *pairqueue.Queue[protocol.Input]

	remoteDelay uint32

	pendingLocalTurn          []byte
	pendingLocalTurnTicksLeft int32

	state                    State
	lastCommittedRemoteInput protocol.Input
	committedSaveState       []byte

	// pendingCommitted buffers pairs drained from queue but not yet consumed
	// one-per-tick by TakeLastInput.
	pendingCommitted []pairqueue.Pair[protocol.Input]
}

// New creates a Battle in the Initializing state.
func New(isP2 bool, localDelay, remoteDelay uint32, capacity int) *Battle {
	return &Battle{
		isP2:        isP2,
		queue:       pairqueue.New[protocol.Input](capacity, localDelay),
		remoteDelay: remoteDelay,
		state:       StateInitializing,
	}
}

// LocalPlayerIndex is 0 when not isP2, else 1.
func (b *Battle) LocalPlayerIndex() int {
	if b.isP2 {
		return 1
	}
	return 0
}

// RemotePlayerIndex is the complement of LocalPlayerIndex.
func (b *Battle) RemotePlayerIndex() int {
	return 1 - b.LocalPlayerIndex()
}

// State returns the current lifecycle state.
func (b *Battle) State() State { return b.state }

// IsAcceptingInput reports whether the battle has reached AcceptingInput.
func (b *Battle) IsAcceptingInput() bool { return b.state == StateAcceptingInput || b.state == StateEnding }

// IsOver reports whether the battle has reached Over.
func (b *Battle) IsOver() bool { return b.state == StateOver }

// CommittedSaveState returns the save-state blob captured when input
// acceptance began, or nil if not yet captured. It is the checkpoint a
// replay of this battle starts from.
func (b *Battle) CommittedSaveState() []byte { return b.committedSaveState }

// AddLocalInput appends a locally-sampled Input to the pair queue.
func (b *Battle) AddLocalInput(in protocol.Input) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue.AddLocal(in)
}

// AddRemoteInput appends a peer-sourced Input to the pair queue. It does
// not touch LastCommittedRemoteInput: that only advances once the input
// commits as half of a pair.
func (b *Battle) AddRemoteInput(in protocol.Input) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue.AddRemote(in)
}

// LastCommittedRemoteInput returns the most recently committed remote
// Input, used by the Match send loop to stamp outgoing local
// Input.RemoteTick.
func (b *Battle) LastCommittedRemoteInput() protocol.Input {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastCommittedRemoteInput
}

// absorbCommitted folds a batch of freshly-committed pairs into the
// pendingCommitted buffer and advances lastCommittedRemoteInput to the
// newest committed remote entry. Callers must hold mu.
func (b *Battle) absorbCommitted(committed []pairqueue.Pair[protocol.Input]) {
	if len(committed) == 0 {
		return
	}
	b.lastCommittedRemoteInput = committed[len(committed)-1].Remote
	b.pendingCommitted = append(b.pendingCommitted, committed...)
}

// PeekLocal returns the locally-predictable-but-uncommitted suffix of the
// local queue without consuming anything.
func (b *Battle) PeekLocal() []protocol.Input {
	b.mu.Lock()
	defer b.mu.Unlock()
	// ConsumeAndPeekLocal is destructive for the committed prefix, so buffer
	// whatever it drains and only report the peeked suffix here.
	committed, peeked := b.queue.ConsumeAndPeekLocal()
	b.absorbCommitted(committed)
	return peeked
}

// TakeLastInput pops the next already-committed InputPair, draining the
// queue first if nothing is buffered. ok is false if no pair is available
// yet; callers (the emulator harness) must cooperatively wait and retry.
func (b *Battle) TakeLastInput() (pair pairqueue.Pair[protocol.Input], ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pendingCommitted) == 0 {
		committed, _ := b.queue.ConsumeAndPeekLocal()
		b.absorbCommitted(committed)
	}
	if len(b.pendingCommitted) == 0 {
		return pairqueue.Pair[protocol.Input]{}, false
	}
	pair = b.pendingCommitted[0]
	b.pendingCommitted = b.pendingCommitted[1:]
	return pair, true
}

// SetPendingLocalTurn attaches a freshly-marshaled turn payload to be
// included on the next outgoing local Input. ticksLeft is stored alongside
// it but does not affect when the payload is cleared: the first
// TakePendingLocalTurn call clears it.
func (b *Battle) SetPendingLocalTurn(turn []byte, ticksLeft int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pendingLocalTurn = turn
	b.pendingLocalTurnTicksLeft = ticksLeft
}

// TakePendingLocalTurn returns and clears the pending turn payload, if any,
// for attachment to the next outgoing Input.
func (b *Battle) TakePendingLocalTurn() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.pendingLocalTurn
	b.pendingLocalTurn = nil
	return t
}

// HandleTrap dispatches one ROM-address trap to the Battle state machine. c
// is the emulator core (for PC/register manipulation), g is the ROM-specific
// memory-layout helper. HandleTrap never blocks: it reports false when a
// committed input pair is not yet available, in which case PC is left on the
// copy routine and no input has been written, so the caller (the emulator
// harness) must park the emulator and re-dispatch the same trap once the
// remote queue fills. Every other outcome reports true.
func (b *Battle) HandleTrap(kind TrapKind, c core.Core, g Game) bool {
	switch kind {
	case TrapBattleInitCallBattleCopyInputData:
		skipThumbInstruction(c)

	case TrapBattleUpdateCallBattleCopyInputData:
		b.startAcceptingInput(c)

		// The committed pair must be in hand before PC moves past the
		// native copy routine: advancing first and bailing would let the
		// frame complete on whatever stale input memory still holds.
		pair, ok := b.TakeLastInput()
		if !ok {
			return false
		}
		skipThumbInstruction(c)

		localIdx, remoteIdx := b.LocalPlayerIndex(), b.RemotePlayerIndex()
		g.SetPlayerInputState(c, localIdx, pair.Local.Joyflags, pair.Local.CustomScreenState)
		if pair.Local.Turn != nil {
			g.SetPlayerMarshaledBattleState(c, localIdx, pair.Local.Turn)
		}
		g.SetPlayerInputState(c, remoteIdx, pair.Remote.Joyflags, pair.Remote.CustomScreenState)
		if pair.Remote.Turn != nil {
			g.SetPlayerMarshaledBattleState(c, remoteIdx, pair.Remote.Turn)
		}

	case TrapBattleInitMarshalRet, TrapBattleTurnMarshalRet:
		turn := g.ReadMarshaledBattleState(c)
		buf := make([]byte, len(turn))
		copy(buf, turn)
		b.SetPendingLocalTurn(buf, 0)

	case TrapBattleIsP2Test, TrapLinkIsP2Ret:
		c.WriteRegister(0, uint32(b.LocalPlayerIndex()))

	case TrapBattleEndingRet:
		b.state = StateEnding

	case TrapBattleStartRet:
		if b.state == StateEnding {
			b.state = StateOver
		}
	}
	return true
}

// startAcceptingInput transitions Initializing -> AcceptingInput exactly
// once, snapshotting the save state at the moment of transition.
func (b *Battle) startAcceptingInput(c core.Core) {
	if b.state != StateInitializing {
		return
	}
	b.state = StateAcceptingInput
	if ss, err := c.SaveState(); err == nil {
		b.committedSaveState = ss
	}
}

// skipThumbInstruction advances PC past the native copy routine the trap
// replaced.
func skipThumbInstruction(c core.Core) {
	pc := c.ReadRegister(15)
	c.WriteRegister(15, pc+4)
}
