// Package match implements the per-session match controller: it owns the
// datagram channel after handshake, runs the per-battle sequence, and feeds
// input between the emulator harness and the peer link.
package match

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/murkland/tango/internal/battle"
	"github.com/murkland/tango/internal/handshake"
	"github.com/murkland/tango/internal/protocol"
	"github.com/murkland/tango/internal/rng"
	"github.com/murkland/tango/internal/tangoerr"
)

// Link is the live datagram channel a Match drives once negotiation
// completes. *peerlink.Link satisfies this; tests use a fake.
type Link interface {
	Send(ctx context.Context, b []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

type negotiationStatus int

const (
	negotiationNotReady negotiationStatus = iota
	negotiationReady
	negotiationError
)

type negotiation struct {
	status negotiationStatus
	link   Link
	rng    *rng.PCG128XSL64
	err    error
}

// Match is the per-session controller coordinating negotiation and battles.
type Match struct {
	sessionID    string
	matchType    uint16
	gameTitle    string
	gameROMCRC32 uint32

	negMu sync.Mutex
	neg   negotiation

	battleMu     sync.Mutex
	battleNumber uint32
	activeBattle *battle.Battle

	aborted       atomic.Bool
	wonLastBattle atomic.Bool
	commMenuDone  atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// CommMenu is the ROM-specific callback surface the comm-menu trap uses to
// move the emulator out of the matchmaking screen, analogous to
// battle.Game: this package never hard-codes the ROM's in-battle and
// connection-failed screen transitions, so the embedding application
// supplies them.
type CommMenu interface {
	// StartBattleFromCommMenu transitions the ROM into the in-battle screen
	// once negotiation has succeeded.
	StartBattleFromCommMenu()
	// DropMatchmakingFromCommMenu transitions the ROM back to the comm menu
	// and displays its native "connection failed" UI, tagged with the
	// tangoerr.Kind of the fatal error as an integer code.
	DropMatchmakingFromCommMenu(errorCode int)
}

// New creates a Match in the NotReady negotiation state. A Match comes
// into existence when the emulator enters the communication-menu ROM
// address and lives until the user cancels or the final battle ends.
func New(sessionID string, matchType uint16, gameTitle string, gameROMCRC32 uint32) *Match {
	return &Match{
		sessionID:    sessionID,
		matchType:    matchType,
		gameTitle:    gameTitle,
		gameROMCRC32: gameROMCRC32,
	}
}

func (m *Match) SessionID() string    { return m.sessionID }
func (m *Match) MatchType() uint16    { return m.matchType }
func (m *Match) GameTitle() string    { return m.gameTitle }
func (m *Match) GameROMCRC32() uint32 { return m.gameROMCRC32 }

func (m *Match) WonLastBattle() bool     { return m.wonLastBattle.Load() }
func (m *Match) SetWonLastBattle(v bool) { m.wonLastBattle.Store(v) }

// Aborted reports whether Cancel has been called or a fatal error occurred.
func (m *Match) Aborted() bool { return m.aborted.Load() }

// Run performs the commit-reveal handshake over link and, on success,
// transitions to the Ready negotiation state and starts the receive loop.
// It returns once negotiation completes, success or failure; the receive
// loop continues in the background until ctx is cancelled or Cancel is called.
func (m *Match) Run(ctx context.Context, link Link) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	result, err := handshake.Run(ctx, link, handshake.Params{
		ProtocolVersion: ProtocolVersion,
		GameTitle:       m.gameTitle,
		GameCRC32:       m.gameROMCRC32,
		MatchType:       uint32(m.matchType),
	})
	if err != nil {
		m.negMu.Lock()
		m.neg = negotiation{status: negotiationError, err: err}
		m.negMu.Unlock()
		return err
	}

	m.negMu.Lock()
	m.neg = negotiation{status: negotiationReady, link: link, rng: result.RNG}
	m.negMu.Unlock()

	m.wg.Add(1)
	go m.receiveLoop(ctx, link)

	return nil
}

// ProtocolVersion is the handshake protocol version this build speaks.
const ProtocolVersion = 1

// PollForReady reports whether negotiation has completed successfully. A
// non-nil error means negotiation failed fatally.
func (m *Match) PollForReady() (bool, error) {
	m.negMu.Lock()
	defer m.negMu.Unlock()
	switch m.neg.status {
	case negotiationReady:
		return true, nil
	case negotiationError:
		return false, m.neg.err
	default:
		return false, nil
	}
}

// HandleCommMenuTrap is installed at the comm-menu main-menu trap: it polls
// PollForReady to decide whether to transition the ROM into the in-battle
// screen, or, on negotiation error, back out through the ROM's native
// connection-failed UI. It is safe to call once per frame while the ROM
// sits on the comm menu waiting for a friend; it drives cm exactly once,
// the first time negotiation resolves either way, and is a no-op on every
// subsequent call.
func (m *Match) HandleCommMenuTrap(cm CommMenu) {
	if m.commMenuDone.Load() {
		return
	}
	ready, err := m.PollForReady()
	if err != nil {
		if m.commMenuDone.CompareAndSwap(false, true) {
			cm.DropMatchmakingFromCommMenu(int(tangoerr.KindOf(err)))
		}
		return
	}
	if ready && m.commMenuDone.CompareAndSwap(false, true) {
		cm.StartBattleFromCommMenu()
	}
}

// RNG returns the shared RNG derived during the handshake, or nil if
// negotiation has not completed.
func (m *Match) RNG() *rng.PCG128XSL64 {
	m.negMu.Lock()
	defer m.negMu.Unlock()
	if m.neg.status != negotiationReady {
		return nil
	}
	return m.neg.rng
}

// StartBattle creates a new Battle, making it the active Battle and bumping
// the battle generation number. Exactly one Battle is active per Match at
// any time; the previous one is dropped.
func (m *Match) StartBattle(isP2 bool, localDelay, remoteDelay uint32, capacity int) *battle.Battle {
	m.battleMu.Lock()
	defer m.battleMu.Unlock()
	m.battleNumber++
	m.activeBattle = battle.New(isP2, localDelay, remoteDelay, capacity)
	return m.activeBattle
}

// ActiveBattle returns the currently active Battle, or nil if none.
func (m *Match) ActiveBattle() *battle.Battle {
	m.battleMu.Lock()
	defer m.battleMu.Unlock()
	return m.activeBattle
}

// BattleNumber returns the number of battles started so far this Match.
func (m *Match) BattleNumber() uint32 {
	m.battleMu.Lock()
	defer m.battleMu.Unlock()
	return m.battleNumber
}

// SendLocalInput builds an Input from the local sample and the active
// Battle's bookkeeping, enqueues it locally, and sends it to the peer.
func (m *Match) SendLocalInput(ctx context.Context, localTick uint32, joyflags uint16, customScreenState uint8) error {
	b := m.ActiveBattle()
	if b == nil {
		return tangoerr.New(tangoerr.KindGame, "no active battle")
	}

	m.negMu.Lock()
	link := m.neg.link
	m.negMu.Unlock()
	if link == nil {
		return tangoerr.New(tangoerr.KindTransport, "match not negotiated")
	}

	in := protocol.Input{
		LocalTick:         localTick,
		RemoteTick:        b.LastCommittedRemoteInput().LocalTick,
		Joyflags:          joyflags,
		CustomScreenState: customScreenState,
		Turn:              b.TakePendingLocalTurn(),
	}

	b.AddLocalInput(in)

	wire, err := protocol.Encode(protocol.Packet{Input: &in})
	if err != nil {
		return tangoerr.Wrap(tangoerr.KindProtocol, err)
	}
	if err := link.Send(ctx, wire); err != nil {
		m.fail(tangoerr.Wrap(tangoerr.KindTransport, err))
		return err
	}
	return nil
}

// receiveLoop decodes incoming packets and feeds Input into the active
// Battle's pair queue.
func (m *Match) receiveLoop(ctx context.Context, link Link) {
	defer m.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		data, err := link.Recv(ctx)
		if err != nil {
			if ctx.Err() == nil {
				m.fail(tangoerr.Wrap(tangoerr.KindTransport, err))
			}
			return
		}
		pkt, err := protocol.Decode(data)
		if err != nil {
			m.fail(tangoerr.Wrap(tangoerr.KindProtocol, err))
			return
		}
		if pkt.Input == nil {
			continue
		}
		if b := m.ActiveBattle(); b != nil {
			b.AddRemoteInput(*pkt.Input)
		}
	}
}

// fail records a fatal error from the receive loop or SendLocalInput as an
// abort instead of unwinding it; it is then visible through Aborted() and
// PollForReady().
func (m *Match) fail(err error) {
	m.negMu.Lock()
	if m.neg.status != negotiationError {
		m.neg = negotiation{status: negotiationError, err: err}
	}
	m.negMu.Unlock()
	m.aborted.Store(true)
}

// Cancel is idempotent and safe to call from any goroutine. It marks the
// Match aborted, stops background loops, and releases the link.
func (m *Match) Cancel() {
	if !m.aborted.CompareAndSwap(false, true) {
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.negMu.Lock()
	link := m.neg.link
	m.negMu.Unlock()
	if link != nil {
		_ = link.Close()
	}
	m.wg.Wait()
}

// String implements fmt.Stringer for log lines.
func (m *Match) String() string {
	return fmt.Sprintf("match(session=%s type=%d)", m.sessionID, m.matchType)
}
