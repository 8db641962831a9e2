// Package handshake implements the commit-reveal RNG handshake run over
// the live peer datagram channel before any game traffic: each side commits
// to a nonce, checks compatibility, reveals, and derives a shared seed.
package handshake

import (
	"context"
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/sha3"

	"github.com/murkland/tango/internal/protocol"
	"github.com/murkland/tango/internal/rng"
	"github.com/murkland/tango/internal/tangoerr"
)

// commitmentLabel domain-separates the XOF so the commitment can never be
// confused with an XOF use elsewhere in the protocol.
const commitmentLabel = "syncrand:nonce:"

// Channel is the minimal transport the handshake needs: send and receive one
// length-delimited packet at a time, in order. *peerlink.Link satisfies this.
type Channel interface {
	Send(ctx context.Context, b []byte) error
	Recv(ctx context.Context) ([]byte, error)
}

// Params describes what the local side expects the peer to agree on.
type Params struct {
	ProtocolVersion uint32
	GameTitle       string
	GameCRC32       uint32
	MatchType       uint32
}

// Result is what a successful handshake produces.
type Result struct {
	RNG *rng.PCG128XSL64
}

// commit computes the 32-byte Shake256 XOF digest of the label concatenated
// with nonce.
func commit(nonce []byte) [32]byte {
	h := sha3.NewShake256()
	h.Write([]byte(commitmentLabel))
	h.Write(nonce)
	var out [32]byte
	h.Read(out[:])
	return out
}

// Run executes the commit-reveal handshake over ch. On success both peers
// have derived an identical PCG128XSL64 stream.
func Run(ctx context.Context, ch Channel, p Params) (*Result, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, tangoerr.Wrap(tangoerr.KindPlatform, err)
	}
	ourCommitment := commit(nonce[:])

	hello := protocol.Hello{
		ProtocolVersion: p.ProtocolVersion,
		GameTitle:       p.GameTitle,
		GameCRC32:       p.GameCRC32,
		MatchType:       p.MatchType,
		RNGCommitment:   ourCommitment,
	}
	if err := sendPacket(ctx, ch, protocol.Packet{Hello: &hello}); err != nil {
		return nil, err
	}

	peerHello, err := recvHello(ctx, ch)
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare(ourCommitment[:], peerHello.RNGCommitment[:]) == 1 {
		return nil, tangoerr.New(tangoerr.KindProtocol, "peer replayed our commitment")
	}
	if peerHello.ProtocolVersion != p.ProtocolVersion {
		return nil, tangoerr.New(tangoerr.KindProtocol, "protocol version mismatch: local=%d remote=%d", p.ProtocolVersion, peerHello.ProtocolVersion)
	}
	if peerHello.MatchType != p.MatchType {
		return nil, tangoerr.New(tangoerr.KindProtocol, "match type mismatch: local=%d remote=%d", p.MatchType, peerHello.MatchType)
	}
	if !titlePrefixEqual(peerHello.GameTitle, p.GameTitle) {
		return nil, tangoerr.New(tangoerr.KindProtocol, "game mismatch: local=%q remote=%q", p.GameTitle, peerHello.GameTitle)
	}

	hola := protocol.Hola{RNGNonce: nonce}
	if err := sendPacket(ctx, ch, protocol.Packet{Hola: &hola}); err != nil {
		return nil, err
	}

	peerHola, err := recvHola(ctx, ch)
	if err != nil {
		return nil, err
	}

	peerCommitment := commit(peerHola.RNGNonce[:])
	if subtle.ConstantTimeCompare(peerCommitment[:], peerHello.RNGCommitment[:]) != 1 {
		return nil, tangoerr.New(tangoerr.KindProtocol, "failed to verify rng commitment")
	}

	var seed [16]byte
	for i := range seed {
		seed[i] = nonce[i] ^ peerHola.RNGNonce[i]
	}

	return &Result{RNG: rng.NewPCG128XSL64(seed)}, nil
}

// titlePrefixEqual compares the first 8 bytes of two game titles: regional
// variants of the same game differ only past that prefix and remain
// compatible.
func titlePrefixEqual(a, b string) bool {
	const n = 8
	pa, pb := padTo(a, n), padTo(b, n)
	return pa == pb
}

func padTo(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	buf := make([]byte, n)
	copy(buf, s)
	return string(buf)
}

func sendPacket(ctx context.Context, ch Channel, pkt protocol.Packet) error {
	b, err := protocol.Encode(pkt)
	if err != nil {
		return tangoerr.Wrap(tangoerr.KindProtocol, err)
	}
	if err := ch.Send(ctx, b); err != nil {
		return tangoerr.Wrap(tangoerr.KindTransport, err)
	}
	return nil
}

func recvHello(ctx context.Context, ch Channel) (*protocol.Hello, error) {
	b, err := ch.Recv(ctx)
	if err != nil {
		return nil, tangoerr.Wrap(tangoerr.KindTransport, err)
	}
	pkt, err := protocol.Decode(b)
	if err != nil {
		return nil, tangoerr.Wrap(tangoerr.KindProtocol, err)
	}
	if pkt.Hello == nil {
		return nil, tangoerr.New(tangoerr.KindProtocol, "expected Hello, got %s", pkt.Kind())
	}
	return pkt.Hello, nil
}

func recvHola(ctx context.Context, ch Channel) (*protocol.Hola, error) {
	b, err := ch.Recv(ctx)
	if err != nil {
		return nil, tangoerr.Wrap(tangoerr.KindTransport, err)
	}
	pkt, err := protocol.Decode(b)
	if err != nil {
		return nil, tangoerr.Wrap(tangoerr.KindProtocol, err)
	}
	if pkt.Hola == nil {
		return nil, tangoerr.New(tangoerr.KindProtocol, "expected Hola, got %s", pkt.Kind())
	}
	return pkt.Hola, nil
}
