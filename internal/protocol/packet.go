// Package protocol implements the two wire formats: the peer game protocol
// (Hello/Hola/Input, a length-delimited tagged union) and the rendezvous
// signaling protocol (Start/Offer/Answer/IceCandidate, a tag byte plus
// varint-length-prefixed payload). Both are small fixed binary codecs over
// encoding/binary; a serialization framework would buy nothing here.
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// TurnSize is the fixed length of a marshaled battle-turn payload.
const TurnSize = 0x100

// Hello is the first handshake packet, carrying what each side expects the
// peer to agree on plus its RNG commitment.
type Hello struct {
	ProtocolVersion uint32
	GameTitle       string
	GameCRC32       uint32
	MatchType       uint32
	RNGCommitment   [32]byte
}

// Hola is the second handshake packet, revealing the committed nonce.
type Hola struct {
	RNGNonce [16]byte
}

// Input is a single tick's worth of input from one player.
type Input struct {
	LocalTick         uint32
	RemoteTick        uint32
	Joyflags          uint16
	CustomScreenState uint8
	// Turn is present only on ticks that mark a turn boundary; nil otherwise.
	Turn []byte
}

// Packet is the tagged union of all peer game packets. Exactly one field is
// non-nil.
type Packet struct {
	Hello *Hello
	Hola  *Hola
	Input *Input
}

// Kind returns a human-readable tag for error messages.
func (p Packet) Kind() string {
	switch {
	case p.Hello != nil:
		return "Hello"
	case p.Hola != nil:
		return "Hola"
	case p.Input != nil:
		return "Input"
	default:
		return "empty"
	}
}

const (
	tagHello uint8 = 1
	tagHola  uint8 = 2
	tagInput uint8 = 3
)

// Encode serializes a Packet to its wire form.
func Encode(p Packet) ([]byte, error) {
	var buf bytes.Buffer
	switch {
	case p.Hello != nil:
		buf.WriteByte(tagHello)
		h := p.Hello
		writeUint32(&buf, h.ProtocolVersion)
		writeString(&buf, h.GameTitle)
		writeUint32(&buf, h.GameCRC32)
		writeUint32(&buf, h.MatchType)
		buf.Write(h.RNGCommitment[:])
	case p.Hola != nil:
		buf.WriteByte(tagHola)
		buf.Write(p.Hola.RNGNonce[:])
	case p.Input != nil:
		buf.WriteByte(tagInput)
		in := p.Input
		writeUint32(&buf, in.LocalTick)
		writeUint32(&buf, in.RemoteTick)
		writeUint16(&buf, in.Joyflags)
		buf.WriteByte(in.CustomScreenState)
		if in.Turn != nil {
			if len(in.Turn) != TurnSize {
				return nil, fmt.Errorf("protocol: turn payload must be %d bytes, got %d", TurnSize, len(in.Turn))
			}
			buf.WriteByte(1)
			buf.Write(in.Turn)
		} else {
			buf.WriteByte(0)
		}
	default:
		return nil, fmt.Errorf("protocol: empty packet")
	}
	return buf.Bytes(), nil
}

// Decode parses a Packet from its wire form.
func Decode(b []byte) (Packet, error) {
	r := bytes.NewReader(b)
	tag, err := r.ReadByte()
	if err != nil {
		return Packet{}, fmt.Errorf("protocol: read tag: %w", err)
	}
	switch tag {
	case tagHello:
		var h Hello
		if h.ProtocolVersion, err = readUint32(r); err != nil {
			return Packet{}, err
		}
		if h.GameTitle, err = readString(r); err != nil {
			return Packet{}, err
		}
		if h.GameCRC32, err = readUint32(r); err != nil {
			return Packet{}, err
		}
		if h.MatchType, err = readUint32(r); err != nil {
			return Packet{}, err
		}
		if _, err := io.ReadFull(r, h.RNGCommitment[:]); err != nil {
			return Packet{}, fmt.Errorf("protocol: read commitment: %w", err)
		}
		return Packet{Hello: &h}, nil
	case tagHola:
		var h Hola
		if _, err := io.ReadFull(r, h.RNGNonce[:]); err != nil {
			return Packet{}, fmt.Errorf("protocol: read nonce: %w", err)
		}
		return Packet{Hola: &h}, nil
	case tagInput:
		var in Input
		if in.LocalTick, err = readUint32(r); err != nil {
			return Packet{}, err
		}
		if in.RemoteTick, err = readUint32(r); err != nil {
			return Packet{}, err
		}
		if in.Joyflags, err = readUint16(r); err != nil {
			return Packet{}, err
		}
		css, err := r.ReadByte()
		if err != nil {
			return Packet{}, fmt.Errorf("protocol: read custom_screen_state: %w", err)
		}
		in.CustomScreenState = css
		hasTurn, err := r.ReadByte()
		if err != nil {
			return Packet{}, fmt.Errorf("protocol: read turn flag: %w", err)
		}
		if hasTurn == 1 {
			turn := make([]byte, TurnSize)
			if _, err := io.ReadFull(r, turn); err != nil {
				return Packet{}, fmt.Errorf("protocol: read turn: %w", err)
			}
			in.Turn = turn
		}
		return Packet{Input: &in}, nil
	default:
		return Packet{}, fmt.Errorf("protocol: unknown packet tag %d", tag)
	}
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint16(buf, uint16(len(s)))
	buf.WriteString(s)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("protocol: read uint32: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("protocol: read uint16: %w", err)
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint16(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("protocol: read string: %w", err)
	}
	return string(buf), nil
}
