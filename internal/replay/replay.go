// Package replay implements the .tangoreplay file format: a header
// identifying the ROM and local player, a save-state blob captured when
// input acceptance began, and the committed InputPair stream that followed
// it.
package replay

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/murkland/tango/internal/pairqueue"
	"github.com/murkland/tango/internal/protocol"
)

// magic identifies a .tangoreplay file.
var magic = [4]byte{'T', 'N', 'G', 'R'}

// formatVersion is bumped whenever the wire format changes.
const formatVersion uint8 = 1

// Replay is a decoded .tangoreplay file's full contents.
type Replay struct {
	LocalPlayerIndex uint8
	ROMTitle         string // exactly 12 bytes on the wire, NUL-padded
	ROMCRC32         uint32
	SaveState        []byte
	Pairs            []pairqueue.Pair[protocol.Input]
}

// Encode serializes r to the .tangoreplay wire format.
func Encode(r Replay) ([]byte, error) {
	if len(r.ROMTitle) > 12 {
		return nil, fmt.Errorf("replay: rom title %q exceeds 12 bytes", r.ROMTitle)
	}

	var buf bytes.Buffer
	buf.Write(magic[:])
	buf.WriteByte(formatVersion)
	buf.WriteByte(r.LocalPlayerIndex)

	var title [12]byte
	copy(title[:], r.ROMTitle)
	buf.Write(title[:])

	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], r.ROMCRC32)
	buf.Write(u32[:])

	binary.BigEndian.PutUint32(u32[:], uint32(len(r.SaveState)))
	buf.Write(u32[:])
	buf.Write(r.SaveState)

	binary.BigEndian.PutUint32(u32[:], uint32(len(r.Pairs)))
	buf.Write(u32[:])
	for _, pair := range r.Pairs {
		for _, in := range []protocol.Input{pair.Local, pair.Remote} {
			wire, err := protocol.Encode(protocol.Packet{Input: &in})
			if err != nil {
				return nil, fmt.Errorf("replay: encode input: %w", err)
			}
			binary.BigEndian.PutUint32(u32[:], uint32(len(wire)))
			buf.Write(u32[:])
			buf.Write(wire)
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a .tangoreplay file previously produced by Encode.
func Decode(b []byte) (Replay, error) {
	r := bytes.NewReader(b)

	var gotMagic [4]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return Replay{}, fmt.Errorf("replay: read magic: %w", err)
	}
	if gotMagic != magic {
		return Replay{}, fmt.Errorf("replay: bad magic %q", gotMagic)
	}

	version, err := readByte(r)
	if err != nil {
		return Replay{}, err
	}
	if version != formatVersion {
		return Replay{}, fmt.Errorf("replay: unsupported format version %d", version)
	}

	localPlayerIndex, err := readByte(r)
	if err != nil {
		return Replay{}, err
	}

	var title [12]byte
	if _, err := io.ReadFull(r, title[:]); err != nil {
		return Replay{}, fmt.Errorf("replay: read rom title: %w", err)
	}

	romCRC32, err := readUint32(r)
	if err != nil {
		return Replay{}, err
	}

	saveStateLen, err := readUint32(r)
	if err != nil {
		return Replay{}, err
	}
	saveState := make([]byte, saveStateLen)
	if _, err := io.ReadFull(r, saveState); err != nil {
		return Replay{}, fmt.Errorf("replay: read save state: %w", err)
	}

	numPairs, err := readUint32(r)
	if err != nil {
		return Replay{}, err
	}

	pairs := make([]pairqueue.Pair[protocol.Input], 0, numPairs)
	for i := uint32(0); i < numPairs; i++ {
		local, err := readInput(r)
		if err != nil {
			return Replay{}, fmt.Errorf("replay: pair %d local: %w", i, err)
		}
		remote, err := readInput(r)
		if err != nil {
			return Replay{}, fmt.Errorf("replay: pair %d remote: %w", i, err)
		}
		pairs = append(pairs, pairqueue.Pair[protocol.Input]{Local: local, Remote: remote})
	}

	return Replay{
		LocalPlayerIndex: localPlayerIndex,
		ROMTitle:         string(bytes.TrimRight(title[:], "\x00")),
		ROMCRC32:         romCRC32,
		SaveState:        saveState,
		Pairs:            pairs,
	}, nil
}

func readInput(r *bytes.Reader) (protocol.Input, error) {
	wireLen, err := readUint32(r)
	if err != nil {
		return protocol.Input{}, err
	}
	wire := make([]byte, wireLen)
	if _, err := io.ReadFull(r, wire); err != nil {
		return protocol.Input{}, fmt.Errorf("read wire bytes: %w", err)
	}
	pkt, err := protocol.Decode(wire)
	if err != nil {
		return protocol.Input{}, fmt.Errorf("decode packet: %w", err)
	}
	if pkt.Input == nil {
		return protocol.Input{}, fmt.Errorf("packet is not an input")
	}
	return *pkt.Input, nil
}

func readByte(r *bytes.Reader) (uint8, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("replay: read byte: %w", err)
	}
	return b, nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("replay: read uint32: %w", err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}
