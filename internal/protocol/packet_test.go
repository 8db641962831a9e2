package protocol

import (
	"bytes"
	"testing"
)

func TestHelloRoundTrip(t *testing.T) {
	want := Packet{Hello: &Hello{
		ProtocolVersion: 1,
		GameTitle:       "ROCKMAN EXE6 RXX",
		GameCRC32:       0x12345678,
		MatchType:       2,
		RNGCommitment:   [32]byte{1, 2, 3, 4},
	}}
	wire, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if *got.Hello != *want.Hello {
		t.Errorf("round trip mismatch: got %+v, want %+v", got.Hello, want.Hello)
	}
}

func TestHolaRoundTrip(t *testing.T) {
	want := Packet{Hola: &Hola{RNGNonce: [16]byte{9, 8, 7}}}
	wire, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if *got.Hola != *want.Hola {
		t.Errorf("round trip mismatch: got %+v, want %+v", got.Hola, want.Hola)
	}
}

func TestInputRoundTripWithTurn(t *testing.T) {
	turn := bytes.Repeat([]byte{0xAB}, TurnSize)
	want := Packet{Input: &Input{
		LocalTick:         42,
		RemoteTick:        41,
		Joyflags:          0xBEEF,
		CustomScreenState: 3,
		Turn:              turn,
	}}
	wire, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Input.LocalTick != want.Input.LocalTick || got.Input.RemoteTick != want.Input.RemoteTick ||
		got.Input.Joyflags != want.Input.Joyflags || got.Input.CustomScreenState != want.Input.CustomScreenState {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got.Input, want.Input)
	}
	if !bytes.Equal(got.Input.Turn, want.Input.Turn) {
		t.Errorf("turn payload mismatch: got %x, want %x", got.Input.Turn, want.Input.Turn)
	}
}

func TestInputRoundTripWithoutTurn(t *testing.T) {
	want := Packet{Input: &Input{LocalTick: 1, Joyflags: 0x1}}
	wire, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Input.Turn != nil {
		t.Errorf("Turn = %v, want nil", got.Input.Turn)
	}
}

func TestEncodeRejectsWrongTurnSize(t *testing.T) {
	_, err := Encode(Packet{Input: &Input{Turn: []byte{1, 2, 3}}})
	if err == nil {
		t.Fatalf("expected an error for a turn payload that isn't TurnSize bytes")
	}
}

func TestEncodeRejectsEmptyPacket(t *testing.T) {
	if _, err := Encode(Packet{}); err == nil {
		t.Fatalf("expected an error for a packet with no variant set")
	}
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	if _, err := Decode([]byte{0xFF}); err == nil {
		t.Fatalf("expected an error for an unknown tag byte")
	}
}

func TestPacketKind(t *testing.T) {
	cases := []struct {
		p    Packet
		want string
	}{
		{Packet{Hello: &Hello{}}, "Hello"},
		{Packet{Hola: &Hola{}}, "Hola"},
		{Packet{Input: &Input{}}, "Input"},
		{Packet{}, "empty"},
	}
	for _, c := range cases {
		if got := c.p.Kind(); got != c.want {
			t.Errorf("Kind() = %q, want %q", got, c.want)
		}
	}
}
