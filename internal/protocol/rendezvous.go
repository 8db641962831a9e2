package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Rendezvous message tags.
const (
	TagStart        uint8 = 0x01
	TagOffer        uint8 = 0x02
	TagAnswer       uint8 = 0x03
	TagIceCandidate uint8 = 0x04
)

// RendezvousMessage is the tagged union relayed by the rendezvous server.
type RendezvousMessage struct {
	Start        *StartMsg
	Offer        *OfferMsg
	Answer       *AnswerMsg
	IceCandidate *IceCandidateMsg
}

// StartMsg begins a session, carrying the offerer's SDP offer.
type StartMsg struct {
	SessionID string
	OfferSDP  string
}

// OfferMsg carries the stored offer, server-to-client only.
type OfferMsg struct {
	SDP string
}

// AnswerMsg carries the answerer's SDP answer.
type AnswerMsg struct {
	SDP string
}

// IceCandidateMsg carries one opaque ICE candidate string.
type IceCandidateMsg struct {
	Candidate string
}

// EncodeRendezvous serializes a RendezvousMessage as {tag: u8, payload:
// varint-length-prefixed bytes}.
func EncodeRendezvous(m RendezvousMessage) ([]byte, error) {
	var tag uint8
	var payload []byte

	switch {
	case m.Start != nil:
		tag = TagStart
		var pb bytes.Buffer
		writeVarString(&pb, m.Start.SessionID)
		writeVarString(&pb, m.Start.OfferSDP)
		payload = pb.Bytes()
	case m.Offer != nil:
		tag = TagOffer
		var pb bytes.Buffer
		writeVarString(&pb, m.Offer.SDP)
		payload = pb.Bytes()
	case m.Answer != nil:
		tag = TagAnswer
		var pb bytes.Buffer
		writeVarString(&pb, m.Answer.SDP)
		payload = pb.Bytes()
	case m.IceCandidate != nil:
		tag = TagIceCandidate
		var pb bytes.Buffer
		writeVarString(&pb, m.IceCandidate.Candidate)
		payload = pb.Bytes()
	default:
		return nil, fmt.Errorf("protocol: empty rendezvous message")
	}

	var out bytes.Buffer
	out.WriteByte(tag)
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(payload)))
	out.Write(lenBuf[:n])
	out.Write(payload)
	return out.Bytes(), nil
}

// DecodeRendezvous parses one {tag, varint-length payload} message from b,
// returning the message and the number of bytes consumed.
func DecodeRendezvous(b []byte) (RendezvousMessage, int, error) {
	if len(b) < 1 {
		return RendezvousMessage{}, 0, fmt.Errorf("protocol: empty buffer")
	}
	tag := b[0]
	plen, n := binary.Uvarint(b[1:])
	if n <= 0 {
		return RendezvousMessage{}, 0, fmt.Errorf("protocol: malformed varint length")
	}
	start := 1 + n
	end := start + int(plen)
	if end > len(b) {
		return RendezvousMessage{}, 0, fmt.Errorf("protocol: truncated payload")
	}
	payload := bytes.NewReader(b[start:end])
	consumed := end

	switch tag {
	case TagStart:
		sessionID, err := readVarString(payload)
		if err != nil {
			return RendezvousMessage{}, 0, err
		}
		offerSDP, err := readVarString(payload)
		if err != nil {
			return RendezvousMessage{}, 0, err
		}
		return RendezvousMessage{Start: &StartMsg{SessionID: sessionID, OfferSDP: offerSDP}}, consumed, nil
	case TagOffer:
		sdp, err := readVarString(payload)
		if err != nil {
			return RendezvousMessage{}, 0, err
		}
		return RendezvousMessage{Offer: &OfferMsg{SDP: sdp}}, consumed, nil
	case TagAnswer:
		sdp, err := readVarString(payload)
		if err != nil {
			return RendezvousMessage{}, 0, err
		}
		return RendezvousMessage{Answer: &AnswerMsg{SDP: sdp}}, consumed, nil
	case TagIceCandidate:
		cand, err := readVarString(payload)
		if err != nil {
			return RendezvousMessage{}, 0, err
		}
		return RendezvousMessage{IceCandidate: &IceCandidateMsg{Candidate: cand}}, consumed, nil
	default:
		return RendezvousMessage{}, 0, fmt.Errorf("protocol: unknown rendezvous tag 0x%02x", tag)
	}
}

func writeVarString(buf *bytes.Buffer, s string) {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(s)))
	buf.Write(lenBuf[:n])
	buf.WriteString(s)
}

func readVarString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", fmt.Errorf("protocol: read varstring length: %w", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("protocol: read varstring: %w", err)
	}
	return string(buf), nil
}
