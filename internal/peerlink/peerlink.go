// Package peerlink establishes the reliable ordered peer-to-peer message
// channel battle traffic runs over: a WebRTC data channel (id=1,
// negotiated=true, ordered=true) whose SDP offer/answer and ICE candidates
// are relayed out-of-band by the rendezvous server.
package peerlink

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/murkland/tango/internal/protocol"
	"github.com/murkland/tango/internal/rendezvous/signalconn"
)

// dataChannelID is fixed because both sides create the channel with
// negotiated=true: no in-band DCEP handshake occurs, so the ID must agree.
const dataChannelID = uint16(1)

var defaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// Link is a live, ordered, reliable P2P byte-message channel.
type Link struct {
	pc      *webrtc.PeerConnection
	dc      *webrtc.DataChannel
	recvCh  chan []byte
	closeCh chan struct{}
}

func newPeerConnection() (*webrtc.PeerConnection, error) {
	api := webrtc.NewAPI()
	return api.NewPeerConnection(webrtc.Configuration{ICEServers: defaultICEServers})
}

func newNegotiatedDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	id := dataChannelID
	negotiated := true
	ordered := true
	return pc.CreateDataChannel("tango", &webrtc.DataChannelInit{
		ID:         &id,
		Negotiated: &negotiated,
		Ordered:    &ordered,
	})
}

func wrap(pc *webrtc.PeerConnection, dc *webrtc.DataChannel) *Link {
	l := &Link{pc: pc, dc: dc, recvCh: make(chan []byte, 256), closeCh: make(chan struct{})}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case l.recvCh <- msg.Data:
		case <-l.closeCh:
		}
	})
	return l
}

// Dial is the offerer path: it sends Start to the rendezvous server, creates
// a negotiated data channel, produces an SDP offer, and completes the
// exchange once the answerer's Answer and ICE candidates are relayed back.
func Dial(ctx context.Context, sc *signalconn.Conn, sessionID string) (*Link, error) {
	pc, err := newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("peerlink: new peer connection: %w", err)
	}
	dc, err := newNegotiatedDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("peerlink: create data channel: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("peerlink: create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("peerlink: set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	}

	if err := sc.Send(protocol.RendezvousMessage{Start: &protocol.StartMsg{
		SessionID: sessionID,
		OfferSDP:  pc.LocalDescription().SDP,
	}}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("peerlink: send start: %w", err)
	}

	answerMsg, err := sc.RecvAnswer(ctx)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("peerlink: recv answer: %w", err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerMsg.SDP,
	}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("peerlink: set remote description: %w", err)
	}

	if err := drainICECandidates(ctx, sc, pc); err != nil {
		pc.Close()
		return nil, err
	}

	return wrap(pc, dc), nil
}

// Accept is the answerer path: it waits for the relayed Offer, creates its
// own matching negotiated data channel, answers, and completes ICE.
func Accept(ctx context.Context, sc *signalconn.Conn, sessionID string) (*Link, error) {
	pc, err := newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("peerlink: new peer connection: %w", err)
	}
	dc, err := newNegotiatedDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("peerlink: create data channel: %w", err)
	}

	if err := sc.Send(protocol.RendezvousMessage{Start: &protocol.StartMsg{SessionID: sessionID}}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("peerlink: send start: %w", err)
	}

	offerMsg, err := sc.RecvOffer(ctx)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("peerlink: recv offer: %w", err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerMsg.SDP,
	}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("peerlink: set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("peerlink: create answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("peerlink: set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	}

	if err := sc.Send(protocol.RendezvousMessage{Answer: &protocol.AnswerMsg{SDP: pc.LocalDescription().SDP}}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("peerlink: send answer: %w", err)
	}

	if err := drainICECandidates(ctx, sc, pc); err != nil {
		pc.Close()
		return nil, err
	}

	return wrap(pc, dc), nil
}

// drainICECandidates relays trickled candidates in both directions until the
// connection reaches a connected or failed state.
func drainICECandidates(ctx context.Context, sc *signalconn.Conn, pc *webrtc.PeerConnection) error {
	stateCh := make(chan webrtc.ICEConnectionState, 4)
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		select {
		case stateCh <- s:
		default:
		}
	})
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		_ = sc.Send(protocol.RendezvousMessage{IceCandidate: &protocol.IceCandidateMsg{Candidate: c.ToJSON().Candidate}})
	})

	go func() {
		for {
			msg, err := sc.RecvIceCandidate(ctx)
			if err != nil {
				return
			}
			_ = pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: msg.Candidate})
		}
	}()

	for {
		select {
		case s := <-stateCh:
			switch s {
			case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
				return nil
			case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed, webrtc.ICEConnectionStateDisconnected:
				return fmt.Errorf("peerlink: ice connection %s", s)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Send writes b as a single data channel message.
func (l *Link) Send(ctx context.Context, b []byte) error {
	return l.dc.Send(b)
}

// Recv blocks until the next message arrives, ctx is cancelled, or the link closes.
func (l *Link) Recv(ctx context.Context) ([]byte, error) {
	select {
	case b, ok := <-l.recvCh:
		if !ok {
			return nil, fmt.Errorf("peerlink: closed")
		}
		return b, nil
	case <-l.closeCh:
		return nil, fmt.Errorf("peerlink: closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close tears down the data channel and peer connection.
func (l *Link) Close() error {
	select {
	case <-l.closeCh:
		return nil
	default:
		close(l.closeCh)
	}
	_ = l.dc.Close()
	return l.pc.Close()
}
