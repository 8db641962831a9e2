// Package signalconn is the client side of the rendezvous wire protocol
// (internal/protocol's RendezvousMessage), a thin framing layer over a
// gorilla/websocket connection.
package signalconn

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/murkland/tango/internal/protocol"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
)

// Conn is a rendezvous signaling connection, one per matchmaking session.
type Conn struct {
	ws *websocket.Conn
}

// Dial opens a WebSocket to addr (e.g. "wss://host:1984/signal") and returns
// a Conn ready to exchange RendezvousMessage frames.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("signalconn: parse address: %w", err)
	}
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("signalconn: dial: %w", err)
	}
	return &Conn{ws: ws}, nil
}

// Send encodes and writes m as a single binary WebSocket frame.
func (c *Conn) Send(m protocol.RendezvousMessage) error {
	b, err := protocol.EncodeRendezvous(m)
	if err != nil {
		return fmt.Errorf("signalconn: encode: %w", err)
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.BinaryMessage, b)
}

// recv reads and decodes the next frame, skipping frames that don't match
// the wanted variant. ctx is checked between reads only; a read that is
// already blocked is not interrupted by ctx. The rendezvous server only
// ever sends each client the messages relevant to its role, so in practice
// this returns on the first read.
func (c *Conn) recv(ctx context.Context, want func(protocol.RendezvousMessage) bool) (protocol.RendezvousMessage, error) {
	for {
		if err := ctx.Err(); err != nil {
			return protocol.RendezvousMessage{}, err
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return protocol.RendezvousMessage{}, fmt.Errorf("signalconn: read: %w", err)
		}
		msg, _, err := protocol.DecodeRendezvous(data)
		if err != nil {
			return protocol.RendezvousMessage{}, fmt.Errorf("signalconn: decode: %w", err)
		}
		if want(msg) {
			return msg, nil
		}
	}
}

// RecvOffer blocks for the relayed Offer message.
func (c *Conn) RecvOffer(ctx context.Context) (*protocol.OfferMsg, error) {
	msg, err := c.recv(ctx, func(m protocol.RendezvousMessage) bool { return m.Offer != nil })
	if err != nil {
		return nil, err
	}
	return msg.Offer, nil
}

// RecvAnswer blocks for the relayed Answer message.
func (c *Conn) RecvAnswer(ctx context.Context) (*protocol.AnswerMsg, error) {
	msg, err := c.recv(ctx, func(m protocol.RendezvousMessage) bool { return m.Answer != nil })
	if err != nil {
		return nil, err
	}
	return msg.Answer, nil
}

// RecvIceCandidate blocks for the next relayed IceCandidate message.
func (c *Conn) RecvIceCandidate(ctx context.Context) (*protocol.IceCandidateMsg, error) {
	msg, err := c.recv(ctx, func(m protocol.RendezvousMessage) bool { return m.IceCandidate != nil })
	if err != nil {
		return nil, err
	}
	return msg.IceCandidate, nil
}

// Close closes the underlying WebSocket.
func (c *Conn) Close() error {
	return c.ws.Close()
}
