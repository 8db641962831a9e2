// Package rendezvous implements the matchmaking/signaling relay: a tiny
// WebSocket server that pairs two clients by session ID and relays their
// SDP offer/answer and ICE candidates so they can establish a direct WebRTC
// data channel. It never sees battle traffic and never inspects SDP
// content.
package rendezvous

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/murkland/tango/internal/protocol"
)

const (
	writeTimeout  = 5 * time.Second
	sessionExpiry = 2 * time.Minute
)

// session pairs the offerer and answerer sockets for one session ID.
// offerSDP is the first client's Start.OfferSDP, stashed so it can be
// handed straight to the second client the moment it joins.
type session struct {
	offerer  *websocket.Conn
	answerer *websocket.Conn
	offerSDP string
	created  time.Time
}

// Hub holds in-flight signaling sessions, keyed by session ID; rendezvous
// never needs a persistent client roster.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*session

	audit AuditLogger
}

// AuditLogger records completed pairings for operational visibility. A nil
// AuditLogger disables logging entirely.
type AuditLogger interface {
	LogPairing(sessionID string) error
}

// NewHub creates an empty Hub. audit may be nil.
func NewHub(audit AuditLogger) *Hub {
	return &Hub{sessions: make(map[string]*session), audit: audit}
}

// HandleConn services one signaling WebSocket connection end-to-end: it
// blocks until the connection closes or a fatal protocol error occurs.
// Sessions have no timeout.
func (h *Hub) HandleConn(conn *websocket.Conn, remoteAddr string) {
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	if err != nil {
		log.Printf("[rendezvous] %s: read start: %v", remoteAddr, err)
		return
	}
	msg, _, err := protocol.DecodeRendezvous(data)
	if err != nil || msg.Start == nil {
		log.Printf("[rendezvous] %s: first message must be start", remoteAddr)
		return
	}

	sessionID := msg.Start.SessionID

	sess, isOfferer, storedOfferSDP, err := h.join(sessionID, conn, msg.Start.OfferSDP)
	if err != nil {
		log.Printf("[rendezvous] %s: join %q: %v", remoteAddr, sessionID, err)
		return
	}
	defer h.leave(sessionID, conn)

	role := "answerer"
	if isOfferer {
		role = "offerer"
	}
	log.Printf("[rendezvous] %s joined session %q as %s", remoteAddr, sessionID, role)

	// The answerer's peer (the offerer) is already known at join time, since
	// role is assigned strictly by arrival order: relay the stashed offer
	// immediately instead of polling for it.
	if !isOfferer {
		h.send(conn, protocol.RendezvousMessage{Offer: &protocol.OfferMsg{SDP: storedOfferSDP}})
	}

	h.pump(sess, conn, isOfferer, sessionID, remoteAddr)
}

// join registers conn under sessionID, assigning it the offerer role if it
// is the first connection to arrive for that session ID and the answerer
// role if it is the second. Role is determined strictly by join order, not
// by whether Start.OfferSDP happens to be non-empty: both clients may send
// a populated offer. A third arrival for an already-paired session is
// rejected.
func (h *Hub) join(sessionID string, conn *websocket.Conn, offerSDP string) (sess *session, isOfferer bool, storedOfferSDP string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, existed := h.sessions[sessionID]
	if !existed {
		sess = &session{created: time.Now(), offerSDP: offerSDP, offerer: conn}
		h.sessions[sessionID] = sess
		return sess, true, "", nil
	}

	if sess.answerer != nil {
		return nil, false, "", fmt.Errorf("session already has two peers")
	}
	sess.answerer = conn
	return sess, false, sess.offerSDP, nil
}

// SessionCount reports the number of signaling sessions currently in
// flight (at least one of the two peers connected), for the status
// endpoint (server/api.go's `RoomResponse.Clients`-style reporting).
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Hub) leave(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sess, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	if sess.offerer == conn {
		sess.offerer = nil
	}
	if sess.answerer == conn {
		sess.answerer = nil
	}
	if sess.offerer == nil && sess.answerer == nil {
		delete(h.sessions, sessionID)
	}
}

// pump relays IceCandidate and, for the answerer, Answer messages between
// the two sides of sess until conn's read loop ends.
func (h *Hub) pump(sess *session, conn *websocket.Conn, isOfferer bool, sessionID, remoteAddr string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, _, err := protocol.DecodeRendezvous(data)
		if err != nil {
			log.Printf("[rendezvous] %s: decode: %v", remoteAddr, err)
			return
		}

		h.mu.Lock()
		peer := sess.offerer
		if isOfferer {
			peer = sess.answerer
		}
		h.mu.Unlock()
		if peer == nil {
			continue
		}

		switch {
		case msg.Answer != nil && !isOfferer:
			h.send(peer, msg)
			if h.audit != nil {
				if err := h.audit.LogPairing(sessionID); err != nil {
					log.Printf("[rendezvous] audit log: %v", err)
				}
			}
		case msg.IceCandidate != nil:
			h.send(peer, msg)
		}
	}
}

func (h *Hub) send(conn *websocket.Conn, msg protocol.RendezvousMessage) {
	b, err := protocol.EncodeRendezvous(msg)
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteMessage(websocket.BinaryMessage, b)
}
