package rendezvous

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/murkland/tango/internal/protocol"
	"github.com/murkland/tango/internal/rendezvous/signalconn"
)

type fakeAudit struct {
	logged []string
}

func (a *fakeAudit) LogPairing(sessionID string) error {
	a.logged = append(a.logged, sessionID)
	return nil
}

func wsURL(httpURL, path string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + path
}

func TestSignalRelaysOfferAnswerAndIceCandidates(t *testing.T) {
	audit := &fakeAudit{}
	s := NewServer(audit)
	ts := httptest.NewServer(s.echo)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	offerer, err := signalconn.Dial(ctx, wsURL(ts.URL, "/signal"))
	if err != nil {
		t.Fatalf("dial offerer: %v", err)
	}
	defer offerer.Close()

	answerer, err := signalconn.Dial(ctx, wsURL(ts.URL, "/signal"))
	if err != nil {
		t.Fatalf("dial answerer: %v", err)
	}
	defer answerer.Close()

	if err := offerer.Send(protocol.RendezvousMessage{Start: &protocol.StartMsg{SessionID: "sess-1", OfferSDP: "offer-sdp"}}); err != nil {
		t.Fatalf("offerer send start: %v", err)
	}
	if err := answerer.Send(protocol.RendezvousMessage{Start: &protocol.StartMsg{SessionID: "sess-1"}}); err != nil {
		t.Fatalf("answerer send start: %v", err)
	}

	gotOffer, err := answerer.RecvOffer(ctx)
	if err != nil {
		t.Fatalf("answerer RecvOffer: %v", err)
	}
	if gotOffer.SDP != "offer-sdp" {
		t.Errorf("relayed offer SDP = %q, want %q", gotOffer.SDP, "offer-sdp")
	}

	if err := answerer.Send(protocol.RendezvousMessage{Answer: &protocol.AnswerMsg{SDP: "answer-sdp"}}); err != nil {
		t.Fatalf("answerer send answer: %v", err)
	}
	gotAnswer, err := offerer.RecvAnswer(ctx)
	if err != nil {
		t.Fatalf("offerer RecvAnswer: %v", err)
	}
	if gotAnswer.SDP != "answer-sdp" {
		t.Errorf("relayed answer SDP = %q, want %q", gotAnswer.SDP, "answer-sdp")
	}

	if err := offerer.Send(protocol.RendezvousMessage{IceCandidate: &protocol.IceCandidateMsg{Candidate: "cand-1"}}); err != nil {
		t.Fatalf("offerer send ice candidate: %v", err)
	}
	gotCand, err := answerer.RecvIceCandidate(ctx)
	if err != nil {
		t.Fatalf("answerer RecvIceCandidate: %v", err)
	}
	if gotCand.Candidate != "cand-1" {
		t.Errorf("relayed ICE candidate = %q, want %q", gotCand.Candidate, "cand-1")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(audit.logged) == 1 && audit.logged[0] == "sess-1" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("audit log never recorded the pairing: %v", audit.logged)
}

func TestSignalAssignsRolesByJoinOrderNotOfferContent(t *testing.T) {
	// Both clients send a Start with a non-empty OfferSDP. Role must still
	// be assigned by arrival order (first = offerer, second = answerer),
	// not by sniffing whether OfferSDP happens to be set.
	s := NewServer(nil)
	ts := httptest.NewServer(s.echo)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	a, err := signalconn.Dial(ctx, wsURL(ts.URL, "/signal"))
	if err != nil {
		t.Fatalf("dial a: %v", err)
	}
	defer a.Close()

	if err := a.Send(protocol.RendezvousMessage{Start: &protocol.StartMsg{SessionID: "s4", OfferSDP: "OFFER_A"}}); err != nil {
		t.Fatalf("a send start: %v", err)
	}

	b, err := signalconn.Dial(ctx, wsURL(ts.URL, "/signal"))
	if err != nil {
		t.Fatalf("dial b: %v", err)
	}
	defer b.Close()
	if err := b.Send(protocol.RendezvousMessage{Start: &protocol.StartMsg{SessionID: "s4", OfferSDP: "OFFER_B"}}); err != nil {
		t.Fatalf("b send start: %v", err)
	}

	// b is the second arrival, so it becomes the answerer and should be
	// relayed a's (the first arrival's) stored offer, not its own.
	gotOffer, err := b.RecvOffer(ctx)
	if err != nil {
		t.Fatalf("b RecvOffer: %v", err)
	}
	if gotOffer.SDP != "OFFER_A" {
		t.Errorf("relayed offer SDP = %q, want %q (the first arrival's offer)", gotOffer.SDP, "OFFER_A")
	}
}

func TestSignalRejectsThirdArrivalForAPairedSession(t *testing.T) {
	s := NewServer(nil)
	ts := httptest.NewServer(s.echo)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	a, err := signalconn.Dial(ctx, wsURL(ts.URL, "/signal"))
	if err != nil {
		t.Fatalf("dial a: %v", err)
	}
	defer a.Close()
	if err := a.Send(protocol.RendezvousMessage{Start: &protocol.StartMsg{SessionID: "dup", OfferSDP: "x"}}); err != nil {
		t.Fatalf("a send start: %v", err)
	}

	b, err := signalconn.Dial(ctx, wsURL(ts.URL, "/signal"))
	if err != nil {
		t.Fatalf("dial b: %v", err)
	}
	defer b.Close()
	if err := b.Send(protocol.RendezvousMessage{Start: &protocol.StartMsg{SessionID: "dup", OfferSDP: "y"}}); err != nil {
		t.Fatalf("b send start: %v", err)
	}
	if _, err := b.RecvOffer(ctx); err != nil {
		t.Fatalf("b RecvOffer: %v", err)
	}

	c, err := signalconn.Dial(ctx, wsURL(ts.URL, "/signal"))
	if err != nil {
		t.Fatalf("dial c: %v", err)
	}
	defer c.Close()
	if err := c.Send(protocol.RendezvousMessage{Start: &protocol.StartMsg{SessionID: "dup", OfferSDP: "z"}}); err != nil {
		t.Fatalf("c send start: %v", err)
	}

	// The session already has both an offerer and an answerer; the server
	// closes c's connection without relaying anything.
	cctx, cancel2 := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel2()
	if _, err := c.RecvOffer(cctx); err == nil {
		t.Errorf("expected the third arrival to be rejected, not relayed an offer")
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := NewServer(nil)
	ts := httptest.NewServer(s.echo)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
