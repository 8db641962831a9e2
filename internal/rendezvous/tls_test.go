package rendezvous

import (
	"context"
	"testing"
	"time"
)

func TestGenerateTLSConfigProducesUsableCertAndFingerprint(t *testing.T) {
	cfg, fingerprint, err := GenerateTLSConfig(24*time.Hour, "example.test")
	if err != nil {
		t.Fatalf("GenerateTLSConfig: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("len(Certificates) = %d, want 1", len(cfg.Certificates))
	}
	if len(fingerprint) != 64 { // hex-encoded SHA-256
		t.Errorf("fingerprint len = %d, want 64 hex chars", len(fingerprint))
	}
	leaf := cfg.Certificates[0].Leaf
	if leaf == nil {
		t.Fatalf("Leaf certificate is nil")
	}
	found := false
	for _, name := range leaf.DNSNames {
		if name == "example.test" {
			found = true
		}
	}
	if !found {
		t.Errorf("DNSNames = %v, want it to include the requested hostname", leaf.DNSNames)
	}
}

func TestGenerateTLSConfigDefaultsHostnameToLocalhost(t *testing.T) {
	cfg, _, err := GenerateTLSConfig(time.Hour, "")
	if err != nil {
		t.Fatalf("GenerateTLSConfig: %v", err)
	}
	leaf := cfg.Certificates[0].Leaf
	found := false
	for _, name := range leaf.DNSNames {
		if name == "localhost" {
			found = true
		}
	}
	if !found {
		t.Errorf("DNSNames = %v, want localhost when no hostname is given", leaf.DNSNames)
	}
}

func TestCertRotatorServesAUsableInitialCertificate(t *testing.T) {
	cr, err := NewCertRotator(time.Hour, "example.test")
	if err != nil {
		t.Fatalf("NewCertRotator: %v", err)
	}
	cfg := cr.TLSConfig()
	cert, err := cfg.GetCertificate(nil)
	if err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
	if cert.Leaf == nil {
		t.Fatalf("Leaf certificate is nil")
	}
	if cr.Fingerprint() == "" {
		t.Errorf("Fingerprint() is empty")
	}
}

func TestCertRotatorRunRotatesOnATimer(t *testing.T) {
	// A short validity means Run's internal period (validity/2) is short
	// enough to observe a rotation within the test's deadline.
	cr, err := NewCertRotator(20*time.Millisecond, "example.test")
	if err != nil {
		t.Fatalf("NewCertRotator: %v", err)
	}
	first := cr.Fingerprint()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		cr.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(900 * time.Millisecond)
	for time.Now().Before(deadline) {
		if cr.Fingerprint() != first {
			cancel()
			<-done
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	t.Fatalf("certificate never rotated within the deadline")
}
