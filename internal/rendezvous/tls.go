package rendezvous

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"
)

// CertRotator keeps a rendezvous server's self-signed certificate fresh for
// the lifetime of the process. Unlike a one-shot cert generated at startup
// (which would start failing handshakes once NotAfter passes, forcing an
// operator restart every `validity`), a rotator regenerates on a timer tied
// to `validity` and serves whichever certificate is current via
// tls.Config.GetCertificate. In-flight signaling sessions at the moment of
// rotation are unaffected, since each already completed its own handshake
// against whatever certificate was current then.
type CertRotator struct {
	validity time.Duration
	hostname string

	mu          sync.RWMutex
	cert        *tls.Certificate
	fingerprint string
}

// NewCertRotator generates an initial certificate and returns a rotator
// serving it. validity is both the certificate's NotAfter window and,
// halved, the rotation period, so a fresh certificate is always in place
// well before the previous one expires.
func NewCertRotator(validity time.Duration, hostname string) (*CertRotator, error) {
	cr := &CertRotator{validity: validity, hostname: hostname}
	if err := cr.rotate(); err != nil {
		return nil, err
	}
	return cr, nil
}

// TLSConfig returns a *tls.Config that always serves the rotator's current
// certificate, looked up fresh on every handshake via GetCertificate.
func (cr *CertRotator) TLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			cr.mu.RLock()
			defer cr.mu.RUnlock()
			return cr.cert, nil
		},
	}
}

// Fingerprint returns the current certificate's SHA-256 fingerprint.
func (cr *CertRotator) Fingerprint() string {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	return cr.fingerprint
}

func (cr *CertRotator) rotate() error {
	cert, fingerprint, err := generateCert(cr.validity, cr.hostname)
	if err != nil {
		return err
	}
	cr.mu.Lock()
	cr.cert, cr.fingerprint = cert, fingerprint
	cr.mu.Unlock()
	return nil
}

// Run regenerates the certificate every validity/2 until ctx is cancelled,
// logging the new fingerprint each time (an operator pinning the old one
// out-of-band needs to know it changed). Rotation failures are logged and
// retried on the next tick rather than torn down, since the previous
// certificate remains valid and in use in the meantime.
func (cr *CertRotator) Run(ctx context.Context) {
	period := cr.validity / 2
	if period <= 0 {
		period = time.Minute
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := cr.rotate(); err != nil {
				log.Printf("[rendezvous] certificate rotation failed, keeping previous certificate: %v", err)
				continue
			}
			log.Printf("[rendezvous] rotated TLS certificate, new fingerprint: %s", cr.Fingerprint())
		}
	}
}

// GenerateTLSConfig creates a self-signed TLS certificate for the rendezvous
// server, so operators can stand one up without a CA-issued cert. Returns
// the tls.Config and the certificate's SHA-256 fingerprint, which clients
// may wish to pin out-of-band. For a long-running server, prefer
// NewCertRotator, which keeps the certificate from expiring mid-process.
func GenerateTLSConfig(validity time.Duration, hostname string) (*tls.Config, string, error) {
	cert, fingerprint, err := generateCert(validity, hostname)
	if err != nil {
		return nil, "", err
	}
	return &tls.Config{Certificates: []tls.Certificate{*cert}}, fingerprint, nil
}

// generateCert is the shared self-signed-certificate minting logic behind
// both GenerateTLSConfig and CertRotator.
func generateCert(validity time.Duration, hostname string) (*tls.Certificate, string, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("rendezvous: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, "", fmt.Errorf("rendezvous: generate serial: %w", err)
	}

	cn := "tango-rendezvous"
	if hostname != "" {
		cn = hostname
	}
	sans := []string{"localhost"}
	if hostname != "" && hostname != "localhost" {
		sans = append(sans, hostname)
	}

	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validity),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              sans,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, "", fmt.Errorf("rendezvous: create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, "", fmt.Errorf("rendezvous: parse certificate: %w", err)
	}

	fp := sha256.Sum256(certDER)
	fingerprint := hex.EncodeToString(fp[:])

	tlsCert := tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
		Leaf:        cert,
	}

	return &tlsCert, fingerprint, nil
}
