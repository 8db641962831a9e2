// Command tango-rendezvous runs the matchmaking/signaling relay server.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/murkland/tango/internal/rendezvous"
	"github.com/murkland/tango/internal/rendezvous/audit"
)

func main() {
	addr := flag.String("addr", envOr("LISTEN_ADDR", "[::]:1984"), "listen address (overrides LISTEN_ADDR)")
	insecure := flag.Bool("insecure", false, "serve plain HTTP/WS instead of HTTPS/WSS")
	certValidity := flag.Duration("cert-validity", 24*time.Hour, "self-signed TLS certificate validity")
	dbPath := flag.String("db", "", "SQLite audit log path (empty disables pairing audit logging)")
	statusAddr := flag.String("status-addr", "", "optional separate address to serve /health and /status (live session counts) on; empty disables it")
	flag.Parse()

	var auditLog *audit.Log
	var al rendezvous.AuditLogger
	if *dbPath != "" {
		var err error
		auditLog, err = audit.Open(*dbPath)
		if err != nil {
			log.Fatalf("[rendezvous] open audit log: %v", err)
		}
		defer auditLog.Close()
		al = auditLog
	}

	srv := rendezvous.NewServer(al)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[rendezvous] shutting down...")
		cancel()
	}()

	if *statusAddr != "" {
		statusSrv := rendezvous.NewStatusServer(srv.Hub())
		go func() {
			log.Printf("[rendezvous] status endpoint listening on %s", *statusAddr)
			if err := statusSrv.Run(ctx, *statusAddr); err != nil {
				log.Printf("[rendezvous] status server: %v", err)
			}
		}()
	}

	if *insecure {
		log.Printf("[rendezvous] listening on %s (insecure)", *addr)
		if err := srv.ListenAndServe(ctx, *addr, nil); err != nil {
			log.Fatalf("[rendezvous] %v", err)
		}
		return
	}

	hostname := ""
	if host, _, err := net.SplitHostPort(*addr); err == nil {
		hostname = host
	}
	rotator, err := rendezvous.NewCertRotator(*certValidity, hostname)
	if err != nil {
		log.Fatalf("[rendezvous] generate TLS config: %v", err)
	}
	log.Printf("[rendezvous] TLS certificate fingerprint: %s", rotator.Fingerprint())
	go rotator.Run(ctx)

	log.Printf("[rendezvous] listening on %s", *addr)
	if err := srv.ListenAndServe(ctx, *addr, rotator.TLSConfig()); err != nil {
		log.Fatalf("[rendezvous] %v", err)
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
