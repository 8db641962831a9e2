package rendezvous

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Server is the rendezvous HTTP(S) server: a /signal WebSocket endpoint
// plus a /health status endpoint, an echo.Echo paired with a hand-rolled
// WebSocket upgrade route.
type Server struct {
	hub      *Hub
	echo     *echo.Echo
	upgrader websocket.Upgrader
}

// NewServer constructs a Server. audit may be nil to disable pairing audit
// logging entirely.
func NewServer(audit AuditLogger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		hub:  NewHub(audit),
		echo: e,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
	e.GET("/signal", s.handleSignal)
	e.GET("/health", s.handleHealth)
	return s
}

func (s *Server) handleSignal(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	s.hub.HandleConn(conn, c.RealIP())
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
}

// Hub returns the signaling Hub backing this Server, so a StatusServer can
// report on it from a separate port without reaching into Server internals.
func (s *Server) Hub() *Hub { return s.hub }

// ListenAndServe starts the server on addr, blocking until ctx is cancelled
// or a fatal error occurs. If tlsConfig is non-nil, it serves HTTPS/WSS.
func (s *Server) ListenAndServe(ctx context.Context, addr string, tlsConfig *tls.Config) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.echo,
		TLSConfig:    tlsConfig,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tlsConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
