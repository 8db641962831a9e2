package rendezvous

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// StatusResponse reports live signaling session counts.
type StatusResponse struct {
	Sessions int `json:"sessions"`
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// StatusServer exposes operational /health and /status endpoints on a
// separate TCP port from the /signal WebSocket server, so operational
// probes never share a listener with signaling traffic. It only reads
// Hub.SessionCount()'s snapshot.
type StatusServer struct {
	hub  *Hub
	echo *echo.Echo
}

// NewStatusServer builds a StatusServer reporting on hub's session count.
func NewStatusServer(hub *Hub) *StatusServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &StatusServer{hub: hub, echo: e}
	e.GET("/health", s.handleHealth)
	e.GET("/status", s.handleStatus)
	return s
}

func (s *StatusServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Sessions: s.hub.SessionCount()})
}

func (s *StatusServer) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{Sessions: s.hub.SessionCount()})
}

// Run starts the status server on addr in the background and blocks until
// ctx is cancelled, then shuts it down with a 5s grace period.
func (s *StatusServer) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
