package stream

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"
)

//go:embed monitor.html
var monitorHTML []byte

// Monitor is the operator's listening post: live audio over HTTP and WebRTC
// plus a status endpoint. It never writes to session state.
type Monitor struct {
	server      *http.Server
	broadcaster *Broadcaster
	board       *Board
	webrtc      *WebRTCHandler
}

// NewMonitor wires the handlers. Port 0 picks a free port.
func NewMonitor(port int, b *Broadcaster, board *Board) *Monitor {
	webrtcHandler := NewWebRTCHandler(b)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" && r.URL.Path != "/monitor" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(monitorHTML)
	})
	mux.Handle("/monitor/stream", NewHTTPHandler(b))
	mux.Handle("/monitor/offer", webrtcHandler)
	mux.Handle("/monitor/status", &StatusHandler{board: board, broadcaster: b, webrtc: webrtcHandler})

	return &Monitor{
		server:      &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		broadcaster: b,
		board:       board,
		webrtc:      webrtcHandler,
	}
}

// Handler exposes the routes, mainly for tests.
func (m *Monitor) Handler() http.Handler {
	return m.server.Handler
}

// Start listens and serves in the background until ctx is cancelled. It
// returns the bound address.
func (m *Monitor) Start(ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", m.server.Addr)
	if err != nil {
		return "", fmt.Errorf("monitor listen: %w", err)
	}
	go m.broadcaster.Run(ctx)
	go func() {
		<-ctx.Done()
		m.server.Close()
		m.webrtc.Close()
	}()
	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Monitor server error: %v", err)
		}
	}()
	return ln.Addr().String(), nil
}
