package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/tonalstudy/internal/audio"
)

const opusBitrate = 96000

// WebRTCHandler negotiates a low-latency Opus feed of the session audio for
// monitors that want less delay than the MP3 stream.
type WebRTCHandler struct {
	broadcaster *Broadcaster

	mu    sync.Mutex
	peers map[string]*peer
}

// peer is one connected monitor. stop ends its encoder goroutine.
type peer struct {
	id    string
	conn  *webrtc.PeerConnection
	track *webrtc.TrackLocalStaticSample
	stop  context.CancelFunc
}

// negotiationError carries the HTTP status a failed offer should answer with.
type negotiationError struct {
	status int
	err    error
}

func (e *negotiationError) Error() string { return e.err.Error() }

func failed(status int, step string, err error) error {
	return &negotiationError{status: status, err: fmt.Errorf("%s: %w", step, err)}
}

// NewWebRTCHandler creates a WebRTC stream handler.
func NewWebRTCHandler(b *Broadcaster) *WebRTCHandler {
	return &WebRTCHandler{
		broadcaster: b,
		peers:       make(map[string]*peer),
	}
}

// PeerCount returns the number of connected monitors.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	p, err := h.negotiate(r.Context(), offer)
	if err != nil {
		var ne *negotiationError
		if errors.As(err, &ne) {
			log.Printf("Monitor WebRTC offer from %s rejected: %v", r.RemoteAddr, err)
			http.Error(w, ne.err.Error(), ne.status)
		}
		return
	}
	h.attach(p)
	log.Printf("Monitor WebRTC peer %s connected from %s (total: %d)", p.id[:8], r.RemoteAddr, h.PeerCount())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p.conn.LocalDescription())
}

// negotiate answers offer with a single send-only Opus track. It returns once
// ICE gathering is done so the answer carries every candidate. A request
// cancelled mid-gathering yields a plain context error and no response.
func (h *WebRTCHandler) negotiate(ctx context.Context, offer webrtc.SessionDescription) (*peer, error) {
	conn, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, failed(http.StatusInternalServerError, "create peer connection", err)
	}
	fail := func(e error) (*peer, error) {
		conn.Close()
		return nil, e
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"session-monitor",
	)
	if err != nil {
		return fail(failed(http.StatusInternalServerError, "create audio track", err))
	}
	if _, err := conn.AddTrack(track); err != nil {
		return fail(failed(http.StatusInternalServerError, "add track", err))
	}
	if err := conn.SetRemoteDescription(offer); err != nil {
		return fail(failed(http.StatusBadRequest, "set remote description", err))
	}
	answer, err := conn.CreateAnswer(nil)
	if err != nil {
		return fail(failed(http.StatusInternalServerError, "create answer", err))
	}
	if err := conn.SetLocalDescription(answer); err != nil {
		return fail(failed(http.StatusInternalServerError, "set local description", err))
	}

	select {
	case <-webrtc.GatheringCompletePromise(conn):
	case <-ctx.Done():
		return fail(ctx.Err())
	}
	return &peer{id: uuid.NewString(), conn: conn, track: track}, nil
}

// attach registers p, starts feeding it, and arranges its removal when the
// connection drops.
func (h *WebRTCHandler) attach(p *peer) {
	ctx, stop := context.WithCancel(context.Background())
	p.stop = stop

	h.mu.Lock()
	h.peers[p.id] = p
	h.mu.Unlock()

	go h.feed(ctx, p.track)

	p.conn.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			if h.detach(p.id) {
				log.Printf("Monitor WebRTC peer %s gone (%s, remaining: %d)", p.id[:8], s, h.PeerCount())
			}
		}
	})
}

// detach stops and closes the peer with id. It reports whether the peer was
// still registered, so concurrent state changes close it only once.
func (h *WebRTCHandler) detach(id string) bool {
	h.mu.Lock()
	p, ok := h.peers[id]
	delete(h.peers, id)
	h.mu.Unlock()
	if !ok {
		return false
	}
	p.stop()
	p.conn.Close()
	return true
}

// feed encodes session audio into track until ctx ends.
func (h *WebRTCHandler) feed(ctx context.Context, track *webrtc.TrackLocalStaticSample) {
	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		log.Printf("Monitor WebRTC: opus encoder error: %v", err)
		return
	}
	if err := enc.SetBitrate(opusBitrate); err != nil {
		log.Printf("Monitor WebRTC: opus bitrate: %v", err)
	}

	packet := make([]byte, 4000)
	pace(ctx, listener, func(frame []int16) error {
		n, err := enc.Encode(frame, packet)
		if err != nil {
			log.Printf("Monitor WebRTC: opus encode error: %v", err)
			return nil
		}
		return track.WriteSample(media.Sample{Data: packet[:n], Duration: audio.FrameDuration})
	})
}

// Close hangs up every connected peer.
func (h *WebRTCHandler) Close() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.peers))
	for id := range h.peers {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		h.detach(id)
	}
}
