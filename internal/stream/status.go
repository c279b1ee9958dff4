package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status is the read-only view of a session shown to the operator.
type Status struct {
	Participant string  `json:"participant"`
	State       string  `json:"state"`
	Trial       int     `json:"trial"`
	Total       int     `json:"total"`
	Condition   string  `json:"condition,omitempty"`
	Elapsed     float64 `json:"elapsed"`
	Capturing   bool    `json:"capturing"`
	Logged      int     `json:"trials_logged"`
	Listeners   int     `json:"listeners"`
	Dropped     uint64  `json:"dropped_frames"`
}

// Board holds the latest Status. The session writes it, HTTP handlers read it.
type Board struct {
	mu     sync.RWMutex
	status Status
}

func NewBoard(participant string, total int) *Board {
	return &Board{status: Status{Participant: participant, Total: total, State: "starting"}}
}

// SetState records a state change. Elapsed resets when the trial changes.
func (b *Board) SetState(state string, trial int, condition string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if trial != b.status.Trial {
		b.status.Elapsed = 0
		b.status.Capturing = false
	}
	b.status.State = state
	b.status.Trial = trial
	b.status.Condition = condition
}

// SetProgress records playback progress of the current trial.
func (b *Board) SetProgress(elapsed time.Duration, capturing bool) {
	b.mu.Lock()
	b.status.Elapsed = elapsed.Seconds()
	b.status.Capturing = capturing
	b.mu.Unlock()
}

// SetLogged records how many trial rows are durable.
func (b *Board) SetLogged(n int) {
	b.mu.Lock()
	b.status.Logged = n
	b.mu.Unlock()
}

// Snapshot returns a copy of the current status.
func (b *Board) Snapshot() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// StatusHandler serves the board as JSON, with listener counts filled in.
type StatusHandler struct {
	board       *Board
	broadcaster *Broadcaster
	webrtc      *WebRTCHandler
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s := h.board.Snapshot()
	if h.broadcaster != nil {
		s.Listeners = h.broadcaster.ListenerCount()
		s.Dropped = h.broadcaster.Dropped()
	}
	if h.webrtc != nil {
		s.Listeners += h.webrtc.PeerCount()
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(s)
}
