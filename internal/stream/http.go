package stream

import (
	"context"
	"io"
	"log"
	"net/http"
	"os/exec"
	"time"

	"github.com/satindergrewal/tonalstudy/internal/audio"
)

// gapTimeout is how long a monitor waits for session audio before it starts
// filling with silence. Between stimuli nothing is played.
const gapTimeout = 3 * audio.FrameDuration

// pace delivers the listener's frames to send until ctx ends, the listener is
// dropped, or send fails. Gaps are filled with silence so clients keep a
// steady clock between trials.
func pace(ctx context.Context, l *Listener, send func([]int16) error) {
	silence := make([]int16, audio.FrameSamples)
	idle := time.NewTimer(gapTimeout)
	defer idle.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case frame := <-l.C:
			if send(frame) != nil {
				return
			}
			idle.Reset(gapTimeout)
		case <-idle.C:
			if send(silence) != nil {
				return
			}
			idle.Reset(audio.FrameDuration)
		}
	}
}

// HTTPHandler serves what the participant hears as a chunked MP3 stream.
// Each connection spawns an FFmpeg process to encode PCM -> MP3 in real-time.
type HTTPHandler struct {
	broadcaster *Broadcaster
}

// NewHTTPHandler creates an HTTP stream handler.
func NewHTTPHandler(b *Broadcaster) *HTTPHandler {
	return &HTTPHandler{broadcaster: b}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", "128k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Printf("Monitor stream: stdin pipe error: %v", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Printf("Monitor stream: stdout pipe error: %v", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	if err := cmd.Start(); err != nil {
		log.Printf("Monitor stream: ffmpeg start error: %v", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	log.Printf("Monitor listener connected from %s (total: %d)", r.RemoteAddr, h.broadcaster.ListenerCount())
	defer log.Printf("Monitor listener %s disconnected", r.RemoteAddr)

	go func() {
		defer stdin.Close()
		pace(ctx, listener, func(frame []int16) error {
			_, err := stdin.Write(audio.SamplesToBytes(frame))
			return err
		})
	}()

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("Monitor stream: ffmpeg read error: %v", err)
			}
			break
		}
	}

	cancel()
	cmd.Wait()
}
