// Package playback runs one stimulus: it starts the media engine, polls it on
// a fixed tick, enforces the condition's duration cap, and, when enabled,
// records an annotated video of the participant for exactly that trial.
//
// The loop never draws anything. It reports Progress to an optional
// observer and returns an Outcome; rendering belongs to the caller.
package playback

import (
	"context"
	"fmt"
	"image"
	"log"
	"path/filepath"
	"time"

	"github.com/satindergrewal/tonalstudy/internal/capture"
	"github.com/satindergrewal/tonalstudy/internal/fault"
	"github.com/satindergrewal/tonalstudy/internal/stimulus"
)

const (
	DefaultTick = time.Second / 30
	DefaultFPS  = 20
)

var (
	ErrPlaybackFailed     = fault.New(fault.KindPlayback, fault.CodePlaybackFailed, "playback failed")
	ErrCaptureUnavailable = fault.New(fault.KindCapture, fault.CodeDeviceUnavailable, "capture device unavailable")
	ErrArtifactFailed     = fault.New(fault.KindCapture, fault.CodeArtifactFailed, "capture artifact failed")
)

// Reason says why the loop returned.
type Reason string

const (
	NaturalEnd     Reason = "natural_end"
	DurationCapped Reason = "duration_capped"
	Cancelled      Reason = "cancelled"
)

// Player is the media engine.
type Player interface {
	Play(path string) error
	Busy() bool
	Stop()
}

// Camera is an opened capture device.
type Camera interface {
	Size() (width, height int)
	// Frame returns the most recent frame as a copy the caller may draw on,
	// or nil if the device has not produced one yet.
	Frame() (*image.RGBA, error)
	Close() error
}

// Artifact is an open per-trial video file.
type Artifact interface {
	WriteFrame(frame *image.RGBA) error
	Close() error
}

type CameraOpener func() (Camera, error)
type ArtifactOpener func(path string, width, height, fps int) (Artifact, error)

// Trial is one invocation of the loop.
type Trial struct {
	Item        stimulus.Item
	Path        string // resolved media file
	Index       int    // 1-based
	Total       int
	MaxDuration time.Duration // zero means play to the end
	Capture     bool
}

// Progress is emitted once per tick while the stimulus plays.
type Progress struct {
	Index     int
	Total     int
	Elapsed   time.Duration
	Capturing bool
}

// Outcome describes how a trial's playback ended.
type Outcome struct {
	Reason     Reason
	Elapsed    time.Duration
	Artifact   string // empty unless frames were written and the file closed cleanly
	Frames     int
	CaptureErr error // trial-scoped, never fatal
}

// Config wires the loop's collaborators. Zero values pick defaults; capture
// is only possible when both openers are set.
type Config struct {
	Tick         time.Duration
	FPS          int
	Clock        Clock
	ArtifactDir  string
	Participant  string
	OpenCamera   CameraOpener
	OpenArtifact ArtifactOpener
	Observer     func(Progress)
}

// Loop plays stimuli one at a time. It is not safe for concurrent use.
type Loop struct {
	player Player
	cfg    Config
}

// NewLoop creates a playback loop around player.
func NewLoop(player Player, cfg Config) *Loop {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	return &Loop{player: player, cfg: cfg}
}

// SetObserver replaces the progress observer.
func (l *Loop) SetObserver(fn func(Progress)) {
	l.cfg.Observer = fn
}

// CaptureAvailable reports whether capture can be attempted at all.
func (l *Loop) CaptureAvailable() bool {
	return l.cfg.OpenCamera != nil && l.cfg.OpenArtifact != nil
}

// Run plays tr and blocks until the media ends, the cap is reached, or ctx is
// cancelled. Capture device and artifact are acquired here and released on
// every return path, device first. The error is non-nil only when playback
// could not start.
func (l *Loop) Run(ctx context.Context, tr Trial) (out Outcome, err error) {
	if ctx.Err() != nil {
		return Outcome{Reason: Cancelled}, nil
	}

	var rec *recorder
	if tr.Capture && l.CaptureAvailable() {
		rec, out.CaptureErr = l.startCapture(tr)
		if out.CaptureErr != nil {
			log.Printf("Capture unavailable for trial %d, continuing without video: %v", tr.Index, out.CaptureErr)
		}
	}
	defer func() {
		if rec == nil {
			return
		}
		if cerr := rec.close(out.Elapsed); cerr != nil && out.CaptureErr == nil {
			out.CaptureErr = cerr
			log.Printf("Closing capture for trial %d: %v", tr.Index, cerr)
		}
		out.Frames = rec.written
		if rec.intact && rec.written > 0 {
			out.Artifact = rec.path
			return
		}
		if out.CaptureErr == nil {
			out.CaptureErr = fault.Wrap(fmt.Errorf("no frames recorded to %s", rec.path), fault.KindCapture, fault.CodeArtifactFailed)
		}
		log.Printf("Trial %d has no usable video: %v", tr.Index, out.CaptureErr)
	}()

	if err := l.player.Play(tr.Path); err != nil {
		return Outcome{}, fault.Wrap(fmt.Errorf("play %s: %w", tr.Item.Ref, err), fault.KindPlayback, fault.CodePlaybackFailed)
	}
	start := l.cfg.Clock.Now()
	log.Printf("Playing trial %d/%d: %s (%s, cap %v)", tr.Index, tr.Total, tr.Item.Ref, tr.Item.Condition, tr.MaxDuration)

	ticker := l.cfg.Clock.NewTicker(l.cfg.Tick)
	defer ticker.Stop()

	label := fmt.Sprintf("Fragment %d/%d", tr.Index, tr.Total)
	for {
		select {
		case <-ctx.Done():
			l.player.Stop()
			out.Reason = Cancelled
			out.Elapsed = l.cfg.Clock.Now().Sub(start)
			log.Printf("Trial %d cancelled after %v", tr.Index, out.Elapsed)
			return out, nil

		case now := <-ticker.C():
			elapsed := now.Sub(start)
			if !l.player.Busy() {
				out.Reason = NaturalEnd
				out.Elapsed = elapsed
				return out, nil
			}
			if tr.MaxDuration > 0 && elapsed >= tr.MaxDuration {
				l.player.Stop()
				out.Reason = DurationCapped
				out.Elapsed = elapsed
				return out, nil
			}
			if rec != nil && rec.active() {
				if cerr := rec.capture(elapsed, label); cerr != nil {
					out.CaptureErr = cerr
					log.Printf("Capture failed mid-trial %d, video stops here: %v", tr.Index, cerr)
				}
			}
			if l.cfg.Observer != nil {
				l.cfg.Observer(Progress{
					Index:     tr.Index,
					Total:     tr.Total,
					Elapsed:   elapsed,
					Capturing: rec != nil && rec.active(),
				})
			}
		}
	}
}

func (l *Loop) startCapture(tr Trial) (*recorder, error) {
	cam, err := l.cfg.OpenCamera()
	if err != nil {
		return nil, fault.Wrap(fmt.Errorf("open camera: %w", err), fault.KindCapture, fault.CodeDeviceUnavailable)
	}
	w, h := cam.Size()
	path := filepath.Join(l.cfg.ArtifactDir, capture.ArtifactName(l.cfg.Participant, tr.Index))
	art, err := l.cfg.OpenArtifact(path, w, h, l.cfg.FPS)
	if err != nil {
		cam.Close()
		return nil, fault.Wrap(fmt.Errorf("open artifact %s: %w", path, err), fault.KindCapture, fault.CodeArtifactFailed)
	}
	return &recorder{cam: cam, art: art, path: path, fps: l.cfg.FPS}, nil
}

// recorder owns one trial's camera and artifact. Frames are written on a
// fixed fps schedule derived from elapsed time, so the artifact's duration
// follows the trial's real duration even when ticks run late.
type recorder struct {
	cam  Camera
	art  Artifact
	path string
	fps  int

	written int
	last    *image.RGBA
	failed  bool
	closed  bool
	intact  bool // artifact closed without error
}

func (r *recorder) active() bool { return !r.failed && !r.closed }

// due is the number of frames the artifact should hold at elapsed.
func (r *recorder) due(elapsed time.Duration) int {
	return int(elapsed*time.Duration(r.fps)/time.Second) + 1
}

func (r *recorder) capture(elapsed time.Duration, label string) error {
	frame, err := r.cam.Frame()
	if err != nil {
		r.failed = true
		return fault.Wrap(fmt.Errorf("read camera frame: %w", err), fault.KindCapture, fault.CodeDeviceUnavailable)
	}
	if frame == nil {
		return nil
	}
	capture.Annotate(frame, label)
	r.last = frame
	return r.fill(r.due(elapsed))
}

func (r *recorder) fill(target int) error {
	for r.written < target {
		if err := r.art.WriteFrame(r.last); err != nil {
			r.failed = true
			return fault.Wrap(fmt.Errorf("write frame %d: %w", r.written, err), fault.KindCapture, fault.CodeArtifactFailed)
		}
		r.written++
	}
	return nil
}

// close pads the artifact up to elapsed with the last frame, then releases
// the device before the artifact.
func (r *recorder) close(elapsed time.Duration) error {
	if r.closed {
		return nil
	}
	var padErr error
	if !r.failed && r.last != nil {
		padErr = r.fill(r.due(elapsed))
	}
	r.closed = true

	camErr := r.cam.Close()
	artErr := r.art.Close()
	r.intact = artErr == nil
	switch {
	case artErr != nil:
		return fault.Wrap(fmt.Errorf("close artifact: %w", artErr), fault.KindCapture, fault.CodeArtifactFailed)
	case camErr != nil:
		return fault.Wrap(fmt.Errorf("close camera: %w", camErr), fault.KindCapture, fault.CodeDeviceUnavailable)
	}
	return padErr
}
