package audio

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// Engine plays one stimulus at a time on the default output device.
type Engine struct {
	rate beep.SampleRate
	tap  *Tap

	mu  sync.Mutex
	cur *track
}

type track struct {
	path   string
	stream beep.StreamSeekCloser
	fade   *fader
	done   chan struct{}
}

// NewEngine opens the output device at SampleRate. Frames of everything
// played are passed to sink, which may be nil.
func NewEngine(sink func([]int16)) (*Engine, error) {
	rate := beep.SampleRate(SampleRate)
	if err := speaker.Init(rate, rate.N(100*time.Millisecond)); err != nil {
		return nil, fmt.Errorf("open audio output: %w", err)
	}
	return &Engine{rate: rate, tap: NewTap(sink)}, nil
}

// Play starts path from the beginning, stopping anything still playing.
func (e *Engine) Play(path string) error {
	e.Stop()

	stream, format, err := Open(path)
	if err != nil {
		return err
	}
	var s beep.Streamer = stream
	if format.SampleRate != e.rate {
		s = beep.Resample(4, format.SampleRate, e.rate, s)
	}

	t := &track{
		path:   path,
		stream: stream,
		fade:   newFader(s, e.rate.N(FadeOut)),
		done:   make(chan struct{}),
	}
	e.mu.Lock()
	e.cur = t
	e.mu.Unlock()

	e.tap.Reset()
	speaker.Play(beep.Seq(e.tap.Wrap(t.fade), beep.Callback(func() { close(t.done) })))
	return nil
}

// Busy reports whether the current stimulus is still playing.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	t := e.cur
	e.mu.Unlock()
	if t == nil {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Stop fades the current stimulus out and releases its decoder.
func (e *Engine) Stop() {
	e.mu.Lock()
	t := e.cur
	e.cur = nil
	e.mu.Unlock()
	if t == nil {
		return
	}

	speaker.Lock()
	t.fade.stop()
	speaker.Unlock()

	select {
	case <-t.done:
	case <-time.After(FadeOut + 250*time.Millisecond):
		log.Printf("Fade-out of %s timed out, clearing output", filepath.Base(t.path))
	}
	speaker.Clear()
	if err := t.stream.Close(); err != nil {
		log.Printf("Closing %s: %v", filepath.Base(t.path), err)
	}
}

// Close stops playback and releases the output device.
func (e *Engine) Close() {
	e.Stop()
	speaker.Close()
}

// Open decodes a stimulus file by extension.
func Open(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("open stimulus: %w", err)
	}

	var (
		stream beep.StreamSeekCloser
		format beep.Format
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		stream, format, err = wav.Decode(f)
	case ".mp3":
		stream, format, err = mp3.Decode(f)
	case ".ogg":
		stream, format, err = vorbis.Decode(f)
	default:
		err = fmt.Errorf("unsupported format %q", ext)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return stream, format, nil
}

// fader passes audio through until stopped, then ramps it to silence over
// length samples and ends the stream.
type fader struct {
	s        beep.Streamer
	length   int
	stopping bool
	pos      int
}

func newFader(s beep.Streamer, length int) *fader {
	if length < 1 {
		length = 1
	}
	return &fader{s: s, length: length}
}

// stop must be called with the speaker locked.
func (f *fader) stop() {
	f.stopping = true
}

func (f *fader) Stream(samples [][2]float64) (int, bool) {
	if f.stopping && f.pos >= f.length {
		return 0, false
	}
	if f.stopping && len(samples) > f.length-f.pos {
		samples = samples[:f.length-f.pos]
	}
	n, ok := f.s.Stream(samples)
	if !f.stopping {
		return n, ok
	}
	for i := range n {
		gain := 1 - Smoothstep(float64(f.pos)/float64(f.length))
		samples[i][0] *= gain
		samples[i][1] *= gain
		f.pos++
	}
	return n, ok
}

func (f *fader) Err() error {
	return f.s.Err()
}
