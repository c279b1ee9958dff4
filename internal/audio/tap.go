package audio

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

// Tap sits between the stimulus and the speaker and slices everything that
// passes through into interleaved 20ms int16 frames. Stream runs on the
// speaker goroutine, so the sink must never block.
type Tap struct {
	mu    sync.Mutex
	sink  func([]int16)
	frame []int16
}

// NewTap creates a tap delivering frames to sink. A nil sink discards them.
func NewTap(sink func([]int16)) *Tap {
	return &Tap{sink: sink, frame: make([]int16, 0, FrameSamples)}
}

// Wrap returns s with the tap spliced in.
func (t *Tap) Wrap(s beep.Streamer) beep.Streamer {
	return &tapStreamer{tap: t, s: s}
}

// Reset drops any partially filled frame.
func (t *Tap) Reset() {
	t.mu.Lock()
	t.frame = t.frame[:0]
	t.mu.Unlock()
}

func (t *Tap) push(samples [][2]float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sink == nil {
		return
	}
	for _, s := range samples {
		t.frame = append(t.frame, toInt16(s[0]), toInt16(s[1]))
		if len(t.frame) == FrameSamples {
			out := make([]int16, FrameSamples)
			copy(out, t.frame)
			t.sink(out)
			t.frame = t.frame[:0]
		}
	}
}

type tapStreamer struct {
	tap *Tap
	s   beep.Streamer
}

func (ts *tapStreamer) Stream(samples [][2]float64) (int, bool) {
	n, ok := ts.s.Stream(samples)
	ts.tap.push(samples[:n])
	return n, ok
}

func (ts *tapStreamer) Err() error {
	return ts.s.Err()
}
