package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

// --- Constants ---

func TestConstants(t *testing.T) {
	// 48kHz * 20ms = 960 samples per channel
	if got := SampleRate * int(FrameDuration/time.Millisecond) / 1000; got != FrameSize {
		t.Errorf("FrameSize mismatch: want %d, got %d", got, FrameSize)
	}
	if FrameSamples != FrameSize*Channels {
		t.Errorf("FrameSamples = %d, want %d", FrameSamples, FrameSize*Channels)
	}
	if FrameBytes != FrameSamples*2 {
		t.Errorf("FrameBytes = %d, want %d", FrameBytes, FrameSamples*2)
	}
}

// --- Smoothstep ---

func TestSmoothstepBoundaries(t *testing.T) {
	tests := []struct {
		input float64
		want  float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{1.5, 1},
	}
	for _, tt := range tests {
		got := Smoothstep(tt.input)
		if got != tt.want {
			t.Errorf("Smoothstep(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSmoothstepMonotonic(t *testing.T) {
	prev := 0.0
	for i := 1; i <= 100; i++ {
		x := float64(i) / 100.0
		val := Smoothstep(x)
		if val < prev {
			t.Errorf("Smoothstep not monotonic: f(%v)=%v < f(%v)=%v", x, val, float64(i-1)/100.0, prev)
		}
		prev = val
	}
}

// --- Sample conversion ---

func TestToInt16Clipping(t *testing.T) {
	tests := []struct {
		in   float64
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32767},
		{1.5, 32767},
		{-2, -32768},
		{0.5, 16383},
	}
	for _, tt := range tests {
		if got := toInt16(tt.in); got != tt.want {
			t.Errorf("toInt16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSamplesToBytes(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 256}
	buf := SamplesToBytes(samples)
	if len(buf) != len(samples)*2 {
		t.Fatalf("SamplesToBytes length = %d, want %d", len(buf), len(samples)*2)
	}

	// 256 = 0x0100 -> bytes [0x00, 0x01]
	idx := 5 * 2
	if buf[idx] != 0x00 || buf[idx+1] != 0x01 {
		t.Errorf("Sample 256 encoded as [%02x, %02x], want [00, 01]", buf[idx], buf[idx+1])
	}
}

// --- Tap ---

// constant streams n samples of value v on both channels.
type constant struct {
	v float64
	n int
}

func (c *constant) Stream(samples [][2]float64) (int, bool) {
	if c.n <= 0 {
		return 0, false
	}
	k := min(len(samples), c.n)
	for i := range k {
		samples[i] = [2]float64{c.v, -c.v}
	}
	c.n -= k
	return k, true
}

func (c *constant) Err() error { return nil }

func drain(s beep.Streamer, chunk int) int {
	buf := make([][2]float64, chunk)
	total := 0
	for {
		n, ok := s.Stream(buf)
		total += n
		if !ok {
			return total
		}
	}
}

func TestTapSlicesIntoFrames(t *testing.T) {
	var frames [][]int16
	tap := NewTap(func(f []int16) { frames = append(frames, f) })

	// 2.5 frames worth, streamed in awkward chunk sizes
	s := tap.Wrap(&constant{v: 0.5, n: FrameSize*2 + FrameSize/2})
	if got := drain(s, 333); got != FrameSize*2+FrameSize/2 {
		t.Fatalf("streamed %d samples", got)
	}

	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2 (partial frame held back)", len(frames))
	}
	for i, f := range frames {
		if len(f) != FrameSamples {
			t.Errorf("frame %d has %d samples, want %d", i, len(f), FrameSamples)
		}
		if f[0] != 16383 || f[1] != -16383 {
			t.Errorf("frame %d starts with %d,%d, want interleaved 16383,-16383", i, f[0], f[1])
		}
	}
	if &frames[0][0] == &frames[1][0] {
		t.Error("frames must not share a buffer")
	}
}

func TestTapResetDropsPartialFrame(t *testing.T) {
	count := 0
	tap := NewTap(func([]int16) { count++ })
	drain(tap.Wrap(&constant{v: 0.1, n: FrameSize / 2}), 128)
	tap.Reset()
	drain(tap.Wrap(&constant{v: 0.1, n: FrameSize / 2}), 128)
	if count != 0 {
		t.Errorf("frames = %d, want 0 after reset", count)
	}
}

func TestTapNilSink(t *testing.T) {
	tap := NewTap(nil)
	if got := drain(tap.Wrap(&constant{v: 1, n: FrameSize * 3}), 512); got != FrameSize*3 {
		t.Errorf("streamed %d samples through a nil sink", got)
	}
}

// --- Fade-out ---

func TestFaderPassesThroughUntilStopped(t *testing.T) {
	f := newFader(&constant{v: 1, n: 1000}, 100)
	buf := make([][2]float64, 10)
	n, ok := f.Stream(buf)
	if n != 10 || !ok || buf[9][0] != 1 {
		t.Errorf("Stream = %d, %v, sample %v; want untouched audio", n, ok, buf[9])
	}
}

func TestFaderRampsToSilenceAndEnds(t *testing.T) {
	f := newFader(&constant{v: 1, n: 100000}, 100)
	f.stop()

	buf := make([][2]float64, 512)
	n, ok := f.Stream(buf)
	if n != 100 || !ok {
		t.Fatalf("Stream after stop = %d, %v; want the 100-sample ramp", n, ok)
	}
	if buf[0][0] != 1 {
		t.Errorf("ramp starts at %v, want full gain", buf[0][0])
	}
	for i := 1; i < n; i++ {
		if buf[i][0] > buf[i-1][0] {
			t.Fatalf("ramp rises at %d: %v > %v", i, buf[i][0], buf[i-1][0])
		}
	}
	if buf[n-1][0] > 0.01 {
		t.Errorf("ramp ends at %v, want near silence", buf[n-1][0])
	}

	if n, ok := f.Stream(buf); n != 0 || ok {
		t.Errorf("Stream after ramp = %d, %v; want 0, false", n, ok)
	}
}

// --- Decoding ---

func TestOpenWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t1.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	format := beep.Format{SampleRate: 44100, NumChannels: 2, Precision: 2}
	if err := wav.Encode(f, &constant{v: 0.25, n: 4410}, format); err != nil {
		t.Fatalf("wav.Encode: %v", err)
	}
	f.Close()

	stream, got, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()
	if got.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", got.SampleRate)
	}
	if stream.Len() != 4410 {
		t.Errorf("Len = %d, want 4410", stream.Len())
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := Open(filepath.Join(dir, "missing.wav")); err == nil {
		t.Error("expected error for a missing file")
	}

	flac := filepath.Join(dir, "x.flac")
	os.WriteFile(flac, []byte("fLaC"), 0o644)
	if _, _, err := Open(flac); err == nil {
		t.Error("expected error for an unsupported extension")
	}

	bad := filepath.Join(dir, "x.wav")
	os.WriteFile(bad, []byte("not a riff header"), 0o644)
	if _, _, err := Open(bad); err == nil {
		t.Error("expected error for a corrupt wav")
	}
}
