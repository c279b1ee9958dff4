// Package audio plays stimulus files through the sound card and taps what is
// played into fixed-size PCM frames for the operator monitor.
package audio

import (
	"encoding/binary"
	"time"
)

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)

	// FadeOut is the ramp applied when a stimulus is stopped early.
	FadeOut = 30 * time.Millisecond
)

// Smoothstep returns the smoothstep interpolation for t in [0,1].
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// toInt16 converts a [-1,1] sample, clipping anything outside.
func toInt16(v float64) int16 {
	s := v * 32767
	if s > 32767 {
		return 32767
	} else if s < -32768 {
		return -32768
	}
	return int16(s)
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
