// Package capture records the participant's camera for one trial at a time.
// Both the device and the video file are driven through ffmpeg subprocesses.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// ErrNoSignal is returned when the device stopped delivering frames.
var ErrNoSignal = errors.New("camera stopped delivering frames")

// Camera reads raw RGBA frames from a v4l2 device. A background goroutine
// keeps only the most recent frame.
type Camera struct {
	device string
	width  int
	height int

	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	latest []byte
	err    error
}

// stderrBuffer collects ffmpeg's stderr. exec copies into it from its own
// goroutine while the reader may format it.
type stderrBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *stderrBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *stderrBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ProbeSize asks ffprobe for the device's native resolution.
func ProbeSize(ctx context.Context, device string) (width, height int, err error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-f", "v4l2",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=p=0:s=x",
		"-loglevel", "error",
		device,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe %s: %w", device, err)
	}
	return parseSize(string(out))
}

func parseSize(s string) (int, int, error) {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(s), "\n", 2)[0])
	w, h, ok := strings.Cut(line, "x")
	if !ok {
		return 0, 0, fmt.Errorf("unexpected size %q", line)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0, fmt.Errorf("parse width %q: %w", w, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("parse height %q: %w", h, err)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid size %dx%d", width, height)
	}
	return width, height, nil
}

// OpenCamera probes device and starts streaming frames from it.
func OpenCamera(device string) (*Camera, error) {
	ctx, cancel := context.WithCancel(context.Background())
	width, height, err := ProbeSize(ctx, device)
	if err != nil {
		cancel()
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "v4l2",
		"-i", device,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-loglevel", "error",
		"pipe:1",
	)
	stderr := &stderrBuffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("camera stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start camera ffmpeg: %w", err)
	}

	c := &Camera{
		device: device,
		width:  width,
		height: height,
		cmd:    cmd,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.read(stdout, stderr)
	log.Printf("Camera %s opened at %dx%d", device, width, height)
	return c, nil
}

func (c *Camera) read(r io.Reader, stderr *stderrBuffer) {
	defer close(c.done)
	frameLen := c.width * c.height * 4
	buf := make([]byte, frameLen)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			c.mu.Lock()
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				c.err = fmt.Errorf("%w: %s", ErrNoSignal, msg)
			} else {
				c.err = ErrNoSignal
			}
			c.mu.Unlock()
			return
		}
		c.mu.Lock()
		if c.latest == nil {
			c.latest = make([]byte, frameLen)
		}
		copy(c.latest, buf)
		c.mu.Unlock()
	}
}

// Size returns the native frame size.
func (c *Camera) Size() (int, int) {
	return c.width, c.height
}

// Frame returns a copy of the latest frame, or nil before the first one.
// Once the device has stopped, it returns the error even if an older frame
// is still held.
func (c *Camera) Frame() (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if c.latest == nil {
		return nil, nil
	}
	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	copy(img.Pix, c.latest)
	return img, nil
}

// Close stops the ffmpeg process and waits for the reader to exit.
func (c *Camera) Close() error {
	c.cancel()
	<-c.done
	c.cmd.Wait()
	return nil
}
