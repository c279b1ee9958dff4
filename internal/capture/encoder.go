package capture

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Encoder pipes raw RGBA frames into ffmpeg, which writes an H.264 mp4.
type Encoder struct {
	path   string
	width  int
	height int

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	closed bool
}

// OpenEncoder creates the artifact at path. An existing file is never
// overwritten.
func OpenEncoder(path string, width, height, fps int) (*Encoder, error) {
	if width <= 0 || height <= 0 || fps <= 0 {
		return nil, fmt.Errorf("invalid video geometry %dx%d@%d", width, height, fps)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("artifact %s already exists", path)
	}

	e := &Encoder{path: path, width: width, height: height}
	e.cmd = exec.Command("ffmpeg",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.Itoa(fps),
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-n",
		"-loglevel", "error",
		path,
	)
	e.cmd.Stderr = &e.stderr
	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder stdin pipe: %w", err)
	}
	e.stdin = stdin
	if err := e.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start encoder ffmpeg: %w", err)
	}
	return e, nil
}

// Path returns the artifact location.
func (e *Encoder) Path() string { return e.path }

// WriteFrame appends one frame. Frames of another size are rejected.
func (e *Encoder) WriteFrame(frame *image.RGBA) error {
	if e.closed {
		return fmt.Errorf("encoder %s is closed", e.path)
	}
	b := frame.Bounds()
	if b.Dx() != e.width || b.Dy() != e.height {
		return fmt.Errorf("frame is %dx%d, encoder expects %dx%d", b.Dx(), b.Dy(), e.width, e.height)
	}
	if _, err := e.stdin.Write(packed(frame)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close flushes ffmpeg and waits for the file to be finalized.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(e.stderr.String()); msg != "" {
			return fmt.Errorf("ffmpeg encode %s: %w: %s", e.path, err, msg)
		}
		return fmt.Errorf("ffmpeg encode %s: %w", e.path, err)
	}
	return nil
}

// packed returns the frame's pixels without row padding.
func packed(frame *image.RGBA) []byte {
	b := frame.Bounds()
	row := b.Dx() * 4
	if frame.Stride == row && b.Min == (image.Point{}) {
		return frame.Pix[:row*b.Dy()]
	}
	out := make([]byte, 0, row*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		start := frame.PixOffset(b.Min.X, y)
		out = append(out, frame.Pix[start:start+row]...)
	}
	return out
}
