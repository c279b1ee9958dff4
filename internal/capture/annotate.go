package capture

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	labelMargin  = 8
	labelPadding = 4
)

// ArtifactName is the per-trial video file name.
func ArtifactName(participant string, trial int) string {
	return fmt.Sprintf("%s_trial%02d.mp4", participant, trial)
}

// Annotate draws label in the top-left corner of frame on a dark backing box
// so it stays readable over any scene.
func Annotate(frame *image.RGBA, label string) {
	if frame == nil || label == "" {
		return
	}
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: frame, Src: image.NewUniform(color.White), Face: face}

	width := d.MeasureString(label).Ceil()
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	height := metrics.Height.Ceil()

	box := image.Rect(
		frame.Rect.Min.X+labelMargin,
		frame.Rect.Min.Y+labelMargin,
		frame.Rect.Min.X+labelMargin+width+2*labelPadding,
		frame.Rect.Min.Y+labelMargin+height+2*labelPadding,
	).Intersect(frame.Rect)
	draw.Draw(frame, box, image.NewUniform(color.RGBA{A: 0xc0}), image.Point{}, draw.Over)

	d.Dot = fixed.P(box.Min.X+labelPadding, box.Min.Y+labelPadding+ascent)
	d.DrawString(label)
}
