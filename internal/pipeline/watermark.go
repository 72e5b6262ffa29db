package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

const watermarkText = "Обработка фото"

var watermarkFont = mustParseFont()

func mustParseFont() *truetype.Font {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		panic(fmt.Sprintf("parse watermark font: %v", err))
	}
	return f
}

// Watermark tiles the preview text across the whole image. The transform is
// deterministic, and the paid delivery path must never route through it.
func Watermark(data []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode for watermark: %w", err)
	}
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	fontSize := min(width, height) / 45
	if fontSize < 13 {
		fontSize = 13
	}
	if fontSize > 29 {
		fontSize = 29
	}

	face := truetype.NewFace(watermarkFont, &truetype.Options{Size: float64(fontSize)})
	defer face.Close()

	overlay := image.NewNRGBA(image.Rect(0, 0, width, height))
	drawer := &font.Drawer{
		Dst:  overlay,
		Src:  image.NewUniform(color.NRGBA{A: 200}),
		Face: face,
	}

	metrics := face.Metrics()
	textWidth := drawer.MeasureString(watermarkText).Ceil()
	textHeight := (metrics.Ascent + metrics.Descent).Ceil()

	hSpacing := textWidth * 12 / 10
	vSpacing := textHeight * 3 / 2
	cols := width/hSpacing + 2
	rows := height/vSpacing + 2

	// Center the grid so edge rows overhang evenly on both sides.
	startX := (width - (cols-1)*hSpacing) / 2
	startY := (height - (rows-1)*vSpacing) / 2

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			x := startX + col*hSpacing
			y := startY + row*vSpacing + metrics.Ascent.Ceil()
			drawer.Dot = fixed.P(x, y)
			drawer.DrawString(watermarkText)
		}
	}

	out := imaging.Overlay(src, overlay, image.Pt(0, 0), 1.0)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode watermark: %w", err)
	}
	return buf.Bytes(), nil
}
