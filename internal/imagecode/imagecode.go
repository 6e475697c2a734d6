// Package imagecode renders voucher images: a code128 barcode for the till
// scanner with the PIN digits drawn underneath. Rendering is deterministic
// for a given code and PIN, so exports can be cached and diffed.
package imagecode

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
)

const (
	barcodeWidth  = 400
	barcodeHeight = 120
	digitScale    = 6
	margin        = 16
)

// digitGlyphs is a 3x5 bitmap font for the PIN digits.
var digitGlyphs = map[rune][5]uint8{
	'0': {0b111, 0b101, 0b101, 0b101, 0b111},
	'1': {0b010, 0b110, 0b010, 0b010, 0b111},
	'2': {0b111, 0b001, 0b111, 0b100, 0b111},
	'3': {0b111, 0b001, 0b111, 0b001, 0b111},
	'4': {0b101, 0b101, 0b111, 0b001, 0b001},
	'5': {0b111, 0b100, 0b111, 0b001, 0b111},
	'6': {0b111, 0b100, 0b111, 0b101, 0b111},
	'7': {0b111, 0b001, 0b010, 0b010, 0b010},
	'8': {0b111, 0b101, 0b111, 0b101, 0b111},
	'9': {0b111, 0b101, 0b111, 0b001, 0b111},
}

// Render produces the PNG for one voucher.
func Render(code, pin string) ([]byte, error) {
	if code == "" {
		return nil, fmt.Errorf("voucher code is empty")
	}

	encoded, err := code128.Encode(code)
	if err != nil {
		return nil, fmt.Errorf("encode barcode: %w", err)
	}
	scaled, err := barcode.Scale(encoded, barcodeWidth, barcodeHeight)
	if err != nil {
		return nil, fmt.Errorf("scale barcode: %w", err)
	}

	pinHeight := 5*digitScale + margin
	canvas := image.NewRGBA(image.Rect(0, 0, barcodeWidth+2*margin, barcodeHeight+pinHeight+2*margin))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(canvas,
		image.Rect(margin, margin, margin+barcodeWidth, margin+barcodeHeight),
		scaled, image.Point{}, draw.Over)

	drawPin(canvas, pin, margin, margin+barcodeHeight+margin)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawPin(canvas *image.RGBA, pin string, x, y int) {
	black := color.RGBA{A: 255}
	for _, r := range pin {
		glyph, ok := digitGlyphs[r]
		if !ok {
			x += 4 * digitScale
			continue
		}
		for row := 0; row < 5; row++ {
			for col := 0; col < 3; col++ {
				if glyph[row]&(1<<(2-col)) == 0 {
					continue
				}
				for dy := 0; dy < digitScale; dy++ {
					for dx := 0; dx < digitScale; dx++ {
						canvas.Set(x+col*digitScale+dx, y+row*digitScale+dy, black)
					}
				}
			}
		}
		x += 4 * digitScale
	}
}
