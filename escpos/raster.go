package escpos

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

const (
	// DefaultMaxWidth is the printable width in dots of 58mm paper at 203 dpi.
	DefaultMaxWidth = 384

	threshold = 128
)

var rasterHeader = []byte{GS, 'v', '0', 0x00}

// Raster encodes GS v 0 in normal mode. width is the x field of the command,
// the number of data bytes per row; height is the number of rows. data must
// hold exactly width*height bytes, MSB first, 1 = black.
func Raster(width, height int, data []byte) ([]byte, error) {
	if width <= 0 || width > 0xFFFF {
		return nil, encodingError("raster", "width %d out of range 1..65535", width)
	}
	if height <= 0 || height > 0xFFFF {
		return nil, encodingError("raster", "height %d out of range 1..65535", height)
	}
	if len(data) != width*height {
		return nil, encodingError("raster", "got %d data bytes, want %d", len(data), width*height)
	}

	wL, wH := split16(width)
	hL, hH := split16(height)

	out := make([]byte, 0, len(rasterHeader)+4+len(data))
	out = append(out, rasterHeader...)
	out = append(out, wL, wH, hL, hH)
	return append(out, data...), nil
}

// Bitmap is a monochrome image packed for raster printing. Rows are padded to
// whole bytes.
type Bitmap struct {
	Width  int
	Height int
	Data   []byte
}

// RowBytes returns the number of bytes per packed row.
func (b *Bitmap) RowBytes() int {
	return (b.Width + 7) / 8
}

// RasterImage encodes the bitmap with GS v 0.
func RasterImage(b *Bitmap) ([]byte, error) {
	if b == nil {
		return nil, encodingError("raster", "nil bitmap")
	}
	return Raster(b.RowBytes(), b.Height, b.Data)
}

// NewBitmap scales img down to at most maxWidth dots, keeping its aspect
// ratio, and thresholds it to black and white. Images are never scaled up.
// Transparent pixels print as paper. maxWidth <= 0 means DefaultMaxWidth.
func NewBitmap(img image.Image, maxWidth int) (*Bitmap, error) {
	if img == nil {
		return nil, encodingError("raster", "nil image")
	}
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}

	src := img.Bounds()
	w, h := src.Dx(), src.Dy()
	if w <= 0 || h <= 0 {
		return nil, encodingError("raster", "empty image")
	}
	if w > maxWidth {
		h = h * maxWidth / w
		if h < 1 {
			h = 1
		}
		w = maxWidth
	}

	gray := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(gray, gray.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == src.Dx() && h == src.Dy() {
		draw.Draw(gray, gray.Bounds(), img, src.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(gray, gray.Bounds(), img, src, draw.Over, nil)
	}

	b := &Bitmap{Width: w, Height: h}
	rowBytes := b.RowBytes()
	b.Data = make([]byte, rowBytes*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if gray.GrayAt(x, y).Y < threshold {
				b.Data[y*rowBytes+x/8] |= 0x80 >> uint(x%8)
			}
		}
	}

	return b, nil
}
