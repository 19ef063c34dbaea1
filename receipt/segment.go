package receipt

import "github.com/nixxel-company-limited/escpos-dispatcher/escpos"

// Segment is one of TextSegment, ImageSegment, BarcodeSegment, QRSegment or
// CutSegment.
type Segment interface {
	segment()
}

type TextSegment struct {
	Text  string
	Align escpos.Alignment
	Bold  bool
}

// ImageSegment prints the image at Path as a raster logo. Fallback is printed
// instead when the image cannot be loaded or encoded.
type ImageSegment struct {
	Path     string
	Fallback TextSegment
}

type BarcodeSegment struct {
	Payload   string
	Symbology escpos.Symbology
	Width     int
	Height    int
}

// QRSegment prints a native QR code, or Fallback when it cannot be encoded
// or sent.
type QRSegment struct {
	Payload  string
	Size     int
	Level    escpos.QRLevel
	Fallback TextSegment
}

type CutSegment struct{}

func (TextSegment) segment()    {}
func (ImageSegment) segment()   {}
func (BarcodeSegment) segment() {}
func (QRSegment) segment()      {}
func (CutSegment) segment()     {}
