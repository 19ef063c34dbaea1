// Package receipt models the content of a printed receipt.
package receipt

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/nixxel-company-limited/escpos-dispatcher/escpos"
)

// DefaultColumns is the character width of 58mm paper in font A.
const DefaultColumns = 32

type Item struct {
	Name  string `yaml:"name" json:"name"`
	Price string `yaml:"price" json:"price"`
}

type BarcodeSpec struct {
	Payload   string `yaml:"payload" json:"payload"`
	Symbology string `yaml:"symbology" json:"symbology"`
	Width     int    `yaml:"width" json:"width,omitempty"`
	Height    int    `yaml:"height" json:"height,omitempty"`
}

type QRSpec struct {
	Payload string `yaml:"payload" json:"payload"`
	Size    int    `yaml:"size" json:"size,omitempty"`
	Level   string `yaml:"level" json:"level,omitempty"`
}

// Receipt is the content of a full receipt. Printed in field order: logo (or
// header), items, barcode, QR code, footer, cut.
type Receipt struct {
	Logo    string       `yaml:"logo" json:"logo,omitempty"`
	Header  string       `yaml:"header" json:"header,omitempty"`
	Items   []Item       `yaml:"items" json:"items"`
	Barcode *BarcodeSpec `yaml:"barcode" json:"barcode,omitempty"`
	QR      *QRSpec      `yaml:"qr" json:"qr,omitempty"`
	Footer  string       `yaml:"footer" json:"footer,omitempty"`
}

// Sample returns the receipt printed when no template is configured.
func Sample() *Receipt {
	return &Receipt{
		Header: "ESC/POS DISPATCHER",
		Items: []Item{
			{Name: "Espresso", Price: "2.50"},
			{Name: "Croissant", Price: "3.20"},
			{Name: "Orange juice", Price: "4.00"},
		},
		Barcode: &BarcodeSpec{Payload: "590123412345", Symbology: string(escpos.EAN13)},
		QR:      &QRSpec{Payload: "https://github.com/nixxel-company-limited", Level: "M"},
		Footer:  "Thank you!",
	}
}

// Parse decodes and validates a YAML receipt template.
func Parse(data []byte) (*Receipt, error) {
	var r Receipt
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse receipt: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Load reads a YAML receipt template from path.
func Load(path string) (*Receipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read receipt: %w", err)
	}
	return Parse(data)
}

// Validate checks barcode and QR parameters ahead of printing so a bad
// template is rejected at load time rather than degraded on paper.
func (r *Receipt) Validate() error {
	var errs []error

	if r.Logo == "" && r.Header == "" && len(r.Items) == 0 && r.Barcode == nil && r.QR == nil && r.Footer == "" {
		errs = append(errs, errors.New("empty receipt"))
	}

	for i, item := range r.Items {
		if strings.TrimSpace(item.Name) == "" {
			errs = append(errs, fmt.Errorf("item %d: empty name", i))
		}
	}

	if r.Barcode != nil {
		sym, err := escpos.ParseSymbology(r.Barcode.Symbology)
		if err != nil {
			errs = append(errs, err)
		} else if err := escpos.ValidateBarcode(sym, r.Barcode.Payload); err != nil {
			errs = append(errs, err)
		}
	}

	if r.QR != nil {
		if r.QR.Payload == "" {
			errs = append(errs, errors.New("qr: empty payload"))
		} else if len(r.QR.Payload) > escpos.MaxQRPayload {
			errs = append(errs, fmt.Errorf("qr: payload of %d bytes exceeds %d", len(r.QR.Payload), escpos.MaxQRPayload))
		}
		if _, err := escpos.ParseQRLevel(r.QR.Level); err != nil {
			errs = append(errs, err)
		}
		if r.QR.Size < 0 || r.QR.Size > 16 {
			errs = append(errs, fmt.Errorf("qr: module size %d out of range 1..16", r.QR.Size))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid receipt: %w", err)
	}
	return nil
}

// Segments lays the receipt out as the ordered segments the executor prints.
// columns is the paper width in characters used to right-align prices.
func (r *Receipt) Segments(columns int) []Segment {
	if columns <= 0 {
		columns = DefaultColumns
	}

	var segs []Segment

	header := TextSegment{Text: r.Header, Align: escpos.AlignCenter, Bold: true}
	if r.Logo != "" {
		segs = append(segs, ImageSegment{Path: r.Logo, Fallback: header})
	} else if r.Header != "" {
		segs = append(segs, header)
	}

	for _, item := range r.Items {
		segs = append(segs, TextSegment{Text: ItemLine(item, columns)})
	}

	if r.Barcode != nil {
		// Validated templates always parse; an unknown name is left for the
		// encoder to reject.
		sym, err := escpos.ParseSymbology(r.Barcode.Symbology)
		if err != nil {
			sym = escpos.Symbology(r.Barcode.Symbology)
		}
		segs = append(segs, BarcodeSegment{
			Payload:   r.Barcode.Payload,
			Symbology: sym,
			Width:     r.Barcode.Width,
			Height:    r.Barcode.Height,
		})
	}

	if r.QR != nil {
		level, err := escpos.ParseQRLevel(r.QR.Level)
		if err != nil {
			level = escpos.QRLevelM
		}
		segs = append(segs, QRSegment{
			Payload:  r.QR.Payload,
			Size:     r.QR.Size,
			Level:    level,
			Fallback: TextSegment{Text: r.QR.Payload, Align: escpos.AlignCenter},
		})
	}

	if r.Footer != "" {
		segs = append(segs, TextSegment{Text: r.Footer, Align: escpos.AlignCenter})
	}

	return append(segs, CutSegment{})
}

// ItemLine renders name and price on one line, price flush right.
func ItemLine(item Item, columns int) string {
	name := utf8.RuneCountInString(item.Name)
	price := utf8.RuneCountInString(item.Price)
	pad := columns - name - price
	if pad < 1 {
		pad = 1
	}
	return item.Name + strings.Repeat(" ", pad) + item.Price
}
