package escpos

import (
	"strings"
)

// Symbology names a barcode type supported by GS k function B.
type Symbology string

const (
	EAN13   Symbology = "EAN13"
	EAN8    Symbology = "EAN8"
	UPCA    Symbology = "UPCA"
	CODE39  Symbology = "CODE39"
	CODE128 Symbology = "CODE128"
)

var symbologyCodes = map[Symbology]byte{
	UPCA:    65,
	EAN13:   67,
	EAN8:    68,
	CODE39:  69,
	CODE128: 73,
}

// ParseSymbology accepts the names above in any case, with or without dashes.
func ParseSymbology(s string) (Symbology, error) {
	name := Symbology(strings.ToUpper(strings.ReplaceAll(s, "-", "")))
	if _, ok := symbologyCodes[name]; !ok {
		return "", encodingError("barcode", "unsupported symbology %q", s)
	}
	return name, nil
}

// HRIPosition places the human readable digits (GS H n).
type HRIPosition byte

const (
	HRINone HRIPosition = iota
	HRIAbove
	HRIBelow
	HRIBoth
)

const (
	DefaultBarcodeWidth  = 3
	DefaultBarcodeHeight = 80
)

// BarcodeOptions configures Barcode. Zero Width and Height select the
// defaults.
type BarcodeOptions struct {
	Symbology Symbology
	Width     int
	Height    int
	HRI       HRIPosition
}

// Barcode encodes payload with GS h, GS w, GS H and GS k (function B).
func Barcode(payload string, opts BarcodeOptions) ([]byte, error) {
	code, ok := symbologyCodes[opts.Symbology]
	if !ok {
		return nil, encodingError("barcode", "unsupported symbology %q", opts.Symbology)
	}

	width := opts.Width
	if width == 0 {
		width = DefaultBarcodeWidth
	}
	if width < 2 || width > 6 {
		return nil, encodingError("barcode", "width %d out of range 2..6", width)
	}
	height := opts.Height
	if height == 0 {
		height = DefaultBarcodeHeight
	}
	if height < 1 || height > 255 {
		return nil, encodingError("barcode", "height %d out of range 1..255", height)
	}
	if opts.HRI > HRIBoth {
		return nil, encodingError("barcode", "invalid HRI position %d", opts.HRI)
	}

	data, err := barcodeData(opts.Symbology, payload)
	if err != nil {
		return nil, err
	}

	out := []byte{
		GS, 'h', byte(height),
		GS, 'w', byte(width),
		GS, 'H', byte(opts.HRI),
		GS, 'k', code, byte(len(data)),
	}
	return append(out, data...), nil
}

// ValidateBarcode checks payload against the symbology's constraints.
func ValidateBarcode(s Symbology, payload string) error {
	_, err := barcodeData(s, payload)
	return err
}

func barcodeData(s Symbology, payload string) ([]byte, error) {
	switch s {
	case EAN13:
		return gtin(s, payload, 12)
	case EAN8:
		return gtin(s, payload, 7)
	case UPCA:
		return gtin(s, payload, 11)
	case CODE39:
		if len(payload) == 0 || len(payload) > 255 {
			return nil, encodingError("barcode", "CODE39 length %d out of range 1..255", len(payload))
		}
		for _, r := range payload {
			if !strings.ContainsRune(code39Charset, r) {
				return nil, encodingError("barcode", "CODE39 cannot encode %q", r)
			}
		}
		return []byte(payload), nil
	case CODE128:
		if len(payload) == 0 || len(payload) > 253 {
			return nil, encodingError("barcode", "CODE128 length %d out of range 1..253", len(payload))
		}
		for i := 0; i < len(payload); i++ {
			if payload[i] < 0x20 || payload[i] > 0x7E {
				return nil, encodingError("barcode", "CODE128 cannot encode byte 0x%02x", payload[i])
			}
		}
		// Code set B
		return append([]byte("{B"), payload...), nil
	}
	return nil, encodingError("barcode", "unsupported symbology %q", s)
}

const code39Charset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ $%*+-./"

// gtin validates a numeric EAN/UPC payload of n digits, or n+1 digits with a
// correct check digit.
func gtin(s Symbology, payload string, n int) ([]byte, error) {
	if len(payload) != n && len(payload) != n+1 {
		return nil, encodingError("barcode", "%s needs %d or %d digits, got %d", s, n, n+1, len(payload))
	}
	for i := 0; i < len(payload); i++ {
		if payload[i] < '0' || payload[i] > '9' {
			return nil, encodingError("barcode", "%s payload must be numeric", s)
		}
	}
	if len(payload) == n+1 {
		if want := CheckDigit(payload[:n]); payload[n] != want {
			return nil, encodingError("barcode", "%s check digit %c, want %c", s, payload[n], want)
		}
	}
	return []byte(payload), nil
}

// CheckDigit computes the GS1 mod-10 check digit of a numeric string.
func CheckDigit(digits string) byte {
	sum := 0
	for i := 0; i < len(digits); i++ {
		d := int(digits[len(digits)-1-i] - '0')
		if i%2 == 0 {
			d *= 3
		}
		sum += d
	}
	return byte('0' + (10-sum%10)%10)
}
