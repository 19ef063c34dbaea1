package escpos

import "strings"

// QRLevel is the error correction level of a native QR code.
type QRLevel byte

const (
	QRLevelL QRLevel = 48 + iota
	QRLevelM
	QRLevelQ
	QRLevelH
)

// ParseQRLevel maps "L", "M", "Q" or "H" to a level. Empty means M.
func ParseQRLevel(s string) (QRLevel, error) {
	switch strings.ToUpper(s) {
	case "L":
		return QRLevelL, nil
	case "", "M":
		return QRLevelM, nil
	case "Q":
		return QRLevelQ, nil
	case "H":
		return QRLevelH, nil
	}
	return 0, encodingError("qrcode", "unknown error correction level %q", s)
}

const (
	DefaultQRSize = 6

	// MaxQRPayload is the byte-mode capacity of a version 40 symbol at level L.
	MaxQRPayload = 2953
)

// QROptions configures QRCode. Zero values select module size 6 and level M.
type QROptions struct {
	Size  int
	Level QRLevel
}

// qr builds one GS ( k function block for cn=49 ('1').
func qr(fn byte, params ...byte) []byte {
	pL, pH := split16(len(params) + 2)
	out := []byte{GS, '(', 'k', pL, pH, '1', fn}
	return append(out, params...)
}

// QRCode encodes payload as the printer's native QR symbol: model 2, module
// size, error correction, store data, print. The payload is carried verbatim;
// the printer builds the symbol.
func QRCode(payload string, opts QROptions) ([]byte, error) {
	if len(payload) == 0 {
		return nil, encodingError("qrcode", "empty payload")
	}
	if len(payload) > MaxQRPayload {
		return nil, encodingError("qrcode", "payload of %d bytes exceeds %d", len(payload), MaxQRPayload)
	}

	size := opts.Size
	if size == 0 {
		size = DefaultQRSize
	}
	if size < 1 || size > 16 {
		return nil, encodingError("qrcode", "module size %d out of range 1..16", size)
	}
	level := opts.Level
	if level == 0 {
		level = QRLevelM
	}
	if level < QRLevelL || level > QRLevelH {
		return nil, encodingError("qrcode", "invalid error correction level %d", level)
	}

	out := make([]byte, 0, 40+len(payload))
	out = append(out, qr('A', '2', 0)...)
	out = append(out, qr('C', byte(size))...)
	out = append(out, qr('E', byte(level))...)
	out = append(out, qr('P', append([]byte{'0'}, payload...)...)...)
	out = append(out, qr('Q', '0')...)
	return out, nil
}
