// Package escpos encodes receipt content into ESC/POS command bytes.
//
// Every encoder is a pure function returning a fresh slice; callers batch the
// results in a Buffer and flush it to the printer.
package escpos

import (
	"errors"
	"fmt"
)

const (
	ESC = 0x1B
	GS  = 0x1D
	LF  = 0x0A
)

// ErrEncoding matches every *EncodingError.
var ErrEncoding = errors.New("escpos: encoding error")

// EncodingError reports a payload or parameter a command cannot carry.
type EncodingError struct {
	Command string
	Reason  string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("escpos: %s: %s", e.Command, e.Reason)
}

func (e *EncodingError) Is(target error) bool {
	return target == ErrEncoding
}

func encodingError(command, format string, args ...any) *EncodingError {
	return &EncodingError{Command: command, Reason: fmt.Sprintf(format, args...)}
}

// Alignment for ESC a.
type Alignment byte

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

// Init resets the printer (ESC @).
func Init() []byte {
	return []byte{ESC, '@'}
}

// Align sets justification (ESC a n).
func Align(a Alignment) []byte {
	return []byte{ESC, 'a', byte(a)}
}

// Bold toggles emphasized mode (ESC E n).
func Bold(on bool) []byte {
	if on {
		return []byte{ESC, 'E', 1}
	}
	return []byte{ESC, 'E', 0}
}

// Size sets the character magnification (GS ! n). Width and height are
// clamped to 1..8.
func Size(width, height int) []byte {
	w := clamp(width, 1, 8) - 1
	h := clamp(height, 1, 8) - 1
	return []byte{GS, '!', byte(w<<4 | h)}
}

// Feed prints the buffer and feeds n lines (ESC d n).
func Feed(n int) []byte {
	return []byte{ESC, 'd', byte(clamp(n, 0, 255))}
}

// Text passes the string's bytes through and terminates the line. Wrapping
// is left to the printer.
func Text(s string) []byte {
	b := make([]byte, 0, len(s)+1)
	b = append(b, s...)
	return append(b, LF)
}

// Cut feeds past the cutter and performs a full cut (GS V 0).
func Cut() []byte {
	return append(Feed(3), GS, 'V', 0)
}

// PartialCut feeds past the cutter and leaves one point uncut (GS V 1).
func PartialCut() []byte {
	return append(Feed(3), GS, 'V', 1)
}

// SelectCodePage selects character code table n (ESC t n).
func SelectCodePage(n byte) []byte {
	return []byte{ESC, 't', n}
}

// CutCommand is the byte sequence Cut ends with.
var CutCommand = []byte{GS, 'V', 0}

// split16 returns the little-endian low and high bytes of v.
func split16(v int) (byte, byte) {
	return byte(v % 256), byte(v / 256)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
