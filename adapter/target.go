package adapter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultBaudRate is used for serial targets submitted without a baud rate.
const DefaultBaudRate = 9600

var ErrInvalidTarget = errors.New("invalid device identifier")

// Kind tags the transport a Target is reached over.
type Kind int

const (
	KindUSB Kind = iota
	KindSerial
)

func (k Kind) String() string {
	if k == KindSerial {
		return "serial"
	}
	return "usb"
}

// Target identifies a printer. It is either a USBTarget or a SerialTarget.
type Target interface {
	Kind() Kind
	String() string
}

// USBTarget selects a USB printer-class device. A zero VID/PID picks the
// first printer found; Serial, when set, must match the device serial number.
type USBTarget struct {
	VID    uint16
	PID    uint16
	Serial string
}

func (USBTarget) Kind() Kind { return KindUSB }

func (t USBTarget) String() string {
	switch {
	case t.Serial != "":
		return "usb:serial=" + t.Serial
	case t.VID != 0 || t.PID != 0:
		return fmt.Sprintf("usb:%04x:%04x", t.VID, t.PID)
	default:
		return "usb"
	}
}

// SerialTarget selects a serial-like port such as /dev/ttyUSB0 or an
// RFCOMM-bound /dev/rfcomm0.
type SerialTarget struct {
	Path     string
	BaudRate int
}

func (SerialTarget) Kind() Kind { return KindSerial }

func (t SerialTarget) String() string {
	return fmt.Sprintf("%s@%d", t.Path, t.BaudRate)
}

var comPort = regexp.MustCompile(`(?i)^COM[0-9]+$`)

// ParseTarget turns a device identifier as produced by ListDevices, or typed
// by an operator, into a Target. Accepted forms:
//
//	usb                  first USB printer
//	usb:04b8:0202        USB vendor:product (hex)
//	usb:serial=ABC123    USB serial number
//	/dev/rfcomm0         serial-like path
//	serial:/dev/ttyS0    explicit serial path
//	COM3                 Windows serial port
func ParseTarget(identifier string, baudRate int) (Target, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTarget)
	}
	if baudRate < 0 {
		return nil, fmt.Errorf("%w: negative baud rate %d", ErrInvalidTarget, baudRate)
	}

	lower := strings.ToLower(id)
	switch {
	case lower == "usb" || lower == "usb:":
		return USBTarget{}, nil
	case strings.HasPrefix(lower, "usb:serial="):
		serial := id[len("usb:serial="):]
		if serial == "" {
			return nil, fmt.Errorf("%w: empty serial number", ErrInvalidTarget)
		}
		return USBTarget{Serial: serial}, nil
	case strings.HasPrefix(lower, "usb:"):
		return parseVIDPID(id, lower[len("usb:"):])
	case strings.HasPrefix(lower, "serial:"):
		return serialTarget(id[len("serial:"):], baudRate)
	case strings.HasPrefix(id, "/") || comPort.MatchString(id):
		return serialTarget(id, baudRate)
	}

	return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, identifier)
}

func parseVIDPID(id, rest string) (Target, error) {
	parts := strings.Split(rest, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: %q, want usb:VID:PID", ErrInvalidTarget, id)
	}
	vid, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: vendor id %q: %v", ErrInvalidTarget, parts[0], err)
	}
	pid, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: product id %q: %v", ErrInvalidTarget, parts[1], err)
	}
	return USBTarget{VID: uint16(vid), PID: uint16(pid)}, nil
}

func serialTarget(path string, baudRate int) (Target, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty serial path", ErrInvalidTarget)
	}
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return SerialTarget{Path: path, BaudRate: baudRate}, nil
}

// New creates an unopened adapter for the target.
func New(t Target) (Adapter, error) {
	switch target := t.(type) {
	case USBTarget:
		return NewUSBAdapter(target), nil
	case SerialTarget:
		return NewSerialAdapter(target), nil
	case nil:
		return nil, fmt.Errorf("%w: nil target", ErrInvalidTarget)
	default:
		return nil, fmt.Errorf("%w: unknown target type %T", ErrInvalidTarget, t)
	}
}
