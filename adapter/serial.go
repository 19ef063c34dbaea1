package adapter

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"syscall"
)

// port is an open serial-like device. Drain waits for the output queue to be
// transmitted.
type port interface {
	io.Writer
	Drain() error
	Close() error
}

// SerialAdapter drives a printer behind a serial-like port: a USB CDC device,
// a plain UART or an RFCOMM-bound /dev/rfcomm*. Hardware flow control
// (RTS/CTS) is always enabled; printers with a small receive buffer drop data
// silently without it.
type SerialAdapter struct {
	emitter

	target   SerialTarget
	openPort func(path string, baudRate int) (port, error)
	port     port
	isOpen   bool
	mu       sync.Mutex
}

// NewSerialAdapter creates a new serial adapter instance. The port is not
// opened until Open.
func NewSerialAdapter(target SerialTarget) *SerialAdapter {
	if target.BaudRate == 0 {
		target.BaudRate = DefaultBaudRate
	}
	return &SerialAdapter{target: target, openPort: openPort}
}

func serialKind(err error) error {
	switch {
	case errors.Is(err, ErrUnsupported):
		return ErrUnsupported
	case errors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	case errors.Is(err, syscall.EBUSY):
		return ErrBusy
	default:
		return ErrNotFound
	}
}

func isSerialDisconnect(err error) bool {
	return errors.Is(err, syscall.EIO) ||
		errors.Is(err, syscall.ENXIO) ||
		errors.Is(err, syscall.ENODEV) ||
		errors.Is(err, os.ErrClosed)
}

// Open opens the port in raw mode with RTS/CTS flow control
func (a *SerialAdapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isOpen {
		return ErrAlreadyOpen
	}

	p, err := a.openPort(a.target.Path, a.target.BaudRate)
	if err != nil {
		return openError(a.target, serialKind(err), err)
	}

	a.port = p
	a.isOpen = true
	a.emit(Event{Type: EventConnect, Target: a.target})

	return nil
}

// Write sends data to the printer
func (a *SerialAdapter) Write(data []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen || a.port == nil {
		return 0, ErrDeviceNotOpen
	}

	a.emit(Event{Type: EventData, Target: a.target, Data: data})

	n, err := a.port.Write(data)
	if err != nil {
		if isSerialDisconnect(err) {
			a.disconnect(err)
		}
		return n, fmt.Errorf("write failed: %w", err)
	}

	return n, nil
}

// Drain blocks until the kernel has transmitted everything written so far.
// With RTS/CTS enabled this only completes once the printer raised CTS for
// the last byte.
func (a *SerialAdapter) Drain() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen || a.port == nil {
		return ErrDeviceNotOpen
	}

	if err := a.port.Drain(); err != nil {
		if isSerialDisconnect(err) {
			a.disconnect(err)
		}
		return fmt.Errorf("drain failed: %w", err)
	}
	return nil
}

func (a *SerialAdapter) disconnect(cause error) {
	if a.port != nil {
		a.port.Close()
		a.port = nil
	}
	a.isOpen = false
	a.emit(Event{Type: EventDisconnect, Target: a.target, Error: cause})
}

// Close closes the port
func (a *SerialAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return nil
	}

	var err error
	if a.port != nil {
		err = a.port.Close()
		a.port = nil
	}
	a.isOpen = false
	a.emit(Event{Type: EventClose, Target: a.target})

	if err != nil {
		return fmt.Errorf("close failed: %w", err)
	}
	return nil
}

// IsOpen returns whether the port is open
func (a *SerialAdapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isOpen
}

// Target returns the target the adapter was created for
func (a *SerialAdapter) Target() SerialTarget {
	return a.target
}
