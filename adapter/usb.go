package adapter

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/gousb"
	"github.com/rs/zerolog/log"
)

// Interface class codes
// Reference: http://www.usb.org/developers/defined_class
const (
	IfaceClassAudio   = 0x01
	IfaceClassHID     = 0x03
	IfaceClassPrinter = 0x07
	IfaceClassHub     = 0x09
)

var (
	usbOnce sync.Once
	usbErr  error
)

// USBAvailable reports whether libusb could be initialised on this host.
// A nil result means USB targets can be opened; otherwise USB opens fail with
// ErrUnsupported and serial targets keep working.
func USBAvailable() error {
	usbOnce.Do(func() {
		ctx, err := newContext()
		if err != nil {
			usbErr = err
			return
		}
		ctx.Close()
	})
	return usbErr
}

// newContext wraps gousb.NewContext, which panics when libusb cannot start.
func newContext() (ctx *gousb.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctx = nil
			err = fmt.Errorf("libusb init: %v", r)
		}
	}()
	return gousb.NewContext(), nil
}

// USBAdapter manages USB printer communication
type USBAdapter struct {
	emitter

	target      USBTarget
	ctx         *gousb.Context
	device      *gousb.Device
	config      *gousb.Config
	iface       *gousb.Interface
	outEndpoint *gousb.OutEndpoint
	isOpen      bool
	mu          sync.Mutex
}

// NewUSBAdapter creates a new USB adapter instance. No device is touched
// until Open.
func NewUSBAdapter(target USBTarget) *USBAdapter {
	return &USBAdapter{target: target}
}

// IsPrinter checks if a device is a printer
func IsPrinter(dev *gousb.Device) bool {
	if dev == nil {
		return false
	}

	cfg, err := dev.ActiveConfigNum()
	if err != nil {
		return false
	}

	cfgDesc, err := dev.Config(cfg)
	if err != nil {
		return false
	}
	defer cfgDesc.Close()

	return printerInterface(cfgDesc.Desc) >= 0
}

func printerInterface(desc gousb.ConfigDesc) int {
	for _, iface := range desc.Interfaces {
		for _, alt := range iface.AltSettings {
			if alt.Class == IfaceClassPrinter {
				return iface.Number
			}
		}
	}
	return -1
}

// FindPrinters returns all USB printer devices
func FindPrinters(ctx *gousb.Context) []*gousb.Device {
	printers := []*gousb.Device{}

	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return true // Check all devices
	})
	if err != nil {
		log.Debug().Err(err).Msg("usb: some devices could not be opened")
	}

	for _, dev := range devices {
		if IsPrinter(dev) {
			log.Debug().Str("device", dev.Desc.String()).Msg("usb: found printer")
			printers = append(printers, dev)
		} else {
			dev.Close()
		}
	}

	return printers
}

// GetDeviceByVIDPID opens a device by VID and PID
func GetDeviceByVIDPID(ctx *gousb.Context, vid, pid uint16) (*gousb.Device, error) {
	device, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, ErrNotFound
	}
	return device, nil
}

// GetDeviceBySerial opens a device by serial number
func GetDeviceBySerial(ctx *gousb.Context, serial string) (*gousb.Device, error) {
	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return true
	})
	if err != nil && len(devices) == 0 {
		return nil, err
	}

	var found *gousb.Device
	for _, dev := range devices {
		if found == nil {
			if s, err := dev.SerialNumber(); err == nil && s == serial {
				found = dev
				continue
			}
		}
		dev.Close()
	}

	if found == nil {
		return nil, fmt.Errorf("serial number %q: %w", serial, ErrNotFound)
	}
	return found, nil
}

func (a *USBAdapter) findDevice() (*gousb.Device, error) {
	switch {
	case a.target.Serial != "":
		return GetDeviceBySerial(a.ctx, a.target.Serial)
	case a.target.VID != 0 || a.target.PID != 0:
		return GetDeviceByVIDPID(a.ctx, a.target.VID, a.target.PID)
	}

	printers := FindPrinters(a.ctx)
	if len(printers) == 0 {
		return nil, errors.New("cannot find printer")
	}
	for _, p := range printers[1:] {
		p.Close()
	}
	return printers[0], nil
}

// usbKind maps libusb failures onto the open error taxonomy.
func usbKind(err error) error {
	switch {
	case errors.Is(err, gousb.ErrorAccess):
		return ErrPermissionDenied
	case errors.Is(err, gousb.ErrorBusy):
		return ErrBusy
	default:
		return ErrNotFound
	}
}

func isUSBDisconnect(err error) bool {
	return errors.Is(err, gousb.ErrorNoDevice) || errors.Is(err, gousb.TransferNoDevice)
}

// Open opens the USB device and claims the printer interface
func (a *USBAdapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isOpen {
		return ErrAlreadyOpen
	}

	ctx, err := newContext()
	if err != nil {
		return openError(a.target, ErrUnsupported, err)
	}
	a.ctx = ctx

	device, err := a.findDevice()
	if err != nil {
		a.release()
		return openError(a.target, usbKind(err), err)
	}
	a.device = device

	// Set auto-detach kernel driver on Linux
	if runtime.GOOS == "linux" {
		a.device.SetAutoDetach(true)
	}

	if err := a.claim(); err != nil {
		a.release()
		return openError(a.target, usbKind(err), err)
	}

	a.isOpen = true
	a.emit(Event{Type: EventConnect, Target: a.target})

	return nil
}

func (a *USBAdapter) claim() error {
	cfgNum, err := a.device.ActiveConfigNum()
	if err != nil {
		return fmt.Errorf("failed to get active config: %w", err)
	}

	cfg, err := a.device.Config(cfgNum)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}
	a.config = cfg

	ifaceNum := printerInterface(cfg.Desc)
	if ifaceNum < 0 {
		return errors.New("no printer interface found")
	}

	iface, err := cfg.Interface(ifaceNum, 0)
	if err != nil {
		return fmt.Errorf("failed to claim interface: %w", err)
	}
	a.iface = iface

	for _, epDesc := range iface.Setting.Endpoints {
		if epDesc.Direction != gousb.EndpointDirectionOut {
			continue
		}
		ep, err := iface.OutEndpoint(epDesc.Number)
		if err == nil {
			a.outEndpoint = ep
			return nil
		}
	}

	return errors.New("cannot find output endpoint from printer")
}

// release frees every libusb handle held by the adapter. Callers hold a.mu.
func (a *USBAdapter) release() error {
	var errs []error

	a.outEndpoint = nil
	if a.iface != nil {
		a.iface.Close()
		a.iface = nil
	}
	if a.config != nil {
		if err := a.config.Close(); err != nil {
			errs = append(errs, err)
		}
		a.config = nil
	}
	if a.device != nil {
		if err := a.device.Close(); err != nil {
			errs = append(errs, err)
		}
		a.device = nil
	}
	if a.ctx != nil {
		if err := a.ctx.Close(); err != nil {
			errs = append(errs, err)
		}
		a.ctx = nil
	}

	return errors.Join(errs...)
}

// Write sends data to the printer
func (a *USBAdapter) Write(data []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen || a.outEndpoint == nil {
		return 0, ErrDeviceNotOpen
	}

	a.emit(Event{Type: EventData, Target: a.target, Data: data})

	n, err := a.outEndpoint.Write(data)
	if err != nil {
		if isUSBDisconnect(err) {
			a.disconnect(err)
		}
		return n, fmt.Errorf("write failed: %w", err)
	}

	return n, nil
}

func (a *USBAdapter) disconnect(cause error) {
	a.release()
	a.isOpen = false
	a.emit(Event{Type: EventDisconnect, Target: a.target, Error: cause})
}

// Drain returns once previous writes were accepted. Bulk OUT transfers only
// complete after the device acknowledged them, so there is nothing to wait for.
func (a *USBAdapter) Drain() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return ErrDeviceNotOpen
	}
	return nil
}

// Close closes the USB device
func (a *USBAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		a.release()
		return nil
	}

	err := a.release()
	a.isOpen = false
	a.emit(Event{Type: EventClose, Target: a.target})

	if err != nil {
		return fmt.Errorf("close errors: %w", err)
	}
	return nil
}

// IsOpen returns whether the device is open
func (a *USBAdapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isOpen
}

// Target returns the target the adapter was created for
func (a *USBAdapter) Target() USBTarget {
	return a.target
}
