package adapter

import (
	"fmt"
	"path/filepath"
	"sort"
)

// DeviceInfo describes a device a job can be submitted against. ID is
// accepted by ParseTarget.
type DeviceInfo struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Kind         string `json:"kind"`
}

// SerialPatterns are the globs ListDevices scans for serial-like ports.
var SerialPatterns = []string{
	"/dev/ttyUSB*",
	"/dev/ttyACM*",
	"/dev/rfcomm*",
	"/dev/tty.*",
}

// ListDevices returns USB printers (when libusb is available) followed by
// serial-like ports. Reachability is not checked.
func ListDevices() ([]DeviceInfo, error) {
	var devices []DeviceInfo

	if USBAvailable() == nil {
		usb, err := listUSB()
		if err != nil {
			return nil, err
		}
		devices = append(devices, usb...)
	}

	return append(devices, listSerial(SerialPatterns)...), nil
}

func listUSB() ([]DeviceInfo, error) {
	ctx, err := newContext()
	if err != nil {
		return nil, err
	}
	defer ctx.Close()

	var devices []DeviceInfo
	for _, dev := range FindPrinters(ctx) {
		manufacturer, _ := dev.Manufacturer()
		product, _ := dev.Product()

		target := USBTarget{VID: uint16(dev.Desc.Vendor), PID: uint16(dev.Desc.Product)}
		name := product
		if name == "" {
			name = fmt.Sprintf("USB printer %04x:%04x", target.VID, target.PID)
		}

		devices = append(devices, DeviceInfo{
			ID:           target.String(),
			DisplayName:  name,
			Manufacturer: manufacturer,
			Kind:         KindUSB.String(),
		})
		dev.Close()
	}

	return devices, nil
}

func listSerial(patterns []string) []DeviceInfo {
	var paths []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)

	devices := make([]DeviceInfo, 0, len(paths))
	for _, p := range paths {
		devices = append(devices, DeviceInfo{
			ID:          p,
			DisplayName: filepath.Base(p),
			Kind:        KindSerial.String(),
		})
	}
	return devices
}
