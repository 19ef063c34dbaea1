//go:build !linux

package adapter

import "fmt"

func openPort(path string, baudRate int) (port, error) {
	return nil, fmt.Errorf("%w: serial port %s", ErrUnsupported, path)
}
