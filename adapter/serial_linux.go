//go:build linux

package adapter

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

type termPort struct {
	file *os.File
	fd   int
}

func openPort(path string, baudRate int) (port, error) {
	speed, ok := baudRates[baudRate]
	if !ok {
		return nil, fmt.Errorf("%w: baud rate %d", ErrUnsupported, baudRate)
	}

	// O_NONBLOCK keeps open from hanging on a missing carrier; the fd is
	// switched back to blocking once configured.
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}

	if err := setup(fd, speed); err != nil {
		unix.Close(fd)
		return nil, &os.PathError{Op: "configure", Path: path, Err: err}
	}

	return &termPort{file: os.NewFile(uintptr(fd), path), fd: fd}, nil
}

func setup(fd int, speed uint32) error {
	if err := unix.IoctlSetInt(fd, unix.TIOCEXCL, 0); err != nil {
		return err
	}

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	configureTermios(t, speed)
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return err
	}

	if err := unix.SetNonblock(fd, false); err != nil {
		return err
	}
	return unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH)
}

// configureTermios puts the line in raw 8N1 at the given speed with RTS/CTS
// flow control. Software flow control stays off: XON/XOFF bytes occur inside
// raster data.
func configureTermios(t *unix.Termios, speed uint32) {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | unix.CRTSCTS | speed
	t.Ispeed = speed
	t.Ospeed = speed
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
}

func (p *termPort) Write(data []byte) (int, error) {
	return p.file.Write(data)
}

// Drain is tcdrain(3).
func (p *termPort) Drain() error {
	for {
		err := unix.IoctlSetInt(p.fd, unix.TCSBRK, 1)
		if err != unix.EINTR {
			return err
		}
	}
}

func (p *termPort) Close() error {
	return p.file.Close()
}
