package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	testCases := []struct {
		name string
		id   string
		baud int
		want Target
	}{
		{"first usb printer", "usb", 0, USBTarget{}},
		{"usb vid pid", "usb:04b8:0202", 0, USBTarget{VID: 0x04b8, PID: 0x0202}},
		{"usb upper case", "USB:04B8:0E15", 0, USBTarget{VID: 0x04b8, PID: 0x0e15}},
		{"usb serial", "usb:serial=ABC123", 0, USBTarget{Serial: "ABC123"}},
		{"rfcomm default baud", "/dev/rfcomm0", 0, SerialTarget{Path: "/dev/rfcomm0", BaudRate: DefaultBaudRate}},
		{"tty with baud", "/dev/ttyUSB0", 115200, SerialTarget{Path: "/dev/ttyUSB0", BaudRate: 115200}},
		{"explicit serial", "serial:/dev/ttyS1", 19200, SerialTarget{Path: "/dev/ttyS1", BaudRate: 19200}},
		{"windows com", "COM3", 0, SerialTarget{Path: "COM3", BaudRate: DefaultBaudRate}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTarget(tc.id, tc.baud)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseTargetInvalid(t *testing.T) {
	for _, id := range []string{"", "  ", "printer", "usb:zz:01", "usb:04b8", "usb:serial=", "serial:"} {
		t.Run(id, func(t *testing.T) {
			_, err := ParseTarget(id, 0)
			assert.ErrorIs(t, err, ErrInvalidTarget)
		})
	}

	_, err := ParseTarget("/dev/rfcomm0", -1)
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestTargetString(t *testing.T) {
	assert.Equal(t, "usb", USBTarget{}.String())
	assert.Equal(t, "usb:04b8:0202", USBTarget{VID: 0x04b8, PID: 0x0202}.String())
	assert.Equal(t, "usb:serial=X1", USBTarget{Serial: "X1"}.String())
	assert.Equal(t, "/dev/rfcomm0@9600", SerialTarget{Path: "/dev/rfcomm0", BaudRate: 9600}.String())

	// String forms of USB targets parse back to the same target
	for _, target := range []USBTarget{{}, {VID: 0x0519, PID: 0x0001}, {Serial: "S"}} {
		got, err := ParseTarget(target.String(), 0)
		require.NoError(t, err)
		assert.Equal(t, target, got)
	}
}

func TestNew(t *testing.T) {
	a, err := New(USBTarget{})
	require.NoError(t, err)
	assert.IsType(t, &USBAdapter{}, a)

	a, err = New(SerialTarget{Path: "/dev/rfcomm0", BaudRate: 9600})
	require.NoError(t, err)
	assert.IsType(t, &SerialAdapter{}, a)

	_, err = New(nil)
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestOpenErrorMatchesKind(t *testing.T) {
	err := openError(SerialTarget{Path: "/dev/rfcomm0", BaudRate: 9600}, ErrBusy, nil)
	assert.ErrorIs(t, err, ErrBusy)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "device busy")
}
