package adapter

import (
	"errors"
	"testing"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireUSB(t *testing.T) {
	t.Helper()
	if err := USBAvailable(); err != nil {
		t.Skipf("libusb not available: %v", err)
	}
}

func TestFindPrinters(t *testing.T) {
	requireUSB(t)

	ctx := gousb.NewContext()
	defer ctx.Close()

	printers := FindPrinters(ctx)

	// This test will pass even if no printers are found
	assert.NotNil(t, printers)

	if len(printers) == 0 {
		t.Skip("No USB printers found")
	}

	t.Logf("Found %d printer(s)", len(printers))
	for _, printer := range printers {
		assert.True(t, IsPrinter(printer))
		printer.Close()
	}
}

func TestIsPrinter(t *testing.T) {
	t.Run("NilDevice", func(t *testing.T) {
		assert.False(t, IsPrinter(nil))
	})
}

func TestUSBKind(t *testing.T) {
	assert.Equal(t, ErrPermissionDenied, usbKind(gousb.ErrorAccess))
	assert.Equal(t, ErrBusy, usbKind(gousb.ErrorBusy))
	assert.Equal(t, ErrNotFound, usbKind(gousb.ErrorNotFound))
	assert.Equal(t, ErrNotFound, usbKind(errors.New("cannot find printer")))
}

func TestUSBAdapterClosedState(t *testing.T) {
	a := NewUSBAdapter(USBTarget{VID: 0xffff, PID: 0xffff})

	assert.False(t, a.IsOpen())

	_, err := a.Write([]byte{0x1B, 0x40})
	assert.ErrorIs(t, err, ErrDeviceNotOpen)
	assert.ErrorIs(t, a.Drain(), ErrDeviceNotOpen)

	// Never opened: close is a no-op, twice
	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}

func TestUSBAdapterOpenMissingDevice(t *testing.T) {
	requireUSB(t)

	a := NewUSBAdapter(USBTarget{VID: 0xffff, PID: 0xffff})
	err := a.Open()
	require.Error(t, err)

	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, a.IsOpen())
	assert.NoError(t, a.Close())
}

func TestUSBAdapterOpenClose(t *testing.T) {
	requireUSB(t)

	a := NewUSBAdapter(USBTarget{})
	if err := a.Open(); err != nil {
		t.Skipf("No USB printer found, skipping test: %v", err)
	}
	defer a.Close()

	assert.True(t, a.IsOpen())

	// Test double open
	assert.ErrorIs(t, a.Open(), ErrAlreadyOpen)

	// Test write with valid data
	testData := []byte{0x1B, 0x40} // ESC @ (Initialize printer)
	n, err := a.Write(testData)
	assert.NoError(t, err)
	assert.Equal(t, len(testData), n)
	assert.NoError(t, a.Drain())

	// Test Close
	require.NoError(t, a.Close())
	assert.False(t, a.IsOpen())

	// Test double close (should not error)
	assert.NoError(t, a.Close())
}

func TestGetDeviceByVIDPID(t *testing.T) {
	requireUSB(t)

	ctx := gousb.NewContext()
	defer ctx.Close()

	// Test with invalid VID/PID
	_, err := GetDeviceByVIDPID(ctx, 0xFFFF, 0xFFFF)
	assert.Error(t, err)
}

func TestGetDeviceBySerial(t *testing.T) {
	requireUSB(t)

	ctx := gousb.NewContext()
	defer ctx.Close()

	_, err := GetDeviceBySerial(ctx, "INVALID_SERIAL_NUMBER")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
