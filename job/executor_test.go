package job

import (
	"bytes"
	"context"
	"errors"
	"image"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixxel-company-limited/escpos-dispatcher/adapter"
	"github.com/nixxel-company-limited/escpos-dispatcher/adapter/adaptertest"
	"github.com/nixxel-company-limited/escpos-dispatcher/escpos"
	"github.com/nixxel-company-limited/escpos-dispatcher/receipt"
)

var (
	usbTarget  = adapter.USBTarget{VID: 0x04b8, PID: 0x0202}
	qrStore    = []byte{0x31, 0x50, 0x30}
	barcodeCmd = []byte{0x1D, 'k', 67}
)

func factoryFor(dev adapter.Adapter) Factory {
	return func(adapter.Target) (adapter.Adapter, error) {
		return dev, nil
	}
}

type imageFunc func(path string) (image.Image, error)

func (f imageFunc) Load(path string) (image.Image, error) {
	return f(path)
}

func testReceipt(logo string) *receipt.Receipt {
	return &receipt.Receipt{
		Logo:   logo,
		Header: "TEST SHOP",
		Items: []receipt.Item{
			{Name: "Coffee", Price: "3.00"},
			{Name: "Muffin", Price: "2.50"},
		},
		Barcode: &receipt.BarcodeSpec{Payload: "590123412345", Symbology: "EAN13"},
		QR:      &receipt.QRSpec{Payload: "https://example.com/r/1"},
		Footer:  "Goodbye",
	}
}

func TestExecuteSimple(t *testing.T) {
	rec := adaptertest.New(usbTarget, nil)
	e := NewExecutor(factoryFor(rec), Config{}, zerolog.Nop())

	res := e.Execute(context.Background(), New(usbTarget, ModeSimple))

	require.True(t, res.Success, res.Error)
	assert.Empty(t, res.Error)
	assert.Equal(t, "Test page printed", res.Message)

	out := rec.Bytes()
	assert.True(t, bytes.HasPrefix(out, escpos.Init()))
	assert.Contains(t, string(out), TestBanner)
	assert.Equal(t, 1, bytes.Count(out, escpos.CutCommand))
	assert.True(t, bytes.HasSuffix(out, escpos.CutCommand))

	assert.Len(t, rec.Writes(), 1, "one flush for the whole test page")
	assert.Equal(t, []int{len(out)}, rec.Drains())
	assert.False(t, rec.IsOpen())
	assert.Equal(t, 1, rec.Closes())
	assert.Equal(t, len(out), res.Bytes)
}

func TestExecuteFullMissingLogo(t *testing.T) {
	rec := adaptertest.New(usbTarget, nil)
	e := NewExecutor(factoryFor(rec), Config{Columns: 20}, zerolog.Nop())

	j := New(usbTarget, ModeFull)
	j.Receipt = testReceipt(filepath.Join(t.TempDir(), "missing.png"))
	res := e.Execute(context.Background(), j)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Receipt printed", res.Message)

	out := rec.Bytes()
	header := bytes.Index(out, []byte("TEST SHOP"))
	coffee := bytes.Index(out, []byte("Coffee          3.00"))
	muffin := bytes.Index(out, []byte("Muffin          2.50"))
	barcode := bytes.Index(out, barcodeCmd)
	qr := bytes.Index(out, qrStore)
	footer := bytes.Index(out, []byte("Goodbye"))
	cut := bytes.LastIndex(out, escpos.CutCommand)

	assert.True(t, header > 0, "fallback header printed")
	assert.False(t, bytes.Contains(out, []byte{0x1D, 0x76, 0x30}), "no raster data")
	assert.True(t, header < coffee && coffee < muffin && muffin < barcode && barcode < qr && qr < footer && footer < cut,
		"segments out of order: %d %d %d %d %d %d %d", header, coffee, muffin, barcode, qr, footer, cut)
	assert.Equal(t, 1, bytes.Count(out, escpos.CutCommand))

	// Drained after the logo step and at the end
	drains := rec.Drains()
	require.Len(t, drains, 2)
	assert.Less(t, drains[0], coffee)
	assert.Equal(t, len(out), drains[1])
	assert.False(t, rec.IsOpen())
}

func TestExecuteFullWithLogo(t *testing.T) {
	rec := adaptertest.New(usbTarget, nil)
	images := imageFunc(func(path string) (image.Image, error) {
		return image.NewGray(image.Rect(0, 0, 760, 100)), nil
	})
	e := NewExecutor(factoryFor(rec), Config{LogoWidth: 380, Images: images}, zerolog.Nop())

	j := New(usbTarget, ModeFull)
	j.Receipt = testReceipt("logo.png")
	res := e.Execute(context.Background(), j)
	require.True(t, res.Success, res.Error)

	out := rec.Bytes()
	raster := bytes.Index(out, []byte{0x1D, 0x76, 0x30, 0x00})
	require.True(t, raster > 0)
	// 380 dots = 48 bytes per row, 50 rows
	assert.Equal(t, []byte{48, 0, 50, 0}, out[raster+4:raster+8])
	assert.False(t, bytes.Contains(out, []byte("TEST SHOP")), "header replaced by logo")

	// The logo is flushed and drained on its own before the items are sent
	writes := rec.Writes()
	require.GreaterOrEqual(t, len(writes), 2)
	assert.True(t, bytes.Contains(writes[0], []byte{0x1D, 0x76, 0x30, 0x00}))
	assert.False(t, bytes.Contains(writes[0], []byte("Coffee")))
	assert.Equal(t, len(writes[0]), rec.Drains()[0])
}

func TestExecuteUsesReceiptSource(t *testing.T) {
	rec := adaptertest.New(usbTarget, nil)
	r := &receipt.Receipt{Header: "FROM TEMPLATE"}
	e := NewExecutor(factoryFor(rec), Config{Receipts: receipt.Static{Receipt: r}}, zerolog.Nop())

	res := e.Execute(context.Background(), New(usbTarget, ModeFull))
	require.True(t, res.Success, res.Error)
	assert.Contains(t, string(rec.Bytes()), "FROM TEMPLATE")
}

func TestExecuteOpenFailure(t *testing.T) {
	rec := adaptertest.New(usbTarget, nil)
	rec.OpenErr = &adapter.OpenError{Target: usbTarget, Kind: adapter.ErrBusy}
	e := NewExecutor(factoryFor(rec), Config{}, zerolog.Nop())

	res := e.Execute(context.Background(), New(usbTarget, ModeSimple))

	assert.False(t, res.Success)
	assert.True(t, res.OpenFailed())
	assert.Equal(t, StateOpening, res.FailedIn)
	assert.ErrorIs(t, res.Err, adapter.ErrBusy)
	assert.Contains(t, res.Error, "device busy")
	assert.Empty(t, res.Message)
	assert.Empty(t, rec.Bytes())
	assert.Equal(t, 0, rec.Closes())
}

func TestExecuteFactoryFailure(t *testing.T) {
	e := NewExecutor(func(adapter.Target) (adapter.Adapter, error) {
		return nil, adapter.ErrInvalidTarget
	}, Config{}, zerolog.Nop())

	res := e.Execute(context.Background(), New(usbTarget, ModeSimple))
	assert.True(t, res.OpenFailed())
	assert.ErrorIs(t, res.Err, adapter.ErrInvalidTarget)

	res = e.Execute(context.Background(), New(nil, ModeSimple))
	assert.True(t, res.OpenFailed())
}

func TestExecuteCanceledBeforeOpen(t *testing.T) {
	rec := adaptertest.New(usbTarget, nil)
	e := NewExecutor(factoryFor(rec), Config{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := e.Execute(ctx, New(usbTarget, ModeSimple))
	assert.True(t, res.OpenFailed())
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 0, rec.Opens())
}

func TestExecuteDisconnectMidJob(t *testing.T) {
	rec := adaptertest.New(usbTarget, nil)
	rec.FailWriteAfter = 10
	e := NewExecutor(factoryFor(rec), Config{}, zerolog.Nop())

	j := New(usbTarget, ModeFull)
	j.Receipt = testReceipt("")
	res := e.Execute(context.Background(), j)

	assert.False(t, res.Success)
	assert.Equal(t, StateRendering, res.FailedIn)
	assert.False(t, res.OpenFailed())
	assert.ErrorIs(t, res.Err, adapter.ErrDeviceNotOpen)
	assert.False(t, rec.IsOpen())
	assert.NotContains(t, string(rec.Bytes()), "Goodbye")
}

func TestExecuteCloseErrorIsSwallowed(t *testing.T) {
	rec := adaptertest.New(usbTarget, nil)
	rec.CloseErr = errors.New("libusb: release interface failed")
	e := NewExecutor(factoryFor(rec), Config{}, zerolog.Nop())

	res := e.Execute(context.Background(), New(usbTarget, ModeSimple))
	assert.True(t, res.Success, res.Error)
	assert.Equal(t, 1, rec.Closes())
}

func TestExecuteDrainFailure(t *testing.T) {
	rec := adaptertest.New(usbTarget, nil)
	rec.DrainErr = errors.New("drain failed: input/output error")
	e := NewExecutor(factoryFor(rec), Config{}, zerolog.Nop())

	res := e.Execute(context.Background(), New(usbTarget, ModeSimple))
	assert.False(t, res.Success)
	assert.Equal(t, StateRendering, res.FailedIn)
	assert.Equal(t, 1, rec.Closes())
}

// qrRejecting fails any write that carries a QR store command while staying open.
type qrRejecting struct {
	*adaptertest.Recorder
}

func (q qrRejecting) Write(data []byte) (int, error) {
	if bytes.Contains(data, qrStore) {
		return 0, errors.New("write failed: transfer stalled")
	}
	return q.Recorder.Write(data)
}

func TestExecuteQRWriteFailureFallsBack(t *testing.T) {
	rec := adaptertest.New(usbTarget, nil)
	e := NewExecutor(factoryFor(qrRejecting{rec}), Config{}, zerolog.Nop())

	j := New(usbTarget, ModeFull)
	j.Receipt = testReceipt("")
	res := e.Execute(context.Background(), j)

	require.True(t, res.Success, res.Error)
	out := rec.Bytes()
	assert.False(t, bytes.Contains(out, qrStore))
	fallback := bytes.Index(out, []byte("https://example.com/r/1"))
	footer := bytes.Index(out, []byte("Goodbye"))
	assert.True(t, fallback > 0 && fallback < footer)
}

func TestExecuteQREncodingFailureFallsBack(t *testing.T) {
	rec := adaptertest.New(usbTarget, nil)
	e := NewExecutor(factoryFor(rec), Config{}, zerolog.Nop())

	r := testReceipt("")
	r.QR.Size = 40
	j := New(usbTarget, ModeFull)
	j.Receipt = r
	res := e.Execute(context.Background(), j)

	require.True(t, res.Success, res.Error)
	out := rec.Bytes()
	assert.False(t, bytes.Contains(out, qrStore))
	assert.Contains(t, string(out), "https://example.com/r/1")
	assert.Contains(t, string(out), "Goodbye")
}

func TestExecuteBarcodeFailureFallsBack(t *testing.T) {
	rec := adaptertest.New(usbTarget, nil)
	e := NewExecutor(factoryFor(rec), Config{}, zerolog.Nop())

	r := testReceipt("")
	r.Barcode.Payload = "12345"
	j := New(usbTarget, ModeFull)
	j.Receipt = r
	res := e.Execute(context.Background(), j)

	require.True(t, res.Success, res.Error)
	out := rec.Bytes()
	assert.False(t, bytes.Contains(out, barcodeCmd))
	assert.Contains(t, string(out), "12345\n")
	assert.True(t, bytes.Contains(out, qrStore))
}

func TestExecuteRecoversPanic(t *testing.T) {
	rec := adaptertest.New(usbTarget, nil)
	images := imageFunc(func(string) (image.Image, error) {
		panic("decoder exploded")
	})
	e := NewExecutor(factoryFor(rec), Config{Images: images}, zerolog.Nop())

	j := New(usbTarget, ModeFull)
	j.Receipt = testReceipt("logo.png")
	res := e.Execute(context.Background(), j)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "decoder exploded")
	assert.False(t, rec.IsOpen())
	assert.Equal(t, 1, rec.Closes())
}

func TestExecuteRaw(t *testing.T) {
	rec := adaptertest.New(usbTarget, nil)
	e := NewExecutor(factoryFor(rec), Config{}, zerolog.Nop())

	data := []byte{0x1B, 0x40, 'h', 'i', 0x0A}
	res := e.Execute(context.Background(), NewRaw(usbTarget, data))

	require.True(t, res.Success, res.Error)
	assert.Equal(t, data, rec.Bytes())
	assert.Equal(t, "Raw data printed (5 bytes)", res.Message)

	res = e.Execute(context.Background(), NewRaw(usbTarget, nil))
	assert.False(t, res.Success)
}

func TestExecuteCodePage(t *testing.T) {
	rec := adaptertest.New(usbTarget, nil)
	cp, err := escpos.LookupCodePage("cp437")
	require.NoError(t, err)
	e := NewExecutor(factoryFor(rec), Config{CodePage: cp}, zerolog.Nop())

	j := New(usbTarget, ModeFull)
	j.Receipt = &receipt.Receipt{Footer: "Merci, à bientôt"}
	res := e.Execute(context.Background(), j)
	require.True(t, res.Success, res.Error)

	out := rec.Bytes()
	assert.True(t, bytes.HasPrefix(out, []byte{0x1B, 0x40, 0x1B, 't', 0}))
	assert.Contains(t, string(out), "Merci, \x85 bient\x93t")
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"simple": ModeSimple, "TEST": ModeSimple, "full": ModeFull, "receipt": ModeFull, "raw": ModeRaw} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("fancy")
	assert.Error(t, err)
}

func TestFileImageSource(t *testing.T) {
	_, err := FileImageSource{}.Load(filepath.Join(t.TempDir(), "nope.png"))
	assert.Error(t, err)
}
