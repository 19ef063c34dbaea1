package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nixxel-company-limited/escpos-dispatcher/adapter"
	"github.com/nixxel-company-limited/escpos-dispatcher/escpos"
	"github.com/nixxel-company-limited/escpos-dispatcher/receipt"
)

// TestBanner is the text a simple job prints.
const TestBanner = "Printer test OK"

// Factory creates an unopened adapter for a target.
type Factory func(adapter.Target) (adapter.Adapter, error)

// Config holds rendering settings shared by every job.
type Config struct {
	// LogoWidth caps the logo width in dots.
	LogoWidth int
	// Columns is the paper width in characters.
	Columns int
	// CodePage transcodes text; the zero value passes it through.
	CodePage escpos.CodePage
	// Images loads logos. Defaults to FileImageSource.
	Images ImageSource
	// Receipts supplies the receipt for full jobs that carry none. Defaults
	// to the sample receipt.
	Receipts receipt.Source
}

// Executor runs one job at a time against a freshly opened adapter:
// opening, rendering, completing, then succeeded or failed.
type Executor struct {
	factory Factory
	cfg     Config
	logger  zerolog.Logger
}

// NewExecutor creates an executor. A nil factory uses adapter.New.
func NewExecutor(factory Factory, cfg Config, logger zerolog.Logger) *Executor {
	if factory == nil {
		factory = adapter.New
	}
	if cfg.LogoWidth <= 0 {
		cfg.LogoWidth = escpos.DefaultMaxWidth
	}
	if cfg.Columns <= 0 {
		cfg.Columns = receipt.DefaultColumns
	}
	if cfg.Images == nil {
		cfg.Images = FileImageSource{}
	}
	if cfg.Receipts == nil {
		cfg.Receipts = receipt.Static{Receipt: receipt.Sample()}
	}

	return &Executor{
		factory: factory,
		cfg:     cfg,
		logger:  logger.With().Str("component", "executor").Logger(),
	}
}

// Execute runs j to a terminal state and returns its result. It never
// panics and always closes the adapter it opened. ctx is only consulted
// before opening; a job that reached the printer runs to completion.
func (e *Executor) Execute(ctx context.Context, j Job) Result {
	start := time.Now()
	log := e.logger.With().Str("job", j.ID).Str("mode", string(j.Mode)).Stringer("target", j.Target).Logger()

	res := e.execute(ctx, j, log)
	res.Duration = time.Since(start)

	if res.Success {
		log.Info().Str("state", StateSucceeded.String()).Int("bytes", res.Bytes).Dur("took", res.Duration).Msg(res.Message)
	} else {
		log.Error().Str("state", StateFailed.String()).Str("failed_in", res.FailedIn.String()).Err(res.Err).Dur("took", res.Duration).Msg("print job failed")
	}
	return res
}

func (e *Executor) execute(ctx context.Context, j Job, log zerolog.Logger) Result {
	log.Debug().Str("state", StateOpening.String()).Msg("job state")

	if err := ctx.Err(); err != nil {
		return failed(j, StateOpening, fmt.Errorf("job not started: %w", err), 0)
	}

	dev, err := e.open(j.Target, log)
	if err != nil {
		return failed(j, StateOpening, err, 0)
	}

	s := &session{dev: dev}

	log.Debug().Str("state", StateRendering.String()).Msg("job state")
	renderErr := e.render(s, j, log)

	log.Debug().Str("state", StateCompleting.String()).Msg("job state")
	if err := dev.Close(); err != nil {
		log.Warn().Err(err).Msg("close failed")
	}

	if renderErr != nil {
		return failed(j, StateRendering, renderErr, s.written)
	}
	return succeeded(j, e.message(j, s.written), s.written)
}

func (e *Executor) open(t adapter.Target, log zerolog.Logger) (adapter.Adapter, error) {
	if t == nil {
		return nil, fmt.Errorf("open: %w", adapter.ErrInvalidTarget)
	}
	dev, err := e.factory(t)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", t, err)
	}
	dev.On(adapter.EventDisconnect, func(ev adapter.Event) {
		log.Warn().Err(ev.Error).Stringer("target", ev.Target).Msg("printer disconnected")
	})
	if err := dev.Open(); err != nil {
		return nil, err
	}
	return dev, nil
}

func (e *Executor) message(j Job, n int) string {
	switch j.Mode {
	case ModeSimple:
		return "Test page printed"
	case ModeRaw:
		return fmt.Sprintf("Raw data printed (%d bytes)", n)
	default:
		return "Receipt printed"
	}
}

func (e *Executor) render(s *session, j Job, log zerolog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panic: %v", r)
		}
	}()

	switch j.Mode {
	case ModeSimple:
		return e.renderSimple(s)
	case ModeFull:
		r := j.Receipt
		if r == nil {
			r = e.cfg.Receipts.Current()
		}
		if r == nil {
			r = receipt.Sample()
		}
		return e.renderFull(s, r, log)
	case ModeRaw:
		if len(j.Raw) == 0 {
			return errors.New("raw job without data")
		}
		s.write(j.Raw)
		return s.flushAndDrain()
	}
	return fmt.Errorf("unknown print mode %q", j.Mode)
}

func (e *Executor) renderSimple(s *session) error {
	s.write(escpos.Init())
	s.write(e.cfg.CodePage.Select())
	e.writeText(s, receipt.TextSegment{Text: TestBanner, Align: escpos.AlignCenter, Bold: true})
	s.write(escpos.Cut())
	return s.flushAndDrain()
}

func (e *Executor) renderFull(s *session, r *receipt.Receipt, log zerolog.Logger) error {
	s.write(escpos.Init())
	s.write(e.cfg.CodePage.Select())

	for _, seg := range r.Segments(e.cfg.Columns) {
		var err error
		switch seg := seg.(type) {
		case receipt.TextSegment:
			e.writeText(s, seg)
		case receipt.ImageSegment:
			err = e.renderImage(s, seg, log)
		case receipt.BarcodeSegment:
			e.renderBarcode(s, seg, log)
		case receipt.QRSegment:
			err = e.renderQR(s, seg, log)
		case receipt.CutSegment:
			s.write(escpos.Cut())
		}
		if err != nil {
			return err
		}
	}

	return s.flushAndDrain()
}

func (e *Executor) writeText(s *session, seg receipt.TextSegment) {
	if seg.Align != escpos.AlignLeft {
		s.write(escpos.Align(seg.Align))
	}
	if seg.Bold {
		s.write(escpos.Bold(true))
	}
	s.write(e.cfg.CodePage.Text(seg.Text))
	if seg.Bold {
		s.write(escpos.Bold(false))
	}
	if seg.Align != escpos.AlignLeft {
		s.write(escpos.Align(escpos.AlignLeft))
	}
}

// renderImage prints the logo, or its fallback text when the image cannot be
// used, then flushes and drains: raster data is the bulk of a receipt and
// must have left the printer buffer before anything else is sent.
func (e *Executor) renderImage(s *session, seg receipt.ImageSegment, log zerolog.Logger) error {
	data, err := e.logo(seg.Path)
	if err != nil {
		log.Warn().Err(err).Str("logo", seg.Path).Msg("logo unavailable, printing text header")
		if seg.Fallback.Text != "" {
			e.writeText(s, seg.Fallback)
		}
	} else {
		s.write(escpos.Align(escpos.AlignCenter))
		s.write(data)
		s.write(escpos.Align(escpos.AlignLeft))
	}

	return s.flushAndDrain()
}

func (e *Executor) logo(path string) ([]byte, error) {
	img, err := e.cfg.Images.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load logo: %w", err)
	}
	bm, err := escpos.NewBitmap(img, e.cfg.LogoWidth)
	if err != nil {
		return nil, err
	}
	return escpos.RasterImage(bm)
}

// renderBarcode prints the payload as text when it cannot be encoded.
func (e *Executor) renderBarcode(s *session, seg receipt.BarcodeSegment, log zerolog.Logger) {
	data, err := escpos.Barcode(seg.Payload, escpos.BarcodeOptions{
		Symbology: seg.Symbology,
		Width:     seg.Width,
		Height:    seg.Height,
		HRI:       escpos.HRIBelow,
	})
	if err != nil {
		log.Warn().Err(err).Msg("barcode not encodable, printing payload as text")
		e.writeText(s, receipt.TextSegment{Text: seg.Payload, Align: escpos.AlignCenter})
		return
	}

	s.write(escpos.Align(escpos.AlignCenter))
	s.write(data)
	s.write([]byte{escpos.LF})
	s.write(escpos.Align(escpos.AlignLeft))
}

// renderQR sends the QR code on its own flush so a rejected write can be
// replaced by the fallback text. Errors that closed the device end the job.
func (e *Executor) renderQR(s *session, seg receipt.QRSegment, log zerolog.Logger) error {
	data, err := escpos.QRCode(seg.Payload, escpos.QROptions{Size: seg.Size, Level: seg.Level})
	if err != nil {
		log.Warn().Err(err).Msg("QR code not encodable, printing fallback")
		e.writeText(s, seg.Fallback)
		return nil
	}

	if err := s.flush(); err != nil {
		return err
	}

	s.write(escpos.Align(escpos.AlignCenter))
	s.write(data)
	s.write([]byte{escpos.LF})
	s.write(escpos.Align(escpos.AlignLeft))

	if err := s.flush(); err != nil {
		if !s.dev.IsOpen() || errors.Is(err, adapter.ErrDeviceNotOpen) {
			return err
		}
		log.Warn().Err(err).Msg("QR code write failed, printing fallback")
		e.writeText(s, seg.Fallback)
	}
	return nil
}
