package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nixxel-company-limited/escpos-dispatcher/adapter"
	"github.com/nixxel-company-limited/escpos-dispatcher/api"
	"github.com/nixxel-company-limited/escpos-dispatcher/config"
	"github.com/nixxel-company-limited/escpos-dispatcher/escpos"
	"github.com/nixxel-company-limited/escpos-dispatcher/job"
	"github.com/nixxel-company-limited/escpos-dispatcher/logging"
	"github.com/nixxel-company-limited/escpos-dispatcher/queue"
	"github.com/nixxel-company-limited/escpos-dispatcher/receipt"
	"github.com/nixxel-company-limited/escpos-dispatcher/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New("info", "production")
		fallback.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := logging.New(cfg.LogLevel, cfg.AppEnv)
	logging.SetGlobal(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("dispatcher stopped")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := adapter.USBAvailable(); err != nil {
		logger.Warn().Err(err).Msg("USB support unavailable, only serial printers can be used")
	}

	target, err := cfg.Target()
	if err != nil {
		return err
	}
	codePage, err := escpos.LookupCodePage(cfg.CodePage)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	var receipts receipt.Source = receipt.Static{Receipt: receipt.Sample()}
	if cfg.ReceiptFile != "" {
		w, err := receipt.NewWatcher(cfg.ReceiptFile, logger)
		if err != nil {
			return err
		}
		receipts = w
		g.Go(func() error { return w.Run(ctx) })
	}

	if cfg.LogoPath != "" {
		receipts = withLogo{Source: receipts, path: cfg.LogoPath}
	}

	exec := job.NewExecutor(adapter.New, job.Config{
		LogoWidth: cfg.LogoWidth,
		Columns:   cfg.PaperColumns,
		CodePage:  codePage,
		Receipts:  receipts,
	}, logger)
	sched := queue.NewScheduler(exec, cfg.Queue(), logger)

	logger.Info().
		Stringer("device", target).
		Str("code_page", codePage.Name()).
		Dur("cooldown", cfg.Cooldown).
		Msg("dispatcher starting")

	if cfg.ServerAddress != "" {
		raw := server.New(sched, target, cfg.ServerAddress, logger)
		raw.MaxBytes = cfg.RawMaxBytes
		if err := raw.StartAsync(); err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			return raw.Stop()
		})
	}

	if cfg.HTTPAddress != "" {
		httpServer := &http.Server{
			Addr: cfg.HTTPAddress,
			Handler: api.NewRouter(&api.App{
				Queue:   sched,
				Default: target,
				Logger:  logger.With().Str("component", "api").Logger(),
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("address", cfg.HTTPAddress).Msg("http intake listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()

	logger.Info().Msg("draining print queue")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := sched.Shutdown(shutdownCtx); serr != nil {
		logger.Warn().Err(serr).Msg("print queue not drained")
	}

	return err
}

// withLogo puts the configured logo on receipts that name none.
type withLogo struct {
	receipt.Source
	path string
}

func (w withLogo) Current() *receipt.Receipt {
	r := w.Source.Current()
	if r == nil || r.Logo != "" {
		return r
	}
	cp := *r
	cp.Logo = w.path
	return &cp
}
