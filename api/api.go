// Package api is the HTTP intake: print requests, device enumeration and
// queue status.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/nixxel-company-limited/escpos-dispatcher/adapter"
	"github.com/nixxel-company-limited/escpos-dispatcher/job"
	"github.com/nixxel-company-limited/escpos-dispatcher/queue"
)

// Queue accepts jobs and reports its state. *queue.Scheduler implements it.
type Queue interface {
	Submit(job.Job) (*queue.Handle, error)
	Status() queue.Status
}

type App struct {
	Queue Queue
	// Default is used when a request names no device.
	Default adapter.Target
	// Devices enumerates printers. Defaults to adapter.ListDevices.
	Devices func() ([]adapter.DeviceInfo, error)
	Logger  zerolog.Logger
}

func NewRouter(app *App) http.Handler {
	if app.Devices == nil {
		app.Devices = adapter.ListDevices
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, Logger(app.Logger), middleware.Recoverer)

	r.Get("/healthz", app.Health)
	r.Get("/devices", app.ListDevices)
	r.Get("/queue", app.QueueStatus)
	r.Post("/jobs", app.PrintJob)

	return r
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) fail(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, job.Result{Error: msg})
}

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok", "usb": adapter.USBAvailable() == nil}
	if a.Queue != nil && a.Queue.Status().Closed {
		status["status"] = "shutting down"
		a.json(w, http.StatusServiceUnavailable, status)
		return
	}
	a.json(w, http.StatusOK, status)
}

func (a *App) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := a.Devices()
	if err != nil {
		a.Logger.Error().Err(err).Msg("device enumeration failed")
		a.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if devices == nil {
		devices = []adapter.DeviceInfo{}
	}
	a.json(w, http.StatusOK, devices)
}

func (a *App) QueueStatus(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Queue.Status())
}
