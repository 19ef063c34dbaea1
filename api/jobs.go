package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nixxel-company-limited/escpos-dispatcher/adapter"
	"github.com/nixxel-company-limited/escpos-dispatcher/job"
	"github.com/nixxel-company-limited/escpos-dispatcher/queue"
	"github.com/nixxel-company-limited/escpos-dispatcher/receipt"
)

const maxRequestBytes = 1 << 20

// PrintRequest is the body of POST /jobs.
type PrintRequest struct {
	DeviceIdentifier string           `json:"deviceIdentifier"`
	BaudRate         int              `json:"baudRate"`
	Mode             string           `json:"mode"`
	Receipt          *receipt.Receipt `json:"receipt,omitempty"`
}

func (a *App) newJob(req PrintRequest) (job.Job, error) {
	mode, err := job.ParseMode(req.Mode)
	if err != nil {
		return job.Job{}, err
	}
	if mode == job.ModeRaw {
		return job.Job{}, errors.New("raw jobs are accepted on the raw TCP port only")
	}

	target := a.Default
	if req.DeviceIdentifier != "" {
		target, err = adapter.ParseTarget(req.DeviceIdentifier, req.BaudRate)
		if err != nil {
			return job.Job{}, err
		}
	} else if st, ok := target.(adapter.SerialTarget); ok && req.BaudRate > 0 {
		st.BaudRate = req.BaudRate
		target = st
	}
	if target == nil {
		return job.Job{}, fmt.Errorf("%w: no device given and no default configured", adapter.ErrInvalidTarget)
	}

	j := job.New(target, mode)
	if req.Receipt != nil {
		if mode != job.ModeFull {
			return job.Job{}, errors.New("receipt is only used by full jobs")
		}
		r := *req.Receipt
		// logos come from the server configuration, never from clients
		r.Logo = ""
		if err := r.Validate(); err != nil {
			return job.Job{}, err
		}
		j.Receipt = &r
	}
	return j, nil
}

// PrintJob queues a job and answers once it finished.
func (a *App) PrintJob(w http.ResponseWriter, r *http.Request) {
	var req PrintRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		a.fail(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	j, err := a.newJob(req)
	if err != nil {
		a.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	h, err := a.Queue.Submit(j)
	if err != nil {
		if errors.Is(err, queue.ErrClosed) {
			a.fail(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		a.fail(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.Logger.Debug().Str("job", j.ID).Str("mode", string(j.Mode)).Stringer("target", j.Target).Msg("job submitted")

	res, err := h.Wait(r.Context())
	if err != nil {
		// the job stays queued and still prints
		a.json(w, http.StatusGatewayTimeout, job.Result{JobID: h.ID, Error: "request ended before the job finished"})
		return
	}

	switch {
	case res.Success:
		a.json(w, http.StatusOK, res)
	case errors.Is(res.Err, queue.ErrClosed):
		a.json(w, http.StatusServiceUnavailable, res)
	default:
		a.json(w, http.StatusBadGateway, res)
	}
}
