// Package job runs print jobs against a printer adapter.
package job

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nixxel-company-limited/escpos-dispatcher/adapter"
	"github.com/nixxel-company-limited/escpos-dispatcher/receipt"
)

// Mode selects what a job prints.
type Mode string

const (
	// ModeSimple prints a short test banner and cuts.
	ModeSimple Mode = "simple"
	// ModeFull prints a receipt: logo, items, barcode, QR code, footer, cut.
	ModeFull Mode = "full"
	// ModeRaw sends caller-supplied ESC/POS bytes verbatim.
	ModeRaw Mode = "raw"
)

// ParseMode accepts "simple", "test", "full" and "receipt".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple", "test":
		return ModeSimple, nil
	case "full", "receipt":
		return ModeFull, nil
	case "raw":
		return ModeRaw, nil
	}
	return "", fmt.Errorf("unknown print mode %q", s)
}

// Job is a print request. It is passed by value and not modified after
// submission.
type Job struct {
	ID          string
	Target      adapter.Target
	Mode        Mode
	Receipt     *receipt.Receipt
	Raw         []byte
	SubmittedAt time.Time
}

// New creates a job with a fresh id.
func New(target adapter.Target, mode Mode) Job {
	return Job{
		ID:          uuid.NewString(),
		Target:      target,
		Mode:        mode,
		SubmittedAt: time.Now(),
	}
}

// NewRaw creates a raw job carrying data.
func NewRaw(target adapter.Target, data []byte) Job {
	j := New(target, ModeRaw)
	j.Raw = data
	return j
}

// State is a step of job execution.
type State int

const (
	StateQueued State = iota
	StateOpening
	StateRendering
	StateCompleting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateOpening:
		return "opening"
	case StateRendering:
		return "rendering"
	case StateCompleting:
		return "completing"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Result is the outcome of one job. Success and Error are exclusive.
type Result struct {
	JobID   string `json:"jobId,omitempty"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	// Err is the failure cause; FailedIn is the state it happened in.
	Err      error         `json:"-"`
	FailedIn State         `json:"-"`
	Bytes    int           `json:"-"`
	Duration time.Duration `json:"-"`
}

// OpenFailed reports whether the job failed before a session existed.
func (r Result) OpenFailed() bool {
	return !r.Success && r.FailedIn == StateOpening
}

// Failure builds the result of a job that failed in state without reaching
// the printer.
func Failure(j Job, state State, err error) Result {
	return failed(j, state, err, 0)
}

func succeeded(j Job, message string, n int) Result {
	return Result{JobID: j.ID, Success: true, Message: message, Bytes: n}
}

func failed(j Job, state State, err error, n int) Result {
	return Result{JobID: j.ID, Error: err.Error(), Err: err, FailedIn: state, Bytes: n}
}
