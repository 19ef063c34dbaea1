// Package adaptertest provides an in-memory printer adapter for tests.
package adaptertest

import (
	"bytes"
	"sync"
	"time"

	"github.com/nixxel-company-limited/escpos-dispatcher/adapter"
)

// Tracker counts open sessions across every Recorder that shares it.
type Tracker struct {
	mu      sync.Mutex
	open    int
	maxOpen int
	opened  []string
}

// MaxOpen returns the highest number of simultaneously open recorders seen.
func (t *Tracker) MaxOpen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxOpen
}

// OpenNow returns the number of recorders currently open.
func (t *Tracker) OpenNow() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// Opened returns the targets in the order they were opened.
func (t *Tracker) Opened() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.opened...)
}

func (t *Tracker) add(target string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open++
	if t.open > t.maxOpen {
		t.maxOpen = t.open
	}
	t.opened = append(t.opened, target)
}

func (t *Tracker) remove() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open--
}

// Recorder implements adapter.Adapter and records everything written to it.
type Recorder struct {
	Target adapter.Target

	// OpenErr is returned by Open.
	OpenErr error
	// FailWriteAfter makes the write that would exceed this many bytes fail
	// with WriteErr. Zero disables.
	FailWriteAfter int
	// WriteErr is returned by failing writes; when it is nil failing writes
	// return adapter.ErrDeviceNotOpen.
	WriteErr error
	// DrainErr is returned by Drain.
	DrainErr error
	// CloseErr is returned by an effective Close.
	CloseErr error
	// WriteDelay is slept inside every write.
	WriteDelay time.Duration
	// Tracker, when set, is told about opens and closes.
	Tracker *Tracker

	mu     sync.Mutex
	buf    bytes.Buffer
	writes [][]byte
	drains []int
	opens  int
	closes int
	isOpen bool
}

// New returns a recorder for target.
func New(target adapter.Target, tracker *Tracker) *Recorder {
	return &Recorder{Target: target, Tracker: tracker}
}

func (r *Recorder) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isOpen {
		return adapter.ErrAlreadyOpen
	}
	if r.OpenErr != nil {
		return r.OpenErr
	}
	r.opens++
	r.isOpen = true
	if r.Tracker != nil {
		name := "unknown"
		if r.Target != nil {
			name = r.Target.String()
		}
		r.Tracker.add(name)
	}
	return nil
}

func (r *Recorder) Write(data []byte) (int, error) {
	if r.WriteDelay > 0 {
		time.Sleep(r.WriteDelay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isOpen {
		return 0, adapter.ErrDeviceNotOpen
	}
	if r.FailWriteAfter > 0 && r.buf.Len()+len(data) > r.FailWriteAfter {
		if r.WriteErr != nil {
			return 0, r.WriteErr
		}
		r.isOpen = false
		if r.Tracker != nil {
			r.Tracker.remove()
		}
		return 0, adapter.ErrDeviceNotOpen
	}

	r.writes = append(r.writes, append([]byte(nil), data...))
	return r.buf.Write(data)
}

func (r *Recorder) Drain() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isOpen {
		return adapter.ErrDeviceNotOpen
	}
	if r.DrainErr != nil {
		return r.DrainErr
	}
	r.drains = append(r.drains, r.buf.Len())
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isOpen {
		return nil
	}
	r.isOpen = false
	r.closes++
	if r.Tracker != nil {
		r.Tracker.remove()
	}
	return r.CloseErr
}

func (r *Recorder) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isOpen
}

func (r *Recorder) On(adapter.EventType, func(adapter.Event)) {}

// Bytes returns everything written so far.
func (r *Recorder) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.buf.Bytes()...)
}

// Writes returns the individual Write payloads.
func (r *Recorder) Writes() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.writes...)
}

// Drains returns, for every Drain call, how many bytes had been written.
func (r *Recorder) Drains() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.drains...)
}

// Opens returns how many times Open succeeded.
func (r *Recorder) Opens() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}

// Closes returns how many Close calls actually closed the recorder.
func (r *Recorder) Closes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}
