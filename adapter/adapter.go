package adapter

import (
	"errors"
	"fmt"
	"sync"
)

// Adapter defines the interface for printer communication adapters
type Adapter interface {
	// Open opens the connection to the printer
	Open() error

	// Write sends data to the printer
	Write(data []byte) (int, error)

	// Drain blocks until every byte written so far has been accepted by the printer
	Drain() error

	// Close closes the connection to the printer. Closing an adapter that is
	// already closed, or was never opened, returns nil.
	Close() error

	// IsOpen returns whether the connection is open
	IsOpen() bool

	// On adds an event listener
	On(eventType EventType, handler func(Event))
}

var (
	ErrNotFound         = errors.New("device not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrBusy             = errors.New("device busy")
	ErrUnsupported      = errors.New("transport not supported on this host")
	ErrDeviceNotOpen    = errors.New("device not open")
	ErrAlreadyOpen      = errors.New("device already open")
)

// OpenError reports why a transport could not be opened. Kind is one of
// ErrNotFound, ErrPermissionDenied, ErrBusy or ErrUnsupported.
type OpenError struct {
	Target Target
	Kind   error
	Err    error
}

func (e *OpenError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("open %s: %v", e.Target, e.Kind)
	}
	return fmt.Sprintf("open %s: %v: %v", e.Target, e.Kind, e.Err)
}

// Is matches the sentinel kind so errors.Is(err, ErrBusy) works on wrapped errors.
func (e *OpenError) Is(target error) bool {
	return target == e.Kind
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

func openError(t Target, kind, err error) *OpenError {
	return &OpenError{Target: t, Kind: kind, Err: err}
}

// EventType represents device events
type EventType int

const (
	EventConnect EventType = iota
	EventDisconnect
	EventData
	EventClose
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventData:
		return "data"
	case EventClose:
		return "close"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event represents a device event
type Event struct {
	Type   EventType
	Target Target
	Data   []byte
	Error  error
}

// emitter holds event listeners shared by the adapter implementations.
type emitter struct {
	listeners map[EventType][]func(Event)
	mu        sync.RWMutex
}

// On adds an event listener
func (e *emitter) On(eventType EventType, handler func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listeners == nil {
		e.listeners = make(map[EventType][]func(Event))
	}
	e.listeners[eventType] = append(e.listeners[eventType], handler)
}

// emit triggers an event. Handlers run on their own goroutines so a slow
// listener never stalls a write.
func (e *emitter) emit(event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, handler := range e.listeners[event.Type] {
		go handler(event)
	}
}
