package adapter

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePort struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	drains   int
	writeErr error
	closed   bool
}

func (p *fakePort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.buf.Write(data)
}

func (p *fakePort) Drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drains++
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func newFakeSerial(p *fakePort, openErr error) *SerialAdapter {
	a := NewSerialAdapter(SerialTarget{Path: "/dev/rfcomm0"})
	a.openPort = func(path string, baudRate int) (port, error) {
		if openErr != nil {
			return nil, openErr
		}
		return p, nil
	}
	return a
}

func TestNewSerialAdapterDefaultsBaud(t *testing.T) {
	a := NewSerialAdapter(SerialTarget{Path: "/dev/ttyUSB0"})
	assert.Equal(t, DefaultBaudRate, a.Target().BaudRate)
}

func TestSerialAdapterOpenWriteDrainClose(t *testing.T) {
	p := &fakePort{}
	a := newFakeSerial(p, nil)

	require.NoError(t, a.Open())
	assert.True(t, a.IsOpen())
	assert.ErrorIs(t, a.Open(), ErrAlreadyOpen)

	n, err := a.Write([]byte{0x1B, 0x40})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, a.Drain())

	require.NoError(t, a.Close())
	assert.False(t, a.IsOpen())
	assert.True(t, p.closed)
	assert.Equal(t, []byte{0x1B, 0x40}, p.buf.Bytes())
	assert.Equal(t, 1, p.drains)

	assert.NoError(t, a.Close())
}

func TestSerialAdapterOpenErrors(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		kind error
	}{
		{"missing", &os.PathError{Op: "open", Path: "/dev/rfcomm0", Err: fs.ErrNotExist}, ErrNotFound},
		{"permission", &os.PathError{Op: "open", Path: "/dev/rfcomm0", Err: syscall.EACCES}, ErrPermissionDenied},
		{"busy", &os.PathError{Op: "configure", Path: "/dev/rfcomm0", Err: syscall.EBUSY}, ErrBusy},
		{"unsupported", ErrUnsupported, ErrUnsupported},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := newFakeSerial(nil, tc.err)
			err := a.Open()
			require.Error(t, err)

			var openErr *OpenError
			require.True(t, errors.As(err, &openErr))
			assert.ErrorIs(t, err, tc.kind)
			assert.False(t, a.IsOpen())
			assert.NoError(t, a.Close())
		})
	}
}

func TestSerialAdapterDisconnect(t *testing.T) {
	p := &fakePort{}
	a := newFakeSerial(p, nil)

	disconnected := make(chan Event, 1)
	a.On(EventDisconnect, func(e Event) {
		disconnected <- e
	})

	require.NoError(t, a.Open())

	p.writeErr = &os.PathError{Op: "write", Path: "/dev/rfcomm0", Err: syscall.EIO}
	_, err := a.Write([]byte("x"))
	require.Error(t, err)
	assert.False(t, a.IsOpen())

	select {
	case e := <-disconnected:
		assert.Equal(t, EventDisconnect, e.Type)
		assert.Error(t, e.Error)
	case <-time.After(time.Second):
		t.Fatal("disconnect event not emitted")
	}

	_, err = a.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrDeviceNotOpen)
	assert.NoError(t, a.Close())
}

func TestSerialAdapterEventListeners(t *testing.T) {
	p := &fakePort{}
	a := newFakeSerial(p, nil)

	var mu sync.Mutex
	seen := map[EventType]bool{}
	record := func(e Event) {
		mu.Lock()
		seen[e.Type] = true
		mu.Unlock()
	}
	a.On(EventConnect, record)
	a.On(EventData, record)
	a.On(EventClose, record)

	require.NoError(t, a.Open())
	_, err := a.Write([]byte{0x1B, 0x40})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen[EventConnect] && seen[EventData] && seen[EventClose]
	}, time.Second, 10*time.Millisecond, "All events should have been triggered")
}
