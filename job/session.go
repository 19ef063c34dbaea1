package job

import (
	"io"

	"github.com/nixxel-company-limited/escpos-dispatcher/adapter"
	"github.com/nixxel-company-limited/escpos-dispatcher/escpos"
)

// session owns an open adapter for the duration of one job. Encoded commands
// collect in buf and only reach the device on flush.
type session struct {
	dev     adapter.Adapter
	buf     escpos.Buffer
	written int
}

func (s *session) write(p []byte) {
	s.buf.Write(p)
}

func (s *session) flush() error {
	data := s.buf.Flush()
	for len(data) > 0 {
		n, err := s.dev.Write(data)
		s.written += n
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}

// flushAndDrain flushes and waits for the printer to accept every byte.
func (s *session) flushAndDrain() error {
	if err := s.flush(); err != nil {
		return err
	}
	return s.dev.Drain()
}
