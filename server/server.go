package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nixxel-company-limited/escpos-dispatcher/adapter"
	"github.com/nixxel-company-limited/escpos-dispatcher/job"
	"github.com/nixxel-company-limited/escpos-dispatcher/queue"
)

const (
	DefaultMaxBytes    = 1 << 20
	DefaultReadTimeout = 30 * time.Second
)

// Submitter queues jobs. *queue.Scheduler implements it.
type Submitter interface {
	Submit(job.Job) (*queue.Handle, error)
}

// Server represents a TCP server that turns every connection into one raw
// print job
type Server struct {
	jobs     Submitter
	target   adapter.Target
	listener net.Listener
	address  string
	mu       sync.Mutex
	running  bool
	quit     chan struct{}
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	logger   zerolog.Logger

	// MaxBytes caps one connection's payload; larger payloads are discarded.
	MaxBytes int
	// ReadTimeout closes connections idle for longer.
	ReadTimeout time.Duration
}

// New creates a new server instance
func New(jobs Submitter, target adapter.Target, address string, logger zerolog.Logger) *Server {
	return &Server{
		jobs:        jobs,
		target:      target,
		address:     address,
		logger:      logger.With().Str("component", "server").Logger(),
		MaxBytes:    DefaultMaxBytes,
		ReadTimeout: DefaultReadTimeout,
	}
}

// Start starts the TCP server and blocks until Stop is called
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.address).Msg("starting server (blocking mode)")

	if err := s.listen(); err != nil {
		return err
	}

	s.wg.Add(1)
	s.acceptConnections()
	return nil
}

// StartAsync starts the TCP server in a goroutine (non-blocking)
func (s *Server) StartAsync() error {
	s.logger.Info().Str("address", s.address).Msg("starting server (async mode)")

	if err := s.listen(); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.acceptConnections()
	s.logger.Info().Msg("server started in background, ready to accept connections")
	return nil
}

func (s *Server) listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Error().Msg("server already running")
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to start server")
		return fmt.Errorf("failed to start server: %w", err)
	}

	s.listener = listener
	s.running = true
	s.quit = make(chan struct{})
	s.conns = make(map[net.Conn]struct{})
	s.logger.Info().Str("address", listener.Addr().String()).Msg("server listening")
	return nil
}

// acceptConnections handles incoming client connections
func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()

			if !running {
				s.logger.Debug().Msg("server shutting down, stopping accept loop")
				return
			}
			s.logger.Warn().Err(err).Msg("error accepting connection")
			continue
		}

		s.logger.Debug().Stringer("client", conn.RemoteAddr()).Msg("client connected")
		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()
		go s.handleConnection(conn)
	}
}

// handleConnection reads a connection to EOF and prints what it sent.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	client := conn.RemoteAddr().String()
	log := s.logger.With().Str("client", client).Logger()

	data, err := s.receive(conn)
	if err != nil {
		log.Warn().Err(err).Int("bytes", len(data)).Msg("discarding connection data")
		return
	}
	if len(data) == 0 {
		log.Debug().Msg("client closed connection without data")
		return
	}

	log.Info().Int("bytes", len(data)).Msg("received raw job")

	h, err := s.jobs.Submit(job.NewRaw(s.target, data))
	if err != nil {
		log.Error().Err(err).Msg("failed to queue raw job")
		return
	}

	select {
	case <-h.Done():
		res := h.Result()
		if res.Success {
			log.Info().Str("job", h.ID).Msg(res.Message)
		} else {
			log.Error().Str("job", h.ID).Str("error", res.Error).Msg("raw job failed")
		}
	case <-s.quit:
		log.Debug().Str("job", h.ID).Msg("server stopped before raw job finished")
	}
}

var errTooLarge = errors.New("payload too large")

func (s *Server) receive(conn net.Conn) ([]byte, error) {
	var data bytes.Buffer
	buf := make([]byte, 4096)

	for {
		if s.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		}

		n, err := conn.Read(buf)
		if n > 0 {
			if s.MaxBytes > 0 && data.Len()+n > s.MaxBytes {
				return data.Bytes(), fmt.Errorf("%w: more than %d bytes", errTooLarge, s.MaxBytes)
			}
			data.Write(buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				return data.Bytes(), nil
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return data.Bytes(), fmt.Errorf("read timed out: %w", err)
			}
			return data.Bytes(), err
		}
	}
}

// Stop stops the TCP server
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Debug().Msg("stop called but server is not running")
		return nil
	}

	s.logger.Info().Msg("stopping server")
	s.running = false
	listener := s.listener
	close(s.quit)
	// unfinished uploads are dropped
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}

	s.wg.Wait()
	s.logger.Info().Msg("server stopped")

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Address returns the listening address while running, the configured one
// otherwise
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}

// Target returns the printer raw jobs are sent to
func (s *Server) Target() adapter.Target {
	return s.target
}
