package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/coretrace/coretrace/pkg/telemetry"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var requestsTotal = telemetry.Counter("coretrace_control_requests",
	telemetry.WithDescription("Control socket requests served, by command and status"),
	telemetry.WithLabels("command", "status"))

// RawWriter receives drained buffer contents. tracefile.Writer satisfies
// it.
type RawWriter interface {
	WriteRaw(p []byte) (bool, error)
}

// ServerOptions configures a Server.
type ServerOptions struct {
	// Dir holds the socket.
	Dir string
	// ShmDir holds shared memory objects; DefaultShmDir when empty.
	ShmDir string
	// Sink receives flushed buffer contents.
	Sink RawWriter
	// BufferConfig produces the header of new buffers; the capacity is
	// taken from the request.
	BufferConfig func() BufferConfig
}

const (
	dumpUnset int32 = iota
	dumpOff
	dumpOn
)

// Server answers control requests from one tracee.
type Server struct {
	pid    int
	opts   ServerOptions
	logger *zap.Logger

	mu     sync.Mutex
	token  uint64
	buffer *SharedBuffer
	conns  map[net.Conn]struct{}
	closed bool

	dump       atomic.Int32
	updateMaps atomic.Bool

	ln   *net.UnixListener
	wg   conc.WaitGroup
	done chan struct{}
}

func NewServer(logger *zap.Logger, pid int, opts ServerOptions) *Server {
	if opts.ShmDir == "" {
		opts.ShmDir = DefaultShmDir
	}
	if opts.BufferConfig == nil {
		opts.BufferConfig = func() BufferConfig { return BufferConfig{} }
	}
	return &Server{
		pid:    pid,
		opts:   opts,
		logger: logger.With(zap.Int("pid", pid)),
		conns:  map[net.Conn]struct{}{},
		done:   make(chan struct{}),
	}
}

func (s *Server) Path() string {
	return SocketPath(s.opts.Dir, s.pid)
}

// Start listens on the socket and serves connections until Close.
func (s *Server) Start(ctx context.Context) error {
	path := s.Path()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket: %w", err)
	}
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return fmt.Errorf("listening on %s: %w", path, err)
	}
	ln.SetUnlinkOnClose(true)
	s.ln = ln

	s.wg.Go(func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	})
	s.wg.Go(s.acceptLoop)
	s.logger.Debug("control socket listening", zap.String("path", path))
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("accepting control connection", zap.Error(err))
			}
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Go(func() {
			s.serve(conn)
		})
	}
}

func (s *Server) serve(conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	frame := make([]byte, RequestSize)
	for {
		if _, err := io.ReadFull(conn, frame); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("control connection ended", zap.Error(err))
			}
			return
		}
		var req Request
		_ = req.UnmarshalBinary(frame)

		status := s.Handle(req)
		requestsTotal(1, req.Command.String(), fmt.Sprint(status))

		var resp [ResponseSize]byte
		le.PutUint32(resp[:], uint32(status))
		if _, err := conn.Write(resp[:]); err != nil {
			s.logger.Debug("writing control response", zap.Error(err))
			return
		}
	}
}

// Handle executes one request and returns its status.
func (s *Server) Handle(req Request) int32 {
	switch req.Command {
	case CmdInitSharedBuffers:
		return s.initBuffer(req.Argument)
	case CmdFlushSharedBuffers:
		return s.flush()
	case CmdShareName:
		s.mu.Lock()
		s.token = req.Argument
		s.mu.Unlock()
		return StatusOK
	case CmdEnableDump:
		if req.Argument != 0 {
			s.dump.Store(dumpOn)
		} else {
			s.dump.Store(dumpOff)
		}
		return StatusOK
	case CmdUpdateMaps:
		s.updateMaps.Store(true)
		return StatusOK
	default:
		s.logger.Warn("unknown control command", zap.Uint32("command", uint32(req.Command)))
		return StatusUnknownCommand
	}
}

func (s *Server) initBuffer(capacity uint64) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buffer != nil {
		if err := s.drainLocked(); err != nil {
			s.logger.Error("flushing replaced shared buffer", zap.Error(err))
		}
		if err := s.buffer.Close(); err != nil {
			s.logger.Warn("closing replaced shared buffer", zap.Error(err))
		}
		s.buffer = nil
	}

	cfg := s.opts.BufferConfig()
	cfg.Capacity = capacity
	buf, err := CreateSharedBuffer(s.opts.ShmDir, ShmName(s.pid, s.token), cfg)
	if err != nil {
		s.logger.Error("creating shared buffer", zap.Uint64("capacity", capacity), zap.Error(err))
		return StatusFailed
	}
	s.buffer = buf
	s.logger.Debug("shared buffer created", zap.String("name", buf.Name()), zap.Uint64("capacity", capacity))
	return StatusOK
}

func (s *Server) flush() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buffer == nil {
		return StatusNoBuffer
	}
	if err := s.drainLocked(); err != nil {
		s.logger.Error("flushing shared buffer", zap.Error(err))
		return StatusFailed
	}
	return StatusOK
}

func (s *Server) drainLocked() error {
	data := s.buffer.Drain()
	if len(data) == 0 || s.opts.Sink == nil {
		return nil
	}
	ok, err := s.opts.Sink.WriteRaw(data)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Debug("shared buffer contents dropped by size cap", zap.Int("bytes", len(data)))
	}
	return nil
}

// Flush drains the shared buffer, if any, into the sink.
func (s *Server) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buffer == nil {
		return nil
	}
	return s.drainLocked()
}

// TakeDump returns and clears a pending enable-dump request.
func (s *Server) TakeDump() (enabled bool, ok bool) {
	switch s.dump.Swap(dumpUnset) {
	case dumpOn:
		return true, true
	case dumpOff:
		return false, true
	}
	return false, false
}

// TakeUpdateMaps returns and clears a pending update-maps request.
func (s *Server) TakeUpdateMaps() bool {
	return s.updateMaps.Swap(false)
}

// Close stops serving, flushes and releases the shared buffer.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	if s.buffer != nil {
		err = multierr.Append(err, s.drainLocked())
		err = multierr.Append(err, s.buffer.Close())
		s.buffer = nil
	}
	s.mu.Unlock()
	return err
}

// Wait blocks until every serving goroutine has returned.
func (s *Server) Wait() {
	if r := s.wg.WaitAndRecover(); r != nil {
		s.logger.Error("panic in control server", zap.Error(r.AsError()))
	}
}
