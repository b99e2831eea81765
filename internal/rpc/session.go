package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultShutdownGrace is how long Close waits for the server to exit after
// its stdin is closed before killing it.
const DefaultShutdownGrace = 5 * time.Second

// Options configures a spawned session.
type Options struct {
	// Command is the server executable, resolved through PATH.
	Command string
	Args    []string

	// Env entries (KEY=VALUE) are appended to the current environment.
	Env []string
	Dir string

	// Stderr receives the server's stderr unmodified. Defaults to os.Stderr.
	Stderr io.Writer

	// Trace, when set, receives a protocol trace of every message.
	Trace io.Writer

	// Logger defaults to the logger stored in the Spawn context.
	Logger *zap.Logger

	ShutdownGrace time.Duration
	MaxFrameSize  int
}

// Session owns a server connection: the optional subprocess, the framed
// stream to it, and the table of requests awaiting a response.
type Session struct {
	stream jsonrpc2.Stream
	cmd    *exec.Cmd
	logger *zap.Logger
	grace  time.Duration

	nextID  atomic.Int32
	pending *pendingTable

	// done is closed when the read loop stops; readErr is set before that.
	done    chan struct{}
	readErr error

	closeOnce sync.Once
	closeErr  error
}

// Spawn starts the server process described by opts and begins reading its
// output.
func Spawn(ctx context.Context, opts Options) (*Session, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("%w: no command configured", ErrProcessSpawn)
	}

	logger := opts.Logger
	if logger == nil {
		logger = protocol.LoggerFromContext(ctx)
	}

	grace := opts.ShutdownGrace
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.WaitDelay = grace
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	cmd.Stderr = opts.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %w", ErrProcessSpawn, err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("%w: stdout pipe: %w", ErrProcessSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrProcessSpawn, opts.Command, err)
	}

	logger.Debug("spawned server",
		zap.String("command", opts.Command),
		zap.Strings("args", opts.Args),
		zap.Int("pid", cmd.Process.Pid),
	)

	var stream jsonrpc2.Stream = NewStream(stdout, stdin, opts.MaxFrameSize)
	if opts.Trace != nil {
		stream = protocol.LoggingStream(stream, opts.Trace)
	}

	s := newSession(stream, logger, grace)
	s.cmd = cmd
	go s.readLoop()

	return s, nil
}

// NewSession runs a session over an existing stream with no subprocess.
func NewSession(stream jsonrpc2.Stream, logger *zap.Logger) *Session {
	s := newSession(stream, logger, 0)
	go s.readLoop()
	return s
}

func newSession(stream jsonrpc2.Stream, logger *zap.Logger, grace time.Duration) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}

	return &Session{
		stream:  stream,
		logger:  logger,
		grace:   grace,
		pending: newPendingTable(),
		done:    make(chan struct{}),
	}
}

// NextID allocates the next request id of this session.
func (s *Session) NextID() jsonrpc2.ID {
	return jsonrpc2.NewNumberID(s.nextID.Add(1))
}

// Send writes msg to the server. Calls are registered as pending before they
// are written, so their response is held until AwaitResponse collects it.
func (s *Session) Send(ctx context.Context, msg jsonrpc2.Message) error {
	select {
	case <-s.done:
		return s.closedErr()
	default:
	}

	call, isCall := msg.(*jsonrpc2.Call)
	if isCall {
		if err := s.pending.add(call.ID()); err != nil {
			return err
		}
	}

	if _, err := s.stream.Write(ctx, msg); err != nil {
		if isCall {
			s.pending.remove(call.ID())
		}
		return fmt.Errorf("%w: %w", ErrTransportClosed, err)
	}

	return nil
}

// AwaitResponse blocks until the response to request id arrives. If the
// stream ends first, or ctx is done, it fails with ErrTransportClosed; in the
// latter case the session is closed and the server killed.
func (s *Session) AwaitResponse(ctx context.Context, id jsonrpc2.ID) (*jsonrpc2.Response, error) {
	slot, ok := s.pending.get(id)
	if !ok {
		return nil, fmt.Errorf("no pending request with id %v", id)
	}
	defer s.pending.remove(id)

	select {
	case resp := <-slot:
		return resp, nil

	case <-s.done:
		// the response may have landed just before the loop stopped
		select {
		case resp := <-slot:
			return resp, nil
		default:
		}
		return nil, s.closedErr()

	case <-ctx.Done():
		s.logger.Warn("abandoning request", zap.String("id", fmt.Sprint(id)), zap.Error(ctx.Err()))
		if err := multierr.Append(s.kill(), s.Close()); err != nil {
			s.logger.Debug("close after abandoned request", zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %w", ErrTransportClosed, ctx.Err())
	}
}

// Call sends a request and waits for its response.
func (s *Session) Call(ctx context.Context, method string, params interface{}) (*jsonrpc2.Response, error) {
	call, err := jsonrpc2.NewCall(s.NextID(), method, params)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", method, err)
	}

	if err := s.Send(ctx, call); err != nil {
		return nil, fmt.Errorf("sending %s: %w", method, err)
	}

	return s.AwaitResponse(ctx, call.ID())
}

// Notify sends a notification. No response is expected.
func (s *Session) Notify(ctx context.Context, method string, params interface{}) error {
	notify, err := jsonrpc2.NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("building %s notification: %w", method, err)
	}

	if err := s.Send(ctx, notify); err != nil {
		return fmt.Errorf("sending %s: %w", method, err)
	}
	return nil
}

// Done is closed once the session stops reading from the server.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close closes the server's stdin and waits for it to exit, killing it if it
// outlives the shutdown grace period. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var err error
		if cerr := s.stream.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
			err = multierr.Append(err, fmt.Errorf("closing server input: %w", cerr))
		}

		if s.cmd == nil {
			s.closeErr = err
			return
		}

		timer := time.NewTimer(s.grace)
		defer timer.Stop()

		select {
		case <-s.done:
		case <-timer.C:
			s.logger.Warn("server did not exit after input closed, killing it", zap.Duration("grace", s.grace))
			err = multierr.Append(err, s.kill())
		}

		if werr := s.cmd.Wait(); werr != nil {
			err = multierr.Append(err, fmt.Errorf("waiting for server: %w", werr))
		}

		if state := s.cmd.ProcessState; state != nil {
			s.logger.Debug("server exited", zap.Int("exit_code", state.ExitCode()))
		}
		s.closeErr = err
	})

	return s.closeErr
}

func (s *Session) kill() error {
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing server: %w", err)
	}
	return nil
}

func (s *Session) readLoop() {
	defer close(s.done)

	for {
		msg, _, err := s.stream.Read(context.Background())
		if err != nil {
			if errors.Is(err, errInvalidMessage) {
				s.logger.Debug("skipping undecodable message", zap.Error(err))
				continue
			}
			s.readErr = err
			s.logger.Debug("read loop stopped", zap.Error(err))
			return
		}

		switch m := msg.(type) {
		case *jsonrpc2.Response:
			if !s.pending.deliver(m) {
				s.logger.Debug("discarding unmatched response", zap.String("id", fmt.Sprint(m.ID())))
			}
		case *jsonrpc2.Notification:
			s.logger.Debug("discarding notification", zap.String("method", m.Method()))
		case *jsonrpc2.Call:
			s.logger.Debug("discarding server request", zap.String("method", m.Method()), zap.String("id", fmt.Sprint(m.ID())))
		}
	}
}

func (s *Session) closedErr() error {
	<-s.done
	if s.readErr == nil {
		return ErrTransportClosed
	}
	return fmt.Errorf("%w: %w", ErrTransportClosed, s.readErr)
}
