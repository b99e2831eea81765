package rpc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.lsp.dev/jsonrpc2"
)

// errInvalidMessage marks a well-framed body that is not a JSON-RPC message.
// The stream stays usable after it.
var errInvalidMessage = errors.New("invalid message")

// Stream is a jsonrpc2.Stream using Content-Length framing. Reads accumulate
// bytes until a whole frame is buffered.
type Stream struct {
	in  *bufio.Scanner
	out io.WriteCloser
	wmu sync.Mutex
}

var _ jsonrpc2.Stream = (*Stream)(nil)

// NewStream reads frames from r and writes frames to w. Closing the stream
// closes w. maxFrameSize <= 0 selects DefaultMaxFrameSize.
func NewStream(r io.Reader, w io.WriteCloser, maxFrameSize int) *Stream {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}

	in := bufio.NewScanner(r)
	// header block plus body
	in.Buffer(make([]byte, 0, 64*1024), maxFrameSize+4*1024)
	in.Split(splitFrames(maxFrameSize))

	return &Stream{in: in, out: w}
}

// Read implements jsonrpc2.Stream.Read.
func (s *Stream) Read(ctx context.Context) (jsonrpc2.Message, int64, error) {
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	default:
	}

	if !s.in.Scan() {
		err := s.in.Err()
		switch {
		case err == nil:
			err = io.EOF
		case errors.Is(err, bufio.ErrTooLong):
			err = fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}
		return nil, 0, err
	}

	// The scanner reuses its buffer and decoded messages keep references
	// into the body.
	body := append([]byte(nil), s.in.Bytes()...)
	msg, err := jsonrpc2.DecodeMessage(body)
	if err != nil {
		return nil, int64(len(body)), fmt.Errorf("%w: %w", errInvalidMessage, err)
	}

	return msg, int64(len(body)), nil
}

// Write implements jsonrpc2.Stream.Write.
func (s *Stream) Write(ctx context.Context, msg jsonrpc2.Message) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	frame, err := Encode(msg)
	if err != nil {
		return 0, err
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	n, err := s.out.Write(frame)
	if err != nil {
		return int64(n), fmt.Errorf("write to stream: %w", err)
	}
	return int64(n), nil
}

// Close implements jsonrpc2.Stream.Close.
func (s *Stream) Close() error {
	return s.out.Close()
}
