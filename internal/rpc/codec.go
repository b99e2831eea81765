package rpc

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"
	"go.lsp.dev/jsonrpc2"
)

const (
	// HdrContentLength is the only header the base protocol requires.
	HdrContentLength = "Content-Length"

	// HdrSeparator ends the header block.
	HdrSeparator = "\r\n\r\n"

	// DefaultMaxFrameSize bounds the body length a peer may declare.
	DefaultMaxFrameSize = 32 << 20
)

var separator = []byte(HdrSeparator)

// Encode serializes msg and prefixes it with its Content-Length header.
func Encode(msg jsonrpc2.Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshaling message: %w", err)
	}

	header := fmt.Sprintf("%s: %d%s", HdrContentLength, len(body), HdrSeparator)
	frame := make([]byte, 0, len(header)+len(body))
	frame = append(frame, header...)
	frame = append(frame, body...)
	return frame, nil
}

// Decode returns the body of the frame at the start of buf. Bytes after the
// declared body length are ignored.
func Decode(buf []byte) ([]byte, error) {
	end := bytes.Index(buf, separator)
	if end < 0 {
		return nil, fmt.Errorf("%w: missing header in %q", ErrMalformedFrame, truncate(buf))
	}

	length, err := parseHeader(buf[:end])
	if err != nil {
		return nil, err
	}

	start := end + len(separator)
	if len(buf)-start < length {
		return nil, fmt.Errorf("%w: declared %d body bytes, have %d", ErrMalformedFrame, length, len(buf)-start)
	}

	return buf[start : start+length], nil
}

// DecodeMessage decodes the frame at the start of buf into a JSON-RPC message.
func DecodeMessage(buf []byte) (jsonrpc2.Message, error) {
	body, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	return jsonrpc2.DecodeMessage(body)
}

// ScanFrames is a bufio.SplitFunc yielding one frame body per token. Frames
// may span several reads, and several frames may arrive in a single read.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	return splitFrames(DefaultMaxFrameSize)(data, atEOF)
}

func splitFrames(maxSize int) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}

		// awaiting header
		end := bytes.Index(data, separator)
		if end < 0 {
			if atEOF {
				return 0, nil, fmt.Errorf("%w: stream ended inside header", ErrMalformedFrame)
			}
			return 0, nil, nil
		}

		length, err := parseHeader(data[:end])
		if err != nil {
			return 0, nil, err
		}
		if length > maxSize {
			return 0, nil, fmt.Errorf("%w: %s %d exceeds limit of %d bytes", ErrMalformedFrame, HdrContentLength, length, maxSize)
		}

		// awaiting body
		start := end + len(separator)
		if len(data)-start < length {
			if atEOF {
				return 0, nil, fmt.Errorf("%w: stream ended after %d of %d body bytes", ErrMalformedFrame, len(data)-start, length)
			}
			return 0, nil, nil
		}

		return start + length, data[start : start+length], nil
	}
}

// parseHeader extracts the content length from a header block. Headers other
// than Content-Length are ignored.
func parseHeader(block []byte) (int, error) {
	length := -1
	for _, line := range strings.Split(string(block), "\r\n") {
		if line == "" {
			continue
		}

		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return 0, fmt.Errorf("%w: invalid header line %q", ErrMalformedFrame, line)
		}

		name, value := strings.TrimSpace(line[:colon]), strings.TrimSpace(line[colon+1:])
		if !strings.EqualFold(name, HdrContentLength) {
			continue
		}

		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: invalid %s %q", ErrMalformedFrame, HdrContentLength, value)
		}
		length = n
	}

	if length < 0 {
		return 0, fmt.Errorf("%w: missing %s header", ErrMalformedFrame, HdrContentLength)
	}
	return length, nil
}

func truncate(b []byte) []byte {
	const limit = 64
	if len(b) > limit {
		return b[:limit]
	}
	return b
}
