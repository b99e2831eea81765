package lsp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.lsp.dev/jsonrpc2"
)

// HoverResult is the outcome of a hover request: the text to display, or the
// error the server reported instead.
type HoverResult struct {
	Text string
	Err  *jsonrpc2.Error
}

// Found reports whether the server returned hover content.
func (h *HoverResult) Found() bool {
	return h.Err == nil && h.Text != ""
}

// String renders the result for display.
func (h *HoverResult) String() string {
	if h.Err != nil {
		return fmt.Sprintf("error %d: %s", h.Err.Code, h.Err.Message)
	}
	return h.Text
}

// hoverPayload accepts both the standard hover result and an error object
// nested under result, which some servers produce.
type hoverPayload struct {
	Contents json.RawMessage `json:"contents"`
	Error    *jsonrpc2.Error `json:"error"`
}

// markedString covers MarkupContent ({kind, value}) and the deprecated
// MarkedString ({language, value}).
type markedString struct {
	Kind     string `json:"kind"`
	Language string `json:"language"`
	Value    string `json:"value"`
}

// ParseHover extracts the hover text from a textDocument/hover response.
func ParseHover(resp *jsonrpc2.Response) (*HoverResult, error) {
	if err := resp.Err(); err != nil {
		var rpcErr *jsonrpc2.Error
		if errors.As(err, &rpcErr) {
			return &HoverResult{Err: rpcErr}, nil
		}
		return &HoverResult{Err: jsonrpc2.NewError(jsonrpc2.UnknownError, err.Error())}, nil
	}

	raw := bytes.TrimSpace(resp.Result())
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return &HoverResult{}, nil
	}

	var payload hoverPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decoding hover result: %w", err)
	}

	if payload.Error != nil {
		return &HoverResult{Err: payload.Error}, nil
	}

	text, err := contentsText(payload.Contents)
	if err != nil {
		return nil, err
	}

	return &HoverResult{Text: text}, nil
}

// contentsText flattens MarkupContent, MarkedString, plain strings, and
// arrays of those.
func contentsText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decoding hover contents: %w", err)
		}
		return s, nil

	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return "", fmt.Errorf("decoding hover contents: %w", err)
		}

		parts := make([]string, 0, len(items))
		for _, item := range items {
			text, err := contentsText(item)
			if err != nil {
				return "", err
			}
			if text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n\n"), nil

	case '{':
		var ms markedString
		if err := json.Unmarshal(raw, &ms); err != nil {
			return "", fmt.Errorf("decoding hover contents: %w", err)
		}
		if ms.Language != "" {
			return fmt.Sprintf("```%s\n%s\n```", ms.Language, ms.Value), nil
		}
		return ms.Value, nil

	default:
		return "", fmt.Errorf("unexpected hover contents %s", raw)
	}
}
