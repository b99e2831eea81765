package lsp

import (
	"context"
	"errors"
	"fmt"

	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/mcncl/lsp-hover/internal/rpc"
)

// State is a step of the hover exchange with the server.
type State int

const (
	StateUnstarted State = iota
	StateSpawned
	StateInitializing  // initialize sent
	StateInitialized   // initialized sent
	StateAwaitingHover // hover sent
	StateDone          // hover response received
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateSpawned:
		return "spawned"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateAwaitingHover:
		return "awaiting-hover"
	case StateDone:
		return "done"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrClientUsed is returned when Hover is called on a client that already ran
// an exchange.
var ErrClientUsed = errors.New("client already used")

// Position is a zero-based cursor position in a file.
type Position struct {
	Path      string
	Line      uint32
	Character uint32
}

// Dialer starts a session with a server.
type Dialer func(ctx context.Context, opts rpc.Options) (*rpc.Session, error)

// Client runs a single hover exchange against one server process. It is not
// safe for concurrent use.
type Client struct {
	opts    rpc.Options
	dial    Dialer
	version string
	logger  *zap.Logger
	state   State
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces rpc.Spawn as the way sessions are started.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// WithVersion sets the version reported in clientInfo.
func WithVersion(v string) Option {
	return func(c *Client) { c.version = v }
}

// WithLogger sets the client's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient returns a client that will start its server with opts.
func NewClient(opts rpc.Options, options ...Option) *Client {
	c := &Client{
		opts:    opts,
		dial:    rpc.Spawn,
		version: "dev",
		logger:  zap.NewNop(),
	}
	for _, o := range options {
		o(c)
	}
	if c.opts.Logger == nil {
		c.opts.Logger = c.logger
	}
	return c
}

// State returns the current step of the exchange.
func (c *Client) State() State {
	return c.state
}

// Hover starts the server, performs the initialize handshake for the
// workspace at root, and asks for hover information at pos. The server is
// shut down before Hover returns, whatever the outcome.
func (c *Client) Hover(ctx context.Context, root string, pos Position) (result *HoverResult, err error) {
	if c.state != StateUnstarted {
		return nil, ErrClientUsed
	}

	session, err := c.dial(ctx, c.opts)
	if err != nil {
		c.transition(StateFailed)
		return nil, err
	}
	c.transition(StateSpawned)

	defer func() {
		if err != nil {
			c.transition(StateFailed)
		}
		if cerr := session.Close(); cerr != nil {
			c.logger.Warn("closing server session", zap.Error(cerr))
		}
		if err == nil {
			c.transition(StateClosed)
		}
	}()

	c.transition(StateInitializing)
	resp, err := session.Call(ctx, protocol.MethodInitialize, BuildInitialize(root, c.version))
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	if rerr := resp.Err(); rerr != nil {
		return nil, fmt.Errorf("server rejected initialize: %w", rerr)
	}

	if err := session.Notify(ctx, protocol.MethodInitialized, BuildInitialized()); err != nil {
		return nil, fmt.Errorf("initialized: %w", err)
	}
	c.transition(StateInitialized)

	c.transition(StateAwaitingHover)
	resp, err = session.Call(ctx, protocol.MethodTextDocumentHover, BuildHover(pos.Path, pos.Line, pos.Character))
	if err != nil {
		return nil, fmt.Errorf("hover: %w", err)
	}

	result, err = ParseHover(resp)
	if err != nil {
		return nil, err
	}
	c.transition(StateDone)

	return result, nil
}

func (c *Client) transition(to State) {
	c.logger.Debug("hover exchange", zap.Stringer("from", c.state), zap.Stringer("to", to))
	c.state = to
}
