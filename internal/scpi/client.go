package scpi

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"codeberg.org/mutker/psuctl/internal/errors"
)

const (
	// DefaultTimeout bounds a whole exchange when no timeout is configured.
	DefaultTimeout = 2 * time.Second

	maxResponseSize = 4096
)

// Dialer opens the per-exchange connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Observer is notified after every exchange, successful or not.
type Observer interface {
	ObserveExchange(command string, elapsed time.Duration, err error)
}

// Sender performs one transport exchange.
type Sender interface {
	Send(ctx context.Context, ep Endpoint, command string) (string, error)
}

type Option func(*Client)

// WithTimeout bounds each exchange. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

func WithDialer(d Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// Client is a stateless SCPI transport. Every Send dials a dedicated
// connection, writes one command line, reads one response line and closes.
type Client struct {
	dialer   Dialer
	timeout  time.Duration
	observer Observer
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		dialer:  &net.Dialer{},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the bound applied to each exchange.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Send writes command to the instrument at ep and returns its trimmed reply.
func (c *Client) Send(ctx context.Context, ep Endpoint, command string) (resp string, err error) {
	start := time.Now()
	if c.observer != nil {
		defer func() {
			c.observer.ObserveExchange(command, time.Since(start), err)
		}()
	}

	errFactory := errors.New()

	if command == "" || strings.ContainsAny(command, "\r\n") {
		return "", errFactory.WithData(ErrInvalidCommand, command)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", ep.Address())
	if err != nil {
		return "", classify(ctx, ErrConnection, err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return "", errFactory.Wrap(ErrConnection, err)
	}

	// Cancellation unblocks pending I/O by expiring the deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(command + "\n"); err != nil {
		return "", classify(ctx, ErrConnection, err)
	}
	if err := w.Flush(); err != nil {
		return "", classify(ctx, ErrConnection, err)
	}

	line, err := bufio.NewReaderSize(conn, maxResponseSize).ReadSlice('\n')
	switch {
	case err == nil:
		return strings.TrimSpace(string(line)), nil
	case errors.Is(err, bufio.ErrBufferFull):
		return "", errFactory.Wrap(ErrProtocol,
			fmt.Errorf("response exceeds %d bytes without a line terminator", maxResponseSize))
	case errors.Is(err, io.EOF):
		return "", errFactory.Wrap(ErrProtocol,
			fmt.Errorf("connection closed before line terminator, got %q", line))
	default:
		return "", classify(ctx, ErrConnection, err)
	}
}

// classify maps an I/O failure onto the transport taxonomy: deadline
// expiry becomes ErrTimeout, anything else keeps the fallback code.
func classify(ctx context.Context, fallback errors.ErrorCode, err error) error {
	errFactory := errors.New()

	if errors.Is(ctx.Err(), context.Canceled) {
		return errFactory.Wrap(fallback, context.Canceled)
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return errFactory.Wrap(ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errFactory.Wrap(ErrTimeout, err)
	}

	return errFactory.Wrap(fallback, err)
}
