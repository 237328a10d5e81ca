package ntp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	DefaultPort    = 123
	DefaultTimeout = 5 * time.Second
)

// Response is the outcome of one four-timestamp exchange.
type Response struct {
	Server         string        `yaml:"server"`
	Offset         time.Duration `yaml:"offset"`
	RoundTripDelay time.Duration `yaml:"round_trip_delay"`
	Stratum        uint8         `yaml:"stratum"`
	ReferenceID    uint32        `yaml:"reference_id"`
	// ServerTime is the server transmit time (t3).
	ServerTime time.Time `yaml:"server_time"`
}

// ComputeOffset applies the NTP clock equations to the four timestamps:
// t1 local send, t2 server receive, t3 server transmit, t4 local receive.
func ComputeOffset(t1, t2, t3, t4 time.Time) (offset, delay time.Duration) {
	offset = (t2.Sub(t1) + t3.Sub(t4)) / 2
	delay = t4.Sub(t1) - t3.Sub(t2)
	return offset, delay
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds a single exchange, including DNS resolution.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPort overrides the default UDP port 123 for hosts without an explicit port.
func WithPort(port int) Option {
	return func(c *Client) {
		if port > 0 {
			c.port = port
		}
	}
}

// WithClock replaces time.Now for the local t1/t4 timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client performs SNTP exchanges over UDP.
type Client struct {
	timeout time.Duration
	port    int
	now     func() time.Time
	dialer  net.Dialer
}

// NewClient creates a Client with default timeout and port.
func NewClient(opts ...Option) *Client {
	c := &Client{
		timeout: DefaultTimeout,
		port:    DefaultPort,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query performs one exchange with host ("pool.ntp.org" or "host:port").
func (c *Client) Query(ctx context.Context, host string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	addr := c.address(host)
	conn, err := c.dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	t1 := c.now()
	req := &packet{Version: version, Mode: modeClient, TransmitTime: toNTPTime(t1)}
	if _, err := conn.Write(req.marshal()); err != nil {
		return nil, classify(ctx, err)
	}

	buf := make([]byte, 128)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, classify(ctx, err)
	}
	t4 := c.now()

	resp, err := unmarshalPacket(buf[:n])
	if err != nil {
		return nil, errors.Join(ErrInvalidResponse, err)
	}
	if err := validate(req, resp); err != nil {
		return nil, err
	}

	t2 := fromNTPTime(resp.ReceiveTime, t1)
	t3 := fromNTPTime(resp.TransmitTime, t1)
	offset, delay := ComputeOffset(t1, t2, t3, t4)

	return &Response{
		Server:         host,
		Offset:         offset,
		RoundTripDelay: delay,
		Stratum:        resp.Stratum,
		ReferenceID:    resp.ReferenceID,
		ServerTime:     t3,
	}, nil
}

func (c *Client) address(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(c.port))
}

func validate(req, resp *packet) error {
	switch {
	case resp.Mode != modeServer:
		return fmt.Errorf("%w: mode %d", ErrInvalidResponse, resp.Mode)
	case resp.Stratum == 0:
		return errors.Join(ErrInvalidResponse, ErrKissOfDeath)
	case resp.Leap == leapNotInSync:
		return fmt.Errorf("%w: server clock not synchronized", ErrInvalidResponse)
	case resp.OriginTime != req.TransmitTime:
		return fmt.Errorf("%w: origin timestamp mismatch", ErrInvalidResponse)
	case resp.TransmitTime == 0:
		return fmt.Errorf("%w: zero transmit timestamp", ErrInvalidResponse)
	}
	return nil
}

// classify maps network failures onto ErrSyncTimeout or ErrSyncUnreachable.
func classify(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return errors.Join(ErrSyncTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return errors.Join(ErrSyncUnreachable, err)
	}
}

// Result pairs a server with the outcome of querying it.
type Result struct {
	Server   string
	Response *Response
	Err      error
}

// QueryAll queries every host concurrently and waits for all of them.
// A failing host does not cancel the others.
func (c *Client) QueryAll(ctx context.Context, hosts ...string) ([]Result, error) {
	if len(hosts) == 0 {
		return nil, ErrNoServers
	}

	results := make([]Result, len(hosts))
	var wg sync.WaitGroup
	for i, host := range hosts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.Query(ctx, host)
			results[i] = Result{Server: host, Response: resp, Err: err}
		}()
	}
	wg.Wait()

	return results, nil
}
