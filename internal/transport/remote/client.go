package remote

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	logs "github.com/danmuck/smplog"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danmuck/cictl/internal/logging"
	"github.com/danmuck/cictl/internal/protocol/frame"
	"github.com/danmuck/cictl/internal/protocol/wire"
	"github.com/danmuck/cictl/internal/transport"
)

var ErrClosed = errors.New("remote: client closed")

// DialConfig configures a link client.
type DialConfig struct {
	Address string
	// Topology is what the client expects behind the link; zero fields
	// accept whatever the server reports.
	Topology       transport.Topology
	ConnectTimeout time.Duration
	IOTimeout      time.Duration
	Attempts       int
	Backoff        BackoffConfig
	Limits         frame.Limits
}

func DefaultDialConfig() DialConfig {
	return DialConfig{
		ConnectTimeout: 5 * time.Second,
		IOTimeout:      5 * time.Second,
		Attempts:       5,
		Backoff: BackoffConfig{
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     2 * time.Second,
			Jitter:       true,
		},
		Limits: frame.DefaultLimits(),
	}
}

// Client is a Transport whose lanes live behind a link server.
type Client struct {
	mu      sync.Mutex
	cfg     DialConfig
	conn    net.Conn
	seq     uint64
	session string
	topo    transport.Topology
	closed  bool
	log     zerolog.Logger
}

// Dial connects to cfg.Address, retrying with backoff, and performs the
// hello exchange. A topology mismatch is not retried.
func Dial(ctx context.Context, cfg DialConfig) (*Client, error) {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.Limits.MaxPayloadBytes == 0 {
		cfg.Limits = frame.DefaultLimits()
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if attempt > 1 {
			delay := NextBackoffDelay(cfg.Backoff, attempt-1, rng)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
		if err != nil {
			lastErr = err
			logs.Warnf("remote.Dial attempt=%d/%d addr=%s err=%v", attempt, cfg.Attempts, cfg.Address, err)
			continue
		}
		c := &Client{cfg: cfg, conn: conn, session: uuid.NewString()}
		if err := c.hello(); err != nil {
			_ = conn.Close()
			if errors.Is(err, ErrTopology) {
				return nil, err
			}
			lastErr = err
			logs.Warnf("remote.Dial hello attempt=%d/%d addr=%s err=%v", attempt, cfg.Attempts, cfg.Address, err)
			continue
		}
		c.log = logging.Component("remote").With().Str("session", c.session).Str("addr", cfg.Address).Logger()
		c.log.Info().Int("lanes", c.topo.Lanes).Int("units_per_lane", c.topo.UnitsPerLane).Msg("link_up")
		return c, nil
	}
	return nil, fmt.Errorf("remote: dial %s failed after %d attempts: %w", cfg.Address, cfg.Attempts, lastErr)
}

func (c *Client) hello() error {
	f, err := c.roundTrip(frame.TypeHello, helloPayload(c.session, c.cfg.Topology), frame.TypeHello)
	if err != nil {
		return err
	}
	session, topo, err := parseHello(f.Payload)
	if err != nil {
		return err
	}
	if session != c.session {
		return fmt.Errorf("%w: hello answered for session %q", ErrProtocol, session)
	}
	want := c.cfg.Topology
	if (want.Lanes != 0 && want.Lanes != topo.Lanes) || (want.UnitsPerLane != 0 && want.UnitsPerLane != topo.UnitsPerLane) {
		return fmt.Errorf("%w: want %dx%d, server has %dx%d",
			ErrTopology, want.Lanes, want.UnitsPerLane, topo.Lanes, topo.UnitsPerLane)
	}
	c.topo = topo
	return nil
}

// roundTrip sends one request and reads its answer. Callers hold c.mu or
// own c exclusively.
func (c *Client) roundTrip(t frame.Type, payload []byte, want frame.Type) (frame.Frame, error) {
	c.seq++
	seq := c.seq
	if c.cfg.IOTimeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.cfg.IOTimeout)); err != nil {
			return frame.Frame{}, err
		}
	}
	if err := frame.Write(c.conn, frame.New(t, seq, payload), c.cfg.Limits); err != nil {
		return frame.Frame{}, err
	}
	f, err := frame.Read(c.conn, c.cfg.Limits)
	if err != nil {
		return frame.Frame{}, err
	}
	if err := expect(f, seq, want); err != nil {
		return frame.Frame{}, err
	}
	return f, nil
}

func (c *Client) Commit(words wire.Vector) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	_, err := c.roundTrip(frame.TypeCommit, wordsPayload(words), frame.TypeAck)
	return err
}

func (c *Client) Update(words *wire.Vector) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	f, err := c.roundTrip(frame.TypeUpdate, nil, frame.TypeWords)
	if err != nil {
		return err
	}
	v, err := parseWords(f.Payload)
	if err != nil {
		return err
	}
	*words = v
	return nil
}

// Close says goodbye and drops the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.seq++
	_ = frame.Write(c.conn, frame.New(frame.TypeBye, c.seq, nil), c.cfg.Limits)
	c.log.Info().Msg("link_down")
	return c.conn.Close()
}

func (c *Client) Session() string              { return c.session }
func (c *Client) Topology() transport.Topology { return c.topo }
