// Package pushclient consumes the yapp realtime stream and hands decoded
// events to the feed engine.
package pushclient

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/yapp/internal/feed"
	"github.com/MarcoPoloResearchLab/yapp/internal/wire"
)

const (
	defaultBaseDelay        = time.Second
	defaultMaxDelay         = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	accessTokenParam        = "access_token"
)

var (
	errMissingURL     = errors.New("pushclient: stream url is required")
	errMissingHandler = errors.New("pushclient: handler is required")
	// ErrMaxAttempts is returned by Run once the reconnect budget is spent.
	ErrMaxAttempts = errors.New("pushclient: max reconnect attempts reached")
)

// Handler receives decoded events in arrival order.
type Handler func(feed.Event)

// Config configures a Client.
type Config struct {
	URL              string
	Credentials      func() string
	Handler          Handler
	OnConnect        func()
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	MaxAttempts      int
	HandshakeTimeout time.Duration
	Logger           *zap.Logger
}

// Stats are connection counters.
type Stats struct {
	Connects         int64
	EventsReceived   int64
	EventsMalformed  int64
	ReconnectRetries int64
}

// Client maintains one websocket subscription, reconnecting with
// exponential backoff and jitter until its context ends.
type Client struct {
	url         string
	credentials func() string
	handler     Handler
	onConnect   func()
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	dialer      *websocket.Dialer
	logger      *zap.Logger

	connected atomic.Bool
	connects  atomic.Int64
	received  atomic.Int64
	malformed atomic.Int64
	retries   atomic.Int64

	randMu sync.Mutex
	random *rand.Rand
}

// New validates cfg and builds a Client. MaxAttempts below zero or equal to
// zero means unlimited retries.
func New(cfg Config) (*Client, error) {
	streamURL := strings.TrimSpace(cfg.URL)
	if streamURL == "" {
		return nil, errMissingURL
	}
	if _, err := url.Parse(streamURL); err != nil {
		return nil, err
	}
	if cfg.Handler == nil {
		return nil, errMissingHandler
	}
	credentials := cfg.Credentials
	if credentials == nil {
		credentials = func() string { return "" }
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	maxDelay := cfg.MaxDelay
	if maxDelay < baseDelay {
		maxDelay = defaultMaxDelay
		if maxDelay < baseDelay {
			maxDelay = baseDelay
		}
	}
	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = defaultHandshakeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:         streamURL,
		credentials: credentials,
		handler:     cfg.Handler,
		onConnect:   cfg.OnConnect,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		maxAttempts: cfg.MaxAttempts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshake,
		},
		logger: logger,
		random: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Connected reports whether a stream is currently open.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Stats returns a snapshot of the counters.
func (c *Client) Stats() Stats {
	return Stats{
		Connects:         c.connects.Load(),
		EventsReceived:   c.received.Load(),
		EventsMalformed:  c.malformed.Load(),
		ReconnectRetries: c.retries.Load(),
	}
}

// Run blocks until ctx ends or the reconnect budget is exhausted.
func (c *Client) Run(ctx context.Context) error {
	delay := c.baseDelay
	failures := 0
	for {
		conn, err := c.dial(ctx)
		if err == nil {
			failures = 0
			delay = c.baseDelay
			c.serve(ctx, conn)
		} else {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			c.logger.Warn("stream dial failed",
				zap.String("operation", "pushclient.dial"),
				zap.Int("attempt", failures),
				zap.Error(err))
			if c.maxAttempts > 0 && failures >= c.maxAttempts {
				return ErrMaxAttempts
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := delay + c.jitter(delay)
		c.retries.Add(1)
		c.logger.Debug("stream reconnecting", zap.Duration("wait", wait))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if err != nil {
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	target, err := url.Parse(c.url)
	if err != nil {
		return nil, err
	}
	if token := strings.TrimSpace(c.credentials()); token != "" {
		query := target.Query()
		query.Set(accessTokenParam, token)
		target.RawQuery = query.Encode()
	}
	conn, _, err := c.dialer.DialContext(ctx, target.String(), nil)
	return conn, err
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.connected.Store(true)
	c.connects.Add(1)
	defer c.connected.Store(false)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	c.logger.Info("stream connected", zap.String("url", c.url))
	if c.onConnect != nil {
		c.onConnect()
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("stream read failed",
					zap.String("operation", "pushclient.read"),
					zap.Error(err))
			}
			return
		}
		event, err := wire.DecodeEvent(frame)
		if err != nil {
			c.malformed.Add(1)
			c.logger.Warn("stream frame discarded",
				zap.String("operation", "pushclient.decode"),
				zap.Error(err))
			continue
		}
		c.received.Add(1)
		c.handler(event)
	}
}

func (c *Client) jitter(delay time.Duration) time.Duration {
	span := int64(delay / 2)
	if span <= 0 {
		return 0
	}
	c.randMu.Lock()
	defer c.randMu.Unlock()
	return time.Duration(c.random.Int63n(span))
}
