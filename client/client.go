// Package client is the application-facing API of a tuple space.
//
// A Client is bound to one space and one session. Every call picks a server hosting the
// space (static addresses or registry discovery, then a loadbalance.Balancer keyed by the
// session), sends the request over a multiplexed transport, and maps failure responses to
// *StatusError. Requests answered with 503 were not executed and are retried.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tuplespace/codec"
	"tuplespace/config"
	"tuplespace/loadbalance"
	"tuplespace/logging"
	"tuplespace/message"
	"tuplespace/middleware"
	"tuplespace/registry"
	"tuplespace/transport"
	"tuplespace/tuple"
)

// StatusError is a failure response: the server answered, and the answer was not OK.
type StatusError struct {
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tuplespace: %s %s", e.Code, e.Message)
}

// IsUnavailable reports whether err is a 503 the server kept answering through every retry.
func IsUnavailable(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == message.Code503
}

var ErrUnexpectedResponse = errors.New("client: unexpected response")

type Client struct {
	space   string
	session string
	logger  *zap.Logger

	registry registry.Registry // nil when addresses are static
	owned    io.Closer         // registry created by FromConfig, closed with the client
	static   []registry.Instance
	balancer loadbalance.Balancer

	codecType   codec.CodecType
	dialTimeout time.Duration
	heartbeat   time.Duration
	pool        *transport.Pool

	requestTimeout time.Duration // applies to calls that never block
	maxRetries     int
	retryBackoff   time.Duration
	middlewares    []middleware.Middleware

	mu        sync.RWMutex
	instances []registry.Instance // latest list from the registry watch
	cancel    context.CancelFunc
}

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegistry discovers the servers of the space instead of using static addresses.
func WithRegistry(reg registry.Registry) Option {
	return func(c *Client) { c.registry = reg }
}

func WithBalancer(b loadbalance.Balancer) Option {
	return func(c *Client) { c.balancer = b }
}

// WithSession replaces the generated session id.
func WithSession(session string) Option {
	return func(c *Client) { c.session = session }
}

func WithCodec(t codec.CodecType) Option {
	return func(c *Client) { c.codecType = t }
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// WithHeartbeat sets the heartbeat interval of every connection, 0 disables heartbeats.
func WithHeartbeat(d time.Duration) Option {
	return func(c *Client) { c.heartbeat = d }
}

// WithRequestTimeout bounds the non-blocking calls. Blocking Get and Query wait as long
// as their context allows.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// WithRetry retries 503 responses up to maxRetries times, doubling backoff each time.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryBackoff = backoff
	}
}

// Use adds a middleware around every round trip.
func Use(mw middleware.Middleware) Option {
	return func(c *Client) { c.middlewares = append(c.middlewares, mw) }
}

// NewClient creates a client for space. servers lists static addresses and is ignored
// when WithRegistry is given.
func NewClient(space string, servers []string, opts ...Option) (*Client, error) {
	if space == "" {
		return nil, fmt.Errorf("client: empty space name")
	}
	c := &Client{
		space:       space,
		session:     uuid.NewString(),
		logger:      zap.NewNop(),
		balancer:    loadbalance.NewConsistentHashBalancer(),
		codecType:   codec.CodecTypeJSON,
		dialTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		if len(servers) == 0 {
			return nil, fmt.Errorf("client: no servers and no registry")
		}
		for _, addr := range servers {
			c.static = append(c.static, registry.Instance{Addr: addr, Weight: 1})
		}
	}
	c.logger = c.logger.With(zap.String("space", space), zap.String("session", c.session))
	if c.maxRetries > 0 {
		// Outermost, so every retry runs the other middlewares again.
		c.middlewares = append([]middleware.Middleware{
			middleware.RetryMiddleware(c.maxRetries, c.retryBackoff, c.logger),
		}, c.middlewares...)
	}
	c.pool = transport.NewPool(c.dialTimeout, c.codecType, c.heartbeat, c.logger)

	if c.registry != nil {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		go c.watch(ctx)
	}
	return c, nil
}

// FromConfig builds a client from a loaded configuration. An etcd registry is created
// when endpoints are configured and closed together with the client. extra options are
// applied last.
func FromConfig(cfg config.Client, logger *zap.Logger, extra ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logging.OrNop(logger)
	bal, err := loadbalance.New(cfg.Balancer)
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithLogger(logger),
		WithBalancer(bal),
		WithCodec(cfg.Codec),
		WithDialTimeout(cfg.DialTimeout),
		WithHeartbeat(cfg.HeartbeatInterval),
		WithRequestTimeout(cfg.RequestTimeout),
		WithRetry(cfg.MaxRetries, cfg.RetryBackoff),
	}

	var etcd *registry.EtcdRegistry
	if len(cfg.EtcdEndpoints) > 0 {
		etcd, err = registry.NewEtcdRegistry(cfg.EtcdEndpoints, cfg.DialTimeout, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithRegistry(etcd))
	}
	opts = append(opts, extra...)

	c, err := NewClient(cfg.Space, cfg.Servers, opts...)
	if err != nil {
		if etcd != nil {
			etcd.Close()
		}
		return nil, err
	}
	if etcd != nil {
		c.owned = etcd
	}
	return c, nil
}

// Session returns the session id carried by every request of this client.
func (c *Client) Session() string { return c.session }

// Space returns the name of the space the client targets.
func (c *Client) Space() string { return c.space }

// Put stores t in the space.
func (c *Client) Put(ctx context.Context, t tuple.Tuple) error {
	_, err := c.do(ctx, message.NewPutRequest(c.space, t, c.session))
	return err
}

// Get removes and returns a tuple matching tmpl, waiting until one exists or ctx ends.
func (c *Client) Get(ctx context.Context, tmpl tuple.Template) (tuple.Tuple, error) {
	return c.one(ctx, message.NewGetRequest(c.space, tmpl, true, false, c.session))
}

// GetP removes a matching tuple if one exists right now.
func (c *Client) GetP(ctx context.Context, tmpl tuple.Template) (tuple.Tuple, bool, error) {
	return c.maybe(ctx, message.NewGetRequest(c.space, tmpl, false, false, c.session))
}

// GetAll removes and returns every matching tuple.
func (c *Client) GetAll(ctx context.Context, tmpl tuple.Template) ([]tuple.Tuple, error) {
	return c.many(ctx, message.NewGetRequest(c.space, tmpl, false, true, c.session))
}

// Query returns a tuple matching tmpl without removing it, waiting until one exists or
// ctx ends.
func (c *Client) Query(ctx context.Context, tmpl tuple.Template) (tuple.Tuple, error) {
	return c.one(ctx, message.NewQueryRequest(c.space, tmpl, true, false, c.session))
}

func (c *Client) QueryP(ctx context.Context, tmpl tuple.Template) (tuple.Tuple, bool, error) {
	return c.maybe(ctx, message.NewQueryRequest(c.space, tmpl, false, false, c.session))
}

func (c *Client) QueryAll(ctx context.Context, tmpl tuple.Template) ([]tuple.Tuple, error) {
	return c.many(ctx, message.NewQueryRequest(c.space, tmpl, false, true, c.session))
}

func (c *Client) one(ctx context.Context, req message.ClientMessage) (tuple.Tuple, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return tuple.Tuple{}, err
	}
	ts, _ := resp.Tuples()
	if len(ts) != 1 {
		return tuple.Tuple{}, fmt.Errorf("%w: blocking read returned %d tuples", ErrUnexpectedResponse, len(ts))
	}
	return ts[0], nil
}

func (c *Client) maybe(ctx context.Context, req message.ClientMessage) (tuple.Tuple, bool, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return tuple.Tuple{}, false, err
	}
	ts, _ := resp.Tuples()
	switch len(ts) {
	case 0:
		return tuple.Tuple{}, false, nil
	case 1:
		return ts[0], true, nil
	default:
		return tuple.Tuple{}, false, fmt.Errorf("%w: single read returned %d tuples", ErrUnexpectedResponse, len(ts))
	}
}

func (c *Client) many(ctx context.Context, req message.ClientMessage) ([]tuple.Tuple, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	ts, _ := resp.Tuples()
	if ts == nil {
		ts = []tuple.Tuple{}
	}
	return ts, nil
}

// do runs req through the client middlewares around a single round trip and turns the
// outcome into an error: the transport error of the last attempt, or a *StatusError for
// a failure response.
func (c *Client) do(ctx context.Context, req message.ClientMessage) (message.ServerMessage, error) {
	if c.requestTimeout > 0 && !req.Blocking() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	var lastErr error
	handler := middleware.Chain(c.middlewares...)(func(ctx context.Context, req message.ClientMessage) message.ServerMessage {
		resp, err := c.roundTrip(ctx, req)
		lastErr = err
		return resp
	})
	resp := handler(ctx, req)

	if lastErr != nil {
		return resp, fmt.Errorf("%s %s: %w", req.MessageType(), c.space, lastErr)
	}
	if !resp.IsSuccessful() {
		return resp, &StatusError{Code: resp.StatusCode(), Message: resp.StatusMessage()}
	}
	return resp, nil
}

// roundTrip sends req to one server. Failures before the request reached a server come
// back as Unavailable so they are retried; a connection lost after sending comes back as
// InternalError because the server may have executed the request.
func (c *Client) roundTrip(ctx context.Context, req message.ClientMessage) (message.ServerMessage, error) {
	instances, err := c.resolve(ctx)
	if err != nil {
		return message.Unavailable(c.session), err
	}
	inst, err := c.balancer.Pick(c.session, instances)
	if err != nil {
		return message.Unavailable(c.session), err
	}

	t, err := c.pool.Get(inst.Addr)
	if err != nil {
		c.logger.Debug("dial failed", zap.String("addr", inst.Addr), zap.Error(err))
		return message.Unavailable(c.session), err
	}

	resp, err := t.Call(ctx, req)
	switch {
	case err == nil:
		return resp, nil
	case ctx.Err() != nil:
		return message.Unavailable(c.session), err
	default:
		c.logger.Warn("connection lost", zap.String("addr", inst.Addr), zap.Error(err))
		c.pool.Discard(inst.Addr, t)
		return message.InternalError(), err
	}
}

// resolve returns the servers hosting the space.
func (c *Client) resolve(ctx context.Context) ([]registry.Instance, error) {
	if c.registry == nil {
		return c.static, nil
	}
	c.mu.RLock()
	instances := c.instances
	c.mu.RUnlock()
	if len(instances) > 0 {
		return instances, nil
	}

	instances, err := c.registry.Discover(ctx, c.space)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("space %s: %w", c.space, loadbalance.ErrNoInstances)
	}
	c.mu.Lock()
	c.instances = instances
	c.mu.Unlock()
	return instances, nil
}

// watch keeps the cached instance list current until the client is closed.
func (c *Client) watch(ctx context.Context) {
	for instances := range c.registry.Watch(ctx, c.space) {
		c.logger.Debug("instances changed", zap.Int("count", len(instances)))
		c.mu.Lock()
		c.instances = instances
		c.mu.Unlock()
	}
}

// Close stops discovery and closes every connection. Calls still waiting fail.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.pool.Close()
	if c.owned != nil {
		if cerr := c.owned.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
