package transport

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"tuplespace/codec"
	"tuplespace/logging"
)

// Pool keeps one multiplexed ClientTransport per server address. Transports are dialed
// lazily and replaced once their connection breaks.
type Pool struct {
	mu         sync.Mutex
	transports map[string]*ClientTransport
	closed     bool

	dial      func(addr string) (net.Conn, error) // Connection factory function
	codec     codec.CodecType
	heartbeat time.Duration
	logger    *zap.Logger
}

func NewPool(dialTimeout time.Duration, codecType codec.CodecType, heartbeat time.Duration, logger *zap.Logger) *Pool {
	return &Pool{
		transports: make(map[string]*ClientTransport),
		dial: func(addr string) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, dialTimeout)
		},
		codec:     codecType,
		heartbeat: heartbeat,
		logger:    logging.OrNop(logger),
	}
}

// Get returns the live transport for addr, dialing a new one when there is none.
func (p *Pool) Get(addr string) (*ClientTransport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	if t, ok := p.transports[addr]; ok {
		if t.Err() == nil {
			return t, nil
		}
		delete(p.transports, addr)
	}

	conn, err := p.dial(addr)
	if err != nil {
		return nil, err
	}
	t := NewClientTransport(conn, p.codec, p.heartbeat, p.logger.With(zap.String("addr", addr)))
	p.transports[addr] = t
	p.logger.Debug("connected", zap.String("addr", addr))
	return t, nil
}

// Discard closes t and forgets it if it is still the transport for addr.
func (p *Pool) Discard(addr string, t *ClientTransport) {
	p.mu.Lock()
	if cur, ok := p.transports[addr]; ok && cur == t {
		delete(p.transports, addr)
	}
	p.mu.Unlock()
	t.Close()
}

// Close shuts down the pool and closes all connections.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var first error
	for addr, t := range p.transports {
		if err := t.Close(); err != nil && first == nil {
			first = err
		}
		delete(p.transports, addr)
	}
	return first
}
