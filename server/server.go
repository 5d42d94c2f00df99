// Package server implements the tuple-space server: frame reading, request dispatch
// against a space.Repository, a middleware chain, and graceful shutdown.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → for each request: go handleRequest (parallel processing)
//	    → Codec.Decode → Middleware Chain → dispatch (space operation) → Codec.Encode → write response
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tuplespace/codec"
	"tuplespace/message"
	"tuplespace/middleware"
	"tuplespace/protocol"
	"tuplespace/registry"
	"tuplespace/space"
	"tuplespace/tuple"
)

// Server answers ClientMessages against the spaces of one repository.
type Server struct {
	repo        *space.Repository
	logger      *zap.Logger
	maxBodySize uint32

	listener    net.Listener
	ready       chan struct{}
	wg          sync.WaitGroup          // Tracks in-flight requests for graceful shutdown
	shutdown    atomic.Bool             // Set during shutdown to suppress Accept errors
	middlewares []middleware.Middleware // Applied in order, first is outermost
	handler     middleware.HandlerFunc  // middleware(middleware(...(dispatch)))

	// Cancelled by Shutdown so blocked reads give up and answer 503.
	baseCtx context.Context
	cancel  context.CancelFunc

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	registry      registry.Registry // nil if not using discovery
	advertiseAddr string            // Address registered for every space, e.g. "10.0.0.5:7400"
	leaseTTL      int64
	codecName     string // codec advertised to clients
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry publishes every space of the repository under advertiseAddr while the
// server runs. ttl is in seconds.
func WithRegistry(reg registry.Registry, advertiseAddr string, ttl int64) Option {
	return func(s *Server) {
		s.registry = reg
		s.advertiseAddr = advertiseAddr
		s.leaseTTL = ttl
	}
}

func WithMaxBodySize(n uint32) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodySize = n
		}
	}
}

// WithPreferredCodec sets the codec advertised in registry entries. Requests are always
// answered with the codec they were sent with.
func WithPreferredCodec(t codec.CodecType) Option {
	return func(s *Server) { s.codecName = t.String() }
}

func NewServer(repo *space.Repository, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		repo:        repo,
		logger:      zap.NewNop(),
		maxBodySize: protocol.DefaultMaxBodySize,
		ready:       make(chan struct{}),
		baseCtx:     ctx,
		cancel:      cancel,
		conns:       make(map[net.Conn]struct{}),
		leaseTTL:    10,
		codecName:   codec.CodecTypeJSON.String(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Use registers a middleware. Middlewares are applied in the order they are added and
// must be registered before Serve.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Serve listens on address and serves until Shutdown.
func (s *Server) Serve(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return s.ServeListener(listener)
}

// ServeListener serves connections accepted from l until Shutdown. It registers the
// repository's spaces first when a registry is configured.
func (s *Server) ServeListener(l net.Listener) error {
	s.listener = l

	// Build the middleware chain once at startup (not per-request)
	//   Chain(A, B, C)(handler) → A(B(C(handler)))
	s.handler = middleware.Chain(s.middlewares...)(s.dispatch)

	if s.registry != nil {
		if err := s.registerSpaces(); err != nil {
			l.Close()
			return err
		}
	}
	close(s.ready)
	s.logger.Info("serving", zap.Stringer("addr", l.Addr()), zap.Strings("spaces", s.repo.Names()))

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		s.trackConn(conn, true)
		go s.handleConn(conn)
	}
}

// Ready is closed once the server accepts connections.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the listener address, nil before Serve.
func (s *Server) Addr() net.Addr {
	select {
	case <-s.ready:
		return s.listener.Addr()
	default:
		return nil
	}
}

func (s *Server) registerSpaces() error {
	ctx, cancel := context.WithTimeout(s.baseCtx, 10*time.Second)
	defer cancel()
	for _, name := range s.repo.Names() {
		inst := registry.Instance{Addr: s.advertiseAddr, Weight: 1, Codec: s.codecName}
		if err := s.registry.Register(ctx, name, inst, s.leaseTTL); err != nil {
			return fmt.Errorf("register space %s: %w", name, err)
		}
		s.logger.Info("space registered", zap.String("space", name), zap.String("addr", s.advertiseAddr))
	}
	return nil
}

func (s *Server) trackConn(conn net.Conn, add bool) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// handleConn processes a single TCP connection.
// Reads are sequential (frame boundaries), each request runs in its own goroutine, and
// a per-connection write mutex keeps response frames from interleaving.
// Requests run on a context that ends with the connection, so a blocked read whose
// client went away stops waiting instead of consuming a tuple nobody will receive.
func (s *Server) handleConn(conn net.Conn) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	defer func() {
		cancel()
		s.trackConn(conn, false)
		conn.Close()
	}()
	writeMu := &sync.Mutex{}
	for {
		header, body, err := protocol.DecodeWithLimit(conn, s.maxBodySize)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !s.shutdown.Load() {
				s.logger.Debug("connection closed", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
			}
			return
		}

		switch header.MsgType {
		case protocol.MsgTypeHeartbeat:
			continue
		case protocol.MsgTypeResponse:
			s.logger.Warn("unexpected response frame from client", zap.Stringer("remote", conn.RemoteAddr()))
			continue
		}

		if !s.beginRequest() {
			s.decline(header, body, conn, writeMu)
			continue
		}
		go s.handleRequest(ctx, header, body, conn, writeMu)
	}
}

// beginRequest counts a request as in flight unless shutdown has started.
func (s *Server) beginRequest() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.wg.Add(1)
	return true
}

// handleRequest processes a single request: decode → middleware → dispatch → encode → write.
func (s *Server) handleRequest(ctx context.Context, header *protocol.Header, body []byte, conn net.Conn, writeMu *sync.Mutex) {
	defer s.wg.Done()

	c := codec.GetCodec(codec.CodecType(header.CodecType))
	var req message.ClientMessage
	var resp message.ServerMessage
	if err := c.Decode(body, &req); err != nil {
		// Nothing identifies the client, so the answer carries no session.
		s.logger.Warn("undecodable request", zap.Uint32("seq", header.Seq), zap.Stringer("codec", c.Type()), zap.Error(err))
		resp = message.InternalError()
	} else {
		resp = s.handler(ctx, req)
	}

	if err := resp.CheckInvariants(); err != nil {
		s.logger.Warn("response breaks envelope invariants", zap.Stringer("response", resp), zap.Error(err))
	}
	s.reply(header, c, resp, conn, writeMu)
}

// decline answers a request that arrived after shutdown started with 503, without running it.
func (s *Server) decline(header *protocol.Header, body []byte, conn net.Conn, writeMu *sync.Mutex) {
	c := codec.GetCodec(codec.CodecType(header.CodecType))
	var req message.ClientMessage
	resp := message.InternalError()
	if err := c.Decode(body, &req); err == nil {
		resp = message.Unavailable(req.ClientSession())
	}
	s.logger.Debug("request declined during shutdown", zap.Uint32("seq", header.Seq), zap.Stringer("remote", conn.RemoteAddr()))
	s.reply(header, c, resp, conn, writeMu)
}

// reply encodes resp with the request's codec and writes it under the request's seq.
func (s *Server) reply(header *protocol.Header, c codec.Codec, resp message.ServerMessage, conn net.Conn, writeMu *sync.Mutex) {
	result, err := c.Encode(resp)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Uint32("seq", header.Seq), zap.Error(err))
		result, err = c.Encode(message.InternalError())
		if err != nil {
			return
		}
	}

	// Same seq as the request: this is how the client matches responses.
	replyHeader := protocol.Header{
		CodecType: header.CodecType,
		MsgType:   protocol.MsgTypeResponse,
		Seq:       header.Seq,
	}
	writeMu.Lock()
	err = protocol.Encode(conn, &replyHeader, result)
	writeMu.Unlock()
	if err != nil {
		s.logger.Debug("failed to write response", zap.Uint32("seq", header.Seq), zap.Error(err))
	}
}

// Shutdown performs graceful shutdown:
//  1. Deregister all spaces (clients stop routing to this server)
//  2. Set shutdown flag and close the listener
//  3. Cancel blocked reads so they answer 503
//  4. Wait for in-flight requests to finish (with timeout), then close connections
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		for _, name := range s.repo.Names() {
			if err := s.registry.Deregister(ctx, name, s.advertiseAddr); err != nil {
				s.logger.Warn("deregister failed", zap.String("space", name), zap.Error(err))
			}
		}
		cancel()
	}

	// Set the flag BEFORE closing the listener so the Accept error reads as intentional.
	s.connMu.Lock()
	s.shutdown.Store(true)
	s.connMu.Unlock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("timeout waiting for ongoing requests to finish")
	}

	s.connMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connMu.Unlock()
	return err
}

// dispatch runs one request against its target space. It is the innermost handler of
// the middleware chain.
func (s *Server) dispatch(ctx context.Context, req message.ClientMessage) message.ServerMessage {
	session := req.ClientSession()
	isPut := req.MessageType() == message.PutRequest

	if err := req.Validate(); err != nil {
		if isPut {
			return message.FailedPut(session)
		}
		return message.BadRequest(session)
	}

	sp, ok := s.repo.Space(req.Target())
	if !ok {
		if isPut {
			return message.FailedPut(session)
		}
		return message.BadRequest(session)
	}

	if isPut {
		t, _ := req.Tuple()
		sp.Put(t)
		return message.SuccessfulPut(session)
	}

	tmpl, _ := req.Template()
	remove := req.MessageType() == message.GetRequest

	switch {
	case req.All():
		if remove {
			return message.GetResultTuples(sp.GetAll(tmpl), session)
		}
		return message.GetResultTuples(sp.QueryAll(tmpl), session)

	case req.Blocking():
		read := sp.Query
		if remove {
			read = sp.Get
		}
		t, err := read(ctx, tmpl)
		if err != nil {
			return message.Unavailable(session)
		}
		return message.GetResultTuples([]tuple.Tuple{t}, session)

	default:
		read := sp.QueryP
		if remove {
			read = sp.GetP
		}
		if t, found := read(tmpl); found {
			return message.GetResultTuples([]tuple.Tuple{t}, session)
		}
		return message.GetResultTuples([]tuple.Tuple{}, session)
	}
}
