package client

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"tuplespace/codec"
	"tuplespace/config"
	"tuplespace/message"
	"tuplespace/middleware"
	"tuplespace/registry"
	"tuplespace/server"
	"tuplespace/space"
	"tuplespace/tuple"
)

func startServer(t *testing.T, setup func(*server.Server), opts ...server.Option) string {
	t.Helper()
	return serve(t, space.NewRepository("jobs"), setup, opts...)
}

func serve(t testing.TB, repo *space.Repository, setup func(*server.Server), opts ...server.Option) string {
	t.Helper()
	opts = append([]server.Option{server.WithLogger(zaptest.NewLogger(t))}, opts...)
	svr := server.NewServer(repo, opts...)
	if setup != nil {
		setup(svr)
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go svr.ServeListener(l)
	<-svr.Ready()
	t.Cleanup(func() { svr.Shutdown(time.Second) })
	return l.Addr().String()
}

func newClient(t *testing.T, space string, addrs []string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	c, err := NewClient(space, addrs, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientOperations(t *testing.T) {
	addr := startServer(t, nil)
	ctx := context.Background()

	for _, ct := range []codec.CodecType{codec.CodecTypeJSON, codec.CodecTypeBinary} {
		c := newClient(t, "jobs", []string{addr}, WithCodec(ct))

		for _, tp := range []tuple.Tuple{
			tuple.MustOf("task", int64(1)),
			tuple.MustOf("task", int64(2)),
			tuple.MustOf("done", 3.5),
		} {
			if err := c.Put(ctx, tp); err != nil {
				t.Fatalf("%s: put %s: %v", ct, tp, err)
			}
		}

		tasks := tuple.MustTemplateOf("task", tuple.KindInt)
		all, err := c.QueryAll(ctx, tasks)
		if err != nil || len(all) != 2 {
			t.Fatalf("%s: query all: %v %v", ct, all, err)
		}

		got, err := c.Query(ctx, tasks)
		if err != nil || !got.Equal(tuple.MustOf("task", int64(1))) {
			t.Fatalf("%s: query: %s %v", ct, got, err)
		}

		got, ok, err := c.GetP(ctx, tasks)
		if err != nil || !ok || !got.Equal(tuple.MustOf("task", int64(1))) {
			t.Fatalf("%s: getp: %s %v %v", ct, got, ok, err)
		}

		got, err = c.Get(ctx, tasks)
		if err != nil || !got.Equal(tuple.MustOf("task", int64(2))) {
			t.Fatalf("%s: get: %s %v", ct, got, err)
		}

		if _, ok, err := c.QueryP(ctx, tasks); ok || err != nil {
			t.Fatalf("%s: queryp after removing every task: %v %v", ct, ok, err)
		}

		removed, err := c.GetAll(ctx, tuple.MustTemplateOf(tuple.KindString, tuple.KindFloat))
		if err != nil || len(removed) != 1 {
			t.Fatalf("%s: get all: %v %v", ct, removed, err)
		}
		if removed, err := c.GetAll(ctx, tasks); err != nil || removed == nil || len(removed) != 0 {
			t.Fatalf("%s: get all on nothing must be empty, got %v %v", ct, removed, err)
		}
	}
}

func TestClientBlockingGetAcrossClients(t *testing.T) {
	addr := startServer(t, nil)
	reader := newClient(t, "jobs", []string{addr})
	writer := newClient(t, "jobs", []string{addr}, WithCodec(codec.CodecTypeBinary))

	result := make(chan tuple.Tuple, 1)
	errs := make(chan error, 1)
	go func() {
		got, err := reader.Get(context.Background(), tuple.MustTemplateOf("result", tuple.KindInt))
		if err != nil {
			errs <- err
			return
		}
		result <- got
	}()

	time.Sleep(50 * time.Millisecond)
	if err := writer.Put(context.Background(), tuple.MustOf("result", int64(42))); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-result:
		if !got.Equal(tuple.MustOf("result", int64(42))) {
			t.Fatalf("unexpected tuple %s", got)
		}
	case err := <-errs:
		t.Fatal(err)
	case <-time.After(3 * time.Second):
		t.Fatal("blocked get never returned")
	}
}

func TestClientBlockingGetContext(t *testing.T) {
	addr := startServer(t, nil)
	c := newClient(t, "jobs", []string{addr})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Get(ctx, tuple.MustTemplateOf("never"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect deadline exceeded, got %v", err)
	}
}

func TestClientStatusErrors(t *testing.T) {
	addr := startServer(t, nil)
	c := newClient(t, "missing", []string{addr})
	ctx := context.Background()

	var se *StatusError
	if err := c.Put(ctx, tuple.MustOf(1)); !errors.As(err, &se) || se.Code != message.Code400 {
		t.Fatalf("put to unknown space: expect 400, got %v", err)
	}
	if _, _, err := c.QueryP(ctx, tuple.MustTemplateOf(1)); !errors.As(err, &se) || se.Code != message.Code400 {
		t.Fatalf("query unknown space: expect 400, got %v", err)
	}
	if IsUnavailable(se) {
		t.Fatal("a 400 is not unavailable")
	}
	if se.Error() != "tuplespace: 400 Bad Request" {
		t.Fatalf("unexpected message %q", se.Error())
	}
}

// flaky answers the first n requests with 503 without running them.
func flaky(n int32, attempts *atomic.Int32) middleware.Middleware {
	return func(next middleware.HandlerFunc) middleware.HandlerFunc {
		return func(ctx context.Context, req message.ClientMessage) message.ServerMessage {
			if attempts.Add(1) <= n {
				return message.Unavailable(req.ClientSession())
			}
			return next(ctx, req)
		}
	}
}

func TestClientRetriesUnavailable(t *testing.T) {
	var attempts atomic.Int32
	addr := startServer(t, func(s *server.Server) { s.Use(flaky(2, &attempts)) })

	c := newClient(t, "jobs", []string{addr}, WithRetry(3, time.Millisecond))
	if err := c.Put(context.Background(), tuple.MustOf("x")); err != nil {
		t.Fatalf("expect success after retries, got %v", err)
	}
	if attempts.Load() != 3 {
		t.Fatalf("expect 3 attempts, got %d", attempts.Load())
	}
}

func TestClientGivesUpOnUnavailable(t *testing.T) {
	var attempts atomic.Int32
	addr := startServer(t, func(s *server.Server) { s.Use(flaky(10, &attempts)) })

	c := newClient(t, "jobs", []string{addr}, WithRetry(1, time.Millisecond))
	err := c.Put(context.Background(), tuple.MustOf("x"))
	if !IsUnavailable(err) {
		t.Fatalf("expect 503, got %v", err)
	}
	if attempts.Load() != 2 {
		t.Fatalf("expect 2 attempts, got %d", attempts.Load())
	}
}

func TestClientDialFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	c := newClient(t, "jobs", []string{addr}, WithDialTimeout(time.Second), WithRetry(1, time.Millisecond))
	err = c.Put(context.Background(), tuple.MustOf("x"))
	var se *StatusError
	if err == nil || errors.As(err, &se) {
		t.Fatalf("expect a dial error, got %v", err)
	}
}

func TestClientDiscoversThroughRegistry(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	addr := startServer(t, nil)
	reg.Register(context.Background(), "jobs", registry.Instance{Addr: addr, Weight: 1}, 10)

	c := newClient(t, "jobs", nil, WithRegistry(reg))
	if err := c.Put(context.Background(), tuple.MustOf("via", "registry")); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.QueryP(context.Background(), tuple.MustTemplateOf("via", tuple.KindString)); err != nil || !ok {
		t.Fatalf("query: %v %v", ok, err)
	}

	other := newClient(t, "elsewhere", nil, WithRegistry(reg))
	if err := other.Put(context.Background(), tuple.MustOf(1)); err == nil {
		t.Fatal("expect an error for a space nobody hosts")
	}
}

func TestNewClientArguments(t *testing.T) {
	if _, err := NewClient("", []string{"127.0.0.1:1"}); err == nil {
		t.Fatal("expect an error for an empty space")
	}
	if _, err := NewClient("jobs", nil); err == nil {
		t.Fatal("expect an error without servers or registry")
	}

	a := newClient(t, "jobs", []string{"127.0.0.1:1"})
	b := newClient(t, "jobs", []string{"127.0.0.1:1"})
	if a.Session() == "" || a.Session() == b.Session() {
		t.Fatalf("expect distinct generated sessions, got %q and %q", a.Session(), b.Session())
	}
	if s := newClient(t, "jobs", []string{"127.0.0.1:1"}, WithSession("fixed")).Session(); s != "fixed" {
		t.Fatalf("expect the given session, got %q", s)
	}
}

func TestFromConfig(t *testing.T) {
	addr := startServer(t, nil)
	cfg := config.DefaultClient()
	cfg.Servers = []string{addr}
	cfg.Space = "jobs"
	cfg.Codec = codec.CodecTypeBinary
	cfg.Balancer = config.BalancerRoundRobin

	c, err := FromConfig(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.Put(context.Background(), tuple.MustOf("configured")); err != nil {
		t.Fatal(err)
	}

	cfg.Balancer = "fastest"
	if _, err := FromConfig(cfg, nil); err == nil {
		t.Fatal("expect an error for an unknown balancer")
	}
}
