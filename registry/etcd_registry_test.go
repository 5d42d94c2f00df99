package registry

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// etcdEndpoints returns the endpoints of a running etcd, skipping the test when
// TSPACE_ETCD_ENDPOINTS is unset.
func etcdEndpoints(t *testing.T) []string {
	t.Helper()
	raw := os.Getenv("TSPACE_ETCD_ENDPOINTS")
	if raw == "" {
		t.Skip("TSPACE_ETCD_ENDPOINTS not set")
	}
	return strings.Split(raw, ",")
}

func TestEtcdRegisterAndDiscover(t *testing.T) {
	reg, err := NewEtcdRegistry(etcdEndpoints(t), 5*time.Second, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	space := "test-" + strings.ReplaceAll(t.Name(), "/", "-")
	inst1 := Instance{Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0"}
	inst2 := Instance{Addr: "127.0.0.1:8002", Weight: 5, Version: "1.0", Codec: "binary"}

	if err := reg.Register(ctx, space, inst1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(ctx, space, inst2, 10); err != nil {
		t.Fatal(err)
	}

	instances, err := reg.Discover(ctx, space)
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expect 2 instances, got %d", len(instances))
	}

	if err := reg.Deregister(ctx, space, inst1.Addr); err != nil {
		t.Fatal(err)
	}
	instances, err = reg.Discover(ctx, space)
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 || instances[0] != inst2 {
		t.Fatalf("expect only %+v after deregister, got %+v", inst2, instances)
	}

	reg.Deregister(ctx, space, inst2.Addr)
}

func TestEtcdWatch(t *testing.T) {
	reg, err := NewEtcdRegistry(etcdEndpoints(t), 5*time.Second, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	space := "watch-" + strings.ReplaceAll(t.Name(), "/", "-")
	updates := reg.Watch(ctx, space)
	time.Sleep(100 * time.Millisecond)

	if err := reg.Register(ctx, space, Instance{Addr: "127.0.0.1:8101", Weight: 1}, 10); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-updates:
		if len(got) != 1 {
			t.Fatalf("expect 1 instance, got %+v", got)
		}
	case <-ctx.Done():
		t.Fatal("no watch update")
	}
	reg.Deregister(ctx, space, "127.0.0.1:8101")
}
