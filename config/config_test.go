package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tuplespace/codec"
)

func TestDefaultsValidate(t *testing.T) {
	if err := DefaultServer().Validate(); err != nil {
		t.Fatalf("default server config invalid: %v", err)
	}
	if err := DefaultClient().Validate(); err != nil {
		t.Fatalf("default client config invalid: %v", err)
	}
}

func TestLoadServerOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spaced.toml")
	doc := `
listen = "0.0.0.0:7500"
advertise = "10.0.0.5:7500"
codec = "binary"
spaces = ["jobs", " results ", ""]
etcd_endpoints = ["127.0.0.1:2379"]
lease_ttl = "5s"
rate_limit = 50.0
rate_burst = 10
admin_addr = "127.0.0.1:7401"
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadServer(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Listen != "0.0.0.0:7500" || cfg.AdvertiseAddr() != "10.0.0.5:7500" {
		t.Fatalf("unexpected addresses: %q / %q", cfg.Listen, cfg.AdvertiseAddr())
	}
	if cfg.Codec != codec.CodecTypeBinary {
		t.Fatalf("unexpected codec: %v", cfg.Codec)
	}
	if len(cfg.Spaces) != 2 || cfg.Spaces[1] != "results" {
		t.Fatalf("unexpected spaces: %+v", cfg.Spaces)
	}
	if cfg.LeaseTTL != 5*time.Second {
		t.Fatalf("unexpected lease ttl: %v", cfg.LeaseTTL)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("request timeout should keep its default, got %v", cfg.RequestTimeout)
	}
	if cfg.RateLimit != 50 || cfg.RateBurst != 10 {
		t.Fatalf("unexpected rate limit: %v/%d", cfg.RateLimit, cfg.RateBurst)
	}
	if cfg.AdminAddr != "127.0.0.1:7401" {
		t.Fatalf("unexpected admin addr: %q", cfg.AdminAddr)
	}
}

func TestParseServerErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"bad codec", `codec = "xml"`, "xml"},
		{"bad duration", `request_timeout = "soon"`, "request_timeout"},
		{"no spaces", `spaces = []`, "at least one space"},
		{"duplicate space", `spaces = ["a", "a"]`, "duplicate"},
		{"short lease", "etcd_endpoints = [\"e:2379\"]\nlease_ttl = \"10ms\"", "lease_ttl"},
		{"burst", "rate_limit = 5.0\nrate_burst = 0", "rate_burst"},
		{"log level", `log_level = "chatty"`, "chatty"},
		{"syntax", `listen = `, "parse server config"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseServer(tc.doc)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadClient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spacectl.toml")
	doc := `
servers = ["127.0.0.1:7400", "127.0.0.1:7410"]
space = "jobs"
codec = "binary"
balancer = "round_robin"
retry_backoff = "250ms"
max_retries = 5
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadClient(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.Servers) != 2 || cfg.Space != "jobs" || cfg.Balancer != BalancerRoundRobin {
		t.Fatalf("unexpected client config: %+v", cfg)
	}
	if cfg.RetryBackoff != 250*time.Millisecond || cfg.MaxRetries != 5 {
		t.Fatalf("unexpected retry settings: %v/%d", cfg.RetryBackoff, cfg.MaxRetries)
	}
	if cfg.DialTimeout != 5*time.Second {
		t.Fatalf("dial timeout should keep its default, got %v", cfg.DialTimeout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadServer(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestClientValidate(t *testing.T) {
	cfg := DefaultClient()
	cfg.Balancer = "random"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unknown balancer")
	}
	cfg = DefaultClient()
	cfg.Servers = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error without servers or etcd endpoints")
	}
}
