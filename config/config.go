// Package config loads the TOML configuration of the server and the client.
//
//	listen = "127.0.0.1:7400"
//	codec = "binary"
//	spaces = ["jobs", "results"]
//	etcd_endpoints = ["127.0.0.1:2379"]
//	request_timeout = "30s"
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"tuplespace/codec"
	"tuplespace/logging"
)

type Server struct {
	Listen         string
	Advertise      string // address published to the registry; Listen when empty
	Codec          codec.CodecType
	Spaces         []string
	EtcdEndpoints  []string
	LeaseTTL       time.Duration
	RequestTimeout time.Duration
	RateLimit      float64 // requests per second, 0 disables limiting
	RateBurst      int
	MaxBodySize    uint32
	AdminAddr      string // empty disables the admin HTTP server
	LogLevel       string
}

type Client struct {
	Servers           []string // static addresses, used when EtcdEndpoints is empty
	EtcdEndpoints     []string
	Space             string
	Codec             codec.CodecType
	Balancer          string
	DialTimeout       time.Duration
	RequestTimeout    time.Duration
	HeartbeatInterval time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	LogLevel          string
}

// Balancer names accepted by Client.Balancer.
const (
	BalancerRoundRobin     = "round_robin"
	BalancerWeightedRandom = "weighted_random"
	BalancerConsistentHash = "consistent_hash"
)

func DefaultServer() Server {
	return Server{
		Listen:         "127.0.0.1:7400",
		Codec:          codec.CodecTypeJSON,
		Spaces:         []string{"default"},
		LeaseTTL:       10 * time.Second,
		RequestTimeout: 30 * time.Second,
		RateBurst:      100,
		MaxBodySize:    16 << 20,
		LogLevel:       "info",
	}
}

func DefaultClient() Client {
	return Client{
		Servers:           []string{"127.0.0.1:7400"},
		Space:             "default",
		Codec:             codec.CodecTypeJSON,
		Balancer:          BalancerConsistentHash,
		DialTimeout:       5 * time.Second,
		RequestTimeout:    30 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MaxRetries:        3,
		RetryBackoff:      100 * time.Millisecond,
		LogLevel:          "info",
	}
}

type serverFile struct {
	Listen         string   `toml:"listen"`
	Advertise      string   `toml:"advertise"`
	Codec          string   `toml:"codec"`
	Spaces         []string `toml:"spaces"`
	EtcdEndpoints  []string `toml:"etcd_endpoints"`
	LeaseTTL       string   `toml:"lease_ttl"`
	RequestTimeout string   `toml:"request_timeout"`
	RateLimit      float64  `toml:"rate_limit"`
	RateBurst      int      `toml:"rate_burst"`
	MaxBodySize    int64    `toml:"max_body_size"`
	AdminAddr      string   `toml:"admin_addr"`
	LogLevel       string   `toml:"log_level"`
}

type clientFile struct {
	Servers           []string `toml:"servers"`
	EtcdEndpoints     []string `toml:"etcd_endpoints"`
	Space             string   `toml:"space"`
	Codec             string   `toml:"codec"`
	Balancer          string   `toml:"balancer"`
	DialTimeout       string   `toml:"dial_timeout"`
	RequestTimeout    string   `toml:"request_timeout"`
	HeartbeatInterval string   `toml:"heartbeat_interval"`
	MaxRetries        int      `toml:"max_retries"`
	RetryBackoff      string   `toml:"retry_backoff"`
	LogLevel          string   `toml:"log_level"`
}

// LoadServer reads path over DefaultServer and validates the result.
func LoadServer(path string) (Server, error) {
	var raw serverFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Server{}, fmt.Errorf("load server config: %w", err)
	}
	cfg, err := raw.apply(DefaultServer(), meta)
	if err != nil {
		return Server{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// ParseServer is LoadServer over an in-memory document.
func ParseServer(doc string) (Server, error) {
	var raw serverFile
	meta, err := toml.Decode(doc, &raw)
	if err != nil {
		return Server{}, fmt.Errorf("parse server config: %w", err)
	}
	cfg, err := raw.apply(DefaultServer(), meta)
	if err != nil {
		return Server{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (raw serverFile) apply(cfg Server, meta toml.MetaData) (Server, error) {
	var err error
	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("advertise") {
		cfg.Advertise = strings.TrimSpace(raw.Advertise)
	}
	if meta.IsDefined("codec") {
		if cfg.Codec, err = codec.ParseCodecType(strings.TrimSpace(raw.Codec)); err != nil {
			return Server{}, err
		}
	}
	if meta.IsDefined("spaces") {
		cfg.Spaces = normalizeList(raw.Spaces)
	}
	if meta.IsDefined("etcd_endpoints") {
		cfg.EtcdEndpoints = normalizeList(raw.EtcdEndpoints)
	}
	if meta.IsDefined("lease_ttl") {
		if cfg.LeaseTTL, err = parseDuration("lease_ttl", raw.LeaseTTL); err != nil {
			return Server{}, err
		}
	}
	if meta.IsDefined("request_timeout") {
		if cfg.RequestTimeout, err = parseDuration("request_timeout", raw.RequestTimeout); err != nil {
			return Server{}, err
		}
	}
	if meta.IsDefined("rate_limit") {
		cfg.RateLimit = raw.RateLimit
	}
	if meta.IsDefined("rate_burst") {
		cfg.RateBurst = raw.RateBurst
	}
	if meta.IsDefined("max_body_size") {
		if raw.MaxBodySize <= 0 || raw.MaxBodySize > int64(^uint32(0)) {
			return Server{}, fmt.Errorf("max_body_size out of range: %d", raw.MaxBodySize)
		}
		cfg.MaxBodySize = uint32(raw.MaxBodySize)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return cfg, nil
}

// AdvertiseAddr is the address published to the registry.
func (c Server) AdvertiseAddr() string {
	if c.Advertise != "" {
		return c.Advertise
	}
	return c.Listen
}

func (c Server) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("server config missing listen")
	}
	if len(c.Spaces) == 0 {
		return fmt.Errorf("server config needs at least one space")
	}
	seen := make(map[string]struct{}, len(c.Spaces))
	for i, name := range c.Spaces {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("spaces[%d]: duplicate space %q", i, name)
		}
		seen[name] = struct{}{}
	}
	if len(c.EtcdEndpoints) > 0 && c.LeaseTTL < time.Second {
		return fmt.Errorf("lease_ttl must be at least 1s, got %v", c.LeaseTTL)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("rate_burst must be at least 1 when rate_limit is set")
	}
	if _, _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// LoadClient reads path over DefaultClient and validates the result.
func LoadClient(path string) (Client, error) {
	var raw clientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Client{}, fmt.Errorf("load client config: %w", err)
	}
	cfg, err := raw.apply(DefaultClient(), meta)
	if err != nil {
		return Client{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

func (raw clientFile) apply(cfg Client, meta toml.MetaData) (Client, error) {
	var err error
	if meta.IsDefined("servers") {
		cfg.Servers = normalizeList(raw.Servers)
	}
	if meta.IsDefined("etcd_endpoints") {
		cfg.EtcdEndpoints = normalizeList(raw.EtcdEndpoints)
	}
	if meta.IsDefined("space") {
		cfg.Space = strings.TrimSpace(raw.Space)
	}
	if meta.IsDefined("codec") {
		if cfg.Codec, err = codec.ParseCodecType(strings.TrimSpace(raw.Codec)); err != nil {
			return Client{}, err
		}
	}
	if meta.IsDefined("balancer") {
		cfg.Balancer = strings.TrimSpace(raw.Balancer)
	}
	if meta.IsDefined("dial_timeout") {
		if cfg.DialTimeout, err = parseDuration("dial_timeout", raw.DialTimeout); err != nil {
			return Client{}, err
		}
	}
	if meta.IsDefined("request_timeout") {
		if cfg.RequestTimeout, err = parseDuration("request_timeout", raw.RequestTimeout); err != nil {
			return Client{}, err
		}
	}
	if meta.IsDefined("heartbeat_interval") {
		if cfg.HeartbeatInterval, err = parseDuration("heartbeat_interval", raw.HeartbeatInterval); err != nil {
			return Client{}, err
		}
	}
	if meta.IsDefined("max_retries") {
		cfg.MaxRetries = raw.MaxRetries
	}
	if meta.IsDefined("retry_backoff") {
		if cfg.RetryBackoff, err = parseDuration("retry_backoff", raw.RetryBackoff); err != nil {
			return Client{}, err
		}
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return cfg, nil
}

func (c Client) Validate() error {
	if len(c.Servers) == 0 && len(c.EtcdEndpoints) == 0 {
		return fmt.Errorf("client config needs servers or etcd_endpoints")
	}
	if c.Space == "" {
		return fmt.Errorf("client config missing space")
	}
	switch c.Balancer {
	case BalancerRoundRobin, BalancerWeightedRandom, BalancerConsistentHash:
	default:
		return fmt.Errorf("unknown balancer %q", c.Balancer)
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("dial_timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if _, _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
