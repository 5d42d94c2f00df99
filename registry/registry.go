// Package registry publishes which servers host which tuple spaces.
//
// A server registers one Instance per space it hosts; clients discover the instances of
// the space they target and pick one with a loadbalance.Balancer.
package registry

import "context"

type Instance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"` // Weight for load balancing
	Version string `json:"version,omitempty"`
	Codec   string `json:"codec,omitempty"` // codec the server prefers, "json" or "binary"
}

type Registry interface {
	// Register publishes instance under space. ttl is in seconds; implementations that
	// lease entries keep the lease alive until Deregister.
	Register(ctx context.Context, space string, instance Instance, ttl int64) error
	Deregister(ctx context.Context, space string, addr string) error
	Discover(ctx context.Context, space string) ([]Instance, error)
	// Watch emits the full instance list of space after every change until ctx ends.
	Watch(ctx context.Context, space string) <-chan []Instance
}

const keyPrefix = "/tuplespace/"

func spacePrefix(space string) string {
	return keyPrefix + space + "/"
}

func instanceKey(space, addr string) string {
	return spacePrefix(space) + addr
}
