// Package config holds the client's external interface: the
// configuration struct of spec.md §6 and a minimal connection-URL
// parser, kept intentionally simple per the Non-goal ("URL parsing for
// connection strings... a straightforward text split").
package config

import "time"

// Topology selects which router the Client builds.
type Topology int

const (
	Standalone Topology = iota
	Sentinel
	Cluster
)

// Config is the complete, optional-everything configuration surface
// of spec.md §6.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	DB       int
	TLS      bool
	Topology Topology

	PoolSize         int
	ConnectTimeoutMs int
	ReadTimeoutMs    int
	IdleTimeoutMs    int
	MaxBufferSize    int

	// Cluster-only.
	ReadFromReplicas bool
	SeedAddrs        []string

	// Sentinel-only.
	SentinelAddrs []string
	MasterName    string
	RetryCount    int
	RetryBackoffMs int

	// ProtocolVersion selects RESP2 (2) or RESP3 (3); see SPEC_FULL.md §9.
	ProtocolVersion int
}

// WithDefaults returns a copy of c with every zero-valued optional
// field set to its spec.md §6 default.
func (c Config) WithDefaults() Config {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 6379
	}
	if c.PoolSize == 0 {
		c.PoolSize = 8
	}
	if c.ConnectTimeoutMs == 0 {
		c.ConnectTimeoutMs = 5000
	}
	if c.ReadTimeoutMs == 0 {
		c.ReadTimeoutMs = 30000
	}
	if c.IdleTimeoutMs == 0 {
		c.IdleTimeoutMs = 300000
	}
	if c.MaxBufferSize == 0 {
		c.MaxBufferSize = 512 << 20
	}
	if c.RetryCount == 0 {
		c.RetryCount = 3
	}
	if c.RetryBackoffMs == 0 {
		c.RetryBackoffMs = 100
	}
	if c.ProtocolVersion == 0 {
		c.ProtocolVersion = 2
	}
	return c
}

func (c Config) ConnectTimeout() time.Duration { return time.Duration(c.ConnectTimeoutMs) * time.Millisecond }
func (c Config) ReadTimeout() time.Duration    { return time.Duration(c.ReadTimeoutMs) * time.Millisecond }
func (c Config) IdleTimeout() time.Duration    { return time.Duration(c.IdleTimeoutMs) * time.Millisecond }
func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}
