package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ParseURL parses the connection-URL grammar of spec.md §6:
//
//	redis://[user:pass@]host[:port][/db]
//	rediss://...                                   (TLS requested; rejected by rediscore.New)
//	redis+sentinel://[user:pass@]master_name@host[:port][,host[:port]...][/db]
//	redis+cluster://[user:pass@]host[:port][,host[:port]...][/db]
//
// This is deliberately a straightforward text split, not a general
// URI parser — the Non-goal in spec.md §1 calls URL parsing "a
// straightforward text split", not core engineering surface.
func ParseURL(raw string) (Config, error) {
	scheme, rest, ok := cut(raw, "://")
	if !ok {
		return Config{}, fmt.Errorf("config: missing scheme in %q", raw)
	}

	var cfg Config
	switch scheme {
	case "redis":
		cfg.Topology = Standalone
	case "rediss":
		cfg.Topology = Standalone
		cfg.TLS = true
	case "redis+sentinel":
		cfg.Topology = Sentinel
	case "redis+cluster":
		cfg.Topology = Cluster
	default:
		return Config{}, fmt.Errorf("config: unknown scheme %q", scheme)
	}

	hostspec, db, _ := cut(rest, "/")
	if db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return Config{}, fmt.Errorf("config: bad db segment %q", db)
		}
		cfg.DB = n
	}

	parts := strings.Split(hostspec, "@")
	switch {
	case cfg.Topology == Sentinel && len(parts) == 3:
		cfg.Username, cfg.Password, _ = cut(parts[0], ":")
		cfg.MasterName = parts[1]
		hostspec = parts[2]
	case cfg.Topology == Sentinel && len(parts) == 2:
		cfg.MasterName = parts[0]
		hostspec = parts[1]
	case len(parts) == 2:
		cfg.Username, cfg.Password, _ = cut(parts[0], ":")
		hostspec = parts[1]
	case len(parts) == 1:
		hostspec = parts[0]
	default:
		return Config{}, fmt.Errorf("config: malformed host segment %q", hostspec)
	}

	defaultPort := "6379"
	if cfg.Topology == Sentinel {
		defaultPort = "26379"
	}

	addrs, err := splitHosts(hostspec, defaultPort)
	if err != nil {
		return Config{}, err
	}

	switch cfg.Topology {
	case Cluster:
		cfg.SeedAddrs = addrs
	case Sentinel:
		cfg.SentinelAddrs = addrs
	default:
		host, port, err := net.SplitHostPort(addrs[0])
		if err != nil {
			return Config{}, err
		}
		cfg.Host = host
		p, _ := strconv.Atoi(port)
		cfg.Port = p
	}

	return cfg, nil
}

// cut splits s on the first occurrence of sep, analogous to
// strings.Cut.
func cut(s, sep string) (before, after string, found bool) {
	if i := strings.Index(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}

// splitHosts splits a comma-separated host list, respecting IPv6
// bracket literals, and normalizes each entry to host:port.
func splitHosts(hostspec, defaultPort string) ([]string, error) {
	var entries []string
	depth := 0
	start := 0
	for i, r := range hostspec {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				entries = append(entries, hostspec[start:i])
				start = i + 1
			}
		}
	}
	entries = append(entries, hostspec[start:])

	addrs := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		host, port, err := net.SplitHostPort(e)
		if err != nil {
			host, port = e, defaultPort
		}
		if host == "" {
			host = "127.0.0.1"
		}
		if port == "" {
			port = defaultPort
		}
		addrs = append(addrs, net.JoinHostPort(host, port))
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("config: no host in %q", hostspec)
	}
	return addrs, nil
}
