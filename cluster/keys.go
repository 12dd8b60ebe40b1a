package cluster

import "bytes"

// keylessCommands yield no slot at all (spec.md §4.6).
var keylessCommands = map[string]bool{
	"PING": true, "INFO": true, "DBSIZE": true, "RANDOMKEY": true,
	"CLUSTER": true, "CONFIG": true, "CLIENT": true, "COMMAND": true,
	"TIME": true, "WAIT": true, "SAVE": true, "BGSAVE": true,
	"BGREWRITEAOF": true, "FLUSHALL": true, "FLUSHDB": true,
	"LASTSAVE": true, "SLOWLOG": true, "DEBUG": true,
	"MULTI": true, "EXEC": true, "DISCARD": true, "SCRIPT": true,
	"SUBSCRIBE": true, "UNSUBSCRIBE": true, "PSUBSCRIBE": true,
	"PUNSUBSCRIBE": true, "QUIT": true,
}

// readOnlyCommands is the fixed, case-insensitive set of read-only
// verbs eligible for replica routing (spec.md §4.7.3).
var readOnlyCommands = map[string]bool{
	"GET": true, "MGET": true, "KEYS": true, "SCAN": true, "TYPE": true,
	"TTL": true, "PTTL": true, "EXISTS": true, "STRLEN": true,
	"GETRANGE": true, "SUBSTR": true,
	"HGET": true, "HMGET": true, "HGETALL": true, "HKEYS": true, "HVALS": true,
	"HLEN": true, "HEXISTS": true, "HSCAN": true, "HSTRLEN": true, "HRANDFIELD": true,
	"LRANGE": true, "LLEN": true, "LINDEX": true, "LPOS": true,
	"SMEMBERS": true, "SISMEMBER": true, "SMISMEMBER": true, "SCARD": true,
	"SRANDMEMBER": true, "SSCAN": true,
	"SUNION": true, "SINTER": true, "SDIFF": true,
	"ZRANGE": true, "ZREVRANGE": true, "ZRANGEBYSCORE": true, "ZREVRANGEBYSCORE": true,
	"ZRANGEBYLEX": true, "ZREVRANGEBYLEX": true, "ZSCORE": true, "ZMSCORE": true,
	"ZCARD": true, "ZCOUNT": true, "ZRANK": true, "ZREVRANK": true, "ZSCAN": true,
	"XRANGE": true, "XREVRANGE": true, "XLEN": true, "XREAD": true, "XINFO": true,
	"OBJECT": true, "DEBUG": true,
	"BITCOUNT": true, "BITPOS": true, "GETBIT": true,
	"PFCOUNT": true,
	"GEOPOS_RO": true, "GEODIST_RO": true, "GEOHASH_RO": true,
	"GEOSEARCH_RO": true, "GEORADIUS_RO": true, "GEORADIUSBYMEMBER_RO": true,
	"GRAPH.RO_QUERY": true,
}

// IsReadOnly reports whether verb (case-insensitive) is eligible for
// replica-read routing.
func IsReadOnly(verb string) bool {
	return readOnlyCommands[upper(verb)]
}

// IsKeyless reports whether verb never carries a routable key.
func IsKeyless(verb string) bool {
	return keylessCommands[upper(verb)]
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

// ExtractKey returns the first routable key from a command's argument
// vector, per spec.md §4.6: position 1 for ordinary commands, position
// 3 (when numkeys > 0) for EVAL/EVALSHA, and the argument following a
// literal STREAMS token for XREAD/XREADGROUP.
func ExtractKey(args [][]byte) ([]byte, bool) {
	if len(args) == 0 {
		return nil, false
	}
	verb := upper(string(args[0]))
	if IsKeyless(verb) {
		return nil, false
	}

	switch verb {
	case "EVAL", "EVALSHA":
		if len(args) < 4 {
			return nil, false
		}
		numKeys := parseSmallInt(args[2])
		if numKeys <= 0 {
			return nil, false
		}
		return args[3], true

	case "XREAD", "XREADGROUP":
		for i, a := range args {
			if bytes.EqualFold(a, []byte("STREAMS")) && i+1 < len(args) {
				return args[i+1], true
			}
		}
		return nil, false

	default:
		if len(args) < 2 {
			return nil, false
		}
		return args[1], true
	}
}

func parseSmallInt(b []byte) int {
	n := 0
	neg := false
	for i, c := range b {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		return -n
	}
	return n
}
