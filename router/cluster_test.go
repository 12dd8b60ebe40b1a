package router

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falkordb/rediscore/cluster"
	"github.com/falkordb/rediscore/config"
)

func clusterSlotsReply(start, end uint16, primaryHost, primaryPort string) string {
	return fmt.Sprintf("*1\r\n*3\r\n:%d\r\n:%d\r\n*2\r\n%s:%s\r\n",
		start, end, bulkString(primaryHost), primaryPort)
}

func TestClusterMovedRedirect(t *testing.T) {
	key := "somekey"
	slot := cluster.HashSlot([]byte(key))

	nodeBAddr := startMockServer(t, func(c net.Conn) {
		defer c.Close()
		r := bufio.NewReader(c)
		for {
			args, err := readCommand(r)
			if err != nil {
				return
			}
			if args[0] == "SET" {
				c.Write([]byte("+OK\r\n"))
			}
		}
	})

	nodeA := startMockServer(t, func(c net.Conn) {
		defer c.Close()
		r := bufio.NewReader(c)
		for {
			args, err := readCommand(r)
			if err != nil {
				return
			}
			switch args[0] {
			case "CLUSTER":
				host, port, _ := net.SplitHostPort(nodeA)
				c.Write([]byte(clusterSlotsReply(0, 16383, host, port)))
			case "SET":
				c.Write([]byte(fmt.Sprintf("-MOVED %d %s\r\n", slot, nodeBAddr)))
			}
		}
	})

	cfg := config.Config{SeedAddrs: []string{nodeA}, PoolSize: 2}.WithDefaults()
	r, err := NewCluster(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	defer r.Close()

	v, err := r.Execute(context.Background(), [][]byte{[]byte("SET"), []byte(key), []byte("v")})
	require.NoError(t, err)
	s, ok := v.AsStr()
	require.True(t, ok)
	assert.Equal(t, "OK", s)
}

func TestClusterAskRedirect(t *testing.T) {
	key := "otherkey"
	slot := cluster.HashSlot([]byte(key))

	var sawAsking bool
	nodeBAddr := startMockServer(t, func(c net.Conn) {
		defer c.Close()
		r := bufio.NewReader(c)
		for {
			args, err := readCommand(r)
			if err != nil {
				return
			}
			switch args[0] {
			case "ASKING":
				sawAsking = true
				c.Write([]byte("+OK\r\n"))
			case "GET":
				c.Write([]byte(bulkString("asked-value")))
			}
		}
	})

	nodeA := startMockServer(t, func(c net.Conn) {
		defer c.Close()
		r := bufio.NewReader(c)
		for {
			args, err := readCommand(r)
			if err != nil {
				return
			}
			switch args[0] {
			case "CLUSTER":
				host, port, _ := net.SplitHostPort(nodeA)
				c.Write([]byte(clusterSlotsReply(0, 16383, host, port)))
			case "GET":
				c.Write([]byte(fmt.Sprintf("-ASK %d %s\r\n", slot, nodeBAddr)))
			}
		}
	})

	cfg := config.Config{SeedAddrs: []string{nodeA}, PoolSize: 2}.WithDefaults()
	r, err := NewCluster(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	defer r.Close()

	v, err := r.Execute(context.Background(), [][]byte{[]byte("GET"), []byte(key)})
	require.NoError(t, err)
	s, ok := v.AsStr()
	require.True(t, ok)
	assert.Equal(t, "asked-value", s)
	assert.True(t, sawAsking)
}

func TestClusterPipelinePartitionsAndPreservesOrder(t *testing.T) {
	nodeA := startMockServer(t, func(c net.Conn) {
		defer c.Close()
		r := bufio.NewReader(c)
		for {
			args, err := readCommand(r)
			if err != nil {
				return
			}
			switch args[0] {
			case "CLUSTER":
				host, port, _ := net.SplitHostPort(nodeA)
				c.Write([]byte(clusterSlotsReply(0, 16383, host, port)))
			case "GET":
				c.Write([]byte(bulkString("v-" + args[1])))
			}
		}
	})

	cfg := config.Config{SeedAddrs: []string{nodeA}, PoolSize: 4}.WithDefaults()
	r, err := NewCluster(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	defer r.Close()

	out, err := r.Pipeline(context.Background(), [][][]byte{
		{[]byte("GET"), []byte("a")},
		{[]byte("GET"), []byte("b")},
		{[]byte("GET"), []byte("c")},
	})
	require.NoError(t, err)
	require.Len(t, out, 3)

	s0, _ := out[0].AsStr()
	s1, _ := out[1].AsStr()
	s2, _ := out[2].AsStr()
	assert.Equal(t, "v-a", s0)
	assert.Equal(t, "v-b", s1)
	assert.Equal(t, "v-c", s2)
}

// TestClusterPipelineBatchesOnOneConnectionPerPartition asserts that a
// partition's commands travel as one batch on one connection, not a
// round trip per command: after the single CLUSTER SLOTS dial at
// construction, exactly one more connection should carry every GET in
// the pipeline, and it should see all three commands before the test
// ends (no interleaved reconnects).
func TestClusterPipelineBatchesOnOneConnectionPerPartition(t *testing.T) {
	var accepts int32
	var commandsOnSecondConn int32

	nodeA := startMockServer(t, func(c net.Conn) {
		defer c.Close()
		n := atomic.AddInt32(&accepts, 1)
		r := bufio.NewReader(c)
		for {
			args, err := readCommand(r)
			if err != nil {
				return
			}
			switch args[0] {
			case "CLUSTER":
				host, port, _ := net.SplitHostPort(nodeA)
				c.Write([]byte(clusterSlotsReply(0, 16383, host, port)))
			case "GET":
				if n > 1 {
					atomic.AddInt32(&commandsOnSecondConn, 1)
				}
				c.Write([]byte(bulkString("v-" + args[1])))
			}
		}
	})

	cfg := config.Config{SeedAddrs: []string{nodeA}, PoolSize: 4}.WithDefaults()
	r, err := NewCluster(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	defer r.Close()

	out, err := r.Pipeline(context.Background(), [][][]byte{
		{[]byte("GET"), []byte("a")},
		{[]byte("GET"), []byte("b")},
		{[]byte("GET"), []byte("c")},
	})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.EqualValues(t, 2, atomic.LoadInt32(&accepts), "expected one dial for CLUSTER SLOTS plus one for the whole pipeline partition")
	assert.EqualValues(t, 3, atomic.LoadInt32(&commandsOnSecondConn), "expected all 3 pipelined commands on the single partition connection")
}
