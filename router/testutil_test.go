package router

import (
	"bufio"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// startMockServer starts a tiny test server that accepts any number of
// connections; handler runs against each one in its own goroutine.
func startMockServer(t *testing.T, handler func(net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go handler(c)
		}
	}()
	return ln.Addr().String()
}

// readCommand reads one RESP command array and returns its arguments
// as upper-cased-preserving strings, for use by mock servers.
func readCommand(r *bufio.Reader) ([]string, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	n := 0
	for i := 1; i < len(header)-2; i++ {
		n = n*10 + int(header[i]-'0')
	}
	args := make([]string, n)
	for i := 0; i < n; i++ {
		lenLine, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size := 0
		for j := 1; j < len(lenLine)-2; j++ {
			size = size*10 + int(lenLine[j]-'0')
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args[i] = string(buf[:size])
	}
	return args, nil
}
