// Command rdcli resolves Redis content across any topology: standalone,
// Sentinel, or Cluster, selected by the connection URL's scheme.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	rediscore "github.com/falkordb/rediscore"
)

var (
	urlFlag  = flag.String("url", "redis://localhost:6379", "Connection `url` (redis://, rediss://, redis+sentinel://, redis+cluster://).")
	authFlag = flag.Bool("auth", false, "Reads a password from the standard input, overriding the url's credentials.")

	rawFlag       = flag.Bool("raw", false, "Output values as is, instead of quoted strings.")
	delimitFlag   = flag.String("delimit", "\n", "The output `separator` between values.")
	terminateFlag = flag.String("terminate", "\n", "The output `suffix` on the last value.")
	nullFlag      = flag.String("null", "<null>", "The output `value` for key absence.")
)

func main() {
	flag.Parse()
	keys := flag.Args()
	if len(keys) == 0 {
		os.Stderr.WriteString(`NAME
	rdcli — resolve Redis content

SYNOPSIS
	rdcli [ options ] [ key ... ]

DESCRIPTION
	rdcli sends all operands in one MGET and prints the value resolved
	for each. Under the cluster topology that MGET goes to the node
	owning the first key.

	The following options are available:

`)
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx := context.Background()
	client, err := rediscore.NewFromURL(ctx, *urlFlag, logger, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rdcli: connect:", err)
		os.Exit(2)
	}
	defer client.Close()

	if *authFlag {
		password, _ := io.ReadAll(os.Stdin)
		args := [][]byte{[]byte("AUTH"), []byte(strings.TrimSpace(string(password)))}
		if _, err := client.Execute(ctx, args...); err != nil {
			fmt.Fprintln(os.Stderr, "rdcli: AUTH:", err)
			os.Exit(4)
		}
	}

	printValues(client, ctx, keys)
}

func printValues(client *rediscore.Client, ctx context.Context, keys []string) {
	args := make([][]byte, 0, len(keys)+1)
	args = append(args, []byte("MGET"))
	for _, k := range keys {
		args = append(args, []byte(k))
	}

	v, err := client.Execute(ctx, args...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rdcli: MGET:", err)
		os.Exit(255)
	}

	w := os.Stdout
	for i, item := range v.Array {
		switch {
		case item.IsNull():
			w.WriteString(*nullFlag)
		case *rawFlag:
			b, _ := item.AsBytes()
			w.Write(b)
		default:
			s, _ := item.AsStr()
			w.WriteString(strconv.QuoteToGraphic(s))
		}

		if i < len(v.Array)-1 {
			w.WriteString(*delimitFlag)
		} else {
			w.WriteString(*terminateFlag)
		}
	}
}
