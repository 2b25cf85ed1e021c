// quicget - a minimal HTTP/3 and HTTP/0.9 client over QUIC.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"quicget/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "quicget: %v\n", err)
		os.Exit(1)
	}
}
