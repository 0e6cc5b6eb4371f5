// Command evreplay replays a recorded event log to one TCP peer and saves
// whatever the peer sends back.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kballard/go-shellquote"

	"github.com/rwool/evreplay/config"
	evreplaycmd "github.com/rwool/evreplay/internal/cmd/evreplay"
	"github.com/rwool/evreplay/log"
)

func main() {
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "evreplay: %v\n", err)
		os.Exit(2)
	}

	logger := log.NewLogger(os.Stderr, cfg.Level())
	logger.Debugf("Invoked as: %s", shellquote.Join(os.Args...))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := evreplaycmd.Run(ctx, cfg, logger); err != nil {
		logger.Errorf("Replay failed: %v", err)
		stop()
		os.Exit(1)
	}
}
