// Command timely is the spec §6 CLI driver: it parses the shared worker
// configuration, builds one progress-tracking dataflow per worker thread,
// wires them to the progress-broadcast layer over the appropriate
// transport, and runs every worker's step loop to completion.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/stumpy"
	"github.com/joeycumines/timely/config"
	"github.com/joeycumines/timely/telemetry"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.FromFlags("timely", args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger := telemetry.New(stumpy.L.WithWriter(os.Stderr))
	telemetry.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runWorkers(ctx, cfg, logger); err != nil {
		logger.Err().Err(err).Log("timely: run failed")
		return 1
	}
	logger.Info().Log("timely: all workers completed")
	return 0
}
