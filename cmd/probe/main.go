// Command probe runs one batch against the configured gateways and prints
// the result. It exits 1 when any target failed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go-probe-agent/internal/batch"
	"go-probe-agent/internal/config"
	"go-probe-agent/pkg/logger"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("targets", "", "YAML file with a services list")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	urls, err := loadTargets(*file, fs.Args())
	if err != nil {
		fmt.Fprintf(stderr, "probe: %v\n", err)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "probe: %v\n", err)
		return 2
	}
	if err := logger.NewGlobal(cfg.LogLevel, cfg.LogPretty); err != nil {
		fmt.Fprintf(stderr, "probe: %v\n", err)
		return 2
	}

	coordinator, err := batch.FromConfig(cfg, actor.NewActorSystem().Root)
	if err != nil {
		log.Error().Err(err).Msg("failed to wire probe coordinator")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := coordinator.Run(ctx, uuid.New(), urls)

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		fmt.Fprintf(stderr, "probe: %v\n", err)
		return 2
	}
	if !res.AllOK() {
		return 1
	}
	return 0
}
