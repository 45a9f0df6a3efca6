// Package batch runs one probe session per target and aggregates the results.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go-probe-agent/pkg/data"
	"go-probe-agent/pkg/logger"
	"go-probe-agent/pkg/messages"
	"go-probe-agent/pkg/models"
)

type Coordinator struct {
	root        *actor.RootContext
	producer    func() actor.Actor
	concurrency int
	timeout     time.Duration

	// base is cancelled by Stop and bounds every session.
	base     context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup
}

// New builds a coordinator spawning actors from producer. Up to concurrency
// sessions run at once; timeout bounds each of them.
func New(root *actor.RootContext, producer func() actor.Actor, concurrency int, timeout time.Duration) *Coordinator {
	if concurrency <= 0 {
		concurrency = 1
	}
	base, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		root:        root,
		producer:    producer,
		concurrency: concurrency,
		timeout:     timeout,
		base:        base,
		cancel:      cancel,
	}
}

// Stop refuses new sessions, cancels the running ones and waits for their
// actors to reply and stop, or for ctx to expire.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("probe sessions stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop probe sessions: %w", ctx.Err())
	}
}

func (c *Coordinator) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	c.inflight.Add(1)
	return true
}

// Run probes every url and returns one outcome per url in input order. It
// never fails: a session error becomes a failed outcome for that url.
func (c *Coordinator) Run(ctx context.Context, id uuid.UUID, urls []string) models.BatchResult {
	l := log.With().Str(logger.RequestTaskID, id.String()).Logger()
	l.Info().Int("targets", len(urls)).Int("concurrency", c.concurrency).Msg("starting probe batch...")

	details := make([]models.ProbeOutcome, len(urls))
	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup
	for i, target := range urls {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, target string) {
			defer wg.Done()
			defer func() { <-sem }()
			details[i] = c.probe(ctx, id, target)
		}(i, target)
	}
	wg.Wait()

	res := models.NewBatchResult(details)
	l.Info().Bool("all_ok", res.AllOK()).Msg("probe batch finished")
	return res
}

func (c *Coordinator) probe(ctx context.Context, id uuid.UUID, target string) models.ProbeOutcome {
	if !c.begin() {
		return models.Failed(target, models.ReasonShuttingDown)
	}
	defer c.inflight.Done()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	defer context.AfterFunc(c.base, cancel)()

	pid := c.root.Spawn(actor.PropsFromProducer(c.producer))
	defer c.root.Stop(pid)

	// the future outlives the session context slightly so a session that
	// notices its deadline still gets to reply
	future := c.root.RequestFuture(pid, messages.NewProbe{Ctx: ctx, RequestID: id, Target: target}, c.timeout+time.Second)
	res, err := future.Result()
	if err != nil {
		log.Error().Err(err).Str(logger.TargetField, target).Msg("no reply from prober")
		return models.Failed(target, fmt.Sprintf("%s: %s", models.ReasonSessionTimeout, data.Excerpt(err.Error(), 200)))
	}

	switch r := res.(type) {
	case messages.ProbeResult:
		return r.Outcome
	case error:
		return models.Failed(target, data.Excerpt(r.Error(), 200))
	default:
		return models.Failed(target, fmt.Sprintf("unexpected reply %T", res))
	}
}
