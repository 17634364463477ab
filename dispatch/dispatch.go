// Package dispatch drives queue processing: claiming items, matching rules
// and executing their actions through the runner.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ripplehq/ripple/event"
	"github.com/ripplehq/ripple/id"
	"github.com/ripplehq/ripple/observability"
	"github.com/ripplehq/ripple/queue"
	"github.com/ripplehq/ripple/rule"
	"github.com/ripplehq/ripple/run"
)

// Config holds dispatcher configuration.
type Config struct {
	// Concurrency bounds the number of items processed in parallel.
	Concurrency int

	// Metrics and Tracer are optional.
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Dispatcher claims batches of due items and processes them.
type Dispatcher struct {
	queue   *queue.Service
	matcher *rule.Matcher
	rules   rule.Store
	runner  *run.Runner
	cfg     Config
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(q *queue.Service, matcher *rule.Matcher, rules rule.Store, runner *run.Runner, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Dispatcher{
		queue:   q,
		matcher: matcher,
		rules:   rules,
		runner:  runner,
		cfg:     cfg,
		logger:  logger,
	}
}

// BatchResult summarizes one RunBatch invocation.
type BatchResult struct {
	// WorkerID identifies the claim owner for this batch.
	WorkerID string `json:"worker_id"`

	// Claimed is the number of items taken from the queue.
	Claimed int `json:"claimed"`

	// Succeeded, Failed and Dead count terminal outcomes. Failed items were
	// rescheduled for retry.
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Dead      int `json:"dead"`
}

// RunBatch claims up to limit due items and processes them concurrently.
// A fresh worker ID is minted per invocation so claims are attributable.
func (d *Dispatcher) RunBatch(ctx context.Context, limit int) (BatchResult, error) {
	workerID := id.NewWorkerID().String()
	res := BatchResult{WorkerID: workerID}

	items, err := d.queue.ClaimBatch(ctx, limit, workerID)
	if err != nil {
		return res, fmt.Errorf("claim batch: %w", err)
	}
	res.Claimed = len(items)
	if len(items) == 0 {
		return res, nil
	}

	if d.cfg.Metrics != nil {
		d.cfg.Metrics.ItemsClaimedTotal.Add(float64(len(items)))
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, d.cfg.Concurrency)

	for _, it := range items {
		sem <- struct{}{}
		wg.Add(1)
		go func(it *queue.Item) {
			defer wg.Done()
			defer func() { <-sem }()

			status := d.process(ctx, it)

			mu.Lock()
			switch status {
			case queue.StatusDone:
				res.Succeeded++
			case queue.StatusFailed:
				res.Failed++
			case queue.StatusDead:
				res.Dead++
			}
			mu.Unlock()
		}(it)
	}
	wg.Wait()

	return res, nil
}

// process handles one claimed item and returns its terminal status.
func (d *Dispatcher) process(ctx context.Context, it *queue.Item) (status queue.Status) {
	start := time.Now()

	var span trace.Span
	if d.cfg.Tracer != nil {
		ctx, span = d.cfg.Tracer.StartItemSpan(ctx, it.ID.String(), it.OrgID, it.EventType)
	}

	rulesMatched := 0
	cause := ""
	defer func() {
		if span != nil {
			d.cfg.Tracer.EndItemSpan(span, string(status), rulesMatched, cause)
		}
		if d.cfg.Metrics != nil {
			d.cfg.Metrics.RecordItem(string(status), time.Since(start).Seconds())
		}
	}()

	// A panicking action must not take down the batch; the item goes dead.
	defer func() {
		if r := recover(); r != nil {
			cause = fmt.Sprintf("panic: %v", r)
			d.logger.ErrorContext(ctx, "item processing panicked",
				slog.String("item_id", it.ID.String()),
				slog.Any("panic", r))
			if err := d.queue.MarkDead(ctx, it, cause); err != nil {
				d.logger.ErrorContext(ctx, "mark dead failed",
					slog.String("item_id", it.ID.String()),
					slog.Any("error", err))
			}
			status = queue.StatusDead
		}
	}()

	matched, err := d.rulesFor(ctx, it)
	if err != nil {
		cause = err.Error()
		status, err = d.queue.MarkFailed(ctx, it, cause)
		if err != nil {
			d.logger.ErrorContext(ctx, "mark failed errored",
				slog.String("item_id", it.ID.String()),
				slog.Any("error", err))
		}
		return status
	}
	rulesMatched = len(matched)

	evt := it.Event()
	var firstErr *run.ActionError
	for _, rl := range matched {
		runRes := d.runner.RunRule(ctx, rl, evt, it.ChainDepth)
		if aerr := runRes.Err(); aerr != nil && firstErr == nil {
			firstErr = aerr
		}
	}

	if firstErr == nil {
		if err := d.queue.MarkDone(ctx, it); err != nil {
			d.logger.ErrorContext(ctx, "mark done failed",
				slog.String("item_id", it.ID.String()),
				slog.Any("error", err))
		}
		return queue.StatusDone
	}

	cause = firstErr.Error()
	if !firstErr.Transient {
		if err := d.queue.MarkDead(ctx, it, cause); err != nil {
			d.logger.ErrorContext(ctx, "mark dead failed",
				slog.String("item_id", it.ID.String()),
				slog.Any("error", err))
		}
		return queue.StatusDead
	}

	status, err = d.queue.MarkFailed(ctx, it, cause)
	if err != nil {
		d.logger.ErrorContext(ctx, "mark failed errored",
			slog.String("item_id", it.ID.String()),
			slog.Any("error", err))
	}
	return status
}

// rulesFor resolves the rules an item runs: the pinned rule for manual
// dispatches, or the matcher's result for emitted events. A pinned rule is
// executed even if inactive or non-matching; that is the point of manual
// dispatch.
func (d *Dispatcher) rulesFor(ctx context.Context, it *queue.Item) ([]*rule.Rule, error) {
	if !it.RuleID.IsNil() {
		rl, err := d.rules.GetRule(ctx, it.RuleID)
		if err != nil {
			return nil, fmt.Errorf("get pinned rule: %w", err)
		}
		return []*rule.Rule{rl}, nil
	}
	matched, err := d.matcher.MatchEvent(ctx, it.Event())
	if err != nil {
		return nil, fmt.Errorf("match rules: %w", err)
	}
	return matched, nil
}

// TestEvent evaluates an event against an org's rules without enqueueing or
// executing anything. Used for dry runs from the management API.
func (d *Dispatcher) TestEvent(ctx context.Context, evt event.DomainEvent) ([]*rule.Rule, error) {
	return d.matcher.MatchEvent(ctx, evt)
}

// Poller runs RunBatch on a fixed interval until stopped.
type Poller struct {
	dispatcher *Dispatcher
	interval   time.Duration
	batchSize  int
	logger     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a poller.
func NewPoller(d *Dispatcher, interval time.Duration, batchSize int, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		dispatcher: d,
		interval:   interval,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// Start begins the poll loop.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop(ctx)
	}()
}

// Stop cancels the poll loop and waits for the in-flight batch to finish.
func (p *Poller) Stop(_ context.Context) {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Poller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := p.dispatcher.RunBatch(ctx, p.batchSize)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					p.logger.ErrorContext(ctx, "batch failed", slog.Any("error", err))
				}
				continue
			}
			if res.Claimed > 0 {
				p.logger.DebugContext(ctx, "batch processed",
					slog.String("worker_id", res.WorkerID),
					slog.Int("claimed", res.Claimed),
					slog.Int("succeeded", res.Succeeded),
					slog.Int("failed", res.Failed),
					slog.Int("dead", res.Dead))
			}
		}
	}
}
