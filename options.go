package ripple

import (
	"log/slog"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/ripplehq/ripple/audit"
	"github.com/ripplehq/ripple/bankrule"
	"github.com/ripplehq/ripple/dispatch"
	"github.com/ripplehq/ripple/ledger"
	"github.com/ripplehq/ripple/observability"
	"github.com/ripplehq/ripple/queue"
	"github.com/ripplehq/ripple/rule"
	"github.com/ripplehq/ripple/run"
	"github.com/ripplehq/ripple/store"
	"github.com/ripplehq/ripple/webhook"
)

// Engine is the root workflow automation engine.
type Engine struct {
	config  Config
	store   store.Store
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	collab  run.Collaborators

	auditLog   *audit.Log
	ruleSvc    *rule.Service
	bankSvc    *bankrule.Service
	queueSvc   *queue.Service
	ledgerSvc  *ledger.Service
	matcher    *rule.Matcher
	runner     *run.Runner
	dispatcher *dispatch.Dispatcher
	poller     *dispatch.Poller
	ingestor   *webhook.Ingestor
}

// Option configures an Engine instance.
type Option func(*Engine) error

// New creates a new Engine with the given options.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.store == nil {
		return nil, ErrNoStore
	}
	e.wireServices()
	return e, nil
}

// WithStore sets the persistence backend for the Engine instance.
func WithStore(s store.Store) Option {
	return func(e *Engine) error {
		e.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Engine instance.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithMailer sets the integration backing send_email actions.
func WithMailer(m run.Mailer) Option {
	return func(e *Engine) error {
		e.collab.Mailer = m
		return nil
	}
}

// WithTaskCreator sets the integration backing create_task actions.
func WithTaskCreator(tc run.TaskCreator) Option {
	return func(e *Engine) error {
		e.collab.TaskCreator = tc
		return nil
	}
}

// WithRecordMutator sets the integration backing update_record actions.
func WithRecordMutator(rm run.RecordMutator) Option {
	return func(e *Engine) error {
		e.collab.RecordMutator = rm
		return nil
	}
}

// WithMetrics enables metric instruments built from the supplied factory.
// Pass metrics.NewMetricsCollector() from go-utils for standalone usage.
func WithMetrics(factory gu.MetricFactory) Option {
	return func(e *Engine) error {
		e.metrics = observability.NewMetrics(factory)
		return nil
	}
}

// WithTracing enables OpenTelemetry spans around item and action processing.
func WithTracing() Option {
	return func(e *Engine) error {
		e.tracer = observability.NewTracer()
		return nil
	}
}

// WithConcurrency sets the number of items processed in parallel per batch.
func WithConcurrency(n int) Option {
	return func(e *Engine) error {
		e.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the background poller claims a batch.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) error {
		e.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of items claimed per poll cycle.
func WithBatchSize(n int) Option {
	return func(e *Engine) error {
		e.config.BatchSize = n
		return nil
	}
}

// WithMaxAttempts sets the attempt budget before an item goes dead.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) error {
		e.config.MaxAttempts = n
		return nil
	}
}

// WithBackoff sets the retry delay schedule: base doubles per attempt and is
// bounded by cap.
func WithBackoff(base, cap time.Duration) Option {
	return func(e *Engine) error {
		e.config.BackoffBase = base
		e.config.BackoffCap = cap
		return nil
	}
}

// WithActionTimeout bounds each non-wait action.
func WithActionTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		e.config.ActionTimeout = d
		return nil
	}
}

// WithMaxChainDepth bounds trigger_event chains.
func WithMaxChainDepth(n int) Option {
	return func(e *Engine) error {
		e.config.MaxChainDepth = n
		return nil
	}
}

// WithRuleCacheTTL sets the TTL for the matcher's active rule cache.
func WithRuleCacheTTL(d time.Duration) Option {
	return func(e *Engine) error {
		e.config.RuleCacheTTL = d
		return nil
	}
}

// WithSignatureTolerance bounds the accepted clock skew on inbound webhook
// timestamps.
func WithSignatureTolerance(d time.Duration) Option {
	return func(e *Engine) error {
		e.config.SignatureTolerance = d
		return nil
	}
}
