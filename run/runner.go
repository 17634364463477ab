package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ripplehq/ripple/event"
	"github.com/ripplehq/ripple/observability"
	"github.com/ripplehq/ripple/rule"
)

// ErrRecursionLimit is returned when chained trigger_event actions exceed
// the configured depth bound. Defined here so the runner can classify it
// without importing the root package; the root package re-exports it.
var ErrRecursionLimit = errors.New("ripple: event chain recursion limit exceeded")

// Config configures action execution.
type Config struct {
	// ActionTimeout bounds each non-wait action.
	ActionTimeout time.Duration

	// MaxChainDepth bounds trigger_event chains.
	MaxChainDepth int
}

// Runner executes a rule's action list.
type Runner struct {
	collab  Collaborators
	sender  *Sender
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRunner creates a runner. Metrics may be nil.
func NewRunner(collab Collaborators, sender *Sender, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		collab:  collab,
		sender:  sender,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Result summarizes one rule execution.
type Result struct {
	// Completed is the number of actions that ran successfully.
	Completed int

	// Skipped is the number of actions not attempted after a stop.
	Skipped int

	// Failures holds the errors of failed actions in order.
	Failures []*ActionError
}

// Err returns the error the queue should act on: nil when every action
// succeeded, otherwise a transient failure if any failure is retryable,
// else the first permanent failure.
func (r Result) Err() *ActionError {
	var firstPermanent *ActionError
	for _, f := range r.Failures {
		if f.Transient {
			return f
		}
		if firstPermanent == nil {
			firstPermanent = f
		}
	}
	return firstPermanent
}

// RunRule executes the rule's actions in order against the event.
// chainDepth is the number of trigger_event hops that produced this event.
// With StopOnError set, the first failure skips all remaining actions;
// otherwise every action is attempted and failures are collected.
func (r *Runner) RunRule(ctx context.Context, rl *rule.Rule, evt event.DomainEvent, chainDepth int) Result {
	var res Result

	for i, a := range rl.Actions {
		if err := ctx.Err(); err != nil {
			res.Failures = append(res.Failures, transient(string(a.Type), i, err))
			res.Skipped = len(rl.Actions) - i - 1
			break
		}

		aerr := r.runAction(ctx, rl, evt, a, i, chainDepth)
		if aerr == nil {
			res.Completed++
			r.recordAction(a, "ok")
			continue
		}

		res.Failures = append(res.Failures, aerr)
		r.recordAction(a, outcomeLabel(aerr))

		r.logger.ErrorContext(ctx, "action failed",
			slog.String("rule_id", rl.ID.String()),
			slog.String("action_type", string(a.Type)),
			slog.Int("action_index", i),
			slog.Bool("transient", aerr.Transient),
			slog.Any("error", aerr.Err))

		if rl.StopOnError {
			res.Skipped = len(rl.Actions) - i - 1
			break
		}
	}

	return res
}

func (r *Runner) runAction(ctx context.Context, rl *rule.Rule, evt event.DomainEvent, a rule.Action, index, chainDepth int) *ActionError {
	at := string(a.Type)

	// wait manages its own duration and is exempt from the action timeout.
	if a.Type == rule.ActionWait {
		return r.runWait(ctx, a, index)
	}

	actx := ctx
	if r.cfg.ActionTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, r.cfg.ActionTimeout)
		defer cancel()
	}

	switch a.Type {
	case rule.ActionSendEmail:
		p, err := a.SendEmail()
		if err != nil {
			return permanent(at, index, err)
		}
		if r.collab.Mailer == nil {
			return permanent(at, index, errors.New("no mailer configured"))
		}
		if err := r.collab.Mailer.SendTemplate(actx, evt.OrgID, p.To, p.Template, p.Metadata); err != nil {
			return classify(at, index, err)
		}
		return nil

	case rule.ActionCreateTask:
		p, err := a.CreateTask()
		if err != nil {
			return permanent(at, index, err)
		}
		if r.collab.TaskCreator == nil {
			return permanent(at, index, errors.New("no task creator configured"))
		}
		in := TaskInput{
			OrgID:       evt.OrgID,
			Title:       p.Title,
			Description: p.Description,
			AssigneeID:  p.AssigneeID,
		}
		if p.DueInDays > 0 {
			due := time.Now().UTC().AddDate(0, 0, p.DueInDays)
			in.DueAt = &due
		}
		if err := r.collab.TaskCreator.CreateTask(actx, in); err != nil {
			return classify(at, index, err)
		}
		return nil

	case rule.ActionUpdateRecord:
		p, err := a.UpdateRecord()
		if err != nil {
			return permanent(at, index, err)
		}
		if r.collab.RecordMutator == nil {
			return permanent(at, index, errors.New("no record mutator configured"))
		}
		if err := r.collab.RecordMutator.UpdateRecord(actx, evt.OrgID, p.EntityType, p.EntityID, p.Fields); err != nil {
			return classify(at, index, err)
		}
		return nil

	case rule.ActionCallWebhook:
		p, err := a.CallWebhook()
		if err != nil {
			return permanent(at, index, err)
		}
		if r.sender == nil {
			return permanent(at, index, errors.New("no sender configured"))
		}
		retryable, err := r.sender.Call(actx, p, evt)
		if err != nil {
			if retryable {
				return transient(at, index, err)
			}
			return permanent(at, index, err)
		}
		return nil

	case rule.ActionTriggerEvent:
		p, err := a.TriggerEvent()
		if err != nil {
			return permanent(at, index, err)
		}
		if r.collab.ChainEmitter == nil {
			return permanent(at, index, errors.New("no chain emitter configured"))
		}
		if chainDepth+1 > r.cfg.MaxChainDepth {
			return permanent(at, index, fmt.Errorf("%w: depth %d", ErrRecursionLimit, chainDepth+1))
		}
		if err := r.collab.ChainEmitter.EmitChained(actx, evt.OrgID, p.EventType, p.Payload, chainDepth+1); err != nil {
			return classify(at, index, err)
		}
		return nil

	default:
		return permanent(at, index, fmt.Errorf("unknown action type %q", a.Type))
	}
}

// runWait sleeps for the configured duration, honoring cancellation.
func (r *Runner) runWait(ctx context.Context, a rule.Action, index int) *ActionError {
	p, err := a.Wait()
	if err != nil {
		return permanent(string(a.Type), index, err)
	}

	select {
	case <-time.After(time.Duration(p.Seconds) * time.Second):
		return nil
	case <-ctx.Done():
		return transient(string(a.Type), index, ctx.Err())
	}
}

// classify treats collaborator errors as transient unless they carry their
// own ActionError classification. Deadline expiry is always transient.
func classify(actionType string, index int, err error) *ActionError {
	var aerr *ActionError
	if errors.As(err, &aerr) {
		return &ActionError{ActionType: actionType, Index: index, Transient: aerr.Transient, Err: err}
	}
	return transient(actionType, index, err)
}

func (r *Runner) recordAction(a rule.Action, outcome string) {
	if r.metrics != nil {
		r.metrics.RecordAction(string(a.Type), outcome)
	}
}

func outcomeLabel(aerr *ActionError) string {
	if aerr.Transient {
		return "transient_error"
	}
	return "permanent_error"
}
