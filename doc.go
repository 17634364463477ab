// Package ripple provides an organization-scoped workflow automation engine
// for Go.
//
// Ripple is a library, not a service. Import it into your application to
// react to domain events (membership changes, donations, grant submissions,
// bank-feed transactions, payment-provider webhooks) with user-defined rules
// that run ordered actions: queue an email, create a task, mutate a record,
// call a signed outbound webhook, or chain into a new event.
//
// Key features:
//   - Durable work queue with atomic multi-worker claiming and dead-lettering
//   - Idempotency ledger for externally delivered webhook events
//   - Pure condition-tree evaluator (all/any combinators, dotted field paths)
//   - Deterministic priority matcher for bank-transaction categorization
//   - HMAC-SHA256 verification on inbound webhooks, signing on outbound calls
//   - Composable store pattern with multiple backends (Postgres, SQLite, Memory)
//
// Quick start:
//
//	eng, err := ripple.New(
//	    ripple.WithStore(memoryStore),
//	    ripple.WithMailer(mailer),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	eng.Rules().Create(ctx, rule.Input{
//	    OrgID:         "org_123",
//	    Name:          "thank large donors",
//	    TriggerEvents: []string{"donation.received"},
//	    Conditions:    condition.Node{Field: "amount_cents", Op: condition.OpGt, Value: 10000},
//	    Actions:       []rule.Action{{Type: rule.ActionSendEmail, Params: emailParams}},
//	})
//
//	eng.Emit(ctx, event.DomainEvent{
//	    OrgID:   "org_123",
//	    Type:    "donation.received",
//	    Payload: map[string]any{"amount_cents": 15000},
//	})
//
//	// From your scheduler (cron, queue trigger, systemd timer):
//	result, _ := eng.RunBatch(ctx, 25)
package ripple
