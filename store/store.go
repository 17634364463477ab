// Package store defines the composite Store interface for all Ripple
// persistence.
//
// Each subsystem defines its own store interface; the aggregate Store
// composes them all, so a backend implements one type.
package store

import (
	"context"

	"github.com/ripplehq/ripple/audit"
	"github.com/ripplehq/ripple/bankrule"
	"github.com/ripplehq/ripple/ledger"
	"github.com/ripplehq/ripple/queue"
	"github.com/ripplehq/ripple/rule"
)

// Store is the aggregate persistence interface.
type Store interface {
	rule.Store
	bankrule.Store
	queue.Store
	ledger.Store
	audit.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
