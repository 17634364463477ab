package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Ripple store (SQLite).
var Migrations = migrate.NewGroup("ripple")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_ripple_rules",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ripple_rules (
    id             TEXT PRIMARY KEY,
    org_id         TEXT NOT NULL DEFAULT '',
    name           TEXT NOT NULL DEFAULT '',
    trigger_events TEXT NOT NULL DEFAULT '[]',
    conditions     TEXT NOT NULL DEFAULT '{}',
    actions        TEXT NOT NULL DEFAULT '[]',
    is_active      INTEGER NOT NULL DEFAULT 1,
    stop_on_error  INTEGER NOT NULL DEFAULT 0,
    created_at     TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at     TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_ripple_rules_org ON ripple_rules (org_id);
CREATE INDEX IF NOT EXISTS idx_ripple_rules_org_active ON ripple_rules (org_id, is_active);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ripple_rules`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_ripple_bank_rules",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ripple_bank_rules (
    id                TEXT PRIMARY KEY,
    org_id            TEXT NOT NULL DEFAULT '',
    name              TEXT NOT NULL DEFAULT '',
    priority          INTEGER NOT NULL DEFAULT 0,
    conditions        TEXT NOT NULL DEFAULT '[]',
    target_account_id TEXT NOT NULL DEFAULT '',
    category          TEXT NOT NULL DEFAULT '',
    is_active         INTEGER NOT NULL DEFAULT 1,
    created_at        TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at        TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_ripple_bank_rules_org ON ripple_bank_rules (org_id, priority);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ripple_bank_rules`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_ripple_queue_items",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ripple_queue_items (
    id            TEXT PRIMARY KEY,
    org_id        TEXT NOT NULL DEFAULT '',
    rule_id       TEXT NOT NULL DEFAULT '',
    event_type    TEXT NOT NULL DEFAULT '',
    event_payload TEXT,
    event_source  TEXT NOT NULL DEFAULT '',
    occurred_at   TEXT NOT NULL DEFAULT (datetime('now')),
    status        TEXT NOT NULL DEFAULT 'pending',
    scheduled_for TEXT NOT NULL DEFAULT (datetime('now')),
    claimed_by    TEXT NOT NULL DEFAULT '',
    claimed_at    TEXT,
    attempt_count INTEGER NOT NULL DEFAULT 0,
    chain_depth   INTEGER NOT NULL DEFAULT 0,
    last_error    TEXT NOT NULL DEFAULT '',
    completed_at  TEXT,
    created_at    TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_ripple_queue_due ON ripple_queue_items (scheduled_for, created_at) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_ripple_queue_org ON ripple_queue_items (org_id);
CREATE INDEX IF NOT EXISTS idx_ripple_queue_status ON ripple_queue_items (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ripple_queue_items`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_ripple_ledger",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ripple_ledger (
    id                TEXT PRIMARY KEY,
    org_id            TEXT NOT NULL DEFAULT '',
    provider          TEXT NOT NULL DEFAULT '',
    external_event_id TEXT NOT NULL DEFAULT '',
    processed_at      TEXT NOT NULL DEFAULT (datetime('now')),
    outcome           TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_ripple_ledger_external ON ripple_ledger (provider, external_event_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ripple_ledger`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_ripple_audit",
			Version: "20250101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ripple_audit (
    id          TEXT PRIMARY KEY,
    org_id      TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL DEFAULT '',
    subject     TEXT NOT NULL DEFAULT '',
    detail      TEXT NOT NULL DEFAULT '{}',
    recorded_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_ripple_audit_org ON ripple_audit (org_id, recorded_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ripple_audit`)
				return err
			},
		},
	)
}
