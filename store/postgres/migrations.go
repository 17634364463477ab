package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Ripple store.
// It can be registered with the grove extension for orchestrated migration
// management (locking, version tracking, rollback support).
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
    trigger_events TEXT[] NOT NULL DEFAULT '{}',
    conditions     JSONB NOT NULL DEFAULT '{}',
    actions        JSONB NOT NULL DEFAULT '[]',
    is_active      BOOLEAN NOT NULL DEFAULT TRUE,
    stop_on_error  BOOLEAN NOT NULL DEFAULT FALSE,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    priority          INT NOT NULL DEFAULT 0,
    conditions        JSONB NOT NULL DEFAULT '[]',
    target_account_id TEXT NOT NULL DEFAULT '',
    category          TEXT NOT NULL DEFAULT '',
    is_active         BOOLEAN NOT NULL DEFAULT TRUE,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ripple_bank_rules_org ON ripple_bank_rules (org_id, priority DESC);
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
    event_payload JSONB,
    event_source  TEXT NOT NULL DEFAULT '',
    occurred_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    status        TEXT NOT NULL DEFAULT 'pending',
    scheduled_for TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    claimed_by    TEXT NOT NULL DEFAULT '',
    claimed_at    TIMESTAMPTZ,
    attempt_count INT NOT NULL DEFAULT 0,
    chain_depth   INT NOT NULL DEFAULT 0,
    last_error    TEXT NOT NULL DEFAULT '',
    completed_at  TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    processed_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
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
    detail      JSONB NOT NULL DEFAULT '{}',
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ripple_audit_org ON ripple_audit (org_id, recorded_at DESC);
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
