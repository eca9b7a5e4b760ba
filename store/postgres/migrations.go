package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Herald store.
// It can be registered with a grove orchestrator for locking, version
// tracking and rollback support.
var Migrations = migrate.NewGroup("herald")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_herald_webhooks",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS herald_webhooks (
    id              TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    url             TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    secret          TEXT NOT NULL,
    events          TEXT[] NOT NULL DEFAULT '{}',
    enabled         BOOLEAN NOT NULL DEFAULT TRUE,
    retry_count     INT NOT NULL DEFAULT 3,
    timeout_seconds INT NOT NULL DEFAULT 30,
    rate_limit      INT NOT NULL DEFAULT 0,
    headers         JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_herald_webhooks_org ON herald_webhooks (organization_id, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS herald_webhooks`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_herald_deliveries",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				// No foreign key to herald_webhooks: deliveries outlive their
				// endpoint.
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS herald_deliveries (
    id               TEXT PRIMARY KEY,
    webhook_id       TEXT NOT NULL,
    organization_id  TEXT NOT NULL DEFAULT '',
    event_id         TEXT NOT NULL,
    event_type       TEXT NOT NULL,
    payload          JSON NOT NULL,
    attempt          INT NOT NULL DEFAULT 1,
    max_attempts     INT NOT NULL DEFAULT 3,
    status           TEXT NOT NULL DEFAULT 'pending',
    status_code      INT NOT NULL DEFAULT 0,
    response_time_ms BIGINT NOT NULL DEFAULT 0,
    error_message    TEXT NOT NULL DEFAULT '',
    delivered_at     TIMESTAMPTZ,
    failed_at        TIMESTAMPTZ,
    next_attempt_at  TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_herald_deliveries_retry ON herald_deliveries (next_attempt_at) WHERE status = 'failed' AND next_attempt_at IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_herald_deliveries_webhook ON herald_deliveries (webhook_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_herald_deliveries_org ON herald_deliveries (organization_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_herald_deliveries_event ON herald_deliveries (event_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS herald_deliveries`)
				return err
			},
		},
	)
}
