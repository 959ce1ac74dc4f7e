package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is portable between PostgreSQL and SQLite. Timestamps are integer
// nanoseconds since the epoch and amounts are integer e8s.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    wallet_kind TEXT NOT NULL,
    balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS savings_groups (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    admin_id TEXT NOT NULL REFERENCES users(id),
    contribution_amount BIGINT NOT NULL CHECK (contribution_amount > 0),
    frequency TEXT NOT NULL,
    max_members INTEGER NOT NULL,
    start_date BIGINT NOT NULL,
    current_cycle INTEGER NOT NULL DEFAULT 1,
    total_cycles INTEGER NOT NULL,
    next_payout_date BIGINT NOT NULL,
    status TEXT NOT NULL,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS group_members (
    group_id TEXT NOT NULL REFERENCES savings_groups(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL REFERENCES users(id),
    joined_at BIGINT NOT NULL,
    payout_order INTEGER NOT NULL,
    has_received_payout BOOLEAN NOT NULL DEFAULT FALSE,
    payout_date BIGINT,
    contribution_status TEXT NOT NULL,
    missed_cycles INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (group_id, user_id),
    UNIQUE (group_id, payout_order)
);

CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL REFERENCES users(id),
    kind TEXT NOT NULL,
    amount BIGINT NOT NULL CHECK (amount > 0),
    method TEXT NOT NULL,
    status TEXT NOT NULL,
    reference TEXT,
    created_at BIGINT NOT NULL,
    group_id TEXT REFERENCES savings_groups(id),
    cycle INTEGER,
    dedupe_key TEXT UNIQUE,
    settled_at BIGINT
);

CREATE TABLE IF NOT EXISTS notifications (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id),
    group_id TEXT,
    kind TEXT NOT NULL,
    title TEXT NOT NULL,
    message TEXT NOT NULL,
    is_read BOOLEAN NOT NULL DEFAULT FALSE,
    attributes TEXT NOT NULL DEFAULT '{}',
    created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_group_members_user_id ON group_members(user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id, created_at);
CREATE INDEX IF NOT EXISTS idx_transactions_reference ON transactions(reference);
CREATE INDEX IF NOT EXISTS idx_transactions_group_cycle ON transactions(group_id, cycle);
CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status, created_at);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_savings_groups_status ON savings_groups(status, start_date);
`

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
