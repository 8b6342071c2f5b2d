package sqlite

import "database/sql"

// migrations contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
// Timestamps are stored as Unix nanoseconds.
const schema = `
CREATE TABLE IF NOT EXISTS group_purchases (
    id TEXT PRIMARY KEY,
    product_id TEXT NOT NULL,
    initiator_id TEXT NOT NULL,
    target_quantity INTEGER NOT NULL CHECK (target_quantity > 0),
    committed_quantity INTEGER NOT NULL DEFAULT 0
        CHECK (committed_quantity >= 0 AND committed_quantity <= target_quantity),
    status TEXT NOT NULL CHECK (status IN ('open', 'completed', 'closed', 'cancelled')),
    expires_at INTEGER,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    closed_at INTEGER,
    version INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS participants (
    id TEXT PRIMARY KEY,
    group_purchase_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    dest_city TEXT NOT NULL,
    dest_province TEXT NOT NULL,
    dest_postal_code TEXT NOT NULL,
    quantity INTEGER NOT NULL CHECK (quantity >= 1),
    joined_at INTEGER NOT NULL,
    uses_optimized_shipping INTEGER NOT NULL DEFAULT 0,
    chosen_rate_id TEXT NOT NULL DEFAULT '',
    choice_recorded_at INTEGER,
    withdrawn_at INTEGER,
    FOREIGN KEY (group_purchase_id) REFERENCES group_purchases(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_participants_active_user
    ON participants(group_purchase_id, user_id) WHERE withdrawn_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_participants_group_purchase_id ON participants(group_purchase_id);
CREATE INDEX IF NOT EXISTS idx_group_purchases_open_expiry
    ON group_purchases(expires_at) WHERE status = 'open' AND expires_at IS NOT NULL;
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
