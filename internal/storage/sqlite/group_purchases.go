package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/sambatan/internal/models"
	"github.com/mmynk/sambatan/internal/storage"
)

const groupPurchaseColumns = `id, product_id, initiator_id, target_quantity, committed_quantity,
	status, expires_at, created_at, updated_at, closed_at, version`

// CreateGroupPurchase persists a new group purchase to the database.
func (s *SQLiteStore) CreateGroupPurchase(ctx context.Context, gp *models.GroupPurchase) error {
	// Generate ID if not set
	if gp.ID == "" {
		gp.ID = uuid.New().String()
	}
	if gp.CreatedAt.IsZero() {
		gp.CreatedAt = time.Now().UTC()
	}
	if gp.UpdatedAt.IsZero() {
		gp.UpdatedAt = gp.CreatedAt
	}
	if gp.Status == "" {
		gp.Status = models.StatusOpen
	}
	if gp.Version == 0 {
		gp.Version = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_purchases (`+groupPurchaseColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		gp.ID, gp.ProductID, gp.InitiatorID, gp.TargetQuantity, gp.CommittedQuantity,
		string(gp.Status), toNanos(gp.ExpiresAt), gp.CreatedAt.UnixNano(), gp.UpdatedAt.UnixNano(),
		toNanos(gp.ClosedAt), gp.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group purchase: %w", err)
	}

	return nil
}

// GetGroupPurchase retrieves a group purchase by ID.
func (s *SQLiteStore) GetGroupPurchase(ctx context.Context, id string) (*models.GroupPurchase, error) {
	return getGroupPurchase(ctx, s.readDB, id)
}

// ListExpiredOpen returns IDs of open group purchases that expired at or before now.
func (s *SQLiteStore) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.readDB.QueryContext(ctx,
		`SELECT id FROM group_purchases
		 WHERE status = 'open' AND expires_at IS NOT NULL AND expires_at <= ?
		 ORDER BY expires_at ASC LIMIT ?`,
		now.UnixNano(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired group purchases: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group purchase id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expired group purchases: %w", err)
	}

	return ids, nil
}

func getGroupPurchase(ctx context.Context, q querier, id string) (*models.GroupPurchase, error) {
	gp := &models.GroupPurchase{}
	var (
		status              string
		expiresAt, closedAt sql.NullInt64
		createdAt, updated  int64
	)

	err := q.QueryRowContext(ctx,
		`SELECT `+groupPurchaseColumns+` FROM group_purchases WHERE id = ?`,
		id,
	).Scan(&gp.ID, &gp.ProductID, &gp.InitiatorID, &gp.TargetQuantity, &gp.CommittedQuantity,
		&status, &expiresAt, &createdAt, &updated, &closedAt, &gp.Version)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("group purchase %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group purchase: %w", err)
	}

	gp.Status = models.Status(status)
	gp.ExpiresAt = fromNanos(expiresAt)
	gp.ClosedAt = fromNanos(closedAt)
	gp.CreatedAt = time.Unix(0, createdAt).UTC()
	gp.UpdatedAt = time.Unix(0, updated).UTC()

	return gp, nil
}

func updateGroupPurchaseState(ctx context.Context, q querier, gp *models.GroupPurchase, expectedVersion int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE group_purchases
		 SET committed_quantity = ?, status = ?, closed_at = ?, updated_at = ?, version = ?
		 WHERE id = ? AND version = ?`,
		gp.CommittedQuantity, string(gp.Status), toNanos(gp.ClosedAt), gp.UpdatedAt.UnixNano(), gp.Version,
		gp.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update group purchase: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("group purchase %s at version %d: %w", gp.ID, expectedVersion, storage.ErrVersionConflict)
	}
	return nil
}
