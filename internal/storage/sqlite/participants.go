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

const participantColumns = `id, group_purchase_id, user_id, dest_city, dest_province, dest_postal_code,
	quantity, joined_at, uses_optimized_shipping, chosen_rate_id, choice_recorded_at, withdrawn_at`

// ListActiveParticipants retrieves the non-withdrawn participants of a group purchase.
func (s *SQLiteStore) ListActiveParticipants(ctx context.Context, groupPurchaseID string) ([]*models.Participant, error) {
	return listActiveParticipants(ctx, s.readDB, groupPurchaseID)
}

func listActiveParticipants(ctx context.Context, q querier, groupPurchaseID string) ([]*models.Participant, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+participantColumns+` FROM participants
		 WHERE group_purchase_id = ? AND withdrawn_at IS NULL
		 ORDER BY joined_at ASC, id ASC`,
		groupPurchaseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []*models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}

	return participants, nil
}

// GetParticipant retrieves a participant record by ID.
func (s *SQLiteStore) GetParticipant(ctx context.Context, id string) (*models.Participant, error) {
	return getParticipant(ctx, s.readDB, id)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(r rowScanner) (*models.Participant, error) {
	p := &models.Participant{}
	var (
		joinedAt            int64
		optimized           int
		recorded, withdrawn sql.NullInt64
	)
	if err := r.Scan(&p.ID, &p.GroupPurchaseID, &p.UserID,
		&p.Destination.City, &p.Destination.Province, &p.Destination.PostalCode,
		&p.Quantity, &joinedAt, &optimized, &p.ChosenRateID, &recorded, &withdrawn); err != nil {
		return nil, err
	}
	p.JoinedAt = time.Unix(0, joinedAt).UTC()
	p.UsesOptimizedShipping = optimized != 0
	p.ChoiceRecordedAt = fromNanos(recorded)
	p.WithdrawnAt = fromNanos(withdrawn)
	return p, nil
}

func getParticipant(ctx context.Context, q querier, id string) (*models.Participant, error) {
	p, err := scanParticipant(q.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("participant %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

func getActiveParticipant(ctx context.Context, q querier, groupPurchaseID, userID string) (*models.Participant, error) {
	p, err := scanParticipant(q.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participants
		 WHERE group_purchase_id = ? AND user_id = ? AND withdrawn_at IS NULL`,
		groupPurchaseID, userID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("participant %s in %s: %w", userID, groupPurchaseID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active participant: %w", err)
	}
	return p, nil
}

func insertParticipant(ctx context.Context, q querier, p *models.Participant) error {
	// Generate ID if not set
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}

	optimized := 0
	if p.UsesOptimizedShipping {
		optimized = 1
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO participants (`+participantColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.GroupPurchaseID, p.UserID,
		p.Destination.City, p.Destination.Province, p.Destination.PostalCode,
		p.Quantity, p.JoinedAt.UnixNano(), optimized, p.ChosenRateID,
		toNanos(p.ChoiceRecordedAt), toNanos(p.WithdrawnAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s in %s: %w", p.UserID, p.GroupPurchaseID, storage.ErrDuplicateParticipant)
	}
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}
	return nil
}

func markWithdrawn(ctx context.Context, q querier, participantID string, at time.Time) error {
	res, err := q.ExecContext(ctx,
		"UPDATE participants SET withdrawn_at = ? WHERE id = ? AND withdrawn_at IS NULL",
		at.UnixNano(), participantID,
	)
	if err != nil {
		return fmt.Errorf("failed to withdraw participant: %w", err)
	}
	return requireOneRow(res, "participant", participantID)
}

func updateShippingChoice(ctx context.Context, q querier, participantID, rateID string, usedOptimized bool, at time.Time) error {
	optimized := 0
	if usedOptimized {
		optimized = 1
	}
	res, err := q.ExecContext(ctx,
		`UPDATE participants SET chosen_rate_id = ?, uses_optimized_shipping = ?, choice_recorded_at = ?
		 WHERE id = ? AND withdrawn_at IS NULL`,
		rateID, optimized, at.UnixNano(), participantID,
	)
	if err != nil {
		return fmt.Errorf("failed to record shipping choice: %w", err)
	}
	return requireOneRow(res, "participant", participantID)
}

func requireOneRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	return nil
}
