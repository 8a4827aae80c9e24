package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/revbot/internal/engine"
	"github.com/example/revbot/pkg/models"
)

// StudyItemRepository handles database operations for study items
type StudyItemRepository struct {
	db *sqlx.DB
}

// NewStudyItemRepository creates a new repository instance
func NewStudyItemRepository(db *sqlx.DB) *StudyItemRepository {
	return &StudyItemRepository{db: db}
}

// Create inserts a new study item and sets its ID
func (r *StudyItemRepository) Create(ctx context.Context, item *models.StudyItem) error {
	if r.db.DriverName() == "postgres" {
		query := r.db.Rebind(`
			INSERT INTO study_items (user_id, name, subject, notes, active)
			VALUES (?, ?, ?, ?, ?) RETURNING id
		`)
		err := r.db.QueryRowContext(ctx, query,
			item.UserID, item.Name, item.Subject, item.Notes, item.Active,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("failed to create study item: %w", err)
		}
		return nil
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO study_items (user_id, name, subject, notes, active)
		 VALUES (?, ?, ?, ?, ?)`,
		item.UserID, item.Name, item.Subject, item.Notes, item.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to create study item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	item.ID = id
	return nil
}

// GetByID returns a study item by ID
func (r *StudyItemRepository) GetByID(ctx context.Context, id int64) (*models.StudyItem, error) {
	var item models.StudyItem
	query := r.db.Rebind(`
		SELECT id, user_id, name, subject, notes, active, created_at, updated_at
		FROM study_items WHERE id = ?
	`)
	err := r.db.GetContext(ctx, &item, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get study item %d: %w", id, err)
	}
	return &item, nil
}

// GetActiveByUser returns a user's active study items, oldest first
func (r *StudyItemRepository) GetActiveByUser(ctx context.Context, userID int64) ([]models.StudyItem, error) {
	var items []models.StudyItem
	query := r.db.Rebind(`
		SELECT id, user_id, name, subject, notes, active, created_at, updated_at
		FROM study_items
		WHERE user_id = ? AND active = TRUE
		ORDER BY created_at ASC
	`)
	if err := r.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get study items for user %d: %w", userID, err)
	}
	return items, nil
}

// SetSubject files a study item under a subject label
func (r *StudyItemRepository) SetSubject(ctx context.Context, id, userID int64, subject string) error {
	query := r.db.Rebind(`
		UPDATE study_items SET subject = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?
	`)
	result, err := r.db.ExecContext(ctx, query, subject, id, userID)
	if err != nil {
		return fmt.Errorf("failed to set subject for study item %d: %w", id, err)
	}
	return requireRow(result)
}

// Deactivate soft-deletes a study item. Its pending revisions stop
// appearing in due scans; nothing is hard-deleted.
func (r *StudyItemRepository) Deactivate(ctx context.Context, id, userID int64) error {
	query := r.db.Rebind(`
		UPDATE study_items SET active = FALSE, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ? AND active = TRUE
	`)
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate study item %d: %w", id, err)
	}
	return requireRow(result)
}
