package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/revbot/internal/engine"
	"github.com/example/revbot/pkg/models"
)

// RevisionRepository handles database operations for revisions
type RevisionRepository struct {
	db *sqlx.DB
}

// NewRevisionRepository creates a new repository instance
func NewRevisionRepository(db *sqlx.DB) *RevisionRepository {
	return &RevisionRepository{db: db}
}

const revisionColumns = `
	r.id, r.study_item_id, r.user_id, r.stage, r.due_at, r.completed,
	r.completed_at, r.last_notified_at, r.created_at, r.updated_at`

// InsertBatch inserts revisions, skipping any whose (study_item_id,
// stage) already exists. That unique key is the schedule generator's
// idempotency guard: no stage is ever scheduled twice for an item.
// Only the actually inserted revisions are returned, with IDs set.
func (r *RevisionRepository) InsertBatch(ctx context.Context, revs []models.Revision) ([]models.Revision, error) {
	inserted := make([]models.Revision, 0, len(revs))
	for _, rev := range revs {
		rev.DueAt = rev.DueAt.UTC()

		if r.db.DriverName() == "postgres" {
			query := r.db.Rebind(`
				INSERT INTO revisions (study_item_id, user_id, stage, due_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT (study_item_id, stage) DO NOTHING
				RETURNING id
			`)
			err := r.db.QueryRowContext(ctx, query,
				rev.StudyItemID, rev.UserID, rev.Stage, rev.DueAt,
			).Scan(&rev.ID)
			if errors.Is(err, sql.ErrNoRows) {
				continue // stage already scheduled
			}
			if err != nil {
				return nil, fmt.Errorf("failed to insert revision stage %d for item %d: %w", rev.Stage, rev.StudyItemID, err)
			}
			inserted = append(inserted, rev)
			continue
		}

		result, err := r.db.ExecContext(ctx,
			`INSERT INTO revisions (study_item_id, user_id, stage, due_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (study_item_id, stage) DO NOTHING`,
			rev.StudyItemID, rev.UserID, rev.Stage, rev.DueAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert revision stage %d for item %d: %w", rev.Stage, rev.StudyItemID, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			continue // stage already scheduled
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get last insert ID: %w", err)
		}
		rev.ID = id
		inserted = append(inserted, rev)
	}
	return inserted, nil
}

// GetByID returns a revision by ID
func (r *RevisionRepository) GetByID(ctx context.Context, id int64) (*models.Revision, error) {
	var rev models.Revision
	query := r.db.Rebind(`
		SELECT ` + revisionColumns + `, i.name AS item_name
		FROM revisions r
		JOIN study_items i ON r.study_item_id = i.id
		WHERE r.id = ?
	`)
	err := r.db.GetContext(ctx, &rev, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get revision %d: %w", id, err)
	}
	return &rev, nil
}

// GetByStage returns the revision for a specific stage of a study item
func (r *RevisionRepository) GetByStage(ctx context.Context, studyItemID int64, stage int) (*models.Revision, error) {
	var rev models.Revision
	query := r.db.Rebind(`
		SELECT ` + revisionColumns + `, i.name AS item_name
		FROM revisions r
		JOIN study_items i ON r.study_item_id = i.id
		WHERE r.study_item_id = ? AND r.stage = ?
	`)
	err := r.db.GetContext(ctx, &rev, query, studyItemID, stage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get revision for item %d stage %d: %w", studyItemID, stage, err)
	}
	return &rev, nil
}

// GetNextPending returns the earliest uncompleted revision of an item
func (r *RevisionRepository) GetNextPending(ctx context.Context, studyItemID int64) (*models.Revision, error) {
	var rev models.Revision
	query := r.db.Rebind(`
		SELECT ` + revisionColumns + `, i.name AS item_name
		FROM revisions r
		JOIN study_items i ON r.study_item_id = i.id
		WHERE r.study_item_id = ? AND r.completed = FALSE
		ORDER BY r.due_at ASC
		LIMIT 1
	`)
	err := r.db.GetContext(ctx, &rev, query, studyItemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get next revision for item %d: %w", studyItemID, err)
	}
	return &rev, nil
}

// TryComplete atomically flips completed from FALSE to TRUE for the
// owner's revision. Returns false when the revision is missing, foreign
// or already completed, so of two concurrent completions exactly one
// observes true.
func (r *RevisionRepository) TryComplete(ctx context.Context, revisionID, ownerID int64, at time.Time) (bool, error) {
	query := r.db.Rebind(`
		UPDATE revisions
		SET completed = TRUE, completed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ? AND completed = FALSE
	`)
	result, err := r.db.ExecContext(ctx, query, at.UTC(), revisionID, ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to complete revision %d: %w", revisionID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// TryMarkNotified records a reminder send, re-checking the throttle
// condition in the same statement. Returns false when another scan tick
// already marked the revision within the window (or completed it).
func (r *RevisionRepository) TryMarkNotified(ctx context.Context, revisionID int64, at time.Time, throttle time.Duration) (bool, error) {
	cutoff := at.UTC().Add(-throttle)
	query := r.db.Rebind(`
		UPDATE revisions
		SET last_notified_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND completed = FALSE
		  AND (last_notified_at IS NULL OR last_notified_at <= ?)
	`)
	result, err := r.db.ExecContext(ctx, query, at.UTC(), revisionID, cutoff)
	if err != nil {
		return false, fmt.Errorf("failed to mark revision %d notified: %w", revisionID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// QueryDue returns uncompleted revisions of active items whose due date
// has passed and which are outside the notification throttle window,
// ordered by owner then due date.
func (r *RevisionRepository) QueryDue(ctx context.Context, now time.Time, throttle time.Duration) ([]models.Revision, error) {
	return r.queryDue(ctx, 0, now, throttle)
}

// QueryDueForUser is QueryDue restricted to a single owner's partition
func (r *RevisionRepository) QueryDueForUser(ctx context.Context, userID int64, now time.Time, throttle time.Duration) ([]models.Revision, error) {
	return r.queryDue(ctx, userID, now, throttle)
}

func (r *RevisionRepository) queryDue(ctx context.Context, userID int64, now time.Time, throttle time.Duration) ([]models.Revision, error) {
	cutoff := now.UTC().Add(-throttle)
	query := `
		SELECT ` + revisionColumns + `, i.name AS item_name
		FROM revisions r
		JOIN study_items i ON r.study_item_id = i.id
		WHERE r.completed = FALSE
		  AND i.active = TRUE
		  AND r.due_at <= ?
		  AND (r.last_notified_at IS NULL OR r.last_notified_at <= ?)
	`
	args := []interface{}{now.UTC(), cutoff}
	if userID != 0 {
		query += ` AND r.user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY r.user_id, r.due_at ASC`

	var revs []models.Revision
	if err := r.db.SelectContext(ctx, &revs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query due revisions: %w", err)
	}
	return revs, nil
}

// CountByItem returns how many revisions a study item has, optionally
// filtered by completion
func (r *RevisionRepository) CountByItem(ctx context.Context, studyItemID int64, completed *bool) (int, error) {
	query := `SELECT COUNT(*) FROM revisions WHERE study_item_id = ?`
	args := []interface{}{studyItemID}
	if completed != nil {
		query += ` AND completed = ?`
		args = append(args, *completed)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to count revisions for item %d: %w", studyItemID, err)
	}
	return count, nil
}

// CountByUser returns a user's pending and completed revision counts
func (r *RevisionRepository) CountByUser(ctx context.Context, userID int64) (pending, completed int, err error) {
	query := r.db.Rebind(`
		SELECT
			COUNT(*) FILTER (WHERE NOT completed),
			COUNT(*) FILTER (WHERE completed)
		FROM revisions WHERE user_id = ?
	`)
	row := r.db.QueryRowContext(ctx, query, userID)
	if err := row.Scan(&pending, &completed); err != nil {
		return 0, 0, fmt.Errorf("failed to count revisions for user %d: %w", userID, err)
	}
	return pending, completed, nil
}
