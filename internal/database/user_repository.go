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

// UserRepository handles database operations for users
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new repository instance
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByTelegramID returns a user by Telegram ID
func (r *UserRepository) GetByTelegramID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	query := r.db.Rebind(`
		SELECT telegram_id, username, first_name, last_name, is_admin,
		       notification_enabled, notification_hour, created_at, updated_at
		FROM users WHERE telegram_id = ?
	`)
	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &user, nil
}

// Upsert inserts a new user or updates the profile fields of an
// existing one. Notification preferences are only written on insert so
// a re-/start doesn't reset them.
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	query := r.db.Rebind(`
		INSERT INTO users (telegram_id, username, first_name, last_name, is_admin,
		                   notification_enabled, notification_hour)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			updated_at = CURRENT_TIMESTAMP
	`)
	_, err := r.db.ExecContext(ctx, query,
		user.TelegramID,
		user.Username,
		user.FirstName,
		user.LastName,
		user.IsAdmin,
		user.NotificationEnabled,
		user.NotificationHour,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", user.TelegramID, err)
	}
	return nil
}

// SetNotificationEnabled toggles reminder delivery for a user
func (r *UserRepository) SetNotificationEnabled(ctx context.Context, id int64, enabled bool) error {
	query := r.db.Rebind(`
		UPDATE users SET notification_enabled = ?, updated_at = CURRENT_TIMESTAMP
		WHERE telegram_id = ?
	`)
	result, err := r.db.ExecContext(ctx, query, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to update notifications for user %d: %w", id, err)
	}
	return requireRow(result)
}

// SetNotificationHour sets the preferred reminder hour (0-23, UTC)
func (r *UserRepository) SetNotificationHour(ctx context.Context, id int64, hour int) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("notification hour %d out of range 0-23", hour)
	}
	query := r.db.Rebind(`
		UPDATE users SET notification_hour = ?, updated_at = CURRENT_TIMESTAMP
		WHERE telegram_id = ?
	`)
	result, err := r.db.ExecContext(ctx, query, hour, id)
	if err != nil {
		return fmt.Errorf("failed to update notification hour for user %d: %w", id, err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return engine.ErrNotFound
	}
	return nil
}
