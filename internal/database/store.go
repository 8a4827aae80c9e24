package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/revbot/pkg/models"
)

// Store bundles the repositories into the single persistence capability
// consumed by the engine and the due scanner. Handlers may also use the
// repositories directly.
type Store struct {
	Users     *UserRepository
	Items     *StudyItemRepository
	Revisions *RevisionRepository
}

// NewStore creates the repository bundle over one connection
func NewStore(db *sqlx.DB) *Store {
	return &Store{
		Users:     NewUserRepository(db),
		Items:     NewStudyItemRepository(db),
		Revisions: NewRevisionRepository(db),
	}
}

// InsertRevisions implements engine.Store
func (s *Store) InsertRevisions(ctx context.Context, revs []models.Revision) ([]models.Revision, error) {
	return s.Revisions.InsertBatch(ctx, revs)
}

// GetRevision implements engine.Store
func (s *Store) GetRevision(ctx context.Context, id int64) (*models.Revision, error) {
	return s.Revisions.GetByID(ctx, id)
}

// GetRevisionByStage implements engine.Store
func (s *Store) GetRevisionByStage(ctx context.Context, studyItemID int64, stage int) (*models.Revision, error) {
	return s.Revisions.GetByStage(ctx, studyItemID, stage)
}

// TryComplete implements engine.Store
func (s *Store) TryComplete(ctx context.Context, revisionID, ownerID int64, at time.Time) (bool, error) {
	return s.Revisions.TryComplete(ctx, revisionID, ownerID, at)
}

// GetStudyItem implements engine.Store
func (s *Store) GetStudyItem(ctx context.Context, id int64) (*models.StudyItem, error) {
	return s.Items.GetByID(ctx, id)
}

// QueryDue implements scheduler.Store
func (s *Store) QueryDue(ctx context.Context, now time.Time, throttle time.Duration) ([]models.Revision, error) {
	return s.Revisions.QueryDue(ctx, now, throttle)
}

// TryMarkNotified implements scheduler.Store
func (s *Store) TryMarkNotified(ctx context.Context, revisionID int64, at time.Time, throttle time.Duration) (bool, error) {
	return s.Revisions.TryMarkNotified(ctx, revisionID, at, throttle)
}

// GetUser implements scheduler.Store
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.Users.GetByTelegramID(ctx, id)
}
