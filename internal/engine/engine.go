// Package engine implements the spaced-repetition core: the interval
// table, the schedule generator, the revision state machine and the
// completion handler. Storage and delivery are injected capabilities;
// the engine itself holds no process-wide state.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/example/revbot/pkg/models"
)

// Policy selects how many revisions the schedule generator emits when
// a study item is created.
type Policy int

const (
	// PolicyNextStage generates only the stage-0 revision; each
	// completion creates the next stage. Exactly one active revision
	// per study item at a time.
	PolicyNextStage Policy = iota
	// PolicyFullBatch precomputes a revision for every stage in the
	// interval table up front.
	PolicyFullBatch
)

// Store is the persistence capability the engine consumes. Implemented
// by the database repositories.
type Store interface {
	InsertRevisions(ctx context.Context, revs []models.Revision) ([]models.Revision, error)
	GetRevision(ctx context.Context, id int64) (*models.Revision, error)
	GetRevisionByStage(ctx context.Context, studyItemID int64, stage int) (*models.Revision, error)
	TryComplete(ctx context.Context, revisionID, ownerID int64, at time.Time) (bool, error)
	GetStudyItem(ctx context.Context, id int64) (*models.StudyItem, error)
}

// Engine ties the interval table and the store together.
type Engine struct {
	store  Store
	table  IntervalTable
	policy Policy

	now func() time.Time
}

// New creates an engine. The table defines the revision schedule; the
// policy controls batch versus next-stage generation.
func New(store Store, table IntervalTable, policy Policy) *Engine {
	return &Engine{
		store:  store,
		table:  table,
		policy: policy,
		now:    time.Now,
	}
}

// Table returns the interval table, for display of upcoming dates.
func (e *Engine) Table() IntervalTable {
	return e.table
}

// CreateSchedule generates the revision plan for a newly created study
// item and persists it. The returned revisions are sorted by due date,
// one per stage. Insertion is idempotent per (study item, stage), so
// calling it twice for the same item never duplicates a stage.
func (e *Engine) CreateSchedule(ctx context.Context, item *models.StudyItem) ([]models.Revision, error) {
	if item == nil || item.ID == 0 {
		return nil, fmt.Errorf("create schedule: study item is not persisted")
	}
	if !item.Active {
		return nil, ErrItemInactive
	}

	now := e.now().UTC()
	stages := 1
	if e.policy == PolicyFullBatch {
		stages = e.table.Len()
	}

	revs := make([]models.Revision, 0, stages)
	for stage := 0; stage < stages; stage++ {
		revs = append(revs, models.Revision{
			StudyItemID: item.ID,
			UserID:      item.UserID,
			Stage:       stage,
			DueAt:       now.Add(e.table.OffsetForStage(stage)),
		})
	}

	inserted, err := e.store.InsertRevisions(ctx, revs)
	if err != nil {
		return nil, fmt.Errorf("failed to persist schedule for item %d: %w", item.ID, err)
	}
	return inserted, nil
}

// Complete marks a revision as done on behalf of its owner and
// schedules the successor stage. The completed transition is a
// conditional update, so of two concurrent calls exactly one proceeds;
// the other gets ErrAlreadyCompleted. Completing a revision of a
// deactivated item returns ErrItemInactive and creates no successor.
func (e *Engine) Complete(ctx context.Context, revisionID, ownerID int64) (*models.Revision, error) {
	rev, err := e.store.GetRevision(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	if rev.UserID != ownerID {
		// Foreign revisions are indistinguishable from missing ones.
		return nil, ErrNotFound
	}
	if rev.Completed {
		return nil, ErrAlreadyCompleted
	}

	now := e.now().UTC()
	ok, err := e.store.TryComplete(ctx, revisionID, ownerID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to complete revision %d: %w", revisionID, err)
	}
	if !ok {
		// Lost the race against a concurrent completion.
		return nil, ErrAlreadyCompleted
	}

	item, err := e.store.GetStudyItem(ctx, rev.StudyItemID)
	if err != nil {
		return nil, err
	}
	if !item.Active {
		return nil, ErrItemInactive
	}

	// The successor stage keeps incrementing past the table; the offset
	// clamps to the last interval, which is the fallback cadence.
	next := models.Revision{
		StudyItemID: rev.StudyItemID,
		UserID:      rev.UserID,
		Stage:       rev.Stage + 1,
		DueAt:       now.Add(e.table.OffsetForStage(rev.Stage + 1)),
	}

	inserted, err := e.store.InsertRevisions(ctx, []models.Revision{next})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule stage %d for item %d: %w", next.Stage, next.StudyItemID, err)
	}
	if len(inserted) > 0 {
		return &inserted[0], nil
	}

	// Stage already present: the full-batch policy precreated it, or a
	// concurrent caller inserted it first.
	return e.store.GetRevisionByStage(ctx, rev.StudyItemID, rev.Stage+1)
}

// UpcomingDates returns the due dates an item would get for the next n
// stages starting from the given stage, relative to from. Read-only
// display helper for the /list command.
func (e *Engine) UpcomingDates(from time.Time, startStage, n int) []time.Time {
	dates := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		dates = append(dates, from.Add(e.table.OffsetForStage(startStage+i)))
	}
	return dates
}
