package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/revbot/pkg/models"
)

// memStore is an in-memory Store with the same conditional-update
// semantics as the SQL implementation.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	revs    map[int64]*models.Revision
	byStage map[stageKey]int64
	items   map[int64]*models.StudyItem
}

type stageKey struct {
	item  int64
	stage int
}

func newMemStore() *memStore {
	return &memStore{
		revs:    make(map[int64]*models.Revision),
		byStage: make(map[stageKey]int64),
		items:   make(map[int64]*models.StudyItem),
	}
}

func (s *memStore) addItem(item models.StudyItem) *models.StudyItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	item.ID = s.nextID
	s.items[item.ID] = &item
	return &item
}

func (s *memStore) InsertRevisions(_ context.Context, revs []models.Revision) ([]models.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := make([]models.Revision, 0, len(revs))
	for _, rev := range revs {
		rev := rev
		key := stageKey{rev.StudyItemID, rev.Stage}
		if _, exists := s.byStage[key]; exists {
			continue
		}
		s.nextID++
		rev.ID = s.nextID
		s.revs[rev.ID] = &rev
		s.byStage[key] = rev.ID
		inserted = append(inserted, rev)
	}
	return inserted, nil
}

func (s *memStore) GetRevision(_ context.Context, id int64) (*models.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rev, ok := s.revs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rev
	return &cp, nil
}

func (s *memStore) GetRevisionByStage(_ context.Context, studyItemID int64, stage int) (*models.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byStage[stageKey{studyItemID, stage}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.revs[id]
	return &cp, nil
}

func (s *memStore) TryComplete(_ context.Context, revisionID, ownerID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rev, ok := s.revs[revisionID]
	if !ok || rev.UserID != ownerID || rev.Completed {
		return false, nil
	}
	rev.Completed = true
	rev.CompletedAt = &at
	return true, nil
}

func (s *memStore) GetStudyItem(_ context.Context, id int64) (*models.StudyItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (s *memStore) revisionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.revs)
}

func testTable(t *testing.T) IntervalTable {
	t.Helper()
	table, err := NewIntervalTableDays([]int{1, 3, 7, 15, 30})
	if err != nil {
		t.Fatalf("NewIntervalTableDays: %v", err)
	}
	return table
}

func newTestEngine(t *testing.T, store *memStore, policy Policy, now time.Time) *Engine {
	t.Helper()
	e := New(store, testTable(t), policy)
	e.now = func() time.Time { return now }
	return e
}

func TestCreateScheduleNextPolicy(t *testing.T) {
	store := newMemStore()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	e := newTestEngine(t, store, PolicyNextStage, now)
	item := store.addItem(models.StudyItem{UserID: 7, Name: "Biology Chapter 3", Active: true})

	revs, err := e.CreateSchedule(context.Background(), item)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if len(revs) != 1 {
		t.Fatalf("got %d revisions, want 1", len(revs))
	}
	rev := revs[0]
	if rev.Stage != 0 {
		t.Errorf("stage = %d, want 0", rev.Stage)
	}
	if want := now.Add(24 * time.Hour); !rev.DueAt.Equal(want) {
		t.Errorf("due = %v, want %v", rev.DueAt, want)
	}
	if rev.Completed {
		t.Error("new revision must not be completed")
	}
}

func TestCreateScheduleFullBatch(t *testing.T) {
	store := newMemStore()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	e := newTestEngine(t, store, PolicyFullBatch, now)
	item := store.addItem(models.StudyItem{UserID: 7, Name: "Physics", Active: true})

	revs, err := e.CreateSchedule(context.Background(), item)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if len(revs) != 5 {
		t.Fatalf("got %d revisions, want 5", len(revs))
	}
	wantDays := []int{1, 3, 7, 15, 30}
	for i, rev := range revs {
		if rev.Stage != i {
			t.Errorf("revision %d: stage = %d, want %d", i, rev.Stage, i)
		}
		want := now.Add(time.Duration(wantDays[i]) * 24 * time.Hour)
		if !rev.DueAt.Equal(want) {
			t.Errorf("revision %d: due = %v, want %v", i, rev.DueAt, want)
		}
		if i > 0 && !revs[i-1].DueAt.Before(rev.DueAt) {
			t.Errorf("due dates not strictly ascending at %d", i)
		}
	}
}

func TestCreateScheduleIdempotent(t *testing.T) {
	store := newMemStore()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	e := newTestEngine(t, store, PolicyFullBatch, now)
	item := store.addItem(models.StudyItem{UserID: 7, Name: "Chemistry", Active: true})

	if _, err := e.CreateSchedule(context.Background(), item); err != nil {
		t.Fatalf("first CreateSchedule: %v", err)
	}
	again, err := e.CreateSchedule(context.Background(), item)
	if err != nil {
		t.Fatalf("second CreateSchedule: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second call inserted %d revisions, want 0", len(again))
	}
	if got := store.revisionCount(); got != 5 {
		t.Errorf("store holds %d revisions, want 5", got)
	}
}

func TestCreateScheduleInactiveItem(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, store, PolicyNextStage, time.Now())
	item := store.addItem(models.StudyItem{UserID: 7, Name: "Old notes", Active: false})

	if _, err := e.CreateSchedule(context.Background(), item); !errors.Is(err, ErrItemInactive) {
		t.Fatalf("CreateSchedule on inactive item: err = %v, want ErrItemInactive", err)
	}
}

func TestCompleteAdvancesStage(t *testing.T) {
	store := newMemStore()
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	e := newTestEngine(t, store, PolicyNextStage, created)
	item := store.addItem(models.StudyItem{UserID: 7, Name: "Biology", Active: true})
	revs, err := e.CreateSchedule(context.Background(), item)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	// Completed half a day after it came due.
	completedAt := created.Add(36 * time.Hour)
	e.now = func() time.Time { return completedAt }

	next, err := e.Complete(context.Background(), revs[0].ID, 7)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if next.Stage != 1 {
		t.Errorf("successor stage = %d, want 1", next.Stage)
	}
	if want := completedAt.Add(3 * 24 * time.Hour); !next.DueAt.Equal(want) {
		t.Errorf("successor due = %v, want %v", next.DueAt, want)
	}

	done, err := store.GetRevision(context.Background(), revs[0].ID)
	if err != nil {
		t.Fatalf("GetRevision: %v", err)
	}
	if !done.Completed || done.CompletedAt == nil || !done.CompletedAt.Equal(completedAt) {
		t.Errorf("completed revision = %+v, want completed at %v", done, completedAt)
	}
}

func TestCompleteFallbackCadence(t *testing.T) {
	store := newMemStore()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	e := newTestEngine(t, store, PolicyNextStage, now)
	item := store.addItem(models.StudyItem{UserID: 7, Name: "Biology", Active: true})

	// Final defined stage (4 of a 5-entry table).
	revs, err := store.InsertRevisions(context.Background(), []models.Revision{
		{StudyItemID: item.ID, UserID: 7, Stage: 4, DueAt: now.Add(-time.Hour)},
	})
	if err != nil {
		t.Fatalf("InsertRevisions: %v", err)
	}

	next, err := e.Complete(context.Background(), revs[0].ID, 7)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if next.Stage != 5 {
		t.Errorf("successor stage = %d, want 5", next.Stage)
	}
	// Past the table's end the last interval repeats.
	if want := now.Add(30 * 24 * time.Hour); !next.DueAt.Equal(want) {
		t.Errorf("successor due = %v, want fallback cadence %v", next.DueAt, want)
	}
}

func TestCompleteIdempotent(t *testing.T) {
	store := newMemStore()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	e := newTestEngine(t, store, PolicyNextStage, now)
	item := store.addItem(models.StudyItem{UserID: 7, Name: "Biology", Active: true})
	revs, _ := e.CreateSchedule(context.Background(), item)

	if _, err := e.Complete(context.Background(), revs[0].ID, 7); err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	if _, err := e.Complete(context.Background(), revs[0].ID, 7); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("second Complete: err = %v, want ErrAlreadyCompleted", err)
	}
	// Stage 0 completed + stage 1 successor, nothing else.
	if got := store.revisionCount(); got != 2 {
		t.Errorf("store holds %d revisions, want 2", got)
	}
}

func TestCompleteConcurrent(t *testing.T) {
	store := newMemStore()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	e := newTestEngine(t, store, PolicyNextStage, now)
	item := store.addItem(models.StudyItem{UserID: 7, Name: "Biology", Active: true})
	revs, _ := e.CreateSchedule(context.Background(), item)

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Complete(context.Background(), revs[0].ID, 7)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, already int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrAlreadyCompleted):
			already++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d callers succeeded, want exactly 1", succeeded)
	}
	if already != callers-1 {
		t.Errorf("%d callers got ErrAlreadyCompleted, want %d", already, callers-1)
	}
	// Exactly one successor.
	if got := store.revisionCount(); got != 2 {
		t.Errorf("store holds %d revisions, want 2", got)
	}
}

func TestCompleteReturnsExistingSuccessor(t *testing.T) {
	store := newMemStore()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	e := newTestEngine(t, store, PolicyFullBatch, now)
	item := store.addItem(models.StudyItem{UserID: 7, Name: "Biology", Active: true})
	revs, _ := e.CreateSchedule(context.Background(), item)

	next, err := e.Complete(context.Background(), revs[0].ID, 7)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	// Full-batch policy already created stage 1; Complete must hand back
	// that revision, not a duplicate.
	if next.ID != revs[1].ID {
		t.Errorf("successor ID = %d, want existing %d", next.ID, revs[1].ID)
	}
	if got := store.revisionCount(); got != 5 {
		t.Errorf("store holds %d revisions, want 5", got)
	}
}

func TestCompleteOwnershipAndMissing(t *testing.T) {
	store := newMemStore()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	e := newTestEngine(t, store, PolicyNextStage, now)
	item := store.addItem(models.StudyItem{UserID: 7, Name: "Biology", Active: true})
	revs, _ := e.CreateSchedule(context.Background(), item)

	if _, err := e.Complete(context.Background(), revs[0].ID, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign owner: err = %v, want ErrNotFound", err)
	}
	if _, err := e.Complete(context.Background(), 424242, 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown revision: err = %v, want ErrNotFound", err)
	}
}

func TestCompleteInactiveItemSkipsSuccessor(t *testing.T) {
	store := newMemStore()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	e := newTestEngine(t, store, PolicyNextStage, now)
	item := store.addItem(models.StudyItem{UserID: 7, Name: "Biology", Active: true})
	revs, _ := e.CreateSchedule(context.Background(), item)

	store.mu.Lock()
	store.items[item.ID].Active = false
	store.mu.Unlock()

	if _, err := e.Complete(context.Background(), revs[0].ID, 7); !errors.Is(err, ErrItemInactive) {
		t.Fatalf("Complete: err = %v, want ErrItemInactive", err)
	}

	// The completion itself sticks, but no successor appears.
	done, _ := store.GetRevision(context.Background(), revs[0].ID)
	if !done.Completed {
		t.Error("revision should be completed even when the item is inactive")
	}
	if got := store.revisionCount(); got != 1 {
		t.Errorf("store holds %d revisions, want 1", got)
	}
}

func TestUpcomingDates(t *testing.T) {
	store := newMemStore()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	e := newTestEngine(t, store, PolicyNextStage, now)

	dates := e.UpcomingDates(now, 3, 4)
	wantDays := []int{15, 30, 30, 30} // stages 3, 4, then clamped
	for i, d := range dates {
		want := now.Add(time.Duration(wantDays[i]) * 24 * time.Hour)
		if !d.Equal(want) {
			t.Errorf("date %d = %v, want %v", i, d, want)
		}
	}
}
