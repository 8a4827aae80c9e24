package excel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/example/revbot/pkg/models"
)

type fakeItemStore struct {
	created []*models.StudyItem
	failOn  string
	nextID  int64
}

func (s *fakeItemStore) Create(_ context.Context, item *models.StudyItem) error {
	if item.Name == s.failOn {
		return errors.New("storage unavailable")
	}
	s.nextID++
	item.ID = s.nextID
	s.created = append(s.created, item)
	return nil
}

type fakeScheduleGenerator struct {
	scheduled []int64
	failOn    int64
}

func (g *fakeScheduleGenerator) CreateSchedule(_ context.Context, item *models.StudyItem) ([]models.Revision, error) {
	if item.ID == g.failOn {
		return nil, errors.New("schedule failed")
	}
	g.scheduled = append(g.scheduled, item.ID)
	return []models.Revision{{StudyItemID: item.ID, UserID: item.UserID}}, nil
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "items.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func writeXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		for j, cell := range row {
			name, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellValue("Sheet1", name, cell); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "items.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save xlsx: %v", err)
	}
	return path
}

func TestImportCSV(t *testing.T) {
	path := writeCSV(t, strings.Join([]string{
		"Name,Subject,Notes",
		"Cell structure,Biology,Chapter 3",
		"Acids and bases,Chemistry,",
		",Physics,orphan row",
		"Newton's laws",
	}, "\n"))

	store := &fakeItemStore{}
	gen := &fakeScheduleGenerator{}
	im := NewImporter(store, gen)

	result, err := im.Import(context.Background(), 7, ImportConfig{FilePath: path})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.TotalProcessed != 4 {
		t.Errorf("TotalProcessed = %d, want 4 (header skipped)", result.TotalProcessed)
	}
	if result.Created != 3 || result.Skipped != 1 || len(result.Errors) != 0 {
		t.Errorf("result = %+v", result)
	}
	if len(store.created) != 3 {
		t.Fatalf("created items = %d", len(store.created))
	}
	first := store.created[0]
	if first.UserID != 7 || first.Name != "Cell structure" || first.Subject != "Biology" || first.Notes != "Chapter 3" || !first.Active {
		t.Errorf("first item = %+v", first)
	}
	if store.created[2].Subject != "" {
		t.Errorf("short row subject = %q, want empty", store.created[2].Subject)
	}
	if len(gen.scheduled) != 3 {
		t.Errorf("scheduled %d items, want 3", len(gen.scheduled))
	}
}

func TestImportXLSX(t *testing.T) {
	path := writeXLSX(t, [][]string{
		{"Name", "Subject", "Notes"},
		{"Photosynthesis", "Biology", ""},
		{"Stoichiometry", "Chemistry", "mole ratios"},
	})

	store := &fakeItemStore{}
	gen := &fakeScheduleGenerator{}
	im := NewImporter(store, gen)

	result, err := im.Import(context.Background(), 7, ImportConfig{FilePath: path})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Created != 2 || result.Skipped != 0 || len(result.Errors) != 0 {
		t.Errorf("result = %+v", result)
	}
	if len(store.created) != 2 || store.created[1].Notes != "mole ratios" {
		t.Errorf("created = %+v", store.created)
	}
}

func TestImportCollectsRowErrors(t *testing.T) {
	path := writeCSV(t, strings.Join([]string{
		"Name,Subject",
		"Good one,Biology",
		"Broken store,Chemistry",
		"Broken schedule,Physics",
		"Another good one,Other",
	}, "\n"))

	store := &fakeItemStore{failOn: "Broken store"}
	gen := &fakeScheduleGenerator{failOn: 2} // "Broken schedule" gets ID 2
	im := NewImporter(store, gen)

	result, err := im.Import(context.Background(), 7, ImportConfig{FilePath: path})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Created != 2 {
		t.Errorf("Created = %d, want 2", result.Created)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("Errors = %v, want 2 entries", result.Errors)
	}
	if !strings.Contains(result.Errors[0], "row 3") || !strings.Contains(result.Errors[1], "row 4") {
		t.Errorf("Errors = %v, want row numbers 3 and 4", result.Errors)
	}
}

func TestImportMissingFile(t *testing.T) {
	im := NewImporter(&fakeItemStore{}, &fakeScheduleGenerator{})
	if _, err := im.Import(context.Background(), 7, ImportConfig{FilePath: "does-not-exist.csv"}); err == nil {
		t.Error("Import succeeded, want error")
	}
}

func TestImportStartRowOverride(t *testing.T) {
	path := writeCSV(t, strings.Join([]string{
		"No header here,Biology",
		"Second row,Chemistry",
	}, "\n"))

	store := &fakeItemStore{}
	im := NewImporter(store, &fakeScheduleGenerator{})

	result, err := im.Import(context.Background(), 7, ImportConfig{FilePath: path, StartRow: 1})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.TotalProcessed != 2 || result.Created != 2 {
		t.Errorf("result = %+v", result)
	}
}
