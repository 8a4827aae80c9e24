// Package excel imports study items in bulk from .xlsx or .csv files.
package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/example/revbot/pkg/models"
)

// ItemStore persists imported study items
type ItemStore interface {
	Create(ctx context.Context, item *models.StudyItem) error
}

// ScheduleGenerator creates the revision plan for an imported item
type ScheduleGenerator interface {
	CreateSchedule(ctx context.Context, item *models.StudyItem) ([]models.Revision, error)
}

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath  string // Path to the Excel or CSV file
	SheetName string // Name of the sheet to import (xlsx only)
	StartRow  int    // 1-based row to start from; rows above are headers
}

func (c ImportConfig) withDefaults() ImportConfig {
	if c.SheetName == "" {
		c.SheetName = "Sheet1"
	}
	if c.StartRow < 1 {
		c.StartRow = 2 // skip the header row
	}
	return c
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Created        int
	Skipped        int
	Errors         []string
}

// Importer turns spreadsheet rows into scheduled study items. Each row
// is name, subject (optional), notes (optional).
type Importer struct {
	items ItemStore
	sched ScheduleGenerator
}

// NewImporter creates an importer over the given store and generator
func NewImporter(items ItemStore, sched ScheduleGenerator) *Importer {
	return &Importer{items: items, sched: sched}
}

// Import reads the file and creates one study item per row, owned by
// userID, each with its initial revision schedule. Rows with an empty
// name are skipped; row-level failures are collected, not fatal.
func (im *Importer) Import(ctx context.Context, userID int64, config ImportConfig) (*ImportResult, error) {
	config = config.withDefaults()

	var rows [][]string
	var err error
	if strings.ToLower(filepath.Ext(config.FilePath)) == ".csv" {
		rows, err = readCSV(config.FilePath)
	} else {
		rows, err = readExcel(config.FilePath, config.SheetName)
	}
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Errors: make([]string, 0)}
	for i, row := range rows {
		rowNum := i + 1
		if rowNum < config.StartRow {
			continue
		}
		result.TotalProcessed++

		item := itemFromRow(userID, row)
		if item == nil {
			result.Skipped++
			continue
		}

		if err := im.items.Create(ctx, item); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		if _, err := im.sched.CreateSchedule(ctx, item); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		result.Created++
	}
	return result, nil
}

// itemFromRow maps a spreadsheet row to a study item; nil means skip
func itemFromRow(userID int64, row []string) *models.StudyItem {
	get := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	name := get(0)
	if name == "" {
		return nil
	}
	return &models.StudyItem{
		UserID:  userID,
		Name:    name,
		Subject: get(1),
		Notes:   get(2),
		Active:  true,
	}
}

// readExcel reads all rows of a sheet from an .xlsx file
func readExcel(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

// readCSV reads all records from a CSV file
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}
