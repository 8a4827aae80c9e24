package bot

import (
	"strings"
	"testing"
	"time"

	"github.com/example/revbot/internal/engine"
	"github.com/example/revbot/pkg/models"
)

func TestFormatInterval(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Minute, "1 hour"},
		{time.Hour, "1 hour"},
		{5 * time.Hour, "5 hours"},
		{24 * time.Hour, "1 day"},
		{3 * 24 * time.Hour, "3 days"},
		{7 * 24 * time.Hour, "1 week"},
		{14 * 24 * time.Hour, "2 weeks"},
		{15 * 24 * time.Hour, "2 weeks"},
		{30 * 24 * time.Hour, "1 month"},
		{45 * 24 * time.Hour, "45 days"},
	}
	for _, tt := range tests {
		if got := formatInterval(tt.d); got != tt.want {
			t.Errorf("formatInterval(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		due  time.Time
		want string
	}{
		{"overdue", now.Add(-time.Hour), "due now"},
		{"due exactly now", now, "due now"},
		{"later today", now.Add(6 * time.Hour), "due today"},
		{"tomorrow", now.Add(30 * time.Hour), "review in 1 day"},
		{"next week", now.Add(7 * 24 * time.Hour), "review in 7 days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatDue(tt.due, now); got != tt.want {
				t.Errorf("formatDue(%v) = %q, want %q", tt.due, got, tt.want)
			}
		})
	}
}

func TestReminderText(t *testing.T) {
	table, err := engine.NewIntervalTableDays([]int{1, 3, 7, 15, 30})
	if err != nil {
		t.Fatalf("NewIntervalTableDays: %v", err)
	}
	rev := models.Revision{ItemName: "Cell structure", Stage: 2}
	got := reminderText(rev, table)
	if !strings.Contains(got, "Cell structure") {
		t.Errorf("reminder text missing item name: %q", got)
	}
	if !strings.Contains(got, "1 week") {
		t.Errorf("reminder text missing interval label: %q", got)
	}
}
