package bot

import (
	"fmt"
	"time"

	"github.com/example/revbot/internal/engine"
	"github.com/example/revbot/pkg/models"
)

// reminderText builds the reminder message for one due revision
func reminderText(rev models.Revision, table engine.IntervalTable) string {
	return fmt.Sprintf("⏰ *Time to review!* ⏰\n\n*%s*\n\n📅 Review interval: %s",
		rev.ItemName, formatInterval(table.OffsetForStage(rev.Stage)))
}

// formatInterval renders an interval the way the reminder schedule is
// usually described: "1 day", "1 week", "2 weeks", "1 month".
func formatInterval(d time.Duration) string {
	days := int(d.Hours() / 24)
	switch {
	case days <= 0:
		hours := int(d.Hours())
		if hours <= 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	case days == 1:
		return "1 day"
	case days == 7:
		return "1 week"
	case days == 14 || days == 15:
		return "2 weeks"
	case days >= 28 && days <= 31:
		return "1 month"
	default:
		return fmt.Sprintf("%d days", days)
	}
}

// formatDue renders how far away a due date is, for the /list view
func formatDue(due, now time.Time) string {
	if !due.After(now) {
		return "due now"
	}
	d := due.Sub(now)
	if d < 24*time.Hour {
		return "due today"
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "review in 1 day"
	}
	return fmt.Sprintf("review in %d days", days)
}
