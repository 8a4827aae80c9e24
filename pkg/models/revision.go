package models

import "time"

// Revision represents one scheduled review event for a study item.
// Stage is the 0-based index into the interval table; stages past the
// end of the table repeat the last interval.
type Revision struct {
	ID             int64      `json:"id" db:"id"`
	StudyItemID    int64      `json:"study_item_id" db:"study_item_id"`
	UserID         int64      `json:"user_id" db:"user_id"`
	Stage          int        `json:"stage" db:"stage"`
	DueAt          time.Time  `json:"due_at" db:"due_at"`
	Completed      bool       `json:"completed" db:"completed"`
	CompletedAt    *time.Time `json:"completed_at" db:"completed_at"`
	LastNotifiedAt *time.Time `json:"last_notified_at" db:"last_notified_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`

	// ItemName is populated by queries that join study_items.
	ItemName string `json:"item_name,omitempty" db:"item_name"`
}
