package schema

import (
	"time"

	"github.com/google/uuid"
)

// LegacyRecord is a task entry from pre-database local storage.
// Any field may be missing.
type LegacyRecord struct {
	ID        string `json:"id,omitempty"`
	Date      string `json:"date,omitempty"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Normalize converts a legacy entry to a TaskRecord, filling in a fresh id,
// a createdAt of now and a default title where they are missing. The
// result is not validated.
func (l LegacyRecord) Normalize(now time.Time) TaskRecord {
	r := TaskRecord{
		ID:        l.ID,
		Date:      l.Date,
		Title:     l.Title,
		Content:   l.Content,
		CreatedAt: l.CreatedAt,
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt == "" {
		r.CreatedAt = FormatCreatedAt(now)
	}
	if r.Date == "" {
		r.Date = FormatDate(now)
	}
	if r.Title == "" {
		r.Title = DefaultTitle(r.Date)
	}
	return r
}
