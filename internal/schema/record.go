package schema

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Field limits enforced by Validate.
const (
	MaxTitleLength   = 500
	MaxContentLength = 50000
)

// Display layouts for the date and createdAt fields.
const (
	DateLayout      = "2006-01-02 (Mon)"
	CreatedAtLayout = "2006-01-02 15:04:05"
)

// TaskRecord is a single daily task.
type TaskRecord struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

// NewTaskRecord creates a record dated now with a fresh id.
// An empty title is replaced with DefaultTitle.
func NewTaskRecord(title, content string, now time.Time) TaskRecord {
	date := FormatDate(now)
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle(date)
	}
	return TaskRecord{
		ID:        uuid.NewString(),
		Date:      date,
		Title:     title,
		Content:   content,
		CreatedAt: FormatCreatedAt(now),
	}
}

// Validate checks the record against the write-boundary rules.
// It returns nil or a *ValidationError.
func (r *TaskRecord) Validate() error {
	var issues []string

	if r.ID == "" {
		issues = append(issues, "id is required")
	} else if !IsUUID(r.ID) {
		issues = append(issues, fmt.Sprintf("id must be a UUID (got %q)", r.ID))
	}
	if r.Date == "" {
		issues = append(issues, "date is required")
	}
	if r.Title == "" {
		issues = append(issues, "title is required")
	} else if n := utf8.RuneCountInString(r.Title); n > MaxTitleLength {
		issues = append(issues, fmt.Sprintf("title must be %d characters or less (got %d)", MaxTitleLength, n))
	}
	if r.Content == "" {
		issues = append(issues, "content is required")
	} else if n := utf8.RuneCountInString(r.Content); n > MaxContentLength {
		issues = append(issues, fmt.Sprintf("content must be %d characters or less (got %d)", MaxContentLength, n))
	}
	if r.CreatedAt == "" {
		issues = append(issues, "createdAt is required")
	}

	if len(issues) > 0 {
		return &ValidationError{ID: r.ID, Issues: issues}
	}
	return nil
}

// ValidateAll validates every record and returns the first failure.
func ValidateAll(records []TaskRecord) error {
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IsUUID reports whether s is a hyphenated 36 character UUID.
// uuid.Parse also accepts urn and braced forms, which are rejected here.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// FormatDate renders t in the date display layout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatCreatedAt renders t in the createdAt display layout.
func FormatCreatedAt(t time.Time) string {
	return t.Format(CreatedAtLayout)
}

// DefaultTitle is the title given to generated records.
func DefaultTitle(date string) string {
	return "Daily task - " + date
}

// Editable reports whether the record may still have its content edited.
// Records are editable only on the day they were created.
func Editable(r TaskRecord, now time.Time) bool {
	return r.Date == FormatDate(now)
}

var sortLayouts = []string{
	CreatedAtLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// SortKey derives a sortable UTC timestamp from a createdAt string.
// It returns "" when no known layout matches.
func SortKey(createdAt string) string {
	s := strings.TrimSpace(createdAt)
	for _, layout := range sortLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return t.UTC().Format("2006-01-02T15:04:05.000Z")
		}
	}
	return ""
}
