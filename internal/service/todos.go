package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mschirtzinger/daysync/internal/migrate"
	"github.com/mschirtzinger/daysync/internal/schema"
	"github.com/mschirtzinger/daysync/internal/store"
)

// AddTodo creates and saves a record for today. An empty title gets the
// default daily title.
func (s *Service) AddTodo(ctx context.Context, title, content string) (schema.TaskRecord, error) {
	r := schema.NewTaskRecord(title, content, s.now())
	if err := s.adapter.SaveTodo(ctx, r); err != nil {
		return schema.TaskRecord{}, err
	}
	s.logger.Debug("todo added", "id", r.ID)
	return r, nil
}

// GetTodo returns the record with id, or store.ErrNotFound. A unique id
// prefix such as the short form shown in listings also matches.
func (s *Service) GetTodo(ctx context.Context, id string) (schema.TaskRecord, error) {
	todos, err := s.adapter.GetTodos(ctx)
	if err != nil {
		return schema.TaskRecord{}, err
	}
	var matches []schema.TaskRecord
	for _, t := range todos {
		if t.ID == id {
			return t, nil
		}
		if id != "" && strings.HasPrefix(t.ID, id) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return schema.TaskRecord{}, fmt.Errorf("todo %s: %w", id, store.ErrNotFound)
	case 1:
		return matches[0], nil
	}
	return schema.TaskRecord{}, fmt.Errorf("todo %s: %w (%d matches)", id, ErrAmbiguousID, len(matches))
}

// EditTodo replaces the content of a record. Only records created today
// may be edited unless force is set.
func (s *Service) EditTodo(ctx context.Context, id, content string, force bool) (schema.TaskRecord, error) {
	r, err := s.GetTodo(ctx, id)
	if err != nil {
		return schema.TaskRecord{}, err
	}
	id = r.ID
	if !force && !schema.Editable(r, s.now()) {
		return schema.TaskRecord{}, fmt.Errorf("todo %s from %s: %w", id, r.Date, ErrNotEditable)
	}
	r.Content = content
	if err := s.adapter.SaveTodo(ctx, r); err != nil {
		return schema.TaskRecord{}, err
	}
	return r, nil
}

// Recent returns up to limit records, newest first. A limit of zero or
// less returns every record.
func (s *Service) Recent(ctx context.Context, limit int) ([]schema.TaskRecord, error) {
	todos, err := s.adapter.GetTodos(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(todos) > limit {
		todos = todos[:limit]
	}
	return todos, nil
}

// ParseDay resolves a date phrase such as "today", "yesterday",
// "last friday" or "2024-03-01" relative to the service clock.
func (s *Service) ParseDay(phrase string) (time.Time, error) {
	now := s.now()
	phrase = strings.TrimSpace(phrase)
	if phrase == "" || strings.EqualFold(phrase, "today") {
		return now, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", phrase, now.Location()); err == nil {
		return t, nil
	}
	res, err := s.dates.Parse(phrase, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", phrase, err)
	}
	if res == nil {
		return time.Time{}, fmt.Errorf("no date found in %q", phrase)
	}
	return res.Time, nil
}

// TodosOn returns the records dated on the day phrase names, and that day.
func (s *Service) TodosOn(ctx context.Context, phrase string) ([]schema.TaskRecord, time.Time, error) {
	day, err := s.ParseDay(phrase)
	if err != nil {
		return nil, time.Time{}, err
	}
	want := schema.FormatDate(day)

	todos, err := s.adapter.GetTodos(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	var out []schema.TaskRecord
	for _, t := range todos {
		if t.Date == want {
			out = append(out, t)
		}
	}
	return out, day, nil
}

// DeleteTodo removes one record by id or unique prefix. Deleting a
// missing id is not an error.
func (s *Service) DeleteTodo(ctx context.Context, id string) error {
	if r, err := s.GetTodo(ctx, id); err == nil {
		id = r.ID
	}
	return s.adapter.DeleteTodo(ctx, id)
}

// ClearTodos removes every record and returns how many there were.
// Settings are kept.
func (s *Service) ClearTodos(ctx context.Context) (int, error) {
	todos, err := s.adapter.GetTodos(ctx)
	if err != nil {
		return 0, err
	}
	for i, t := range todos {
		if err := s.adapter.DeleteTodo(ctx, t.ID); err != nil {
			return i, err
		}
	}
	s.logger.Info("todos cleared", "count", len(todos))
	return len(todos), nil
}

// Migrate imports the legacy key/value file at path.
func (s *Service) Migrate(ctx context.Context, path string, dryRun bool) (*migrate.MigrateResult, error) {
	return migrate.Migrate(ctx, s.adapter, migrate.MigrateOptions{
		Source: migrate.NewFileStore(path),
		Now:    s.now(),
		DryRun: dryRun,
		Logger: s.logger,
	})
}
