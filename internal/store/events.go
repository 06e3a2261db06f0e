package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ppiankov/rollcall/internal/model"
)

// AppendEvent stores an event and bumps its hourly counter in the same transaction.
// A counter whose window has passed restarts at 1. The stored event is returned.
func (s *Store) AppendEvent(ctx context.Context, e model.PipelineEvent) (model.PipelineEvent, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	e.Timestamp = e.Timestamp.UTC()
	e.TimeWindow = model.TimeWindow(e.Timestamp)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := eventFromModel(e)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		name := model.CounterFor(e.EventType)
		if name == "" {
			return nil
		}
		counter := counterRow{Name: name, Value: 1, TimeWindow: e.TimeWindow, UpdatedAt: e.Timestamp}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]any{
				"value":       gorm.Expr("CASE WHEN pipeline_counters.time_window = ? THEN pipeline_counters.value + 1 ELSE 1 END", e.TimeWindow),
				"time_window": e.TimeWindow,
				"updated_at":  e.Timestamp,
			}),
		}).Create(&counter).Error
		if err != nil {
			return fmt.Errorf("bump counter %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return model.PipelineEvent{}, err
	}
	return e, nil
}

// EventsForArtifact returns an artifact's events in order
func (s *Store) EventsForArtifact(ctx context.Context, artifactID string) ([]model.PipelineEvent, error) {
	return s.events(s.db.WithContext(ctx).Where("artifact_id = ?", artifactID))
}

// EventsSince returns every event at or after since, in order
func (s *Store) EventsSince(ctx context.Context, since time.Time) ([]model.PipelineEvent, error) {
	return s.events(s.db.WithContext(ctx).Where("timestamp >= ?", since.UTC()))
}

func (s *Store) events(q *gorm.DB) ([]model.PipelineEvent, error) {
	var rows []eventRow
	if err := q.Order("timestamp, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	out := make([]model.PipelineEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// CountEvents counts an artifact's events of one type
func (s *Store) CountEvents(ctx context.Context, artifactID string, eventType model.EventType) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&eventRow{}).
		Where("artifact_id = ? AND event_type = ?", artifactID, eventType).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return int(n), nil
}

// LastEventTime returns the timestamp of the newest event of eventType; ok is false when there are none
func (s *Store) LastEventTime(ctx context.Context, eventType model.EventType) (t time.Time, ok bool, err error) {
	var row eventRow
	err = s.db.WithContext(ctx).Where("event_type = ?", eventType).Order("timestamp DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last event: %w", err)
	}
	return row.Timestamp, true, nil
}

// Counters returns every hourly counter
func (s *Store) Counters(ctx context.Context) ([]model.Counter, error) {
	var rows []counterRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load counters: %w", err)
	}
	out := make([]model.Counter, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Counter{Name: r.Name, Value: r.Value, TimeWindow: r.TimeWindow, UpdatedAt: r.UpdatedAt})
	}
	return out, nil
}
