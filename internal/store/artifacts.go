package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/rollcall/internal/model"
)

// ErrStale is returned when an artifact changed status since it was read
var ErrStale = errors.New("artifact status changed concurrently")

// CreateArtifact inserts a new artifact
func (s *Store) CreateArtifact(ctx context.Context, a model.Artifact) error {
	now := s.now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	row := artifactFromModel(a)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	return nil
}

// GetArtifact loads one artifact
func (s *Store) GetArtifact(ctx context.Context, id string) (model.Artifact, error) {
	var row artifactRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return model.Artifact{}, notFound(err, "artifact "+id)
	}
	return row.toModel(), nil
}

// UpdateArtifact writes a's mutable fields if the stored status still equals expect
func (s *Store) UpdateArtifact(ctx context.Context, a model.Artifact, expect model.ArtifactStatus) error {
	a.UpdatedAt = s.now().UTC()
	res := s.db.WithContext(ctx).Model(&artifactRow{}).
		Where("id = ? AND status = ?", a.ID, expect).
		Updates(map[string]any{
			"status":          a.Status,
			"pipeline_stage":  a.PipelineStage,
			"retry_attempt":   a.RetryAttempt,
			"next_attempt_at": a.NextAttemptAt,
			"last_error":      a.LastError,
			"transcript":      a.Transcript,
			"updated_at":      a.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update artifact %s: %w", a.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetArtifact(ctx, a.ID); err != nil {
			return err
		}
		return fmt.Errorf("update artifact %s from %s: %w", a.ID, expect, ErrStale)
	}
	return nil
}

// ListArtifacts returns artifacts in any of the statuses, newest first. limit <= 0 means no limit.
func (s *Store) ListArtifacts(ctx context.Context, statuses []model.ArtifactStatus, limit int) ([]model.Artifact, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC, id")
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []artifactRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	out := make([]model.Artifact, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// DueArtifacts returns schedulable artifacts whose backoff has elapsed, oldest first.
// Artifacts waiting on a human are never due.
func (s *Store) DueArtifacts(ctx context.Context, now time.Time, limit int) ([]model.Artifact, error) {
	var schedulable []model.ArtifactStatus
	for _, st := range model.ActiveStatuses() {
		if st != model.StatusAwaitingConfirmation {
			schedulable = append(schedulable, st)
		}
	}

	q := s.db.WithContext(ctx).
		Where("status IN ?", schedulable).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now.UTC()).
		Order("created_at, id")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []artifactRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("due artifacts: %w", err)
	}
	out := make([]model.Artifact, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// CountArtifacts counts artifacts in any of the statuses
func (s *Store) CountArtifacts(ctx context.Context, statuses []model.ArtifactStatus) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&artifactRow{}).
		Where("status IN ?", statuses).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count artifacts: %w", err)
	}
	return int(n), nil
}
