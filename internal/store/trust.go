package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ppiankov/rollcall/internal/model"
)

// TrustLevel returns a coach's recorded trust level, or nil
func (s *Store) TrustLevel(ctx context.Context, coachID string) (*model.TrustLevel, error) {
	var row trustRow
	err := s.db.WithContext(ctx).Where("coach_user_id = ?", coachID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load trust level: %w", err)
	}
	return &model.TrustLevel{
		CoachUserID:                row.CoachUserID,
		InsightConfidenceThreshold: row.InsightConfidenceThreshold,
	}, nil
}

// SetTrustLevels records coach trust levels, replacing existing ones
func (s *Store) SetTrustLevels(ctx context.Context, levels []model.TrustLevel) error {
	if len(levels) == 0 {
		return nil
	}
	now := s.now().UTC()
	rows := make([]trustRow, 0, len(levels))
	for _, l := range levels {
		rows = append(rows, trustRow{
			CoachUserID:                l.CoachUserID,
			InsightConfidenceThreshold: l.InsightConfidenceThreshold,
			UpdatedAt:                  now,
		})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "coach_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"insight_confidence_threshold", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("save trust levels: %w", err)
	}
	return nil
}
