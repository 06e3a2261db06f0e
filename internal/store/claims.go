package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ppiankov/rollcall/internal/model"
)

// SaveClaims inserts claims, replacing rows with the same id
func (s *Store) SaveClaims(ctx context.Context, claims []model.Claim) error {
	if len(claims) == 0 {
		return nil
	}
	now := s.now().UTC()
	rows := make([]claimRow, 0, len(claims))
	for _, c := range claims {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		rows = append(rows, claimFromModel(c))
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("save claims: %w", err)
	}
	return nil
}

// ClaimsForArtifact returns an artifact's claims in creation order
func (s *Store) ClaimsForArtifact(ctx context.Context, artifactID string) ([]model.Claim, error) {
	var rows []claimRow
	err := s.db.WithContext(ctx).
		Where("artifact_id = ?", artifactID).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load claims: %w", err)
	}

	out := make([]model.Claim, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// CountClaims counts an artifact's claims by status
func (s *Store) CountClaims(ctx context.Context, artifactID string, status model.ClaimStatus) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&claimRow{}).
		Where("artifact_id = ? AND status = ?", artifactID, status).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count claims: %w", err)
	}
	return int(n), nil
}

// SaveResolutions writes resolution records and claim statuses in one transaction.
// Records that already exist for a (claim, mention index) are left as they are,
// and claim statuses only move out of extracted.
func (s *Store) SaveResolutions(ctx context.Context, records []model.ResolutionRecord, statuses map[string]model.ClaimStatus) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(records) > 0 {
			rows := make([]resolutionRow, 0, len(records))
			for _, r := range records {
				rows = append(rows, resolutionFromModel(r))
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "claim_id"}, {Name: "mention_index"}},
				DoNothing: true,
			}).Create(&rows).Error
			if err != nil {
				return fmt.Errorf("insert resolution records: %w", err)
			}
		}

		now := s.now().UTC()
		for claimID, status := range statuses {
			err := tx.Model(&claimRow{}).
				Where("id = ? AND status = ?", claimID, model.ClaimStatusExtracted).
				Updates(map[string]any{"status": status, "updated_at": now}).Error
			if err != nil {
				return fmt.Errorf("update claim %s: %w", claimID, err)
			}
		}
		return nil
	})
}

// ResolutionsForArtifact returns an artifact's resolution records ordered by claim and mention
func (s *Store) ResolutionsForArtifact(ctx context.Context, artifactID string) ([]model.ResolutionRecord, error) {
	var rows []resolutionRow
	err := s.db.WithContext(ctx).
		Where("artifact_id = ?", artifactID).
		Order("claim_id, mention_index").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load resolutions: %w", err)
	}

	out := make([]model.ResolutionRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// DisambiguationBacklog counts mentions waiting for a human to pick a candidate
func (s *Store) DisambiguationBacklog(ctx context.Context) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&resolutionRow{}).
		Where("status = ?", model.ResolutionNeedsDisambiguation).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count disambiguation backlog: %w", err)
	}
	return int(n), nil
}
