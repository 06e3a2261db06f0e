package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ppiankov/rollcall/internal/alias"
	"github.com/ppiankov/rollcall/internal/model"
)

// Lookup returns a coach's alias for rawText, or nil
func (s *Store) Lookup(ctx context.Context, coachID, orgID, rawText string) (*model.CoachAlias, error) {
	var row aliasRow
	err := s.db.WithContext(ctx).
		Where("coach_user_id = ? AND organization_id = ? AND raw_text = ?", coachID, orgID, alias.Key(rawText)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup alias: %w", err)
	}
	a := row.toModel()
	return &a, nil
}

// Store upserts an alias. Repeat calls for the same key increment use_count in a
// single statement so concurrent writers never lose an update.
func (s *Store) Store(ctx context.Context, coachID, orgID, rawText, entityID, entityName string) (*model.CoachAlias, error) {
	key := alias.Key(rawText)
	if coachID == "" || orgID == "" || key == "" {
		return nil, alias.ErrEmptyKey
	}

	now := s.now().UTC()
	row := aliasRow{
		CoachUserID:        coachID,
		OrganizationID:     orgID,
		RawText:            key,
		ResolvedEntityID:   entityID,
		ResolvedEntityName: entityName,
		UseCount:           1,
		CreatedAt:          now,
		LastUsedAt:         now,
	}

	db := s.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "coach_user_id"}, {Name: "organization_id"}, {Name: "raw_text"}},
		DoUpdates: clause.Assignments(map[string]any{
			"use_count":            gorm.Expr("use_count + 1"),
			"resolved_entity_id":   entityID,
			"resolved_entity_name": entityName,
			"last_used_at":         now,
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("store alias: %w", err)
	}

	return s.Lookup(ctx, coachID, orgID, key)
}

// List returns a coach's aliases in an organization, most used first
func (s *Store) List(ctx context.Context, coachID, orgID string) ([]model.CoachAlias, error) {
	var rows []aliasRow
	err := s.db.WithContext(ctx).
		Where("coach_user_id = ? AND organization_id = ?", coachID, orgID).
		Order("use_count DESC, raw_text").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}

	out := make([]model.CoachAlias, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

var (
	_ alias.Store  = (*Store)(nil)
	_ alias.Lister = (*Store)(nil)
)
