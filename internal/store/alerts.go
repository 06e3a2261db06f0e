package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ppiankov/rollcall/internal/model"
)

// RaiseAlert stores an alert unless an unacknowledged alert of the same type
// exists, in which case that one is returned and created is false
func (s *Store) RaiseAlert(ctx context.Context, a model.Alert) (stored model.Alert, created bool, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing alertRow
		err := tx.Where("alert_type = ? AND acknowledged = ?", a.AlertType, false).
			Order("created_at DESC").
			First(&existing).Error
		if err == nil {
			stored = existing.toModel()
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check open alerts: %w", err)
		}

		row := alertRow{
			AlertType: a.AlertType,
			Severity:  a.Severity,
			Message:   a.Message,
			Metadata:  datatypes.JSONMap(a.Metadata),
			CreatedAt: s.now().UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}
		stored, created = row.toModel(), true
		return nil
	})
	return stored, created, err
}

// Alerts lists alerts, newest first
func (s *Store) Alerts(ctx context.Context, includeAcknowledged bool) ([]model.Alert, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if !includeAcknowledged {
		q = q.Where("acknowledged = ?", false)
	}

	var rows []alertRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	out := make([]model.Alert, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// AcknowledgeAlert marks an alert handled
func (s *Store) AcknowledgeAlert(ctx context.Context, id uint) error {
	now := s.now().UTC()
	res := s.db.WithContext(ctx).Model(&alertRow{}).
		Where("id = ?", id).
		Updates(map[string]any{"acknowledged": true, "acked_at": now})
	if res.Error != nil {
		return fmt.Errorf("acknowledge alert %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("alert %d: %w", id, ErrNotFound)
	}
	return nil
}
