package registry

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"postsync/internal/core"
)

type Entities struct {
	Logger *slog.Logger
	DB     core.DB
}

func (e *Entities) Init(_ context.Context) error {
	e.Logger = e.Logger.With("component", "registry.Entities")
	return nil
}

func (e *Entities) Resolve(ctx context.Context, entity string) (*core.Entity, error) {
	var row core.Entity

	err := e.DB.Model(&core.Entity{}).
		WithContext(ctx).
		Where("entity = ?", entity).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}

	return &row, nil
}

func (e *Entities) ResolveOrCreate(ctx context.Context, entity string) (*core.Entity, error) {
	row := core.Entity{Entity: entity}

	err := e.DB.Model(&core.Entity{}).
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity"}},
			DoNothing: true,
		}).
		Create(&row).Error
	if err != nil && !isUniqueViolation(err) {
		return nil, err
	}

	if err != nil || row.ID == 0 {
		err = e.DB.Model(&core.Entity{}).
			WithContext(ctx).
			Where("entity = ?", entity).
			First(&row).Error
		if err != nil {
			return nil, err
		}
	}

	return &row, nil
}
