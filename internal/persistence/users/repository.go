package users

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"postsync/internal/core"
)

type Repository struct {
	Logger *slog.Logger
	DB     core.DB
}

func (r *Repository) Init(_ context.Context) error {
	r.Logger = r.Logger.With("component", "users.Repository")
	return nil
}

func (r *Repository) FindByEntity(ctx context.Context, entity string) (*core.User, error) {
	var user core.User

	err := r.DB.Model(&core.User{}).
		WithContext(ctx).
		Where("entity = ?", entity).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}

	return &user, nil
}
