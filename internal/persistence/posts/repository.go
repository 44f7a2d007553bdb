package posts

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
	r.Logger = r.Logger.With("component", "posts.Repository")
	return nil
}

func (r *Repository) Create(ctx context.Context, post *core.Post) error {
	return r.DB.Model(&core.Post{}).
		WithContext(ctx).
		Create(post).Error
}

func (r *Repository) Get(ctx context.Context, id int64) (*core.Post, error) {
	var post core.Post

	err := r.DB.Model(&core.Post{}).
		WithContext(ctx).
		Where("id = ?", id).
		First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}

	return &post, nil
}

func (r *Repository) FindVersion(ctx context.Context, userID int64, publicID, version string) (*core.Post, error) {
	var post core.Post

	err := r.DB.Model(&core.Post{}).
		WithContext(ctx).
		Where("user_id = ? AND public_id = ? AND version = ?", userID, publicID, version).
		First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}

	return &post, nil
}

const (
	defaultFeedLimit = 25
	maxFeedLimit     = 200
)

func (r *Repository) List(ctx context.Context, userID int64, q core.FeedQuery) ([]core.Post, error) {
	limit := q.Limit
	switch {
	case limit <= 0:
		limit = defaultFeedLimit
	case limit > maxFeedLimit:
		limit = maxFeedLimit
	}

	db := r.DB.Model(&core.Post{}).
		WithContext(ctx).
		Where("user_id = ?", userID)

	if len(q.Types) > 0 {
		db = db.Where("type IN (?)", q.Types)
	}
	if q.SinceID > 0 {
		db = db.Where("id > ?", q.SinceID)
	}
	if q.BeforeID > 0 {
		db = db.Where("id < ?", q.BeforeID)
	}

	var posts []core.Post
	err := db.Order("id DESC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}

	return posts, nil
}

func (r *Repository) FindLatest(ctx context.Context, userID int64, publicID string) (*core.Post, error) {
	var post core.Post

	err := r.DB.Model(&core.Post{}).
		WithContext(ctx).
		Where("user_id = ? AND public_id = ?", userID, publicID).
		Order("version_received_at DESC").
		First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}

	return &post, nil
}
