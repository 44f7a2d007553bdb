package subscriptions

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"postsync/internal/core"
	"postsync/pkg/tenttype"
)

type Repository struct {
	Logger *slog.Logger
	DB     core.DB
}

func (r *Repository) Init(_ context.Context) error {
	r.Logger = r.Logger.With("component", "subscriptions.Repository")
	return nil
}

func (r *Repository) FindMatching(ctx context.Context, userID int64, subscriberEntity, targetType string) (*core.Subscription, error) {
	var sub core.Subscription

	err := r.DB.Model(&core.Subscription{}).
		WithContext(ctx).
		Where("user_id = ? AND subscriber_entity = ? AND target_type = ?", userID, subscriberEntity, targetType).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}

	return &sub, nil
}

func (r *Repository) Create(ctx context.Context, sub *core.Subscription) error {
	return r.DB.Model(&core.Subscription{}).
		WithContext(ctx).
		Create(sub).Error
}

func (r *Repository) Update(ctx context.Context, sub *core.Subscription) error {
	return r.DB.Model(&core.Subscription{}).
		WithContext(ctx).
		Where("id = ?", sub.ID).
		Updates(map[string]any{
			"deliver":        sub.Deliver,
			"credentials_id": sub.CredentialsID,
		}).Error
}

// DeliverableFor matches subscriptions targeting either the post's full type
// URI or its base.
func (r *Repository) DeliverableFor(ctx context.Context, userID int64, postType string) ([]core.Subscription, error) {
	targets := []string{postType}
	if base := tenttype.Base(postType); base != "" {
		targets = append(targets, base)
	}

	var subs []core.Subscription
	err := r.DB.Model(&core.Subscription{}).
		WithContext(ctx).
		Where("user_id = ? AND deliver = TRUE AND target_type IN (?)", userID, targets).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}

	return subs, nil
}
