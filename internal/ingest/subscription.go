package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Jeffail/gabs"

	"postsync/internal/core"
)

// SubscriptionMatch is the outcome of reconciling a subscription-typed
// submission: the subscription row, its underlying post and whether the row
// was created by this call.
type SubscriptionMatch struct {
	Subscription *core.Subscription
	Post         *core.Post
	Created      bool
}

// SubscriptionMatcher reconciles subscription-typed posts against existing
// subscription state instead of creating plain posts.
type SubscriptionMatcher struct {
	Logger        *slog.Logger
	Subscriptions core.SubscriptionRepository
	Posts         core.PostRepository
}

func (m *SubscriptionMatcher) Init(_ context.Context) error {
	m.Logger = m.Logger.With("component", "ingest.SubscriptionMatcher")
	return nil
}

// FindOrCreate is the local path. A freshly created subscription starts with
// delivery disabled: the relationship initialization flow enables it and
// performs the initial notification itself.
func (m *SubscriptionMatcher) FindOrCreate(ctx context.Context, user *core.User, attrs *Attributes) (*SubscriptionMatch, error) {
	target, err := targetType(attrs)
	if err != nil {
		return nil, err
	}

	sub, err := m.Subscriptions.FindMatching(ctx, user.ID, attrs.Entity, target)
	switch {
	case err == nil:
		post, err := m.Posts.Get(ctx, sub.PostID)
		if err != nil {
			return nil, err
		}
		return &SubscriptionMatch{Subscription: sub, Post: post}, nil

	case errors.Is(err, core.ErrNotFound):
		return m.create(ctx, user, attrs, target, false, "")

	default:
		return nil, err
	}
}

// CreateFromNotification is the remote path: the subscriber entity asserts
// the subscription, so delivery is enabled and the auth resource it
// presented is recorded.
func (m *SubscriptionMatcher) CreateFromNotification(ctx context.Context, user *core.User, attrs *Attributes, credentialsID string) (*SubscriptionMatch, error) {
	target, err := targetType(attrs)
	if err != nil {
		return nil, err
	}

	sub, err := m.Subscriptions.FindMatching(ctx, user.ID, attrs.Entity, target)
	switch {
	case err == nil:
		sub.Deliver = true
		sub.CredentialsID = credentialsID
		if err := m.Subscriptions.Update(ctx, sub); err != nil {
			return nil, err
		}

		post, err := m.Posts.Get(ctx, sub.PostID)
		if err != nil {
			return nil, err
		}
		return &SubscriptionMatch{Subscription: sub, Post: post}, nil

	case errors.Is(err, core.ErrNotFound):
		return m.create(ctx, user, attrs, target, true, credentialsID)

	default:
		return nil, err
	}
}

func (m *SubscriptionMatcher) create(ctx context.Context, user *core.User, attrs *Attributes, target string, deliver bool, credentialsID string) (*SubscriptionMatch, error) {
	post := attrs.NewPost(user)
	if err := m.Posts.Create(ctx, post); err != nil {
		return nil, err
	}

	sub := &core.Subscription{
		UserID: user.ID,
		PostID: post.ID,

		SubscriberEntityID: attrs.EntityID,
		SubscriberEntity:   attrs.Entity,
		TargetType:         target,

		Deliver:       deliver,
		CredentialsID: credentialsID,
	}
	if err := m.Subscriptions.Create(ctx, sub); err != nil {
		return nil, err
	}

	m.Logger.Info("subscription created",
		"entity", sub.SubscriberEntity, "type", sub.TargetType, "deliver", sub.Deliver)

	return &SubscriptionMatch{Subscription: sub, Post: post, Created: true}, nil
}

// targetType extracts the subscribed type from the subscription post's
// content.
func targetType(attrs *Attributes) (string, error) {
	if len(attrs.Content) == 0 {
		return "", core.NewFieldValidationError("/content/type", "is required")
	}

	c, err := gabs.ParseJSON(attrs.Content)
	if err != nil {
		return "", core.NewValidationError("malformed subscription content: %v", err)
	}

	target, ok := c.Path("type").Data().(string)
	if !ok || target == "" {
		return "", core.NewFieldValidationError("/content/type", "is required")
	}

	return target, nil
}
