// Package graph persists the edges hanging off a post: version parents,
// mentions, refs and attachment joins. Edges are created alongside their
// owning post and never altered.
package graph

import (
	"context"
	"log/slog"

	"postsync/internal/core"
)

type Repository struct {
	Logger *slog.Logger
	DB     core.DB
}

func (r *Repository) Init(_ context.Context) error {
	r.Logger = r.Logger.With("component", "graph.Repository")
	return nil
}

func (r *Repository) CreateParent(ctx context.Context, parent *core.Parent) error {
	return r.DB.Model(&core.Parent{}).
		WithContext(ctx).
		Create(parent).Error
}

func (r *Repository) CreateMention(ctx context.Context, mention *core.Mention) error {
	return r.DB.Model(&core.Mention{}).
		WithContext(ctx).
		Create(mention).Error
}

func (r *Repository) CreateRef(ctx context.Context, ref *core.Ref) error {
	return r.DB.Model(&core.Ref{}).
		WithContext(ctx).
		Create(ref).Error
}

func (r *Repository) CreatePostsAttachment(ctx context.Context, pa *core.PostsAttachment) error {
	return r.DB.Model(&core.PostsAttachment{}).
		WithContext(ctx).
		Create(pa).Error
}
