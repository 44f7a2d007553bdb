package ingest

import (
	"context"
	"errors"
	"log/slog"

	"postsync/internal/core"
)

// VersionLineage links a new post version to its declared parent versions.
type VersionLineage struct {
	Logger *slog.Logger
	Posts  core.PostRepository
	Graph  core.GraphRepository
}

func (l *VersionLineage) Init(_ context.Context) error {
	l.Logger = l.Logger.With("component", "ingest.VersionLineage")
	return nil
}

// Link creates one Parent edge per declared parent, resolved or not. An
// entry without its own post identifier refers to an earlier version of the
// same logical post. The parent lookup is a point-in-time read: a parent
// arriving concurrently may be missed, leaving an unresolved edge that keeps
// the literal version/post strings for later reconstruction.
func (l *VersionLineage) Link(ctx context.Context, post *core.Post, parents []core.ParentRef) error {
	for _, item := range parents {
		publicID := item.Post
		if publicID == "" {
			publicID = post.PublicID
		}

		edge := &core.Parent{
			PostID:       post.ID,
			Version:      item.Version,
			PostPublicID: publicID,
		}

		parent, err := l.Posts.FindVersion(ctx, post.UserID, publicID, item.Version)
		switch {
		case err == nil:
			edge.ParentPostID = &parent.ID
		case errors.Is(err, core.ErrNotFound):
			l.Logger.Debug("parent version not locally known", "post", publicID, "version", item.Version)
		default:
			return err
		}

		if err := l.Graph.CreateParent(ctx, edge); err != nil {
			return err
		}
	}

	return nil
}
