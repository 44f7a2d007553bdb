package ingest

import (
	"context"
	"log/slog"

	"postsync/internal/core"
)

// MentionGraph resolves mention and ref entries into entity-qualified edges.
// Refs carry reference-dependency semantics instead of social mentions, so
// they land in their own table, but the resolution rules are identical.
type MentionGraph struct {
	Logger   *slog.Logger
	Entities core.EntityResolver
	Types    core.TypeResolver
	Graph    core.GraphRepository
}

func (g *MentionGraph) Init(_ context.Context) error {
	g.Logger = g.Logger.With("component", "ingest.MentionGraph")
	return nil
}

func (g *MentionGraph) CreateMentions(ctx context.Context, post *core.Post, mentions []core.PostRef) error {
	for _, ref := range mentions {
		edge, err := g.resolve(ctx, post, ref)
		if err != nil {
			return err
		}
		if err := g.Graph.CreateMention(ctx, edge); err != nil {
			return err
		}
	}
	return nil
}

func (g *MentionGraph) CreateRefs(ctx context.Context, post *core.Post, refs []core.PostRef) error {
	for _, ref := range refs {
		edge, err := g.resolve(ctx, post, ref)
		if err != nil {
			return err
		}
		if err := g.Graph.CreateRef(ctx, (*core.Ref)(edge)); err != nil {
			return err
		}
	}
	return nil
}

func (g *MentionGraph) resolve(ctx context.Context, post *core.Post, ref core.PostRef) (*core.Mention, error) {
	edge := &core.Mention{
		UserID: post.UserID,
		PostID: post.ID,
		Post:   ref.Post,
		Public: ref.Public,
	}

	if ref.Entity != nil {
		entity, err := g.Entities.ResolveOrCreate(ctx, *ref.Entity)
		if err != nil {
			return nil, err
		}
		edge.EntityID = entity.ID
		edge.Entity = entity.Entity
	} else {
		edge.EntityID = post.EntityID
		edge.Entity = post.Entity
	}

	if ref.Type != "" {
		typ, _, err := g.Types.ResolveOrCreate(ctx, ref.Type)
		if err != nil {
			return nil, err
		}
		edge.TypeID = &typ.ID
		edge.Type = typ.URI
	}

	return edge, nil
}
