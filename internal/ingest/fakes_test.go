package ingest

import (
	"context"
	"log/slog"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"postsync/internal/core"
	"postsync/pkg/tenttype"
)

const testNow = int64(1700000000000)

type fakeTypes struct {
	types  map[string]*core.PostType
	bases  map[string]*core.PostTypeBase
	nextID int64
}

func newFakeTypes() *fakeTypes {
	return &fakeTypes{
		types: map[string]*core.PostType{},
		bases: map[string]*core.PostTypeBase{},
	}
}

func (f *fakeTypes) Resolve(_ context.Context, uri string) (*core.PostType, *core.PostTypeBase, error) {
	parsed, err := tenttype.Parse(uri)
	if err != nil {
		return nil, nil, err
	}

	typ, ok := f.types[uri]
	if !ok {
		return nil, nil, core.ErrNotFound
	}
	return typ, f.bases[parsed.Base], nil
}

func (f *fakeTypes) ResolveOrCreate(_ context.Context, uri string) (*core.PostType, *core.PostTypeBase, error) {
	parsed, err := tenttype.Parse(uri)
	if err != nil {
		return nil, nil, err
	}

	base, ok := f.bases[parsed.Base]
	if !ok {
		f.nextID++
		base = &core.PostTypeBase{ID: f.nextID, Base: parsed.Base}
		f.bases[parsed.Base] = base
	}

	typ, ok := f.types[uri]
	if !ok {
		f.nextID++
		typ = &core.PostType{ID: f.nextID, URI: uri, BaseID: base.ID}
		f.types[uri] = typ
	}

	return typ, base, nil
}

type fakeEntities struct {
	entities map[string]*core.Entity
	nextID   int64
}

func newFakeEntities() *fakeEntities {
	return &fakeEntities{entities: map[string]*core.Entity{}}
}

func (f *fakeEntities) Resolve(_ context.Context, entity string) (*core.Entity, error) {
	e, ok := f.entities[entity]
	if !ok {
		return nil, core.ErrNotFound
	}
	return e, nil
}

func (f *fakeEntities) ResolveOrCreate(_ context.Context, entity string) (*core.Entity, error) {
	e, ok := f.entities[entity]
	if !ok {
		f.nextID++
		e = &core.Entity{ID: f.nextID, Entity: entity}
		f.entities[entity] = e
	}
	return e, nil
}

type fakeAttachments struct {
	byDigest map[string]*core.Attachment
	nextID   int64
	creates  int
}

func newFakeAttachments() *fakeAttachments {
	return &fakeAttachments{byDigest: map[string]*core.Attachment{}}
}

func (f *fakeAttachments) FindByDigest(_ context.Context, digest string, size int64) (*core.Attachment, error) {
	a, ok := f.byDigest[digest]
	if !ok {
		return nil, core.ErrNotFound
	}
	if size > 0 && a.Size != size {
		return nil, core.ErrNotFound
	}
	return a, nil
}

func (f *fakeAttachments) GetOrCreate(_ context.Context, digest string, size int64, data []byte) (*core.Attachment, error) {
	if a, ok := f.byDigest[digest]; ok {
		return a, nil
	}
	f.nextID++
	f.creates++
	a := &core.Attachment{ID: f.nextID, Digest: digest, Size: size, Data: data}
	f.byDigest[digest] = a
	return a, nil
}

func (f *fakeAttachments) seed(digest string, size int64) *core.Attachment {
	f.nextID++
	a := &core.Attachment{ID: f.nextID, Digest: digest, Size: size}
	f.byDigest[digest] = a
	return a
}

type fakePosts struct {
	posts  []*core.Post
	nextID int64
}

func (f *fakePosts) Create(_ context.Context, post *core.Post) error {
	f.nextID++
	post.ID = f.nextID
	f.posts = append(f.posts, post)
	return nil
}

func (f *fakePosts) Get(_ context.Context, id int64) (*core.Post, error) {
	for _, p := range f.posts {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakePosts) FindVersion(_ context.Context, userID int64, publicID, version string) (*core.Post, error) {
	for _, p := range f.posts {
		if p.UserID == userID && p.PublicID == publicID && p.Version == version {
			return p, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakePosts) List(_ context.Context, userID int64, q core.FeedQuery) ([]core.Post, error) {
	var out []core.Post
	for i := len(f.posts) - 1; i >= 0; i-- {
		p := f.posts[i]
		if p.UserID != userID {
			continue
		}
		if len(q.Types) > 0 && !slices.Contains(q.Types, p.Type) {
			continue
		}
		if q.SinceID > 0 && p.ID <= q.SinceID {
			continue
		}
		if q.BeforeID > 0 && p.ID >= q.BeforeID {
			continue
		}
		out = append(out, *p)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakePosts) FindLatest(_ context.Context, userID int64, publicID string) (*core.Post, error) {
	var latest *core.Post
	for _, p := range f.posts {
		if p.UserID == userID && p.PublicID == publicID {
			if latest == nil || p.VersionReceivedAt > latest.VersionReceivedAt {
				latest = p
			}
		}
	}
	if latest == nil {
		return nil, core.ErrNotFound
	}
	return latest, nil
}

type fakeGraph struct {
	parents          []*core.Parent
	mentions         []*core.Mention
	refs             []*core.Ref
	postsAttachments []*core.PostsAttachment
}

func (f *fakeGraph) CreateParent(_ context.Context, parent *core.Parent) error {
	f.parents = append(f.parents, parent)
	return nil
}

func (f *fakeGraph) CreateMention(_ context.Context, mention *core.Mention) error {
	f.mentions = append(f.mentions, mention)
	return nil
}

func (f *fakeGraph) CreateRef(_ context.Context, ref *core.Ref) error {
	f.refs = append(f.refs, ref)
	return nil
}

func (f *fakeGraph) CreatePostsAttachment(_ context.Context, pa *core.PostsAttachment) error {
	f.postsAttachments = append(f.postsAttachments, pa)
	return nil
}

type fakeSubscriptions struct {
	subs   []*core.Subscription
	nextID int64
}

func (f *fakeSubscriptions) FindMatching(_ context.Context, userID int64, subscriberEntity, targetType string) (*core.Subscription, error) {
	for _, s := range f.subs {
		if s.UserID == userID && s.SubscriberEntity == subscriberEntity && s.TargetType == targetType {
			return s, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeSubscriptions) Create(_ context.Context, sub *core.Subscription) error {
	f.nextID++
	sub.ID = f.nextID
	f.subs = append(f.subs, sub)
	return nil
}

func (f *fakeSubscriptions) Update(_ context.Context, sub *core.Subscription) error {
	for i, s := range f.subs {
		if s.ID == sub.ID {
			f.subs[i] = sub
			return nil
		}
	}
	return core.ErrNotFound
}

func (f *fakeSubscriptions) DeliverableFor(_ context.Context, userID int64, postType string) ([]core.Subscription, error) {
	var out []core.Subscription
	for _, s := range f.subs {
		if s.UserID == userID && s.Deliver && (s.TargetType == postType || s.TargetType == tenttype.Base(postType)) {
			out = append(out, *s)
		}
	}
	return out, nil
}

type fakeQueue struct {
	enqueued []*core.Post
}

func (f *fakeQueue) Enqueue(_ context.Context, post *core.Post) error {
	f.enqueued = append(f.enqueued, post)
	return nil
}

// rig wires the ingestion components onto in-memory fakes with a pinned
// clock, standing in for the container wiring of the real commands.
type rig struct {
	types       *fakeTypes
	entities    *fakeEntities
	attachments *fakeAttachments
	posts       *fakePosts
	graph       *fakeGraph
	subs        *fakeSubscriptions
	queue       *fakeQueue

	builder      *AttributeBuilder
	matcher      *SubscriptionMatcher
	lineage      *VersionLineage
	mentions     *MentionGraph
	orchestrator *Orchestrator
}

func newRig(t *testing.T) *rig {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	r := &rig{
		types:       newFakeTypes(),
		entities:    newFakeEntities(),
		attachments: newFakeAttachments(),
		posts:       &fakePosts{},
		graph:       &fakeGraph{},
		subs:        &fakeSubscriptions{},
		queue:       &fakeQueue{},
	}

	r.builder = &AttributeBuilder{
		Logger:      logger,
		Types:       r.types,
		Entities:    r.entities,
		Attachments: r.attachments,
		now:         func() int64 { return testNow },
	}
	r.matcher = &SubscriptionMatcher{Logger: logger, Subscriptions: r.subs, Posts: r.posts}
	r.lineage = &VersionLineage{Logger: logger, Posts: r.posts, Graph: r.graph}
	r.mentions = &MentionGraph{Logger: logger, Entities: r.entities, Types: r.types, Graph: r.graph}
	r.orchestrator = &Orchestrator{
		Logger:        logger,
		Builder:       r.builder,
		Posts:         r.posts,
		Graph:         r.graph,
		Attachments:   r.attachments,
		Subscriptions: r.matcher,
		Lineage:       r.lineage,
		Mentions:      r.mentions,
		Queue:         r.queue,
	}

	ctx := t.Context()
	require.NoError(t, r.builder.Init(ctx))
	require.NoError(t, r.matcher.Init(ctx))
	require.NoError(t, r.lineage.Init(ctx))
	require.NoError(t, r.mentions.Init(ctx))
	require.NoError(t, r.orchestrator.Init(ctx))

	return r
}

func testUser() *core.User {
	return &core.User{ID: 1, Entity: "https://alice.example.org", EntityID: 100}
}
