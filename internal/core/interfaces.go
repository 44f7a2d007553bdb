package core

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

type DB interface {
	Model(a any) *gorm.DB
	EstimatedCount(tableName string) (int64, error)
	DB() (*sql.DB, error)
}

type Migrator interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
}

// TypeResolver maps a full type URI to its registry rows. Resolve returns
// ErrNotFound when the URI was never seen; ResolveOrCreate is an idempotent
// upsert safe under concurrent first sight.
type TypeResolver interface {
	Resolve(ctx context.Context, uri string) (*PostType, *PostTypeBase, error)
	ResolveOrCreate(ctx context.Context, uri string) (*PostType, *PostTypeBase, error)
}

// EntityResolver is the registry of known entity identifiers, same contract
// as TypeResolver.
type EntityResolver interface {
	Resolve(ctx context.Context, entity string) (*Entity, error)
	ResolveOrCreate(ctx context.Context, entity string) (*Entity, error)
}

// AttachmentStore is the content-addressed blob store. GetOrCreate must be
// atomic per digest: concurrent uploads of identical bytes converge on one
// row, the loser fetching the winner's.
type AttachmentStore interface {
	FindByDigest(ctx context.Context, digest string, size int64) (*Attachment, error)
	GetOrCreate(ctx context.Context, digest string, size int64, data []byte) (*Attachment, error)
}

type UserRepository interface {
	FindByEntity(ctx context.Context, entity string) (*User, error)
}

// FeedQuery filters a user's post feed. Zero values mean "no filter"; Limit
// is clamped by the repository.
type FeedQuery struct {
	Types    []string
	SinceID  int64
	BeforeID int64
	Limit    int
}

type PostRepository interface {
	Create(ctx context.Context, post *Post) error
	Get(ctx context.Context, id int64) (*Post, error)
	// FindVersion looks up one version of a logical post by its natural key.
	FindVersion(ctx context.Context, userID int64, publicID, version string) (*Post, error)
	FindLatest(ctx context.Context, userID int64, publicID string) (*Post, error)
	// List returns the user's feed, most recent first.
	List(ctx context.Context, userID int64, q FeedQuery) ([]Post, error)
}

// GraphRepository persists the edges created alongside a post.
type GraphRepository interface {
	CreateParent(ctx context.Context, parent *Parent) error
	CreateMention(ctx context.Context, mention *Mention) error
	CreateRef(ctx context.Context, ref *Ref) error
	CreatePostsAttachment(ctx context.Context, pa *PostsAttachment) error
}

type SubscriptionRepository interface {
	// FindMatching returns ErrNotFound when no subscription exists for the
	// (user, subscriber entity, target type) tuple.
	FindMatching(ctx context.Context, userID int64, subscriberEntity, targetType string) (*Subscription, error)
	Create(ctx context.Context, sub *Subscription) error
	Update(ctx context.Context, sub *Subscription) error
	// DeliverableFor returns the delivery-enabled subscriptions a post of the
	// given type should be pushed to.
	DeliverableFor(ctx context.Context, userID int64, postType string) ([]Subscription, error)
}

// DeliveryQueue schedules a created post for outbound delivery. Enqueue is
// fire-and-forget: it must not block on delivery completing.
type DeliveryQueue interface {
	Enqueue(ctx context.Context, post *Post) error
}
