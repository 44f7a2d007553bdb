package core

import "encoding/json"

// User is the authenticated actor a request acts as. Authentication itself
// happens upstream; the core only needs the identity and its home entity.
type User struct {
	ID       int64
	Entity   string
	EntityID int64
}

func (User) TableName() string {
	return "users"
}

// Post is one version of a logical post. The logical post is identified by
// (user_id, public_id); each version adds a row, never mutates one.
type Post struct {
	ID int64

	UserID   int64
	EntityID int64
	Entity   string

	Type       string
	TypeID     int64
	TypeBaseID int64

	PublicID string
	Version  string

	// Unix-millisecond timestamps. The Version* pair belongs to this version,
	// the bare pair to the logical post's version group.
	PublishedAt        int64
	ReceivedAt         int64
	VersionPublishedAt int64
	VersionReceivedAt  int64

	Content json.RawMessage `gorm:"type:jsonb"`

	Public            bool
	PermittedEntities []string `gorm:"type:jsonb;serializer:json"`
}

func (Post) TableName() string {
	return "posts"
}

// Parent links a post version to a prior version it supersedes.
// ParentPostID stays nil when the parent is not locally known; the literal
// version/public-id strings keep the lineage reconstructible across
// federation boundaries.
type Parent struct {
	ID           int64
	PostID       int64
	ParentPostID *int64
	Version      string
	PostPublicID string
}

func (Parent) TableName() string {
	return "parents"
}

// Mention is a directed edge from a post to another entity's post.
type Mention struct {
	ID       int64
	UserID   int64
	PostID   int64
	EntityID int64
	Entity   string
	TypeID   *int64
	Type     string
	Post     string
	Public   *bool
}

func (Mention) TableName() string {
	return "mentions"
}

// Ref is shaped like Mention but denotes a reference dependency, e.g. a
// delete post referencing the post it deletes.
type Ref struct {
	ID       int64
	UserID   int64
	PostID   int64
	EntityID int64
	Entity   string
	TypeID   *int64
	Type     string
	Post     string
	Public   *bool
}

func (Ref) TableName() string {
	return "refs"
}

// Attachment is a content-addressed blob, exactly one row per digest.
type Attachment struct {
	ID     int64
	Digest string `gorm:"uniqueIndex"`
	Size   int64
	Data   []byte
}

func (Attachment) TableName() string {
	return "attachments"
}

// PostsAttachment binds a post to an attachment with per-post metadata.
type PostsAttachment struct {
	ID           int64
	PostID       int64
	AttachmentID int64
	Name         string
	Category     string
	ContentType  string
}

func (PostsAttachment) TableName() string {
	return "posts_attachments"
}

// Entity is a registry row for a known entity identifier, created lazily on
// first reference.
type Entity struct {
	ID     int64
	Entity string `gorm:"uniqueIndex"`
}

func (Entity) TableName() string {
	return "entities"
}

// PostType is a registry row for a full type URI, carrying its resolved base.
type PostType struct {
	ID     int64
	URI    string `gorm:"column:uri;uniqueIndex"`
	BaseID int64
}

func (PostType) TableName() string {
	return "types"
}

// PostTypeBase is a registry row for the scheme/prefix portion of a type URI.
type PostTypeBase struct {
	ID   int64
	Base string `gorm:"uniqueIndex"`
}

func (PostTypeBase) TableName() string {
	return "type_bases"
}

// Subscription is a standing notification request from a remote entity. It
// owns the post describing it; Deliver gates outbound pushes for the
// subscription until the relationship is established.
type Subscription struct {
	ID     int64
	UserID int64
	PostID int64

	SubscriberEntityID int64
	SubscriberEntity   string
	TargetType         string

	Deliver       bool
	CredentialsID string
}

func (Subscription) TableName() string {
	return "subscriptions"
}
