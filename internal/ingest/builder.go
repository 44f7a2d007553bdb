// Package ingest is the post ingestion and versioning engine: it derives a
// canonical attribute set from a submission, resolves permissions, links
// version lineage, deduplicates attachments, builds the mention/ref graph
// and decides whether the finished post is scheduled for delivery.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"postsync/internal/core"
	"postsync/pkg/digest"
	"postsync/pkg/tenttype"
)

const (
	MetaBase         = "https://tent.io/types/meta"
	SubscriptionBase = "https://tent.io/types/subscription"
	DeleteType       = "https://tent.io/types/delete/v0#"
)

// Attributes is the fully resolved attribute set for a new post version,
// ready for construction. Building never persists anything; Matched is the
// side table of pre-existing attachments the orchestrator joins later.
type Attributes struct {
	Entity   string
	EntityID int64

	Type       string
	TypeID     int64
	TypeBaseID int64
	TypeBase   string

	PublicID string

	PublishedAt        int64
	ReceivedAt         int64
	VersionPublishedAt int64
	VersionReceivedAt  int64

	Content json.RawMessage

	Public            bool
	PermittedEntities []string

	Mentions []core.PostRef
	Refs     []core.PostRef

	Attachments    []core.AttachmentRef
	Matched        []MatchedAttachment
	VersionParents []core.ParentRef
}

// MatchedAttachment pairs a canonical descriptor with the stored row it
// matched, so the join can be created without re-querying.
type MatchedAttachment struct {
	Ref        core.AttachmentRef
	Attachment *core.Attachment
}

// NewPost constructs the post row for user, generating the public id and
// version identity when the attributes do not force them.
func (a *Attributes) NewPost(user *core.User) *core.Post {
	post := &core.Post{
		UserID:   user.ID,
		EntityID: a.EntityID,
		Entity:   a.Entity,

		Type:       a.Type,
		TypeID:     a.TypeID,
		TypeBaseID: a.TypeBaseID,

		PublicID: a.PublicID,

		PublishedAt:        a.PublishedAt,
		ReceivedAt:         a.ReceivedAt,
		VersionPublishedAt: a.VersionPublishedAt,
		VersionReceivedAt:  a.VersionReceivedAt,

		Content:           a.Content,
		Public:            a.Public,
		PermittedEntities: a.PermittedEntities,
	}

	if post.PublicID == "" {
		post.PublicID = uuid.NewString()
	}
	post.Version = a.versionIdentity()

	return post
}

// versionIdentity derives the version string from the canonical
// serialization of the version's identifying attributes.
func (a *Attributes) versionIdentity() string {
	canonical := fmt.Sprintf("%s\n%s\n%d\n", a.Type, a.Entity, a.PublishedAt)
	return digest.Hex(append([]byte(canonical), a.Content...))
}

// AttributeBuilder derives attributes from a request context and mode.
// It consults the registries and the attachment store but performs no
// creation of its own beyond lazily registering types and entities.
type AttributeBuilder struct {
	Logger      *slog.Logger
	Types       core.TypeResolver
	Entities    core.EntityResolver
	Attachments core.AttachmentStore

	now func() int64
}

func (b *AttributeBuilder) Init(_ context.Context) error {
	b.Logger = b.Logger.With("component", "ingest.AttributeBuilder")
	if b.now == nil {
		b.now = func() int64 { return time.Now().UnixMilli() }
	}
	return nil
}

func (b *AttributeBuilder) Build(ctx context.Context, req *core.Request, mode core.Mode) (*Attributes, error) {
	data := req.Submission

	typ, base, err := b.Types.ResolveOrCreate(ctx, data.Type)
	if err != nil {
		if errors.Is(err, tenttype.ErrInvalidType) {
			return nil, core.NewValidationError("invalid type: %q", data.Type)
		}
		return nil, err
	}

	receivedAt := b.now()
	publishedAt := receivedAt
	if data.PublishedAt != nil {
		publishedAt = *data.PublishedAt
	}

	attrs := &Attributes{
		Type:       typ.URI,
		TypeID:     typ.ID,
		TypeBaseID: base.ID,
		TypeBase:   base.Base,

		PublishedAt:        publishedAt,
		ReceivedAt:         receivedAt,
		VersionPublishedAt: publishedAt,
		VersionReceivedAt:  receivedAt,

		Content: data.Content,
	}

	if err := b.resolveEntity(ctx, req, mode, attrs); err != nil {
		return nil, err
	}

	if mode.PublicID != "" {
		attrs.PublicID = mode.PublicID
	}

	if err := validateParents(data, mode, attrs); err != nil {
		return nil, err
	}

	// Discovery metadata is never restricted, whatever the submission says.
	if base.Base == MetaBase {
		attrs.Public = true
	} else if data.Permissions != nil {
		if data.Permissions.Public {
			attrs.Public = true
		} else {
			attrs.Public = false
			attrs.PermittedEntities = slices.Clone(data.Permissions.Entities)
		}
	} else {
		attrs.Public = true
	}

	attrs.Mentions = stampEntity(data.Mentions, attrs.Entity)
	attrs.Refs = stampEntity(data.Refs, attrs.Entity)

	if err := b.resolveAttachments(ctx, req, mode, attrs); err != nil {
		return nil, err
	}

	return attrs, nil
}

// resolveEntity applies the attribution precedence: import takes the entity
// from the submitted data, an explicit mode entity wins next, otherwise the
// post belongs to the acting user's own entity.
func (b *AttributeBuilder) resolveEntity(ctx context.Context, req *core.Request, mode core.Mode, attrs *Attributes) error {
	switch {
	case mode.IsImport():
		if req.Submission.Entity == "" {
			return core.NewFieldValidationError("/entity", "is required")
		}
		entity, err := b.Entities.ResolveOrCreate(ctx, req.Submission.Entity)
		if err != nil {
			return err
		}
		attrs.Entity = entity.Entity
		attrs.EntityID = entity.ID

	case mode.Entity != "":
		entity, err := b.Entities.ResolveOrCreate(ctx, mode.Entity)
		if err != nil {
			return err
		}
		attrs.Entity = entity.Entity
		attrs.EntityID = entity.ID

	default:
		attrs.Entity = req.User.Entity
		attrs.EntityID = req.User.EntityID
	}
	return nil
}

// validateParents enforces that every declared parent entry carries both its
// version and post identifiers, reporting every malformed index at once. A
// bare new-version flag without parents is only valid when a remote origin
// asserts it.
func validateParents(data *core.Submission, mode core.Mode, attrs *Attributes) error {
	if data.Version != nil && data.Version.Parents != nil {
		var missing []string
		for i, parent := range data.Version.Parents {
			if parent.Version == "" {
				missing = append(missing, fmt.Sprintf("/version/parents/%d/version is required", i))
			}
			if parent.Post == "" {
				missing = append(missing, fmt.Sprintf("/version/parents/%d/post is required", i))
			}
		}
		if len(missing) > 0 {
			return core.NewValidationError("%s", strings.Join(missing, "; "))
		}

		attrs.VersionParents = slices.Clone(data.Version.Parents)
		return nil
	}

	if mode.NewVersion && !mode.IsNotification() {
		return core.NewValidationError("parent version not specified")
	}
	return nil
}

// stampEntity applies the default-self rule without touching the caller's
// slice: entries that omit an entity are stamped with the post's own.
func stampEntity(refs []core.PostRef, entity string) []core.PostRef {
	if len(refs) == 0 {
		return nil
	}

	return lo.Map(refs, func(ref core.PostRef, _ int) core.PostRef {
		if ref.Entity == nil {
			e := entity
			ref.Entity = &e
		}
		return ref
	})
}

// resolveAttachments rewrites declared references into canonical descriptors
// and appends descriptors for fresh uploads. Notification descriptors are
// trusted as given; declared references that match nothing in the store are
// dropped, since a submission cannot declare content it never uploaded.
func (b *AttributeBuilder) resolveAttachments(ctx context.Context, req *core.Request, mode core.Mode, attrs *Attributes) error {
	data := req.Submission

	if mode.IsNotification() {
		if len(data.Attachments) > 0 {
			attrs.Attachments = slices.Clone(data.Attachments)
		}
		return nil
	}

	for _, ref := range data.Attachments {
		if ref.Digest == "" {
			continue
		}

		stored, err := b.Attachments.FindByDigest(ctx, ref.Digest, ref.Size)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				continue
			}
			return err
		}

		canonical := core.AttachmentRef{
			Digest:      ref.Digest,
			Size:        stored.Size,
			Name:        ref.Name,
			Category:    ref.Category,
			ContentType: ref.ContentType,
		}
		attrs.Attachments = append(attrs.Attachments, canonical)
		attrs.Matched = append(attrs.Matched, MatchedAttachment{Ref: canonical, Attachment: stored})
	}

	for _, up := range req.Uploads {
		d, size := up.Digest, up.Size
		if d == "" {
			d = digest.Hex(up.Data)
			size = int64(len(up.Data))
		}

		attrs.Attachments = append(attrs.Attachments, core.AttachmentRef{
			Digest:      d,
			Size:        size,
			Name:        up.Name,
			Category:    up.Category,
			ContentType: up.ContentType,
		})
	}

	return nil
}
