package ingest

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"postsync/internal/core"
)

var (
	postsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postsync_posts_ingested_total",
		Help: "The total number of posts created through ingestion.",
	}, []string{"mode", "base"})
)

// Orchestrator sequences the ingestion components into the end-to-end
// create-from-request flow.
type Orchestrator struct {
	Logger        *slog.Logger
	Builder       *AttributeBuilder
	Posts         core.PostRepository
	Graph         core.GraphRepository
	Attachments   core.AttachmentStore
	Subscriptions *SubscriptionMatcher
	Lineage       *VersionLineage
	Mentions      *MentionGraph
	Queue         core.DeliveryQueue
}

func (o *Orchestrator) Init(_ context.Context) error {
	o.Logger = o.Logger.With("component", "ingest.Orchestrator")
	return nil
}

// CreateFromRequest turns a submission into a created, linked, permissioned
// post. Validation aborts before any side effect for the submission; the
// delivery decision happens exactly once, at the end.
func (o *Orchestrator) CreateFromRequest(ctx context.Context, req *core.Request, mode core.Mode) (*core.Post, error) {
	attrs, err := o.Builder.Build(ctx, req, mode)
	if err != nil {
		return nil, err
	}

	var post *core.Post
	suppressDelivery := false

	if attrs.TypeBase == SubscriptionBase {
		var match *SubscriptionMatch
		if mode.IsNotification() {
			match, err = o.Subscriptions.CreateFromNotification(ctx, req.User, attrs, mode.CredentialsID)
		} else {
			match, err = o.Subscriptions.FindOrCreate(ctx, req.User, attrs)
			// A fresh or still-pending subscription is notified by the
			// relationship initialization flow, not by this call.
			if err == nil && !match.Subscription.Deliver {
				suppressDelivery = true
			}
		}
		if err != nil {
			return nil, err
		}
		post = match.Post
	} else {
		post = attrs.NewPost(req.User)
		if err := o.Posts.Create(ctx, post); err != nil {
			return nil, err
		}
	}

	if len(attrs.Mentions) > 0 {
		if err := o.Mentions.CreateMentions(ctx, post, attrs.Mentions); err != nil {
			return nil, err
		}
	}
	if len(attrs.Refs) > 0 {
		if err := o.Mentions.CreateRefs(ctx, post, attrs.Refs); err != nil {
			return nil, err
		}
	}

	if !mode.IsNotification() {
		if err := o.attachUploads(ctx, post, attrs, req.Uploads); err != nil {
			return nil, err
		}
	}

	if len(attrs.VersionParents) > 0 {
		if err := o.Lineage.Link(ctx, post, attrs.VersionParents); err != nil {
			return nil, err
		}
	}

	postsIngested.WithLabelValues(mode.Kind.String(), attrs.TypeBase).Inc()

	if !mode.IsNotification() && !mode.IsImport() && !suppressDelivery {
		if err := o.Queue.Enqueue(ctx, post); err != nil {
			return nil, err
		}
	}

	o.Logger.Info("post ingested",
		"public_id", post.PublicID, "version", post.Version, "type", post.Type, "mode", mode.Kind.String())

	return post, nil
}

// attachUploads joins the pre-matched attachments and stores fresh uploads.
// Upload descriptors were appended after the matched ones by the builder, in
// order.
func (o *Orchestrator) attachUploads(ctx context.Context, post *core.Post, attrs *Attributes, uploads []core.Upload) error {
	for _, matched := range attrs.Matched {
		pa := &core.PostsAttachment{
			PostID:       post.ID,
			AttachmentID: matched.Attachment.ID,
			Name:         matched.Ref.Name,
			Category:     matched.Ref.Category,
			ContentType:  matched.Ref.ContentType,
		}
		if err := o.Graph.CreatePostsAttachment(ctx, pa); err != nil {
			return err
		}
	}

	offset := len(attrs.Attachments) - len(uploads)
	for i, up := range uploads {
		ref := attrs.Attachments[offset+i]

		attachment, err := o.Attachments.GetOrCreate(ctx, ref.Digest, ref.Size, up.Data)
		if err != nil {
			return err
		}

		pa := &core.PostsAttachment{
			PostID:       post.ID,
			AttachmentID: attachment.ID,
			Name:         ref.Name,
			Category:     ref.Category,
			ContentType:  ref.ContentType,
		}
		if err := o.Graph.CreatePostsAttachment(ctx, pa); err != nil {
			return err
		}
	}

	return nil
}

// CreateDeletePost derives a first-class delete post for post: same user and
// entity, type delete, a single ref naming the deleted post. Deletions are
// versioned posts themselves, not row removals.
func (o *Orchestrator) CreateDeletePost(ctx context.Context, post *core.Post) (*core.Post, error) {
	entity := post.Entity

	req := &core.Request{
		User: &core.User{
			ID:       post.UserID,
			Entity:   post.Entity,
			EntityID: post.EntityID,
		},
		Submission: &core.Submission{
			Type: DeleteType,
			Refs: []core.PostRef{
				{Entity: &entity, Post: post.PublicID},
			},
		},
	}

	return o.CreateFromRequest(ctx, req, core.NormalMode())
}
