package cmd

import (
	"context"

	"postsync/internal/api"
	"postsync/internal/cmd/flags"
	"postsync/internal/core"
	"postsync/internal/delivery"
	"postsync/internal/ingest"
	"postsync/internal/metrics"
	"postsync/internal/nats"
	"postsync/internal/persistence"
	"postsync/internal/persistence/attachments"
	"postsync/internal/persistence/graph"
	"postsync/internal/persistence/posts"
	"postsync/internal/persistence/registry"
	"postsync/internal/persistence/subscriptions"
	"postsync/internal/persistence/users"

	"github.com/urfave/cli/v3"
	"github.com/zhulik/pal"
)

var serverCmd = &cli.Command{
	Name:  "server",
	Usage: "Run the post ingestion endpoint: API, metrics and delivery queue",
	Flags: []cli.Flag{
		flags.DatabaseURL,
		flags.NATSUrl,
		flags.InitNATS,
		flags.APIAddr,
		flags.MetricsAddr,
	},
	Action: func(ctx context.Context, c *cli.Command) error {
		return run(ctx, c,
			pal.Provide[core.DB](&persistence.DB{}),
			pal.Provide[core.TypeResolver](&registry.Types{}),
			pal.Provide[core.EntityResolver](&registry.Entities{}),
			pal.Provide[core.AttachmentStore](&attachments.Repository{}),
			pal.Provide[core.PostRepository](&posts.Repository{}),
			pal.Provide[core.GraphRepository](&graph.Repository{}),
			pal.Provide[core.SubscriptionRepository](&subscriptions.Repository{}),
			pal.Provide[core.UserRepository](&users.Repository{}),
			pal.Provide[core.DeliveryQueue](&delivery.Queue{}),

			pal.Provide(&ingest.AttributeBuilder{}),
			pal.Provide(&ingest.SubscriptionMatcher{}),
			pal.Provide(&ingest.VersionLineage{}),
			pal.Provide(&ingest.MentionGraph{}),
			pal.Provide(&ingest.Orchestrator{}),

			pal.Provide(&api.Backend{}),
			pal.Provide(&api.Server{}),
			pal.Provide(&metrics.Collector{}),
			pal.Provide(&metrics.HTTPServer{}),
			nats.Provide(),
		)
	},
}
