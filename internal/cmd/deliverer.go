package cmd

import (
	"context"

	"postsync/internal/cmd/flags"
	"postsync/internal/core"
	"postsync/internal/delivery"
	"postsync/internal/metrics"
	"postsync/internal/nats"
	"postsync/internal/persistence"
	"postsync/internal/persistence/posts"
	"postsync/internal/persistence/subscriptions"

	"github.com/urfave/cli/v3"
	"github.com/zhulik/pal"
)

var delivererCmd = &cli.Command{
	Name:  "deliverer",
	Usage: "Consume the delivery stream, push posts to subscribed remote parties",
	Flags: []cli.Flag{
		flags.DatabaseURL,
		flags.NATSUrl,
		flags.InitNATS,
		flags.MetricsAddr,
	},
	Action: func(ctx context.Context, c *cli.Command) error {
		return run(ctx, c,
			pal.Provide[core.DB](&persistence.DB{}),
			pal.Provide[core.PostRepository](&posts.Repository{}),
			pal.Provide[core.SubscriptionRepository](&subscriptions.Repository{}),
			pal.Provide(&delivery.Worker{}),
			pal.Provide(&metrics.HTTPServer{}),
			nats.Provide(),
		)
	},
}
