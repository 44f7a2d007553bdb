package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"postsync/internal/cmd/flags"
	"postsync/internal/core"
	"postsync/internal/ingest"
	"postsync/internal/persistence"
	"postsync/internal/persistence/attachments"
	"postsync/internal/persistence/graph"
	"postsync/internal/persistence/posts"
	"postsync/internal/persistence/registry"
	"postsync/internal/persistence/subscriptions"
	"postsync/internal/persistence/users"
	"postsync/pkg/clicfg"

	"github.com/urfave/cli/v3"
)

// importCmd bulk-loads posts from a JSON file into a local user's store.
// Imported posts keep the entity named in each data object and are never
// scheduled for delivery.
var importCmd = &cli.Command{
	Name:      "import",
	Usage:     "Import posts from a JSON file into a user's store",
	ArgsUsage: "FILE",
	Flags: []cli.Flag{
		flags.DatabaseURL,
		flags.UserEntity,
	},
	Action: func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 1 {
			return fmt.Errorf("expected exactly one file argument")
		}

		raw, err := os.ReadFile(c.Args().First())
		if err != nil {
			return err
		}

		subs, err := ingest.DecodeSubmissionBatch(raw)
		if err != nil {
			return err
		}

		return withIngestor(ctx, c, func(userRepo core.UserRepository, orchestrator *ingest.Orchestrator) error {
			user, err := userRepo.FindByEntity(ctx, c.String("user-entity"))
			if err != nil {
				return fmt.Errorf("user %q: %w", c.String("user-entity"), err)
			}

			for i, sub := range subs {
				req := &core.Request{User: user, Submission: sub}
				if _, err := orchestrator.CreateFromRequest(ctx, req, core.ImportMode()); err != nil {
					return fmt.Errorf("item %d: %w", i, err)
				}
			}

			slog.Info("import finished", "posts", len(subs))
			return nil
		})
	},
}

// withIngestor wires the ingestion core by hand for one-shot commands, the
// way withMigrator does for migrations. No delivery queue is wired: imported
// posts never enqueue.
func withIngestor(ctx context.Context, c *cli.Command, f func(core.UserRepository, *ingest.Orchestrator) error) error {
	cfg := core.Config{}
	if err := cfg.LoadEnv(); err != nil {
		return err
	}
	if err := clicfg.ParseFlags(c, &cfg); err != nil {
		return err
	}

	db := &persistence.DB{Config: &cfg}
	if err := db.Init(ctx); err != nil {
		return err
	}
	defer db.Shutdown(ctx) //nolint:errcheck

	logger := slog.Default()

	types := &registry.Types{Logger: logger, DB: db}
	entities := &registry.Entities{Logger: logger, DB: db}
	attachmentRepo := &attachments.Repository{Logger: logger, DB: db}
	postRepo := &posts.Repository{Logger: logger, DB: db}
	graphRepo := &graph.Repository{Logger: logger, DB: db}
	subscriptionRepo := &subscriptions.Repository{Logger: logger, DB: db}
	userRepo := &users.Repository{Logger: logger, DB: db}

	builder := &ingest.AttributeBuilder{Logger: logger, Types: types, Entities: entities, Attachments: attachmentRepo}
	matcher := &ingest.SubscriptionMatcher{Logger: logger, Subscriptions: subscriptionRepo, Posts: postRepo}
	lineage := &ingest.VersionLineage{Logger: logger, Posts: postRepo, Graph: graphRepo}
	mentions := &ingest.MentionGraph{Logger: logger, Entities: entities, Types: types, Graph: graphRepo}
	orchestrator := &ingest.Orchestrator{
		Logger:        logger,
		Builder:       builder,
		Posts:         postRepo,
		Graph:         graphRepo,
		Attachments:   attachmentRepo,
		Subscriptions: matcher,
		Lineage:       lineage,
		Mentions:      mentions,
	}

	initable := []interface {
		Init(context.Context) error
	}{
		types, entities, attachmentRepo, postRepo, graphRepo, subscriptionRepo, userRepo,
		builder, matcher, lineage, mentions, orchestrator,
	}
	for _, service := range initable {
		if err := service.Init(ctx); err != nil {
			return err
		}
	}

	return f(userRepo, orchestrator)
}
