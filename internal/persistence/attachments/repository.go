package attachments

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"postsync/internal/core"
)

var (
	dedupHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postsync_attachment_dedup_hits_total",
		Help: "The total number of attachment uploads resolved to an already stored blob.",
	})
)

// Repository is the content-addressed attachment store. The digest column is
// unique; GetOrCreate relies on it so two concurrent uploads of identical
// bytes converge on one row.
type Repository struct {
	Logger *slog.Logger
	DB     core.DB
}

func (r *Repository) Init(_ context.Context) error {
	r.Logger = r.Logger.With("component", "attachments.Repository")
	return nil
}

// FindByDigest validates a caller-declared reference. The size is part of
// the match only when the caller supplied one; the stored size is
// authoritative either way.
func (r *Repository) FindByDigest(ctx context.Context, digest string, size int64) (*core.Attachment, error) {
	var attachment core.Attachment

	q := r.DB.Model(&core.Attachment{}).
		WithContext(ctx).
		Where("digest = ?", digest)
	if size > 0 {
		q = q.Where("size = ?", size)
	}

	err := q.First(&attachment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}

	return &attachment, nil
}

// GetOrCreate inserts the blob with create-or-fetch-on-conflict semantics.
// The loser of a concurrent race fetches the winner's row instead of erroring.
func (r *Repository) GetOrCreate(ctx context.Context, digest string, size int64, data []byte) (*core.Attachment, error) {
	attachment := core.Attachment{Digest: digest, Size: size, Data: data}

	err := r.DB.Model(&core.Attachment{}).
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "digest"}},
			DoNothing: true,
		}).
		Create(&attachment).Error
	if err != nil && !isUniqueViolation(err) {
		return nil, err
	}

	if err == nil && attachment.ID != 0 {
		return &attachment, nil
	}

	dedupHits.Inc()

	var existing core.Attachment
	err = r.DB.Model(&core.Attachment{}).
		WithContext(ctx).
		Where("digest = ?", digest).
		First(&existing).Error
	if err != nil {
		return nil, err
	}

	return &existing, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
