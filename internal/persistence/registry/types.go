// Package registry holds the lazily populated lookup tables for type URIs
// and entity identifiers. Both resolvers are idempotent upserts on the
// natural key, safe under concurrent first-sight creation.
package registry

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"postsync/internal/core"
	"postsync/pkg/tenttype"
)

type Types struct {
	Logger *slog.Logger
	DB     core.DB
}

func (t *Types) Init(_ context.Context) error {
	t.Logger = t.Logger.With("component", "registry.Types")
	return nil
}

func (t *Types) Resolve(ctx context.Context, uri string) (*core.PostType, *core.PostTypeBase, error) {
	if _, err := tenttype.Parse(uri); err != nil {
		return nil, nil, err
	}

	var typ core.PostType
	err := t.DB.Model(&core.PostType{}).
		WithContext(ctx).
		Where("uri = ?", uri).
		First(&typ).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, core.ErrNotFound
		}
		return nil, nil, err
	}

	var base core.PostTypeBase
	err = t.DB.Model(&core.PostTypeBase{}).
		WithContext(ctx).
		Where("id = ?", typ.BaseID).
		First(&base).Error
	if err != nil {
		return nil, nil, err
	}

	return &typ, &base, nil
}

func (t *Types) ResolveOrCreate(ctx context.Context, uri string) (*core.PostType, *core.PostTypeBase, error) {
	parsed, err := tenttype.Parse(uri)
	if err != nil {
		return nil, nil, err
	}

	base, err := t.resolveOrCreateBase(ctx, parsed.Base)
	if err != nil {
		return nil, nil, err
	}

	typ := core.PostType{URI: uri, BaseID: base.ID}
	err = t.DB.Model(&core.PostType{}).
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "uri"}},
			DoNothing: true,
		}).
		Create(&typ).Error
	if err != nil && !isUniqueViolation(err) {
		return nil, nil, err
	}

	if err != nil || typ.ID == 0 {
		err = t.DB.Model(&core.PostType{}).
			WithContext(ctx).
			Where("uri = ?", uri).
			First(&typ).Error
		if err != nil {
			return nil, nil, err
		}
	}

	return &typ, base, nil
}

func (t *Types) resolveOrCreateBase(ctx context.Context, baseURI string) (*core.PostTypeBase, error) {
	base := core.PostTypeBase{Base: baseURI}

	err := t.DB.Model(&core.PostTypeBase{}).
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "base"}},
			DoNothing: true,
		}).
		Create(&base).Error
	if err != nil && !isUniqueViolation(err) {
		return nil, err
	}

	if err != nil || base.ID == 0 {
		err = t.DB.Model(&core.PostTypeBase{}).
			WithContext(ctx).
			Where("base = ?", baseURI).
			First(&base).Error
		if err != nil {
			return nil, err
		}
	}

	return &base, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
