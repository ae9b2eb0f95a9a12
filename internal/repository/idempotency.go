package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Astemirdum/lending-service/internal/errs"
	"github.com/Astemirdum/lending-service/internal/model"
	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// ClaimIdempotencyKey treats key insertion as an atomic claim. The first
// caller inserts the row and gets claimed=true; every other caller gets the
// existing record back (whose result may still be null while the first caller
// is in flight). Expired rows are reaped before claiming so a stale key can
// be reused.
func (r *repository) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (model.IdempotencyRecord, bool, error) {
	del := fmt.Sprintf(`delete from %s where operation_key = $1 and expires_at < now()`, idempotencyTableName)
	if _, err := r.q(ctx).ExecContext(ctx, del, key); err != nil {
		return model.IdempotencyRecord{}, false, err
	}

	ins := fmt.Sprintf(`insert into %s (operation_key, expires_at)
	values ($1, $2)
	on conflict (operation_key) do nothing
	returning operation_key, result, expires_at`, idempotencyTableName)

	var rec model.IdempotencyRecord
	err := sqlx.GetContext(ctx, r.q(ctx), &rec, ins, key, time.Now().UTC().Add(ttl))
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.IdempotencyRecord{}, false, err
	}

	// lost the claim, read what the winner stored
	query, args, err := qb.Select("operation_key", "result", "expires_at").
		From(idempotencyTableName).
		Where(sq.Eq{"operation_key": key}).
		ToSql()
	if err != nil {
		return model.IdempotencyRecord{}, false, err
	}
	if err := sqlx.GetContext(ctx, r.q(ctx), &rec, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.IdempotencyRecord{}, false, errs.ErrNotFound
		}
		return model.IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

// ReleaseIdempotencyKey frees a claim whose operation failed, so a retry can
// execute the operation again instead of replaying a failure.
func (r *repository) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	query, args, err := qb.Delete(idempotencyTableName).
		Where(sq.Eq{"operation_key": key}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.q(ctx).ExecContext(ctx, query, args...)
	return err
}

func (r *repository) StoreIdempotencyResult(ctx context.Context, key string, result []byte) error {
	query, args, err := qb.Update(idempotencyTableName).
		Set("result", result).
		Where(sq.Eq{"operation_key": key}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := r.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrNotFound
	}
	return nil
}
