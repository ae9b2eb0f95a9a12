package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Astemirdum/lending-service/internal/errs"
	"github.com/Astemirdum/lending-service/internal/model"
	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

func (r *repository) GetUser(ctx context.Context, id int64) (model.User, error) {
	query, args, err := qb.Select("id", "name", "email", "status", "total_fines_owed", "is_restricted", "restriction_reason").
		From(usersTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	var u model.User
	if err := sqlx.GetContext(ctx, r.q(ctx), &u, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, errs.ErrNotFound
		}
		return model.User{}, err
	}
	return u, nil
}

// RecomputeFinesOwed refreshes the cached balance from the fine rows: the sum
// of (amount - paid_amount) over PENDING and PARTIAL_PAID fines.
func (r *repository) RecomputeFinesOwed(ctx context.Context, userID int64) (decimal.Decimal, error) {
	q := fmt.Sprintf(`update %s
	set total_fines_owed = coalesce((
		select sum(amount - paid_amount) from %s
		where user_id = $1 and status in ('PENDING', 'PARTIAL_PAID')
	), 0)
	where id = $1
	returning total_fines_owed`, usersTableName, finesTableName)

	var owed decimal.Decimal
	if err := r.q(ctx).QueryRowxContext(ctx, q, userID).Scan(&owed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, errs.ErrNotFound
		}
		return decimal.Zero, err
	}
	return owed, nil
}

func (r *repository) SetRestriction(ctx context.Context, userID int64, restricted bool, reason string) error {
	var reasonVal any
	if restricted {
		reasonVal = reason
	}
	query, args, err := qb.Update(usersTableName).
		Set("is_restricted", restricted).
		Set("restriction_reason", reasonVal).
		Where(sq.Eq{"id": userID}).
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
