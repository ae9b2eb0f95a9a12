package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/Astemirdum/lending-service/internal/errs"
	"github.com/Astemirdum/lending-service/internal/model"
	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var paymentColumns = []string{
	"id", "user_id", "total_amount", "status", "external_ref", "gateway_tx_id",
	"created_at", "completed_at",
}

func (r *repository) CreatePaymentTransaction(ctx context.Context, p model.PaymentTransaction, fineIDs []int64) (model.PaymentTransaction, error) {
	query, args, err := qb.Insert(paymentsTableName).
		Columns("user_id", "total_amount", "status", "external_ref").
		Values(p.UserID, p.TotalAmount, model.PaymentPending, p.ExternalRef).
		Suffix("returning " + joinColumns(paymentColumns)).
		ToSql()
	if err != nil {
		return model.PaymentTransaction{}, err
	}
	var out model.PaymentTransaction
	if err := sqlx.GetContext(ctx, r.q(ctx), &out, query, args...); err != nil {
		if isUniqueViolation(err) {
			return model.PaymentTransaction{}, errs.ErrDuplicateRequest
		}
		return model.PaymentTransaction{}, err
	}

	ins := qb.Insert(paymentFinesTableName).Columns("payment_id", "fine_id")
	for _, fineID := range fineIDs {
		ins = ins.Values(out.ID, fineID)
	}
	query, args, err = ins.ToSql()
	if err != nil {
		return model.PaymentTransaction{}, err
	}
	if _, err := r.q(ctx).ExecContext(ctx, query, args...); err != nil {
		return model.PaymentTransaction{}, err
	}
	return out, nil
}

// GetPaymentByRefForUpdate locks the transaction row, making it the
// idempotence boundary for duplicate webhook deliveries.
func (r *repository) GetPaymentByRefForUpdate(ctx context.Context, externalRef string) (model.PaymentTransaction, error) {
	query, args, err := qb.Select(paymentColumns...).
		From(paymentsTableName).
		Where(sq.Eq{"external_ref": externalRef}).
		Suffix("for update").
		ToSql()
	if err != nil {
		return model.PaymentTransaction{}, err
	}
	var out model.PaymentTransaction
	if err := sqlx.GetContext(ctx, r.q(ctx), &out, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PaymentTransaction{}, errs.ErrNotFound
		}
		return model.PaymentTransaction{}, err
	}
	return out, nil
}

func (r *repository) PaymentFineIDs(ctx context.Context, paymentID int64) ([]int64, error) {
	query, args, err := qb.Select("fine_id").
		From(paymentFinesTableName).
		Where(sq.Eq{"payment_id": paymentID}).
		OrderBy("fine_id").
		ToSql()
	if err != nil {
		return nil, err
	}
	var out []int64
	if err := sqlx.SelectContext(ctx, r.q(ctx), &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) SetPaymentStatus(ctx context.Context, id int64, to model.PaymentStatus, gatewayTxID *string) error {
	b := qb.Update(paymentsTableName).
		Set("status", to).
		Where(sq.Eq{"id": id})
	if gatewayTxID != nil {
		b = b.Set("gateway_tx_id", *gatewayTxID)
	}
	if to == model.PaymentCompleted {
		b = b.Set("completed_at", time.Now().UTC())
	}
	query, args, err := b.ToSql()
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
