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
	"github.com/shopspring/decimal"
)

var fineColumns = []string{
	"id", "user_id", "book_id", "borrow_record_id", "fine_type", "penalty_type",
	"amount", "paid_amount", "status", "due_date", "calculation_date",
	"days_overdue", "is_book_lost",
}

// UpsertFine creates the single fine row for a borrow record, or refreshes its
// amount/days_overdue on recalculation. A fine that reached PAID or WAIVED is
// left untouched; the returned bool reports whether a write happened. The
// conflict-path UPDATE takes the row lock, so recalculation serializes against
// a concurrent payment on the same fine.
func (r *repository) UpsertFine(ctx context.Context, fine model.Fine) (model.Fine, bool, error) {
	q := fmt.Sprintf(`insert into %s
	(user_id, book_id, borrow_record_id, fine_type, penalty_type, amount,
	 status, due_date, calculation_date, days_overdue, is_book_lost)
	values ($1, $2, $3, $4, $5, $6, 'PENDING', $7, $8, $9, $10)
	on conflict (borrow_record_id) do update set
		fine_type        = excluded.fine_type,
		penalty_type     = excluded.penalty_type,
		amount           = excluded.amount,
		calculation_date = excluded.calculation_date,
		days_overdue     = excluded.days_overdue,
		is_book_lost     = excluded.is_book_lost
	where %s.status in ('PENDING', 'PARTIAL_PAID')
	returning %s`, finesTableName, finesTableName, joinColumns(fineColumns))

	var out model.Fine
	err := sqlx.GetContext(ctx, r.q(ctx), &out, q,
		fine.UserID, fine.BookID, fine.BorrowRecordID, fine.FineType, fine.PenaltyType,
		fine.Amount, fine.DueDate.Format(time.DateOnly), fine.CalculationDate.Format(time.DateOnly),
		fine.DaysOverdue, fine.IsBookLost)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// conflict row is PAID or WAIVED, nothing written
			existing, getErr := r.fineByBorrowRecord(ctx, fine.BorrowRecordID)
			if getErr != nil {
				return model.Fine{}, false, getErr
			}
			return existing, false, nil
		}
		return model.Fine{}, false, err
	}
	return out, true, nil
}

func (r *repository) fineByBorrowRecord(ctx context.Context, borrowRecordID int64) (model.Fine, error) {
	query, args, err := qb.Select(fineColumns...).
		From(finesTableName).
		Where(sq.Eq{"borrow_record_id": borrowRecordID}).
		ToSql()
	if err != nil {
		return model.Fine{}, err
	}
	var out model.Fine
	if err := sqlx.GetContext(ctx, r.q(ctx), &out, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Fine{}, errs.ErrNotFound
		}
		return model.Fine{}, err
	}
	return out, nil
}

func (r *repository) GetFineForUpdate(ctx context.Context, id int64) (model.Fine, error) {
	query, args, err := qb.Select(fineColumns...).
		From(finesTableName).
		Where(sq.Eq{"id": id}).
		Suffix("for update").
		ToSql()
	if err != nil {
		return model.Fine{}, err
	}
	var out model.Fine
	if err := sqlx.GetContext(ctx, r.q(ctx), &out, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Fine{}, errs.ErrNotFound
		}
		return model.Fine{}, err
	}
	return out, nil
}

func (r *repository) PendingFineForBorrowRecord(ctx context.Context, borrowRecordID int64) (model.Fine, bool, error) {
	fine, err := r.fineByBorrowRecord(ctx, borrowRecordID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Fine{}, false, nil
		}
		return model.Fine{}, false, err
	}
	if fine.Status == model.FinePending || fine.Status == model.FinePartialPaid {
		return fine, true, nil
	}
	return model.Fine{}, false, nil
}

// ListFinesForUpdate locks the given fines in id order, which keeps lock
// acquisition deterministic across concurrent payments.
func (r *repository) ListFinesForUpdate(ctx context.Context, ids []int64) ([]model.Fine, error) {
	query, args, err := qb.Select(fineColumns...).
		From(finesTableName).
		Where(sq.Eq{"id": ids}).
		OrderBy("id").
		Suffix("for update").
		ToSql()
	if err != nil {
		return nil, err
	}
	var out []model.Fine
	if err := sqlx.SelectContext(ctx, r.q(ctx), &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) ApplyFinePayment(ctx context.Context, fineID int64, paidAmount decimal.Decimal, status model.FineStatus) error {
	query, args, err := qb.Update(finesTableName).
		Set("paid_amount", paidAmount).
		Set("status", status).
		Where(sq.Eq{"id": fineID}).
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

func (r *repository) SetFineStatus(ctx context.Context, fineID int64, from []model.FineStatus, to model.FineStatus) error {
	query, args, err := qb.Update(finesTableName).
		Set("status", to).
		Where(sq.Eq{"id": fineID, "status": from}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := r.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, getErr := r.GetFineForUpdate(ctx, fineID); getErr != nil {
			return getErr
		}
		return errs.ErrInvalidTransition
	}
	return nil
}
