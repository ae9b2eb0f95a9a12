package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/Astemirdum/lending-service/internal/errs"
	"github.com/Astemirdum/lending-service/internal/model"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var borrowRequestColumns = []string{
	"id", "user_id", "book_id", "status", "requested_at", "approved_at",
	"rejected_at", "due_date", "borrow_record_id", "idempotency_key",
	"admin_notes", "reserved_copy",
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (r *repository) CreateBorrowRequest(ctx context.Context, req model.BorrowRequest) (model.BorrowRequest, error) {
	query, args, err := qb.Insert(borrowRequestsTableName).
		Columns("user_id", "book_id", "status", "idempotency_key", "reserved_copy").
		Values(req.UserID, req.BookID, model.RequestPending, req.IdempotencyKey, req.ReservedCopy).
		Suffix("returning " + joinColumns(borrowRequestColumns)).
		ToSql()
	if err != nil {
		return model.BorrowRequest{}, err
	}
	var out model.BorrowRequest
	if err := sqlx.GetContext(ctx, r.q(ctx), &out, query, args...); err != nil {
		if isUniqueViolation(err) {
			return model.BorrowRequest{}, errs.ErrDuplicateRequest
		}
		r.log.Error("CreateBorrowRequest", zap.String("q", query), zap.Any("args", args))
		return model.BorrowRequest{}, err
	}
	return out, nil
}

func (r *repository) GetBorrowRequest(ctx context.Context, id int64) (model.BorrowRequest, error) {
	query, args, err := qb.Select(borrowRequestColumns...).
		From(borrowRequestsTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.BorrowRequest{}, err
	}
	var out model.BorrowRequest
	if err := sqlx.GetContext(ctx, r.q(ctx), &out, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BorrowRequest{}, errs.ErrNotFound
		}
		return model.BorrowRequest{}, err
	}
	return out, nil
}

// TransitionBorrowRequest moves a request from one status to another with the
// source status in the WHERE clause, so only one of two concurrent resolution
// attempts wins. The loser gets ErrAlreadyProcessed (or ErrInvalidTransition
// when the row is in some other state), a missing row gets ErrNotFound.
func (r *repository) TransitionBorrowRequest(ctx context.Context, id int64, from, to model.RequestStatus, upd BorrowRequestUpdate) (model.BorrowRequest, error) {
	b := qb.Update(borrowRequestsTableName).
		Set("status", to).
		Where(sq.Eq{"id": id, "status": from})
	if upd.ApprovedAt != nil {
		b = b.Set("approved_at", *upd.ApprovedAt)
	}
	if upd.RejectedAt != nil {
		b = b.Set("rejected_at", *upd.RejectedAt)
	}
	if upd.DueDate != nil {
		b = b.Set("due_date", *upd.DueDate)
	}
	if upd.BorrowRecordID != nil {
		b = b.Set("borrow_record_id", *upd.BorrowRecordID)
	}
	if upd.AdminNotes != nil {
		b = b.Set("admin_notes", *upd.AdminNotes)
	}
	query, args, err := b.Suffix("returning " + joinColumns(borrowRequestColumns)).ToSql()
	if err != nil {
		return model.BorrowRequest{}, err
	}

	var out model.BorrowRequest
	if err := sqlx.GetContext(ctx, r.q(ctx), &out, query, args...); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return model.BorrowRequest{}, err
		}
		cur, getErr := r.GetBorrowRequest(ctx, id)
		if getErr != nil {
			return model.BorrowRequest{}, getErr
		}
		if from == model.RequestPending &&
			(cur.Status == model.RequestApproved || cur.Status == model.RequestRejected) {
			return model.BorrowRequest{}, errs.ErrAlreadyProcessed
		}
		return model.BorrowRequest{}, errs.ErrInvalidTransition
	}
	return out, nil
}

func (r *repository) TransitionBorrowRequestByRecord(ctx context.Context, borrowRecordID int64, from, to model.RequestStatus) error {
	query, args, err := qb.Update(borrowRequestsTableName).
		Set("status", to).
		Where(sq.Eq{"borrow_record_id": borrowRecordID, "status": from}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := r.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrInvalidTransition
	}
	return nil
}

func (r *repository) FirstPendingBorrowRequestForBook(ctx context.Context, bookID int64) (model.BorrowRequest, error) {
	query, args, err := qb.Select(borrowRequestColumns...).
		From(borrowRequestsTableName).
		Where(sq.Eq{"book_id": bookID, "status": model.RequestPending}).
		OrderBy("requested_at asc").
		Limit(1).
		ToSql()
	if err != nil {
		return model.BorrowRequest{}, err
	}
	var out model.BorrowRequest
	if err := sqlx.GetContext(ctx, r.q(ctx), &out, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BorrowRequest{}, errs.ErrNotFound
		}
		return model.BorrowRequest{}, err
	}
	return out, nil
}

func (r *repository) CreateBorrowRecord(ctx context.Context, rec model.BorrowRecord) (model.BorrowRecord, error) {
	query, args, err := qb.Insert(borrowRecordsTableName).
		Columns("user_id", "book_id", "borrow_date", "due_date", "status").
		Values(rec.UserID, rec.BookID, rec.BorrowDate.Format(time.DateOnly), rec.DueDate.Format(time.DateOnly), model.RecordBorrowed).
		Suffix("returning id, user_id, book_id, borrow_date, due_date, return_date, status").
		ToSql()
	if err != nil {
		return model.BorrowRecord{}, err
	}
	var out model.BorrowRecord
	if err := sqlx.GetContext(ctx, r.q(ctx), &out, query, args...); err != nil {
		r.log.Error("CreateBorrowRecord", zap.String("q", query), zap.Any("args", args))
		return model.BorrowRecord{}, err
	}
	return out, nil
}

func (r *repository) GetBorrowRecord(ctx context.Context, id int64) (model.BorrowRecord, error) {
	query, args, err := qb.Select("id", "user_id", "book_id", "borrow_date", "due_date", "return_date", "status").
		From(borrowRecordsTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.BorrowRecord{}, err
	}
	var out model.BorrowRecord
	if err := sqlx.GetContext(ctx, r.q(ctx), &out, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BorrowRecord{}, errs.ErrNotFound
		}
		return model.BorrowRecord{}, err
	}
	return out, nil
}

func (r *repository) CloseBorrowRecord(ctx context.Context, id int64, returnDate time.Time) error {
	query, args, err := qb.Update(borrowRecordsTableName).
		Set("status", model.RecordReturned).
		Set("return_date", returnDate.Format(time.DateOnly)).
		Where(sq.Eq{"id": id, "status": model.RecordBorrowed}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := r.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, getErr := r.GetBorrowRecord(ctx, id); getErr != nil {
			return getErr
		}
		return errs.ErrInvalidTransition
	}
	return nil
}

func (r *repository) ListOverdueRecords(ctx context.Context, asOf time.Time) ([]model.BorrowRecord, error) {
	query, args, err := qb.Select("id", "user_id", "book_id", "borrow_date", "due_date", "return_date", "status").
		From(borrowRecordsTableName).
		Where(sq.Eq{"status": model.RecordBorrowed}).
		Where(sq.Lt{"due_date": asOf.Format(time.DateOnly)}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	var out []model.BorrowRecord
	if err := sqlx.SelectContext(ctx, r.q(ctx), &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) ListRecordsDueWithin(ctx context.Context, from, to time.Time) ([]model.BorrowRecord, error) {
	query, args, err := qb.Select("id", "user_id", "book_id", "borrow_date", "due_date", "return_date", "status").
		From(borrowRecordsTableName).
		Where(sq.Eq{"status": model.RecordBorrowed}).
		Where(sq.GtOrEq{"due_date": from.Format(time.DateOnly)}).
		Where(sq.LtOrEq{"due_date": to.Format(time.DateOnly)}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	var out []model.BorrowRecord
	if err := sqlx.SelectContext(ctx, r.q(ctx), &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) CreateReturnRequest(ctx context.Context, req model.ReturnRequest) (model.ReturnRequest, error) {
	query, args, err := qb.Insert(returnRequestsTableName).
		Columns("user_id", "book_id", "borrow_record_id", "status").
		Values(req.UserID, req.BookID, req.BorrowRecordID, model.RequestPending).
		Suffix("returning id, user_id, book_id, borrow_record_id, status, requested_at, admin_notes").
		ToSql()
	if err != nil {
		return model.ReturnRequest{}, err
	}
	var out model.ReturnRequest
	if err := sqlx.GetContext(ctx, r.q(ctx), &out, query, args...); err != nil {
		if isUniqueViolation(err) {
			return model.ReturnRequest{}, errs.ErrDuplicateRequest
		}
		return model.ReturnRequest{}, err
	}
	return out, nil
}

func (r *repository) GetReturnRequest(ctx context.Context, id int64) (model.ReturnRequest, error) {
	query, args, err := qb.Select("id", "user_id", "book_id", "borrow_record_id", "status", "requested_at", "admin_notes").
		From(returnRequestsTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.ReturnRequest{}, err
	}
	var out model.ReturnRequest
	if err := sqlx.GetContext(ctx, r.q(ctx), &out, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ReturnRequest{}, errs.ErrNotFound
		}
		return model.ReturnRequest{}, err
	}
	return out, nil
}

func (r *repository) TransitionReturnRequest(ctx context.Context, id int64, from, to model.RequestStatus, notes *string) (model.ReturnRequest, error) {
	b := qb.Update(returnRequestsTableName).
		Set("status", to).
		Where(sq.Eq{"id": id, "status": from})
	if notes != nil {
		b = b.Set("admin_notes", *notes)
	}
	query, args, err := b.
		Suffix("returning id, user_id, book_id, borrow_record_id, status, requested_at, admin_notes").
		ToSql()
	if err != nil {
		return model.ReturnRequest{}, err
	}
	var out model.ReturnRequest
	if err := sqlx.GetContext(ctx, r.q(ctx), &out, query, args...); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return model.ReturnRequest{}, err
		}
		cur, getErr := r.GetReturnRequest(ctx, id)
		if getErr != nil {
			return model.ReturnRequest{}, getErr
		}
		if cur.Status == model.RequestApproved || cur.Status == model.RequestRejected {
			return model.ReturnRequest{}, errs.ErrAlreadyProcessed
		}
		return model.ReturnRequest{}, errs.ErrInvalidTransition
	}
	return out, nil
}
