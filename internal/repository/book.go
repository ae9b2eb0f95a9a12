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
	"go.uber.org/zap"
)

func (r *repository) GetBook(ctx context.Context, id int64) (model.Book, error) {
	query, args, err := qb.Select("id", "title", "author", "price", "total_copies", "available_copies", "reserve_on_request").
		From(booksTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var book model.Book
	if err := sqlx.GetContext(ctx, r.q(ctx), &book, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	return book, nil
}

// ReserveCopy decrements available_copies with the non-negativity guard in
// the WHERE clause. Concurrent callers race on the conditional update, never
// on a read-then-write pair.
func (r *repository) ReserveCopy(ctx context.Context, bookID int64) error {
	q := fmt.Sprintf(`update %s
	set available_copies = available_copies - 1
	where id = $1 and available_copies > 0`, booksTableName)

	res, err := r.q(ctx).ExecContext(ctx, q, bookID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetBook(ctx, bookID); err != nil {
			return err
		}
		return errs.ErrOutOfStock
	}
	return nil
}

// ReleaseCopy increments available_copies capped at total_copies. Releasing
// at the cap is a no-op, a missing book is NotFound.
func (r *repository) ReleaseCopy(ctx context.Context, bookID int64) error {
	q := fmt.Sprintf(`update %s
	set available_copies = least(available_copies + 1, total_copies)
	where id = $1`, booksTableName)

	res, err := r.q(ctx).ExecContext(ctx, q, bookID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		r.log.Warn("ReleaseCopy: book missing", zap.Int64("book_id", bookID))
		return errs.ErrNotFound
	}
	return nil
}
