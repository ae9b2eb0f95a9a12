package repository

import (
	"context"
	"strings"
	"time"

	"github.com/Astemirdum/lending-service/internal/model"
	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

//go:generate go run github.com/golang/mock/mockgen -source=repository.go -destination=mocks/mock.go

type Repository interface {
	// WithinTx runs fn inside a single database transaction. Nested calls
	// join the ambient transaction.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	// inventory ledger
	GetBook(ctx context.Context, id int64) (model.Book, error)
	ReserveCopy(ctx context.Context, bookID int64) error
	ReleaseCopy(ctx context.Context, bookID int64) error

	// users
	GetUser(ctx context.Context, id int64) (model.User, error)
	RecomputeFinesOwed(ctx context.Context, userID int64) (decimal.Decimal, error)
	SetRestriction(ctx context.Context, userID int64, restricted bool, reason string) error

	// borrow requests
	CreateBorrowRequest(ctx context.Context, req model.BorrowRequest) (model.BorrowRequest, error)
	GetBorrowRequest(ctx context.Context, id int64) (model.BorrowRequest, error)
	TransitionBorrowRequest(ctx context.Context, id int64, from, to model.RequestStatus, upd BorrowRequestUpdate) (model.BorrowRequest, error)
	TransitionBorrowRequestByRecord(ctx context.Context, borrowRecordID int64, from, to model.RequestStatus) error
	FirstPendingBorrowRequestForBook(ctx context.Context, bookID int64) (model.BorrowRequest, error)

	// borrow records
	CreateBorrowRecord(ctx context.Context, rec model.BorrowRecord) (model.BorrowRecord, error)
	GetBorrowRecord(ctx context.Context, id int64) (model.BorrowRecord, error)
	CloseBorrowRecord(ctx context.Context, id int64, returnDate time.Time) error
	ListOverdueRecords(ctx context.Context, asOf time.Time) ([]model.BorrowRecord, error)
	ListRecordsDueWithin(ctx context.Context, from, to time.Time) ([]model.BorrowRecord, error)

	// return requests
	CreateReturnRequest(ctx context.Context, req model.ReturnRequest) (model.ReturnRequest, error)
	GetReturnRequest(ctx context.Context, id int64) (model.ReturnRequest, error)
	TransitionReturnRequest(ctx context.Context, id int64, from, to model.RequestStatus, notes *string) (model.ReturnRequest, error)

	// fines
	UpsertFine(ctx context.Context, fine model.Fine) (model.Fine, bool, error)
	GetFineForUpdate(ctx context.Context, id int64) (model.Fine, error)
	PendingFineForBorrowRecord(ctx context.Context, borrowRecordID int64) (model.Fine, bool, error)
	ListFinesForUpdate(ctx context.Context, ids []int64) ([]model.Fine, error)
	ApplyFinePayment(ctx context.Context, fineID int64, paidAmount decimal.Decimal, status model.FineStatus) error
	SetFineStatus(ctx context.Context, fineID int64, from []model.FineStatus, to model.FineStatus) error

	// payments
	CreatePaymentTransaction(ctx context.Context, p model.PaymentTransaction, fineIDs []int64) (model.PaymentTransaction, error)
	GetPaymentByRefForUpdate(ctx context.Context, externalRef string) (model.PaymentTransaction, error)
	PaymentFineIDs(ctx context.Context, paymentID int64) ([]int64, error)
	SetPaymentStatus(ctx context.Context, id int64, to model.PaymentStatus, gatewayTxID *string) error

	// idempotency
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (model.IdempotencyRecord, bool, error)
	StoreIdempotencyResult(ctx context.Context, key string, result []byte) error
	ReleaseIdempotencyKey(ctx context.Context, key string) error

	// audit
	AppendAuditLog(ctx context.Context, entry model.AuditLogEntry) error

	// notification outbox
	EnqueueNotification(ctx context.Context, n model.Notification) error
	ClaimNotificationBatch(ctx context.Context, limit int) ([]model.Notification, error)
	MarkNotificationSent(ctx context.Context, id int64) error
	MarkNotificationFailed(ctx context.Context, id int64, maxAttempts int) error
}

// BorrowRequestUpdate carries the optional columns set on a transition.
type BorrowRequestUpdate struct {
	ApprovedAt     *time.Time
	RejectedAt     *time.Time
	DueDate        *time.Time
	BorrowRecordID *int64
	AdminNotes     *string
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	booksTableName          = `books`
	usersTableName          = `users`
	borrowRequestsTableName = `borrow_requests`
	borrowRecordsTableName  = `borrow_records`
	returnRequestsTableName = `return_requests`
	finesTableName          = `fines`
	paymentsTableName       = `payment_transactions`
	paymentFinesTableName   = `payment_transaction_fines`
	idempotencyTableName    = `idempotency_records`
	auditTableName          = `audit_log`
	outboxTableName         = `notification_outbox`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}

type txKey struct{}

func (r *repository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.Error("tx rollback", zap.Error(rbErr))
		}
		return err
	}
	return tx.Commit()
}

// q returns the ambient transaction if one is open, the pool otherwise.
func (r *repository) q(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return r.db
}
