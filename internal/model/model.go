package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type RequestStatus string

const (
	RequestPending       RequestStatus = "PENDING"
	RequestApproved      RequestStatus = "APPROVED"
	RequestRejected      RequestStatus = "REJECTED"
	RequestReturnPending RequestStatus = "RETURN_PENDING"
	RequestReturned      RequestStatus = "RETURNED"
)

type RecordStatus string

const (
	RecordBorrowed RecordStatus = "BORROWED"
	RecordReturned RecordStatus = "RETURNED"
)

type FineType string

const (
	FineLateReturn    FineType = "LATE_RETURN"
	FineLostBook      FineType = "LOST_BOOK"
	FineDamageFee     FineType = "DAMAGE_FEE"
	FineProcessingFee FineType = "PROCESSING_FEE"
)

type PenaltyType string

const (
	PenaltyFlatFee     PenaltyType = "FLAT_FEE"
	PenaltyDailyFee    PenaltyType = "DAILY_FEE"
	PenaltyLostBookFee PenaltyType = "LOST_BOOK_FEE"
)

type FineStatus string

const (
	FinePending     FineStatus = "PENDING"
	FinePaid        FineStatus = "PAID"
	FineWaived      FineStatus = "WAIVED"
	FinePartialPaid FineStatus = "PARTIAL_PAID"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentCompleted  PaymentStatus = "COMPLETED"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentCancelled  PaymentStatus = "CANCELLED"
	PaymentRefunded   PaymentStatus = "REFUNDED"
)

type UserStatus string

const (
	UserApproved UserStatus = "APPROVED"
	UserPending  UserStatus = "PENDING"
	UserBlocked  UserStatus = "BLOCKED"
)

type Book struct {
	ID               int64           `json:"id" db:"id"`
	Title            string          `json:"title" db:"title"`
	Author           string          `json:"author" db:"author"`
	Price            decimal.Decimal `json:"price" db:"price"`
	TotalCopies      int             `json:"totalCopies" db:"total_copies"`
	AvailableCopies  int             `json:"availableCopies" db:"available_copies"`
	ReserveOnRequest bool            `json:"reserveOnRequest" db:"reserve_on_request"`
}

type User struct {
	ID                int64           `json:"id" db:"id"`
	Name              string          `json:"name" db:"name"`
	Email             string          `json:"email" db:"email"`
	Status            UserStatus      `json:"status" db:"status"`
	TotalFinesOwed    decimal.Decimal `json:"totalFinesOwed" db:"total_fines_owed"`
	IsRestricted      bool            `json:"isRestricted" db:"is_restricted"`
	RestrictionReason *string         `json:"restrictionReason,omitempty" db:"restriction_reason"`
}

type BorrowRequest struct {
	ID             int64         `json:"id" db:"id"`
	UserID         int64         `json:"userId" db:"user_id"`
	BookID         int64         `json:"bookId" db:"book_id"`
	Status         RequestStatus `json:"status" db:"status"`
	RequestedAt    time.Time     `json:"requestedAt" db:"requested_at"`
	ApprovedAt     *time.Time    `json:"approvedAt,omitempty" db:"approved_at"`
	RejectedAt     *time.Time    `json:"rejectedAt,omitempty" db:"rejected_at"`
	DueDate        *time.Time    `json:"dueDate,omitempty" db:"due_date"`
	BorrowRecordID *int64        `json:"borrowRecordId,omitempty" db:"borrow_record_id"`
	IdempotencyKey *string       `json:"-" db:"idempotency_key"`
	AdminNotes     *string       `json:"adminNotes,omitempty" db:"admin_notes"`
	ReservedCopy   bool          `json:"-" db:"reserved_copy"`
}

type BorrowRecord struct {
	ID         int64        `json:"id" db:"id"`
	UserID     int64        `json:"userId" db:"user_id"`
	BookID     int64        `json:"bookId" db:"book_id"`
	BorrowDate time.Time    `json:"borrowDate" db:"borrow_date"`
	DueDate    time.Time    `json:"dueDate" db:"due_date"`
	ReturnDate *time.Time   `json:"returnDate,omitempty" db:"return_date"`
	Status     RecordStatus `json:"status" db:"status"`
}

type ReturnRequest struct {
	ID             int64         `json:"id" db:"id"`
	UserID         int64         `json:"userId" db:"user_id"`
	BookID         int64         `json:"bookId" db:"book_id"`
	BorrowRecordID int64         `json:"borrowRecordId" db:"borrow_record_id"`
	Status         RequestStatus `json:"status" db:"status"`
	RequestedAt    time.Time     `json:"requestedAt" db:"requested_at"`
	AdminNotes     *string       `json:"adminNotes,omitempty" db:"admin_notes"`
}

type Fine struct {
	ID              int64           `json:"id" db:"id"`
	UserID          int64           `json:"userId" db:"user_id"`
	BookID          int64           `json:"bookId" db:"book_id"`
	BorrowRecordID  int64           `json:"borrowRecordId" db:"borrow_record_id"`
	FineType        FineType        `json:"fineType" db:"fine_type"`
	PenaltyType     PenaltyType     `json:"penaltyType" db:"penalty_type"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	PaidAmount      decimal.Decimal `json:"paidAmount" db:"paid_amount"`
	Status          FineStatus      `json:"status" db:"status"`
	DueDate         time.Time       `json:"dueDate" db:"due_date"`
	CalculationDate time.Time       `json:"calculationDate" db:"calculation_date"`
	DaysOverdue     int             `json:"daysOverdue" db:"days_overdue"`
	IsBookLost      bool            `json:"isBookLost" db:"is_book_lost"`
}

// Outstanding is the unpaid remainder of the fine.
func (f Fine) Outstanding() decimal.Decimal {
	return f.Amount.Sub(f.PaidAmount)
}

type PaymentTransaction struct {
	ID          int64           `json:"id" db:"id"`
	UserID      int64           `json:"userId" db:"user_id"`
	TotalAmount decimal.Decimal `json:"totalAmount" db:"total_amount"`
	Status      PaymentStatus   `json:"status" db:"status"`
	ExternalRef string          `json:"externalRef" db:"external_ref"`
	GatewayTxID *string         `json:"gatewayTxId,omitempty" db:"gateway_tx_id"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	CompletedAt *time.Time      `json:"completedAt,omitempty" db:"completed_at"`
}

type IdempotencyRecord struct {
	OperationKey string          `db:"operation_key"`
	Result       json.RawMessage `db:"result"`
	ExpiresAt    time.Time       `db:"expires_at"`
}

type AuditAction string

const (
	AuditBorrowRequested  AuditAction = "BORROW_REQUESTED"
	AuditBorrowApproved   AuditAction = "BORROW_APPROVED"
	AuditBorrowRejected   AuditAction = "BORROW_REJECTED"
	AuditReturnRequested  AuditAction = "RETURN_REQUESTED"
	AuditReturnApproved   AuditAction = "RETURN_APPROVED"
	AuditReturnRejected   AuditAction = "RETURN_REJECTED"
	AuditFineAssessed     AuditAction = "FINE_ASSESSED"
	AuditFineWaived       AuditAction = "FINE_WAIVED"
	AuditPaymentInitiated AuditAction = "PAYMENT_INITIATED"
	AuditPaymentApplied   AuditAction = "PAYMENT_APPLIED"
	AuditPaymentFailed    AuditAction = "PAYMENT_FAILED"
	AuditRestrictionSet   AuditAction = "RESTRICTION_SET"
	AuditRestrictionLift  AuditAction = "RESTRICTION_LIFTED"
)

type ActorType string

const (
	ActorUser   ActorType = "USER"
	ActorAdmin  ActorType = "ADMIN"
	ActorSystem ActorType = "SYSTEM"
)

type AuditLogEntry struct {
	ID           int64           `json:"id" db:"id"`
	Action       AuditAction     `json:"action" db:"action"`
	ActorType    ActorType       `json:"actorType" db:"actor_type"`
	ActorID      int64           `json:"actorId" db:"actor_id"`
	TargetUserID *int64          `json:"targetUserId,omitempty" db:"target_user_id"`
	TargetBookID *int64          `json:"targetBookId,omitempty" db:"target_book_id"`
	Metadata     json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
}

type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "EMAIL"
	ChannelEvent NotificationChannel = "EVENT"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSending NotificationStatus = "SENDING"
	NotificationSent    NotificationStatus = "SENT"
	NotificationFailed  NotificationStatus = "FAILED"
)

/// Notification is an outbox row: the intent to notify recorded inside the
// mutating transaction and delivered later by the worker.
type Notification struct {
	ID        int64               `json:"id" db:"id"`
	UserID    int64               `json:"userId" db:"user_id"`
	Channel   NotificationChannel `json:"channel" db:"channel"`
	Recipient string              `json:"recipient" db:"recipient"`
	Subject   string              `json:"subject" db:"subject"`
	Body      string              `json:"body" db:"body"`
	Status    NotificationStatus  `json:"status" db:"status"`
	Attempts  int                 `json:"attempts" db:"attempts"`
	CreatedAt time.Time           `json:"createdAt" db:"created_at"`
	SentAt    *time.Time          `json:"sentAt,omitempty" db:"sent_at"`
}

type CreateBorrowRequestInput struct {
	UserID         int64   `json:"userId" validate:"required"`
	BookID         int64   `json:"bookId" validate:"required"`
	IdempotencyKey *string `json:"-"`
}

type CreateReturnRequestInput struct {
	UserID           int64  `json:"userId" validate:"required"`
	BorrowRecordID   int64  `json:"borrowRecordId" validate:"required"`
	ConfirmationText string `json:"confirmationText" validate:"required"`
}

type ResolveRequestInput struct {
	RequestID int64
	AdminID   int64
	Notes     *string
}

type RestrictionDecision struct {
	UserID     int64           `json:"userId"`
	Restricted bool            `json:"restricted"`
	Changed    bool            `json:"changed"`
	Reason     string          `json:"reason,omitempty"`
	FinesOwed  decimal.Decimal `json:"finesOwed"`
}

type EligibilityResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

type SweepResult struct {
	Scanned       int   `json:"scanned"`
	FinesAssessed int   `json:"finesAssessed"`
	BooksLost     int   `json:"booksLost"`
	Errors        []int `json:"erroredRecordIds,omitempty"`
}

type InitiatePaymentInput struct {
	UserID  int64   `json:"userId" validate:"required"`
	FineIDs []int64 `json:"fineIds" validate:"required,min=1"`
}

type PaymentEventInput struct {
	PaymentRef    string `json:"paymentRef" validate:"required"`
	TransactionID string `json:"transactionId"`
	Reason        string `json:"reason"`
}
