package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Astemirdum/lending-service/config"
	"github.com/Astemirdum/lending-service/internal/errs"
	"github.com/Astemirdum/lending-service/internal/model"
	"github.com/Astemirdum/lending-service/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// fakeRepo is an in-memory Repository with the same error semantics as the
// SQL implementation: conditional updates, status-guarded transitions and the
// insert-as-claim idempotency table. WithinTx serializes transactions under
// one lock and restores a snapshot on error, so rollback behaviour is
// observable in tests.
type fakeRepo struct {
	mu sync.Mutex

	books          map[int64]model.Book
	users          map[int64]model.User
	borrowRequests map[int64]model.BorrowRequest
	borrowRecords  map[int64]model.BorrowRecord
	returnRequests map[int64]model.ReturnRequest
	fines          map[int64]model.Fine
	payments       map[int64]model.PaymentTransaction
	paymentFines   map[int64][]int64
	idem           map[string]model.IdempotencyRecord
	auditLog       []model.AuditLogEntry
	outbox         []model.Notification
	seq            int64
}

var _ repository.Repository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		books:          make(map[int64]model.Book),
		users:          make(map[int64]model.User),
		borrowRequests: make(map[int64]model.BorrowRequest),
		borrowRecords:  make(map[int64]model.BorrowRecord),
		returnRequests: make(map[int64]model.ReturnRequest),
		fines:          make(map[int64]model.Fine),
		payments:       make(map[int64]model.PaymentTransaction),
		paymentFines:   make(map[int64][]int64),
		idem:           make(map[string]model.IdempotencyRecord),
	}
}

func (r *fakeRepo) nextID() int64 {
	r.seq++
	return r.seq
}

type fakeTxKey struct{}

type fakeSnapshot struct {
	books          map[int64]model.Book
	users          map[int64]model.User
	borrowRequests map[int64]model.BorrowRequest
	borrowRecords  map[int64]model.BorrowRecord
	returnRequests map[int64]model.ReturnRequest
	fines          map[int64]model.Fine
	payments       map[int64]model.PaymentTransaction
	paymentFines   map[int64][]int64
	idem           map[string]model.IdempotencyRecord
	auditLog       []model.AuditLogEntry
	outbox         []model.Notification
	seq            int64
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (r *fakeRepo) snapshot() fakeSnapshot {
	return fakeSnapshot{
		books:          cloneMap(r.books),
		users:          cloneMap(r.users),
		borrowRequests: cloneMap(r.borrowRequests),
		borrowRecords:  cloneMap(r.borrowRecords),
		returnRequests: cloneMap(r.returnRequests),
		fines:          cloneMap(r.fines),
		payments:       cloneMap(r.payments),
		paymentFines:   cloneMap(r.paymentFines),
		idem:           cloneMap(r.idem),
		auditLog:       r.auditLog[:len(r.auditLog):len(r.auditLog)],
		outbox:         r.outbox[:len(r.outbox):len(r.outbox)],
		seq:            r.seq,
	}
}

func (r *fakeRepo) restore(s fakeSnapshot) {
	r.books = s.books
	r.users = s.users
	r.borrowRequests = s.borrowRequests
	r.borrowRecords = s.borrowRecords
	r.returnRequests = s.returnRequests
	r.fines = s.fines
	r.payments = s.payments
	r.paymentFines = s.paymentFines
	r.idem = s.idem
	r.auditLog = s.auditLog
	r.outbox = s.outbox
	r.seq = s.seq
}

func (r *fakeRepo) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.snapshot()
	if err := fn(context.WithValue(ctx, fakeTxKey{}, struct{}{})); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

// enter takes the lock unless an ambient transaction already holds it.
func (r *fakeRepo) enter(ctx context.Context) func() {
	if ctx.Value(fakeTxKey{}) != nil {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *fakeRepo) GetBook(ctx context.Context, id int64) (model.Book, error) {
	defer r.enter(ctx)()
	book, ok := r.books[id]
	if !ok {
		return model.Book{}, errs.ErrNotFound
	}
	return book, nil
}

func (r *fakeRepo) ReserveCopy(ctx context.Context, bookID int64) error {
	defer r.enter(ctx)()
	book, ok := r.books[bookID]
	if !ok {
		return errs.ErrNotFound
	}
	if book.AvailableCopies <= 0 {
		return errs.ErrOutOfStock
	}
	book.AvailableCopies--
	r.books[bookID] = book
	return nil
}

func (r *fakeRepo) ReleaseCopy(ctx context.Context, bookID int64) error {
	defer r.enter(ctx)()
	book, ok := r.books[bookID]
	if !ok {
		return errs.ErrNotFound
	}
	if book.AvailableCopies < book.TotalCopies {
		book.AvailableCopies++
	}
	r.books[bookID] = book
	return nil
}

func (r *fakeRepo) GetUser(ctx context.Context, id int64) (model.User, error) {
	defer r.enter(ctx)()
	user, ok := r.users[id]
	if !ok {
		return model.User{}, errs.ErrNotFound
	}
	return user, nil
}

func (r *fakeRepo) RecomputeFinesOwed(ctx context.Context, userID int64) (decimal.Decimal, error) {
	defer r.enter(ctx)()
	user, ok := r.users[userID]
	if !ok {
		return decimal.Zero, errs.ErrNotFound
	}
	owed := decimal.Zero
	for _, fine := range r.fines {
		if fine.UserID != userID {
			continue
		}
		if fine.Status == model.FinePending || fine.Status == model.FinePartialPaid {
			owed = owed.Add(fine.Outstanding())
		}
	}
	user.TotalFinesOwed = owed
	r.users[userID] = user
	return owed, nil
}

func (r *fakeRepo) SetRestriction(ctx context.Context, userID int64, restricted bool, reason string) error {
	defer r.enter(ctx)()
	user, ok := r.users[userID]
	if !ok {
		return errs.ErrNotFound
	}
	user.IsRestricted = restricted
	if restricted {
		user.RestrictionReason = &reason
	} else {
		user.RestrictionReason = nil
	}
	r.users[userID] = user
	return nil
}

func (r *fakeRepo) CreateBorrowRequest(ctx context.Context, req model.BorrowRequest) (model.BorrowRequest, error) {
	defer r.enter(ctx)()
	for _, cur := range r.borrowRequests {
		if cur.UserID == req.UserID && cur.BookID == req.BookID &&
			(cur.Status == model.RequestPending || cur.Status == model.RequestApproved || cur.Status == model.RequestReturnPending) {
			return model.BorrowRequest{}, errs.ErrDuplicateRequest
		}
	}
	req.ID = r.nextID()
	req.Status = model.RequestPending
	req.RequestedAt = time.Now().UTC()
	r.borrowRequests[req.ID] = req
	return req, nil
}

func (r *fakeRepo) GetBorrowRequest(ctx context.Context, id int64) (model.BorrowRequest, error) {
	defer r.enter(ctx)()
	req, ok := r.borrowRequests[id]
	if !ok {
		return model.BorrowRequest{}, errs.ErrNotFound
	}
	return req, nil
}

func (r *fakeRepo) TransitionBorrowRequest(ctx context.Context, id int64, from, to model.RequestStatus, upd repository.BorrowRequestUpdate) (model.BorrowRequest, error) {
	defer r.enter(ctx)()
	req, ok := r.borrowRequests[id]
	if !ok {
		return model.BorrowRequest{}, errs.ErrNotFound
	}
	if req.Status != from {
		if from == model.RequestPending &&
			(req.Status == model.RequestApproved || req.Status == model.RequestRejected) {
			return model.BorrowRequest{}, errs.ErrAlreadyProcessed
		}
		return model.BorrowRequest{}, errs.ErrInvalidTransition
	}
	req.Status = to
	if upd.ApprovedAt != nil {
		req.ApprovedAt = upd.ApprovedAt
	}
	if upd.RejectedAt != nil {
		req.RejectedAt = upd.RejectedAt
	}
	if upd.DueDate != nil {
		req.DueDate = upd.DueDate
	}
	if upd.BorrowRecordID != nil {
		req.BorrowRecordID = upd.BorrowRecordID
	}
	if upd.AdminNotes != nil {
		req.AdminNotes = upd.AdminNotes
	}
	r.borrowRequests[id] = req
	return req, nil
}

func (r *fakeRepo) TransitionBorrowRequestByRecord(ctx context.Context, borrowRecordID int64, from, to model.RequestStatus) error {
	defer r.enter(ctx)()
	for id, req := range r.borrowRequests {
		if req.BorrowRecordID != nil && *req.BorrowRecordID == borrowRecordID && req.Status == from {
			req.Status = to
			r.borrowRequests[id] = req
			return nil
		}
	}
	return errs.ErrInvalidTransition
}

func (r *fakeRepo) FirstPendingBorrowRequestForBook(ctx context.Context, bookID int64) (model.BorrowRequest, error) {
	defer r.enter(ctx)()
	var (
		best  model.BorrowRequest
		found bool
	)
	for _, req := range r.borrowRequests {
		if req.BookID != bookID || req.Status != model.RequestPending {
			continue
		}
		if !found || req.RequestedAt.Before(best.RequestedAt) ||
			(req.RequestedAt.Equal(best.RequestedAt) && req.ID < best.ID) {
			best = req
			found = true
		}
	}
	if !found {
		return model.BorrowRequest{}, errs.ErrNotFound
	}
	return best, nil
}

func (r *fakeRepo) CreateBorrowRecord(ctx context.Context, rec model.BorrowRecord) (model.BorrowRecord, error) {
	defer r.enter(ctx)()
	rec.ID = r.nextID()
	rec.Status = model.RecordBorrowed
	r.borrowRecords[rec.ID] = rec
	return rec, nil
}

func (r *fakeRepo) GetBorrowRecord(ctx context.Context, id int64) (model.BorrowRecord, error) {
	defer r.enter(ctx)()
	rec, ok := r.borrowRecords[id]
	if !ok {
		return model.BorrowRecord{}, errs.ErrNotFound
	}
	return rec, nil
}

func (r *fakeRepo) CloseBorrowRecord(ctx context.Context, id int64, returnDate time.Time) error {
	defer r.enter(ctx)()
	rec, ok := r.borrowRecords[id]
	if !ok {
		return errs.ErrNotFound
	}
	if rec.Status != model.RecordBorrowed {
		return errs.ErrInvalidTransition
	}
	rec.Status = model.RecordReturned
	rec.ReturnDate = &returnDate
	r.borrowRecords[id] = rec
	return nil
}

func (r *fakeRepo) ListOverdueRecords(ctx context.Context, asOf time.Time) ([]model.BorrowRecord, error) {
	defer r.enter(ctx)()
	var out []model.BorrowRecord
	for _, rec := range r.borrowRecords {
		if rec.Status == model.RecordBorrowed && rec.DueDate.Before(asOf) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepo) ListRecordsDueWithin(ctx context.Context, from, to time.Time) ([]model.BorrowRecord, error) {
	defer r.enter(ctx)()
	var out []model.BorrowRecord
	for _, rec := range r.borrowRecords {
		if rec.Status == model.RecordBorrowed && !rec.DueDate.Before(from) && !rec.DueDate.After(to) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepo) CreateReturnRequest(ctx context.Context, req model.ReturnRequest) (model.ReturnRequest, error) {
	defer r.enter(ctx)()
	for _, cur := range r.returnRequests {
		if cur.BorrowRecordID == req.BorrowRecordID && cur.Status == model.RequestPending {
			return model.ReturnRequest{}, errs.ErrDuplicateRequest
		}
	}
	req.ID = r.nextID()
	req.Status = model.RequestPending
	req.RequestedAt = time.Now().UTC()
	r.returnRequests[req.ID] = req
	return req, nil
}

func (r *fakeRepo) GetReturnRequest(ctx context.Context, id int64) (model.ReturnRequest, error) {
	defer r.enter(ctx)()
	req, ok := r.returnRequests[id]
	if !ok {
		return model.ReturnRequest{}, errs.ErrNotFound
	}
	return req, nil
}

func (r *fakeRepo) TransitionReturnRequest(ctx context.Context, id int64, from, to model.RequestStatus, notes *string) (model.ReturnRequest, error) {
	defer r.enter(ctx)()
	req, ok := r.returnRequests[id]
	if !ok {
		return model.ReturnRequest{}, errs.ErrNotFound
	}
	if req.Status != from {
		if req.Status == model.RequestApproved || req.Status == model.RequestRejected {
			return model.ReturnRequest{}, errs.ErrAlreadyProcessed
		}
		return model.ReturnRequest{}, errs.ErrInvalidTransition
	}
	req.Status = to
	if notes != nil {
		req.AdminNotes = notes
	}
	r.returnRequests[id] = req
	return req, nil
}

func (r *fakeRepo) UpsertFine(ctx context.Context, fine model.Fine) (model.Fine, bool, error) {
	defer r.enter(ctx)()
	for id, cur := range r.fines {
		if cur.BorrowRecordID != fine.BorrowRecordID {
			continue
		}
		if cur.Status != model.FinePending && cur.Status != model.FinePartialPaid {
			return cur, false, nil
		}
		cur.FineType = fine.FineType
		cur.PenaltyType = fine.PenaltyType
		cur.Amount = fine.Amount
		cur.CalculationDate = fine.CalculationDate
		cur.DaysOverdue = fine.DaysOverdue
		cur.IsBookLost = fine.IsBookLost
		r.fines[id] = cur
		return cur, true, nil
	}
	fine.ID = r.nextID()
	fine.Status = model.FinePending
	fine.PaidAmount = decimal.Zero
	r.fines[fine.ID] = fine
	return fine, true, nil
}

func (r *fakeRepo) GetFineForUpdate(ctx context.Context, id int64) (model.Fine, error) {
	defer r.enter(ctx)()
	fine, ok := r.fines[id]
	if !ok {
		return model.Fine{}, errs.ErrNotFound
	}
	return fine, nil
}

func (r *fakeRepo) PendingFineForBorrowRecord(ctx context.Context, borrowRecordID int64) (model.Fine, bool, error) {
	defer r.enter(ctx)()
	for _, fine := range r.fines {
		if fine.BorrowRecordID != borrowRecordID {
			continue
		}
		if fine.Status == model.FinePending || fine.Status == model.FinePartialPaid {
			return fine, true, nil
		}
		return model.Fine{}, false, nil
	}
	return model.Fine{}, false, nil
}

func (r *fakeRepo) ListFinesForUpdate(ctx context.Context, ids []int64) ([]model.Fine, error) {
	defer r.enter(ctx)()
	var out []model.Fine
	for _, id := range ids {
		if fine, ok := r.fines[id]; ok {
			out = append(out, fine)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepo) ApplyFinePayment(ctx context.Context, fineID int64, paidAmount decimal.Decimal, status model.FineStatus) error {
	defer r.enter(ctx)()
	fine, ok := r.fines[fineID]
	if !ok {
		return errs.ErrNotFound
	}
	fine.PaidAmount = paidAmount
	fine.Status = status
	r.fines[fineID] = fine
	return nil
}

func (r *fakeRepo) SetFineStatus(ctx context.Context, fineID int64, from []model.FineStatus, to model.FineStatus) error {
	defer r.enter(ctx)()
	fine, ok := r.fines[fineID]
	if !ok {
		return errs.ErrNotFound
	}
	for _, st := range from {
		if fine.Status == st {
			fine.Status = to
			r.fines[fineID] = fine
			return nil
		}
	}
	return errs.ErrInvalidTransition
}

func (r *fakeRepo) CreatePaymentTransaction(ctx context.Context, p model.PaymentTransaction, fineIDs []int64) (model.PaymentTransaction, error) {
	defer r.enter(ctx)()
	for _, cur := range r.payments {
		if cur.ExternalRef == p.ExternalRef {
			return model.PaymentTransaction{}, errs.ErrDuplicateRequest
		}
	}
	p.ID = r.nextID()
	p.Status = model.PaymentPending
	p.CreatedAt = time.Now().UTC()
	r.payments[p.ID] = p
	r.paymentFines[p.ID] = append([]int64(nil), fineIDs...)
	return p, nil
}

func (r *fakeRepo) GetPaymentByRefForUpdate(ctx context.Context, externalRef string) (model.PaymentTransaction, error) {
	defer r.enter(ctx)()
	for _, p := range r.payments {
		if p.ExternalRef == externalRef {
			return p, nil
		}
	}
	return model.PaymentTransaction{}, errs.ErrNotFound
}

func (r *fakeRepo) PaymentFineIDs(ctx context.Context, paymentID int64) ([]int64, error) {
	defer r.enter(ctx)()
	ids := append([]int64(nil), r.paymentFines[paymentID]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *fakeRepo) SetPaymentStatus(ctx context.Context, id int64, to model.PaymentStatus, gatewayTxID *string) error {
	defer r.enter(ctx)()
	p, ok := r.payments[id]
	if !ok {
		return errs.ErrNotFound
	}
	p.Status = to
	if gatewayTxID != nil {
		p.GatewayTxID = gatewayTxID
	}
	if to == model.PaymentCompleted {
		now := time.Now().UTC()
		p.CompletedAt = &now
	}
	r.payments[id] = p
	return nil
}

func (r *fakeRepo) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (model.IdempotencyRecord, bool, error) {
	defer r.enter(ctx)()
	if rec, ok := r.idem[key]; ok {
		if rec.ExpiresAt.After(time.Now().UTC()) {
			return rec, false, nil
		}
		delete(r.idem, key)
	}
	rec := model.IdempotencyRecord{
		OperationKey: key,
		ExpiresAt:    time.Now().UTC().Add(ttl),
	}
	r.idem[key] = rec
	return rec, true, nil
}

func (r *fakeRepo) StoreIdempotencyResult(ctx context.Context, key string, result []byte) error {
	defer r.enter(ctx)()
	rec, ok := r.idem[key]
	if !ok {
		return errs.ErrNotFound
	}
	rec.Result = result
	r.idem[key] = rec
	return nil
}

func (r *fakeRepo) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	defer r.enter(ctx)()
	delete(r.idem, key)
	return nil
}

func (r *fakeRepo) AppendAuditLog(ctx context.Context, entry model.AuditLogEntry) error {
	defer r.enter(ctx)()
	entry.ID = r.nextID()
	entry.CreatedAt = time.Now().UTC()
	r.auditLog = append(r.auditLog, entry)
	return nil
}

func (r *fakeRepo) EnqueueNotification(ctx context.Context, n model.Notification) error {
	defer r.enter(ctx)()
	n.ID = r.nextID()
	n.Status = model.NotificationPending
	n.CreatedAt = time.Now().UTC()
	r.outbox = append(r.outbox, n)
	return nil
}

func (r *fakeRepo) ClaimNotificationBatch(ctx context.Context, limit int) ([]model.Notification, error) {
	defer r.enter(ctx)()
	var out []model.Notification
	for i := range r.outbox {
		if len(out) >= limit {
			break
		}
		if r.outbox[i].Status != model.NotificationPending {
			continue
		}
		r.outbox[i].Status = model.NotificationSending
		r.outbox[i].Attempts++
		out = append(out, r.outbox[i])
	}
	return out, nil
}

func (r *fakeRepo) MarkNotificationSent(ctx context.Context, id int64) error {
	defer r.enter(ctx)()
	for i := range r.outbox {
		if r.outbox[i].ID == id {
			now := time.Now().UTC()
			r.outbox[i].Status = model.NotificationSent
			r.outbox[i].SentAt = &now
			return nil
		}
	}
	return nil
}

func (r *fakeRepo) MarkNotificationFailed(ctx context.Context, id int64, maxAttempts int) error {
	defer r.enter(ctx)()
	for i := range r.outbox {
		if r.outbox[i].ID == id {
			if r.outbox[i].Attempts >= maxAttempts {
				r.outbox[i].Status = model.NotificationFailed
			} else {
				r.outbox[i].Status = model.NotificationPending
			}
			return nil
		}
	}
	return nil
}

// test seed helpers

func (r *fakeRepo) addBook(book model.Book) model.Book {
	r.mu.Lock()
	defer r.mu.Unlock()
	if book.ID == 0 {
		book.ID = r.nextID()
	}
	r.books[book.ID] = book
	return book
}

func (r *fakeRepo) addUser(user model.User) model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == 0 {
		user.ID = r.nextID()
	}
	if user.Status == "" {
		user.Status = model.UserApproved
	}
	r.users[user.ID] = user
	return user
}

func (r *fakeRepo) auditActions() []model.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.AuditAction, 0, len(r.auditLog))
	for _, e := range r.auditLog {
		out = append(out, e.Action)
	}
	return out
}

var testDay = time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)

func newTestService(repo repository.Repository) *Service {
	s := NewService(repo, config.Flags{
		NotificationsEnabled: true,
		PenaltySweepEnabled:  true,
		DueRemindersEnabled:  true,
	}, zap.NewNop())
	s.now = func() time.Time { return testDay }
	return s
}
