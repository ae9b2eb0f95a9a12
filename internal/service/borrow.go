package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Astemirdum/lending-service/internal/errs"
	"github.com/Astemirdum/lending-service/internal/model"
	"github.com/Astemirdum/lending-service/internal/repository"
	"github.com/pkg/errors"
)

type borrowAuditMetadata struct {
	RequestID      int64   `json:"requestId"`
	BorrowRecordID *int64  `json:"borrowRecordId,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

// CreateBorrowRequest registers a user's intent to borrow a book. When the
// caller supplies an idempotency token, a retried submission returns the
// original request instead of creating a second one.
func (s *Service) CreateBorrowRequest(ctx context.Context, in model.CreateBorrowRequestInput) (model.BorrowRequest, error) {
	if in.IdempotencyKey == nil || *in.IdempotencyKey == "" {
		return s.createBorrowRequest(ctx, in)
	}
	key := DeriveOperationKey("createBorrowRequest", strconv.FormatInt(in.UserID, 10), *in.IdempotencyKey)
	var out model.BorrowRequest
	err := s.withIdempotency(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.createBorrowRequest(ctx, in)
	})
	return out, err
}

func (s *Service) createBorrowRequest(ctx context.Context, in model.CreateBorrowRequestInput) (model.BorrowRequest, error) {
	elig, err := s.CanBorrow(ctx, in.UserID)
	if err != nil {
		return model.BorrowRequest{}, err
	}
	if !elig.Allowed {
		return model.BorrowRequest{}, errors.Wrap(errs.ErrIneligible, elig.Reason)
	}

	book, err := s.repo.GetBook(ctx, in.BookID)
	if err != nil {
		return model.BorrowRequest{}, err
	}
	// optimistic availability check; the ledger enforces the real guarantee
	// at reservation time
	if book.AvailableCopies <= 0 && !book.ReserveOnRequest {
		return model.BorrowRequest{}, errs.ErrOutOfStock
	}

	var out model.BorrowRequest
	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		if book.ReserveOnRequest {
			if err := s.repo.ReserveCopy(ctx, book.ID); err != nil {
				return err
			}
		}
		req := model.BorrowRequest{
			UserID:         in.UserID,
			BookID:         in.BookID,
			IdempotencyKey: in.IdempotencyKey,
			ReservedCopy:   book.ReserveOnRequest,
		}
		created, err := s.repo.CreateBorrowRequest(ctx, req)
		if err != nil {
			return err
		}
		out = created

		s.audit(ctx, model.AuditBorrowRequested, model.ActorUser, in.UserID, &in.UserID, &in.BookID,
			borrowAuditMetadata{RequestID: created.ID})

		user, err := s.repo.GetUser(ctx, in.UserID)
		if err != nil {
			return err
		}
		s.notify(ctx, user.ID, user.Email,
			"Borrow request received",
			fmt.Sprintf("Your request for %q is awaiting approval.", book.Title))
		return nil
	})
	if err != nil {
		return model.BorrowRequest{}, err
	}
	return out, nil
}

// ApproveBorrowRequest resolves a pending request. The status-guarded
// transition makes sure exactly one of two concurrent resolutions wins, and
// the copy reservation rides the same transaction, so an OutOfStock rolls
// everything back and the request stays pending.
func (s *Service) ApproveBorrowRequest(ctx context.Context, in model.ResolveRequestInput) (model.BorrowRequest, error) {
	var out model.BorrowRequest
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		req, err := s.repo.GetBorrowRequest(ctx, in.RequestID)
		if err != nil {
			return err
		}
		if !req.ReservedCopy {
			if err := s.repo.ReserveCopy(ctx, req.BookID); err != nil {
				return err
			}
		}

		borrowDate := s.today()
		dueDate := borrowDate.AddDate(0, 0, loanPeriodDays)
		record, err := s.repo.CreateBorrowRecord(ctx, model.BorrowRecord{
			UserID:     req.UserID,
			BookID:     req.BookID,
			BorrowDate: borrowDate,
			DueDate:    dueDate,
		})
		if err != nil {
			return err
		}

		approvedAt := s.now().UTC()
		out, err = s.repo.TransitionBorrowRequest(ctx, in.RequestID, model.RequestPending, model.RequestApproved,
			repository.BorrowRequestUpdate{
				ApprovedAt:     &approvedAt,
				DueDate:        &dueDate,
				BorrowRecordID: &record.ID,
				AdminNotes:     in.Notes,
			})
		if err != nil {
			return err
		}

		s.audit(ctx, model.AuditBorrowApproved, model.ActorAdmin, in.AdminID, &req.UserID, &req.BookID,
			borrowAuditMetadata{RequestID: req.ID, BorrowRecordID: &record.ID, Notes: in.Notes})

		user, err := s.repo.GetUser(ctx, req.UserID)
		if err != nil {
			return err
		}
		book, err := s.repo.GetBook(ctx, req.BookID)
		if err != nil {
			return err
		}
		s.notify(ctx, user.ID, user.Email,
			"Borrow request approved",
			fmt.Sprintf("Your request for %q was approved. Due date: %s.", book.Title, dueDate.Format("2006-01-02")))
		return nil
	})
	if err != nil {
		return model.BorrowRequest{}, err
	}
	return out, nil
}

// RejectBorrowRequest resolves a pending request negatively, handing back a
// copy that was reserved at request time.
func (s *Service) RejectBorrowRequest(ctx context.Context, in model.ResolveRequestInput) (model.BorrowRequest, error) {
	var out model.BorrowRequest
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		rejectedAt := s.now().UTC()
		req, err := s.repo.TransitionBorrowRequest(ctx, in.RequestID, model.RequestPending, model.RequestRejected,
			repository.BorrowRequestUpdate{
				RejectedAt: &rejectedAt,
				AdminNotes: in.Notes,
			})
		if err != nil {
			return err
		}
		out = req

		if req.ReservedCopy {
			if err := s.repo.ReleaseCopy(ctx, req.BookID); err != nil {
				return err
			}
		}

		s.audit(ctx, model.AuditBorrowRejected, model.ActorAdmin, in.AdminID, &req.UserID, &req.BookID,
			borrowAuditMetadata{RequestID: req.ID, Notes: in.Notes})

		user, err := s.repo.GetUser(ctx, req.UserID)
		if err != nil {
			return err
		}
		s.notify(ctx, user.ID, user.Email,
			"Borrow request rejected",
			"Your borrow request was rejected. Contact the library for details.")
		return nil
	})
	if err != nil {
		return model.BorrowRequest{}, err
	}
	return out, nil
}
