package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Astemirdum/lending-service/internal/errs"
	"github.com/Astemirdum/lending-service/internal/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type returnAuditMetadata struct {
	RequestID      int64   `json:"requestId"`
	BorrowRecordID int64   `json:"borrowRecordId"`
	Notes          *string `json:"notes,omitempty"`
}

// matchesConfirmation implements the low-friction confirmation step on return
// submissions: a fixed keyword or a case-insensitive substring of the title.
func matchesConfirmation(text, bookTitle string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	if t == "return" || t == "confirm" {
		return true
	}
	return strings.Contains(strings.ToLower(bookTitle), t)
}

// CreateReturnRequest registers the user's intent to return a borrowed book.
// Restricted users may still return; only a pending fine on this specific
// loan blocks submission.
func (s *Service) CreateReturnRequest(ctx context.Context, in model.CreateReturnRequestInput) (model.ReturnRequest, error) {
	record, err := s.repo.GetBorrowRecord(ctx, in.BorrowRecordID)
	if err != nil {
		return model.ReturnRequest{}, err
	}
	if record.UserID != in.UserID {
		return model.ReturnRequest{}, errors.Wrap(errs.ErrUnauthorized, "loan belongs to another user")
	}
	if record.Status != model.RecordBorrowed {
		return model.ReturnRequest{}, errors.Wrap(errs.ErrInvalidTransition, "loan is already closed")
	}

	book, err := s.repo.GetBook(ctx, record.BookID)
	if err != nil {
		return model.ReturnRequest{}, err
	}
	if !matchesConfirmation(in.ConfirmationText, book.Title) {
		return model.ReturnRequest{}, errors.Wrap(errs.ErrValidation, "confirmation text does not match")
	}

	elig, err := s.CanReturnBook(ctx, in.UserID, in.BorrowRecordID)
	if err != nil {
		return model.ReturnRequest{}, err
	}
	if !elig.Allowed {
		return model.ReturnRequest{}, errors.Wrap(errs.ErrIneligible, elig.Reason)
	}

	var out model.ReturnRequest
	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		created, err := s.repo.CreateReturnRequest(ctx, model.ReturnRequest{
			UserID:         in.UserID,
			BookID:         record.BookID,
			BorrowRecordID: record.ID,
		})
		if err != nil {
			return err
		}
		out = created

		// the originating borrow request mirrors the return flow; a missing
		// mirror is logged, not fatal
		if err := s.repo.TransitionBorrowRequestByRecord(ctx, record.ID, model.RequestApproved, model.RequestReturnPending); err != nil {
			if !errors.Is(err, errs.ErrInvalidTransition) {
				return err
			}
			s.log.Warn("borrow request not in APPROVED for return submission",
				zap.Int64("borrow_record_id", record.ID))
		}

		s.audit(ctx, model.AuditReturnRequested, model.ActorUser, in.UserID, &in.UserID, &record.BookID,
			returnAuditMetadata{RequestID: created.ID, BorrowRecordID: record.ID})
		return nil
	})
	if err != nil {
		return model.ReturnRequest{}, err
	}
	return out, nil
}

// ApproveReturnRequest closes the loan: the record is marked returned, the
// copy goes back to the shelf, and the first user still waiting on the book
// is told a copy is available.
func (s *Service) ApproveReturnRequest(ctx context.Context, in model.ResolveRequestInput) (model.ReturnRequest, error) {
	var out model.ReturnRequest
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		req, err := s.repo.TransitionReturnRequest(ctx, in.RequestID, model.RequestPending, model.RequestApproved, in.Notes)
		if err != nil {
			return err
		}
		out = req

		if err := s.repo.CloseBorrowRecord(ctx, req.BorrowRecordID, s.today()); err != nil {
			return err
		}
		if err := s.repo.ReleaseCopy(ctx, req.BookID); err != nil {
			return err
		}
		if err := s.repo.TransitionBorrowRequestByRecord(ctx, req.BorrowRecordID, model.RequestReturnPending, model.RequestReturned); err != nil {
			if !errors.Is(err, errs.ErrInvalidTransition) {
				return err
			}
			s.log.Warn("borrow request not in RETURN_PENDING for return approval",
				zap.Int64("borrow_record_id", req.BorrowRecordID))
		}

		s.audit(ctx, model.AuditReturnApproved, model.ActorAdmin, in.AdminID, &req.UserID, &req.BookID,
			returnAuditMetadata{RequestID: req.ID, BorrowRecordID: req.BorrowRecordID, Notes: in.Notes})

		user, err := s.repo.GetUser(ctx, req.UserID)
		if err != nil {
			return err
		}
		book, err := s.repo.GetBook(ctx, req.BookID)
		if err != nil {
			return err
		}
		s.notify(ctx, user.ID, user.Email,
			"Return accepted",
			fmt.Sprintf("Your return of %q was accepted. Thank you.", book.Title))

		// first waiting user, if any
		waiting, err := s.repo.FirstPendingBorrowRequestForBook(ctx, req.BookID)
		switch {
		case err == nil:
			waitingUser, err := s.repo.GetUser(ctx, waiting.UserID)
			if err != nil {
				return err
			}
			s.notify(ctx, waitingUser.ID, waitingUser.Email,
				"Book available",
				fmt.Sprintf("A copy of %q is now available; your request is awaiting approval.", book.Title))
		case errors.Is(err, errs.ErrNotFound):
		default:
			return err
		}
		return nil
	})
	if err != nil {
		return model.ReturnRequest{}, err
	}
	return out, nil
}

// RejectReturnRequest declines the return; the loan stays open and no
// inventory moves.
func (s *Service) RejectReturnRequest(ctx context.Context, in model.ResolveRequestInput) (model.ReturnRequest, error) {
	var out model.ReturnRequest
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		req, err := s.repo.TransitionReturnRequest(ctx, in.RequestID, model.RequestPending, model.RequestRejected, in.Notes)
		if err != nil {
			return err
		}
		out = req

		if err := s.repo.TransitionBorrowRequestByRecord(ctx, req.BorrowRecordID, model.RequestReturnPending, model.RequestApproved); err != nil {
			if !errors.Is(err, errs.ErrInvalidTransition) {
				return err
			}
		}

		s.audit(ctx, model.AuditReturnRejected, model.ActorAdmin, in.AdminID, &req.UserID, &req.BookID,
			returnAuditMetadata{RequestID: req.ID, BorrowRecordID: req.BorrowRecordID, Notes: in.Notes})

		user, err := s.repo.GetUser(ctx, req.UserID)
		if err != nil {
			return err
		}
		s.notify(ctx, user.ID, user.Email,
			"Return rejected",
			"Your return request was rejected. The loan remains open.")
		return nil
	})
	if err != nil {
		return model.ReturnRequest{}, err
	}
	return out, nil
}
