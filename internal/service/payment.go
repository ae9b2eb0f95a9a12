package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Astemirdum/lending-service/internal/errs"
	"github.com/Astemirdum/lending-service/internal/model"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type paymentAuditMetadata struct {
	PaymentID   int64   `json:"paymentId"`
	ExternalRef string  `json:"externalRef"`
	Amount      string  `json:"amount,omitempty"`
	GatewayTxID *string `json:"gatewayTxId,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

type waiverAuditMetadata struct {
	FineID int64  `json:"fineId"`
	Amount string `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// InitiatePayment creates a pending transaction covering the outstanding
// remainder of the given fines. The external reference handed back is what
// the gateway will echo in its callbacks.
func (s *Service) InitiatePayment(ctx context.Context, in model.InitiatePaymentInput) (model.PaymentTransaction, error) {
	var out model.PaymentTransaction
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		fines, err := s.repo.ListFinesForUpdate(ctx, in.FineIDs)
		if err != nil {
			return err
		}
		if len(fines) != len(in.FineIDs) {
			return errors.Wrap(errs.ErrNotFound, "one or more fines do not exist")
		}

		total := decimal.Zero
		for _, fine := range fines {
			if fine.UserID != in.UserID {
				return errors.Wrap(errs.ErrUnauthorized, "fine belongs to another user")
			}
			if fine.Status != model.FinePending && fine.Status != model.FinePartialPaid {
				return errors.Wrapf(errs.ErrInvalidTransition, "fine %d is not payable", fine.ID)
			}
			total = total.Add(fine.Outstanding())
		}
		if total.LessThanOrEqual(decimal.Zero) {
			return errors.Wrap(errs.ErrValidation, "nothing to pay")
		}

		p, err := s.repo.CreatePaymentTransaction(ctx, model.PaymentTransaction{
			UserID:      in.UserID,
			TotalAmount: total,
			ExternalRef: uuid.NewString(),
		}, in.FineIDs)
		if err != nil {
			return err
		}
		out = p

		s.audit(ctx, model.AuditPaymentInitiated, model.ActorUser, in.UserID, &in.UserID, nil,
			paymentAuditMetadata{PaymentID: p.ID, ExternalRef: p.ExternalRef, Amount: total.StringFixed(2)})
		return nil
	})
	if err != nil {
		return model.PaymentTransaction{}, err
	}
	return out, nil
}

// CompletePayment applies a payment-completed event from the gateway. It is
// idempotent against duplicate delivery: the transaction row is locked by
// external reference and an already-completed payment returns success without
// touching the fines again. Checkout-session and payment-intent callbacks for
// the same logical payment converge here on the same reference.
func (s *Service) CompletePayment(ctx context.Context, paymentRef, gatewayTxID string) (model.PaymentTransaction, error) {
	var out model.PaymentTransaction
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetPaymentByRefForUpdate(ctx, paymentRef)
		if err != nil {
			return err
		}
		out = p

		switch p.Status {
		case model.PaymentCompleted:
			// duplicate delivery, already applied
			return nil
		case model.PaymentFailed, model.PaymentCancelled, model.PaymentRefunded:
			return errors.Wrapf(errs.ErrInvalidTransition, "payment %s is %s", paymentRef, p.Status)
		}

		fineIDs, err := s.repo.PaymentFineIDs(ctx, p.ID)
		if err != nil {
			return err
		}
		fines, err := s.repo.ListFinesForUpdate(ctx, fineIDs)
		if err != nil {
			return err
		}

		remaining := p.TotalAmount
		for _, fine := range fines {
			if remaining.LessThanOrEqual(decimal.Zero) {
				break
			}
			if fine.Status != model.FinePending && fine.Status != model.FinePartialPaid {
				continue
			}
			share := decimal.Min(remaining, fine.Outstanding())
			if share.LessThanOrEqual(decimal.Zero) {
				continue
			}
			newPaid := fine.PaidAmount.Add(share)
			status := model.FinePartialPaid
			if newPaid.GreaterThanOrEqual(fine.Amount) {
				status = model.FinePaid
			}
			if err := s.repo.ApplyFinePayment(ctx, fine.ID, newPaid, status); err != nil {
				return err
			}
			remaining = remaining.Sub(share)
		}

		if err := s.repo.SetPaymentStatus(ctx, p.ID, model.PaymentCompleted, &gatewayTxID); err != nil {
			return err
		}
		out.Status = model.PaymentCompleted
		out.GatewayTxID = &gatewayTxID

		if _, err := s.repo.RecomputeFinesOwed(ctx, p.UserID); err != nil {
			return err
		}
		if _, err := s.EvaluateRestriction(ctx, p.UserID); err != nil {
			return err
		}

		s.audit(ctx, model.AuditPaymentApplied, model.ActorSystem, 0, &p.UserID, nil,
			paymentAuditMetadata{PaymentID: p.ID, ExternalRef: p.ExternalRef, Amount: p.TotalAmount.StringFixed(2), GatewayTxID: &gatewayTxID})

		user, err := s.repo.GetUser(ctx, p.UserID)
		if err != nil {
			return err
		}
		s.notify(ctx, user.ID, user.Email,
			"Payment received",
			fmt.Sprintf("Your payment of %s was applied to your fines.", p.TotalAmount.StringFixed(2)))
		return nil
	})
	if err != nil {
		return model.PaymentTransaction{}, err
	}
	return out, nil
}

// HandleFailedPayment records a failed or cancelled gateway outcome. Fines
// are left untouched; the next webhook delivery may still complete the
// payment from PENDING.
func (s *Service) HandleFailedPayment(ctx context.Context, paymentRef, reason string) error {
	return s.repo.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetPaymentByRefForUpdate(ctx, paymentRef)
		if err != nil {
			return err
		}
		switch p.Status {
		case model.PaymentFailed, model.PaymentCancelled:
			// duplicate delivery
			return nil
		case model.PaymentCompleted, model.PaymentRefunded:
			return errors.Wrapf(errs.ErrInvalidTransition, "payment %s is %s", paymentRef, p.Status)
		}

		to := model.PaymentFailed
		if strings.EqualFold(reason, "cancelled") || strings.EqualFold(reason, "canceled") {
			to = model.PaymentCancelled
		}
		if err := s.repo.SetPaymentStatus(ctx, p.ID, to, nil); err != nil {
			return err
		}

		s.audit(ctx, model.AuditPaymentFailed, model.ActorSystem, 0, &p.UserID, nil,
			paymentAuditMetadata{PaymentID: p.ID, ExternalRef: p.ExternalRef, Reason: reason})
		return nil
	})
}

// WaiveFine forgives a fine by admin decision. Waiving an already-waived
// fine is a no-op; a paid fine cannot be waived.
func (s *Service) WaiveFine(ctx context.Context, fineID, adminID int64, reason string) error {
	return s.repo.WithinTx(ctx, func(ctx context.Context) error {
		fine, err := s.repo.GetFineForUpdate(ctx, fineID)
		if err != nil {
			return err
		}
		switch fine.Status {
		case model.FineWaived:
			return nil
		case model.FinePaid:
			return errors.Wrap(errs.ErrInvalidTransition, "fine is already paid")
		}

		if err := s.repo.SetFineStatus(ctx, fineID,
			[]model.FineStatus{model.FinePending, model.FinePartialPaid}, model.FineWaived); err != nil {
			return err
		}
		if _, err := s.repo.RecomputeFinesOwed(ctx, fine.UserID); err != nil {
			return err
		}
		if _, err := s.EvaluateRestriction(ctx, fine.UserID); err != nil {
			return err
		}

		s.audit(ctx, model.AuditFineWaived, model.ActorAdmin, adminID, &fine.UserID, &fine.BookID,
			waiverAuditMetadata{FineID: fineID, Amount: fine.Amount.StringFixed(2), Reason: reason})
		return nil
	})
}
