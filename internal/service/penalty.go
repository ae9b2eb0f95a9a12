package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Astemirdum/lending-service/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Tiered penalty schedule, driven by days past the due date:
//
//	day 1          flat $10.00
//	days 2..7      flat fee + $0.50 per day past the first
//	day 8 onward   book declared lost, price x 1.30
var (
	lateFlatFee    = decimal.NewFromFloat(10.00)
	lateDailyFee   = decimal.NewFromFloat(0.50)
	lostMultiplier = decimal.NewFromFloat(1.30)
)

const (
	dailyAfterDays = 2
	lostAfterDays  = 8
)

type fineAuditMetadata struct {
	FineID      int64  `json:"fineId"`
	Amount      string `json:"amount"`
	DaysOverdue int    `json:"daysOverdue"`
	BookLost    bool   `json:"bookLost"`
}

// computePenalty maps days-overdue onto the schedule. assessed is false while
// the loan is still within the grace period.
func computePenalty(daysOverdue int, bookPrice decimal.Decimal) (fineType model.FineType, penaltyType model.PenaltyType, amount decimal.Decimal, lost, assessed bool) {
	switch {
	case daysOverdue <= 0:
		return "", "", decimal.Zero, false, false
	case daysOverdue < dailyAfterDays:
		return model.FineLateReturn, model.PenaltyFlatFee, lateFlatFee, false, true
	case daysOverdue < lostAfterDays:
		amount = lateFlatFee.Add(lateDailyFee.Mul(decimal.NewFromInt(int64(daysOverdue - 1))))
		return model.FineLateReturn, model.PenaltyDailyFee, amount, false, true
	default:
		amount = bookPrice.Mul(lostMultiplier).Round(2)
		return model.FineLostBook, model.PenaltyLostBookFee, amount, true, true
	}
}

func daysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}

// RecalculateFine assesses or refreshes the single fine for a borrow record.
// Re-running is idempotent: the existing pending fine is updated in place and
// a fine that was paid or waived mid-flight is left alone. After a write the
// user's cached balance and restriction flag are refreshed in the same
// transaction.
func (s *Service) RecalculateFine(ctx context.Context, record model.BorrowRecord) (model.Fine, bool, error) {
	daysOverdue := daysBetween(record.DueDate, s.today())
	fineType, penaltyType, amount, lost, assessed := computePenalty(daysOverdue, decimal.Zero)
	if !assessed {
		return model.Fine{}, false, nil
	}

	var (
		out     model.Fine
		written bool
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		book, err := s.repo.GetBook(ctx, record.BookID)
		if err != nil {
			return err
		}
		if lost {
			// lost-book fines price in the replacement cost
			_, _, amount, _, _ = computePenalty(daysOverdue, book.Price)
		}

		fine, w, err := s.repo.UpsertFine(ctx, model.Fine{
			UserID:          record.UserID,
			BookID:          record.BookID,
			BorrowRecordID:  record.ID,
			FineType:        fineType,
			PenaltyType:     penaltyType,
			Amount:          amount,
			DueDate:         record.DueDate,
			CalculationDate: s.today(),
			DaysOverdue:     daysOverdue,
			IsBookLost:      lost,
		})
		if err != nil {
			return err
		}
		out, written = fine, w
		if !written {
			return nil
		}

		if _, err := s.repo.RecomputeFinesOwed(ctx, record.UserID); err != nil {
			return err
		}
		if _, err := s.EvaluateRestriction(ctx, record.UserID); err != nil {
			return err
		}

		s.audit(ctx, model.AuditFineAssessed, model.ActorSystem, 0, &record.UserID, &record.BookID,
			fineAuditMetadata{FineID: fine.ID, Amount: fine.Amount.StringFixed(2), DaysOverdue: daysOverdue, BookLost: lost})

		if lost {
			user, err := s.repo.GetUser(ctx, record.UserID)
			if err != nil {
				return err
			}
			s.notify(ctx, user.ID, user.Email,
				"Book declared lost",
				fmt.Sprintf("The book %q is %d days overdue and has been declared lost. Replacement fee: %s.",
					book.Title, daysOverdue, fine.Amount.StringFixed(2)))
		}
		return nil
	})
	if err != nil {
		return model.Fine{}, false, err
	}
	return out, written, nil
}

// RunPenaltySweep walks every overdue open loan and recalculates its fine.
// Each record commits independently, so the sweep can be aborted and re-run
// from the top at any point.
func (s *Service) RunPenaltySweep(ctx context.Context) (model.SweepResult, error) {
	records, err := s.repo.ListOverdueRecords(ctx, s.today())
	if err != nil {
		return model.SweepResult{}, err
	}

	res := model.SweepResult{Scanned: len(records)}
	for _, record := range records {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		fine, written, err := s.RecalculateFine(ctx, record)
		if err != nil {
			s.log.Error("penalty sweep: recalculate",
				zap.Int64("borrow_record_id", record.ID), zap.Error(err))
			res.Errors = append(res.Errors, int(record.ID))
			continue
		}
		if written {
			res.FinesAssessed++
			if fine.IsBookLost {
				res.BooksLost++
			}
		}
	}
	return res, nil
}

// RunDueDateReminders enqueues a reminder for every loan due within the
// configured window. The derived key makes each record+date reminder fire at
// most once even when the job overlaps with itself.
func (s *Service) RunDueDateReminders(ctx context.Context, withinDays int) (int, error) {
	if !s.flags.DueRemindersEnabled {
		return 0, nil
	}
	today := s.today()
	records, err := s.repo.ListRecordsDueWithin(ctx, today, today.AddDate(0, 0, withinDays))
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, record := range records {
		record := record
		key := DeriveOperationKey("dueDateReminder",
			strconv.FormatInt(record.ID, 10), today.Format(time.DateOnly))
		var ok bool
		err := s.withIdempotency(ctx, key, &ok, func(ctx context.Context) (any, error) {
			user, err := s.repo.GetUser(ctx, record.UserID)
			if err != nil {
				return false, err
			}
			book, err := s.repo.GetBook(ctx, record.BookID)
			if err != nil {
				return false, err
			}
			s.notify(ctx, user.ID, user.Email,
				"Return reminder",
				fmt.Sprintf("The book %q is due on %s.", book.Title, record.DueDate.Format("2006-01-02")))
			return true, nil
		})
		if err != nil {
			s.log.Error("due-date reminder", zap.Int64("borrow_record_id", record.ID), zap.Error(err))
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}
