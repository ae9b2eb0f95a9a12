package service

import (
	"context"
	"fmt"

	"github.com/Astemirdum/lending-service/internal/model"
	"github.com/shopspring/decimal"
)

// restrictionThreshold is the outstanding-fine balance above which an account
// is restricted. Borrow eligibility is stricter on purpose: any outstanding
// fine blocks new borrowing, while the restriction flag only trips past the
// threshold.
var restrictionThreshold = decimal.NewFromFloat(60.00)

type restrictionMetadata struct {
	FinesOwed string `json:"finesOwed"`
	Threshold string `json:"threshold"`
	Reason    string `json:"reason,omitempty"`
}

// EvaluateRestriction applies the threshold rule to the user's cached
// outstanding balance, setting or lifting the restriction flag as needed.
func (s *Service) EvaluateRestriction(ctx context.Context, userID int64) (model.RestrictionDecision, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return model.RestrictionDecision{}, err
	}

	decision := model.RestrictionDecision{
		UserID:     userID,
		Restricted: user.IsRestricted,
		FinesOwed:  user.TotalFinesOwed,
	}

	over := user.TotalFinesOwed.GreaterThan(restrictionThreshold)
	switch {
	case over && !user.IsRestricted:
		reason := fmt.Sprintf("outstanding fines %s exceed %s", user.TotalFinesOwed.StringFixed(2), restrictionThreshold.StringFixed(2))
		if err := s.repo.SetRestriction(ctx, userID, true, reason); err != nil {
			return model.RestrictionDecision{}, err
		}
		decision.Restricted = true
		decision.Changed = true
		decision.Reason = reason
		s.audit(ctx, model.AuditRestrictionSet, model.ActorSystem, 0, &userID, nil, restrictionMetadata{
			FinesOwed: user.TotalFinesOwed.StringFixed(2),
			Threshold: restrictionThreshold.StringFixed(2),
			Reason:    reason,
		})
	case !over && user.IsRestricted:
		if err := s.repo.SetRestriction(ctx, userID, false, ""); err != nil {
			return model.RestrictionDecision{}, err
		}
		decision.Restricted = false
		decision.Changed = true
		s.audit(ctx, model.AuditRestrictionLift, model.ActorSystem, 0, &userID, nil, restrictionMetadata{
			FinesOwed: user.TotalFinesOwed.StringFixed(2),
			Threshold: restrictionThreshold.StringFixed(2),
		})
	}
	return decision, nil
}

// CanBorrow gates new borrow requests. Stricter than the restriction
// threshold: any outstanding fine blocks borrowing.
func (s *Service) CanBorrow(ctx context.Context, userID int64) (model.EligibilityResult, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return model.EligibilityResult{}, err
	}
	switch {
	case user.Status != model.UserApproved:
		return model.EligibilityResult{Reason: "account is not approved"}, nil
	case user.IsRestricted:
		reason := "account is restricted"
		if user.RestrictionReason != nil {
			reason = *user.RestrictionReason
		}
		return model.EligibilityResult{Reason: reason}, nil
	case user.TotalFinesOwed.GreaterThan(decimal.Zero):
		return model.EligibilityResult{Reason: "outstanding fines must be paid before borrowing"}, nil
	}
	return model.EligibilityResult{Allowed: true}, nil
}

// CanReturnBook is deliberately permissive: a restricted user may still
// return books. Only a pending fine on this specific loan blocks the return,
// since that fine must be paid first.
func (s *Service) CanReturnBook(ctx context.Context, userID, borrowRecordID int64) (model.EligibilityResult, error) {
	fine, pending, err := s.repo.PendingFineForBorrowRecord(ctx, borrowRecordID)
	if err != nil {
		return model.EligibilityResult{}, err
	}
	if pending {
		return model.EligibilityResult{
			Reason: fmt.Sprintf("fine of %s on this loan must be paid first", fine.Outstanding().StringFixed(2)),
		}, nil
	}
	return model.EligibilityResult{Allowed: true}, nil
}
