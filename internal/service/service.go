package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Astemirdum/lending-service/config"
	"github.com/Astemirdum/lending-service/internal/model"
	"github.com/Astemirdum/lending-service/internal/repository"
	"go.uber.org/zap"
)

const loanPeriodDays = 7

type Service struct {
	log   *zap.Logger
	repo  repository.Repository
	flags config.Flags
	now   func() time.Time
}

func NewService(repo repository.Repository, flags config.Flags, log *zap.Logger) *Service {
	return &Service{
		log:   log,
		repo:  repo,
		flags: flags,
		now:   time.Now,
	}
}

// today returns the current calendar date in UTC. Due-date math works on
// dates, never on timestamps.
func (s *Service) today() time.Time {
	n := s.now().UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// audit appends an audit entry best-effort: a failing audit sink is logged
// and never fails the caller's transaction.
func (s *Service) audit(ctx context.Context, action model.AuditAction, actorType model.ActorType, actorID int64, targetUserID, targetBookID *int64, metadata any) {
	var raw json.RawMessage
	if metadata != nil {
		data, err := json.Marshal(metadata)
		if err != nil {
			s.log.Error("audit metadata marshal", zap.Error(err), zap.String("action", string(action)))
		} else {
			raw = data
		}
	}
	entry := model.AuditLogEntry{
		Action:       action,
		ActorType:    actorType,
		ActorID:      actorID,
		TargetUserID: targetUserID,
		TargetBookID: targetBookID,
		Metadata:     raw,
	}
	if err := s.repo.AppendAuditLog(ctx, entry); err != nil {
		s.log.Error("audit append", zap.Error(err), zap.String("action", string(action)))
	}
}

// notify records the intent to notify in the outbox. The write shares the
// caller's transaction; actual delivery happens in the outbox worker after
// commit.
func (s *Service) notify(ctx context.Context, userID int64, recipient, subject, body string) {
	if !s.flags.NotificationsEnabled {
		return
	}
	n := model.Notification{
		UserID:    userID,
		Channel:   model.ChannelEmail,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
	}
	if err := s.repo.EnqueueNotification(ctx, n); err != nil {
		s.log.Error("notify enqueue", zap.Error(err), zap.Int64("user_id", userID))
	}
}

func ptr[T any](v T) *T { return &v }
