package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Astemirdum/lending-service/internal/model"
	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

var outboxColumns = []string{
	"id", "user_id", "channel", "recipient", "subject", "body", "status",
	"attempts", "created_at", "sent_at",
}

func (r *repository) EnqueueNotification(ctx context.Context, n model.Notification) error {
	query, args, err := qb.Insert(outboxTableName).
		Columns("user_id", "channel", "recipient", "subject", "body", "status").
		Values(n.UserID, n.Channel, n.Recipient, n.Subject, n.Body, model.NotificationPending).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.q(ctx).ExecContext(ctx, query, args...)
	return err
}

// ClaimNotificationBatch moves up to limit pending rows to SENDING and returns
// them. SKIP LOCKED lets concurrent workers drain disjoint batches.
func (r *repository) ClaimNotificationBatch(ctx context.Context, limit int) ([]model.Notification, error) {
	q := fmt.Sprintf(`update %s
	set status = 'SENDING', attempts = attempts + 1
	where id in (
		select id from %s
		where status = 'PENDING'
		order by id
		limit $1
		for update skip locked
	)
	returning %s`, outboxTableName, outboxTableName, joinColumns(outboxColumns))

	var out []model.Notification
	if err := sqlx.SelectContext(ctx, r.q(ctx), &out, q, limit); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) MarkNotificationSent(ctx context.Context, id int64) error {
	query, args, err := qb.Update(outboxTableName).
		Set("status", model.NotificationSent).
		Set("sent_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.q(ctx).ExecContext(ctx, query, args...)
	return err
}

// MarkNotificationFailed requeues the row until it runs out of attempts.
func (r *repository) MarkNotificationFailed(ctx context.Context, id int64, maxAttempts int) error {
	q := fmt.Sprintf(`update %s
	set status = case when attempts >= $2 then 'FAILED' else 'PENDING' end
	where id = $1`, outboxTableName)
	_, err := r.q(ctx).ExecContext(ctx, q, id, maxAttempts)
	return err
}
