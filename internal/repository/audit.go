package repository

import (
	"context"

	"github.com/Astemirdum/lending-service/internal/model"
)

// AppendAuditLog inserts an append-only audit row. There is no update or
// delete path for audit_log anywhere in the repository.
func (r *repository) AppendAuditLog(ctx context.Context, entry model.AuditLogEntry) error {
	query, args, err := qb.Insert(auditTableName).
		Columns("action", "actor_type", "actor_id", "target_user_id", "target_book_id", "metadata").
		Values(entry.Action, entry.ActorType, entry.ActorID, entry.TargetUserID, entry.TargetBookID, entry.Metadata).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.q(ctx).ExecContext(ctx, query, args...)
	return err
}
