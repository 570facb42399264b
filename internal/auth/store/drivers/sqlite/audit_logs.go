package sqlite

import (
	"context"
	"time"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/domain"
)

type auditLogsRepo struct {
	db dbtx
}

func (r *auditLogsRepo) CreateAuditLog(ctx context.Context, e domain.AuditLog) error {
	ts := e.CreatedAt
	if ts.IsZero() {
		ts = now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, tenant_id, user_id, action, ip, user_agent, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.UserID, e.Action, e.IP, e.UserAgent, e.Detail, ts,
	)
	return mapConstraint(err)
}

func (r *auditLogsRepo) ListUserAuditLogs(ctx context.Context, userID string, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, action, ip, user_agent, detail, created_at
		FROM audit_logs WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditLog
	for rows.Next() {
		var e domain.AuditLog
		if err := rows.Scan(&e.ID, &e.TenantID, &e.UserID, &e.Action, &e.IP, &e.UserAgent, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *auditLogsRepo) DeleteAuditLogsBefore(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM audit_logs WHERE created_at < ?`, cutoff)
	return err
}
