package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/pkg/database"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Repository persists audit logs. It never updates or deletes rows.
type Repository struct {
	db database.DBTX
}

// NewRepository creates an audit repository on a pool or a transaction.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// Record inserts one audit row.
func (r *Repository) Record(ctx context.Context, e Entry) error {
	log, err := e.Log(time.Now())
	if err != nil {
		return fmt.Errorf("encode audit %s: %w", e.Action, err)
	}
	const q = `INSERT INTO audit_logs (id, actor_id, action, entity_type, entity_id, entity_name, previous_data, new_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.db.Exec(ctx, q, log.ID, log.ActorID, log.Action, log.EntityType, log.EntityID, log.EntityName,
		nullJSON(log.PreviousData), nullJSON(log.NewData), log.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit %s: %w", e.Action, err)
	}
	return nil
}

// List returns audit rows newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]models.AuditLog, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.EntityType != "" {
		args = append(args, f.EntityType)
		where = append(where, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if f.EntityID != "" {
		args = append(args, f.EntityID)
		where = append(where, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if f.ActorID != nil {
		args = append(args, *f.ActorID)
		where = append(where, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	q := `SELECT id, actor_id, action, entity_type, entity_id, entity_name, previous_data, new_data, created_at FROM audit_logs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, clampLimit(f.Limit))
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()
	list := []models.AuditLog{}
	for rows.Next() {
		var l models.AuditLog
		var prev, next []byte
		if err := rows.Scan(&l.ID, &l.ActorID, &l.Action, &l.EntityType, &l.EntityID, &l.EntityName, &prev, &next, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		l.PreviousData, l.NewData = prev, next
		list = append(list, l)
	}
	return list, rows.Err()
}

func clampLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

func nullJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
