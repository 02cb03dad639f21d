package audit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the executor InsertEntry needs. Both *pgxpool.Pool and pgx.Tx
// satisfy it, so entries can join the transaction of the change they record.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// InsertEntry appends one entry. Entries are never updated or deleted.
func InsertEntry(ctx context.Context, db DB, e Entry) error {
	if e.EntityType == "" || e.EntityID == 0 || e.Action == "" {
		return errors.New("audit: entry requires entity_type/entity_id/action")
	}
	oldJSON, err := json.Marshal(e.OldValue)
	if err != nil {
		return err
	}
	newJSON, err := json.Marshal(e.NewValue)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `
		INSERT INTO audit_entries (entity_type, entity_id, action, old_value, new_value, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE(NULLIF($7::timestamptz, '0001-01-01'::timestamptz), NOW()))`,
		e.EntityType, e.EntityID, e.Action, oldJSON, newJSON, e.ChangedBy, e.CreatedAt)
	return err
}
