package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TimelineFilters narrows the global audit listing.
type TimelineFilters struct {
	From      time.Time
	To        time.Time
	Action    string
	ChangedBy string
	Page      int
	PageSize  int
}

// Repository reads audit entries back out of postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a postgres-backed audit repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListByEntity returns the full history of one entity in creation order.
func (r *Repository) ListByEntity(ctx context.Context, entityType string, entityID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, entity_type, entity_id, action, old_value, new_value, changed_by, created_at
		FROM audit_entries
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY id ASC`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("audit: list by entity: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Timeline returns a filtered window of entries across all entities,
// newest first.
func (r *Repository) Timeline(ctx context.Context, f TimelineFilters) ([]Entry, error) {
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, entity_type, entity_id, action, old_value, new_value, changed_by, created_at
		FROM audit_entries
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		  AND ($3::text = '' OR action = $3)
		  AND ($4::text = '' OR changed_by = $4)
		ORDER BY id DESC
		LIMIT $5 OFFSET $6`,
		nullableTime(f.From), nullableTime(f.To), f.Action, f.ChangedBy,
		pageSize+1, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			oldJSON []byte
			newJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &oldJSON, &newJSON, &e.ChangedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		if len(oldJSON) > 0 {
			if err := json.Unmarshal(oldJSON, &e.OldValue); err != nil {
				return nil, fmt.Errorf("audit: decode old_value: %w", err)
			}
		}
		if len(newJSON) > 0 {
			if err := json.Unmarshal(newJSON, &e.NewValue); err != nil {
				return nil, fmt.Errorf("audit: decode new_value: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
