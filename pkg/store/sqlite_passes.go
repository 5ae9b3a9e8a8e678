package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecordPass appends one pass summary to the history.
func (s *Store) RecordPass(ctx context.Context, rec *PassRecord) error {
	var errText sql.NullString
	if rec.Error != "" {
		errText = sql.NullString{String: rec.Error, Valid: true}
	}
	var payload any
	if len(rec.Payload) > 0 {
		payload = string(rec.Payload)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO passes (
			pass_id, cluster_id, mode, started_at, duration_ms,
			created, updated, reused, removed,
			placeholders_created, placeholders_reused, unresolved, moves,
			error, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.PassID, rec.ClusterID, rec.Mode, rec.StartedAt.UTC(), rec.DurationMs,
		rec.Created, rec.Updated, rec.Reused, rec.Removed,
		rec.PlaceholdersCreated, rec.PlaceholdersReused, rec.Unresolved, rec.Moves,
		errText, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pass %s: %w", rec.PassID, err)
	}
	return nil
}

// RecentPasses returns the newest passes matching filter, newest first.
func (s *Store) RecentPasses(ctx context.Context, filter PassFilter) ([]*PassRecord, error) {
	query := `
		SELECT pass_id, cluster_id, mode, started_at, duration_ms,
			created, updated, reused, removed,
			placeholders_created, placeholders_reused, unresolved, moves,
			error, payload
		FROM passes WHERE 1=1`
	var args []any
	if filter.ClusterID != "" {
		query += " AND cluster_id = ?"
		args = append(args, filter.ClusterID)
	}
	if !filter.Since.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, filter.Since.UTC())
	}
	query += " ORDER BY started_at DESC, rowid DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query passes: %w", err)
	}
	defer rows.Close()

	var out []*PassRecord
	for rows.Next() {
		var rec PassRecord
		var errText, payload sql.NullString
		if err := rows.Scan(
			&rec.PassID, &rec.ClusterID, &rec.Mode, &rec.StartedAt, &rec.DurationMs,
			&rec.Created, &rec.Updated, &rec.Reused, &rec.Removed,
			&rec.PlaceholdersCreated, &rec.PlaceholdersReused, &rec.Unresolved, &rec.Moves,
			&errText, &payload,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pass: %w", err)
		}
		rec.Error = errText.String
		if payload.Valid {
			rec.Payload = []byte(payload.String)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate passes: %w", err)
	}
	return out, nil
}

// PrunePasses deletes passes older than retention. It returns the number of rows removed.
func (s *Store) PrunePasses(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM passes WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune passes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n, nil
}
