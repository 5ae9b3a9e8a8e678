package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Acquire claims name for holderID. A free or expired lease is taken over, bumping its epoch;
// a lease holderID already holds is extended.
func (s *Store) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leases (name, holder_id, expires_at, version, epoch)
		VALUES (?, ?, ?, 1, 1)
		ON CONFLICT(name) DO UPDATE SET
			epoch = CASE WHEN leases.holder_id = excluded.holder_id THEN leases.epoch ELSE leases.epoch + 1 END,
			holder_id = excluded.holder_id,
			expires_at = excluded.expires_at,
			version = leases.version + 1
		WHERE leases.holder_id = excluded.holder_id OR leases.expires_at < ?
	`, name, holderID, now.Add(ttl), now)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	return n == 1, nil
}

// Renew extends a lease holderID still holds. An expired lease is not renewed; the caller must
// Acquire it again.
func (s *Store) Renew(ctx context.Context, name, holderID string, ttl time.Duration) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE leases
		SET expires_at = ?, version = version + 1
		WHERE name = ? AND holder_id = ? AND expires_at >= ?
	`, now.Add(ttl), name, holderID, now)
	if err != nil {
		return fmt.Errorf("failed to renew lease %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to renew lease %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("renew %s: %w", name, ErrLeaseLost)
	}
	return nil
}

// Release drops the lease when holderID holds it. Releasing a lease held by someone else, or
// by nobody, is a no-op.
func (s *Store) Release(ctx context.Context, name, holderID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE name = ? AND holder_id = ?`, name, holderID); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}

// Get returns the lease row, or nil when nobody holds name. Expired rows are returned as they
// are; callers compare ExpiresAt themselves.
func (s *Store) Get(ctx context.Context, name string) (*Lease, error) {
	l := &Lease{}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, holder_id, expires_at, version, epoch FROM leases WHERE name = ?`, name,
	).Scan(&l.Name, &l.HolderID, &l.ExpiresAt, &l.Version, &l.Epoch)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get lease %s: %w", name, err)
	}
	return l, nil
}
