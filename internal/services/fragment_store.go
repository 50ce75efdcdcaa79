package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/trustedcoder/typira-home/internal/database"
	"github.com/trustedcoder/typira-home/internal/models"
)

// FragmentStore is the durable dedup table of typing fragments. All writes
// are single-row and atomic at the storage layer so concurrent workers
// touching the same intent cannot lose updates.
type FragmentStore struct {
	db *database.DB
}

// NewFragmentStore creates a fragment store backed by MySQL
func NewFragmentStore(db *database.DB) *FragmentStore {
	return &FragmentStore{db: db}
}

// Upsert inserts a fragment or, when the (user, app context, fingerprint)
// row already exists, replaces its content, bumps frequency and refreshes
// updated_at - in one atomic statement.
func (s *FragmentStore) Upsert(ctx context.Context, userID, appContext, content, fingerprint string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO typing_fragments (user_id, app_context, content, fingerprint, frequency, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON DUPLICATE KEY UPDATE
			content = VALUES(content),
			frequency = frequency + 1,
			updated_at = VALUES(updated_at)
	`, userID, appContext, content, fingerprint, now, now)
	if err != nil {
		return wrapConflict("upsert fragment", err)
	}
	return nil
}

// AbsorptionCandidate returns the most recently updated fragment for the
// (user, app context) key whose updated_at falls after since, or nil when
// there is none. The ingestion engine uses it to decide merge-vs-insert for
// the last atom of an event.
func (s *FragmentStore) AbsorptionCandidate(ctx context.Context, userID, appContext string, since time.Time) (*models.TypingFragment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, app_context, content, COALESCE(fingerprint, ''), frequency, created_at, updated_at
		FROM typing_fragments
		WHERE user_id = ? AND app_context = ? AND updated_at >= ?
		ORDER BY updated_at DESC
		LIMIT 1
	`, userID, appContext, since)

	fragment, err := scanFragment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapConflict("query absorption candidate", err)
	}
	return fragment, nil
}

// Absorb overwrites a fragment's content and fingerprint in place, refreshing
// updated_at. Frequency is deliberately untouched: an absorbed expansion is
// the same evolving thought, not a repeat sighting.
func (s *FragmentStore) Absorb(ctx context.Context, id int64, content, fingerprint string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE typing_fragments
		SET content = ?, fingerprint = ?, updated_at = ?
		WHERE id = ?
	`, content, fingerprint, now, id)
	if err != nil {
		return wrapConflict("absorb fragment", err)
	}
	return nil
}

// RecentByUser returns the user's most recently updated fragments across all
// app contexts, newest first.
func (s *FragmentStore) RecentByUser(ctx context.Context, userID string, limit int) ([]models.TypingFragment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, app_context, content, COALESCE(fingerprint, ''), frequency, created_at, updated_at
		FROM typing_fragments
		WHERE user_id = ?
		ORDER BY updated_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, wrapConflict("query recent fragments", err)
	}
	defer rows.Close()

	var fragments []models.TypingFragment
	for rows.Next() {
		fragment, err := scanFragment(rows)
		if err != nil {
			return nil, wrapConflict("scan fragment", err)
		}
		fragments = append(fragments, *fragment)
	}
	return fragments, rows.Err()
}

// CountByUser returns the total fragment count for pagination
func (s *FragmentStore) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM typing_fragments WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}

// PageByUser returns one page of fragments, newest first
func (s *FragmentStore) PageByUser(ctx context.Context, userID string, offset, limit int) ([]models.TypingFragment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, app_context, content, COALESCE(fingerprint, ''), frequency, created_at, updated_at
		FROM typing_fragments
		WHERE user_id = ?
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, wrapConflict("page fragments", err)
	}
	defer rows.Close()

	var fragments []models.TypingFragment
	for rows.Next() {
		fragment, err := scanFragment(rows)
		if err != nil {
			return nil, wrapConflict("scan fragment", err)
		}
		fragments = append(fragments, *fragment)
	}
	return fragments, rows.Err()
}

// DeleteOlderThan prunes fragments not updated since the cutoff. Retention is
// an external policy; the engine itself never deletes.
func (s *FragmentStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM typing_fragments WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, wrapConflict("delete old fragments", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFragment(row rowScanner) (*models.TypingFragment, error) {
	var f models.TypingFragment
	err := row.Scan(&f.ID, &f.UserID, &f.AppContext, &f.Content, &f.Fingerprint, &f.Frequency, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
