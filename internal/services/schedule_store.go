package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trustedcoder/typira-home/internal/database"
	"github.com/trustedcoder/typira-home/internal/models"
)

// ScheduleStore persists user schedules in MySQL.
type ScheduleStore struct {
	db *database.DB
}

func NewScheduleStore(db *database.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

func (s *ScheduleStore) Create(ctx context.Context, schedule *models.Schedule) error {
	query := `
		INSERT INTO schedules (user_id, title, action_description, timezone, recurrence, time_of_day, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query,
		schedule.UserID, schedule.Title, schedule.ActionDescription,
		schedule.Timezone, schedule.Recurrence, schedule.TimeOfDay, now, now)
	if err != nil {
		return wrapConflict("create schedule", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	schedule.ID = id
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	return nil
}

func (s *ScheduleStore) GetByID(ctx context.Context, id int64, userID string) (*models.Schedule, error) {
	query := `
		SELECT id, user_id, title, action_description, timezone, recurrence, time_of_day, last_fired_at, created_at, updated_at
		FROM schedules
		WHERE id = ? AND user_id = ?`

	return scanSchedule(s.db.QueryRowContext(ctx, query, id, userID))
}

func (s *ScheduleStore) ListByUser(ctx context.Context, userID string) ([]*models.Schedule, error) {
	query := `
		SELECT id, user_id, title, action_description, timezone, recurrence, time_of_day, last_fired_at, created_at, updated_at
		FROM schedules
		WHERE user_id = ?
		ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// ListAll returns every schedule in the system. The dispatcher scans this
// each minute; schedule counts are small enough that a full scan beats
// maintaining a due-time index.
func (s *ScheduleStore) ListAll(ctx context.Context) ([]*models.Schedule, error) {
	query := `
		SELECT id, user_id, title, action_description, timezone, recurrence, time_of_day, last_fired_at, created_at, updated_at
		FROM schedules`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list all schedules: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func (s *ScheduleStore) Update(ctx context.Context, schedule *models.Schedule) error {
	query := `
		UPDATE schedules
		SET title = ?, action_description = ?, timezone = ?, recurrence = ?, time_of_day = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query,
		schedule.Title, schedule.ActionDescription, schedule.Timezone,
		schedule.Recurrence, schedule.TimeOfDay, now, schedule.ID, schedule.UserID)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	schedule.UpdatedAt = now
	return nil
}

func (s *ScheduleStore) Delete(ctx context.Context, id int64, userID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM schedules WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ClaimDue atomically marks a schedule as fired for the minute starting at
// minuteStart. Exactly one dispatcher replica wins the UPDATE; everyone else
// sees zero rows affected and must not fire.
func (s *ScheduleStore) ClaimDue(ctx context.Context, id int64, minuteStart, firedAt time.Time) (bool, error) {
	query := `
		UPDATE schedules
		SET last_fired_at = ?
		WHERE id = ? AND (last_fired_at IS NULL OR last_fired_at < ?)`

	result, err := s.db.ExecContext(ctx, query, firedAt.UTC(), id, minuteStart.UTC())
	if err != nil {
		return false, fmt.Errorf("claim schedule %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim schedule %d: %w", id, err)
	}
	return affected == 1, nil
}

func scanSchedule(row *sql.Row) (*models.Schedule, error) {
	var schedule models.Schedule
	var lastFired sql.NullTime
	err := row.Scan(&schedule.ID, &schedule.UserID, &schedule.Title,
		&schedule.ActionDescription, &schedule.Timezone, &schedule.Recurrence,
		&schedule.TimeOfDay, &lastFired, &schedule.CreatedAt, &schedule.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastFired.Valid {
		schedule.LastFiredAt = &lastFired.Time
	}
	return &schedule, nil
}

func collectSchedules(rows *sql.Rows) ([]*models.Schedule, error) {
	var schedules []*models.Schedule
	for rows.Next() {
		var schedule models.Schedule
		var lastFired sql.NullTime
		err := rows.Scan(&schedule.ID, &schedule.UserID, &schedule.Title,
			&schedule.ActionDescription, &schedule.Timezone, &schedule.Recurrence,
			&schedule.TimeOfDay, &lastFired, &schedule.CreatedAt, &schedule.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		if lastFired.Valid {
			schedule.LastFiredAt = &lastFired.Time
		}
		schedules = append(schedules, &schedule)
	}
	return schedules, rows.Err()
}
