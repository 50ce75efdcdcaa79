package services

import (
	"context"
	"fmt"
	"time"

	"github.com/trustedcoder/typira-home/internal/database"
	"github.com/trustedcoder/typira-home/internal/models"
)

// ActionStore persists approve/decline decisions users make on suggested
// actions. The dispatcher feeds recent decisions back into insight prompts.
type ActionStore struct {
	db *database.DB
}

func NewActionStore(db *database.DB) *ActionStore {
	return &ActionStore{db: db}
}

func (s *ActionStore) Record(ctx context.Context, userID string, action *models.UserAction) error {
	if action.Decision != models.DecisionApproved && action.Decision != models.DecisionDeclined {
		return fmt.Errorf("decision must be %q or %q", models.DecisionApproved, models.DecisionDeclined)
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO user_actions (user_id, action_id, decision, context, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		userID, action.ActionID, action.Decision, action.Context, now)
	if err != nil {
		return fmt.Errorf("record action: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("record action: %w", err)
	}
	action.ID = id
	action.UserID = userID
	action.CreatedAt = now
	return nil
}

// RecentByUser returns the newest decisions for a user, newest first.
func (s *ActionStore) RecentByUser(ctx context.Context, userID string, limit int) ([]*models.UserAction, error) {
	if limit <= 0 {
		limit = 15
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, action_id, decision, COALESCE(context, ''), created_at
		FROM user_actions
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.UserAction
	for rows.Next() {
		var action models.UserAction
		err := rows.Scan(&action.ID, &action.UserID, &action.ActionID,
			&action.Decision, &action.Context, &action.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, &action)
	}
	return actions, rows.Err()
}

// PageByUser returns one page of a user's decisions plus the total count.
func (s *ActionStore) PageByUser(ctx context.Context, userID string, page, pageSize int) ([]*models.UserAction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_actions WHERE user_id = ?`, userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count actions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, action_id, decision, COALESCE(context, ''), created_at
		FROM user_actions
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.UserAction
	for rows.Next() {
		var action models.UserAction
		err := rows.Scan(&action.ID, &action.UserID, &action.ActionID,
			&action.Decision, &action.Context, &action.CreatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, &action)
	}
	return actions, total, rows.Err()
}
