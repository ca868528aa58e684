// internal/storage/users.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"sceneforge/internal/models"
)

// CreateUser inserts the account together with its initial free
// subscription, matching the sign-up flow the frontend expects.
func (s *Storage) CreateUser(ctx context.Context, username, passwordHash, email string) (*models.User, error) {
	const op = "storage.CreateUser"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	defer tx.Rollback(ctx)

	var userID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO users (username, password, email) VALUES ($1, $2, $3) RETURNING id`,
		username, passwordHash, email).Scan(&userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO subscriptions (user_id, subscription_level) VALUES ($1, 'free')`, userID); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return &models.User{ID: userID, Username: username, PasswordHash: passwordHash, Email: email, SubscriptionLevel: "free"}, nil
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.GetUserByUsername"

	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.username, u.password, u.email, COALESCE(sub.subscription_level, 'free')
		 FROM users u
		 LEFT JOIN subscriptions sub ON u.id = sub.user_id
		 WHERE u.username = $1
		 ORDER BY sub.start_date DESC
		 LIMIT 1`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email, &u.SubscriptionLevel)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return &u, nil
}

func (s *Storage) CreateSession(ctx context.Context, userID int64, ttl time.Duration) (uuid.UUID, error) {
	const op = "storage.CreateSession"

	token := uuid.New()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (token, user_id, expires_at) VALUES ($1, $2, $3)`,
		token, userID, time.Now().Add(ttl))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %v", op, err)
	}
	return token, nil
}

// GetSessionUser resolves a session token to its user, rejecting expired
// sessions. ErrNotFound doubles for "no such token" and "expired".
func (s *Storage) GetSessionUser(ctx context.Context, token uuid.UUID) (*models.User, error) {
	const op = "storage.GetSessionUser"

	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.username, u.password, u.email, COALESCE(sub.subscription_level, 'free')
		 FROM sessions ses
		 JOIN users u ON u.id = ses.user_id
		 LEFT JOIN subscriptions sub ON u.id = sub.user_id
		 WHERE ses.token = $1 AND ses.expires_at > now()
		 ORDER BY sub.start_date DESC
		 LIMIT 1`, token).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email, &u.SubscriptionLevel)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return &u, nil
}

func (s *Storage) DeleteSession(ctx context.Context, token uuid.UUID) error {
	const op = "storage.DeleteSession"

	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}

func (s *Storage) CreateLog(ctx context.Context, userID int64, activity string) error {
	const op = "storage.CreateLog"

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO user_logs (user_id, activity) VALUES ($1, $2)`, userID, activity); err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}

func (s *Storage) GetLogsByUserID(ctx context.Context, userID int64) ([]models.UserLog, error) {
	const op = "storage.GetLogsByUserID"

	rows, err := s.pool.Query(ctx,
		`SELECT log_id, user_id, activity, timestamp FROM user_logs
		 WHERE user_id = $1 ORDER BY timestamp DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	defer rows.Close()

	logs := []models.UserLog{}
	for rows.Next() {
		var l models.UserLog
		if err := rows.Scan(&l.LogID, &l.UserID, &l.Activity, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("%s: %v", op, err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return logs, nil
}
