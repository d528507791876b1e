// Package admin: repository.go работает с таблицами admin_sessions и admin_login_attempts.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// errNoSession: у пользователя нет активной сессии.
var errNoSession = errors.New("активная сессия не найдена")

// Store: хранилище сессий и попыток входа.
type Store interface {
	CreateSession(ctx context.Context, session *Session) error
	GetActiveSession(ctx context.Context, userID int64, now time.Time) (*Session, error)
	DeactivateSession(ctx context.Context, userID int64) error
	UpdateActivity(ctx context.Context, userID int64, now time.Time) error
	LogAttempt(ctx context.Context, userID int64, success bool, at time.Time) error
	GetRecentAttempts(ctx context.Context, userID int64, since time.Time) (int, error)
}

// Repository работает с админ-таблицами в PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateSession создаёт новую сессию администратора.
func (r *Repository) CreateSession(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO admin_sessions (user_id, session_token, authenticated_at, expires_at, last_activity, is_active)
		VALUES ($1, $2, $3, $4, $3, TRUE)
	`
	_, err := r.db.Exec(ctx, query, session.UserID, session.SessionToken, session.AuthenticatedAt, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("ошибка создания сессии: %w", err)
	}
	return nil
}

// GetActiveSession возвращает активную сессию пользователя.
func (r *Repository) GetActiveSession(ctx context.Context, userID int64, now time.Time) (*Session, error) {
	query := `
		SELECT id, user_id, session_token, authenticated_at, expires_at, last_activity, is_active
		FROM admin_sessions
		WHERE user_id = $1 AND is_active = TRUE AND expires_at > $2
		ORDER BY authenticated_at DESC
		LIMIT 1
	`
	var s Session
	err := r.db.QueryRow(ctx, query, userID, now).Scan(
		&s.ID, &s.UserID, &s.SessionToken, &s.AuthenticatedAt,
		&s.ExpiresAt, &s.LastActivity, &s.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения сессии: %w", err)
	}
	return &s, nil
}

// DeactivateSession деактивирует сессии пользователя.
func (r *Repository) DeactivateSession(ctx context.Context, userID int64) error {
	query := `UPDATE admin_sessions SET is_active = FALSE WHERE user_id = $1 AND is_active = TRUE`
	_, err := r.db.Exec(ctx, query, userID)
	return err
}

// UpdateActivity обновляет время последней активности.
func (r *Repository) UpdateActivity(ctx context.Context, userID int64, now time.Time) error {
	query := `UPDATE admin_sessions SET last_activity = $2 WHERE user_id = $1 AND is_active = TRUE`
	_, err := r.db.Exec(ctx, query, userID, now)
	return err
}

// LogAttempt записывает попытку входа.
func (r *Repository) LogAttempt(ctx context.Context, userID int64, success bool, at time.Time) error {
	query := `INSERT INTO admin_login_attempts (user_id, success, attempt_time) VALUES ($1, $2, $3)`
	_, err := r.db.Exec(ctx, query, userID, success, at)
	return err
}

// GetRecentAttempts возвращает количество неудачных попыток начиная с since.
func (r *Repository) GetRecentAttempts(ctx context.Context, userID int64, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM admin_login_attempts
		WHERE user_id = $1 AND success = FALSE AND attempt_time >= $2
	`
	var count int
	err := r.db.QueryRow(ctx, query, userID, since).Scan(&count)
	return count, err
}

// MemoryStore хранит сессии и попытки в памяти (тесты и запуск без БД).
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]Session
	attempts []LoginAttempt
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]Session)}
}

func (m *MemoryStore) CreateSession(_ context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *session
	s.IsActive = true
	s.LastActivity = s.AuthenticatedAt
	m.sessions[s.UserID] = s
	return nil
}

func (m *MemoryStore) GetActiveSession(_ context.Context, userID int64, now time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok || !s.IsActive || !s.ExpiresAt.After(now) {
		return nil, errNoSession
	}
	return &s, nil
}

func (m *MemoryStore) DeactivateSession(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

func (m *MemoryStore) UpdateActivity(_ context.Context, userID int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		s.LastActivity = now
		m.sessions[userID] = s
	}
	return nil
}

func (m *MemoryStore) LogAttempt(_ context.Context, userID int64, success bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, LoginAttempt{UserID: userID, AttemptTime: at, Success: success})
	return nil
}

func (m *MemoryStore) GetRecentAttempts(_ context.Context, userID int64, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, a := range m.attempts {
		if a.UserID == userID && !a.Success && !a.AttemptTime.Before(since) {
			count++
		}
	}
	return count, nil
}
