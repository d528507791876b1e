// Package postgres: store.go реализует db.Store поверх pgxpool.
// Каждый WithinTx: отдельная SERIALIZABLE-транзакция. Конфликты сериализации
// повторяются автоматически, остальные ошибки возвращаются вызывающему.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"bingoo.app/core/internal/common"
	"bingoo.app/core/internal/db"
	"bingoo.app/core/internal/models"
)

// maxTxAttempts: сколько раз повторяем транзакцию при конфликте сериализации.
const maxTxAttempts = 3

// Store: хранилище экономики в PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore создаёт хранилище поверх пула.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// queryer: общее подмножество pgxpool.Pool и pgx.Tx.
type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// WithinTx выполняет fn в SERIALIZABLE-транзакции.
// При конфликте сериализации (40001) или дедлоке транзакция повторяется целиком.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		log.WithFields(log.Fields{
			"attempt": attempt,
			"error":   err,
		}).Debug("Конфликт сериализации, повторяем транзакцию")
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	// Откатываем транзакцию, если что-то пошло не так
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// Ping проверяет соединение с БД.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetBalance возвращает балансы профиля.
func (s *Store) GetBalance(ctx context.Context, profileID uuid.UUID) (*models.Balance, error) {
	b := &models.Balance{ProfileID: profileID}
	err := s.pool.QueryRow(ctx, `
		SELECT points, coins, updated_at FROM balances WHERE profile_id = $1
	`, profileID).Scan(&b.Points, &b.Coins, &b.UpdatedAt)
	if isNoRows(err) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	return b, nil
}

// GetTransaction ищет транзакцию по ID или order_id.
func (s *Store) GetTransaction(ctx context.Context, ref db.TxRef) (*models.Transaction, error) {
	return findTransaction(ctx, s.pool, ref, false)
}

// ListTransactions возвращает последние транзакции профиля.
func (s *Store) ListTransactions(ctx context.Context, profileID uuid.UUID, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return queryTransactions(ctx, s.pool,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE profile_id = $1 ORDER BY created_at DESC LIMIT $2`,
		profileID, limit,
	)
}

// ListStalePending возвращает PENDING-транзакции старше before.
func (s *Store) ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	return queryTransactions(ctx, s.pool,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE status = 'PENDING' AND created_at < $1 ORDER BY created_at LIMIT $2`,
		before, limit,
	)
}

// GetTreasury читает казну без блокировки.
func (s *Store) GetTreasury(ctx context.Context) (models.Treasury, bool, error) {
	var t models.Treasury
	err := s.pool.QueryRow(ctx,
		`SELECT balance, last_updated FROM treasury WHERE id = 1`,
	).Scan(&t.Balance, &t.LastUpdated)
	if isNoRows(err) {
		return models.Treasury{}, false, nil
	}
	if err != nil {
		return models.Treasury{}, false, fmt.Errorf("ошибка чтения казны: %w", err)
	}
	return t, true, nil
}

// pgTx: операции внутри открытой транзакции.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockBalance(ctx context.Context, profileID uuid.UUID) (*models.Balance, error) {
	// Создаём нулевую строку, если профиль ещё не играл
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO balances (profile_id) VALUES ($1)
		ON CONFLICT (profile_id) DO NOTHING
	`, profileID); err != nil {
		return nil, fmt.Errorf("ошибка создания баланса: %w", err)
	}

	b := &models.Balance{ProfileID: profileID}
	err := t.tx.QueryRow(ctx, `
		SELECT points, coins, updated_at FROM balances WHERE profile_id = $1 FOR UPDATE
	`, profileID).Scan(&b.Points, &b.Coins, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("ошибка блокировки баланса: %w", err)
	}
	return b, nil
}

func (t *pgTx) SetBalance(ctx context.Context, b *models.Balance) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE balances SET points = $2, coins = $3, updated_at = NOW()
		WHERE profile_id = $1
	`, b.ProfileID, b.Points, b.Coins)
	if err != nil {
		return fmt.Errorf("ошибка записи баланса: %w", err)
	}
	return nil
}

func (t *pgTx) FindTransaction(ctx context.Context, ref db.TxRef) (*models.Transaction, error) {
	return findTransaction(ctx, t.tx, ref, true)
}

func (t *pgTx) InsertTransaction(ctx context.Context, rec *models.Transaction) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO transactions (
			id, profile_id, order_id, type, status, asset, points,
			amount, currency, balance_before, balance_after, description
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`,
		rec.ID, rec.ProfileID, nullString(rec.OrderID), string(rec.Type), string(rec.Status),
		string(rec.Asset), rec.Points, nullDecimal(rec.Amount), nullString(string(rec.Currency)),
		rec.BalanceBefore, rec.BalanceAfter, rec.Description,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("транзакция %s уже существует: %w", rec.ID, err)
		}
		return fmt.Errorf("ошибка записи транзакции: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateTransaction(ctx context.Context, rec *models.Transaction) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE transactions
		SET status = $2, balance_before = $3, balance_after = $4, description = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, rec.ID, string(rec.Status), rec.BalanceBefore, rec.BalanceAfter, rec.Description).Scan(&rec.UpdatedAt)
	if isNoRows(err) {
		return common.ErrTransactionNotFound
	}
	if err != nil {
		return fmt.Errorf("ошибка обновления транзакции: %w", err)
	}
	return nil
}

func (t *pgTx) LockTreasury(ctx context.Context) (models.Treasury, error) {
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO treasury (id, balance) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
	); err != nil {
		return models.Treasury{}, fmt.Errorf("ошибка создания казны: %w", err)
	}

	var tr models.Treasury
	err := t.tx.QueryRow(ctx,
		`SELECT balance, last_updated FROM treasury WHERE id = 1 FOR UPDATE`,
	).Scan(&tr.Balance, &tr.LastUpdated)
	if err != nil {
		return models.Treasury{}, fmt.Errorf("ошибка блокировки казны: %w", err)
	}
	return tr, nil
}

func (t *pgTx) SetTreasury(ctx context.Context, tr models.Treasury) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE treasury SET balance = $1, last_updated = NOW() WHERE id = 1`, tr.Balance,
	)
	if err != nil {
		return fmt.Errorf("ошибка записи казны: %w", err)
	}
	return nil
}

const transactionColumns = `id, profile_id, order_id, type, status, asset, points,
	amount::text, currency, balance_before, balance_after, description, created_at, updated_at`

func findTransaction(ctx context.Context, q queryer, ref db.TxRef, lock bool) (*models.Transaction, error) {
	if ref.IsZero() {
		return nil, common.ErrTransactionNotFound
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE ($1::uuid IS NOT NULL AND id = $1) OR ($2::text IS NOT NULL AND order_id = $2)
		LIMIT 1`
	if lock {
		query += ` FOR UPDATE`
	}

	var id *uuid.UUID
	if ref.ID != uuid.Nil {
		id = &ref.ID
	}
	rec, err := scanTransaction(q.QueryRow(ctx, query, id, nullString(ref.OrderID)))
	if isNoRows(err) {
		return nil, common.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска транзакции: %w", err)
	}
	return rec, nil
}

func queryTransactions(ctx context.Context, q queryer, sql string, args ...any) ([]models.Transaction, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения транзакций: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения транзакции: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var (
		rec      models.Transaction
		orderID  *string
		amount   *string
		currency *string
		txType   string
		status   string
		asset    string
	)
	err := row.Scan(
		&rec.ID, &rec.ProfileID, &orderID, &txType, &status, &asset, &rec.Points,
		&amount, &currency, &rec.BalanceBefore, &rec.BalanceAfter, &rec.Description,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Type = models.TxType(txType)
	rec.Status = models.TxStatus(status)
	rec.Asset = models.Asset(asset)
	if orderID != nil {
		rec.OrderID = *orderID
	}
	if currency != nil {
		rec.Currency = models.Currency(*currency)
	}
	if amount != nil {
		d, err := decimal.NewFromString(*amount)
		if err != nil {
			return nil, fmt.Errorf("некорректная сумма %q: %w", *amount, err)
		}
		rec.Amount = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	return &rec, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullDecimal(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

var _ db.Store = (*Store)(nil)
