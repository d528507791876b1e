// Package memory: хранилище экономики в памяти процесса.
// Транзакции сериализуются одним мьютексом и работают с копией данных:
// изменения видны остальным только после успешного завершения fn.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"bingoo.app/core/internal/common"
	"bingoo.app/core/internal/db"
	"bingoo.app/core/internal/models"
)

// ErrInjected: ошибка, которую возвращает коммит при FailNextCommit.
var ErrInjected = errors.New("memory: injected commit failure")

type state struct {
	balances     map[uuid.UUID]models.Balance
	transactions []models.Transaction
	treasury     models.Treasury
	hasTreasury  bool
}

func (s *state) clone() *state {
	c := &state{
		balances:     make(map[uuid.UUID]models.Balance, len(s.balances)),
		transactions: make([]models.Transaction, len(s.transactions)),
		treasury:     s.treasury,
		hasTreasury:  s.hasTreasury,
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	copy(c.transactions, s.transactions)
	return c
}

// Store: потокобезопасное хранилище в памяти.
type Store struct {
	mu    sync.Mutex
	data  *state
	fail  bool
	clock func() time.Time
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		data:  &state{balances: make(map[uuid.UUID]models.Balance)},
		clock: time.Now,
	}
}

// FailNextCommit заставляет следующую транзакцию упасть на коммите.
// fn при этом выполняется полностью, но её изменения отбрасываются.
func (s *Store) FailNextCommit() {
	s.mu.Lock()
	s.fail = true
	s.mu.Unlock()
}

// SetClock подменяет часы (для тестов просроченных PENDING).
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.clock = now
	s.mu.Unlock()
}

// WithinTx выполняет fn над копией данных и подменяет данные копией при успехе.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.data.clone()
	if err := fn(ctx, &memTx{data: work, now: s.clock}); err != nil {
		return err
	}

	if s.fail {
		s.fail = false
		return ErrInjected
	}
	s.data = work
	return nil
}

// Ping всегда успешен.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// GetBalance возвращает балансы профиля.
func (s *Store) GetBalance(ctx context.Context, profileID uuid.UUID) (*models.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.data.balances[profileID]
	if !ok {
		return &models.Balance{ProfileID: profileID}, nil
	}
	return &b, nil
}

// GetTransaction ищет транзакцию по ссылке.
func (s *Store) GetTransaction(ctx context.Context, ref db.TxRef) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return find(s.data, ref)
}

// ListTransactions возвращает последние транзакции профиля.
func (s *Store) ListTransactions(ctx context.Context, profileID uuid.UUID, limit int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Transaction
	for i := len(s.data.transactions) - 1; i >= 0; i-- {
		t := s.data.transactions[i]
		if t.ProfileID != profileID {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListStalePending возвращает старые PENDING-транзакции, старые первыми.
func (s *Store) ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Transaction
	for _, t := range s.data.transactions {
		if t.Status == models.StatusPending && t.CreatedAt.Before(before) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetTreasury читает казну.
func (s *Store) GetTreasury(ctx context.Context) (models.Treasury, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.data.treasury, s.data.hasTreasury, nil
}

// memTx: операции над рабочей копией внутри WithinTx.
type memTx struct {
	data *state
	now  func() time.Time
}

func (t *memTx) LockBalance(ctx context.Context, profileID uuid.UUID) (*models.Balance, error) {
	b, ok := t.data.balances[profileID]
	if !ok {
		b = models.Balance{ProfileID: profileID, UpdatedAt: t.now()}
		t.data.balances[profileID] = b
	}
	return &b, nil
}

func (t *memTx) SetBalance(ctx context.Context, b *models.Balance) error {
	v := *b
	v.UpdatedAt = t.now()
	t.data.balances[b.ProfileID] = v
	return nil
}

func (t *memTx) FindTransaction(ctx context.Context, ref db.TxRef) (*models.Transaction, error) {
	return find(t.data, ref)
}

func (t *memTx) InsertTransaction(ctx context.Context, rec *models.Transaction) error {
	for _, existing := range t.data.transactions {
		if existing.ID == rec.ID || (rec.OrderID != "" && existing.OrderID == rec.OrderID) {
			return errors.New("memory: duplicate transaction")
		}
	}
	now := t.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	t.data.transactions = append(t.data.transactions, *rec)
	return nil
}

func (t *memTx) UpdateTransaction(ctx context.Context, rec *models.Transaction) error {
	for i := range t.data.transactions {
		if t.data.transactions[i].ID == rec.ID {
			rec.UpdatedAt = t.now()
			t.data.transactions[i] = *rec
			return nil
		}
	}
	return common.ErrTransactionNotFound
}

func (t *memTx) LockTreasury(ctx context.Context) (models.Treasury, error) {
	if !t.data.hasTreasury {
		t.data.treasury = models.Treasury{LastUpdated: t.now()}
		t.data.hasTreasury = true
	}
	return t.data.treasury, nil
}

func (t *memTx) SetTreasury(ctx context.Context, tr models.Treasury) error {
	if tr.Balance < 0 {
		return errors.New("memory: treasury balance below zero")
	}
	if tr.LastUpdated.IsZero() {
		tr.LastUpdated = t.now()
	}
	t.data.treasury = tr
	t.data.hasTreasury = true
	return nil
}

func find(s *state, ref db.TxRef) (*models.Transaction, error) {
	if ref.IsZero() {
		return nil, common.ErrTransactionNotFound
	}
	for i := range s.transactions {
		if ref.Matches(&s.transactions[i]) {
			t := s.transactions[i]
			return &t, nil
		}
	}
	return nil, common.ErrTransactionNotFound
}

var _ db.Store = (*Store)(nil)
