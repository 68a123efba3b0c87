package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
//
// Trade transactions take a per-account mutex, so two trades on the same
// account fully serialize while trades on different accounts proceed in
// parallel — the same guarantee the PostgreSQL store gets from
// serializable isolation.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]model.Account
	holdings map[string]map[string]model.Holding // accountID → symbol → holding
	ledger   []model.LedgerEntry

	acctLocks sync.Map // accountID → *sync.Mutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]model.Account),
		holdings: make(map[string]map[string]model.Holding),
	}
}

func (s *MemoryStore) CreateAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = *a
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) ListHoldings(_ context.Context, accountID string) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Holding
	for _, h := range s.holdings[accountID] {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *MemoryStore) QueryLedger(_ context.Context, accountID string, q LedgerQuery) ([]model.LedgerEntry, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(q.Symbol)
	var matched []model.LedgerEntry
	for _, e := range s.ledger {
		if e.AccountID != accountID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.Symbol), needle) {
			continue
		}
		if q.Side != "" && e.Side != q.Side {
			continue
		}
		matched = append(matched, e)
	}

	sortEntries(matched, q.SortField, q.Ascending)

	total := int64(len(matched))
	if q.Offset >= len(matched) {
		return []model.LedgerEntry{}, total, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}

func sortEntries(entries []model.LedgerEntry, field string, ascending bool) {
	less := func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch field {
		case "symbol":
			if a.Symbol != b.Symbol {
				return a.Symbol < b.Symbol
			}
		case "price":
			if !a.Price.Equal(b.Price) {
				return a.Price.LessThan(b.Price)
			}
		case "quantity":
			if !a.Quantity.Equal(b.Quantity) {
				return a.Quantity.LessThan(b.Quantity)
			}
		case "total":
			if !a.Total.Equal(b.Total) {
				return a.Total.LessThan(b.Total)
			}
		case "realized_pnl":
			ap, bp := decimal.Zero, decimal.Zero
			if a.RealizedPnL != nil {
				ap = *a.RealizedPnL
			}
			if b.RealizedPnL != nil {
				bp = *b.RealizedPnL
			}
			if !ap.Equal(bp) {
				return ap.LessThan(bp)
			}
		}
		// Primary field "created_at" and all tie-breaks.
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	}

	if ascending {
		sort.SliceStable(entries, less)
	} else {
		sort.SliceStable(entries, func(i, j int) bool { return less(j, i) })
	}
}

func (s *MemoryStore) UpdateNote(_ context.Context, accountID, entryID, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.ledger {
		if s.ledger[i].ID == entryID && s.ledger[i].AccountID == accountID {
			s.ledger[i].Note = note
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) DeleteEntry(_ context.Context, accountID, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.ledger {
		if s.ledger[i].ID == entryID && s.ledger[i].AccountID == accountID {
			s.ledger = append(s.ledger[:i], s.ledger[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) DeleteAllEntries(_ context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.ledger[:0]
	var deleted int64
	for _, e := range s.ledger {
		if e.AccountID == accountID {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.ledger = kept
	return deleted, nil
}

func (s *MemoryStore) BeginTrade(_ context.Context, accountID string) (TradeTx, error) {
	lock, _ := s.acctLocks.LoadOrStore(accountID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()

	s.mu.RLock()
	_, ok := s.accounts[accountID]
	s.mu.RUnlock()
	if !ok {
		mu.Unlock()
		return nil, ErrNotFound
	}

	return &memTradeTx{store: s, accountID: accountID, lock: mu}, nil
}

// memTradeTx stages writes and applies them on Commit while holding the
// account lock, so the read-compute-write sequence is serialized per
// account.
type memTradeTx struct {
	store     *MemoryStore
	accountID string
	lock      *sync.Mutex
	done      bool

	balance        *decimal.Decimal
	putHoldings    []model.Holding
	deleteHoldings []string
	entries        []model.LedgerEntry
}

func (t *memTradeTx) Account(_ context.Context) (*model.Account, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	a, ok := t.store.accounts[t.accountID]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (t *memTradeTx) Holding(_ context.Context, symbol string) (*model.Holding, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	h, ok := t.store.holdings[t.accountID][symbol]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (t *memTradeTx) SetBalance(_ context.Context, balance decimal.Decimal) error {
	t.balance = &balance
	return nil
}

func (t *memTradeTx) PutHolding(_ context.Context, h model.Holding) error {
	t.putHoldings = append(t.putHoldings, h)
	return nil
}

func (t *memTradeTx) DeleteHolding(_ context.Context, symbol string) error {
	t.deleteHoldings = append(t.deleteHoldings, symbol)
	return nil
}

func (t *memTradeTx) AppendEntry(_ context.Context, e *model.LedgerEntry) error {
	t.entries = append(t.entries, *e)
	return nil
}

func (t *memTradeTx) Commit(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.lock.Unlock()

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if t.balance != nil {
		a := t.store.accounts[t.accountID]
		a.Balance = *t.balance
		t.store.accounts[t.accountID] = a
	}
	for _, h := range t.putHoldings {
		byID := t.store.holdings[t.accountID]
		if byID == nil {
			byID = make(map[string]model.Holding)
			t.store.holdings[t.accountID] = byID
		}
		byID[h.Symbol] = h
	}
	for _, sym := range t.deleteHoldings {
		delete(t.store.holdings[t.accountID], sym)
	}
	t.store.ledger = append(t.store.ledger, t.entries...)
	return nil
}

func (t *memTradeTx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.lock.Unlock()
	return nil
}

// Snapshot returns a deep copy of the whole store state. Tests use it to
// assert that failed operations leave nothing behind.
type Snapshot struct {
	Accounts map[string]model.Account
	Holdings map[string]map[string]model.Holding
	Ledger   []model.LedgerEntry
}

func (s *MemoryStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Accounts: make(map[string]model.Account, len(s.accounts)),
		Holdings: make(map[string]map[string]model.Holding, len(s.holdings)),
		Ledger:   append([]model.LedgerEntry(nil), s.ledger...),
	}
	for id, a := range s.accounts {
		snap.Accounts[id] = a
	}
	for id, bysym := range s.holdings {
		cp := make(map[string]model.Holding, len(bysym))
		for sym, h := range bysym {
			cp[sym] = h
		}
		snap.Holdings[id] = cp
	}
	return snap
}
