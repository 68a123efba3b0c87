package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/papertrade/trading-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for account and holdings snapshots — the two reads the dashboard
// hammers. Ledger queries are paginated and filtered, so they always go to
// the primary. Trade commits and corrections invalidate the cache.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(id)).Bytes()
	if err == nil {
		var a model.Account
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, accountKey(id), data, s.ttl)
	}
	return a, nil
}

func (s *CachedStore) ListHoldings(ctx context.Context, accountID string) ([]model.Holding, error) {
	data, err := s.rdb.Get(ctx, holdingsKey(accountID)).Bytes()
	if err == nil {
		var holdings []model.Holding
		if json.Unmarshal(data, &holdings) == nil {
			return holdings, nil
		}
	}

	holdings, err := s.primary.ListHoldings(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(holdings); err == nil {
		s.rdb.Set(ctx, holdingsKey(accountID), data, s.ttl)
	}
	return holdings, nil
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.CreateAccount(ctx, a); err != nil {
		return err
	}
	s.rdb.Del(ctx, accountKey(a.ID))
	return nil
}

func (s *CachedStore) UpdateNote(ctx context.Context, accountID, entryID, note string) error {
	return s.primary.UpdateNote(ctx, accountID, entryID, note)
}

func (s *CachedStore) DeleteEntry(ctx context.Context, accountID, entryID string) error {
	return s.primary.DeleteEntry(ctx, accountID, entryID)
}

func (s *CachedStore) DeleteAllEntries(ctx context.Context, accountID string) (int64, error) {
	return s.primary.DeleteAllEntries(ctx, accountID)
}

// --- Passthrough (not cached) ---

func (s *CachedStore) QueryLedger(ctx context.Context, accountID string, q LedgerQuery) ([]model.LedgerEntry, int64, error) {
	return s.primary.QueryLedger(ctx, accountID, q)
}

// BeginTrade delegates to the primary; the returned transaction
// invalidates this account's cached snapshot once it commits.
func (s *CachedStore) BeginTrade(ctx context.Context, accountID string) (TradeTx, error) {
	tx, err := s.primary.BeginTrade(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &cachedTradeTx{TradeTx: tx, store: s, accountID: accountID}, nil
}

type cachedTradeTx struct {
	TradeTx
	store     *CachedStore
	accountID string
}

func (t *cachedTradeTx) Commit(ctx context.Context) error {
	if err := t.TradeTx.Commit(ctx); err != nil {
		return err
	}
	t.store.rdb.Del(ctx, accountKey(t.accountID), holdingsKey(t.accountID))
	return nil
}

// --- Cache keys ---

func accountKey(id string) string   { return fmt.Sprintf("account:%s", id) }
func holdingsKey(id string) string  { return fmt.Sprintf("holdings:%s", id) }
