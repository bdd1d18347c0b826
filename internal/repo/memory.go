package repo

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/widget-chat-backend/internal/domain"
)

// MemoryOptions configures a MemoryStore.
type MemoryOptions struct {
	MessageLogCap int // most recent log rows kept across all accounts; default 1000
	Degraded      bool
	Reason        string
}

// MemoryStore is the in-process Store. It is built once at startup and
// injected like any other backend; its contents live as long as the process.
//
// One mutex guards all maps. Critical sections never do I/O, and every
// value handed out is a copy, so callers cannot mutate stored state.
// Session appends and ends also take a per-session lock so transcript work
// for one session never waits on another.
type MemoryStore struct {
	mu    sync.RWMutex
	locks *keyLock

	accounts map[string]*domain.Account
	byEmail  map[string]string
	byAPIKey map[string]string

	sessions map[string]*domain.ChatSession // internal id -> record
	active   map[string]string              // session id -> internal id of the active record

	logs   []domain.MessageLog
	logCap int

	subs      map[string]*domain.SubscriptionRecord
	subsByExt map[string]string
	idem      map[string]*domain.Idempotency
	status    BackendStatus
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore(opts MemoryOptions) *MemoryStore {
	if opts.MessageLogCap <= 0 {
		opts.MessageLogCap = 1000
	}
	return &MemoryStore{
		locks:     newKeyLock(),
		accounts:  make(map[string]*domain.Account),
		byEmail:   make(map[string]string),
		byAPIKey:  make(map[string]string),
		sessions:  make(map[string]*domain.ChatSession),
		active:    make(map[string]string),
		logCap:    opts.MessageLogCap,
		subs:      make(map[string]*domain.SubscriptionRecord),
		subsByExt: make(map[string]string),
		idem:      make(map[string]*domain.Idempotency),
		status:    BackendStatus{Kind: KindMemory, Degraded: opts.Degraded, Reason: opts.Reason},
	}
}

// Backend reports the memory kind and whether it was chosen as a fallback.
func (m *MemoryStore) Backend() BackendStatus { return m.status }

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op; contents are dropped with the process.
func (m *MemoryStore) Close() error { return nil }

// ---- accounts ----

func copyAccount(a *domain.Account) *domain.Account {
	c := *a
	if a.APIKey != nil {
		k := *a.APIKey
		c.APIKey = &k
	}
	if a.LastLoginAt != nil {
		t := *a.LastLoginAt
		c.LastLoginAt = &t
	}
	if a.Widget.Branding != nil {
		b := *a.Widget.Branding
		c.Widget.Branding = &b
	}
	return &c
}

// CreateAccount inserts a copy of a, enforcing unique email and API key.
func (m *MemoryStore) CreateAccount(_ context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a.Email = domain.NormalizeEmail(a.Email)
	if _, taken := m.byEmail[a.Email]; taken {
		return ErrDuplicate
	}
	if k := a.Key(); k != "" {
		if _, taken := m.byAPIKey[k]; taken {
			return ErrDuplicate
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, taken := m.accounts[a.ID]; taken {
		return ErrDuplicate
	}
	now := domain.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	m.accounts[a.ID] = copyAccount(a)
	m.byEmail[a.Email] = a.ID
	if k := a.Key(); k != "" {
		m.byAPIKey[k] = a.ID
	}
	return nil
}

func (m *MemoryStore) accountByID(id string) (*domain.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAccount(a), nil
}

// FindAccountByID fetches an account by id.
func (m *MemoryStore) FindAccountByID(_ context.Context, id string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountByID(id)
}

// FindAccountByEmail matches emails case-insensitively.
func (m *MemoryStore) FindAccountByEmail(_ context.Context, email string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return m.accountByID(id)
}

// FindAccountByAPIKey fetches the account owning key.
func (m *MemoryStore) FindAccountByAPIKey(_ context.Context, key string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byAPIKey[key]
	if !ok || key == "" {
		return nil, ErrNotFound
	}
	return m.accountByID(id)
}

// UpdateAccount writes every mutable field except the usage counters.
func (m *MemoryStore) UpdateAccount(_ context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.accounts[a.ID]
	if !ok {
		return ErrNotFound
	}
	email := domain.NormalizeEmail(a.Email)
	if id, taken := m.byEmail[email]; taken && id != a.ID {
		return ErrDuplicate
	}
	newKey := a.Key()
	if newKey != "" {
		if id, taken := m.byAPIKey[newKey]; taken && id != a.ID {
			return ErrDuplicate
		}
	}

	delete(m.byEmail, cur.Email)
	if k := cur.Key(); k != "" {
		delete(m.byAPIKey, k)
	}

	next := copyAccount(a)
	next.Email = email
	next.Usage = cur.Usage
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = domain.Now()
	a.UpdatedAt = next.UpdatedAt

	m.accounts[a.ID] = next
	m.byEmail[email] = a.ID
	if newKey != "" {
		m.byAPIKey[newKey] = a.ID
	}
	return nil
}

// ListAccounts returns accounts newest first.
func (m *MemoryStore) ListAccounts(_ context.Context, offset, limit int) ([]domain.Account, error) {
	offset, limit = clampPage(offset, limit)
	m.mu.RLock()
	all := make([]domain.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		all = append(all, *copyAccount(a))
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, offset, limit), nil
}

// CountAccounts returns the number of accounts.
func (m *MemoryStore) CountAccounts(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.accounts)), nil
}

// AccountTotals counts accounts and lifetime messages per plan.
func (m *MemoryStore) AccountTotals(context.Context) (domain.AccountTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byPlan := map[string]int64{}
	t := domain.AccountTotals{ByPlan: []domain.PlanCount{}}
	for _, a := range m.accounts {
		t.Accounts++
		t.TotalMessages += a.Usage.TotalMessages
		byPlan[a.Subscription.Plan]++
	}
	for _, p := range sortedKeys(byPlan) {
		t.ByPlan = append(t.ByPlan, domain.PlanCount{Plan: p, Count: byPlan[p]})
	}
	return t, nil
}

// IncrementUsage adds one message to both usage counters.
func (m *MemoryStore) IncrementUsage(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	a.Usage.MessagesThisMonth++
	a.Usage.TotalMessages++
	a.UpdatedAt = domain.Now()
	return nil
}

// ResetMonthlyUsage zeroes the monthly counter and stamps the reset date.
func (m *MemoryStore) ResetMonthlyUsage(_ context.Context, accountID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	a.Usage.MessagesThisMonth = 0
	a.Usage.LastResetDate = domain.Normalize(at)
	a.UpdatedAt = domain.Now()
	return nil
}

func page[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return []T{}
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

// ---- message logs ----

// InsertMessageLog appends a row, dropping the oldest beyond the cap.
func (m *MemoryStore) InsertMessageLog(_ context.Context, l *domain.MessageLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = domain.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *l)
	if over := len(m.logs) - m.logCap; over > 0 {
		m.logs = append(m.logs[:0:0], m.logs[over:]...)
	}
	return nil
}

func inRange(t time.Time, r TimeRange) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// CountMessageLogs counts retained rows for an account within r.
func (m *MemoryStore) CountMessageLogs(_ context.Context, accountID string, r TimeRange) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, l := range m.logs {
		if l.AccountID == accountID && inRange(l.Timestamp, r) {
			n++
		}
	}
	return n, nil
}

// ListMessageLogs returns the account's most recent retained rows, newest first.
func (m *MemoryStore) ListMessageLogs(_ context.Context, accountID string, limit int) ([]domain.MessageLog, error) {
	_, limit = clampPage(0, limit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.MessageLog, 0, limit)
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.logs[i].AccountID == accountID {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

// ---- subscriptions ----

// CreateSubscriptionRecord inserts a copy of rec.
func (m *MemoryStore) CreateSubscriptionRecord(_ context.Context, rec *domain.SubscriptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.subsByExt[rec.ExternalID]; taken {
		return ErrDuplicate
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := domain.Now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	c := *rec
	m.subs[rec.ID] = &c
	m.subsByExt[rec.ExternalID] = rec.ID
	return nil
}

// FindSubscriptionByExternalID fetches a record by the processor's id.
func (m *MemoryStore) FindSubscriptionByExternalID(_ context.Context, externalID string) (*domain.SubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.subsByExt[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *m.subs[id]
	return &c, nil
}

// UpdateSubscriptionRecord replaces the stored record with rec.
func (m *MemoryStore) UpdateSubscriptionRecord(_ context.Context, rec *domain.SubscriptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.subs[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if rec.ExternalID != cur.ExternalID {
		if _, taken := m.subsByExt[rec.ExternalID]; taken {
			return ErrDuplicate
		}
		delete(m.subsByExt, cur.ExternalID)
		m.subsByExt[rec.ExternalID] = rec.ID
	}
	rec.CreatedAt = cur.CreatedAt
	rec.UpdatedAt = domain.Now()
	c := *rec
	m.subs[rec.ID] = &c
	return nil
}

// SubscriptionTotals aggregates billable records by plan and currency.
func (m *MemoryStore) SubscriptionTotals(context.Context) (domain.SubscriptionTotals, error) {
	m.mu.RLock()
	rows := make([]revenueRow, 0, len(m.subs))
	for _, rec := range m.subs {
		if !slices.Contains(billableStatuses, rec.Status) {
			continue
		}
		rows = append(rows, revenueRow{Plan: rec.Plan, Interval: rec.Interval, Currency: rec.Currency, N: 1, Amount: rec.Amount})
	}
	m.mu.RUnlock()
	return foldRevenue(rows), nil
}

// ---- idempotency ----

func idemKey(accountID, sessionID, key string) string {
	return accountID + "\x00" + sessionID + "\x00" + key
}

// FindIdempotency returns a non-expired record or ErrNotFound.
func (m *MemoryStore) FindIdempotency(_ context.Context, accountID, sessionID, key string, now time.Time) (*domain.Idempotency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.idem[idemKey(accountID, sessionID, key)]
	if !ok || !rec.ExpiresAt.After(now) {
		return nil, ErrNotFound
	}
	c := *rec
	return &c, nil
}

// SaveIdempotency inserts rec unless a live record holds the same key.
func (m *MemoryStore) SaveIdempotency(_ context.Context, rec *domain.Idempotency) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := idemKey(rec.AccountID, rec.SessionID, rec.Key)
	now := domain.Now()
	if cur, ok := m.idem[k]; ok && cur.ExpiresAt.After(now) {
		return ErrDuplicate
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = now
	c := *rec
	m.idem[k] = &c
	return nil
}
