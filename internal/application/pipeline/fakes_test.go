package pipelineapp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/scout/backend/internal/domain/pipeline"
	"github.com/scout/backend/internal/domain/shared"
)

// memStore is an in-memory deal and account store enforcing the same
// uniqueness and version rules as the database.
type memStore struct {
	mu       sync.Mutex
	deals    map[uuid.UUID]*pipeline.Deal
	accounts map[string]*pipeline.Account

	// failures keyed by deal or account name
	failWrite map[string]error
	// called before every write with the deal or account name
	beforeWrite func(name string)
	// roundAmounts stores amounts at two places like the DECIMAL(18,2) columns
	roundAmounts bool
}

func newMemStore() *memStore {
	return &memStore{
		deals:     make(map[uuid.UUID]*pipeline.Deal),
		accounts:  make(map[string]*pipeline.Account),
		failWrite: make(map[string]error),
	}
}

func copyDeal(d *pipeline.Deal) *pipeline.Deal {
	out := &pipeline.Deal{
		DealSnapshot: d.Snapshot(),
		AccountID:    d.AccountID,
	}
	out.BaseEntity = d.BaseEntity
	out.Version = d.Version
	if d.ConfirmedValue != nil {
		v := *d.ConfirmedValue
		out.ConfirmedValue = &v
	}
	return out
}

func copyAccount(a *pipeline.Account) *pipeline.Account {
	out := &pipeline.Account{Name: a.Name, AccountType: a.AccountType}
	out.BaseEntity = a.BaseEntity
	out.Version = a.Version
	out.Vertical = clone(a.Vertical)
	out.SalesManager = clone(a.SalesManager)
	out.AccountManager = clone(a.AccountManager)
	return out
}

func clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// stored is the copy of d the store keeps. Callers hold s.mu.
func (s *memStore) stored(d *pipeline.Deal) *pipeline.Deal {
	out := copyDeal(d)
	if s.roundAmounts {
		out.Value = roundColumn(out.Value)
		out.WeightedValue = roundColumn(out.WeightedValue)
		out.ConfirmedValue = roundColumn(out.ConfirmedValue)
	}
	return out
}

func roundColumn(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := d.Round(2)
	return &v
}

func (s *memStore) write(name string) error {
	s.mu.Lock()
	hook := s.beforeWrite
	err := s.failWrite[name]
	s.mu.Unlock()
	if hook != nil {
		hook(name)
	}
	return err
}

// seed stores a deal directly, creating its account if needed.
func (s *memStore) seed(d *pipeline.Deal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deals[d.ID] = copyDeal(d)
	key := pipeline.NormalizeName(d.AccountName)
	if _, ok := s.accounts[key]; !ok {
		s.accounts[key] = &pipeline.Account{
			BaseAggregateRoot: shared.NewBaseAggregateRoot(),
			Name:              d.AccountName,
			AccountType:       pipeline.AccountTypeProspect,
		}
	}
}

func (s *memStore) get(id uuid.UUID) *pipeline.Deal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.deals[id]; ok {
		return copyDeal(d)
	}
	return nil
}

func (s *memStore) byName(name string) *pipeline.Deal {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.deals {
		if d.DealName == name {
			return copyDeal(d)
		}
	}
	return nil
}

func (s *memStore) account(name string) *pipeline.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[pipeline.NormalizeName(name)]; ok {
		return copyAccount(a)
	}
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deals)
}

type memDeals struct{ *memStore }

func (r memDeals) FindAll(_ context.Context) ([]*pipeline.Deal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*pipeline.Deal, 0, len(r.deals))
	for _, d := range r.deals {
		out = append(out, copyDeal(d))
	}
	return out, nil
}

func (r memDeals) FindByID(_ context.Context, id uuid.UUID) (*pipeline.Deal, error) {
	if d := r.get(id); d != nil {
		return d, nil
	}
	return nil, shared.ErrNotFound
}

func (r memDeals) FindByMatchKey(_ context.Context, key string) (*pipeline.Deal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.deals {
		if d.MatchKey() == key {
			return copyDeal(d), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r memDeals) Create(_ context.Context, d *pipeline.Deal) error {
	if err := r.write(d.DealName); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.deals {
		if existing.MatchKey() == d.MatchKey() {
			return shared.ErrAlreadyExists
		}
	}
	r.deals[d.ID] = r.stored(d)
	return nil
}

func (r memDeals) SaveWithLock(_ context.Context, d *pipeline.Deal) error {
	if err := r.write(d.DealName); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.deals[d.ID]
	if !ok || stored.Version != d.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.deals[d.ID] = r.stored(d)
	return nil
}

func (r memDeals) Delete(_ context.Context, id uuid.UUID) error {
	d := r.get(id)
	if d == nil {
		return shared.ErrNotFound
	}
	if err := r.write(d.DealName); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.deals, id)
	return nil
}

type memAccounts struct{ *memStore }

func (r memAccounts) FindByName(_ context.Context, name string) (*pipeline.Account, error) {
	if a := r.account(name); a != nil {
		return a, nil
	}
	return nil, shared.ErrNotFound
}

func (r memAccounts) Create(_ context.Context, a *pipeline.Account) error {
	if err := r.write(a.Name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[a.NameKey()]; ok {
		return shared.ErrAlreadyExists
	}
	r.accounts[a.NameKey()] = copyAccount(a)
	return nil
}

func (r memAccounts) SaveWithLock(_ context.Context, a *pipeline.Account) error {
	if err := r.write(a.Name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.accounts[a.NameKey()]
	if !ok || stored.Version != a.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.accounts[a.NameKey()] = copyAccount(a)
	return nil
}

// MockEventPublisher is a testify mock of shared.EventPublisher.
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// MockDealRepository is a testify mock of pipeline.DealRepository.
type MockDealRepository struct {
	mock.Mock
}

func (m *MockDealRepository) FindAll(ctx context.Context) ([]*pipeline.Deal, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*pipeline.Deal), args.Error(1)
}

func (m *MockDealRepository) FindByID(ctx context.Context, id uuid.UUID) (*pipeline.Deal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.Deal), args.Error(1)
}

func (m *MockDealRepository) FindByMatchKey(ctx context.Context, key string) (*pipeline.Deal, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.Deal), args.Error(1)
}

func (m *MockDealRepository) Create(ctx context.Context, d *pipeline.Deal) error {
	return m.Called(ctx, d).Error(0)
}

func (m *MockDealRepository) SaveWithLock(ctx context.Context, d *pipeline.Deal) error {
	return m.Called(ctx, d).Error(0)
}

func (m *MockDealRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

// memSessions is a map-backed preview store.
type memSessions struct {
	mu       sync.Mutex
	previews map[uuid.UUID]*pipeline.Preview
}

func newMemSessions() *memSessions {
	return &memSessions{previews: make(map[uuid.UUID]*pipeline.Preview)}
}

func (s *memSessions) Save(_ context.Context, p *pipeline.Preview, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previews[p.ID] = p
	return nil
}

func (s *memSessions) Get(_ context.Context, id uuid.UUID) (*pipeline.Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.previews[id]; ok {
		return p, nil
	}
	return nil, shared.ErrNotFound
}

func (s *memSessions) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.previews, id)
	return nil
}

// busyLocker always reports the lock as taken.
type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) (func(context.Context) error, error) {
	return nil, shared.ErrApplyInProgress
}

// countingLocker grants the lock and counts releases.
type countingLocker struct {
	mu       sync.Mutex
	acquired int
	released int
}

func (l *countingLocker) Acquire(context.Context, string) (func(context.Context) error, error) {
	l.mu.Lock()
	l.acquired++
	l.mu.Unlock()
	return func(context.Context) error {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
		return nil
	}, nil
}
