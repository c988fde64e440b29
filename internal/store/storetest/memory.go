// Package storetest provides an in-memory store.Store for unit tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/carbonledger/internal/store"
	"github.com/kiranshivaraju/carbonledger/pkg/models"
	"github.com/shopspring/decimal"
)

// Memory is a map-backed store.Store. Set Err to make every call fail.
type Memory struct {
	mu sync.Mutex

	Err error

	Orgs       map[uuid.UUID]*models.Organization
	Profiles   map[uuid.UUID]*models.Profile
	Keys       []*models.APIKey
	Categories []*models.EmissionCategory
	Factors    []*models.EmissionFactor
	Entries    []*models.ActivityEntry

	Calls map[string]int
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		Orgs:     make(map[uuid.UUID]*models.Organization),
		Profiles: make(map[uuid.UUID]*models.Profile),
		Calls:    make(map[string]int),
	}
}

func (m *Memory) begin(name string) error {
	m.mu.Lock()
	m.Calls[name]++
	return m.Err
}

// CallCount returns how many times the named method ran.
func (m *Memory) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[name]
}

// AddCategory seeds a category and returns it.
func (m *Memory) AddCategory(name, scope string) *models.EmissionCategory {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &models.EmissionCategory{ID: uuid.New(), Name: name, ScopeType: scope, CreatedAt: time.Now()}
	m.Categories = append(m.Categories, c)
	return c
}

// AddFactor seeds a factor and returns it. category may be nil.
func (m *Memory) AddFactor(name, unit, co2 string, category *models.EmissionCategory) *models.EmissionFactor {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := &models.EmissionFactor{ID: uuid.New(), Name: name, Unit: unit, CO2Factor: decimal.RequireFromString(co2), CreatedAt: time.Now()}
	if category != nil {
		id := category.ID
		f.CategoryID = &id
	}
	m.Factors = append(m.Factors, f)
	return f
}

func (m *Memory) Ping(_ context.Context) error {
	defer m.mu.Unlock()
	return m.begin("Ping")
}

func (m *Memory) CreateOrganization(_ context.Context, org *models.Organization) error {
	defer m.mu.Unlock()
	if err := m.begin("CreateOrganization"); err != nil {
		return err
	}
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	org.CreatedAt = time.Now()
	cp := *org
	m.Orgs[org.ID] = &cp
	return nil
}

func (m *Memory) GetProfile(_ context.Context, userID uuid.UUID) (*models.Profile, error) {
	defer m.mu.Unlock()
	if err := m.begin("GetProfile"); err != nil {
		return nil, err
	}
	p, ok := m.Profiles[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) GetAPIKeyByHash(_ context.Context, hash string) (*models.APIKey, error) {
	defer m.mu.Unlock()
	if err := m.begin("GetAPIKeyByHash"); err != nil {
		return nil, err
	}
	for _, k := range m.Keys {
		if k.KeyHash == hash && k.RevokedAt == nil {
			cp := *k
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Memory) GetLatestAPIKeyForUser(_ context.Context, userID uuid.UUID) (*models.APIKey, error) {
	defer m.mu.Unlock()
	if err := m.begin("GetLatestAPIKeyForUser"); err != nil {
		return nil, err
	}
	var latest *models.APIKey
	for _, k := range m.Keys {
		if k.UserID == nil || *k.UserID != userID || k.RevokedAt != nil {
			continue
		}
		if latest == nil || k.CreatedAt.After(latest.CreatedAt) {
			latest = k
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *Memory) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	defer m.mu.Unlock()
	if err := m.begin("CreateAPIKey"); err != nil {
		return err
	}
	for _, k := range m.Keys {
		if k.KeyHash == key.KeyHash {
			return store.ErrDuplicateKey
		}
	}
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now()
	}
	cp := *key
	m.Keys = append(m.Keys, &cp)
	return nil
}

func (m *Memory) ListAPIKeys(_ context.Context, orgID uuid.UUID) ([]*models.APIKey, error) {
	defer m.mu.Unlock()
	if err := m.begin("ListAPIKeys"); err != nil {
		return nil, err
	}
	var out []*models.APIKey
	for _, k := range m.Keys {
		if k.OrgID == orgID && k.RevokedAt == nil {
			cp := *k
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) RevokeAPIKey(_ context.Context, id uuid.UUID, orgID uuid.UUID) error {
	defer m.mu.Unlock()
	if err := m.begin("RevokeAPIKey"); err != nil {
		return err
	}
	for _, k := range m.Keys {
		if k.ID == id && k.OrgID == orgID && k.RevokedAt == nil {
			now := time.Now()
			k.RevokedAt = &now
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *Memory) ListEmissionCategories(_ context.Context) ([]*models.EmissionCategory, error) {
	defer m.mu.Unlock()
	if err := m.begin("ListEmissionCategories"); err != nil {
		return nil, err
	}
	out := make([]*models.EmissionCategory, 0, len(m.Categories))
	for _, c := range m.Categories {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) ListEmissionFactors(_ context.Context) ([]*models.EmissionFactor, error) {
	defer m.mu.Unlock()
	if err := m.begin("ListEmissionFactors"); err != nil {
		return nil, err
	}
	out := make([]*models.EmissionFactor, 0, len(m.Factors))
	for _, f := range m.Factors {
		cp := *f
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) GetEmissionFactor(_ context.Context, id uuid.UUID) (*models.EmissionFactor, error) {
	defer m.mu.Unlock()
	if err := m.begin("GetEmissionFactor"); err != nil {
		return nil, err
	}
	if f := m.factor(id); f != nil {
		cp := *f
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (m *Memory) UpsertEmissionCategory(_ context.Context, c *models.EmissionCategory) error {
	defer m.mu.Unlock()
	if err := m.begin("UpsertEmissionCategory"); err != nil {
		return err
	}
	for _, existing := range m.Categories {
		if existing.Name == c.Name {
			existing.ScopeType = c.ScopeType
			c.ID, c.CreatedAt = existing.ID, existing.CreatedAt
			return nil
		}
	}
	c.ID, c.CreatedAt = uuid.New(), time.Now()
	cp := *c
	m.Categories = append(m.Categories, &cp)
	return nil
}

func (m *Memory) UpsertEmissionFactor(_ context.Context, f *models.EmissionFactor) error {
	defer m.mu.Unlock()
	if err := m.begin("UpsertEmissionFactor"); err != nil {
		return err
	}
	for _, existing := range m.Factors {
		if existing.Name == f.Name {
			existing.Unit, existing.CO2Factor, existing.CategoryID = f.Unit, f.CO2Factor, f.CategoryID
			f.ID, f.CreatedAt = existing.ID, existing.CreatedAt
			return nil
		}
	}
	f.ID, f.CreatedAt = uuid.New(), time.Now()
	cp := *f
	m.Factors = append(m.Factors, &cp)
	return nil
}

func (m *Memory) CreateActivityEntry(_ context.Context, entry *models.ActivityEntry) error {
	defer m.mu.Unlock()
	if err := m.begin("CreateActivityEntry"); err != nil {
		return err
	}
	if m.factor(entry.FactorID) == nil {
		return store.ErrNotFound
	}
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	cp := *entry
	m.Entries = append(m.Entries, &cp)
	return nil
}

func (m *Memory) ListActivityEntries(_ context.Context, filter store.EntryFilter) ([]*models.ActivityEntryDetail, error) {
	defer m.mu.Unlock()
	if err := m.begin("ListActivityEntries"); err != nil {
		return nil, err
	}
	var out []*models.ActivityEntryDetail
	for _, e := range m.Entries {
		if e.OrgID != filter.OrgID {
			continue
		}
		if filter.From != nil && e.StartDate.Before(filter.From.Time) {
			continue
		}
		if filter.To != nil && e.EndDate.After(filter.To.Time) {
			continue
		}
		d := &models.ActivityEntryDetail{ActivityEntry: *e}
		if f := m.factor(e.FactorID); f != nil {
			d.Factor = &models.EntryFactor{Name: f.Name, Unit: f.Unit}
			if f.CategoryID != nil {
				if c := m.category(*f.CategoryID); c != nil {
					d.Factor.ScopeType = c.ScopeType
				}
			}
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *Memory) DeleteActivityEntry(_ context.Context, id uuid.UUID, orgID uuid.UUID) (int64, error) {
	defer m.mu.Unlock()
	if err := m.begin("DeleteActivityEntry"); err != nil {
		return 0, err
	}
	for i, e := range m.Entries {
		if e.ID == id && e.OrgID == orgID {
			m.Entries = append(m.Entries[:i], m.Entries[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (m *Memory) factor(id uuid.UUID) *models.EmissionFactor {
	for _, f := range m.Factors {
		if f.ID == id {
			return f
		}
	}
	return nil
}

func (m *Memory) category(id uuid.UUID) *models.EmissionCategory {
	for _, c := range m.Categories {
		if c.ID == id {
			return c
		}
	}
	return nil
}

var _ store.Store = (*Memory)(nil)
