package kpi

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"kpitracker/internal/domain/directory"
)

// memStore is an in-memory StoreAPI used by the package tests.
type memStore struct {
	mu          sync.Mutex
	kpis        map[string]KPI
	assignments map[string]Assignment
	reports     map[string]Report
	entries     map[string]Entry
	actions     []Action
	now         time.Time
}

func newMemStore() *memStore {
	return &memStore{
		kpis:        make(map[string]KPI),
		assignments: make(map[string]Assignment),
		reports:     make(map[string]Report),
		entries:     make(map[string]Entry),
		now:         time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.now = m.now.Add(time.Second)
	return m.now
}

func pageSlice[T any](items []T, p Page) []T {
	if p.Offset > 0 {
		if p.Offset >= len(items) {
			return nil
		}
		items = items[p.Offset:]
	}
	if p.Limit > 0 && len(items) > p.Limit {
		items = items[:p.Limit]
	}
	return items
}

func (m *memStore) CreateKPI(_ context.Context, k *KPI) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	k.CreatedAt = m.tick()
	k.UpdatedAt = k.CreatedAt
	m.kpis[k.ID] = *k
	return nil
}

func (m *memStore) GetKPI(_ context.Context, id string) (KPI, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.kpis[id]
	if !ok {
		return KPI{}, ErrNotFound
	}
	return k, nil
}

func (m *memStore) UpdateKPI(_ context.Context, k *KPI) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.kpis[k.ID]; !ok {
		return ErrNotFound
	}
	k.UpdatedAt = m.tick()
	m.kpis[k.ID] = *k
	return nil
}

func (m *memStore) DeactivateKPI(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.kpis[id]
	if !ok {
		return ErrNotFound
	}
	k.IsActive = false
	m.kpis[id] = k
	return nil
}

func (m *memStore) ListKPIs(_ context.Context, filter KPIFilter) ([]KPI, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []KPI
	for _, k := range m.kpis {
		if filter.OrganizationID != "" && k.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.SourceType != "" && k.SourceType != filter.SourceType {
			continue
		}
		if filter.IsActive != nil && k.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return pageSlice(out, filter.Page), nil
}

func (m *memStore) KPIHasEntries(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.KPIID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateAssignment(_ context.Context, a *Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	for _, existing := range m.assignments {
		if existing.KPIID != a.KPIID || !existing.IsActive {
			continue
		}
		if a.RoleID != nil && existing.RoleID != nil && *existing.RoleID == *a.RoleID {
			return ErrDuplicate
		}
		if a.UserID != nil && existing.UserID != nil && *existing.UserID == *a.UserID {
			return ErrDuplicate
		}
	}
	a.CreatedAt = m.tick()
	a.UpdatedAt = a.CreatedAt
	m.assignments[a.ID] = *a
	return nil
}

func (m *memStore) GetAssignment(_ context.Context, id string) (Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return Assignment{}, ErrNotFound
	}
	return a, nil
}

func (m *memStore) ListAssignments(_ context.Context, filter AssignmentFilter) ([]Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Assignment
	for _, a := range m.assignments {
		if filter.KPIID != "" && a.KPIID != filter.KPIID {
			continue
		}
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.IsActive != nil && a.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return pageSlice(out, filter.Page), nil
}

func (m *memStore) DeactivateAssignment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return ErrNotFound
	}
	a.IsActive = false
	m.assignments[id] = a
	return nil
}

func (m *memStore) CreateReport(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	for _, existing := range m.reports {
		if existing.AssignmentID == r.AssignmentID &&
			existing.PeriodStart.Equal(r.PeriodStart) && existing.PeriodEnd.Equal(r.PeriodEnd) {
			return ErrDuplicate
		}
	}
	r.CreatedAt = m.tick()
	r.UpdatedAt = r.CreatedAt
	m.reports[r.ID] = *r
	return nil
}

func (m *memStore) GetReport(_ context.Context, id string) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return Report{}, ErrNotFound
	}
	return r, nil
}

func (m *memStore) UpdateReport(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[r.ID]; !ok {
		return ErrNotFound
	}
	r.UpdatedAt = m.tick()
	m.reports[r.ID] = *r
	return nil
}

func (m *memStore) DeleteReport(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[id]; !ok {
		return ErrNotFound
	}
	delete(m.reports, id)
	return nil
}

func (m *memStore) ListReports(_ context.Context, filter ReportFilter) ([]Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Report
	for _, r := range m.reports {
		if filter.KPIID != "" && r.KPIID != filter.KPIID {
			continue
		}
		if filter.AssignmentID != "" && r.AssignmentID != filter.AssignmentID {
			continue
		}
		if filter.ReportedBy != "" && r.ReportedBy != filter.ReportedBy {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return pageSlice(out, filter.Page), nil
}

func (m *memStore) ReportExists(_ context.Context, assignmentID string, periodStart, periodEnd time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reports {
		if r.AssignmentID == assignmentID && r.PeriodStart.Equal(periodStart) && r.PeriodEnd.Equal(periodEnd) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ApprovedReports(_ context.Context, kpiID string, periodStart, periodEnd time.Time) ([]Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Report
	for _, r := range m.reports {
		if r.KPIID == kpiID && r.Status == StatusApproved &&
			r.PeriodStart.Equal(periodStart) && r.PeriodEnd.Equal(periodEnd) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) UpsertEntry(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.entries {
		if existing.KPIID == e.KPIID &&
			existing.PeriodStart.Equal(e.PeriodStart) && existing.PeriodEnd.Equal(e.PeriodEnd) {
			e.ID = id
			e.CreatedAt = existing.CreatedAt
			e.UpdatedAt = m.tick()
			m.entries[id] = *e
			return nil
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = m.tick()
	e.UpdatedAt = e.CreatedAt
	m.entries[e.ID] = *e
	return nil
}

func (m *memStore) GetEntry(_ context.Context, id string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (m *memStore) EntryForPeriod(_ context.Context, kpiID string, periodStart, periodEnd time.Time) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.KPIID == kpiID && e.PeriodStart.Equal(periodStart) && e.PeriodEnd.Equal(periodEnd) {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

func (m *memStore) ListEntries(_ context.Context, filter EntryFilter) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if filter.KPIID != "" && e.KPIID != filter.KPIID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.Before(out[j].PeriodStart) })
	return pageSlice(out, filter.Page), nil
}

func (m *memStore) EntriesForKPI(_ context.Context, kpiID string) ([]Entry, error) {
	return m.ListEntries(context.Background(), EntryFilter{KPIID: kpiID})
}

func (m *memStore) CreateAction(_ context.Context, a *Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = m.tick()
	m.actions = append(m.actions, *a)
	return nil
}

func (m *memStore) ListActions(_ context.Context, filter ActionFilter) ([]Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Action
	for _, a := range m.actions {
		if filter.KPIID != "" && a.KPIID != filter.KPIID {
			continue
		}
		if filter.UserID != "" && a.UserID != filter.UserID {
			continue
		}
		if filter.ActionType != "" && a.ActionType != filter.ActionType {
			continue
		}
		out = append(out, a)
	}
	return pageSlice(out, filter.Page), nil
}

func (m *memStore) CountActions(_ context.Context, kpiID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, a := range m.actions {
		if a.KPIID == kpiID {
			count++
		}
	}
	return count, nil
}

// memDirectory is an in-memory UserDirectory for resolver tests.
type memDirectory struct {
	users map[string]directory.User
}

func newMemDirectory(users ...directory.User) *memDirectory {
	d := &memDirectory{users: make(map[string]directory.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *memDirectory) UsersWithRole(_ context.Context, roleID string) ([]directory.User, error) {
	var out []directory.User
	for _, u := range d.users {
		if u.RoleID == roleID && u.IsActive {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (d *memDirectory) UserByID(_ context.Context, id string) (directory.User, error) {
	u, ok := d.users[id]
	if !ok {
		return directory.User{}, directory.ErrUserNotFound
	}
	return u, nil
}
