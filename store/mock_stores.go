package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/denusbtw/projecthub-sub000/role"
	"github.com/google/uuid"
)

// snapshotter is implemented by in-memory stores that can take part in a
// MockTxManager transaction. snapshot returns a func restoring the captured state.
type snapshotter interface {
	snapshot() func()
}

// table is the shared in-memory row map behind every mock store.
type table[T any] struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*T
}

func newTable[T any]() table[T] {
	return table[T]{rows: make(map[uuid.UUID]*T)}
}

func (t *table[T]) snapshot() func() {
	t.mu.Lock()
	saved := make(map[uuid.UUID]*T, len(t.rows))
	for id, r := range t.rows {
		cp := *r
		saved[id] = &cp
	}
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		t.rows = saved
		t.mu.Unlock()
	}
}

func (t *table[T]) get(id uuid.UUID) (*T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (t *table[T]) delete(id uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[id]; !ok {
		return ErrNotFound
	}
	delete(t.rows, id)
	return nil
}

// find returns copies of every row matching keep, ordered by less.
func (t *table[T]) find(keep func(*T) bool, less func(a, b *T) bool) []*T {
	t.mu.Lock()
	defer t.mu.Unlock()
	var results []*T
	for _, r := range t.rows {
		if keep(r) {
			cp := *r
			results = append(results, &cp)
		}
	}
	sort.Slice(results, func(i, j int) bool { return less(results[i], results[j]) })
	return results
}

// ---------------------------------------------------------------------------
// MockTxManager
// ---------------------------------------------------------------------------

type mockTxKey struct{}

// MockTxManager serializes transactions over a set of in-memory stores and
// restores their state when fn fails.
type MockTxManager struct {
	mu           sync.Mutex
	participants []snapshotter
}

// NewMockTxManager creates a MockTxManager covering the given stores.
func NewMockTxManager(participants ...snapshotter) *MockTxManager {
	return &MockTxManager{participants: participants}
}

func (m *MockTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(mockTxKey{}) != nil {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	restores := make([]func(), 0, len(m.participants))
	for _, p := range m.participants {
		restores = append(restores, p.snapshot())
	}
	if err := fn(context.WithValue(ctx, mockTxKey{}, true)); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

// NewMockStores wires a complete set of in-memory stores sharing one MockTxManager.
func NewMockStores() Stores {
	users := NewMockUserStore()
	tenants := NewMockTenantStore()
	tenantMembers := NewMockTenantMembershipStore()
	projectMembers := NewMockProjectMembershipStore()
	projects := NewMockProjectStore(projectMembers)
	tasks := NewMockTaskStore()
	comments := NewMockCommentStore()
	attachments := NewMockAttachmentStore()
	audit := NewMockAuditStore()
	return Stores{
		Users:              users,
		Tenants:            tenants,
		TenantMemberships:  tenantMembers,
		Projects:           projects,
		ProjectMemberships: projectMembers,
		Tasks:              tasks,
		Comments:           comments,
		Attachments:        attachments,
		Audit:              audit,
		Tx:                 NewMockTxManager(tenantMembers, projectMembers, projects, audit),
	}
}

// ---------------------------------------------------------------------------
// MockUserStore
// ---------------------------------------------------------------------------

// MockUserStore is an in-memory implementation of UserStore for testing.
type MockUserStore struct {
	table[User]
}

// NewMockUserStore creates a new MockUserStore.
func NewMockUserStore() *MockUserStore {
	return &MockUserStore{table: newTable[User]()}
}

func (s *MockUserStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	for _, existing := range s.rows {
		if existing.Email == u.Email {
			return ErrDuplicate
		}
	}
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	s.rows[u.ID] = &cp
	return nil
}

func (s *MockUserStore) Get(_ context.Context, id uuid.UUID) (*User, error) {
	return s.get(id)
}

func (s *MockUserStore) GetByEmail(_ context.Context, email string) (*User, error) {
	found := s.find(func(u *User) bool { return u.Email == email }, func(a, b *User) bool { return false })
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return found[0], nil
}

func (s *MockUserStore) Update(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[u.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range s.rows {
		if id != u.ID && existing.Email == u.Email {
			return ErrDuplicate
		}
	}
	u.UpdatedAt = time.Now()
	cp := *u
	s.rows[u.ID] = &cp
	return nil
}

// ---------------------------------------------------------------------------
// MockTenantStore
// ---------------------------------------------------------------------------

// MockTenantStore is an in-memory implementation of TenantStore for testing.
type MockTenantStore struct {
	table[Tenant]
}

// NewMockTenantStore creates a new MockTenantStore.
func NewMockTenantStore() *MockTenantStore {
	return &MockTenantStore{table: newTable[Tenant]()}
}

func (s *MockTenantStore) Create(_ context.Context, t *Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	for _, existing := range s.rows {
		if existing.Subdomain == t.Subdomain {
			return ErrDuplicate
		}
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	cp := *t
	s.rows[t.ID] = &cp
	return nil
}

func (s *MockTenantStore) Get(_ context.Context, id uuid.UUID) (*Tenant, error) {
	return s.get(id)
}

func (s *MockTenantStore) GetBySubdomain(_ context.Context, subdomain string) (*Tenant, error) {
	found := s.find(func(t *Tenant) bool { return t.Subdomain == subdomain }, func(a, b *Tenant) bool { return false })
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return found[0], nil
}

func (s *MockTenantStore) Update(_ context.Context, t *Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[t.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range s.rows {
		if id != t.ID && existing.Subdomain == t.Subdomain {
			return ErrDuplicate
		}
	}
	t.UpdatedAt = time.Now()
	cp := *t
	s.rows[t.ID] = &cp
	return nil
}

// ---------------------------------------------------------------------------
// MockTenantMembershipStore
// ---------------------------------------------------------------------------

// MockTenantMembershipStore is an in-memory implementation of TenantMembershipStore for testing.
type MockTenantMembershipStore struct {
	table[TenantMembership]
}

// NewMockTenantMembershipStore creates a new MockTenantMembershipStore.
func NewMockTenantMembershipStore() *MockTenantMembershipStore {
	return &MockTenantMembershipStore{table: newTable[TenantMembership]()}
}

func (s *MockTenantMembershipStore) Create(_ context.Context, m *TenantMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	for _, existing := range s.rows {
		if existing.TenantID == m.TenantID && existing.UserID == m.UserID {
			return ErrDuplicate
		}
	}
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	cp := *m
	s.rows[m.ID] = &cp
	return nil
}

func (s *MockTenantMembershipStore) Get(_ context.Context, id uuid.UUID) (*TenantMembership, error) {
	return s.get(id)
}

func (s *MockTenantMembershipStore) GetForUser(_ context.Context, tenantID, userID uuid.UUID) (*TenantMembership, error) {
	found := s.find(func(m *TenantMembership) bool {
		return m.TenantID == tenantID && m.UserID == userID
	}, func(a, b *TenantMembership) bool { return false })
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return found[0], nil
}

func (s *MockTenantMembershipStore) Update(_ context.Context, m *TenantMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[m.ID]; !ok {
		return ErrNotFound
	}
	m.UpdatedAt = time.Now()
	cp := *m
	s.rows[m.ID] = &cp
	return nil
}

func (s *MockTenantMembershipStore) Delete(_ context.Context, id uuid.UUID) error {
	return s.delete(id)
}

func (s *MockTenantMembershipStore) List(_ context.Context, f TenantMembershipFilter) ([]*TenantMembership, error) {
	results := s.find(func(m *TenantMembership) bool {
		if f.TenantID != nil && m.TenantID != *f.TenantID {
			return false
		}
		if f.UserID != nil && m.UserID != *f.UserID {
			return false
		}
		return f.Role == "" || m.Role == f.Role
	}, func(a, b *TenantMembership) bool { return a.CreatedAt.Before(b.CreatedAt) })
	return applyPagination(results, f.Pagination), nil
}

// ---------------------------------------------------------------------------
// MockProjectStore
// ---------------------------------------------------------------------------

// MockProjectStore is an in-memory implementation of ProjectStore for testing.
type MockProjectStore struct {
	table[Project]
	members *MockProjectMembershipStore
}

// NewMockProjectStore creates a new MockProjectStore. members backs the
// MemberID filter and may be nil.
func NewMockProjectStore(members *MockProjectMembershipStore) *MockProjectStore {
	return &MockProjectStore{table: newTable[Project](), members: members}
}

func (s *MockProjectStore) Create(_ context.Context, p *Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = ProjectStatusPending
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := *p
	s.rows[p.ID] = &cp
	return nil
}

func (s *MockProjectStore) Get(_ context.Context, id uuid.UUID) (*Project, error) {
	return s.get(id)
}

func (s *MockProjectStore) Update(_ context.Context, p *Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[p.ID]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = time.Now()
	cp := *p
	s.rows[p.ID] = &cp
	return nil
}

func (s *MockProjectStore) Delete(_ context.Context, id uuid.UUID) error {
	return s.delete(id)
}

func (s *MockProjectStore) List(ctx context.Context, f ProjectFilter) ([]*Project, error) {
	var memberOf map[uuid.UUID]bool
	if f.MemberID != nil {
		memberOf = map[uuid.UUID]bool{}
		if s.members != nil {
			ms, _ := s.members.List(ctx, ProjectMembershipFilter{UserID: f.MemberID})
			for _, m := range ms {
				memberOf[m.ProjectID] = true
			}
		}
	}
	results := s.find(func(p *Project) bool {
		if f.TenantID != nil && p.TenantID != *f.TenantID {
			return false
		}
		if memberOf != nil && !memberOf[p.ID] {
			return false
		}
		return f.Status == "" || p.Status == f.Status
	}, func(a, b *Project) bool { return a.CreatedAt.Before(b.CreatedAt) })
	return applyPagination(results, f.Pagination), nil
}

func (s *MockProjectStore) ArchiveEnded(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, p := range s.rows {
		if p.Status == ProjectStatusArchived || p.EndDate == nil || !p.EndDate.Before(now) {
			continue
		}
		closed := now
		p.Status = ProjectStatusArchived
		p.CloseDate = &closed
		p.UpdatedAt = now
		n++
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// MockProjectMembershipStore
// ---------------------------------------------------------------------------

// MockProjectMembershipStore is an in-memory implementation of
// ProjectMembershipStore for testing. It enforces the same uniqueness rules as
// the PostgreSQL schema: one membership per (project, user) and one holder per
// singular role.
type MockProjectMembershipStore struct {
	table[ProjectMembership]
}

// NewMockProjectMembershipStore creates a new MockProjectMembershipStore.
func NewMockProjectMembershipStore() *MockProjectMembershipStore {
	return &MockProjectMembershipStore{table: newTable[ProjectMembership]()}
}

// conflict must be called with s.mu held.
func (s *MockProjectMembershipStore) conflict(m *ProjectMembership) error {
	for id, existing := range s.rows {
		if id == m.ID || existing.ProjectID != m.ProjectID {
			continue
		}
		if existing.UserID == m.UserID {
			return ErrAlreadyMember
		}
		if m.Role.Singular() && existing.Role == m.Role {
			return ErrDuplicate
		}
	}
	return nil
}

func (s *MockProjectMembershipStore) Create(_ context.Context, m *ProjectMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if err := s.conflict(m); err != nil {
		return err
	}
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	cp := *m
	s.rows[m.ID] = &cp
	return nil
}

func (s *MockProjectMembershipStore) Get(_ context.Context, id uuid.UUID) (*ProjectMembership, error) {
	return s.get(id)
}

func (s *MockProjectMembershipStore) GetForUser(_ context.Context, projectID, userID uuid.UUID) (*ProjectMembership, error) {
	found := s.find(func(m *ProjectMembership) bool {
		return m.ProjectID == projectID && m.UserID == userID
	}, func(a, b *ProjectMembership) bool { return false })
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return found[0], nil
}

func (s *MockProjectMembershipStore) GetByRole(_ context.Context, projectID uuid.UUID, r role.Project) (*ProjectMembership, error) {
	found := s.find(func(m *ProjectMembership) bool {
		return m.ProjectID == projectID && m.Role == r
	}, func(a, b *ProjectMembership) bool { return a.CreatedAt.Before(b.CreatedAt) })
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return found[0], nil
}

func (s *MockProjectMembershipStore) Update(_ context.Context, m *ProjectMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[m.ID]; !ok {
		return ErrNotFound
	}
	if err := s.conflict(m); err != nil {
		return err
	}
	m.UpdatedAt = time.Now()
	cp := *m
	s.rows[m.ID] = &cp
	return nil
}

func (s *MockProjectMembershipStore) Delete(_ context.Context, id uuid.UUID) error {
	return s.delete(id)
}

func (s *MockProjectMembershipStore) List(_ context.Context, f ProjectMembershipFilter) ([]*ProjectMembership, error) {
	results := s.find(func(m *ProjectMembership) bool {
		if f.ProjectID != nil && m.ProjectID != *f.ProjectID {
			return false
		}
		if f.UserID != nil && m.UserID != *f.UserID {
			return false
		}
		return f.Role == "" || m.Role == f.Role
	}, func(a, b *ProjectMembership) bool { return a.CreatedAt.Before(b.CreatedAt) })
	return applyPagination(results, f.Pagination), nil
}

// ---------------------------------------------------------------------------
// MockTaskStore
// ---------------------------------------------------------------------------

// MockTaskStore is an in-memory implementation of TaskStore for testing.
type MockTaskStore struct {
	table[Task]
}

// NewMockTaskStore creates a new MockTaskStore.
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{table: newTable[Task]()}
}

func (s *MockTaskStore) Create(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	cp := *t
	s.rows[t.ID] = &cp
	return nil
}

func (s *MockTaskStore) Get(_ context.Context, id uuid.UUID) (*Task, error) {
	return s.get(id)
}

func (s *MockTaskStore) Update(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[t.ID]; !ok {
		return ErrNotFound
	}
	t.UpdatedAt = time.Now()
	cp := *t
	s.rows[t.ID] = &cp
	return nil
}

func (s *MockTaskStore) Delete(_ context.Context, id uuid.UUID) error {
	return s.delete(id)
}

func (s *MockTaskStore) List(_ context.Context, f TaskFilter) ([]*Task, error) {
	results := s.find(func(t *Task) bool {
		if f.ProjectID != nil && t.ProjectID != *f.ProjectID {
			return false
		}
		if f.ResponsibleID != nil && (t.ResponsibleID == nil || *t.ResponsibleID != *f.ResponsibleID) {
			return false
		}
		return true
	}, func(a, b *Task) bool { return a.CreatedAt.Before(b.CreatedAt) })
	return applyPagination(results, f.Pagination), nil
}

// ---------------------------------------------------------------------------
// MockCommentStore
// ---------------------------------------------------------------------------

// MockCommentStore is an in-memory implementation of CommentStore for testing.
type MockCommentStore struct {
	table[Comment]
}

// NewMockCommentStore creates a new MockCommentStore.
func NewMockCommentStore() *MockCommentStore {
	return &MockCommentStore{table: newTable[Comment]()}
}

func (s *MockCommentStore) Create(_ context.Context, c *Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	s.rows[c.ID] = &cp
	return nil
}

func (s *MockCommentStore) Get(_ context.Context, id uuid.UUID) (*Comment, error) {
	return s.get(id)
}

func (s *MockCommentStore) Update(_ context.Context, c *Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[c.ID]; !ok {
		return ErrNotFound
	}
	c.UpdatedAt = time.Now()
	cp := *c
	s.rows[c.ID] = &cp
	return nil
}

func (s *MockCommentStore) Delete(_ context.Context, id uuid.UUID) error {
	return s.delete(id)
}

func (s *MockCommentStore) List(_ context.Context, f CommentFilter) ([]*Comment, error) {
	results := s.find(func(c *Comment) bool {
		return f.TaskID == nil || c.TaskID == *f.TaskID
	}, func(a, b *Comment) bool { return a.CreatedAt.Before(b.CreatedAt) })
	return applyPagination(results, f.Pagination), nil
}

// ---------------------------------------------------------------------------
// MockAttachmentStore
// ---------------------------------------------------------------------------

// MockAttachmentStore is an in-memory implementation of AttachmentStore for testing.
type MockAttachmentStore struct {
	table[Attachment]
}

// NewMockAttachmentStore creates a new MockAttachmentStore.
func NewMockAttachmentStore() *MockAttachmentStore {
	return &MockAttachmentStore{table: newTable[Attachment]()}
}

func (s *MockAttachmentStore) Create(_ context.Context, a *Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	cp := *a
	s.rows[a.ID] = &cp
	return nil
}

func (s *MockAttachmentStore) Get(_ context.Context, id uuid.UUID) (*Attachment, error) {
	return s.get(id)
}

func (s *MockAttachmentStore) Delete(_ context.Context, id uuid.UUID) error {
	return s.delete(id)
}

func (s *MockAttachmentStore) List(_ context.Context, f AttachmentFilter) ([]*Attachment, error) {
	results := s.find(func(a *Attachment) bool {
		if f.TaskID != nil && a.TaskID != *f.TaskID {
			return false
		}
		if f.CommentID != nil && (a.CommentID == nil || *a.CommentID != *f.CommentID) {
			return false
		}
		return true
	}, func(a, b *Attachment) bool { return a.CreatedAt.Before(b.CreatedAt) })
	return applyPagination(results, f.Pagination), nil
}

// ---------------------------------------------------------------------------
// MockAuditStore
// ---------------------------------------------------------------------------

// MockAuditStore is an in-memory implementation of AuditStore for testing.
type MockAuditStore struct {
	mu      sync.Mutex
	entries []*AuditEntry
	nextID  int64
}

// NewMockAuditStore creates a new MockAuditStore.
func NewMockAuditStore() *MockAuditStore {
	return &MockAuditStore{}
}

func (s *MockAuditStore) snapshot() func() {
	s.mu.Lock()
	saved := append([]*AuditEntry(nil), s.entries...)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.entries = saved
		s.mu.Unlock()
	}
}

func (s *MockAuditStore) Record(_ context.Context, e *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *MockAuditStore) Query(_ context.Context, f AuditFilter) ([]*AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []*AuditEntry
	for _, e := range s.entries {
		if f.TenantID != nil && (e.TenantID == nil || *e.TenantID != *f.TenantID) {
			continue
		}
		if f.UserID != nil && (e.UserID == nil || *e.UserID != *f.UserID) {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.ResourceType != "" && e.ResourceType != f.ResourceType {
			continue
		}
		if f.ResourceID != nil && (e.ResourceID == nil || *e.ResourceID != *f.ResourceID) {
			continue
		}
		cp := *e
		results = append(results, &cp)
	}
	return applyPagination(results, f.Pagination), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func applyPagination[T any](items []*T, p Pagination) []*T {
	if len(items) == 0 {
		return items
	}
	start := p.Offset
	if start > len(items) {
		return nil
	}
	items = items[start:]
	if p.Limit > 0 && p.Limit < len(items) {
		items = items[:p.Limit]
	}
	return items
}
