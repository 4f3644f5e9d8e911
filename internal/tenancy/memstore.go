package tenancy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Go-Digital-Alchemy-Repos/DigitalWorkday-sub012/pkg/uuidv7"
)

// MemoryStore is the in-memory twin of the Postgres store, used by tests
// and by handler construction without a database. It implements
// ResourceReader, ResourceWriter, BackfillStore and AuditStore.
type MemoryStore struct {
	mu      sync.Mutex
	data    Dataset
	names   map[Entity]map[string]string
	audit   []AuditEvent
	running bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{names: map[Entity]map[string]string{}}
}

func (s *MemoryStore) setName(entity Entity, id string, name string) {
	if s.names[entity] == nil {
		s.names[entity] = map[string]string{}
	}
	s.names[entity][id] = name
}

func (s *MemoryStore) AddTenant(t Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Tenants = append(s.data.Tenants, t)
}

func (s *MemoryStore) AddWorkspace(w WorkspaceRow, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Workspaces = append(s.data.Workspaces, w)
	s.setName(EntityWorkspace, w.ID, name)
}

func (s *MemoryStore) AddClient(c ClientRow, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Clients = append(s.data.Clients, c)
	s.setName(EntityClient, c.ID, name)
}

func (s *MemoryStore) AddUser(u UserRow, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Users = append(s.data.Users, u)
	s.setName(EntityUser, u.ID, name)
}

func (s *MemoryStore) AddProject(p ProjectRow, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Projects = append(s.data.Projects, p)
	s.setName(EntityProject, p.ID, name)
}

func (s *MemoryStore) AddTask(t TaskRow, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Tasks = append(s.data.Tasks, t)
	s.setName(EntityTask, t.ID, name)
}

func (s *MemoryStore) AddTeam(t TeamRow, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Teams = append(s.data.Teams, t)
	s.setName(EntityTeam, t.ID, name)
}

func (s *MemoryStore) AddMembership(m MembershipRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Memberships = append(s.data.Memberships, m)
}

func (s *MemoryStore) AddInvitation(inv InvitationRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Invitations = append(s.data.Invitations, inv)
}

// resourceAt adapts a row to the reconciler's view.
func (s *MemoryStore) resourceAt(entity Entity, id string, tenantID *string) Resource {
	name := ""
	if m := s.names[entity]; m != nil {
		name = m[id]
	}
	return Resource{Entity: entity, ID: id, TenantID: cloneID(tenantID), Name: name}
}

func cloneID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// eachRow walks one entity's rows as (id, tenantID) pairs.
func (s *MemoryStore) eachRow(entity Entity, fn func(id string, tenantID *string) bool) error {
	switch entity {
	case EntityProject:
		for i := range s.data.Projects {
			if !fn(s.data.Projects[i].ID, s.data.Projects[i].TenantID) {
				return nil
			}
		}
	case EntityTask:
		for i := range s.data.Tasks {
			if !fn(s.data.Tasks[i].ID, s.data.Tasks[i].TenantID) {
				return nil
			}
		}
	case EntityTeam:
		for i := range s.data.Teams {
			if !fn(s.data.Teams[i].ID, s.data.Teams[i].TenantID) {
				return nil
			}
		}
	case EntityUser:
		for i := range s.data.Users {
			if !fn(s.data.Users[i].ID, s.data.Users[i].TenantID) {
				return nil
			}
		}
	case EntityClient:
		for i := range s.data.Clients {
			if !fn(s.data.Clients[i].ID, s.data.Clients[i].TenantID) {
				return nil
			}
		}
	case EntityWorkspace:
		for i := range s.data.Workspaces {
			if !fn(s.data.Workspaces[i].ID, s.data.Workspaces[i].TenantID) {
				return nil
			}
		}
	default:
		return fmt.Errorf("tenancy: unknown entity %q", entity)
	}
	return nil
}

func (s *MemoryStore) ScopedGet(_ context.Context, entity Entity, tenantID string, id string) (Resource, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out Resource
	found := false
	err := s.eachRow(entity, func(rid string, tid *string) bool {
		if rid == id && tid != nil && *tid == tenantID {
			out = s.resourceAt(entity, rid, tid)
			found = true
			return false
		}
		return true
	})
	return out, found, err
}

func (s *MemoryStore) UnscopedGet(_ context.Context, entity Entity, id string) (Resource, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out Resource
	found := false
	err := s.eachRow(entity, func(rid string, tid *string) bool {
		if rid == id {
			out = s.resourceAt(entity, rid, tid)
			found = true
			return false
		}
		return true
	})
	return out, found, err
}

func (s *MemoryStore) ScopedList(_ context.Context, entity Entity, tenantID string) ([]Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Resource
	err := s.eachRow(entity, func(rid string, tid *string) bool {
		if tid != nil && *tid == tenantID {
			out = append(out, s.resourceAt(entity, rid, tid))
		}
		return true
	})
	return out, err
}

func (s *MemoryStore) UnscopedList(_ context.Context, entity Entity) ([]Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Resource
	err := s.eachRow(entity, func(rid string, tid *string) bool {
		out = append(out, s.resourceAt(entity, rid, tid))
		return true
	})
	return out, err
}

func (s *MemoryStore) Rename(_ context.Context, entity Entity, id string, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.names[entity]
	if m == nil {
		return errors.New("tenancy: resource not found")
	}
	if _, ok := m[id]; !ok {
		return errors.New("tenancy: resource not found")
	}
	m[id] = name
	return nil
}

func (s *MemoryStore) LoadDataset(_ context.Context) (*Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds := s.cloneDatasetLocked()
	return &ds, nil
}

// SnapshotDataset deep-copies the store's state for byte-for-byte
// comparison in dry-run purity tests.
func (s *MemoryStore) SnapshotDataset() Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneDatasetLocked()
}

func (s *MemoryStore) cloneDatasetLocked() Dataset {
	ds := Dataset{
		Tenants:     append([]Tenant(nil), s.data.Tenants...),
		Memberships: append([]MembershipRow(nil), s.data.Memberships...),
		Invitations: append([]InvitationRow(nil), s.data.Invitations...),
	}
	for _, w := range s.data.Workspaces {
		w.TenantID = cloneID(w.TenantID)
		ds.Workspaces = append(ds.Workspaces, w)
	}
	for _, c := range s.data.Clients {
		c.TenantID = cloneID(c.TenantID)
		ds.Clients = append(ds.Clients, c)
	}
	for _, u := range s.data.Users {
		u.TenantID = cloneID(u.TenantID)
		ds.Users = append(ds.Users, u)
	}
	for _, p := range s.data.Projects {
		p.TenantID = cloneID(p.TenantID)
		p.WorkspaceID = cloneID(p.WorkspaceID)
		p.ClientID = cloneID(p.ClientID)
		p.CreatedBy = cloneID(p.CreatedBy)
		ds.Projects = append(ds.Projects, p)
	}
	for _, t := range s.data.Tasks {
		t.TenantID = cloneID(t.TenantID)
		t.ProjectID = cloneID(t.ProjectID)
		t.CreatedBy = cloneID(t.CreatedBy)
		ds.Tasks = append(ds.Tasks, t)
	}
	for _, t := range s.data.Teams {
		t.TenantID = cloneID(t.TenantID)
		t.WorkspaceID = cloneID(t.WorkspaceID)
		ds.Teams = append(ds.Teams, t)
	}
	return ds
}

func (s *MemoryStore) AcquireRunLock(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false, nil
	}
	s.running = true
	return true, nil
}

func (s *MemoryStore) ReleaseRunLock(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

func (s *MemoryStore) QuarantineTenant(_ context.Context) (Tenant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.data.Tenants {
		if t.Slug == QuarantineSlug {
			return t, true, nil
		}
	}
	return Tenant{}, false, nil
}

func (s *MemoryStore) EnsureQuarantineTenant(_ context.Context) (Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.data.Tenants {
		if t.Slug == QuarantineSlug {
			return t, nil
		}
	}
	id, err := uuidv7.NewString()
	if err != nil {
		return Tenant{}, err
	}
	t := Tenant{ID: id, Name: "Quarantine", Slug: QuarantineSlug, Status: TenantStatusInactive}
	s.data.Tenants = append(s.data.Tenants, t)
	return t, nil
}

func (s *MemoryStore) AssignTenant(_ context.Context, entity Entity, id string, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := func(current **string) bool {
		if *current != nil {
			return false
		}
		v := tenantID
		*current = &v
		return true
	}

	done := false
	switch entity {
	case EntityProject:
		for i := range s.data.Projects {
			if s.data.Projects[i].ID == id {
				done = set(&s.data.Projects[i].TenantID)
			}
		}
	case EntityTask:
		for i := range s.data.Tasks {
			if s.data.Tasks[i].ID == id {
				done = set(&s.data.Tasks[i].TenantID)
			}
		}
	case EntityTeam:
		for i := range s.data.Teams {
			if s.data.Teams[i].ID == id {
				done = set(&s.data.Teams[i].TenantID)
			}
		}
	case EntityUser:
		for i := range s.data.Users {
			if s.data.Users[i].ID == id {
				done = set(&s.data.Users[i].TenantID)
			}
		}
	default:
		return fmt.Errorf("tenancy: entity %q is not a backfill target", entity)
	}
	if !done {
		return fmt.Errorf("tenancy: %s %s not eligible for assignment", entity, id)
	}
	return nil
}

func (s *MemoryStore) Append(_ context.Context, ev AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, ev)
	return nil
}

func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.audit)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]AuditEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.audit[i])
	}
	return out, nil
}

// AuditCount supports test assertions on the exactly-one-event property.
func (s *MemoryStore) AuditCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audit)
}

// NullTenantCounts reports, per backfill entity, how many rows still carry
// a null tenant. Used by the scan endpoint.
func (s *MemoryStore) NullTenantCounts(_ context.Context) (map[Entity]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[Entity]int{}
	for _, e := range BackfillEntities {
		n := 0
		_ = s.eachRow(e, func(_ string, tid *string) bool {
			if tid == nil {
				n++
			}
			return true
		})
		out[e] = n
	}
	return out, nil
}
