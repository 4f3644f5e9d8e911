package tenancy

import (
	"context"
	"errors"
	"time"
)

// Entity enumerates the resource kinds the engine scopes, repairs and checks.
type Entity string

const (
	EntityProject   Entity = "project"
	EntityTask      Entity = "task"
	EntityTeam      Entity = "team"
	EntityUser      Entity = "user"
	EntityClient    Entity = "client"
	EntityWorkspace Entity = "workspace"
)

// BackfillEntities is the fixed dependency order of the backfill stages.
// Later stages infer from earlier stages' already-resolved tenant IDs.
var BackfillEntities = []Entity{EntityProject, EntityTask, EntityTeam, EntityUser}

// QuarantineSlug is the reserved slug of the quarantine tenant. A unique
// index on tenants.slug makes the lazy create race-safe at the database.
const QuarantineSlug = "quarantine"

type Tenant struct {
	ID     string
	Name   string
	Slug   string
	Status string
}

const (
	TenantStatusActive   = "active"
	TenantStatusInactive = "inactive"
)

// Resource is the reconciler's view of a row: just enough to decide access.
type Resource struct {
	Entity   Entity
	ID       string
	TenantID *string
	Name     string
}

// ResourceReader is the two-lane fetch surface the reconciler runs on.
// Scoped queries filter by tenant at the persistence layer; unscoped
// queries exist only to classify a miss, never to bypass the decision.
type ResourceReader interface {
	ScopedGet(ctx context.Context, entity Entity, tenantID string, id string) (Resource, bool, error)
	UnscopedGet(ctx context.Context, entity Entity, id string) (Resource, bool, error)
	ScopedList(ctx context.Context, entity Entity, tenantID string) ([]Resource, error)
	UnscopedList(ctx context.Context, entity Entity) ([]Resource, error)
}

// ResourceWriter covers the thin mutation surface the consuming APIs use.
// Renames are tenant-agnostic here; ownership is validated by the caller
// before the write.
type ResourceWriter interface {
	Rename(ctx context.Context, entity Entity, id string, name string) error
}

// Dataset is one consistent read of everything the backfill and integrity
// passes need, pre-loaded so inference stays a set of pure functions over
// lookup maps.
type Dataset struct {
	Tenants     []Tenant
	Workspaces  []WorkspaceRow
	Clients     []ClientRow
	Users       []UserRow
	Projects    []ProjectRow
	Tasks       []TaskRow
	Teams       []TeamRow
	Memberships []MembershipRow
	Invitations []InvitationRow
}

type WorkspaceRow struct {
	ID        string
	TenantID  *string
	IsPrimary bool
}

type ClientRow struct {
	ID       string
	TenantID *string
}

type UserRow struct {
	ID       string
	TenantID *string
	Role     string
}

// RoleSuper marks administrative users. They are a fixed point of the
// backfill, never assigned a tenant regardless of associations.
const RoleSuper = "superadmin"

type ProjectRow struct {
	ID          string
	TenantID    *string
	WorkspaceID *string
	ClientID    *string
	CreatedBy   *string
}

type TaskRow struct {
	ID        string
	TenantID  *string
	ProjectID *string
	CreatedBy *string
}

type TeamRow struct {
	ID          string
	TenantID    *string
	WorkspaceID *string
}

type MembershipRow struct {
	UserID      string
	WorkspaceID string
}

type InvitationRow struct {
	UserID   string
	TenantID string
}

// DatasetLoader is shared by the backfill engine and the integrity checker.
type DatasetLoader interface {
	LoadDataset(ctx context.Context) (*Dataset, error)
}

// ErrBackfillInProgress is returned when a second backfill run would race a
// live one. The guard is advisory (pg_try_advisory_lock / mutex TryLock),
// not a row-level lock.
var ErrBackfillInProgress = errors.New("tenancy: backfill already in progress")

// BackfillStore is the write surface of the repair engine. AssignTenant
// must predicate on tenant_id IS NULL so a populated row is never silently
// overwritten and reruns are idempotent.
type BackfillStore interface {
	DatasetLoader
	AcquireRunLock(ctx context.Context) (bool, error)
	ReleaseRunLock(ctx context.Context) error
	EnsureQuarantineTenant(ctx context.Context) (Tenant, error)
	QuarantineTenant(ctx context.Context) (Tenant, bool, error)
	AssignTenant(ctx context.Context, entity Entity, id string, tenantID string) error
}

// AuditEvent records exactly one successful apply-mode mutation. Dry runs
// and gate failures never produce one.
type AuditEvent struct {
	ID          string
	TenantID    string
	ActorID     string
	Action      string
	Description string
	Metadata    map[string]any
	CreatedAt   time.Time
}

type AuditStore interface {
	Append(ctx context.Context, ev AuditEvent) error
	ListRecent(ctx context.Context, limit int) ([]AuditEvent, error)
}
