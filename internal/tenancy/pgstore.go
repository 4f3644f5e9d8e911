package tenancy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Go-Digital-Alchemy-Repos/DigitalWorkday-sub012/pkg/uuidv7"
)

// backfillLockKey is the advisory lock keying the single-flight backfill
// guard. Arbitrary but stable; shared by every process of a deployment.
const backfillLockKey = 7420011

type entityTable struct {
	table   string
	nameCol string
}

var entityTables = map[Entity]entityTable{
	EntityProject:   {table: "core.projects", nameCol: "name"},
	EntityTask:      {table: "core.tasks", nameCol: "title"},
	EntityTeam:      {table: "core.teams", nameCol: "name"},
	EntityUser:      {table: "core.users", nameCol: "display_name"},
	EntityClient:    {table: "core.clients", nameCol: "name"},
	EntityWorkspace: {table: "core.workspaces", nameCol: "name"},
}

// PGStore backs the engine with Postgres. Scoped queries filter by tenant
// in the WHERE clause; the unscoped lane exists only to classify misses.
type PGStore struct {
	pool *pgxpool.Pool

	lockMu   sync.Mutex
	lockConn *pgxpool.Conn
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func tableFor(entity Entity) (entityTable, error) {
	t, ok := entityTables[entity]
	if !ok {
		return entityTable{}, fmt.Errorf("tenancy: unknown entity %q", entity)
	}
	return t, nil
}

func (s *PGStore) ScopedGet(ctx context.Context, entity Entity, tenantID string, id string) (Resource, bool, error) {
	t, err := tableFor(entity)
	if err != nil {
		return Resource{}, false, err
	}
	q := fmt.Sprintf(`SELECT id::text, tenant_id::text, %s FROM %s WHERE id = $1::uuid AND tenant_id = $2::uuid`, t.nameCol, t.table)
	return s.getRow(ctx, entity, q, id, tenantID)
}

func (s *PGStore) UnscopedGet(ctx context.Context, entity Entity, id string) (Resource, bool, error) {
	t, err := tableFor(entity)
	if err != nil {
		return Resource{}, false, err
	}
	q := fmt.Sprintf(`SELECT id::text, tenant_id::text, %s FROM %s WHERE id = $1::uuid`, t.nameCol, t.table)
	return s.getRow(ctx, entity, q, id)
}

func (s *PGStore) getRow(ctx context.Context, entity Entity, q string, args ...any) (Resource, bool, error) {
	var res Resource
	res.Entity = entity
	err := s.pool.QueryRow(ctx, q, args...).Scan(&res.ID, &res.TenantID, &res.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Resource{}, false, nil
		}
		return Resource{}, false, err
	}
	return res, true, nil
}

func (s *PGStore) ScopedList(ctx context.Context, entity Entity, tenantID string) ([]Resource, error) {
	t, err := tableFor(entity)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT id::text, tenant_id::text, %s FROM %s WHERE tenant_id = $1::uuid ORDER BY id LIMIT 500`, t.nameCol, t.table)
	return s.listRows(ctx, entity, q, tenantID)
}

func (s *PGStore) UnscopedList(ctx context.Context, entity Entity) ([]Resource, error) {
	t, err := tableFor(entity)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT id::text, tenant_id::text, %s FROM %s ORDER BY id LIMIT 500`, t.nameCol, t.table)
	return s.listRows(ctx, entity, q)
}

func (s *PGStore) listRows(ctx context.Context, entity Entity, q string, args ...any) ([]Resource, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Resource
	for rows.Next() {
		res := Resource{Entity: entity}
		if err := rows.Scan(&res.ID, &res.TenantID, &res.Name); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (s *PGStore) Rename(ctx context.Context, entity Entity, id string, name string) error {
	t, err := tableFor(entity)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET %s = $2 WHERE id = $1::uuid`, t.table, t.nameCol), id, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("tenancy: resource not found")
	}
	return nil
}

func (s *PGStore) LoadDataset(ctx context.Context) (*Dataset, error) {
	ds := &Dataset{}

	rows, err := s.pool.Query(ctx, `SELECT id::text, name, slug, status FROM core.tenants ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.Status); err != nil {
			rows.Close()
			return nil, err
		}
		ds.Tenants = append(ds.Tenants, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `SELECT id::text, tenant_id::text, is_primary FROM core.workspaces ORDER BY id`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var w WorkspaceRow
		if err := rows.Scan(&w.ID, &w.TenantID, &w.IsPrimary); err != nil {
			rows.Close()
			return nil, err
		}
		ds.Workspaces = append(ds.Workspaces, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `SELECT id::text, tenant_id::text FROM core.clients ORDER BY id`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var c ClientRow
		if err := rows.Scan(&c.ID, &c.TenantID); err != nil {
			rows.Close()
			return nil, err
		}
		ds.Clients = append(ds.Clients, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `SELECT id::text, tenant_id::text, role FROM core.users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var u UserRow
		if err := rows.Scan(&u.ID, &u.TenantID, &u.Role); err != nil {
			rows.Close()
			return nil, err
		}
		ds.Users = append(ds.Users, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `SELECT id::text, tenant_id::text, workspace_id::text, client_id::text, created_by::text FROM core.projects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var p ProjectRow
		if err := rows.Scan(&p.ID, &p.TenantID, &p.WorkspaceID, &p.ClientID, &p.CreatedBy); err != nil {
			rows.Close()
			return nil, err
		}
		ds.Projects = append(ds.Projects, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `SELECT id::text, tenant_id::text, project_id::text, created_by::text FROM core.tasks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var t TaskRow
		if err := rows.Scan(&t.ID, &t.TenantID, &t.ProjectID, &t.CreatedBy); err != nil {
			rows.Close()
			return nil, err
		}
		ds.Tasks = append(ds.Tasks, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `SELECT id::text, tenant_id::text, workspace_id::text FROM core.teams ORDER BY id`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var t TeamRow
		if err := rows.Scan(&t.ID, &t.TenantID, &t.WorkspaceID); err != nil {
			rows.Close()
			return nil, err
		}
		ds.Teams = append(ds.Teams, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `SELECT user_id::text, workspace_id::text FROM core.workspace_members ORDER BY user_id, workspace_id`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var m MembershipRow
		if err := rows.Scan(&m.UserID, &m.WorkspaceID); err != nil {
			rows.Close()
			return nil, err
		}
		ds.Memberships = append(ds.Memberships, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `SELECT user_id::text, tenant_id::text FROM core.invitations WHERE user_id IS NOT NULL ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var inv InvitationRow
		if err := rows.Scan(&inv.UserID, &inv.TenantID); err != nil {
			rows.Close()
			return nil, err
		}
		ds.Invitations = append(ds.Invitations, inv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ds, nil
}

// AcquireRunLock pins a pool connection and takes the advisory lock on it.
// Advisory locks are session-scoped, so the connection must stay checked
// out until release.
func (s *PGStore) AcquireRunLock(ctx context.Context) (bool, error) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	if s.lockConn != nil {
		return false, nil
	}
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	var got bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, backfillLockKey).Scan(&got); err != nil {
		conn.Release()
		return false, err
	}
	if !got {
		conn.Release()
		return false, nil
	}
	s.lockConn = conn
	return true, nil
}

func (s *PGStore) ReleaseRunLock(ctx context.Context) error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	if s.lockConn == nil {
		return nil
	}
	_, err := s.lockConn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, backfillLockKey)
	s.lockConn.Release()
	s.lockConn = nil
	return err
}

func (s *PGStore) QuarantineTenant(ctx context.Context) (Tenant, bool, error) {
	var t Tenant
	err := s.pool.QueryRow(ctx, `SELECT id::text, name, slug, status FROM core.tenants WHERE slug = $1`, QuarantineSlug).
		Scan(&t.ID, &t.Name, &t.Slug, &t.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, false, nil
		}
		return Tenant{}, false, err
	}
	return t, true, nil
}

// EnsureQuarantineTenant creates the reserved tenant if absent. The unique
// index on core.tenants.slug makes a concurrent create race settle on one
// row; ON CONFLICT returns the winner.
func (s *PGStore) EnsureQuarantineTenant(ctx context.Context) (Tenant, error) {
	if t, found, err := s.QuarantineTenant(ctx); err != nil || found {
		return t, err
	}
	id, err := uuidv7.NewString()
	if err != nil {
		return Tenant{}, err
	}
	var t Tenant
	err = s.pool.QueryRow(ctx, `
INSERT INTO core.tenants (id, name, slug, status)
VALUES ($1::uuid, 'Quarantine', $2, $3)
ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
RETURNING id::text, name, slug, status
`, id, QuarantineSlug, TenantStatusInactive).Scan(&t.ID, &t.Name, &t.Slug, &t.Status)
	if err != nil {
		return Tenant{}, err
	}
	return t, nil
}

// AssignTenant populates a previously-null tenant exactly once. The IS
// NULL predicate carries both idempotence and never-overwrite.
func (s *PGStore) AssignTenant(ctx context.Context, entity Entity, id string, tenantID string) error {
	t, err := tableFor(entity)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET tenant_id = $2::uuid WHERE id = $1::uuid AND tenant_id IS NULL`, t.table),
		id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tenancy: %s %s not eligible for assignment", entity, id)
	}
	return nil
}

func (s *PGStore) NullTenantCounts(ctx context.Context) (map[Entity]int, error) {
	out := map[Entity]int{}
	for _, e := range BackfillEntities {
		t, err := tableFor(e)
		if err != nil {
			return nil, err
		}
		var n int
		if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE tenant_id IS NULL`, t.table)).Scan(&n); err != nil {
			return nil, err
		}
		out[e] = n
	}
	return out, nil
}

func (s *PGStore) Append(ctx context.Context, ev AuditEvent) error {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO audit.events (id, tenant_id, actor_id, action, description, metadata, created_at)
VALUES ($1::uuid, NULLIF($2, '')::uuid, $3, $4, $5, $6::jsonb, $7)
`, ev.ID, ev.TenantID, ev.ActorID, ev.Action, ev.Description, string(meta), ev.CreatedAt)
	return err
}

func (s *PGStore) ListRecent(ctx context.Context, limit int) ([]AuditEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
SELECT id::text, COALESCE(tenant_id::text, ''), actor_id, action, description, metadata, created_at
FROM audit.events
ORDER BY created_at DESC, id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		var ev AuditEvent
		var meta []byte
		if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.ActorID, &ev.Action, &ev.Description, &meta, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ev.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
