package tenancy

import (
	"context"
	"fmt"
	"log"
)

// BackfillMode selects between tallying and writing. Dry run computes the
// exact counts apply would, without touching a row or an audit record.
type BackfillMode string

const (
	BackfillDryRun BackfillMode = "dry_run"
	BackfillApply  BackfillMode = "apply"
)

func ParseBackfillMode(raw string) (BackfillMode, bool) {
	switch BackfillMode(raw) {
	case BackfillDryRun, BackfillApply:
		return BackfillMode(raw), true
	default:
		return "", false
	}
}

const ambiguousSampleLimit = 5

// EntityResult is the per-stage outcome of a run.
type EntityResult struct {
	Entity          Entity   `json:"entity"`
	Updated         int      `json:"updated"`
	Quarantined     int      `json:"quarantined"`
	Failed          int      `json:"failed"`
	AmbiguousSample []string `json:"ambiguous_sample"`
}

// RunResult aggregates one backfill invocation.
type RunResult struct {
	Mode               BackfillMode   `json:"mode"`
	Entities           []EntityResult `json:"entities"`
	QuarantineTenantID string         `json:"quarantine_tenant_id,omitempty"`
}

func (r RunResult) Totals() (updated, quarantined, failed int) {
	for _, e := range r.Entities {
		updated += e.Updated
		quarantined += e.Quarantined
		failed += e.Failed
	}
	return
}

// Engine is a thin driver over the pure inference functions. It processes
// one entity type at a time in dependency order, row by row, with no
// transactional envelope around the run: each write is independent, so a
// crash leaves the remainder for the next invocation (safe under the
// tenant_id IS NULL predicate).
type Engine struct {
	Store BackfillStore
}

// Run executes a backfill pass. Apply mode holds the single-flight guard
// for its duration; a concurrent apply gets ErrBackfillInProgress. Dry run
// takes no lock and performs no writes of any kind, including the lazy
// quarantine-tenant create.
func (e *Engine) Run(ctx context.Context, mode BackfillMode) (RunResult, error) {
	if mode == BackfillApply {
		ok, err := e.Store.AcquireRunLock(ctx)
		if err != nil {
			return RunResult{}, err
		}
		if !ok {
			return RunResult{}, ErrBackfillInProgress
		}
		defer func() { _ = e.Store.ReleaseRunLock(ctx) }()
	}

	ds, err := e.Store.LoadDataset(ctx)
	if err != nil {
		return RunResult{}, err
	}

	run := &runState{engine: e, mode: mode, dataset: ds}
	if err := run.init(ctx); err != nil {
		return RunResult{}, err
	}

	result := RunResult{Mode: mode}
	result.Entities = append(result.Entities, run.projects(ctx))
	result.Entities = append(result.Entities, run.tasks(ctx))
	result.Entities = append(result.Entities, run.teams(ctx))
	result.Entities = append(result.Entities, run.users(ctx))
	if run.quarantineID != quarantinePending {
		result.QuarantineTenantID = run.quarantineID
	}
	return result, nil
}

type runState struct {
	engine  *Engine
	mode    BackfillMode
	dataset *Dataset

	workspaceTenant map[string]string
	clientTenant    map[string]string
	userTenant      map[string]string
	projectTenant   map[string]string // pre-run values plus this run's inferred overlay

	quarantineID string
}

func (s *runState) init(ctx context.Context) error {
	ds := s.dataset
	s.workspaceTenant = tenantIndex(len(ds.Workspaces), func(i int) (string, *string) {
		return ds.Workspaces[i].ID, ds.Workspaces[i].TenantID
	})
	s.clientTenant = tenantIndex(len(ds.Clients), func(i int) (string, *string) {
		return ds.Clients[i].ID, ds.Clients[i].TenantID
	})
	s.userTenant = tenantIndex(len(ds.Users), func(i int) (string, *string) {
		return ds.Users[i].ID, ds.Users[i].TenantID
	})
	s.projectTenant = tenantIndex(len(ds.Projects), func(i int) (string, *string) {
		return ds.Projects[i].ID, ds.Projects[i].TenantID
	})

	// The quarantine tenant is a sink, never an ownership candidate: strip
	// it from every lookup so quarantined parents cannot propagate.
	q, found, err := s.engine.Store.QuarantineTenant(ctx)
	if err != nil {
		return err
	}
	if found {
		s.quarantineID = q.ID
		for _, m := range []map[string]string{s.workspaceTenant, s.clientTenant, s.userTenant, s.projectTenant} {
			for id, tid := range m {
				if tid == q.ID {
					delete(m, id)
				}
			}
		}
	}
	return nil
}

func tenantIndex(n int, at func(i int) (string, *string)) map[string]string {
	m := make(map[string]string, n)
	for i := 0; i < n; i++ {
		id, tid := at(i)
		if tid != nil && *tid != "" {
			m[id] = *tid
		}
	}
	return m
}

// quarantinePending stands in for the quarantine tenant during a dry run
// when it does not exist yet; dry run must not create it.
const quarantinePending = "(pending)"

// resolveQuarantine returns the quarantine tenant ID, creating the tenant
// lazily in apply mode. Dry run only needs a stable placeholder for
// tallying.
func (s *runState) resolveQuarantine(ctx context.Context) (string, error) {
	if s.quarantineID != "" {
		return s.quarantineID, nil
	}
	if s.mode != BackfillApply {
		s.quarantineID = quarantinePending
		return s.quarantineID, nil
	}
	q, err := s.engine.Store.EnsureQuarantineTenant(ctx)
	if err != nil {
		return "", err
	}
	s.quarantineID = q.ID
	return s.quarantineID, nil
}

// settle applies one row's outcome: write in apply mode, tally in both.
// It reports whether the row ended up with the inferred tenant.
func (s *runState) settle(ctx context.Context, res *EntityResult, entity Entity, id string, candidate Candidate, resolved bool) bool {
	if !resolved {
		qid, err := s.resolveQuarantine(ctx)
		if err != nil {
			log.Printf("tenancy: backfill %s %s: quarantine tenant: %v", entity, id, err)
			res.Failed++
			return false
		}
		if s.mode == BackfillApply {
			if err := s.engine.Store.AssignTenant(ctx, entity, id, qid); err != nil {
				log.Printf("tenancy: backfill %s %s: %v", entity, id, err)
				res.Failed++
				return false
			}
		}
		res.Quarantined++
		if len(res.AmbiguousSample) < ambiguousSampleLimit {
			res.AmbiguousSample = append(res.AmbiguousSample, id)
		}
		return false
	}

	if s.mode == BackfillApply {
		if err := s.engine.Store.AssignTenant(ctx, entity, id, candidate.TenantID); err != nil {
			log.Printf("tenancy: backfill %s %s: %v", entity, id, err)
			res.Failed++
			return false
		}
	}
	res.Updated++
	return true
}

func (s *runState) projects(ctx context.Context) EntityResult {
	res := EntityResult{Entity: EntityProject}
	wl := mapLookup(s.workspaceTenant)
	cl := mapLookup(s.clientTenant)
	ul := mapLookup(s.userTenant)
	for _, p := range s.dataset.Projects {
		if p.TenantID != nil {
			continue
		}
		cand, ok := InferProjectTenant(p, wl, cl, ul)
		if s.settle(ctx, &res, EntityProject, p.ID, cand, ok) {
			// Later stages see this run's resolution in both modes so
			// dry-run counts match apply exactly.
			s.projectTenant[p.ID] = cand.TenantID
		}
	}
	return res
}

func (s *runState) tasks(ctx context.Context) EntityResult {
	res := EntityResult{Entity: EntityTask}
	pl := mapLookup(s.projectTenant)
	ul := mapLookup(s.userTenant)
	for _, t := range s.dataset.Tasks {
		if t.TenantID != nil {
			continue
		}
		cand, ok := InferTaskTenant(t, pl, ul)
		s.settle(ctx, &res, EntityTask, t.ID, cand, ok)
	}
	return res
}

func (s *runState) teams(ctx context.Context) EntityResult {
	res := EntityResult{Entity: EntityTeam}
	wl := mapLookup(s.workspaceTenant)
	for _, t := range s.dataset.Teams {
		if t.TenantID != nil {
			continue
		}
		cand, ok := InferTeamTenant(t, wl)
		s.settle(ctx, &res, EntityTeam, t.ID, cand, ok)
	}
	return res
}

func (s *runState) users(ctx context.Context) EntityResult {
	res := EntityResult{Entity: EntityUser}

	memberships := map[string][]string{}
	for _, m := range s.dataset.Memberships {
		memberships[m.UserID] = append(memberships[m.UserID], m.WorkspaceID)
	}
	invitations := map[string][]string{}
	for _, inv := range s.dataset.Invitations {
		invitations[inv.UserID] = append(invitations[inv.UserID], inv.TenantID)
	}
	created := map[string][]string{}
	for _, p := range s.dataset.Projects {
		if p.CreatedBy == nil {
			continue
		}
		if tid, ok := s.projectTenant[p.ID]; ok {
			created[*p.CreatedBy] = append(created[*p.CreatedBy], tid)
		}
	}

	for _, u := range s.dataset.Users {
		if u.TenantID != nil {
			continue
		}
		if u.Role == RoleSuper {
			continue
		}

		var assoc []string
		for _, wid := range memberships[u.ID] {
			if tid, ok := s.workspaceTenant[wid]; ok {
				assoc = append(assoc, tid)
			}
		}
		assoc = append(assoc, invitations[u.ID]...)
		assoc = append(assoc, created[u.ID]...)
		if s.quarantineID != "" {
			assoc = withoutTenant(assoc, s.quarantineID)
		}

		cand, ambiguity := InferUserTenant(assoc)
		s.settle(ctx, &res, EntityUser, u.ID, cand, ambiguity == "")
	}
	return res
}

func withoutTenant(ids []string, drop string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

// Describe summarizes a run for audit metadata.
func (r RunResult) Describe() string {
	u, q, f := r.Totals()
	return fmt.Sprintf("tenant-id backfill (%s): %d updated, %d quarantined, %d failed", r.Mode, u, q, f)
}
