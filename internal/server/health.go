package server

import (
	"context"
	"sync"
	"time"

	"github.com/Go-Digital-Alchemy-Repos/DigitalWorkday-sub012/internal/tenancy"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	healthCacheSize = 1024
	healthCacheTTL  = 30 * time.Minute
)

type healthSnapshot struct {
	TenantID          string    `json:"tenant_id"`
	Slug              string    `json:"slug"`
	Projects          int       `json:"projects"`
	Tasks             int       `json:"tasks"`
	Teams             int       `json:"teams"`
	Users             int       `json:"users"`
	IntegrityBlockers int       `json:"integrity_blockers"`
	Status            string    `json:"status"`
	ComputedAt        time.Time `json:"computed_at"`
}

const (
	healthStatusOK         = "ok"
	healthStatusAttention  = "attention"
	healthStatusQuarantine = "quarantine"
)

// healthService maintains per-tenant rollups rebuilt on demand by the
// recompute endpoint. Snapshots live in an expirable LRU so a forgotten
// recompute degrades to a cache miss, never to stale data served forever.
type healthService struct {
	store tenancy.DatasetLoader

	mu         sync.Mutex
	cache      *expirable.LRU[string, healthSnapshot]
	computedAt time.Time
	legacyRows int
}

func newHealthService(store tenancy.DatasetLoader) *healthService {
	return &healthService{
		store: store,
		cache: expirable.NewLRU[string, healthSnapshot](healthCacheSize, nil, healthCacheTTL),
	}
}

// Recompute rebuilds every tenant's snapshot from one dataset read. It
// reports how many snapshots were written.
func (s *healthService) Recompute(ctx context.Context) (int, error) {
	ds, err := s.store.LoadDataset(ctx)
	if err != nil {
		return 0, err
	}

	issues := tenancy.CheckDataset(ds)
	blockers := 0
	for _, iss := range issues {
		if iss.Severity == tenancy.SeverityBlocker {
			blockers += iss.Count
		}
	}

	now := time.Now().UTC()
	legacy := 0
	byTenant := map[string]*healthSnapshot{}
	for _, t := range ds.Tenants {
		status := healthStatusOK
		if t.Slug == tenancy.QuarantineSlug {
			status = healthStatusQuarantine
		} else if blockers > 0 {
			status = healthStatusAttention
		}
		byTenant[t.ID] = &healthSnapshot{
			TenantID:          t.ID,
			Slug:              t.Slug,
			IntegrityBlockers: blockers,
			Status:            status,
			ComputedAt:        now,
		}
	}

	tally := func(tid *string, bump func(*healthSnapshot)) {
		if tid == nil {
			legacy++
			return
		}
		if snap, ok := byTenant[*tid]; ok {
			bump(snap)
		}
	}
	for _, p := range ds.Projects {
		tally(p.TenantID, func(s *healthSnapshot) { s.Projects++ })
	}
	for _, t := range ds.Tasks {
		tally(t.TenantID, func(s *healthSnapshot) { s.Tasks++ })
	}
	for _, t := range ds.Teams {
		tally(t.TenantID, func(s *healthSnapshot) { s.Teams++ })
	}
	for _, u := range ds.Users {
		tally(u.TenantID, func(s *healthSnapshot) { s.Users++ })
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
	for id, snap := range byTenant {
		s.cache.Add(id, *snap)
	}
	s.computedAt = now
	s.legacyRows = legacy
	return len(byTenant), nil
}

func (s *healthService) Snapshot(tenantID string) (healthSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Get(tenantID)
}

// Age reports time since the last recompute; ok=false when none has run.
func (s *healthService) Age() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.computedAt.IsZero() {
		return 0, false
	}
	return time.Since(s.computedAt), true
}

func (s *healthService) LegacyRows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.legacyRows
}

func (s *healthService) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
	s.computedAt = time.Time{}
	s.legacyRows = 0
}
