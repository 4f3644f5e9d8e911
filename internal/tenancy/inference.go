package tenancy

import "sort"

// TenantLookup reports the resolved tenant of a referenced row. ok=false
// covers both a dangling reference and a reference whose own tenant is
// still null.
type TenantLookup func(id string) (tenantID string, ok bool)

// Candidate is a resolved inference outcome with its provenance.
type Candidate struct {
	TenantID string
	Source   string
}

// Ambiguity reasons for the collect-all path.
const (
	AmbiguityNoAssociations  = "no_associations"
	AmbiguityMultipleTenants = "multiple_tenants"
)

type chainLink struct {
	source string
	id     *string
	lookup TenantLookup
}

// inferChain walks an ordered priority list and short-circuits on the first
// resolvable candidate.
func inferChain(links []chainLink) (Candidate, bool) {
	for _, l := range links {
		if l.id == nil || *l.id == "" {
			continue
		}
		if tid, ok := l.lookup(*l.id); ok {
			return Candidate{TenantID: tid, Source: l.source}, true
		}
	}
	return Candidate{}, false
}

// InferProjectTenant resolves a project's tenant from its ownership chain:
// workspace first, then client, then creator.
func InferProjectTenant(p ProjectRow, workspaceTenant, clientTenant, userTenant TenantLookup) (Candidate, bool) {
	return inferChain([]chainLink{
		{source: "workspace", id: p.WorkspaceID, lookup: workspaceTenant},
		{source: "client", id: p.ClientID, lookup: clientTenant},
		{source: "creator", id: p.CreatedBy, lookup: userTenant},
	})
}

// InferTaskTenant resolves a task's tenant: parent project first (using the
// current run's post-backfill values), then creator. A personal task with
// no project and no resolvable creator is ambiguous.
func InferTaskTenant(t TaskRow, projectTenant, userTenant TenantLookup) (Candidate, bool) {
	return inferChain([]chainLink{
		{source: "project", id: t.ProjectID, lookup: projectTenant},
		{source: "creator", id: t.CreatedBy, lookup: userTenant},
	})
}

// InferTeamTenant resolves a team's tenant from its workspace only. No
// fallback.
func InferTeamTenant(t TeamRow, workspaceTenant TenantLookup) (Candidate, bool) {
	return inferChain([]chainLink{
		{source: "workspace", id: t.WorkspaceID, lookup: workspaceTenant},
	})
}

// InferUserTenant requires a singleton over the set of distinct tenant IDs
// implied by the user's associations. Zero or more than one distinct value
// is ambiguous; a majority is never picked.
func InferUserTenant(associated []string) (Candidate, string) {
	distinct := map[string]struct{}{}
	for _, tid := range associated {
		if tid == "" {
			continue
		}
		distinct[tid] = struct{}{}
	}
	switch len(distinct) {
	case 0:
		return Candidate{}, AmbiguityNoAssociations
	case 1:
		for tid := range distinct {
			return Candidate{TenantID: tid, Source: "associations"}, ""
		}
	}
	return Candidate{}, AmbiguityMultipleTenants
}

// mapLookup builds a TenantLookup over rows that already carry a non-null
// tenant, optionally excluding the quarantine sink from candidacy.
func mapLookup(m map[string]string) TenantLookup {
	return func(id string) (string, bool) {
		tid, ok := m[id]
		return tid, ok
	}
}

func sortedSample(ids []string, limit int) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
