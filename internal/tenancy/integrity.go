package tenancy

import "context"

// Severity grades an integrity finding. Blockers drive operator action;
// nothing here ever rejects a request automatically.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarn    Severity = "warn"
	SeverityBlocker Severity = "blocker"
)

const integritySampleLimit = 5

// Issue codes.
const (
	CodeTaskProjectTenantMismatch   = "TASK_PROJECT_TENANT_MISMATCH"
	CodeProjectClientTenantMismatch = "PROJECT_CLIENT_TENANT_MISMATCH"
	CodeTeamWorkspaceTenantMismatch = "TEAM_WORKSPACE_TENANT_MISMATCH"
	CodeUsersMissingTenant          = "USERS_MISSING_TENANT"
	CodeProjectsMissingWorkspace    = "PROJECTS_MISSING_WORKSPACE"
	CodeMultiplePrimaryWorkspaces   = "MULTIPLE_PRIMARY_WORKSPACES"
)

// Issue is a read-only report artifact: full count, bounded sample. The
// report size stays constant regardless of data volume.
type Issue struct {
	Code        string   `json:"code"`
	Severity    Severity `json:"severity"`
	Count       int      `json:"count"`
	SampleIDs   []string `json:"sample_ids"`
	Description string   `json:"description"`
}

// Checker is a pure cross-entity consistency scan over one dataset read.
type Checker struct {
	Store DatasetLoader
}

func (c *Checker) Run(ctx context.Context) ([]Issue, map[Severity]int, error) {
	ds, err := c.Store.LoadDataset(ctx)
	if err != nil {
		return nil, nil, err
	}
	issues := CheckDataset(ds)
	bySeverity := map[Severity]int{}
	for _, iss := range issues {
		bySeverity[iss.Severity]++
	}
	return issues, bySeverity, nil
}

// CheckDataset computes every check over a pre-loaded dataset. Checks with
// zero findings are omitted from the report.
func CheckDataset(ds *Dataset) []Issue {
	var issues []Issue

	projectTenant := map[string]*string{}
	for _, p := range ds.Projects {
		projectTenant[p.ID] = p.TenantID
	}
	clientTenant := map[string]*string{}
	for _, cl := range ds.Clients {
		clientTenant[cl.ID] = cl.TenantID
	}
	workspaceTenant := map[string]*string{}
	for _, w := range ds.Workspaces {
		workspaceTenant[w.ID] = w.TenantID
	}

	var taskMismatch []string
	for _, t := range ds.Tasks {
		if t.ProjectID == nil {
			continue
		}
		pt, ok := projectTenant[*t.ProjectID]
		if !ok {
			continue
		}
		if tenantDisagrees(t.TenantID, pt) {
			taskMismatch = append(taskMismatch, t.ID)
		}
	}
	issues = appendIssue(issues, Issue{
		Code:        CodeTaskProjectTenantMismatch,
		Severity:    SeverityBlocker,
		Description: "tasks whose tenant disagrees with their parent project",
	}, taskMismatch)

	var projectClientMismatch []string
	for _, p := range ds.Projects {
		if p.ClientID == nil {
			continue
		}
		ct, ok := clientTenant[*p.ClientID]
		if !ok {
			continue
		}
		if tenantDisagrees(p.TenantID, ct) {
			projectClientMismatch = append(projectClientMismatch, p.ID)
		}
	}
	issues = appendIssue(issues, Issue{
		Code:        CodeProjectClientTenantMismatch,
		Severity:    SeverityBlocker,
		Description: "projects whose tenant disagrees with their client",
	}, projectClientMismatch)

	var teamMismatch []string
	for _, t := range ds.Teams {
		if t.WorkspaceID == nil {
			continue
		}
		wt, ok := workspaceTenant[*t.WorkspaceID]
		if !ok {
			continue
		}
		if tenantDisagrees(t.TenantID, wt) {
			teamMismatch = append(teamMismatch, t.ID)
		}
	}
	issues = appendIssue(issues, Issue{
		Code:        CodeTeamWorkspaceTenantMismatch,
		Severity:    SeverityBlocker,
		Description: "teams whose tenant disagrees with their workspace",
	}, teamMismatch)

	var usersMissing []string
	for _, u := range ds.Users {
		if u.Role == RoleSuper {
			continue
		}
		if u.TenantID == nil {
			usersMissing = append(usersMissing, u.ID)
		}
	}
	issues = appendIssue(issues, Issue{
		Code:        CodeUsersMissingTenant,
		Severity:    SeverityWarn,
		Description: "non-admin users without a tenant",
	}, usersMissing)

	var projectsMissingWorkspace []string
	for _, p := range ds.Projects {
		if p.WorkspaceID == nil {
			projectsMissingWorkspace = append(projectsMissingWorkspace, p.ID)
		}
	}
	issues = appendIssue(issues, Issue{
		Code:        CodeProjectsMissingWorkspace,
		Severity:    SeverityWarn,
		Description: "projects without a workspace",
	}, projectsMissingWorkspace)

	primaryByTenant := map[string][]string{}
	for _, w := range ds.Workspaces {
		if w.IsPrimary && w.TenantID != nil {
			primaryByTenant[*w.TenantID] = append(primaryByTenant[*w.TenantID], w.ID)
		}
	}
	var multiPrimary []string
	for tid, ids := range primaryByTenant {
		if len(ids) > 1 {
			multiPrimary = append(multiPrimary, tid)
		}
	}
	issues = appendIssue(issues, Issue{
		Code:        CodeMultiplePrimaryWorkspaces,
		Severity:    SeverityWarn,
		Description: "tenants with more than one primary workspace",
	}, sortedSample(multiPrimary, len(multiPrimary)))

	return issues
}

// tenantDisagrees holds when both sides are set and differ. A null child
// against a set parent is legacy data, reported by the backfill scan, not
// a cross-entity mismatch.
func tenantDisagrees(child, parent *string) bool {
	if child == nil || parent == nil {
		return false
	}
	return *child != *parent
}

func appendIssue(issues []Issue, iss Issue, ids []string) []Issue {
	if len(ids) == 0 {
		return issues
	}
	iss.Count = len(ids)
	iss.SampleIDs = ids
	if len(iss.SampleIDs) > integritySampleLimit {
		iss.SampleIDs = iss.SampleIDs[:integritySampleLimit]
	}
	return append(issues, iss)
}
