package authz

const (
	RoleTenantAdmin = "tenant-admin"
	RoleMember      = "member"
	RoleAnonymous   = "anonymous"
	RoleSuperadmin  = "superadmin"
)

const (
	ActionRead  = "read"
	ActionAdmin = "admin"
	ActionDebug = "debug"
)

const DomainGlobal = "global"

const (
	ObjectTenancyScan      = "tenancy.scan"
	ObjectTenancyBackfill  = "tenancy.backfill"
	ObjectTenancyIntegrity = "tenancy.integrity"
	ObjectTenancyHealth    = "tenancy.health"
	ObjectTenancyCache     = "tenancy.cache"
	ObjectTenancyRules     = "tenancy.rules"
	ObjectTenancyAudit     = "tenancy.audit"
	ObjectTenancyConfig    = "tenancy.config"
	ObjectProjectProjects  = "project.projects"
	ObjectTaskTasks        = "task.tasks"
)
