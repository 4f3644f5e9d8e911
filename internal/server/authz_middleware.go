package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Go-Digital-Alchemy-Repos/DigitalWorkday-sub012/internal/routing"
	"github.com/Go-Digital-Alchemy-Repos/DigitalWorkday-sub012/pkg/authz"
)

func loadAuthorizer() (*authz.Authorizer, error) {
	modelPath := os.Getenv("AUTHZ_MODEL_PATH")
	if modelPath == "" {
		p, err := defaultAuthzModelPath()
		if err != nil {
			return nil, err
		}
		modelPath = p
	}

	policyPath := os.Getenv("AUTHZ_POLICY_PATH")
	if policyPath == "" {
		p, err := defaultAuthzPolicyPath()
		if err != nil {
			return nil, err
		}
		policyPath = p
	}

	mode, err := authz.ModeFromEnv()
	if err != nil {
		return nil, err
	}

	return authz.NewAuthorizer(modelPath, policyPath, mode)
}

func defaultAuthzModelPath() (string, error) {
	path := "config/access/model.conf"
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: authz model not found")
}

func defaultAuthzPolicyPath() (string, error) {
	path := "config/access/policy.csv"
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: authz policy not found")
}

type authorizer interface {
	Authorize(subject string, domain string, object string, action string) (allowed bool, enforced bool, err error)
}

func withAuthz(classifier *routing.Classifier, a authorizer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		rc := routing.RouteClassUI
		if classifier != nil {
			rc = classifier.Classify(path)
		}

		if path == "/health" || path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		tenant, ok := currentTenant(r.Context())
		if !ok {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "tenant_missing", "tenant missing")
			return
		}

		roleSlug := authz.RoleAnonymous
		if p, ok := currentPrincipal(r.Context()); ok {
			roleSlug = p.RoleSlug
		}

		subject := authz.SubjectFromRoleSlug(roleSlug)
		domain := authz.DomainFromTenantID(tenant.ID)

		object, action, shouldCheck := authzRequirementForRoute(r.Method, path)
		if !shouldCheck {
			next.ServeHTTP(w, r)
			return
		}

		allowed, enforced, err := a.Authorize(subject, domain, object, action)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "authz_error", "authz error")
			return
		}
		if enforced && !allowed {
			routing.WriteError(w, r, rc, http.StatusForbidden, "forbidden", "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func authzRequirementForRoute(method string, path string) (object string, action string, ok bool) {
	switch path {
	case "/tenantid/api/scan":
		if method == http.MethodGet {
			return authz.ObjectTenancyScan, authz.ActionRead, true
		}
		return "", "", false
	case "/tenantid/api/backfill":
		if method == http.MethodPost {
			return authz.ObjectTenancyBackfill, authz.ActionAdmin, true
		}
		return "", "", false
	case "/tenantid/api/audit":
		if method == http.MethodGet {
			return authz.ObjectTenancyAudit, authz.ActionRead, true
		}
		return "", "", false
	case "/integrity/api/checks":
		if method == http.MethodGet {
			return authz.ObjectTenancyIntegrity, authz.ActionRead, true
		}
		return "", "", false
	case "/tenant-health/api/recompute":
		if method == http.MethodPost {
			return authz.ObjectTenancyHealth, authz.ActionAdmin, true
		}
		return "", "", false
	case "/cache/api/invalidate":
		if method == http.MethodPost {
			return authz.ObjectTenancyCache, authz.ActionAdmin, true
		}
		return "", "", false
	case "/debug/api/config":
		if method == http.MethodGet {
			return authz.ObjectTenancyConfig, authz.ActionDebug, true
		}
		return "", "", false
	case "/tenancy/api/rules:evaluate":
		if method == http.MethodPost {
			return authz.ObjectTenancyRules, authz.ActionRead, true
		}
		return "", "", false
	case "/project/api/projects", "/project/api/projects:get":
		if method == http.MethodGet {
			return authz.ObjectProjectProjects, authz.ActionRead, true
		}
		return "", "", false
	case "/project/api/projects:rename":
		if method == http.MethodPost {
			return authz.ObjectProjectProjects, authz.ActionAdmin, true
		}
		return "", "", false
	case "/task/api/tasks", "/task/api/tasks:get":
		if method == http.MethodGet {
			return authz.ObjectTaskTasks, authz.ActionRead, true
		}
		return "", "", false
	case "/task/api/tasks:rename":
		if method == http.MethodPost {
			return authz.ObjectTaskTasks, authz.ActionAdmin, true
		}
		return "", "", false
	default:
		return "", "", false
	}
}
