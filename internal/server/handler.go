package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Go-Digital-Alchemy-Repos/DigitalWorkday-sub012/internal/routing"
	"github.com/Go-Digital-Alchemy-Repos/DigitalWorkday-sub012/internal/tenancy"
)

// TenancyStore is the full persistence surface the handler wires: the
// reconciled read/write lanes, the backfill engine's store, the audit
// trail and the scan counters. PGStore and MemoryStore both satisfy it.
type TenancyStore interface {
	tenancy.ResourceReader
	tenancy.ResourceWriter
	tenancy.BackfillStore
	tenancy.AuditStore
	NullTenantCounter
}

func NewHandler() (http.Handler, error) {
	return NewHandlerWithOptions(HandlerOptions{})
}

type HandlerOptions struct {
	TenancyResolver TenancyResolver
	Store           TenancyStore
	Principals      principalStore
	Flags           *Flags
}

func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	allowlistPath := os.Getenv("ALLOWLIST_PATH")
	if allowlistPath == "" {
		p, err := defaultAllowlistPath()
		if err != nil {
			return nil, err
		}
		allowlistPath = p
	}

	a, err := routing.LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, err
	}

	classifier, err := routing.NewClassifier(a, "server")
	if err != nil {
		return nil, err
	}

	var flags Flags
	if opts.Flags != nil {
		flags = *opts.Flags
	} else {
		f, err := FlagsFromEnv()
		if err != nil {
			return nil, err
		}
		flags = f
	}

	store := opts.Store
	var pgPool *pgxpool.Pool
	if store == nil {
		dsn := dbDSNFromEnv()
		pool, err := pgxpool.New(context.Background(), dsn)
		if err != nil {
			return nil, err
		}
		pgPool = pool
		store = tenancy.NewPGStore(pgPool)
	}

	tenancyResolver := opts.TenancyResolver
	if tenancyResolver == nil {
		if pgPool != nil {
			tenancyResolver = newTenancyDBResolver(pgPool)
		} else {
			tenants, err := loadTenants()
			if err != nil {
				return nil, errors.New("server: missing tenancy resolver (set HandlerOptions.TenancyResolver or provide config/tenants.yaml)")
			}
			tenancyResolver = newStaticTenancyResolver(tenants)
		}
	}
	cachedResolver := newCachedTenancyResolver(tenancyResolver)

	principals := opts.Principals
	if principals == nil {
		if pgPool == nil {
			return nil, errors.New("server: missing principal store (set HandlerOptions.Principals or use default PG stores)")
		}
		principals = newPrincipalPGStore(pgPool)
	}

	authorizer, err := loadAuthorizer()
	if err != nil {
		return nil, err
	}

	health := newHealthService(store)
	reconciler := &tenancy.Reconciler{Mode: flags.Enforcement, Store: store}
	caches := []interface{ Purge() }{health, cachedResolver}

	router := routing.NewRouter(classifier)

	router.Handle(routing.RouteClassOps, http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))
	router.Handle(routing.RouteClassOps, http.MethodGet, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/tenantid/api/scan", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleTenantIDScanAPI(w, r, store, health, flags)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/tenantid/api/backfill", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleTenantIDBackfillAPI(w, r, store, store, flags)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/tenantid/api/audit", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleTenantIDAuditAPI(w, r, store)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/integrity/api/checks", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleIntegrityChecksAPI(w, r, store)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/tenant-health/api/recompute", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleTenantHealthRecomputeAPI(w, r, health, store, flags)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/cache/api/invalidate", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleCacheInvalidateAPI(w, r, caches, store, flags)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/debug/api/config", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleDebugConfigAPI(w, r, flags)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/tenancy/api/rules:evaluate", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleRulesEvaluateAPI(w, r, flags.Enforcement)
	}))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/project/api/projects", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleResourceListAPI(w, r, reconciler, tenancy.EntityProject)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/project/api/projects:get", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleResourceGetAPI(w, r, reconciler, tenancy.EntityProject)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/project/api/projects:rename", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleResourceRenameAPI(w, r, store, flags.Enforcement, tenancy.EntityProject)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/task/api/tasks", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleResourceListAPI(w, r, reconciler, tenancy.EntityTask)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/task/api/tasks:get", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleResourceGetAPI(w, r, reconciler, tenancy.EntityTask)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/task/api/tasks:rename", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleResourceRenameAPI(w, r, store, flags.Enforcement, tenancy.EntityTask)
	}))

	guarded := withTenantAndPrincipal(classifier, cachedResolver, principals, withAuthz(classifier, authorizer, router))

	mux := http.NewServeMux()
	mux.Handle("/", guarded)
	return mux, nil
}

func MustNewHandler() http.Handler {
	h, err := NewHandler()
	if err != nil {
		panic(errors.New("server: failed to build handler: " + err.Error()))
	}
	return h
}

func defaultAllowlistPath() (string, error) {
	path := "config/routing/allowlist.yaml"
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: allowlist not found")
}

// withTenantAndPrincipal resolves the tenant from the request host and the
// principal from the bearer API key. Every route except the health probes
// requires both.
func withTenantAndPrincipal(classifier *routing.Classifier, tenants TenancyResolver, principals principalStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		rc := routing.RouteClassInternalAPI
		if classifier != nil {
			rc = classifier.Classify(path)
		}

		if path == "/health" || path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		tenantDomain := effectiveHost(r)
		t, ok, err := tenants.ResolveTenant(r.Context(), tenantDomain)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "tenant_resolve_error", "tenant resolve error")
			return
		}
		if !ok {
			routing.WriteError(w, r, rc, http.StatusNotFound, "tenant_not_found", "tenant not found")
			return
		}
		r = r.WithContext(withTenant(r.Context(), t))

		token, ok := bearerToken(r)
		if !ok {
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		p, ok, err := principals.GetByAPIKeyHash(r.Context(), t.ID, hashAPIKey(token))
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "principal_lookup_error", "principal lookup error")
			return
		}
		if !ok || p.Status != "active" {
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		r = r.WithContext(withPrincipal(r.Context(), p))

		next.ServeHTTP(w, r)
	})
}
