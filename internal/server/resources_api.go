package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Go-Digital-Alchemy-Repos/DigitalWorkday-sub012/internal/routing"
	"github.com/Go-Digital-Alchemy-Repos/DigitalWorkday-sub012/internal/tenancy"
)

// ResourceStore is what the consuming project/task APIs need from
// persistence: policy-reconciled reads plus the rename write.
type ResourceStore interface {
	tenancy.ResourceReader
	tenancy.ResourceWriter
}

type resourceView struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	TenantID *string `json:"tenant_id"`
}

func resourceViewOf(res tenancy.Resource) resourceView {
	return resourceView{ID: res.ID, Name: res.Name, TenantID: res.TenantID}
}

// setWarnHeader writes X-Tenancy-Warn for every non-ok classification.
// The reconciler never warns in off mode, so the header is simply absent
// there.
func setWarnHeader(w http.ResponseWriter, reasons ...tenancy.Reason) {
	for _, reason := range reasons {
		if code := tenancy.WarnCode(reason); code != "" {
			w.Header().Add(tenancy.WarnHeader, code)
		}
	}
}

func handleResourceListAPI(w http.ResponseWriter, r *http.Request, rec *tenancy.Reconciler, entity tenancy.Entity) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "tenant_missing", "")
		return
	}

	items, reasons, err := rec.ListWithPolicy(r.Context(), entity, tenant.ID)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "resource_list_failed", "")
		return
	}

	setWarnHeader(w, reasons...)
	out := make([]resourceView, 0, len(items))
	for _, res := range items {
		out = append(out, resourceViewOf(res))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func handleResourceGetAPI(w http.ResponseWriter, r *http.Request, rec *tenancy.Reconciler, entity tenancy.Entity) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "tenant_missing", "")
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_request", "id required")
		return
	}

	res, dec, found, err := rec.FetchWithPolicy(r.Context(), entity, tenant.ID, id)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "resource_get_failed", "")
		return
	}
	if dec.Warn {
		setWarnHeader(w, dec.Reason)
	}
	if !found {
		// Covers both a genuinely missing row and a strict-mode block.
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusNotFound, "not_found", "not found")
		return
	}
	writeJSON(w, http.StatusOK, resourceViewOf(res))
}

type renameRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func handleResourceRenameAPI(w http.ResponseWriter, r *http.Request, store ResourceStore, mode tenancy.Mode, entity tenancy.Entity) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "tenant_missing", "")
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "bad_json", "bad json")
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)
	if req.ID == "" || req.Name == "" {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_request", "id and name required")
		return
	}

	res, found, err := store.UnscopedGet(r.Context(), entity, req.ID)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "resource_get_failed", "")
		return
	}
	if !found {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusNotFound, "not_found", "not found")
		return
	}

	allowed, dec := tenancy.ValidateOwnership(mode, res, tenant.ID)
	if dec.Warn {
		setWarnHeader(w, dec.Reason)
	}
	if !allowed {
		// The resource is known to exist; denial is 403, not 404.
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusForbidden, "forbidden", "forbidden")
		return
	}

	if err := store.Rename(r.Context(), entity, req.ID, req.Name); err != nil {
		if isBadRequestError(err) || isPgInvalidInput(err) {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_request", stablePgMessage(err))
			return
		}
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "resource_rename_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": req.ID, "name": req.Name})
}
