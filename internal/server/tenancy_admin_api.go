package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/Go-Digital-Alchemy-Repos/DigitalWorkday-sub012/internal/routing"
	"github.com/Go-Digital-Alchemy-Repos/DigitalWorkday-sub012/internal/tenancy"
	"github.com/Go-Digital-Alchemy-Repos/DigitalWorkday-sub012/pkg/uuidv7"
)

const (
	confirmBackfillHeader = "X-Confirm-Backfill"
	confirmBackfillToken  = "APPLY_TENANTID_BACKFILL"

	confirmActionHeader         = "X-Confirm-Action"
	confirmTokenRecomputeHealth = "RECOMPUTE_TENANT_HEALTH"
	confirmTokenInvalidateCache = "INVALIDATE_CACHES"
)

const auditListLimit = 50

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// checkMutationGates enforces the env flag first, then the exact confirm
// token, before any state is read or written. Flag off is 403; a missing
// or wrong token is 400.
func checkMutationGates(w http.ResponseWriter, r *http.Request, allowed bool, deniedCode string, header string, wantToken string) bool {
	if !allowed {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusForbidden, deniedCode, "")
		return false
	}
	if r.Header.Get(header) != wantToken {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "CONFIRMATION_REQUIRED", "")
		return false
	}
	return true
}

func appendAuditEvent(ctx context.Context, audit tenancy.AuditStore, action string, description string, metadata map[string]any) {
	p, _ := currentPrincipal(ctx)
	t, _ := currentTenant(ctx)
	id, err := uuidv7.NewString()
	if err != nil {
		log.Printf("server: audit id: %v", err)
		return
	}
	ev := tenancy.AuditEvent{
		ID:          id,
		TenantID:    t.ID,
		ActorID:     p.ID,
		Action:      action,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}
	if err := audit.Append(ctx, ev); err != nil {
		log.Printf("server: audit append: %v", err)
	}
}

type scanResponse struct {
	EnforcementMode   tenancy.Mode           `json:"enforcement_mode"`
	NullTenantRows    map[tenancy.Entity]int `json:"null_tenant_rows"`
	BackfillAllowed   bool                   `json:"backfill_allowed"`
	QuarantineExists  bool                   `json:"quarantine_exists"`
	HealthSnapshotAge string                 `json:"health_snapshot_age,omitempty"`
	LegacyRows        int                    `json:"legacy_rows"`
	TenantHealth      *healthSnapshot        `json:"tenant_health,omitempty"`
	Notes             []string               `json:"notes"`
}

type scanStore interface {
	NullTenantCounter
	QuarantineTenant(ctx context.Context) (tenancy.Tenant, bool, error)
}

func handleTenantIDScanAPI(w http.ResponseWriter, r *http.Request, store scanStore, health *healthService, flags Flags) {
	counts, err := store.NullTenantCounts(r.Context())
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "scan_load_failed", "")
		return
	}
	_, quarantineExists, err := store.QuarantineTenant(r.Context())
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "scan_load_failed", "")
		return
	}

	resp := scanResponse{
		EnforcementMode:  flags.Enforcement,
		NullTenantRows:   counts,
		BackfillAllowed:  flags.BackfillAllowed,
		QuarantineExists: quarantineExists,
		LegacyRows:       health.LegacyRows(),
		Notes:            scanNotes(counts, flags, quarantineExists),
	}
	if age, ok := health.Age(); ok {
		resp.HealthSnapshotAge = age.Round(time.Second).String()
	}
	if t, ok := currentTenant(r.Context()); ok {
		if snap, ok := health.Snapshot(t.ID); ok {
			resp.TenantHealth = &snap
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func scanNotes(counts map[tenancy.Entity]int, flags Flags, quarantineExists bool) []string {
	notes := make([]string, 0, 3)
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		notes = append(notes, "no rows pending backfill")
	} else if !flags.BackfillAllowed {
		notes = append(notes, "rows pending but apply is disabled; set BACKFILL_TENANT_IDS_ALLOWED=1 to enable")
	} else {
		notes = append(notes, "rows pending; run a dry_run first, then apply with the confirmation header")
	}
	if quarantineExists {
		notes = append(notes, "quarantine tenant exists; review quarantined rows before re-homing them")
	}
	return notes
}

func handleTenantIDBackfillAPI(w http.ResponseWriter, r *http.Request, store tenancy.BackfillStore, audit tenancy.AuditStore, flags Flags) {
	mode, ok := tenancy.ParseBackfillMode(r.URL.Query().Get("mode"))
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "INVALID_BACKFILL_MODE", "")
		return
	}

	if mode == tenancy.BackfillApply {
		if !checkMutationGates(w, r, flags.BackfillAllowed, "BACKFILL_NOT_ALLOWED", confirmBackfillHeader, confirmBackfillToken) {
			return
		}
	}

	engine := &tenancy.Engine{Store: store}
	result, err := engine.Run(r.Context(), mode)
	if err != nil {
		if errors.Is(err, tenancy.ErrBackfillInProgress) {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusConflict, "BACKFILL_IN_PROGRESS", "")
			return
		}
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "backfill_run_failed", "")
		return
	}

	if mode == tenancy.BackfillApply {
		updated, quarantined, failed := result.Totals()
		appendAuditEvent(r.Context(), audit, "tenantid.backfill.apply", result.Describe(), map[string]any{
			"updated":     updated,
			"quarantined": quarantined,
			"failed":      failed,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

type integrityResponse struct {
	Issues     []tenancy.Issue          `json:"issues"`
	BySeverity map[tenancy.Severity]int `json:"by_severity"`
}

func handleIntegrityChecksAPI(w http.ResponseWriter, r *http.Request, store tenancy.DatasetLoader) {
	checker := &tenancy.Checker{Store: store}
	issues, bySeverity, err := checker.Run(r.Context())
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "integrity_run_failed", "")
		return
	}
	if issues == nil {
		issues = []tenancy.Issue{}
	}
	writeJSON(w, http.StatusOK, integrityResponse{Issues: issues, BySeverity: bySeverity})
}

func handleTenantHealthRecomputeAPI(w http.ResponseWriter, r *http.Request, health *healthService, audit tenancy.AuditStore, flags Flags) {
	if !checkMutationGates(w, r, flags.DebugActionsAllowed, "DEBUG_NOT_ALLOWED", confirmActionHeader, confirmTokenRecomputeHealth) {
		return
	}

	n, err := health.Recompute(r.Context())
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "health_recompute_failed", "")
		return
	}
	appendAuditEvent(r.Context(), audit, "tenant-health.recompute", "tenant health snapshots recomputed", map[string]any{
		"tenants": n,
	})
	writeJSON(w, http.StatusOK, map[string]any{"tenants": n})
}

func handleCacheInvalidateAPI(w http.ResponseWriter, r *http.Request, caches []interface{ Purge() }, audit tenancy.AuditStore, flags Flags) {
	if !checkMutationGates(w, r, flags.DebugActionsAllowed, "DEBUG_NOT_ALLOWED", confirmActionHeader, confirmTokenInvalidateCache) {
		return
	}

	for _, c := range caches {
		c.Purge()
	}
	appendAuditEvent(r.Context(), audit, "cache.invalidate", "server caches purged", map[string]any{
		"caches": len(caches),
	})
	writeJSON(w, http.StatusOK, map[string]any{"purged": len(caches)})
}

func handleDebugConfigAPI(w http.ResponseWriter, r *http.Request, flags Flags) {
	if !flags.DebugActionsAllowed {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusForbidden, "DEBUG_NOT_ALLOWED", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enforcement_mode":      flags.Enforcement,
		"backfill_allowed":      flags.BackfillAllowed,
		"debug_actions_allowed": flags.DebugActionsAllowed,
		"confirmation_tokens": map[string]string{
			"backfill_apply":          confirmBackfillToken,
			"tenant_health_recompute": confirmTokenRecomputeHealth,
			"cache_invalidate":        confirmTokenInvalidateCache,
		},
	})
}

type auditEventView struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	ActorID     string         `json:"actor_id"`
	Action      string         `json:"action"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func handleTenantIDAuditAPI(w http.ResponseWriter, r *http.Request, audit tenancy.AuditStore) {
	events, err := audit.ListRecent(r.Context(), auditListLimit)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "audit_list_failed", "")
		return
	}
	out := make([]auditEventView, 0, len(events))
	for _, ev := range events {
		out = append(out, auditEventView{
			ID:          ev.ID,
			TenantID:    ev.TenantID,
			ActorID:     ev.ActorID,
			Action:      ev.Action,
			Description: ev.Description,
			Metadata:    ev.Metadata,
			CreatedAt:   ev.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

// NullTenantCounter is the scan endpoint's narrow read surface.
type NullTenantCounter interface {
	NullTenantCounts(ctx context.Context) (map[tenancy.Entity]int, error)
}
