package server

import (
	"net/http"
	"testing"

	"github.com/Go-Digital-Alchemy-Repos/DigitalWorkday-sub012/internal/tenancy"
)

func evaluateRule(t *testing.T, h http.Handler, body string) (*rulesEvaluateResponse, int, string) {
	t.Helper()
	rec := doRequest(t, h, testRequest{method: http.MethodPost, path: "/tenancy/api/rules:evaluate", body: body})
	if rec.Code != http.StatusOK {
		return nil, rec.Code, errorCode(t, rec)
	}
	var resp rulesEvaluateResponse
	decodeJSON(t, rec, &resp)
	return &resp, rec.Code, ""
}

func TestRulesEvaluate_DefaultModeAndTenant(t *testing.T) {
	h := newTestHandler(t, newTestStore(), Flags{Enforcement: tenancy.ModeSoft})

	resp, status, _ := evaluateRule(t, h, `{"resource_tenant_id":"t2"}`)
	if status != http.StatusOK {
		t.Fatalf("status=%d", status)
	}
	if resp.Mode != "soft" || resp.Reason != "cross-tenant-mismatch" {
		t.Fatalf("resp=%+v", resp)
	}
	if !resp.Allowed || !resp.Warn || resp.WarnHeader != "mismatch" {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.HTTPStatus != http.StatusOK {
		t.Fatalf("http_status=%d", resp.HTTPStatus)
	}
}

func TestRulesEvaluate_ModeOverride(t *testing.T) {
	h := newTestHandler(t, newTestStore(), Flags{Enforcement: tenancy.ModeSoft})

	resp, status, _ := evaluateRule(t, h, `{"mode":"strict","resource_tenant_id":"t2"}`)
	if status != http.StatusOK {
		t.Fatalf("status=%d", status)
	}
	if resp.Allowed {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.HTTPStatus != http.StatusNotFound {
		t.Fatalf("fetch http_status=%d", resp.HTTPStatus)
	}

	resp, _, _ = evaluateRule(t, h, `{"mode":"strict","operation":"mutate","resource_tenant_id":"t2"}`)
	if resp.HTTPStatus != http.StatusForbidden {
		t.Fatalf("mutate http_status=%d", resp.HTTPStatus)
	}
}

func TestRulesEvaluate_LegacyNull(t *testing.T) {
	h := newTestHandler(t, newTestStore(), Flags{Enforcement: tenancy.ModeStrict})

	resp, status, _ := evaluateRule(t, h, `{"resource_tenant_id":null}`)
	if status != http.StatusOK {
		t.Fatalf("status=%d", status)
	}
	if resp.Reason != "legacy-null-tenant" || !resp.Allowed || resp.WarnHeader != "missing-tenantId" {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestRulesEvaluate_InvalidMode(t *testing.T) {
	h := newTestHandler(t, newTestStore(), Flags{Enforcement: tenancy.ModeSoft})

	_, status, code := evaluateRule(t, h, `{"mode":"paranoid"}`)
	if status != http.StatusBadRequest || code != "invalid_request" {
		t.Fatalf("status=%d code=%q", status, code)
	}
}

func TestRulesEvaluate_Eligibility(t *testing.T) {
	h := newTestHandler(t, newTestStore(), Flags{Enforcement: tenancy.ModeSoft})

	resp, status, _ := evaluateRule(t, h, `{"resource_tenant_id":"t2","eligibility_expr":"ctx[\"reason\"] == \"cross-tenant-mismatch\""}`)
	if status != http.StatusOK {
		t.Fatalf("status=%d", status)
	}
	if resp.Eligible == nil || !*resp.Eligible {
		t.Fatalf("resp=%+v", resp)
	}

	resp, _, _ = evaluateRule(t, h, `{"resource_tenant_id":"t2","eligibility_expr":"ctx[\"actor_role\"] == \"superadmin\""}`)
	if resp.Eligible == nil || *resp.Eligible {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestRulesEvaluate_ParseFailure(t *testing.T) {
	h := newTestHandler(t, newTestStore(), Flags{Enforcement: tenancy.ModeSoft})

	_, status, code := evaluateRule(t, h, `{"eligibility_expr":"ctx["}`)
	if status != http.StatusBadRequest || code != "RULE_PARSE_FAILED" {
		t.Fatalf("status=%d code=%q", status, code)
	}

	// Non-bool output is a parse-level rejection too.
	_, status, code = evaluateRule(t, h, `{"eligibility_expr":"ctx[\"mode\"]"}`)
	if status != http.StatusBadRequest || code != "RULE_PARSE_FAILED" {
		t.Fatalf("status=%d code=%q", status, code)
	}
}
