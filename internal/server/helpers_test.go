package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Go-Digital-Alchemy-Repos/DigitalWorkday-sub012/internal/tenancy"
)

const (
	testHost     = "acme.test"
	testTenantID = "t1"

	testAdminKey  = "admin-key"
	testMemberKey = "member-key"
)

func strptr(s string) *string { return &s }

func newTestStore() *tenancy.MemoryStore {
	store := tenancy.NewMemoryStore()
	store.AddTenant(tenancy.Tenant{ID: testTenantID, Name: "Acme", Slug: "acme", Status: tenancy.TenantStatusActive})
	store.AddTenant(tenancy.Tenant{ID: "t2", Name: "Globex", Slug: "globex", Status: tenancy.TenantStatusActive})
	return store
}

func newTestPrincipals() *principalMemoryStore {
	principals := newPrincipalMemoryStore()
	principals.AddKey(testAdminKey, Principal{
		ID:       "u-admin",
		TenantID: testTenantID,
		RoleSlug: "tenant-admin",
		Status:   "active",
		Email:    "admin@acme.test",
	})
	principals.AddKey(testMemberKey, Principal{
		ID:       "u-member",
		TenantID: testTenantID,
		RoleSlug: "member",
		Status:   "active",
		Email:    "member@acme.test",
	})
	return principals
}

func newTestHandler(t *testing.T, store TenancyStore, flags Flags) http.Handler {
	t.Helper()

	resolver := newStaticTenancyResolver(map[string]Tenant{
		testHost: {ID: testTenantID, Domain: testHost, Name: "Acme"},
	})
	h, err := NewHandlerWithOptions(HandlerOptions{
		TenancyResolver: resolver,
		Store:           store,
		Principals:      newTestPrincipals(),
		Flags:           &flags,
	})
	if err != nil {
		t.Fatalf("NewHandlerWithOptions: %v", err)
	}
	return h
}

type testRequest struct {
	method string
	path   string
	body   string
	apiKey string
	header map[string]string
}

func doRequest(t *testing.T, h http.Handler, tr testRequest) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if tr.body != "" {
		body = strings.NewReader(tr.body)
	}
	req := httptest.NewRequest(tr.method, tr.path, body)
	req.Host = testHost
	apiKey := tr.apiKey
	if apiKey == "" {
		apiKey = testAdminKey
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	for k, v := range tr.header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Code string `json:"code"`
	}
	decodeJSON(t, rec, &envelope)
	return envelope.Code
}
