package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/Go-Digital-Alchemy-Repos/DigitalWorkday-sub012/internal/routing"
	"github.com/Go-Digital-Alchemy-Repos/DigitalWorkday-sub012/internal/tenancy"
)

// rules:evaluate is a what-if endpoint: operators feed it a hypothetical
// resource/tenant pairing (and optionally an override mode) and get back
// the exact decision the enforcement tables would make, without touching
// any stored row. An optional CEL eligibility expression is evaluated
// against the decision context so policy drafts can be tried out before
// they exist anywhere.

type rulesEvaluateRequest struct {
	Mode              string  `json:"mode,omitempty"`
	ResourceTenantID  *string `json:"resource_tenant_id"`
	EffectiveTenantID string  `json:"effective_tenant_id"`
	Operation         string  `json:"operation,omitempty"`
	EligibilityExpr   string  `json:"eligibility_expr,omitempty"`
}

type rulesEvaluateResponse struct {
	Mode            string `json:"mode"`
	Operation       string `json:"operation"`
	Reason          string `json:"reason"`
	Allowed         bool   `json:"allowed"`
	Warn            bool   `json:"warn"`
	WarnHeader      string `json:"warn_header,omitempty"`
	HTTPStatus      int    `json:"http_status"`
	Eligible        *bool  `json:"eligible,omitempty"`
	EligibilityExpr string `json:"eligibility_expr,omitempty"`
	BriefExplain    string `json:"brief_explain"`
}

const (
	ruleOperationFetch  = "fetch"
	ruleOperationMutate = "mutate"
)

var newRulesCELEnv = func() (*cel.Env, error) {
	return cel.NewEnv(cel.Variable("ctx", cel.MapType(cel.StringType, cel.StringType)))
}

var newRulesCELProgram = func(env *cel.Env, ast *cel.Ast) (cel.Program, error) {
	return env.Program(ast)
}

var ruleEligibilityProgramCache sync.Map

func handleRulesEvaluateAPI(w http.ResponseWriter, r *http.Request, defaultMode tenancy.Mode) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	var req rulesEvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "bad_json", "bad json")
		return
	}

	mode := defaultMode
	if trimmed := strings.TrimSpace(req.Mode); trimmed != "" {
		parsed, err := tenancy.ParseMode(trimmed)
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_request", "invalid mode")
			return
		}
		mode = parsed
	}

	operation := strings.ToLower(strings.TrimSpace(req.Operation))
	if operation == "" {
		operation = ruleOperationFetch
	}
	if operation != ruleOperationFetch && operation != ruleOperationMutate {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_request", "invalid operation")
		return
	}

	effectiveTenantID := strings.TrimSpace(req.EffectiveTenantID)
	if effectiveTenantID == "" {
		effectiveTenantID = tenant.ID
	}

	reason := tenancy.Classify(req.ResourceTenantID, effectiveTenantID)
	dec := tenancy.Decide(mode, reason)

	resp := rulesEvaluateResponse{
		Mode:         string(mode),
		Operation:    operation,
		Reason:       string(reason),
		Allowed:      dec.Allowed,
		Warn:         dec.Warn,
		HTTPStatus:   ruleHTTPStatus(operation, dec),
		BriefExplain: ruleBriefExplain(mode, reason, dec),
	}
	if dec.Warn {
		resp.WarnHeader = tenancy.WarnCode(reason)
	}

	if expr := strings.TrimSpace(req.EligibilityExpr); expr != "" {
		eligible, err := evalRuleEligibilityExpr(expr, ruleContextMap(r, tenant.ID, effectiveTenantID, req.ResourceTenantID, mode, reason, dec))
		if err != nil {
			var parseErr ruleParseError
			if errors.As(err, &parseErr) {
				routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "RULE_PARSE_FAILED", err.Error())
				return
			}
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "RULE_EVAL_FAILED", "rule evaluation failed")
			return
		}
		resp.Eligible = &eligible
		resp.EligibilityExpr = expr
	}

	writeJSON(w, http.StatusOK, resp)
}

func ruleHTTPStatus(operation string, dec tenancy.Decision) int {
	if dec.Allowed {
		return http.StatusOK
	}
	// Blocked fetches are masked as not-found so existence never leaks.
	// Blocked mutations hit a resource already known to exist, so they
	// report forbidden.
	if operation == ruleOperationMutate {
		return http.StatusForbidden
	}
	return http.StatusNotFound
}

func ruleBriefExplain(mode tenancy.Mode, reason tenancy.Reason, dec tenancy.Decision) string {
	verdict := "allowed"
	if !dec.Allowed {
		verdict = "blocked"
	}
	if dec.Warn {
		verdict += " with warning"
	}
	return fmt.Sprintf("mode=%s reason=%s: %s", mode, reason, verdict)
}

func ruleContextMap(r *http.Request, tenantID string, effectiveTenantID string, resourceTenantID *string, mode tenancy.Mode, reason tenancy.Reason, dec tenancy.Decision) map[string]string {
	ctxMap := map[string]string{
		"tenant_id":           tenantID,
		"effective_tenant_id": effectiveTenantID,
		"resource_tenant_id":  "",
		"mode":                string(mode),
		"reason":              string(reason),
		"allowed":             strconv.FormatBool(dec.Allowed),
		"warn":                strconv.FormatBool(dec.Warn),
	}
	if resourceTenantID != nil {
		ctxMap["resource_tenant_id"] = *resourceTenantID
	}
	if principal, ok := currentPrincipal(r.Context()); ok {
		ctxMap["actor_id"] = strings.TrimSpace(principal.ID)
		ctxMap["actor_role"] = strings.ToLower(strings.TrimSpace(principal.RoleSlug))
	}
	return ctxMap
}

type ruleParseError struct{ err error }

func (e ruleParseError) Error() string { return e.err.Error() }
func (e ruleParseError) Unwrap() error { return e.err }

func evalRuleEligibilityExpr(expr string, ctxMap map[string]string) (bool, error) {
	program, err := loadOrCompileRuleProgram(expr)
	if err != nil {
		return false, err
	}
	out, _, err := program.Eval(map[string]any{"ctx": ctxMap})
	if err != nil {
		return false, err
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, errors.New("expression did not produce a bool")
	}
	return v, nil
}

func loadOrCompileRuleProgram(expr string) (cel.Program, error) {
	if cached, ok := ruleEligibilityProgramCache.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	env, err := newRulesCELEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, ruleParseError{err: issues.Err()}
	}
	if ast.OutputType() != cel.BoolType {
		return nil, ruleParseError{err: errors.New("expression must evaluate to bool")}
	}
	program, err := newRulesCELProgram(env, ast)
	if err != nil {
		return nil, err
	}
	ruleEligibilityProgramCache.Store(expr, program)
	return program, nil
}
