package tenancy

import (
	"errors"
	"os"
	"strings"
)

// Mode is the process-wide tenancy enforcement mode. It is resolved once at
// startup and threaded explicitly through every evaluation; it must never
// vary mid-request.
type Mode string

const (
	ModeOff    Mode = "off"
	ModeSoft   Mode = "soft"
	ModeStrict Mode = "strict"
)

// ModeFromEnv reads TENANCY_ENFORCEMENT. Unset and blank resolve to soft,
// the canonical rollout default: violations are surfaced but not yet
// enforced. Any other unrecognized value is a startup error.
func ModeFromEnv() (Mode, error) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv("TENANCY_ENFORCEMENT")))
	if raw == "" {
		return ModeSoft, nil
	}
	switch Mode(raw) {
	case ModeOff, ModeSoft, ModeStrict:
		return Mode(raw), nil
	default:
		return "", errors.New("tenancy: invalid TENANCY_ENFORCEMENT (expected off|soft|strict)")
	}
}

func (m Mode) Valid() bool {
	return m == ModeOff || m == ModeSoft || m == ModeStrict
}

// ParseMode parses an explicit mode string, case-insensitively.
func ParseMode(raw string) (Mode, error) {
	m := Mode(strings.TrimSpace(strings.ToLower(raw)))
	if !m.Valid() {
		return "", errors.New("tenancy: invalid mode (expected off|soft|strict)")
	}
	return m, nil
}

// Reason classifies a resource against the caller's effective tenant.
type Reason string

const (
	ReasonOK                  Reason = "ok"
	ReasonLegacyNullTenant    Reason = "legacy-null-tenant"
	ReasonCrossTenantMismatch Reason = "cross-tenant-mismatch"
)

// Classify compares a resource's tenant column with the caller's effective
// tenant. A nil tenant is legacy data predating tenant scoping, which is a
// distinct condition from belonging to another tenant.
func Classify(resourceTenantID *string, effectiveTenantID string) Reason {
	if resourceTenantID == nil {
		return ReasonLegacyNullTenant
	}
	if *resourceTenantID != effectiveTenantID {
		return ReasonCrossTenantMismatch
	}
	return ReasonOK
}

// Decision is the ephemeral outcome of one evaluation.
type Decision struct {
	Allowed bool
	Warn    bool
	Reason  Reason
}

// decisionTable is the single source of truth for (mode, reason) outcomes.
// Call sites must never branch on mode themselves.
var decisionTable = map[Mode]map[Reason]Decision{
	ModeOff: {
		ReasonOK:                  {Allowed: true},
		ReasonLegacyNullTenant:    {Allowed: true},
		ReasonCrossTenantMismatch: {Allowed: true},
	},
	ModeSoft: {
		ReasonOK:                  {Allowed: true},
		ReasonLegacyNullTenant:    {Allowed: true, Warn: true},
		ReasonCrossTenantMismatch: {Allowed: true, Warn: true},
	},
	ModeStrict: {
		ReasonOK:                  {Allowed: true},
		ReasonLegacyNullTenant:    {Allowed: true, Warn: true},
		ReasonCrossTenantMismatch: {Allowed: false, Warn: true},
	},
}

// Decide maps (mode, reason) to a Decision via the table above. Unknown
// modes fall back to soft so a misconfigured caller can never block traffic
// harder than the operator opted into.
func Decide(mode Mode, reason Reason) Decision {
	row, ok := decisionTable[mode]
	if !ok {
		row = decisionTable[ModeSoft]
	}
	d := row[reason]
	d.Reason = reason
	return d
}

// WarnHeader carries the reason code for every non-ok classification in
// soft and strict mode. It is absent entirely in off mode.
const WarnHeader = "X-Tenancy-Warn"

// WarnCode is the wire form of a non-ok reason.
func WarnCode(reason Reason) string {
	switch reason {
	case ReasonLegacyNullTenant:
		return "missing-tenantId"
	case ReasonCrossTenantMismatch:
		return "mismatch"
	default:
		return ""
	}
}
