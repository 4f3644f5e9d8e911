package tenancy

// ValidateOwnership approves or denies mutation of an already-loaded
// resource. It applies the same decision table as the reconciler but
// returns a plain bool: false only in strict mode on a cross-tenant
// mismatch, which the caller must surface as 403, not 404 — the resource
// is known to exist.
func ValidateOwnership(mode Mode, res Resource, effectiveTenantID string) (bool, Decision) {
	dec := Decide(mode, Classify(res.TenantID, effectiveTenantID))
	return dec.Allowed, dec
}
