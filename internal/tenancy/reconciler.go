package tenancy

import "context"

// Reconciler decides what a caller-supplied lookup may return without ever
// silently hiding data inconsistency. At most two store round trips per
// call: scoped, then conditionally unscoped.
type Reconciler struct {
	Mode  Mode
	Store ResourceReader
}

// FetchWithPolicy resolves a single resource. ok=false means the caller
// sees not-found, which deliberately covers both a genuinely missing row
// and a strict-mode block: existence details never leak. The returned
// Decision still carries the warn signal for the response header.
func (r *Reconciler) FetchWithPolicy(ctx context.Context, entity Entity, effectiveTenantID string, id string) (Resource, Decision, bool, error) {
	if r.Mode == ModeOff {
		res, found, err := r.Store.UnscopedGet(ctx, entity, id)
		if err != nil || !found {
			return Resource{}, Decision{Reason: ReasonOK}, false, err
		}
		return res, Decision{Allowed: true, Reason: ReasonOK}, true, nil
	}

	res, found, err := r.Store.ScopedGet(ctx, entity, effectiveTenantID, id)
	if err != nil {
		return Resource{}, Decision{}, false, err
	}
	if found {
		return res, Decision{Allowed: true, Reason: ReasonOK}, true, nil
	}

	res, found, err = r.Store.UnscopedGet(ctx, entity, id)
	if err != nil {
		return Resource{}, Decision{}, false, err
	}
	if !found {
		return Resource{}, Decision{Reason: ReasonOK}, false, nil
	}

	dec := Decide(r.Mode, Classify(res.TenantID, effectiveTenantID))
	if !dec.Allowed {
		return Resource{}, dec, false, nil
	}
	return res, dec, true, nil
}

// ListWithPolicy returns the union of the scoped result set with whatever
// the scoped query excluded, reconciled by mode. Legacy rows are always
// surfaced (with a warning): hiding them would orphan un-migrated data from
// its only visible channel. Cross-tenant rows are included in soft and off,
// excluded in strict, and warn in both soft and strict. The returned
// reasons are the distinct non-ok classifications encountered.
func (r *Reconciler) ListWithPolicy(ctx context.Context, entity Entity, effectiveTenantID string) ([]Resource, []Reason, error) {
	if r.Mode == ModeOff {
		items, err := r.Store.UnscopedList(ctx, entity)
		return items, nil, err
	}

	scoped, err := r.Store.ScopedList(ctx, entity, effectiveTenantID)
	if err != nil {
		return nil, nil, err
	}
	all, err := r.Store.UnscopedList(ctx, entity)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]struct{}, len(scoped))
	for _, res := range scoped {
		seen[res.ID] = struct{}{}
	}

	out := scoped
	var reasons []Reason
	reasonSeen := map[Reason]struct{}{}
	for _, res := range all {
		if _, dup := seen[res.ID]; dup {
			continue
		}
		dec := Decide(r.Mode, Classify(res.TenantID, effectiveTenantID))
		if dec.Warn {
			if _, dup := reasonSeen[dec.Reason]; !dup {
				reasonSeen[dec.Reason] = struct{}{}
				reasons = append(reasons, dec.Reason)
			}
		}
		if dec.Allowed {
			out = append(out, res)
		}
	}
	return out, reasons, nil
}
