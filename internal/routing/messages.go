package routing

import "strings"

// normalizeErrorMessage keeps an explicit message as-is and replaces a
// generic one (empty, code-echo, "x failed") with the catalog text for
// the code, falling back to a humanized rendering of the code itself.
func normalizeErrorMessage(code string, message string) string {
	if !isGenericErrorMessage(code, message) {
		return message
	}
	if known := knownErrorMessage(code); known != "" {
		return known
	}
	return humanizeErrorCode(code)
}

func isGenericErrorMessage(code string, message string) bool {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return true
	}
	if strings.EqualFold(msg, strings.TrimSpace(code)) {
		return true
	}
	if msg == "internal_error" {
		return true
	}
	if strings.Contains(msg, "_") && (strings.HasSuffix(msg, "_failed") || strings.HasSuffix(msg, "_error")) {
		return true
	}
	words := strings.Fields(msg)
	if len(words) <= 2 && (strings.HasSuffix(msg, "failed") || strings.HasSuffix(msg, "error")) {
		return true
	}
	return false
}

// knownErrorMessage maps user-visible codes to operator-facing text.
// Codes not listed here fall through to humanizeErrorCode.
func knownErrorMessage(code string) string {
	switch code {
	case "forbidden":
		return "You do not have permission to perform this action."
	case "unauthorized":
		return "Authentication required."
	case "invalid_request":
		return "Invalid request parameters."
	case "tenant_not_found":
		return "Tenant not found. Check the request host."
	case "tenant_missing":
		return "Tenant context is missing. Retry the request."
	case "tenant_resolve_error":
		return "Tenant resolution failed. Try again later."
	case "ENFORCEMENT_CONFIG_INVALID":
		return "Tenancy enforcement mode is misconfigured. Check TENANCY_ENFORCEMENT."
	case "BACKFILL_NOT_ALLOWED":
		return "Backfill is not enabled in this environment."
	case "BACKFILL_IN_PROGRESS":
		return "A backfill run is already in progress. Wait for it to finish."
	case "CONFIRMATION_REQUIRED":
		return "The confirmation header is missing or does not match."
	case "INVALID_BACKFILL_MODE":
		return "Backfill mode must be dry_run or apply."
	case "DEBUG_NOT_ALLOWED":
		return "Debug actions are not enabled in this environment."
	case "RULE_PARSE_FAILED":
		return "The rule expression could not be parsed."
	default:
		return ""
	}
}

func humanizeErrorCode(code string) string {
	raw := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(code)), func(r rune) bool {
		return r == '_' || r == '-'
	})
	words := raw[:0]
	for _, w := range raw {
		if w != "" {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return "Request failed."
	}
	if len(words) == 1 && (words[0] == "failed" || words[0] == "error") {
		if words[0] == "error" {
			return "Request error."
		}
		return "Request failed."
	}
	return titleCaseWords(words) + "."
}

func titleCaseWords(words []string) string {
	out := make([]string, len(words))
	for i, w := range words {
		switch w {
		case "api", "db", "uuid", "rls", "id":
			out[i] = strings.ToUpper(w)
		case "":
			out[i] = ""
		default:
			if i == 0 {
				out[i] = capitalizeWord(w)
			} else {
				out[i] = w
			}
		}
	}
	return strings.Join(out, " ")
}

func capitalizeWord(w string) string {
	if w == "" {
		return ""
	}
	return strings.ToUpper(w[:1]) + w[1:]
}
