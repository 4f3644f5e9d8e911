package server

import (
	"os"

	"github.com/Go-Digital-Alchemy-Repos/DigitalWorkday-sub012/internal/tenancy"
)

// Flags holds the process-level switches, read once at handler build so
// tests can thread explicit values instead of mutating the environment.
type Flags struct {
	Enforcement         tenancy.Mode
	BackfillAllowed     bool
	DebugActionsAllowed bool
}

func FlagsFromEnv() (Flags, error) {
	mode, err := tenancy.ModeFromEnv()
	if err != nil {
		return Flags{}, err
	}
	return Flags{
		Enforcement:         mode,
		BackfillAllowed:     os.Getenv("BACKFILL_TENANT_IDS_ALLOWED") == "1",
		DebugActionsAllowed: os.Getenv("SUPER_DEBUG_ACTIONS_ALLOWED") == "1",
	}, nil
}
