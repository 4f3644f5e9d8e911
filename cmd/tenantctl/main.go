package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Go-Digital-Alchemy-Repos/DigitalWorkday-sub012/internal/tenancy"
)

func main() {
	if len(os.Args) < 2 {
		fatalf("usage: tenantctl <scan|backfill|integrity> [args]")
	}

	switch os.Args[1] {
	case "scan":
		scanCmd(os.Args[2:])
	case "backfill":
		backfillCmd(os.Args[2:])
	case "integrity":
		integrityCmd(os.Args[2:])
	default:
		fatalf("unknown subcommand: %s", os.Args[1])
	}
}

func connect(url string) (*pgxpool.Pool, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		cancel()
		fatal(err)
	}
	return pool, ctx, cancel
}

func scanCmd(args []string) {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url string
	fs.StringVar(&url, "url", "", "postgres connection string")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if url == "" {
		fatalf("missing --url")
	}

	pool, ctx, cancel := connect(url)
	defer cancel()
	defer pool.Close()

	store := tenancy.NewPGStore(pool)
	counts, err := store.NullTenantCounts(ctx)
	if err != nil {
		fatal(err)
	}

	total := 0
	for _, entity := range tenancy.BackfillEntities {
		n := counts[entity]
		total += n
		fmt.Printf("%-10s %d rows without tenant\n", entity, n)
	}
	fmt.Printf("total      %d\n", total)
}

func backfillCmd(args []string) {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url string
	var mode string
	var yes bool
	fs.StringVar(&url, "url", "", "postgres connection string")
	fs.StringVar(&mode, "mode", "dry_run", "dry_run or apply")
	fs.BoolVar(&yes, "yes", false, "confirm an apply run")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if url == "" {
		fatalf("missing --url")
	}

	parsed, ok := tenancy.ParseBackfillMode(mode)
	if !ok {
		fatalf("invalid --mode: %s (expected dry_run or apply)", mode)
	}
	if parsed == tenancy.BackfillApply && !yes {
		fatalf("apply mutates rows; re-run with --yes to confirm")
	}

	pool, ctx, cancel := connect(url)
	defer cancel()
	defer pool.Close()

	engine := &tenancy.Engine{Store: tenancy.NewPGStore(pool)}
	result, err := engine.Run(ctx, parsed)
	if err != nil {
		fatal(err)
	}

	for _, er := range result.Entities {
		fmt.Printf("%-10s updated=%d quarantined=%d failed=%d\n", er.Entity, er.Updated, er.Quarantined, er.Failed)
		for _, id := range er.AmbiguousSample {
			fmt.Printf("  ambiguous: %s\n", id)
		}
	}
	fmt.Println(result.Describe())
}

func integrityCmd(args []string) {
	fs := flag.NewFlagSet("integrity", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url string
	fs.StringVar(&url, "url", "", "postgres connection string")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if url == "" {
		fatalf("missing --url")
	}

	pool, ctx, cancel := connect(url)
	defer cancel()
	defer pool.Close()

	checker := &tenancy.Checker{Store: tenancy.NewPGStore(pool)}
	issues, bySeverity, err := checker.Run(ctx)
	if err != nil {
		fatal(err)
	}

	for _, iss := range issues {
		fmt.Printf("[%s] %s count=%d sample=%v\n", iss.Severity, iss.Code, iss.Count, iss.SampleIDs)
	}
	fmt.Printf("blockers=%d warnings=%d\n", bySeverity[tenancy.SeverityBlocker], bySeverity[tenancy.SeverityWarn])

	if bySeverity[tenancy.SeverityBlocker] > 0 {
		os.Exit(2)
	}
}

func fatal(err error) {
	if err == nil {
		os.Exit(1)
	}
	fatalf("%v", err)
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
