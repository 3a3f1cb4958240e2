// Command seed loads a YAML fixture of departments, divisions, subjects,
// policies, and policy templates into the database, for local development
// and test bootstrapping. It is a convenience CLI — per SPEC_FULL §1a the
// database remains the only source of truth read at evaluation time.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"hybridauth/internal/config"
	"hybridauth/internal/seed"
	"hybridauth/internal/store"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	args = config.InitLogging(args)

	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	file := fs.String("file", "", "path to a seed YAML fixture (required)")
	dsn := fs.String("dsn", "", "database DSN; defaults to HYBRIDAUTH_DATABASE_DSN")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *file == "" {
		fmt.Fprintln(os.Stderr, "seed: -file is required")
		return 2
	}

	cfg := config.Load()
	dsnValue := cfg.DatabaseDSN
	if *dsn != "" {
		dsnValue = *dsn
	}

	doc, err := seed.LoadFile(*file)
	if err != nil {
		slog.Error("load seed file", "file", *file, "error", err)
		return 1
	}

	db, err := store.Open(dsnValue)
	if err != nil {
		slog.Error("open database", "dsn", dsnValue, "error", err)
		return 1
	}
	defer db.Close()

	res, err := seed.Apply(context.Background(), db, doc)
	if err != nil {
		slog.Error("apply seed document", "file", *file, "error", err)
		return 1
	}

	slog.Info("seed applied",
		"departments_created", res.DepartmentsCreated,
		"divisions_created", res.DivisionsCreated,
		"subjects_created", res.SubjectsCreated,
		"policies_created", res.PoliciesCreated,
		"templates_created", res.TemplatesCreated,
	)
	return 0
}
