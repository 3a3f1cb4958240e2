// Package store provides the shared database handle used by the abac and
// workflow packages: backend selection by DSN, placeholder rebinding, and
// schema creation. Modeled on internal/audit.Store in the teacher repo,
// generalized to the full relational schema of this module instead of a
// single audit_events table.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// DB wraps a *sql.DB plus the dialect knowledge callers need to build
// portable queries (placeholder style, primary-key/timestamp DDL).
type DB struct {
	SQL        *sql.DB
	IsPostgres bool
}

// Open selects the backend from the DSN prefix exactly as the teacher's
// audit store does: "postgres://"/"postgresql://" routes to pgx, anything
// else is treated as a SQLite file path.
func Open(dsn string) (*DB, error) {
	isPostgres := strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")

	var sqlDB *sql.DB
	var err error

	if isPostgres {
		sqlDB, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
	} else {
		dir := filepath.Dir(dsn)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		sqlDB, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
		if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	db := &DB{SQL: sqlDB, IsPostgres: isPostgres}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error { return db.SQL.Close() }

// Rebind rewrites a query written with "?" placeholders into one using
// "$N" placeholders when the backend is PostgreSQL, matching the teacher's
// rebind helper in internal/audit/store.go.
func (db *DB) Rebind(query string) string {
	if !db.IsPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func (db *DB) migrate() error {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	ts := "TEXT"
	boolT := "INTEGER"
	if db.IsPostgres {
		pk = "BIGSERIAL PRIMARY KEY"
		ts = "TIMESTAMPTZ"
		boolT = "BOOLEAN"
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS departments (
		id %[1]s,
		name TEXT UNIQUE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS divisions (
		id %[1]s,
		name TEXT UNIQUE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS subjects (
		id %[1]s,
		email TEXT,
		username TEXT,
		role TEXT NOT NULL,
		roles TEXT NOT NULL DEFAULT '[]',
		is_active %[3]s NOT NULL DEFAULT 1,
		is_superuser %[3]s NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS subject_profiles (
		subject_id INTEGER PRIMARY KEY REFERENCES subjects(id),
		department_id INTEGER REFERENCES departments(id),
		division_id INTEGER REFERENCES divisions(id),
		team_id INTEGER,
		job_title TEXT,
		job_level INTEGER,
		approval_limit_amount INTEGER,
		can_approve_own_department %[3]s NOT NULL DEFAULT 0,
		can_approve_all_departments %[3]s NOT NULL DEFAULT 0,
		office_location TEXT,
		country_code TEXT,
		timezone TEXT,
		custom_attributes TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS policies (
		id %[1]s,
		name TEXT UNIQUE NOT NULL,
		description TEXT,
		effect TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		action TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		conditions TEXT,
		department_ids TEXT,
		division_ids TEXT,
		role_requirements TEXT,
		is_active %[3]s NOT NULL DEFAULT 1,
		created_by INTEGER,
		created_at %[2]s,
		updated_at %[2]s
	);
	CREATE INDEX IF NOT EXISTS idx_policies_action ON policies(action);
	CREATE INDEX IF NOT EXISTS idx_policies_resource_type ON policies(resource_type);
	CREATE INDEX IF NOT EXISTS idx_policies_active ON policies(is_active);

	CREATE TABLE IF NOT EXISTS policy_templates (
		id %[1]s,
		name TEXT UNIQUE NOT NULL,
		description TEXT,
		category TEXT,
		template_config TEXT NOT NULL,
		required_parameters TEXT,
		is_active %[3]s NOT NULL DEFAULT 1,
		created_at %[2]s
	);

	CREATE TABLE IF NOT EXISTS resource_attributes (
		id %[1]s,
		resource_type TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		attribute_name TEXT NOT NULL,
		attribute_value TEXT,
		attribute_type TEXT NOT NULL,
		created_at %[2]s,
		updated_at %[2]s
	);
	CREATE INDEX IF NOT EXISTS idx_resattr_lookup ON resource_attributes(resource_type, resource_id);

	CREATE TABLE IF NOT EXISTS audit_records (
		id %[1]s,
		event_id TEXT UNIQUE NOT NULL,
		subject_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id TEXT,
		decision TEXT NOT NULL,
		matched_policy_id INTEGER,
		subject_bag TEXT,
		resource_bag TEXT,
		environment_bag TEXT,
		evaluated_policies TEXT,
		evaluation_time_ms INTEGER,
		reason TEXT,
		ip_address TEXT,
		user_agent TEXT,
		endpoint TEXT,
		created_at %[2]s
	);
	CREATE INDEX IF NOT EXISTS idx_audit_subject ON audit_records(subject_id);
	CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_records(resource_type, resource_id);
	CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_records(created_at);

	CREATE TABLE IF NOT EXISTS workflow_definitions (
		id %[1]s,
		name TEXT UNIQUE NOT NULL,
		model_name TEXT,
		graph TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL DEFAULT 'DRAFT',
		created_by INTEGER,
		department_id INTEGER REFERENCES departments(id),
		division_id INTEGER REFERENCES divisions(id),
		view_roles TEXT NOT NULL DEFAULT '[]',
		edit_roles TEXT NOT NULL DEFAULT '[]',
		use_roles TEXT NOT NULL DEFAULT '[]',
		created_at %[2]s,
		updated_at %[2]s,
		published_at %[2]s
	);
	CREATE INDEX IF NOT EXISTS idx_wfdef_status ON workflow_definitions(status);

	CREATE TABLE IF NOT EXISTS workflow_stages (
		id %[1]s,
		workflow_id INTEGER NOT NULL REFERENCES workflow_definitions(id),
		node_id TEXT NOT NULL,
		node_type TEXT NOT NULL,
		order_index INTEGER NOT NULL,
		required_role TEXT,
		required_roles TEXT NOT NULL DEFAULT '[]',
		specific_users TEXT NOT NULL DEFAULT '[]',
		approval_type TEXT,
		required_count INTEGER,
		condition_config TEXT,
		sla_hours INTEGER,
		escalation_config TEXT,
		notification_template TEXT,
		action_hook TEXT,
		position_x REAL,
		position_y REAL,
		next_stage_id INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_stages_workflow ON workflow_stages(workflow_id);

	CREATE TABLE IF NOT EXISTS conditional_routes (
		id %[1]s,
		from_stage_id INTEGER NOT NULL REFERENCES workflow_stages(id),
		to_stage_id INTEGER NOT NULL REFERENCES workflow_stages(id),
		label TEXT,
		field TEXT,
		operator TEXT,
		value TEXT,
		priority INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_routes_from ON conditional_routes(from_stage_id);

	CREATE TABLE IF NOT EXISTS workflow_versions (
		id %[1]s,
		workflow_id INTEGER NOT NULL REFERENCES workflow_definitions(id),
		version_number INTEGER NOT NULL,
		graph TEXT NOT NULL,
		change_description TEXT,
		created_by INTEGER,
		created_at %[2]s
	);
	CREATE INDEX IF NOT EXISTS idx_versions_workflow ON workflow_versions(workflow_id);
	`, pk, ts, boolT)

	for _, stmt := range strings.Split(schema, ";\n\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.SQL.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
