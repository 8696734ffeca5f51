package testutil

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/progami/wms-ecomos-sub005/pkg/database"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
)

var schemaNameUnsafe = regexp.MustCompile(`[^a-z0-9_]`)

// TestSchema is an isolated schema holding one test's tables
type TestSchema struct {
	Name string
	DB   *database.DB
}

// SchemaManager creates and drops per-test schemas in the shared container.
type SchemaManager struct {
	raw     *sqlx.DB
	baseDSN string
	log     *logger.Logger
	schemas []*TestSchema
	mu      sync.Mutex
}

// NewSchemaManager creates a new schema manager
func NewSchemaManager(raw *sqlx.DB, baseDSN string, log *logger.Logger) *SchemaManager {
	return &SchemaManager{raw: raw, baseDSN: baseDSN, log: log}
}

// CreateSchema creates a fresh schema, connects a pool whose search_path
// points at it and applies migrations there.
//
// Usage:
//
//	schema, err := sm.CreateSchema(ctx, "ledger-append", repository.Migrations)
//	store := repository.NewStore(schema.DB)
func (sm *SchemaManager) CreateSchema(ctx context.Context, name string, migrations []string) (*TestSchema, error) {
	slug := schemaNameUnsafe.ReplaceAllString(strings.ToLower(name), "_")
	schemaName := fmt.Sprintf("test_%s_%s", slug, strings.ReplaceAll(uuid.New().String()[:8], "-", ""))

	if _, err := sm.raw.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", schemaName)); err != nil {
		return nil, fmt.Errorf("failed to create test schema: %w", err)
	}

	db, err := database.NewWithDSN(withSearchPath(sm.baseDSN, schemaName), sm.log)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, migrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	s := &TestSchema{Name: schemaName, DB: db}

	sm.mu.Lock()
	sm.schemas = append(sm.schemas, s)
	sm.mu.Unlock()
	return s, nil
}

// DropSchema closes the schema's pool and removes it with everything in it
func (sm *SchemaManager) DropSchema(ctx context.Context, s *TestSchema) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s.DB.Close()
	if _, err := sm.raw.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", s.Name)); err != nil {
		return fmt.Errorf("failed to drop test schema: %w", err)
	}

	for i, tracked := range sm.schemas {
		if tracked == s {
			sm.schemas = append(sm.schemas[:i], sm.schemas[i+1:]...)
			break
		}
	}
	return nil
}

// Cleanup drops every schema still tracked
func (sm *SchemaManager) Cleanup(ctx context.Context) error {
	sm.mu.Lock()
	schemas := sm.schemas
	sm.schemas = nil
	sm.mu.Unlock()

	var lastErr error
	for _, s := range schemas {
		s.DB.Close()
		if _, err := sm.raw.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", s.Name)); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// withSearchPath adds search_path as a connection run-time parameter.
// lib/pq forwards unknown URL parameters to the server.
func withSearchPath(dsn, schema string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "search_path=" + schema
}
