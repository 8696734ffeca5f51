package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/progami/wms-ecomos-sub005/pkg/database"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	Schemas   *SchemaManager
	Fixtures  *FixtureFactory
	Logger    *logger.Logger
}

// NewIntegrationSuite creates a new integration test suite.
// Call this in TestMain to set up shared test infrastructure.
//
// Usage:
//
//	var suite *testutil.IntegrationSuite
//
//	func TestMain(m *testing.M) {
//	    flag.Parse()
//	    if testing.Short() {
//	        os.Exit(m.Run())
//	    }
//	    var err error
//	    suite, err = testutil.NewIntegrationSuite(context.Background())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    suite.Cleanup(context.Background())
//	    testutil.TerminateContainer(context.Background())
//	    os.Exit(code)
//	}
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.Nop()
	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		Schemas:   NewSchemaManager(db, container.DSN, log),
		Fixtures:  NewFixtureFactory(),
		Logger:    log,
	}, nil
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// SetupSchema creates an isolated, migrated schema for one test and drops
// it when the test ends.
func (s *IntegrationSuite) SetupSchema(t *testing.T, ctx context.Context, name string, migrations []string) *database.DB {
	t.Helper()

	schema, err := s.Schemas.CreateSchema(ctx, name, migrations)
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Schemas.DropSchema(ctx, schema); err != nil {
			t.Logf("warning: failed to drop schema %s: %v", schema.Name, err)
		}
	})

	return schema.DB
}

// Cleanup cleans up all test resources
func (s *IntegrationSuite) Cleanup(ctx context.Context) error {
	// The container is shared; TerminateContainer stops it.
	return s.Schemas.Cleanup(ctx)
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}
