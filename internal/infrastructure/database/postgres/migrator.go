package postgres

import (
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	appErrors "github.com/envlytics/analyte-resolver/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrator applies embedded SQL migrations against the connected database.
type Migrator struct {
	conn   *Connection
	logger logging.Logger
}

// NewMigrator creates a migrator bound to an open connection.
func NewMigrator(conn *Connection, logger logging.Logger) *Migrator {
	return &Migrator{conn: conn, logger: logger}
}

func (m *Migrator) newMigrate() (*migrate.Migrate, error) {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to load embedded migrations")
	}
	driver, err := postgres.WithInstance(m.conn.DB(), &postgres.Config{})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBConnectionError, "failed to create migration driver")
	}
	mg, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to initialize migrator")
	}
	return mg, nil
}

// RunMigrations applies all pending up migrations.
func (m *Migrator) RunMigrations() error {
	mg, err := m.newMigrate()
	if err != nil {
		return err
	}
	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to run migrations")
	}
	version, dirty, _ := mg.Version()
	m.logger.Info("migrations applied",
		logging.Any("version", version),
		logging.Bool("dirty", dirty),
	)
	return nil
}

// RollbackMigration rolls back the most recent migration.
func (m *Migrator) RollbackMigration() error {
	mg, err := m.newMigrate()
	if err != nil {
		return err
	}
	if err := mg.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to rollback migration")
	}
	m.logger.Info("migration rolled back")
	return nil
}

// MigrationStatus reports the current schema version.
func (m *Migrator) MigrationStatus() (uint, bool, error) {
	mg, err := m.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := mg.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to read migration status")
	}
	return version, dirty, nil
}
