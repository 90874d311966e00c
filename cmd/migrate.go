package cmd

import (
	"errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-credits/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Run: func(_ *cobra.Command, _ []string) {
		withMigrator(func(m *migrate.Migrate) error { return m.Up() })
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	Run: func(_ *cobra.Command, _ []string) {
		withMigrator(func(m *migrate.Migrate) error { return m.Steps(-1) })
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current migration version",
	Run: func(_ *cobra.Command, _ []string) {
		withMigrator(func(m *migrate.Migrate) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			logrus.WithField("version", version).WithField("dirty", dirty).Info("Migration version")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}

func withMigrator(fn func(m *migrate.Migrate) error) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	m, err := migrate.New("file://migrations", "mysql://"+cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize migrator")
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			logrus.WithField("source_err", sourceErr).WithField("db_err", dbErr).Warn("Failed to close migrator")
		}
	}()

	if err := fn(m); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logrus.Info("No migration changes")
			return
		}
		logrus.WithError(err).Fatal("Migration failed")
	}

	logrus.Info("Migration complete")
}
