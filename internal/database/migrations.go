package database

import "fmt"

// RunMigrations checks the current schema version and runs any pending
// migrations sequentially. There are no migrations yet beyond the version-1
// schema InitSchema already creates; this is the hook future schema changes
// attach to, in the same sequential-gate style as the rest of the store.
func (d *Database) RunMigrations() error {
	version, err := d.GetSchemaVersion()
	if err != nil {
		version = 0
	}

	log.Info("checking migrations", "current_version", version, "target_version", SchemaVersion)

	if version >= SchemaVersion {
		log.Debug("database is up to date")
		return nil
	}

	// Future migrations attach here, e.g.:
	// if version < 2 { if err := migrationV1ToV2(d.db); err != nil { return fmt.Errorf(...) } }

	return fmt.Errorf("no migration path from schema version %d to %d", version, SchemaVersion)
}
