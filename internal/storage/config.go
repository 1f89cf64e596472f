package storage

import "codeberg.org/mutker/droidmetrics/internal/errors"

const (
	defaultDirPerm       = 0o755
	defaultRetentionDays = 3
)

type Config struct {
	DBPath          string
	BackupDir       string
	BackupOnMigrate bool
	RetentionDays   int
}

func DefaultConfig(dbPath, backupDir string) Config {
	return Config{
		DBPath:          dbPath,
		BackupDir:       backupDir,
		BackupOnMigrate: true,
		RetentionDays:   defaultRetentionDays,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BackupOnMigrate && c.BackupDir == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "backup_dir is required when backup_on_migrate is set")
	}
	if c.RetentionDays < 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "retention_days must not be negative")
	}

	return nil
}
