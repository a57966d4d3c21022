package storage

import (
	"fmt"
	"strings"

	"fraudpulse/internal/application"
	"fraudpulse/internal/infrastructure/mysql"
	"fraudpulse/internal/infrastructure/sqlite"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverNone   = "none"
)

// OpenArchive opens the archive repository for driver. DriverNone returns a nil
// repository and no error.
func OpenArchive(driver, dsn string) (application.ArchiveRepository, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		repo, err := sqlite.NewRepository(dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite archive: %w", err)
		}
		return repo, nil
	case DriverMySQL:
		repo, err := mysql.NewRepository(dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql archive: %w", err)
		}
		return repo, nil
	case DriverNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown archive driver %q", driver)
	}
}
