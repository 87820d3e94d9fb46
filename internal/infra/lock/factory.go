package lock

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/repository"
	goredislib "github.com/redis/go-redis/v9"
)

const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverLocal    = "local"
)

// New picks a Locker implementation by driver name.
func New(driver string, db *sql.DB, client goredislib.UniversalClient, expiry time.Duration) (repository.Locker, error) {
	switch driver {
	case DriverPostgres, "":
		return NewPostgres(db)
	case DriverRedis:
		return NewRedis(client, expiry)
	case DriverLocal:
		return NewLocal(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, driver)
}
