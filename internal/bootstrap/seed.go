package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/config"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/infra/persistence"
	"github.com/go-faker/faker/v4"
)

type contactMessage struct {
	Name    string
	Email   string
	Message string
}

// Seed creates the tenant's source table when missing and fills it with
// fake contact messages, so a local watcher has rows to observe.
func Seed(ctx context.Context, cfg config.Config, tenant string, count, batchSize int) error {
	if count <= 0 {
		count = 10
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if tenant == "" {
		tenant = cfg.Watcher.DefaultTenant
	}
	if !persistence.ValidIdentifier(tenant) || !persistence.ValidIdentifier(cfg.Watcher.SourceTable) {
		return fmt.Errorf("seed: invalid tenant %q or table %q", tenant, cfg.Watcher.SourceTable)
	}

	log, err := BuildLogger(cfg)
	if err != nil {
		return err
	}
	conn, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	table := fmt.Sprintf("%q.%q", tenant, cfg.Watcher.SourceTable)
	err = conn.WithTx(ctx, func(ctx context.Context) error {
		db := conn.Write(ctx)
		if err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %q", tenant)).Error; err != nil {
			return err
		}
		return db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	message TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, table)).Error
	})
	if err != nil {
		return err
	}

	rows := make([]contactMessage, 0, batchSize)
	flush := func() error {
		if len(rows) == 0 {
			return nil
		}
		if err := conn.Write(ctx).Table(table).Create(&rows).Error; err != nil {
			return err
		}
		rows = rows[:0]
		return nil
	}
	for i := 0; i < count; i++ {
		rows = append(rows, contactMessage{
			Name:    fmt.Sprintf("%s %s", faker.FirstName(), faker.LastName()),
			Email:   strings.ToLower(faker.Email()),
			Message: faker.Sentence(),
		})
		if len(rows) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	log.WithField("tenant", tenant).Infof("bootstrap: seeded %d rows into %s", count, table)
	return nil
}
