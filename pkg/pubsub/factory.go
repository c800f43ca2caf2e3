package pubsub

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"github.com/skillforge/engine/ent"
	"github.com/skillforge/engine/pkg/config"
)

// New builds and starts the Bus selected by cfg.Backend.
func New(ctx context.Context, cfg *config.PubSubYAMLConfig, dsn string, entClient *ent.Client, publishDB *stdsql.DB) (Bus, error) {
	switch cfg.Backend {
	case config.PubSubRedis:
		return NewRedis(cfg.RedisURL)
	case config.PubSubPostgres, "":
		pg := NewPostgres(dsn, entClient, publishDB)
		if err := pg.Start(ctx); err != nil {
			return nil, fmt.Errorf("pubsub: start postgres backend: %w", err)
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("pubsub: unknown backend %q", cfg.Backend)
	}
}
