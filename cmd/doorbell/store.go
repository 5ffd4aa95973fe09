package main

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/davicafu/doorbell/internal/config"
	"github.com/davicafu/doorbell/internal/event/domain"
	"github.com/davicafu/doorbell/internal/event/infra/outbound/blob"
	"github.com/davicafu/doorbell/internal/event/infra/outbound/db/mongodb"
	"github.com/davicafu/doorbell/internal/event/infra/outbound/db/sqlstore"
)

// openStore construye el EventStore configurado; closeFn libera la conexión.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store domain.EventStore, closeFn func(), err error) {
	ids := domain.NewIdentityGenerator(nil)

	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("could not connect to mongoDB: %w", err)
		}
		repo, err := mongodb.NewEventRepoMongoDB(ctx, client, cfg.MongoDB, ids)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		store = repo
		closeFn = func() { _ = client.Disconnect(context.Background()) }
		log.Info("Event store ready", zap.String("driver", "mongo"), zap.String("db", cfg.MongoDB))

	default:
		dialect, err := sqlstore.ParseDialect(cfg.StoreDriver)
		if err != nil {
			return nil, nil, err
		}
		dsn := cfg.SQLitePath
		if dialect == sqlstore.Postgres {
			dsn = cfg.DatabaseURL
		}
		db, err := sqlstore.Open(ctx, dialect, dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := sqlstore.InitSchema(ctx, db, dialect); err != nil {
			db.Close()
			return nil, nil, err
		}
		store = sqlstore.NewEventRepoSQL(db, dialect, ids)
		closeFn = func() { _ = db.Close() }
		log.Info("Event store ready", zap.String("driver", string(dialect)))
	}

	if cfg.S3Bucket == "" {
		return store, closeFn, nil
	}

	objects, err := blob.NewS3Objects(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	log.Info("Payload offload enabled",
		zap.String("bucket", cfg.S3Bucket),
		zap.String("prefix", cfg.S3Prefix),
		zap.Int("min_bytes", cfg.S3OffloadMinBytes),
	)
	return blob.NewOffloadStore(store, objects, cfg.S3Prefix, cfg.S3OffloadMinBytes, log), closeFn, nil
}
