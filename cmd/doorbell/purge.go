package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/davicafu/doorbell/internal/config"
	"github.com/davicafu/doorbell/internal/event/domain"
	eventCache "github.com/davicafu/doorbell/internal/event/infra/outbound/cache"
)

var purgeYes bool

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every stored event (and offloaded payloads and cached copies)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !purgeYes {
			return errors.New("refusing to purge without --yes")
		}

		store, closeStore, err := openStore(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer closeStore()

		n, err := store.DeleteAll(cmd.Context())
		if err != nil {
			return fmt.Errorf("purge events: %w", err)
		}
		log.Info("Events purged", zap.Int64("count", n))

		if err := purgeCachedEvents(cmd.Context(), cfg); err != nil {
			return fmt.Errorf("purge cached events: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d events\n", n)
		return nil
	},
}

// purgeCachedEvents invalida las copias en Redis para que un servidor en marcha
// no siga sirviendo eventos borrados hasta que caduquen.
func purgeCachedEvents(ctx context.Context, cfg *config.Config) error {
	if cfg.RedisAddr == "" {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	rc, err := eventCache.NewRedisEventCache(ctx, rdb, eventCache.DefaultNamespace, cfg.CacheTTL)
	if err != nil {
		return err
	}
	n, err := rc.DeleteMatching(ctx, domain.EventCacheKeyByID("*"))
	if err != nil {
		return err
	}
	log.Info("Cached events invalidated", zap.Int("count", n))
	return nil
}

func init() {
	purgeCmd.Flags().BoolVar(&purgeYes, "yes", false, "confirm deletion of all events")
}
