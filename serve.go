package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tracker/cache"
	"tracker/config"
	"tracker/database"
	"tracker/external"
	"tracker/publisher"
	"tracker/routers"
	"tracker/services"
	"tracker/utils"

	"github.com/spf13/cobra"
)

const (
	shutdownTimeout  = 15 * time.Second
	redisPingTimeout = 5 * time.Second
)

func serveCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tracking HTTP API",
		Long: `Start the tracking HTTP API.

Configuration is read from the environment and an optional .env file.

Examples:
  tracker serve
  tracker serve --port 8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			if port != "" {
				cfg.Port = port
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port, overrides PORT")
	return cmd
}

// trackingCaches holds the read caches of both domains. memory is set for
// the in-memory backend so the sweeper can clean it; closer releases the
// redis client.
type trackingCaches struct {
	content    *cache.Cache
	assessment *cache.Cache
	memory     *cache.MemoryBackend
	closer     io.Closer
}

func (c trackingCaches) Close() {
	if c.closer == nil {
		return
	}
	if err := c.closer.Close(); err != nil {
		log.Printf("Error closing cache client: %v", err)
	}
}

// buildCaches wires the configured cache backend. An unreachable redis is
// logged and kept: reads degrade to direct loads until it answers.
func buildCaches(cfg *config.Config) (trackingCaches, error) {
	switch cfg.CacheBackend {
	case "none":
		log.Println("Read cache disabled (CACHE_BACKEND=none).")
		return trackingCaches{}, nil
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		defer cancel()
		client, err := cache.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Printf("Warning: redis at %s is unreachable, reads load directly until it recovers: %v", cfg.RedisAddr, err)
		}
		backend := cache.NewRedisBackend(client)
		return trackingCaches{
			content:    cache.New(backend, "content", cfg.CacheTTL),
			assessment: cache.New(backend, "assessment", cfg.CacheTTL),
			closer:     client,
		}, nil
	case "memory", "":
		backend := cache.NewMemoryBackend()
		return trackingCaches{
			content:    cache.New(backend, "content", cfg.CacheTTL),
			assessment: cache.New(backend, "assessment", cfg.CacheTTL),
			memory:     backend,
		}, nil
	default:
		return trackingCaches{}, fmt.Errorf("unsupported cache backend: %s", cfg.CacheBackend)
	}
}

func runServe(cfg *config.Config) error {
	db, err := database.ConnectDb(cfg)
	if err != nil {
		return err
	}
	log.Println("Database connected successfully.")

	caches, err := buildCaches(cfg)
	if err != nil {
		return err
	}
	defer caches.Close()

	pub := publisher.New(publisher.Config{
		Enabled:        cfg.KafkaEnable,
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		ClientID:       cfg.KafkaClientID,
		PublishTimeout: cfg.KafkaPublishTimeout,
	})
	startCtx, cancel := context.WithTimeout(context.Background(), cfg.KafkaPublishTimeout)
	err = pub.Start(startCtx)
	cancel()
	if err != nil {
		return err
	}

	var metadata services.ContentMetadataSource
	if cfg.ContentServiceURL != "" {
		metadata = external.NewClient(cfg.ContentServiceURL, cfg.ExternalHTTPTimeout)
	}

	app := routers.NewApp(routers.AppOptions{
		Content:        services.NewContentTrackingService(db, caches.content, pub, metadata),
		Assessment:     services.NewAssessmentTrackingService(db, caches.assessment, pub),
		RequestTimeout: cfg.RequestTimeout,
		AccessLog:      true,
	})

	var sweeper utils.CacheSweeper
	if caches.memory != nil {
		sweeper = caches.memory
	}
	scheduler := utils.InitializeMaintenanceSchedulers(sweeper, pub, cfg.KafkaPublishTimeout)

	listenErr := make(chan error, 1)
	go func() {
		log.Printf("Server is running on port %s", cfg.Port)
		listenErr <- app.Listen(":" + cfg.Port)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err = <-listenErr:
	case sig := <-quit:
		log.Printf("Received %s, shutting down...", sig)
		err = app.ShutdownWithTimeout(shutdownTimeout)
	}

	<-scheduler.Stop().Done()
	if stopErr := pub.Stop(); stopErr != nil {
		log.Printf("Error stopping publisher: %v", stopErr)
	}
	if sqlDB, dbErr := db.DB(); dbErr == nil {
		sqlDB.Close()
	}
	return err
}
