// Command taskdnsctl operates on the task DNS record table: inspect
// records, register or stop tasks, and release names. The ECS poller
// and the Route53 updater drive the same registry; this tool gives
// operators the same operations by hand.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jhearn/taskdns/internal/dns/common/clock"
	"github.com/jhearn/taskdns/internal/dns/common/log"
	"github.com/jhearn/taskdns/internal/dns/config"
	"github.com/jhearn/taskdns/internal/dns/repos/recordcache"
	"github.com/jhearn/taskdns/internal/dns/repos/records"
	"github.com/jhearn/taskdns/internal/dns/repos/records/bolt"
	"github.com/jhearn/taskdns/internal/dns/repos/records/ddb"
	"github.com/jhearn/taskdns/internal/dns/services/registry"
)

const (
	version = "0.1.0-dev"
	appName = "taskdnsctl"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApplication(ctx, cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Warn(map[string]any{"error": err}, "Error closing record store")
		}
	}()

	if err := app.Run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Error(map[string]any{"error": err}, "Command failed")
		os.Exit(1)
	}
}

// Application holds the wired components behind the CLI commands.
type Application struct {
	config   *config.AppConfig
	store    records.RecordStore
	registry *registry.Registry
}

// buildApplication constructs the store for the configured backend,
// wraps it in the record cache, and wires the registry on top.
func buildApplication(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build record store: %w", err)
	}

	cacheSize := cfg.CacheSize
	if cacheSize > uint(^uint(0)>>1) {
		return nil, fmt.Errorf("cache size too large: %d", cacheSize)
	}
	cache, err := recordcache.New(recordcache.Options{
		Store:        store,
		Size:         int(cacheSize),
		ExpectedKeys: cfg.ExpectedRecords,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build record cache: %w", err)
	}
	if err := cache.Warm(ctx); err != nil {
		return nil, err
	}

	reg, err := registry.New(registry.Options{
		Store:  cache,
		Clock:  clock.RealClock{},
		Logger: log.GetLogger(),
	})
	if err != nil {
		return nil, err
	}

	log.Debug(map[string]any{
		"app":        appName,
		"version":    version,
		"backend":    cfg.Backend,
		"cache_size": cfg.CacheSize,
	}, "Application wired")

	return &Application{
		config:   cfg,
		store:    cache,
		registry: reg,
	}, nil
}

// buildStore selects the record store backend from configuration.
func buildStore(ctx context.Context, cfg *config.AppConfig) (records.RecordStore, error) {
	switch cfg.Backend {
	case config.BackendBolt:
		return bolt.New(cfg.BoltPath)
	case config.BackendDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return ddb.New(dynamodb.NewFromConfig(awsCfg), cfg.TableName), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Close releases the record store.
func (app *Application) Close() error {
	return app.store.Close()
}
