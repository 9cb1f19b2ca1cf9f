package main

import (
	// Go Internal Packages
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	// Local Packages
	api "rwa-stream/api"
	config "rwa-stream/config"
	helpers "rwa-stream/helpers"
	kafka "rwa-stream/kafka"
	ledger "rwa-stream/ledger"
	models "rwa-stream/models"
	parser "rwa-stream/parser"
	poller "rwa-stream/poller"
	memory "rwa-stream/repositories/memory"
	mongodb "rwa-stream/repositories/mongodb"
	postgres "rwa-stream/repositories/postgres"
	redis "rwa-stream/repositories/redis"
	sqlite "rwa-stream/repositories/sqlite"
	composer "rwa-stream/services/composer"
	feed "rwa-stream/services/feed"
	txpsr "rwa-stream/services/processors"
	snapshots "rwa-stream/services/snapshots"
	volume "rwa-stream/services/volume"

	// External Packages
	"github.com/alecthomas/kingpin/v2"
	_ "github.com/jsternberg/zap-logfmt"
	"github.com/knadh/koanf"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LoadConfig loads the default configuration and overrides it with the config file
// specified by the path defined in the config flag
func LoadConfig() *koanf.Koanf {
	configPathMsg := "Path to the application config file"
	configPath := kingpin.Flag("config", configPathMsg).Short('c').Default("config.yml").String()

	kingpin.Parse()
	path := *configPath
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	k, err := config.New(path)
	if err != nil {
		log.Fatalf("Error reading config: %v", err)
	}
	return k
}

func main() {
	k := LoadConfig()

	// Unmarshalling config into struct
	appKonf, err := config.Unmarshal(k)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	appKonf = config.LoadSecrets(appKonf)

	// Validate the config loaded
	if err = appKonf.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if !appKonf.IsProdMode {
		k.Print()
		helpers.PrintStruct(appKonf.Issuers)
	}

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "logfmt"
	_ = cfg.Level.UnmarshalText([]byte(appKonf.Logger.Level))
	cfg.InitialFields = make(map[string]any)
	cfg.InitialFields["host"], _ = os.Hostname()
	cfg.InitialFields["service"] = appKonf.Application
	cfg.OutputPaths = []string{"stdout"}
	logger, _ := cfg.Build()
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	issuers := models.NewIssuerSet(appKonf.Issuers)
	txParser := parser.New(issuers, logger)

	client := ledger.NewClient(ledger.Config{
		Endpoints:         appKonf.Ledger.Endpoints,
		RequestTimeout:    appKonf.Ledger.RequestTimeout,
		DialTimeout:       appKonf.Ledger.DialTimeout,
		MaxConnectRetries: appKonf.Ledger.MaxConnectRetries,
		InitialBackoff:    appKonf.Ledger.InitialBackoff,
		MaxBackoff:        appKonf.Ledger.MaxBackoff,
	}, logger)
	client.OnStateChange(func(s ledger.State) {
		logger.Info("ledger connection state changed", zap.String("state", s.String()))
	})
	defer func() {
		_ = client.Disconnect()
	}()

	recentFeed := feed.New(appKonf.API.FeedCapacity)
	sinks := []txpsr.Sink{recentFeed}
	var dlq txpsr.DeadLetterQueue

	server := &api.Server{
		Logger:      logger,
		Connection:  client,
		Feed:        recentFeed,
		RecentLimit: appKonf.API.RecentLimit,
		BaseContext: ctx,
	}

	// Mongo Connection
	if appKonf.Mongo.Enabled {
		mongoClient, err := mongodb.Connect(ctx, appKonf.Mongo.URI, appKonf.Application)
		if err != nil {
			logger.Fatal("cannot create mongo client", zap.Error(err))
		}
		defer func() {
			_ = mongoClient.Disconnect(context.Background())
		}()
		logger.Info("connected to mongo", zap.String("uri", helpers.RedactURI(appKonf.Mongo.URI)))
		txRepo := mongodb.NewTxRepository(mongoClient, appKonf.Mongo.Database)
		if err := txRepo.EnsureIndexes(ctx); err != nil {
			logger.Fatal("cannot create transaction indexes", zap.Error(err))
		}
		sinks = append(sinks, txRepo)
		server.Archive = txRepo
	}

	// Volume cache
	var volumeCache volume.Cache = memory.NewVolumeCache(appKonf.Volume.CacheKey, appKonf.Volume.CacheExpiry)
	if appKonf.Volume.CacheBackend == "sqlite" {
		db, err := sqlite.Open(ctx, appKonf.Volume.CachePath)
		if err != nil {
			logger.Fatal("cannot open volume cache file", zap.String("path", appKonf.Volume.CachePath), zap.Error(err))
		}
		defer func() {
			_ = db.Close()
		}()
		fileCache, err := sqlite.NewVolumeCache(ctx, db, appKonf.Volume.CacheKey)
		if err != nil {
			logger.Fatal("cannot create volume cache table", zap.Error(err))
		}
		volumeCache = fileCache
	}

	// Redis Connection
	if appKonf.Redis.Enabled {
		redisClient, err := redis.Connect(ctx, appKonf.Redis.URI, appKonf.Redis.Password)
		if err != nil {
			logger.Fatal("cannot create redis client", zap.Error(err))
		}
		defer func() {
			_ = redisClient.Close()
		}()
		dlq = redis.NewDeadLetterQueue(redisClient, logger)
		if appKonf.Volume.CacheBackend == "redis" {
			volumeCache = redis.NewVolumeCache(redisClient, appKonf.Volume.CacheKey, appKonf.Volume.CacheExpiry)
		}
	}

	aggregator := volume.New(txParser, volumeCache, volume.Config{CacheExpiry: appKonf.Volume.CacheExpiry}, logger)
	if aggregator.Restore(ctx) {
		logger.Info("restored volume session", zap.Int("issuers", len(aggregator.Records())))
	}
	server.Volumes = aggregator

	assets := composer.New(issuers, aggregator, client, appKonf.Supply.RefreshInterval, logger)
	server.Assets = assets

	var (
		metrics  *kprom.Metrics
		producer *kafka.Producer
	)
	if appKonf.Kafka.Enabled {
		metrics = kprom.NewMetrics("rwa")
		server.Metrics = metrics.Handler()
		producer, err = kafka.NewProducer(&models.ProducerConfig{
			Brokers:       appKonf.Kafka.Brokers,
			EnvelopeTopic: appKonf.Kafka.Topic,
			ParsedTopic:   appKonf.Kafka.ParsedTopic,
		}, metrics, logger)
		if err != nil {
			logger.Fatal("cannot create kafka producer", zap.Error(err))
		}
		defer producer.Close()
		sinks = append(sinks, producer)
	}

	txProcessor := txpsr.NewTxProcessor(logger, txParser, aggregator, dlq, sinks...)

	g, gctx := errgroup.WithContext(ctx)

	handler := txProcessor.ProcessEnvelope
	if appKonf.Kafka.Consume {
		handler = producer.PublishEnvelope
		consumer, err := kafka.NewEnvelopeConsumer(&models.ConsumerConfig{
			Brokers:        appKonf.Kafka.Brokers,
			Name:           appKonf.Kafka.ConsumerName,
			Topic:          appKonf.Kafka.Topic,
			RecordsPerPoll: appKonf.Kafka.RecordsPerPoll,
		}, txProcessor, metrics, logger)
		if err != nil {
			logger.Fatal("cannot create envelope consumer", zap.Error(err))
		}
		g.Go(func() error {
			return consumer.Poll(gctx)
		})
	}

	// Snapshot history
	if appKonf.Postgres.Enabled {
		pool, err := postgres.Connect(ctx, appKonf.Postgres.DSN, appKonf.Postgres.MaxConns)
		if err != nil {
			logger.Fatal("cannot create postgres pool", zap.Error(err))
		}
		defer pool.Close()
		logger.Info("connected to postgres", zap.String("dsn", helpers.RedactURI(appKonf.Postgres.DSN)))
		snapshotRepo := postgres.NewSnapshotRepository(pool)
		if err := snapshotRepo.EnsureSchema(ctx); err != nil {
			logger.Fatal("cannot create snapshot schema", zap.Error(err))
		}
		server.History = snapshotRepo
		snapshotter := snapshots.New(aggregator, snapshotRepo, appKonf.Postgres.SnapshotInterval, logger)
		g.Go(func() error {
			return snapshotter.Run(gctx)
		})
	}

	g.Go(func() error {
		return server.Run(gctx, appKonf.API.Addr)
	})

	// A failed initial connection leaves the client in the error state; the
	// API stays up and /api/connection/retry starts another attempt.
	if err := client.ConnectWithRetry(ctx); err != nil {
		logger.Error("ledger connection failed", zap.Error(err))
	}

	stopPoller := poller.New(client, issuers.Addresses(), handler, poller.Config{
		Interval:          appKonf.Poller.Interval,
		PaymentInterval:   appKonf.Poller.EffectivePaymentInterval(),
		InitialDelay:      appKonf.Poller.InitialDelay,
		BatchLimit:        appKonf.Poller.BatchLimit,
		PaymentBatchLimit: appKonf.Poller.PaymentBatchLimit,
		SeenCapacity:      appKonf.Poller.SeenCapacity,
	}, logger).Start(gctx)
	stopComposer := assets.Run(gctx)

	err = g.Wait()
	stopPoller()
	stopComposer()
	if err != nil {
		logger.Error("pipeline stopped with error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
