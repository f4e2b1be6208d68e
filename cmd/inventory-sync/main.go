// cmd/inventory-sync/main.go
package main

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wangke168/saas-sub000/internal/pkg/bootstrap"
	"github.com/wangke168/saas-sub000/internal/pkg/keylock"
	"github.com/wangke168/saas-sub000/internal/pkg/mq"
	"github.com/wangke168/saas-sub000/internal/pkg/redis"
	"github.com/wangke168/saas-sub000/internal/pkg/zookeeper"
	"github.com/wangke168/saas-sub000/internal/service/inventory/application"
	"github.com/wangke168/saas-sub000/internal/service/inventory/infrastructure"
	"github.com/wangke168/saas-sub000/internal/service/inventory/interfaces"
)

const (
	serviceName = "inventory-sync"
	servicePort = 8092

	feedConsumerGroup = "inventory-feed-consumer-group"
)

// main 是应用的组装根：创建并组装所有依赖项，然后启动应用。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}

	store := infrastructure.NewGormCapacityStore(db)
	if err := store.AutoMigrate(); err != nil {
		log.Fatalf("failed to migrate capacity store: %v", err)
	}

	var locks keylock.Locker = keylock.NewKeyedMutex()
	if cfg.Infra.Zookeeper.Enabled {
		zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, 5*time.Second)
		if err != nil {
			log.Fatalf("failed to connect zookeeper: %v", err)
		}
		defer zkConn.CloseConn()
		locks = zookeeper.NewKeyLocker(zkConn)
	}
	ledger := application.NewLedger(store, locks)

	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		log.Fatalf("failed to initialize redis client: %v", err)
	}
	defer redisClient.Close()

	fingerprints, err := infrastructure.NewRedisFingerprintCache(redisClient, cfg.Inventory.FingerprintTTL)
	if err != nil {
		log.Fatalf("failed to initialize fingerprint cache: %v", err)
	}

	ingestor := application.NewFeedIngestor(ledger, fingerprints, otel.Tracer(serviceName))

	feedReader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.Topics.CapacityFeed, feedConsumerGroup)
	feedConsumer := interfaces.NewFeedConsumerAdapter(feedReader, ingestor)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewInventoryHandler(ledger).RegisterRoutes(appCtx.Mux)
		},
		Run: func(ctx context.Context) {
			feedConsumer.Start(ctx)
		},
		OnShutdown: func(ctx context.Context) {
			feedConsumer.Stop()
		},
	})
}
