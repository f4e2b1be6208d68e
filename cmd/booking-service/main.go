// cmd/booking-service/main.go
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
	"github.com/wangke168/saas-sub000/internal/pkg/httpclient"
	"github.com/wangke168/saas-sub000/internal/pkg/keylock"
	"github.com/wangke168/saas-sub000/internal/pkg/mq"
	"github.com/wangke168/saas-sub000/internal/pkg/zookeeper"
	"github.com/wangke168/saas-sub000/internal/service/booking/application"
	"github.com/wangke168/saas-sub000/internal/service/booking/infrastructure"
	"github.com/wangke168/saas-sub000/internal/service/booking/infrastructure/adapter"
	"github.com/wangke168/saas-sub000/internal/service/booking/interfaces"
	"github.com/wangke168/saas-sub000/internal/service/booking/port"
	invapp "github.com/wangke168/saas-sub000/internal/service/inventory/application"
	invinfra "github.com/wangke168/saas-sub000/internal/service/inventory/infrastructure"
)

const (
	serviceName = "booking-service"
	servicePort = 8091

	jobConsumerGroup     = "booking-job-consumer-group"
	timeoutConsumerGroup = "booking-timeout-consumer-group"
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

	orderRepo, err := infrastructure.NewGormOrderRepository(db)
	if err != nil {
		log.Fatalf("failed to init order repository: %v", err)
	}
	exceptionRepo, err := infrastructure.NewGormExceptionRepository(db)
	if err != nil {
		log.Fatalf("failed to init exception repository: %v", err)
	}

	// 库存台账：与 inventory-sync 共享同一张 MySQL 表。
	// 多实例部署时写互斥交给 ZooKeeper，单实例用进程内锁即可。
	capacityStore := invinfra.NewGormCapacityStore(db)
	if err := capacityStore.AutoMigrate(); err != nil {
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
	reservation := invapp.NewReservationEngine(invapp.NewLedger(capacityStore, locks))

	// 渠道适配器注册表：新渠道在这里加一行
	registry := port.NewAdapterRegistry()
	registry.Register(adapter.NewCtripAdapter())
	registry.Register(adapter.NewMeituanAdapter())
	registry.Register(adapter.NewFliggyAdapter())
	registry.Register(adapter.NewZiwoyouAdapter())

	brokers := cfg.Infra.Kafka.Brokers
	jobQueue := adapter.NewJobKafkaAdapter(brokers, cfg.Infra.Kafka.Topics.ResourceJobs)
	notifier := adapter.NewNotificationKafkaAdapter(brokers, cfg.Infra.Kafka.Topics.ChannelNotify, registry)
	scheduler := adapter.NewSchedulerKafkaAdapter(brokers, cfg.Infra.Kafka.Topics.DelayQueue, cfg.Infra.Kafka.Topics.PaymentTimeout)

	tracer := otel.Tracer(serviceName)
	orderService := application.NewOrderService(
		orderRepo, reservation, jobQueue, notifier, scheduler,
		tracer, cfg.Booking.PaymentWindow,
	)

	var jobConsumer *interfaces.JobConsumerAdapter
	var timeoutConsumer *interfaces.TimeoutConsumerAdapter

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			// 供应商网关地址走 Nacos 发现；编排器依赖它，所以在这里完成组装
			provider := adapter.NewProviderHTTPAdapter(
				httpclient.NewClient(tracer),
				adapter.NacosEndpoint(appCtx.Nacos, cfg.Booking.ProviderService),
			)
			orchestrator := application.NewResourceJobOrchestrator(
				orderService, provider, exceptionRepo, tracer,
				application.OrchestratorConfig{
					MaxAttempts: cfg.Booking.MaxAttempts,
					CallTimeout: cfg.Booking.ProviderTimeout,
					Backoff:     application.DefaultOrchestratorConfig().Backoff,
				},
			)

			jobReader := mq.NewKafkaReader(brokers, cfg.Infra.Kafka.Topics.ResourceJobs, jobConsumerGroup)
			jobConsumer = interfaces.NewJobConsumerAdapter(jobReader, orchestrator, cfg.Booking.Workers)

			timeoutReader := mq.NewKafkaReader(brokers, cfg.Infra.Kafka.Topics.PaymentTimeout, timeoutConsumerGroup)
			timeoutConsumer = interfaces.NewTimeoutConsumerAdapter(timeoutReader, orderService)

			handler := interfaces.NewBookingHandler(orderService, registry, exceptionRepo)
			handler.RegisterRoutes(appCtx.Mux)
		},
		Run: func(ctx context.Context) {
			jobConsumer.Start(ctx)
			timeoutConsumer.Start(ctx)
		},
		OnShutdown: func(ctx context.Context) {
			jobConsumer.Stop()
			timeoutConsumer.Stop()
			jobQueue.Close()
			notifier.Close()
			scheduler.Close()
		},
	})
}
