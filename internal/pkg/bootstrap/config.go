// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"log"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是全部服务共享的配置结构，来源为 yaml 文件 + 环境变量覆盖。
type Config struct {
	Infra struct {
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
			Topics  struct {
				ResourceJobs   string `yaml:"resourceJobs"`   // 确认/取消任务队列
				CapacityFeed   string `yaml:"capacityFeed"`   // 供应商库存推送
				ChannelNotify  string `yaml:"channelNotify"`  // 出站渠道通知
				DelayQueue     string `yaml:"delayQueue"`     // 延迟消息中转
				PaymentTimeout string `yaml:"paymentTimeout"` // 支付超时检查
			} `yaml:"topics"`
		} `yaml:"kafka"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Nacos struct {
			Addrs     string `yaml:"addrs"`
			Namespace string `yaml:"namespace"`
			Group     string `yaml:"group"`
		} `yaml:"nacos"`
		Zookeeper struct {
			Enabled bool     `yaml:"enabled"`
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
	} `yaml:"infra"`

	Booking struct {
		ProviderService string        `yaml:"providerService"` // 供应商网关在 Nacos 中的服务名
		ProviderTimeout time.Duration `yaml:"providerTimeout"` // 单次上游调用的硬超时
		MaxAttempts     int           `yaml:"maxAttempts"`
		Workers         int           `yaml:"workers"`
		PaymentWindow   time.Duration `yaml:"paymentWindow"` // 建单后等待支付的时长
	} `yaml:"booking"`

	Inventory struct {
		FingerprintTTL time.Duration `yaml:"fingerprintTTL"`
	} `yaml:"inventory"`
}

var (
	currentConfig *Config
	configOnce    sync.Once
)

// Init 加载配置。约定路径可用 CONFIG_FILE 覆盖；文件缺失时使用内置默认值，
// 方便本地起服务。
func Init() {
	configOnce.Do(func() {
		cfg := defaultConfig()

		path := getEnv("CONFIG_FILE", "configs/config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				log.Fatalf("FATAL: invalid config file %s: %v", path, err)
			}
			log.Printf("Config loaded from %s", path)
		} else {
			log.Printf("WARN: config file %s not readable (%v), using defaults", path, err)
		}

		// 环境变量覆盖，优先级最高
		if v, ok := os.LookupEnv("MYSQL_DSN"); ok {
			cfg.Infra.Mysql.DSN = v
		}
		if v, ok := os.LookupEnv("REDIS_ADDR"); ok {
			cfg.Infra.Redis.Addr = v
		}
		if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
			cfg.Infra.Jaeger.Endpoint = v
		}
		if v, ok := os.LookupEnv("NACOS_SERVER_ADDRS"); ok {
			cfg.Infra.Nacos.Addrs = v
		}

		currentConfig = cfg
	})
}

// GetCurrentConfig 返回进程级配置。必须先调用 Init。
func GetCurrentConfig() *Config {
	if currentConfig == nil {
		log.Fatal("FATAL: bootstrap.Init must be called before GetCurrentConfig")
	}
	return currentConfig
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Infra.Mysql.DSN = "root:root@tcp(localhost:3306)/saas_sub?charset=utf8mb4&parseTime=True&loc=Local"
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Kafka.Topics.ResourceJobs = "resource-jobs"
	cfg.Infra.Kafka.Topics.CapacityFeed = "capacity-feed"
	cfg.Infra.Kafka.Topics.ChannelNotify = "channel-notifications"
	cfg.Infra.Kafka.Topics.DelayQueue = "delay-queue"
	cfg.Infra.Kafka.Topics.PaymentTimeout = "payment-timeout-check"
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Nacos.Addrs = "localhost:8848"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	cfg.Booking.ProviderService = "resource-provider-gateway"
	cfg.Booking.ProviderTimeout = 10 * time.Second
	cfg.Booking.MaxAttempts = 4
	cfg.Booking.Workers = 4
	cfg.Booking.PaymentWindow = 15 * time.Minute
	cfg.Inventory.FingerprintTTL = 10 * time.Minute
	return cfg
}

// getEnv 从环境变量中读取配置，缺省时返回 fallback。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
