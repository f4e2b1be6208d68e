// cmd/delay-scheduler/main.go
package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wangke168/saas-sub000/internal/pkg/bootstrap"
	"github.com/wangke168/saas-sub000/internal/pkg/mq"
)

const serviceName = "delay-scheduler"
const servicePort = 8093

var tracer = otel.Tracer(serviceName)

// Scheduler 轮询延迟主题，把到期的消息转投到 Header 指定的真实主题。
// 同一分区内消息按投递时间天然有序（生产方写入时 deadline 单调），
// 所以队头未到期时后面的也不会到期，直接等下一次 tick。
type Scheduler struct {
	reader  *kafka.Reader
	brokers []string

	// 每个真实主题一个独立的 writer
	writers    map[string]*kafka.Writer
	writerLock sync.Mutex
}

func NewScheduler(brokers []string, delayTopic string) *Scheduler {
	return &Scheduler{
		reader:  mq.NewKafkaReader(brokers, delayTopic, serviceName+"-group"),
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

// StartPolling 启动定时轮询器。
func (s *Scheduler) StartPolling(ctx context.Context, interval time.Duration) {
	log.Printf("✅ Delay scheduler polling every %v", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer s.reader.Close()
	defer s.closeWriters()

	for {
		select {
		case <-ticker.C:
			s.checkAndPublish(ctx)
		case <-ctx.Done():
			log.Printf("🛑 Delay scheduler shutting down.")
			return
		}
	}
}

func (s *Scheduler) checkAndPublish(parentCtx context.Context) {
	for {
		fetchCtx, cancel := context.WithTimeout(parentCtx, 500*time.Millisecond)
		msg, err := s.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			// 没有新消息或上下文取消，等下一次 tick
			return
		}

		spanCtx := mq.ExtractContext(parentCtx, msg)
		ctx, span := tracer.Start(spanCtx, "scheduler.CheckAndPublish")

		realTopic := headerValue(msg.Headers, "real-topic")
		deliveryTime, parseErr := time.Parse(time.RFC3339, headerValue(msg.Headers, "delay-timestamp"))
		if realTopic == "" || parseErr != nil {
			// 缺 Header 的消息无法投递，提交掉避免卡死分区
			log.Printf("ERROR: message without valid delay headers in delay topic, skipping. parseErr=%v", parseErr)
			if err := s.reader.CommitMessages(ctx, msg); err != nil {
				log.Printf("ERROR: failed to commit skipped message: %v", err)
			}
			span.End()
			continue
		}

		span.SetAttributes(
			attribute.String("real.topic", realTopic),
			attribute.String("delivery.time", deliveryTime.Format(time.DateTime)),
		)

		if time.Now().Before(deliveryTime) {
			// 队头未到期：不提交，留在原位等下一次 tick
			span.AddEvent("HeadMessageNotDue")
			span.End()
			return
		}

		if err := s.publish(ctx, realTopic, msg); err != nil {
			log.Printf("ERROR: failed to publish due message to '%s': %v", realTopic, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to publish to real topic")
			span.End()
			return // 不提交，下次轮询重试
		}
		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			log.Printf("ERROR: failed to commit after publish: %v", err)
			span.RecordError(err)
			span.End()
			return
		}
		span.AddEvent("MessagePublishedAndCommitted", trace.WithAttributes(attribute.String("real.topic", realTopic)))
		span.End()
	}
}

// publish 把消息原样转投真实主题，并带上追踪上下文。
func (s *Scheduler) publish(ctx context.Context, realTopic string, msg kafka.Message) error {
	s.writerLock.Lock()
	writer, exists := s.writers[realTopic]
	if !exists {
		writer = mq.NewKafkaWriter(s.brokers, realTopic)
		s.writers[realTopic] = writer
	}
	s.writerLock.Unlock()

	return mq.ProduceMessage(ctx, writer, msg.Key, msg.Value)
}

func (s *Scheduler) closeWriters() {
	s.writerLock.Lock()
	defer s.writerLock.Unlock()
	for topic, writer := range s.writers {
		if err := writer.Close(); err != nil {
			log.Printf("ERROR: failed to close writer for topic %s: %v", topic, err)
		}
	}
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	scheduler := NewScheduler(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.Topics.DelayQueue)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		Run: func(ctx context.Context) {
			scheduler.StartPolling(ctx, time.Second)
		},
	})
}
