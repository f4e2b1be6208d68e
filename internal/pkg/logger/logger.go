// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Init 初始化全局 zerolog 配置。
// service 会作为固定字段附加到每条日志上，便于多服务聚合检索。
func Init(service string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Ctx 返回一个绑定了当前 trace 上下文的 logger。
// 如果 ctx 中存在有效的 Span，日志会自动带上 traceId，方便与 Jaeger 关联。
func Ctx(ctx context.Context) *zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return &log.Logger
	}
	l := log.Logger.With().Str("traceId", sc.TraceID().String()).Logger()
	return &l
}
