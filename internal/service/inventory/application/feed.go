// internal/service/inventory/application/feed.go
package application

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wangke168/saas-sub000/internal/pkg/logger"
	"github.com/wangke168/saas-sub000/internal/service/inventory/port"
)

// CapacityPush 是供应商推送的一条库存基线。
type CapacityPush struct {
	UnitID    string    `json:"unitId"`
	Date      string    `json:"date"` // 2006-01-02
	Total     int       `json:"total"`
	Available int       `json:"available"`
	Closed    bool      `json:"closed"`
	PushedAt  time.Time `json:"pushedAt"`
}

// FeedIngestor 处理供应商的高频库存推送。
// 推送里绝大部分是没变化的重发，先过指纹缓存，
// 只有真实变更才落库——下游渠道的重推也只由真实变更触发。
type FeedIngestor struct {
	ledger       *Ledger
	fingerprints port.FingerprintCache
	tracer       trace.Tracer
}

func NewFeedIngestor(ledger *Ledger, fingerprints port.FingerprintCache, tracer trace.Tracer) *FeedIngestor {
	return &FeedIngestor{ledger: ledger, fingerprints: fingerprints, tracer: tracer}
}

// HandleCapacityPush 返回本次推送是否产生了真实变更。
// changed=true 时调用方应触发面向渠道的出站重推（渠道协议在外部）。
func (f *FeedIngestor) HandleCapacityPush(ctx context.Context, push *CapacityPush) (bool, error) {
	ctx, span := f.tracer.Start(ctx, "feed.HandleCapacityPush")
	defer span.End()

	span.SetAttributes(
		attribute.String("unit.id", push.UnitID),
		attribute.String("date", push.Date),
	)

	value := fingerprintValue(push)
	if changed := f.fingerprints.CheckAndUpdate(ctx, push.UnitID, push.Date, value); !changed {
		span.AddEvent("push suppressed: value unchanged")
		return false, nil
	}

	if _, err := f.ledger.UpsertBaseline(ctx, push.UnitID, push.Date, push.Total, push.Available, push.Closed); err != nil {
		span.RecordError(err)
		return false, err
	}

	logger.Ctx(ctx).Info().
		Str("unit", push.UnitID).Str("date", push.Date).
		Int("total", push.Total).Int("available", push.Available).Bool("closed", push.Closed).
		Msg("capacity baseline updated from feed")
	return true, nil
}

// fingerprintValue 把一条推送的全部业务字段编码成可比对的指纹值。
func fingerprintValue(push *CapacityPush) string {
	return fmt.Sprintf("%d|%d|%t", push.Total, push.Available, push.Closed)
}
