// internal/service/inventory/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/wangke168/saas-sub000/internal/pkg/logger"
	"github.com/wangke168/saas-sub000/internal/service/inventory/application"
	"github.com/wangke168/saas-sub000/internal/service/inventory/domain"
)

const serviceName = "inventory-sync"

// InventoryHandler 暴露库存台账的查询和运营面。
// 正常情况下基线由供应商推送驱动；这里的写接口是运营兜底
// （手工关房、紧急修正），走和推送完全相同的台账入口。
type InventoryHandler struct {
	ledger *application.Ledger
}

func NewInventoryHandler(ledger *application.Ledger) *InventoryHandler {
	return &InventoryHandler{ledger: ledger}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/capacity/{unit}/{date}", h.getCapacity)
	mux.HandleFunc("PUT /api/capacity/{unit}/{date}", h.putBaseline)
	mux.HandleFunc("POST /api/capacity/{unit}/{date}/close", h.closeDate)
}

func (h *InventoryHandler) getCapacity(w http.ResponseWriter, r *http.Request) {
	record, err := h.ledger.Get(r.Context(), r.PathValue("unit"), r.PathValue("date"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrRecordNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(record)
}

type baselineRequest struct {
	Total     int  `json:"total"`
	Available int  `json:"available"`
	Closed    bool `json:"closed"`
}

func (h *InventoryHandler) putBaseline(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "api.PutBaseline")
	defer span.End()

	var req baselineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	unit, date := r.PathValue("unit"), r.PathValue("date")
	span.SetAttributes(attribute.String("unit", unit), attribute.String("date", date))

	record, err := h.ledger.UpsertBaseline(ctx, unit, date, req.Total, req.Available, req.Closed)
	if err != nil {
		span.RecordError(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	logger.Ctx(ctx).Info().Str("unit", unit).Str("date", date).
		Int("total", req.Total).Int("available", req.Available).Bool("closed", req.Closed).
		Msg("capacity baseline updated manually")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(record)
}

// closeDate 手工关房：保留现有数量，只把可售开关拨到关闭。
// 已持有的锁定不受影响，释放依旧允许。
func (h *InventoryHandler) closeDate(w http.ResponseWriter, r *http.Request) {
	unit, date := r.PathValue("unit"), r.PathValue("date")

	current, err := h.ledger.Get(r.Context(), unit, date)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrRecordNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	record, err := h.ledger.UpsertBaseline(r.Context(), unit, date, current.Total, current.Available, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	logger.Ctx(r.Context()).Warn().Str("unit", unit).Str("date", date).Msg("date closed for sale")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(record)
}
