// internal/service/booking/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/wangke168/saas-sub000/internal/pkg/logger"
	"github.com/wangke168/saas-sub000/internal/service/booking/application"
	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
	"github.com/wangke168/saas-sub000/internal/service/booking/port"
)

const (
	serviceName    = "booking-service"
	maxPayloadSize = 256 * 1024
)

// BookingHandler 暴露两组 HTTP 面：
//   - /api/channel/{channel}/callback  渠道回调的统一入口（验签在网关层）；
//   - /admin/...                       异常单查询和人工裁决。
type BookingHandler struct {
	service    *application.OrderService
	registry   *port.AdapterRegistry
	exceptions domain.ExceptionRepository
}

func NewBookingHandler(service *application.OrderService, registry *port.AdapterRegistry, exceptions domain.ExceptionRepository) *BookingHandler {
	return &BookingHandler{service: service, registry: registry, exceptions: exceptions}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *BookingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/channel/{channel}/callback", h.channelCallback)
	mux.HandleFunc("GET /admin/orders/{id}", h.getOrder)
	mux.HandleFunc("POST /admin/orders/{id}/transition", h.resolveOrder)
	mux.HandleFunc("GET /admin/exceptions", h.listExceptions)
}

// channelCallback 是所有渠道回调的汇聚点。
// 具体渠道的报文差异被适配器吸收，这里只处理统一形状的请求。
func (h *BookingHandler) channelCallback(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "api.ChannelCallback")
	defer span.End()

	channel := r.PathValue("channel")
	span.SetAttributes(attribute.String("channel", channel))

	adapter, err := h.registry.Get(channel)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadSize))
	if err != nil {
		http.Error(w, "cannot read request body", http.StatusBadRequest)
		return
	}

	req, err := adapter.ParseRequest(payload)
	if err != nil {
		span.RecordError(err)
		h.respond(w, adapter, false, err.Error())
		return
	}
	span.SetAttributes(
		attribute.String("channel.order_id", req.ChannelOrderID),
		attribute.String("channel.action", string(req.Action)),
	)

	switch req.Action {
	case port.ActionCreate:
		result, err := h.service.CreateOrder(ctx, application.FromChannelRequest(req))
		if err != nil {
			span.RecordError(err)
			h.respond(w, adapter, false, err.Error())
			return
		}
		h.respond(w, adapter, true, adapter.MapState(result.Order.State))

	case port.ActionPay:
		order := h.lookup(ctx, w, adapter, channel, req.ChannelOrderID)
		if order == nil {
			return
		}
		updated, err := h.service.Transition(ctx, order.ID, domain.StateConfirming, "channel payment notified")
		if err != nil {
			span.RecordError(err)
			h.respond(w, adapter, false, err.Error())
			return
		}
		h.respond(w, adapter, true, adapter.MapState(updated.State))

	case port.ActionCancel:
		order := h.lookup(ctx, w, adapter, channel, req.ChannelOrderID)
		if order == nil {
			return
		}
		qty := req.Quantity
		if qty <= 0 {
			qty = order.RemainingQuantity()
		}
		updated, err := h.service.RequestCancel(ctx, order.ID, qty, "channel cancel request")
		if err != nil {
			span.RecordError(err)
			h.respond(w, adapter, false, err.Error())
			return
		}
		h.respond(w, adapter, true, adapter.MapState(updated.State))

	case port.ActionQuery:
		order := h.lookup(ctx, w, adapter, channel, req.ChannelOrderID)
		if order == nil {
			return
		}
		h.respond(w, adapter, true, adapter.MapState(order.State))

	default:
		h.respond(w, adapter, false, "unsupported action")
	}
}

// lookup 按幂等键取单；找不到时直接按渠道协议应答，调用方收到 nil 即可返回。
func (h *BookingHandler) lookup(ctx context.Context, w http.ResponseWriter, adapter port.ChannelAdapter, channel, channelOrderID string) *domain.Order {
	order, err := h.service.OrderByChannel(ctx, channel, channelOrderID)
	if err != nil {
		h.respond(w, adapter, false, "order not found")
		return nil
	}
	return order
}

func (h *BookingHandler) respond(w http.ResponseWriter, adapter port.ChannelAdapter, ok bool, message string) {
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusOK) // 渠道协议普遍要求 HTTP 200 + 业务码表达失败
	}
	_, _ = w.Write(adapter.BuildResponse(ok, message))
}

// getOrder 管理面：按内部订单号查看聚合全貌（含迁移审计）。
func (h *BookingHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Order(r.Context(), r.PathValue("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if err == domain.ErrOrderNotFound {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(order)
}

type resolveRequest struct {
	To          domain.State `json:"to"`
	Reason      string       `json:"reason"`
	ProviderRef string       `json:"providerRef"`
}

// resolveOrder 管理面：人工裁决停滞的订单。
// 编排器升级异常单之后，值班确认上游实情，再从这里收尾。
func (h *BookingHandler) resolveOrder(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	orderID := r.PathValue("id")
	logger.Ctx(r.Context()).Info().
		Str("orderId", orderID).Str("to", string(req.To)).Str("reason", req.Reason).
		Msg("manual order resolution")

	var (
		order *domain.Order
		err   error
	)
	if req.To == domain.StateConfirmed && req.ProviderRef != "" {
		order, err = h.service.CompleteConfirmation(r.Context(), orderID, req.ProviderRef)
	} else {
		order, err = h.service.Transition(r.Context(), orderID, req.To, req.Reason)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(order)
}

// listExceptions 管理面：待人工处理的异常单。
func (h *BookingHandler) listExceptions(w http.ResponseWriter, r *http.Request) {
	records, err := h.exceptions.ListPending(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}
