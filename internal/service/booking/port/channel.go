// internal/service/booking/port/channel.go
package port

import (
	"fmt"
	"sync"
	"time"

	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
)

// ChannelAction 是渠道回调表达的意图。
type ChannelAction string

const (
	ActionCreate ChannelAction = "create"
	ActionPay    ChannelAction = "pay"
	ActionCancel ChannelAction = "cancel"
	ActionQuery  ChannelAction = "query"
)

// ChannelRequest 是各渠道报文解析后的统一形状。
// 核心流程只认识这个结构，绝不针对具体渠道分支。
type ChannelRequest struct {
	Channel        string
	ChannelOrderID string
	Action         ChannelAction
	UnitID         string
	CheckIn        time.Time
	CheckOut       time.Time
	Quantity       int
}

// ChannelAdapter 把一个渠道的报文协议适配到核心流程上。
// 每接入一个新渠道实现一份，核心代码零改动。
type ChannelAdapter interface {
	// Channel 返回渠道标识，例如 "ctrip"、"meituan"。
	Channel() string

	// ParseRequest 解析并校验渠道原始报文（验签由外层中间件完成）。
	ParseRequest(payload []byte) (*ChannelRequest, error)

	// MapState 把内部状态映射为该渠道的状态码。
	MapState(state domain.State) string

	// BuildResponse 构造渠道期望的应答报文。
	BuildResponse(ok bool, message string) []byte
}

// AdapterRegistry 按渠道标识管理适配器。
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]ChannelAdapter
}

func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{adapters: make(map[string]ChannelAdapter)}
}

func (r *AdapterRegistry) Register(adapter ChannelAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Channel()] = adapter
}

func (r *AdapterRegistry) Get(channel string) (ChannelAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[channel]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for channel %q", channel)
	}
	return adapter, nil
}
