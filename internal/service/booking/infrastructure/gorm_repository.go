// internal/service/booking/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
)

const mysqlDuplicateEntry = 1062

// orderModel 是订单聚合的数据库模型。
// (channel, channel_order_id) 上的唯一索引是幂等键的最终防线：
// 两个并发建单请求同时通过了存在性检查时，由它裁决谁是赢家。
type orderModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	Channel        string `gorm:"size:32;uniqueIndex:uk_channel_order,priority:1"`
	ChannelOrderID string `gorm:"size:64;uniqueIndex:uk_channel_order,priority:2"`
	UnitID         string `gorm:"size:64;index"`
	CheckIn        time.Time
	CheckOut       time.Time
	Quantity       int

	State            string `gorm:"size:32;index"`
	PriorState       string `gorm:"size:32"`
	ProviderRef      string `gorm:"size:128"`
	PendingCancelQty int

	Cancellations []domain.Cancellation `gorm:"serializer:json"`
	Transitions   []domain.Transition   `gorm:"serializer:json"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (orderModel) TableName() string { return "booking_orders" }

type exceptionModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	OrderID     string `gorm:"size:64;index"`
	Operation   string `gorm:"size:16"`
	Reason      string `gorm:"size:64"`
	RawResponse string `gorm:"type:text"`
	Status      string `gorm:"size:16;index"`
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

func (exceptionModel) TableName() string { return "booking_exceptions" }

// GormOrderRepository 是 domain.OrderRepository 的 GORM 实现。
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) (*GormOrderRepository, error) {
	if err := db.AutoMigrate(&orderModel{}); err != nil {
		return nil, errors.Wrap(err, "migrate booking_orders")
	}
	return &GormOrderRepository{db: db}, nil
}

// Save 按内部订单号 upsert 整个聚合。
// 幂等键冲突（MySQL 1062）折叠为 domain.ErrDuplicateOrder，由应用层消化。
func (r *GormOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	model := toOrderModel(order)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(model).Error
	if err != nil {
		var mysqlErr *gomysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return domain.ErrDuplicateOrder
		}
		return errors.Wrapf(err, "save order %s", order.ID)
	}
	return nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var model orderModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "find order %s", id)
	}
	return toDomainOrder(&model), nil
}

func (r *GormOrderRepository) FindByChannelOrder(ctx context.Context, channel, channelOrderID string) (*domain.Order, error) {
	var model orderModel
	err := r.db.WithContext(ctx).
		Where("channel = ? AND channel_order_id = ?", channel, channelOrderID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "find order %s/%s", channel, channelOrderID)
	}
	return toDomainOrder(&model), nil
}

// GormExceptionRepository 是 domain.ExceptionRepository 的 GORM 实现。
type GormExceptionRepository struct {
	db *gorm.DB
}

func NewGormExceptionRepository(db *gorm.DB) (*GormExceptionRepository, error) {
	if err := db.AutoMigrate(&exceptionModel{}); err != nil {
		return nil, errors.Wrap(err, "migrate booking_exceptions")
	}
	return &GormExceptionRepository{db: db}, nil
}

func (r *GormExceptionRepository) Save(ctx context.Context, record *domain.ExceptionRecord) error {
	model := &exceptionModel{
		ID:          record.ID,
		OrderID:     record.OrderID,
		Operation:   string(record.Operation),
		Reason:      record.Reason,
		RawResponse: record.RawResponse,
		Status:      string(record.Status),
		CreatedAt:   record.CreatedAt,
		ResolvedAt:  record.ResolvedAt,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(model).Error
	return errors.Wrapf(err, "save exception %s", record.ID)
}

func (r *GormExceptionRepository) ListPending(ctx context.Context) ([]*domain.ExceptionRecord, error) {
	var models []exceptionModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(domain.ExceptionPending)).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list pending exceptions")
	}

	records := make([]*domain.ExceptionRecord, 0, len(models))
	for i := range models {
		m := &models[i]
		records = append(records, &domain.ExceptionRecord{
			ID:          m.ID,
			OrderID:     m.OrderID,
			Operation:   domain.JobOperation(m.Operation),
			Reason:      m.Reason,
			RawResponse: m.RawResponse,
			Status:      domain.ExceptionStatus(m.Status),
			CreatedAt:   m.CreatedAt,
			ResolvedAt:  m.ResolvedAt,
		})
	}
	return records, nil
}

func toOrderModel(order *domain.Order) *orderModel {
	return &orderModel{
		ID:               order.ID,
		Channel:          order.Channel,
		ChannelOrderID:   order.ChannelOrderID,
		UnitID:           order.UnitID,
		CheckIn:          order.CheckIn,
		CheckOut:         order.CheckOut,
		Quantity:         order.Quantity,
		State:            string(order.State),
		PriorState:       string(order.PriorState),
		ProviderRef:      order.ProviderRef,
		PendingCancelQty: order.PendingCancelQty,
		Cancellations:    order.Cancellations,
		Transitions:      order.Transitions,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
}

func toDomainOrder(model *orderModel) *domain.Order {
	return &domain.Order{
		ID:               model.ID,
		Channel:          model.Channel,
		ChannelOrderID:   model.ChannelOrderID,
		UnitID:           model.UnitID,
		CheckIn:          model.CheckIn,
		CheckOut:         model.CheckOut,
		Quantity:         model.Quantity,
		State:            domain.State(model.State),
		PriorState:       domain.State(model.PriorState),
		ProviderRef:      model.ProviderRef,
		PendingCancelQty: model.PendingCancelQty,
		Cancellations:    model.Cancellations,
		Transitions:      model.Transitions,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}
