// internal/service/inventory/infrastructure/gorm_store.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wangke168/saas-sub000/internal/service/inventory/domain"
)

// capacityRecordModel 是台账记录的 gorm 映射。
type capacityRecordModel struct {
	ID        uint   `gorm:"primaryKey"`
	UnitID    string `gorm:"column:unit_id;size:64;uniqueIndex:uk_unit_date"`
	Date      string `gorm:"column:date;size:10;uniqueIndex:uk_unit_date"`
	Total     int    `gorm:"column:total"`
	Available int    `gorm:"column:available"`
	Locked    int    `gorm:"column:locked"`
	Sold      int    `gorm:"column:sold"`
	Closed    bool   `gorm:"column:closed"`
	UpdatedAt time.Time
}

func (capacityRecordModel) TableName() string { return "capacity_records" }

// GormCapacityStore 是 port.CapacityStore 的 MySQL 实现。
// 记录只增改不删，历史日期自然沉淀在表里。
type GormCapacityStore struct {
	db *gorm.DB
}

func NewGormCapacityStore(db *gorm.DB) *GormCapacityStore {
	return &GormCapacityStore{db: db}
}

// AutoMigrate 建表。服务启动时调用一次。
func (s *GormCapacityStore) AutoMigrate() error {
	return errors.Wrap(s.db.AutoMigrate(&capacityRecordModel{}), "migrate capacity_records")
}

func (s *GormCapacityStore) Get(ctx context.Context, unitID, date string) (*domain.CapacityRecord, error) {
	var model capacityRecordModel
	err := s.db.WithContext(ctx).
		Where("unit_id = ? AND date = ?", unitID, date).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query capacity record")
	}
	return toDomainRecord(&model), nil
}

func (s *GormCapacityStore) Save(ctx context.Context, record *domain.CapacityRecord) error {
	model := capacityRecordModel{
		UnitID:    record.UnitID,
		Date:      record.Date,
		Total:     record.Total,
		Available: record.Available,
		Locked:    record.Locked,
		Sold:      record.Sold,
		Closed:    record.Closed,
		UpdatedAt: record.UpdatedAt,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "unit_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"total", "available", "locked", "sold", "closed", "updated_at"}),
		}).
		Create(&model).Error
	return errors.Wrap(err, "save capacity record")
}

func toDomainRecord(model *capacityRecordModel) *domain.CapacityRecord {
	return &domain.CapacityRecord{
		UnitID:    model.UnitID,
		Date:      model.Date,
		Total:     model.Total,
		Available: model.Available,
		Locked:    model.Locked,
		Sold:      model.Sold,
		Closed:    model.Closed,
		UpdatedAt: model.UpdatedAt,
	}
}
