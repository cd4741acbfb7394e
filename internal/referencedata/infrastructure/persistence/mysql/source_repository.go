package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/wyfcoding/portfoliovaluation/internal/referencedata/domain"
	"github.com/wyfcoding/portfoliovaluation/pkg/db"
)

// SourceRepository 行情来源仓储的 MySQL 实现
type SourceRepository struct {
	db *db.DB
}

// NewSourceRepository 创建来源仓储
func NewSourceRepository(database *db.DB) *SourceRepository {
	return &SourceRepository{db: database}
}

// Create 新增来源
func (r *SourceRepository) Create(ctx context.Context, source *domain.MarketDataSource) error {
	return r.db.WithContext(ctx).Create(source).Error
}

// Update 更新来源
func (r *SourceRepository) Update(ctx context.Context, source *domain.MarketDataSource) error {
	return r.db.WithContext(ctx).Save(source).Error
}

// Upsert 按 code 写入或更新来源
func (r *SourceRepository) Upsert(ctx context.Context, source *domain.MarketDataSource) error {
	return db.Upsert(r.db.WithContext(ctx),
		source,
		[]string{"code"},
		[]string{"name", "priority", "source_type", "is_active", "description", "updated_at"})
}

// GetByCode 按编码查询来源
func (r *SourceRepository) GetByCode(ctx context.Context, code string) (*domain.MarketDataSource, error) {
	var source domain.MarketDataSource
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&source).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSourceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &source, nil
}

// ListActive 返回全部启用中的来源
func (r *SourceRepository) ListActive(ctx context.Context) ([]*domain.MarketDataSource, error) {
	var sources []*domain.MarketDataSource
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("priority ASC, code ASC").
		Find(&sources).Error
	return sources, err
}

// List 返回全部来源
func (r *SourceRepository) List(ctx context.Context) ([]*domain.MarketDataSource, error) {
	var sources []*domain.MarketDataSource
	err := r.db.WithContext(ctx).Order("priority ASC, code ASC").Find(&sources).Error
	return sources, err
}

// ListOverrides 返回组织在某数据类型下的全部优先级覆盖
func (r *SourceRepository) ListOverrides(ctx context.Context, orgID uint, dataType domain.DataType) ([]*domain.SourcePriorityOverride, error) {
	var overrides []*domain.SourcePriorityOverride
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND data_type = ?", orgID, dataType).
		Find(&overrides).Error
	return overrides, err
}

// SaveOverride 写入或更新优先级覆盖
func (r *SourceRepository) SaveOverride(ctx context.Context, override *domain.SourcePriorityOverride) error {
	return db.Upsert(r.db.WithContext(ctx),
		override,
		[]string{"org_id", "data_type", "source_code"},
		[]string{"priority", "updated_at"})
}

// DeleteOverride 删除优先级覆盖
func (r *SourceRepository) DeleteOverride(ctx context.Context, orgID uint, dataType domain.DataType, sourceCode string) error {
	return r.db.WithContext(ctx).
		Where("org_id = ? AND data_type = ? AND source_code = ?", orgID, dataType, sourceCode).
		Delete(&domain.SourcePriorityOverride{}).Error
}
