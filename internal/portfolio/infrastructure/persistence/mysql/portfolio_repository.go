package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/portfoliovaluation/internal/portfolio/domain"
	"github.com/wyfcoding/portfoliovaluation/pkg/db"
)

// PortfolioRepository 组合仓储的 MySQL 实现
type PortfolioRepository struct {
	db *db.DB
}

// NewPortfolioRepository 创建组合仓储
func NewPortfolioRepository(database *db.DB) *PortfolioRepository {
	return &PortfolioRepository{db: database}
}

// GetPortfolio 按 ID 查询组合
func (r *PortfolioRepository) GetPortfolio(ctx context.Context, id uint) (*domain.Portfolio, error) {
	var portfolio domain.Portfolio
	err := r.db.WithContext(ctx).First(&portfolio, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPortfolioNotFound
	}
	if err != nil {
		return nil, err
	}
	return &portfolio, nil
}

// ListSnapshots 返回组合在某估值日的全部持仓快照
func (r *PortfolioRepository) ListSnapshots(ctx context.Context, portfolioID uint, asOfDate time.Time) ([]*domain.PositionSnapshot, error) {
	var snapshots []*domain.PositionSnapshot
	err := r.db.WithContext(ctx).
		Preload("Instrument").
		Where("portfolio_id = ? AND as_of_date = ?", portfolioID, asOfDate.Format("2006-01-02")).
		Order("id ASC").
		Find(&snapshots).Error
	return snapshots, err
}
