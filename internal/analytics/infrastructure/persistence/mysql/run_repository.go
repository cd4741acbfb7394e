package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/portfoliovaluation/internal/analytics/domain"
	"github.com/wyfcoding/portfoliovaluation/pkg/db"
)

// RunRepository 估值执行仓储的 MySQL 实现
type RunRepository struct {
	db *db.DB
}

// NewRunRepository 创建执行仓储
func NewRunRepository(database *db.DB) *RunRepository {
	return &RunRepository{db: database}
}

// Create 新增执行。唯一约束 (org, portfolio, date, inputs_hash) 冲突时返回 ErrDuplicateRun。
func (r *RunRepository) Create(ctx context.Context, run *domain.ValuationRun) error {
	err := r.db.WithContext(ctx).Create(run).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDuplicateRun
	}
	return err
}

// Update 保存执行的当前状态
func (r *RunRepository) Update(ctx context.Context, run *domain.ValuationRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// GetByID 按 ID 查询执行
func (r *RunRepository) GetByID(ctx context.Context, id uint) (*domain.ValuationRun, error) {
	var run domain.ValuationRun
	err := r.db.WithContext(ctx).First(&run, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// FindByInputs 按输入指纹查找既有执行
func (r *RunRepository) FindByInputs(ctx context.Context, orgID, portfolioID uint, asOfDate time.Time, inputsHash string) (*domain.ValuationRun, error) {
	var run domain.ValuationRun
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND portfolio_id = ? AND as_of_date = ? AND inputs_hash = ?",
			orgID, portfolioID, asOfDate.Format("2006-01-02"), inputsHash).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListForPortfolioDate 查询组合某估值日的全部执行，最近创建的在前
func (r *RunRepository) ListForPortfolioDate(ctx context.Context, orgID, portfolioID uint, asOfDate time.Time) ([]*domain.ValuationRun, error) {
	var runs []*domain.ValuationRun
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND portfolio_id = ? AND as_of_date = ?",
			orgID, portfolioID, asOfDate.Format("2006-01-02")).
		Order("created_at DESC").
		Find(&runs).Error
	return runs, err
}

// ListByRunContext 查询同一批次下的全部执行
func (r *RunRepository) ListByRunContext(ctx context.Context, orgID uint, runContextID string) ([]*domain.ValuationRun, error) {
	var runs []*domain.ValuationRun
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND run_context_id = ?", orgID, runContextID).
		Order("created_at DESC").
		Find(&runs).Error
	return runs, err
}

// LatestOfficial 查询组合某估值日的正式执行
func (r *RunRepository) LatestOfficial(ctx context.Context, orgID, portfolioID uint, asOfDate time.Time) (*domain.ValuationRun, error) {
	var run domain.ValuationRun
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND portfolio_id = ? AND as_of_date = ? AND is_official = ?",
			orgID, portfolioID, asOfDate.Format("2006-01-02"), true).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// PromoteOfficial 在单个事务里完成正式结果切换：
// 行锁锁定同组合同日的旧正式执行，摘除其标记后再标记新执行，
// 并通过 publish 回调把审计事件写入同一事务。
func (r *RunRepository) PromoteOfficial(ctx context.Context, run *domain.ValuationRun, publish func(tx *gorm.DB, previousID *uint) error) (*uint, error) {
	var previousID *uint
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		var previous domain.ValuationRun
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("org_id = ? AND portfolio_id = ? AND as_of_date = ? AND is_official = ? AND id <> ?",
				run.OrgID, run.PortfolioID, run.AsOfDate.Format("2006-01-02"), true, run.ID).
			First(&previous).Error
		switch {
		case err == nil:
			previousID = &previous.ID
			if err := tx.Model(&previous).Update("is_official", false).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// 没有旧正式执行
		default:
			return err
		}

		if err := tx.Model(run).Update("is_official", true).Error; err != nil {
			return err
		}
		run.IsOfficial = true

		if publish != nil {
			return publish(tx, previousID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return previousID, nil
}

// DemoteOfficial 在单个事务里摘除正式标记
func (r *RunRepository) DemoteOfficial(ctx context.Context, run *domain.ValuationRun, publish func(tx *gorm.DB) error) error {
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(run).Update("is_official", false).Error; err != nil {
			return err
		}
		run.IsOfficial = false
		if publish != nil {
			return publish(tx)
		}
		return nil
	})
}

// ResultRepository 估值结果仓储的 MySQL 实现
type ResultRepository struct {
	db *db.DB
}

// NewResultRepository 创建结果仓储
func NewResultRepository(database *db.DB) *ResultRepository {
	return &ResultRepository{db: database}
}

// ReplaceForRun 以删后插的方式替换某次执行的全部结果，整体一个事务
func (r *ResultRepository) ReplaceForRun(ctx context.Context, runID uint, results []*domain.ValuationPositionResult) error {
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("valuation_run_id = ?", runID).
			Delete(&domain.ValuationPositionResult{}).Error; err != nil {
			return err
		}
		if len(results) == 0 {
			return nil
		}
		return tx.Create(results).Error
	})
}

// ListForRun 返回某次执行的全部结果
func (r *ResultRepository) ListForRun(ctx context.Context, runID uint) ([]*domain.ValuationPositionResult, error) {
	var results []*domain.ValuationPositionResult
	err := r.db.WithContext(ctx).
		Where("valuation_run_id = ?", runID).
		Order("position_snapshot_id ASC").
		Find(&results).Error
	return results, err
}

// ExposureRepository 敞口结果仓储的 MySQL 实现
type ExposureRepository struct {
	db *db.DB
}

// NewExposureRepository 创建敞口仓储
func NewExposureRepository(database *db.DB) *ExposureRepository {
	return &ExposureRepository{db: database}
}

// ReplaceForRun 以删后插的方式替换某次执行的全部敞口行
func (r *ExposureRepository) ReplaceForRun(ctx context.Context, runID uint, entries []*domain.ExposureResult) error {
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("valuation_run_id = ?", runID).
			Delete(&domain.ExposureResult{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.Create(entries).Error
	})
}

// ListForRun 返回某次执行落库的全部敞口行
func (r *ExposureRepository) ListForRun(ctx context.Context, runID uint) ([]*domain.ExposureResult, error) {
	var entries []*domain.ExposureResult
	err := r.db.WithContext(ctx).
		Where("valuation_run_id = ?", runID).
		Order("dimension_type ASC, value_base DESC").
		Find(&entries).Error
	return entries, err
}
