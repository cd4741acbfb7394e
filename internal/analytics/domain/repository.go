package domain

import (
	"context"
	"time"

	"gorm.io/gorm"

	portfoliodomain "github.com/wyfcoding/portfoliovaluation/internal/portfolio/domain"
	refdomain "github.com/wyfcoding/portfoliovaluation/internal/referencedata/domain"
)

// RunRepository 估值执行仓储
type RunRepository interface {
	Create(ctx context.Context, run *ValuationRun) error
	Update(ctx context.Context, run *ValuationRun) error
	GetByID(ctx context.Context, id uint) (*ValuationRun, error)
	// FindByInputs 按 (org, portfolio, date, inputsHash) 查找既有执行
	FindByInputs(ctx context.Context, orgID, portfolioID uint, asOfDate time.Time, inputsHash string) (*ValuationRun, error)
	ListForPortfolioDate(ctx context.Context, orgID, portfolioID uint, asOfDate time.Time) ([]*ValuationRun, error)
	ListByRunContext(ctx context.Context, orgID uint, runContextID string) ([]*ValuationRun, error)
	// LatestOfficial 返回组合某估值日的正式执行，不存在时返回 ErrRunNotFound
	LatestOfficial(ctx context.Context, orgID, portfolioID uint, asOfDate time.Time) (*ValuationRun, error)
	// PromoteOfficial 在单个事务里把 run 标记为正式结果并摘除同组合同日的旧正式执行，
	// 返回被摘除的旧正式执行 ID（不存在时为 nil）。事件通过 publish 在同一事务内落库。
	PromoteOfficial(ctx context.Context, run *ValuationRun, publish func(tx *gorm.DB, previousID *uint) error) (*uint, error)
	// DemoteOfficial 在单个事务里摘除 run 的正式标记
	DemoteOfficial(ctx context.Context, run *ValuationRun, publish func(tx *gorm.DB) error) error
}

// ResultRepository 估值结果仓储
type ResultRepository interface {
	// ReplaceForRun 删除该执行的旧结果并写入新结果，整体在一个事务内完成
	ReplaceForRun(ctx context.Context, runID uint, results []*ValuationPositionResult) error
	ListForRun(ctx context.Context, runID uint) ([]*ValuationPositionResult, error)
}

// ExposureRepository 敞口结果仓储
type ExposureRepository interface {
	// ReplaceForRun 删除该执行的旧敞口行并写入新敞口行，整体在一个事务内完成
	ReplaceForRun(ctx context.Context, runID uint, entries []*ExposureResult) error
	ListForRun(ctx context.Context, runID uint) ([]*ExposureResult, error)
}

// FXRateReader 正式汇率读取接口。按币种对双向查找当日 MID 汇率：
// 先查 from/to，未命中再查 to/from，两者都未命中返回 ErrFXRateNotFound。
type FXRateReader interface {
	FindPair(ctx context.Context, fromCurrency, toCurrency string, date time.Time) (*refdomain.FXRate, error)
}

// SnapshotReader 持仓快照读取接口
type SnapshotReader interface {
	GetPortfolio(ctx context.Context, id uint) (*portfoliodomain.Portfolio, error)
	ListSnapshots(ctx context.Context, portfolioID uint, asOfDate time.Time) ([]*portfoliodomain.PositionSnapshot, error)
}
