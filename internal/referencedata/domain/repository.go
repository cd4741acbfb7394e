package domain

import (
	"context"
	"time"
)

// SourceRepository 行情来源与优先级配置仓储
type SourceRepository interface {
	Create(ctx context.Context, source *MarketDataSource) error
	Update(ctx context.Context, source *MarketDataSource) error
	// Upsert 按 code 写入或更新来源，目录同步使用
	Upsert(ctx context.Context, source *MarketDataSource) error
	GetByCode(ctx context.Context, code string) (*MarketDataSource, error)
	ListActive(ctx context.Context) ([]*MarketDataSource, error)
	List(ctx context.Context) ([]*MarketDataSource, error)
	// ListOverrides 返回某组织对某数据类型的全部来源优先级覆盖
	ListOverrides(ctx context.Context, orgID uint, dataType DataType) ([]*SourcePriorityOverride, error)
	SaveOverride(ctx context.Context, override *SourcePriorityOverride) error
	DeleteOverride(ctx context.Context, orgID uint, dataType DataType, sourceCode string) error
}

// FXRateRepository 汇率观测值与正式汇率仓储
type FXRateRepository interface {
	SaveObservation(ctx context.Context, obs *FXRateObservation) error
	// ListObservations 返回日期范围内的全部汇率观测值
	ListObservations(ctx context.Context, rng DateRange) ([]*FXRateObservation, error)
	// UpsertCanonical 写入或更新正式汇率，返回是否为新建
	UpsertCanonical(ctx context.Context, rate *FXRate) (created bool, err error)
	GetCanonical(ctx context.Context, base, quote string, date time.Time, rateType FXRateType) (*FXRate, error)
	ListCanonical(ctx context.Context, date time.Time) ([]*FXRate, error)
}

// PriceRepository 价格观测值与正式价格仓储
type PriceRepository interface {
	SaveObservation(ctx context.Context, obs *PriceObservation) error
	ListObservations(ctx context.Context, rng DateRange) ([]*PriceObservation, error)
	UpsertCanonical(ctx context.Context, price *InstrumentPrice) (created bool, err error)
	GetCanonical(ctx context.Context, instrumentID uint, date time.Time, priceType string) (*InstrumentPrice, error)
}

// YieldCurveRepository 收益率曲线观测值与正式曲线点仓储
type YieldCurveRepository interface {
	SaveObservation(ctx context.Context, obs *YieldCurvePointObservation) error
	ListObservations(ctx context.Context, rng DateRange) ([]*YieldCurvePointObservation, error)
	UpsertCanonical(ctx context.Context, point *YieldCurvePoint) (created bool, err error)
	ListCanonical(ctx context.Context, curveCode string, date time.Time) ([]*YieldCurvePoint, error)
}

// IndexValueRepository 指数观测值与正式指数点位仓储
type IndexValueRepository interface {
	SaveObservation(ctx context.Context, obs *IndexValueObservation) error
	ListObservations(ctx context.Context, rng DateRange) ([]*IndexValueObservation, error)
	UpsertCanonical(ctx context.Context, value *MarketIndexValue) (created bool, err error)
	GetCanonical(ctx context.Context, indexCode string, date time.Time) (*MarketIndexValue, error)
}
