package mysql

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/portfoliovaluation/internal/referencedata/domain"
	"github.com/wyfcoding/portfoliovaluation/pkg/db"
)

// applyDateRange 把日期过滤翻译成查询条件。AsOf 优先于 Start/End。
func applyDateRange(q *gorm.DB, rng domain.DateRange) *gorm.DB {
	if !rng.AsOf.IsZero() {
		return q.Where("date = ?", rng.AsOf.Format("2006-01-02"))
	}
	if !rng.Start.IsZero() {
		q = q.Where("date >= ?", rng.Start.Format("2006-01-02"))
	}
	if !rng.End.IsZero() {
		q = q.Where("date <= ?", rng.End.Format("2006-01-02"))
	}
	return q
}

// upsertByKey 按自然键写入或更新正式记录，返回是否为新建。
// 先查后写放在同一事务里，保证 created 判定与写入一致。
func upsertByKey(ctx context.Context, database *db.DB, record any, where string, args []any, assign func(tx *gorm.DB) error) (bool, error) {
	created := false
	err := database.WithTx(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(record).Where(where, args...).Count(&count).Error; err != nil {
			return err
		}
		created = count == 0
		return assign(tx)
	})
	return created, err
}

// FXRateRepository 汇率仓储的 MySQL 实现
type FXRateRepository struct {
	db *db.DB
}

// NewFXRateRepository 创建汇率仓储
func NewFXRateRepository(database *db.DB) *FXRateRepository {
	return &FXRateRepository{db: database}
}

// SaveObservation 落地一条汇率观测值
func (r *FXRateRepository) SaveObservation(ctx context.Context, obs *domain.FXRateObservation) error {
	return r.db.WithContext(ctx).Create(obs).Error
}

// ListObservations 返回日期范围内的全部汇率观测值
func (r *FXRateRepository) ListObservations(ctx context.Context, rng domain.DateRange) ([]*domain.FXRateObservation, error) {
	var list []*domain.FXRateObservation
	q := applyDateRange(r.db.WithContext(ctx).Model(&domain.FXRateObservation{}), rng)
	err := q.Order("base_currency, quote_currency, date").Find(&list).Error
	return list, err
}

// UpsertCanonical 写入或更新正式汇率
func (r *FXRateRepository) UpsertCanonical(ctx context.Context, rate *domain.FXRate) (bool, error) {
	where := "base_currency = ? AND quote_currency = ? AND date = ? AND rate_type = ?"
	args := []any{rate.BaseCurrency, rate.QuoteCurrency, rate.Date.Format("2006-01-02"), rate.RateType}
	return upsertByKey(ctx, r.db, &domain.FXRate{}, where, args, func(tx *gorm.DB) error {
		return db.Upsert(tx, rate,
			[]string{"base_currency", "quote_currency", "date", "rate_type"},
			[]string{"rate", "chosen_source", "observation_id", "selection_reason", "selected_by", "selected_at", "updated_at"})
	})
}

// GetCanonical 查询正式汇率
func (r *FXRateRepository) GetCanonical(ctx context.Context, base, quote string, date time.Time, rateType domain.FXRateType) (*domain.FXRate, error) {
	var rate domain.FXRate
	err := r.db.WithContext(ctx).
		Where("base_currency = ? AND quote_currency = ? AND date = ? AND rate_type = ?",
			base, quote, date.Format("2006-01-02"), rateType).
		First(&rate).Error
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

// ListCanonical 返回某日的全部正式汇率
func (r *FXRateRepository) ListCanonical(ctx context.Context, date time.Time) ([]*domain.FXRate, error) {
	var list []*domain.FXRate
	err := r.db.WithContext(ctx).
		Where("date = ?", date.Format("2006-01-02")).
		Order("base_currency, quote_currency").
		Find(&list).Error
	return list, err
}

// PriceRepository 价格仓储的 MySQL 实现
type PriceRepository struct {
	db *db.DB
}

// NewPriceRepository 创建价格仓储
func NewPriceRepository(database *db.DB) *PriceRepository {
	return &PriceRepository{db: database}
}

// SaveObservation 落地一条价格观测值
func (r *PriceRepository) SaveObservation(ctx context.Context, obs *domain.PriceObservation) error {
	return r.db.WithContext(ctx).Create(obs).Error
}

// ListObservations 返回日期范围内的全部价格观测值
func (r *PriceRepository) ListObservations(ctx context.Context, rng domain.DateRange) ([]*domain.PriceObservation, error) {
	var list []*domain.PriceObservation
	q := applyDateRange(r.db.WithContext(ctx).Model(&domain.PriceObservation{}), rng)
	err := q.Order("instrument_id, date, price_type").Find(&list).Error
	return list, err
}

// UpsertCanonical 写入或更新正式价格
func (r *PriceRepository) UpsertCanonical(ctx context.Context, price *domain.InstrumentPrice) (bool, error) {
	where := "instrument_id = ? AND date = ? AND price_type = ?"
	args := []any{price.InstrumentID, price.Date.Format("2006-01-02"), price.PriceType}
	return upsertByKey(ctx, r.db, &domain.InstrumentPrice{}, where, args, func(tx *gorm.DB) error {
		return db.Upsert(tx, price,
			[]string{"instrument_id", "date", "price_type"},
			[]string{"price", "currency", "chosen_source", "observation_id", "selection_reason", "selected_by", "selected_at", "updated_at"})
	})
}

// GetCanonical 查询正式价格
func (r *PriceRepository) GetCanonical(ctx context.Context, instrumentID uint, date time.Time, priceType string) (*domain.InstrumentPrice, error) {
	var price domain.InstrumentPrice
	err := r.db.WithContext(ctx).
		Where("instrument_id = ? AND date = ? AND price_type = ?", instrumentID, date.Format("2006-01-02"), priceType).
		First(&price).Error
	if err != nil {
		return nil, err
	}
	return &price, nil
}

// YieldCurveRepository 收益率曲线仓储的 MySQL 实现
type YieldCurveRepository struct {
	db *db.DB
}

// NewYieldCurveRepository 创建曲线仓储
func NewYieldCurveRepository(database *db.DB) *YieldCurveRepository {
	return &YieldCurveRepository{db: database}
}

// SaveObservation 落地一条曲线点观测值
func (r *YieldCurveRepository) SaveObservation(ctx context.Context, obs *domain.YieldCurvePointObservation) error {
	return r.db.WithContext(ctx).Create(obs).Error
}

// ListObservations 返回日期范围内的全部曲线点观测值
func (r *YieldCurveRepository) ListObservations(ctx context.Context, rng domain.DateRange) ([]*domain.YieldCurvePointObservation, error) {
	var list []*domain.YieldCurvePointObservation
	q := applyDateRange(r.db.WithContext(ctx).Model(&domain.YieldCurvePointObservation{}), rng)
	err := q.Order("curve_code, tenor_days, date").Find(&list).Error
	return list, err
}

// UpsertCanonical 写入或更新正式曲线点
func (r *YieldCurveRepository) UpsertCanonical(ctx context.Context, point *domain.YieldCurvePoint) (bool, error) {
	where := "curve_code = ? AND tenor_days = ? AND date = ?"
	args := []any{point.CurveCode, point.TenorDays, point.Date.Format("2006-01-02")}
	return upsertByKey(ctx, r.db, &domain.YieldCurvePoint{}, where, args, func(tx *gorm.DB) error {
		return db.Upsert(tx, point,
			[]string{"curve_code", "tenor_days", "date"},
			[]string{"yield_value", "chosen_source", "observation_id", "selection_reason", "selected_by", "selected_at", "updated_at"})
	})
}

// ListCanonical 返回某曲线某日的全部正式曲线点
func (r *YieldCurveRepository) ListCanonical(ctx context.Context, curveCode string, date time.Time) ([]*domain.YieldCurvePoint, error) {
	var list []*domain.YieldCurvePoint
	err := r.db.WithContext(ctx).
		Where("curve_code = ? AND date = ?", curveCode, date.Format("2006-01-02")).
		Order("tenor_days ASC").
		Find(&list).Error
	return list, err
}

// IndexValueRepository 指数仓储的 MySQL 实现
type IndexValueRepository struct {
	db *db.DB
}

// NewIndexValueRepository 创建指数仓储
func NewIndexValueRepository(database *db.DB) *IndexValueRepository {
	return &IndexValueRepository{db: database}
}

// SaveObservation 落地一条指数观测值
func (r *IndexValueRepository) SaveObservation(ctx context.Context, obs *domain.IndexValueObservation) error {
	return r.db.WithContext(ctx).Create(obs).Error
}

// ListObservations 返回日期范围内的全部指数观测值
func (r *IndexValueRepository) ListObservations(ctx context.Context, rng domain.DateRange) ([]*domain.IndexValueObservation, error) {
	var list []*domain.IndexValueObservation
	q := applyDateRange(r.db.WithContext(ctx).Model(&domain.IndexValueObservation{}), rng)
	err := q.Order("index_code, date").Find(&list).Error
	return list, err
}

// UpsertCanonical 写入或更新正式指数点位
func (r *IndexValueRepository) UpsertCanonical(ctx context.Context, value *domain.MarketIndexValue) (bool, error) {
	where := "index_code = ? AND date = ?"
	args := []any{value.IndexCode, value.Date.Format("2006-01-02")}
	return upsertByKey(ctx, r.db, &domain.MarketIndexValue{}, where, args, func(tx *gorm.DB) error {
		return db.Upsert(tx, value,
			[]string{"index_code", "date"},
			[]string{"value", "chosen_source", "observation_id", "selection_reason", "selected_by", "selected_at", "updated_at"})
	})
}

// GetCanonical 查询正式指数点位
func (r *IndexValueRepository) GetCanonical(ctx context.Context, indexCode string, date time.Time) (*domain.MarketIndexValue, error) {
	var value domain.MarketIndexValue
	err := r.db.WithContext(ctx).
		Where("index_code = ? AND date = ?", indexCode, date.Format("2006-01-02")).
		First(&value).Error
	if err != nil {
		return nil, err
	}
	return &value, nil
}
