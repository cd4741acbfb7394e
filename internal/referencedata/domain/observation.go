package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FXRateType 汇率类型
type FXRateType string

const (
	FXRateTypeBuy      FXRateType = "buy"
	FXRateTypeSell     FXRateType = "sell"
	FXRateTypeMid      FXRateType = "mid"
	FXRateTypeOfficial FXRateType = "official"
	FXRateTypeFixing   FXRateType = "fixing"
)

// FXRateObservation 多源原始汇率观测值（ETL 落地区）。
// 同一 (base, quote, date, rate_type) 允许多个来源、多个 revision 并存，
// 记录一经写入不再修改，修订以新 revision 追加。
// Rate 含义：1 base = Rate quote。
type FXRateObservation struct {
	gorm.Model
	BaseCurrency  string          `gorm:"column:base_currency;type:varchar(3);not null;uniqueIndex:uniq_fx_obs_key;index:idx_fx_obs_pair_date" json:"base_currency"`
	QuoteCurrency string          `gorm:"column:quote_currency;type:varchar(3);not null;uniqueIndex:uniq_fx_obs_key;index:idx_fx_obs_pair_date" json:"quote_currency"`
	Date          time.Time       `gorm:"column:date;type:date;not null;uniqueIndex:uniq_fx_obs_key;index:idx_fx_obs_pair_date" json:"date"`
	RateType      FXRateType      `gorm:"column:rate_type;type:varchar(20);not null;default:'mid';uniqueIndex:uniq_fx_obs_key" json:"rate_type"`
	SourceCode    string          `gorm:"column:source_code;type:varchar(50);not null;uniqueIndex:uniq_fx_obs_key" json:"source_code"`
	Revision      int             `gorm:"column:revision;not null;default:0;uniqueIndex:uniq_fx_obs_key" json:"revision"`
	Rate          decimal.Decimal `gorm:"column:rate;type:decimal(20,8);not null" json:"rate"`
	ObservedAt    time.Time       `gorm:"column:observed_at;not null;index" json:"observed_at"`
}

// TableName 表名
func (FXRateObservation) TableName() string { return "fx_rate_observations" }

// PriceObservation 多源原始价格观测值
type PriceObservation struct {
	gorm.Model
	InstrumentID uint            `gorm:"column:instrument_id;not null;uniqueIndex:uniq_price_obs_key;index:idx_price_obs_instr_date" json:"instrument_id"`
	Date         time.Time       `gorm:"column:date;type:date;not null;uniqueIndex:uniq_price_obs_key;index:idx_price_obs_instr_date" json:"date"`
	PriceType    string          `gorm:"column:price_type;type:varchar(20);not null;default:'close';uniqueIndex:uniq_price_obs_key" json:"price_type"`
	SourceCode   string          `gorm:"column:source_code;type:varchar(50);not null;uniqueIndex:uniq_price_obs_key" json:"source_code"`
	Revision     int             `gorm:"column:revision;not null;default:0;uniqueIndex:uniq_price_obs_key" json:"revision"`
	Price        decimal.Decimal `gorm:"column:price;type:decimal(20,6);not null" json:"price"`
	Currency     string          `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	ObservedAt   time.Time       `gorm:"column:observed_at;not null" json:"observed_at"`
}

// TableName 表名
func (PriceObservation) TableName() string { return "price_observations" }

// YieldCurvePointObservation 多源原始收益率曲线点观测值。
// 只存储观测到的期限点，不做任何插值或拟合。
type YieldCurvePointObservation struct {
	gorm.Model
	CurveCode  string          `gorm:"column:curve_code;type:varchar(50);not null;uniqueIndex:uniq_curve_obs_key;index:idx_curve_obs_code_date" json:"curve_code"`
	TenorDays  int             `gorm:"column:tenor_days;not null;uniqueIndex:uniq_curve_obs_key" json:"tenor_days"`
	Date       time.Time       `gorm:"column:date;type:date;not null;uniqueIndex:uniq_curve_obs_key;index:idx_curve_obs_code_date" json:"date"`
	SourceCode string          `gorm:"column:source_code;type:varchar(50);not null;uniqueIndex:uniq_curve_obs_key" json:"source_code"`
	Revision   int             `gorm:"column:revision;not null;default:0;uniqueIndex:uniq_curve_obs_key" json:"revision"`
	YieldValue decimal.Decimal `gorm:"column:yield_value;type:decimal(10,6);not null" json:"yield_value"`
	ObservedAt time.Time       `gorm:"column:observed_at;not null" json:"observed_at"`
}

// TableName 表名
func (YieldCurvePointObservation) TableName() string { return "yield_curve_point_observations" }

// IndexValueObservation 多源原始指数点位观测值
type IndexValueObservation struct {
	gorm.Model
	IndexCode  string          `gorm:"column:index_code;type:varchar(50);not null;uniqueIndex:uniq_index_obs_key;index:idx_index_obs_code_date" json:"index_code"`
	Date       time.Time       `gorm:"column:date;type:date;not null;uniqueIndex:uniq_index_obs_key;index:idx_index_obs_code_date" json:"date"`
	SourceCode string          `gorm:"column:source_code;type:varchar(50);not null;uniqueIndex:uniq_index_obs_key" json:"source_code"`
	Revision   int             `gorm:"column:revision;not null;default:0;uniqueIndex:uniq_index_obs_key" json:"revision"`
	Value      decimal.Decimal `gorm:"column:value;type:decimal(20,6);not null" json:"value"`
	ObservedAt time.Time       `gorm:"column:observed_at;not null" json:"observed_at"`
}

// TableName 表名
func (IndexValueObservation) TableName() string { return "index_value_observations" }
