package domain

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DimensionType 敞口维度
type DimensionType string

const (
	DimensionCurrency        DimensionType = "currency"
	DimensionIssuer          DimensionType = "issuer"
	DimensionCountry         DimensionType = "country"
	DimensionInstrumentGroup DimensionType = "instrument_group"
	DimensionInstrumentType  DimensionType = "instrument_type"
	// DimensionInstrument 仅用于集中度分析（单一工具层面）
	DimensionInstrument DimensionType = "instrument"
)

// ExposureEntry 某一维度下单个分组的敞口。
// Key 为分组键（币种代码、发行人名称等），缺失的维度值归入 "Unknown"。
type ExposureEntry struct {
	Key       string          `json:"key"`
	Label     string          `json:"label"`
	ValueBase decimal.Decimal `json:"value_base"`
	PctTotal  decimal.Decimal `json:"pct_total"`
}

// ExposureReport 一次执行的全维度敞口报告，金额均为组合本位币。
type ExposureReport struct {
	Currency         []ExposureEntry `json:"currency"`
	Issuer           []ExposureEntry `json:"issuer"`
	Country          []ExposureEntry `json:"country"`
	InstrumentGroup  []ExposureEntry `json:"instrument_group"`
	InstrumentType   []ExposureEntry `json:"instrument_type"`
	TotalMarketValue decimal.Decimal `json:"total_market_value"`
	BaseCurrency     string          `json:"base_currency"`
}

// ExposureResult 落库的敞口行，每次执行成功后整体重建。
// (run, dimension_type, dimension_key) 唯一。
type ExposureResult struct {
	gorm.Model
	OrgID          uint            `gorm:"column:org_id;not null;index" json:"org_id"`
	ValuationRunID uint            `gorm:"column:valuation_run_id;not null;uniqueIndex:uniq_exposure_run_dim;index" json:"valuation_run_id"`
	DimensionType  DimensionType   `gorm:"column:dimension_type;type:varchar(30);not null;uniqueIndex:uniq_exposure_run_dim" json:"dimension_type"`
	DimensionKey   string          `gorm:"column:dimension_key;type:varchar(255);not null;uniqueIndex:uniq_exposure_run_dim" json:"dimension_key"`
	DimensionLabel string          `gorm:"column:dimension_label;type:varchar(255)" json:"dimension_label"`
	ValueBase      decimal.Decimal `gorm:"column:value_base;type:decimal(20,6);not null" json:"value_base"`
	PctTotal       decimal.Decimal `gorm:"column:pct_total;type:decimal(10,6);not null" json:"pct_total"`
}

// TableName 表名
func (ExposureResult) TableName() string { return "exposure_results" }

// ErrUnsupportedDimension 不支持的敞口维度
var ErrUnsupportedDimension = errors.New("unsupported exposure dimension")
