package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SelectionReason 正式值的选取原因
type SelectionReason string

const (
	// ReasonAutoPolicy 按优先级策略自动选取
	ReasonAutoPolicy SelectionReason = "auto_policy"
	// ReasonAutoPolicyMidFromSpread 由买卖价自动合成的中间价
	ReasonAutoPolicyMidFromSpread SelectionReason = "auto_policy_mid_from_spread"
	// ReasonManualOverride 人工指定
	ReasonManualOverride SelectionReason = "manual_override"
	// ReasonOnlyAvailable 仅有单一候选
	ReasonOnlyAvailable SelectionReason = "only_available"
)

// Valid 判断选取原因是否合法
func (r SelectionReason) Valid() bool {
	switch r {
	case ReasonAutoPolicy, ReasonAutoPolicyMidFromSpread, ReasonManualOverride, ReasonOnlyAvailable:
		return true
	}
	return false
}

// FXRate 正式汇率（下游估值唯一读取的汇率表）。
// 每个 (base, quote, date, rate_type) 至多一条，由正式化流程维护。
type FXRate struct {
	gorm.Model
	BaseCurrency    string          `gorm:"column:base_currency;type:varchar(3);not null;uniqueIndex:uniq_fx_canonical_key;index:idx_fx_pair_date" json:"base_currency"`
	QuoteCurrency   string          `gorm:"column:quote_currency;type:varchar(3);not null;uniqueIndex:uniq_fx_canonical_key;index:idx_fx_pair_date" json:"quote_currency"`
	Date            time.Time       `gorm:"column:date;type:date;not null;uniqueIndex:uniq_fx_canonical_key;index:idx_fx_pair_date" json:"date"`
	RateType        FXRateType      `gorm:"column:rate_type;type:varchar(20);not null;default:'mid';uniqueIndex:uniq_fx_canonical_key" json:"rate_type"`
	Rate            decimal.Decimal `gorm:"column:rate;type:decimal(20,8);not null" json:"rate"`
	ChosenSource    string          `gorm:"column:chosen_source;type:varchar(50);not null" json:"chosen_source"`
	ObservationID   *uint           `gorm:"column:observation_id" json:"observation_id,omitempty"`
	SelectionReason SelectionReason `gorm:"column:selection_reason;type:varchar(40);not null" json:"selection_reason"`
	SelectedBy      string          `gorm:"column:selected_by;type:varchar(100)" json:"selected_by,omitempty"`
	SelectedAt      time.Time       `gorm:"column:selected_at;not null" json:"selected_at"`
}

// TableName 表名
func (FXRate) TableName() string { return "fx_rates" }

// Validate 校验正式汇率记录的完整性
func (r *FXRate) Validate(obsSource string) error {
	return validateCanonical(r.SelectionReason, r.ObservationID, r.SelectedBy, r.ChosenSource, obsSource)
}

// InstrumentPrice 正式价格
type InstrumentPrice struct {
	gorm.Model
	InstrumentID    uint            `gorm:"column:instrument_id;not null;uniqueIndex:uniq_price_canonical_key;index:idx_price_instr_date" json:"instrument_id"`
	Date            time.Time       `gorm:"column:date;type:date;not null;uniqueIndex:uniq_price_canonical_key;index:idx_price_instr_date" json:"date"`
	PriceType       string          `gorm:"column:price_type;type:varchar(20);not null;default:'close';uniqueIndex:uniq_price_canonical_key" json:"price_type"`
	Price           decimal.Decimal `gorm:"column:price;type:decimal(20,6);not null" json:"price"`
	Currency        string          `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	ChosenSource    string          `gorm:"column:chosen_source;type:varchar(50);not null" json:"chosen_source"`
	ObservationID   *uint           `gorm:"column:observation_id" json:"observation_id,omitempty"`
	SelectionReason SelectionReason `gorm:"column:selection_reason;type:varchar(40);not null" json:"selection_reason"`
	SelectedBy      string          `gorm:"column:selected_by;type:varchar(100)" json:"selected_by,omitempty"`
	SelectedAt      time.Time       `gorm:"column:selected_at;not null" json:"selected_at"`
}

// TableName 表名
func (InstrumentPrice) TableName() string { return "instrument_prices" }

// Validate 校验正式价格记录的完整性
func (p *InstrumentPrice) Validate(obsSource string) error {
	return validateCanonical(p.SelectionReason, p.ObservationID, p.SelectedBy, p.ChosenSource, obsSource)
}

// YieldCurvePoint 正式收益率曲线点
type YieldCurvePoint struct {
	gorm.Model
	CurveCode       string          `gorm:"column:curve_code;type:varchar(50);not null;uniqueIndex:uniq_curve_canonical_key;index:idx_curve_code_date" json:"curve_code"`
	TenorDays       int             `gorm:"column:tenor_days;not null;uniqueIndex:uniq_curve_canonical_key" json:"tenor_days"`
	Date            time.Time       `gorm:"column:date;type:date;not null;uniqueIndex:uniq_curve_canonical_key;index:idx_curve_code_date" json:"date"`
	YieldValue      decimal.Decimal `gorm:"column:yield_value;type:decimal(10,6);not null" json:"yield_value"`
	ChosenSource    string          `gorm:"column:chosen_source;type:varchar(50);not null" json:"chosen_source"`
	ObservationID   *uint           `gorm:"column:observation_id" json:"observation_id,omitempty"`
	SelectionReason SelectionReason `gorm:"column:selection_reason;type:varchar(40);not null" json:"selection_reason"`
	SelectedBy      string          `gorm:"column:selected_by;type:varchar(100)" json:"selected_by,omitempty"`
	SelectedAt      time.Time       `gorm:"column:selected_at;not null" json:"selected_at"`
}

// TableName 表名
func (YieldCurvePoint) TableName() string { return "yield_curve_points" }

// Validate 校验正式曲线点记录的完整性
func (p *YieldCurvePoint) Validate(obsSource string) error {
	return validateCanonical(p.SelectionReason, p.ObservationID, p.SelectedBy, p.ChosenSource, obsSource)
}

// MarketIndexValue 正式指数点位
type MarketIndexValue struct {
	gorm.Model
	IndexCode       string          `gorm:"column:index_code;type:varchar(50);not null;uniqueIndex:uniq_index_canonical_key;index:idx_index_code_date" json:"index_code"`
	Date            time.Time       `gorm:"column:date;type:date;not null;uniqueIndex:uniq_index_canonical_key;index:idx_index_code_date" json:"date"`
	Value           decimal.Decimal `gorm:"column:value;type:decimal(20,6);not null" json:"value"`
	ChosenSource    string          `gorm:"column:chosen_source;type:varchar(50);not null" json:"chosen_source"`
	ObservationID   *uint           `gorm:"column:observation_id" json:"observation_id,omitempty"`
	SelectionReason SelectionReason `gorm:"column:selection_reason;type:varchar(40);not null" json:"selection_reason"`
	SelectedBy      string          `gorm:"column:selected_by;type:varchar(100)" json:"selected_by,omitempty"`
	SelectedAt      time.Time       `gorm:"column:selected_at;not null" json:"selected_at"`
}

// TableName 表名
func (MarketIndexValue) TableName() string { return "market_index_values" }

// Validate 校验正式指数记录的完整性
func (v *MarketIndexValue) Validate(obsSource string) error {
	return validateCanonical(v.SelectionReason, v.ObservationID, v.SelectedBy, v.ChosenSource, obsSource)
}

// validateCanonical 正式值的共同不变量：
//   - 选取原因必须合法；
//   - 自动选取（含 only_available 与合成中间价）必须回链观测记录，且来源一致；
//   - 人工指定必须记录操作人。
//
// 合成中间价回链 BUY 侧观测，来源一致性按该观测校验。
func validateCanonical(reason SelectionReason, observationID *uint, selectedBy, chosenSource, obsSource string) error {
	if !reason.Valid() {
		return fmt.Errorf("%w: 未知的选取原因 %q", ErrCanonicalInvalid, reason)
	}
	switch reason {
	case ReasonManualOverride:
		if selectedBy == "" {
			return fmt.Errorf("%w: 人工指定必须记录操作人", ErrCanonicalInvalid)
		}
	default:
		if observationID == nil {
			return fmt.Errorf("%w: 自动选取必须回链观测记录", ErrCanonicalInvalid)
		}
		if obsSource != "" && obsSource != chosenSource {
			return fmt.Errorf("%w: 观测来源 %q 与选取来源 %q 不一致", ErrCanonicalInvalid, obsSource, chosenSource)
		}
	}
	return nil
}
