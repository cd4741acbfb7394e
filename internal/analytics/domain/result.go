package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	portfoliodomain "github.com/wyfcoding/portfoliovaluation/internal/portfolio/domain"
)

// DataQualityFlags 单个持仓的结果质量标记，以 JSON 形式落库。
type DataQualityFlags struct {
	MissingFXRate  bool    `json:"missing_fx_rate,omitempty"`
	InvalidFXRate  bool    `json:"invalid_fx_rate,omitempty"`
	FXCurrencyPair *string `json:"fx_currency_pair,omitempty"`
}

// HasIssues 是否存在任一质量问题
func (f DataQualityFlags) HasIssues() bool {
	return f.MissingFXRate || f.InvalidFXRate
}

// String 人类可读的问题描述，没有问题时为空串
func (f DataQualityFlags) String() string {
	var issues []string
	if f.MissingFXRate {
		pair := "N/A"
		if f.FXCurrencyPair != nil {
			pair = *f.FXCurrencyPair
		}
		issues = append(issues, fmt.Sprintf("missing FX rate for %s", pair))
	}
	if f.InvalidFXRate {
		issues = append(issues, "invalid FX rate")
	}
	return strings.Join(issues, "; ")
}

// Value 实现 driver.Valuer
func (f DataQualityFlags) Value() (driver.Value, error) {
	return json.Marshal(f)
}

// Scan 实现 sql.Scanner
func (f *DataQualityFlags) Scan(value any) error {
	if value == nil {
		*f = DataQualityFlags{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for data quality flags", value)
	}
	return json.Unmarshal(data, f)
}

// ValuationPositionResult 单个持仓快照在某次估值中的计算结果。
// 同时保留原币市值与折算到组合本位币后的市值，以及换算所用的汇率信息。
type ValuationPositionResult struct {
	gorm.Model
	OrgID              uint                               `gorm:"column:org_id;not null;index" json:"org_id"`
	ValuationRunID     uint                               `gorm:"column:valuation_run_id;not null;uniqueIndex:uniq_result_run_snapshot;index" json:"valuation_run_id"`
	PositionSnapshotID uint                               `gorm:"column:position_snapshot_id;not null;uniqueIndex:uniq_result_run_snapshot" json:"position_snapshot_id"`
	Snapshot           *portfoliodomain.PositionSnapshot  `gorm:"-" json:"snapshot,omitempty"`
	OriginalValue      decimal.Decimal                    `gorm:"column:original_value;type:decimal(20,6);not null" json:"original_value"`
	OriginalCurrency   string                             `gorm:"column:original_currency;type:varchar(3);not null" json:"original_currency"`
	BaseValue          decimal.Decimal                    `gorm:"column:base_value;type:decimal(20,6);not null" json:"base_value"`
	BaseCurrency       string                             `gorm:"column:base_currency;type:varchar(3);not null" json:"base_currency"`
	FXRateUsed         *decimal.Decimal                   `gorm:"column:fx_rate_used;type:decimal(20,8)" json:"fx_rate_used,omitempty"`
	FXRateSource       string                             `gorm:"column:fx_rate_source;type:varchar(50)" json:"fx_rate_source,omitempty"`
	DataQualityFlags   DataQualityFlags                   `gorm:"column:data_quality_flags;type:json" json:"data_quality_flags"`
}

// TableName 表名
func (ValuationPositionResult) TableName() string { return "valuation_position_results" }

// DataQualitySummary 一次执行的结果质量汇总
type DataQualitySummary struct {
	TotalPositions      int                `json:"total_positions"`
	PositionsWithIssues int                `json:"positions_with_issues"`
	MissingFXRates      int                `json:"missing_fx_rates"`
	InvalidFXRates      int                `json:"invalid_fx_rates"`
	IssueDetails        []DataQualityIssue `json:"issue_details"`
}

// DataQualityIssue 单个持仓的质量问题明细
type DataQualityIssue struct {
	PositionSnapshotID uint   `json:"position_snapshot_id"`
	InstrumentName     string `json:"instrument_name,omitempty"`
	IssueType          string `json:"issue_type"`
	CurrencyPair       string `json:"currency_pair,omitempty"`
}
