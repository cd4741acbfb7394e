// Package domain 市场数据参考域：数据源、多源观测值与规范化（canonical）记录
package domain

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DataType 市场数据类型，用于数据源优先级的维度划分
type DataType string

const (
	DataTypeFXRate     DataType = "fx_rate"
	DataTypePrice      DataType = "price"
	DataTypeYieldCurve DataType = "yield_curve"
	DataTypeIndexValue DataType = "index_value"
)

// Valid 校验数据类型取值
func (t DataType) Valid() bool {
	switch t {
	case DataTypeFXRate, DataTypePrice, DataTypeYieldCurve, DataTypeIndexValue:
		return true
	}
	return false
}

// SourceType 数据源类型
type SourceType string

const (
	SourceTypeExchange    SourceType = "exchange"
	SourceTypeCentralBank SourceType = "central_bank"
	SourceTypeVendor      SourceType = "vendor"
	SourceTypeManual      SourceType = "manual"
	SourceTypeCustodian   SourceType = "custodian"
)

// MarketDataSource 市场数据源。全局唯一，不做租户隔离。
// Priority 数值越小优先级越高（1 = 最优）。
type MarketDataSource struct {
	gorm.Model
	Code        string     `gorm:"column:code;type:varchar(50);uniqueIndex;not null" json:"code"`
	Name        string     `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Priority    int        `gorm:"column:priority;not null;default:100;index:idx_source_priority_active" json:"priority"`
	SourceType  SourceType `gorm:"column:source_type;type:varchar(20)" json:"source_type"`
	IsActive    bool       `gorm:"column:is_active;not null;default:true;index:idx_source_priority_active" json:"is_active"`
	Description string     `gorm:"column:description;type:text" json:"description"`
}

// TableName 表名
func (MarketDataSource) TableName() string { return "market_data_sources" }

func (s *MarketDataSource) String() string {
	return fmt.Sprintf("%s (%s)", s.Name, s.Code)
}

// SourcePriorityOverride 租户级数据源优先级覆盖。
// 不存在覆盖记录时使用 MarketDataSource.Priority 的全局值。
type SourcePriorityOverride struct {
	gorm.Model
	OrgID      uint     `gorm:"column:org_id;not null;uniqueIndex:uniq_override_org_type_source" json:"org_id"`
	DataType   DataType `gorm:"column:data_type;type:varchar(20);not null;uniqueIndex:uniq_override_org_type_source" json:"data_type"`
	SourceCode string   `gorm:"column:source_code;type:varchar(50);not null;uniqueIndex:uniq_override_org_type_source" json:"source_code"`
	Priority   int      `gorm:"column:priority;not null" json:"priority"`
}

// TableName 表名
func (SourcePriorityOverride) TableName() string { return "source_priority_overrides" }

// CanonicalizeResult 规范化执行汇总。单个分组的失败只进入 Errors，不中断其它分组。
type CanonicalizeResult struct {
	Created     int      `json:"created"`
	Updated     int      `json:"updated"`
	Skipped     int      `json:"skipped"`
	Errors      []string `json:"errors"`
	TotalGroups int      `json:"total_groups"`
}

// DateRange 规范化的日期过滤。AsOf 非零时忽略 Start/End。
type DateRange struct {
	AsOf  time.Time
	Start time.Time
	End   time.Time
}

// Contains 判断 d 是否落在过滤范围内（零值过滤不限制）
func (r DateRange) Contains(d time.Time) bool {
	if !r.AsOf.IsZero() {
		return sameDate(d, r.AsOf)
	}
	if !r.Start.IsZero() && d.Before(truncateDate(r.Start)) {
		return false
	}
	if !r.End.IsZero() && truncateDate(d).After(truncateDate(r.End)) {
		return false
	}
	return true
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDate(a, b time.Time) bool {
	return truncateDate(a).Equal(truncateDate(b))
}

// 错误定义
var (
	ErrSourceNotFound   = errors.New("market data source not found")
	ErrInvalidDataType  = errors.New("invalid market data type")
	ErrValidation       = errors.New("validation failed")
	ErrCanonicalInvalid = errors.New("canonical record violates selection invariants")
)
