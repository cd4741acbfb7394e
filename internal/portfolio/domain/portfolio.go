package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Portfolio 投资组合。BaseCurrency 是估值汇总所用的本位币。
type Portfolio struct {
	gorm.Model
	OrgID        uint   `gorm:"column:org_id;not null;index:idx_portfolio_org" json:"org_id"`
	Name         string `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Code         string `gorm:"column:code;type:varchar(50);uniqueIndex;not null" json:"code"`
	BaseCurrency string `gorm:"column:base_currency;type:varchar(3);not null" json:"base_currency"`
	Description  string `gorm:"column:description;type:varchar(500)" json:"description,omitempty"`
}

// TableName 表名
func (Portfolio) TableName() string { return "portfolios" }

// Instrument 金融工具主数据。发行人、国别与分组信息供敞口分析使用。
type Instrument struct {
	gorm.Model
	OrgID      uint   `gorm:"column:org_id;not null;index" json:"org_id"`
	Name       string `gorm:"column:name;type:varchar(255);not null" json:"name"`
	ISIN       string `gorm:"column:isin;type:varchar(12);index" json:"isin,omitempty"`
	Ticker     string `gorm:"column:ticker;type:varchar(50);index" json:"ticker,omitempty"`
	Currency   string `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	IssuerName string `gorm:"column:issuer_name;type:varchar(255)" json:"issuer_name,omitempty"`
	Country    string `gorm:"column:country;type:varchar(100)" json:"country,omitempty"`
	GroupName  string `gorm:"column:group_name;type:varchar(100)" json:"group_name,omitempty"`
	TypeName   string `gorm:"column:type_name;type:varchar(100)" json:"type_name,omitempty"`
}

// TableName 表名
func (Instrument) TableName() string { return "instruments" }

// PositionSnapshot 持仓快照。快照不可变，新日期写入新记录。
// MarketValue 以工具自身币种计价，估值引擎负责换算到组合本位币。
type PositionSnapshot struct {
	gorm.Model
	OrgID        uint            `gorm:"column:org_id;not null;index" json:"org_id"`
	PortfolioID  uint            `gorm:"column:portfolio_id;not null;index:idx_snapshot_portfolio_date" json:"portfolio_id"`
	InstrumentID uint            `gorm:"column:instrument_id;not null;index" json:"instrument_id"`
	Instrument   *Instrument     `gorm:"foreignKey:InstrumentID" json:"instrument,omitempty"`
	Quantity     decimal.Decimal `gorm:"column:quantity;type:decimal(20,6);not null" json:"quantity"`
	Price        decimal.Decimal `gorm:"column:price;type:decimal(20,6)" json:"price"`
	BookValue    decimal.Decimal `gorm:"column:book_value;type:decimal(20,6)" json:"book_value"`
	MarketValue  decimal.Decimal `gorm:"column:market_value;type:decimal(20,6);not null" json:"market_value"`
	Currency     string          `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	AsOfDate     time.Time       `gorm:"column:as_of_date;type:date;not null;index:idx_snapshot_portfolio_date" json:"as_of_date"`
}

// TableName 表名
func (PositionSnapshot) TableName() string { return "position_snapshots" }

// ErrPortfolioNotFound 组合不存在
var ErrPortfolioNotFound = errors.New("portfolio not found")

// Repository 组合与持仓快照的只读仓储。
// 估值服务只消费持仓数据，不负责其写入。
type Repository interface {
	GetPortfolio(ctx context.Context, id uint) (*Portfolio, error)
	// ListSnapshots 返回组合在某估值日的全部持仓快照，含工具主数据
	ListSnapshots(ctx context.Context, portfolioID uint, asOfDate time.Time) ([]*PositionSnapshot, error)
}
