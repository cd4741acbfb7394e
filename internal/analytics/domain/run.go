package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wyfcoding/portfoliovaluation/pkg/utils"
)

// ValuationPolicy 估值策略
type ValuationPolicy string

const (
	// PolicyUseSnapshotMV 直接采信持仓快照上的市值
	PolicyUseSnapshotMV ValuationPolicy = "use_snapshot_mv"
	// PolicyRevalueFromMarketData 由正式行情重算市值（尚未支持）
	PolicyRevalueFromMarketData ValuationPolicy = "revalue_from_marketdata"
)

// Valid 判断估值策略是否合法
func (p ValuationPolicy) Valid() bool {
	return p == PolicyUseSnapshotMV || p == PolicyRevalueFromMarketData
}

// RunStatus 估值执行状态。状态流转：PENDING → RUNNING → SUCCESS/FAILED。
type RunStatus string

const (
	RunStatusPending RunStatus = "pending"
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// ValuationRun 一次组合估值的决策记录。
// 同一组合同一估值日可以有多次执行，但至多一次被标记为正式结果。
// InputsHash 标识输入数据指纹，RunContextID 标识执行批次，两者互不替代。
type ValuationRun struct {
	gorm.Model
	OrgID               uint            `gorm:"column:org_id;not null;index:idx_run_org_portfolio_date;index:idx_run_org_status;uniqueIndex:uniq_run_inputs" json:"org_id"`
	PortfolioID         uint            `gorm:"column:portfolio_id;not null;index:idx_run_org_portfolio_date;uniqueIndex:uniq_run_inputs" json:"portfolio_id"`
	AsOfDate            time.Time       `gorm:"column:as_of_date;type:date;not null;index:idx_run_org_portfolio_date;uniqueIndex:uniq_run_inputs" json:"as_of_date"`
	ValuationPolicy     ValuationPolicy `gorm:"column:valuation_policy;type:varchar(30);not null;default:'use_snapshot_mv'" json:"valuation_policy"`
	IsOfficial          bool            `gorm:"column:is_official;not null;default:false;index" json:"is_official"`
	CreatedBy           string          `gorm:"column:created_by;type:varchar(100)" json:"created_by,omitempty"`
	Status              RunStatus       `gorm:"column:status;type:varchar(20);not null;default:'pending';index:idx_run_org_status" json:"status"`
	InputsHash          string          `gorm:"column:inputs_hash;type:varchar(64);not null;uniqueIndex:uniq_run_inputs" json:"inputs_hash"`
	RunContextID        string          `gorm:"column:run_context_id;type:varchar(64);index" json:"run_context_id,omitempty"`
	TotalMarketValue    decimal.Decimal `gorm:"column:total_market_value;type:decimal(20,6)" json:"total_market_value"`
	BaseCurrency        string          `gorm:"column:base_currency;type:varchar(3)" json:"base_currency"`
	PositionCount       int             `gorm:"column:position_count;not null;default:0" json:"position_count"`
	PositionsWithIssues int             `gorm:"column:positions_with_issues;not null;default:0" json:"positions_with_issues"`
	MissingFXCount      int             `gorm:"column:missing_fx_count;not null;default:0" json:"missing_fx_count"`
	Log                 string          `gorm:"column:log;type:text" json:"log,omitempty"`
}

// TableName 表名
func (ValuationRun) TableName() string { return "valuation_runs" }

// CanMarkOfficial 只有成功的执行才能被标记为正式结果
func (r *ValuationRun) CanMarkOfficial() error {
	if r.Status != RunStatusSuccess {
		return fmt.Errorf("%w: 当前状态为 %s", ErrRunNotSuccessful, r.Status)
	}
	return nil
}

// ComputeInputsHash 计算执行的输入指纹。
// 指纹由快照 ID（升序）、估值日与估值策略拼接后取 SHA256，
// 相同输入得到相同指纹，用于防止重复计算。
func ComputeInputsHash(snapshotIDs []uint, asOfDate time.Time, policy ValuationPolicy) string {
	ids := make([]string, len(snapshotIDs))
	sorted := make([]uint, len(snapshotIDs))
	copy(sorted, snapshotIDs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i, id := range sorted {
		ids[i] = strconv.FormatUint(uint64(id), 10)
	}
	input := strings.Join([]string{
		strings.Join(ids, ","),
		asOfDate.Format("2006-01-02"),
		string(policy),
	}, "|")
	return utils.SHA256Hex(input)
}

// 错误定义
var (
	ErrRunNotFound        = errors.New("valuation run not found")
	ErrRunNotSuccessful   = errors.New("valuation run is not in success status")
	ErrUnknownPolicy      = errors.New("unknown valuation policy")
	ErrPolicyNotSupported = errors.New("valuation policy not yet supported")
	ErrFXRateNotFound     = errors.New("canonical fx rate not found")
	ErrDuplicateRun       = errors.New("valuation run with identical inputs already exists")
)
