package application

import (
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/portfoliovaluation/internal/analytics/domain"
)

// Aggregates 一次执行的汇总指标
type Aggregates struct {
	TotalMarketValue    decimal.Decimal
	PositionCount       int
	PositionsWithIssues int
	MissingFXCount      int
}

// ComputeAggregates 由持仓结果计算汇总指标。纯函数，不访问存储。
func ComputeAggregates(results []*domain.ValuationPositionResult) Aggregates {
	agg := Aggregates{TotalMarketValue: decimal.Zero, PositionCount: len(results)}
	for _, r := range results {
		agg.TotalMarketValue = agg.TotalMarketValue.Add(r.BaseValue)
		if r.DataQualityFlags.HasIssues() {
			agg.PositionsWithIssues++
		}
		if r.DataQualityFlags.MissingFXRate {
			agg.MissingFXCount++
		}
	}
	return agg
}

// ComputeDataQualitySummary 汇总全部结果的质量问题明细
func ComputeDataQualitySummary(results []*domain.ValuationPositionResult) *domain.DataQualitySummary {
	summary := &domain.DataQualitySummary{
		TotalPositions: len(results),
		IssueDetails:   []domain.DataQualityIssue{},
	}
	for _, r := range results {
		flags := r.DataQualityFlags
		if !flags.HasIssues() {
			continue
		}
		summary.PositionsWithIssues++

		instrumentName := ""
		if r.Snapshot != nil && r.Snapshot.Instrument != nil {
			instrumentName = r.Snapshot.Instrument.Name
		}
		if flags.MissingFXRate {
			summary.MissingFXRates++
			pair := ""
			if flags.FXCurrencyPair != nil {
				pair = *flags.FXCurrencyPair
			}
			summary.IssueDetails = append(summary.IssueDetails, domain.DataQualityIssue{
				PositionSnapshotID: r.PositionSnapshotID,
				InstrumentName:     instrumentName,
				IssueType:          "missing_fx_rate",
				CurrencyPair:       pair,
			})
		}
		if flags.InvalidFXRate {
			summary.InvalidFXRates++
			summary.IssueDetails = append(summary.IssueDetails, domain.DataQualityIssue{
				PositionSnapshotID: r.PositionSnapshotID,
				InstrumentName:     instrumentName,
				IssueType:          "invalid_fx_rate",
			})
		}
	}
	return summary
}
