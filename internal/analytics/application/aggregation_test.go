package application

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/portfoliovaluation/internal/analytics/domain"
)

func TestComputeAggregates(t *testing.T) {
	pair := "GBP/XAF"
	results := []*domain.ValuationPositionResult{
		{PositionSnapshotID: 1, BaseValue: decimal.RequireFromString("600000")},
		{PositionSnapshotID: 2, BaseValue: decimal.RequireFromString("400000")},
		{
			PositionSnapshotID: 3,
			BaseValue:          decimal.Zero,
			DataQualityFlags:   domain.DataQualityFlags{MissingFXRate: true, FXCurrencyPair: &pair},
		},
		{
			PositionSnapshotID: 4,
			BaseValue:          decimal.Zero,
			DataQualityFlags:   domain.DataQualityFlags{InvalidFXRate: true},
		},
	}

	agg := ComputeAggregates(results)
	assert.True(t, decimal.RequireFromString("1000000").Equal(agg.TotalMarketValue))
	assert.Equal(t, 4, agg.PositionCount)
	assert.Equal(t, 2, agg.PositionsWithIssues)
	assert.Equal(t, 1, agg.MissingFXCount)
}

func TestComputeAggregates_Empty(t *testing.T) {
	agg := ComputeAggregates(nil)
	assert.True(t, agg.TotalMarketValue.IsZero())
	assert.Equal(t, 0, agg.PositionCount)
}

func TestComputeDataQualitySummary(t *testing.T) {
	pair := "GBP/XAF"
	instr := newInstrument(5, "Gilt 2030", "GBP", "UK Treasury", "UK", "Obligations", "Gilt")
	results := []*domain.ValuationPositionResult{
		{PositionSnapshotID: 1, BaseValue: decimal.RequireFromString("100")},
		{
			PositionSnapshotID: 2,
			Snapshot:           newSnapshot(2, "GBP", "0", instr),
			DataQualityFlags:   domain.DataQualityFlags{MissingFXRate: true, FXCurrencyPair: &pair},
		},
		{
			PositionSnapshotID: 3,
			DataQualityFlags:   domain.DataQualityFlags{InvalidFXRate: true},
		},
	}

	summary := ComputeDataQualitySummary(results)
	assert.Equal(t, 3, summary.TotalPositions)
	assert.Equal(t, 2, summary.PositionsWithIssues)
	assert.Equal(t, 1, summary.MissingFXRates)
	assert.Equal(t, 1, summary.InvalidFXRates)
	require.Len(t, summary.IssueDetails, 2)

	missing := summary.IssueDetails[0]
	assert.Equal(t, uint(2), missing.PositionSnapshotID)
	assert.Equal(t, "Gilt 2030", missing.InstrumentName)
	assert.Equal(t, "missing_fx_rate", missing.IssueType)
	assert.Equal(t, "GBP/XAF", missing.CurrencyPair)

	invalid := summary.IssueDetails[1]
	assert.Equal(t, "invalid_fx_rate", invalid.IssueType)
}
