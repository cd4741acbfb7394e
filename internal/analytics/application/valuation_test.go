package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/portfoliovaluation/internal/analytics/domain"
	portfoliodomain "github.com/wyfcoding/portfoliovaluation/internal/portfolio/domain"
	refdomain "github.com/wyfcoding/portfoliovaluation/internal/referencedata/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func valuationDate() time.Time {
	return time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
}

// fakeFXReader 内存正式汇率查询
type fakeFXReader struct {
	rates map[string]*refdomain.FXRate
}

func newFakeFXReader() *fakeFXReader {
	return &fakeFXReader{rates: make(map[string]*refdomain.FXRate)}
}

func (r *fakeFXReader) addRate(base, quote, rate, source string) {
	r.rates[base+"/"+quote] = &refdomain.FXRate{
		BaseCurrency:  base,
		QuoteCurrency: quote,
		Date:          valuationDate(),
		RateType:      refdomain.FXRateTypeMid,
		Rate:          decimal.RequireFromString(rate),
		ChosenSource:  source,
	}
}

func (r *fakeFXReader) FindPair(_ context.Context, from, to string, _ time.Time) (*refdomain.FXRate, error) {
	if rate, ok := r.rates[from+"/"+to]; ok {
		return rate, nil
	}
	if rate, ok := r.rates[to+"/"+from]; ok {
		return rate, nil
	}
	return nil, domain.ErrFXRateNotFound
}

func newSnapshot(id uint, currency, marketValue string, instrument *portfoliodomain.Instrument) *portfoliodomain.PositionSnapshot {
	snap := &portfoliodomain.PositionSnapshot{
		PortfolioID: 1,
		Instrument:  instrument,
		Currency:    currency,
		MarketValue: decimal.RequireFromString(marketValue),
		AsOfDate:    valuationDate(),
	}
	snap.ID = id
	if instrument != nil {
		snap.InstrumentID = instrument.ID
	}
	return snap
}

func testRun() *domain.ValuationRun {
	run := &domain.ValuationRun{
		OrgID:           1,
		PortfolioID:     1,
		AsOfDate:        valuationDate(),
		ValuationPolicy: domain.PolicyUseSnapshotMV,
		Status:          domain.RunStatusRunning,
		BaseCurrency:    "XAF",
	}
	run.ID = 10
	return run
}

func testPortfolio() *portfoliodomain.Portfolio {
	p := &portfoliodomain.Portfolio{
		OrgID:        1,
		Name:         "Fonds Obligataire",
		Code:         "FO-01",
		BaseCurrency: "XAF",
	}
	p.ID = 1
	return p
}

func TestComputeUseSnapshotMV_SameCurrencyPassthrough(t *testing.T) {
	engine := NewValuationEngine(newFakeFXReader(), testLogger())
	snapshots := []*portfoliodomain.PositionSnapshot{
		newSnapshot(1, "XAF", "1050000", nil),
	}

	results, err := engine.ComputeUseSnapshotMV(context.Background(), testRun(), testPortfolio(), snapshots)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.True(t, decimal.RequireFromString("1050000").Equal(r.BaseValue))
	assert.Equal(t, "XAF", r.OriginalCurrency)
	assert.Equal(t, "XAF", r.BaseCurrency)
	assert.Nil(t, r.FXRateUsed)
	assert.False(t, r.DataQualityFlags.HasIssues())
}

func TestComputeUseSnapshotMV_DirectRate(t *testing.T) {
	fx := newFakeFXReader()
	fx.addRate("USD", "XAF", "600", "BEAC")
	engine := NewValuationEngine(fx, testLogger())
	snapshots := []*portfoliodomain.PositionSnapshot{
		newSnapshot(1, "USD", "1000", nil),
	}

	results, err := engine.ComputeUseSnapshotMV(context.Background(), testRun(), testPortfolio(), snapshots)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.True(t, decimal.RequireFromString("600000").Equal(r.BaseValue))
	require.NotNil(t, r.FXRateUsed)
	assert.True(t, decimal.RequireFromString("600").Equal(*r.FXRateUsed))
	assert.Equal(t, "BEAC", r.FXRateSource)
	assert.False(t, r.DataQualityFlags.HasIssues())
}

func TestComputeUseSnapshotMV_InvertedRate(t *testing.T) {
	fx := newFakeFXReader()
	// 只有 XAF/USD 方向：折算 USD→XAF 需要除以该汇率
	fx.addRate("XAF", "USD", "0.0016", "BEAC")
	engine := NewValuationEngine(fx, testLogger())
	snapshots := []*portfoliodomain.PositionSnapshot{
		newSnapshot(1, "USD", "16", nil),
	}

	results, err := engine.ComputeUseSnapshotMV(context.Background(), testRun(), testPortfolio(), snapshots)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.True(t, decimal.RequireFromString("10000").Equal(r.BaseValue))
	require.NotNil(t, r.FXRateUsed)
	assert.True(t, decimal.RequireFromString("625").Equal(*r.FXRateUsed), "fx_rate_used 应为倒数")
	assert.Equal(t, "BEAC", r.FXRateSource)
}

func TestComputeUseSnapshotMV_MissingRateFlagsAndContinues(t *testing.T) {
	fx := newFakeFXReader()
	fx.addRate("USD", "XAF", "600", "BEAC")
	engine := NewValuationEngine(fx, testLogger())
	snapshots := []*portfoliodomain.PositionSnapshot{
		newSnapshot(1, "GBP", "500", nil),
		newSnapshot(2, "USD", "1000", nil),
	}

	results, err := engine.ComputeUseSnapshotMV(context.Background(), testRun(), testPortfolio(), snapshots)
	require.NoError(t, err)
	require.Len(t, results, 2, "缺汇率不得中断其余持仓")

	missing := results[0]
	assert.True(t, missing.DataQualityFlags.MissingFXRate)
	require.NotNil(t, missing.DataQualityFlags.FXCurrencyPair)
	assert.Equal(t, "GBP/XAF", *missing.DataQualityFlags.FXCurrencyPair)
	assert.True(t, missing.BaseValue.IsZero())
	assert.True(t, decimal.RequireFromString("500").Equal(missing.OriginalValue), "原币市值保留")

	ok := results[1]
	assert.False(t, ok.DataQualityFlags.HasIssues())
	assert.True(t, decimal.RequireFromString("600000").Equal(ok.BaseValue))
}

func TestComputeUseSnapshotMV_ZeroInverseRateInvalid(t *testing.T) {
	fx := newFakeFXReader()
	fx.addRate("XAF", "USD", "0", "BEAC")
	engine := NewValuationEngine(fx, testLogger())
	snapshots := []*portfoliodomain.PositionSnapshot{
		newSnapshot(1, "USD", "1000", nil),
	}

	results, err := engine.ComputeUseSnapshotMV(context.Background(), testRun(), testPortfolio(), snapshots)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.True(t, r.DataQualityFlags.InvalidFXRate)
	assert.True(t, r.BaseValue.IsZero())
	assert.Nil(t, r.FXRateUsed)
}

func TestComputeUseSnapshotMV_MismatchedPairInvalid(t *testing.T) {
	fx := newFakeFXReader()
	// 读取器返回了一条与待换算币种对不上的记录
	fx.rates["USD/XAF"] = &refdomain.FXRate{
		BaseCurrency:  "EUR",
		QuoteCurrency: "XAF",
		Rate:          decimal.RequireFromString("650"),
		ChosenSource:  "BEAC",
	}
	engine := NewValuationEngine(fx, testLogger())
	snapshots := []*portfoliodomain.PositionSnapshot{
		newSnapshot(1, "USD", "1000", nil),
	}

	results, err := engine.ComputeUseSnapshotMV(context.Background(), testRun(), testPortfolio(), snapshots)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].DataQualityFlags.InvalidFXRate)
	assert.True(t, results[0].BaseValue.IsZero())
}

func TestComputeUseSnapshotMV_ReaderErrorAborts(t *testing.T) {
	engine := NewValuationEngine(failingFXReader{}, testLogger())
	snapshots := []*portfoliodomain.PositionSnapshot{
		newSnapshot(1, "USD", "1000", nil),
	}

	_, err := engine.ComputeUseSnapshotMV(context.Background(), testRun(), testPortfolio(), snapshots)
	assert.Error(t, err)
}

type failingFXReader struct{}

func (failingFXReader) FindPair(context.Context, string, string, time.Time) (*refdomain.FXRate, error) {
	return nil, fmt.Errorf("connection refused")
}
