package application

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/portfoliovaluation/internal/analytics/domain"
	portfoliodomain "github.com/wyfcoding/portfoliovaluation/internal/portfolio/domain"
)

func newInstrument(id uint, name, currency, issuer, country, group, typeName string) *portfoliodomain.Instrument {
	instr := &portfoliodomain.Instrument{
		OrgID:      1,
		Name:       name,
		Currency:   currency,
		IssuerName: issuer,
		Country:    country,
		GroupName:  group,
		TypeName:   typeName,
	}
	instr.ID = id
	return instr
}

func resultWithInstrument(snapshotID uint, baseValue string, instrument *portfoliodomain.Instrument) *domain.ValuationPositionResult {
	return &domain.ValuationPositionResult{
		PositionSnapshotID: snapshotID,
		Snapshot:           newSnapshot(snapshotID, "XAF", baseValue, instrument),
		BaseValue:          decimal.RequireFromString(baseValue),
		BaseCurrency:       "XAF",
	}
}

func exposureFixture() []*domain.ValuationPositionResult {
	bond := newInstrument(1, "OTA 6.25% 2027", "XAF", "Etat du Cameroun", "Cameroun", "Obligations", "OTA")
	equity := newInstrument(2, "SOCAPALM", "XAF", "SOCAPALM", "Cameroun", "Actions", "Action ordinaire")
	foreign := newInstrument(3, "Eurobond 2031", "USD", "Etat du Cameroun", "", "Obligations", "Eurobond")
	return []*domain.ValuationPositionResult{
		resultWithInstrument(1, "600000", bond),
		resultWithInstrument(2, "250000", equity),
		resultWithInstrument(3, "150000", foreign),
	}
}

func TestComputeExposures(t *testing.T) {
	results := exposureFixture()
	total := decimal.RequireFromString("1000000")

	report := ComputeExposures(results, total, "XAF")
	assert.Equal(t, "XAF", report.BaseCurrency)
	assert.True(t, total.Equal(report.TotalMarketValue))

	// 发行人维度：国家发行人合并两笔债券
	require.Len(t, report.Issuer, 2)
	assert.Equal(t, "Etat du Cameroun", report.Issuer[0].Key)
	assert.True(t, decimal.RequireFromString("750000").Equal(report.Issuer[0].ValueBase))
	assert.True(t, decimal.RequireFromString("75").Equal(report.Issuer[0].PctTotal))
	assert.Equal(t, "SOCAPALM", report.Issuer[1].Key)

	// 国别缺失归入 Unknown
	require.Len(t, report.Country, 2)
	assert.Equal(t, "Cameroun", report.Country[0].Key)
	assert.Equal(t, unknownBucket, report.Country[1].Key)
	assert.True(t, decimal.RequireFromString("150000").Equal(report.Country[1].ValueBase))

	// 各维度占比合计 100
	for _, entries := range [][]domain.ExposureEntry{report.Currency, report.Issuer, report.Country, report.InstrumentGroup, report.InstrumentType} {
		sum := decimal.Zero
		for _, e := range entries {
			sum = sum.Add(e.PctTotal)
		}
		assert.True(t, decimal.RequireFromString("100").Equal(sum), "占比合计应为 100，实际 %s", sum)
	}
}

func TestComputeExposures_MissingInstrumentGoesUnknown(t *testing.T) {
	results := []*domain.ValuationPositionResult{
		resultWithInstrument(1, "1000", nil),
	}
	report := ComputeExposures(results, decimal.RequireFromString("1000"), "XAF")
	require.Len(t, report.Issuer, 1)
	assert.Equal(t, unknownBucket, report.Issuer[0].Key)
}

func TestComputeExposures_Empty(t *testing.T) {
	report := ComputeExposures(nil, decimal.Zero, "XAF")
	assert.Empty(t, report.Currency)
	assert.Empty(t, report.Issuer)
}

func TestComputeExposures_ZeroTotalNoPct(t *testing.T) {
	results := exposureFixture()
	report := ComputeExposures(results, decimal.Zero, "XAF")
	for _, e := range report.Issuer {
		assert.True(t, e.PctTotal.IsZero())
	}
}

func TestComputeExposures_StableTieBreak(t *testing.T) {
	a := newInstrument(1, "A", "XAF", "Alpha", "", "", "")
	b := newInstrument(2, "B", "XAF", "Beta", "", "", "")
	results := []*domain.ValuationPositionResult{
		resultWithInstrument(1, "500", b),
		resultWithInstrument(2, "500", a),
	}
	report := ComputeExposures(results, decimal.RequireFromString("1000"), "XAF")
	require.Len(t, report.Issuer, 2)
	assert.Equal(t, "Alpha", report.Issuer[0].Key, "金额相同时按键名升序")
	assert.Equal(t, "Beta", report.Issuer[1].Key)
}

func TestTopConcentrations(t *testing.T) {
	results := exposureFixture()
	total := decimal.RequireFromString("1000000")

	entries, err := TopConcentrations(results, domain.DimensionIssuer, total, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Etat du Cameroun", entries[0].Key)

	entries, err = TopConcentrations(results, domain.DimensionInstrument, total, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "topN 大于分组数时全量返回")

	_, err = TopConcentrations(results, domain.DimensionCurrency, total, 5)
	assert.ErrorIs(t, err, domain.ErrUnsupportedDimension)
}
