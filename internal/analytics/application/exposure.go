package application

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/portfoliovaluation/internal/analytics/domain"
	portfoliodomain "github.com/wyfcoding/portfoliovaluation/internal/portfolio/domain"
)

const unknownBucket = "Unknown"

var hundred = decimal.NewFromInt(100)

// ComputeExposures 按全部维度计算敞口分布。
// 结果需要携带持仓快照（含工具主数据），缺失的维度值归入 Unknown。
// 各维度内按敞口金额降序排列，金额均为组合本位币。
func ComputeExposures(
	results []*domain.ValuationPositionResult,
	totalMarketValue decimal.Decimal,
	baseCurrency string,
) *domain.ExposureReport {
	report := &domain.ExposureReport{
		Currency:         []domain.ExposureEntry{},
		Issuer:           []domain.ExposureEntry{},
		Country:          []domain.ExposureEntry{},
		InstrumentGroup:  []domain.ExposureEntry{},
		InstrumentType:   []domain.ExposureEntry{},
		TotalMarketValue: totalMarketValue,
		BaseCurrency:     baseCurrency,
	}
	if len(results) == 0 {
		return report
	}

	report.Currency = computeDimension(results, totalMarketValue, func(i *portfoliodomain.Instrument) string {
		if i == nil || i.Currency == "" {
			return unknownBucket
		}
		return i.Currency
	})
	report.Issuer = computeDimension(results, totalMarketValue, func(i *portfoliodomain.Instrument) string {
		if i == nil || i.IssuerName == "" {
			return unknownBucket
		}
		return i.IssuerName
	})
	report.Country = computeDimension(results, totalMarketValue, func(i *portfoliodomain.Instrument) string {
		if i == nil || i.Country == "" {
			return unknownBucket
		}
		return i.Country
	})
	report.InstrumentGroup = computeDimension(results, totalMarketValue, func(i *portfoliodomain.Instrument) string {
		if i == nil || i.GroupName == "" {
			return unknownBucket
		}
		return i.GroupName
	})
	report.InstrumentType = computeDimension(results, totalMarketValue, func(i *portfoliodomain.Instrument) string {
		if i == nil || i.TypeName == "" {
			return unknownBucket
		}
		return i.TypeName
	})
	return report
}

// TopConcentrations 计算某一维度下前 N 大集中度。
// 支持 issuer、country 与 instrument（单一工具）维度。
func TopConcentrations(
	results []*domain.ValuationPositionResult,
	dimension domain.DimensionType,
	totalMarketValue decimal.Decimal,
	topN int,
) ([]domain.ExposureEntry, error) {
	var keyFn func(*portfoliodomain.Instrument) string
	switch dimension {
	case domain.DimensionIssuer:
		keyFn = func(i *portfoliodomain.Instrument) string {
			if i == nil || i.IssuerName == "" {
				return unknownBucket
			}
			return i.IssuerName
		}
	case domain.DimensionCountry:
		keyFn = func(i *portfoliodomain.Instrument) string {
			if i == nil || i.Country == "" {
				return unknownBucket
			}
			return i.Country
		}
	case domain.DimensionInstrument:
		keyFn = func(i *portfoliodomain.Instrument) string {
			if i == nil || i.Name == "" {
				return unknownBucket
			}
			return i.Name
		}
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedDimension, dimension)
	}

	entries := computeDimension(results, totalMarketValue, keyFn)
	if topN > 0 && len(entries) > topN {
		entries = entries[:topN]
	}
	return entries, nil
}

// FlattenExposures 把敞口报告展开为可落库的敞口行
func FlattenExposures(run *domain.ValuationRun, report *domain.ExposureReport) []*domain.ExposureResult {
	dims := []struct {
		dimension domain.DimensionType
		entries   []domain.ExposureEntry
	}{
		{domain.DimensionCurrency, report.Currency},
		{domain.DimensionIssuer, report.Issuer},
		{domain.DimensionCountry, report.Country},
		{domain.DimensionInstrumentGroup, report.InstrumentGroup},
		{domain.DimensionInstrumentType, report.InstrumentType},
	}
	var rows []*domain.ExposureResult
	for _, d := range dims {
		for _, e := range d.entries {
			rows = append(rows, &domain.ExposureResult{
				OrgID:          run.OrgID,
				ValuationRunID: run.ID,
				DimensionType:  d.dimension,
				DimensionKey:   e.Key,
				DimensionLabel: e.Label,
				ValueBase:      e.ValueBase,
				PctTotal:       e.PctTotal,
			})
		}
	}
	return rows
}

// AssembleExposureReport 由落库敞口行还原报告，各维度内按金额降序
func AssembleExposureReport(run *domain.ValuationRun, rows []*domain.ExposureResult) *domain.ExposureReport {
	report := &domain.ExposureReport{
		Currency:         []domain.ExposureEntry{},
		Issuer:           []domain.ExposureEntry{},
		Country:          []domain.ExposureEntry{},
		InstrumentGroup:  []domain.ExposureEntry{},
		InstrumentType:   []domain.ExposureEntry{},
		TotalMarketValue: run.TotalMarketValue,
		BaseCurrency:     run.BaseCurrency,
	}
	for _, row := range rows {
		entry := domain.ExposureEntry{
			Key:       row.DimensionKey,
			Label:     row.DimensionLabel,
			ValueBase: row.ValueBase,
			PctTotal:  row.PctTotal,
		}
		switch row.DimensionType {
		case domain.DimensionCurrency:
			report.Currency = append(report.Currency, entry)
		case domain.DimensionIssuer:
			report.Issuer = append(report.Issuer, entry)
		case domain.DimensionCountry:
			report.Country = append(report.Country, entry)
		case domain.DimensionInstrumentGroup:
			report.InstrumentGroup = append(report.InstrumentGroup, entry)
		case domain.DimensionInstrumentType:
			report.InstrumentType = append(report.InstrumentType, entry)
		}
	}
	for _, entries := range [][]domain.ExposureEntry{
		report.Currency, report.Issuer, report.Country, report.InstrumentGroup, report.InstrumentType,
	} {
		sortEntries(entries)
	}
	return report
}

func sortEntries(entries []domain.ExposureEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ValueBase.Equal(entries[j].ValueBase) {
			return entries[i].ValueBase.GreaterThan(entries[j].ValueBase)
		}
		return entries[i].Key < entries[j].Key
	})
}

// computeDimension 按 keyFn 分组求和并折算占比，降序返回。
// 金额相同的分组按键名升序，保证输出稳定。
func computeDimension(
	results []*domain.ValuationPositionResult,
	totalMarketValue decimal.Decimal,
	keyFn func(*portfoliodomain.Instrument) string,
) []domain.ExposureEntry {
	totals := make(map[string]decimal.Decimal)
	for _, r := range results {
		var instrument *portfoliodomain.Instrument
		if r.Snapshot != nil {
			instrument = r.Snapshot.Instrument
		}
		key := keyFn(instrument)
		totals[key] = totals[key].Add(r.BaseValue)
	}

	entries := make([]domain.ExposureEntry, 0, len(totals))
	for key, value := range totals {
		pct := decimal.Zero
		if totalMarketValue.IsPositive() {
			pct = value.Div(totalMarketValue).Mul(hundred)
		}
		entries = append(entries, domain.ExposureEntry{
			Key:       key,
			Label:     key,
			ValueBase: value,
			PctTotal:  pct,
		})
	}
	sortEntries(entries)
	return entries
}
