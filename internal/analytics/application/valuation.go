package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/portfoliovaluation/internal/analytics/domain"
	portfoliodomain "github.com/wyfcoding/portfoliovaluation/internal/portfolio/domain"
)

// ValuationEngine 估值计算引擎。纯计算，不落库，结果由调用方持久化。
type ValuationEngine struct {
	fxReader domain.FXRateReader
	logger   *slog.Logger
}

// NewValuationEngine 创建估值引擎
func NewValuationEngine(fxReader domain.FXRateReader, logger *slog.Logger) *ValuationEngine {
	return &ValuationEngine{fxReader: fxReader, logger: logger}
}

// ComputeUseSnapshotMV 按 use_snapshot_mv 策略估值：
// 采信快照上的市值，按需用正式 MID 汇率折算到组合本位币。
// 汇率缺失或不可用时打质量标记并以零值继续，不中断整个执行。
func (e *ValuationEngine) ComputeUseSnapshotMV(
	ctx context.Context,
	run *domain.ValuationRun,
	portfolio *portfoliodomain.Portfolio,
	snapshots []*portfoliodomain.PositionSnapshot,
) ([]*domain.ValuationPositionResult, error) {
	baseCurrency := portfolio.BaseCurrency
	results := make([]*domain.ValuationPositionResult, 0, len(snapshots))

	for _, snapshot := range snapshots {
		originalValue := snapshot.MarketValue
		originalCurrency := snapshot.Currency

		result := &domain.ValuationPositionResult{
			OrgID:              run.OrgID,
			ValuationRunID:     run.ID,
			PositionSnapshotID: snapshot.ID,
			Snapshot:           snapshot,
			OriginalValue:      originalValue,
			OriginalCurrency:   originalCurrency,
			BaseCurrency:       baseCurrency,
		}

		if originalCurrency == baseCurrency {
			result.BaseValue = originalValue
			results = append(results, result)
			continue
		}

		rate, err := e.fxReader.FindPair(ctx, originalCurrency, baseCurrency, run.AsOfDate)
		if errors.Is(err, domain.ErrFXRateNotFound) {
			pair := fmt.Sprintf("%s/%s", originalCurrency, baseCurrency)
			result.DataQualityFlags = domain.DataQualityFlags{
				MissingFXRate:  true,
				FXCurrencyPair: &pair,
			}
			result.BaseValue = decimal.Zero
			e.logger.WarnContext(ctx, "缺少正式汇率，持仓以零值计入",
				"run_id", run.ID,
				"snapshot_id", snapshot.ID,
				"pair", pair)
			results = append(results, result)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("查询正式汇率失败: %w", err)
		}

		switch rate.BaseCurrency {
		case originalCurrency:
			// 正向：1 原币 = rate 本位币
			fxUsed := rate.Rate
			result.FXRateUsed = &fxUsed
			result.FXRateSource = rate.ChosenSource
			result.BaseValue = originalValue.Mul(rate.Rate)
		case baseCurrency:
			// 反向：1 本位币 = rate 原币，折算需除以 rate。
			// 零汇率无法取倒数，视为无效汇率。
			if rate.Rate.IsZero() {
				result.DataQualityFlags = domain.DataQualityFlags{InvalidFXRate: true}
				result.BaseValue = decimal.Zero
				break
			}
			fxUsed := decimal.NewFromInt(1).Div(rate.Rate)
			result.FXRateUsed = &fxUsed
			result.FXRateSource = rate.ChosenSource
			result.BaseValue = originalValue.Div(rate.Rate)
		default:
			// 查到的汇率与待换算币种对不上
			result.DataQualityFlags = domain.DataQualityFlags{InvalidFXRate: true}
			result.BaseValue = decimal.Zero
		}

		results = append(results, result)
	}

	return results, nil
}
