package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/portfoliovaluation/internal/referencedata/domain"
	"github.com/wyfcoding/portfoliovaluation/pkg/metrics"
)

var two = decimal.NewFromInt(2)

// CanonicalizeCommand 正式化命令。OrgID 决定优先级覆盖的归属组织。
// 键过滤字段为零值时不过滤，只按日期范围处理全量。
type CanonicalizeCommand struct {
	OrgID uint             `json:"org_id"`
	Range domain.DateRange `json:"range"`

	BaseCurrency  string `json:"base_currency,omitempty"`
	QuoteCurrency string `json:"quote_currency,omitempty"`
	InstrumentID  uint   `json:"instrument_id,omitempty"`
	PriceType     string `json:"price_type,omitempty"`
	CurveCode     string `json:"curve_code,omitempty"`
	IndexCode     string `json:"index_code,omitempty"`
}

// CanonicalizerService 市场数据正式化服务。
// 对每个自然键分组（不含来源与 revision），按有效优先级选出最优观测值，
// 写入对应的正式表。任一分组失败不影响其余分组。
type CanonicalizerService struct {
	resolver  *PriorityResolver
	fxRepo    domain.FXRateRepository
	priceRepo domain.PriceRepository
	curveRepo domain.YieldCurveRepository
	indexRepo domain.IndexValueRepository
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewCanonicalizerService 创建正式化服务
func NewCanonicalizerService(
	resolver *PriorityResolver,
	fxRepo domain.FXRateRepository,
	priceRepo domain.PriceRepository,
	curveRepo domain.YieldCurveRepository,
	indexRepo domain.IndexValueRepository,
	m *metrics.Metrics,
	logger *slog.Logger,
) *CanonicalizerService {
	return &CanonicalizerService{
		resolver:  resolver,
		fxRepo:    fxRepo,
		priceRepo: priceRepo,
		curveRepo: curveRepo,
		indexRepo: indexRepo,
		metrics:   m,
		logger:    logger,
	}
}

// candidate 参与选优的观测值视图
type candidate struct {
	priority   int
	revision   int
	observedAt time.Time
}

// less 候选排序：有效优先级升序，revision 降序，observed_at 降序
func (c candidate) less(other candidate) bool {
	if c.priority != other.priority {
		return c.priority < other.priority
	}
	if c.revision != other.revision {
		return c.revision > other.revision
	}
	return c.observedAt.After(other.observedAt)
}

// CanonicalizeFXRates 正式化汇率。
// 行情源只提供买卖价，估值所用的正式汇率统一为中间价：
// 买卖双边齐备时取 MID=(买+卖)/2，仅单边时直接采用该边。
func (s *CanonicalizerService) CanonicalizeFXRates(ctx context.Context, cmd CanonicalizeCommand) (*domain.CanonicalizeResult, error) {
	priorities, err := s.resolver.PriorityMap(ctx, cmd.OrgID, domain.DataTypeFXRate)
	if err != nil {
		return nil, err
	}
	observations, err := s.fxRepo.ListObservations(ctx, cmd.Range)
	if err != nil {
		return nil, fmt.Errorf("加载汇率观测值失败: %w", err)
	}

	type fxKey struct {
		base, quote string
		date        time.Time
	}
	type fxGroup struct {
		buy, sell []*domain.FXRateObservation
	}
	grouped := make(map[fxKey]*fxGroup)
	for _, obs := range observations {
		if _, active := priorities[obs.SourceCode]; !active {
			continue
		}
		if cmd.BaseCurrency != "" && obs.BaseCurrency != cmd.BaseCurrency {
			continue
		}
		if cmd.QuoteCurrency != "" && obs.QuoteCurrency != cmd.QuoteCurrency {
			continue
		}
		key := fxKey{base: obs.BaseCurrency, quote: obs.QuoteCurrency, date: obs.Date}
		g, ok := grouped[key]
		if !ok {
			g = &fxGroup{}
			grouped[key] = g
		}
		switch obs.RateType {
		case domain.FXRateTypeBuy:
			g.buy = append(g.buy, obs)
		case domain.FXRateTypeSell:
			g.sell = append(g.sell, obs)
		}
	}

	result := &domain.CanonicalizeResult{TotalGroups: len(grouped)}
	selectedAt := time.Now()

	for key, g := range grouped {
		sortFXObservations(g.buy, priorities)
		sortFXObservations(g.sell, priorities)

		var bestBuy, bestSell *domain.FXRateObservation
		if len(g.buy) > 0 {
			bestBuy = g.buy[0]
		}
		if len(g.sell) > 0 {
			bestSell = g.sell[0]
		}

		var (
			rate   decimal.Decimal
			chosen *domain.FXRateObservation
			reason domain.SelectionReason
		)
		switch {
		case bestBuy != nil && bestSell != nil:
			rate = bestBuy.Rate.Add(bestSell.Rate).Div(two)
			chosen = bestBuy
			reason = domain.ReasonAutoPolicyMidFromSpread
		case bestBuy != nil:
			rate = bestBuy.Rate
			chosen = bestBuy
			reason = domain.ReasonOnlyAvailable
		case bestSell != nil:
			rate = bestSell.Rate
			chosen = bestSell
			reason = domain.ReasonOnlyAvailable
		default:
			result.Skipped++
			continue
		}

		obsID := chosen.ID
		canonical := &domain.FXRate{
			BaseCurrency:    key.base,
			QuoteCurrency:   key.quote,
			Date:            key.date,
			RateType:        domain.FXRateTypeMid,
			Rate:            rate,
			ChosenSource:    chosen.SourceCode,
			ObservationID:   &obsID,
			SelectionReason: reason,
			SelectedAt:      selectedAt,
		}
		if err := canonical.Validate(chosen.SourceCode); err != nil {
			s.recordGroupError(ctx, result, string(domain.DataTypeFXRate),
				fmt.Sprintf("%s/%s@%s: %v", key.base, key.quote, key.date.Format("2006-01-02"), err))
			continue
		}
		created, err := s.fxRepo.UpsertCanonical(ctx, canonical)
		if err != nil {
			s.recordGroupError(ctx, result, string(domain.DataTypeFXRate),
				fmt.Sprintf("%s/%s@%s: %v", key.base, key.quote, key.date.Format("2006-01-02"), err))
			continue
		}
		s.recordUpsert(result, string(domain.DataTypeFXRate), created)
	}

	s.finishRun(ctx, string(domain.DataTypeFXRate), result)
	return result, nil
}

// CanonicalizePrices 正式化价格
func (s *CanonicalizerService) CanonicalizePrices(ctx context.Context, cmd CanonicalizeCommand) (*domain.CanonicalizeResult, error) {
	priorities, err := s.resolver.PriorityMap(ctx, cmd.OrgID, domain.DataTypePrice)
	if err != nil {
		return nil, err
	}
	observations, err := s.priceRepo.ListObservations(ctx, cmd.Range)
	if err != nil {
		return nil, fmt.Errorf("加载价格观测值失败: %w", err)
	}

	type priceKey struct {
		instrumentID uint
		date         time.Time
		priceType    string
	}
	grouped := make(map[priceKey][]*domain.PriceObservation)
	for _, obs := range observations {
		if _, active := priorities[obs.SourceCode]; !active {
			continue
		}
		if cmd.InstrumentID != 0 && obs.InstrumentID != cmd.InstrumentID {
			continue
		}
		if cmd.PriceType != "" && obs.PriceType != cmd.PriceType {
			continue
		}
		key := priceKey{instrumentID: obs.InstrumentID, date: obs.Date, priceType: obs.PriceType}
		grouped[key] = append(grouped[key], obs)
	}

	result := &domain.CanonicalizeResult{TotalGroups: len(grouped)}
	selectedAt := time.Now()

	for key, obsList := range grouped {
		sort.SliceStable(obsList, func(i, j int) bool {
			return priceCandidate(obsList[i], priorities).less(priceCandidate(obsList[j], priorities))
		})
		best := obsList[0]
		reason := domain.ReasonAutoPolicy
		if len(obsList) == 1 {
			reason = domain.ReasonOnlyAvailable
		}

		obsID := best.ID
		canonical := &domain.InstrumentPrice{
			InstrumentID:    key.instrumentID,
			Date:            key.date,
			PriceType:       key.priceType,
			Price:           best.Price,
			Currency:        best.Currency,
			ChosenSource:    best.SourceCode,
			ObservationID:   &obsID,
			SelectionReason: reason,
			SelectedAt:      selectedAt,
		}
		if err := canonical.Validate(best.SourceCode); err != nil {
			s.recordGroupError(ctx, result, string(domain.DataTypePrice),
				fmt.Sprintf("instrument=%d date=%s type=%s: %v", key.instrumentID, key.date.Format("2006-01-02"), key.priceType, err))
			continue
		}
		created, err := s.priceRepo.UpsertCanonical(ctx, canonical)
		if err != nil {
			s.recordGroupError(ctx, result, string(domain.DataTypePrice),
				fmt.Sprintf("instrument=%d date=%s type=%s: %v", key.instrumentID, key.date.Format("2006-01-02"), key.priceType, err))
			continue
		}
		s.recordUpsert(result, string(domain.DataTypePrice), created)
	}

	s.finishRun(ctx, string(domain.DataTypePrice), result)
	return result, nil
}

// CanonicalizeYieldCurves 正式化收益率曲线点
func (s *CanonicalizerService) CanonicalizeYieldCurves(ctx context.Context, cmd CanonicalizeCommand) (*domain.CanonicalizeResult, error) {
	priorities, err := s.resolver.PriorityMap(ctx, cmd.OrgID, domain.DataTypeYieldCurve)
	if err != nil {
		return nil, err
	}
	observations, err := s.curveRepo.ListObservations(ctx, cmd.Range)
	if err != nil {
		return nil, fmt.Errorf("加载曲线观测值失败: %w", err)
	}

	type curveKey struct {
		curveCode string
		tenorDays int
		date      time.Time
	}
	grouped := make(map[curveKey][]*domain.YieldCurvePointObservation)
	for _, obs := range observations {
		if _, active := priorities[obs.SourceCode]; !active {
			continue
		}
		if cmd.CurveCode != "" && obs.CurveCode != cmd.CurveCode {
			continue
		}
		key := curveKey{curveCode: obs.CurveCode, tenorDays: obs.TenorDays, date: obs.Date}
		grouped[key] = append(grouped[key], obs)
	}

	result := &domain.CanonicalizeResult{TotalGroups: len(grouped)}
	selectedAt := time.Now()

	for key, obsList := range grouped {
		sort.SliceStable(obsList, func(i, j int) bool {
			return curveCandidate(obsList[i], priorities).less(curveCandidate(obsList[j], priorities))
		})
		best := obsList[0]
		reason := domain.ReasonAutoPolicy
		if len(obsList) == 1 {
			reason = domain.ReasonOnlyAvailable
		}

		obsID := best.ID
		canonical := &domain.YieldCurvePoint{
			CurveCode:       key.curveCode,
			TenorDays:       key.tenorDays,
			Date:            key.date,
			YieldValue:      best.YieldValue,
			ChosenSource:    best.SourceCode,
			ObservationID:   &obsID,
			SelectionReason: reason,
			SelectedAt:      selectedAt,
		}
		if err := canonical.Validate(best.SourceCode); err != nil {
			s.recordGroupError(ctx, result, string(domain.DataTypeYieldCurve),
				fmt.Sprintf("curve=%s tenor=%d date=%s: %v", key.curveCode, key.tenorDays, key.date.Format("2006-01-02"), err))
			continue
		}
		created, err := s.curveRepo.UpsertCanonical(ctx, canonical)
		if err != nil {
			s.recordGroupError(ctx, result, string(domain.DataTypeYieldCurve),
				fmt.Sprintf("curve=%s tenor=%d date=%s: %v", key.curveCode, key.tenorDays, key.date.Format("2006-01-02"), err))
			continue
		}
		s.recordUpsert(result, string(domain.DataTypeYieldCurve), created)
	}

	s.finishRun(ctx, string(domain.DataTypeYieldCurve), result)
	return result, nil
}

// CanonicalizeIndexValues 正式化指数点位
func (s *CanonicalizerService) CanonicalizeIndexValues(ctx context.Context, cmd CanonicalizeCommand) (*domain.CanonicalizeResult, error) {
	priorities, err := s.resolver.PriorityMap(ctx, cmd.OrgID, domain.DataTypeIndexValue)
	if err != nil {
		return nil, err
	}
	observations, err := s.indexRepo.ListObservations(ctx, cmd.Range)
	if err != nil {
		return nil, fmt.Errorf("加载指数观测值失败: %w", err)
	}

	type indexKey struct {
		indexCode string
		date      time.Time
	}
	grouped := make(map[indexKey][]*domain.IndexValueObservation)
	for _, obs := range observations {
		if _, active := priorities[obs.SourceCode]; !active {
			continue
		}
		if cmd.IndexCode != "" && obs.IndexCode != cmd.IndexCode {
			continue
		}
		key := indexKey{indexCode: obs.IndexCode, date: obs.Date}
		grouped[key] = append(grouped[key], obs)
	}

	result := &domain.CanonicalizeResult{TotalGroups: len(grouped)}
	selectedAt := time.Now()

	for key, obsList := range grouped {
		sort.SliceStable(obsList, func(i, j int) bool {
			return indexCandidate(obsList[i], priorities).less(indexCandidate(obsList[j], priorities))
		})
		best := obsList[0]
		reason := domain.ReasonAutoPolicy
		if len(obsList) == 1 {
			reason = domain.ReasonOnlyAvailable
		}

		obsID := best.ID
		canonical := &domain.MarketIndexValue{
			IndexCode:       key.indexCode,
			Date:            key.date,
			Value:           best.Value,
			ChosenSource:    best.SourceCode,
			ObservationID:   &obsID,
			SelectionReason: reason,
			SelectedAt:      selectedAt,
		}
		if err := canonical.Validate(best.SourceCode); err != nil {
			s.recordGroupError(ctx, result, string(domain.DataTypeIndexValue),
				fmt.Sprintf("index=%s date=%s: %v", key.indexCode, key.date.Format("2006-01-02"), err))
			continue
		}
		created, err := s.indexRepo.UpsertCanonical(ctx, canonical)
		if err != nil {
			s.recordGroupError(ctx, result, string(domain.DataTypeIndexValue),
				fmt.Sprintf("index=%s date=%s: %v", key.indexCode, key.date.Format("2006-01-02"), err))
			continue
		}
		s.recordUpsert(result, string(domain.DataTypeIndexValue), created)
	}

	s.finishRun(ctx, string(domain.DataTypeIndexValue), result)
	return result, nil
}

func sortFXObservations(list []*domain.FXRateObservation, priorities map[string]int) {
	sort.SliceStable(list, func(i, j int) bool {
		a := candidate{priority: priorities[list[i].SourceCode], revision: list[i].Revision, observedAt: list[i].ObservedAt}
		b := candidate{priority: priorities[list[j].SourceCode], revision: list[j].Revision, observedAt: list[j].ObservedAt}
		return a.less(b)
	})
}

func priceCandidate(o *domain.PriceObservation, priorities map[string]int) candidate {
	return candidate{priority: priorities[o.SourceCode], revision: o.Revision, observedAt: o.ObservedAt}
}

func curveCandidate(o *domain.YieldCurvePointObservation, priorities map[string]int) candidate {
	return candidate{priority: priorities[o.SourceCode], revision: o.Revision, observedAt: o.ObservedAt}
}

func indexCandidate(o *domain.IndexValueObservation, priorities map[string]int) candidate {
	return candidate{priority: priorities[o.SourceCode], revision: o.Revision, observedAt: o.ObservedAt}
}

func (s *CanonicalizerService) recordUpsert(result *domain.CanonicalizeResult, dataType string, created bool) {
	if created {
		result.Created++
		if s.metrics != nil {
			s.metrics.CanonicalUpsertsTotal.WithLabelValues(dataType, "created").Inc()
		}
	} else {
		result.Updated++
		if s.metrics != nil {
			s.metrics.CanonicalUpsertsTotal.WithLabelValues(dataType, "updated").Inc()
		}
	}
}

func (s *CanonicalizerService) recordGroupError(ctx context.Context, result *domain.CanonicalizeResult, dataType, msg string) {
	result.Errors = append(result.Errors, msg)
	if s.metrics != nil {
		s.metrics.CanonicalGroupErrorsTotal.WithLabelValues(dataType).Inc()
	}
	s.logger.WarnContext(ctx, "分组正式化失败", "data_type", dataType, "error", msg)
}

func (s *CanonicalizerService) finishRun(ctx context.Context, dataType string, result *domain.CanonicalizeResult) {
	if s.metrics != nil {
		s.metrics.CanonicalGroupsTotal.WithLabelValues(dataType).Add(float64(result.TotalGroups))
	}
	s.logger.InfoContext(ctx, "正式化完成",
		"data_type", dataType,
		"total_groups", result.TotalGroups,
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"errors", len(result.Errors))
}
