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

	"github.com/wyfcoding/portfoliovaluation/internal/referencedata/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDate() time.Time {
	return time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
}

// fakeSourceRepo 内存来源仓储
type fakeSourceRepo struct {
	sources   map[string]*domain.MarketDataSource
	overrides []*domain.SourcePriorityOverride
}

func newFakeSourceRepo() *fakeSourceRepo {
	return &fakeSourceRepo{sources: make(map[string]*domain.MarketDataSource)}
}

func (r *fakeSourceRepo) addSource(code string, priority int, active bool) {
	r.sources[code] = &domain.MarketDataSource{
		Code:     code,
		Name:     code,
		Priority: priority,
		IsActive: active,
	}
}

func (r *fakeSourceRepo) Create(_ context.Context, s *domain.MarketDataSource) error {
	r.sources[s.Code] = s
	return nil
}

func (r *fakeSourceRepo) Update(_ context.Context, s *domain.MarketDataSource) error {
	r.sources[s.Code] = s
	return nil
}

func (r *fakeSourceRepo) Upsert(_ context.Context, s *domain.MarketDataSource) error {
	r.sources[s.Code] = s
	return nil
}

func (r *fakeSourceRepo) GetByCode(_ context.Context, code string) (*domain.MarketDataSource, error) {
	s, ok := r.sources[code]
	if !ok {
		return nil, domain.ErrSourceNotFound
	}
	return s, nil
}

func (r *fakeSourceRepo) ListActive(_ context.Context) ([]*domain.MarketDataSource, error) {
	var out []*domain.MarketDataSource
	for _, s := range r.sources {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSourceRepo) List(_ context.Context) ([]*domain.MarketDataSource, error) {
	var out []*domain.MarketDataSource
	for _, s := range r.sources {
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeSourceRepo) ListOverrides(_ context.Context, orgID uint, dataType domain.DataType) ([]*domain.SourcePriorityOverride, error) {
	var out []*domain.SourcePriorityOverride
	for _, o := range r.overrides {
		if o.OrgID == orgID && o.DataType == dataType {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *fakeSourceRepo) SaveOverride(_ context.Context, o *domain.SourcePriorityOverride) error {
	r.overrides = append(r.overrides, o)
	return nil
}

func (r *fakeSourceRepo) DeleteOverride(_ context.Context, orgID uint, dataType domain.DataType, sourceCode string) error {
	kept := r.overrides[:0]
	for _, o := range r.overrides {
		if !(o.OrgID == orgID && o.DataType == dataType && o.SourceCode == sourceCode) {
			kept = append(kept, o)
		}
	}
	r.overrides = kept
	return nil
}

// fakeFXRepo 内存汇率仓储
type fakeFXRepo struct {
	observations []*domain.FXRateObservation
	canonical    map[string]*domain.FXRate
	failPair     string
	nextID       uint
}

func newFakeFXRepo() *fakeFXRepo {
	return &fakeFXRepo{canonical: make(map[string]*domain.FXRate)}
}

func (r *fakeFXRepo) addObservation(base, quote string, rateType domain.FXRateType, source, rate string, revision int, observedAt time.Time) *domain.FXRateObservation {
	r.nextID++
	obs := &domain.FXRateObservation{
		BaseCurrency:  base,
		QuoteCurrency: quote,
		Date:          testDate(),
		RateType:      rateType,
		SourceCode:    source,
		Revision:      revision,
		Rate:          decimal.RequireFromString(rate),
		ObservedAt:    observedAt,
	}
	obs.ID = r.nextID
	r.observations = append(r.observations, obs)
	return obs
}

func (r *fakeFXRepo) SaveObservation(_ context.Context, obs *domain.FXRateObservation) error {
	r.observations = append(r.observations, obs)
	return nil
}

func (r *fakeFXRepo) ListObservations(_ context.Context, rng domain.DateRange) ([]*domain.FXRateObservation, error) {
	var out []*domain.FXRateObservation
	for _, obs := range r.observations {
		if rng.Contains(obs.Date) {
			out = append(out, obs)
		}
	}
	return out, nil
}

func (r *fakeFXRepo) UpsertCanonical(_ context.Context, rate *domain.FXRate) (bool, error) {
	key := fmt.Sprintf("%s/%s", rate.BaseCurrency, rate.QuoteCurrency)
	if key == r.failPair {
		return false, fmt.Errorf("simulated storage failure for %s", key)
	}
	_, exists := r.canonical[key]
	r.canonical[key] = rate
	return !exists, nil
}

func (r *fakeFXRepo) GetCanonical(_ context.Context, base, quote string, _ time.Time, _ domain.FXRateType) (*domain.FXRate, error) {
	rate, ok := r.canonical[fmt.Sprintf("%s/%s", base, quote)]
	if !ok {
		return nil, domain.ErrSourceNotFound
	}
	return rate, nil
}

func (r *fakeFXRepo) ListCanonical(_ context.Context, _ time.Time) ([]*domain.FXRate, error) {
	var out []*domain.FXRate
	for _, rate := range r.canonical {
		out = append(out, rate)
	}
	return out, nil
}

func newCanonicalizer(sources *fakeSourceRepo, fx *fakeFXRepo) *CanonicalizerService {
	resolver := NewPriorityResolver(sources, testLogger())
	return NewCanonicalizerService(resolver, fx, nil, nil, nil, nil, testLogger())
}

func TestCanonicalizeFXRates_MidFromSpread(t *testing.T) {
	sources := newFakeSourceRepo()
	sources.addSource("BEAC", 1, true)
	fx := newFakeFXRepo()
	now := time.Now()
	buy := fx.addObservation("XAF", "USD", domain.FXRateTypeBuy, "BEAC", "0.001520", 0, now)
	fx.addObservation("XAF", "USD", domain.FXRateTypeSell, "BEAC", "0.001528", 0, now)

	svc := newCanonicalizer(sources, fx)
	result, err := svc.CanonicalizeFXRates(context.Background(), CanonicalizeCommand{OrgID: 1, Range: domain.DateRange{AsOf: testDate()}})
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalGroups)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Empty(t, result.Errors)

	canonical := fx.canonical["XAF/USD"]
	require.NotNil(t, canonical)
	assert.True(t, decimal.RequireFromString("0.001524").Equal(canonical.Rate),
		"mid should be (buy+sell)/2, got %s", canonical.Rate)
	assert.Equal(t, domain.FXRateTypeMid, canonical.RateType)
	assert.Equal(t, domain.ReasonAutoPolicyMidFromSpread, canonical.SelectionReason)
	assert.Equal(t, "BEAC", canonical.ChosenSource)
	require.NotNil(t, canonical.ObservationID)
	assert.Equal(t, buy.ID, *canonical.ObservationID, "mid links back to the BUY observation")
}

func TestCanonicalizeFXRates_OnlyAvailableSide(t *testing.T) {
	sources := newFakeSourceRepo()
	sources.addSource("BEAC", 1, true)
	fx := newFakeFXRepo()
	fx.addObservation("XAF", "EUR", domain.FXRateTypeBuy, "BEAC", "0.001524", 0, time.Now())

	svc := newCanonicalizer(sources, fx)
	result, err := svc.CanonicalizeFXRates(context.Background(), CanonicalizeCommand{OrgID: 1, Range: domain.DateRange{AsOf: testDate()}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	canonical := fx.canonical["XAF/EUR"]
	require.NotNil(t, canonical)
	assert.Equal(t, domain.ReasonOnlyAvailable, canonical.SelectionReason)
	assert.True(t, decimal.RequireFromString("0.001524").Equal(canonical.Rate))
}

func TestCanonicalizeFXRates_PriorityAndRevisionOrdering(t *testing.T) {
	sources := newFakeSourceRepo()
	sources.addSource("BEAC", 1, true)
	sources.addSource("VENDOR", 50, true)
	fx := newFakeFXRepo()
	now := time.Now()

	// VENDOR 的数据更新，但 BEAC 优先级更高
	fx.addObservation("XAF", "USD", domain.FXRateTypeBuy, "VENDOR", "0.002000", 5, now)
	fx.addObservation("XAF", "USD", domain.FXRateTypeBuy, "BEAC", "0.001000", 0, now.Add(-time.Hour))
	// 同来源取 revision 更大的
	better := fx.addObservation("XAF", "USD", domain.FXRateTypeBuy, "BEAC", "0.001100", 1, now.Add(-2*time.Hour))

	svc := newCanonicalizer(sources, fx)
	result, err := svc.CanonicalizeFXRates(context.Background(), CanonicalizeCommand{OrgID: 1, Range: domain.DateRange{AsOf: testDate()}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	canonical := fx.canonical["XAF/USD"]
	require.NotNil(t, canonical)
	assert.Equal(t, "BEAC", canonical.ChosenSource)
	require.NotNil(t, canonical.ObservationID)
	assert.Equal(t, better.ID, *canonical.ObservationID)
	assert.True(t, decimal.RequireFromString("0.001100").Equal(canonical.Rate))
}

func TestCanonicalizeFXRates_InactiveSourceExcluded(t *testing.T) {
	sources := newFakeSourceRepo()
	sources.addSource("BEAC", 1, false)
	sources.addSource("VENDOR", 50, true)
	fx := newFakeFXRepo()
	now := time.Now()
	fx.addObservation("XAF", "USD", domain.FXRateTypeBuy, "BEAC", "0.001000", 0, now)
	fx.addObservation("XAF", "USD", domain.FXRateTypeBuy, "VENDOR", "0.002000", 0, now)

	svc := newCanonicalizer(sources, fx)
	result, err := svc.CanonicalizeFXRates(context.Background(), CanonicalizeCommand{OrgID: 1, Range: domain.DateRange{AsOf: testDate()}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, "VENDOR", fx.canonical["XAF/USD"].ChosenSource)
}

func TestCanonicalizeFXRates_OrgOverrideChangesWinner(t *testing.T) {
	sources := newFakeSourceRepo()
	sources.addSource("BEAC", 10, true)
	sources.addSource("VENDOR", 50, true)
	sources.overrides = append(sources.overrides, &domain.SourcePriorityOverride{
		OrgID:      7,
		DataType:   domain.DataTypeFXRate,
		SourceCode: "VENDOR",
		Priority:   1,
	})
	fx := newFakeFXRepo()
	now := time.Now()
	fx.addObservation("XAF", "USD", domain.FXRateTypeBuy, "BEAC", "0.001000", 0, now)
	fx.addObservation("XAF", "USD", domain.FXRateTypeBuy, "VENDOR", "0.002000", 0, now)

	svc := newCanonicalizer(sources, fx)
	_, err := svc.CanonicalizeFXRates(context.Background(), CanonicalizeCommand{OrgID: 7, Range: domain.DateRange{AsOf: testDate()}})
	require.NoError(t, err)
	assert.Equal(t, "VENDOR", fx.canonical["XAF/USD"].ChosenSource)

	// 其它组织仍用全局优先级
	fx2 := newFakeFXRepo()
	fx2.addObservation("XAF", "USD", domain.FXRateTypeBuy, "BEAC", "0.001000", 0, now)
	fx2.addObservation("XAF", "USD", domain.FXRateTypeBuy, "VENDOR", "0.002000", 0, now)
	svc2 := newCanonicalizer(sources, fx2)
	_, err = svc2.CanonicalizeFXRates(context.Background(), CanonicalizeCommand{OrgID: 8, Range: domain.DateRange{AsOf: testDate()}})
	require.NoError(t, err)
	assert.Equal(t, "BEAC", fx2.canonical["XAF/USD"].ChosenSource)
}

func TestCanonicalizeFXRates_GroupFailureIsolation(t *testing.T) {
	sources := newFakeSourceRepo()
	sources.addSource("BEAC", 1, true)
	fx := newFakeFXRepo()
	fx.failPair = "XAF/USD"
	now := time.Now()
	fx.addObservation("XAF", "USD", domain.FXRateTypeBuy, "BEAC", "0.001520", 0, now)
	fx.addObservation("XAF", "EUR", domain.FXRateTypeBuy, "BEAC", "0.001524", 0, now)

	svc := newCanonicalizer(sources, fx)
	result, err := svc.CanonicalizeFXRates(context.Background(), CanonicalizeCommand{OrgID: 1, Range: domain.DateRange{AsOf: testDate()}})
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalGroups)
	assert.Equal(t, 1, result.Created)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "XAF/USD")
	assert.NotNil(t, fx.canonical["XAF/EUR"], "failure in one group must not block others")
}

func TestCanonicalizeFXRates_Idempotent(t *testing.T) {
	sources := newFakeSourceRepo()
	sources.addSource("BEAC", 1, true)
	fx := newFakeFXRepo()
	now := time.Now()
	fx.addObservation("XAF", "USD", domain.FXRateTypeBuy, "BEAC", "0.001520", 0, now)
	fx.addObservation("XAF", "USD", domain.FXRateTypeSell, "BEAC", "0.001528", 0, now)

	svc := newCanonicalizer(sources, fx)
	cmd := CanonicalizeCommand{OrgID: 1, Range: domain.DateRange{AsOf: testDate()}}

	first, err := svc.CanonicalizeFXRates(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 0, first.Updated)

	second, err := svc.CanonicalizeFXRates(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 1, second.Updated)

	rate := fx.canonical["XAF/USD"]
	assert.True(t, decimal.RequireFromString("0.001524").Equal(rate.Rate))
}

func TestCanonicalizeFXRates_PairFilter(t *testing.T) {
	sources := newFakeSourceRepo()
	sources.addSource("BEAC", 1, true)
	fx := newFakeFXRepo()
	now := time.Now()
	fx.addObservation("XAF", "USD", domain.FXRateTypeBuy, "BEAC", "0.001520", 0, now)
	fx.addObservation("XAF", "EUR", domain.FXRateTypeBuy, "BEAC", "0.001524", 0, now)

	svc := newCanonicalizer(sources, fx)
	result, err := svc.CanonicalizeFXRates(context.Background(), CanonicalizeCommand{
		OrgID:         1,
		Range:         domain.DateRange{AsOf: testDate()},
		BaseCurrency:  "XAF",
		QuoteCurrency: "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalGroups)
	assert.NotNil(t, fx.canonical["XAF/USD"])
	assert.Nil(t, fx.canonical["XAF/EUR"], "过滤之外的币种对不应被处理")
}

func TestCanonicalizeFXRates_DateRangeFilter(t *testing.T) {
	sources := newFakeSourceRepo()
	sources.addSource("BEAC", 1, true)
	fx := newFakeFXRepo()
	obs := fx.addObservation("XAF", "USD", domain.FXRateTypeBuy, "BEAC", "0.001520", 0, time.Now())
	obs.Date = testDate().AddDate(0, 0, -10)

	svc := newCanonicalizer(sources, fx)
	result, err := svc.CanonicalizeFXRates(context.Background(), CanonicalizeCommand{OrgID: 1, Range: domain.DateRange{AsOf: testDate()}})
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalGroups)
	assert.Empty(t, fx.canonical)
}
