package application

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/portfoliovaluation/internal/referencedata/domain"
)

// fakePriceRepo 内存价格仓储
type fakePriceRepo struct {
	observations []*domain.PriceObservation
	canonical    map[uint]*domain.InstrumentPrice
	nextID       uint
}

func newFakePriceRepo() *fakePriceRepo {
	return &fakePriceRepo{canonical: make(map[uint]*domain.InstrumentPrice)}
}

func (r *fakePriceRepo) addObservation(instrumentID uint, source, price string, revision int, observedAt time.Time) *domain.PriceObservation {
	r.nextID++
	obs := &domain.PriceObservation{
		InstrumentID: instrumentID,
		Date:         testDate(),
		PriceType:    "close",
		SourceCode:   source,
		Revision:     revision,
		Price:        decimal.RequireFromString(price),
		Currency:     "XAF",
		ObservedAt:   observedAt,
	}
	obs.ID = r.nextID
	r.observations = append(r.observations, obs)
	return obs
}

func (r *fakePriceRepo) SaveObservation(_ context.Context, obs *domain.PriceObservation) error {
	r.observations = append(r.observations, obs)
	return nil
}

func (r *fakePriceRepo) ListObservations(_ context.Context, rng domain.DateRange) ([]*domain.PriceObservation, error) {
	var out []*domain.PriceObservation
	for _, obs := range r.observations {
		if rng.Contains(obs.Date) {
			out = append(out, obs)
		}
	}
	return out, nil
}

func (r *fakePriceRepo) UpsertCanonical(_ context.Context, price *domain.InstrumentPrice) (bool, error) {
	_, exists := r.canonical[price.InstrumentID]
	r.canonical[price.InstrumentID] = price
	return !exists, nil
}

func (r *fakePriceRepo) GetCanonical(_ context.Context, instrumentID uint, _ time.Time, _ string) (*domain.InstrumentPrice, error) {
	price, ok := r.canonical[instrumentID]
	if !ok {
		return nil, domain.ErrSourceNotFound
	}
	return price, nil
}

func newPriceCanonicalizer(sources *fakeSourceRepo, prices *fakePriceRepo) *CanonicalizerService {
	resolver := NewPriorityResolver(sources, testLogger())
	return NewCanonicalizerService(resolver, nil, prices, nil, nil, nil, testLogger())
}

func TestCanonicalizePrices_PicksHighestPriority(t *testing.T) {
	sources := newFakeSourceRepo()
	sources.addSource("BVMAC", 1, true)
	sources.addSource("VENDOR", 50, true)
	prices := newFakePriceRepo()
	now := time.Now()
	best := prices.addObservation(1, "BVMAC", "10250.50", 0, now)
	prices.addObservation(1, "VENDOR", "10300.00", 0, now)

	svc := newPriceCanonicalizer(sources, prices)
	result, err := svc.CanonicalizePrices(context.Background(), CanonicalizeCommand{OrgID: 1, Range: domain.DateRange{AsOf: testDate()}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	canonical := prices.canonical[1]
	require.NotNil(t, canonical)
	assert.Equal(t, "BVMAC", canonical.ChosenSource)
	assert.Equal(t, domain.ReasonAutoPolicy, canonical.SelectionReason)
	require.NotNil(t, canonical.ObservationID)
	assert.Equal(t, best.ID, *canonical.ObservationID)
	assert.True(t, decimal.RequireFromString("10250.50").Equal(canonical.Price))
	assert.Equal(t, "XAF", canonical.Currency)
}

func TestCanonicalizePrices_SingleCandidateOnlyAvailable(t *testing.T) {
	sources := newFakeSourceRepo()
	sources.addSource("BVMAC", 1, true)
	prices := newFakePriceRepo()
	prices.addObservation(1, "BVMAC", "10250.50", 0, time.Now())

	svc := newPriceCanonicalizer(sources, prices)
	result, err := svc.CanonicalizePrices(context.Background(), CanonicalizeCommand{OrgID: 1, Range: domain.DateRange{AsOf: testDate()}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, domain.ReasonOnlyAvailable, prices.canonical[1].SelectionReason)
}

func TestCanonicalizePrices_RevisionSupersedes(t *testing.T) {
	sources := newFakeSourceRepo()
	sources.addSource("BVMAC", 1, true)
	prices := newFakePriceRepo()
	now := time.Now()
	prices.addObservation(1, "BVMAC", "10250.50", 0, now)
	corrected := prices.addObservation(1, "BVMAC", "10260.00", 1, now.Add(-time.Hour))

	svc := newPriceCanonicalizer(sources, prices)
	_, err := svc.CanonicalizePrices(context.Background(), CanonicalizeCommand{OrgID: 1, Range: domain.DateRange{AsOf: testDate()}})
	require.NoError(t, err)

	canonical := prices.canonical[1]
	require.NotNil(t, canonical.ObservationID)
	assert.Equal(t, corrected.ID, *canonical.ObservationID, "同来源应采用更高 revision")
	assert.True(t, decimal.RequireFromString("10260.00").Equal(canonical.Price))
}

func TestCanonicalizePrices_GroupsByInstrument(t *testing.T) {
	sources := newFakeSourceRepo()
	sources.addSource("BVMAC", 1, true)
	prices := newFakePriceRepo()
	now := time.Now()
	prices.addObservation(1, "BVMAC", "100", 0, now)
	prices.addObservation(2, "BVMAC", "200", 0, now)

	svc := newPriceCanonicalizer(sources, prices)
	result, err := svc.CanonicalizePrices(context.Background(), CanonicalizeCommand{OrgID: 1, Range: domain.DateRange{AsOf: testDate()}})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalGroups)
	assert.Equal(t, 2, result.Created)
}
