package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/portfoliovaluation/internal/referencedata/domain"
)

func TestSourceRegister_DefaultPriority(t *testing.T) {
	repo := newFakeSourceRepo()
	svc := NewSourceService(repo, testLogger())

	source, err := svc.Register(context.Background(), RegisterSourceCommand{
		Code:       "BEAC",
		Name:       "Banque des Etats de l'Afrique Centrale",
		SourceType: domain.SourceTypeCentralBank,
	})
	require.NoError(t, err)
	assert.Equal(t, 100, source.Priority, "缺省优先级为 100")
	assert.True(t, source.IsActive)

	explicit, err := svc.Register(context.Background(), RegisterSourceCommand{
		Code:       "VENDOR",
		Name:       "Vendor Feed",
		Priority:   5,
		SourceType: domain.SourceTypeVendor,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, explicit.Priority)
}

func TestSourceSetActive(t *testing.T) {
	repo := newFakeSourceRepo()
	repo.addSource("BEAC", 1, true)
	svc := NewSourceService(repo, testLogger())

	require.NoError(t, svc.SetActive(context.Background(), "BEAC", false))
	assert.False(t, repo.sources["BEAC"].IsActive)

	err := svc.SetActive(context.Background(), "MISSING", false)
	assert.ErrorIs(t, err, domain.ErrSourceNotFound)
}

func TestSetOverride_Validation(t *testing.T) {
	repo := newFakeSourceRepo()
	repo.addSource("BEAC", 1, true)
	svc := NewSourceService(repo, testLogger())

	err := svc.SetOverride(context.Background(), SetOverrideCommand{
		OrgID:      1,
		DataType:   domain.DataType("bogus"),
		SourceCode: "BEAC",
		Priority:   1,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDataType)

	err = svc.SetOverride(context.Background(), SetOverrideCommand{
		OrgID:      1,
		DataType:   domain.DataTypeFXRate,
		SourceCode: "MISSING",
		Priority:   1,
	})
	assert.ErrorIs(t, err, domain.ErrSourceNotFound)

	require.NoError(t, svc.SetOverride(context.Background(), SetOverrideCommand{
		OrgID:      1,
		DataType:   domain.DataTypeFXRate,
		SourceCode: "BEAC",
		Priority:   2,
	}))
	require.Len(t, repo.overrides, 1)
	assert.Equal(t, 2, repo.overrides[0].Priority)
}

func TestSourceSync(t *testing.T) {
	repo := newFakeSourceRepo()
	repo.addSource("BEAC", 1, true)
	svc := NewSourceService(repo, testLogger())

	inactive := false
	count, err := svc.Sync(context.Background(), []SyncSourceCommand{
		{Code: "BEAC", Name: "BEAC (renamed)", Priority: 2, SourceType: domain.SourceTypeCentralBank},
		{Code: "BVMAC", Name: "Bourse BVMAC", SourceType: domain.SourceTypeExchange},
		{Code: "LEGACY", Name: "Legacy Feed", SourceType: domain.SourceTypeVendor, IsActive: &inactive},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	assert.Equal(t, "BEAC (renamed)", repo.sources["BEAC"].Name)
	assert.Equal(t, 2, repo.sources["BEAC"].Priority)
	assert.Equal(t, 100, repo.sources["BVMAC"].Priority, "缺省优先级")
	assert.True(t, repo.sources["BVMAC"].IsActive)
	assert.False(t, repo.sources["LEGACY"].IsActive)
}

func TestRemoveOverride(t *testing.T) {
	repo := newFakeSourceRepo()
	repo.addSource("BEAC", 1, true)
	repo.overrides = append(repo.overrides, &domain.SourcePriorityOverride{
		OrgID:      1,
		DataType:   domain.DataTypeFXRate,
		SourceCode: "BEAC",
		Priority:   2,
	})
	svc := NewSourceService(repo, testLogger())

	require.NoError(t, svc.RemoveOverride(context.Background(), 1, domain.DataTypeFXRate, "BEAC"))
	assert.Empty(t, repo.overrides)
}
