package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/portfoliovaluation/internal/referencedata/domain"
)

func TestEffectivePriority_GlobalDefault(t *testing.T) {
	repo := newFakeSourceRepo()
	repo.addSource("BEAC", 10, true)

	resolver := NewPriorityResolver(repo, testLogger())
	p, err := resolver.EffectivePriority(context.Background(), 1, domain.DataTypeFXRate, "BEAC")
	require.NoError(t, err)
	assert.Equal(t, 10, p)
}

func TestEffectivePriority_OverrideWins(t *testing.T) {
	repo := newFakeSourceRepo()
	repo.addSource("BEAC", 10, true)
	repo.overrides = append(repo.overrides, &domain.SourcePriorityOverride{
		OrgID:      1,
		DataType:   domain.DataTypeFXRate,
		SourceCode: "BEAC",
		Priority:   3,
	})

	resolver := NewPriorityResolver(repo, testLogger())

	p, err := resolver.EffectivePriority(context.Background(), 1, domain.DataTypeFXRate, "BEAC")
	require.NoError(t, err)
	assert.Equal(t, 3, p)

	// 覆盖按数据类型隔离
	p, err = resolver.EffectivePriority(context.Background(), 1, domain.DataTypePrice, "BEAC")
	require.NoError(t, err)
	assert.Equal(t, 10, p)

	// 其它组织不受影响
	p, err = resolver.EffectivePriority(context.Background(), 2, domain.DataTypeFXRate, "BEAC")
	require.NoError(t, err)
	assert.Equal(t, 10, p)
}

func TestEffectivePriority_UnknownSource(t *testing.T) {
	resolver := NewPriorityResolver(newFakeSourceRepo(), testLogger())
	_, err := resolver.EffectivePriority(context.Background(), 1, domain.DataTypeFXRate, "MISSING")
	assert.ErrorIs(t, err, domain.ErrSourceNotFound)
}

func TestPriorityMap_OnlyActiveSources(t *testing.T) {
	repo := newFakeSourceRepo()
	repo.addSource("BEAC", 1, true)
	repo.addSource("VENDOR", 50, true)
	repo.addSource("LEGACY", 5, false)

	resolver := NewPriorityResolver(repo, testLogger())
	m, err := resolver.PriorityMap(context.Background(), 1, domain.DataTypeFXRate)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"BEAC": 1, "VENDOR": 50}, m)
}

func TestPriorityMap_OverrideOnInactiveSourceIgnored(t *testing.T) {
	repo := newFakeSourceRepo()
	repo.addSource("BEAC", 1, true)
	repo.addSource("LEGACY", 5, false)
	repo.overrides = append(repo.overrides, &domain.SourcePriorityOverride{
		OrgID:      1,
		DataType:   domain.DataTypeFXRate,
		SourceCode: "LEGACY",
		Priority:   1,
	})

	resolver := NewPriorityResolver(repo, testLogger())
	m, err := resolver.PriorityMap(context.Background(), 1, domain.DataTypeFXRate)
	require.NoError(t, err)

	_, ok := m["LEGACY"]
	assert.False(t, ok, "停用来源不应出现在优先级表中")
	assert.Equal(t, 1, m["BEAC"])
}
