package domain

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashDate() time.Time {
	return time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
}

func TestComputeInputsHash_Deterministic(t *testing.T) {
	a := ComputeInputsHash([]uint{1, 2, 3}, hashDate(), PolicyUseSnapshotMV)
	b := ComputeInputsHash([]uint{1, 2, 3}, hashDate(), PolicyUseSnapshotMV)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestComputeInputsHash_OrderInsensitive(t *testing.T) {
	a := ComputeInputsHash([]uint{3, 1, 2}, hashDate(), PolicyUseSnapshotMV)
	b := ComputeInputsHash([]uint{1, 2, 3}, hashDate(), PolicyUseSnapshotMV)
	assert.Equal(t, a, b, "快照 ID 顺序不影响指纹")
}

func TestComputeInputsHash_SensitiveToInputs(t *testing.T) {
	base := ComputeInputsHash([]uint{1, 2, 3}, hashDate(), PolicyUseSnapshotMV)

	assert.NotEqual(t, base, ComputeInputsHash([]uint{1, 2}, hashDate(), PolicyUseSnapshotMV))
	assert.NotEqual(t, base, ComputeInputsHash([]uint{1, 2, 3}, hashDate().AddDate(0, 0, 1), PolicyUseSnapshotMV))
	assert.NotEqual(t, base, ComputeInputsHash([]uint{1, 2, 3}, hashDate(), PolicyRevalueFromMarketData))
}

func TestComputeInputsHash_EmptySnapshots(t *testing.T) {
	a := ComputeInputsHash(nil, hashDate(), PolicyUseSnapshotMV)
	b := ComputeInputsHash([]uint{}, hashDate(), PolicyUseSnapshotMV)
	assert.Equal(t, a, b)
}

func TestCanMarkOfficial(t *testing.T) {
	run := &ValuationRun{Status: RunStatusSuccess}
	assert.NoError(t, run.CanMarkOfficial())

	for _, status := range []RunStatus{RunStatusPending, RunStatusRunning, RunStatusFailed} {
		run.Status = status
		assert.ErrorIs(t, run.CanMarkOfficial(), ErrRunNotSuccessful, string(status))
	}
}

func TestValuationRunInputsUniqueIndex(t *testing.T) {
	// 执行身份由 (org, portfolio, date, inputs_hash) 唯一约束保证，
	// 跨租户也不允许借 portfolio ID 全局唯一性兜底
	typ := reflect.TypeOf(ValuationRun{})
	for _, name := range []string{"OrgID", "PortfolioID", "AsOfDate", "InputsHash"} {
		field, ok := typ.FieldByName(name)
		require.True(t, ok, name)
		assert.Contains(t, field.Tag.Get("gorm"), "uniqueIndex:uniq_run_inputs", name)
	}
}

func TestValuationPolicyValid(t *testing.T) {
	assert.True(t, PolicyUseSnapshotMV.Valid())
	assert.True(t, PolicyRevalueFromMarketData.Valid())
	assert.False(t, ValuationPolicy("").Valid())
	assert.False(t, ValuationPolicy("mark_to_fantasy").Valid())
}
