package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGormConfig_TranslatesDriverErrors(t *testing.T) {
	gormLogger := NewGormLogger(false, 200*time.Millisecond)
	cfg := newGormConfig(gormLogger)

	// 唯一键冲突依赖 gorm.ErrDuplicatedKey 翻译，关闭后仓储层的
	// errors.Is 检测永远不会命中
	assert.True(t, cfg.TranslateError)
	require.NotNil(t, cfg.Logger)
	assert.Equal(t, gormLogger, cfg.Logger)
}
