package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wyfcoding/portfoliovaluation/internal/referencedata/domain"
)

// PriorityResolver 计算来源在某组织、某数据类型下的有效优先级。
// 组织级覆盖优先于来源的全局默认值，数值越小优先级越高。
type PriorityResolver struct {
	sourceRepo domain.SourceRepository
	logger     *slog.Logger
}

// NewPriorityResolver 创建优先级解析器
func NewPriorityResolver(sourceRepo domain.SourceRepository, logger *slog.Logger) *PriorityResolver {
	return &PriorityResolver{sourceRepo: sourceRepo, logger: logger}
}

// EffectivePriority 返回单个来源的有效优先级
func (r *PriorityResolver) EffectivePriority(ctx context.Context, orgID uint, dataType domain.DataType, sourceCode string) (int, error) {
	source, err := r.sourceRepo.GetByCode(ctx, sourceCode)
	if err != nil {
		return 0, fmt.Errorf("查询来源失败: %w", err)
	}
	overrides, err := r.sourceRepo.ListOverrides(ctx, orgID, dataType)
	if err != nil {
		return 0, fmt.Errorf("查询优先级覆盖失败: %w", err)
	}
	for _, o := range overrides {
		if o.SourceCode == sourceCode {
			return o.Priority, nil
		}
	}
	return source.Priority, nil
}

// PriorityMap 一次性解析全部启用来源的有效优先级，供正式化流程批量使用。
// 返回 map[sourceCode]priority，仅包含启用中的来源。
func (r *PriorityResolver) PriorityMap(ctx context.Context, orgID uint, dataType domain.DataType) (map[string]int, error) {
	sources, err := r.sourceRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询启用来源失败: %w", err)
	}
	overrides, err := r.sourceRepo.ListOverrides(ctx, orgID, dataType)
	if err != nil {
		return nil, fmt.Errorf("查询优先级覆盖失败: %w", err)
	}

	priorities := make(map[string]int, len(sources))
	for _, s := range sources {
		priorities[s.Code] = s.Priority
	}
	for _, o := range overrides {
		// 覆盖仅对启用中的来源生效
		if _, ok := priorities[o.SourceCode]; ok {
			priorities[o.SourceCode] = o.Priority
		}
	}

	r.logger.DebugContext(ctx, "已解析来源有效优先级",
		"org_id", orgID,
		"data_type", dataType,
		"active_sources", len(priorities),
		"overrides", len(overrides))
	return priorities, nil
}
