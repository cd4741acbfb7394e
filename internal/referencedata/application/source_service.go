package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wyfcoding/portfoliovaluation/internal/referencedata/domain"
)

// RegisterSourceCommand 登记行情来源命令
type RegisterSourceCommand struct {
	Code        string            `json:"code" binding:"required"`
	Name        string            `json:"name" binding:"required"`
	Priority    int               `json:"priority"`
	SourceType  domain.SourceType `json:"source_type" binding:"required"`
	Description string            `json:"description"`
}

// SetOverrideCommand 设置组织级优先级覆盖命令
type SetOverrideCommand struct {
	OrgID      uint            `json:"org_id" binding:"required"`
	DataType   domain.DataType `json:"data_type" binding:"required"`
	SourceCode string          `json:"source_code" binding:"required"`
	Priority   int             `json:"priority" binding:"required"`
}

// SourceService 行情来源与优先级配置服务
type SourceService struct {
	sourceRepo domain.SourceRepository
	logger     *slog.Logger
}

// NewSourceService 创建来源配置服务
func NewSourceService(sourceRepo domain.SourceRepository, logger *slog.Logger) *SourceService {
	return &SourceService{sourceRepo: sourceRepo, logger: logger}
}

// Register 登记新来源。优先级缺省为 100。
func (s *SourceService) Register(ctx context.Context, cmd RegisterSourceCommand) (*domain.MarketDataSource, error) {
	priority := cmd.Priority
	if priority == 0 {
		priority = 100
	}
	source := &domain.MarketDataSource{
		Code:        cmd.Code,
		Name:        cmd.Name,
		Priority:    priority,
		SourceType:  cmd.SourceType,
		IsActive:    true,
		Description: cmd.Description,
	}
	if err := s.sourceRepo.Create(ctx, source); err != nil {
		return nil, fmt.Errorf("登记来源失败: %w", err)
	}
	s.logger.InfoContext(ctx, "已登记行情来源", "code", source.Code, "priority", source.Priority)
	return source, nil
}

// SyncSourceCommand 目录同步中的单条来源定义
type SyncSourceCommand struct {
	Code        string            `json:"code" binding:"required"`
	Name        string            `json:"name" binding:"required"`
	Priority    int               `json:"priority"`
	SourceType  domain.SourceType `json:"source_type" binding:"required"`
	IsActive    *bool             `json:"is_active"`
	Description string            `json:"description"`
}

// Sync 批量同步来源目录。已存在的来源按 code 覆盖更新，
// 缺省启用、优先级缺省 100，返回处理条数。
func (s *SourceService) Sync(ctx context.Context, cmds []SyncSourceCommand) (int, error) {
	for _, cmd := range cmds {
		priority := cmd.Priority
		if priority == 0 {
			priority = 100
		}
		active := true
		if cmd.IsActive != nil {
			active = *cmd.IsActive
		}
		source := &domain.MarketDataSource{
			Code:        cmd.Code,
			Name:        cmd.Name,
			Priority:    priority,
			SourceType:  cmd.SourceType,
			IsActive:    active,
			Description: cmd.Description,
		}
		if err := s.sourceRepo.Upsert(ctx, source); err != nil {
			return 0, fmt.Errorf("同步来源 %s 失败: %w", cmd.Code, err)
		}
	}
	s.logger.InfoContext(ctx, "来源目录同步完成", "count", len(cmds))
	return len(cmds), nil
}

// SetActive 启用或停用来源。被停用来源的观测值不再参与正式化。
func (s *SourceService) SetActive(ctx context.Context, code string, active bool) error {
	source, err := s.sourceRepo.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	source.IsActive = active
	if err := s.sourceRepo.Update(ctx, source); err != nil {
		return fmt.Errorf("更新来源状态失败: %w", err)
	}
	s.logger.InfoContext(ctx, "已更新来源状态", "code", code, "is_active", active)
	return nil
}

// List 返回全部来源
func (s *SourceService) List(ctx context.Context) ([]*domain.MarketDataSource, error) {
	return s.sourceRepo.List(ctx)
}

// SetOverride 设置组织级优先级覆盖
func (s *SourceService) SetOverride(ctx context.Context, cmd SetOverrideCommand) error {
	if !cmd.DataType.Valid() {
		return fmt.Errorf("%w: 未知数据类型 %q", domain.ErrInvalidDataType, cmd.DataType)
	}
	if _, err := s.sourceRepo.GetByCode(ctx, cmd.SourceCode); err != nil {
		return err
	}
	override := &domain.SourcePriorityOverride{
		OrgID:      cmd.OrgID,
		DataType:   cmd.DataType,
		SourceCode: cmd.SourceCode,
		Priority:   cmd.Priority,
	}
	if err := s.sourceRepo.SaveOverride(ctx, override); err != nil {
		return fmt.Errorf("保存优先级覆盖失败: %w", err)
	}
	s.logger.InfoContext(ctx, "已设置优先级覆盖",
		"org_id", cmd.OrgID, "data_type", cmd.DataType, "source_code", cmd.SourceCode, "priority", cmd.Priority)
	return nil
}

// RemoveOverride 删除组织级优先级覆盖，来源恢复全局默认优先级
func (s *SourceService) RemoveOverride(ctx context.Context, orgID uint, dataType domain.DataType, sourceCode string) error {
	if err := s.sourceRepo.DeleteOverride(ctx, orgID, dataType, sourceCode); err != nil {
		return fmt.Errorf("删除优先级覆盖失败: %w", err)
	}
	return nil
}
