package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wyfcoding/portfoliovaluation/internal/analytics/domain"
)

// DailyCloseResult 组合日终处理的执行摘要
type DailyCloseResult struct {
	PortfolioID       uint     `json:"portfolio_id"`
	PortfolioName     string   `json:"portfolio_name"`
	AsOfDate          string   `json:"as_of_date"`
	ValuationRunID    uint     `json:"valuation_run_id"`
	ValuationStatus   string   `json:"valuation_status"`
	ExposuresComputed bool     `json:"exposures_computed"`
	Errors            []string `json:"errors"`
}

// DailyCloseService 组合日终编排：估值 → 敞口计算。
// 估值失败则提前返回，敞口计算失败只记入 Errors 不影响估值结果。
type DailyCloseService struct {
	runs      *RunService
	snapshots domain.SnapshotReader
	logger    *slog.Logger
}

// NewDailyCloseService 创建日终编排服务
func NewDailyCloseService(runs *RunService, snapshots domain.SnapshotReader, logger *slog.Logger) *DailyCloseService {
	return &DailyCloseService{runs: runs, snapshots: snapshots, logger: logger}
}

// Run 执行单个组合的日终处理
func (s *DailyCloseService) Run(ctx context.Context, orgID, portfolioID uint, asOfDate time.Time, runContextID string) (*DailyCloseResult, error) {
	portfolio, err := s.snapshots.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	snapshots, err := s.snapshots.ListSnapshots(ctx, portfolioID, asOfDate)
	if err != nil {
		return nil, fmt.Errorf("加载持仓快照失败: %w", err)
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("组合 %d 在 %s 没有持仓快照，请先导入持仓数据",
			portfolioID, asOfDate.Format("2006-01-02"))
	}

	result := &DailyCloseResult{
		PortfolioID:   portfolioID,
		PortfolioName: portfolio.Name,
		AsOfDate:      asOfDate.Format("2006-01-02"),
		Errors:        []string{},
	}

	run, created, err := s.runs.GetOrCreate(ctx, CreateRunCommand{
		OrgID:        orgID,
		PortfolioID:  portfolioID,
		AsOfDate:     asOfDate,
		Policy:       domain.PolicyUseSnapshotMV,
		RunContextID: runContextID,
	})
	if err != nil {
		return nil, err
	}
	result.ValuationRunID = run.ID

	// 已成功的执行不重复计算
	if run.Status != domain.RunStatusSuccess {
		if err := s.runs.Execute(ctx, run.ID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("valuation execution failed: %v", err))
			if latest, getErr := s.runs.GetRun(ctx, run.ID); getErr == nil {
				result.ValuationStatus = string(latest.Status)
			}
			return result, nil
		}
	} else if !created {
		s.logger.InfoContext(ctx, "估值执行已成功，跳过重算", "run_id", run.ID)
	}

	latest, err := s.runs.GetRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	result.ValuationStatus = string(latest.Status)

	if _, err := s.runs.Exposures(ctx, run.ID); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("exposure computation failed: %v", err))
	} else {
		result.ExposuresComputed = true
	}

	s.logger.InfoContext(ctx, "组合日终处理完成",
		"portfolio_id", portfolioID,
		"run_id", run.ID,
		"status", result.ValuationStatus,
		"exposures_computed", result.ExposuresComputed,
		"errors", len(result.Errors))
	return result, nil
}
