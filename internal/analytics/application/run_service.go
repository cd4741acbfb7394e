package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/portfoliovaluation/internal/analytics/domain"
	"github.com/wyfcoding/portfoliovaluation/pkg/metrics"
)

// CreateRunCommand 创建估值执行命令
type CreateRunCommand struct {
	OrgID        uint                   `json:"org_id" binding:"required"`
	PortfolioID  uint                   `json:"portfolio_id" binding:"required"`
	AsOfDate     time.Time              `json:"as_of_date"`
	Policy       domain.ValuationPolicy `json:"valuation_policy"`
	RunContextID string                 `json:"run_context_id"`
	CreatedBy    string                 `json:"created_by"`
}

// MarkOfficialCommand 标记正式结果命令
type MarkOfficialCommand struct {
	RunID  uint   `json:"run_id"`
	Reason string `json:"reason" binding:"required"`
	Actor  string `json:"actor"`
}

// RunService 估值执行应用服务。
// 负责执行的创建（含输入指纹幂等）、状态机流转与正式结果切换。
type RunService struct {
	runRepo      domain.RunRepository
	resultRepo   domain.ResultRepository
	exposureRepo domain.ExposureRepository
	snapshots    domain.SnapshotReader
	engine       *ValuationEngine
	publisher    domain.EventPublisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewRunService 创建估值执行服务
func NewRunService(
	runRepo domain.RunRepository,
	resultRepo domain.ResultRepository,
	exposureRepo domain.ExposureRepository,
	snapshots domain.SnapshotReader,
	engine *ValuationEngine,
	publisher domain.EventPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *RunService {
	return &RunService{
		runRepo:      runRepo,
		resultRepo:   resultRepo,
		exposureRepo: exposureRepo,
		snapshots:    snapshots,
		engine:       engine,
		publisher:    publisher,
		metrics:      m,
		logger:       logger,
	}
}

// GetOrCreate 创建估值执行。输入指纹相同的既有执行直接复用，不重复创建。
// 返回执行实体与是否为新建。
func (s *RunService) GetOrCreate(ctx context.Context, cmd CreateRunCommand) (*domain.ValuationRun, bool, error) {
	policy := cmd.Policy
	if policy == "" {
		policy = domain.PolicyUseSnapshotMV
	}
	if !policy.Valid() {
		return nil, false, fmt.Errorf("%w: %q", domain.ErrUnknownPolicy, policy)
	}

	portfolio, err := s.snapshots.GetPortfolio(ctx, cmd.PortfolioID)
	if err != nil {
		return nil, false, err
	}

	snapshots, err := s.snapshots.ListSnapshots(ctx, cmd.PortfolioID, cmd.AsOfDate)
	if err != nil {
		return nil, false, fmt.Errorf("加载持仓快照失败: %w", err)
	}
	snapshotIDs := make([]uint, len(snapshots))
	for i, snap := range snapshots {
		snapshotIDs[i] = snap.ID
	}
	inputsHash := domain.ComputeInputsHash(snapshotIDs, cmd.AsOfDate, policy)

	existing, err := s.runRepo.FindByInputs(ctx, cmd.OrgID, cmd.PortfolioID, cmd.AsOfDate, inputsHash)
	if err != nil && err != domain.ErrRunNotFound {
		return nil, false, err
	}
	if existing != nil {
		s.logger.InfoContext(ctx, "输入指纹已存在，复用既有执行",
			"run_id", existing.ID, "inputs_hash", inputsHash)
		return existing, false, nil
	}

	run := &domain.ValuationRun{
		OrgID:           cmd.OrgID,
		PortfolioID:     cmd.PortfolioID,
		AsOfDate:        cmd.AsOfDate,
		ValuationPolicy: policy,
		Status:          domain.RunStatusPending,
		InputsHash:      inputsHash,
		RunContextID:    cmd.RunContextID,
		CreatedBy:       cmd.CreatedBy,
		BaseCurrency:    portfolio.BaseCurrency,
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		return nil, false, fmt.Errorf("创建估值执行失败: %w", err)
	}
	s.logger.InfoContext(ctx, "已创建估值执行",
		"run_id", run.ID,
		"portfolio_id", run.PortfolioID,
		"as_of_date", run.AsOfDate.Format("2006-01-02"),
		"policy", run.ValuationPolicy,
		"inputs_hash", inputsHash)
	return run, true, nil
}

// Execute 执行估值。状态流转 PENDING → RUNNING → SUCCESS/FAILED，
// 无论成败，最终状态、日志与汇总指标都会落库。
func (s *RunService) Execute(ctx context.Context, runID uint) (err error) {
	run, err := s.runRepo.GetByID(ctx, runID)
	if err != nil {
		return err
	}

	run.Status = domain.RunStatusRunning
	if err := s.runRepo.Update(ctx, run); err != nil {
		return fmt.Errorf("更新执行状态失败: %w", err)
	}

	started := time.Now()
	var logEntries []string
	defer func() {
		run.Log = strings.Join(logEntries, "\n")
		if persistErr := s.runRepo.Update(ctx, run); persistErr != nil {
			s.logger.ErrorContext(ctx, "持久化执行终态失败", "run_id", run.ID, "error", persistErr)
			if err == nil {
				err = persistErr
			}
		}
		if s.metrics != nil {
			s.metrics.ValuationRunsTotal.WithLabelValues(string(run.Status)).Inc()
			s.metrics.ValuationRunDuration.Observe(time.Since(started).Seconds())
		}
	}()

	fail := func(cause error) error {
		run.Status = domain.RunStatusFailed
		logEntries = append(logEntries, fmt.Sprintf("Error: %v", cause))
		s.logger.ErrorContext(ctx, "估值执行失败", "run_id", run.ID, "error", cause)
		return cause
	}

	portfolio, err := s.snapshots.GetPortfolio(ctx, run.PortfolioID)
	if err != nil {
		return fail(err)
	}
	snapshots, err := s.snapshots.ListSnapshots(ctx, run.PortfolioID, run.AsOfDate)
	if err != nil {
		return fail(fmt.Errorf("加载持仓快照失败: %w", err))
	}

	var results []*domain.ValuationPositionResult
	switch run.ValuationPolicy {
	case domain.PolicyUseSnapshotMV:
		logEntries = append(logEntries, fmt.Sprintf("Starting valuation with policy %s", run.ValuationPolicy))
		results, err = s.engine.ComputeUseSnapshotMV(ctx, run, portfolio, snapshots)
		if err != nil {
			return fail(err)
		}
	case domain.PolicyRevalueFromMarketData:
		return fail(fmt.Errorf("%w: %s", domain.ErrPolicyNotSupported, run.ValuationPolicy))
	default:
		return fail(fmt.Errorf("%w: %q", domain.ErrUnknownPolicy, run.ValuationPolicy))
	}

	if err := s.resultRepo.ReplaceForRun(ctx, run.ID, results); err != nil {
		return fail(fmt.Errorf("写入估值结果失败: %w", err))
	}
	logEntries = append(logEntries, fmt.Sprintf("Computed %d position results", len(results)))

	agg := ComputeAggregates(results)
	run.TotalMarketValue = agg.TotalMarketValue
	run.BaseCurrency = portfolio.BaseCurrency
	run.PositionCount = agg.PositionCount
	run.PositionsWithIssues = agg.PositionsWithIssues
	run.MissingFXCount = agg.MissingFXCount

	if agg.PositionsWithIssues > 0 {
		logEntries = append(logEntries, fmt.Sprintf(
			"Warning: %d positions have data quality flags (%d missing FX rates)",
			agg.PositionsWithIssues, agg.MissingFXCount))
		if s.metrics != nil {
			s.metrics.PositionIssuesTotal.WithLabelValues("missing_fx_rate").
				Add(float64(agg.MissingFXCount))
			s.metrics.PositionIssuesTotal.WithLabelValues("invalid_fx_rate").
				Add(float64(agg.PositionsWithIssues - agg.MissingFXCount))
		}
	}

	report := ComputeExposures(results, agg.TotalMarketValue, portfolio.BaseCurrency)
	if err := s.exposureRepo.ReplaceForRun(ctx, run.ID, FlattenExposures(run, report)); err != nil {
		return fail(fmt.Errorf("写入敞口结果失败: %w", err))
	}
	logEntries = append(logEntries, "Computed exposure breakdowns")

	run.Status = domain.RunStatusSuccess
	logEntries = append(logEntries, "Valuation completed successfully")
	s.logger.InfoContext(ctx, "估值执行完成",
		"run_id", run.ID,
		"position_count", agg.PositionCount,
		"total_market_value", agg.TotalMarketValue.String(),
		"positions_with_issues", agg.PositionsWithIssues)
	return nil
}

// MarkOfficial 把某次执行标记为其组合/估值日的正式结果。
// 旧正式执行在同一事务里被摘除，并连同 previous_official_run_id 记入审计事件。
func (s *RunService) MarkOfficial(ctx context.Context, cmd MarkOfficialCommand) error {
	run, err := s.runRepo.GetByID(ctx, cmd.RunID)
	if err != nil {
		return err
	}
	if err := run.CanMarkOfficial(); err != nil {
		return err
	}

	actor := cmd.Actor
	if actor == "" {
		actor = run.CreatedBy
	}

	previousID, err := s.runRepo.PromoteOfficial(ctx, run, func(tx *gorm.DB, previousID *uint) error {
		metadata := map[string]any{
			"reason":           cmd.Reason,
			"portfolio_id":     run.PortfolioID,
			"as_of_date":       run.AsOfDate.Format("2006-01-02"),
			"valuation_policy": string(run.ValuationPolicy),
		}
		if previousID != nil {
			metadata["previous_official_run_id"] = *previousID
		} else {
			metadata["previous_official_run_id"] = nil
		}
		return s.publisher.Publish(ctx, tx, &domain.AuditEvent{
			OrgID:      run.OrgID,
			Actor:      actor,
			Action:     domain.ActionMarkOfficial,
			ObjectType: "ValuationRun",
			ObjectID:   run.ID,
			Metadata:   metadata,
			OccurredAt: time.Now(),
		})
	})
	if err != nil {
		return fmt.Errorf("标记正式结果失败: %w", err)
	}

	s.logger.InfoContext(ctx, "已标记正式估值结果",
		"run_id", run.ID,
		"previous_official_run_id", previousID,
		"actor", actor)
	return nil
}

// UnmarkOfficial 摘除执行的正式标记。非正式执行上的调用是空操作。
func (s *RunService) UnmarkOfficial(ctx context.Context, cmd MarkOfficialCommand) error {
	run, err := s.runRepo.GetByID(ctx, cmd.RunID)
	if err != nil {
		return err
	}
	if !run.IsOfficial {
		return nil
	}

	actor := cmd.Actor
	if actor == "" {
		actor = run.CreatedBy
	}

	err = s.runRepo.DemoteOfficial(ctx, run, func(tx *gorm.DB) error {
		return s.publisher.Publish(ctx, tx, &domain.AuditEvent{
			OrgID:      run.OrgID,
			Actor:      actor,
			Action:     domain.ActionUnmarkOfficial,
			ObjectType: "ValuationRun",
			ObjectID:   run.ID,
			Metadata: map[string]any{
				"reason":           cmd.Reason,
				"portfolio_id":     run.PortfolioID,
				"as_of_date":       run.AsOfDate.Format("2006-01-02"),
				"valuation_policy": string(run.ValuationPolicy),
			},
			OccurredAt: time.Now(),
		})
	})
	if err != nil {
		return fmt.Errorf("摘除正式标记失败: %w", err)
	}
	s.logger.InfoContext(ctx, "已摘除正式估值标记", "run_id", run.ID, "actor", actor)
	return nil
}

// GetRun 查询执行详情
func (s *RunService) GetRun(ctx context.Context, runID uint) (*domain.ValuationRun, error) {
	return s.runRepo.GetByID(ctx, runID)
}

// ListRuns 查询组合某估值日的全部执行
func (s *RunService) ListRuns(ctx context.Context, orgID, portfolioID uint, asOfDate time.Time) ([]*domain.ValuationRun, error) {
	return s.runRepo.ListForPortfolioDate(ctx, orgID, portfolioID, asOfDate)
}

// loadResultsWithSnapshots 加载执行结果并关联持仓快照与工具主数据
func (s *RunService) loadResultsWithSnapshots(ctx context.Context, run *domain.ValuationRun) ([]*domain.ValuationPositionResult, error) {
	results, err := s.resultRepo.ListForRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	snapshots, err := s.snapshots.ListSnapshots(ctx, run.PortfolioID, run.AsOfDate)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]int, len(snapshots))
	for i, snap := range snapshots {
		byID[snap.ID] = i
	}
	for _, r := range results {
		if i, ok := byID[r.PositionSnapshotID]; ok {
			r.Snapshot = snapshots[i]
		}
	}
	return results, nil
}

// Exposures 返回执行的全维度敞口报告。
// 优先读落库敞口行，历史执行无落库数据时按结果现算。
func (s *RunService) Exposures(ctx context.Context, runID uint) (*domain.ExposureReport, error) {
	run, err := s.runRepo.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	stored, err := s.exposureRepo.ListForRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		return AssembleExposureReport(run, stored), nil
	}
	results, err := s.loadResultsWithSnapshots(ctx, run)
	if err != nil {
		return nil, err
	}
	return ComputeExposures(results, run.TotalMarketValue, run.BaseCurrency), nil
}

// LatestOfficial 查询组合某估值日的正式执行
func (s *RunService) LatestOfficial(ctx context.Context, orgID, portfolioID uint, asOfDate time.Time) (*domain.ValuationRun, error) {
	return s.runRepo.LatestOfficial(ctx, orgID, portfolioID, asOfDate)
}

// Concentrations 计算执行在某一维度下的前 N 大集中度
func (s *RunService) Concentrations(ctx context.Context, runID uint, dimension domain.DimensionType, topN int) ([]domain.ExposureEntry, error) {
	run, err := s.runRepo.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	results, err := s.loadResultsWithSnapshots(ctx, run)
	if err != nil {
		return nil, err
	}
	return TopConcentrations(results, dimension, run.TotalMarketValue, topN)
}

// DataQuality 汇总执行的结果质量问题。
// 成功执行的计数直接取执行落库的聚合列，仅明细列表需要遍历结果。
func (s *RunService) DataQuality(ctx context.Context, runID uint) (*domain.DataQualitySummary, error) {
	run, err := s.runRepo.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	results, err := s.loadResultsWithSnapshots(ctx, run)
	if err != nil {
		return nil, err
	}
	summary := ComputeDataQualitySummary(results)
	if run.Status == domain.RunStatusSuccess {
		summary.TotalPositions = run.PositionCount
		summary.PositionsWithIssues = run.PositionsWithIssues
		summary.MissingFXRates = run.MissingFXCount
	}
	return summary, nil
}
