package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/wyfcoding/portfoliovaluation/internal/analytics/application"
	"github.com/wyfcoding/portfoliovaluation/pkg/mq"
)

// DailyCloseRequest 日终处理请求消息。批处理调度器按组合逐条投递。
type DailyCloseRequest struct {
	OrgID        uint   `json:"org_id"`
	PortfolioID  uint   `json:"portfolio_id"`
	AsOfDate     string `json:"as_of_date"`
	RunContextID string `json:"run_context_id"`
}

// RunRequestHandler 消费日终处理请求并驱动估值执行。
type RunRequestHandler struct {
	dailyClose *application.DailyCloseService
	logger     *slog.Logger
}

// NewRunRequestHandler 创建消费处理器
func NewRunRequestHandler(dailyClose *application.DailyCloseService, logger *slog.Logger) *RunRequestHandler {
	return &RunRequestHandler{dailyClose: dailyClose, logger: logger}
}

// Handle 处理单条请求消息。返回错误时由消费循环记录并继续。
func (h *RunRequestHandler) Handle(ctx context.Context, msg *mq.Message) error {
	var req DailyCloseRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return fmt.Errorf("解析日终请求失败: %w", err)
	}
	asOfDate, err := time.Parse("2006-01-02", req.AsOfDate)
	if err != nil {
		return fmt.Errorf("非法的估值日 %q: %w", req.AsOfDate, err)
	}

	h.logger.InfoContext(ctx, "收到日终处理请求",
		"org_id", req.OrgID,
		"portfolio_id", req.PortfolioID,
		"as_of_date", req.AsOfDate,
		"run_context_id", req.RunContextID)

	result, err := h.dailyClose.Run(ctx, req.OrgID, req.PortfolioID, asOfDate, req.RunContextID)
	if err != nil {
		return fmt.Errorf("组合 %d 日终处理失败: %w", req.PortfolioID, err)
	}

	h.logger.InfoContext(ctx, "日终处理请求完成",
		"portfolio_id", result.PortfolioID,
		"run_id", result.ValuationRunID,
		"status", result.ValuationStatus,
		"errors", len(result.Errors))
	return nil
}
