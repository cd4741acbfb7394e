package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/portfoliovaluation/internal/analytics/application"
	"github.com/wyfcoding/portfoliovaluation/internal/analytics/domain"
	portfoliodomain "github.com/wyfcoding/portfoliovaluation/internal/portfolio/domain"
)

// Handler 估值服务 HTTP 接口
type Handler struct {
	runs       *application.RunService
	dailyClose *application.DailyCloseService
}

// NewHandler 创建接口处理器
func NewHandler(runs *application.RunService, dailyClose *application.DailyCloseService) *Handler {
	return &Handler{runs: runs, dailyClose: dailyClose}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	runs := r.Group("/runs")
	{
		runs.POST("", h.CreateRun)
		runs.GET("", h.ListRuns)
		runs.GET("/official", h.GetLatestOfficial)
		runs.GET("/:id", h.GetRun)
		runs.POST("/:id/execute", h.ExecuteRun)
		runs.POST("/:id/official", h.MarkOfficial)
		runs.DELETE("/:id/official", h.UnmarkOfficial)
		runs.GET("/:id/exposures", h.GetExposures)
		runs.GET("/:id/concentrations", h.GetConcentrations)
		runs.GET("/:id/data-quality", h.GetDataQuality)
	}
	r.POST("/daily-close", h.RunDailyClose)
}

type createRunRequest struct {
	OrgID        uint                   `json:"org_id" binding:"required"`
	PortfolioID  uint                   `json:"portfolio_id" binding:"required"`
	AsOfDate     string                 `json:"as_of_date" binding:"required"`
	Policy       domain.ValuationPolicy `json:"valuation_policy"`
	RunContextID string                 `json:"run_context_id"`
	CreatedBy    string                 `json:"created_by"`
	Execute      bool                   `json:"execute"`
}

// CreateRun 创建估值执行。Execute 为 true 时创建后立即执行。
func (h *Handler) CreateRun(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	asOfDate, err := time.Parse("2006-01-02", req.AsOfDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid as_of_date, expected YYYY-MM-DD"})
		return
	}

	run, created, err := h.runs.GetOrCreate(c.Request.Context(), application.CreateRunCommand{
		OrgID:        req.OrgID,
		PortfolioID:  req.PortfolioID,
		AsOfDate:     asOfDate,
		Policy:       req.Policy,
		RunContextID: req.RunContextID,
		CreatedBy:    req.CreatedBy,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	if req.Execute && run.Status != domain.RunStatusSuccess {
		if err := h.runs.Execute(c.Request.Context(), run.ID); err != nil {
			// 执行失败时终态已落库，把最新状态带回给调用方
			if latest, getErr := h.runs.GetRun(c.Request.Context(), run.ID); getErr == nil {
				run = latest
			}
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "run": run})
			return
		}
		if latest, err := h.runs.GetRun(c.Request.Context(), run.ID); err == nil {
			run = latest
		}
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"run": run, "created": created})
}

// ExecuteRun 执行估值
func (h *Handler) ExecuteRun(c *gin.Context) {
	runID, ok := h.runID(c)
	if !ok {
		return
	}
	if err := h.runs.Execute(c.Request.Context(), runID); err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		run, getErr := h.runs.GetRun(c.Request.Context(), runID)
		if getErr == nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "run": run})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	run, err := h.runs.GetRun(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetRun 查询执行详情
func (h *Handler) GetRun(c *gin.Context) {
	runID, ok := h.runID(c)
	if !ok {
		return
	}
	run, err := h.runs.GetRun(c.Request.Context(), runID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListRuns 查询组合某估值日的全部执行
func (h *Handler) ListRuns(c *gin.Context) {
	orgID, err1 := strconv.ParseUint(c.Query("org_id"), 10, 64)
	portfolioID, err2 := strconv.ParseUint(c.Query("portfolio_id"), 10, 64)
	asOfDate, err3 := time.Parse("2006-01-02", c.Query("as_of_date"))
	if err1 != nil || err2 != nil || err3 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "org_id, portfolio_id and as_of_date are required"})
		return
	}
	runs, err := h.runs.ListRuns(c.Request.Context(), uint(orgID), uint(portfolioID), asOfDate)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GetLatestOfficial 查询组合某估值日的正式执行
func (h *Handler) GetLatestOfficial(c *gin.Context) {
	orgID, err1 := strconv.ParseUint(c.Query("org_id"), 10, 64)
	portfolioID, err2 := strconv.ParseUint(c.Query("portfolio_id"), 10, 64)
	asOfDate, err3 := time.Parse("2006-01-02", c.Query("as_of_date"))
	if err1 != nil || err2 != nil || err3 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "org_id, portfolio_id and as_of_date are required"})
		return
	}
	run, err := h.runs.LatestOfficial(c.Request.Context(), uint(orgID), uint(portfolioID), asOfDate)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

type officialRequest struct {
	Reason string `json:"reason" binding:"required"`
	Actor  string `json:"actor"`
}

// MarkOfficial 把执行标记为正式结果
func (h *Handler) MarkOfficial(c *gin.Context) {
	runID, ok := h.runID(c)
	if !ok {
		return
	}
	var req officialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.runs.MarkOfficial(c.Request.Context(), application.MarkOfficialCommand{
		RunID:  runID,
		Reason: req.Reason,
		Actor:  req.Actor,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "run marked official"})
}

// UnmarkOfficial 摘除执行的正式标记
func (h *Handler) UnmarkOfficial(c *gin.Context) {
	runID, ok := h.runID(c)
	if !ok {
		return
	}
	var req officialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.runs.UnmarkOfficial(c.Request.Context(), application.MarkOfficialCommand{
		RunID:  runID,
		Reason: req.Reason,
		Actor:  req.Actor,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "official flag removed"})
}

// GetExposures 查询执行的全维度敞口报告
func (h *Handler) GetExposures(c *gin.Context) {
	runID, ok := h.runID(c)
	if !ok {
		return
	}
	report, err := h.runs.Exposures(c.Request.Context(), runID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetConcentrations 查询执行某维度的前 N 大集中度
func (h *Handler) GetConcentrations(c *gin.Context) {
	runID, ok := h.runID(c)
	if !ok {
		return
	}
	dimension := domain.DimensionType(c.DefaultQuery("dimension", string(domain.DimensionIssuer)))
	topN, err := strconv.Atoi(c.DefaultQuery("top_n", "5"))
	if err != nil || topN <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "top_n must be a positive integer"})
		return
	}
	entries, err := h.runs.Concentrations(c.Request.Context(), runID, dimension, topN)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dimension": dimension, "top_n": topN, "concentrations": entries})
}

// GetDataQuality 查询执行的结果质量汇总
func (h *Handler) GetDataQuality(c *gin.Context) {
	runID, ok := h.runID(c)
	if !ok {
		return
	}
	summary, err := h.runs.DataQuality(c.Request.Context(), runID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type dailyCloseRequest struct {
	OrgID        uint   `json:"org_id" binding:"required"`
	PortfolioID  uint   `json:"portfolio_id" binding:"required"`
	AsOfDate     string `json:"as_of_date" binding:"required"`
	RunContextID string `json:"run_context_id"`
}

// RunDailyClose 执行组合日终处理
func (h *Handler) RunDailyClose(c *gin.Context) {
	var req dailyCloseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	asOfDate, err := time.Parse("2006-01-02", req.AsOfDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid as_of_date, expected YYYY-MM-DD"})
		return
	}
	result, err := h.dailyClose.Run(c.Request.Context(), req.OrgID, req.PortfolioID, asOfDate, req.RunContextID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) runID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return 0, false
	}
	return uint(id), true
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrRunNotFound),
		errors.Is(err, portfoliodomain.ErrPortfolioNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrRunNotSuccessful),
		errors.Is(err, domain.ErrUnknownPolicy),
		errors.Is(err, domain.ErrUnsupportedDimension):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrDuplicateRun):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
