package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wyfcoding/portfoliovaluation/internal/referencedata/application"
	"github.com/wyfcoding/portfoliovaluation/internal/referencedata/domain"
)

// Handler 参考数据服务 HTTP 接口
type Handler struct {
	sources       *application.SourceService
	canonicalizer *application.CanonicalizerService
	fxRepo        domain.FXRateRepository
	priceRepo     domain.PriceRepository
	curveRepo     domain.YieldCurveRepository
	indexRepo     domain.IndexValueRepository
}

// NewHandler 创建接口处理器
func NewHandler(
	sources *application.SourceService,
	canonicalizer *application.CanonicalizerService,
	fxRepo domain.FXRateRepository,
	priceRepo domain.PriceRepository,
	curveRepo domain.YieldCurveRepository,
	indexRepo domain.IndexValueRepository,
) *Handler {
	return &Handler{
		sources:       sources,
		canonicalizer: canonicalizer,
		fxRepo:        fxRepo,
		priceRepo:     priceRepo,
		curveRepo:     curveRepo,
		indexRepo:     indexRepo,
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	sources := r.Group("/sources")
	{
		sources.POST("", h.RegisterSource)
		sources.POST("/sync", h.SyncSources)
		sources.GET("", h.ListSources)
		sources.PUT("/:code/active", h.SetSourceActive)
		sources.PUT("/overrides", h.SetOverride)
		sources.DELETE("/overrides", h.RemoveOverride)
	}

	observations := r.Group("/observations")
	{
		observations.POST("/fx-rates", h.IngestFXObservation)
		observations.POST("/prices", h.IngestPriceObservation)
		observations.POST("/yield-curves", h.IngestCurveObservation)
		observations.POST("/index-values", h.IngestIndexObservation)
	}

	canonicalize := r.Group("/canonicalize")
	{
		canonicalize.POST("/fx-rates", h.CanonicalizeFXRates)
		canonicalize.POST("/prices", h.CanonicalizePrices)
		canonicalize.POST("/yield-curves", h.CanonicalizeYieldCurves)
		canonicalize.POST("/index-values", h.CanonicalizeIndexValues)
	}

	r.GET("/fx-rates", h.GetFXRate)
	r.GET("/yield-curves/:code", h.ListYieldCurve)
}

// RegisterSource 登记行情来源
func (h *Handler) RegisterSource(c *gin.Context) {
	var cmd application.RegisterSourceCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	source, err := h.sources.Register(c.Request.Context(), cmd)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, source)
}

// SyncSources 批量同步来源目录
func (h *Handler) SyncSources(c *gin.Context) {
	var req struct {
		Sources []application.SyncSourceCommand `json:"sources" binding:"required,dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	count, err := h.sources.Sync(c.Request.Context(), req.Sources)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": count})
}

// ListSources 查询全部来源
func (h *Handler) ListSources(c *gin.Context) {
	sources, err := h.sources.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

// SetSourceActive 启用或停用来源
func (h *Handler) SetSourceActive(c *gin.Context) {
	var req struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.sources.SetActive(c.Request.Context(), c.Param("code"), *req.IsActive)
	if errors.Is(err, domain.ErrSourceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "source updated"})
}

// SetOverride 设置组织级优先级覆盖
func (h *Handler) SetOverride(c *gin.Context) {
	var cmd application.SetOverrideCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.sources.SetOverride(c.Request.Context(), cmd)
	switch {
	case errors.Is(err, domain.ErrSourceNotFound), errors.Is(err, domain.ErrInvalidDataType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "override saved"})
	}
}

// RemoveOverride 删除组织级优先级覆盖
func (h *Handler) RemoveOverride(c *gin.Context) {
	var req struct {
		OrgID      uint            `json:"org_id" binding:"required"`
		DataType   domain.DataType `json:"data_type" binding:"required"`
		SourceCode string          `json:"source_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.sources.RemoveOverride(c.Request.Context(), req.OrgID, req.DataType, req.SourceCode); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "override removed"})
}

type fxObservationRequest struct {
	BaseCurrency  string          `json:"base_currency" binding:"required"`
	QuoteCurrency string          `json:"quote_currency" binding:"required"`
	Date          string          `json:"date" binding:"required"`
	RateType      string          `json:"rate_type" binding:"required"`
	SourceCode    string          `json:"source_code" binding:"required"`
	Revision      int             `json:"revision"`
	Rate          decimal.Decimal `json:"rate" binding:"required"`
	ObservedAt    time.Time       `json:"observed_at"`
}

// IngestFXObservation 落地一条汇率观测值
func (h *Handler) IngestFXObservation(c *gin.Context) {
	var req fxObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	obs := &domain.FXRateObservation{
		BaseCurrency:  req.BaseCurrency,
		QuoteCurrency: req.QuoteCurrency,
		Date:          date,
		RateType:      domain.FXRateType(req.RateType),
		SourceCode:    req.SourceCode,
		Revision:      req.Revision,
		Rate:          req.Rate,
		ObservedAt:    observedAtOrNow(req.ObservedAt),
	}
	if err := h.fxRepo.SaveObservation(c.Request.Context(), obs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, obs)
}

type priceObservationRequest struct {
	InstrumentID uint            `json:"instrument_id" binding:"required"`
	Date         string          `json:"date" binding:"required"`
	PriceType    string          `json:"price_type"`
	SourceCode   string          `json:"source_code" binding:"required"`
	Revision     int             `json:"revision"`
	Price        decimal.Decimal `json:"price" binding:"required"`
	Currency     string          `json:"currency" binding:"required"`
	ObservedAt   time.Time       `json:"observed_at"`
}

// IngestPriceObservation 落地一条价格观测值
func (h *Handler) IngestPriceObservation(c *gin.Context) {
	var req priceObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	priceType := req.PriceType
	if priceType == "" {
		priceType = "close"
	}
	obs := &domain.PriceObservation{
		InstrumentID: req.InstrumentID,
		Date:         date,
		PriceType:    priceType,
		SourceCode:   req.SourceCode,
		Revision:     req.Revision,
		Price:        req.Price,
		Currency:     req.Currency,
		ObservedAt:   observedAtOrNow(req.ObservedAt),
	}
	if err := h.priceRepo.SaveObservation(c.Request.Context(), obs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, obs)
}

type curveObservationRequest struct {
	CurveCode  string          `json:"curve_code" binding:"required"`
	TenorDays  int             `json:"tenor_days" binding:"required"`
	Date       string          `json:"date" binding:"required"`
	SourceCode string          `json:"source_code" binding:"required"`
	Revision   int             `json:"revision"`
	YieldValue decimal.Decimal `json:"yield_value" binding:"required"`
	ObservedAt time.Time       `json:"observed_at"`
}

// IngestCurveObservation 落地一条曲线点观测值
func (h *Handler) IngestCurveObservation(c *gin.Context) {
	var req curveObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	obs := &domain.YieldCurvePointObservation{
		CurveCode:  req.CurveCode,
		TenorDays:  req.TenorDays,
		Date:       date,
		SourceCode: req.SourceCode,
		Revision:   req.Revision,
		YieldValue: req.YieldValue,
		ObservedAt: observedAtOrNow(req.ObservedAt),
	}
	if err := h.curveRepo.SaveObservation(c.Request.Context(), obs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, obs)
}

type indexObservationRequest struct {
	IndexCode  string          `json:"index_code" binding:"required"`
	Date       string          `json:"date" binding:"required"`
	SourceCode string          `json:"source_code" binding:"required"`
	Revision   int             `json:"revision"`
	Value      decimal.Decimal `json:"value" binding:"required"`
	ObservedAt time.Time       `json:"observed_at"`
}

// IngestIndexObservation 落地一条指数观测值
func (h *Handler) IngestIndexObservation(c *gin.Context) {
	var req indexObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	obs := &domain.IndexValueObservation{
		IndexCode:  req.IndexCode,
		Date:       date,
		SourceCode: req.SourceCode,
		Revision:   req.Revision,
		Value:      req.Value,
		ObservedAt: observedAtOrNow(req.ObservedAt),
	}
	if err := h.indexRepo.SaveObservation(c.Request.Context(), obs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, obs)
}

type canonicalizeRequest struct {
	OrgID     uint   `json:"org_id"`
	AsOf      string `json:"as_of"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`

	// 可选键过滤，空值表示全量
	BaseCurrency  string `json:"base_currency"`
	QuoteCurrency string `json:"quote_currency"`
	InstrumentID  uint   `json:"instrument_id"`
	PriceType     string `json:"price_type"`
	CurveCode     string `json:"curve_code"`
	IndexCode     string `json:"index_code"`
}

func (r canonicalizeRequest) toCommand() (application.CanonicalizeCommand, error) {
	cmd := application.CanonicalizeCommand{
		OrgID:         r.OrgID,
		BaseCurrency:  r.BaseCurrency,
		QuoteCurrency: r.QuoteCurrency,
		InstrumentID:  r.InstrumentID,
		PriceType:     r.PriceType,
		CurveCode:     r.CurveCode,
		IndexCode:     r.IndexCode,
	}
	var err error
	if r.AsOf != "" {
		if cmd.Range.AsOf, err = parseDate(r.AsOf); err != nil {
			return cmd, err
		}
	}
	if r.StartDate != "" {
		if cmd.Range.Start, err = parseDate(r.StartDate); err != nil {
			return cmd, err
		}
	}
	if r.EndDate != "" {
		if cmd.Range.End, err = parseDate(r.EndDate); err != nil {
			return cmd, err
		}
	}
	return cmd, nil
}

func (h *Handler) canonicalize(c *gin.Context, run func(ctx *gin.Context, cmd application.CanonicalizeCommand) (*domain.CanonicalizeResult, error)) {
	var req canonicalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd, err := req.toCommand()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := run(c, cmd)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// CanonicalizeFXRates 正式化汇率
func (h *Handler) CanonicalizeFXRates(c *gin.Context) {
	h.canonicalize(c, func(ctx *gin.Context, cmd application.CanonicalizeCommand) (*domain.CanonicalizeResult, error) {
		return h.canonicalizer.CanonicalizeFXRates(ctx.Request.Context(), cmd)
	})
}

// CanonicalizePrices 正式化价格
func (h *Handler) CanonicalizePrices(c *gin.Context) {
	h.canonicalize(c, func(ctx *gin.Context, cmd application.CanonicalizeCommand) (*domain.CanonicalizeResult, error) {
		return h.canonicalizer.CanonicalizePrices(ctx.Request.Context(), cmd)
	})
}

// CanonicalizeYieldCurves 正式化收益率曲线
func (h *Handler) CanonicalizeYieldCurves(c *gin.Context) {
	h.canonicalize(c, func(ctx *gin.Context, cmd application.CanonicalizeCommand) (*domain.CanonicalizeResult, error) {
		return h.canonicalizer.CanonicalizeYieldCurves(ctx.Request.Context(), cmd)
	})
}

// CanonicalizeIndexValues 正式化指数点位
func (h *Handler) CanonicalizeIndexValues(c *gin.Context) {
	h.canonicalize(c, func(ctx *gin.Context, cmd application.CanonicalizeCommand) (*domain.CanonicalizeResult, error) {
		return h.canonicalizer.CanonicalizeIndexValues(ctx.Request.Context(), cmd)
	})
}

// GetFXRate 查询正式汇率
func (h *Handler) GetFXRate(c *gin.Context) {
	base := c.Query("base")
	quote := c.Query("quote")
	dateStr := c.Query("date")
	if base == "" || quote == "" || dateStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "base, quote and date are required"})
		return
	}
	date, err := parseDate(dateStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rate, err := h.fxRepo.GetCanonical(c.Request.Context(), base, quote, date, domain.FXRateTypeMid)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "fx rate not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rate)
}

// ListYieldCurve 查询某收益率曲线某日的全部正式曲线点
func (h *Handler) ListYieldCurve(c *gin.Context) {
	dateStr := c.Query("date")
	if dateStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date is required"})
		return
	}
	date, err := parseDate(dateStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	points, err := h.curveRepo.ListCanonical(c.Request.Context(), c.Param("code"), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"curve_code": c.Param("code"), "date": dateStr, "points": points})
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func observedAtOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
