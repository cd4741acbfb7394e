package mysql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/portfoliovaluation/internal/analytics/domain"
	refdomain "github.com/wyfcoding/portfoliovaluation/internal/referencedata/domain"
	"github.com/wyfcoding/portfoliovaluation/pkg/cache"
	"github.com/wyfcoding/portfoliovaluation/pkg/db"
)

// 正式汇率一经重算会整表覆盖当日记录，缓存给一个较短的保鲜期即可
const fxCacheTTL = 10 * time.Minute

// FXRateReader 正式汇率读取器。直查 MySQL 正式表，前置 Redis 读穿缓存。
// cache 为 nil 时退化为纯数据库读取。
type FXRateReader struct {
	db     *db.DB
	cache  *cache.RedisCache
	logger *slog.Logger
}

// NewFXRateReader 创建正式汇率读取器
func NewFXRateReader(database *db.DB, redisCache *cache.RedisCache, logger *slog.Logger) *FXRateReader {
	return &FXRateReader{db: database, cache: redisCache, logger: logger}
}

// FindPair 双向查找币种对当日的正式 MID 汇率。
// 先查 from/to，未命中再查 to/from，两个方向都没有时返回 ErrFXRateNotFound。
func (r *FXRateReader) FindPair(ctx context.Context, fromCurrency, toCurrency string, date time.Time) (*refdomain.FXRate, error) {
	cacheKey := fmt.Sprintf("fx:mid:%s:%s:%s", fromCurrency, toCurrency, date.Format("2006-01-02"))
	if r.cache != nil {
		var cached refdomain.FXRate
		err := r.cache.Get(ctx, cacheKey, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.logger.WarnContext(ctx, "汇率缓存读取失败，回源数据库", "key", cacheKey, "error", err)
		}
	}

	rate, err := r.queryPair(ctx, fromCurrency, toCurrency, date)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		rate, err = r.queryPair(ctx, toCurrency, fromCurrency, date)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrFXRateNotFound
	}
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, cacheKey, rate, fxCacheTTL); err != nil {
			r.logger.WarnContext(ctx, "汇率缓存写入失败", "key", cacheKey, "error", err)
		}
	}
	return rate, nil
}

func (r *FXRateReader) queryPair(ctx context.Context, base, quote string, date time.Time) (*refdomain.FXRate, error) {
	var rate refdomain.FXRate
	err := r.db.WithContext(ctx).
		Where("base_currency = ? AND quote_currency = ? AND date = ? AND rate_type = ?",
			base, quote, date.Format("2006-01-02"), refdomain.FXRateTypeMid).
		First(&rate).Error
	if err != nil {
		return nil, err
	}
	return &rate, nil
}
