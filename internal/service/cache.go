// CacheService: LRU-кэш записей соответствия с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/signalfire/content-compliance/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cc_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш записей соответствия.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cc_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша записей соответствия.",
	})
)

// CacheService: кэш записей соответствия по ID контента.
// Кэш локален для экземпляра; любая запись в compliance_records
// сбрасывает ключ синхронно.
type CacheService struct {
	cache *expirable.LRU[int64, *model.ComplianceRecord]
}

// NewCacheService создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	return &CacheService{
		cache: expirable.NewLRU[int64, *model.ComplianceRecord](maxSize, nil, ttl),
	}
}

// Get возвращает копию записи из кэша.
// Возвращает (запись, true) при hit или (nil, false) при miss.
func (c *CacheService) Get(contentID int64) (*model.ComplianceRecord, bool) {
	val, ok := c.cache.Get(contentID)
	if ok {
		cacheHitsTotal.Inc()
		cp := *val
		return &cp, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись в кэше.
func (c *CacheService) Set(contentID int64, record *model.ComplianceRecord) {
	cp := *record
	c.cache.Add(contentID, &cp)
}

// Delete удаляет запись из кэша.
func (c *CacheService) Delete(contentID int64) {
	c.cache.Remove(contentID)
}

// Len возвращает количество записей в кэше.
func (c *CacheService) Len() int {
	return c.cache.Len()
}
