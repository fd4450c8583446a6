package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"deskos-auth/internal/domain"
	"deskos-auth/internal/repository"
)

const (
	statsCacheKey = "auth:admin:stats"
	statsCacheTTL = 30 * time.Second
)

// AdminService sirve las vistas de administración: métricas agregadas,
// listado de cuentas y actividad reciente.
type AdminService struct {
	logger   *zap.Logger
	accounts repository.AccountRepository
	feed     ActivityFeed
	cache    *redis.Client
}

func NewAdminService(logger *zap.Logger, accounts repository.AccountRepository, feed ActivityFeed, cache *redis.Client) *AdminService {
	if feed == nil {
		feed = NewMemoryActivityFeed(defaultFeedSize)
	}
	return &AdminService{
		logger:   logger,
		accounts: accounts,
		feed:     feed,
		cache:    cache,
	}
}

// AdminStats replica la forma del panel original: el total real sale de la
// base; activos y uptime son figuras sintéticas del dashboard.
type AdminStats struct {
	TotalUsers     int64  `json:"totalUsers"`
	ActiveUsers    int64  `json:"activeUsers"`
	SecurityAlerts int64  `json:"securityAlerts"`
	SystemUptime   string `json:"systemUptime"`
}

func (s *AdminService) Stats(ctx context.Context) (AdminStats, error) {
	if cached, ok := s.cachedStats(ctx); ok {
		return cached, nil
	}

	users, err := s.accounts.CountByRole(ctx, domain.RoleUser)
	if err != nil {
		return AdminStats{}, err
	}
	admins, err := s.accounts.CountByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return AdminStats{}, err
	}

	total := users + admins
	stats := AdminStats{
		TotalUsers:     total,
		ActiveUsers:    total/10 + 1,
		SecurityAlerts: 0,
		SystemUptime:   "99.9%",
	}
	s.storeStats(ctx, stats)
	return stats, nil
}

// ListAccounts devuelve usuarios y administradores mezclados, más recientes
// primero. Los campos sensibles nunca se serializan (json:"-" en el modelo).
func (s *AdminService) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.accounts.ListAll(ctx)
}

func (s *AdminService) RecentActivity(ctx context.Context, limit int) ([]ActivityEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.feed.Recent(ctx, limit)
}

func (s *AdminService) cachedStats(ctx context.Context) (AdminStats, bool) {
	if s.cache == nil {
		return AdminStats{}, false
	}
	raw, err := s.cache.Get(ctx, statsCacheKey).Result()
	if err != nil {
		return AdminStats{}, false
	}
	var stats AdminStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return AdminStats{}, false
	}
	return stats, true
}

func (s *AdminService) storeStats(ctx context.Context, stats AdminStats) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, statsCacheKey, payload, statsCacheTTL).Err(); err != nil {
		s.logger.Warn("stats cache write failed", zap.Error(err))
	}
}
