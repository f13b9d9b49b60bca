// Package httpapi serves the published leaderboard and vendor grades over
// plain HTTP for web clients.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/solargrade/solargrade-server/internal/grade"
	"github.com/solargrade/solargrade-server/internal/service"
	"github.com/solargrade/solargrade-server/pkg/cache"
	"go.uber.org/zap"
)

const (
	defaultCacheTTL   = 10 * time.Minute
	defaultReqTimeout = 10 * time.Second
	healthTimeout     = 2 * time.Second
)

type RankingReader interface {
	GetRankings(ctx context.Context, filter service.RankFilter) (service.RankingSnapshot, error)
	GetVendorGrade(ctx context.Context, vendorID string) (service.VendorAggregate, error)
}

// HealthCheck reports a dependency as unhealthy by returning an error.
type HealthCheck func(ctx context.Context) error

type RankingsController struct {
	reader RankingReader
	loader *cache.Loader
	logger *zap.Logger
	checks map[string]HealthCheck
}

func NewRankingsController(reader RankingReader, c cache.Cacher, logger *zap.Logger, ttl time.Duration) *RankingsController {
	if reader == nil {
		panic("nil RankingReader provided to NewRankingsController")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http-handler")
	return &RankingsController{
		reader: reader,
		loader: cache.NewLoader(c, cache.WithTTL(ttl), cache.WithLoaderLogger(logger)),
		logger: logger,
		checks: map[string]HealthCheck{},
	}
}

// AddHealthCheck registers a dependency probed by GET /healthz.
func (rc *RankingsController) AddHealthCheck(name string, check HealthCheck) {
	rc.checks[name] = check
}

func (rc *RankingsController) RegisterRoutes(engine *gin.Engine) {
	api := engine.Group("/api")
	api.GET("/rankings", rc.getRankings)
	api.GET("/vendors/:id/grade", rc.getVendorGrade)

	engine.GET("/healthz", rc.healthz)
}

func (rc *RankingsController) getRankings(g *gin.Context) {
	filter := service.RankFilter{VendorType: service.NormalizeVendorType(g.Query("vendorType"))}
	if raw := strings.TrimSpace(g.Query("minGrade")); raw != "" {
		minGrade, err := grade.Parse(raw)
		if err != nil || !minGrade.Rated() {
			g.JSON(http.StatusBadRequest, ErrorResponse{Code: "INVALID_GRADE_FILTER", Error: "minGrade must be one of A+, A, B+, B, C+, C, D+, D, F"})
			return
		}
		filter.MinGrade = minGrade
	}

	ctx, cancel := context.WithTimeout(g.Request.Context(), defaultReqTimeout)
	defer cancel()

	snapshot, err := cache.Load(ctx, rc.loader, service.RankingsCacheKey(filter),
		func(fetchCtx context.Context) (service.RankingSnapshot, error) {
			return rc.reader.GetRankings(fetchCtx, filter)
		})
	if err != nil {
		rc.handleError(g, "getRankings", err)
		return
	}

	g.JSON(http.StatusOK, transformRankings(snapshot))
}

func (rc *RankingsController) getVendorGrade(g *gin.Context) {
	id := strings.TrimSpace(g.Param("id"))
	if id == "" {
		g.JSON(http.StatusBadRequest, ErrorResponse{Code: "INVALID_VENDOR_ID", Error: "vendor id is required"})
		return
	}

	ctx, cancel := context.WithTimeout(g.Request.Context(), defaultReqTimeout)
	defer cancel()

	agg, err := cache.Load(ctx, rc.loader, service.VendorGradeCacheKey(id),
		func(fetchCtx context.Context) (service.VendorAggregate, error) {
			return rc.reader.GetVendorGrade(fetchCtx, id)
		})
	if err != nil {
		rc.handleError(g, "getVendorGrade", err)
		return
	}

	g.JSON(http.StatusOK, transformVendorGrade(agg))
}

func (rc *RankingsController) healthz(g *gin.Context) {
	ctx, cancel := context.WithTimeout(g.Request.Context(), healthTimeout)
	defer cancel()

	failing := gin.H{}
	for name, check := range rc.checks {
		if err := check(ctx); err != nil {
			rc.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			failing[name] = err.Error()
		}
	}
	if len(failing) > 0 {
		g.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "failing": failing})
		return
	}
	g.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (rc *RankingsController) handleError(g *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		rc.logger.Warn("request timeout", zap.String("op", op))
		g.JSON(http.StatusGatewayTimeout, ErrorResponse{Code: "TIMEOUT", Error: "request timed out"})
	case errors.Is(err, service.ErrInvalidGradeFilter):
		g.JSON(http.StatusBadRequest, ErrorResponse{Code: "INVALID_GRADE_FILTER", Error: err.Error()})
	case errors.Is(err, service.ErrNoSnapshot):
		g.JSON(http.StatusNotFound, ErrorResponse{Code: "NO_SNAPSHOT", Error: "no rankings published yet"})
	case errors.Is(err, service.ErrVendorNotFound):
		g.JSON(http.StatusNotFound, ErrorResponse{Code: "VENDOR_NOT_FOUND", Error: "vendor not found"})
	case errors.Is(err, service.ErrStorageFailure):
		rc.logger.Error("storage failure", zap.String("op", op), zap.Error(err))
		g.JSON(http.StatusInternalServerError, ErrorResponse{Code: "STORAGE_FAILURE", Error: "database error"})
	default:
		rc.logger.Error("unexpected error", zap.String("op", op), zap.Error(err))
		g.JSON(http.StatusInternalServerError, ErrorResponse{Code: "INTERNAL", Error: "internal error"})
	}
}
