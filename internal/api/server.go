package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sundaiclub/verifAI/internal/api/middleware"
	"github.com/sundaiclub/verifAI/internal/config"
	"github.com/sundaiclub/verifAI/internal/ingest"
	"github.com/sundaiclub/verifAI/internal/model"
	"github.com/sundaiclub/verifAI/internal/pkg/dedup"
	"github.com/sundaiclub/verifAI/internal/pkg/metrics"
	"github.com/sundaiclub/verifAI/internal/pkg/ratelimit"
	"github.com/sundaiclub/verifAI/internal/warehouse"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有仓库网关、Redis 客户端以及 Gin 路由引擎。
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	rdb      *redis.Client
	router   *gin.Engine
	gw       *warehouse.Gateway
	store    GuestStore
	ingestor *ingest.Ingestor
	deduper  Deduper
	limiter  middleware.Limiter
}

// GuestStore 是处理器访问仓库的唯一入口，与具体网关解耦便于测试。
type GuestStore interface {
	Insert(ctx context.Context, rows []model.GuestRecord) (int64, error)
	Exists(ctx context.Context, field, value, date string) (bool, error)
	UpdateAttendance(ctx context.Context, field, value, date, attendance string) (int64, error)
	Events(ctx context.Context) ([]model.EventStat, error)
	StatsForDate(ctx context.Context, date string) (model.EventStat, error)
	Columns(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

type Deduper interface {
	IsDuplicate(ctx context.Context, fingerprint string) (bool, error)
	Release(ctx context.Context, fingerprint string) error
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接仓库并执行自动迁移
// 2. 连接 Redis（上传去重与限流）
// 3. 初始化 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	gw, err := warehouse.New(warehouse.Config{
		DSN:   cfg.MySQL.DSN,
		Table: cfg.Warehouse.Table,
	})
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	deduper := dedup.NewDeduplicator(rdb, time.Duration(cfg.App.DedupWindow)*time.Second)
	limiter := ratelimit.NewRedisLimiter(rdb, logger, "verifai:ratelimit:upload", cfg.App.UploadRateLimit, cfg.App.UploadRateBurst)

	metrics.InitMetrics()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(cors.New(corsConfig(cfg.App.AllowOrigins)))

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		rdb:      rdb,
		router:   r,
		gw:       gw,
		store:    gw,
		ingestor: ingest.NewIngestor(gw, logger),
		deduper:  deduper,
		limiter:  limiter,
	}
	s.registerRoutes()
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭仓库与 Redis 连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.gw != nil {
		if err := s.gw.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// corsConfig 按配置构造 CORS 策略；"*" 表示对所有来源开放。
func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/healthz", s.handleHealthz)

	upload := s.router.Group("/")
	upload.Use(middleware.RateLimit(s.limiter, s.logger))
	upload.POST("/upload-csv/", s.handleUploadCSV)

	s.router.POST("/verify/", s.handleVerify)
	s.router.GET("/columns/", s.handleColumns)
	s.router.POST("/update-attendance/", s.handleUpdateAttendance)
	s.router.GET("/events/", s.handleEvents)
	s.router.GET("/attendance/:date", s.handleAttendanceStats)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.store == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	if err := s.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
