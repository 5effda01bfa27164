package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"uptask/internal/api/auth"
	"uptask/internal/api/middleware"
	"uptask/internal/config"
	"uptask/internal/pkg/cooldown"
	"uptask/internal/pkg/credential"
	"uptask/internal/pkg/notify"
	"uptask/internal/pkg/queue"
	"uptask/internal/pkg/ratelimit"
	"uptask/internal/service"
	"uptask/internal/store"
	"uptask/internal/store/gormstore"
	"uptask/internal/store/mongostore"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const queueDrainTimeout = 30 * time.Second

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有存储、Redis 客户端、邮件队列以及 Gin 路由引擎。
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    store.Store
	rdb      *redis.Client
	queue    *queue.Queue
	router   *gin.Engine
	issuer   *credential.Issuer
	limiter  middleware.Limiter
	auth     *auth.Handler
	projects *service.ProjectService
}

// Deps 是 Server 的外部依赖，Redis、Queue 与 Throttle 可以为 nil。
type Deps struct {
	Store    store.Store
	Redis    *redis.Client
	Queue    *queue.Queue
	Notifier service.Notifier
	Throttle service.Throttle
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 按配置连接 MySQL 或 MongoDB
// 2. 连接 Redis（可选，用于登录限流与邮件冷却）
// 3. 启动邮件发送队列
// 4. 初始化 Gin 路由引擎
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	} else {
		logger.Warn("redis not configured, login rate limit and email cooldown disabled")
	}

	q := queue.New(logger, cfg.App.NotifyWorkers, cfg.App.NotifyQueueCapacity)
	q.Start(context.Background())

	mailer := notify.NewEmailNotifier(&cfg.Email, cfg.App.FrontendURL, logger)
	dispatcher := notify.NewDispatcher(mailer, q, logger)

	gin.SetMode(gin.ReleaseMode)
	return New(cfg, logger, Deps{
		Store:    st,
		Redis:    rdb,
		Queue:    q,
		Notifier: dispatcher,
		Throttle: cooldown.New(rdb, cfg.Security.EmailCooldown),
	}), nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverMongo:
		st, err := mongostore.Open(ctx, cfg.Database.URL, cfg.Database.Name)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		st, err := gormstore.OpenMySQL(cfg.Database.URL, gormstore.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}

// New 使用已经建立的依赖组装服务器。
func New(cfg *config.Config, logger *slog.Logger, deps Deps) *Server {
	issuer := credential.NewIssuer(cfg.Security.JWTSecret, cfg.Security.JWTTTL)
	authSvc := service.NewAuthService(deps.Store, issuer, deps.Notifier, deps.Throttle, cfg.Security.TokenTTL, logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		store:    deps.Store,
		rdb:      deps.Redis,
		queue:    deps.Queue,
		router:   r,
		issuer:   issuer,
		limiter:  ratelimit.NewRedisLimiter(deps.Redis, logger, "", cfg.Security.LoginRate, cfg.Security.LoginBurst),
		auth:     auth.NewHandler(authSvc, logger),
		projects: service.NewProjectService(deps.Store, logger),
	}
	s.registerRoutes()
	return s
}

// Router 返回带 CORS 的 HTTP 处理器。
func (s *Server) Router() http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins(s.cfg.App.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", middleware.RequestIDHeader}),
		handlers.ExposedHeaders([]string{middleware.RequestIDHeader}),
		handlers.AllowCredentials(),
	)(s.router)
}

// Close 排空邮件队列并关闭存储与缓存连接。
func (s *Server) Close() error {
	var errs []error
	if s.queue != nil {
		if err := s.queue.Shutdown(queueDrainTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	root := s.router.Group("/api")
	requireAuth := middleware.AuthMiddleware(s.issuer, s.store)

	authPublic := root.Group("/auth")
	authPrivate := root.Group("/auth", requireAuth)
	s.auth.Register(authPublic, authPrivate, middleware.RateLimit(s.limiter, "login", s.logger))

	projects := root.Group("/projects", requireAuth)
	projects.POST("", s.handleCreateProject)
	projects.GET("", s.handleListProjects)
	projects.GET("/:projectId", s.withProject(s.handleGetProject))
	projects.PUT("/:projectId", s.withProject(s.handleUpdateProject))
	projects.DELETE("/:projectId", s.withProject(s.handleDeleteProject))

	projects.POST("/:projectId/tasks", s.withProject(s.handleCreateTask))
	projects.GET("/:projectId/tasks", s.withProject(s.handleListTasks))
	projects.GET("/:projectId/tasks/:taskId", s.withTask(s.handleGetTask))
	projects.PUT("/:projectId/tasks/:taskId", s.withTask(s.handleUpdateTask))
	projects.DELETE("/:projectId/tasks/:taskId", s.withTask(s.handleDeleteTask))
	projects.POST("/:projectId/tasks/:taskId/status", s.withTask(s.handleUpdateTaskStatus))

	projects.POST("/:projectId/team/find", s.withProject(s.handleFindMember))
	projects.GET("/:projectId/team", s.withProject(s.handleListTeam))
	projects.POST("/:projectId/team", s.withProject(s.handleAddMember))
	projects.DELETE("/:projectId/team/:userId", s.withProject(s.handleRemoveMember))

	projects.POST("/:projectId/tasks/:taskId/notes", s.withTask(s.handleCreateNote))
	projects.GET("/:projectId/tasks/:taskId/notes", s.withTask(s.handleListNotes))
	projects.DELETE("/:projectId/tasks/:taskId/notes/:noteId", s.withTask(s.handleDeleteNote))
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("healthz: store ping failed", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "component": "database"})
		return
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			s.logger.Warn("healthz: redis ping failed", slog.String("error", err.Error()))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "component": "redis"})
			return
		}
	}

	resp := gin.H{"status": "ok"}
	if s.queue != nil {
		resp["notify_queue"] = s.queue.Stats()
	}
	c.JSON(http.StatusOK, resp)
}
