package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/autotile/internal/auth"
	"github.com/annel0/autotile/internal/cache"
	"github.com/annel0/autotile/internal/logging"
	"github.com/annel0/autotile/internal/middleware"
	"github.com/annel0/autotile/internal/tileset"
	"github.com/annel0/autotile/internal/world"
)

// RestServer представляет REST API редактора карт
type RestServer struct {
	router   *gin.Engine
	server   *http.Server
	manager  *world.Manager
	tilesets tileset.Repository
	cells    *cache.CellCache
	userRepo auth.UserRepository
	addr     string
	metrics  *ServerMetrics
	log      *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Addr       string                // адрес, например ":8088"
	Manager    *world.Manager        // карты
	Tilesets   tileset.Repository    // определения тайлов
	Cells      *cache.CellCache      // кеш разрешённых клеток, может быть nil
	UserRepo   auth.UserRepository   // учётные записи редакторов
	Registerer prometheus.Registerer // nil: регистр по умолчанию
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Addr == "" {
		config.Addr = ":8088"
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// === Observability middleware ===
	router.Use(middleware.NewRequestLogger().Handler())
	router.Use(otelgin.Middleware("autotile_api"))

	promMw := middleware.NewPrometheusMiddleware("autotile_api", config.Registerer)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	rs := &RestServer{
		router:   router,
		manager:  config.Manager,
		tilesets: config.Tilesets,
		cells:    config.Cells,
		userRepo: config.UserRepo,
		addr:     config.Addr,
		metrics:  NewServerMetrics(),
		log:      logging.GetAPILogger(),
	}
	rs.setupRoutes()
	return rs
}

// Handler возвращает http.Handler для тестов и встраивания
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.Use(corsMiddleware())

	api := rs.router.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", rs.handleLogin)
	}

	// Чтение открыто
	api.GET("/maps", rs.handleListMaps)
	api.GET("/maps/:map/cells/:x/:y/:layer", rs.handleGetCell)
	api.GET("/maps/:map/region", rs.handleRegion)
	api.GET("/tilesets", rs.handleListTilesets)
	api.GET("/tilesets/:id", rs.handleGetTileset)

	// Изменения требуют JWT
	protected := api.Group("/")
	protected.Use(rs.jwtMiddleware())
	{
		protected.PUT("/maps/:map/cells/:x/:y/:layer", rs.handleSetCell)
		protected.DELETE("/maps/:map/cells/:x/:y/:layer", rs.handleRemoveCell)
		protected.POST("/maps/:map/save", rs.handleSaveMap)
		protected.GET("/stats", rs.handleStats)

		admin := protected.Group("/admin")
		admin.Use(rs.adminMiddleware())
		{
			admin.POST("/tilesets", rs.handleSaveTileset)
			admin.DELETE("/tilesets/:id", rs.handleDeleteTileset)
		}
	}

	rs.router.GET("/health", rs.handleHealth)
}

// LoginRequest представляет запрос на вход
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse представляет ответ на вход
type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
	UserID  uint64 `json:"user_id,omitempty"`
	IsAdmin bool   `json:"is_admin,omitempty"`
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, GenericResponse{Success: false, Message: message})
}

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: message, Data: data})
}

// statusFor сопоставляет доменные ошибки с HTTP статусами
func statusFor(err error) int {
	switch {
	case errors.Is(err, world.ErrInvalidMapName),
		errors.Is(err, world.ErrRegionTooLarge),
		errors.Is(err, tileset.ErrInvalidDefinition):
		return http.StatusBadRequest
	case errors.Is(err, world.ErrUnknownTile):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tileset.ErrDefinitionNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleLogin обрабатывает запрос на вход
func (rs *RestServer) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{Message: "Неверный формат запроса"})
		return
	}
	if rs.userRepo == nil {
		c.JSON(http.StatusServiceUnavailable, LoginResponse{Message: "Аутентификация не настроена"})
		return
	}

	user, err := rs.userRepo.ValidateCredentials(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrUserNotFound) {
		rs.log.Warn("🔒 Неудачный вход: %s", req.Username)
		c.JSON(http.StatusUnauthorized, LoginResponse{Message: "Неверное имя пользователя или пароль"})
		return
	}
	if err != nil {
		rs.log.Error("Ошибка проверки учётных данных %s: %v", req.Username, err)
		c.JSON(http.StatusInternalServerError, LoginResponse{Message: "Внутренняя ошибка сервера"})
		return
	}

	token, err := auth.GenerateJWT(user)
	if err != nil {
		rs.log.Error("Ошибка генерации JWT для %s: %v", user.Username, err)
		c.JSON(http.StatusInternalServerError, LoginResponse{Message: "Ошибка генерации токена"})
		return
	}

	rs.log.Info("🔑 Вход выполнен: %s (admin=%v)", user.Username, user.IsAdmin)
	c.JSON(http.StatusOK, LoginResponse{
		Success: true,
		Token:   token,
		Message: "Успешный вход",
		UserID:  user.ID,
		IsAdmin: user.IsAdmin,
	})
}

// handleStats возвращает статистику карт, кеша и процесса
func (rs *RestServer) handleStats(c *gin.Context) {
	stats := map[string]interface{}{
		"maps":   rs.manager.Stats(),
		"tiles":  rs.manager.Registry().Len(),
		"server": rs.metrics.Snapshot(),
	}
	if rs.cells != nil {
		stats["cache"] = rs.cells.Metrics()
	}
	stats["memory_details"] = rs.metrics.GetDetailedMemoryStats()

	respondOK(c, "Статистика получена", stats)
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"maps":   len(rs.manager.Maps()),
		"time":   time.Now().Unix(),
	})
}

// Start запускает HTTP сервер и блокируется до остановки
func (rs *RestServer) Start() error {
	rs.server = &http.Server{
		Addr:              rs.addr,
		Handler:           rs.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	rs.log.Info("🌐 REST API слушает %s", rs.addr)
	if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("rest server: %w", err)
	}
	return nil
}

// Stop плавно останавливает HTTP сервер
func (rs *RestServer) Stop(ctx context.Context) error {
	if rs.server == nil {
		return nil
	}
	return rs.server.Shutdown(ctx)
}
