// Package api REST-интерфейс генератора: просмотр чанков, правки вокселей,
// загрузка и выгрузка чанков, статистика и метрики Prometheus.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/annel0/voxelgen/internal/engine"
	"github.com/annel0/voxelgen/internal/logging"
	"github.com/annel0/voxelgen/internal/middleware"
	"github.com/annel0/voxelgen/internal/vec"
	"github.com/annel0/voxelgen/internal/world"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RestServer представляет REST API сервер
type RestServer struct {
	router  *gin.Engine
	engine  *engine.Engine
	port    string
	metrics *ServerMetrics
	log     *logging.Logger
	srv     *http.Server
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port     string               // адрес для запуска сервера, например ":8088"
	Engine   *engine.Engine       // движок генератора
	Registry *prometheus.Registry // реестр метрик, отдаётся на /metrics
	Logger   *logging.Logger
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// VoxelEditRequest тело запроса правки вокселя
type VoxelEditRequest struct {
	X        *int    `json:"x" binding:"required"`
	Y        *int    `json:"y" binding:"required"`
	Z        *int    `json:"z" binding:"required"`
	Solid    bool    `json:"solid"`
	Material *uint16 `json:"material,omitempty"` // вне диапазона MaterialID отклоняется при разборе
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) (*RestServer, error) {
	if config.Engine == nil {
		return nil, fmt.Errorf("api: engine is required")
	}
	if config.Port == "" {
		config.Port = ":8088"
	}
	log := config.Logger
	if log == nil {
		log = logging.GetServerLogger()
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(otelgin.Middleware("voxelgen_api"))
	router.Use(middleware.NewRequestLogger(log).Handler())

	promMw := middleware.NewPrometheusMiddleware("voxelgen_api", config.Registry)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	rs := &RestServer{
		router:  router,
		engine:  config.Engine,
		port:    config.Port,
		metrics: NewServerMetrics(),
		log:     log,
	}
	rs.srv = &http.Server{
		Addr:              rs.port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	rs.setupRoutes()
	return rs, nil
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	api.GET("/stats", rs.handleStats)

	chunks := api.Group("/chunks")
	{
		chunks.GET("", rs.handleListChunks)
		chunks.GET("/:x/:y/:z", rs.handleGetChunk)
		chunks.GET("/:x/:y/:z/mesh", rs.handleGetMesh)
		chunks.POST("/:x/:y/:z", rs.handleLoadChunk)
		chunks.DELETE("/:x/:y/:z", rs.handleUnloadChunk)
		chunks.PUT("/:x/:y/:z/voxels", rs.handleEditVoxel)
	}
}

// Handler http.Handler сервера, используется в тестах и при встраивании
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// handleHealth проверка живости с номером текущего тика
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"tick":   rs.engine.Ticks(),
		"time":   time.Now().Unix(),
	})
}

func (rs *RestServer) handleListChunks(c *gin.Context) {
	chunks := rs.engine.Snapshot()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список чанков получен",
		Data: gin.H{
			"chunks": chunks,
			"total":  len(chunks),
		},
	})
}

func (rs *RestServer) handleGetChunk(c *gin.Context) {
	coords, ok := rs.chunkCoords(c)
	if !ok {
		return
	}
	summary, found := rs.engine.Chunk(coords)
	if !found {
		rs.fail(c, fmt.Errorf("%w: %s", world.ErrChunkNotFound, coords))
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Чанк найден", Data: summary})
}

// handleGetMesh отдаёт установленный меш чанка в бинарном формате
func (rs *RestServer) handleGetMesh(c *gin.Context) {
	coords, ok := rs.chunkCoords(c)
	if !ok {
		return
	}
	data, found := rs.engine.MeshBytes(coords)
	if !found {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "Меш чанка " + coords.String() + " отсутствует"})
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (rs *RestServer) handleLoadChunk(c *gin.Context) {
	coords, ok := rs.chunkCoords(c)
	if !ok {
		return
	}
	if err := rs.engine.Load(c.Request.Context(), coords); err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, GenericResponse{Success: true, Message: "Загрузка чанка поставлена в очередь", Data: coords})
}

func (rs *RestServer) handleUnloadChunk(c *gin.Context) {
	coords, ok := rs.chunkCoords(c)
	if !ok {
		return
	}
	if err := rs.engine.Unload(c.Request.Context(), coords); err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, GenericResponse{Success: true, Message: "Выгрузка чанка поставлена в очередь", Data: coords})
}

func (rs *RestServer) handleEditVoxel(c *gin.Context) {
	coords, ok := rs.chunkCoords(c)
	if !ok {
		return
	}
	var req VoxelEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса: " + err.Error(),
		})
		return
	}

	edit := engine.Edit{
		Chunk: coords,
		Local: vec.Vec3{X: *req.X, Y: *req.Y, Z: *req.Z},
		Voxel: world.Voxel{Solid: req.Solid},
	}
	if req.Material != nil {
		edit.Voxel.Material = world.MaterialID(*req.Material)
	}
	if err := rs.engine.SubmitEdit(c.Request.Context(), edit); err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, GenericResponse{Success: true, Message: "Правка поставлена в очередь", Data: edit})
}

// handleStats возвращает состояние движка и процесса
func (rs *RestServer) handleStats(c *gin.Context) {
	stats := map[string]interface{}{
		"engine": rs.engine.Stats(),
	}

	memoryMB, _ := rs.metrics.GetMemoryUsage()
	server := map[string]interface{}{
		"uptime":      rs.metrics.GetUptime(),
		"memory_mb":   fmt.Sprintf("%.2f", memoryMB),
		"server_time": time.Now().Unix(),
	}
	if rss, err := rs.metrics.GetProcessRSS(); err == nil {
		server["rss_mb"] = fmt.Sprintf("%.2f", rss)
	}
	if cpu, err := rs.metrics.GetCPUUsage(); err == nil {
		server["cpu_percent"] = fmt.Sprintf("%.2f", cpu)
	}
	stats["server"] = server
	stats["memory_details"] = rs.metrics.GetDetailedMemoryStats()

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data:    stats,
	})
}

// chunkCoords разбирает :x/:y/:z; при ошибке сам отвечает 400
func (rs *RestServer) chunkCoords(c *gin.Context) (vec.Vec3, bool) {
	var out [3]int
	for i, name := range []string{"x", "y", "z"} {
		v, err := strconv.Atoi(c.Param(name))
		if err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{
				Success: false,
				Message: fmt.Sprintf("Координата %s должна быть целым числом", name),
			})
			return vec.Vec3{}, false
		}
		out[i] = v
	}
	return vec.Vec3{X: out[0], Y: out[1], Z: out[2]}, true
}

// fail переводит ошибку движка в HTTP статус
func (rs *RestServer) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, world.ErrChunkNotFound):
		status = http.StatusNotFound
	case errors.Is(err, world.ErrOutOfBounds):
		status = http.StatusBadRequest
	case errors.Is(err, world.ErrDuplicateChunk):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrQueueFull), errors.Is(err, engine.ErrNotBootstrapped):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		rs.log.Error("Request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, GenericResponse{Success: false, Message: err.Error()})
}

// Start запускает REST сервер и блокируется до Stop.
// Если Stop уже был вызван, сразу возвращает nil.
func (rs *RestServer) Start() error {
	rs.log.Info("REST API listening on %s", rs.port)
	if err := rs.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop останавливает сервер, дожидаясь завершения активных запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.srv.Shutdown(ctx)
}
