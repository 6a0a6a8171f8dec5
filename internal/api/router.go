// internal/api/router.go
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yzy0324/neon-tape-vn/internal/di"
	"github.com/yzy0324/neon-tape-vn/internal/services"
	"github.com/yzy0324/neon-tape-vn/internal/utils"
)

// 默认每个 IP 每分钟的请求上限
const defaultRequestsPerMinute = 300

// RouterDeps 构建路由所需的服务
type RouterDeps struct {
	Sessions *services.SessionService
	Saves    *services.SaveService
	Story    *services.StoryService
	Stats    *services.StatsService // 可为空
	Hub      *WebSocketHub

	// RequestsPerMinute 为 0 时使用默认值，小于 0 时关闭限流
	RequestsPerMinute int
}

// SetupRouter 从全局容器取出服务并配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	container := di.GetContainer()

	sessions, err := di.Resolve[*services.SessionService](container, di.ServiceSessions)
	if err != nil {
		return nil, err
	}
	saves, err := di.Resolve[*services.SaveService](container, di.ServiceSaveSvc)
	if err != nil {
		return nil, err
	}
	story, err := di.Resolve[*services.StoryService](container, di.ServiceStory)
	if err != nil {
		return nil, err
	}
	hub, err := di.Resolve[*WebSocketHub](container, di.ServiceHub)
	if err != nil {
		return nil, err
	}
	// 统计服务是可选的
	stats, _ := di.Resolve[*services.StatsService](container, di.ServiceStats)

	return NewRouter(RouterDeps{
		Sessions: sessions,
		Saves:    saves,
		Story:    story,
		Stats:    stats,
		Hub:      hub,
	}), nil
}

// NewRouter 用给定的服务构建路由
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(corsMiddleware())
	r.Use(metricsMiddleware(utils.NewAPIMetrics()))

	handler := &Handler{
		Sessions: deps.Sessions,
		Saves:    deps.Saves,
		Story:    deps.Story,
		Stats:    deps.Stats,
		Response: NewResponseHelper(),
	}
	if deps.Hub != nil {
		handler.WebSocketHandler = NewWebSocketHandler(deps.Hub, deps.Sessions)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "runs": deps.Sessions.Count()})
	})

	apiGroup := r.Group("/api")
	switch limit := deps.RequestsPerMinute; {
	case limit == 0:
		apiGroup.Use(NewRateLimiter().Middleware(defaultRequestsPerMinute, time.Minute))
	case limit > 0:
		apiGroup.Use(NewRateLimiter().Middleware(limit, time.Minute))
	}
	{
		runs := apiGroup.Group("/runs")
		{
			runs.POST("", handler.StartRun)
			runs.GET("/:id", handler.GetRun)
			runs.DELETE("/:id", handler.CloseRun)
			runs.POST("/:id/restart", handler.RestartRun)
			runs.POST("/:id/choices", handler.Choose)
			runs.PUT("/:id/order/draft", handler.SaveOrderDraft)
			runs.POST("/:id/order", handler.SubmitOrder)
			runs.GET("/:id/forecast", handler.GetForecast)
			runs.GET("/:id/history", handler.GetHistory)
			runs.GET("/:id/review", handler.GetReview)
			runs.GET("/:id/review/:step", handler.GetPlayback)
			runs.PUT("/:id/audio", handler.UpdateAudio)

			saves := runs.Group("/:id/saves")
			{
				saves.GET("", handler.ListSaves)
				saves.POST("/:slot", handler.SaveSlot)
				saves.DELETE("/:slot", handler.DeleteSlot)
				saves.POST("/:slot/load", handler.LoadSlot)
				saves.GET("/:slot/export", handler.ExportSlot)
				saves.POST("/:slot/import", handler.ImportSlot)
			}
		}

		apiGroup.GET("/endings", handler.GetEndings)
		apiGroup.GET("/story", handler.GetStory)
		apiGroup.GET("/story/validate", handler.ValidateStory)
		apiGroup.GET("/metrics", handler.GetMetrics)
		apiGroup.GET("/stats", handler.GetStats)
	}

	if handler.WebSocketHandler != nil {
		r.GET("/ws/runs/:id", handler.WebSocketHandler.RunWebSocket)
	}

	return r
}
