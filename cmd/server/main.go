// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yzy0324/neon-tape-vn/internal/api"
	"github.com/yzy0324/neon-tape-vn/internal/app"
	"github.com/yzy0324/neon-tape-vn/internal/config"
	"github.com/yzy0324/neon-tape-vn/internal/di"
	"github.com/yzy0324/neon-tape-vn/internal/utils"
)

func main() {
	logger := utils.GetLogger()
	logger.Info("启动 neon tape 服务器", nil)

	// 1. 加载基础配置
	baseConfig, err := config.Load()
	if err != nil {
		logger.Fatal("加载配置失败", utils.Fields{"error": err.Error()})
		return
	}

	// 2. 创建目录并打开日志文件
	if err := baseConfig.EnsureDirs(); err != nil {
		logger.Fatal("创建目录失败", utils.Fields{"error": err.Error()})
		return
	}
	if err := utils.InitLogger(filepath.Join(baseConfig.LogDir, "server.log")); err != nil {
		logger.Warn("日志文件不可用，仅输出到控制台", utils.Fields{"error": err.Error()})
	}
	defer utils.CloseLogger()
	logger.SetLogLevel(utils.ParseLevel(baseConfig.LogLevel))

	// 3. 初始化配置系统
	if err := config.InitConfig(baseConfig.DataDir); err != nil {
		logger.Fatal("初始化配置系统失败", utils.Fields{"error": err.Error()})
		return
	}

	// 4. 装配服务
	if err := app.InitServices(); err != nil {
		logger.Fatal("初始化服务失败", utils.Fields{"error": err.Error()})
		return
	}
	application := app.GetApp()
	if err := di.GetContainer().Require(di.ServiceSessions, di.ServiceSaveSvc, di.ServiceStory, di.ServiceHub); err != nil {
		logger.Warn("服务健康检查警告", utils.Fields{"error": err.Error()})
	}

	if !baseConfig.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router, err := api.SetupRouter()
	if err != nil {
		logger.Fatal("设置路由失败", utils.Fields{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	utils.NewAPIMetrics().StartMetricsCollection(ctx, time.Minute)

	logger.Info("服务器启动", utils.Fields{"port": baseConfig.Port, "backend": baseConfig.SaveBackend})
	runServer(router, baseConfig.Port, application)
}

// runServer 启动HTTP服务并在收到信号后优雅关闭
func runServer(router *gin.Engine, port string, application *app.App) {
	logger := utils.GetLogger()
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("启动服务器失败", utils.Fields{"error": err.Error()})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务器", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器强制关闭", utils.Fields{"error": err.Error()})
	}
	if err := application.Shutdown(ctx); err != nil {
		logger.Error("关闭服务失败", utils.Fields{"error": err.Error()})
	}
	logger.Info("服务器已关闭", nil)
}
