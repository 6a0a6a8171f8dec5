// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yzy0324/neon-tape-vn/internal/api"
	"github.com/yzy0324/neon-tape-vn/internal/config"
	"github.com/yzy0324/neon-tape-vn/internal/di"
	"github.com/yzy0324/neon-tape-vn/internal/savegame"
	"github.com/yzy0324/neon-tape-vn/internal/services"
	"github.com/yzy0324/neon-tape-vn/internal/storage"
	"github.com/yzy0324/neon-tape-vn/internal/story"
	"github.com/yzy0324/neon-tape-vn/internal/utils"
)

// App 持有已装配的全部服务
type App struct {
	Config    *config.AppConfig
	Container *di.Container

	Graph     *story.Graph
	Store     storage.SlotStore
	Files     *storage.FileStorage
	Manager   *savegame.Manager
	AutoSaver *savegame.AutoSaver
	Locks     *services.LockManager
	Sessions  *services.SessionService
	Saves     *services.SaveService
	Story     *services.StoryService
	Stats     *services.StatsService
	Hub       *api.WebSocketHub

	shutdownOnce sync.Once
	shutdownErr  error
}

var (
	instance   *App
	instanceMu sync.Mutex
)

// GetApp 返回 InitServices 装配好的全局实例，尚未初始化时返回 nil
func GetApp() *App {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	return instance
}

// InitServices 按全局配置装配服务并注册到全局容器
func InitServices() error {
	a, err := New(config.GetCurrentConfig(), di.GetContainer())
	if err != nil {
		return err
	}
	instanceMu.Lock()
	instance = a
	instanceMu.Unlock()
	return nil
}

// LoadGraph 加载剧情：未配置目录时使用内置剧情
func LoadGraph(dir string) (*story.Graph, error) {
	if dir == "" {
		return story.Default()
	}
	return story.LoadDir(dir)
}

// openStore 按配置打开存档后端。文件后端与统计共用同一个 FileStorage。
func openStore(cfg *config.AppConfig, files *storage.FileStorage) (storage.SlotStore, error) {
	switch cfg.SaveBackend {
	case config.BackendSQLite:
		return storage.OpenSQLite(cfg.SQLitePath)
	case config.BackendFile, "":
		return files, nil
	default:
		return nil, fmt.Errorf("未知的存档后端: %q", cfg.SaveBackend)
	}
}

// New 按依赖顺序构建服务：剧情 → 存储 → 存档 → 运行 → 推送
func New(cfg *config.AppConfig, container *di.Container) (*App, error) {
	logger := utils.GetLogger()

	graph, err := LoadGraph(cfg.StoryDir)
	if err != nil {
		return nil, fmt.Errorf("加载剧情失败: %w", err)
	}
	logger.Info("剧情已加载", utils.Fields{"title": graph.Title, "scenes": len(graph.Scenes)})

	files, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("初始化文件存储失败: %w", err)
	}
	store, err := openStore(cfg, files)
	if err != nil {
		files.Close()
		return nil, fmt.Errorf("打开存档后端失败: %w", err)
	}
	logger.Info("存档后端就绪", utils.Fields{"backend": cfg.SaveBackend})

	historyLimit := cfg.HistoryDisplayLimit
	if historyLimit < config.MinHistoryDisplayLimit {
		historyLimit = config.MinHistoryDisplayLimit
	}
	queue := cfg.AutosaveQueue
	if queue < 1 {
		queue = 1
	}

	a := &App{Config: cfg, Container: container, Graph: graph, Store: store, Files: files}
	a.Manager = savegame.NewManager(store, graph)
	a.AutoSaver = savegame.NewAutoSaver(a.Manager, queue)
	a.Locks = services.NewLockManager()
	a.Sessions = services.NewSessionService(graph, a.Locks, a.AutoSaver, historyLimit)
	a.Saves = services.NewSaveService(a.Manager, a.Sessions)
	a.Story = services.NewStoryService(graph, a.Saves, a.Sessions)
	a.Stats = services.NewStatsService(files)
	a.Hub = api.NewWebSocketHub()

	a.Sessions.SetStats(a.Stats)
	a.Sessions.SetNotifier(a.Hub)
	a.Sessions.SetPublisher(a.Hub)

	container.Register(di.ServiceGraph, graph)
	container.Register(di.ServiceStore, store)
	container.Register(di.ServiceFiles, files)
	container.Register(di.ServiceSaves, a.Manager)
	container.Register(di.ServiceAutosaver, a.AutoSaver)
	container.Register(di.ServiceLocks, a.Locks)
	container.Register(di.ServiceSessions, a.Sessions)
	container.Register(di.ServiceSaveSvc, a.Saves)
	container.Register(di.ServiceStory, a.Story)
	container.Register(di.ServiceStats, a.Stats)
	container.Register(di.ServiceHub, a.Hub)

	return a, nil
}

// Shutdown 先写完自动存档再依次关闭推送、统计与存储
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		done := make(chan struct{})
		go func() {
			a.AutoSaver.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			utils.GetLogger().Warn("等待自动存档超时", utils.Fields{"error": ctx.Err().Error()})
		}

		a.Hub.Stop()
		a.Locks.Stop()

		var errs []error
		if err := a.Stats.Close(); err != nil {
			errs = append(errs, fmt.Errorf("保存统计失败: %w", err))
		}
		if a.Store != storage.SlotStore(a.Files) {
			if err := a.Store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("关闭存档后端失败: %w", err))
			}
		}
		if err := a.Files.Close(); err != nil {
			errs = append(errs, err)
		}
		a.shutdownErr = errors.Join(errs...)
	})
	return a.shutdownErr
}
