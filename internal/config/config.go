// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MinHistoryDisplayLimit 对白历史窗口的下限
const MinHistoryDisplayLimit = 30

// 存档后端
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AppConfig 运行期配置快照，会持久化到数据目录的 config.json
type AppConfig struct {
	Port                string `json:"port"`
	DataDir             string `json:"data_dir"`
	LogDir              string `json:"log_dir"`
	DebugMode           bool   `json:"debug_mode"`
	LogLevel            string `json:"log_level"`
	SaveBackend         string `json:"save_backend"`
	SQLitePath          string `json:"sqlite_path"`
	StoryDir            string `json:"story_dir,omitempty"`
	HistoryDisplayLimit int    `json:"history_display_limit"`
	AutosaveQueue       int    `json:"autosave_queue"`
}

// Config 从环境变量读取的基础配置
type Config struct {
	Port                string `env:"PORT" envDefault:"8080"`
	DataDir             string `env:"DATA_DIR" envDefault:"data"`
	LogDir              string `env:"LOG_DIR" envDefault:"logs"`
	DebugMode           bool   `env:"DEBUG_MODE" envDefault:"true"`
	LogLevel            string `env:"LOG_LEVEL" envDefault:"info"`
	SaveBackend         string `env:"SAVE_BACKEND" envDefault:"file"`
	SQLitePath          string `env:"SQLITE_PATH" envDefault:"data/saves.db"`
	StoryDir            string `env:"STORY_DIR"`
	HistoryDisplayLimit int    `env:"HISTORY_DISPLAY_LIMIT" envDefault:"30"`
	AutosaveQueue       int    `env:"AUTOSAVE_QUEUE" envDefault:"32"`
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	_ = godotenv.Load()

	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := config.normalize(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) normalize() error {
	c.SaveBackend = strings.ToLower(strings.TrimSpace(c.SaveBackend))
	switch c.SaveBackend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("未知的存档后端: %q", c.SaveBackend)
	}
	if c.HistoryDisplayLimit < MinHistoryDisplayLimit {
		c.HistoryDisplayLimit = MinHistoryDisplayLimit
	}
	if c.AutosaveQueue < 1 {
		c.AutosaveQueue = 1
	}
	return nil
}

// EnsureDirs 创建数据与日志目录
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败 %s: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) snapshot() *AppConfig {
	return &AppConfig{
		Port:                c.Port,
		DataDir:             c.DataDir,
		LogDir:              c.LogDir,
		DebugMode:           c.DebugMode,
		LogLevel:            c.LogLevel,
		SaveBackend:         c.SaveBackend,
		SQLitePath:          c.SQLitePath,
		StoryDir:            c.StoryDir,
		HistoryDisplayLimit: c.HistoryDisplayLimit,
		AutosaveQueue:       c.AutosaveQueue,
	}
}

// InitConfig 初始化配置管理器。环境变量优先，结果写回 config.json 作为快照。
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = baseConfig.snapshot()
	currentConfig.DataDir = dataDir

	return saveConfigLocked()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		baseConfig, err := Load()
		if err != nil {
			baseConfig = &Config{
				Port:                "8080",
				DataDir:             "data",
				LogDir:              "logs",
				LogLevel:            "info",
				SaveBackend:         BackendFile,
				SQLitePath:          "data/saves.db",
				HistoryDisplayLimit: MinHistoryDisplayLimit,
				AutosaveQueue:       32,
			}
		}
		return baseConfig.snapshot()
	}

	configCopy := *currentConfig
	return &configCopy
}

// SetLogLevel 运行期调整日志级别并持久化
func SetLogLevel(level string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}
	currentConfig.LogLevel = level
	return saveConfigLocked()
}

// saveConfigLocked 保存当前配置到文件，调用方持有写锁
func saveConfigLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	dir := filepath.Dir(configFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	tempPath := configFile + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("写入配置失败: %w", err)
	}
	return os.Rename(tempPath, configFile)
}
