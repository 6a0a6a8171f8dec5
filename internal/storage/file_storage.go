// internal/storage/file_storage.go
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yzy0324/neon-tape-vn/internal/models"
	"github.com/yzy0324/neon-tape-vn/internal/utils"
)

const (
	profilesDir = "profiles"
	slotExt     = ".json"
)

// FileStorage 基于文件的存档后端：每个槽位一个 JSON 文件，原子写入
type FileStorage struct {
	BaseDir string

	// 并发控制
	fileLocks sync.Map // 文件级别锁 path -> *sync.RWMutex

	// 简单缓存
	cache        map[string]*CacheEntry
	cacheMutex   sync.RWMutex
	cacheExpiry  time.Duration
	maxCacheSize int

	stopOnce sync.Once
	stop     chan struct{}
}

// CacheEntry 缓存条目
type CacheEntry struct {
	Data      []byte
	Timestamp time.Time
}

// NewFileStorage 创建文件存储服务
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, profilesDir), 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}

	fs := &FileStorage{
		BaseDir:      baseDir,
		cache:        make(map[string]*CacheEntry),
		cacheExpiry:  5 * time.Minute,
		maxCacheSize: 64,
		stop:         make(chan struct{}),
	}

	// 启动缓存清理
	fs.startCacheCleanup(2 * time.Minute)

	return fs, nil
}

// 获取文件锁
func (fs *FileStorage) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := fs.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

func (fs *FileStorage) profileDir(profile string) string {
	return filepath.Join(fs.BaseDir, profilesDir, profile)
}

func (fs *FileStorage) slotPath(profile string, slot models.SlotID) string {
	return filepath.Join(fs.profileDir(profile), string(slot)+slotExt)
}

// PutSlot 原子写入槽位：先写临时文件，再重命名
func (fs *FileStorage) PutSlot(ctx context.Context, profile string, slot models.SlotID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateProfile(profile); err != nil {
		return err
	}
	if err := validateSlot(slot); err != nil {
		return err
	}

	fullPath := fs.slotPath(profile, slot)
	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("保存临时文件失败: %w", err)
	}
	if err := os.Rename(tempPath, fullPath); err != nil {
		if removeErr := os.Remove(tempPath); removeErr != nil {
			utils.GetLogger().Warn("清理临时文件失败", utils.Fields{"path": tempPath, "error": removeErr.Error()})
		}
		return fmt.Errorf("保存文件失败: %w", err)
	}

	fs.updateCache(fullPath, data)
	return nil
}

// GetSlot 读取槽位，优先命中缓存
func (fs *FileStorage) GetSlot(ctx context.Context, profile string, slot models.SlotID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateProfile(profile); err != nil {
		return nil, err
	}
	if err := validateSlot(slot); err != nil {
		return nil, err
	}

	fullPath := fs.slotPath(profile, slot)
	if data, ok := fs.cached(fullPath); ok {
		return data, nil
	}

	lock := fs.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	content, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, slotNotFound(profile, slot)
		}
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	fs.updateCache(fullPath, content)
	return content, nil
}

// DeleteSlot 删除槽位；不存在时返回 not_found
func (fs *FileStorage) DeleteSlot(ctx context.Context, profile string, slot models.SlotID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateProfile(profile); err != nil {
		return err
	}
	if err := validateSlot(slot); err != nil {
		return err
	}

	fullPath := fs.slotPath(profile, slot)
	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return slotNotFound(profile, slot)
		}
		return fmt.Errorf("删除文件失败: %w", err)
	}
	fs.invalidateCache(fullPath)
	return nil
}

// ListSlots 列出档案下已有的槽位，按槽位显示顺序
func (fs *FileStorage) ListSlots(ctx context.Context, profile string) ([]SlotRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateProfile(profile); err != nil {
		return nil, err
	}

	var out []SlotRecord
	for _, slot := range models.AllSlots {
		info, err := os.Stat(fs.slotPath(profile, slot))
		if err != nil {
			continue
		}
		out = append(out, SlotRecord{Slot: slot, UpdatedAt: info.ModTime().UTC()})
	}
	return out, nil
}

// ListProfiles 列出所有存在存档目录的档案
func (fs *FileStorage) ListProfiles(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(fs.BaseDir, profilesDir))
	if err != nil {
		return nil, fmt.Errorf("读取目录失败: %w", err)
	}
	var profiles []string
	for _, entry := range entries {
		if entry.IsDir() && profilePattern.MatchString(entry.Name()) {
			profiles = append(profiles, entry.Name())
		}
	}
	sort.Strings(profiles)
	return profiles, nil
}

// SaveJSONFile 以原子方式保存任意 JSON 文件（相对 BaseDir）
func (fs *FileStorage) SaveJSONFile(dirPath, filename string, data interface{}) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}
	fullDir := filepath.Join(fs.BaseDir, dirPath)
	if err := os.MkdirAll(fullDir, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	fullPath := filepath.Join(fullDir, filename)
	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("保存临时文件失败: %w", err)
	}
	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("保存文件失败: %w", err)
	}
	fs.invalidateCache(fullPath)
	return nil
}

// LoadJSONFile 读取并解析 JSON 文件（相对 BaseDir）
func (fs *FileStorage) LoadJSONFile(dirPath, filename string, v interface{}) error {
	fullPath := filepath.Join(fs.BaseDir, dirPath, filename)
	lock := fs.getFileLock(fullPath)
	lock.RLock()
	content, err := os.ReadFile(fullPath)
	lock.RUnlock()
	if err != nil {
		return fmt.Errorf("读取文件失败: %w", err)
	}
	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("解析JSON失败: %w", err)
	}
	return nil
}

// Close 停止缓存清理
func (fs *FileStorage) Close() error {
	fs.stopOnce.Do(func() { close(fs.stop) })
	return nil
}

func (fs *FileStorage) cached(path string) ([]byte, bool) {
	fs.cacheMutex.RLock()
	defer fs.cacheMutex.RUnlock()
	entry, ok := fs.cache[path]
	if !ok || time.Since(entry.Timestamp) >= fs.cacheExpiry {
		return nil, false
	}
	return append([]byte(nil), entry.Data...), true
}

// 缓存管理
func (fs *FileStorage) updateCache(path string, data []byte) {
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()

	fs.cache[path] = &CacheEntry{
		Data:      append([]byte(nil), data...),
		Timestamp: time.Now(),
	}
	if len(fs.cache) > fs.maxCacheSize {
		fs.evictOldestLocked(len(fs.cache) - fs.maxCacheSize)
	}
}

func (fs *FileStorage) invalidateCache(path string) {
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()
	delete(fs.cache, path)
}

func (fs *FileStorage) startCacheCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-fs.stop:
				return
			case <-ticker.C:
				fs.cleanupExpiredCache()
			}
		}
	}()
}

// 清理过期缓存
func (fs *FileStorage) cleanupExpiredCache() {
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()

	now := time.Now()
	for path, entry := range fs.cache {
		if now.Sub(entry.Timestamp) > fs.cacheExpiry {
			delete(fs.cache, path)
		}
	}
}

// evictOldestLocked 移除最旧的 n 个条目，调用方持有写锁
func (fs *FileStorage) evictOldestLocked(n int) {
	type keyed struct {
		key string
		ts  time.Time
	}
	entries := make([]keyed, 0, len(fs.cache))
	for k, e := range fs.cache {
		entries = append(entries, keyed{k, e.Timestamp})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ts.Before(entries[j].ts) })
	for i := 0; i < n && i < len(entries); i++ {
		delete(fs.cache, entries[i].key)
	}
}

// String 便于日志输出
func (fs *FileStorage) String() string {
	return "file:" + strings.TrimSuffix(fs.BaseDir, string(filepath.Separator))
}
