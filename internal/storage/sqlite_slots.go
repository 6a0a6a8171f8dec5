// internal/storage/sqlite_slots.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yzy0324/neon-tape-vn/internal/models"
)

const slotsSchema = `
CREATE TABLE IF NOT EXISTS slots (
	profile    TEXT    NOT NULL,
	slot       TEXT    NOT NULL,
	data       BLOB    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (profile, slot)
);`

// SQLiteStorage 基于 SQLite 的存档后端
type SQLiteStorage struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// OpenSQLite 打开（或创建）SQLite 存档库并执行建表
func OpenSQLite(path string) (*SQLiteStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(slotsSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite db: %w", err)
	}

	return &SQLiteStorage{sqlDB: sqlDB, now: time.Now}, nil
}

// Close 关闭底层连接
func (s *SQLiteStorage) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutSlot 覆盖写入槽位
func (s *SQLiteStorage) PutSlot(ctx context.Context, profile string, slot models.SlotID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateProfile(profile); err != nil {
		return err
	}
	if err := validateSlot(slot); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO slots (profile, slot, data, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(profile, slot) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		profile, string(slot), data, toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("put slot: %w", err)
	}
	return nil
}

// GetSlot 读取槽位数据
func (s *SQLiteStorage) GetSlot(ctx context.Context, profile string, slot models.SlotID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateProfile(profile); err != nil {
		return nil, err
	}
	if err := validateSlot(slot); err != nil {
		return nil, err
	}

	var data []byte
	row := s.sqlDB.QueryRowContext(ctx, `SELECT data FROM slots WHERE profile = ? AND slot = ?`, profile, string(slot))
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, slotNotFound(profile, slot)
		}
		return nil, fmt.Errorf("get slot: %w", err)
	}
	return data, nil
}

// DeleteSlot 删除槽位
func (s *SQLiteStorage) DeleteSlot(ctx context.Context, profile string, slot models.SlotID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateProfile(profile); err != nil {
		return err
	}
	if err := validateSlot(slot); err != nil {
		return err
	}

	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM slots WHERE profile = ? AND slot = ?`, profile, string(slot))
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return slotNotFound(profile, slot)
	}
	return nil
}

// ListSlots 按槽位显示顺序返回已存在的槽位
func (s *SQLiteStorage) ListSlots(ctx context.Context, profile string) ([]SlotRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateProfile(profile); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT slot, updated_at FROM slots WHERE profile = ?`, profile)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	found := make(map[models.SlotID]time.Time)
	for rows.Next() {
		var slot string
		var updatedAt int64
		if err := rows.Scan(&slot, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		found[models.SlotID(slot)] = fromMillis(updatedAt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}

	var out []SlotRecord
	for _, slot := range models.AllSlots {
		if ts, ok := found[slot]; ok {
			out = append(out, SlotRecord{Slot: slot, UpdatedAt: ts})
		}
	}
	return out, nil
}

// ListProfiles 返回拥有存档的档案名
func (s *SQLiteStorage) ListProfiles(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT DISTINCT profile FROM slots ORDER BY profile`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
