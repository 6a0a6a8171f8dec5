// internal/storage/slots.go
package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"

	apperrors "github.com/yzy0324/neon-tape-vn/internal/errors"
	"github.com/yzy0324/neon-tape-vn/internal/models"
)

// SlotRecord 槽位元信息
type SlotRecord struct {
	Slot      models.SlotID
	UpdatedAt time.Time
}

// SlotStore 存档槽位后端。数据是已编码的存档字节，后端不解析内容。
type SlotStore interface {
	PutSlot(ctx context.Context, profile string, slot models.SlotID, data []byte) error
	GetSlot(ctx context.Context, profile string, slot models.SlotID) ([]byte, error)
	DeleteSlot(ctx context.Context, profile string, slot models.SlotID) error
	ListSlots(ctx context.Context, profile string) ([]SlotRecord, error)
	ListProfiles(ctx context.Context) ([]string, error)
	Close() error
}

// DefaultProfile 未指定玩家档案时使用的档案名
const DefaultProfile = "default"

var profilePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateProfile 档案名只允许字母数字、下划线与连字符，避免路径穿越
func ValidateProfile(profile string) error {
	if !profilePattern.MatchString(profile) {
		return apperrors.NewValidationError(fmt.Sprintf("非法的档案名: %q", profile), nil)
	}
	return nil
}

func validateSlot(slot models.SlotID) error {
	for _, known := range models.AllSlots {
		if slot == known {
			return nil
		}
	}
	return apperrors.NewValidationError(fmt.Sprintf("非法的存档槽位: %q", slot), nil)
}

func slotNotFound(profile string, slot models.SlotID) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("档案 %s 的槽位 %s 没有存档", profile, slot), nil)
}
