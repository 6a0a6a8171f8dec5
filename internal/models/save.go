// internal/models/save.go
package models

import (
	"fmt"
	"strings"
	"time"
)

// CurrentSchemaVersion 当前存档结构版本
const CurrentSchemaVersion = 4

// SlotID 存档槽位
type SlotID string

const (
	Slot1    SlotID = "slot1"
	Slot2    SlotID = "slot2"
	Slot3    SlotID = "slot3"
	SlotAuto SlotID = "auto"
)

// AllSlots 按显示顺序排列的全部槽位
var AllSlots = []SlotID{Slot1, Slot2, Slot3, SlotAuto}

// ManualSlots 玩家可手动写入的槽位
var ManualSlots = []SlotID{Slot1, Slot2, Slot3}

// ParseSlot 解析槽位名称，接受 "1"/"slot1"/"auto" 等写法
func ParseSlot(raw string) (SlotID, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "1", "slot1":
		return Slot1, nil
	case "2", "slot2":
		return Slot2, nil
	case "3", "slot3":
		return Slot3, nil
	case "auto", "autosave":
		return SlotAuto, nil
	}
	return "", fmt.Errorf("未知存档槽位: %q", raw)
}

// IsManual 是否为手动槽位
func (s SlotID) IsManual() bool {
	return s == Slot1 || s == Slot2 || s == Slot3
}

// Payload 持久化的存档记录，状态字段平铺在顶层
type Payload struct {
	SchemaVersion int       `json:"schemaVersion"`
	Slot          SlotID    `json:"slot,omitempty"`
	SavedAt       time.Time `json:"savedAt"`
	State
}

// SlotSummary 槽位列表展示信息
type SlotSummary struct {
	Slot    SlotID    `json:"slot"`
	Empty   bool      `json:"empty"`
	SceneID string    `json:"scene_id,omitempty"`
	Title   string    `json:"title,omitempty"`
	Ending  string    `json:"ending,omitempty"`
	Steps   int       `json:"steps"`
	SavedAt time.Time `json:"saved_at,omitempty"`
}
