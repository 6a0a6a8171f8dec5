// internal/savegame/codec.go
package savegame

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	apperrors "github.com/yzy0324/neon-tape-vn/internal/errors"
	"github.com/yzy0324/neon-tape-vn/internal/models"
)

// Save 把状态打包成当前版本的存档。状态被深拷贝，之后的修改不影响存档。
func Save(s *models.State, slot models.SlotID, now time.Time) *models.Payload {
	p := &models.Payload{
		SchemaVersion: models.CurrentSchemaVersion,
		Slot:          slot,
		SavedAt:       now.UTC(),
		State:         *s.Clone(),
	}
	if len(p.AudioSettings) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, p.AudioSettings); err == nil {
			p.AudioSettings = buf.Bytes()
		} else {
			p.AudioSettings = nil
		}
	}
	return p
}

// Load 从存档还原状态。读档是整体替换，调用方直接使用返回值。
func Load(p *models.Payload) *models.State {
	s := p.State.Clone()
	s.Normalize()
	return s
}

// Encode 序列化存档
func Encode(p *models.Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, apperrors.NewProcessingError("序列化存档失败", err)
	}
	return data, nil
}

// Decode 校验并解码存档：先检查结构与版本，再逐级升级，最后解码为当前结构。
// 畸形数据返回 save_corrupt，来自未来版本返回 schema_unsupported。
func Decode(data []byte) (*models.Payload, error) {
	version, err := Inspect(data)
	if err != nil {
		return nil, err
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.NewSaveCorruptError("存档不是合法的 JSON 对象", err)
	}
	if version < models.CurrentSchemaVersion {
		if doc, err = upgrade(doc, version); err != nil {
			return nil, apperrors.NewSaveCorruptError("存档升级失败", err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, apperrors.NewSaveCorruptError("存档升级失败", err)
		}
	}

	var p models.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, apperrors.NewSaveCorruptError("存档字段类型错误", err)
	}
	if p.SceneID == "" {
		return nil, apperrors.NewSaveCorruptError("存档缺少场景指针", nil)
	}
	p.SchemaVersion = models.CurrentSchemaVersion
	if !p.SavedAt.IsZero() {
		p.SavedAt = p.SavedAt.UTC()
	}
	p.State.Normalize()
	return &p, nil
}

// Inspect 不解码整份数据，只检查 JSON 合法性、对象形状与 schemaVersion。
// 缺少 schemaVersion 视为 v1 旧存档。
func Inspect(data []byte) (int, error) {
	if !gjson.ValidBytes(data) {
		return 0, apperrors.NewSaveCorruptError("存档数据已损坏或被截断", nil)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return 0, apperrors.NewSaveCorruptError("存档顶层必须是对象", nil)
	}

	version := 1
	if sv := root.Get("schemaVersion"); sv.Exists() {
		if sv.Type != gjson.Number || sv.Num != float64(int64(sv.Num)) {
			return 0, apperrors.NewSaveCorruptError(fmt.Sprintf("schemaVersion 不是整数: %s", sv.Raw), nil)
		}
		version = int(sv.Int())
	}
	if version < 1 {
		return 0, apperrors.NewSaveCorruptError(fmt.Sprintf("schemaVersion 非法: %d", version), nil)
	}
	if version > models.CurrentSchemaVersion {
		return 0, apperrors.NewSchemaUnsupportedError(
			fmt.Sprintf("存档版本 v%d 高于当前支持的 v%d", version, models.CurrentSchemaVersion), nil)
	}

	if err := checkShape(root, version); err != nil {
		return 0, apperrors.NewSaveCorruptError("存档结构不完整", err)
	}
	return version, nil
}

func checkShape(root gjson.Result, version int) error {
	if version == 1 {
		if !root.Get("current").Exists() && !root.Get("sceneId").Exists() && !root.Get("score").IsObject() {
			return fmt.Errorf("旧存档缺少 current/score")
		}
	} else if root.Get("sceneId").Type != gjson.String {
		return fmt.Errorf("sceneId 缺失或不是字符串")
	}

	objects := []string{"flags"}
	arrays := []string{"choiceHistory", "unlockedEndings"}
	switch {
	case version >= 4:
		objects = append(objects, "tendencies", "relations", "inventory", "orderDrafts")
		arrays = append(arrays, "pathHistory", "dialogueHistory", "orderHistory")
	case version == 3:
		objects = append(objects, "tendency", "orderDrafts")
		arrays = append(arrays, "log", "orderHistory")
	case version == 2:
		objects = append(objects, "tendency")
		arrays = append(arrays, "log")
	}
	for _, key := range objects {
		if v := root.Get(key); v.Exists() && v.Type != gjson.Null && !v.IsObject() {
			return fmt.Errorf("%s 应为对象", key)
		}
	}
	for _, key := range arrays {
		if v := root.Get(key); v.Exists() && v.Type != gjson.Null && !v.IsArray() {
			return fmt.Errorf("%s 应为数组", key)
		}
	}
	return nil
}
