// internal/savegame/export.go
package savegame

import (
	"encoding/base64"
	"strings"

	apperrors "github.com/yzy0324/neon-tape-vn/internal/errors"
	"github.com/yzy0324/neon-tape-vn/internal/models"
)

// ExportPrefix 导出文本的版本化前缀
const ExportPrefix = "NEONTAPE1."

// ExportText 导出为可复制的纯文本
func ExportText(p *models.Payload) (string, error) {
	data, err := Encode(p)
	if err != nil {
		return "", err
	}
	return ExportPrefix + base64.RawURLEncoding.EncodeToString(data), nil
}

// ImportText 解析导出文本；也接受直接粘贴的 JSON 存档。
// 校验失败时返回可恢复错误，不会触及任何运行状态。
func ImportText(text string) (*models.Payload, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewSaveCorruptError("导入文本为空", nil)
	}

	var data []byte
	switch {
	case strings.HasPrefix(text, ExportPrefix):
		body := strings.TrimRight(text[len(ExportPrefix):], "=")
		decoded, err := base64.RawURLEncoding.DecodeString(body)
		if err != nil {
			return nil, apperrors.NewSaveCorruptError("导入文本编码损坏", err)
		}
		data = decoded
	case strings.HasPrefix(text, "{"):
		data = []byte(text)
	default:
		return nil, apperrors.NewSaveCorruptError("无法识别的导入格式", nil)
	}
	return Decode(data)
}
