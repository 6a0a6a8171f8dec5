// internal/audio/audio.go
package audio

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/tidwall/gjson"

	apperrors "github.com/yzy0324/neon-tape-vn/internal/errors"
)

// Track 单条音轨设置
type Track struct {
	Enabled bool    `json:"enabled"`
	Volume  float64 `json:"volume"`
}

// Settings 音频协作方的设置块。核心只负责随存档保存，不解释其含义。
type Settings struct {
	Master   float64 `json:"master"`
	Music    Track   `json:"music"`
	Ambience Track   `json:"ambience"`
	Sfx      Track   `json:"sfx"`
}

// DefaultSettings 出厂设置
func DefaultSettings() Settings {
	return Settings{
		Master:   0.72,
		Music:    Track{Enabled: true, Volume: 0.55},
		Ambience: Track{Enabled: true, Volume: 0.48},
		Sfx:      Track{Enabled: true, Volume: 0.65},
	}
}

// ParseSettings 在默认值之上合并设置块：缺失或类型不符的字段保留默认值，音量夹到 [0,1]。
// 空输入返回默认设置；非对象输入返回 validation_error。
func ParseSettings(raw []byte) (Settings, error) {
	s := DefaultSettings()
	if len(raw) == 0 {
		return s, nil
	}
	if !gjson.ValidBytes(raw) {
		return s, apperrors.NewValidationError("音频设置不是合法的 JSON", nil)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return s, apperrors.NewValidationError("音频设置必须是对象", nil)
	}

	if v := root.Get("master"); v.Type == gjson.Number {
		s.Master = clamp(v.Float())
	}
	mergeTrack(root, "music", &s.Music)
	mergeTrack(root, "ambience", &s.Ambience)
	mergeTrack(root, "sfx", &s.Sfx)
	return s, nil
}

func mergeTrack(root gjson.Result, name string, t *Track) {
	if v := root.Get(name + ".enabled"); v.IsBool() {
		t.Enabled = v.Bool()
	}
	if v := root.Get(name + ".volume"); v.Type == gjson.Number {
		t.Volume = clamp(v.Float())
	}
}

// Marshal 序列化为存档中保存的不透明块
func (s Settings) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("序列化音频设置失败: %w", err)
	}
	return data, nil
}

// Effective 某条音轨的实际输出音量（总音量 × 音轨音量，关闭时为 0）
func (s Settings) Effective(t Track) float64 {
	if !t.Enabled {
		return 0
	}
	return clamp(s.Master * t.Volume)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
