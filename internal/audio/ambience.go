// internal/audio/ambience.go
package audio

// Ambience 环境音三层混合比例
type Ambience struct {
	Rain   float64 `json:"rain"`
	Rumble float64 `json:"rumble"`
	Neon   float64 `json:"neon"`
}

var ambiencePresets = map[string]Ambience{
	"bar":      {Rain: 0.24, Rumble: 0.2, Neon: 0.28},
	"corp":     {Rain: 0.08, Rumble: 0.3, Neon: 0.26},
	"alley":    {Rain: 0.36, Rumble: 0.16, Neon: 0.2},
	"street":   {Rain: 0.32, Rumble: 0.22, Neon: 0.16},
	"backroom": {Rain: 0.06, Rumble: 0.28, Neon: 0.34},
	"dawn":     {Rain: 0.14, Rumble: 0.1, Neon: 0.12},
}

var defaultAmbience = Ambience{Rain: 0.2, Rumble: 0.2, Neon: 0.2}

// AmbienceFor 场景背景对应的环境音预设，未知背景使用默认混合
func AmbienceFor(background string) Ambience {
	if a, ok := ambiencePresets[background]; ok {
		return a
	}
	return defaultAmbience
}

// SfxKind 短音效类别
type SfxKind string

const (
	SfxClick   SfxKind = "click"
	SfxConfirm SfxKind = "confirm"
	SfxSave    SfxKind = "save"
	SfxClue    SfxKind = "clue"
)

// Cue 进入场景时交给音频端的提示
type Cue struct {
	SceneID    string   `json:"scene_id"`
	Background string   `json:"background"`
	Ambience   Ambience `json:"ambience"`
	Settings   Settings `json:"settings"`
}

// NewCue 根据背景与设置块生成提示。设置块无法解析时退回默认设置。
func NewCue(sceneID, background string, raw []byte) Cue {
	settings, err := ParseSettings(raw)
	if err != nil {
		settings = DefaultSettings()
	}
	return Cue{
		SceneID:    sceneID,
		Background: background,
		Ambience:   AmbienceFor(background),
		Settings:   settings,
	}
}

// Notifier 音频协作方接收通知的边界
type Notifier interface {
	SceneEntered(runID string, cue Cue)
	Sfx(runID string, kind SfxKind)
}

// NopNotifier 丢弃所有通知
type NopNotifier struct{}

func (NopNotifier) SceneEntered(string, Cue) {}
func (NopNotifier) Sfx(string, SfxKind)      {}
