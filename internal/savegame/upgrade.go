// internal/savegame/upgrade.go
package savegame

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/yzy0324/neon-tape-vn/internal/models"
)

// 默认值随版本演进而固定，写在这里作为迁移文档：
//
//	v1 -> v2  sceneId <- current（缺省 s00）；tendency <- 旧 score 六极差值；
//	          bgmEnabled <- bgmOn；bgmVolume 0.5；routeLock null；unlockedEndings []；choiceHistory []
//	v2 -> v3  orderHistory []；orderDrafts {}
//	v3 -> v4  tendencies <- tendency；tendencyMagnitude <- Σ|tendency|；relations {}；inventory {}；
//	          pathHistory [sceneId]（若是真实场景）；checkpoints []；dialogueHistory <- log；
//	          seenText {}；audioSettings <- {music:{enabled,volume}}；ending ""；值为 false 的标记被丢弃
type upgradeStep func(doc map[string]interface{})

var upgrades = map[int]upgradeStep{
	1: upgradeV1,
	2: upgradeV2,
	3: upgradeV3,
}

// legacyStartScene v1 存档缺少场景指针时的回落场景
const legacyStartScene = "s00"

// upgrade 逐级升级到当前版本
func upgrade(doc map[string]interface{}, from int) (map[string]interface{}, error) {
	for v := from; v < models.CurrentSchemaVersion; v++ {
		step, ok := upgrades[v]
		if !ok {
			return nil, fmt.Errorf("缺少 v%d 的升级步骤", v)
		}
		step(doc)
		doc["schemaVersion"] = v + 1
	}
	return doc, nil
}

func upgradeV1(doc map[string]interface{}) {
	if _, ok := doc["sceneId"].(string); !ok {
		scene := legacyStartScene
		if cur, ok := doc["current"].(string); ok && cur != "" {
			scene = cur
		}
		doc["sceneId"] = scene
	}
	if _, ok := doc["tendency"].(map[string]interface{}); !ok {
		score, _ := doc["score"].(map[string]interface{})
		doc["tendency"] = map[string]interface{}{
			"rational":  float64(num(score["logic"]) - num(score["emotion"])),
			"cooperate": float64(num(score["coop"]) - num(score["oppose"])),
			"explore":   float64(num(score["explore"]) - num(score["preserve"])),
		}
	}
	if _, ok := doc["bgmEnabled"].(bool); !ok {
		on, _ := doc["bgmOn"].(bool)
		doc["bgmEnabled"] = on
	}
	if _, ok := doc["bgmVolume"].(float64); !ok {
		doc["bgmVolume"] = 0.5
	}
	ensureArray(doc, "unlockedEndings")
	ensureArray(doc, "choiceHistory")
	if _, ok := doc["routeLock"]; !ok {
		doc["routeLock"] = nil
	}
	delete(doc, "current")
	delete(doc, "score")
	delete(doc, "bgmOn")
}

func upgradeV2(doc map[string]interface{}) {
	ensureArray(doc, "orderHistory")
	ensureObject(doc, "orderDrafts")
}

func upgradeV3(doc map[string]interface{}) {
	tendency, _ := doc["tendency"].(map[string]interface{})
	tendencies := make(map[string]interface{}, len(tendency))
	magnitude := 0
	for k, v := range tendency {
		n := num(v)
		tendencies[k] = n
		magnitude += int(math.Abs(float64(n)))
	}
	doc["tendencies"] = tendencies
	doc["tendencyMagnitude"] = magnitude
	delete(doc, "tendency")

	if flags, ok := doc["flags"].(map[string]interface{}); ok {
		for k, v := range flags {
			if b, isBool := v.(bool); !isBool || !b {
				delete(flags, k)
			}
		}
	}

	ensureObject(doc, "relations")
	ensureObject(doc, "inventory")
	ensureObject(doc, "seenText")
	ensureArray(doc, "checkpoints")
	if _, ok := doc["pathHistory"].([]interface{}); !ok {
		path := []interface{}{}
		if id, ok := doc["sceneId"].(string); ok && models.ValidSceneID(id) {
			path = append(path, id)
		}
		doc["pathHistory"] = path
	}

	dialogue := []interface{}{}
	if log, ok := doc["log"].([]interface{}); ok {
		for _, line := range log {
			if text, ok := line.(string); ok {
				dialogue = append(dialogue, map[string]interface{}{"sceneId": "", "text": text})
			}
		}
	}
	doc["dialogueHistory"] = dialogue
	delete(doc, "log")

	enabled, _ := doc["bgmEnabled"].(bool)
	volume, ok := doc["bgmVolume"].(float64)
	if !ok {
		volume = 0.5
	}
	doc["audioSettings"] = map[string]interface{}{
		"music": map[string]interface{}{
			"enabled": enabled,
			"volume":  math.Min(1, math.Max(0, volume)),
		},
	}
	delete(doc, "bgmEnabled")
	delete(doc, "bgmVolume")

	if lock, ok := doc["routeLock"].(string); !ok || lock == "" {
		delete(doc, "routeLock")
	}
	if _, ok := doc["ending"].(string); !ok {
		doc["ending"] = ""
	}
}

func ensureArray(doc map[string]interface{}, key string) {
	if _, ok := doc[key].([]interface{}); !ok {
		doc[key] = []interface{}{}
	}
}

func ensureObject(doc map[string]interface{}, key string) {
	if _, ok := doc[key].(map[string]interface{}); !ok {
		doc[key] = map[string]interface{}{}
	}
}

// num 把数字转换为整数，非数字按0处理。
// 解码得到的是 float64，升级链中途写入的中间值可能是 int。
func num(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(math.Round(n))
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		f, _ := n.Float64()
		return int(math.Round(f))
	}
	return 0
}
