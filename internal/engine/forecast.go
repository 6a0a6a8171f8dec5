// internal/engine/forecast.go
package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/yzy0324/neon-tape-vn/internal/models"
	"github.com/yzy0324/neon-tape-vn/internal/story"
)

const scoreEpsilon = 1e-9

// Forecaster 结局预测引擎。纯函数：不修改状态、不写日志、不移动场景指针。
type Forecaster struct {
	graph *story.Graph
}

// NewForecaster 创建预测引擎
func NewForecaster(g *story.Graph) *Forecaster {
	return &Forecaster{graph: g}
}

// Normalize 归一化倾向向量：除以累计施加的绝对增量，结果落在 [-1, 1]
func Normalize(s *models.State, axes []string) map[string]float64 {
	out := make(map[string]float64, len(axes))
	for _, a := range axes {
		if s.TendencyMagnitude <= 0 {
			out[a] = 0
			continue
		}
		out[a] = float64(s.Tendencies[a]) / float64(s.TendencyMagnitude)
	}
	return out
}

// Forecast 计算预测与诊断
func (f *Forecaster) Forecast(s *models.State) models.Forecast {
	g := f.graph
	axes := g.AxisNames()
	norm := Normalize(s, axes)

	result := models.Forecast{Normalized: norm}
	if len(g.Endings) == 0 {
		result.Baseline = true
		return result
	}

	scores := make([]models.EndingScore, len(g.Endings))
	for i, e := range g.Endings {
		dist := 0.0
		for _, a := range axes {
			dist += math.Abs(norm[a] - e.Target[a])
		}
		bias := 0.0
		for flag, w := range e.FlagWeights {
			if s.HasFlag(flag) {
				bias += w
			}
		}
		scores[i] = models.EndingScore{
			EndingID: e.ID,
			Name:     e.Name,
			Score:    bias - dist,
			Distance: dist,
			FlagBias: bias,
		}
	}
	// 稳定排序：分数相同时保留编写顺序（A 先于 B 先于 C）
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score+scoreEpsilon
	})
	result.Scores = scores

	lead := scores[0].EndingID
	if s.TendencyMagnitude == 0 && !f.anyScoringFlag(s) && g.Baseline != "" {
		lead = g.Baseline
		result.Baseline = true
	}
	if s.RouteLock != "" {
		if _, ok := g.Ending(s.RouteLock); ok {
			lead = s.RouteLock
			result.Locked = true
		}
	}

	ending, _ := g.Ending(lead)
	result.EndingID = ending.ID
	result.Name = ending.Name
	result.Prediction = ending.ID
	if g.SideQuest != nil && s.HasFlag(g.SideQuest.Flag) {
		result.SideQuest = true
		result.Prediction += g.SideQuest.Suffix
	}
	result.Hint = ending.Hint
	if result.Locked {
		result.Hint = fmt.Sprintf("路线已锁定：%s【%s】。", ending.ID, ending.Name)
	}
	result.Diagnosis = f.diagnose(s, norm, ending, runnerUp(scores, lead), result)
	return result
}

func (f *Forecaster) anyScoringFlag(s *models.State) bool {
	for _, e := range f.graph.Endings {
		for flag, w := range e.FlagWeights {
			if w != 0 && s.HasFlag(flag) {
				return true
			}
		}
	}
	return false
}

func runnerUp(scores []models.EndingScore, lead string) string {
	for _, sc := range scores {
		if sc.EndingID != lead {
			return sc.EndingID
		}
	}
	return ""
}

// diagnose 找出对领先结局领先幅度贡献最大的单个轴或标记
func (f *Forecaster) diagnose(s *models.State, norm map[string]float64, lead models.EndingProfile, runner string, fc models.Forecast) models.Diagnosis {
	g := f.graph
	d := models.Diagnosis{}
	if fc.Baseline {
		d.Factor = "baseline"
		d.Line = fmt.Sprintf("终章预测：代号%s【%s】｜主导因素：无（基线预测）", fc.Prediction, lead.Name)
		return d
	}
	other, hasOther := g.Ending(runner)

	best := math.Inf(-1)
	label := ""
	for _, a := range g.Axes {
		c := -math.Abs(norm[a.Name] - lead.Target[a.Name])
		if hasOther {
			c += math.Abs(norm[a.Name] - other.Target[a.Name])
		}
		if c > best+scoreEpsilon {
			best, d.Factor, d.Kind, label = c, a.Name, models.FactorAxis, a.Label
		}
	}
	for _, flag := range s.SortedFlags() {
		c := lead.FlagWeights[flag]
		if hasOther {
			c -= other.FlagWeights[flag]
		}
		if c == 0 {
			continue
		}
		if c > best+scoreEpsilon {
			best, d.Factor, d.Kind = c, flag, models.FactorFlag
			label = g.Flags[flag]
			if label == "" {
				label = flag
			}
		}
	}
	d.Contribution = math.Round(best*100) / 100
	if d.Contribution == 0 {
		d.Contribution = 0
	}
	if label == "" {
		label = d.Factor
	}
	prefix := "终章预测"
	if fc.Locked {
		prefix = "路线锁定"
	}
	d.Line = fmt.Sprintf("%s：代号%s【%s】｜主导因素：%s (%+.2f)", prefix, fc.Prediction, lead.Name, label, d.Contribution)
	return d
}
