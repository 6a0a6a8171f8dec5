// internal/validate/balance.go
package validate

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/yzy0324/neon-tape-vn/internal/models"
	"github.com/yzy0324/neon-tape-vn/internal/story"
)

// 失衡提示阈值
const (
	meanShiftThreshold  = 0.35
	totalShiftThreshold = 4
	extremeItemAbs      = 2
	signRatioThreshold  = 2.5
	signRatioMinSigned  = 4
	topExtremeCount     = 5
)

// ChoiceVector 单个选项在各倾向轴上的增量
type ChoiceVector struct {
	SceneID string         `json:"scene_id"`
	Index   int            `json:"index"`
	Label   string         `json:"label"`
	Deltas  map[string]int `json:"deltas"`
}

// Magnitude 各轴绝对值之和
func (v ChoiceVector) Magnitude() int {
	total := 0
	for _, d := range v.Deltas {
		total += int(math.Abs(float64(d)))
	}
	return total
}

// AxisStat 单轴统计
type AxisStat struct {
	Axis     string   `json:"axis"`
	Label    string   `json:"label"`
	Total    int      `json:"total"`
	Mean     float64  `json:"mean"`
	Min      int      `json:"min"`
	Max      int      `json:"max"`
	Positive int      `json:"pos"`
	Negative int      `json:"neg"`
	Zero     int      `json:"zero"`
	Hints    []string `json:"hints"`
}

// Balanced 该轴没有失衡提示
func (s AxisStat) Balanced() bool {
	return len(s.Hints) == 0
}

// BalanceReport 选项倾向分布报告
type BalanceReport struct {
	Choices  int            `json:"choices"`
	Axes     []AxisStat     `json:"axes"`
	Extremes []ChoiceVector `json:"extremes"`
}

// Balance 统计所有选项的倾向增量分布
func Balance(g *story.Graph) *BalanceReport {
	axes := g.AxisNames()
	var vectors []ChoiceVector
	for _, id := range g.SceneIDs() {
		scene, _ := g.Scene(id)
		for i, choice := range scene.Choices {
			v := ChoiceVector{SceneID: id, Index: i + 1, Label: choice.Label, Deltas: make(map[string]int, len(axes))}
			for _, axis := range axes {
				v.Deltas[axis] = 0
			}
			for _, e := range choice.Effects {
				if t, ok := e.(models.AdjustTendency); ok {
					for axis, d := range t.Deltas {
						v.Deltas[axis] += d
					}
				}
			}
			vectors = append(vectors, v)
		}
	}

	report := &BalanceReport{Choices: len(vectors), Axes: make([]AxisStat, 0, len(axes)), Extremes: []ChoiceVector{}}
	for _, ax := range g.Axes {
		values := make([]int, len(vectors))
		for i, v := range vectors {
			values[i] = v.Deltas[ax.Name]
		}
		stat := summarize(values)
		stat.Axis = ax.Name
		stat.Label = ax.Label
		stat.Hints = hints(stat)
		report.Axes = append(report.Axes, stat)
	}

	extremes := make([]ChoiceVector, 0, len(vectors))
	for _, v := range vectors {
		if v.Magnitude() > 0 {
			extremes = append(extremes, v)
		}
	}
	sort.SliceStable(extremes, func(i, j int) bool {
		return extremes[i].Magnitude() > extremes[j].Magnitude()
	})
	if len(extremes) > topExtremeCount {
		extremes = extremes[:topExtremeCount]
	}
	report.Extremes = append(report.Extremes, extremes...)
	return report
}

func summarize(values []int) AxisStat {
	var s AxisStat
	if len(values) == 0 {
		return s
	}
	s.Min, s.Max = values[0], values[0]
	for _, v := range values {
		s.Total += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		switch {
		case v > 0:
			s.Positive++
		case v < 0:
			s.Negative++
		default:
			s.Zero++
		}
	}
	s.Mean = float64(s.Total) / float64(len(values))
	return s
}

func hints(s AxisStat) []string {
	out := []string{}
	if math.Abs(s.Mean) >= meanShiftThreshold {
		out = append(out, fmt.Sprintf("均值偏移(%.2f)", s.Mean))
	}
	if abs(s.Total) >= totalShiftThreshold {
		out = append(out, fmt.Sprintf("总和偏移(%s)", signed(s.Total)))
	}
	if abs(s.Min) >= extremeItemAbs || abs(s.Max) >= extremeItemAbs {
		out = append(out, fmt.Sprintf("存在极端项[min=%s, max=%s]", signed(s.Min), signed(s.Max)))
	}
	hi, lo := s.Positive, s.Negative
	if lo > hi {
		hi, lo = lo, hi
	}
	if lo < 1 {
		lo = 1
	}
	if float64(hi)/float64(lo) >= signRatioThreshold && s.Positive+s.Negative >= signRatioMinSigned {
		out = append(out, fmt.Sprintf("正负数量失衡(%d:%d)", s.Positive, s.Negative))
	}
	return out
}

// Write 以文本形式输出报告
func (r *BalanceReport) Write(w io.Writer, axisOrder []string) {
	fmt.Fprintln(w, "== neon-tape-vn choice balance report ==")
	fmt.Fprintf(w, "choices: %d\n", r.Choices)
	for _, s := range r.Axes {
		fmt.Fprintf(w, "\n[%s] total=%s mean=%.2f min=%s max=%s pos=%d neg=%d zero=%d\n",
			s.Axis, signed(s.Total), s.Mean, signed(s.Min), signed(s.Max), s.Positive, s.Negative, s.Zero)
	}

	fmt.Fprintln(w, "\n-- imbalance hints --")
	for _, s := range r.Axes {
		if s.Balanced() {
			fmt.Fprintf(w, "✓ %s: 分布基本均衡\n", s.Label)
		} else {
			fmt.Fprintf(w, "⚠ %s: %s\n", s.Label, strings.Join(s.Hints, "；"))
		}
	}

	if len(r.Extremes) == 0 {
		return
	}
	fmt.Fprintln(w, "\n-- top extreme choices --")
	for _, v := range r.Extremes {
		parts := make([]string, 0, len(axisOrder))
		for _, axis := range axisOrder {
			parts = append(parts, fmt.Sprintf("%s=%s", axis, signed(v.Deltas[axis])))
		}
		fmt.Fprintf(w, "- %s#%d %s :: %s | magnitude=%d\n", v.SceneID, v.Index, v.Label, strings.Join(parts, " "), v.Magnitude())
	}
}

func signed(n int) string {
	if n > 0 {
		return fmt.Sprintf("+%d", n)
	}
	return fmt.Sprintf("%d", n)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
