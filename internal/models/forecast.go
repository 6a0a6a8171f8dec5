// internal/models/forecast.go
package models

// 诊断因素种类
const (
	FactorAxis = "axis"
	FactorFlag = "flag"
)

// EndingScore 单个结局的预测得分
type EndingScore struct {
	EndingID string  `json:"ending_id"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Distance float64 `json:"distance"`
	FlagBias float64 `json:"flag_bias"`
}

// Diagnosis 主导因素诊断
type Diagnosis struct {
	Factor       string  `json:"factor"`
	Kind         string  `json:"kind"`
	Contribution float64 `json:"contribution"`
	Line         string  `json:"line"`
}

// Forecast 结局预测结果。派生数据，不持久化。
type Forecast struct {
	Prediction string             `json:"prediction"`
	EndingID   string             `json:"ending_id"`
	Name       string             `json:"name"`
	SideQuest  bool               `json:"side_quest"`
	Baseline   bool               `json:"baseline"`
	Locked     bool               `json:"locked"`
	Scores     []EndingScore      `json:"scores"`
	Normalized map[string]float64 `json:"normalized"`
	Diagnosis  Diagnosis          `json:"diagnosis"`
	Hint       string             `json:"hint"`
}
