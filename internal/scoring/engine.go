package scoring

import (
	"fmt"
	"math"

	"influencehub/internal/model"
)

// weightEpsilon 五项权重之和允许偏离 1.0 的误差。
const weightEpsilon = 1e-6

// Weights 五项评分权重，和必须为 1.0。
type Weights struct {
	CPM       float64 `json:"cpm_weight"`
	RPM       float64 `json:"rpm_weight"`
	ViewsSubs float64 `json:"views_subs_weight"`
	Values    float64 `json:"values_weight"`
	Cultural  float64 `json:"cultural_weight"`
}

// DefaultWeights 默认权重。
func DefaultWeights() Weights {
	return Weights{CPM: 0.2, RPM: 0.1, ViewsSubs: 0.2, Values: 0.2, Cultural: 0.3}
}

// WeightsFromModel 从存储记录转换。
func WeightsFromModel(w *model.ScoringWeights) Weights {
	if w == nil {
		return DefaultWeights()
	}
	return Weights{
		CPM:       w.CPMWeight,
		RPM:       w.RPMWeight,
		ViewsSubs: w.ViewsSubsWeight,
		Values:    w.ValuesWeight,
		Cultural:  w.CulturalWeight,
	}
}

// Validate 校验权重非负且和为 1.0。
func (w Weights) Validate() error {
	for _, v := range []float64{w.CPM, w.RPM, w.ViewsSubs, w.Values, w.Cultural} {
		if v < 0 || v > 1 {
			return fmt.Errorf("each weight must be in [0,1]")
		}
	}
	sum := w.CPM + w.RPM + w.ViewsSubs + w.Values + w.Cultural
	if math.Abs(sum-1.0) > weightEpsilon {
		return fmt.Errorf("weights must sum to 1.0, got %.4f", sum)
	}
	return nil
}

// Composite 计算加权总分，保留 1 位小数。
//
// 各子分均在 [0,100]，权重和为 1.0，因此结果也在 [0,100]。
func Composite(s model.SubScores, w Weights) float64 {
	total := w.CPM*s.CPM +
		w.RPM*s.RPM +
		w.ViewsSubs*s.ViewsSubs +
		w.Values*s.Values +
		w.Cultural*s.Cultural
	return math.Round(total*10) / 10
}

// CPM 成本分的线性映射端点：$2 及以下记满分，$40 及以上记零分。
const (
	cpmBestUSD  = 2.0
	cpmWorstUSD = 40.0
)

// ScoreCPM CPM 越低越好（同样的曝光更便宜）。
func ScoreCPM(cpmMid float64) float64 {
	return clamp100((cpmWorstUSD - cpmMid) / (cpmWorstUSD - cpmBestUSD) * 100)
}

// RPM 收益分的线性映射端点。
const rpmBestUSD = 8.0

// ScoreRPM RPM 越高说明受众购买力越强。
func ScoreRPM(rpmMid float64) float64 {
	return clamp100(rpmMid / rpmBestUSD * 100)
}

// viewsSubsCeiling 播放/订阅比达到该值即记满分。
const viewsSubsCeiling = 0.5

// ScoreViewsSubs 播放/订阅比分：比值越高，内容触达越健康。
func ScoreViewsSubs(avgViews float64, subscribers int64) float64 {
	if avgViews <= 0 || subscribers <= 0 {
		return 0
	}
	ratio := avgViews / float64(subscribers)
	return clamp100(ratio / viewsSubsCeiling * 100)
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
