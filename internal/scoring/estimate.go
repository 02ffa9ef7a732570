package scoring

import (
	"math"
	"strings"
)

// 公开 API 拿不到真实 CPM/RPM，这里按领域基线 + 区域/季节/互动
// 修正做启发式估算，数值仅作相对排序用。

// nicheBaselinesUSD 各领域在美国市场的基线 CPM 区间（美元）。
var nicheBaselinesUSD = map[string][2]float64{
	"tech":      {8.0, 20.0},
	"finance":   {12.0, 35.0},
	"business":  {10.0, 25.0},
	"education": {6.0, 18.0},
	"health":    {7.0, 20.0},
	"fitness":   {6.0, 15.0},
	"beauty":    {5.0, 14.0},
	"gaming":    {3.0, 9.0},
	"travel":    {4.0, 12.0},
	"lifestyle": {4.0, 12.0},
	"sports":    {4.0, 12.0},
}

var defaultBaselineUSD = [2]float64{5.0, 12.0}

// nicheKeywords 关键词匹配顺序，先出现的领域优先。
// 固定顺序保证同一段文本总是推断出同一个领域。
var nicheKeywords = []string{
	"tech", "finance", "business", "education", "health",
	"fitness", "beauty", "gaming", "travel", "lifestyle", "sports",
}

// countryMultiplier 相对美国市场的粗粒度国家系数。
var countryMultiplier = map[string]float64{
	"US": 1.00, "CA": 0.95, "GB": 0.95, "UK": 0.95, "AU": 0.90,
	"DE": 0.90, "FR": 0.85, "NL": 0.90, "SE": 0.90, "NO": 0.95,
	"DK": 0.90, "FI": 0.85, "CH": 1.00, "JP": 0.90, "SG": 0.95,
	"IN": 0.35, "BR": 0.45, "MX": 0.50, "PH": 0.35, "ID": 0.35,
	"ES": 0.75, "IT": 0.75, "PL": 0.65, "TR": 0.45, "AE": 0.95,
}

// langMultiplier 国家未知时按语言兜底。
var langMultiplier = map[string]float64{
	"en": 1.0, "de": 0.9, "fr": 0.85, "es": 0.8, "pt": 0.75, "hi": 0.4,
}

// seasonality 按月份的季节系数，Q4 上浮。
var seasonality = map[int]float64{
	1: 0.85, 2: 0.9, 3: 0.95, 4: 1.0, 5: 1.0, 6: 0.95,
	7: 0.95, 8: 1.0, 9: 1.05, 10: 1.15, 11: 1.25, 12: 1.3,
}

// Signals 估算 CPM/RPM 所需的频道信号。
type Signals struct {
	Niche          string  // 内容领域
	Country        string  // ISO 国家代码，可为空
	Language       string  // ISO-639-1 语言代码，可为空
	AvgRecentViews float64 // 近期视频平均播放量
	EngagementRate float64 // 互动率 (likes+comments)/views，0..1
	Subscribers    int64   // 订阅数
	Month          int     // 1..12，用于季节系数；0 表示忽略
}

// Range 估算区间（美元）。
type Range struct {
	Min float64
	Max float64
}

// Mid 区间中值。
func (r Range) Mid() float64 { return (r.Min + r.Max) / 2 }

// EstimateCPM 估算频道受众的 CPM 区间。
func EstimateCPM(sig Signals) Range {
	base := pickBaseline(sig.Niche)
	mult := regionMultiplier(sig.Country, sig.Language) *
		seasonalityMultiplier(sig.Month) *
		engagementScaler(sig.EngagementRate) *
		recencyScaler(sig.AvgRecentViews, sig.Subscribers)

	return Range{
		Min: round2(base[0] * mult),
		Max: round2(base[1] * mult),
	}
}

// EstimateRPM 估算 RPM 区间。
//
// RPM 因为填充率等因素通常低于 CPM，按 0.55..0.65 折算。
func EstimateRPM(sig Signals) Range {
	cpm := EstimateCPM(sig)
	return Range{
		Min: round2(cpm.Min * 0.55),
		Max: round2(cpm.Max * 0.65),
	}
}

// InferNiche 从文本（频道简介等）中识别领域关键词，识别不到返回 fallback。
func InferNiche(text, fallback string) string {
	lower := strings.ToLower(text)
	for _, niche := range nicheKeywords {
		if strings.Contains(lower, niche) {
			return niche
		}
	}
	if fallback != "" {
		return fallback
	}
	return "default"
}

func pickBaseline(niche string) [2]float64 {
	key := strings.ToLower(strings.TrimSpace(niche))
	for _, k := range nicheKeywords {
		if strings.Contains(key, k) {
			return nicheBaselinesUSD[k]
		}
	}
	return defaultBaselineUSD
}

func regionMultiplier(country, language string) float64 {
	if country != "" {
		if m, ok := countryMultiplier[strings.ToUpper(country)]; ok {
			return m
		}
	}
	if language != "" {
		if m, ok := langMultiplier[strings.ToLower(language)]; ok {
			return m
		}
	}
	// 区域未知时取保守值
	return 0.8
}

func seasonalityMultiplier(month int) float64 {
	if month >= 1 && month <= 12 {
		return seasonality[month]
	}
	return 1.0
}

// engagementScaler 互动率映射到系数：3% 对应 1.0，每 +1% 约 +0.12，
// 限制在 [0.7, 1.5]。
func engagementScaler(er float64) float64 {
	if er <= 0 {
		return 1.0
	}
	er = math.Min(0.2, er)
	mult := 1.0 + ((er-0.03)/0.01)*0.12
	return math.Max(0.7, math.Min(1.5, mult))
}

// recencyScaler 近期播放量相对订阅数的热度系数。
//
// 播放/订阅比通过 sqrt 压缩方差，限制在 [0.7, 1.3]。
func recencyScaler(avgViews float64, subscribers int64) float64 {
	if avgViews <= 0 || subscribers <= 0 {
		return 1.0
	}
	ratio := avgViews / math.Max(1.0, float64(subscribers))
	mult := math.Sqrt(math.Max(0.05, math.Min(0.4, ratio)) / 0.1)
	return math.Max(0.7, math.Min(1.3, mult))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
