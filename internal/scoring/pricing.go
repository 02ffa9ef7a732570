package scoring

import "math"

// minPartnershipUSD 任何合作的报价下限。
const minPartnershipUSD = 50.0

// SuggestPricing 根据 CPM/RPM 与互动指标给出合作报价区间（美元）。
//
// 以平均播放量 × 中值 CPM 为基础价，再按订阅量级、互动率、
// 受众质量（RPM）修正，最后给出 ±20% 区间并应用报价下限。
func SuggestPricing(cpm, rpm Range, avgViews float64, subscribers int64, engagementRate float64) Range {
	if avgViews <= 0 {
		return Range{}
	}

	base := (avgViews / 1000.0) * cpm.Mid()
	adjusted := base * subscriberMultiplier(subscribers) *
		engagementMultiplier(engagementRate) *
		qualityMultiplier(rpm.Mid())

	low := math.Max(adjusted*0.8, minPartnershipUSD)
	high := math.Max(adjusted*1.2, low*1.2)

	return Range{Min: round2(low), Max: round2(high)}
}

// ExpectedProfit 估算与该博主合作的预期收益区间（美元）。
//
// 基础转化率 0.1%，按互动率、受众质量、触达量级放大，上限 5%；
// 再乘以客单利润和播放量，扣除合作费用，收益不为负。
func ExpectedProfit(productProfit float64, cpm, rpm Range, avgViews float64, subscribers int64, engagementRate float64, pricing Range) Range {
	if productProfit <= 0 || avgViews <= 0 {
		return Range{}
	}

	conversion := 0.001 *
		conversionEngagementMultiplier(engagementRate) *
		conversionQualityMultiplier(rpm.Mid()) *
		subscriberMultiplier(subscribers)
	conversion = math.Min(conversion, 0.05)

	unitsMin := math.Floor(avgViews * conversion * 0.8)
	unitsMax := math.Floor(avgViews * conversion * 1.2)

	revenueMin := unitsMin * productProfit
	revenueMax := unitsMax * productProfit

	profitMin := revenueMin
	profitMax := revenueMax
	if pricing.Min > 0 && pricing.Max > 0 {
		// 保守口径：最小收益按最高报价扣费
		profitMin = revenueMin - pricing.Max
		profitMax = revenueMax - pricing.Min
	}

	profitMin = math.Max(profitMin, 0)
	profitMax = math.Max(profitMax, profitMin)

	return Range{Min: round2(profitMin), Max: round2(profitMax)}
}

func subscriberMultiplier(subscribers int64) float64 {
	switch {
	case subscribers >= 1000000:
		return 1.5
	case subscribers >= 500000:
		return 1.3
	case subscribers >= 100000:
		return 1.1
	case subscribers >= 10000:
		return 1.0
	case subscribers > 0:
		return 0.8
	default:
		return 1.0
	}
}

func engagementMultiplier(er float64) float64 {
	switch {
	case er >= 0.1:
		return 1.4
	case er >= 0.05:
		return 1.2
	case er >= 0.02:
		return 1.0
	case er > 0:
		return 0.8
	default:
		return 1.0
	}
}

func qualityMultiplier(avgRPM float64) float64 {
	switch {
	case avgRPM >= 5.0:
		return 1.3
	case avgRPM >= 2.0:
		return 1.1
	default:
		return 0.9
	}
}

func conversionEngagementMultiplier(er float64) float64 {
	switch {
	case er >= 0.1:
		return 3.0
	case er >= 0.05:
		return 2.0
	case er >= 0.02:
		return 1.5
	default:
		return 1.0
	}
}

func conversionQualityMultiplier(avgRPM float64) float64 {
	switch {
	case avgRPM >= 5.0:
		return 2.0
	case avgRPM >= 2.0:
		return 1.5
	default:
		return 1.0
	}
}
