package model

// Candidate 表示一次搜索中的候选博主。
//
// 候选人只在单次请求内存在，不落库；评分结果随响应一起返回。
type Candidate struct {
	ChannelID      string  `json:"channel_id"`      // YouTube 频道 ID
	Title          string  `json:"title"`           // 频道名称
	URL            string  `json:"url"`             // 频道链接
	Subscribers    int64   `json:"subscribers"`     // 订阅数
	AvgViews       float64 `json:"avg_views"`       // 近期视频平均播放量
	EngagementRate float64 `json:"engagement_rate"` // 互动率 (likes+comments)/views
	Country        string  `json:"country"`         // 频道所在国家（ISO 代码）
	Language       string  `json:"language"`        // 内容语言
	Niche          string  `json:"niche"`           // 内容领域
	DaysSinceLast  int     `json:"days_since_last"` // 距最近一次发布的天数

	CPM                float64 `json:"cpm"`                  // 估算 CPM（美元）
	RPM                float64 `json:"rpm"`                  // 估算 RPM（美元）
	SuggestedPriceLow  float64 `json:"suggested_price_low"`  // 建议报价下限
	SuggestedPriceHigh float64 `json:"suggested_price_high"` // 建议报价上限
	ExpectedProfit     float64 `json:"expected_profit"`      // 预期收益（美元）

	Scores         SubScores `json:"scores"`          // 五项子分
	CompositeScore float64   `json:"composite_score"` // 加权总分（保留 1 位小数）
}

// SubScores 五项子分，均在 [0,100] 区间。
type SubScores struct {
	CPM       float64 `json:"cpm"`        // CPM 成本分（越低越好）
	RPM       float64 `json:"rpm"`        // RPM 收益分
	ViewsSubs float64 `json:"views_subs"` // 播放/订阅比分
	Values    float64 `json:"values"`     // 价值观契合度
	Cultural  float64 `json:"cultural"`   // 文化契合度
}
