package model

import (
	"time"
)

// Product 表示公司登记的一件商品。
//
// 商品由 URL 导入，标题、描述等信息从商品页抓取得到。
// 同一用户下 URL 唯一（复合唯一索引），重复导入直接冲突。
type Product struct {
	ID        uint      `gorm:"primaryKey"` // 商品 ID
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	UserID      uint    `gorm:"not null;uniqueIndex:idx_user_url"`                   // 所属用户 ID
	URL         string  `gorm:"type:varchar(191);not null;uniqueIndex:idx_user_url"` // 商品页链接
	Title       string  // 商品标题
	Description string  // 商品描述
	Price       float64 // 商品价格 (单位: 美元)
	Category    string  `gorm:"type:varchar(64)"` // 商品类目
	ImageURL    string  // 主图链接
	Keywords    string  // 搜索关键词（逗号分隔），供搜索编排器取词
}

// ScoringWeights 保存单个用户的评分权重。
//
// 五项权重之和必须为 1.0，在写入前由 API 层校验。
type ScoringWeights struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	UserID          uint    `gorm:"uniqueIndex;not null"` // 所属用户 ID（每用户一条）
	CPMWeight       float64 `gorm:"default:0.2"`          // CPM 成本分权重
	RPMWeight       float64 `gorm:"default:0.1"`          // RPM 收益分权重
	ViewsSubsWeight float64 `gorm:"default:0.2"`          // 播放/订阅比权重
	ValuesWeight    float64 `gorm:"default:0.2"`          // 价值观契合度权重
	CulturalWeight  float64 `gorm:"default:0.3"`          // 文化契合度权重
}

// 深度分析任务状态。
const (
	DeepSearchPending    = "pending"    // 已登记，尚未开始处理
	DeepSearchProcessing = "processing" // 下载 / 分析进行中
	DeepSearchCompleted  = "completed"  // 分析完成，结果已入库
	DeepSearchFailed     = "failed"     // 失败，可通过 retry 重新入队
)

// DeepSearchCache 表示一次视频深度分析任务及其结果缓存。
//
// VideoURL 全局唯一，是任务的幂等键：同一视频只分析一次，
// 后续请求直接命中缓存。
type DeepSearchCache struct {
	ID        uint      `gorm:"primaryKey"` // 任务 ID
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	UserID    uint   `gorm:"index;not null"`                         // 发起用户 ID
	VideoURL  string `gorm:"type:varchar(191);uniqueIndex;not null"` // 视频链接（幂等键）
	ChannelID string `gorm:"type:varchar(64)"`                       // 视频所属频道 ID（可空）
	Status    string `gorm:"type:varchar(16);default:pending"`       // pending / processing / completed / failed

	VideoID      string `gorm:"type:varchar(64)"` // 视频理解服务的视频句柄
	IndexID      string `gorm:"type:varchar(64)"` // 视频理解服务的索引句柄
	Summary      string // 视频摘要
	Chapters     string // 章节列表（JSON）
	Analysis     string // 按提示词生成的分析结果
	ErrorMessage string // 失败原因（仅 failed 状态）
}
