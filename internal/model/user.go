package model

import "time"

// User 表示一个公司账号。
//
// 一个账号对应一家公司，品牌画像（行业、受众、关键词）直接挂在账号上。
type User struct {
	ID        uint      `gorm:"primaryKey"`                    // 用户 ID
	Email     string    `gorm:"type:varchar(191);uniqueIndex"` // 邮箱（唯一）
	Password  string    `gorm:"not null"`                      // bcrypt 哈希
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	CompanyName       string // 公司名称
	Website           string // 官网地址
	Description       string // 公司简介
	Niche             string `gorm:"type:varchar(64)"` // 所属行业
	TargetAudience    string // 目标受众描述
	ProductCategories string // 产品类目（JSON 数组）
	MarketingGoals    string // 营销目标描述
	Keywords          string // 搜索关键词（JSON 数组，由品牌画像生成）

	Products []Product `gorm:"foreignKey:UserID"`
}
