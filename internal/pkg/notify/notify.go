package notify

import "context"

// SponsorMail 一封合作邀约邮件的内容。
type SponsorMail struct {
	To          string // 接收邮箱
	CompanyName string // 发件公司名称
	ChannelName string // 目标博主频道名
	ChannelURL  string // 频道链接
	ProductName string // 希望推广的商品
	Body        string // 正文 HTML（为空时使用内置模板）
}

// NotificationMail 发给公司账号本身的站内通知邮件（搜索完成等）。
type NotificationMail struct {
	To              string // 接收邮箱
	Subject         string // 邮件主题
	Message         string // 通知正文
	InfluencerCount int    // 本次搜索找到的候选人数
}

// Notifier 定义邮件发送接口。
type Notifier interface {
	// SendSponsorMail 发送合作邀约邮件。
	SendSponsorMail(ctx context.Context, mail *SponsorMail) error
	// SendNotification 发送通知邮件。
	SendNotification(ctx context.Context, mail *NotificationMail) error
}
