package youtube

import (
	"context"
	"fmt"
	"strings"
	"time"

	"influencehub/internal/pkg/metrics"
	"influencehub/internal/pkg/ratelimit"

	"google.golang.org/api/option"
	youtubeapi "google.golang.org/api/youtube/v3"
)

// statsBatchSize channels.list / videos.list 单次最多接受 50 个 ID。
const statsBatchSize = 50

// Channel 候选频道的原始信息。
type Channel struct {
	ID              string // 频道 ID
	Title           string // 频道名称
	Description     string // 频道简介
	Country         string // 所在国家（ISO 代码，可能为空）
	Language        string // 默认语言（可能为空）
	Subscribers     int64  // 订阅数
	UploadsPlaylist string // 上传列表 ID
}

// VideoStats 近期视频的聚合指标。
type VideoStats struct {
	AvgViews       float64   // 平均播放量
	EngagementRate float64   // 互动率 (likes+comments)/views
	LastPublished  time.Time // 最近一次发布时间
}

// Client 封装 YouTube Data API v3。
//
// 所有调用先过限流器，避免耗尽每日配额。
type Client struct {
	svc        *youtubeapi.Service
	limiter    *ratelimit.RateLimiter
	pageSize   int64
	regionCode string
}

// New 创建 YouTube 客户端。regionCode 为空时不限定搜索区域。
func New(ctx context.Context, apiKey string, limiter *ratelimit.RateLimiter, pageSize int, regionCode string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("youtube api key is empty")
	}
	svc, err := youtubeapi.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	if pageSize <= 0 || pageSize > statsBatchSize {
		pageSize = statsBatchSize
	}
	return &Client{
		svc:        svc,
		limiter:    limiter,
		pageSize:   int64(pageSize),
		regionCode: regionCode,
	}, nil
}

// SearchChannelIDs 按关键词搜索频道，返回去重后的频道 ID。
func (c *Client) SearchChannelIDs(ctx context.Context, query string, maxResults int) ([]string, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}

	var ids []string
	seen := make(map[string]bool)
	pageToken := ""

	for len(ids) < maxResults {
		call := c.svc.Search.List([]string{"snippet"}).
			Q(query).
			Type("channel").
			MaxResults(c.pageSize).
			Context(ctx)
		if c.regionCode != "" {
			call = call.RegionCode(c.regionCode)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			metrics.UpstreamCalls.WithLabelValues("youtube", "error").Inc()
			return nil, fmt.Errorf("youtube search: %w", err)
		}
		metrics.UpstreamCalls.WithLabelValues("youtube", "ok").Inc()

		for _, item := range resp.Items {
			if item.Id == nil || item.Id.ChannelId == "" {
				continue
			}
			if seen[item.Id.ChannelId] {
				continue
			}
			seen[item.Id.ChannelId] = true
			ids = append(ids, item.Id.ChannelId)
			if len(ids) >= maxResults {
				break
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return ids, nil
}

// Channels 批量拉取频道详情，自动按 50 个一批切分。
func (c *Client) Channels(ctx context.Context, ids []string) ([]Channel, error) {
	var out []Channel

	for start := 0; start < len(ids); start += statsBatchSize {
		end := start + statsBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		if err := c.acquire(ctx); err != nil {
			return nil, err
		}

		resp, err := c.svc.Channels.List([]string{"snippet", "statistics", "contentDetails"}).
			Id(strings.Join(batch, ",")).
			Context(ctx).
			Do()
		if err != nil {
			metrics.UpstreamCalls.WithLabelValues("youtube", "error").Inc()
			return nil, fmt.Errorf("youtube channels.list: %w", err)
		}
		metrics.UpstreamCalls.WithLabelValues("youtube", "ok").Inc()

		for _, item := range resp.Items {
			ch := Channel{ID: item.Id}
			if item.Snippet != nil {
				ch.Title = item.Snippet.Title
				ch.Description = item.Snippet.Description
				ch.Country = item.Snippet.Country
				ch.Language = item.Snippet.DefaultLanguage
			}
			if item.Statistics != nil {
				ch.Subscribers = int64(item.Statistics.SubscriberCount)
			}
			if item.ContentDetails != nil && item.ContentDetails.RelatedPlaylists != nil {
				ch.UploadsPlaylist = item.ContentDetails.RelatedPlaylists.Uploads
			}
			out = append(out, ch)
		}
	}

	return out, nil
}

// RecentVideoStats 取上传列表最近 n 条视频，计算平均播放量与互动率。
//
// 播放量为 0 的视频不参与互动率计算；列表为空返回零值。
func (c *Client) RecentVideoStats(ctx context.Context, uploadsPlaylist string, n int) (VideoStats, error) {
	var stats VideoStats
	if uploadsPlaylist == "" {
		return stats, nil
	}
	if n <= 0 || n > statsBatchSize {
		n = 10
	}

	if err := c.acquire(ctx); err != nil {
		return stats, err
	}

	plResp, err := c.svc.PlaylistItems.List([]string{"contentDetails"}).
		PlaylistId(uploadsPlaylist).
		MaxResults(int64(n)).
		Context(ctx).
		Do()
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues("youtube", "error").Inc()
		return stats, fmt.Errorf("youtube playlistItems.list: %w", err)
	}
	metrics.UpstreamCalls.WithLabelValues("youtube", "ok").Inc()

	var videoIDs []string
	for _, item := range plResp.Items {
		if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
			videoIDs = append(videoIDs, item.ContentDetails.VideoId)
		}
	}
	if len(videoIDs) == 0 {
		return stats, nil
	}

	if err := c.acquire(ctx); err != nil {
		return stats, err
	}

	vResp, err := c.svc.Videos.List([]string{"snippet", "statistics"}).
		Id(strings.Join(videoIDs, ",")).
		Context(ctx).
		Do()
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues("youtube", "error").Inc()
		return stats, fmt.Errorf("youtube videos.list: %w", err)
	}
	metrics.UpstreamCalls.WithLabelValues("youtube", "ok").Inc()

	var totalViews, totalEngagement uint64
	var viewedVideos int

	for _, v := range vResp.Items {
		if v.Statistics == nil {
			continue
		}
		totalViews += v.Statistics.ViewCount
		if v.Statistics.ViewCount > 0 {
			totalEngagement += v.Statistics.LikeCount + v.Statistics.CommentCount
			viewedVideos++
		}
		if v.Snippet != nil && v.Snippet.PublishedAt != "" {
			if ts, err := time.Parse(time.RFC3339, v.Snippet.PublishedAt); err == nil && ts.After(stats.LastPublished) {
				stats.LastPublished = ts
			}
		}
	}

	if len(vResp.Items) > 0 {
		stats.AvgViews = float64(totalViews) / float64(len(vResp.Items))
	}
	if viewedVideos > 0 && totalViews > 0 {
		stats.EngagementRate = float64(totalEngagement) / float64(totalViews)
	}

	return stats, nil
}

func (c *Client) acquire(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("youtube ratelimit: %w", err)
	}
	return nil
}
