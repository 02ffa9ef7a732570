package deepsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"influencehub/internal/model"
	"influencehub/internal/pkg/joblock"
	"influencehub/internal/pkg/metrics"
	"influencehub/internal/videoai"

	"gorm.io/gorm"
)

// 深度分析的业务错误，由 API 层映射到 HTTP 状态码。
var (
	ErrNotFound     = errors.New("deep search record not found")
	ErrJobPending   = errors.New("deep search job already in progress")
	ErrNotRetryable = errors.New("only failed jobs can be retried")
	ErrInvalidURL   = errors.New("invalid video url")
)

// defaultPrompt 调用方没给提示词且没有上下文时使用。
const defaultPrompt = "Analyze this video for brand sponsorship fit: audience, tone, content quality, and any brand-safety concerns."

// Request 一次深度分析请求。
//
// ChannelName/ProductName 仅用于缺省提示词的个性化，可空。
type Request struct {
	UserID      uint
	VideoURL    string
	Prompt      string
	ChannelID   string
	ChannelName string
	ProductName string
}

// analysisPrompt 解析本次分析用的提示词。
// 显式提示词优先，否则按博主/商品上下文套用缺省模板。
func analysisPrompt(req Request) string {
	if p := strings.TrimSpace(req.Prompt); p != "" {
		return p
	}
	channel := strings.TrimSpace(req.ChannelName)
	product := strings.TrimSpace(req.ProductName)
	switch {
	case channel != "" && product != "":
		return fmt.Sprintf("Analyze this video by %s for sponsorship fit with %s: audience, tone, content quality, and any brand-safety concerns.", channel, product)
	case channel != "":
		return fmt.Sprintf("Analyze this video by %s for brand sponsorship fit: audience, tone, content quality, and any brand-safety concerns.", channel)
	case product != "":
		return fmt.Sprintf("Analyze this video for sponsorship fit with %s: audience, tone, content quality, and any brand-safety concerns.", product)
	}
	return defaultPrompt
}

// VideoAnalyzer 抽象视频理解服务。
type VideoAnalyzer interface {
	EnsureIndex(ctx context.Context) (string, error)
	UploadVideo(ctx context.Context, indexID, path string) (string, error)
	WaitForIndexing(ctx context.Context, taskID string) (string, error)
	Summarize(ctx context.Context, videoID string) (*videoai.Summary, error)
	Analyze(ctx context.Context, videoID, prompt string) (string, error)
}

// Service 视频深度分析服务。
//
// 以视频 URL 为幂等键：completed 记录直接命中缓存；
// pending/processing 返回进行中；failed 需显式 retry。
// 任务在请求内同步执行，数据库唯一键 + Redis 锁双重防并发。
type Service struct {
	db       *gorm.DB
	analyzer VideoAnalyzer
	download VideoDownloader
	locker   *joblock.Locker
	logger   *slog.Logger
}

// NewService 创建深度分析服务。
func NewService(db *gorm.DB, analyzer VideoAnalyzer, download VideoDownloader, locker *joblock.Locker, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		analyzer: analyzer,
		download: download,
		locker:   locker,
		logger:   logger,
	}
}

// Analyze 发起（或命中缓存的）深度分析。
//
// 返回的记录要么是缓存命中的 completed 记录，要么是本次
// 同步执行后的最终状态（completed 或 failed）。
func (s *Service) Analyze(ctx context.Context, req Request) (*model.DeepSearchCache, error) {
	normalized, err := NormalizeURL(req.VideoURL)
	if err != nil {
		return nil, err
	}

	var existing model.DeepSearchCache
	err = s.db.WithContext(ctx).Where("video_url = ?", normalized).First(&existing).Error
	switch {
	case err == nil:
		switch existing.Status {
		case model.DeepSearchCompleted:
			metrics.DeepSearchJobs.WithLabelValues("cache_hit").Inc()
			return &existing, nil
		case model.DeepSearchPending, model.DeepSearchProcessing:
			metrics.DeepSearchJobs.WithLabelValues("rejected").Inc()
			return nil, ErrJobPending
		case model.DeepSearchFailed:
			metrics.DeepSearchJobs.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("%w: previous attempt failed, call retry", ErrNotRetryable)
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("lookup deep search cache: %w", err)
	}

	acquired, err := s.locker.Acquire(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("acquire job lock: %w", err)
	}
	if !acquired {
		metrics.DeepSearchJobs.WithLabelValues("rejected").Inc()
		return nil, ErrJobPending
	}
	defer func() {
		if relErr := s.locker.Release(context.WithoutCancel(ctx), normalized); relErr != nil {
			s.logger.Warn("release job lock failed", slog.String("error", relErr.Error()))
		}
	}()

	// 原子登记：唯一键冲突说明有并发请求先到
	record := model.DeepSearchCache{
		UserID:    req.UserID,
		VideoURL:  normalized,
		ChannelID: strings.TrimSpace(req.ChannelID),
		Status:    model.DeepSearchPending,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		if isDuplicateKey(err) {
			metrics.DeepSearchJobs.WithLabelValues("rejected").Inc()
			return nil, ErrJobPending
		}
		return nil, fmt.Errorf("register deep search job: %w", err)
	}

	return s.run(ctx, &record, analysisPrompt(req))
}

// Retry 重新执行一个 failed 状态的任务。
func (s *Service) Retry(ctx context.Context, req Request) (*model.DeepSearchCache, error) {
	normalized, err := NormalizeURL(req.VideoURL)
	if err != nil {
		return nil, err
	}

	var record model.DeepSearchCache
	if err := s.db.WithContext(ctx).Where("video_url = ?", normalized).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup deep search cache: %w", err)
	}
	if record.Status != model.DeepSearchFailed {
		return nil, ErrNotRetryable
	}

	acquired, err := s.locker.Acquire(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("acquire job lock: %w", err)
	}
	if !acquired {
		return nil, ErrJobPending
	}
	defer func() {
		if relErr := s.locker.Release(context.WithoutCancel(ctx), normalized); relErr != nil {
			s.logger.Warn("release job lock failed", slog.String("error", relErr.Error()))
		}
	}()

	// failed → pending，且只允许从 failed 出发（并发 retry 只放行一个）
	res := s.db.WithContext(ctx).Model(&record).
		Where("status = ?", model.DeepSearchFailed).
		Updates(map[string]any{"status": model.DeepSearchPending, "error_message": ""})
	if res.Error != nil {
		return nil, fmt.Errorf("reset deep search job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotRetryable
	}
	record.Status = model.DeepSearchPending
	record.ErrorMessage = ""

	return s.run(ctx, &record, analysisPrompt(req))
}

// Status 查询单条记录。
func (s *Service) Status(ctx context.Context, videoURL string) (*model.DeepSearchCache, error) {
	normalized, err := NormalizeURL(videoURL)
	if err != nil {
		return nil, err
	}
	var record model.DeepSearchCache
	if err := s.db.WithContext(ctx).Where("video_url = ?", normalized).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup deep search cache: %w", err)
	}
	return &record, nil
}

// History 返回用户的分析记录，新的在前。
func (s *Service) History(ctx context.Context, userID uint) ([]model.DeepSearchCache, error) {
	var records []model.DeepSearchCache
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list deep search history: %w", err)
	}
	return records, nil
}

// run 同步执行下载 → 上传 → 索引 → 摘要 → 分析的完整流程。
//
// 任何一步失败都把记录置为 failed 并保留原因；下载产物
// 在所有退出路径上清理。
func (s *Service) run(ctx context.Context, record *model.DeepSearchCache, prompt string) (*model.DeepSearchCache, error) {
	start := time.Now()
	if prompt = strings.TrimSpace(prompt); prompt == "" {
		prompt = defaultPrompt
	}

	if err := s.setStatus(ctx, record, model.DeepSearchProcessing); err != nil {
		return nil, err
	}

	if err := s.execute(ctx, record, prompt); err != nil {
		s.logger.Error("deep search job failed",
			slog.String("video_url", record.VideoURL),
			slog.String("error", err.Error()))
		record.Status = model.DeepSearchFailed
		record.ErrorMessage = err.Error()
		if dbErr := s.db.WithContext(context.WithoutCancel(ctx)).Save(record).Error; dbErr != nil {
			s.logger.Error("persist failed status", slog.String("error", dbErr.Error()))
		}
		metrics.DeepSearchJobs.WithLabelValues("failed").Inc()
		metrics.DeepSearchDuration.Observe(time.Since(start).Seconds())
		return record, nil
	}

	record.Status = model.DeepSearchCompleted
	record.ErrorMessage = ""
	if err := s.db.WithContext(ctx).Save(record).Error; err != nil {
		return nil, fmt.Errorf("persist completed job: %w", err)
	}
	metrics.DeepSearchJobs.WithLabelValues("completed").Inc()
	metrics.DeepSearchDuration.Observe(time.Since(start).Seconds())

	s.logger.Info("deep search job completed",
		slog.String("video_url", record.VideoURL),
		slog.Duration("took", time.Since(start)))
	return record, nil
}

func (s *Service) execute(ctx context.Context, record *model.DeepSearchCache, prompt string) error {
	path, cleanup, err := s.download.Download(ctx, record.VideoURL)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer cleanup()

	indexID, err := s.analyzer.EnsureIndex(ctx)
	if err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}
	record.IndexID = indexID

	taskID, err := s.analyzer.UploadVideo(ctx, indexID, path)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	videoID, err := s.analyzer.WaitForIndexing(ctx, taskID)
	if err != nil {
		if errors.Is(err, videoai.ErrPollTimeout) {
			return fmt.Errorf("indexing timed out: %w", err)
		}
		return fmt.Errorf("indexing: %w", err)
	}
	record.VideoID = videoID

	summary, err := s.analyzer.Summarize(ctx, videoID)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	record.Summary = summary.Summary
	if chapters, err := json.Marshal(summary.Chapters); err == nil {
		record.Chapters = string(chapters)
	}

	analysis, err := s.analyzer.Analyze(ctx, videoID, prompt)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	record.Analysis = analysis

	return nil
}

func (s *Service) setStatus(ctx context.Context, record *model.DeepSearchCache, status string) error {
	record.Status = status
	if err := s.db.WithContext(ctx).Model(record).Update("status", status).Error; err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// NormalizeURL 清洗视频链接：去空白、去 fragment、小写 host。
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	return u.String(), nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint")
}
