package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"influencehub/internal/gemini"
	"influencehub/internal/model"
	"influencehub/internal/pkg/fanout"
	"influencehub/internal/pkg/metrics"
	"influencehub/internal/scoring"
	"influencehub/internal/youtube"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "influencehub:search:"

// ErrUpstream YouTube 搜索整体失败（与单个候选人失败区分，后者只跳过）。
var ErrUpstream = errors.New("influencer search upstream failed")

// ErrNoKeywords 既没有显式查询词，也无法从品牌画像生成关键词。
var ErrNoKeywords = errors.New("no search keywords available")

// ChannelSource 抽象 YouTube 数据来源。
type ChannelSource interface {
	SearchChannelIDs(ctx context.Context, query string, maxResults int) ([]string, error)
	Channels(ctx context.Context, ids []string) ([]youtube.Channel, error)
	RecentVideoStats(ctx context.Context, uploadsPlaylist string, n int) (youtube.VideoStats, error)
}

// FitJudge 抽象 LLM 契合度评估。
type FitJudge interface {
	JudgeFit(ctx context.Context, brand gemini.BrandProfile, channelTitle, channelDescription string) gemini.FitScores
	GenerateKeywords(ctx context.Context, brand gemini.BrandProfile) ([]string, error)
}

// Request 一次搜索请求。
type Request struct {
	User            *model.User     // 发起搜索的公司账号
	Query           string          // 显式查询词；为空时回退到商品/账号关键词 / LLM 生成
	ProductKeywords string          // 指定商品时商品自带的关键词（逗号分隔）
	MaxResults      int             // 候选人上限
	Weights         scoring.Weights // 本次使用的评分权重
	ProductProfit   float64         // 客单利润，用于预期收益估算（0 表示跳过）
}

// Result 搜索结果与聚合信息。
type Result struct {
	Query      string            `json:"query"`
	Candidates []model.Candidate `json:"candidates"`
	Total      int               `json:"total"`
	AvgViews   float64           `json:"avg_views"`
	MeanScore  float64           `json:"mean_score"`
	Skipped    int               `json:"skipped"` // 因指标拉取失败被丢弃的候选人数
	CachedAt   time.Time         `json:"cached_at"`
}

// Service 搜索编排器。
//
// 负责关键词解析、候选频道召回、指标并发补全、评分与排序，
// 结果按 (用户, 查询词, 权重) 维度在 Redis 里缓存。
type Service struct {
	source   ChannelSource
	judge    FitJudge
	rdb      *redis.Client
	logger   *slog.Logger
	cacheTTL time.Duration
	workers  int
	recentN  int
}

// NewService 创建搜索编排器。
func NewService(source ChannelSource, judge FitJudge, rdb *redis.Client, logger *slog.Logger, cacheTTL time.Duration, workers, recentVideos int) *Service {
	if workers <= 0 {
		workers = 4
	}
	if recentVideos <= 0 {
		recentVideos = 10
	}
	return &Service{
		source:   source,
		judge:    judge,
		rdb:      rdb,
		logger:   logger,
		cacheTTL: cacheTTL,
		workers:  workers,
		recentN:  recentVideos,
	}
}

// Search 执行一次完整搜索。
//
// YouTube 搜索整体失败返回 ErrUpstream；单个候选人指标拉取失败
// 只跳过该候选人并计入 Skipped。
func (s *Service) Search(ctx context.Context, req Request) (*Result, error) {
	if req.User == nil {
		return nil, fmt.Errorf("search request missing user")
	}
	if err := req.Weights.Validate(); err != nil {
		return nil, err
	}

	query, err := s.resolveQuery(ctx, req)
	if err != nil {
		return nil, err
	}

	key := s.cacheKey(req.User.ID, query, req.Weights)
	if cached := s.cacheGet(ctx, key); cached != nil {
		metrics.SearchTotal.WithLabelValues("hit").Inc()
		return cached, nil
	}

	ids, err := s.source.SearchChannelIDs(ctx, query, req.MaxResults)
	if err != nil {
		metrics.SearchTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	channels, err := s.source.Channels(ctx, ids)
	if err != nil {
		metrics.SearchTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	result := s.enrichAndScore(ctx, req, query, channels)

	s.cacheSet(ctx, key, result)
	metrics.SearchTotal.WithLabelValues("miss").Inc()
	return result, nil
}

// resolveQuery 解析本次搜索使用的查询词。
//
// 优先级：请求里的显式查询词 > 商品关键词 > 账号存储的关键词 > LLM 按品牌画像生成。
func (s *Service) resolveQuery(ctx context.Context, req Request) (string, error) {
	if q := strings.TrimSpace(req.Query); q != "" {
		return q, nil
	}

	if req.ProductKeywords != "" {
		parts := strings.Split(req.ProductKeywords, ",")
		kept := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				kept = append(kept, p)
			}
		}
		if len(kept) > 0 {
			return strings.Join(kept, " "), nil
		}
	}

	if req.User.Keywords != "" {
		var stored []string
		if err := json.Unmarshal([]byte(req.User.Keywords), &stored); err == nil && len(stored) > 0 {
			return strings.Join(stored, " "), nil
		}
	}

	if s.judge != nil {
		keywords, err := s.judge.GenerateKeywords(ctx, brandProfile(req.User))
		if err == nil && len(keywords) > 0 {
			return strings.Join(keywords, " "), nil
		}
		if err != nil {
			s.logger.Warn("keyword generation failed", slog.String("error", err.Error()))
		}
	}

	return "", ErrNoKeywords
}

// enrichAndScore 并发补全候选人指标并评分。
func (s *Service) enrichAndScore(ctx context.Context, req Request, query string, channels []youtube.Channel) *Result {
	brand := brandProfile(req.User)
	month := int(time.Now().Month())

	var mu sync.Mutex
	candidates := make([]model.Candidate, 0, len(channels))

	jobs := make([]fanout.Job, 0, len(channels))
	for _, ch := range channels {
		ch := ch
		jobs = append(jobs, func(ctx context.Context) error {
			stats, err := s.source.RecentVideoStats(ctx, ch.UploadsPlaylist, s.recentN)
			if err != nil {
				return fmt.Errorf("stats for %s: %w", ch.ID, err)
			}

			cand := s.scoreCandidate(ctx, req, brand, ch, stats, month)

			mu.Lock()
			candidates = append(candidates, cand)
			mu.Unlock()
			metrics.CandidatesScored.Inc()
			return nil
		})
	}

	runner := fanout.NewRunner(s.logger, s.workers)
	stats := runner.Run(ctx, jobs)
	if stats.TotalFailed > 0 {
		metrics.CandidatesSkipped.Add(float64(stats.TotalFailed))
	}

	sortCandidates(candidates)
	if req.MaxResults > 0 && len(candidates) > req.MaxResults {
		candidates = candidates[:req.MaxResults]
	}

	return &Result{
		Query:      query,
		Candidates: candidates,
		Total:      len(candidates),
		AvgViews:   avgViews(candidates),
		MeanScore:  meanScore(candidates),
		Skipped:    int(stats.TotalFailed),
		CachedAt:   time.Now().UTC(),
	}
}

// scoreCandidate 估算单个候选人的商业指标并打分。
func (s *Service) scoreCandidate(ctx context.Context, req Request, brand gemini.BrandProfile, ch youtube.Channel, stats youtube.VideoStats, month int) model.Candidate {
	niche := scoring.InferNiche(ch.Description, req.User.Niche)

	sig := scoring.Signals{
		Niche:          niche,
		Country:        ch.Country,
		Language:       ch.Language,
		AvgRecentViews: stats.AvgViews,
		EngagementRate: stats.EngagementRate,
		Subscribers:    ch.Subscribers,
		Month:          month,
	}
	cpm := scoring.EstimateCPM(sig)
	rpm := scoring.EstimateRPM(sig)
	pricing := scoring.SuggestPricing(cpm, rpm, stats.AvgViews, ch.Subscribers, stats.EngagementRate)

	var profit scoring.Range
	if req.ProductProfit > 0 {
		profit = scoring.ExpectedProfit(req.ProductProfit, cpm, rpm, stats.AvgViews, ch.Subscribers, stats.EngagementRate, pricing)
	}

	var fit gemini.FitScores
	if s.judge != nil {
		fit = s.judge.JudgeFit(ctx, brand, ch.Title, ch.Description)
	} else {
		fit = gemini.FitScores{Values: 50, Cultural: 50}
	}

	sub := model.SubScores{
		CPM:       scoring.ScoreCPM(cpm.Mid()),
		RPM:       scoring.ScoreRPM(rpm.Mid()),
		ViewsSubs: scoring.ScoreViewsSubs(stats.AvgViews, ch.Subscribers),
		Values:    fit.Values,
		Cultural:  fit.Cultural,
	}

	daysSinceLast := 0
	if !stats.LastPublished.IsZero() {
		daysSinceLast = int(time.Since(stats.LastPublished).Hours() / 24)
	}

	return model.Candidate{
		ChannelID:          ch.ID,
		Title:              ch.Title,
		URL:                "https://www.youtube.com/channel/" + ch.ID,
		Subscribers:        ch.Subscribers,
		AvgViews:           stats.AvgViews,
		EngagementRate:     stats.EngagementRate,
		Country:            ch.Country,
		Language:           ch.Language,
		Niche:              niche,
		DaysSinceLast:      daysSinceLast,
		CPM:                cpm.Mid(),
		RPM:                rpm.Mid(),
		SuggestedPriceLow:  pricing.Min,
		SuggestedPriceHigh: pricing.Max,
		ExpectedProfit:     profit.Mid(),
		Scores:             sub,
		CompositeScore:     scoring.Composite(sub, req.Weights),
	}
}

// sortCandidates 排序：总分降序，平分时订阅数降序，再平时按名称升序。
func sortCandidates(candidates []model.Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.CompositeScore != b.CompositeScore {
			return a.CompositeScore > b.CompositeScore
		}
		if a.Subscribers != b.Subscribers {
			return a.Subscribers > b.Subscribers
		}
		return a.Title < b.Title
	})
}

func avgViews(candidates []model.Candidate) float64 {
	if len(candidates) == 0 {
		return 0
	}
	var sum float64
	for _, c := range candidates {
		sum += c.AvgViews
	}
	return sum / float64(len(candidates))
}

func meanScore(candidates []model.Candidate) float64 {
	if len(candidates) == 0 {
		return 0
	}
	var sum float64
	for _, c := range candidates {
		sum += c.CompositeScore
	}
	return sum / float64(len(candidates))
}

func brandProfile(u *model.User) gemini.BrandProfile {
	return gemini.BrandProfile{
		CompanyName:    u.CompanyName,
		Description:    u.Description,
		Niche:          u.Niche,
		TargetAudience: u.TargetAudience,
		MarketingGoals: u.MarketingGoals,
	}
}

func (s *Service) cacheKey(userID uint, query string, w scoring.Weights) string {
	raw := fmt.Sprintf("%d|%s|%.4f|%.4f|%.4f|%.4f|%.4f",
		userID, strings.ToLower(strings.TrimSpace(query)),
		w.CPM, w.RPM, w.ViewsSubs, w.Values, w.Cultural)
	sum := sha256.Sum256([]byte(raw))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (s *Service) cacheGet(ctx context.Context, key string) *Result {
	if s.rdb == nil {
		return nil
	}
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("search cache get failed", slog.String("error", err.Error()))
		}
		return nil
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		s.logger.Warn("search cache decode failed", slog.String("error", err.Error()))
		return nil
	}
	return &result
}

func (s *Service) cacheSet(ctx context.Context, key string, result *Result) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("search cache set failed", slog.String("error", err.Error()))
	}
}
