package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"influencehub/internal/api/auth"
	"influencehub/internal/api/middleware"
	"influencehub/internal/config"
	"influencehub/internal/deepsearch"
	"influencehub/internal/gemini"
	"influencehub/internal/model"
	"influencehub/internal/pkg/joblock"
	"influencehub/internal/pkg/notify"
	"influencehub/internal/pkg/ratelimit"
	"influencehub/internal/product"
	"influencehub/internal/scoring"
	"influencehub/internal/search"
	"influencehub/internal/videoai"
	"influencehub/internal/youtube"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端、各业务服务以及 Gin 路由引擎。
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         *gorm.DB
	rdb        *redis.Client
	router     *gin.Engine
	auth       *auth.Handler
	searcher   InfluencerSearcher
	deepSearch DeepSearcher
	scraper    ProductFetcher
	copywriter Copywriter
	notifier   notify.Notifier
}

// InfluencerSearcher 抽象网红搜索编排器。
type InfluencerSearcher interface {
	Search(ctx context.Context, req search.Request) (*search.Result, error)
}

// DeepSearcher 抽象视频深度分析服务。
type DeepSearcher interface {
	Analyze(ctx context.Context, req deepsearch.Request) (*model.DeepSearchCache, error)
	Retry(ctx context.Context, req deepsearch.Request) (*model.DeepSearchCache, error)
	Status(ctx context.Context, videoURL string) (*model.DeepSearchCache, error)
	History(ctx context.Context, userID uint) ([]model.DeepSearchCache, error)
}

// ProductFetcher 抽象商品页抓取器。
type ProductFetcher interface {
	Fetch(ctx context.Context, url string) (*product.Info, error)
}

// Copywriter 抽象 LLM 文案能力（关键词生成、邮件正文）。
type Copywriter interface {
	GenerateKeywords(ctx context.Context, brand gemini.BrandProfile) ([]string, error)
	ProductKeywords(ctx context.Context, title, description string) ([]string, error)
	SponsorEmailBody(ctx context.Context, brand gemini.BrandProfile, channelTitle, productName string) string
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis
// 3. 初始化 YouTube / Gemini / 视频理解等上游客户端
// 4. 初始化 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}, &model.Product{}, &model.ScoringWeights{}, &model.DeepSearchCache{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	limiter := ratelimit.NewRedisRateLimiter(rdb, logger, "influencehub:ratelimit:youtube", cfg.App.RateLimit, cfg.App.RateBurst)
	ytClient, err := youtube.New(ctx, cfg.YouTube.APIKey, limiter, cfg.YouTube.PageSize, cfg.YouTube.RegionCode)
	if err != nil {
		return nil, err
	}

	gem, err := gemini.New(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, logger)
	if err != nil {
		return nil, err
	}
	var judge search.FitJudge
	var copywriter Copywriter
	if gem != nil {
		judge = gem
		copywriter = gem
	}

	searcher := search.NewService(ytClient, judge, rdb, logger,
		cfg.App.SearchCacheTTL, cfg.App.SearchWorkers, cfg.YouTube.RecentVideos)

	analyzer := videoai.New(cfg.VideoAI.BaseURL, cfg.VideoAI.APIKey, cfg.VideoAI.IndexName,
		cfg.VideoAI.PollInterval, cfg.VideoAI.PollTimeout, logger)
	downloader := deepsearch.NewYtDlpDownloader(&cfg.Downloader, logger)
	locker := joblock.NewLocker(rdb, cfg.App.JobLockTTL)
	deepSvc := deepsearch.NewService(db, analyzer, downloader, locker, logger)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		rdb:        rdb,
		router:     r,
		auth:       auth.NewHandler(db, cfg.Security.JWTSecret, logger),
		searcher:   searcher,
		deepSearch: deepSvc,
		scraper:    product.NewScraper(nil),
		copywriter: copywriter,
		notifier:   notify.NewEmailNotifier(&cfg.Email, logger),
	}
	s.registerRoutes()
	return s, nil
}

// Run 启动 HTTP 服务器并开始监听请求。
func (s *Server) Run() error {
	s.logger.Info("api server listening", slog.String("addr", s.cfg.App.HTTPAddr))
	return s.router.Run(s.cfg.App.HTTPAddr)
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil {
				if firstErr == nil {
					firstErr = closeErr
				}
			}
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/healthz", s.handleHealthz)

	s.router.POST("/api/auth/register", s.auth.Register)
	s.router.POST("/api/auth/login", s.auth.Login)

	authed := s.router.Group("/api")
	authed.Use(middleware.AuthMiddleware(s.cfg.Security.JWTSecret))
	authed.GET("/profile", s.handleGetProfile)
	authed.PUT("/profile", s.handleUpdateProfile)
	authed.GET("/products", s.handleListProducts)
	authed.POST("/products", s.handleCreateProduct)
	authed.PUT("/products/:id", s.handleUpdateProduct)
	authed.DELETE("/products/:id", s.handleDeleteProduct)
	authed.GET("/scoring-weights", s.handleGetWeights)
	authed.POST("/scoring-weights", s.handleSetWeights)
	authed.POST("/search-influencers", s.handleSearchInfluencers)
	authed.POST("/deep-search/analyze", s.handleDeepSearchAnalyze)
	authed.POST("/deep-search/retry", s.handleDeepSearchRetry)
	authed.GET("/deep-search/status/*video_url", s.handleDeepSearchStatus)
	authed.GET("/deep-search/history", s.handleDeepSearchHistory)
	authed.POST("/send-sponsor-email", s.handleSendSponsorEmail)
	authed.POST("/auth/send-notification", s.handleSendNotification)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ---- 品牌画像 ----

type profileResponse struct {
	ID                uint   `json:"id"`
	Email             string `json:"email"`
	CompanyName       string `json:"company_name"`
	Website           string `json:"website"`
	Description       string `json:"description"`
	Niche             string `json:"niche"`
	TargetAudience    string `json:"target_audience"`
	ProductCategories string `json:"product_categories"`
	MarketingGoals    string `json:"marketing_goals"`
	Keywords          string `json:"keywords"`
}

type updateProfileRequest struct {
	CompanyName       *string `json:"company_name"`
	Website           *string `json:"website"`
	Description       *string `json:"description"`
	Niche             *string `json:"niche"`
	TargetAudience    *string `json:"target_audience"`
	ProductCategories *string `json:"product_categories"`
	MarketingGoals    *string `json:"marketing_goals"`
}

func profileFromUser(u *model.User) profileResponse {
	return profileResponse{
		ID:                u.ID,
		Email:             u.Email,
		CompanyName:       u.CompanyName,
		Website:           u.Website,
		Description:       u.Description,
		Niche:             u.Niche,
		TargetAudience:    u.TargetAudience,
		ProductCategories: u.ProductCategories,
		MarketingGoals:    u.MarketingGoals,
		Keywords:          u.Keywords,
	}
}

func (s *Server) handleGetProfile(c *gin.Context) {
	user, ok := s.loadUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, profileFromUser(user))
}

// handleUpdateProfile 更新品牌画像。
//
// 品牌描述相关字段变化时，重新生成搜索关键词。
func (s *Server) handleUpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, ok := s.loadUser(c)
	if !ok {
		return
	}

	profileChanged := false
	apply := func(dst *string, src *string) {
		if src != nil && *src != *dst {
			*dst = *src
			profileChanged = true
		}
	}
	apply(&user.CompanyName, req.CompanyName)
	apply(&user.Website, req.Website)
	apply(&user.Description, req.Description)
	apply(&user.Niche, req.Niche)
	apply(&user.TargetAudience, req.TargetAudience)
	apply(&user.ProductCategories, req.ProductCategories)
	apply(&user.MarketingGoals, req.MarketingGoals)

	if profileChanged {
		s.refreshKeywords(c.Request.Context(), user)
	}

	if err := s.db.WithContext(c.Request.Context()).Save(user).Error; err != nil {
		s.logger.Error("update profile failed", slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update profile failed"})
		return
	}
	c.JSON(http.StatusOK, profileFromUser(user))
}

// refreshKeywords 根据最新品牌画像重新生成搜索关键词，失败不致命。
func (s *Server) refreshKeywords(ctx context.Context, user *model.User) {
	if s.copywriter == nil {
		return
	}
	keywords, err := s.copywriter.GenerateKeywords(ctx, brandProfile(user))
	if err != nil {
		s.logger.Warn("regenerate keywords failed", slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
		return
	}
	raw, err := json.Marshal(keywords)
	if err != nil {
		return
	}
	user.Keywords = string(raw)
}

// ---- 商品 ----

type createProductRequest struct {
	URL         string  `json:"url" binding:"required,url"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Keywords    string  `json:"keywords"` // 逗号分隔，为空时由抓取/LLM 填充
}

type updateProductRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Category    *string  `json:"category"`
}

type productResponse struct {
	ID          uint    `json:"id"`
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	ImageURL    string  `json:"image_url"`
	Keywords    string  `json:"keywords"`
}

func productToResponse(p *model.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		URL:         p.URL,
		Title:       p.Title,
		Description: p.Description,
		Price:       p.Price,
		Category:    p.Category,
		ImageURL:    p.ImageURL,
		Keywords:    p.Keywords,
	}
}

func (s *Server) handleListProducts(c *gin.Context) {
	userID := getUserID(c)
	var products []model.Product
	if err := s.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&products).Error; err != nil {
		s.logger.Error("list products failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list products failed"})
		return
	}
	resp := make([]productResponse, 0, len(products))
	for i := range products {
		resp = append(resp, productToResponse(&products[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// handleCreateProduct 通过 URL 导入商品。
//
// 商品页抓取失败不阻塞导入，未抓到的字段保持请求体里的值。
func (s *Server) handleCreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := getUserID(c)

	p := model.Product{
		UserID:      uint(userID),
		URL:         strings.TrimSpace(req.URL),
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		Keywords:    req.Keywords,
	}

	if info, err := s.scraper.Fetch(c.Request.Context(), p.URL); err != nil {
		s.logger.Warn("scrape product page failed", slog.String("url", p.URL), slog.String("error", err.Error()))
	} else {
		if p.Title == "" {
			p.Title = info.Title
		}
		if p.Description == "" {
			p.Description = info.Description
		}
		if p.Price == 0 {
			p.Price = info.Price
		}
		if p.Keywords == "" {
			p.Keywords = info.Keywords
		}
		p.ImageURL = info.ImageURL
	}

	// 页面没有关键词元信息时让 LLM 补一份，失败不致命
	if p.Keywords == "" && s.copywriter != nil && p.Title != "" {
		if keywords, err := s.copywriter.ProductKeywords(c.Request.Context(), p.Title, p.Description); err == nil {
			p.Keywords = strings.Join(keywords, ", ")
		} else {
			s.logger.Warn("generate product keywords failed", slog.String("url", p.URL), slog.String("error", err.Error()))
		}
	}

	if err := s.db.WithContext(c.Request.Context()).Create(&p).Error; err != nil {
		if isDuplicateKeyErr(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "product url already exists"})
			return
		}
		s.logger.Error("create product failed", slog.String("url", p.URL), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create product failed"})
		return
	}
	c.JSON(http.StatusCreated, productToResponse(&p))
}

func (s *Server) handleUpdateProduct(c *gin.Context) {
	productID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	var req updateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := getUserID(c)

	var p model.Product
	if err := s.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", productID, userID).
		First(&p).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}

	if req.Title != nil {
		p.Title = *req.Title
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	if req.Category != nil {
		p.Category = *req.Category
	}

	if err := s.db.WithContext(c.Request.Context()).Save(&p).Error; err != nil {
		s.logger.Error("update product failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update product failed"})
		return
	}
	c.JSON(http.StatusOK, productToResponse(&p))
}

func (s *Server) handleDeleteProduct(c *gin.Context) {
	productID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	userID := getUserID(c)

	res := s.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", productID, userID).
		Delete(&model.Product{})
	if res.Error != nil {
		s.logger.Error("delete product failed", slog.String("error", res.Error.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete product failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": productID})
}

// ---- 评分权重 ----

func (s *Server) handleGetWeights(c *gin.Context) {
	userID := getUserID(c)
	var row model.ScoringWeights
	err := s.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusOK, scoring.DefaultWeights())
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load weights failed"})
		return
	}
	c.JSON(http.StatusOK, scoring.WeightsFromModel(&row))
}

// handleSetWeights 保存用户的评分权重，五项之和必须为 1.0。
func (s *Server) handleSetWeights(c *gin.Context) {
	var w scoring.Weights
	if err := c.ShouldBindJSON(&w); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := w.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := getUserID(c)

	var row model.ScoringWeights
	err := s.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		First(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load weights failed"})
		return
	}
	row.UserID = uint(userID)
	row.CPMWeight = w.CPM
	row.RPMWeight = w.RPM
	row.ViewsSubsWeight = w.ViewsSubs
	row.ValuesWeight = w.Values
	row.CulturalWeight = w.Cultural

	if err := s.db.WithContext(c.Request.Context()).Save(&row).Error; err != nil {
		s.logger.Error("save weights failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save weights failed"})
		return
	}
	c.JSON(http.StatusOK, w)
}

// ---- 网红搜索 ----

type searchRequest struct {
	Query         string           `json:"query"`          // 显式查询词，可空
	MaxResults    int              `json:"max_results"`    // 候选人上限，0 取默认值
	Weights       *scoring.Weights `json:"weights"`        // 本次搜索的权重覆盖，为空时用保存的权重
	ProductProfit float64          `json:"product_profit"` // 客单利润（美元），用于预期收益估算
	ProductID     uint             `json:"product_id"`     // 指定商品时，利润按商品价格估算
}

// handleSearchInfluencers 执行一次网红搜索。
func (s *Server) handleSearchInfluencers(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, ok := s.loadUser(c)
	if !ok {
		return
	}

	maxResults := req.MaxResults
	if maxResults <= 0 || maxResults > s.cfg.App.MaxResults {
		maxResults = s.cfg.App.MaxResults
	}

	profit := req.ProductProfit
	productKeywords := ""
	if req.ProductID != 0 {
		var p model.Product
		if err := s.db.WithContext(c.Request.Context()).
			Where("id = ? AND user_id = ?", req.ProductID, user.ID).
			First(&p).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		productKeywords = p.Keywords
		if profit <= 0 {
			// 没有显式利润时按 30% 毛利率估算
			profit = p.Price * 0.3
		}
	}

	weights := s.weightsFor(c.Request.Context(), user.ID)
	if req.Weights != nil {
		if err := req.Weights.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		weights = *req.Weights
	}

	result, err := s.searcher.Search(c.Request.Context(), search.Request{
		User:            user,
		Query:           req.Query,
		ProductKeywords: productKeywords,
		MaxResults:      maxResults,
		Weights:         weights,
		ProductProfit:   profit,
	})
	if err != nil {
		switch {
		case errors.Is(err, search.ErrNoKeywords):
			c.JSON(http.StatusBadRequest, gin.H{"error": "no search keywords: provide a query or fill in the brand profile"})
		case errors.Is(err, search.ErrUpstream):
			s.logger.Error("influencer search upstream failed", slog.String("error", err.Error()))
			c.JSON(http.StatusBadGateway, gin.H{"error": "youtube search failed"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

// weightsFor 返回用户保存的权重，没有则用默认权重。
func (s *Server) weightsFor(ctx context.Context, userID uint) scoring.Weights {
	var row model.ScoringWeights
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		return scoring.DefaultWeights()
	}
	return scoring.WeightsFromModel(&row)
}

// ---- 深度分析 ----

type deepSearchRequest struct {
	VideoURL    string `json:"video_url" binding:"required"`
	Prompt      string `json:"prompt"`
	ChannelID   string `json:"channel_id"`   // 视频所属频道 ID，可空
	ChannelName string `json:"channel_name"` // 用于缺省提示词个性化，可空
	ProductID   uint   `json:"product_id"`   // 指定商品时缺省提示词带上商品名
}

type deepSearchResponse struct {
	VideoURL     string          `json:"video_url"`
	ChannelID    string          `json:"channel_id,omitempty"`
	Status       string          `json:"status"`
	Summary      string          `json:"summary,omitempty"`
	Chapters     json.RawMessage `json:"chapters,omitempty"`
	Analysis     string          `json:"analysis,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func deepSearchToResponse(r *model.DeepSearchCache) deepSearchResponse {
	resp := deepSearchResponse{
		VideoURL:     r.VideoURL,
		ChannelID:    r.ChannelID,
		Status:       r.Status,
		Summary:      r.Summary,
		Analysis:     r.Analysis,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.Chapters != "" {
		resp.Chapters = json.RawMessage(r.Chapters)
	}
	return resp
}

// handleDeepSearchAnalyze 发起一次视频深度分析。
//
// 同一视频全局只分析一次：已完成直接返回缓存结果；
// 进行中或已被其他请求抢占时返回 409。
func (s *Server) handleDeepSearchAnalyze(c *gin.Context) {
	var req deepSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dsReq, ok := s.buildDeepSearchRequest(c, req)
	if !ok {
		return
	}
	record, err := s.deepSearch.Analyze(c.Request.Context(), dsReq)
	if err != nil {
		s.writeDeepSearchError(c, err)
		return
	}
	c.JSON(http.StatusOK, deepSearchToResponse(record))
}

// handleDeepSearchRetry 重试一次失败的深度分析。
func (s *Server) handleDeepSearchRetry(c *gin.Context) {
	var req deepSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dsReq, ok := s.buildDeepSearchRequest(c, req)
	if !ok {
		return
	}
	record, err := s.deepSearch.Retry(c.Request.Context(), dsReq)
	if err != nil {
		s.writeDeepSearchError(c, err)
		return
	}
	c.JSON(http.StatusOK, deepSearchToResponse(record))
}

// buildDeepSearchRequest 组装深度分析请求，指定商品时带上商品名。
func (s *Server) buildDeepSearchRequest(c *gin.Context, req deepSearchRequest) (deepsearch.Request, bool) {
	userID := getUserID(c)
	dsReq := deepsearch.Request{
		UserID:      uint(userID),
		VideoURL:    req.VideoURL,
		Prompt:      req.Prompt,
		ChannelID:   req.ChannelID,
		ChannelName: req.ChannelName,
	}
	if req.ProductID != 0 {
		var p model.Product
		if err := s.db.WithContext(c.Request.Context()).
			Where("id = ? AND user_id = ?", req.ProductID, userID).
			First(&p).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return deepsearch.Request{}, false
		}
		dsReq.ProductName = p.Title
	}
	return dsReq, true
}

func (s *Server) handleDeepSearchStatus(c *gin.Context) {
	raw := strings.TrimPrefix(c.Param("video_url"), "/")
	if unescaped, err := url.QueryUnescape(raw); err == nil {
		raw = unescaped
	}

	record, err := s.deepSearch.Status(c.Request.Context(), raw)
	if err != nil {
		s.writeDeepSearchError(c, err)
		return
	}
	c.JSON(http.StatusOK, deepSearchToResponse(record))
}

func (s *Server) handleDeepSearchHistory(c *gin.Context) {
	userID := getUserID(c)
	records, err := s.deepSearch.History(c.Request.Context(), uint(userID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load history failed"})
		return
	}
	resp := make([]deepSearchResponse, 0, len(records))
	for i := range records {
		resp = append(resp, deepSearchToResponse(&records[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) writeDeepSearchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, deepsearch.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video url"})
	case errors.Is(err, deepsearch.ErrJobPending):
		c.JSON(http.StatusConflict, gin.H{"error": "analysis already in progress"})
	case errors.Is(err, deepsearch.ErrNotRetryable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, deepsearch.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
	default:
		s.logger.Error("deep search failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deep search failed"})
	}
}

// ---- 合作邮件 ----

type sponsorEmailRequest struct {
	To          string `json:"to" binding:"required,email"`
	ChannelName string `json:"channel_name" binding:"required"`
	ChannelURL  string `json:"channel_url"`
	ProductID   uint   `json:"product_id"`
	Body        string `json:"body"` // 自定义正文，为空时由 LLM 生成
}

// handleSendSponsorEmail 向候选频道发送合作邀约邮件。
func (s *Server) handleSendSponsorEmail(c *gin.Context) {
	var req sponsorEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, ok := s.loadUser(c)
	if !ok {
		return
	}

	productName := ""
	if req.ProductID != 0 {
		var p model.Product
		if err := s.db.WithContext(c.Request.Context()).
			Where("id = ? AND user_id = ?", req.ProductID, user.ID).
			First(&p).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		productName = p.Title
	}

	body := req.Body
	if body == "" && s.copywriter != nil {
		body = s.copywriter.SponsorEmailBody(c.Request.Context(), brandProfile(user), req.ChannelName, productName)
	}

	mail := &notify.SponsorMail{
		To:          req.To,
		CompanyName: user.CompanyName,
		ChannelName: req.ChannelName,
		ChannelURL:  req.ChannelURL,
		ProductName: productName,
		Body:        body,
	}
	if err := s.notifier.SendSponsorMail(c.Request.Context(), mail); err != nil {
		s.logger.Error("send sponsor email failed", slog.String("to", req.To), slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "send email failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

type notificationRequest struct {
	Subject         string `json:"subject" binding:"required"`
	Message         string `json:"message" binding:"required"`
	InfluencerCount int    `json:"influencer_count"`
}

// handleSendNotification 给当前公司账号发送通知邮件（如搜索完成摘要）。
func (s *Server) handleSendNotification(c *gin.Context) {
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, ok := s.loadUser(c)
	if !ok {
		return
	}

	mail := &notify.NotificationMail{
		To:              user.Email,
		Subject:         req.Subject,
		Message:         req.Message,
		InfluencerCount: req.InfluencerCount,
	}
	if err := s.notifier.SendNotification(c.Request.Context(), mail); err != nil {
		s.logger.Error("send notification failed", slog.String("to", user.Email), slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "send email failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

// ---- 辅助函数 ----

// loadUser 加载当前登录用户，失败时直接写入响应。
func (s *Server) loadUser(c *gin.Context) (*model.User, bool) {
	userID := getUserID(c)
	var user model.User
	if err := s.db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return nil, false
	}
	return &user, true
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

func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint")
}

// getUserID 从上下文中获取当前登录用户的 ID。
func getUserID(c *gin.Context) int {
	if v, ok := c.Get("userID"); ok {
		if id, ok := v.(int); ok {
			return id
		}
	}
	return 0
}
