package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App        AppConfig        `json:"app"`
	MySQL      MySQLConfig      `json:"mysql"`
	Redis      RedisConfig      `json:"redis"`
	Email      EmailConfig      `json:"email"`
	Security   SecurityConfig   `json:"security"`
	YouTube    YouTubeConfig    `json:"youtube"`
	Gemini     GeminiConfig     `json:"gemini"`
	VideoAI    VideoAIConfig    `json:"video_ai"`
	Downloader DownloaderConfig `json:"downloader"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env            string        `json:"env"`              // 运行环境: local / prod
	LogLevel       string        `json:"log_level"`        // 日志级别: debug / info / warn / error
	HTTPAddr       string        `json:"http_addr"`        // API 服务监听地址
	CORSOrigins    []string      `json:"cors_origins"`     // 允许的跨域来源
	SearchCacheTTL time.Duration `json:"search_cache_ttl"` // 搜索结果缓存时间（如 "1h"）
	SearchWorkers  int           `json:"search_workers"`   // 候选人指标抓取并发数
	MaxResults     int           `json:"max_results"`      // 单次搜索返回的最大候选人数
	RateLimit      float64       `json:"rate_limit"`       // 上游 API 限流速率（token/s）
	RateBurst      float64       `json:"rate_burst"`       // 限流桶容量
	JobLockTTL     time.Duration `json:"job_lock_ttl"`     // 深度分析任务锁过期时间
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// RedisConfig Redis 缓存配置。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// EmailConfig 邮件通知配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"` // JWT 签名密钥
}

// YouTubeConfig YouTube Data API 配置。
type YouTubeConfig struct {
	APIKey       string `json:"api_key"`        // Data API v3 密钥
	PageSize     int    `json:"page_size"`      // 单页搜索结果数（最大 50）
	RecentVideos int    `json:"recent_videos"`  // 计算平均播放量时取最近视频数
	RegionCode   string `json:"region_code"`    // 默认搜索区域
}

// GeminiConfig Gemini LLM 配置。
type GeminiConfig struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"` // 模型名（如 "gemini-2.0-flash"）
}

// VideoAIConfig 视频理解服务配置。
type VideoAIConfig struct {
	APIKey       string        `json:"api_key"`
	BaseURL      string        `json:"base_url"`      // 服务地址
	IndexName    string        `json:"index_name"`    // 视频索引名
	PollInterval time.Duration `json:"poll_interval"` // 任务轮询间隔
	PollTimeout  time.Duration `json:"poll_timeout"`  // 轮询总超时（超时视为失败）
}

// DownloaderConfig 视频下载配置。
type DownloaderConfig struct {
	BinPath     string        `json:"bin_path"`     // yt-dlp 可执行文件路径
	WorkDir     string        `json:"work_dir"`     // 临时下载目录（为空使用系统临时目录）
	MaxDuration time.Duration `json:"max_duration"` // 允许下载的最长视频时长
	MaxFileMB   int           `json:"max_file_mb"`  // 单文件大小上限（MB）
	Timeout     time.Duration `json:"timeout"`      // 单次下载超时
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json")
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	// 如果配置文件不存在，使用默认配置
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		// 即使没有配置文件，也允许环境变量覆盖默认值
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	// 读取配置文件
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// 解析 JSON
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	// 应用默认值（对于未设置的字段）
	applyDefaults(cfg)

	// 环境变量优先覆盖配置
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOrDefault 加载配置，如果失败则返回默认配置（不报错）。
func LoadOrDefault(configPath ...string) *Config {
	cfg, err := Load(configPath...)
	if err != nil {
		fallback := getDefaultConfig()
		applyEnvOverrides(fallback)
		return fallback
	}
	return cfg
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:            "local",
			LogLevel:       "info",
			HTTPAddr:       ":8081",
			CORSOrigins:    []string{"http://localhost:3000"},
			SearchCacheTTL: 1 * time.Hour,
			SearchWorkers:  8,
			MaxResults:     50,
			RateLimit:      5,
			RateBurst:      10,
			JobLockTTL:     30 * time.Minute,
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/influencehub?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
		},
		Email: EmailConfig{
			SMTPHost:  "smtp.gmail.com",
			SMTPPort:  587,
			SMTPUser:  "",
			SMTPPass:  "",
			FromEmail: "",
		},
		Security: SecurityConfig{
			JWTSecret: "dev_secret_change_me",
		},
		YouTube: YouTubeConfig{
			APIKey:       "",
			PageSize:     50,
			RecentVideos: 10,
			RegionCode:   "US",
		},
		Gemini: GeminiConfig{
			APIKey: "",
			Model:  "gemini-2.0-flash",
		},
		VideoAI: VideoAIConfig{
			APIKey:       "",
			BaseURL:      "https://api.twelvelabs.io/v1.3",
			IndexName:    "influencehub-videos",
			PollInterval: 5 * time.Second,
			PollTimeout:  10 * time.Minute,
		},
		Downloader: DownloaderConfig{
			BinPath:     "yt-dlp",
			WorkDir:     "",
			MaxDuration: 30 * time.Minute,
			MaxFileMB:   500,
			Timeout:     5 * time.Minute,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if len(cfg.App.CORSOrigins) == 0 {
		cfg.App.CORSOrigins = defaults.App.CORSOrigins
	}
	if cfg.App.SearchCacheTTL == 0 {
		cfg.App.SearchCacheTTL = defaults.App.SearchCacheTTL
	}
	if cfg.App.SearchWorkers == 0 {
		cfg.App.SearchWorkers = defaults.App.SearchWorkers
	}
	if cfg.App.MaxResults == 0 {
		cfg.App.MaxResults = defaults.App.MaxResults
	}
	if cfg.App.RateLimit == 0 {
		cfg.App.RateLimit = defaults.App.RateLimit
	}
	if cfg.App.RateBurst == 0 {
		cfg.App.RateBurst = defaults.App.RateBurst
	}
	if cfg.App.JobLockTTL == 0 {
		cfg.App.JobLockTTL = defaults.App.JobLockTTL
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.YouTube.PageSize == 0 {
		cfg.YouTube.PageSize = defaults.YouTube.PageSize
	}
	if cfg.YouTube.RecentVideos == 0 {
		cfg.YouTube.RecentVideos = defaults.YouTube.RecentVideos
	}
	if cfg.YouTube.RegionCode == "" {
		cfg.YouTube.RegionCode = defaults.YouTube.RegionCode
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = defaults.Gemini.Model
	}
	if cfg.VideoAI.BaseURL == "" {
		cfg.VideoAI.BaseURL = defaults.VideoAI.BaseURL
	}
	if cfg.VideoAI.IndexName == "" {
		cfg.VideoAI.IndexName = defaults.VideoAI.IndexName
	}
	if cfg.VideoAI.PollInterval == 0 {
		cfg.VideoAI.PollInterval = defaults.VideoAI.PollInterval
	}
	if cfg.VideoAI.PollTimeout == 0 {
		cfg.VideoAI.PollTimeout = defaults.VideoAI.PollTimeout
	}
	if cfg.Downloader.BinPath == "" {
		cfg.Downloader.BinPath = defaults.Downloader.BinPath
	}
	if cfg.Downloader.MaxDuration == 0 {
		cfg.Downloader.MaxDuration = defaults.Downloader.MaxDuration
	}
	if cfg.Downloader.MaxFileMB == 0 {
		cfg.Downloader.MaxFileMB = defaults.Downloader.MaxFileMB
	}
	if cfg.Downloader.Timeout == 0 {
		cfg.Downloader.Timeout = defaults.Downloader.Timeout
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("youtube_api_key", "YOUTUBE_API_KEY")
	_ = viper.BindEnv("gemini_api_key", "GEMINI_API_KEY")
	_ = viper.BindEnv("video_ai_api_key", "VIDEO_AI_API_KEY")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_SEARCH_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.SearchCacheTTL = d
		}
	}
	if v := os.Getenv("APP_SEARCH_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.SearchWorkers = i
		}
	}
	if v := os.Getenv("APP_MAX_RESULTS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.MaxResults = i
		}
	}
	if v := os.Getenv("APP_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateLimit = f
		}
	}
	if v := os.Getenv("APP_RATE_BURST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateBurst = f
		}
	}
	if v := os.Getenv("APP_JOB_LOCK_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.JobLockTTL = d
		}
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}

	if v := os.Getenv("DB_DSN"); v != "" {
		if _, err := mysql.ParseDSN(v); err == nil {
			cfg.MySQL.DSN = v
		}
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}

	if v := viper.GetString("youtube_api_key"); v != "" {
		cfg.YouTube.APIKey = v
	}
	if v := viper.GetString("gemini_api_key"); v != "" {
		cfg.Gemini.APIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.Gemini.Model = v
	}
	if v := viper.GetString("video_ai_api_key"); v != "" {
		cfg.VideoAI.APIKey = v
	}
	if v := os.Getenv("VIDEO_AI_BASE_URL"); v != "" {
		cfg.VideoAI.BaseURL = v
	}
	if v := os.Getenv("VIDEO_AI_POLL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.VideoAI.PollTimeout = d
		}
	}
	if v := os.Getenv("YTDLP_BIN"); v != "" {
		cfg.Downloader.BinPath = v
	}
	if v := os.Getenv("DOWNLOAD_WORK_DIR"); v != "" {
		cfg.Downloader.WorkDir = v
	}
}

// UnmarshalJSON 自定义 JSON 解析，支持时间Duration字符串。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		SearchCacheTTL string `json:"search_cache_ttl"`
		JobLockTTL     string `json:"job_lock_ttl"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.SearchCacheTTL != "" {
		duration, err := time.ParseDuration(aux.SearchCacheTTL)
		if err != nil {
			return fmt.Errorf("invalid search_cache_ttl format: %w", err)
		}
		a.SearchCacheTTL = duration
	}
	if aux.JobLockTTL != "" {
		duration, err := time.ParseDuration(aux.JobLockTTL)
		if err != nil {
			return fmt.Errorf("invalid job_lock_ttl format: %w", err)
		}
		a.JobLockTTL = duration
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		SearchCacheTTL string `json:"search_cache_ttl"`
		JobLockTTL     string `json:"job_lock_ttl"`
		*Alias
	}{
		SearchCacheTTL: a.SearchCacheTTL.String(),
		JobLockTTL:     a.JobLockTTL.String(),
		Alias:          (*Alias)(&a),
	})
}

// UnmarshalJSON 支持 Duration 字符串的 VideoAI 配置解析。
func (v *VideoAIConfig) UnmarshalJSON(data []byte) error {
	type Alias VideoAIConfig
	aux := &struct {
		PollInterval string `json:"poll_interval"`
		PollTimeout  string `json:"poll_timeout"`
		*Alias
	}{
		Alias: (*Alias)(v),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.PollInterval != "" {
		duration, err := time.ParseDuration(aux.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll_interval format: %w", err)
		}
		v.PollInterval = duration
	}
	if aux.PollTimeout != "" {
		duration, err := time.ParseDuration(aux.PollTimeout)
		if err != nil {
			return fmt.Errorf("invalid poll_timeout format: %w", err)
		}
		v.PollTimeout = duration
	}

	return nil
}

// UnmarshalJSON 支持 Duration 字符串的下载配置解析。
func (d *DownloaderConfig) UnmarshalJSON(data []byte) error {
	type Alias DownloaderConfig
	aux := &struct {
		MaxDuration string `json:"max_duration"`
		Timeout     string `json:"timeout"`
		*Alias
	}{
		Alias: (*Alias)(d),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.MaxDuration != "" {
		duration, err := time.ParseDuration(aux.MaxDuration)
		if err != nil {
			return fmt.Errorf("invalid max_duration format: %w", err)
		}
		d.MaxDuration = duration
	}
	if aux.Timeout != "" {
		duration, err := time.ParseDuration(aux.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout format: %w", err)
		}
		d.Timeout = duration
	}

	return nil
}
