package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"influencehub/internal/pkg/metrics"

	"google.golang.org/genai"
)

// neutralScore 上游失败时的契合度兜底分。
const neutralScore = 50.0

// BrandProfile 评估契合度时用到的品牌画像。
type BrandProfile struct {
	CompanyName    string
	Description    string
	Niche          string
	TargetAudience string
	MarketingGoals string
}

// FitScores LLM 给出的契合度子分。
type FitScores struct {
	Values   float64 `json:"values_score"`   // 价值观契合度 [0,100]
	Cultural float64 `json:"cultural_score"` // 文化契合度 [0,100]
}

// Client 封装 Gemini 调用。
type Client struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// New 创建 Gemini 客户端。apiKey 为空时返回 nil 客户端，
// 调用方按降级路径处理（契合度回退到中性分）。
func New(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{client: c, model: model, logger: logger}, nil
}

// JudgeFit 评估频道与品牌的价值观、文化契合度。
//
// 上游失败或解析失败时返回中性分 50/50，不向上传播错误：
// 搜索不应因 LLM 抖动而整体失败。
func (c *Client) JudgeFit(ctx context.Context, brand BrandProfile, channelTitle, channelDescription string) FitScores {
	fallback := FitScores{Values: neutralScore, Cultural: neutralScore}
	if c == nil || c.client == nil {
		return fallback
	}

	prompt := fmt.Sprintf(`You are evaluating whether a YouTube channel is a good sponsorship match for a brand.

Brand:
- Company: %s
- Description: %s
- Niche: %s
- Target audience: %s
- Marketing goals: %s

Channel:
- Title: %s
- Description: %s

Rate the match on two axes, each 0-100:
- values_score: alignment between the channel's apparent values and the brand's values
- cultural_score: alignment of tone, style and audience culture

Respond with ONLY a JSON object: {"values_score": <number>, "cultural_score": <number>}`,
		brand.CompanyName, brand.Description, brand.Niche, brand.TargetAudience, brand.MarketingGoals,
		channelTitle, channelDescription)

	text, err := c.generate(ctx, prompt)
	if err != nil {
		c.logger.Warn("gemini fit judge failed, using neutral scores", slog.String("error", err.Error()))
		return fallback
	}

	var scores FitScores
	if err := json.Unmarshal([]byte(extractJSON(text)), &scores); err != nil {
		c.logger.Warn("gemini fit judge returned unparseable output", slog.String("error", err.Error()))
		return fallback
	}

	scores.Values = clampScore(scores.Values)
	scores.Cultural = clampScore(scores.Cultural)
	return scores
}

// GenerateKeywords 根据品牌画像生成 YouTube 搜索关键词。
func (c *Client) GenerateKeywords(ctx context.Context, brand BrandProfile) ([]string, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("gemini client not configured")
	}

	prompt := fmt.Sprintf(`Generate YouTube search keywords to find influencers who could promote this brand.

Brand:
- Company: %s
- Description: %s
- Niche: %s
- Target audience: %s
- Marketing goals: %s

Respond with ONLY a JSON array of 5-10 short keyword strings, e.g. ["fitness gear review", "home workout"]`,
		brand.CompanyName, brand.Description, brand.Niche, brand.TargetAudience, brand.MarketingGoals)

	text, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var keywords []string
	if err := json.Unmarshal([]byte(extractJSONArray(text)), &keywords); err != nil {
		return nil, fmt.Errorf("parse keywords: %w", err)
	}

	out := keywords[:0]
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" {
			out = append(out, kw)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("gemini returned no keywords")
	}
	return out, nil
}

// ProductKeywords 根据商品标题和描述生成搜索关键词。
func (c *Client) ProductKeywords(ctx context.Context, title, description string) ([]string, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("gemini client not configured")
	}

	prompt := fmt.Sprintf(`Generate YouTube search keywords to find influencers who could promote this product.

Product:
- Title: %s
- Description: %s

Respond with ONLY a JSON array of 3-8 short keyword strings, e.g. ["resistance bands", "home gym setup"]`,
		title, description)

	text, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var keywords []string
	if err := json.Unmarshal([]byte(extractJSONArray(text)), &keywords); err != nil {
		return nil, fmt.Errorf("parse keywords: %w", err)
	}

	out := keywords[:0]
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" {
			out = append(out, kw)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("gemini returned no keywords")
	}
	return out, nil
}

// SponsorEmailBody 为合作邀约生成个性化 HTML 正文。
// 失败返回空串，调用方回退到内置模板。
func (c *Client) SponsorEmailBody(ctx context.Context, brand BrandProfile, channelTitle, productName string) string {
	if c == nil || c.client == nil {
		return ""
	}

	prompt := fmt.Sprintf(`Write a short, friendly sponsorship outreach email as HTML (body content only, no <html> wrapper).

From: %s (%s)
To: the team behind the YouTube channel "%s"
Product to promote: %s

Keep it under 150 words, professional but warm. Do not invent pricing.`,
		brand.CompanyName, brand.Description, channelTitle, productName)

	text, err := c.generate(ctx, prompt)
	if err != nil {
		c.logger.Warn("gemini email generation failed, using template", slog.String("error", err.Error()))
		return ""
	}
	return strings.TrimSpace(text)
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues("gemini", "error").Inc()
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	metrics.UpstreamCalls.WithLabelValues("gemini", "ok").Inc()

	return result.Text(), nil
}

// extractJSON 从模型输出中截取首个 JSON 对象（模型偶尔带 Markdown 围栏）。
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}

func extractJSONArray(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
