package videoai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"influencehub/internal/pkg/metrics"
)

// ErrPollTimeout 视频索引任务在超时窗口内未完成。
var ErrPollTimeout = errors.New("video indexing poll timeout")

// Summary 摘要生成结果。
type Summary struct {
	Summary  string    // 整体摘要
	Chapters []Chapter // 章节列表
}

// Chapter 视频章节。
type Chapter struct {
	Number  int     `json:"chapter_number"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Title   string  `json:"chapter_title"`
	Summary string  `json:"chapter_summary"`
}

// Client 封装视频理解服务（TwelveLabs 风格 REST API）。
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	indexName    string
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       *slog.Logger
}

// Option 自定义客户端行为（测试时注入 http.Client 等）。
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New 创建视频理解客户端。
func New(baseURL, apiKey, indexName string, pollInterval, pollTimeout time.Duration, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: 2 * time.Minute},
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		indexName:    indexName,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		logger:       logger,
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 5 * time.Second
	}
	if c.pollTimeout <= 0 {
		c.pollTimeout = 10 * time.Minute
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureIndex 查找或创建视频索引，返回索引 ID。
func (c *Client) EnsureIndex(ctx context.Context) (string, error) {
	q := url.Values{"index_name": {c.indexName}}
	var listResp struct {
		Data []struct {
			ID string `json:"_id"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/indexes?"+q.Encode(), nil, &listResp); err != nil {
		return "", fmt.Errorf("list indexes: %w", err)
	}
	if len(listResp.Data) > 0 {
		return listResp.Data[0].ID, nil
	}

	body := map[string]any{
		"index_name": c.indexName,
		"models": []map[string]any{
			{"model_name": "pegasus1.2", "model_options": []string{"visual", "audio"}},
		},
	}
	var createResp struct {
		ID string `json:"_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/indexes", body, &createResp); err != nil {
		return "", fmt.Errorf("create index: %w", err)
	}
	if createResp.ID == "" {
		return "", fmt.Errorf("create index: empty id in response")
	}
	return createResp.ID, nil
}

// UploadVideo 上传本地视频文件，返回索引任务 ID。
func (c *Client) UploadVideo(ctx context.Context, indexID, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("index_id", indexID); err != nil {
		return "", fmt.Errorf("write index_id field: %w", err)
	}
	fw, err := mw.CreateFormFile("video_file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", fmt.Errorf("copy video file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tasks", &buf)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		ID string `json:"_id"`
	}
	if err := c.send(req, &resp); err != nil {
		return "", fmt.Errorf("upload video: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("upload video: empty task id in response")
	}
	return resp.ID, nil
}

// WaitForIndexing 轮询索引任务直到就绪，返回视频 ID。
//
// 轮询间隔固定，遇错按次数退避重试；总时长超过 pollTimeout
// 返回 ErrPollTimeout。
func (c *Client) WaitForIndexing(ctx context.Context, taskID string) (string, error) {
	deadline := time.Now().Add(c.pollTimeout)
	interval := c.pollInterval
	consecutiveErrs := 0

	for {
		if time.Now().After(deadline) {
			return "", ErrPollTimeout
		}

		var resp struct {
			Status  string `json:"status"`
			VideoID string `json:"video_id"`
		}
		err := c.doJSON(ctx, http.MethodGet, "/tasks/"+taskID, nil, &resp)
		switch {
		case err != nil:
			consecutiveErrs++
			if consecutiveErrs >= 5 {
				return "", fmt.Errorf("poll task: %w", err)
			}
			c.logger.Warn("poll task failed, retrying",
				slog.String("task_id", taskID),
				slog.String("error", err.Error()))
		case resp.Status == "ready":
			if resp.VideoID == "" {
				return "", fmt.Errorf("task ready but video_id missing")
			}
			return resp.VideoID, nil
		case resp.Status == "failed":
			return "", fmt.Errorf("video indexing failed upstream")
		default:
			consecutiveErrs = 0
		}

		// 出错时做线性退避，正常轮询按固定间隔
		wait := interval
		if consecutiveErrs > 0 {
			wait = interval * time.Duration(consecutiveErrs+1)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

// Summarize 生成视频摘要与章节。
func (c *Client) Summarize(ctx context.Context, videoID string) (*Summary, error) {
	var sumResp struct {
		Summary string `json:"summary"`
	}
	body := map[string]any{"video_id": videoID, "type": "summary"}
	if err := c.doJSON(ctx, http.MethodPost, "/summarize", body, &sumResp); err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	var chapResp struct {
		Chapters []Chapter `json:"chapters"`
	}
	body["type"] = "chapter"
	if err := c.doJSON(ctx, http.MethodPost, "/summarize", body, &chapResp); err != nil {
		return nil, fmt.Errorf("chapters: %w", err)
	}

	return &Summary{Summary: sumResp.Summary, Chapters: chapResp.Chapters}, nil
}

// Analyze 按提示词生成开放式分析。
func (c *Client) Analyze(ctx context.Context, videoID, prompt string) (string, error) {
	body := map[string]any{"video_id": videoID, "prompt": prompt}
	var resp struct {
		Data string `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/analyze", body, &resp); err != nil {
		return "", fmt.Errorf("analyze: %w", err)
	}
	return resp.Data, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues("videoai", "error").Inc()
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues("videoai", "error").Inc()
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.UpstreamCalls.WithLabelValues("videoai", "error").Inc()
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	metrics.UpstreamCalls.WithLabelValues("videoai", "ok").Inc()

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
