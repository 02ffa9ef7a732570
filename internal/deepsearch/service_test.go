package deepsearch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"

	"influencehub/internal/model"
	"influencehub/internal/pkg/joblock"
	"influencehub/internal/videoai"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type mockAnalyzer struct {
	ensureFn  func(ctx context.Context) (string, error)
	uploadFn  func(ctx context.Context, indexID, path string) (string, error)
	waitFn    func(ctx context.Context, taskID string) (string, error)
	sumFn     func(ctx context.Context, videoID string) (*videoai.Summary, error)
	analyzeFn func(ctx context.Context, videoID, prompt string) (string, error)
}

func (m *mockAnalyzer) EnsureIndex(ctx context.Context) (string, error) {
	if m.ensureFn != nil {
		return m.ensureFn(ctx)
	}
	return "idx-1", nil
}

func (m *mockAnalyzer) UploadVideo(ctx context.Context, indexID, path string) (string, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, indexID, path)
	}
	return "task-1", nil
}

func (m *mockAnalyzer) WaitForIndexing(ctx context.Context, taskID string) (string, error) {
	if m.waitFn != nil {
		return m.waitFn(ctx, taskID)
	}
	return "vid-1", nil
}

func (m *mockAnalyzer) Summarize(ctx context.Context, videoID string) (*videoai.Summary, error) {
	if m.sumFn != nil {
		return m.sumFn(ctx, videoID)
	}
	return &videoai.Summary{
		Summary:  "a video about fitness gear",
		Chapters: []videoai.Chapter{{Number: 1, Title: "Intro"}},
	}, nil
}

func (m *mockAnalyzer) Analyze(ctx context.Context, videoID, prompt string) (string, error) {
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, videoID, prompt)
	}
	return "strong sponsorship fit", nil
}

type mockDownloader struct {
	downloads atomic.Int32
	cleanups  atomic.Int32
	err       error
}

func (m *mockDownloader) Download(ctx context.Context, url string) (string, func(), error) {
	m.downloads.Add(1)
	if m.err != nil {
		return "", nil, m.err
	}
	return "/tmp/fake/video.mp4", func() { m.cleanups.Add(1) }, nil
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.DeepSearchCache{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(t *testing.T, analyzer VideoAnalyzer, dl VideoDownloader) *Service {
	t.Helper()
	return NewService(testDB(t), analyzer, dl, joblock.NewLocker(nil, 0), testLogger())
}

const videoURL = "https://www.youtube.com/watch?v=abc123"

func TestAnalyze_HappyPath(t *testing.T) {
	dl := &mockDownloader{}
	svc := newTestService(t, &mockAnalyzer{}, dl)

	record, err := svc.Analyze(context.Background(), Request{UserID: 1, VideoURL: videoURL, Prompt: "is this family friendly?"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if record.Status != model.DeepSearchCompleted {
		t.Fatalf("expected completed, got %q (%s)", record.Status, record.ErrorMessage)
	}
	if record.Summary == "" || record.Analysis == "" {
		t.Fatalf("expected summary and analysis to be stored: %+v", record)
	}
	if record.Chapters == "" {
		t.Fatal("expected chapters JSON to be stored")
	}
	if dl.cleanups.Load() != 1 {
		t.Fatalf("expected 1 cleanup, got %d", dl.cleanups.Load())
	}
}

func TestAnalyze_DefaultPromptUsesContext(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		want string
	}{
		{
			name: "channel and product",
			req:  Request{UserID: 1, VideoURL: videoURL, ChannelName: "FitWithSam", ProductName: "Resistance Bands"},
			want: "Analyze this video by FitWithSam for sponsorship fit with Resistance Bands: audience, tone, content quality, and any brand-safety concerns.",
		},
		{
			name: "channel only",
			req:  Request{UserID: 1, VideoURL: videoURL, ChannelName: "FitWithSam"},
			want: "Analyze this video by FitWithSam for brand sponsorship fit: audience, tone, content quality, and any brand-safety concerns.",
		},
		{
			name: "explicit prompt wins",
			req:  Request{UserID: 1, VideoURL: videoURL, Prompt: "is this family friendly?", ChannelName: "FitWithSam", ProductName: "Resistance Bands"},
			want: "is this family friendly?",
		},
		{
			name: "no context falls back",
			req:  Request{UserID: 1, VideoURL: videoURL},
			want: defaultPrompt,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotPrompt string
			analyzer := &mockAnalyzer{
				analyzeFn: func(ctx context.Context, videoID, prompt string) (string, error) {
					gotPrompt = prompt
					return "fit analysis", nil
				},
			}
			svc := newTestService(t, analyzer, &mockDownloader{})
			if _, err := svc.Analyze(context.Background(), tc.req); err != nil {
				t.Fatalf("analyze: %v", err)
			}
			if gotPrompt != tc.want {
				t.Fatalf("prompt = %q, want %q", gotPrompt, tc.want)
			}
		})
	}
}

func TestAnalyze_PersistsChannelID(t *testing.T) {
	svc := newTestService(t, &mockAnalyzer{}, &mockDownloader{})

	record, err := svc.Analyze(context.Background(), Request{UserID: 1, VideoURL: videoURL, ChannelID: "UCabc123"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if record.ChannelID != "UCabc123" {
		t.Fatalf("channel id = %q, want UCabc123", record.ChannelID)
	}

	stored, err := svc.Status(context.Background(), videoURL)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if stored.ChannelID != "UCabc123" {
		t.Fatalf("stored channel id = %q, want UCabc123", stored.ChannelID)
	}
}

func TestAnalyze_CacheHitSkipsPipeline(t *testing.T) {
	dl := &mockDownloader{}
	svc := newTestService(t, &mockAnalyzer{}, dl)
	ctx := context.Background()

	if _, err := svc.Analyze(ctx, Request{UserID: 1, VideoURL: videoURL}); err != nil {
		t.Fatalf("first analyze: %v", err)
	}

	record, err := svc.Analyze(ctx, Request{UserID: 1, VideoURL: videoURL})
	if err != nil {
		t.Fatalf("second analyze: %v", err)
	}
	if record.Status != model.DeepSearchCompleted {
		t.Fatalf("expected completed from cache, got %q", record.Status)
	}
	if dl.downloads.Load() != 1 {
		t.Fatalf("cache hit must not re-download, downloads=%d", dl.downloads.Load())
	}
}

func TestAnalyze_PendingGuard(t *testing.T) {
	svc := newTestService(t, &mockAnalyzer{}, &mockDownloader{})
	ctx := context.Background()

	// 预置一条 processing 记录，模拟进行中的任务
	pre := model.DeepSearchCache{UserID: 1, VideoURL: videoURL, Status: model.DeepSearchProcessing}
	if err := svc.db.Create(&pre).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := svc.Analyze(ctx, Request{UserID: 1, VideoURL: videoURL})
	if !errors.Is(err, ErrJobPending) {
		t.Fatalf("expected ErrJobPending, got %v", err)
	}
}

func TestAnalyze_FailureRecordsErrorAndCleansUp(t *testing.T) {
	analyzer := &mockAnalyzer{
		uploadFn: func(ctx context.Context, indexID, path string) (string, error) {
			return "", errors.New("service unavailable")
		},
	}
	dl := &mockDownloader{}
	svc := newTestService(t, analyzer, dl)

	record, err := svc.Analyze(context.Background(), Request{UserID: 1, VideoURL: videoURL})
	if err != nil {
		t.Fatalf("analyze should return the failed record, not an error: %v", err)
	}
	if record.Status != model.DeepSearchFailed {
		t.Fatalf("expected failed, got %q", record.Status)
	}
	if record.ErrorMessage == "" {
		t.Fatal("expected error message on failed record")
	}
	// 上传失败后下载产物也必须清理
	if dl.cleanups.Load() != 1 {
		t.Fatalf("expected cleanup on failure path, got %d", dl.cleanups.Load())
	}
}

func TestAnalyze_PollTimeoutFails(t *testing.T) {
	analyzer := &mockAnalyzer{
		waitFn: func(ctx context.Context, taskID string) (string, error) {
			return "", videoai.ErrPollTimeout
		},
	}
	svc := newTestService(t, analyzer, &mockDownloader{})

	record, err := svc.Analyze(context.Background(), Request{UserID: 1, VideoURL: videoURL})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if record.Status != model.DeepSearchFailed {
		t.Fatalf("expected failed on poll timeout, got %q", record.Status)
	}
}

func TestAnalyze_FailedRequiresRetry(t *testing.T) {
	dl := &mockDownloader{err: errors.New("yt-dlp exploded")}
	svc := newTestService(t, &mockAnalyzer{}, dl)
	ctx := context.Background()

	record, err := svc.Analyze(ctx, Request{UserID: 1, VideoURL: videoURL})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if record.Status != model.DeepSearchFailed {
		t.Fatalf("expected failed, got %q", record.Status)
	}

	// failed 状态下再次 analyze 要求走 retry
	if _, err := svc.Analyze(ctx, Request{UserID: 1, VideoURL: videoURL}); !errors.Is(err, ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable, got %v", err)
	}

	// retry 后恢复执行
	dl.err = nil
	retried, err := svc.Retry(ctx, Request{UserID: 1, VideoURL: videoURL})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != model.DeepSearchCompleted {
		t.Fatalf("expected completed after retry, got %q (%s)", retried.Status, retried.ErrorMessage)
	}
}

func TestRetry_Guards(t *testing.T) {
	svc := newTestService(t, &mockAnalyzer{}, &mockDownloader{})
	ctx := context.Background()

	if _, err := svc.Retry(ctx, Request{UserID: 1, VideoURL: videoURL}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("retry of unknown url: expected ErrNotFound, got %v", err)
	}

	if _, err := svc.Analyze(ctx, Request{UserID: 1, VideoURL: videoURL}); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if _, err := svc.Retry(ctx, Request{UserID: 1, VideoURL: videoURL}); !errors.Is(err, ErrNotRetryable) {
		t.Fatalf("retry of completed job: expected ErrNotRetryable, got %v", err)
	}
}

func TestStatusAndHistory(t *testing.T) {
	svc := newTestService(t, &mockAnalyzer{}, &mockDownloader{})
	ctx := context.Background()

	if _, err := svc.Status(ctx, videoURL); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := svc.Analyze(ctx, Request{UserID: 1, VideoURL: videoURL}); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if _, err := svc.Analyze(ctx, Request{UserID: 1, VideoURL: "https://www.youtube.com/watch?v=zzz"}); err != nil {
		t.Fatalf("analyze second video: %v", err)
	}

	record, err := svc.Status(ctx, videoURL)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if record.Status != model.DeepSearchCompleted {
		t.Fatalf("expected completed, got %q", record.Status)
	}

	history, err := svc.History(ctx, 1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 records, got %d", len(history))
	}

	other, err := svc.History(ctx, 99)
	if err != nil {
		t.Fatalf("history other user: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no records for other user, got %d", len(other))
	}
}

func TestNormalizeURL(t *testing.T) {
	got, err := NormalizeURL("  https://WWW.YouTube.com/watch?v=abc#t=30 ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "https://www.youtube.com/watch?v=abc" {
		t.Fatalf("unexpected normalized url: %q", got)
	}

	for _, bad := range []string{"", "   ", "notaurl", "ftp://example.com/v"} {
		if _, err := NormalizeURL(bad); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("expected ErrInvalidURL for %q, got %v", bad, err)
		}
	}
}
