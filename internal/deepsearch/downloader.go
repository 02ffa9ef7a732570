package deepsearch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"influencehub/internal/config"
)

// VideoDownloader 下载视频到本地临时目录。
type VideoDownloader interface {
	// Download 下载 url 指向的视频，返回本地文件路径和清理函数。
	// 无论任务成败，调用方必须执行 cleanup。
	Download(ctx context.Context, url string) (path string, cleanup func(), err error)
}

// YtDlpDownloader 通过 yt-dlp 命令行下载视频。
//
// 生态里没有可直接复用的 YouTube 下载库，yt-dlp 是事实标准，
// 这里以子进程方式调用并限制时长 / 文件大小。
type YtDlpDownloader struct {
	cfg    *config.DownloaderConfig
	logger *slog.Logger
}

// NewYtDlpDownloader 创建下载器。
func NewYtDlpDownloader(cfg *config.DownloaderConfig, logger *slog.Logger) *YtDlpDownloader {
	return &YtDlpDownloader{cfg: cfg, logger: logger}
}

// Download 下载视频，产物放进独立临时目录，cleanup 整目录删除。
func (d *YtDlpDownloader) Download(ctx context.Context, url string) (string, func(), error) {
	dir, err := os.MkdirTemp(d.cfg.WorkDir, "deepsearch-*")
	if err != nil {
		return "", nil, fmt.Errorf("create work dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			d.logger.Warn("remove work dir failed",
				slog.String("dir", dir),
				slog.String("error", err.Error()))
		}
	}

	timeout := d.cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"--no-playlist",
		"--no-progress",
		"-f", "mp4/bestvideo[ext=mp4]+bestaudio[ext=m4a]/best",
		"-o", filepath.Join(dir, "video.%(ext)s"),
	}
	if d.cfg.MaxFileMB > 0 {
		args = append(args, "--max-filesize", fmt.Sprintf("%dM", d.cfg.MaxFileMB))
	}
	if d.cfg.MaxDuration > 0 {
		args = append(args, "--match-filter", fmt.Sprintf("duration < %d", int(d.cfg.MaxDuration.Seconds())))
	}
	args = append(args, url)

	cmd := exec.CommandContext(runCtx, d.cfg.BinPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("yt-dlp: %w: %s", err, lastLine(string(out)))
	}

	matches, err := filepath.Glob(filepath.Join(dir, "video.*"))
	if err != nil || len(matches) == 0 {
		cleanup()
		return "", nil, fmt.Errorf("yt-dlp produced no output file (filters may have rejected the video)")
	}

	d.logger.Info("video downloaded",
		slog.String("url", url),
		slog.String("path", matches[0]))
	return matches[0], cleanup, nil
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
