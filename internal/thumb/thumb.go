// Package thumb 用 ffmpeg 为会话视频生成缩略图（<base>_thumb.jpg，位于会话的 IMG/）。
package thumb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/John-Robertt/fpvsession/internal/index"
	"github.com/John-Robertt/fpvsession/internal/infra/fsx"
)

const DefaultTimeout = 30 * time.Second

// ErrNoOutput 表示 ffmpeg 正常退出但没有产出文件（例如视频短于 5 秒）。
var ErrNoOutput = errors.New("thumb: ffmpeg 未生成输出")

// Task 是一个待生成的缩略图（绝对路径）。
type Task struct {
	Video string
	Thumb string
}

// Pending 列出 root 下所有缺少缩略图的视频（顺序同索引）。
func Pending(root string) ([]Task, error) {
	recs, err := index.Build(root)
	if err != nil {
		return nil, err
	}
	var out []Task
	for _, r := range recs {
		for _, th := range r.Thumbnails {
			thumb := filepath.Join(root, filepath.FromSlash(th.Thumb))
			if _, err := os.Stat(thumb); err == nil {
				continue
			}
			out = append(out, Task{Video: filepath.Join(root, filepath.FromSlash(th.Video)), Thumb: thumb})
		}
	}
	return out, nil
}

// Runner 执行外部命令并返回合并后的输出；测试中可替换。
type Runner func(ctx context.Context, bin string, args ...string) ([]byte, error)

// Generator 调用 ffmpeg 抽帧。
type Generator struct {
	Bin     string
	Timeout time.Duration
	Run     Runner
	Log     *zap.Logger
}

func New(bin string, timeout time.Duration, log *zap.Logger) *Generator {
	if strings.TrimSpace(bin) == "" {
		bin = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{Bin: bin, Timeout: timeout, Run: execRunner, Log: log}
}

// Args 返回抽取第 5 秒画面并缩放到 320x240 以内的 ffmpeg 参数。
func Args(video, dst string) []string {
	return []string{
		"-y",
		"-ss", "5",
		"-i", video,
		"-vframes", "1",
		"-vf", "scale=320:240:force_original_aspect_ratio=decrease",
		dst,
	}
}

// Generate 为单个视频生成缩略图；成功要求退出码为 0 且目标文件存在。
func (g *Generator) Generate(ctx context.Context, video, dst string) error {
	if err := fsx.EnsureDir(filepath.Dir(dst)); err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	out, err := g.Run(cctx, g.Bin, Args(video, dst)...)
	if err != nil {
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("ffmpeg 超时（%s）：%s", g.Timeout, video)
		}
		return fmt.Errorf("ffmpeg 失败：%s：%w：%s", video, err, lastLine(out))
	}
	if _, err := os.Stat(dst); err != nil {
		return fmt.Errorf("%w：%s", ErrNoOutput, video)
	}
	return nil
}

// GenerateAll 逐个生成缩略图；单个失败不影响其余，错误汇总返回。
// done 在每个任务结束后被调用（可为 nil）。
func (g *Generator) GenerateAll(ctx context.Context, tasks []Task, done func(i, total int, t Task, err error)) (int, error) {
	var (
		errs error
		ok   int
	)
	for i, t := range tasks {
		if err := ctx.Err(); err != nil {
			return ok, multierr.Append(errs, err)
		}
		err := g.Generate(ctx, t.Video, t.Thumb)
		if err != nil {
			errs = multierr.Append(errs, err)
			g.Log.Warn("缩略图生成失败", zap.String("video", t.Video), zap.Error(err))
		} else {
			ok++
		}
		if done != nil {
			done(i+1, len(tasks), t, err)
		}
	}
	return ok, errs
}

func lastLine(b []byte) string {
	lines := bytes.Split(bytes.TrimSpace(b), []byte("\n"))
	return string(lines[len(lines)-1])
}

func execRunner(ctx context.Context, bin string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, bin, args...).CombinedOutput()
}
