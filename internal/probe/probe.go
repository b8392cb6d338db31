package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/fpvsession/internal/domain"
)

// DefaultTimeout 是单次 ffprobe 调用的硬超时。
const DefaultTimeout = 30 * time.Second

var (
	// ErrToolMissing 表示找不到 ffprobe（功能降级，不是致命错误）。
	ErrToolMissing = errors.New("ffprobe 不可用")
	// ErrTimeout 表示 ffprobe 超过超时仍未返回。
	ErrTimeout = errors.New("ffprobe 超时")
)

// ProbeError 描述一次失败的探测（执行失败或输出无法解析）。
type ProbeError struct {
	Path  string
	Stage string // "exec" | "parse" | "exif"
	Err   error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("探测 %q 失败（%s）：%v", e.Path, e.Stage, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// TimeSource 标记 Timestamp 的来源。
type TimeSource string

const (
	SourceMtime     TimeSource = "mtime"
	SourceContainer TimeSource = "container"
	SourceExif      TimeSource = "exif"
)

// Metadata 是单个文件的探测结果。Timestamp 永远非零：探测失败时等于 ModTime。
type Metadata struct {
	Timestamp       time.Time
	ModTime         time.Time
	DurationSeconds float64
	Source          TimeSource

	// ProbeErr 记录可恢复的探测失败；调用方决定记录日志还是忽略。
	ProbeErr error
}

// Runner 执行外部命令并返回 stdout。测试可替换为桩实现。
type Runner func(ctx context.Context, bin string, args ...string) ([]byte, error)

// Extractor 是一次运行内的元数据探测器。
//
// ffprobe 路径在首次使用时解析并缓存在实例上（每次运行一个实例，不使用全局状态）。
// 实例不做并发保护：核心流程是串行的。
type Extractor struct {
	Bin       string
	Timeout   time.Duration
	ImageExif bool
	Log       *zap.Logger
	Run       Runner

	lookPath func(string) (string, error)

	resolved   bool
	binPath    string
	resolveErr error
	warned     bool
}

// New 创建 Extractor。bin 为空时从 PATH 查找 ffprobe。
func New(bin string, timeout time.Duration, imageExif bool, log *zap.Logger) *Extractor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{
		Bin:       strings.TrimSpace(bin),
		Timeout:   timeout,
		ImageExif: imageExif,
		Log:       log,
		Run:       execRunner,
		lookPath:  exec.LookPath,
	}
}

// Extract 读取 path 的 mtime 并探测内容元数据。
// 只有 stat 失败（文件不存在/不可读）才返回 error。
func (e *Extractor) Extract(ctx context.Context, path string) (Metadata, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Metadata{}, err
	}
	return e.ExtractWithModTime(ctx, path, fi.ModTime()), nil
}

// ExtractWithModTime 与 Extract 相同，但复用调用方已拿到的 mtime（扫描阶段只做 stat）。
func (e *Extractor) ExtractWithModTime(ctx context.Context, path string, modTime time.Time) Metadata {
	md := Metadata{
		Timestamp: modTime,
		ModTime:   modTime,
		Source:    SourceMtime,
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case domain.IsVideoExt(ext):
		c, err := e.Container(ctx, path)
		if err != nil {
			md.ProbeErr = err
			return md
		}
		md.DurationSeconds = c.DurationSeconds
		if !c.CreationTime.IsZero() {
			md.Timestamp = c.CreationTime
			md.Source = SourceContainer
		}
	case e.ImageExif && isExifExt(ext):
		t, err := readExifTime(path)
		if err != nil {
			md.ProbeErr = &ProbeError{Path: path, Stage: "exif", Err: err}
			return md
		}
		md.Timestamp = t
		md.Source = SourceExif
	}
	return md
}

// Apply 把探测结果写回 FileRecord（Timestamp/DurationSeconds）。
func (e *Extractor) Apply(ctx context.Context, rec *domain.FileRecord) Metadata {
	md := e.ExtractWithModTime(ctx, rec.AbsPath, rec.ModTime)
	rec.Timestamp = md.Timestamp
	rec.DurationSeconds = md.DurationSeconds
	if md.ProbeErr != nil && !errors.Is(md.ProbeErr, ErrToolMissing) {
		e.Log.Debug("元数据探测失败，回落到 mtime", zap.String("path", rec.RelPath), zap.Error(md.ProbeErr))
	}
	return md
}

// Duration 返回视频时长（秒）；非视频或失败时为 0。
func (e *Extractor) Duration(ctx context.Context, path string) float64 {
	if !domain.IsVideoExt(strings.ToLower(filepath.Ext(path))) {
		return 0
	}
	c, err := e.Container(ctx, path)
	if err != nil {
		return 0
	}
	return c.DurationSeconds
}

// Container 对视频容器执行一次 ffprobe 调用（受 Timeout 约束）。
func (e *Extractor) Container(ctx context.Context, path string) (Container, error) {
	bin, err := e.resolve()
	if err != nil {
		return Container{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	out, err := e.Run(ctx, bin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams", "-select_streams", "v:0",
		path,
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Container{}, &ProbeError{Path: path, Stage: "exec", Err: ErrTimeout}
		}
		return Container{}, &ProbeError{Path: path, Stage: "exec", Err: err}
	}

	c, err := ParseFFprobeJSON(out)
	if err != nil {
		return Container{}, &ProbeError{Path: path, Stage: "parse", Err: err}
	}
	return c, nil
}

// resolve 解析 ffprobe 路径，结果缓存在实例上；找不到时只告警一次。
func (e *Extractor) resolve() (string, error) {
	if !e.resolved {
		e.resolved = true
		name := e.Bin
		if name == "" {
			name = "ffprobe"
		}
		p, err := e.lookPath(name)
		if err != nil {
			e.resolveErr = fmt.Errorf("%w：%v", ErrToolMissing, err)
		} else {
			e.binPath = p
		}
	}
	if e.resolveErr != nil {
		if !e.warned {
			e.warned = true
			e.Log.Warn("未找到 ffprobe，时长记为 0，时间戳回落到 mtime", zap.Error(e.resolveErr))
		}
		return "", e.resolveErr
	}
	return e.binPath, nil
}

func execRunner(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w (%s)", err, msg)
		}
		return nil, err
	}
	return out, nil
}
