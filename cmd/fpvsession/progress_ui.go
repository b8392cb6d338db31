package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"github.com/John-Robertt/fpvsession/internal/app/run"
	"github.com/John-Robertt/fpvsession/internal/config"
	"github.com/John-Robertt/fpvsession/internal/domain"
	"github.com/John-Robertt/fpvsession/internal/infra/cache"
	"github.com/John-Robertt/fpvsession/internal/infra/fsx"
)

var _ run.Observer = (*progressUI)(nil)

// copyFrameInterval 约 15 Hz：大文件复制时足够平滑，又不会刷屏。
const copyFrameInterval = time.Second / 15

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - 复制进度在同一行原地刷新（\r），文件完成时换行
type progressUI struct {
	w   io.Writer
	now func() time.Time

	mu        sync.Mutex
	startedAt time.Time

	total int
	ok    int
	fail  int

	lastFrame time.Time
	inLine    bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{w: w, now: time.Now}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (不改名/不删除/不复制)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] fpvsession (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	if eff.ConfigFile != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigFile)
	}
	fmt.Fprintf(p.w, "  input: %s\n", eff.Input)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  max_gap: %s\n", eff.MaxGap)
	fmt.Fprintf(p.w, "  ffprobe: %s\n", orDefault(eff.FFprobePath, "PATH"))
	fmt.Fprintf(p.w, "  large_file: %s\n", humanize.IBytes(uint64(max64(eff.LargeFileBytes, 0))))
	fmt.Fprintf(p.w, "  excluded_names: %s\n", formatStringListJSON(eff.ExcludedNames))
	fmt.Fprintf(p.w, "  exclude_dirs: %s + 固定排除 %s/\n", formatStringListJSON(eff.ExcludeDirs), cache.StateDir)

	if eff.Output != "" {
		fmt.Fprintln(p.w, "输出:")
		fmt.Fprintf(p.w, "  output: %s\n", eff.Output)
		if eff.Apply {
			fmt.Fprintf(p.w, "  report: %s\n", filepath.Join(eff.Output, cache.StateDir, run.ReportFile))
		}
	}
	fmt.Fprintln(p.w)
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLineLocked()

	switch name {
	case "scan":
		fmt.Fprintf(p.w, "扫描: files=%d (%s)\n", intField(fields, "files"), formatShortDuration(dur))
	case "rename":
		fmt.Fprintf(p.w, "改名: renamed=%d conflicts=%d failed=%d (%s)\n",
			intField(fields, "renamed"), intField(fields, "conflicts"), intField(fields, "failed"), formatShortDuration(dur),
		)
	case "dedup":
		fmt.Fprintf(p.w, "去重: groups=%d removed=%d (%s)\n",
			intField(fields, "groups"), intField(fields, "removed"), formatShortDuration(dur),
		)
	case "collect":
		fmt.Fprintf(p.w, "探测: files=%d probed=%d (%s)\n",
			intField(fields, "files"), intField(fields, "probed"), formatShortDuration(dur),
		)
	case "group":
		fmt.Fprintf(p.w, "分组: sessions=%d ungrouped=%d (%s)\n",
			intField(fields, "sessions"), intField(fields, "ungrouped"), formatShortDuration(dur),
		)
	case "plan":
		p.total = intField(fields, "sessions")
		fmt.Fprintf(p.w, "规划: sessions=%d reused=%d copies=%d (%s)\n\n",
			p.total, intField(fields, "reused"), intField(fields, "copies"), formatShortDuration(dur),
		)
	case "sort":
		fmt.Fprintf(p.w, "\n归档: ok=%d fail=%d elapsed=%s\n", p.ok, p.fail, formatElapsed(p.now().Sub(p.startedAt)))
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
}

func (p *progressUI) OnSessionDone(idx, total int, res domain.SessionResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLineLocked()

	status := strings.ToUpper(res.Status)
	if res.Status == domain.SessionStatusFailed {
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL %s: %s (%s)\n",
			idx, total, res.Folder, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
		return
	}
	p.ok++

	var copied, exists, bad int
	for _, f := range res.Files {
		switch f.Status {
		case domain.FileStatusCopied, domain.FileStatusPlanned:
			copied++
		case domain.FileStatusExists:
			exists++
		default:
			bad++
		}
	}
	note := ""
	if bad > 0 {
		note = fmt.Sprintf(" problems=%d", bad)
	}
	fmt.Fprintf(p.w, "[%d/%d] %s %s copy=%d exists=%d flights=%d time=%.1fmin%s (%s)\n",
		idx, total, res.Folder, status, copied, exists, res.FlightCount, res.TotalFlightTimeMin, note, formatShortDuration(dur),
	)
}

// OnCopyProgress 节流到约 15 Hz；最后一块总会输出并换行。
func (p *progressUI) OnCopyProgress(pr fsx.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	last := pr.Copied >= pr.Total
	if !last && now.Sub(p.lastFrame) < copyFrameInterval {
		return
	}
	p.lastFrame = now

	fmt.Fprintf(p.w, "\r  %s", formatCopyLine(pr))
	p.inLine = true
	if last {
		p.endLineLocked()
	}
}

func (p *progressUI) endLineLocked() {
	if p.inLine {
		fmt.Fprintln(p.w)
		p.inLine = false
	}
}

func formatCopyLine(pr fsx.Progress) string {
	line := fmt.Sprintf("%s %5.1f%% %s/%s %s/s",
		truncate(filepath.Base(pr.Dst), 48),
		pr.Percent(),
		humanize.Bytes(uint64(max64(pr.Copied, 0))),
		humanize.Bytes(uint64(max64(pr.Total, 0))),
		humanize.Bytes(uint64(pr.BytesPerSec())),
	)
	if eta := pr.ETA(); eta > 0 {
		line += " ETA " + formatElapsed(eta)
	}
	return line
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
