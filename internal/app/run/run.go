package run

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/John-Robertt/fpvsession/internal/app"
	"github.com/John-Robertt/fpvsession/internal/app/planner"
	"github.com/John-Robertt/fpvsession/internal/config"
	"github.com/John-Robertt/fpvsession/internal/dedup"
	"github.com/John-Robertt/fpvsession/internal/domain"
	"github.com/John-Robertt/fpvsession/internal/infra/cache"
	"github.com/John-Robertt/fpvsession/internal/probe"
	"github.com/John-Robertt/fpvsession/internal/rename"
	"github.com/John-Robertt/fpvsession/internal/scan"
)

// ReportFile 是 apply 模式下写入 <output>/.fpvsession/ 的报告文件名。
const ReportFile = "report.json"

// Stages 选择本次运行要执行的阶段。扫描总会执行。
type Stages struct {
	Rename bool
	Dedup  bool
	Sort   bool
}

// StagesFor 返回 run 命令的默认阶段（尊重 skip_rename / skip_dedup）。
func StagesFor(eff config.EffectiveConfig) Stages {
	return Stages{Rename: !eff.SkipRename, Dedup: !eff.SkipDedup, Sort: true}
}

// Execute 执行一次完整 run（dry-run/apply），并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为文件/会话级失败（单条失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig, log *zap.Logger) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, StagesFor(eff), log, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许选择阶段并传入 Observer（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, st Stages, log *zap.Logger, obs Observer) domain.RunReport {
	if log == nil {
		log = zap.NewNop()
	}
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Input:     eff.Input,
		Output:    eff.Output,
		DryRun:    !eff.Apply,
		StartedAt: started,
	}
	log = log.With(zap.String("run_id", rr.RunID))
	phase := func(name string, fields map[string]any, since time.Time) {
		if obs != nil {
			obs.OnPhaseDone(name, fields, time.Since(since))
		}
	}
	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		writeReport(eff, rr, log)
		return rr
	}

	ext := probe.New(eff.FFprobePath, eff.ProbeTimeout, eff.ImageExif, log)

	scanStarted := time.Now()
	files, err := scan.ScanFiles(eff.Input, eff.ExcludeDirs)
	if err != nil {
		rr.Errors = append(rr.Errors, errorItem("scan", domain.ErrCodeIOFailed, fmt.Errorf("扫描失败：%w", err)))
		return finish()
	}
	rr.Scanned = len(files)
	phase("scan", map[string]any{"files": len(files)}, scanStarted)

	if st.Rename {
		renameStarted := time.Now()
		r := rename.New(rename.DefaultRules(), ext, !eff.Apply, eff.ExcludedNames, log)
		outcomes, kept := r.RenameAll(ctx, files)
		var renamed, conflicts, failed int
		for _, o := range outcomes {
			rr.Renames = append(rr.Renames, o.Result())
			switch o.Status {
			case domain.FileStatusRenamed, domain.FileStatusPlanned:
				renamed++
			case domain.FileStatusConflict:
				conflicts++
			case domain.FileStatusFailed:
				failed++
			}
		}
		files = kept
		phase("rename", map[string]any{
			"renamed":   renamed,
			"conflicts": conflicts,
			"failed":    failed,
		}, renameStarted)
	}

	if st.Dedup {
		dedupStarted := time.Now()
		res := dedup.Eliminate(ctx, files, dedup.Options{
			DryRun:   !eff.Apply,
			Excluded: eff.ExcludedNames,
			Log:      log,
		})
		rr.Duplicates = append(rr.Duplicates, res.Removed...)
		for _, e := range multierr.Errors(res.Err) {
			rr.Errors = append(rr.Errors, errorItem("dedup", domain.ErrCodeIOFailed, e))
		}
		files = res.Kept
		phase("dedup", map[string]any{
			"groups":  len(res.Groups),
			"removed": len(res.Removed),
		}, dedupStarted)
	}

	if !st.Sort || ctx.Err() != nil {
		if err := ctx.Err(); err != nil {
			rr.Errors = append(rr.Errors, errorItem("run", domain.ErrCodeIOFailed, err))
		}
		return finish()
	}

	collectStarted := time.Now()
	probed := collect(ctx, ext, files)
	phase("collect", map[string]any{"files": len(files), "probed": probed}, collectStarted)

	groupStarted := time.Now()
	buckets, ungrouped, err := app.GroupSessions(files, eff.MaxGap)
	if err != nil {
		rr.Errors = append(rr.Errors, errorItem("group", domain.ErrCodeIOFailed, fmt.Errorf("分组失败：%w", err)))
		return finish()
	}
	for _, u := range ungrouped {
		rr.Ungrouped = append(rr.Ungrouped, u.RelPath)
		log.Debug("文件名缺少时间戳，不参与分组", zap.String("path", u.RelPath))
	}
	phase("group", map[string]any{
		"sessions":  len(buckets),
		"ungrouped": len(ungrouped),
	}, groupStarted)

	planStarted := time.Now()
	pl := planner.New(eff.Output)
	plans := make([]domain.SessionPlan, 0, len(buckets))
	var reused, copies int
	for _, b := range buckets {
		p, err := pl.Plan(b)
		if err != nil {
			rr.Sessions = append(rr.Sessions, failedBucket(b, err))
			continue
		}
		if p.Reused {
			reused++
		}
		for _, c := range p.Copies {
			if !c.Exists {
				copies++
			}
		}
		plans = append(plans, p)
	}
	phase("plan", map[string]any{
		"sessions": len(plans),
		"reused":   reused,
		"copies":   copies,
	}, planStarted)

	// 执行阶段：会话之间串行，单个会话失败不影响后续会话。
	m := &materializer{eff: eff, ext: ext, log: log, obs: obs}
	sortStarted := time.Now()
	for i, p := range plans {
		if err := ctx.Err(); err != nil {
			rr.Errors = append(rr.Errors, errorItem("sort", domain.ErrCodeIOFailed, fmt.Errorf("已取消，剩余 %d 个会话未处理：%w", len(plans)-i, err)))
			break
		}
		oneStarted := time.Now()
		res := m.session(ctx, p)
		rr.Sessions = append(rr.Sessions, res)
		if obs != nil {
			obs.OnSessionDone(i+1, len(plans), res, time.Since(oneStarted))
		}
	}
	phase("sort", map[string]any{"sessions": len(plans)}, sortStarted)

	return finish()
}

// collect 为分组前的文件补齐设备类型与视频时长（每个视频最多一次 ffprobe）。
func collect(ctx context.Context, ext *probe.Extractor, files []domain.FileRecord) int {
	probed := 0
	for i := range files {
		f := &files[i]
		if f.Kind == domain.KindUnknown {
			if k, ok := rename.CanonicalKind(f.Name); ok {
				f.Kind = k
			}
		}
		if ctx.Err() != nil || f.DurationSeconds > 0 || !domain.IsVideoExt(f.Ext) {
			continue
		}
		ext.Apply(ctx, f)
		probed++
	}
	return probed
}

func failedBucket(b domain.SessionBucket, err error) domain.SessionResult {
	out := domain.SessionResult{
		Day:       domain.DayFolderName(b.Start),
		Folder:    domain.SessionFolderName(b.Start, b.End),
		Start:     b.Start.Format(domain.ClockLayout),
		End:       b.End.Format(domain.ClockLayout),
		Status:    domain.SessionStatusFailed,
		ErrorCode: domain.ErrCodeIOFailed,
		ErrorMsg:  fmt.Sprintf("读取输出目录状态失败：%v", err),
		Files:     make([]domain.FileResult, 0, len(b.Members)),
	}
	for _, m := range b.Members {
		out.Files = append(out.Files, domain.FileResult{Src: m.RelPath, Status: domain.FileStatusFailed})
	}
	return out
}

func errorItem(stage, code string, err error) domain.ErrorItem {
	return domain.ErrorItem{Stage: stage, ErrorCode: code, ErrorMsg: err.Error()}
}

// writeReport 只在 apply 且有输出目录时落盘；失败只记日志（stdout 上的报告仍然完整）。
func writeReport(eff config.EffectiveConfig, rr domain.RunReport, log *zap.Logger) {
	if !eff.Apply || eff.Output == "" {
		return
	}
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		log.Error("序列化报告失败", zap.Error(err))
		return
	}
	store := cache.New(eff.Output, false)
	if err := store.Write(ReportFile, append(b, '\n')); err != nil {
		log.Error("写入报告失败", zap.Error(err))
		return
	}
	if p, err := store.Path(ReportFile); err == nil {
		log.Info("报告已写入", zap.String("path", p))
	}
}
