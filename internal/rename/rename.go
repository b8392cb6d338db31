package rename

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/John-Robertt/fpvsession/internal/domain"
	"github.com/John-Robertt/fpvsession/internal/infra/fsx"
	"github.com/John-Robertt/fpvsession/internal/probe"
	"github.com/John-Robertt/fpvsession/internal/stamp"
)

// 跳过原因。
const (
	ReasonExcluded         = "excluded"
	ReasonNoRule           = "no_rule"
	ReasonAlreadyCanonical = "already_canonical"
	ReasonUnchanged        = "unchanged"
)

// ConflictError 表示目标名已被占用且内容不同（或无法判定），候选文件保持不动。
type ConflictError struct {
	Src    string
	Target string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("目标已存在且内容不同：%s -> %s", e.Src, e.Target)
}

// ContentTimer 提供内容时间戳（通常是 *probe.Extractor）。
type ContentTimer interface {
	ExtractWithModTime(ctx context.Context, path string, modTime time.Time) probe.Metadata
}

// Outcome 是单个文件的重命名结果。
type Outcome struct {
	Src    string // 相对输入根目录
	Dst    string // 相对输入根目录；skipped/conflict 时为空
	Rule   string
	Kind   domain.DeviceKind
	Status string // domain.FileStatus*
	Reason string // skipped 的原因
	Err    error
}

// Result 转换为报告条目。
func (o Outcome) Result() domain.FileResult {
	r := domain.FileResult{Src: o.Src, Dst: o.Dst, Rule: o.Rule, Status: o.Status}
	if o.Status == domain.FileStatusSkipped {
		r.ErrorMsg = o.Reason
	}
	if o.Err != nil {
		r.ErrorCode = errorCode(o.Err)
		r.ErrorMsg = o.Err.Error()
	}
	return r
}

func errorCode(err error) string {
	var ce *ConflictError
	switch {
	case errors.As(err, &ce):
		return domain.ErrCodeNameConflict
	case fsx.IsCrossDevice(err):
		return domain.ErrCodeCrossDevice
	default:
		return domain.ErrCodeRenameFailed
	}
}

// Renamer 把输入目录内的文件原地改为规范名。
type Renamer struct {
	Rules   Rules
	Names   *Names
	Content ContentTimer
	Log     *zap.Logger
	DryRun  bool

	fold     cases.Caser
	excluded map[string]struct{} // folded 文件名
}

// New 创建 Renamer；excludedNames 中的文件名（不区分大小写）永远不会被改动或删除。
func New(rules Rules, content ContentTimer, dryRun bool, excludedNames []string, log *zap.Logger) *Renamer {
	if log == nil {
		log = zap.NewNop()
	}
	fold := cases.Fold()
	ex := make(map[string]struct{}, len(excludedNames))
	for _, n := range excludedNames {
		ex[fold.String(n)] = struct{}{}
	}
	return &Renamer{
		Rules:    rules,
		Names:    NewNames(),
		Content:  content,
		Log:      log,
		DryRun:   dryRun,
		fold:     fold,
		excluded: ex,
	}
}

// RenameAll 按给定顺序逐个处理文件；单个文件失败不影响其余文件。
// 返回的 records 已更新为改名后的路径（被删除的文件不再出现）。
func (r *Renamer) RenameAll(ctx context.Context, files []domain.FileRecord) ([]Outcome, []domain.FileRecord) {
	out := make([]Outcome, 0, len(files))
	kept := make([]domain.FileRecord, 0, len(files))
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		o := r.RenameFile(ctx, &f)
		out = append(out, o)
		if o.Status == domain.FileStatusDeleted || o.Status == domain.FileStatusPlannedDelete {
			continue
		}
		kept = append(kept, f)
	}
	return out, kept
}

// RenameFile 处理单个文件；成功改名时原地更新 rec 的路径与设备类型。
func (r *Renamer) RenameFile(ctx context.Context, rec *domain.FileRecord) Outcome {
	o := Outcome{Src: rec.RelPath, Kind: domain.KindUnknown}
	name := rec.Name
	dir := filepath.Dir(rec.AbsPath)

	if _, ok := r.excluded[r.fold.String(name)]; ok {
		o.Status, o.Reason = domain.FileStatusSkipped, ReasonExcluded
		return o
	}
	if kind, ok := CanonicalKind(name); ok {
		rec.Kind = kind
		r.Names.Claim(dir, name, rec.AbsPath)
		o.Kind = kind
		o.Status, o.Reason = domain.FileStatusSkipped, ReasonAlreadyCanonical
		return o
	}

	rule, sub, ok := r.Rules.First(name)
	if !ok {
		o.Status, o.Reason = domain.FileStatusSkipped, ReasonNoRule
		return o
	}
	o.Rule, o.Kind = rule.Name, rule.Kind
	rec.Kind = rule.Kind

	ts := r.timestamp(ctx, rule, sub, rec)
	base := rule.Build(stamp.Format(ts), sub)
	ext := rule.Ext(name)

	if rule.Collision == CollisionIdenticalOrConflict {
		return r.renameOrDedup(rec, dir, base+ext, o)
	}

	target := r.Names.Alloc(dir, base, ext, name, rec.AbsPath)
	if target == name {
		o.Status, o.Reason = domain.FileStatusSkipped, ReasonUnchanged
		return o
	}
	return r.move(rec, dir, target, o)
}

func (r *Renamer) timestamp(ctx context.Context, rule Rule, sub []string, rec *domain.FileRecord) time.Time {
	switch rule.Stamp {
	case StampContent:
		if r.Content == nil {
			return rec.ModTime
		}
		md := r.Content.ExtractWithModTime(ctx, rec.AbsPath, rec.ModTime)
		if md.DurationSeconds > 0 {
			rec.DurationSeconds = md.DurationSeconds
		}
		return md.Timestamp
	case StampFilename:
		if t, ok := rule.ParseTime(sub); ok {
			return t
		}
		return rec.ModTime
	default:
		return rec.ModTime
	}
}

// renameOrDedup：目标名被占用时，字节一致则删除候选文件，否则冲突。
func (r *Renamer) renameOrDedup(rec *domain.FileRecord, dir, target string, o Outcome) Outcome {
	if target == rec.Name {
		o.Status, o.Reason = domain.FileStatusSkipped, ReasonUnchanged
		return o
	}
	if !r.Names.Taken(dir, target) {
		r.Names.Claim(dir, target, rec.AbsPath)
		return r.move(rec, dir, target, o)
	}

	// dry-run 下目标可能只是“计划中”的名字：用占用者的源文件比较。
	other := filepath.Join(dir, target)
	if _, err := os.Lstat(other); err != nil {
		if src, ok := r.Names.ClaimedBy(dir, target); ok {
			other = src
		}
	}
	same, err := fsx.SameContent(rec.AbsPath, other)
	if err != nil || !same {
		o.Status = domain.FileStatusConflict
		o.Err = &ConflictError{Src: rec.RelPath, Target: target}
		r.Log.Warn("重命名冲突，保持原文件", zap.String("src", rec.RelPath), zap.String("target", target))
		return o
	}

	o.Dst = relSibling(rec.RelPath, target)
	if r.DryRun {
		o.Status = domain.FileStatusPlannedDelete
		return o
	}
	if err := os.Remove(rec.AbsPath); err != nil {
		o.Status, o.Err = domain.FileStatusFailed, err
		r.Log.Error("删除重复文件失败", zap.String("path", rec.RelPath), zap.Error(err))
		return o
	}
	o.Status = domain.FileStatusDeleted
	r.Log.Info("已删除与目标一致的重复文件", zap.String("path", rec.RelPath), zap.String("target", target))
	return o
}

func (r *Renamer) move(rec *domain.FileRecord, dir, target string, o Outcome) Outcome {
	dst := filepath.Join(dir, target)
	o.Dst = relSibling(rec.RelPath, target)
	if r.DryRun {
		rec.Name = target
		o.Status = domain.FileStatusPlanned
		r.Log.Debug("计划重命名", zap.String("src", rec.RelPath), zap.String("dst", o.Dst))
		return o
	}

	if err := fsx.Rename(rec.AbsPath, dst); err != nil {
		o.Status, o.Err = domain.FileStatusFailed, err
		r.Log.Error("重命名失败", zap.String("src", rec.RelPath), zap.Error(err))
		return o
	}
	// rename 不改 mtime，但部分文件系统会；显式还原，保证后续阶段读到原始时间。
	if err := fsx.SetMtime(dst, rec.ModTime); err != nil {
		r.Log.Warn("还原 mtime 失败", zap.String("path", o.Dst), zap.Error(err))
	}

	rec.AbsPath = dst
	rec.RelPath = o.Dst
	rec.Name = target
	rec.Ext = strings.ToLower(filepath.Ext(target))
	o.Status = domain.FileStatusRenamed
	r.Log.Info("已重命名", zap.String("src", o.Src), zap.String("dst", o.Dst))
	return o
}

func relSibling(rel, name string) string {
	d := filepath.Dir(rel)
	if d == "." {
		return filepath.ToSlash(name)
	}
	return filepath.ToSlash(filepath.Join(d, name))
}
