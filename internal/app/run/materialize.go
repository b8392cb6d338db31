package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/John-Robertt/fpvsession/internal/config"
	"github.com/John-Robertt/fpvsession/internal/domain"
	"github.com/John-Robertt/fpvsession/internal/flightlog"
	"github.com/John-Robertt/fpvsession/internal/infra/fsx"
	"github.com/John-Robertt/fpvsession/internal/probe"
	"github.com/John-Robertt/fpvsession/internal/rename"
)

// materializer 把一个 SessionPlan 落到输出目录：复制 -> 分类 -> 占位图 -> 飞行日志。
type materializer struct {
	eff config.EffectiveConfig
	ext *probe.Extractor
	log *zap.Logger
	obs Observer
}

func (m *materializer) session(ctx context.Context, p domain.SessionPlan) domain.SessionResult {
	res := domain.SessionResult{
		Folder: p.Folder,
		Day:    p.Day,
		Start:  p.Start.Format(domain.ClockLayout),
		End:    p.End.Format(domain.ClockLayout),
		Status: domain.SessionStatusCreated,
		Files:  make([]domain.FileResult, 0, len(p.Copies)),
	}
	if p.Reused {
		res.Status = domain.SessionStatusReused
	}

	// dry-run：只报告计划，不触碰输出目录。
	if !m.eff.Apply {
		res.Status = domain.SessionStatusPlanned
		for _, c := range p.Copies {
			fr := copyResult(p, c)
			fr.Status = domain.FileStatusPlanned
			if c.Exists {
				fr.Status = domain.FileStatusExists
			}
			res.Files = append(res.Files, fr)
		}
		return res
	}

	log := m.log.With(zap.String("session", p.Folder))
	if err := fsx.EnsureDir(p.Dir); err != nil {
		return failSession(res, p, err)
	}

	kinds := make(map[string]domain.DeviceKind, len(p.Copies))
	durations := make(map[string]float64, len(p.Copies))
	byName := make(map[string]int, len(p.Copies))
	for _, c := range p.Copies {
		fr := copyResult(p, c)
		if _, dup := byName[c.DstName]; !dup {
			byName[c.DstName] = len(res.Files)
			kinds[c.DstName] = c.Src.Kind
			if c.Src.DurationSeconds > 0 {
				durations[c.DstName] = c.Src.DurationSeconds
			}
		}
		if c.Exists {
			fr.Status = domain.FileStatusExists
			res.Files = append(res.Files, fr)
			continue
		}

		_, err := fsx.CopyFile(ctx, c.Src.AbsPath, filepath.Join(p.Dir, c.DstName), m.progress)
		switch {
		case err == nil:
			fr.Status = domain.FileStatusCopied
		case errors.Is(err, os.ErrExist):
			fr.Status = domain.FileStatusExists
		case fsx.IsPathTypeConflict(err):
			fr.Status = domain.FileStatusConflict
			fr.ErrorCode = domain.ErrCodeTargetConflict
			fr.ErrorMsg = err.Error()
		default:
			fr.Status = domain.FileStatusFailed
			fr.ErrorCode = domain.ErrCodeCopyFailed
			fr.ErrorMsg = err.Error()
			log.Error("复制失败", zap.String("src", c.Src.RelPath), zap.Error(err))
		}
		res.Files = append(res.Files, fr)
	}

	placements, err := categorize(p.Dir, kinds)
	if err != nil {
		return failSession(res, p, err)
	}
	for _, pl := range placements {
		if pl.Removed && pl.Err == nil {
			log.Info("分类目录已有相同文件，删除根目录副本", zap.String("name", pl.Name), zap.String("category", string(pl.Category)))
		}
		if pl.Err == nil {
			continue
		}
		fr := domain.FileResult{
			Src: filepath.ToSlash(filepath.Join(p.Day, p.Folder, pl.Name)),
			Dst: filepath.ToSlash(filepath.Join(p.Day, p.Folder, string(pl.Category), pl.Name)),
		}
		if i, ok := byName[pl.Name]; ok {
			fr = res.Files[i]
		}
		var ce *rename.ConflictError
		if errors.As(pl.Err, &ce) {
			fr.Status = domain.FileStatusConflict
			fr.ErrorCode = domain.ErrCodeNameConflict
		} else {
			fr.Status = domain.FileStatusFailed
			fr.ErrorCode = domain.ErrCodeIOFailed
		}
		fr.ErrorMsg = pl.Err.Error()
		log.Warn("分类失败", zap.String("name", pl.Name), zap.Error(pl.Err))
		if i, ok := byName[pl.Name]; ok {
			res.Files[i] = fr
		} else {
			res.Files = append(res.Files, fr)
		}
	}

	if m.eff.DefaultImage != "" {
		if err := placeholder(ctx, p.Dir, m.eff.DefaultImage); err != nil {
			log.Warn("复制默认占位图失败", zap.String("default_image", m.eff.DefaultImage), zap.Error(err))
		}
	}

	s, err := flightlog.Build(ctx, p.Dir, flightlog.Options{
		LargeFileBytes: m.eff.LargeFileBytes,
		Duration:       m.duration(durations),
	})
	if err == nil {
		err = flightlog.Write(p.Dir, s)
	}
	if err != nil {
		res.Status = domain.SessionStatusFailed
		res.ErrorCode = domain.ErrCodeIOFailed
		res.ErrorMsg = fmt.Sprintf("生成飞行日志失败：%v", err)
		log.Error("生成飞行日志失败", zap.Error(err))
		return res
	}
	res.FlightCount = s.FlightCount
	res.TotalFlightTimeMin = s.TotalFlightTimeMin
	log.Info("会话已整理",
		zap.String("status", res.Status),
		zap.Int("files", len(res.Files)),
		zap.Int("flights", s.FlightCount),
	)
	return res
}

func (m *materializer) progress(p fsx.Progress) {
	if m.obs != nil {
		m.obs.OnCopyProgress(p)
	}
}

// duration 优先使用改名/收集阶段已探测到的时长，避免对同一视频重复调用 ffprobe。
func (m *materializer) duration(known map[string]float64) flightlog.DurationFunc {
	return func(ctx context.Context, path string) float64 {
		if d, ok := known[filepath.Base(path)]; ok {
			return d
		}
		return m.ext.Duration(ctx, path)
	}
}

// copyResult 的 Dst 是文件分类后的最终位置（相对输出根目录）。
func copyResult(p domain.SessionPlan, c domain.CopyPlan) domain.FileResult {
	cat := domain.CategoryFor(c.DstName, c.Src.Kind)
	return domain.FileResult{
		Src: c.Src.RelPath,
		Dst: filepath.ToSlash(filepath.Join(p.Day, p.Folder, string(cat), c.DstName)),
	}
}

func failSession(res domain.SessionResult, p domain.SessionPlan, err error) domain.SessionResult {
	res.Status = domain.SessionStatusFailed
	res.ErrorCode = domain.ErrCodeIOFailed
	if fsx.IsPathTypeConflict(err) {
		res.ErrorCode = domain.ErrCodeTargetConflict
	}
	res.ErrorMsg = err.Error()
	if len(res.Files) == 0 {
		for _, c := range p.Copies {
			fr := copyResult(p, c)
			fr.Status = domain.FileStatusFailed
			res.Files = append(res.Files, fr)
		}
	}
	return res
}

// placement 是会话根目录下单个文件的分类结果。
type placement struct {
	Name     string
	Category domain.Category
	// Removed 为 true 表示分类目录已有字节一致的同名文件，根目录副本被删除。
	Removed bool
	Err     error
}

// categorize 把会话根目录下的文件移入分类子目录（首个命中的分类）。
//
// 飞行日志（<会话名>.txt/.json）与 '.' 开头的文件留在根目录。
// 分类目录已有同名文件：内容一致则删除根目录副本，否则两份都保留并报告冲突。
func categorize(dir string, kinds map[string]domain.DeviceKind) ([]placement, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	folder := filepath.Base(dir)

	out := make([]placement, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || name == folder+".txt" || name == folder+".json" {
			continue
		}
		kind, ok := kinds[name]
		if !ok {
			kind, _ = rename.CanonicalKind(name)
		}
		pl := placement{Name: name, Category: domain.CategoryFor(name, kind)}
		pl.Removed, pl.Err = place(dir, name, pl.Category)
		out = append(out, pl)
	}
	return out, nil
}

func place(dir, name string, cat domain.Category) (removed bool, err error) {
	catDir := filepath.Join(dir, string(cat))
	if err := fsx.EnsureDir(catDir); err != nil {
		return false, err
	}
	src, dst := filepath.Join(dir, name), filepath.Join(catDir, name)

	fi, err := os.Lstat(dst)
	switch {
	case os.IsNotExist(err):
		return false, fsx.Rename(src, dst)
	case err != nil:
		return false, err
	case !fi.Mode().IsRegular():
		return false, &fsx.PathTypeConflictError{Path: dst, Want: "file", Got: fi.Mode().Type().String()}
	}

	same, err := fsx.SameContent(src, dst)
	if err != nil {
		return false, err
	}
	if !same {
		return false, &rename.ConflictError{Src: src, Target: dst}
	}
	return true, os.Remove(src)
}

// placeholder：IMG 为空（或不存在）时复制默认占位图；已存在视为满足。
func placeholder(ctx context.Context, sessionDir, image string) error {
	imgDir := filepath.Join(sessionDir, string(domain.CategoryIMG))
	entries, err := os.ReadDir(imgDir)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") {
			return nil
		}
	}
	if err := fsx.EnsureDir(imgDir); err != nil {
		return err
	}
	_, err = fsx.CopyFile(ctx, image, filepath.Join(imgDir, filepath.Base(image)), nil)
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	return err
}
