// Package dedup 按内容删除输入目录中的完全重复文件。
//
// 判定分三级：大小相同 -> 前 64 KiB 的 xxhash 相同 -> 全量 SHA-256 相同。
// 只有最后一级相同才视为重复；前两级只用于缩小需要全量读取的范围。
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"github.com/John-Robertt/fpvsession/internal/domain"
)

const (
	PrefixSize = 64 << 10
	ChunkSize  = 1 << 20
)

// Options 控制一次去重。
type Options struct {
	DryRun bool
	// Excluded 中的文件名永远不会被删除（但仍可作为保留代表）。
	Excluded []string
	// Workers 是并发哈希数；<=0 时为 4。
	Workers int
	Log     *zap.Logger
}

// Group 是一组内容完全相同的文件。
type Group struct {
	Size    int64
	Hash    string // 十六进制 SHA-256
	Keep    string // 保留的代表（RelPath）
	Removed []string
}

// Result 是一次去重的结果。
type Result struct {
	Groups  []Group
	Removed []domain.FileResult
	// Kept 是去重后仍存在的文件（保持输入顺序）。
	Kept []domain.FileRecord
	// Err 汇总了读取/哈希阶段的错误，出错的文件保持原样并留在 Kept 中。
	// 删除失败只体现在 Removed 的 failed 条目里。
	Err error
}

// Eliminate 在 files 中查找重复并删除多余副本。
//
// 代表选取：组内按输入顺序第一个非排除文件；组内全部被排除时不删除任何文件。
// dry-run 下只报告 planned_delete。
func Eliminate(ctx context.Context, files []domain.FileRecord, opts Options) Result {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	// 排除名按 case folding 比较：存储卡上常见全大写文件名。
	fold := cases.Fold()
	excluded := make(map[string]struct{}, len(opts.Excluded))
	for _, n := range opts.Excluded {
		excluded[fold.String(n)] = struct{}{}
	}

	var res Result
	removed := make(map[string]struct{})

	for _, cand := range candidatesBySize(files) {
		if ctx.Err() != nil {
			res.Err = multierr.Append(res.Err, ctx.Err())
			break
		}
		groups, err := hashGroups(ctx, cand, opts.Workers)
		res.Err = multierr.Append(res.Err, err)

		for _, g := range groups {
			keepIdx := -1
			for i, f := range g.members {
				if _, ok := excluded[fold.String(f.Name)]; !ok {
					keepIdx = i
					break
				}
			}
			if keepIdx < 0 {
				continue
			}

			out := Group{Size: g.members[0].Size, Hash: g.hash, Keep: g.members[keepIdx].RelPath}
			for i, f := range g.members {
				if i == keepIdx {
					continue
				}
				if _, ok := excluded[fold.String(f.Name)]; ok {
					continue
				}
				fr := domain.FileResult{Src: f.RelPath, Dst: out.Keep}
				switch {
				case opts.DryRun:
					fr.Status = domain.FileStatusPlannedDelete
					removed[f.AbsPath] = struct{}{}
				default:
					if err := os.Remove(f.AbsPath); err != nil {
						fr.Status = domain.FileStatusFailed
						fr.ErrorCode = domain.ErrCodeIOFailed
						fr.ErrorMsg = err.Error()
						log.Error("删除重复文件失败", zap.String("path", f.RelPath), zap.Error(err))
						res.Removed = append(res.Removed, fr)
						continue
					}
					fr.Status = domain.FileStatusDeleted
					removed[f.AbsPath] = struct{}{}
					log.Info("已删除重复文件", zap.String("path", f.RelPath), zap.String("keep", out.Keep))
				}
				out.Removed = append(out.Removed, f.RelPath)
				res.Removed = append(res.Removed, fr)
			}
			if len(out.Removed) > 0 {
				res.Groups = append(res.Groups, out)
			}
		}
	}

	res.Kept = make([]domain.FileRecord, 0, len(files)-len(removed))
	for _, f := range files {
		if _, ok := removed[f.AbsPath]; !ok {
			res.Kept = append(res.Kept, f)
		}
	}
	return res
}

// candidatesBySize 返回大小相同的文件组（空文件也参与），组内保持输入顺序。
func candidatesBySize(files []domain.FileRecord) [][]domain.FileRecord {
	bySize := make(map[int64][]domain.FileRecord)
	var sizes []int64
	for _, f := range files {
		if _, ok := bySize[f.Size]; !ok {
			sizes = append(sizes, f.Size)
		}
		bySize[f.Size] = append(bySize[f.Size], f)
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })

	out := make([][]domain.FileRecord, 0, len(sizes))
	for _, s := range sizes {
		if len(bySize[s]) > 1 {
			out = append(out, bySize[s])
		}
	}
	return out
}

type hashGroup struct {
	hash    string
	members []domain.FileRecord
}

// hashGroups 对同尺寸文件先比前缀哈希，再对仍有碰撞的文件算全量哈希。
// 读失败的文件被剔除（不参与删除），错误汇总返回。
func hashGroups(ctx context.Context, files []domain.FileRecord, workers int) ([]hashGroup, error) {
	prefix, err := hashAll(ctx, files, workers, prefixHash)
	var order []uint64
	byPrefix := make(map[uint64][]int)
	for i, h := range prefix {
		if h.err != nil {
			continue
		}
		k := h.sum.(uint64)
		if _, ok := byPrefix[k]; !ok {
			order = append(order, k)
		}
		byPrefix[k] = append(byPrefix[k], i)
	}

	var groups []hashGroup
	for _, k := range order {
		idx := byPrefix[k]
		if len(idx) < 2 {
			continue
		}
		sub := make([]domain.FileRecord, len(idx))
		for i, j := range idx {
			sub[i] = files[j]
		}
		full, ferr := hashAll(ctx, sub, workers, fullHash)
		err = multierr.Append(err, ferr)

		var fullOrder []string
		byFull := make(map[string][]domain.FileRecord)
		for i, h := range full {
			if h.err != nil {
				continue
			}
			s := h.sum.(string)
			if _, ok := byFull[s]; !ok {
				fullOrder = append(fullOrder, s)
			}
			byFull[s] = append(byFull[s], sub[i])
		}
		for _, s := range fullOrder {
			if len(byFull[s]) > 1 {
				groups = append(groups, hashGroup{hash: s, members: byFull[s]})
			}
		}
	}
	return groups, err
}

type hashResult struct {
	sum any
	err error
}

func hashAll(ctx context.Context, files []domain.FileRecord, workers int, fn func(string) (any, error)) ([]hashResult, error) {
	if workers <= 0 {
		workers = 4
	}
	out := make([]hashResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				out[i].err = err
				return nil
			}
			out[i].sum, out[i].err = fn(files[i].AbsPath)
			return nil
		})
	}
	_ = g.Wait()

	var err error
	for i, r := range out {
		if r.err != nil && !errors.Is(r.err, context.Canceled) {
			err = multierr.Append(err, fmt.Errorf("哈希 %s：%w", files[i].RelPath, r.err))
		}
	}
	return out, err
}

func prefixHash(path string) (any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.CopyN(h, f, PrefixSize); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return h.Sum64(), nil
}

func fullHash(path string) (any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, ChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return nil, err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
