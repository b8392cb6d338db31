package fsx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"
)

// ChunkSize 是流式复制/比较/哈希使用的固定块大小（限制峰值内存）。
const ChunkSize = 1 << 20

// Progress 是一次复制的进度快照。
type Progress struct {
	Src     string
	Dst     string
	Copied  int64
	Total   int64
	Elapsed time.Duration
}

// Percent 返回 0..100 的完成百分比；空文件视为 100。
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 100
	}
	return float64(p.Copied) * 100 / float64(p.Total)
}

// BytesPerSec 返回平均吞吐。
func (p Progress) BytesPerSec() float64 {
	sec := p.Elapsed.Seconds()
	if sec <= 0 {
		return 0
	}
	return float64(p.Copied) / sec
}

// ETA 按平均吞吐估算剩余时间；无法估算时返回 0。
func (p Progress) ETA() time.Duration {
	bps := p.BytesPerSec()
	if bps <= 0 || p.Copied >= p.Total {
		return 0
	}
	return time.Duration(float64(p.Total-p.Copied) / bps * float64(time.Second))
}

// ProgressFunc 在每个块写入后调用；实现方自行节流。
type ProgressFunc func(Progress)

// CopyFile 把 src 分块复制到 dst（同目录临时文件 + rename），并保留 src 的 mtime。
//
// - dst 已存在：返回 os.ErrExist（不覆盖）
// - dst 是目录：返回 *PathTypeConflictError
// - 失败时不留下临时文件
func CopyFile(ctx context.Context, src, dst string, fn ProgressFunc) (int64, error) {
	if fi, err := os.Lstat(dst); err == nil {
		if fi.IsDir() {
			return 0, &PathTypeConflictError{Path: dst, Want: "file", Got: "dir"}
		}
		return 0, os.ErrExist
	} else if !os.IsNotExist(err) {
		return 0, err
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	started := time.Now()
	buf := make([]byte, ChunkSize)
	var copied int64
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, rerr := in.Read(buf)
		if n > 0 {
			if err := writeAll(tmp, buf[:n]); err != nil {
				return copied, err
			}
			copied += int64(n)
			if fn != nil {
				fn(Progress{Src: src, Dst: dst, Copied: copied, Total: st.Size(), Elapsed: time.Since(started)})
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return copied, rerr
		}
	}

	if err := tmp.Chmod(st.Mode().Perm()); err != nil {
		return copied, err
	}
	if err := tmp.Sync(); err != nil {
		return copied, err
	}
	if err := tmp.Close(); err != nil {
		return copied, err
	}
	if err := Rename(tmpName, dst); err != nil {
		return copied, err
	}
	if err := SetMtime(dst, st.ModTime()); err != nil {
		return copied, err
	}
	return copied, nil
}

// SetMtime 把 atime/mtime 都设置为 t。
func SetMtime(path string, t time.Time) error {
	return os.Chtimes(path, t, t)
}

// SameContent 逐块比较两个文件是否字节一致。
func SameContent(a, b string) (bool, error) {
	fa, err := os.Open(a)
	if err != nil {
		return false, err
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return false, err
	}
	defer fb.Close()

	sa, err := fa.Stat()
	if err != nil {
		return false, err
	}
	sb, err := fb.Stat()
	if err != nil {
		return false, err
	}
	if sa.Size() != sb.Size() {
		return false, nil
	}

	ba := make([]byte, ChunkSize)
	bb := make([]byte, ChunkSize)
	for {
		na, ea := io.ReadFull(fa, ba)
		nb, eb := io.ReadFull(fb, bb)
		if na != nb || !bytes.Equal(ba[:na], bb[:nb]) {
			return false, nil
		}
		doneA := errors.Is(ea, io.EOF) || errors.Is(ea, io.ErrUnexpectedEOF)
		doneB := errors.Is(eb, io.EOF) || errors.Is(eb, io.ErrUnexpectedEOF)
		if ea != nil && !doneA {
			return false, ea
		}
		if eb != nil && !doneB {
			return false, eb
		}
		if doneA || doneB {
			return doneA && doneB, nil
		}
	}
}

// EnsureDir 确保 dir 存在且是目录。
func EnsureDir(dir string) error {
	fi, err := os.Stat(dir)
	if err == nil {
		if fi.IsDir() {
			return nil
		}
		return &PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
	}
	if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
