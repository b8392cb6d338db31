package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/fpvsession/internal/domain"
)

// StateDir 是工具自身状态（report 等）所在的目录名，永远不参与扫描。
const StateDir = ".fpvsession"

// ScanFiles 递归扫描 root 下的所有普通文件，并应用目录排除规则。
//
// 规则（硬约束）：
// - 永久排除：<root>/.fpvsession/ 与以 '.' 开头的文件（临时文件、系统元数据）
// - excludeDirs：来自配置文件，均视为相对 root 的路径（若是绝对路径，则按绝对路径处理）
//
// 注意：扫描阶段只做 stat（DirEntry.Info），不读文件内容。
// 返回的记录 Timestamp 先取 mtime，由 probe 阶段按需覆盖。
func ScanFiles(root string, excludeDirs []string) ([]domain.FileRecord, error) {
	root = filepath.Clean(root)
	excluded := buildExcluded(root, excludeDirs)

	files := make([]domain.FileRecord, 0, 128)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if isExcluded(path, excluded) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		name := d.Name()
		if strings.HasPrefix(name, ".") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		files = append(files, domain.FileRecord{
			AbsPath:   path,
			RelPath:   rel,
			Name:      name,
			Ext:       strings.ToLower(filepath.Ext(name)),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			Kind:      domain.KindUnknown,
			Timestamp: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, 1+len(excludeDirs))
	excluded = append(excluded, filepath.Join(root, StateDir))

	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}

	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}

// IsUnder 判断 path 是否位于 base 之内（含相等）。配置校验用它拒绝“输出目录在输入目录内”。
func IsUnder(path, base string) bool {
	return isUnder(filepath.Clean(path), filepath.Clean(base))
}
