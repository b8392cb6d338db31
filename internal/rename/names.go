package rename

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/text/cases"
)

// Names 是单次运行的目标名登记表。
//
// 同一次运行内已分配（含 dry-run 下仅“计划”的）目标名都会被登记，
// 保证同一秒内的多个文件拿到不同的 _n 后缀。比较按 Unicode case folding 进行，
// 以兼容大小写不敏感的文件系统。
type Names struct {
	fold   cases.Caser
	claims map[string]string // folded 绝对路径 -> 占用它的源文件
}

// NewNames 创建空登记表；每次运行一个实例。
func NewNames() *Names {
	return &Names{
		fold:   cases.Fold(),
		claims: make(map[string]string),
	}
}

func (n *Names) key(dir, name string) string {
	return n.fold.String(filepath.Join(dir, name))
}

// Claim 把 dir/name 登记为 src 的目标。
func (n *Names) Claim(dir, name, src string) {
	n.claims[n.key(dir, name)] = src
}

// ClaimedBy 返回占用 dir/name 的源文件（仅本次运行内的登记）。
func (n *Names) ClaimedBy(dir, name string) (string, bool) {
	src, ok := n.claims[n.key(dir, name)]
	return src, ok
}

// Taken 判断 dir/name 是否已被登记或已存在于磁盘。
func (n *Names) Taken(dir, name string) bool {
	if _, ok := n.ClaimedBy(dir, name); ok {
		return true
	}
	_, err := os.Lstat(filepath.Join(dir, name))
	return err == nil
}

// Alloc 返回 dir 下第一个空闲的 base+ext / base_1+ext / base_2+ext …，并登记给 src。
// self 是源文件当前名字：若候选名恰好就是自己，则视为空闲（无需改名）。
func (n *Names) Alloc(dir, base, ext, self, src string) string {
	cand := base + ext
	for i := 1; ; i++ {
		if cand == self {
			if _, ok := n.ClaimedBy(dir, cand); !ok {
				break
			}
		} else if !n.Taken(dir, cand) {
			break
		}
		cand = fmt.Sprintf("%s_%d%s", base, i, ext)
	}
	n.Claim(dir, cand, src)
	return cand
}
