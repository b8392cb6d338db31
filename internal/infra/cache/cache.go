package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/fpvsession/internal/infra/fsx"
)

// StateDir 是输出根目录下工具自身状态所在的目录。
const StateDir = ".fpvsession"

// Store 提供 <output>/.fpvsession/ 下的状态文件读写（report、索引快照）。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - apply：允许写（ReadOnly=false）
type Store struct {
	Root     string // <output>
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// Path 返回状态文件的绝对路径。
func (s Store) Path(name string) (string, error) {
	n, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, StateDir, n), nil
}

// Read 读取状态文件；不存在时 ok=false 且不报错。
func (s Store) Read(name string) ([]byte, bool, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

// Write 原子覆盖写入状态文件。
func (s Store) Write(name string, data []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	n, err := cleanName(name)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Join(s.Root, StateDir), n, data)
}

var stateNameRE = regexp.MustCompile(`^[a-z0-9_]+\.json$`)

func cleanName(n string) (string, error) {
	n = strings.ToLower(strings.TrimSpace(n))
	if n == "" {
		return "", fmt.Errorf("状态文件名不能为空")
	}
	// 最小约束：避免路径穿越；状态文件名本身是枚举（report.json/index.json）。
	if !stateNameRE.MatchString(n) {
		return "", fmt.Errorf("非法状态文件名：%q", n)
	}
	return n, nil
}
