package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/John-Robertt/fpvsession/internal/infra/fsx"
)

// MetaFile 是会话目录下保存标签的 sidecar。
const MetaFile = ".fpvweb_meta.json"

// ErrInvalidSession 表示 name/sub 不是单层目录名。
var ErrInvalidSession = errors.New("index: 非法会话路径")

type metaDoc struct {
	Tags []string `json:"tags"`
}

// NormalizeTags 去空白、转小写、去重，保持首次出现的顺序。
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		v := strings.ToLower(strings.TrimSpace(t))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func sessionDir(root, name, sub string) (string, error) {
	for _, p := range []string{name, sub} {
		if p == "" || strings.HasPrefix(p, ".") || strings.ContainsAny(p, `/\`) {
			return "", fmt.Errorf("%w：%q", ErrInvalidSession, p)
		}
	}
	return filepath.Join(root, name, sub), nil
}

// LoadTags 读取会话标签；sidecar 不存在时返回空列表。
func LoadTags(root, name, sub string) ([]string, error) {
	dir, err := sessionDir(root, name, sub)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	var doc metaDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return []string{}, fmt.Errorf("解析 %s 失败：%w", MetaFile, err)
	}
	return NormalizeTags(doc.Tags), nil
}

// SaveTags 规范化并原子写入会话标签，返回实际保存的列表。
func SaveTags(root, name, sub string, tags []string) ([]string, error) {
	dir, err := sessionDir(root, name, sub)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, &fsx.PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
	}

	norm := NormalizeTags(tags)
	b, err := json.MarshalIndent(metaDoc{Tags: norm}, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := fsx.WriteFileAtomicReplace(dir, MetaFile, b); err != nil {
		return nil, err
	}
	return norm, nil
}
