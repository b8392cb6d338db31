package stamp

import (
	"fmt"
	"regexp"
	"time"

	"github.com/John-Robertt/fpvsession/internal/domain"
)

// 规范文件名开头的时间戳：日期与时刻之间允许 '_' 或 '.'。
var leadingRE = regexp.MustCompile(`^(\d{4}\.\d{2}\.\d{2})[._](\d{2}\.\d{2}\.\d{2})`)

// UnmatchedError 表示文件名没有可解析的开头时间戳。
type UnmatchedError struct {
	Name string
	// Invalid 为 true 表示格式命中但日期/时刻非法（例如 13 月）。
	Invalid bool
}

func (e *UnmatchedError) Error() string {
	if e.Invalid {
		return fmt.Sprintf("文件名开头的时间戳非法：%q", e.Name)
	}
	return fmt.Sprintf("文件名缺少开头时间戳：%q", e.Name)
}

// Extract 从文件名开头解析时间戳（本地时区）。
// 失败时返回 *UnmatchedError。
func Extract(name string) (time.Time, error) {
	m := leadingRE.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, &UnmatchedError{Name: name}
	}
	t, err := time.ParseInLocation(domain.StampLayout, m[1]+"_"+m[2], time.Local)
	if err != nil {
		return time.Time{}, &UnmatchedError{Name: name, Invalid: true}
	}
	return t, nil
}

// Format 把时间格式化为规范文件名前缀。
func Format(t time.Time) string {
	return t.In(time.Local).Format(domain.StampLayout)
}
