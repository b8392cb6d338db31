package domain

import "time"

// ExistingSession 是日目录下一个可解析的既有会话目录。
type ExistingSession struct {
	Name  string
	Start time.Time
	End   time.Time
}

// DayState 描述 <output>/<日目录>/ 的现状（只做 ReadDir，不读内容）。
type DayState struct {
	DayDir string
	// Sessions 按目录名排序。
	Sessions []ExistingSession
}

// SessionState 描述会话目录现状：根目录与各分类子目录中的文件名。
type SessionState struct {
	Dir           string
	ExistingNames map[string]struct{}
}
