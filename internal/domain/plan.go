package domain

import "time"

// CopyPlan 规划一次复制：源文件 -> 会话根目录下的 DstName。
// Exists 为 true 表示会话目录（根或分类子目录）已有同名文件，跳过复制。
type CopyPlan struct {
	Src     FileRecord
	DstName string
	Exists  bool
}

// SessionPlan 是某个会话桶的确定性执行计划。
type SessionPlan struct {
	DayDir string // 绝对路径
	Day    string // 日目录名
	Dir    string // 会话目录绝对路径
	Folder string // 会话目录名

	Start time.Time
	End   time.Time

	// Reused 为 true 表示复用了时间区间相交的既有会话目录。
	Reused bool

	Copies []CopyPlan
}
