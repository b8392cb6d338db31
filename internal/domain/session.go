package domain

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	// StampLayout 是规范文件名开头的时间戳格式。
	StampLayout = "2006.01.02_15.04.05"

	DayLayout   = "2006.01.02"
	ClockLayout = "15.04.05"

	FolderSuffix = "_FPVSession"
)

// SessionBucket 是写盘前的内存分组：相邻成员时间差不超过阈值。
type SessionBucket struct {
	Start   time.Time
	End     time.Time
	Members []FileRecord // 按 Timestamp 升序
}

// DayFolderName 返回日目录名，例如 2024.01.01_FPVSession。
func DayFolderName(t time.Time) string {
	return t.Format(DayLayout) + FolderSuffix
}

// SessionFolderName 返回会话目录名，例如 2024.01.01_10.00.00-10.30.00_FPVSession。
func SessionFolderName(start, end time.Time) string {
	return start.Format(DayLayout) + "_" + start.Format(ClockLayout) + "-" + end.Format(ClockLayout) + FolderSuffix
}

var sessionRangeRE = regexp.MustCompile(`.*_(\d{2}\.\d{2}\.\d{2})-(\d{2}\.\d{2}\.\d{2})`)

// ParseSessionRange 从会话目录名中解析 [start,end]，日期取自 day。
// end 早于 start 时视为跨午夜。
func ParseSessionRange(name string, day time.Time) (start, end time.Time, ok bool) {
	m := sessionRangeRE.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, time.Time{}, false
	}
	start, ok1 := clockOn(day, m[1])
	end, ok2 := clockOn(day, m[2])
	if !ok1 || !ok2 {
		return time.Time{}, time.Time{}, false
	}
	if end.Before(start) {
		end = end.Add(24 * time.Hour)
	}
	return start, end, true
}

func clockOn(day time.Time, clock string) (time.Time, bool) {
	c, err := time.ParseInLocation(ClockLayout, clock, day.Location())
	if err != nil {
		return time.Time{}, false
	}
	y, mo, d := day.Date()
	return time.Date(y, mo, d, c.Hour(), c.Minute(), c.Second(), 0, day.Location()), true
}

// Overlaps 判断两个闭区间是否相交：max(s1,s2) <= min(e1,e2)。
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	lo := s1
	if s2.After(lo) {
		lo = s2
	}
	hi := e1
	if e2.Before(hi) {
		hi = e2
	}
	return !lo.After(hi)
}

// Category 是会话目录下的设备分类子目录。
type Category string

const (
	CategoryFPVCamera Category = "FPV_Camera"
	CategoryExtern    Category = "Extern_Vison"
	CategoryGoggle    Category = "Goggel_Vison"
	CategoryIMG       Category = "IMG"
	CategoryBlackbox  Category = "Blackbox"
)

// Categories 按匹配优先级排列。
var Categories = []Category{
	CategoryFPVCamera,
	CategoryExtern,
	CategoryGoggle,
	CategoryIMG,
	CategoryBlackbox,
}

// CategoryFor 按规范文件名把文件归入分类（首个命中生效）。
// 没有命中任何规则的文件归入 Extern_Vison，保证分区完整。
func CategoryFor(name string, kind DeviceKind) Category {
	switch {
	case strings.Contains(name, "DJI-O4"):
		return CategoryFPVCamera
	case kind == KindActionCamRear:
		return CategoryExtern
	case strings.Contains(name, "FPV-Goggel"):
		return CategoryGoggle
	case isCategoryImageExt(strings.ToLower(filepath.Ext(name))):
		return CategoryIMG
	case strings.Contains(name, "BFL"):
		return CategoryBlackbox
	default:
		return CategoryExtern
	}
}

func isCategoryImageExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff":
		return true
	default:
		return false
	}
}
