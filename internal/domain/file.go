package domain

import "time"

// DeviceKind 是文件的来源设备分类（由文件名规则与扩展名推断）。
type DeviceKind string

const (
	KindBlackbox       DeviceKind = "blackbox"
	KindGoggleCamera   DeviceKind = "goggle_camera"
	KindActionCamFront DeviceKind = "action_cam_front"
	KindActionCamRear  DeviceKind = "action_cam_rear"
	KindPhoneCamera    DeviceKind = "phone_camera"
	KindImage          DeviceKind = "image"
	KindUnknown        DeviceKind = "unknown"
)

// FileRecord 描述一次运行中被处理的物理文件。
//
// 不变量（实现必须遵守）：
// - AbsPath 必须是 clean + absolute
// - Timestamp 永远非零：探测失败时等于 ModTime
// - 记录只引用文件，不复制内容；ContentHash 只在去重阶段按需计算
type FileRecord struct {
	AbsPath string
	RelPath string
	// Name 是文件的有效名：dry-run 下为计划中的规范名，AbsPath 仍指向原文件。
	Name    string
	Ext     string // 小写，例如 ".mp4"
	Size    int64
	ModTime time.Time

	Kind            DeviceKind
	Timestamp       time.Time
	DurationSeconds float64
}

// IsVideoExt 判断扩展名（小写）是否是需要探测时长的视频容器。
func IsVideoExt(ext string) bool {
	switch ext {
	case ".mp4", ".mov", ".avi":
		return true
	default:
		return false
	}
}
