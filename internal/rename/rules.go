package rename

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/John-Robertt/fpvsession/internal/domain"
)

// StampSource 决定规范名时间戳取自哪里。
type StampSource int

const (
	// StampModTime：文件系统 mtime。
	StampModTime StampSource = iota
	// StampContent：内容元数据（ffprobe creation_time），失败回落 mtime。
	StampContent
	// StampFilename：从文件名解析（Rule.ParseTime），失败回落 mtime。
	StampFilename
)

// Collision 决定目标名被占用时的处理方式。
type Collision int

const (
	// CollisionCounter：追加 _1、_2… 直到空闲。
	CollisionCounter Collision = iota
	// CollisionIdenticalOrConflict：目标字节一致则删除候选文件，否则报告冲突并跳过。
	CollisionIdenticalOrConflict
)

// Rule 是一条带设备标签的匹配规则。规则表按顺序求值，首个命中生效。
//
// 新增设备类型只需要追加一条 Rule，不需要改动 Renamer。
type Rule struct {
	Name string
	Kind domain.DeviceKind

	// Match 只看文件名；返回的 submatch 交给 Build/ParseTime。
	Match func(name string) (sub []string, ok bool)

	Stamp     StampSource
	ParseTime func(sub []string) (time.Time, bool)

	// Build 返回不含扩展名的规范名。
	Build func(stamp string, sub []string) string
	// Ext 返回规范扩展名（含 '.'）。
	Ext func(name string) string

	Collision Collision
}

// Rules 是只读、有序的规则表。
type Rules struct {
	list []Rule
}

// NewRules 校验并构建规则表：名字必须唯一且非空，函数字段必须齐全。
func NewRules(rules ...Rule) (Rules, error) {
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return Rules{}, fmt.Errorf("rule.Name 不能为空")
		}
		if _, ok := seen[name]; ok {
			return Rules{}, fmt.Errorf("重复的 rule：%q", name)
		}
		if r.Match == nil || r.Build == nil || r.Ext == nil {
			return Rules{}, fmt.Errorf("rule %q 缺少 Match/Build/Ext", name)
		}
		if r.Stamp == StampFilename && r.ParseTime == nil {
			return Rules{}, fmt.Errorf("rule %q 使用文件名时间戳但缺少 ParseTime", name)
		}
		seen[name] = struct{}{}
	}
	return Rules{list: append([]Rule(nil), rules...)}, nil
}

// First 返回第一条命中的规则。
func (rs Rules) First(name string) (Rule, []string, bool) {
	for _, r := range rs.list {
		if sub, ok := r.Match(name); ok {
			return r, sub, true
		}
	}
	return Rule{}, nil, false
}

// Len 返回规则数量。
func (rs Rules) Len() int { return len(rs.list) }

var (
	digitsRE     = regexp.MustCompile(`\d+`)
	djiMP4RE     = regexp.MustCompile(`(?i)^DJI_(\d+)_\d+_D\.MP4$`)
	djiMOVRE     = regexp.MustCompile(`^DJI_(\d+)(?:_1)?\.(?i:mov)$`)
	pixelRE      = regexp.MustCompile(`^PXL_(\d{8})_(\d{6,})\.(?i:mp4)$`)
	goggleMarker = "goggel_vison"
)

func lowerExt(name string) string { return strings.ToLower(filepath.Ext(name)) }

func fixedExt(ext string) func(string) string {
	return func(string) string { return ext }
}

// DefaultRules 是 FPV 设备的内置规则表。
//
// 注意：DJI .MOV 规则输出 FPV-Goggel 标签（而不是 DJI-O4），这是既有目录约定，保持原样。
func DefaultRules() Rules {
	rs, err := NewRules(
		Rule{
			Name: "blackbox",
			Kind: domain.KindBlackbox,
			Match: func(name string) ([]string, bool) {
				if lowerExt(name) != ".bfl" {
					return nil, false
				}
				return []string{digitsRE.FindString(name)}, true
			},
			Stamp: StampModTime,
			Build: func(stamp string, sub []string) string {
				return stamp + "_FPV_Blackbox_" + blackboxSeq(sub[0])
			},
			Ext:       fixedExt(".BFL"),
			Collision: CollisionIdenticalOrConflict,
		},
		Rule{
			Name: "goggle",
			Kind: domain.KindGoggleCamera,
			Match: func(name string) ([]string, bool) {
				if lowerExt(name) != ".mp4" || !strings.Contains(strings.ToLower(name), goggleMarker) {
					return nil, false
				}
				return nil, true
			},
			Stamp: StampContent,
			Build: func(stamp string, _ []string) string { return stamp + "_FPV-Goggel" },
			Ext:   fixedExt(".MP4"),
		},
		Rule{
			Name:  "dji-mp4",
			Kind:  domain.KindActionCamFront,
			Match: submatch(djiMP4RE),
			Stamp: StampContent,
			Build: func(stamp string, sub []string) string { return stamp + "_" + sub[1] + "_DJI-O4" },
			Ext:   fixedExt(".MP4"),
		},
		Rule{
			Name:  "dji-mov",
			Kind:  domain.KindGoggleCamera,
			Match: submatch(djiMOVRE),
			Stamp: StampContent,
			Build: func(stamp string, sub []string) string { return stamp + "_" + sub[1] + "_FPV-Goggel" },
			Ext:   fixedExt(".MOV"),
		},
		Rule{
			Name:      "pixel",
			Kind:      domain.KindPhoneCamera,
			Match:     submatch(pixelRE),
			Stamp:     StampFilename,
			ParseTime: pixelTime,
			Build:     func(stamp string, _ []string) string { return stamp + "_Google-Pixel" },
			Ext:       fixedExt(".MP4"),
		},
		Rule{
			Name: "image",
			Kind: domain.KindImage,
			Match: func(name string) ([]string, bool) {
				switch lowerExt(name) {
				case ".jpg", ".jpeg", ".png", ".heic", ".bmp":
					return nil, true
				default:
					return nil, false
				}
			},
			Stamp: StampModTime,
			Build: func(stamp string, _ []string) string { return stamp + "_img" },
			// 保留原扩展名（含大小写）。
			Ext: filepath.Ext,
		},
	)
	if err != nil {
		panic(err)
	}
	return rs
}

func submatch(re *regexp.Regexp) func(string) ([]string, bool) {
	return func(name string) ([]string, bool) {
		m := re.FindStringSubmatch(name)
		return m, m != nil
	}
}

// blackboxSeq 把首个数字段补零到 5 位（更长的保持原样）；没有数字时为 00000。
func blackboxSeq(digits string) string {
	if len(digits) >= 5 {
		return digits
	}
	return strings.Repeat("0", 5-len(digits)) + digits
}

// pixelTime 解析 PXL_YYYYMMDD_HHMMSS… 中的日期与前 6 位时刻（本地时区）。
func pixelTime(sub []string) (time.Time, bool) {
	if len(sub) < 3 || len(sub[2]) < 6 {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("20060102150405", sub[1]+sub[2][:6], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// 已是规范名的文件：时间戳前缀 + 已知标签 + 可选 _n。
var canonicalRE = regexp.MustCompile(`^\d{4}\.\d{2}\.\d{2}_\d{2}\.\d{2}\.\d{2}_(FPV_Blackbox_\d{5,}|FPV-Goggel|\d+_DJI-O4|\d+_FPV-Goggel|Google-Pixel|img)(?:_\d+)?\.[^.]+$`)

// CanonicalKind 判断 name 是否已是规范名，并给出对应设备类型。
func CanonicalKind(name string) (domain.DeviceKind, bool) {
	m := canonicalRE.FindStringSubmatch(name)
	if m == nil {
		return domain.KindUnknown, false
	}
	label := m[1]
	switch {
	case strings.HasPrefix(label, "FPV_Blackbox_"):
		return domain.KindBlackbox, true
	case strings.HasSuffix(label, "_DJI-O4"):
		return domain.KindActionCamFront, true
	case strings.HasSuffix(label, "FPV-Goggel"):
		return domain.KindGoggleCamera, true
	case label == "Google-Pixel":
		return domain.KindPhoneCamera, true
	default:
		return domain.KindImage, true
	}
}
