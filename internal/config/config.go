package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/John-Robertt/fpvsession/internal/scan"
)

const (
	// ErrCodeNotFound 表示未给输入目录且 cwd 下没有 fpvsession.{json,toml,yaml}。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示未给输入目录且配置文件缺少 input 字段。
	ErrCodeMissingPath = "config_missing_path"
)

const (
	// ConfigName 是配置文件名（不含扩展名），支持 viper 能解析的所有格式。
	ConfigName = "fpvsession"
	// EnvPrefix 是环境变量前缀，例如 FPVSESSION_OUTPUT。
	EnvPrefix = "FPVSESSION"

	DefaultMaxGapMinutes       = 70
	DefaultProbeTimeoutSeconds = 30
	DefaultLargeFileBytes      = int64(3) << 30
	DefaultIndexMaxAgeSeconds  = 600
	DefaultExcludedName        = "default_session_img.jpg"
	DefaultLogLevel            = "info"
)

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 config.apply=true。
type CLIArgs struct {
	Input  string
	Output string

	Apply    bool
	ApplySet bool

	MaxGap    time.Duration
	MaxGapSet bool

	LogLevel string

	// OutputOnly 用于只读取输出目录的子命令（index/tags/thumbs）：不需要 input，
	// 配置文件只在 cwd 下查找且可选。
	OutputOnly bool
	// InputOnly 用于只改动输入目录的子命令（rename/dedup）：output 可以为空。
	InputOnly bool
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Input  string
	Output string
	Apply  bool

	MaxGap         time.Duration
	FFprobePath    string
	FFmpegPath     string
	ProbeTimeout   time.Duration
	DefaultImage   string
	ExcludedNames  []string
	ExcludeDirs    []string
	LargeFileBytes int64
	ImageExif      bool
	SkipRename     bool
	SkipDedup      bool

	LogLevel    string
	LogFile     string
	IndexMaxAge time.Duration

	// ConfigFile 是实际读取的配置文件；未使用配置文件时为空。
	ConfigFile string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 input", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(ConfigName)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("input", "")
	v.SetDefault("output", "")
	v.SetDefault("apply", false)
	v.SetDefault("max_gap_minutes", DefaultMaxGapMinutes)
	v.SetDefault("ffprobe_path", "ffprobe")
	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("probe_timeout_seconds", DefaultProbeTimeoutSeconds)
	v.SetDefault("default_image", "")
	v.SetDefault("excluded_names", []string{DefaultExcludedName})
	v.SetDefault("exclude_dirs", []string{})
	v.SetDefault("large_file_bytes", DefaultLargeFileBytes)
	v.SetDefault("image_exif", true)
	v.SetDefault("skip_rename", false)
	v.SetDefault("skip_dedup", false)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_file", "")
	v.SetDefault("index_max_age_seconds", DefaultIndexMaxAgeSeconds)
	return v
}

// readConfig 在 dir 下查找配置文件；不存在时 found=false 且不报错。
func readConfig(v *viper.Viper, dir string) (found bool, err error) {
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// LoadEffective 按约定发现并读取配置，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 input：尝试读取 <input>/fpvsession.*（可选）
// 2) CLI 未提供 input：必须读取 <cwd>/fpvsession.*（必选），且其中必须包含 input
// 3) OutputOnly：尝试读取 <cwd>/fpvsession.*（可选），不需要 input
//
// 覆盖优先级（固定）：CLI > 环境变量 FPVSESSION_* > 配置文件 > 默认值。
// 配置文件中的相对路径以配置文件所在目录为基准，CLI 中的相对路径以 cwd 为基准。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	v := newViper()
	displayPath := filepath.Join(cwdAbs, ConfigName+".json")

	var input string
	switch {
	case cli.OutputOnly:
		if _, err := readConfig(v, cwdAbs); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: displayPath, Err: err}
		}
	case strings.TrimSpace(cli.Input) != "":
		input = absCleanFrom(cwdAbs, cli.Input)
		if _, err := readConfig(v, input); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: filepath.Join(input, ConfigName+".json"), Err: err}
		}
	default:
		found, err := readConfig(v, cwdAbs)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: displayPath, Err: err}
		}
		if !found {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: displayPath, Err: os.ErrNotExist}
		}
		if strings.TrimSpace(v.GetString("input")) == "" {
			return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: v.ConfigFileUsed()}
		}
	}

	cfgPath := v.ConfigFileUsed()
	fileBase := cwdAbs
	if cfgPath != "" {
		fileBase = filepath.Dir(cfgPath)
	} else {
		cfgPath = displayPath
	}
	if input == "" && !cli.OutputOnly {
		input = absCleanFrom(fileBase, v.GetString("input"))
	}

	return merge(v, cli, input, cwdAbs, fileBase, cfgPath)
}

func merge(v *viper.Viper, cli CLIArgs, input, cwdAbs, fileBase, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	// output：CLI > env/config
	output := absCleanFrom(fileBase, v.GetString("output"))
	if strings.TrimSpace(cli.Output) != "" {
		output = absCleanFrom(cwdAbs, cli.Output)
	}
	if output == "" && !cli.InputOnly {
		return EffectiveConfig{}, invalid("output 不能为空")
	}
	if input != "" && scan.IsUnder(output, input) {
		return EffectiveConfig{}, invalid("output %q 不能位于 input %q 之内", output, input)
	}

	// apply：CLI > env/config > 默认 false
	apply := v.GetBool("apply")
	if cli.ApplySet {
		apply = cli.Apply
	}

	maxGap := time.Duration(v.GetInt("max_gap_minutes")) * time.Minute
	if cli.MaxGapSet {
		maxGap = cli.MaxGap
	}
	if maxGap <= 0 {
		return EffectiveConfig{}, invalid("max_gap 必须大于 0，实际是 %s", maxGap)
	}

	logLevel := strings.ToLower(strings.TrimSpace(v.GetString("log_level")))
	if strings.TrimSpace(cli.LogLevel) != "" {
		logLevel = strings.ToLower(strings.TrimSpace(cli.LogLevel))
	}
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return EffectiveConfig{}, invalid("log_level 只能是 debug/info/warn/error，实际是 %q", logLevel)
	}

	probeTimeout := time.Duration(v.GetInt("probe_timeout_seconds")) * time.Second
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeoutSeconds * time.Second
	}
	large := v.GetInt64("large_file_bytes")
	if large <= 0 {
		large = DefaultLargeFileBytes
	}
	maxAge := time.Duration(v.GetInt("index_max_age_seconds")) * time.Second
	if maxAge <= 0 {
		maxAge = DefaultIndexMaxAgeSeconds * time.Second
	}

	defaultImage := absCleanFrom(fileBase, v.GetString("default_image"))
	logFile := absCleanFrom(fileBase, v.GetString("log_file"))

	eff := EffectiveConfig{
		Input:          input,
		Output:         output,
		Apply:          apply,
		MaxGap:         maxGap,
		FFprobePath:    strings.TrimSpace(v.GetString("ffprobe_path")),
		FFmpegPath:     strings.TrimSpace(v.GetString("ffmpeg_path")),
		ProbeTimeout:   probeTimeout,
		DefaultImage:   defaultImage,
		ExcludedNames:  cleanList(v.GetStringSlice("excluded_names")),
		ExcludeDirs:    cleanList(v.GetStringSlice("exclude_dirs")),
		LargeFileBytes: large,
		ImageExif:      v.GetBool("image_exif"),
		SkipRename:     v.GetBool("skip_rename"),
		SkipDedup:      v.GetBool("skip_dedup"),
		LogLevel:       logLevel,
		LogFile:        logFile,
		IndexMaxAge:    maxAge,
		ConfigFile:     v.ConfigFileUsed(),
	}
	// 默认占位图本身永远不参与重命名/去重。
	if eff.DefaultImage != "" {
		eff.ExcludedNames = appendUnique(eff.ExcludedNames, filepath.Base(eff.DefaultImage))
	}
	return eff, nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 为空：返回空串
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
